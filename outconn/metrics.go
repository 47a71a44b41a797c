package outconn

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors the pattern p2p/transport/tcp/metrics.go uses: package
// level collectors, registered exactly once, incremented from the hot
// path. Unlike that package we don't register against the global
// prometheus.DefaultRegisterer implicitly — callers opt in by calling
// RegisterMetrics (or never do, and pay nothing but a few atomic
// increments on collectors nobody scrapes).
var (
	dialRequestsTotal prometheus.Counter
	dialSuccessTotal  prometheus.Counter
	dialFailureTotal  prometheus.Counter
	forgottenTotal    prometheus.Counter
	resetTotal        prometheus.Counter

	connectedAddrs prometheus.Gauge
	routesGauge    prometheus.Gauge
	blockedAddrs   prometheus.Gauge

	initMetricsOnce sync.Once
)

func initMetrics() {
	dialRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "outconn",
		Name:      "dial_requests_total",
		Help:      "Number of dial requests issued to the Dialer, across all addresses.",
	})
	dialSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "outconn",
		Name:      "dial_success_total",
		Help:      "Number of dial attempts that resolved successfully.",
	})
	dialFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "outconn",
		Name:      "dial_failure_total",
		Help:      "Number of dial attempts that resolved as a failure.",
	})
	forgottenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "outconn",
		Name:      "addresses_forgotten_total",
		Help:      "Number of addresses evicted after exhausting their retry budget.",
	})
	resetTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "outconn",
		Name:      "addresses_reset_total",
		Help:      "Number of unforgettable addresses reset after exhausting their retry budget.",
	})
	connectedAddrs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "outconn",
		Name:      "connected_addresses",
		Help:      "Number of addresses currently in the Connected state.",
	})
	routesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "outconn",
		Name:      "routing_table_size",
		Help:      "Number of entries currently in the peer-id routing table.",
	})
	blockedAddrs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "outconn",
		Name:      "blocked_addresses",
		Help:      "Number of addresses currently administratively blocked.",
	})
}

// RegisterMetrics registers this package's collectors against reg. The
// collectors are package-level, so every call registers the same ones
// against the reg it is given; a second call with a registerer that
// already holds them returns that registerer's error.
func RegisterMetrics(reg prometheus.Registerer) error {
	initMetricsOnce.Do(initMetrics)
	collectors := []prometheus.Collector{
		dialRequestsTotal, dialSuccessTotal, dialFailureTotal,
		forgottenTotal, resetTotal, connectedAddrs, routesGauge, blockedAddrs,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	initMetricsOnce.Do(initMetrics)
}
