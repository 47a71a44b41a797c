// Command outconnd runs an outgoing connection manager as a standalone
// daemon: it dials a fixed set of seed addresses over raw TCP, keeps them
// connected under outconn's reconnect-with-backoff policy, replays its
// administrative blocklist from a datastore at startup, and exposes
// Prometheus metrics. The datastore is in-memory, so the blocklist does not
// survive a restart.
//
// It does not speak any particular wire protocol to the addresses it
// dials — there is no handshake, no authentication, no payload exchange.
// Its only job is to exercise the outconn state machine against a real
// network instead of a fake Dialer, the way examples/multipro exercises a
// real libp2p host against a real network.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-connmgr/outconn/core/peer"
	"github.com/go-connmgr/outconn/outconn"
	"github.com/go-connmgr/outconn/outconn/actor"
	"github.com/go-connmgr/outconn/outconn/blocklist"

	ds "github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	ma "github.com/multiformats/go-multiaddr"
	mh "github.com/multiformats/go-multihash"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

var log = logging.Logger("outconnd")

func main() {
	var (
		seedAddrs   = flag.String("seeds", "", "comma-separated multiaddrs to maintain outgoing connections to")
		metricsAddr = flag.String("metrics-addr", "127.0.0.1:9090", "address to serve /metrics on")
		retries     = flag.Uint("retry-attempts", uint(outconn.DefaultRetryAttempts), "dial attempts before an address is forgotten")
		baseTimeout = flag.Duration("base-timeout", outconn.DefaultBaseTimeout, "first reconnect backoff; doubles on every subsequent failure")
		devLog      = flag.Bool("dev-log", false, "use zap's development logging config instead of production")
	)
	flag.Parse()

	zlog, err := newZapLogger(*devLog)
	if err != nil {
		log.Fatalf("building zap logger: %s", err)
	}
	defer zlog.Sync() //nolint:errcheck

	if _, err := maxprocs.Set(maxprocs.Logger(zlog.Sugar().Infof)); err != nil {
		zlog.Warn("automaxprocs: failed to adjust GOMAXPROCS", zap.Error(err))
	}

	logging.SetAllLoggers(logging.LevelInfo)

	reg := prometheus.NewRegistry()
	if err := outconn.RegisterMetrics(reg); err != nil {
		log.Fatalf("registering metrics: %s", err)
	}

	store := blocklist.NewStore(openBlocklistDatastore())

	dialer := &tcpDialer{zlog: zlog}
	mgr, err := outconn.NewManager[net.Conn](dialer,
		outconn.WithRetryAttempts[net.Conn](uint8(*retries)),
		outconn.WithBaseTimeout[net.Conn](*baseTimeout),
	)
	if err != nil {
		log.Fatalf("building manager: %s", err)
	}

	a := actor.New[net.Conn](mgr)
	dialer.actor = a
	guard := blocklist.NewGuard(actorManagerAdapter{a}, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := guard.Replay(ctx); err != nil {
		zlog.Warn("failed to replay persisted blocklist", zap.Error(err))
	}

	a.Start()
	defer a.Close()

	for _, s := range splitAddrs(*seedAddrs) {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			zlog.Warn("skipping unparseable seed address", zap.String("addr", s), zap.Error(err))
			continue
		}
		a.LearnAddr(ctx, addr, true)
	}

	httpServer := &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("metrics server exited", zap.Error(err))
		}
	}()

	zlog.Info("outconnd started", zap.String("metrics_addr", *metricsAddr))
	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("metrics server shutdown error", zap.Error(err))
	}
}

func newZapLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func splitAddrs(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func openBlocklistDatastore() ds.Datastore {
	// A real deployment would point this at a durable backend (leveldb,
	// badger, flatfs); this daemon exists to exercise outconn end to end,
	// so an in-memory Datastore is enough to prove the replay path works
	// across a Guard being rebuilt, even though it can't survive a real
	// process restart.
	return ds.NewMapDatastore()
}

// actorManagerAdapter satisfies blocklist.Manager by forwarding to an
// actor.Actor[net.Conn]. It only forwards: *actor.Actor[net.Conn] already
// has both methods of blocklist.Manager with matching signatures.
type actorManagerAdapter struct {
	actor *actor.Actor[net.Conn]
}

func (a actorManagerAdapter) BlockAddr(ctx context.Context, addr ma.Multiaddr) {
	a.actor.BlockAddr(ctx, addr)
}

func (a actorManagerAdapter) RedeemAddr(ctx context.Context, addr ma.Multiaddr) {
	a.actor.RedeemAddr(ctx, addr)
}

// tcpDialer is the simplest possible outconn.Dialer: it resolves an
// /ip4|ip6/.../tcp/... multiaddr and performs a raw TCP dial. There is no
// handshake, so the "peer identity" it reports back is just a digest of
// the address itself — good enough to exercise the routing table, not a
// substitute for a real authenticated transport.
type tcpDialer struct {
	actor *actor.Actor[net.Conn]
	zlog  *zap.Logger
}

func (d *tcpDialer) ConnectOutgoing(ctx context.Context, addr ma.Multiaddr) {
	go d.dial(ctx, addr)
}

func (d *tcpDialer) dial(ctx context.Context, addr ma.Multiaddr) {
	hostPort, err := addrToHostPort(addr)
	if err != nil {
		d.zlog.Info("unsupported dial target", zap.String("addr", addr.String()), zap.Error(err))
		d.actor.HandleDialOutcome(ctx, outconn.Failed[net.Conn](addr, err, time.Now()))
		return
	}

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		d.zlog.Info("dial failed", zap.String("addr", addr.String()), zap.Error(err))
		d.actor.HandleDialOutcome(ctx, outconn.Failed[net.Conn](addr, err, time.Now()))
		return
	}

	peerID, err := digestPeerID(addr)
	if err != nil {
		conn.Close()
		d.actor.HandleDialOutcome(ctx, outconn.Failed[net.Conn](addr, err, time.Now()))
		return
	}

	d.zlog.Info("dial succeeded", zap.String("addr", addr.String()), zap.String("peer", peerID.String()))
	d.actor.HandleDialOutcome(ctx, outconn.Successful[net.Conn](addr, peerID, conn))
}

func addrToHostPort(addr ma.Multiaddr) (string, error) {
	host, err := addr.ValueForProtocol(ma.P_IP4)
	if err != nil {
		host, err = addr.ValueForProtocol(ma.P_IP6)
	}
	if err != nil {
		return "", err
	}
	port, err := addr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, port), nil
}

// digestPeerID stands in for a real handshake's authenticated identity: a
// SHA2-256 multihash of the dialed address, stable across reconnects to
// the same address.
func digestPeerID(addr ma.Multiaddr) (peer.ID, error) {
	sum, err := mh.Sum(addr.Bytes(), mh.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return peer.ID(sum), nil
}
