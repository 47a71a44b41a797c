package outconn

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Default configuration: twelve attempts at doubling delays starting from
// half a second land the last retry about seventeen minutes after the
// first failure (500ms·(2^11−1) of cumulative backoff, dial time aside).
const (
	DefaultRetryAttempts      uint8 = 12
	DefaultBaseTimeout              = 500 * time.Millisecond
	DefaultDiagnosticsHistory       = 4
)

type config struct {
	retryAttempts      uint8
	baseTimeout        time.Duration
	diagnosticsHistory int
}

func defaultConfig() config {
	return config{
		retryAttempts:      DefaultRetryAttempts,
		baseTimeout:        DefaultBaseTimeout,
		diagnosticsHistory: DefaultDiagnosticsHistory,
	}
}

// Option configures a Manager at construction time.
type Option[H any] func(*config) error

// WithRetryAttempts sets the number of failures tolerated before a Waiting
// address is forgotten (or reset, if unforgettable). Default 12.
func WithRetryAttempts[H any](n uint8) Option[H] {
	return func(c *config) error {
		if n == 0 {
			return fmt.Errorf("outconn: retry attempts must be at least 1")
		}
		c.retryAttempts = n
		return nil
	}
}

// WithBaseTimeout sets the first-retry backoff delay, doubling on every
// subsequent failure. Default 500ms.
func WithBaseTimeout[H any](d time.Duration) Option[H] {
	return func(c *config) error {
		if d <= 0 {
			return fmt.Errorf("outconn: base timeout must be positive, got %s", d)
		}
		c.baseTimeout = d
		return nil
	}
}

// WithDiagnosticsHistory sets how many past state transitions are kept per
// address purely for operational visibility (see diagnostics.go). 0
// disables the history entirely. Default 4.
func WithDiagnosticsHistory[H any](n int) Option[H] {
	return func(c *config) error {
		if n < 0 {
			return fmt.Errorf("outconn: diagnostics history must be >= 0, got %d", n)
		}
		c.diagnosticsHistory = n
		return nil
	}
}

// buildConfig applies every option, collecting all validation errors
// (rather than stopping at the first) via multierr, the same aggregation
// role it plays throughout the rest of the dependency graph this module
// was grounded on.
func buildConfig[H any](opts []Option[H]) (config, error) {
	c := defaultConfig()
	var errs error
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return c, errs
}

// calcBackoff implements delay(n) = base_timeout * 2^n, n being the number
// of prior failures in the current streak (n=0 meaning none yet).
func (c config) calcBackoff(failuresSoFar uint8) time.Duration {
	return c.baseTimeout * time.Duration(uint64(1)<<uint64(failuresSoFar))
}
