// Package actor wraps an outconn.Manager in a single goroutine, turning its
// single-threaded-by-contract API into one that is safe to call from any
// number of goroutines.
//
// The pattern is the same one p2p/host/pstoremanager uses for its own
// background loop (Start spawns one goroutine, Close cancels it and waits
// for it to exit) combined with the request/response channel idiom
// p2p/net/swarm/dial_sync.go uses to hand work to a dedicated worker and
// wait for its result. Here every public method builds a closure over the
// call it wants to make against the Manager and hands it to a mailbox
// channel; the single background goroutine is the only thing that ever
// touches the Manager, so none of outconn's single-threaded-by-contract
// requirements are ever violated.
package actor

import (
	"context"
	"sync"
	"time"

	"github.com/go-connmgr/outconn/core/peer"
	"github.com/go-connmgr/outconn/outconn"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
	ma "github.com/multiformats/go-multiaddr"
)

var log = logging.Logger("outconn/actor")

// job is a unit of mailbox work: a closure over a single Manager call, plus
// whatever it needs from the background loop (a context for the call and
// the current time, for the one caller — Housekeep — that cares; the
// background ticker calls PerformHousekeeping directly, not through a job).
type job func(ctx context.Context, now time.Time)

// Actor owns a *outconn.Manager[H] and is safe for concurrent use by any
// number of goroutines, unlike the Manager itself.
type Actor[H any] struct {
	mgr   *outconn.Manager[H]
	clock clock.Clock

	housekeepingInterval time.Duration

	mailbox chan job

	cancel   context.CancelFunc
	refCount sync.WaitGroup
}

// Option configures an Actor at construction time.
type Option[H any] func(*Actor[H])

// WithClock overrides the Actor's time source. Intended for tests; defaults
// to the real clock.
func WithClock[H any](c clock.Clock) Option[H] {
	return func(a *Actor[H]) { a.clock = c }
}

// WithHousekeepingInterval sets how often the Actor invokes
// Manager.PerformHousekeeping on its own. Default 30s.
func WithHousekeepingInterval[H any](d time.Duration) Option[H] {
	return func(a *Actor[H]) { a.housekeepingInterval = d }
}

// WithMailboxSize sets the mailbox channel's buffer. Default 64; callers
// issuing many concurrent requests against a slow Manager may want more
// headroom before enqueue starts applying backpressure.
func WithMailboxSize[H any](n int) Option[H] {
	return func(a *Actor[H]) { a.mailbox = make(chan job, n) }
}

// New wraps mgr in an Actor. The Actor does not take ownership of mgr's
// lifecycle beyond its own Start/Close: mgr must not be touched by any
// other caller once Start has been called.
func New[H any](mgr *outconn.Manager[H], opts ...Option[H]) *Actor[H] {
	a := &Actor[H]{
		mgr:                  mgr,
		clock:                clock.New(),
		housekeepingInterval: 30 * time.Second,
		mailbox:              make(chan job, 64),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the background goroutine. Calling Start twice without an
// intervening Close leaks the first goroutine; callers own that contract,
// same as pstoremanager.PeerstoreManager.
func (a *Actor[H]) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.refCount.Add(1)
	go a.background(ctx)
}

func (a *Actor[H]) background(ctx context.Context) {
	defer a.refCount.Done()

	ticker := a.clock.Ticker(a.housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case j := <-a.mailbox:
			j(ctx, a.clock.Now())
		case <-ticker.C:
			a.mgr.PerformHousekeeping(ctx, a.clock.Now())
		case <-ctx.Done():
			log.Debugw("actor shutting down")
			return
		}
	}
}

// Close stops the background goroutine and waits for it to exit. Any jobs
// still sitting in the mailbox are abandoned; callers blocked in a
// request/response call will see their ctx canceled by the caller's own
// deadline, not by Close.
func (a *Actor[H]) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.refCount.Wait()
	return nil
}

// enqueue hands fn to the background goroutine, giving up if ctx is done
// first (e.g. the mailbox is full and nobody is draining it).
func (a *Actor[H]) enqueue(ctx context.Context, fn job) {
	select {
	case a.mailbox <- fn:
	case <-ctx.Done():
	}
}

// LearnAddr is outconn.Manager.LearnAddr, safe to call concurrently.
func (a *Actor[H]) LearnAddr(ctx context.Context, addr ma.Multiaddr, unforgettable bool) {
	a.enqueue(ctx, func(innerCtx context.Context, _ time.Time) {
		a.mgr.LearnAddr(innerCtx, addr, unforgettable)
	})
}

// BlockAddr is outconn.Manager.BlockAddr, safe to call concurrently.
func (a *Actor[H]) BlockAddr(ctx context.Context, addr ma.Multiaddr) {
	a.enqueue(ctx, func(context.Context, time.Time) {
		a.mgr.BlockAddr(addr)
	})
}

// RedeemAddr is outconn.Manager.RedeemAddr, safe to call concurrently.
func (a *Actor[H]) RedeemAddr(ctx context.Context, addr ma.Multiaddr) {
	a.enqueue(ctx, func(innerCtx context.Context, _ time.Time) {
		a.mgr.RedeemAddr(innerCtx, addr)
	})
}

// HandleDialOutcome is outconn.Manager.HandleDialOutcome, safe to call
// concurrently. It is the method a Dialer's worker goroutines are expected
// to call once a dial resolves.
func (a *Actor[H]) HandleDialOutcome(ctx context.Context, outcome outconn.DialOutcome[H]) {
	a.enqueue(ctx, func(context.Context, time.Time) {
		a.mgr.HandleDialOutcome(outcome)
	})
}

// GetRoute is outconn.Manager.GetRoute, safe to call concurrently. Unlike
// the fire-and-forget methods above, the caller needs a result back, so
// this one waits on a one-shot response channel — the same shape
// dial_sync.go's activeDial.dial uses to wait on its dial worker.
func (a *Actor[H]) GetRoute(ctx context.Context, peerID peer.ID) (H, bool) {
	type result struct {
		handle H
		ok     bool
	}
	resch := make(chan result, 1)

	a.enqueue(ctx, func(context.Context, time.Time) {
		h, ok := a.mgr.GetRoute(peerID)
		resch <- result{h, ok}
	})

	select {
	case r := <-resch:
		return r.handle, r.ok
	case <-ctx.Done():
		var zero H
		return zero, false
	}
}

// Housekeep forces an immediate housekeeping pass, outside the Actor's own
// ticker cadence. Mainly useful for tests that don't want to wait out a
// real interval.
func (a *Actor[H]) Housekeep(ctx context.Context) {
	done := make(chan struct{})
	a.enqueue(ctx, func(innerCtx context.Context, now time.Time) {
		a.mgr.PerformHousekeeping(innerCtx, now)
		close(done)
	})
	select {
	case <-done:
	case <-ctx.Done():
	}
}
