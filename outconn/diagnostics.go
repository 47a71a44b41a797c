package outconn

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// diagnosticEvent is a compact record of a single state transition, kept
// only so operators can answer "what has this address been doing lately"
// when something looks wrong. It carries no correctness weight: nothing in
// the transition engine ever reads it back.
type diagnosticEvent struct {
	at   time.Time
	kind StateKind
}

// diagnostics is a small bounded-per-key history, backed by an LRU cache
// so that the number of *distinct addresses* tracked is also bounded —
// relevant for a long-lived node that learns and forgets many addresses
// over its lifetime.
type diagnostics struct {
	cache *lru.Cache[string, []diagnosticEvent]
	depth int
}

// maxTrackedAddrs bounds how many distinct addresses' histories are kept
// at once; well beyond what any single node's address table is expected
// to hold, so it never interferes with normal operation.
const maxTrackedAddrs = 4096

func newDiagnostics(depth int) *diagnostics {
	if depth <= 0 {
		return nil
	}
	cache, err := lru.New[string, []diagnosticEvent](maxTrackedAddrs)
	if err != nil {
		// lru.New only errors for a non-positive size.
		panic(err)
	}
	return &diagnostics{cache: cache, depth: depth}
}

func (d *diagnostics) record(addrKey string, kind StateKind) {
	if d == nil {
		return
	}
	events, _ := d.cache.Get(addrKey)
	events = append(events, diagnosticEvent{at: time.Now(), kind: kind})
	if len(events) > d.depth {
		events = events[len(events)-d.depth:]
	}
	d.cache.Add(addrKey, events)
}

func (d *diagnostics) forget(addrKey string) {
	if d == nil {
		return
	}
	d.cache.Remove(addrKey)
}

// history returns the recorded state-kind history for addrKey, oldest
// first. Returns nil if diagnostics are disabled or the address hasn't
// been observed.
func (d *diagnostics) history(addrKey string) []StateKind {
	if d == nil {
		return nil
	}
	events, ok := d.cache.Get(addrKey)
	if !ok {
		return nil
	}
	out := make([]StateKind, len(events))
	for i, e := range events {
		out[i] = e.kind
	}
	return out
}
