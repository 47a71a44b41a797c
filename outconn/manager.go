// Package outconn implements an Outgoing Connection Manager: a
// transport-agnostic state machine that maintains persistent outbound
// connections to a set of remote addresses, reconnecting with exponential
// backoff, honoring an administrative blocklist, and exposing a routing
// table keyed by authenticated peer identity.
//
// A Manager is single-threaded by contract (see the package doc on
// Manager): every exported method must be called from one logical actor.
// Package outconn/actor provides a goroutine-safe wrapper around exactly
// that contract.
package outconn

import (
	"context"
	"time"

	"github.com/go-connmgr/outconn/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// outgoingEntry is the address table's value type: the current state plus
// the sticky "never evict, only reset" flag.
type outgoingEntry[H any] struct {
	addr          ma.Multiaddr
	state         OutgoingState[H]
	unforgettable bool
}

// Manager is the Outgoing Connection Manager. It owns two maps — the
// address table and the routing table — and a single private apply
// function is the only thing ever allowed to write to either; every
// exported method funnels through it.
//
// Manager has no internal locking and starts no goroutines. It is not safe
// for concurrent use: every method must be invoked from a single logical
// actor (one thread, one task, one mailbox consumer), and no method may be
// called reentrantly from inside a Dialer callback the Manager itself
// triggered. See outconn/actor for a ready-made single-goroutine wrapper.
type Manager[H any] struct {
	cfg    config
	dialer Dialer[H]
	diag   *diagnostics

	outgoing map[string]*outgoingEntry[H]
	routes   map[peer.ID]string
}

// NewManager constructs a Manager bound to dialer. All Option validation
// errors (if any) are returned together.
func NewManager[H any](dialer Dialer[H], opts ...Option[H]) (*Manager[H], error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Manager[H]{
		cfg:      cfg,
		dialer:   dialer,
		diag:     newDiagnostics(cfg.diagnosticsHistory),
		outgoing: make(map[string]*outgoingEntry[H]),
		routes:   make(map[peer.ID]string),
	}, nil
}

// apply is the transition engine: the single choke-point every state
// change funnels through. It installs newState for addr (inserting a
// fresh, forgettable entry if addr wasn't known before), then reconciles
// the routing table by diffing connectedness of the previous and new
// state.
func (m *Manager[H]) apply(addr ma.Multiaddr, newState OutgoingState[H]) {
	key := addr.String()
	entry, existed := m.outgoing[key]

	var prevState OutgoingState[H]
	if existed {
		prevState = entry.state
		entry.state = newState
	} else {
		entry = &outgoingEntry[H]{addr: addr, state: newState}
		m.outgoing[key] = entry
	}

	wasConnected := existed && prevState.Kind().Connected()
	isConnected := newState.Kind().Connected()

	switch {
	case wasConnected && isConnected:
		// Deliberately no routing update here even if the peer ID
		// changed underneath us: first winner stays canonical until an
		// explicit Block/Redeem cycle or a non-Connected transition
		// clears the route.
		log.Debugw("already connected, no routing change", "addr", key)

	case wasConnected && !isConnected:
		delete(m.routes, prevState.PeerID())
		routesGauge.Set(float64(len(m.routes)))
		log.Debugw("route removed", "addr", key, "peer", prevState.PeerID())

	case !wasConnected && isConnected:
		m.routes[newState.PeerID()] = key
		routesGauge.Set(float64(len(m.routes)))
		log.Debugw("route added", "addr", key, "peer", newState.PeerID())
	}

	m.diag.record(key, newState.kind)
	m.updateStateGauges()
}

func (m *Manager[H]) updateStateGauges() {
	var connected, blocked float64
	for _, e := range m.outgoing {
		switch e.state.Kind() {
		case StateConnected:
			connected++
		case StateBlocked:
			blocked++
		}
	}
	connectedAddrs.Set(connected)
	blockedAddrs.Set(blocked)
}

func (m *Manager[H]) requestDial(ctx context.Context, addr ma.Multiaddr) {
	m.dialer.ConnectOutgoing(ctx, addr)
	dialRequestsTotal.Inc()
}

// LearnAddr notifies the Manager of a potentially new address. If addr was
// not known before, a dial is requested immediately and the address
// transitions to Connecting. If it was already known, this call is a
// no-op on its state (idempotent under repeated discovery).
//
// unforgettable, once set true for an address, can never be set back to
// false: it is sticky for the entry's lifetime.
func (m *Manager[H]) LearnAddr(ctx context.Context, addr ma.Multiaddr, unforgettable bool) {
	key := addr.String()
	if entry, existed := m.outgoing[key]; existed {
		log.Debugw("ignoring already known address", "addr", key, "state", entry.state)
		if unforgettable && !entry.unforgettable {
			entry.unforgettable = true
			log.Debugw("marked unforgettable", "addr", key)
		}
		return
	}

	log.Infow("connecting to newly learned address", "addr", key)
	// The dial request goes out before the state becomes Connecting.
	// Safe because dial outcomes are only ever processed through the
	// same single-threaded entry point as this call (see package doc
	// and outconn/actor).
	m.requestDial(ctx, addr)
	m.apply(addr, ConnectingState[H](0))

	if unforgettable {
		m.outgoing[key].unforgettable = true
		log.Debugw("marked unforgettable", "addr", key)
	}
}

// BlockAddr administratively forbids dialing addr. Any live Connected
// handle is dropped as a result (the transition engine clears the route;
// it is the downstream handle owner's job to notice and tear down the
// transport). Blocking a Loopback address is refused with a diagnostic;
// blocking an already-Blocked address is a no-op.
func (m *Manager[H]) BlockAddr(addr ma.Multiaddr) {
	key := addr.String()
	entry, existed := m.outgoing[key]
	if !existed {
		log.Infow("address blocked", "addr", key)
		m.apply(addr, BlockedState[H]())
		return
	}

	switch entry.state.Kind() {
	case StateBlocked:
		log.Debugw("already blocking address", "addr", key)
	case StateLoopback:
		log.Warnw(ErrLoopbackRefused.Error(), "addr", key)
	default:
		log.Infow("address blocked", "addr", key)
		m.apply(addr, BlockedState[H]())
	}
}

// RedeemAddr removes addr from the block list, immediately issuing a
// fresh dial. It is a no-op unless addr's current state is exactly
// Blocked; in particular it has no effect on an address that was never
// blocked.
func (m *Manager[H]) RedeemAddr(ctx context.Context, addr ma.Multiaddr) {
	key := addr.String()
	entry, existed := m.outgoing[key]
	if !existed || entry.state.Kind() != StateBlocked {
		log.Debugw("ignoring redemption of address that is not blocked", "addr", key)
		return
	}
	m.requestDial(ctx, addr)
	m.apply(addr, ConnectingState[H](0))
}

// GetRoute returns the send handle currently routed to peerID, if the
// routing table has an entry for it AND the matching address-table entry
// agrees it is Connected to peerID. Both are checked even though the
// invariants guarantee they agree — asserting beats trusting.
func (m *Manager[H]) GetRoute(peerID peer.ID) (H, bool) {
	var zero H
	key, ok := m.routes[peerID]
	if !ok {
		return zero, false
	}
	entry, ok := m.outgoing[key]
	if !ok || entry.state.Kind() != StateConnected || entry.state.PeerID() != peerID {
		log.Errorw(ErrUnknownRoute.Error(), "peer", peerID, "addr", key)
		return zero, false
	}
	return entry.state.Handle(), true
}

// HandleDialOutcome is the single sink for Dialer results.
func (m *Manager[H]) HandleDialOutcome(outcome DialOutcome[H]) {
	addr := outcome.Addr()
	key := addr.String()

	switch outcome.Kind() {
	case OutcomeSuccessful:
		log.Infow("established outgoing connection", "addr", key, "peer", outcome.PeerID())
		m.apply(addr, ConnectedState[H](outcome.PeerID(), outcome.Handle()))
		dialSuccessTotal.Inc()

	case OutcomeFailed:
		log.Infow("outgoing connection failed", "addr", key, "err", outcome.Err())
		entry, existed := m.outgoing[key]
		failures := uint8(1)
		if existed && entry.state.Kind() == StateConnecting {
			failures = entry.state.FailuresSoFar() + 1
		} else {
			log.Warnw("dial outcome for address not marked connecting", "addr", key)
		}
		m.apply(addr, WaitingState[H](failures, outcome.Err(), outcome.When()))
		dialFailureTotal.Inc()

	case OutcomeLoopback:
		log.Infow("found loopback address", "addr", key)
		m.apply(addr, LoopbackState[H]())
	}
}

// PerformHousekeeping scans every Waiting entry. One that has exhausted
// its retry budget is forgotten (or reset to Connecting{0} if it was
// marked unforgettable) right away, whatever its backoff; any other one
// whose backoff has elapsed gets a reconnect. now is supplied by the
// caller; the Manager has no clock of its own.
//
// The scan collects its decisions before mutating anything, so the
// transitions it performs afterward are all observable through apply one
// at a time, with no iterator invalidation.
func (m *Manager[H]) PerformHousekeeping(ctx context.Context, now time.Time) {
	type reconnect struct {
		addr          ma.Multiaddr
		failuresSoFar uint8
	}
	var toForget []string
	var toReconnect []reconnect

	for key, entry := range m.outgoing {
		if entry.state.Kind() != StateWaiting {
			continue
		}
		failures := entry.state.FailuresSoFar()
		if failures >= m.cfg.retryAttempts {
			if entry.unforgettable {
				log.Infow("resetting unforgettable address", "addr", key)
				toReconnect = append(toReconnect, reconnect{entry.addr, 0})
			} else {
				log.Infow("gave up on address", "addr", key)
				toForget = append(toForget, key)
			}
			continue
		}

		// Backoff is computed from the number of failures *prior to*
		// the one that put this entry in Waiting (n=0 for no previous
		// failure in the streak). Since HandleDialOutcome always stores
		// the total failure count (including the failure that caused
		// this transition), that's failuresSoFar-1; the Waiting
		// invariant guarantees failuresSoFar >= 1 here, so this never
		// underflows.
		//
		// Due predicate reads in the natural sense: due when now has
		// reached or passed last_failure + backoff.
		due := entry.state.LastFailure().Add(m.cfg.calcBackoff(failures - 1))
		if !now.Before(due) {
			// The counter is *retained*, not bumped again here: a dial
			// reissued by housekeeping isn't itself a failure. It only
			// grows when HandleDialOutcome sees that reissued dial fail,
			// which is what eventually lets the exhaustion check above
			// fire. Bumping it here too would count every backoff cycle
			// twice and exhaust the budget after half as many real
			// failures as intended.
			toReconnect = append(toReconnect, reconnect{entry.addr, failures})
		}
	}

	for _, key := range toForget {
		delete(m.outgoing, key)
		m.diag.forget(key)
		forgottenTotal.Inc()
	}
	for _, r := range toReconnect {
		if r.failuresSoFar == 0 {
			resetTotal.Inc()
		}
		m.requestDial(ctx, r.addr)
		m.apply(r.addr, ConnectingState[H](r.failuresSoFar))
	}
	m.updateStateGauges()
}

// History returns the recorded sequence of state kinds addr has passed
// through, most recent last, for operator troubleshooting. It is not part
// of the Manager's correctness surface (see diagnostics.go) and returns
// nil when diagnostics history is disabled (WithDiagnosticsHistory(0)).
func (m *Manager[H]) History(addr ma.Multiaddr) []StateKind {
	return m.diag.history(addr.String())
}

// Lookup returns the current state of addr, for tests and diagnostics.
func (m *Manager[H]) Lookup(addr ma.Multiaddr) (OutgoingState[H], bool, bool) {
	entry, ok := m.outgoing[addr.String()]
	if !ok {
		var zero OutgoingState[H]
		return zero, false, false
	}
	return entry.state, entry.unforgettable, true
}

// Len returns the number of addresses currently known, for tests.
func (m *Manager[H]) Len() int { return len(m.outgoing) }

// RouteCount returns the number of entries in the routing table, for
// tests and property checks.
func (m *Manager[H]) RouteCount() int { return len(m.routes) }
