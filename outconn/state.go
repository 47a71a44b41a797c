package outconn

import (
	"fmt"
	"time"

	"github.com/go-connmgr/outconn/core/peer"
)

// StateKind tags the mutually exclusive variants an address can be in.
// Only the fields relevant to a given kind are populated on the
// OutgoingState that carries it; everything else goes through the
// kind-specific constructors below so an OutgoingState can never be built
// with a field combination that doesn't correspond to one of these kinds.
type StateKind uint8

const (
	// StateConnecting: a dial is in flight.
	StateConnecting StateKind = iota
	// StateWaiting: the last dial failed; not currently dialing.
	StateWaiting
	// StateConnected: a dial succeeded and the connection is live.
	StateConnected
	// StateBlocked: administratively forbidden, no dials will be issued.
	StateBlocked
	// StateLoopback: the address resolved to ourselves.
	StateLoopback
)

func (k StateKind) String() string {
	switch k {
	case StateConnecting:
		return "connecting"
	case StateWaiting:
		return "waiting"
	case StateConnected:
		return "connected"
	case StateBlocked:
		return "blocked"
	case StateLoopback:
		return "loopback"
	default:
		return fmt.Sprintf("StateKind(%d)", uint8(k))
	}
}

// Connected reports whether the kind is StateConnected. The transition
// engine diffs connectedness of the previous and new state on every apply,
// so this predicate is the one piece of the sum type callers outside this
// package are expected to rely on.
func (k StateKind) Connected() bool { return k == StateConnected }

// OutgoingState is the per-address state of the outgoing connection
// manager. Construct one with ConnectingState, WaitingState,
// ConnectedState, BlockedState or LoopbackState; Kind reports which fields
// are meaningful.
type OutgoingState[H any] struct {
	kind StateKind

	failuresSoFar uint8 // valid for StateConnecting, StateWaiting

	lastFailure time.Time // valid for StateWaiting
	err         error     // valid for StateWaiting

	peerID peer.ID // valid for StateConnected
	handle H       // valid for StateConnected
}

// Kind reports which variant this state represents.
func (s OutgoingState[H]) Kind() StateKind { return s.kind }

// FailuresSoFar returns the retry counter for StateConnecting/StateWaiting.
// For any other kind it returns 0.
func (s OutgoingState[H]) FailuresSoFar() uint8 {
	switch s.kind {
	case StateConnecting, StateWaiting:
		return s.failuresSoFar
	default:
		return 0
	}
}

// LastFailure returns the moment of the last dial failure for
// StateWaiting. It is the zero time for any other kind.
func (s OutgoingState[H]) LastFailure() time.Time {
	if s.kind != StateWaiting {
		return time.Time{}
	}
	return s.lastFailure
}

// Err returns the most recent dial error for StateWaiting, nil otherwise.
func (s OutgoingState[H]) Err() error {
	if s.kind != StateWaiting {
		return nil
	}
	return s.err
}

// PeerID returns the authenticated remote identity for StateConnected, the
// empty ID otherwise.
func (s OutgoingState[H]) PeerID() peer.ID {
	if s.kind != StateConnected {
		return ""
	}
	return s.peerID
}

// Handle returns the send handle for StateConnected. The zero value of H
// is returned for any other kind; callers must check Kind first.
func (s OutgoingState[H]) Handle() H {
	return s.handle
}

func (s OutgoingState[H]) String() string {
	switch s.kind {
	case StateWaiting:
		return fmt.Sprintf("Waiting{failures=%d, err=%v}", s.failuresSoFar, s.err)
	case StateConnecting:
		return fmt.Sprintf("Connecting{failures=%d}", s.failuresSoFar)
	case StateConnected:
		return fmt.Sprintf("Connected{peer=%s}", s.peerID)
	default:
		return s.kind.String()
	}
}

// ConnectingState builds a StateConnecting value.
func ConnectingState[H any](failuresSoFar uint8) OutgoingState[H] {
	return OutgoingState[H]{kind: StateConnecting, failuresSoFar: failuresSoFar}
}

// WaitingState builds a StateWaiting value.
func WaitingState[H any](failuresSoFar uint8, err error, lastFailure time.Time) OutgoingState[H] {
	return OutgoingState[H]{
		kind:          StateWaiting,
		failuresSoFar: failuresSoFar,
		err:           err,
		lastFailure:   lastFailure,
	}
}

// ConnectedState builds a StateConnected value.
func ConnectedState[H any](peerID peer.ID, handle H) OutgoingState[H] {
	return OutgoingState[H]{kind: StateConnected, peerID: peerID, handle: handle}
}

// BlockedState builds a StateBlocked value.
func BlockedState[H any]() OutgoingState[H] {
	return OutgoingState[H]{kind: StateBlocked}
}

// LoopbackState builds a StateLoopback value.
func LoopbackState[H any]() OutgoingState[H] {
	return OutgoingState[H]{kind: StateLoopback}
}
