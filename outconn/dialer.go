package outconn

import (
	"context"
	"time"

	"github.com/go-connmgr/outconn/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// Dialer is the external capability the Manager consumes to actually
// attempt connections. The Manager never opens a socket, performs a
// handshake or authenticates a peer itself; that is entirely this
// collaborator's job.
//
// For every call to ConnectOutgoing there must eventually be exactly one
// corresponding call to the owning Manager's HandleDialOutcome for that
// address. ConnectOutgoing itself must not block: it may hand the address
// off to a worker goroutine, a queue, or whatever async mechanism the
// transport needs, but it must return immediately.
type Dialer[H any] interface {
	// ConnectOutgoing starts a single dial attempt toward addr.
	ConnectOutgoing(ctx context.Context, addr ma.Multiaddr)
}

// OutcomeKind tags the three things a dial can resolve to.
type OutcomeKind uint8

const (
	// OutcomeSuccessful: the dial produced an authenticated connection.
	OutcomeSuccessful OutcomeKind = iota
	// OutcomeFailed: the dial attempt failed.
	OutcomeFailed
	// OutcomeLoopback: the address resolved to the local node.
	OutcomeLoopback
)

// DialOutcome is the result of one dial attempt, reported back to the
// Manager through HandleDialOutcome. Build one with Successful, Failed or
// Loopback.
type DialOutcome[H any] struct {
	kind OutcomeKind
	addr ma.Multiaddr

	peerID peer.ID // set for OutcomeSuccessful
	handle H       // set for OutcomeSuccessful

	err  error     // set for OutcomeFailed
	when time.Time // set for OutcomeFailed
}

// Kind reports which variant this outcome represents.
func (o DialOutcome[H]) Kind() OutcomeKind { return o.kind }

// Addr is the address that was dialed, valid for every kind.
func (o DialOutcome[H]) Addr() ma.Multiaddr { return o.addr }

// PeerID is the authenticated identity for OutcomeSuccessful.
func (o DialOutcome[H]) PeerID() peer.ID { return o.peerID }

// Handle is the send handle for OutcomeSuccessful.
func (o DialOutcome[H]) Handle() H { return o.handle }

// Err is the dial error for OutcomeFailed.
func (o DialOutcome[H]) Err() error { return o.err }

// When is the moment of failure for OutcomeFailed.
func (o DialOutcome[H]) When() time.Time { return o.when }

// Successful builds an OutcomeSuccessful DialOutcome.
func Successful[H any](addr ma.Multiaddr, peerID peer.ID, handle H) DialOutcome[H] {
	return DialOutcome[H]{kind: OutcomeSuccessful, addr: addr, peerID: peerID, handle: handle}
}

// Failed builds an OutcomeFailed DialOutcome.
func Failed[H any](addr ma.Multiaddr, err error, when time.Time) DialOutcome[H] {
	return DialOutcome[H]{kind: OutcomeFailed, addr: addr, err: err, when: when}
}

// Loopback builds an OutcomeLoopback DialOutcome.
func Loopback[H any](addr ma.Multiaddr) DialOutcome[H] {
	return DialOutcome[H]{kind: OutcomeLoopback, addr: addr}
}
