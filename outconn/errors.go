package outconn

import "errors"

// ErrLoopbackRefused is logged (not returned to any caller — BlockAddr has
// no return value) when an administrative block is requested against an
// address that resolved to ourselves.
var ErrLoopbackRefused = errors.New("outconn: refusing to block a loopback address")

// ErrUnknownRoute is used internally when a routing-table entry points at
// an address whose state disagrees with it; surfacing it at all means
// invariant 1/2 from the data model was violated.
var ErrUnknownRoute = errors.New("outconn: routing table entry has no matching connected address")
