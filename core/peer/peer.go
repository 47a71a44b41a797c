// Package peer defines the authenticated peer identity type used as the
// routing key for established outgoing connections.
package peer

import (
	"errors"

	b58 "github.com/mr-tron/base58/base58"
	mh "github.com/multiformats/go-multihash"
)

// ID is an opaque, authenticated identifier for a remote node, produced by
// a Dialer on successful handshake. It wraps a multihash, but this package
// never interprets the digest: equality is exact byte equality, nothing
// more.
type ID string

// ErrEmptyPeerID is returned when an operation is given the zero ID.
var ErrEmptyPeerID = errors.New("empty peer ID")

// Empty reports whether id is the zero value.
func (id ID) Empty() bool {
	return id == ""
}

// Validate checks that id decodes as a well-formed multihash. It does not
// (and cannot) verify that the identity was actually authenticated; that is
// the Dialer's job.
func (id ID) Validate() error {
	if id.Empty() {
		return ErrEmptyPeerID
	}
	_, err := mh.Cast([]byte(id))
	return err
}

// String renders the ID as base58-btc over the raw multihash bytes.
func (id ID) String() string {
	return b58.Encode([]byte(id))
}

// Decode parses the base58-btc encoded form produced by String.
func Decode(s string) (ID, error) {
	b, err := b58.Decode(s)
	if err != nil {
		return "", err
	}
	if _, err := mh.Cast(b); err != nil {
		return "", err
	}
	return ID(b), nil
}

// Loggable returns a map suitable for structured logging fields, matching
// the key convention used across this module's go-log loggers.
func (id ID) Loggable() map[string]any {
	return map[string]any{"peerID": id.String()}
}
