// Package blocklist gives the administrative blocklist an optional,
// external memory: outconn's Manager keeps every address, blocked or not,
// purely in memory and forgets it the moment the process restarts. Many
// deployments want blocks to survive a restart without asking the Manager
// itself to grow a persistence layer it was deliberately designed without
// (see outconn's package doc on having no persisted state).
//
// This package is that persistence layer, built as a companion rather than
// a dependency: it sits beside a Manager (or its outconn/actor wrapper),
// mirroring every BlockAddr/RedeemAddr call into an ipfs/go-datastore
// Datastore, and can replay what it has on record back into a freshly
// constructed Manager at startup.
package blocklist

import (
	"context"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	ma "github.com/multiformats/go-multiaddr"
)

var log = logging.Logger("outconn/blocklist")

// blockedPrefix namespaces every key this package writes, so a Datastore
// shared with other subsystems doesn't collide with it.
var blockedPrefix = ds.NewKey("/outconn/blocked")

// Manager is the subset of outconn.Manager's (or outconn/actor.Actor's)
// surface that Guard needs. outconn/actor.Actor satisfies it as-is;
// outconn.Manager's BlockAddr takes no context, so a bare Manager needs a
// small adapter. It's declared here,
// rather than imported from outconn, so this package depends on neither
// the core package's concrete Manager type nor its H type parameter.
type Manager interface {
	BlockAddr(ctx context.Context, addr ma.Multiaddr)
	RedeemAddr(ctx context.Context, addr ma.Multiaddr)
}

// Store persists and restores the set of administratively blocked
// addresses in an ipfs/go-datastore Datastore.
type Store struct {
	ds ds.Datastore
}

// NewStore wraps an existing Datastore. Any implementation works —
// in-memory for tests, leveldb/badger/flatfs-backed for production.
func NewStore(d ds.Datastore) *Store {
	return &Store{ds: d}
}

func blockedKey(addr ma.Multiaddr) ds.Key {
	return blockedPrefix.ChildString(addr.String())
}

// Persist records addr as blocked.
func (s *Store) Persist(ctx context.Context, addr ma.Multiaddr) error {
	return s.ds.Put(ctx, blockedKey(addr), []byte(addr.String()))
}

// Forget removes addr's persisted block record.
func (s *Store) Forget(ctx context.Context, addr ma.Multiaddr) error {
	return s.ds.Delete(ctx, blockedKey(addr))
}

// LoadAll returns every persisted blocked address. Entries whose value
// fails to parse as a multiaddr are logged and skipped rather than failing
// the whole load — a single corrupt record shouldn't take down startup.
func (s *Store) LoadAll(ctx context.Context) ([]ma.Multiaddr, error) {
	results, err := s.ds.Query(ctx, dsq.Query{Prefix: blockedPrefix.String()})
	if err != nil {
		return nil, err
	}
	defer results.Close()

	var out []ma.Multiaddr
	for entry := range results.Next() {
		if entry.Error != nil {
			return nil, entry.Error
		}
		addr, err := ma.NewMultiaddr(string(entry.Value))
		if err != nil {
			log.Warnw("dropping unparseable persisted blocklist entry", "key", entry.Key, "err", err)
			continue
		}
		out = append(out, addr)
	}
	return out, nil
}

// Guard wraps a Manager, persisting every administrative block and
// redemption alongside applying it, and can replay a prior run's blocklist
// back into a fresh one.
type Guard struct {
	mgr   Manager
	store *Store
}

// NewGuard pairs mgr with store.
func NewGuard(mgr Manager, store *Store) *Guard {
	return &Guard{mgr: mgr, store: store}
}

// BlockAddr blocks addr on the wrapped Manager and persists the block. A
// persistence failure is logged, not returned: the in-memory block has
// already taken effect and the wrapped Manager's BlockAddr has no error
// return for Guard to propagate one through.
func (g *Guard) BlockAddr(ctx context.Context, addr ma.Multiaddr) {
	g.mgr.BlockAddr(ctx, addr)
	if err := g.store.Persist(ctx, addr); err != nil {
		log.Errorw("failed to persist block", "addr", addr, "err", err)
	}
}

// RedeemAddr redeems addr on the wrapped Manager and forgets its persisted
// block record.
func (g *Guard) RedeemAddr(ctx context.Context, addr ma.Multiaddr) {
	g.mgr.RedeemAddr(ctx, addr)
	if err := g.store.Forget(ctx, addr); err != nil {
		log.Errorw("failed to forget persisted block", "addr", addr, "err", err)
	}
}

// Replay loads every persisted blocked address and applies it to the
// wrapped Manager. Call once at startup, before the Manager begins serving
// real dial traffic, so freshly learned addresses don't race a replay of
// old blocks.
func (g *Guard) Replay(ctx context.Context) error {
	addrs, err := g.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		g.mgr.BlockAddr(ctx, addr)
	}
	log.Infow("replayed persisted blocklist", "count", len(addrs))
	return nil
}
