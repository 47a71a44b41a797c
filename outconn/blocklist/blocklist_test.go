package blocklist_test

import (
	"context"
	"testing"

	"github.com/go-connmgr/outconn/outconn/blocklist"

	ds "github.com/ipfs/go-datastore"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
)

// fakeManager records every Block/Redeem call it receives, standing in for
// an outconn.Manager or outconn/actor.Actor.
type fakeManager struct {
	blocked  map[string]bool
	redeemed []string
}

func newFakeManager() *fakeManager {
	return &fakeManager{blocked: make(map[string]bool)}
}

func (f *fakeManager) BlockAddr(ctx context.Context, addr ma.Multiaddr) {
	f.blocked[addr.String()] = true
}

func (f *fakeManager) RedeemAddr(ctx context.Context, addr ma.Multiaddr) {
	delete(f.blocked, addr.String())
	f.redeemed = append(f.redeemed, addr.String())
}

func mustAddr(t *testing.T, s string) ma.Multiaddr {
	t.Helper()
	addr, err := ma.NewMultiaddr(s)
	require.NoError(t, err)
	return addr
}

func TestGuard_BlockPersistsAndRedeemForgets(t *testing.T) {
	ctx := context.Background()
	store := blocklist.NewStore(ds.NewMapDatastore())
	mgr := newFakeManager()
	g := blocklist.NewGuard(mgr, store)

	a := mustAddr(t, "/ip4/10.0.0.1/tcp/4001")
	b := mustAddr(t, "/ip4/10.0.0.2/tcp/4001")

	g.BlockAddr(ctx, a)
	g.BlockAddr(ctx, b)
	require.True(t, mgr.blocked[a.String()])
	require.True(t, mgr.blocked[b.String()])

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	g.RedeemAddr(ctx, a)
	require.False(t, mgr.blocked[a.String()])

	loaded, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, b.String(), loaded[0].String())
}

func TestGuard_ReplayAppliesPersistedBlocks(t *testing.T) {
	ctx := context.Background()
	backing := ds.NewMapDatastore()
	store := blocklist.NewStore(backing)

	a := mustAddr(t, "/ip4/10.0.0.1/tcp/4001")
	require.NoError(t, store.Persist(ctx, a))

	// Simulate a restart: a fresh Manager, a Guard wrapping the same
	// backing store, nothing yet applied.
	mgr := newFakeManager()
	g := blocklist.NewGuard(mgr, store)
	require.False(t, mgr.blocked[a.String()])

	require.NoError(t, g.Replay(ctx))
	require.True(t, mgr.blocked[a.String()])
}

func TestStore_LoadAllSkipsUnparseableEntries(t *testing.T) {
	ctx := context.Background()
	backing := ds.NewMapDatastore()
	store := blocklist.NewStore(backing)

	a := mustAddr(t, "/ip4/10.0.0.1/tcp/4001")
	require.NoError(t, store.Persist(ctx, a))
	require.NoError(t, backing.Put(ctx, ds.NewKey("/outconn/blocked/garbage"), []byte("not a multiaddr")))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, a.String(), loaded[0].String())
}
