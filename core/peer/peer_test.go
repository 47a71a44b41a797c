package peer_test

import (
	"testing"

	. "github.com/go-connmgr/outconn/core/peer"
	"github.com/stretchr/testify/require"

	ma "github.com/multiformats/go-multiaddr"
)

var testID ID

func init() {
	var err error
	testID, err = Decode("QmS3zcG7LhYZYSJMhyRZvTddvbNUqtt8BJpaSs6mi1K5Va")
	if err != nil {
		panic(err)
	}
}

func TestIDRoundTrip(t *testing.T) {
	s := testID.String()
	id, err := Decode(s)
	require.NoError(t, err)
	require.Equal(t, testID, id)
}

func TestIDValidate(t *testing.T) {
	require.NoError(t, testID.Validate())
	require.ErrorIs(t, ID("").Validate(), ErrEmptyPeerID)
	require.Error(t, ID("not a multihash").Validate())
}

func TestAddrInfoJSON(t *testing.T) {
	addr := ma.StringCast("/ip4/127.0.0.1/tcp/4001")
	ai := AddrInfo{ID: testID, Addrs: []ma.Multiaddr{addr}}

	out, err := ai.MarshalJSON()
	require.NoError(t, err)

	var decoded AddrInfo
	require.NoError(t, decoded.UnmarshalJSON(out))
	require.Equal(t, testID, decoded.ID)
	require.Len(t, decoded.Addrs, 1)
	require.True(t, decoded.Addrs[0].Equal(addr))
}

func TestAddrInfoUnmarshalBadAddr(t *testing.T) {
	var ai AddrInfo
	err := ai.UnmarshalJSON([]byte(`{"ID":"` + testID.String() + `","Addrs":["not-a-multiaddr"]}`))
	require.Error(t, err)
}
