package peer

import (
	"encoding/json"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// AddrInfo bundles a peer identity with the set of addresses it is known to
// be reachable at, with a JSON form. The connection manager has no method
// that takes an AddrInfo: its LearnAddr accepts one address per call.
type AddrInfo struct {
	ID    ID
	Addrs []ma.Multiaddr
}

// addrInfoJSON mirrors AddrInfo but stores addresses in their string form,
// since ma.Multiaddr is an interface and cannot be unmarshaled directly.
type addrInfoJSON struct {
	ID    ID
	Addrs []string
}

// MarshalJSON implements json.Marshaler.
func (pi AddrInfo) MarshalJSON() ([]byte, error) {
	addrs := make([]string, len(pi.Addrs))
	for i, addr := range pi.Addrs {
		addrs[i] = addr.String()
	}
	return json.Marshal(&addrInfoJSON{ID: pi.ID, Addrs: addrs})
}

// UnmarshalJSON implements json.Unmarshaler.
func (pi *AddrInfo) UnmarshalJSON(b []byte) error {
	var data addrInfoJSON
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}
	addrs := make([]ma.Multiaddr, len(data.Addrs))
	for i, addr := range data.Addrs {
		maddr, err := ma.NewMultiaddr(addr)
		if err != nil {
			return fmt.Errorf("decoding addr %d of peer %s: %w", i, data.ID, err)
		}
		addrs[i] = maddr
	}
	pi.ID = data.ID
	pi.Addrs = addrs
	return nil
}

// String is a compact, human-readable rendering used in log lines.
func (pi AddrInfo) String() string {
	return fmt.Sprintf("{%s: %v}", pi.ID, pi.Addrs)
}
