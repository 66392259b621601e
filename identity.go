package cluster

import (
	"crypto/sha256"

	"github.com/KarpelesLab/cryptutil"
)

// NewIdentity derives a PeerAddress from raw public identity material and
// wraps both into an Identity, using cryptutil.Hash the same way the
// teacher derives its own peer IDs ("k." + base64(cryptutil.Hash(pid.Self,
// sha256.New))) in peer.go's makePeer. Only the address is used on the
// wire; raw is carried opaquely so HAVE_PEER recipients can hand it to
// their own identity subsystem unchanged.
func NewIdentity(raw []byte) Identity {
	sum := cryptutil.Hash(raw, sha256.New)
	var addr PeerAddress
	copy(addr[:], sum[:5])
	return Identity{Address: addr, Raw: raw}
}
