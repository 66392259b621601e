package cluster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// MemberID identifies one cluster member. Valid IDs are in [0, Config.MaxMembers);
// the value also doubles as the index into the member table (spec.md §3).
type MemberID uint16

// PeerAddress is the 40-bit address of an end-peer, used as the affinity
// map's key. It is a fixed-width value type so it can be used directly as a
// Go map key without hashing overhead, grounded on ZeroTier's 40-bit
// Address type referenced throughout Cluster.cpp.
type PeerAddress [5]byte

func (a PeerAddress) String() string {
	return fmt.Sprintf("%02x%02x%02x%02x%02x", a[0], a[1], a[2], a[3], a[4])
}

// MulticastGroup is a MAC + additional distinguishing information pair, the
// unit subscribed to by STATE_MESSAGE_MULTICAST_LIKE.
type MulticastGroup struct {
	MAC [6]byte
	ADI uint32
}

// BuildInfo carries the protocol/software version advertised in the
// reserved header of ALIVE sub-messages. Per SPEC_FULL.md's resolution of
// spec.md's first Open Question, these fields are decoded for diagnostics
// only and never influence routing decisions.
type BuildInfo struct {
	Major, Minor, Revision uint16
	Proto                  uint8
}

// Identity is an opaque peer identity as exchanged by HAVE_PEER. The core
// never interprets the key material itself; it only needs the derived
// PeerAddress and the ability to round-trip the raw bytes across the wire.
// Concrete identity schemes (the external "identity subsystem" collaborator
// in spec.md §1) produce these values; clustertest's fakes build them from
// random key material via cryptutil.
type Identity struct {
	Address PeerAddress
	Raw     []byte // opaque, serialized form without any private key material
}

// Marshal writes a length-prefixed Identity: <5B address><u16 len><raw>.
func (id Identity) Marshal() []byte {
	buf := make([]byte, 5+2+len(id.Raw))
	copy(buf, id.Address[:])
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(id.Raw)))
	copy(buf[7:], id.Raw)
	return buf
}

// UnmarshalIdentity reads an Identity written by Marshal, returning the
// unread remainder of buf. It follows the "bounded-length read that may
// fail" design described in SPEC_FULL.md §9/DESIGN NOTES: any truncation
// returns errTruncatedFrame so the caller can drop just this sub-message.
func UnmarshalIdentity(buf []byte) (Identity, []byte, error) {
	if len(buf) < 7 {
		return Identity{}, nil, errTruncatedFrame
	}
	var id Identity
	copy(id.Address[:], buf[:5])
	n := int(binary.BigEndian.Uint16(buf[5:7]))
	buf = buf[7:]
	if len(buf) < n {
		return Identity{}, nil, errTruncatedFrame
	}
	id.Raw = append([]byte(nil), buf[:n]...)
	return id, buf[n:], nil
}

// errTruncatedFrame is returned internally by bounded decoders when a
// sub-message or sub-field runs past the end of the available bytes. It
// never escapes the package: HandleIncomingStateMessage treats it as "skip
// this sub-message" (inner) or "drop the remainder of the frame" (outer),
// per spec.md §7.
var errTruncatedFrame = errors.New("cluster: truncated frame")

// marshalEndpoint writes a netip.AddrPort using the original's
// InetAddress::serialize layout: <u8 family><addr bytes><u16 port>, where
// family is 4 or 6 (0 means "none", used by submsg padding).
func marshalEndpoint(e netip.AddrPort) []byte {
	addr := e.Addr()
	switch {
	case addr.Is4() || addr.Is4In6():
		a4 := addr.As4()
		buf := make([]byte, 1+4+2)
		buf[0] = 4
		copy(buf[1:5], a4[:])
		binary.BigEndian.PutUint16(buf[5:7], e.Port())
		return buf
	case addr.Is6():
		a16 := addr.As16()
		buf := make([]byte, 1+16+2)
		buf[0] = 6
		copy(buf[1:17], a16[:])
		binary.BigEndian.PutUint16(buf[17:19], e.Port())
		return buf
	default:
		return []byte{0}
	}
}

func unmarshalEndpoint(buf []byte) (netip.AddrPort, []byte, error) {
	if len(buf) < 1 {
		return netip.AddrPort{}, nil, errTruncatedFrame
	}
	switch buf[0] {
	case 0:
		return netip.AddrPort{}, buf[1:], nil
	case 4:
		if len(buf) < 7 {
			return netip.AddrPort{}, nil, errTruncatedFrame
		}
		addr := netip.AddrFrom4([4]byte(buf[1:5]))
		port := binary.BigEndian.Uint16(buf[5:7])
		return netip.AddrPortFrom(addr, port), buf[7:], nil
	case 6:
		if len(buf) < 19 {
			return netip.AddrPort{}, nil, errTruncatedFrame
		}
		addr := netip.AddrFrom16([16]byte(buf[1:17]))
		port := binary.BigEndian.Uint16(buf[17:19])
		return netip.AddrPortFrom(addr, port), buf[19:], nil
	default:
		return netip.AddrPort{}, nil, errTruncatedFrame
	}
}
