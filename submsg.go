package cluster

import (
	"encoding/binary"
	"log/slog"
	"net/netip"
	"time"
)

// --- ALIVE ---------------------------------------------------------------
//
// Payload: 7 bytes reserved (version), <i32 x><i32 y><i32 z>, 8 bytes
// reserved (sender clock), <u64 load>, 8 bytes reserved (flags),
// <u8 n><endpoint>*n.

const aliveFixedLen = 7 + 12 + 8 + 8 + 8 + 1

func encodeAlive(ver BuildInfo, x, y, z int32, now time.Time, load uint64, endpoints []netip.AddrPort, maxEndpoints int) []byte {
	if len(endpoints) > maxEndpoints {
		endpoints = endpoints[:maxEndpoints]
	}
	if len(endpoints) > 255 {
		endpoints = endpoints[:255]
	}

	buf := make([]byte, aliveFixedLen)
	binary.BigEndian.PutUint16(buf[0:2], ver.Major)
	binary.BigEndian.PutUint16(buf[2:4], ver.Minor)
	binary.BigEndian.PutUint16(buf[4:6], ver.Revision)
	buf[6] = ver.Proto
	binary.BigEndian.PutUint32(buf[7:11], uint32(x))
	binary.BigEndian.PutUint32(buf[11:15], uint32(y))
	binary.BigEndian.PutUint32(buf[15:19], uint32(z))
	binary.BigEndian.PutUint64(buf[19:27], uint64(now.UnixMilli())) // reserved: sender clock, unused by decoder
	binary.BigEndian.PutUint64(buf[27:35], load)
	// buf[35:43] reserved flags, left zero
	buf[43] = byte(len(endpoints))

	for _, ep := range endpoints {
		buf = append(buf, marshalEndpoint(ep)...)
	}
	return buf
}

func decodeAlive(buf []byte) (ver BuildInfo, x, y, z int32, load uint64, endpoints []netip.AddrPort, err error) {
	if len(buf) < aliveFixedLen {
		return ver, 0, 0, 0, 0, nil, errTruncatedFrame
	}
	ver.Major = binary.BigEndian.Uint16(buf[0:2])
	ver.Minor = binary.BigEndian.Uint16(buf[2:4])
	ver.Revision = binary.BigEndian.Uint16(buf[4:6])
	ver.Proto = buf[6]
	x = int32(binary.BigEndian.Uint32(buf[7:11]))
	y = int32(binary.BigEndian.Uint32(buf[11:15]))
	z = int32(binary.BigEndian.Uint32(buf[15:19]))
	// buf[19:27] sender clock, unused
	load = binary.BigEndian.Uint64(buf[27:35])
	// buf[35:43] flags, unused
	n := int(buf[43])
	rest := buf[44:]

	endpoints = make([]netip.AddrPort, 0, n)
	for i := 0; i < n; i++ {
		var ep netip.AddrPort
		ep, rest, err = unmarshalEndpoint(rest)
		if err != nil {
			return ver, x, y, z, load, nil, err
		}
		if ep.IsValid() {
			endpoints = append(endpoints, ep)
		}
	}
	return ver, x, y, z, load, endpoints, nil
}

func (c *Cluster) handleAlive(from MemberID, payload []byte) error {
	ver, x, y, z, load, endpoints, err := decodeAlive(payload)
	if err != nil {
		return err
	}
	m := c.table.slot(from)
	m.mu.Lock()
	m.version = ver
	m.x, m.y, m.z = x, y, z
	m.load = load
	m.endpoints = endpoints
	m.lastReceivedAlive = c.now()
	m.samples++
	m.mu.Unlock()

	slog.Debug("alive received", "event", "cluster:submsg:alive", "from", from, "x", x, "y", y, "z", z)
	return nil
}

// --- HAVE_PEER ------------------------------------------------------------
//
// Payload: serialized peer identity, serialized endpoint.

func encodeHavePeer(id Identity, addr netip.AddrPort) []byte {
	buf := id.Marshal()
	buf = append(buf, marshalEndpoint(addr)...)
	return buf
}

func decodeHavePeer(buf []byte) (Identity, netip.AddrPort, error) {
	id, rest, err := UnmarshalIdentity(buf)
	if err != nil {
		return Identity{}, netip.AddrPort{}, err
	}
	addr, _, err := unmarshalEndpoint(rest)
	if err != nil {
		return Identity{}, netip.AddrPort{}, err
	}
	return id, addr, nil
}

func (c *Cluster) handleHavePeer(from MemberID, payload []byte) error {
	id, addr, err := decodeHavePeer(payload)
	if err != nil {
		return err
	}
	if c.collab.Topology != nil {
		c.collab.Topology.DropPathTo(id.Address, addr)
		c.collab.Topology.SaveIdentity(id)
	}
	c.setAffinity(id.Address, from, c.now())

	slog.Debug("have_peer received", "event", "cluster:submsg:have_peer", "from", from, "peer", id.Address)
	return nil
}

// --- MULTICAST_LIKE ---------------------------------------------------------
//
// Payload: <u64 network_id><5B address><6B MAC><u32 adi>.

const multicastLikeLen = 8 + 5 + 6 + 4

func encodeMulticastLike(nwid uint64, addr PeerAddress, group MulticastGroup) []byte {
	buf := make([]byte, multicastLikeLen)
	binary.BigEndian.PutUint64(buf[0:8], nwid)
	copy(buf[8:13], addr[:])
	copy(buf[13:19], group.MAC[:])
	binary.BigEndian.PutUint32(buf[19:23], group.ADI)
	return buf
}

func decodeMulticastLike(buf []byte) (nwid uint64, addr PeerAddress, group MulticastGroup, err error) {
	if len(buf) < multicastLikeLen {
		return 0, addr, group, errTruncatedFrame
	}
	nwid = binary.BigEndian.Uint64(buf[0:8])
	copy(addr[:], buf[8:13])
	copy(group.MAC[:], buf[13:19])
	group.ADI = binary.BigEndian.Uint32(buf[19:23])
	return nwid, addr, group, nil
}

func (c *Cluster) handleMulticastLike(from MemberID, payload []byte) error {
	nwid, addr, group, err := decodeMulticastLike(payload)
	if err != nil {
		return err
	}
	if c.collab.Multicast != nil {
		c.collab.Multicast.Subscribe(nwid, addr, group)
	}
	slog.Debug("multicast_like received", "event", "cluster:submsg:multicast_like", "from", from, "network", nwid)
	return nil
}

// --- COM --------------------------------------------------------------------
//
// Certificate of network membership. Reserved: the dispatch loop already
// skips exactly `length` bytes using the outer length prefix, so there is
// nothing for this handler to do beyond existing in the table (a type
// present with a no-op handler, rather than absent, documents that COM is
// recognized and intentionally ignored rather than unknown).

func (c *Cluster) handleCOM(from MemberID, payload []byte) error {
	slog.Debug("com received (ignored)", "event", "cluster:submsg:com", "from", from, "len", len(payload))
	return nil
}

// --- PROXY_SEND ---------------------------------------------------------------
//
// Payload: <5B R><u8 verb><u16 len><bytes>.

func encodeProxySend(to PeerAddress, verb uint8, payload []byte) []byte {
	buf := make([]byte, 5+1+2+len(payload))
	copy(buf[0:5], to[:])
	buf[5] = verb
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(payload)))
	copy(buf[8:], payload)
	return buf
}

func decodeProxySend(buf []byte) (to PeerAddress, verb uint8, payload []byte, err error) {
	if len(buf) < 8 {
		return to, 0, nil, errTruncatedFrame
	}
	copy(to[:], buf[0:5])
	verb = buf[5]
	n := int(binary.BigEndian.Uint16(buf[6:8]))
	if len(buf) < 8+n {
		return to, 0, nil, errTruncatedFrame
	}
	payload = append([]byte(nil), buf[8:8+n]...)
	return to, verb, payload, nil
}

func (c *Cluster) handleProxySend(from MemberID, raw []byte) error {
	to, verb, payload, err := decodeProxySend(raw)
	if err != nil {
		return err
	}
	if c.collab.Switch != nil {
		c.collab.Switch.SendProxied(to, verb, payload)
	}
	slog.Debug("proxy_send received", "event", "cluster:submsg:proxy_send", "from", from, "to", to)
	return nil
}
