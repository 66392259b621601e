package cluster

import (
	"log/slog"
	"net/netip"
)

// verbRendezvous tags the payload PROXY_SEND carries back to a requesting
// member after a successful PROXY_UNITE match: "here is a rendezvous hint",
// handed to Switch.SendProxied exactly as any other proxied verb would be.
const verbRendezvous uint8 = 0x07

// --- PROXY_UNITE ------------------------------------------------------------
//
// Payload: <5B L><5B R><u8 k><endpoint>*k (k <= 255).

func encodeProxyUnite(l, r PeerAddress, endpoints []netip.AddrPort) []byte {
	if len(endpoints) > 255 {
		endpoints = endpoints[:255]
	}
	buf := make([]byte, 11)
	copy(buf[0:5], l[:])
	copy(buf[5:10], r[:])
	buf[10] = byte(len(endpoints))
	for _, ep := range endpoints {
		buf = append(buf, marshalEndpoint(ep)...)
	}
	return buf
}

func decodeProxyUnite(buf []byte) (l, r PeerAddress, endpoints []netip.AddrPort, err error) {
	if len(buf) < 11 {
		return l, r, nil, errTruncatedFrame
	}
	copy(l[:], buf[0:5])
	copy(r[:], buf[5:10])
	k := int(buf[10])
	rest := buf[11:]

	endpoints = make([]netip.AddrPort, 0, k)
	for i := 0; i < k; i++ {
		var ep netip.AddrPort
		ep, rest, err = unmarshalEndpoint(rest)
		if err != nil {
			return l, r, nil, err
		}
		endpoints = append(endpoints, ep)
	}
	return l, r, endpoints, nil
}

// encodeRendezvousPayload builds the PROXY_SEND body telling a peer about
// another peer's address: <5B peer><endpoint>.
func encodeRendezvousPayload(peer PeerAddress, addr netip.AddrPort) []byte {
	buf := make([]byte, 5)
	copy(buf, peer[:])
	return append(buf, marshalEndpoint(addr)...)
}

// firstIPv4AndIPv6 returns the first IPv4 and first IPv6 address among
// endpoints, per spec.md §4.3 step 3 ("pick the first IPv4 and the first
// IPv6").
func firstIPv4AndIPv6(endpoints []netip.AddrPort) (v4, v6 netip.AddrPort) {
	for _, ep := range endpoints {
		a := ep.Addr()
		if !v4.IsValid() && a.Is4() {
			v4 = ep
		}
		if !v6.IsValid() && a.Is6() && !a.Is4In6() {
			v6 = ep
		}
	}
	return v4, v6
}

func (c *Cluster) handleProxyUnite(from MemberID, payload []byte) error {
	l, r, rEndpoints, err := decodeProxyUnite(payload)
	if err != nil {
		return err
	}
	if c.collab.Topology == nil || c.collab.Switch == nil {
		return nil
	}

	lv4, lv6 := c.collab.Topology.BestActiveEndpoints(l)
	rv4, rv6 := firstIPv4AndIPv6(rEndpoints)

	var lChosen, rChosen netip.AddrPort
	switch {
	case lv6.IsValid() && rv6.IsValid():
		lChosen, rChosen = lv6, rv6
	case lv4.IsValid() && rv4.IsValid():
		lChosen, rChosen = lv4, rv4
	default:
		slog.Debug("proxy_unite: no matching address family", "event", "cluster:proxy_unite:no_match", "from", from, "l", l, "r", r)
		return nil
	}

	c.metrics.proxyUniteMatched()
	c.emit(eventProxyUnite, l, r)

	// Tell the owning member's requester about L's chosen address,
	// wrapped in a PROXY_SEND reply. This is time-sensitive, so the frame
	// carrying it is flushed immediately rather than waiting for the next
	// periodic tick.
	reply := encodeProxySend(r, verbRendezvous, encodeRendezvousPayload(l, lChosen))
	requester := c.table.slot(from)
	requester.mu.Lock()
	c.send(from, requester, submsgProxySend, reply)
	c.flush(from, requester)
	requester.mu.Unlock()

	// Tell L locally about R's chosen address via the switch.
	c.collab.Switch.SendRendezvous(l, r, rChosen)

	slog.Debug("proxy_unite matched", "event", "cluster:proxy_unite:matched", "from", from, "l", l, "r", r)
	return nil
}
