package cluster

import "net/netip"

// SendViaCluster relays a pre-formed end-peer packet to whichever member
// currently has affinity for `to`, optionally requesting a PROXY_UNITE
// hole-punch on `from`'s behalf first. It returns false whenever no other
// member has fresh affinity for `to` — never an error, per spec.md §7's
// "missing affinity: return failure to caller".
//
// Unlike replicated sub-messages, data is not queued: it is an already-
// built end-peer packet, delivered directly through PacketOutput to the
// owning member's first known physical endpoint, bypassing the per-member
// cluster queue entirely (spec.md §4.5's rationale: "the payload is already
// an end-peer packet and goes out the wire transport, not the cluster
// transport").
func (c *Cluster) SendViaCluster(from, to PeerAddress, data []byte, unite bool) bool {
	if len(data) > 16384 {
		return false
	}

	entry, ok := c.affinity.get(to)
	if !ok || entry.member == c.cfg.SelfID {
		return false
	}
	if c.now().Sub(entry.at) > c.cfg.PeerActivityTimeout {
		return false
	}
	owning := entry.member

	if unite && c.collab.Topology != nil {
		v4, v6 := c.collab.Topology.BestActiveEndpoints(from)
		var endpoints []netip.AddrPort
		if v4.IsValid() {
			endpoints = append(endpoints, v4)
		}
		if v6.IsValid() {
			endpoints = append(endpoints, v6)
		}
		if len(endpoints) > 0 {
			payload := encodeProxyUnite(to, from, endpoints)
			m := c.table.slot(owning)
			m.mu.Lock()
			c.send(owning, m, submsgProxyUnite, payload)
			m.mu.Unlock()
		}
	}

	if c.collab.Output == nil {
		return false
	}
	m := c.table.slot(owning)
	m.mu.Lock()
	endpoints := m.endpoints
	m.mu.Unlock()
	if len(endpoints) == 0 {
		return false
	}

	c.collab.Output.PutPacket(endpoints[0], data)
	return true
}
