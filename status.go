package cluster

import "net/netip"

// MemberStatus is one entry of a Status snapshot.
type MemberStatus struct {
	ID        MemberID
	Alive     bool // heartbeat age < Config.ClusterTimeout; always true for self
	X, Y, Z   int32
	Load      uint64
	Endpoints []netip.AddrPort
	Version   BuildInfo
	PeerCount int    // peers currently affine to this member, per the affinity map
	Samples   uint64 // ALIVE messages received from this member; diagnostic only
}

// StatusSnapshot is a read-only point-in-time view of the cluster, with
// self always first per spec.md §4.9.
type StatusSnapshot struct {
	SelfID  MemberID
	Members []MemberStatus
}

// Status returns a snapshot of self and every active member.
func (c *Cluster) Status() StatusSnapshot {
	now := c.now()
	peerCounts := c.affinity.countByMember()
	activeIDs := c.table.activeIDs()
	capEndpoints := func(eps []netip.AddrPort) []netip.AddrPort {
		if max := c.cfg.MaxEndpointsPerMember; max > 0 && len(eps) > max {
			eps = eps[:max]
		}
		return append([]netip.AddrPort(nil), eps...)
	}

	members := make([]MemberStatus, 0, 1+len(activeIDs))
	members = append(members, MemberStatus{
		ID:        c.cfg.SelfID,
		Alive:     true,
		X:         c.cfg.X,
		Y:         c.cfg.Y,
		Z:         c.cfg.Z,
		Endpoints: capEndpoints(c.cfg.Endpoints),
		PeerCount: peerCounts[c.cfg.SelfID],
	})

	for _, id := range activeIDs {
		m := c.table.slot(id)
		m.mu.Lock()
		members = append(members, MemberStatus{
			ID:        id,
			Alive:     m.alive(now, c.cfg.ClusterTimeout),
			X:         m.x,
			Y:         m.y,
			Z:         m.z,
			Load:      m.load,
			Endpoints: capEndpoints(m.endpoints),
			Version:   m.version,
			PeerCount: peerCounts[id],
			Samples:   m.samples,
		})
		m.mu.Unlock()
	}

	return StatusSnapshot{SelfID: c.cfg.SelfID, Members: members}
}
