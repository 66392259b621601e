package cluster

import "net/netip"

// DoPeriodicTasks runs affinity GC, the peer-announce sweep, and the
// alive+flush pass. It has no internal timer — callers drive it on a clock
// — and is not safe to call concurrently with itself (a single external
// ticker goroutine is the expected caller, matching spec.md §5's "no
// internal worker thread" model).
func (c *Cluster) DoPeriodicTasks() {
	now := c.now()

	evicted := c.affinity.gc(now, c.cfg.affinityGCInterval(), c.cfg.affinityGCInterval())
	c.metrics.affinityEvictedN(evicted)

	if c.collab.Topology != nil && now.Sub(c.lastAnnounceSweep) >= c.cfg.announceSweepCadence() {
		c.lastAnnounceSweep = now
		c.collab.Topology.EachPeerWithPath(func(id Identity, addr netip.AddrPort) {
			c.ReplicateHavePeer(id, addr)
		})
	}

	cadence := c.cfg.aliveCadence()
	c.forEachActive(func(id MemberID, m *member) {
		if now.Sub(m.lastAnnouncedAliveTo) >= cadence {
			x, y, z := int32(0), int32(0), int32(0)
			if c.collab.GeoLocate != nil {
				x, y, z = c.cfg.X, c.cfg.Y, c.cfg.Z
			}
			payload := encodeAlive(c.build, x, y, z, now, 0, c.cfg.Endpoints, c.cfg.MaxEndpointsPerMember)
			c.send(id, m, submsgAlive, payload)
			m.lastAnnouncedAliveTo = now
		}
		c.flush(id, m)
	})
}
