package cluster

import (
	"net/netip"

	"github.com/KarpelesLab/clustercore/geo"
)

// offloadBaseline forces any qualifying remote member to beat self in
// offload mode, per spec.md §4.6 step 3.
const offloadBaseline = 2147483648.0

// FindBetterEndpoint decides whether a connecting end-peer at peerPhysical
// should be redirected to a geographically closer cluster member. peer
// identifies the end-peer for parity with the original's
// find_better_endpoint(peer, peer_physical, offload) signature; the
// algorithm itself only ever compares physical locations, so peer is unused.
// It returns false whenever geolocation has no data yet (never an error —
// the caller is expected to retry later) or no qualifying member beats the
// baseline distance.
func (c *Cluster) FindBetterEndpoint(peer PeerAddress, peerPhysical netip.Addr, offload bool) (netip.AddrPort, bool) {
	if c.collab.GeoLocate == nil {
		return netip.AddrPort{}, false
	}
	px, py, pz, ok := c.collab.GeoLocate(peerPhysical)
	if !ok {
		return netip.AddrPort{}, false
	}
	peerLoc := geo.Location{X: float64(px), Y: float64(py), Z: float64(pz)}

	best := geo.Dist3D(geo.Location{X: float64(c.cfg.X), Y: float64(c.cfg.Y), Z: float64(c.cfg.Z)}, peerLoc)
	if offload {
		best = offloadBaseline
	}

	var bestEndpoints []netip.AddrPort
	found := false

	for _, id := range c.table.activeIDs() {
		m := c.table.slot(id)
		m.mu.Lock()
		alive := m.alive(c.now(), c.cfg.ClusterTimeout)
		locKnown := m.locationKnown()
		eps := m.endpoints
		mx, my, mz := m.x, m.y, m.z
		m.mu.Unlock()

		if !alive || !locKnown || len(eps) == 0 {
			continue
		}
		d := geo.Dist3D(geo.Location{X: float64(mx), Y: float64(my), Z: float64(mz)}, peerLoc)
		if d < best {
			best = d
			bestEndpoints = eps
			found = true
		}
	}

	if !found {
		return netip.AddrPort{}, false
	}

	want4 := peerPhysical.Is4() || peerPhysical.Is4In6()
	for _, ep := range bestEndpoints {
		a := ep.Addr()
		if want4 && (a.Is4() || a.Is4In6()) {
			return ep, true
		}
		if !want4 && a.Is6() && !a.Is4In6() {
			return ep, true
		}
	}
	return netip.AddrPort{}, false
}
