package cluster

import (
	"net/netip"
	"time"
)

// setAffinity unconditionally records that addr is currently owned by
// member, used both by HAVE_PEER's receive path (no rate limit) and by
// ReplicateHavePeer's claim step below.
func (c *Cluster) setAffinity(addr PeerAddress, member MemberID, at time.Time) {
	c.affinity.set(addr, member, at)
	c.emit(eventAffinityClaim, addr, member)
}

// ReplicateHavePeer announces that this member now owns end-peer identity.
// It first claims or refreshes the affinity entry: claiming another
// member's entry always proceeds; refreshing an entry this member already
// owns is rate-limited to once per AnnouncePeriod, matching spec.md §4.4's
// "if already self-owned and refreshed within the announce period, return".
func (c *Cluster) ReplicateHavePeer(identity Identity, addr netip.AddrPort) {
	now := c.now()
	if entry, ok := c.affinity.get(identity.Address); ok && entry.member == c.cfg.SelfID {
		if now.Sub(entry.at) < c.cfg.AnnouncePeriod {
			return
		}
	}
	c.setAffinity(identity.Address, c.cfg.SelfID, now)

	payload := encodeHavePeer(identity, addr)
	c.forEachActive(func(id MemberID, m *member) {
		c.send(id, m, submsgHavePeer, payload)
	})
}

// ReplicateMulticastLike fans a multicast subscription out to every active
// member, unconditionally (no rate limit at this layer).
func (c *Cluster) ReplicateMulticastLike(networkID uint64, address PeerAddress, group MulticastGroup) {
	payload := encodeMulticastLike(networkID, address, group)
	c.forEachActive(func(id MemberID, m *member) {
		c.send(id, m, submsgMulticastLike, payload)
	})
}

// ReplicateCertificateOfNetworkMembership fans a certificate of network
// membership out to every active member. The core never parses com itself;
// it only carries it, matching spec.md §4.3's "reserved: parsed/ignored".
func (c *Cluster) ReplicateCertificateOfNetworkMembership(com []byte) {
	c.forEachActive(func(id MemberID, m *member) {
		c.send(id, m, submsgCOM, com)
	})
}
