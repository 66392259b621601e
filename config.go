package cluster

import (
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries construction-time tunables. Fields mirror the constants
// spec'd as "recommended defaults; implementations should allow tuning":
// max cluster members, heartbeat/announce cadences, peer-activity timeout,
// and the max wire frame length.
type Config struct {
	// SelfID is this process's member ID within the cluster.
	SelfID MemberID
	// MaxMembers bounds the member table's capacity (default 128).
	MaxMembers int
	// Endpoints are this member's own reachable physical addresses,
	// advertised in ALIVE sub-messages.
	Endpoints []netip.AddrPort
	// X, Y, Z are this member's last-known Cartesian location. All zero
	// means "unknown".
	X, Y, Z int32
	// MasterSecret is the 64-byte root key material per-member keys are
	// derived from. Callers own its lifetime; Cluster never persists it.
	MasterSecret [64]byte

	// ClusterTimeout is the heartbeat staleness threshold (default 30s).
	ClusterTimeout time.Duration
	// AnnouncePeriod is the have-peer re-announce period (default ~30s).
	AnnouncePeriod time.Duration
	// PeerActivityTimeout is the affinity staleness threshold (default 5m).
	PeerActivityTimeout time.Duration
	// MaxFrameLength bounds a single outbound frame (default 65536, the
	// wire format's maximum).
	MaxFrameLength int
	// MaxEndpointsPerMember caps how many endpoints are advertised in each
	// outgoing ALIVE and reported per member by Status. Endpoints received in
	// an ALIVE are stored as sent.
	MaxEndpointsPerMember int

	// Registerer optionally registers Cluster's Prometheus metrics. If nil,
	// metrics are still recorded, just never exposed to a scrape endpoint.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a Config with spec-recommended defaults and no
// member ID, endpoints, or master secret set — callers must still supply
// those.
func DefaultConfig() Config {
	return Config{
		MaxMembers:             128,
		ClusterTimeout:         30 * time.Second,
		AnnouncePeriod:         30 * time.Second,
		PeerActivityTimeout:    5 * time.Minute,
		MaxFrameLength:         65536,
		MaxEndpointsPerMember:  16,
	}
}

// aliveCadence is the minimum interval between ALIVE announcements to a
// given member: (ClusterTimeout/2 - 1s).
func (c Config) aliveCadence() time.Duration {
	d := c.ClusterTimeout/2 - time.Second
	if d < 0 {
		return 0
	}
	return d
}

// announceSweepCadence is the minimum interval between peer-announce
// sweeps: AnnouncePeriod/4.
func (c Config) announceSweepCadence() time.Duration {
	return c.AnnouncePeriod / 4
}

// affinityGCInterval is the minimum interval between affinity GC sweeps:
// 5x PeerActivityTimeout.
func (c Config) affinityGCInterval() time.Duration {
	return 5 * c.PeerActivityTimeout
}

// SendFunc delivers a sealed frame to the member identified by to. It is
// invoked synchronously and, during flush, while the member's lock is
// held — implementations must not block or re-enter the Cluster.
type SendFunc func(to MemberID, frame []byte)

// GeoLocateFunc resolves a physical address to an approximate location. ok
// is false when no location data is available, which FindBetterEndpoint
// treats as "try again later", never as an error.
type GeoLocateFunc func(addr netip.Addr) (x, y, z int32, ok bool)

// Topology is the external peer database collaborator. It is keyed by
// PeerAddress rather than Identity everywhere the core only ever has a bare
// 40-bit address on hand (e.g. decoded straight off a PROXY_UNITE payload);
// Identity appears only where the core genuinely possesses one.
type Topology interface {
	// DropPathTo tells the topology to stop treating via as a known path
	// to addr, because another member now claims it.
	DropPathTo(addr PeerAddress, via netip.AddrPort)
	// SaveIdentity persists a peer identity learned via HAVE_PEER.
	SaveIdentity(id Identity)
	// BestActiveEndpoints returns the topology's preferred IPv4 and IPv6
	// endpoints for addr; either may be the zero value if unknown.
	BestActiveEndpoints(addr PeerAddress) (v4, v6 netip.AddrPort)
	// EachPeerWithPath calls fn once per locally-known peer that currently
	// has a direct path, used by the peer-announce sweep.
	EachPeerWithPath(fn func(id Identity, addr netip.AddrPort))
}

// Switch is the external packet-forwarding collaborator.
type Switch interface {
	// SendRendezvous tells the local peer `to` about a path to `with` at
	// addr, used for NAT hole-punch coordination.
	SendRendezvous(to, with PeerAddress, addr netip.AddrPort)
	// SendProxied constructs and sends an outbound packet to end-peer `to`
	// on behalf of a remote member (PROXY_SEND).
	SendProxied(to PeerAddress, verb uint8, payload []byte)
}

// Multicast is the external multicast-subscription collaborator.
type Multicast interface {
	Subscribe(networkID uint64, address PeerAddress, group MulticastGroup)
}

// PacketOutput is the external end-peer transport collaborator used by
// SendViaCluster to deliver pre-formed peer packets directly, bypassing the
// per-member queue.
type PacketOutput interface {
	PutPacket(via netip.AddrPort, data []byte)
}

// Collaborators bundles every external dependency Cluster needs. Send is
// required; the rest may be nil if the corresponding operations are never
// exercised (e.g. a test that never calls ReplicateMulticastLike can leave
// Multicast nil).
type Collaborators struct {
	Send      SendFunc
	GeoLocate GeoLocateFunc
	Topology  Topology
	Switch    Switch
	Multicast Multicast
	Output    PacketOutput
}
