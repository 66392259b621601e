// Package clustertest provides in-memory collaborator fakes for exercising
// a *cluster.Cluster without a real topology database, switch, multicast
// subsystem, or transport. It mirrors the teacher's own test_helpers.go
// pattern of small, explicit test builders rather than a mocking framework.
package clustertest

import (
	"crypto/rand"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"net/netip"

	"github.com/KarpelesLab/clustercore"
)

// Topology is an in-memory cluster.Topology double. Endpoints are seeded
// directly by tests via Seed rather than discovered.
type Topology struct {
	mu      sync.Mutex
	v4      map[cluster.PeerAddress]netip.AddrPort
	v6      map[cluster.PeerAddress]netip.AddrPort
	dropped []DroppedPath
	saved   []cluster.Identity
	paths   map[cluster.PeerAddress][]PathRecord
}

// DroppedPath records one DropPathTo call.
type DroppedPath struct {
	Addr cluster.PeerAddress
	Via  netip.AddrPort
}

// PathRecord is one entry EachPeerWithPath reports.
type PathRecord struct {
	Identity cluster.Identity
	Addr     netip.AddrPort
}

func NewTopology() *Topology {
	return &Topology{
		v4:    make(map[cluster.PeerAddress]netip.AddrPort),
		v6:    make(map[cluster.PeerAddress]netip.AddrPort),
		paths: make(map[cluster.PeerAddress][]PathRecord),
	}
}

// Seed registers addr's best IPv4/IPv6 endpoints and a known direct path,
// so BestActiveEndpoints and EachPeerWithPath have something to report.
func (tp *Topology) Seed(id cluster.Identity, v4, v6 netip.AddrPort) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if v4.IsValid() {
		tp.v4[id.Address] = v4
	}
	if v6.IsValid() {
		tp.v6[id.Address] = v6
	}
	path := v4
	if !path.IsValid() {
		path = v6
	}
	if path.IsValid() {
		tp.paths[id.Address] = append(tp.paths[id.Address], PathRecord{Identity: id, Addr: path})
	}
}

func (tp *Topology) DropPathTo(addr cluster.PeerAddress, via netip.AddrPort) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.dropped = append(tp.dropped, DroppedPath{Addr: addr, Via: via})
}

func (tp *Topology) SaveIdentity(id cluster.Identity) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.saved = append(tp.saved, id)
}

func (tp *Topology) BestActiveEndpoints(addr cluster.PeerAddress) (v4, v6 netip.AddrPort) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.v4[addr], tp.v6[addr]
}

func (tp *Topology) EachPeerWithPath(fn func(id cluster.Identity, addr netip.AddrPort)) {
	tp.mu.Lock()
	records := make([]PathRecord, 0)
	for _, rs := range tp.paths {
		records = append(records, rs...)
	}
	tp.mu.Unlock()
	for _, r := range records {
		fn(r.Identity, r.Addr)
	}
}

// SavedIdentities returns every identity SaveIdentity has recorded.
func (tp *Topology) SavedIdentities() []cluster.Identity {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return append([]cluster.Identity(nil), tp.saved...)
}

// Dropped returns every DropPathTo call recorded so far.
func (tp *Topology) Dropped() []DroppedPath {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return append([]DroppedPath(nil), tp.dropped...)
}

// Switch is an in-memory cluster.Switch double.
type Switch struct {
	mu         sync.Mutex
	rendezvous []RendezvousCall
	proxied    []ProxiedCall
}

type RendezvousCall struct {
	To, With cluster.PeerAddress
	Addr     netip.AddrPort
}

type ProxiedCall struct {
	To      cluster.PeerAddress
	Verb    uint8
	Payload []byte
}

func NewSwitch() *Switch { return &Switch{} }

func (s *Switch) SendRendezvous(to, with cluster.PeerAddress, addr netip.AddrPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendezvous = append(s.rendezvous, RendezvousCall{To: to, With: with, Addr: addr})
}

func (s *Switch) SendProxied(to cluster.PeerAddress, verb uint8, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proxied = append(s.proxied, ProxiedCall{To: to, Verb: verb, Payload: append([]byte(nil), payload...)})
}

func (s *Switch) Rendezvous() []RendezvousCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RendezvousCall(nil), s.rendezvous...)
}

func (s *Switch) Proxied() []ProxiedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ProxiedCall(nil), s.proxied...)
}

// Multicast is an in-memory cluster.Multicast double.
type Multicast struct {
	mu   sync.Mutex
	subs []Subscription
}

type Subscription struct {
	NetworkID uint64
	Address   cluster.PeerAddress
	Group     cluster.MulticastGroup
}

func NewMulticast() *Multicast { return &Multicast{} }

func (m *Multicast) Subscribe(networkID uint64, address cluster.PeerAddress, group cluster.MulticastGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, Subscription{NetworkID: networkID, Address: address, Group: group})
}

func (m *Multicast) Subscriptions() []Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Subscription(nil), m.subs...)
}

// Output is an in-memory cluster.PacketOutput double.
type Output struct {
	mu    sync.Mutex
	packs []Packet
}

type Packet struct {
	Via  netip.AddrPort
	Data []byte
}

func NewOutput() *Output { return &Output{} }

func (o *Output) PutPacket(via netip.AddrPort, data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.packs = append(o.packs, Packet{Via: via, Data: append([]byte(nil), data...)})
}

func (o *Output) Packets() []Packet {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Packet(nil), o.packs...)
}

// NewSyntheticIdentity builds a cluster.Identity for test fixtures from a
// fresh random UUID, the same way the teacher mints its own peer/agent IDs
// with uuid.UUID — even though the wire protocol itself never sees a UUID,
// only the derived PeerAddress.
func NewSyntheticIdentity() cluster.Identity {
	u := uuid.New()
	return cluster.NewIdentity(u[:])
}

// NewSyntheticMemberKey returns 64 bytes of random master-secret material
// for a fixture member, independent of any real cluster's secret.
func NewSyntheticMemberKey() [64]byte {
	var buf [64]byte
	_, _ = rand.Read(buf[:])
	return buf
}

// Fixture is a CBOR-serializable bundle of test identities and their
// endpoints, exchanged between in-memory test collaborators the way the
// teacher's control channel exchanges CBOR-encoded peer records over
// spotlib.
type Fixture struct {
	Identities []FixtureIdentity `cbor:"identities"`
}

type FixtureIdentity struct {
	Address cluster.PeerAddress `cbor:"address"`
	Raw     []byte              `cbor:"raw"`
	V4      string              `cbor:"v4,omitempty"`
	V6      string              `cbor:"v6,omitempty"`
}

// MarshalFixture encodes f as CBOR.
func MarshalFixture(f Fixture) ([]byte, error) {
	return cbor.Marshal(f)
}

// UnmarshalFixture decodes a CBOR-encoded Fixture.
func UnmarshalFixture(buf []byte) (Fixture, error) {
	var f Fixture
	err := cbor.Unmarshal(buf, &f)
	return f, err
}

// ToIdentity converts a FixtureIdentity back into a cluster.Identity,
// carrying the stored address and Raw over as they are; the address is not
// recomputed from Raw.
func (fi FixtureIdentity) ToIdentity() cluster.Identity {
	return cluster.Identity{Address: fi.Address, Raw: fi.Raw}
}

// NewFixtureIdentity wraps id and its known endpoints for serialization.
func NewFixtureIdentity(id cluster.Identity, v4, v6 netip.AddrPort) FixtureIdentity {
	fi := FixtureIdentity{Address: id.Address, Raw: id.Raw}
	if v4.IsValid() {
		fi.V4 = v4.String()
	}
	if v6.IsValid() {
		fi.V6 = v6.String()
	}
	return fi
}
