package cluster

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/KarpelesLab/clustercore/wire"
)

// fakeTopology and fakeSwitch are minimal collaborator doubles, local to
// this package's tests to avoid an import cycle with clustertest (which
// itself depends on this package).

type fakeTopology struct {
	mu          sync.Mutex
	dropped     []PeerAddress
	saved       []Identity
	bestV4      map[PeerAddress]netip.AddrPort
	bestV6      map[PeerAddress]netip.AddrPort
}

func newFakeTopology() *fakeTopology {
	return &fakeTopology{
		bestV4: make(map[PeerAddress]netip.AddrPort),
		bestV6: make(map[PeerAddress]netip.AddrPort),
	}
}

func (f *fakeTopology) DropPathTo(addr PeerAddress, via netip.AddrPort) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, addr)
}

func (f *fakeTopology) SaveIdentity(id Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, id)
}

func (f *fakeTopology) BestActiveEndpoints(addr PeerAddress) (v4, v6 netip.AddrPort) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bestV4[addr], f.bestV6[addr]
}

func (f *fakeTopology) EachPeerWithPath(fn func(id Identity, addr netip.AddrPort)) {}

type fakeSwitch struct {
	mu          sync.Mutex
	rendezvous  []rendezvousCall
	proxied     []proxiedCall
}

type rendezvousCall struct {
	to, with PeerAddress
	addr     netip.AddrPort
}

type proxiedCall struct {
	to   PeerAddress
	verb uint8
	data []byte
}

func (f *fakeSwitch) SendRendezvous(to, with PeerAddress, addr netip.AddrPort) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rendezvous = append(f.rendezvous, rendezvousCall{to, with, addr})
}

func (f *fakeSwitch) SendProxied(to PeerAddress, verb uint8, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proxied = append(f.proxied, proxiedCall{to, verb, payload})
}

type fakeOutput struct {
	mu    sync.Mutex
	calls []outputCall
}

type outputCall struct {
	via  netip.AddrPort
	data []byte
}

func (f *fakeOutput) PutPacket(via netip.AddrPort, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, outputCall{via, append([]byte(nil), data...)})
}

// sentFrames is a send-callback double that records every frame, keyed by
// destination member.
type sentFrames struct {
	mu     sync.Mutex
	frames map[MemberID][][]byte
}

func newSentFrames() *sentFrames {
	return &sentFrames{frames: make(map[MemberID][][]byte)}
}

func (s *sentFrames) Send(to MemberID, frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[to] = append(s.frames[to], append([]byte(nil), frame...))
}

func (s *sentFrames) last(to MemberID) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.frames[to]
	if len(fs) == 0 {
		return nil
	}
	return fs[len(fs)-1]
}

// buildClusterAt builds a Cluster with self=1, a fixed clock at unixMilli,
// and the given collaborators. It also derives member keys identically to
// the Cluster under test, so helper tests can forge inbound frames.
func buildClusterAt(t *testing.T, unixMilli int64, collab Collaborators) (*Cluster, [64]byte) {
	t.Helper()
	secret := GenerateMasterSecret()
	cfg := DefaultConfig()
	cfg.SelfID = 1
	cfg.MasterSecret = secret
	if collab.Send == nil {
		collab.Send = newSentFrames().Send
	}
	c, err := NewCluster(cfg, collab, withFixedClock(newFixedClock(unixMilli)))
	if err != nil {
		t.Fatalf("NewCluster: %v", err)
	}
	return c, secret
}

// forgeFrame builds a well-formed inbound frame as member `from` would send
// it to self=1: plaintext <from><to><submsg>, sealed under to's derived key
// from secret — every sender encrypts under its destination's key, never its
// own, so this must match c.selfKey on the receiving end.
func forgeFrame(secret [64]byte, from, to MemberID, typ byte, payload []byte) []byte {
	key := deriveMemberKey(secret, to)
	plaintext := make([]byte, 4)
	plaintext[0] = byte(from >> 8)
	plaintext[1] = byte(from)
	plaintext[2] = byte(to >> 8)
	plaintext[3] = byte(to)

	var hdr [3]byte
	hdr[0] = byte((1 + len(payload)) >> 8)
	hdr[1] = byte(1 + len(payload))
	hdr[2] = typ
	plaintext = append(plaintext, hdr[:]...)
	plaintext = append(plaintext, payload...)

	frame, err := wire.Seal(key, plaintext)
	if err != nil {
		panic(err)
	}
	return frame
}

// Scenario 1: frame rejection on MAC.
func TestScenarioFrameRejectionOnMAC(t *testing.T) {
	out := newSentFrames()
	c, secret := buildClusterAt(t, 1_000_000, Collaborators{Send: out.Send})
	if err := c.AddMember(2); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	payload := encodeAlive(BuildInfo{}, 10, 20, 30, c.now(), 0x1122334455667788, nil, 16)
	frame := forgeFrame(secret, 2, 1, submsgAlive, payload)

	if len(frame) < 25 {
		t.Fatalf("frame unexpectedly short: len=%d", len(frame))
	}
	frame[len(frame)-1] ^= 0xff

	c.HandleIncomingStateMessage(2, frame)

	m := c.table.slot(2)
	m.mu.Lock()
	last := m.lastReceivedAlive
	m.mu.Unlock()
	if !last.IsZero() {
		t.Fatalf("tampered frame updated member state: lastReceivedAlive=%v", last)
	}
}

// Scenario 2: ALIVE updates member state.
func TestScenarioAliveUpdatesMemberState(t *testing.T) {
	out := newSentFrames()
	c, secret := buildClusterAt(t, 1_000_000, Collaborators{Send: out.Send})
	if err := c.AddMember(2); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	ep := netip.MustParseAddrPort("1.2.3.4:9993")
	payload := encodeAlive(BuildInfo{}, 10, 20, 30, c.now(), 0x1122334455667788, []netip.AddrPort{ep}, 16)
	frame := forgeFrame(secret, 2, 1, submsgAlive, payload)

	c.HandleIncomingStateMessage(2, frame)

	m := c.table.slot(2)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.x != 10 || m.y != 20 || m.z != 30 {
		t.Fatalf("location = (%d,%d,%d), want (10,20,30)", m.x, m.y, m.z)
	}
	if m.load != 0x1122334455667788 {
		t.Fatalf("load = %#x, want 0x1122334455667788", m.load)
	}
	if len(m.endpoints) != 1 || m.endpoints[0] != ep {
		t.Fatalf("endpoints = %v, want [%v]", m.endpoints, ep)
	}
	if m.lastReceivedAlive.UnixMilli() != 1_000_000 {
		t.Fatalf("lastReceivedAlive = %v, want 1_000_000ms", m.lastReceivedAlive)
	}
}

// Scenario 3: HAVE_PEER sets affinity, and a subsequent SendViaCluster
// succeeds and delivers to member 2's first endpoint.
func TestScenarioHavePeerSetsAffinity(t *testing.T) {
	out := newSentFrames()
	output := &fakeOutput{}
	topo := newFakeTopology()
	c, secret := buildClusterAt(t, 1_000_000, Collaborators{Send: out.Send, Topology: topo, Output: output})
	if err := c.AddMember(2); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	ep := netip.MustParseAddrPort("203.0.113.9:4000")
	alivePayload := encodeAlive(BuildInfo{}, 1, 1, 1, c.now(), 0, []netip.AddrPort{ep}, 16)
	c.HandleIncomingStateMessage(2, forgeFrame(secret, 2, 1, submsgAlive, alivePayload))

	p := NewIdentity([]byte("peer-P"))
	peerAddr := netip.MustParseAddrPort("5.6.7.8:1234")
	havePeerPayload := encodeHavePeer(p, peerAddr)
	c.HandleIncomingStateMessage(2, forgeFrame(secret, 2, 1, submsgHavePeer, havePeerPayload))

	entry, ok := c.affinity.get(p.Address)
	if !ok {
		t.Fatalf("affinity entry for P not set")
	}
	if entry.member != 2 {
		t.Fatalf("affinity.member = %d, want 2", entry.member)
	}
	if entry.at.UnixMilli() != 1_000_000 {
		t.Fatalf("affinity.at = %v, want 1_000_000ms", entry.at)
	}

	data := []byte("end-peer packet")
	ok = c.SendViaCluster(PeerAddress{}, p.Address, data, false)
	if !ok {
		t.Fatalf("SendViaCluster = false, want true")
	}
	if len(output.calls) != 1 {
		t.Fatalf("PacketOutput calls = %d, want 1", len(output.calls))
	}
	if output.calls[0].via != ep {
		t.Fatalf("delivered via %v, want member 2's endpoint %v", output.calls[0].via, ep)
	}
}

// Scenario 4: affinity TTL expiry.
func TestScenarioAffinityTTLExpiry(t *testing.T) {
	out := newSentFrames()
	c, _ := buildClusterAt(t, 1_000_000, Collaborators{Send: out.Send})
	if err := c.AddMember(2); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	var p PeerAddress
	copy(p[:], []byte{9, 9, 9, 9, 9})
	c.affinity.set(p, 2, time.UnixMilli(500_000))

	if ok := c.SendViaCluster(PeerAddress{}, p, []byte("x"), false); ok {
		t.Fatalf("SendViaCluster = true, want false for stale affinity")
	}
}

// Scenario 5: PROXY_UNITE prefers IPv6 when both sides have it.
func TestScenarioProxyUniteIPv6Preference(t *testing.T) {
	out := newSentFrames()
	sw := &fakeSwitch{}
	topo := newFakeTopology()

	var l, r PeerAddress
	copy(l[:], []byte{1, 1, 1, 1, 1})
	copy(r[:], []byte{2, 2, 2, 2, 2})

	lv4 := netip.MustParseAddrPort("10.0.0.1:1")
	lv6 := netip.MustParseAddrPort("[fd::1]:1")
	topo.bestV4[l] = lv4
	topo.bestV6[l] = lv6

	c, secret := buildClusterAt(t, 1_000_000, Collaborators{Send: out.Send, Topology: topo, Switch: sw})
	if err := c.AddMember(2); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	rv6 := netip.MustParseAddrPort("[fd::2]:2")
	rv4 := netip.MustParseAddrPort("9.9.9.9:9")
	payload := encodeProxyUnite(l, r, []netip.AddrPort{rv6, rv4})
	c.HandleIncomingStateMessage(2, forgeFrame(secret, 2, 1, submsgProxyUnite, payload))

	if len(sw.rendezvous) != 1 {
		t.Fatalf("SendRendezvous calls = %d, want 1", len(sw.rendezvous))
	}
	if sw.rendezvous[0].to != l || sw.rendezvous[0].with != r || sw.rendezvous[0].addr != rv6 {
		t.Fatalf("SendRendezvous = %+v, want to=%v with=%v addr=%v", sw.rendezvous[0], l, r, rv6)
	}

	frame := out.last(2)
	if frame == nil {
		t.Fatalf("no frame sent back to requesting member 2")
	}
	key := deriveMemberKey(secret, 2)
	plaintext, err := wire.Open(key, frame)
	if err != nil {
		t.Fatalf("wire.Open reply frame: %v", err)
	}
	if len(plaintext) < 7 {
		t.Fatalf("reply plaintext too short: %d", len(plaintext))
	}
	typ := plaintext[6]
	if typ != submsgProxySend {
		t.Fatalf("reply sub-message type = %d, want PROXY_SEND(%d)", typ, submsgProxySend)
	}
	to, verb, rendezvousPayload, err := decodeProxySend(plaintext[7:])
	if err != nil {
		t.Fatalf("decodeProxySend: %v", err)
	}
	if to != r || verb != verbRendezvous {
		t.Fatalf("PROXY_SEND to=%v verb=%v, want to=%v verb=%v", to, verb, r, verbRendezvous)
	}
	if len(rendezvousPayload) < 5 {
		t.Fatalf("rendezvous payload too short")
	}
	var gotPeer PeerAddress
	copy(gotPeer[:], rendezvousPayload[0:5])
	if gotPeer != l {
		t.Fatalf("rendezvous payload peer = %v, want %v", gotPeer, l)
	}
	gotAddr, _, err := unmarshalEndpoint(rendezvousPayload[5:])
	if err != nil {
		t.Fatalf("unmarshalEndpoint: %v", err)
	}
	if gotAddr != lv6 {
		t.Fatalf("rendezvous payload addr = %v, want %v", gotAddr, lv6)
	}
}

// Scenario 6: geographic redirect, with the unknown-location edge case.
func TestScenarioGeographicRedirect(t *testing.T) {
	out := newSentFrames()
	c, secret := buildClusterAt(t, 1_000_000, Collaborators{
		Send: out.Send,
		GeoLocate: func(addr netip.Addr) (x, y, z int32, ok bool) {
			return 99, 0, 0, true
		},
	})
	if err := c.AddMember(7); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	ep := netip.MustParseAddrPort("198.51.100.7:9000")
	payload := encodeAlive(BuildInfo{}, 100, 0, 0, c.now(), 0, []netip.AddrPort{ep}, 16)
	c.HandleIncomingStateMessage(7, forgeFrame(secret, 7, 1, submsgAlive, payload))

	got, ok := c.FindBetterEndpoint(PeerAddress{}, netip.MustParseAddr("198.51.100.1"), false)
	if !ok || got != ep {
		t.Fatalf("FindBetterEndpoint = (%v, %v), want (%v, true)", got, ok, ep)
	}

	// Reset member 7's location to unknown (0,0,0) and expect no redirect.
	m := c.table.slot(7)
	m.mu.Lock()
	m.x, m.y, m.z = 0, 0, 0
	m.mu.Unlock()

	_, ok = c.FindBetterEndpoint(PeerAddress{}, netip.MustParseAddr("198.51.100.1"), false)
	if ok {
		t.Fatalf("FindBetterEndpoint returned true for a member with unknown location")
	}
}
