package cluster

import (
	"crypto/sha512"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/KarpelesLab/emitter"
	"github.com/KarpelesLab/clustercore/wire"
)

// Cluster is the intra-cluster coordination core: authenticated inter-
// member framing, per-member batching, peer-affinity tracking, the
// alive/announce protocol, and cross-member rendezvous/relay. It holds no
// reference to any particular transport; bytes move in via
// HandleIncomingStateMessage and out via Collaborators.Send.
//
// Lock ordering, strictly: table.idsMu, then at most one member.mu, then
// affinity.mu. affinity.mu must never be held while acquiring either of the
// others.
type Cluster struct {
	cfg    Config
	collab Collaborators
	now    func() time.Time
	build  BuildInfo

	// selfKey decrypts every inbound frame, regardless of sender: a
	// conformant sender encrypts under deriveMemberKey(secret, selfID) —
	// the same key this node's members hold for it as their own
	// destination key — never under its own per-member outbound key, which
	// the local table only uses for encrypting outbound traffic via flush.
	selfKey [32]byte

	metrics *Metrics
	// Events publishes member-added/member-removed/affinity-claimed
	// notifications, mirroring the teacher's Agent.Events hub.
	Events *emitter.Hub

	table    *memberTable
	affinity *affinityMap

	lastAnnounceSweep time.Time
}

// NewCluster constructs a Cluster from cfg and its collaborators, applying
// any options. Collaborators.Send must be set; the rest may be nil if the
// corresponding operations are never exercised.
func NewCluster(cfg Config, collab Collaborators, opts ...ClusterOption) (*Cluster, error) {
	if collab.Send == nil {
		return nil, ErrMissingSendFunc
	}
	if cfg.MaxMembers <= 0 {
		cfg.MaxMembers = DefaultConfig().MaxMembers
	}
	if cfg.MaxFrameLength <= 0 {
		cfg.MaxFrameLength = DefaultConfig().MaxFrameLength
	}
	if int(cfg.SelfID) >= cfg.MaxMembers {
		return nil, ErrMemberOutOfRange
	}

	c := &Cluster{
		cfg:      cfg,
		collab:   collab,
		now:      time.Now,
		selfKey:  deriveMemberKey(cfg.MasterSecret, cfg.SelfID),
		table:    newMemberTable(cfg.MaxMembers),
		affinity: newAffinityMap(),
		Events:   emitter.New(),
	}
	c.metrics = NewMetrics(cfg.Registerer)

	for _, opt := range opts {
		opt.apply(c)
	}
	return c, nil
}

// deriveMemberKey computes a member's per-member AEAD key: the master
// secret with id XOR-ed into its first two bytes, hashed twice with
// SHA-512, keeping the first 32 bytes. Grounded on Cluster.cpp's
// constructor / addMember key derivation.
func deriveMemberKey(secret [64]byte, id MemberID) [32]byte {
	tmp := secret
	tmp[0] ^= byte(id)
	tmp[1] ^= byte(id >> 8)
	h1 := sha512.Sum512(tmp[:])
	h2 := sha512.Sum512(h1[:])
	var key [32]byte
	copy(key[:], h2[:32])
	return key
}

// send enqueues a sub-message for delivery to id, flushing first if it
// would not otherwise fit, and silently dropping it if it still would not
// fit in an empty frame (spec.md §7's capacity-overflow rule). Caller must
// hold m.mu.
func (c *Cluster) send(id MemberID, m *member, typ byte, payload []byte) {
	if !m.q.fits(len(payload)) {
		c.flush(id, m)
	}
	if !m.q.fits(len(payload)) {
		slog.Debug("sub-message too large for an empty frame, dropped", "event", "cluster:queue:overflow", "to", id, "type", typ)
		return
	}
	m.q.append(typ, payload)
}

// flush seals and delivers the queue's accumulated plaintext, then resets
// it for the next batch. No-op if nothing has been enqueued. Caller must
// hold m.mu; Collaborators.Send is invoked synchronously while that lock is
// held, so it must not block or call back into Cluster.
func (c *Cluster) flush(id MemberID, m *member) {
	if m.q.empty() {
		return
	}
	frame, err := wire.Seal(m.key, m.q.buf)
	if err != nil {
		slog.Debug("frame seal failed", "event", "cluster:queue:seal_error", "to", id, "error", err)
		return
	}
	c.collab.Send(id, frame)
	m.q.reset(c.cfg.SelfID, id)
}

// forEachActive runs fn for every currently-active member, under that
// member's lock, in ascending ID order.
func (c *Cluster) forEachActive(fn func(id MemberID, m *member)) {
	for _, id := range c.table.activeIDs() {
		m := c.table.slot(id)
		m.mu.Lock()
		fn(id, m)
		m.mu.Unlock()
	}
}

// HandleIncomingStateMessage decrypts and dispatches a frame received from
// member `from` — the ingress glue (whatever owns the actual socket or
// stream per member) is expected to already know which member a frame
// arrived from, since dispatch and affinity bookkeeping both need that
// identity; decryption itself always uses this node's own self key
// (every conformant sender encrypts under deriveMemberKey(secret, selfID)
// regardless of who they are), and `from` is only cross-checked against the
// decrypted header afterward. Any failure, at any stage, is a silent
// reject: no handler runs and no state changes.
func (c *Cluster) HandleIncomingStateMessage(from MemberID, frame []byte) {
	if int(from) >= c.cfg.MaxMembers || !c.table.isActive(from) {
		c.metrics.frameRejected()
		slog.Debug("frame from inactive or out-of-range member", "event", "cluster:frame:reject", "from", from)
		return
	}

	plaintext, err := wire.Open(c.selfKey, frame)
	if err != nil {
		c.metrics.frameRejected()
		slog.Debug("frame rejected", "event", "cluster:frame:reject", "from", from, "error", err)
		return
	}
	if len(plaintext) < 4 {
		c.metrics.frameRejected()
		slog.Debug("frame plaintext too short for header", "event", "cluster:frame:reject", "from", from)
		return
	}

	fromField := MemberID(binary.BigEndian.Uint16(plaintext[0:2]))
	toField := MemberID(binary.BigEndian.Uint16(plaintext[2:4]))

	if fromField == c.cfg.SelfID || toField != c.cfg.SelfID || fromField != from || !c.table.isActive(fromField) {
		c.metrics.frameRejected()
		slog.Debug("frame header mismatch", "event", "cluster:frame:reject", "from", from, "header_from", fromField, "header_to", toField)
		return
	}

	c.metrics.frameReceived()
	c.dispatchSubMessages(fromField, plaintext[4:])
}
