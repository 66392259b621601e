package cluster

import (
	"net/netip"
	"sync"
	"time"
)

// member is one slot of the fixed-capacity member table. Every field is
// guarded by mu; callers must hold mu for the whole duration of any read or
// mutation, including while q's send callback runs during flush (see the
// lock-ordering note on Cluster).
type member struct {
	mu sync.Mutex

	key [32]byte
	q   *queue

	x, y, z int32
	load    uint64

	endpoints []netip.AddrPort
	version   BuildInfo

	lastReceivedAlive    time.Time
	lastAnnouncedAliveTo time.Time

	samples uint64
}

// locationKnown reports whether the member has reported a non-zero
// location. All-zero means "unknown" per spec.
func (m *member) locationKnown() bool {
	return m.x != 0 || m.y != 0 || m.z != 0
}

// alive reports whether the member's heartbeat is within timeout of now.
func (m *member) alive(now time.Time, timeout time.Duration) bool {
	if m.lastReceivedAlive.IsZero() {
		return false
	}
	return now.Sub(m.lastReceivedAlive) < timeout
}

// resetLocked reinitializes a member's record in place: fresh key, empty
// queue, zeroed location/load/endpoints/timestamps. Caller must hold mu.
func (m *member) resetLocked(key [32]byte, selfID, peerID MemberID, maxFrameLength int) {
	m.key = key
	m.q = newQueue(maxFrameLength)
	m.q.reset(selfID, peerID)
	m.x, m.y, m.z = 0, 0, 0
	m.load = 0
	m.endpoints = nil
	m.version = BuildInfo{}
	m.lastReceivedAlive = time.Time{}
	m.lastAnnouncedAliveTo = time.Time{}
	m.samples = 0
}

// memberTable is the fixed-capacity array of member slots plus the sorted
// set of currently-active IDs, matching spec.md §3's invariant that the
// active-ID vector is a strictly increasing, separately-locked list and
// that a slot's record is only consulted while its ID is active.
type memberTable struct {
	idsMu sync.RWMutex
	ids   []MemberID // sorted ascending, strictly increasing

	slots []*member // len == capacity, indexed by MemberID
}

func newMemberTable(capacity int) *memberTable {
	slots := make([]*member, capacity)
	for i := range slots {
		slots[i] = &member{}
	}
	return &memberTable{slots: slots}
}

// activeIDs returns a snapshot of the currently-active member IDs, sorted
// ascending.
func (t *memberTable) activeIDs() []MemberID {
	t.idsMu.RLock()
	defer t.idsMu.RUnlock()
	out := make([]MemberID, len(t.ids))
	copy(out, t.ids)
	return out
}

// isActive reports whether id is currently in the active set.
func (t *memberTable) isActive(id MemberID) bool {
	t.idsMu.RLock()
	defer t.idsMu.RUnlock()
	return t.containsLocked(id)
}

func (t *memberTable) containsLocked(id MemberID) bool {
	_, found := t.searchLocked(id)
	return found
}

func (t *memberTable) searchLocked(id MemberID) (int, bool) {
	lo, hi := 0, len(t.ids)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case t.ids[mid] == id:
			return mid, true
		case t.ids[mid] < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// add inserts id into the active set, keeping it sorted; a no-op if already
// present. Returns whether it was newly added.
func (t *memberTable) add(id MemberID) bool {
	t.idsMu.Lock()
	defer t.idsMu.Unlock()
	i, found := t.searchLocked(id)
	if found {
		return false
	}
	t.ids = append(t.ids, 0)
	copy(t.ids[i+1:], t.ids[i:])
	t.ids[i] = id
	return true
}

// remove deletes id from the active set; a no-op if absent. The member's
// record is left in place as dormant state, per spec.md §4.8.
func (t *memberTable) remove(id MemberID) bool {
	t.idsMu.Lock()
	defer t.idsMu.Unlock()
	i, found := t.searchLocked(id)
	if !found {
		return false
	}
	t.ids = append(t.ids[:i], t.ids[i+1:]...)
	return true
}

// slot returns the member record for id. id must be < capacity; callers
// should check isActive before trusting the record's contents.
func (t *memberTable) slot(id MemberID) *member {
	return t.slots[id]
}
