package cluster

import (
	"encoding/binary"
	"io/fs"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"
)

// persistStore optionally snapshots affinity entries into a bbolt bucket so
// a restarted process can warm-start instead of waiting out a full
// peer-activity timeout before it trusts any affinity data again. This is
// a cache of the core's own transient state, not the topology database —
// see SPEC_FULL.md's Non-goals. Grounded on the teacher's db.go
// dbSimpleGet/dbSimpleSet/dbSimpleDel helpers, narrowed to this one bucket.
type persistStore struct {
	db     *bolt.DB
	bucket []byte
}

// newPersistStore wraps an already-open bbolt handle. Callers own db's
// lifetime; Cluster never closes it.
func newPersistStore(db *bolt.DB, bucket []byte) *persistStore {
	return &persistStore{db: db, bucket: bucket}
}

func (s *persistStore) put(addr PeerAddress, member MemberID, at time.Time) {
	var val [10]byte
	binary.BigEndian.PutUint16(val[0:2], uint16(member))
	binary.BigEndian.PutUint64(val[2:10], uint64(at.UnixMilli()))

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return b.Put(addr[:], val[:])
	})
	if err != nil {
		slog.Debug("affinity persist failed", "event", "cluster:affinity:persist_error", "error", err)
	}
}

func (s *persistStore) delete(addr PeerAddress) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete(addr[:])
	})
	if err != nil {
		slog.Debug("affinity persist delete failed", "event", "cluster:affinity:persist_error", "error", err)
	}
}

// loadAll reads every persisted entry back, used once at construction when
// WithPersistence is supplied.
func (s *persistStore) loadAll() map[PeerAddress]affinityEntry {
	out := make(map[PeerAddress]affinityEntry)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) != 5 || len(v) != 10 {
				return nil
			}
			var addr PeerAddress
			copy(addr[:], k)
			out[addr] = affinityEntry{
				member: MemberID(binary.BigEndian.Uint16(v[0:2])),
				at:     time.UnixMilli(int64(binary.BigEndian.Uint64(v[2:10]))),
			}
			return nil
		})
	})
	if err != nil && err != fs.ErrNotExist {
		slog.Debug("affinity persist load failed", "event", "cluster:affinity:persist_error", "error", err)
	}
	return out
}

// WithPersistence attaches a bbolt-backed snapshot store to the affinity
// map: entries are written through on every claim/refresh and removed on
// GC eviction, and the map is warm-started from db at construction time.
func WithPersistence(db *bolt.DB, bucket []byte) ClusterOption {
	return clusterOptionFunc(func(c *Cluster) {
		store := newPersistStore(db, bucket)
		c.affinity.store = store
		for addr, e := range store.loadAll() {
			c.affinity.entries[addr] = e
		}
	})
}
