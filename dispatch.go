package cluster

import (
	"encoding/binary"
	"log/slog"
)

// Sub-message type discriminants. The enumeration is closed on the wire but
// open in code: an unrecognized type is silently skipped using its length
// prefix, never rejected.
const (
	submsgAlive         byte = 1
	submsgHavePeer      byte = 2
	submsgMulticastLike byte = 3
	submsgCOM           byte = 4
	submsgProxyUnite    byte = 5
	submsgProxySend     byte = 6
)

// submsgHandlers dispatches a decoded sub-message type to its handler. A
// type absent from this table is skipped by dispatchSubMessages without
// calling anything, matching "unknown types are silently skipped."
var submsgHandlers = map[byte]func(*Cluster, MemberID, []byte) error{
	submsgAlive:         (*Cluster).handleAlive,
	submsgHavePeer:      (*Cluster).handleHavePeer,
	submsgMulticastLike: (*Cluster).handleMulticastLike,
	submsgCOM:           (*Cluster).handleCOM,
	submsgProxyUnite:    (*Cluster).handleProxyUnite,
	submsgProxySend:     (*Cluster).handleProxySend,
}

// dispatchSubMessages walks buf, a run of <u16 length_including_type><u8 type><bytes>
// entries, and dispatches each to its handler. An inner handler error drops
// only that one sub-message; running out of bytes to even read the next
// length or type drops everything remaining in buf, per spec.md §7's "outer
// decode error" rule.
func (c *Cluster) dispatchSubMessages(from MemberID, buf []byte) {
	for len(buf) > 0 {
		if len(buf) < 3 {
			slog.Debug("frame remainder too short for a sub-message header", "event", "cluster:frame:truncated", "from", from)
			return
		}
		length := int(binary.BigEndian.Uint16(buf[0:2]))
		if length < 1 || len(buf) < 2+length {
			slog.Debug("sub-message length overruns frame", "event", "cluster:frame:truncated", "from", from)
			return
		}
		typ := buf[2]
		payload := buf[3 : 2+length]
		rest := buf[2+length:]

		if handler, ok := submsgHandlers[typ]; ok {
			if err := handler(c, from, payload); err != nil {
				c.metrics.subMessageDropped(typ)
				slog.Debug("sub-message dropped", "event", "cluster:submsg:drop", "from", from, "type", typ, "error", err)
			} else {
				c.metrics.subMessageDispatched(typ)
			}
		} else {
			slog.Debug("unknown sub-message type skipped", "event", "cluster:submsg:unknown", "from", from, "type", typ)
		}
		buf = rest
	}
}
