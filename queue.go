package cluster

import "encoding/binary"

// queue accumulates the plaintext of sub-messages bound for one member
// between flushes. It holds only the plaintext view — the 24-byte crypto
// header (IV + truncated tag) is produced by wire.Seal at flush time rather
// than maintained in place inside this buffer. This is a deliberate
// simplification of the original's single aliased buffer (see DESIGN.md):
// it sidesteps the in-place-encryption aliasing hazard spec.md's design
// notes flag, while producing byte-for-byte the same wire frame.
type queue struct {
	buf          []byte // [0:2]=from, [2:4]=to, [4:]=sub-messages
	maxPlaintext int
}

const queueHeaderSize = 4 // <u16 from><u16 to>

func newQueue(maxFrameLength int) *queue {
	return &queue{maxPlaintext: maxFrameLength - 24}
}

// reset clears the queue and writes a fresh <from><to> header.
func (q *queue) reset(self, peer MemberID) {
	q.buf = append(q.buf[:0], 0, 0, 0, 0)
	binary.BigEndian.PutUint16(q.buf[0:2], uint16(self))
	binary.BigEndian.PutUint16(q.buf[2:4], uint16(peer))
}

// empty reports whether nothing beyond the from/to header has been
// enqueued.
func (q *queue) empty() bool {
	return len(q.buf) <= queueHeaderSize
}

// fits reports whether a sub-message of the given payload length would fit
// in the queue without exceeding maxPlaintext.
func (q *queue) fits(payloadLen int) bool {
	return len(q.buf)+2+1+payloadLen <= q.maxPlaintext
}

// append writes <u16 len+1><u8 typ><payload> to the queue. Caller must have
// already checked fits.
func (q *queue) append(typ byte, payload []byte) {
	var hdr [3]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(1+len(payload)))
	hdr[2] = typ
	q.buf = append(q.buf, hdr[:]...)
	q.buf = append(q.buf, payload...)
}
