package protocol

import "bytes"

// Accumulator holds bytes read from a stream that have not yet been
// resolved into a payload. Bytes are appended at the tail and drained from
// the head; it never aliases slices handed out by Take.
type Accumulator struct {
	buf []byte
}

// Append adds b to the tail.
func (a *Accumulator) Append(b []byte) {
	a.buf = append(a.buf, b...)
}

// Len returns the number of buffered bytes.
func (a *Accumulator) Len() int {
	return len(a.buf)
}

// Bytes returns the buffered bytes. The slice is only valid until the next
// mutating call.
func (a *Accumulator) Bytes() []byte {
	return a.buf
}

// IndexByte returns the index of the first c, or -1.
func (a *Accumulator) IndexByte(c byte) int {
	return bytes.IndexByte(a.buf, c)
}

// MatchAt reports whether pattern appears in full starting at index i.
func (a *Accumulator) MatchAt(i int, pattern []byte) bool {
	if i < 0 || i+len(pattern) > len(a.buf) {
		return false
	}
	return bytes.Equal(a.buf[i:i+len(pattern)], pattern)
}

// Drain drops n bytes from the head. Draining more than Len empties it.
func (a *Accumulator) Drain(n int) {
	if n <= 0 {
		return
	}
	if n >= len(a.buf) {
		a.buf = a.buf[:0]
		return
	}
	m := copy(a.buf, a.buf[n:])
	a.buf = a.buf[:m]
}

// Take returns a copy of every buffered byte and empties the accumulator.
func (a *Accumulator) Take() []byte {
	out := make([]byte, len(a.buf))
	copy(out, a.buf)
	a.buf = a.buf[:0]
	return out
}

// Reset empties the accumulator and releases its storage.
func (a *Accumulator) Reset() {
	a.buf = nil
}

// Head returns a copy of up to n leading bytes.
func (a *Accumulator) Head(n int) []byte {
	if n > len(a.buf) {
		n = len(a.buf)
	}
	out := make([]byte, n)
	copy(out, a.buf[:n])
	return out
}
