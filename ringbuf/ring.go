// Package ringbuf provides the fixed-capacity circular byte buffer that backs
// each log stream.
//
// A Buffer never grows. Callers check Free before Append and Used before
// Consume; violating either is a programming error and panics, the same way
// bytes.Buffer treats out-of-range truncation.
package ringbuf

import "fmt"

// DefaultCapacity is the per-stream capacity used when none is configured
const DefaultCapacity = 4096

// Buffer is a byte ring with a read cursor, a write cursor and a used count
type Buffer struct {
	data  []byte
	read  int // physical offset of the oldest byte
	write int // physical offset of the next free byte
	used  int
}

// New creates a buffer holding at most capacity bytes
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Cap returns the fixed capacity
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Used returns the number of buffered bytes
func (b *Buffer) Used() int {
	return b.used
}

// Free returns the number of bytes that can still be appended
func (b *Buffer) Free() int {
	return len(b.data) - b.used
}

// Append copies p in after the last buffered byte, wrapping as needed.
// len(p) must not exceed Free.
func (b *Buffer) Append(p []byte) {
	if len(p) > b.Free() {
		panic(fmt.Sprintf("ringbuf: append of %d bytes exceeds free space %d", len(p), b.Free()))
	}
	n := copy(b.data[b.write:], p)
	if n < len(p) {
		copy(b.data, p[n:])
	}
	b.write = (b.write + len(p)) % len(b.data)
	b.used += len(p)
}

// AppendString is Append for a string without an intermediate allocation
func (b *Buffer) AppendString(s string) {
	if len(s) > b.Free() {
		panic(fmt.Sprintf("ringbuf: append of %d bytes exceeds free space %d", len(s), b.Free()))
	}
	n := copy(b.data[b.write:], s)
	if n < len(s) {
		copy(b.data, s[n:])
	}
	b.write = (b.write + len(s)) % len(b.data)
	b.used += len(s)
}

// ContiguousSpan returns the longest run of buffered bytes starting at the
// logical offset (relative to the read point) that does not cross the
// physical end of storage. A message straddling the wrap needs two spans.
// The returned slice aliases the buffer and is valid until the next Append.
func (b *Buffer) ContiguousSpan(offset int) []byte {
	if offset < 0 || offset > b.used {
		panic(fmt.Sprintf("ringbuf: span offset %d out of range [0,%d]", offset, b.used))
	}
	if offset == b.used {
		return nil
	}
	start := (b.read + offset) % len(b.data)
	remaining := b.used - offset
	if end := len(b.data) - start; remaining > end {
		remaining = end
	}
	return b.data[start : start+remaining]
}

// Consume discards n bytes from the read point, reclaiming their space
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.used {
		panic(fmt.Sprintf("ringbuf: consume of %d bytes out of range [0,%d]", n, b.used))
	}
	b.read = (b.read + n) % len(b.data)
	b.used -= n
	if b.used == 0 {
		// Rewind so the next message starts contiguous
		b.read, b.write = 0, 0
	}
}

// Reset drops all buffered bytes
func (b *Buffer) Reset() {
	b.read, b.write, b.used = 0, 0, 0
}
