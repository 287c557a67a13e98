// Completion: 100% - Module complete
package engine

import (
	"fmt"
	"os"
)

// SafeBuffer is a growable byte buffer with explicit lifecycle management.
// Once committed, any write panics.
type SafeBuffer struct {
	buf       []byte
	committed bool
	name      string // For debugging
}

// NewSafeBuffer creates a new SafeBuffer with a name for debugging
func NewSafeBuffer(name string) *SafeBuffer {
	return &SafeBuffer{name: name}
}

// Write appends bytes to the buffer. Panics if buffer is committed.
func (sb *SafeBuffer) Write(p []byte) (n int, err error) {
	sb.MustNotBeCommitted()
	sb.buf = append(sb.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte
func (sb *SafeBuffer) WriteByte(b byte) error {
	sb.MustNotBeCommitted()
	sb.buf = append(sb.buf, b)
	return nil
}

// WriteAt overwrites bytes in place. The range must lie within the current length.
func (sb *SafeBuffer) WriteAt(off int, p []byte) {
	sb.MustNotBeCommitted()
	if off < 0 || off+len(p) > len(sb.buf) {
		panic(fmt.Sprintf("SafeBuffer(%s): write of %d bytes at offset %d exceeds length %d",
			sb.name, len(p), off, len(sb.buf)))
	}
	copy(sb.buf[off:], p)
}

// Bytes returns the buffer contents. Safe to call after commit.
func (sb *SafeBuffer) Bytes() []byte {
	return sb.buf
}

// Len returns the buffer length
func (sb *SafeBuffer) Len() int {
	return len(sb.buf)
}

// Commit marks the buffer as complete. After this, no more writes are allowed.
func (sb *SafeBuffer) Commit() {
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "SafeBuffer(%s): Committed with %d bytes\n", sb.name, len(sb.buf))
	}
	sb.committed = true
}

// MustNotBeCommitted panics if the buffer is committed
func (sb *SafeBuffer) MustNotBeCommitted() {
	if sb.committed {
		panic(fmt.Sprintf("SafeBuffer(%s): Cannot write to committed buffer", sb.name))
	}
}
