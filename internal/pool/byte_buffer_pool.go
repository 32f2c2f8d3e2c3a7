// Package pool provides pooled byte buffers for snapshot compression staging.
package pool

import "sync"

const (
	// SnapshotBufferDefaultSize is the initial capacity of buffers obtained
	// from GetSnapshotBuffer. Sized for a typical compressed 4 KiB page.
	SnapshotBufferDefaultSize = 16 * 1024

	// SnapshotBufferMaxThreshold is the largest buffer the pool retains.
	// Buffers that grew beyond this are dropped instead of pooled so a single
	// oversized snapshot cannot pin memory forever.
	SnapshotBufferMaxThreshold = 1024 * 1024
)

// ByteBuffer is a reusable byte slice wrapper handed out by the pool.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

// NewByteBuffer creates a ByteBuffer with the given initial capacity.
func NewByteBuffer(size int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, size)}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Len returns the current length of the buffer.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Reset empties the buffer but keeps the allocated memory for reuse.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// MustWrite appends data to the buffer, growing it if necessary.
func (bb *ByteBuffer) MustWrite(data []byte) {
	bb.B = append(bb.B, data...)
}

// Write implements io.Writer.
func (bb *ByteBuffer) Write(data []byte) (int, error) {
	bb.B = append(bb.B, data...)
	return len(data), nil
}

var snapshotBufferPool = sync.Pool{
	New: func() any {
		return NewByteBuffer(SnapshotBufferDefaultSize)
	},
}

// GetSnapshotBuffer returns an empty buffer from the pool.
func GetSnapshotBuffer() *ByteBuffer {
	bb := snapshotBufferPool.Get().(*ByteBuffer)
	bb.Reset()

	return bb
}

// PutSnapshotBuffer returns a buffer to the pool. Oversized buffers are
// dropped to bound pool memory.
func PutSnapshotBuffer(bb *ByteBuffer) {
	if cap(bb.B) > SnapshotBufferMaxThreshold {
		return
	}
	snapshotBufferPool.Put(bb)
}
