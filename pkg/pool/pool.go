// Package pool recycles the copy buffers used when streaming plugin output
// into compressed files.
//
// A sync.Pool hands out per-P cached objects and drops them on GC, which
// suits short-lived buffers but not long-lived resources.
package pool

import (
	"io"
	"sync"
)

// Buffers is a pool of equally sized byte slices.
type Buffers struct {
	size int
	pool sync.Pool
}

// New returns a pool of size byte buffers.
func New(size int) *Buffers {
	b := &Buffers{size: size}
	b.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return b
}

// Size is the length of the buffers handed out by Get.
func (b *Buffers) Size() int { return b.size }

// Get returns a buffer of Size bytes.
func (b *Buffers) Get() *[]byte {
	return b.pool.Get().(*[]byte)
}

// Put returns buf to the pool. Buffers of another capacity are dropped.
func (b *Buffers) Put(buf *[]byte) {
	if buf == nil || cap(*buf) != b.size {
		return
	}
	*buf = (*buf)[:b.size]
	b.pool.Put(buf)
}

// Copy is io.CopyBuffer with a pooled buffer. It is safe to call from a
// ReadFrom method of dst.
func (b *Buffers) Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := b.Get()
	defer b.Put(buf)
	return io.CopyBuffer(onlyWriter{dst}, src, *buf)
}

// onlyWriter hides dst's ReadFrom so CopyBuffer actually uses the buffer.
type onlyWriter struct {
	io.Writer
}
