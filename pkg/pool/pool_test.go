package pool

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestBuffers(t *testing.T) {
	b := New(1024)

	ptr := b.Get()
	if len(*ptr) != 1024 || cap(*ptr) != 1024 {
		t.Fatalf("got len %d cap %d, want 1024", len(*ptr), cap(*ptr))
	}
	*ptr = (*ptr)[:10]
	b.Put(ptr)

	// Wrong sizes and nil are ignored.
	small := make([]byte, 10)
	b.Put(&small)
	b.Put(nil)

	again := b.Get()
	if len(*again) != 1024 {
		t.Errorf("buffer was not reset to full length: %d", len(*again))
	}
}

// readerFromWriter records whether ReadFrom was used.
type readerFromWriter struct {
	bytes.Buffer
	usedReadFrom bool
}

func (w *readerFromWriter) ReadFrom(r io.Reader) (int64, error) {
	w.usedReadFrom = true
	return w.Buffer.ReadFrom(r)
}

func TestCopy(t *testing.T) {
	b := New(16)
	payload := strings.Repeat("holland ", 100)

	var dst readerFromWriter
	n, err := b.Copy(&dst, strings.NewReader(payload))
	if err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if n != int64(len(payload)) || dst.String() != payload {
		t.Errorf("copied %d bytes, content match %v", n, dst.String() == payload)
	}
	if dst.usedReadFrom {
		t.Error("Copy should not delegate to the destination's ReadFrom")
	}
}
