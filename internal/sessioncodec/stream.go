package sessioncodec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"pkt.systems/tabkeeper/schema"
)

// nullLength marks an absent text or blob.
const nullLength = math.MaxUint32

// maxBlob bounds any single length-prefixed field.
const maxBlob = 64 << 20

// reader decodes primitives from an in-memory buffer. The first failure is
// sticky: later reads return zero values and err keeps the original cause.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: "+format, append([]any{schema.ErrCorruptSession}, args...)...)
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.remaining() {
		r.fail("need %d bytes at offset %d, have %d", n, r.off, r.remaining())
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func (r *reader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) bool() bool {
	b := r.take(1)
	if b == nil {
		return false
	}
	return b[0] != 0
}

// bytes reads a length-prefixed blob. A null marker yields nil.
func (r *reader) bytes() []byte {
	n := r.uint32()
	if r.err != nil || n == nullLength {
		return nil
	}
	if n > maxBlob {
		r.fail("blob of %d bytes exceeds limit", n)
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func (r *reader) text() string {
	return string(r.bytes())
}

// count reads a non-negative element count; each element needs at least
// minSize bytes, which bounds the count by the remaining input.
func (r *reader) count(what string, minSize int) int {
	n := r.int32()
	if r.err != nil {
		return 0
	}
	if n < 0 {
		r.fail("negative %s count %d", what, n)
		return 0
	}
	if minSize > 0 && int(n) > r.remaining()/minSize {
		r.fail("%s count %d exceeds remaining input", what, n)
		return 0
	}
	return int(n)
}

// writer encodes primitives to w, keeping the first error.
type writer struct {
	w   io.Writer
	err error
	tmp [4]byte
}

func newWriter(w io.Writer) *writer {
	return &writer{w: w}
}

func (w *writer) write(b []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(b)
}

func (w *writer) int32(v int32) {
	binary.LittleEndian.PutUint32(w.tmp[:], uint32(v))
	w.write(w.tmp[:])
}

func (w *writer) int(v int) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		if w.err == nil {
			w.err = fmt.Errorf("value %d does not fit in int32", v)
		}
		return
	}
	w.int32(int32(v))
}

func (w *writer) bool(v bool) {
	if v {
		w.write([]byte{1})
		return
	}
	w.write([]byte{0})
}

// bytes writes a length-prefixed blob; nil is written as the null marker.
func (w *writer) bytes(b []byte) {
	if b == nil {
		binary.LittleEndian.PutUint32(w.tmp[:], nullLength)
		w.write(w.tmp[:])
		return
	}
	if len(b) > maxBlob {
		if w.err == nil {
			w.err = fmt.Errorf("blob of %d bytes exceeds limit", len(b))
		}
		return
	}
	binary.LittleEndian.PutUint32(w.tmp[:], uint32(len(b)))
	w.write(w.tmp[:])
	w.write(b)
}

func (w *writer) text(s string) {
	w.bytes([]byte(s))
}
