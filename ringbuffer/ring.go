// Package ringbuffer implements the lock-free byte ring that sits between the
// capture callback and the network sender.
//
// A Ring is safe for exactly one writer goroutine and one reader goroutine.
// The writer owns the write cursor and the decimation counter, the reader owns
// the read cursor. Each side publishes its cursor with an atomic store after
// the bytes it covers have been copied, and loads the other side's cursor
// atomically, so a reader never observes a cursor ahead of the data it
// describes. The byte count seen by either side may be stale but is never
// larger than what is actually there.
package ringbuffer

import (
	"errors"
	"sync/atomic"
)

// DefaultCapacity is 16 MiB.
const DefaultCapacity = 16 * 1024 * 1024

var (
	ErrTooLarge = errors.New("ringbuffer: write larger than capacity")
	ErrCursor   = errors.New("ringbuffer: write cursor out of range")
)

type Ring struct {
	buf []byte
	wr  atomic.Int64
	rd  atomic.Int64

	// writer side only
	decimateCntr int
}

// New allocates a ring. capacity should be a multiple of the largest sample
// unit written with WriteDecimated (8 bytes).
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]byte, capacity)}
}

func (r *Ring) Cap() int {
	return len(r.buf)
}

// Reset rewinds both cursors and the decimation phase. It must only be called
// while neither the writer nor the reader is running.
func (r *Ring) Reset() {
	r.wr.Store(0)
	r.rd.Store(0)
	r.decimateCntr = 0
}

// Available returns the number of unread bytes. A difference outside
// [0, capacity) is treated as a transient bad read and reported as 0.
func (r *Ring) Available() int {
	return r.available(r.wr.Load(), r.rd.Load())
}

func (r *Ring) available(w, rd int64) int {
	size := int64(len(r.buf))
	n := w - rd
	if n < 0 {
		n += size
	}
	if n < 0 || n >= size {
		return 0
	}
	return int(n)
}

// Write copies p at the write cursor, wrapping as needed. It returns true when
// more than half of the ring is occupied afterwards. That is a soft warning:
// nothing is dropped here. A full ring is indistinguishable from an empty one,
// so p must be shorter than Cap().
func (r *Ring) Write(p []byte) (bool, error) {
	size := len(r.buf)
	if len(p) >= size {
		return false, ErrTooLarge
	}
	w := r.wr.Load()
	if w < 0 || w >= int64(size) {
		return false, ErrCursor
	}

	idx := int(w)
	n := copy(r.buf[idx:], p)
	if n < len(p) {
		copy(r.buf, p[n:])
	}
	idx += len(p)
	if idx >= size {
		idx -= size
	}

	return r.publish(int64(idx)), nil
}

// WriteDecimated keeps every factor-th unit of p, where unit is the size in
// bytes of one I/Q pair. The phase of the decimation counter is kept between
// calls so lengths that are not a multiple of factor*unit still produce an
// even stride. With factor <= 1 it is the same as Write.
func (r *Ring) WriteDecimated(p []byte, unit, factor int) (bool, error) {
	if factor <= 1 || unit <= 0 {
		return r.Write(p)
	}
	size := len(r.buf)
	if r.decimatedSize(len(p)/unit, factor)*unit >= size {
		return false, ErrTooLarge
	}
	w := r.wr.Load()
	if w < 0 || w >= int64(size) {
		return false, ErrCursor
	}

	idx := int(w)
	for i := 0; i+unit <= len(p); i += unit {
		if r.decimateCntr == 0 {
			if idx+unit <= size {
				copy(r.buf[idx:idx+unit], p[i:i+unit])
				idx += unit
			} else {
				for j := 0; j < unit; j++ {
					r.buf[idx] = p[i+j]
					idx++
					if idx >= size {
						idx = 0
					}
				}
			}
			if idx >= size {
				idx = 0
			}
		}
		r.decimateCntr++
		if r.decimateCntr >= factor {
			r.decimateCntr = 0
		}
	}

	return r.publish(int64(idx)), nil
}

// decimatedSize is how many of units pairs WriteDecimated keeps, given the
// current phase of the decimation counter.
func (r *Ring) decimatedSize(units, factor int) int {
	first := (factor - r.decimateCntr) % factor
	if first >= units {
		return 0
	}
	return (units-1-first)/factor + 1
}

func (r *Ring) publish(w int64) bool {
	r.wr.Store(w)
	return r.available(w, r.rd.Load()) > len(r.buf)/2
}

// Read copies up to len(dst) available bytes and advances the read cursor.
// When zeroIfEmpty is set dst is cleared before anything is copied, so an idle
// reader never sees stale bytes.
func (r *Ring) Read(dst []byte, zeroIfEmpty bool) int {
	rd := r.rd.Load()
	w := r.wr.Load()
	if zeroIfEmpty {
		clear(dst)
	}

	avail := r.available(w, rd)
	if avail <= 0 {
		return 0
	}
	n := len(dst)
	if n > avail {
		n = avail
	}

	size := len(r.buf)
	idx := int(rd)
	c := copy(dst[:n], r.buf[idx:])
	if c < n {
		copy(dst[c:n], r.buf)
	}
	idx += n
	if idx >= size {
		idx -= size
	}

	r.rd.Store(int64(idx))
	return n
}
