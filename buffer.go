package ringq

import (
	"errors"
	"math/bits"
)

// Common buffer errors used for error handling and comparison using errors.Is().
var (
	// ErrInsufficientSpace indicates the buffer doesn't have enough space for the write operation
	ErrInsufficientSpace = errors.New("insufficient space in ring buffer")

	// ErrInsufficientData indicates the buffer doesn't have enough data for the read operation
	ErrInsufficientData = errors.New("insufficient data in ring buffer")
)

// Buffer is a byte-stream convenience layer over Queue: it owns the backing
// array and adds io.Reader/io.Writer compatibility on top of the core's
// slice-then-commit protocol.
//
// The thread safety rules of the core carry over:
//   - Write must only be called by the producer goroutine (implements io.Writer)
//   - Read, ReadSlices, PeekContiguous and Consume must only be called by
//     the consumer goroutine (Read implements io.Reader)
type Buffer struct {
	q   Queue
	buf []byte
}

// NewBuffer creates a buffer with the given size in bytes.
// Size will be rounded up to the next power of 2.
func NewBuffer(size uint64) *Buffer {
	size = nextPowerOf2(size)
	b := &Buffer{buf: make([]byte, size)}
	b.q.capLg2 = uint(bits.TrailingZeros64(size))
	return b
}

// Size returns the total capacity of the buffer in bytes.
func (b *Buffer) Size() uint64 {
	return b.q.Cap()
}

// AvailableRead returns the number of bytes available for reading.
func (b *Buffer) AvailableRead() uint64 {
	return b.q.Len()
}

// AvailableWrite returns the number of bytes available for writing.
func (b *Buffer) AvailableWrite() uint64 {
	return b.q.Free()
}

// Write writes all of data to the buffer, implementing io.Writer.
//
// It does not perform partial writes: either all of data is written, or
// nothing is and ErrInsufficientSpace is returned.
//
// Producer only.
func (b *Buffer) Write(data []byte) (int, error) {
	total := uint64(len(data))
	if total == 0 {
		return 0, nil
	}
	if total > b.q.Free() {
		return 0, ErrInsufficientSpace
	}

	// At most two runs: up to the array end, then from its start.
	for len(data) > 0 {
		idx, n := b.q.PushSlice()
		n = min(n, uint64(len(data)))
		copy(b.buf[idx:idx+n], data[:n])
		b.q.CommitPush(n)
		data = data[n:]
	}
	return int(total), nil
}

// Read reads up to len(data) bytes into data, implementing io.Reader.
//
// Read returns however many bytes are available, up to len(data). An empty
// buffer yields ErrInsufficientData, this package's analogue of io.EOF for
// a stream that may resume.
//
// Consumer only.
func (b *Buffer) Read(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	if b.q.Len() == 0 {
		return 0, ErrInsufficientData
	}

	total := 0
	for total < len(data) {
		idx, n := b.q.PopSlice()
		if n == 0 {
			break
		}
		n = min(n, uint64(len(data)-total))
		copy(data[total:], b.buf[idx:idx+n])
		b.q.CommitPop(n)
		total += int(n)
	}
	return total, nil
}

// ReadSlices returns one or two slices giving zero-copy access to all
// available data; the second slice is non-nil when the data wraps around
// the end of the buffer. After processing, call Consume to release the
// bytes back to the producer.
//
// Consumer only.
func (b *Buffer) ReadSlices() (first, second []byte, total uint64) {
	tail := b.q.tail.Load()
	head := b.q.head.Load()
	total = tail - head
	if total == 0 {
		return nil, nil, 0
	}

	idx := head & (b.q.Cap() - 1)
	n := min(total, b.q.Cap()-idx)
	first = b.buf[idx : idx+n]
	if n < total {
		second = b.buf[:total-n]
	}
	return first, second, total
}

// PeekContiguous returns a zero-copy view of the contiguous portion of the
// available data, which may be less than the total when the data wraps.
// The data is not consumed; call Consume when done with it.
//
// Consumer only.
func (b *Buffer) PeekContiguous() []byte {
	idx, n := b.q.PopSlice()
	if n == 0 {
		return nil
	}
	return b.buf[idx : idx+n]
}

// Consume advances the read position by n bytes without copying, releasing
// space back to the producer. Used together with ReadSlices or
// PeekContiguous. Returns ErrInsufficientData if n exceeds the available
// data, in which case nothing is consumed.
//
// Consumer only.
func (b *Buffer) Consume(n uint64) error {
	if n == 0 {
		return nil
	}
	if n > b.q.Len() {
		return ErrInsufficientData
	}
	b.q.CommitPop(n)
	return nil
}

// Reset discards all buffered data. Not safe to call concurrently with any
// other operation; both roles must be idle.
func (b *Buffer) Reset() {
	b.q.head.Store(0)
	b.q.tail.Store(0)
}

// nextPowerOf2 rounds up to the next power of 2.
func nextPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}
