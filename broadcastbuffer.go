package ringq

import (
	"errors"
	"math/bits"
)

// ErrReaderClosed is returned by BroadcastReader.Close when the reader has
// already been detached.
var ErrReaderClosed = errors.New("ringq: broadcast reader already closed")

// BroadcastBuffer is a byte-stream convenience layer over Broadcast: one
// writer publishes a byte sequence, and every subscriber reads the whole
// sequence at its own pace through an io.Reader-shaped handle.
//
// Write must only be called by the writer goroutine. Each BroadcastReader
// must only be used by one goroutine at a time; distinct readers are
// independent of each other.
type BroadcastBuffer struct {
	bc  Broadcast
	buf []byte
}

// NewBroadcastBuffer creates a broadcast buffer with the given size in
// bytes, rounded up to the next power of 2, minimum 2.
func NewBroadcastBuffer(size uint64) *BroadcastBuffer {
	size = max(nextPowerOf2(size), 2)
	if size > 1<<MaxCapLg2 {
		panic("ringq: broadcast buffer size out of range")
	}
	b := &BroadcastBuffer{buf: make([]byte, size)}
	b.bc.capLg2 = uint(bits.TrailingZeros64(size))
	return b
}

// Size returns the total capacity of the buffer in bytes.
func (b *BroadcastBuffer) Size() uint64 {
	return b.bc.Cap()
}

// Readers returns the number of current subscribers.
func (b *BroadcastBuffer) Readers() int {
	return b.bc.Readers()
}

// AvailableWrite returns the number of bytes the writer could currently
// write. It shrinks as slow subscribers hold back the writer and never
// exceeds Size()-1: one byte stays in reserve so a full ring is never
// mistaken for an empty one.
//
// Writer only.
func (b *BroadcastBuffer) AvailableWrite() uint64 {
	return b.bc.WriterSlice().Len
}

// Write publishes all of data to every subscriber, implementing io.Writer.
//
// It does not perform partial writes: when slow subscribers leave too
// little room, nothing is written and ErrInsufficientSpace is returned.
// The caller may retry once subscribers have caught up or detached.
//
// Writer only.
func (b *BroadcastBuffer) Write(data []byte) (int, error) {
	n := uint64(len(data))
	if n == 0 {
		return 0, nil
	}
	s := b.bc.WriterSlice()
	if n > s.Len {
		return 0, ErrInsufficientSpace
	}

	first, second := s.Spans(b.buf)
	m := copy(first, data)
	copy(second, data[m:])
	s.Advance(n)
	b.bc.WriterCommit(s)
	return int(n), nil
}

// Subscribe attaches a new reader, positioned at the oldest byte the ring
// still holds. Fails with ErrTooManyReaders when MaxReaders subscribers
// are already attached.
func (b *BroadcastBuffer) Subscribe() (*BroadcastReader, error) {
	r, err := b.bc.AttachReader()
	if err != nil {
		return nil, err
	}
	return &BroadcastReader{b: b, r: r}, nil
}

// BroadcastReader is one subscriber's view of a BroadcastBuffer.
type BroadcastReader struct {
	b *BroadcastBuffer
	r Reader
}

// AvailableRead returns the number of bytes available to this reader.
func (br *BroadcastReader) AvailableRead() uint64 {
	return br.b.bc.ReaderSlice(&br.r).Len
}

// Read reads up to len(data) bytes into data, implementing io.Reader.
// A drained reader yields ErrInsufficientData; more data may become
// available after the writer's next commit.
func (br *BroadcastReader) Read(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	s := br.b.bc.ReaderSlice(&br.r)
	if s.Len == 0 {
		return 0, ErrInsufficientData
	}

	first, second := s.Spans(br.b.buf)
	n := copy(data, first)
	n += copy(data[n:], second)
	s.Advance(uint64(n))
	br.b.bc.ReaderCommit(&br.r, s)
	return n, nil
}

// ReadSlices returns one or two slices giving zero-copy access to all data
// available to this reader; the second slice is non-nil when the data
// wraps around the end of the buffer. After processing, call Consume.
func (br *BroadcastReader) ReadSlices() (first, second []byte, total uint64) {
	s := br.b.bc.ReaderSlice(&br.r)
	if s.Len == 0 {
		return nil, nil, 0
	}
	first, second = s.Spans(br.b.buf)
	return first, second, s.Len
}

// Consume advances the reader by n bytes without copying. Returns
// ErrInsufficientData if n exceeds the available data, in which case
// nothing is consumed.
func (br *BroadcastReader) Consume(n uint64) error {
	if n == 0 {
		return nil
	}
	s := br.b.bc.ReaderSlice(&br.r)
	if n > s.Len {
		return ErrInsufficientData
	}
	s.Advance(n)
	br.b.bc.ReaderCommit(&br.r, s)
	return nil
}

// Close detaches the reader. Bytes it had not consumed stop holding back
// the writer. Closing an already closed reader returns ErrReaderClosed.
func (br *BroadcastReader) Close() error {
	if br.b == nil {
		return ErrReaderClosed
	}
	br.b.bc.DetachReader(&br.r)
	br.b = nil
	return nil
}
