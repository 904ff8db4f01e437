// pkg/stream/stream.go

package stream

import (
	"io"

	"AveBuf/pkg/alloc"
	"AveBuf/pkg/utils"
	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("stream is closed")
	// ErrTruncate is returned by Truncate, the stream only grows.
	ErrTruncate = errors.New("stream does not support truncation")
)

const (
	maxLargeChunkSize      = 4 << 20
	maxLargeChunkThreshold = 1 << 20
	maxSmallChunkSize      = 128 << 10
)

// chunk wraps one allocator block. length is the usable capacity; every
// chunk except the tail holds exactly length bytes of data, the tail
// holds Stream.woff bytes.
type chunk struct {
	block  alloc.Block
	length int
	next   *chunk
}

// Stream is a growable byte buffer backed by a chain of pooled chunks.
// Appends never move previously written bytes; reads use an independent
// cursor that can be repositioned with Seek. The tail chunk is live: bytes
// appended after a reader reached the end are visible to the next Read.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	alloc alloc.Allocator

	head   *chunk
	write  *chunk // tail of the chain
	woff   int
	rchunk *chunk
	roff   int

	chunkSize      int
	largeSize      int
	largeThreshold int
	totalAllocated int
	closed         bool
}

var (
	_ io.ReadWriteSeeker = (*Stream)(nil)
	_ io.ByteReader      = (*Stream)(nil)
	_ io.ByteWriter      = (*Stream)(nil)
	_ io.WriterTo        = (*Stream)(nil)
	_ io.Closer          = (*Stream)(nil)
)

// New creates an empty stream that draws its chunks from a. Chunks start
// small and switch to the large size once cumulative allocation crosses
// the threshold, so short-lived streams stay cheap while growing ones
// amortize per-chunk overhead. All sizes are clamped to a.MaxBlockSize.
func New(a alloc.Allocator) *Stream {
	large := utils.Min(maxLargeChunkSize, a.MaxBlockSize())
	small := utils.Min(maxSmallChunkSize, large/32)
	if small < 1 {
		small = large
	}
	return &Stream{
		alloc:          a,
		largeSize:      large,
		largeThreshold: utils.Min(maxLargeChunkThreshold, large/4),
		chunkSize:      small,
	}
}

// allocChunk requests the next chunk from the allocator. The chunk
// capacity is whatever the allocator actually returned, while the
// promotion counter tracks the requested sizes.
func (s *Stream) allocChunk() (*chunk, error) {
	if s.totalAllocated >= s.largeThreshold {
		s.chunkSize = s.largeSize
	}
	b, err := s.alloc.Allocate(s.chunkSize)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate chunk of %d bytes", s.chunkSize)
	}
	s.totalAllocated += s.chunkSize
	return &chunk{block: b, length: b.Len()}, nil
}

// grow appends a fresh chunk to the chain and moves the write cursor to it.
func (s *Stream) grow() error {
	c, err := s.allocChunk()
	if err != nil {
		return err
	}
	if s.head == nil {
		s.head = c
	} else {
		s.write.next = c
	}
	s.write = c
	s.woff = 0
	return nil
}

// validLen is the number of valid bytes in c: full capacity for any chunk
// before the tail, the live write offset for the tail itself.
func (s *Stream) validLen(c *chunk) int {
	if c.next == nil {
		return s.woff
	}
	return c.length
}

// Write appends p to the stream, growing the chain on demand. Bytes
// already copied before an allocation failure stay written. An append
// on an empty chain materializes the head chunk even for empty p.
func (s *Stream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if s.write == nil {
		if err := s.grow(); err != nil {
			return 0, err
		}
	}
	var written int
	for len(p) > 0 {
		if s.woff == s.write.length {
			if err := s.grow(); err != nil {
				return written, err
			}
		}
		n := copy(s.write.block.Bytes()[s.woff:s.write.length], p)
		s.woff += n
		written += n
		p = p[n:]
	}
	return written, nil
}

// WriteByte appends a single byte.
func (s *Stream) WriteByte(c byte) error {
	if s.closed {
		return ErrClosed
	}
	if s.write == nil || s.woff == s.write.length {
		if err := s.grow(); err != nil {
			return err
		}
	}
	s.write.block.Bytes()[s.woff] = c
	s.woff++
	return nil
}

// Read copies bytes from the read cursor into p, crossing chunk
// boundaries as needed. It returns io.EOF once no unread bytes remain;
// a zero-length read never does.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.rchunk == nil {
		if s.head == nil {
			return 0, io.EOF
		}
		s.rchunk, s.roff = s.head, 0
	}
	var read int
	for read < len(p) {
		n := s.validLen(s.rchunk) - s.roff
		if n <= 0 {
			if s.rchunk.next == nil {
				break
			}
			s.rchunk, s.roff = s.rchunk.next, 0
			continue
		}
		n = copy(p[read:], s.rchunk.block.Bytes()[s.roff:s.roff+n])
		s.roff += n
		read += n
	}
	if read == 0 {
		return 0, io.EOF
	}
	return read, nil
}

// ReadByte reads and returns the next byte, or io.EOF at end of stream.
func (s *Stream) ReadByte() (byte, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if s.rchunk == nil {
		if s.head == nil {
			return 0, io.EOF
		}
		s.rchunk, s.roff = s.head, 0
	}
	for s.roff >= s.validLen(s.rchunk) {
		if s.rchunk.next == nil {
			return 0, io.EOF
		}
		s.rchunk, s.roff = s.rchunk.next, 0
	}
	c := s.rchunk.block.Bytes()[s.roff]
	s.roff++
	return c, nil
}

// Len is the logical length of the stream.
func (s *Stream) Len() int64 {
	var n int64
	for c := s.head; c != nil; c = c.next {
		n += int64(s.validLen(c))
	}
	return n
}

// Position is the absolute offset of the read cursor, 0 if no read has
// begun.
func (s *Stream) Position() int64 {
	if s.rchunk == nil {
		return 0
	}
	var n int64
	for c := s.head; c != nil && c != s.rchunk; c = c.next {
		n += int64(c.length)
	}
	return n + int64(s.roff)
}

// SetPosition moves the read cursor to the absolute offset off. A
// negative offset is an error. An offset beyond the current length is
// deliberately not: the cursor silently stays where it was, so callers
// can probe with speculative look-ahead seeks.
func (s *Stream) SetPosition(off int64) error {
	if s.closed {
		return ErrClosed
	}
	if off < 0 {
		return errors.Errorf("negative position %d", off)
	}
	remaining := off
	for c := s.head; c != nil; c = c.next {
		n := int64(s.validLen(c))
		if remaining < n || (remaining == n && c.next == nil) {
			s.rchunk, s.roff = c, int(remaining)
			return nil
		}
		remaining -= n
	}
	return nil
}

// Seek implements io.Seeker for the read cursor and returns the position
// after the seek. It inherits the SetPosition behavior for targets beyond
// the current length.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.Position() + offset
	case io.SeekEnd:
		target = s.Len() + offset
	default:
		return 0, errors.Errorf("invalid whence %d", whence)
	}
	if err := s.SetPosition(target); err != nil {
		return 0, err
	}
	return s.Position(), nil
}

// Truncate always fails, the chain only grows until Close.
func (s *Stream) Truncate(size int64) error {
	if s.closed {
		return ErrClosed
	}
	return ErrTruncate
}

// Bytes returns a contiguous copy of the whole stream. The read cursor
// is left exactly where it was before the call.
func (s *Stream) Bytes() ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]byte, s.Len())
	if len(out) == 0 {
		return out, nil
	}
	rchunk, roff := s.rchunk, s.roff
	s.rchunk, s.roff = s.head, 0
	_, err := s.Read(out)
	s.rchunk, s.roff = rchunk, roff
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WriteTo copies every unread byte to w and advances the read cursor to
// the end of the stream.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if s.rchunk == nil {
		if s.head == nil {
			return 0, nil
		}
		s.rchunk, s.roff = s.head, 0
	}
	var written int64
	for {
		if n := s.validLen(s.rchunk) - s.roff; n > 0 {
			m, err := w.Write(s.rchunk.block.Bytes()[s.roff : s.roff+n])
			s.roff += m
			written += int64(m)
			if err != nil {
				return written, errors.Wrap(err, "write to sink")
			}
			if m < n {
				return written, io.ErrShortWrite
			}
		}
		if s.rchunk.next == nil {
			return written, nil
		}
		s.rchunk, s.roff = s.rchunk.next, 0
	}
}

// Readable reports whether the stream still accepts reads.
func (s *Stream) Readable() bool { return !s.closed }

// Writable reports whether the stream still accepts appends.
func (s *Stream) Writable() bool { return !s.closed }

// Seekable reports whether the stream still accepts seeks.
func (s *Stream) Seekable() bool { return !s.closed }

// Close releases every chunk back to the allocator and marks the stream
// closed. Closing twice is a no-op; pooled memory is released exactly once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for c := s.head; c != nil; {
		next := c.next
		c.block.Release()
		c.next = nil
		c = next
	}
	s.head, s.write, s.rchunk = nil, nil, nil
	s.woff, s.roff = 0, 0
	s.totalAllocated = 0
	return nil
}
