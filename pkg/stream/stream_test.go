// pkg/stream/stream_test.go

package stream

import (
	"bytes"
	"io"
	"testing"

	"AveBuf/pkg/alloc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// testAlloc hands out plain heap blocks and records every request, so
// tests can pin down chunk sizing and release accounting.
type testAlloc struct {
	blockSize      int // if >0, every block gets this capacity regardless of request
	maxSize        int
	failAfter      int // if >0, fail allocations once this many succeeded
	requests       []int
	released       int
	doubleReleased int
}

type testBlock struct {
	a        *testAlloc
	data     []byte
	released bool
}

func (b *testBlock) Bytes() []byte { return b.data }
func (b *testBlock) Len() int      { return len(b.data) }

func (b *testBlock) Release() {
	if b.released {
		b.a.doubleReleased++
	}
	b.released = true
	b.a.released++
}

func (a *testAlloc) Allocate(size int) (alloc.Block, error) {
	if a.failAfter > 0 && len(a.requests) >= a.failAfter {
		return nil, errors.New("out of memory")
	}
	a.requests = append(a.requests, size)
	n := size
	if a.blockSize > 0 {
		n = a.blockSize
	}
	return &testBlock{a: a, data: make([]byte, n)}, nil
}

func (a *testAlloc) MaxBlockSize() int { return a.maxSize }

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + 3)
	}
	return p
}

func TestRoundTrip(t *testing.T) {
	// small tier is 64KiB/32 = 2KiB with this cap
	small := 2048
	for _, size := range []int{0, 1, small - 1, small, small + 1, 200_000, 3 << 20} {
		a := &testAlloc{maxSize: 64 << 10}
		s := New(a)
		data := pattern(size)

		n, err := s.Write(data)
		require.NoError(t, err)
		require.Equal(t, size, n)
		require.Equal(t, int64(size), s.Len())

		_, err = s.Seek(0, io.SeekStart)
		require.NoError(t, err)
		got, err := io.ReadAll(s)
		require.NoError(t, err)
		require.True(t, bytes.Equal(data, got), "round trip of %d bytes", size)
		require.NoError(t, s.Close())
	}
}

func TestLengthAnyChunkingPattern(t *testing.T) {
	one := &testAlloc{maxSize: 64 << 10}
	many := &testAlloc{maxSize: 64 << 10}
	s1, s2 := New(one), New(many)
	defer s1.Close()
	defer s2.Close()

	data := pattern(100_000)
	_, err := s1.Write(data)
	require.NoError(t, err)
	for _, b := range data {
		require.NoError(t, s2.WriteByte(b))
	}
	require.Equal(t, int64(len(data)), s1.Len())
	require.Equal(t, int64(len(data)), s2.Len())

	got, err := s2.Bytes()
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
}

func TestHelloWorldChunks(t *testing.T) {
	a := &testAlloc{blockSize: 4, maxSize: 4}
	s := New(a)
	defer s.Close()

	for _, part := range []string{"hello ", "world"} {
		n, err := s.Write([]byte(part))
		require.NoError(t, err)
		require.Equal(t, len(part), n)
	}

	var lengths []int
	for c := s.head; c != nil; c = c.next {
		lengths = append(lengths, s.validLen(c))
	}
	require.Equal(t, []int{4, 4, 3}, lengths)

	got, err := s.Bytes()
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))

	// no read has begun, so a seek past the end keeps position 0
	require.NoError(t, s.SetPosition(20))
	require.Equal(t, int64(0), s.Position())
}

func TestPositionUnderRead(t *testing.T) {
	a := &testAlloc{blockSize: 8, maxSize: 8}
	s := New(a)
	defer s.Close()
	data := pattern(30)
	_, err := s.Write(data)
	require.NoError(t, err)

	buf := make([]byte, 11)
	n, err := s.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.Equal(t, int64(11), s.Position())

	// short read at end of stream
	big := make([]byte, 100)
	n, err = s.Read(big)
	require.NoError(t, err)
	require.Equal(t, 19, n)
	require.Equal(t, int64(30), s.Position())

	_, err = s.Read(big)
	require.Equal(t, io.EOF, err)
}

func TestSeekPastEndIsNoop(t *testing.T) {
	a := &testAlloc{maxSize: 64 << 10}
	s := New(a)
	defer s.Close()
	_, err := s.Write(pattern(100))
	require.NoError(t, err)

	buf := make([]byte, 40)
	_, err = s.Read(buf)
	require.NoError(t, err)
	require.Equal(t, int64(40), s.Position())

	require.NoError(t, s.SetPosition(101))
	require.Equal(t, int64(40), s.Position())

	pos, err := s.Seek(50, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(40), pos)

	// landing exactly at the end of the stream is fine
	require.NoError(t, s.SetPosition(100))
	require.Equal(t, int64(100), s.Position())
	_, err = s.ReadByte()
	require.Equal(t, io.EOF, err)

	require.Error(t, s.SetPosition(-1))
	_, err = s.Seek(-1, io.SeekStart)
	require.Error(t, err)
}

func TestTailLiveness(t *testing.T) {
	a := &testAlloc{blockSize: 8, maxSize: 8}
	s := New(a)
	defer s.Close()

	_, err := s.Write([]byte("abc"))
	require.NoError(t, err)
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))

	// cursor sits at the old end; new bytes show up without a reset
	_, err = s.Write([]byte("def"))
	require.NoError(t, err)
	c, err := s.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('d'), c)
}

func TestTierPromotion(t *testing.T) {
	a := &testAlloc{maxSize: 64 << 10}
	s := New(a)
	defer s.Close()
	// small tier 2KiB, promotion threshold 16KiB, large tier 64KiB
	_, err := s.Write(pattern(17_000))
	require.NoError(t, err)

	require.Equal(t, 9, len(a.requests))
	for _, req := range a.requests[:8] {
		require.Equal(t, 2048, req)
	}
	require.Equal(t, 64<<10, a.requests[8])
}

func TestBytesKeepsCursor(t *testing.T) {
	a := &testAlloc{blockSize: 4, maxSize: 4}
	s := New(a)
	defer s.Close()
	_, err := s.Write([]byte("abcdef"))
	require.NoError(t, err)

	buf := make([]byte, 2)
	_, err = s.Read(buf)
	require.NoError(t, err)

	got, err := s.Bytes()
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(got))

	c, err := s.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('c'), c)
}

func TestWriteTo(t *testing.T) {
	a := &testAlloc{blockSize: 4, maxSize: 4}
	s := New(a)
	defer s.Close()
	_, err := s.Write([]byte("hello world"))
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = s.Read(buf)
	require.NoError(t, err)

	var sink bytes.Buffer
	n, err := s.WriteTo(&sink)
	require.NoError(t, err)
	require.Equal(t, int64(8), n)
	require.Equal(t, "lo world", sink.String())
	require.Equal(t, s.Len(), s.Position())

	_, err = s.ReadByte()
	require.Equal(t, io.EOF, err)
}

func TestWriteToEmpty(t *testing.T) {
	s := New(&testAlloc{maxSize: 64 << 10})
	defer s.Close()
	var sink bytes.Buffer
	n, err := s.WriteTo(&sink)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestCloseReleasesEveryChunkOnce(t *testing.T) {
	a := &testAlloc{blockSize: 4, maxSize: 4}
	s := New(a)
	_, err := s.Write([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 3, len(a.requests))

	require.NoError(t, s.Close())
	require.Equal(t, 3, a.released)
	require.Equal(t, 0, a.doubleReleased)

	// second close is a no-op
	require.NoError(t, s.Close())
	require.Equal(t, 3, a.released)
	require.Equal(t, 0, a.doubleReleased)
}

func TestUseAfterClose(t *testing.T) {
	s := New(&testAlloc{maxSize: 64 << 10})
	_, err := s.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.False(t, s.Readable())
	require.False(t, s.Writable())
	require.False(t, s.Seekable())

	_, err = s.Write([]byte("y"))
	require.Equal(t, ErrClosed, err)
	require.Equal(t, ErrClosed, s.WriteByte('y'))
	_, err = s.Read(make([]byte, 1))
	require.Equal(t, ErrClosed, err)
	_, err = s.ReadByte()
	require.Equal(t, ErrClosed, err)
	require.Equal(t, ErrClosed, s.SetPosition(0))
	_, err = s.Seek(0, io.SeekStart)
	require.Equal(t, ErrClosed, err)
	require.Equal(t, ErrClosed, s.Truncate(0))
	_, err = s.Bytes()
	require.Equal(t, ErrClosed, err)
	_, err = s.WriteTo(&bytes.Buffer{})
	require.Equal(t, ErrClosed, err)
}

func TestTruncateUnsupported(t *testing.T) {
	s := New(&testAlloc{maxSize: 64 << 10})
	defer s.Close()
	_, err := s.Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, ErrTruncate, errors.Cause(s.Truncate(1)))
	require.Equal(t, int64(3), s.Len())
}

func TestAllocFailureKeepsWrittenBytes(t *testing.T) {
	a := &testAlloc{blockSize: 4, maxSize: 4, failAfter: 2}
	s := New(a)
	defer s.Close()

	n, err := s.Write(pattern(10))
	require.Error(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, int64(8), s.Len())

	got, err := s.Bytes()
	require.NoError(t, err)
	require.True(t, bytes.Equal(pattern(10)[:8], got))
}

func TestReadEmptyStream(t *testing.T) {
	s := New(&testAlloc{maxSize: 64 << 10})
	defer s.Close()
	_, err := s.Read(make([]byte, 8))
	require.Equal(t, io.EOF, err)
	_, err = s.ReadByte()
	require.Equal(t, io.EOF, err)
	n, err := s.Read(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestEmptyAppendMaterializesHead(t *testing.T) {
	a := &testAlloc{maxSize: 64 << 10}
	s := New(a)
	defer s.Close()

	n, err := s.Write(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, 1, len(a.requests))
	require.Equal(t, int64(0), s.Len())

	// the head chunk is reused, not re-allocated
	_, err = s.Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 1, len(a.requests))
	require.Equal(t, int64(3), s.Len())
}

func TestZeroLengthReadNeverEOF(t *testing.T) {
	s := New(&testAlloc{maxSize: 64 << 10})
	defer s.Close()

	// never-written stream
	n, err := s.Read([]byte{})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// fully-read stream
	_, err = s.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = io.ReadAll(s)
	require.NoError(t, err)
	n, err = s.Read([]byte{})
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, int64(3), s.Position())
}

func TestPooledRoundTrip(t *testing.T) {
	pool := alloc.NewPool(&alloc.Config{MaxBlockSize: 1 << 20})
	s := New(pool)
	data := pattern(5 << 20 / 2)
	_, err := s.Write(data)
	require.NoError(t, err)

	got, err := s.Bytes()
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
	require.NoError(t, s.Close())
	require.Equal(t, int64(0), pool.Stats().InUse)
}
