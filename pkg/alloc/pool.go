// pkg/alloc/pool.go

package alloc

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

const (
	minClassSize         = 1 << 10
	defaultMaxBlockSize  = 16 << 20
	defaultClassCapacity = 64
)

type Config struct {
	// MaxBlockSize caps a single allocation; default 16 MiB.
	MaxBlockSize int
	// ClassCapacity is the number of free blocks retained per size class.
	ClassCapacity int
	// OffHeap backs blocks with anonymous mappings instead of the Go heap.
	OffHeap bool
}

// Stats counts pool traffic since creation.
type Stats struct {
	Hits   int64
	Misses int64
	InUse  int64
	// Retained is the number of bytes currently held in free lists.
	Retained int64
}

// Pool is a size-classed block allocator. A block returned from a class
// may be longer than requested; callers see the class size via Block.Len.
type Pool struct {
	maxSize int
	offHeap bool
	classes []int
	free    []chan *block

	hits     atomic.Int64
	misses   atomic.Int64
	inUse    atomic.Int64
	retained atomic.Int64
}

func NewPool(config *Config) *Pool {
	if config == nil {
		config = &Config{}
	}
	maxSize := config.MaxBlockSize
	if maxSize <= 0 {
		maxSize = defaultMaxBlockSize
	}
	capacity := config.ClassCapacity
	if capacity <= 0 {
		capacity = defaultClassCapacity
	}
	offHeap := config.OffHeap
	if offHeap && !offHeapSupported {
		logger.Warnf("off-heap blocks are not supported on this platform, using the heap")
		offHeap = false
	}

	var classes []int
	for size := minClassSize; size < maxSize; size <<= 1 {
		classes = append(classes, size)
	}
	classes = append(classes, maxSize)

	free := make([]chan *block, len(classes))
	for i := range free {
		free[i] = make(chan *block, capacity)
	}
	return &Pool{
		maxSize: maxSize,
		offHeap: offHeap,
		classes: classes,
		free:    free,
	}
}

func (p *Pool) MaxBlockSize() int {
	return p.maxSize
}

func (p *Pool) Allocate(size int) (Block, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid block size %d", size)
	}
	if size > p.maxSize {
		return nil, errors.Errorf("block size %d exceeds limit %d", size, p.maxSize)
	}
	class := p.classOf(size)

	select {
	case b := <-p.free[class]:
		p.hits.Add(1)
		p.inUse.Add(1)
		p.retained.Add(-int64(len(b.data)))
		atomic.StoreInt32(&b.refs, 1)
		return b, nil
	default:
	}

	p.misses.Add(1)
	data, err := p.alloc(p.classes[class])
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes", p.classes[class])
	}
	p.inUse.Add(1)
	return newBlock(data, p, class, p.offHeap), nil
}

// classOf returns the first class large enough for size.
func (p *Pool) classOf(size int) int {
	for i, s := range p.classes {
		if size <= s {
			return i
		}
	}
	return len(p.classes) - 1
}

func (p *Pool) alloc(size int) ([]byte, error) {
	if p.offHeap {
		return osAlloc(size)
	}
	return make([]byte, size), nil
}

// reclaim is called by the last Release of a block.
func (p *Pool) reclaim(b *block) {
	p.inUse.Add(-1)
	select {
	case p.free[b.class] <- b:
		p.retained.Add(int64(len(b.data)))
	default:
		b.free()
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Hits:     p.hits.Load(),
		Misses:   p.misses.Load(),
		InUse:    p.inUse.Load(),
		Retained: p.retained.Load(),
	}
}

// Clear drops every retained free block. Outstanding blocks are untouched.
func (p *Pool) Clear() {
	for _, ch := range p.free {
		drained := false
		for !drained {
			select {
			case b := <-ch:
				p.retained.Add(-int64(len(b.data)))
				b.free()
			default:
				drained = true
			}
		}
	}
}
