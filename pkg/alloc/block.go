// pkg/alloc/block.go

package alloc

import (
	"runtime"
	"sync/atomic"
)

type block struct {
	refs    int32
	offHeap bool
	class   int
	pool    *Pool
	data    []byte
}

func newBlock(data []byte, pool *Pool, class int, offHeap bool) *block {
	b := &block{refs: 1, offHeap: offHeap, class: class, pool: pool, data: data}
	runtime.SetFinalizer(b, func(b *block) {
		refCnt := atomic.LoadInt32(&b.refs)
		if refCnt != 0 {
			logger.Errorf("refcount of block %p is not zero: %d", b, refCnt)
			if refCnt > 0 {
				b.Release()
			}
		}
	})
	return b
}

func (b *block) Bytes() []byte {
	return b.data
}

func (b *block) Len() int {
	return len(b.data)
}

// Acquire increases the refcount
func (b *block) Acquire() {
	atomic.AddInt32(&b.refs, 1)
}

// Release decreases the refcount; the last holder hands the region
// back to the pool.
func (b *block) Release() {
	if atomic.AddInt32(&b.refs, -1) == 0 {
		b.pool.reclaim(b)
	}
}

func (b *block) free() {
	if b.offHeap {
		osFree(b.data)
	}
	b.data = nil
	runtime.SetFinalizer(b, nil)
}
