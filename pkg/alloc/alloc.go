// pkg/alloc/alloc.go

package alloc

import (
	"AveBuf/pkg/utils"
)

var logger = utils.GetLogger("avebuf")

// Block is one pooled memory region. The holder owns it exclusively
// until Release is called; after Release it must not be touched.
type Block interface {
	// Bytes returns a mutable view of the whole region. Its length
	// may exceed the size originally requested from the allocator,
	// callers should always use the returned length, not the request.
	Bytes() []byte

	// Len is the usable length of the region.
	Len() int

	// Release gives the region back to its allocator.
	Release()
}

// Allocator hands out blocks of at least the requested size and
// reclaims them on Release.
type Allocator interface {
	Allocate(size int) (Block, error)

	// MaxBlockSize is the largest contiguous region a single
	// Allocate call can return.
	MaxBlockSize() int
}
