// pkg/alloc/offheap_linux.go

package alloc

import (
	"golang.org/x/sys/unix"
)

const offHeapSupported = true

func osAlloc(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
}

func osFree(data []byte) {
	if err := unix.Munmap(data); err != nil {
		logger.Errorf("munmap %d bytes: %s", len(data), err)
	}
}
