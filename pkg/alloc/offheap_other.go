// pkg/alloc/offheap_other.go

//go:build !linux

package alloc

const offHeapSupported = false

func osAlloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func osFree(data []byte) {}
