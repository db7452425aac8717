package ipcgen

// Allocator hands out buffers a receiver must own after a message is gone.
// Generated stubs name it through planner.Options.Allocator.
type Allocator interface {
	Alloc(size uint32) ([]byte, error)
	Free(buf []byte)
}

// Buffer is the message area shared by sender and receiver: the main region
// followed by the indirect string descriptors.
type Buffer interface {
	Bytes() []byte
	Len() int
}

// HeapAllocator allocates from the Go heap. Free is a no-op.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(size uint32) ([]byte, error) {
	return make([]byte, size), nil
}

func (HeapAllocator) Free([]byte) {}
