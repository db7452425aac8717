package wire

import (
	"sync"

	"github.com/wippyai/ipcgen"
)

type Allocator = ipcgen.Allocator

// Allocation is one receiver-owned buffer handed out during a decode.
type Allocation struct {
	Buf  []byte
	Path string
}

// AllocationList records the buffers a decode took from the Allocator so the
// stub can give them back when the call is torn down.
type AllocationList struct {
	allocations []Allocation
}

var allocationListPool = sync.Pool{
	New: func() any {
		return &AllocationList{allocations: make([]Allocation, 0, 8)}
	},
}

func NewAllocationList() *AllocationList {
	return allocationListPool.Get().(*AllocationList)
}

const maxPooledAllocationCapacity = 128

// Release returns to pool. Must call after Free(); list invalid after Release.
func (al *AllocationList) Release() {
	if cap(al.allocations) > maxPooledAllocationCapacity {
		return
	}
	al.Reset()
	allocationListPool.Put(al)
}

func (al *AllocationList) FreeAndRelease(allocator Allocator) {
	al.Free(allocator)
	al.Release()
}

func (al *AllocationList) Add(buf []byte, path string) {
	al.allocations = append(al.allocations, Allocation{Buf: buf, Path: path})
}

func (al *AllocationList) Free(allocator Allocator) {
	if allocator == nil {
		return
	}
	for _, a := range al.allocations {
		if a.Buf != nil {
			allocator.Free(a.Buf)
		}
	}
	al.Reset()
}

func (al *AllocationList) Reset() {
	al.allocations = al.allocations[:0]
}

func (al *AllocationList) Count() int {
	return len(al.allocations)
}

// Bytes is the total size of all recorded allocations.
func (al *AllocationList) Bytes() int {
	n := 0
	for _, a := range al.allocations {
		n += len(a.Buf)
	}
	return n
}
