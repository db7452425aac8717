package wire

import (
	"errors"
	"testing"

	ipcerrors "github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/planner"
)

func TestAllocationList(t *testing.T) {
	al := NewAllocationList()
	al.Add(make([]byte, 4), "a")
	al.Add(make([]byte, 6), "b")
	al.Add(nil, "empty")
	if al.Count() != 3 || al.Bytes() != 10 {
		t.Fatalf("got %d allocations of %d bytes, want 3 of 10", al.Count(), al.Bytes())
	}

	alloc := &countingAllocator{}
	al.Free(alloc)
	if alloc.frees != 2 {
		t.Errorf("frees: got %d, want 2", alloc.frees)
	}
	if al.Count() != 0 {
		t.Errorf("count after free: got %d, want 0", al.Count())
	}
	al.Free(nil)
	al.Release()
}

type failingAllocator struct{}

func (failingAllocator) Alloc(uint32) ([]byte, error) { return nil, errors.New("exhausted") }
func (failingAllocator) Free([]byte)                  {}

func TestDecode_AllocatorError(t *testing.T) {
	st := &decoding{d: NewDecoder(nil, failingAllocator{})}
	_, err := st.receive([]string{"s"}, []byte("abc"), planner.ReceiveAllocate)
	if !errors.Is(err, &ipcerrors.Error{Kind: ipcerrors.KindAllocation}) {
		t.Errorf("got %v, want allocation failure", err)
	}
}
