package planner

import (
	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/internal/offset"
)

// Optimized moves constant-size arrays as single blocks and lets the server
// read variable-size data in place.
type Optimized struct {
	Generic
}

func (*Optimized) Name() string { return "optimized" }

// PlanFixedArray copies arrays of fixed-size elements, including structs, in
// one block.
func (o *Optimized) PlanFixedArray(c *MarshalContext, m *idl.Member, bounds []idl.Bound) error {
	elem := c.Facts.Resolve(m.Type)
	if !fixedType(c.Facts, elem) {
		return o.Generic.PlanFixedArray(c, m, bounds)
	}
	n, err := elementCount(c, bounds)
	if err != nil {
		return err
	}
	size, ok := offset.SafeMulU32(n, c.Facts.SizeOf(elem))
	if !ok {
		return c.unsupported("array exceeds 4 GiB")
	}
	_, err = c.Emit(Slot{
		Kind:     SlotBlock,
		Size:     offset.Fixed(size),
		Type:     elem,
		Elements: n,
		Dims:     fixedDims(bounds),
	})
	return err
}

func (*Optimized) PlanVarArray(c *MarshalContext, m *idl.Member, bounds []idl.Bound) error {
	return planVarArray(c, m, bounds, true)
}

func (*Optimized) PlanString(c *MarshalContext, m *idl.Member) error {
	return planString(c, m, true)
}
