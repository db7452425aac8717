package planner

import (
	"go.uber.org/zap"

	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/internal/offset"
	"github.com/wippyai/ipcgen/internal/path"
)

// lengthWord is the size of a leading string length or element count.
const lengthWord = 4

// Generic copies every value into its own slot in declaration order. It
// knows nothing about flexpages or registers.
type Generic struct{}

func (*Generic) Name() string { return "generic" }

func (*Generic) PlanScalar(c *MarshalContext, m *idl.Member, t *idl.Type) error {
	_, err := c.Emit(Slot{
		Kind:     SlotScalar,
		Size:     offset.Fixed(c.Facts.SizeOf(t)),
		Type:     t,
		Elements: 1,
	})
	return err
}

// PlanFixedArray emits one slot per innermost row. Struct, union and string
// elements are planned one by one.
func (*Generic) PlanFixedArray(c *MarshalContext, m *idl.Member, bounds []idl.Bound) error {
	elem := c.Facts.Resolve(m.Type)
	n, err := elementCount(c, bounds)
	if err != nil {
		return err
	}

	if (elem.Kind.IsConstructed() && !elem.Bitfield) || elem.Kind == idl.KindString {
		for i := uint32(0); i < n; i++ {
			if err := c.PlanElement(m, i); err != nil {
				return err
			}
		}
		return nil
	}

	inner := bounds[len(bounds)-1].Value
	rowBytes, ok := offset.SafeMulU32(inner, c.Facts.SizeOf(elem))
	if !ok {
		return c.unsupported("array row exceeds 4 GiB")
	}
	for first := uint32(0); first < n; first += inner {
		if _, err := c.Emit(Slot{
			Kind:     SlotRow,
			Size:     offset.Fixed(rowBytes),
			Type:     elem,
			Elements: inner,
			First:    first,
			Dims:     fixedDims(bounds),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (*Generic) PlanVarArray(c *MarshalContext, m *idl.Member, bounds []idl.Bound) error {
	return planVarArray(c, m, bounds, false)
}

func (*Generic) PlanString(c *MarshalContext, m *idl.Member) error {
	return planString(c, m, false)
}

// PlanStruct recurses into members in declaration order. Bitfield structs
// are one block.
func (*Generic) PlanStruct(c *MarshalContext, m *idl.Member, t *idl.Type) error {
	if t.Bitfield {
		_, err := c.Emit(Slot{
			Kind:     SlotBlock,
			Size:     offset.Fixed(c.Facts.SizeOf(t)),
			Type:     t,
			Elements: 1,
		})
		return err
	}
	return c.WithMembers(t.Members, func() error {
		for i, mem := range t.Members {
			c.Enter(i)
			if err := c.PlanMember(mem); err != nil {
				return err
			}
		}
		return nil
	})
}

// PlanUnion emits the discriminant, then plans every arm from the same start
// offset. The union occupies its largest arm; a runtime-sized arm makes the
// rest of the region dynamic.
func (*Generic) PlanUnion(c *MarshalContext, m *idl.Member, t *idl.Type) error {
	sw := c.Facts.Resolve(t.Switch)
	if sw == nil || !sw.Kind.IsInteger() {
		return c.unsupported("union discriminant must be an integer")
	}
	if _, err := c.Emit(Slot{
		Kind:     SlotSwitch,
		Size:     offset.Fixed(c.Facts.SizeOf(sw)),
		Type:     sw,
		Elements: 1,
	}); err != nil {
		return err
	}

	start := c.Fork()
	c.unionDepth++
	defer func() { c.unionDepth-- }()

	var (
		cases   = make([]UnionCase, 0, len(t.Cases))
		largest uint32
		dynamic bool
	)
	for _, cs := range t.Cases {
		uc := UnionCase{Labels: cs.Labels, Default: cs.Default, Size: offset.Fixed(0)}
		if cs.Member != nil {
			tr := start.Fork()
			if err := c.Within(tr, &uc.Slots, func() error {
				return c.PlanMember(cs.Member)
			}); err != nil {
				return err
			}
			if hasDynamic(uc.Slots) {
				uc.Size = offset.Runtime(c.Temp())
				dynamic = true
			} else {
				size := tr.Fixed() - start.Fixed()
				uc.Size = offset.Fixed(size)
				largest = max(largest, size)
			}
		}
		cases = append(cases, uc)
	}

	size := offset.Fixed(largest)
	if dynamic {
		size = offset.Runtime(c.Temp())
	}
	_, err := c.Emit(Slot{Kind: SlotUnion, Size: size, Type: t, Cases: cases, Elements: 1})
	return err
}

func (*Generic) PlanFlexpage(c *MarshalContext, m *idl.Member) error {
	return c.unsupported("flexpages need the target strategy")
}

// PlanIndirectString sends the string inline.
func (*Generic) PlanIndirectString(c *MarshalContext, m *idl.Member) error {
	return c.Strategy.PlanString(c, m)
}

func (*Generic) AfterParameter(c *MarshalContext, p *idl.Parameter) error {
	return nil
}

func (*Generic) Analyze(opts *Options, req, rep *MarshalPlan) ShortIPC {
	return ShortIPC{Reason: "strategy " + req.Strategy + " does not use registers"}
}

func fixedDims(bounds []idl.Bound) []uint32 {
	dims := make([]uint32, 0, len(bounds))
	for _, b := range bounds {
		if b.Fixed {
			dims = append(dims, b.Value)
		}
	}
	return dims
}

func elementCount(c *MarshalContext, bounds []idl.Bound) (uint32, error) {
	n := uint32(1)
	for _, b := range bounds {
		if !b.Fixed {
			continue
		}
		var ok bool
		if n, ok = offset.SafeMulU32(n, b.Value); !ok {
			return 0, c.unsupported("array exceeds 4 GiB elements")
		}
	}
	return n, nil
}

// planVarArray lays out an array with one open dimension: an optional count
// word, then the elements.
func planVarArray(c *MarshalContext, m *idl.Member, bounds []idl.Bound, alias bool) error {
	elem := c.Facts.Resolve(m.Type)
	if !fixedType(c.Facts, elem) || elem.Kind == idl.KindFlexpage {
		return c.unsupported("variable array of variable-size elements")
	}

	var open *idl.Bound
	anyFixed := false
	for i := range bounds {
		if bounds[i].Fixed {
			anyFixed = true
			continue
		}
		if open != nil {
			return c.unsupported("more than one open dimension")
		}
		open = &bounds[i]
	}
	per, err := elementCount(c, bounds)
	if err != nil {
		return err
	}

	var countPath []string
	if open.Var != "" {
		if countPath, err = c.Sibling(sizeAttrName(m.Attrs), open.Var); err != nil {
			return err
		}
	} else if _, err := c.Emit(Slot{
		Kind: SlotCount,
		Size: offset.Fixed(lengthWord),
		Type: idl.Scalar(idl.KindU32),
	}); err != nil {
		return err
	}

	var capPath []string
	if m.Attrs.MaxIs != "" {
		if capPath, err = c.Sibling("max_is", m.Attrs.MaxIs); err != nil {
			return err
		}
		c.Warn("element count is clamped to max_is", zap.String("max_is", path.Join(capPath)))
	}

	_, err = c.Emit(Slot{
		Kind:      SlotArray,
		Size:      offset.Runtime(c.Temp()),
		Type:      elem,
		Elements:  per,
		CountPath: countPath,
		CapPath:   capPath,
		Receive:   c.Receive(m, alias && !anyFixed),
	})
	return err
}

// planString lays out an inline string: a length word unless a sizing
// attribute supplies the length, then the bytes including the terminator.
func planString(c *MarshalContext, m *idl.Member, alias bool) error {
	t := c.Facts.Resolve(m.Type)
	limit, capPath, err := stringCap(c, m, t)
	if err != nil {
		return err
	}

	var countPath []string
	if m.Attrs.HasSize() {
		if countPath, err = c.Sibling(sizeAttrName(m.Attrs), m.Attrs.SizeFrom()); err != nil {
			return err
		}
	} else if _, err := c.Emit(Slot{
		Kind: SlotCount,
		Size: offset.Fixed(lengthWord),
		Type: idl.Scalar(idl.KindU32),
	}); err != nil {
		return err
	}

	mode := ReceiveCopy
	if !m.HasFixedDims() {
		mode = c.Receive(m, alias)
	}
	if _, err := c.Emit(Slot{
		Kind:      SlotString,
		Size:      offset.Runtime(c.Temp()),
		Type:      t,
		Elements:  1,
		CountPath: countPath,
		CapPath:   capPath,
		Cap:       limit,
		Receive:   mode,
	}); err != nil {
		return err
	}
	warnClamp(c, limit, capPath)
	return nil
}

// stringCap returns the static and runtime length caps of a string: the
// type's maximum when a sizing attribute is present, the declared array
// bound, and the max_is sibling.
func stringCap(c *MarshalContext, m *idl.Member, t *idl.Type) (uint32, []string, error) {
	var limit uint32
	if m.Attrs.HasSize() && t.Kind == idl.KindString {
		limit = c.Facts.MaxSizeOf(t)
	}
	if m.HasFixedDims() {
		if n := m.Elements(); limit == 0 || n < limit {
			limit = n
		}
	}
	if m.Attrs.MaxIs == "" {
		return limit, nil, nil
	}
	capPath, err := c.Sibling("max_is", m.Attrs.MaxIs)
	return limit, capPath, err
}

func warnClamp(c *MarshalContext, limit uint32, capPath []string) {
	switch {
	case capPath != nil:
		c.Warn("string length is clamped to max_is", zap.String("max_is", path.Join(capPath)), zap.Uint32("cap", limit))
	case limit > 0:
		c.Warn("string length is clamped", zap.Uint32("cap", limit))
	}
}

func hasDynamic(slots []Slot) bool {
	for i := range slots {
		if slots[i].Size.Dynamic {
			return true
		}
	}
	return false
}
