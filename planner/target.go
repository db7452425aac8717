package planner

import (
	"fmt"

	"github.com/wippyai/ipcgen/abi"
	"github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/internal/offset"
	"github.com/wippyai/ipcgen/internal/path"
)

// Target lays out messages for a concrete kernel ABI: flexpages ahead of the
// opcode, indirect strings through descriptors, and short IPC through the
// ABI's registers.
type Target struct {
	Table     *abi.Table
	Registers []abi.Register
	Optimized
}

func (*Target) Name() string { return "target" }

// PlanFlexpage emits the base and descriptor words of the next flexpage, or
// of each element of a flexpage array.
func (*Target) PlanFlexpage(c *MarshalContext, m *idl.Member) error {
	if c.path.Len() > 1 {
		return c.unsupported("flexpage inside a constructed type")
	}
	if len(m.Dims) == 0 {
		return emitFlexpage(c, m)
	}
	if !m.HasFixedDims() {
		return c.unsupported("flexpage array without fixed dimensions")
	}
	for i := uint32(0); i < m.Elements(); i++ {
		if err := c.path.With(path.Index(i), func() error {
			return emitFlexpage(c, m)
		}); err != nil {
			return err
		}
	}
	return nil
}

func emitFlexpage(c *MarshalContext, m *idl.Member) error {
	if len(c.plan.Slots) != 2*c.flexpages {
		panic(errors.FlexpageOrdering(errors.PhasePlan, "flexpage "+m.Name+" planned after other data"))
	}
	for _, k := range []SlotKind{SlotFlexpageBase, SlotFlexpageDescriptor} {
		if _, err := c.Emit(Slot{
			Kind:  k,
			Size:  offset.Fixed(4),
			Type:  idl.Scalar(idl.KindU32),
			Index: c.flexpages,
		}); err != nil {
			return err
		}
	}
	c.flexpages++
	return nil
}

// AfterParameter closes the flexpage list with the zero delimiter once the
// operation's last flexpage is out, and restores the main offset after the
// last indirect string.
func (*Target) AfterParameter(c *MarshalContext, p *idl.Parameter) error {
	if !c.closed && c.opFlexpages > 0 && c.flexpages == c.opFlexpages {
		c.transition(StateFlexpageClosing)
		if _, err := c.Emit(Slot{Kind: SlotDelimiter, Size: offset.Fixed(FlexpageDelimiter)}); err != nil {
			return err
		}
		c.closed = true
		if err := c.emitHeader(); err != nil {
			return err
		}
		c.transition(StatePlanning)
	}

	if c.aligned && !c.restored && c.strings == c.opStrings {
		c.restored = true
		if _, err := c.Emit(Slot{Kind: SlotRestoreOffset, Size: offset.Fixed(0)}); err != nil {
			return err
		}
	}
	return nil
}

// PlanIndirectString appends a descriptor to the string table. The string
// itself travels out of band.
func (*Target) PlanIndirectString(c *MarshalContext, m *idl.Member) error {
	if c.unionDepth > 0 {
		return c.unsupported("indirect string inside a union")
	}
	if c.path.Len() > 1 {
		return c.Strategy.PlanString(c, m)
	}

	if c.strs == nil {
		if err := openStringTable(c); err != nil {
			return err
		}
	}

	t := c.Facts.Resolve(m.Type)
	limit, capPath, err := stringCap(c, m, t)
	if err != nil {
		return err
	}
	var sizePath []string
	if m.Attrs.HasSize() {
		if sizePath, err = c.Sibling(sizeAttrName(m.Attrs), m.Attrs.SizeFrom()); err != nil {
			return err
		}
	}

	idx := c.strings
	slots := make([]int, 0, 4)
	for _, k := range []SlotKind{SlotStringSize, SlotStringPointer, SlotStringCapacity, SlotStringBuffer} {
		i, err := c.Emit(Slot{
			Kind:   k,
			Region: RegionStrings,
			Size:   offset.Fixed(4),
			Type:   t,
			Index:  idx,
		})
		if err != nil {
			return err
		}
		slots = append(slots, i)
	}

	mode := ReceiveAllocate
	if m.Attrs.InitWithIn {
		mode = ReceiveInto
	}
	c.plan.Strings.Entries = append(c.plan.Strings.Entries, StringEntry{
		Path:        c.Path(),
		SizePath:    sizePath,
		CapPath:     capPath,
		Cap:         limit,
		Index:       idx,
		SizeSlot:    slots[0],
		PointerSlot: slots[1],
		Receive:     mode,
	})
	c.strings++
	warnClamp(c, limit, capPath)
	return nil
}

// openStringTable places the descriptor area after the word-rounded main
// region. When the main region is already dynamic the stub saves its offset,
// realigns to the end of the word region and restores after the last string.
func openStringTable(c *MarshalContext) error {
	name := c.Opts.Namer.OffsetVar(RegionStrings)
	if !c.main.IsDynamic() {
		base := offset.At(offset.RoundUp(c.main.Pos(), c.WordSize()))
		c.plan.Strings.Base = base
		c.strs = offset.NewAt(name, base)
		return nil
	}

	if _, err := c.Emit(Slot{Kind: SlotSaveOffset, Size: offset.Fixed(0)}); err != nil {
		return err
	}
	base := offset.Symbolic(name)
	c.plan.Strings.Base = base
	c.strs = offset.NewAt(name, base)
	c.aligned = true
	_, err := c.Emit(Slot{Kind: SlotRealign, Region: RegionStrings, Size: offset.Fixed(0)})
	return err
}

// Analyze grants short IPC when both messages are small, constant and free
// of flexpages and indirect strings.
func (t *Target) Analyze(opts *Options, req, rep *MarshalPlan) ShortIPC {
	if opts.OptLevel < 1 {
		return ShortIPC{Reason: "optimization level 0"}
	}
	budget := len(t.Registers)
	for _, p := range []*MarshalPlan{req, rep} {
		if reason := t.ineligible(p, budget); reason != "" {
			return ShortIPC{Reason: p.Flow.String() + ": " + reason}
		}
	}
	return ShortIPC{
		Request:  t.registerMap(req),
		Reply:    t.registerMap(rep),
		Eligible: true,
	}
}

func (t *Target) ineligible(p *MarshalPlan, budget int) string {
	switch {
	case p.StringCount() > 0:
		return "indirect strings"
	case p.Flexpages > 0:
		return "flexpages"
	case p.Dynamic:
		return "variable-size parameters"
	}
	if words := payloadWords(p, t.Table.WordSize); words > budget {
		return fmt.Sprintf("%d payload words exceed %d registers", words, budget)
	}
	return ""
}

func (t *Target) registerMap(p *MarshalPlan) RegisterMap {
	rm := RegisterMap{
		Tag:       t.Table.Tag,
		Registers: t.Registers,
		Values:    make(map[string]int),
		Words:     payloadWords(p, t.Table.WordSize),
	}
	start := payloadStart(p)
	for i := range p.Slots {
		s := &p.Slots[i]
		if s.Kind == SlotOpcode || s.Kind == SlotException || s.Kind.IsControl() {
			continue
		}
		name := s.Name()
		if _, ok := rm.Values[name]; ok {
			continue
		}
		rm.Values[name] = int((s.Offset.Const-start)/t.Table.WordSize) + 1
	}
	return rm
}

// payloadStart is the first byte after the header word.
func payloadStart(p *MarshalPlan) uint32 {
	if h := p.Header(); h != nil {
		return h.Offset.Const + h.Size.Bytes
	}
	return 0
}

// payloadWords counts the words after the header of a constant message.
func payloadWords(p *MarshalPlan, word uint32) int {
	start := payloadStart(p)
	var end uint32
	for i := range p.Slots {
		s := &p.Slots[i]
		if s.Region != RegionMain || !s.Offset.IsConstant() {
			continue
		}
		end = max(end, s.Offset.Const+s.Size.Bytes)
	}
	if end <= start {
		return 0
	}
	return int(offset.RoundUp(end-start, word) / word)
}
