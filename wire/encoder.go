package wire

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/internal/offset"
	"github.com/wippyai/ipcgen/internal/path"
	"github.com/wippyai/ipcgen/planner"
)

// Encoder marshals values into messages following a MarshalPlan. It is safe
// for concurrent use.
type Encoder struct {
	cells cells
}

// NewEncoder returns an encoder sizing values with facts. Nil facts use
// idl.StandardFacts with 4-byte words.
func NewEncoder(facts idl.TypeFacts) *Encoder {
	if facts == nil {
		facts = idl.NewStandardFacts(4)
	}
	return &Encoder{cells: cells{facts: facts, phase: errors.PhaseMarshal}}
}

// Encode marshals values into a new message. header is the opcode of a
// request or the exception word of a reply. values must also hold the
// siblings that size transmitted arrays and strings.
func (e *Encoder) Encode(plan *planner.MarshalPlan, header uint64, values Values) (*Message, error) {
	buf := getBuf()
	st := &encoding{
		cells:  &e.cells,
		plan:   plan,
		header: header,
		values: values,
		buf:    *buf,
		counts: make(map[string]uint64),
		word:   e.cells.facts.WordSize(),
		msg:    &Message{pooled: buf},
	}
	if plan.Strings.Base.IsConstant() {
		st.strs = plan.Strings.Base.Const
	}
	if err := st.run(plan.Slots); err != nil {
		*buf = st.buf
		putBuf(buf)
		return nil, errors.InOperation(err, plan.Operation)
	}
	st.grow(offset.RoundUp(max(st.main, st.strs), st.word))
	st.msg.Buf = st.buf
	return st.msg, nil
}

type encoding struct {
	cells  *cells
	plan   *planner.MarshalPlan
	values Values
	counts map[string]uint64
	msg    *Message
	buf    []byte
	parts  []uint32
	header uint64
	main   uint32
	strs   uint32
	saved  uint32
	word   uint32
}

// grow extends the buffer with zeros up to n bytes.
func (st *encoding) grow(n uint32) {
	if need := int(n) - len(st.buf); need > 0 {
		st.buf = append(st.buf, make([]byte, need)...)
	}
}

// reserve returns n bytes at the cursor of s's region and advances it.
func (st *encoding) reserve(s *planner.Slot, n uint32) ([]byte, error) {
	cur := &st.main
	if s.Region == planner.RegionStrings {
		cur = &st.strs
	}
	if s.Offset.IsConstant() && s.Offset.Const != *cur {
		return nil, errors.InvalidData(errors.PhaseMarshal, s.Path,
			fmt.Sprintf("%s slot planned at %d, cursor at %d", s.Kind, s.Offset.Const, *cur))
	}
	end, ok := offset.SafeAddU32(*cur, n)
	if !ok {
		return nil, errors.Overflow(errors.PhaseMarshal, s.Path, n, "message size")
	}
	st.grow(end)
	b := st.buf[*cur:end]
	*cur = end
	return b, nil
}

func (st *encoding) value(s *planner.Slot) (any, error) {
	v, ok := st.values.Lookup(s.Path)
	if !ok {
		return nil, errors.New(errors.PhaseMarshal, errors.KindNotFound).
			Path(s.Path...).
			Detail("no value for %s", s.Name()).
			Build()
	}
	return v, nil
}

func (st *encoding) sibling(segs []string) (uint64, error) {
	v, ok := st.values.Lookup(segs)
	if !ok {
		return 0, errors.NotFound(errors.PhaseMarshal, "sizing value", path.Join(segs))
	}
	n, ok := uintOf(v)
	if !ok {
		return 0, errors.InvalidData(errors.PhaseMarshal, segs, "sizing value is not an unsigned integer")
	}
	return n, nil
}

func (st *encoding) run(slots []planner.Slot) error {
	for i := range slots {
		s := &slots[i]
		if s.Kind == planner.SlotCount {
			if i+1 >= len(slots) {
				return errors.InvalidData(errors.PhaseMarshal, s.Path, "count word without data")
			}
			if err := st.count(s, &slots[i+1]); err != nil {
				return err
			}
			continue
		}
		if err := st.slot(s); err != nil {
			return err
		}
	}
	return nil
}

func (st *encoding) slot(s *planner.Slot) error {
	switch s.Kind {
	case planner.SlotOpcode, planner.SlotException:
		b, err := st.reserve(s, s.Size.Bytes)
		if err != nil {
			return err
		}
		if s.Size.Bytes < 8 && st.header>>(8*s.Size.Bytes) != 0 {
			return errors.Overflow(errors.PhaseMarshal, nil, st.header, s.Kind.String())
		}
		putUint(b, s.Size.Bytes, st.header)
		return nil

	case planner.SlotDelimiter:
		_, err := st.reserve(s, s.Size.Bytes)
		return err

	case planner.SlotFlexpageBase, planner.SlotFlexpageDescriptor:
		v, err := st.value(s)
		if err != nil {
			return err
		}
		fp, ok := v.(Flexpage)
		if !ok {
			return st.cells.mismatch(s.Path, idl.NewFlexpage(), v)
		}
		b, err := st.reserve(s, 4)
		if err != nil {
			return err
		}
		word := fp.Base
		if s.Kind == planner.SlotFlexpageDescriptor {
			word = fp.Fpage
		}
		order.PutUint32(b, word)
		return nil

	case planner.SlotScalar, planner.SlotSwitch:
		v, err := st.value(s)
		if err != nil {
			return err
		}
		if s.Kind == planner.SlotSwitch {
			u, ok := unionOf(v)
			if !ok {
				return st.cells.mismatch(s.Path, s.Type, v)
			}
			v = u.Switch
		}
		b, err := st.reserve(s, s.Size.Bytes)
		if err != nil {
			return err
		}
		return st.cells.put(b, s.Type, v, s.Path)

	case planner.SlotRow, planner.SlotBlock:
		v, err := st.value(s)
		if err != nil {
			return err
		}
		b, err := st.reserve(s, s.Size.Bytes)
		if err != nil {
			return err
		}
		if s.Dims == nil {
			return st.cells.put(b, s.Type, v, s.Path)
		}
		return st.cells.putElements(b, s.Type, v, s.First, s.Elements, s.Path)

	case planner.SlotString, planner.SlotArray:
		return st.data(s)

	case planner.SlotUnion:
		return st.union(s)

	case planner.SlotStringSize, planner.SlotStringPointer, planner.SlotStringCapacity, planner.SlotStringBuffer:
		return st.descriptor(s)

	case planner.SlotSaveOffset:
		st.saved = st.main
	case planner.SlotRealign:
		st.strs = offset.RoundUp(st.main, st.word)
	case planner.SlotRestoreOffset:
		st.main = st.saved
	}
	return nil
}

// count computes what data transfers and writes its length word.
func (st *encoding) count(s, data *planner.Slot) error {
	n, err := st.units(data)
	if err != nil {
		return err
	}
	b, err := st.reserve(s, s.Size.Bytes)
	if err != nil {
		return err
	}
	putUint(b, s.Size.Bytes, n)
	return nil
}

// units returns the transferred length of a string (bytes including the
// terminator) or a variable array (counted units), after clamping.
func (st *encoding) units(s *planner.Slot) (uint64, error) {
	key := path.Join(s.Path)
	if n, ok := st.counts[key]; ok {
		return n, nil
	}
	v, err := st.value(s)
	if err != nil {
		return 0, err
	}

	var n uint64
	if s.Kind == planner.SlotString {
		raw, ok := bytesOf(v)
		if !ok {
			return 0, st.cells.mismatch(s.Path, s.Type, v)
		}
		if n, err = st.stringLength(s.Path, raw, s.CountPath, s.CapPath, s.Cap); err != nil {
			return 0, err
		}
	} else {
		if n, err = st.arrayUnits(s, v); err != nil {
			return 0, err
		}
	}
	st.counts[key] = n
	return n, nil
}

// stringLength returns the bytes sent for raw, terminator included.
func (st *encoding) stringLength(segs []string, raw []byte, countPath, capPath []string, limit uint32) (uint64, error) {
	n := uint64(len(raw))
	if countPath != nil {
		k, err := st.sibling(countPath)
		if err != nil {
			return 0, err
		}
		if k > n {
			return 0, errors.OutOfBounds(errors.PhaseMarshal, segs, int(k), len(raw))
		}
		n = k
	}
	n++
	var runtime uint64
	if capPath != nil {
		c, err := st.sibling(capPath)
		if err != nil {
			return 0, err
		}
		runtime = c
	}
	return clampLength(segs, n, limit, capPath != nil, runtime), nil
}

func (st *encoding) arrayUnits(s *planner.Slot, v any) (uint64, error) {
	per := uint64(max(s.Elements, 1))
	var have uint64
	if raw, ok := bytesOf(v); ok {
		have = uint64(len(raw))
	} else if seq, ok := sequence(v); ok {
		have = uint64(seq.Len())
	} else {
		return 0, st.cells.mismatch(s.Path, s.Type, v)
	}

	var units uint64
	if s.CountPath != nil {
		k, err := st.sibling(s.CountPath)
		if err != nil {
			return 0, err
		}
		if k*per > have {
			return 0, errors.OutOfBounds(errors.PhaseMarshal, s.Path, int(k*per), int(have))
		}
		units = k
	} else {
		if have%per != 0 {
			return 0, errors.InvalidData(errors.PhaseMarshal, s.Path,
				fmt.Sprintf("%d elements do not fill rows of %d", have, per))
		}
		units = have / per
	}
	if s.CapPath != nil {
		c, err := st.sibling(s.CapPath)
		if err != nil {
			return 0, err
		}
		if units > c {
			Logger().Warn("element count clamped",
				zap.String("path", path.Join(s.Path)),
				zap.Uint64("count", units),
				zap.Uint64("max", c))
			units = c
		}
	}
	return units, nil
}

// clampLength applies the static and runtime caps to a string length.
func clampLength(segs []string, n uint64, limit uint32, hasRuntime bool, runtime uint64) uint64 {
	capped := n
	if limit > 0 && capped > uint64(limit) {
		capped = uint64(limit)
	}
	if hasRuntime && capped > runtime {
		capped = runtime
	}
	if capped != n {
		Logger().Warn("string clamped",
			zap.String("path", path.Join(segs)),
			zap.Uint64("length", n),
			zap.Uint64("cap", capped))
	}
	return capped
}

// data writes the bytes of a string or variable array.
func (st *encoding) data(s *planner.Slot) error {
	n, err := st.units(s)
	if err != nil {
		return err
	}
	v, _ := st.value(s)

	if s.Kind == planner.SlotString {
		raw, _ := bytesOf(v)
		b, err := st.reserve(s, uint32(n))
		if err != nil {
			return err
		}
		if n > 0 {
			copy(b, raw[:n-1])
			b[n-1] = 0
		}
		return nil
	}

	count, ok := offset.SafeMulU32(uint32(n), max(s.Elements, 1))
	if !ok || n > uint64(^uint32(0)) {
		return errors.Overflow(errors.PhaseMarshal, s.Path, n, "element count")
	}
	size, ok := offset.SafeMulU32(count, st.cells.facts.SizeOf(s.Type))
	if !ok {
		return errors.Overflow(errors.PhaseMarshal, s.Path, count, "array size")
	}
	b, err := st.reserve(s, size)
	if err != nil {
		return err
	}
	return st.cells.putElements(b, s.Type, v, 0, count, s.Path)
}

func (st *encoding) union(s *planner.Slot) error {
	v, err := st.value(s)
	if err != nil {
		return err
	}
	u, ok := unionOf(v)
	if !ok {
		return st.cells.mismatch(s.Path, s.Type, v)
	}
	arm := selectCase(s.Cases, u.Switch)
	if arm == nil {
		return errors.InvalidData(errors.PhaseMarshal, s.Path, fmt.Sprintf("no arm for discriminant %d", u.Switch))
	}
	if s.Offset.IsConstant() && s.Offset.Const != st.main {
		return errors.InvalidData(errors.PhaseMarshal, s.Path,
			fmt.Sprintf("union planned at %d, cursor at %d", s.Offset.Const, st.main))
	}
	start := st.main
	if err := st.run(arm.Slots); err != nil {
		return err
	}
	if !s.Size.Dynamic {
		st.main = start + s.Size.Bytes
		st.grow(st.main)
	}
	return nil
}

// descriptor fills one word of an indirect string descriptor and queues the
// string as an out-of-band part.
func (st *encoding) descriptor(s *planner.Slot) error {
	if s.Index >= len(st.plan.Strings.Entries) {
		return errors.InvalidData(errors.PhaseMarshal, s.Path, "descriptor without string entry")
	}
	e := &st.plan.Strings.Entries[s.Index]
	var word uint64
	switch s.Kind {
	case planner.SlotStringSize:
		v, err := st.value(s)
		if err != nil {
			return err
		}
		raw, ok := bytesOf(v)
		if !ok {
			return st.cells.mismatch(s.Path, s.Type, v)
		}
		n, err := st.stringLength(e.Path, raw, e.SizePath, e.CapPath, e.Cap)
		if err != nil {
			return err
		}
		part := make([]byte, n)
		if n > 0 {
			copy(part, raw[:n-1])
		}
		st.parts = append(st.parts, uint32(len(st.msg.Strings)))
		st.msg.Strings = append(st.msg.Strings, part)
		word = n
	case planner.SlotStringPointer:
		word = uint64(st.parts[s.Index])
	case planner.SlotStringCapacity:
		word = uint64(len(st.msg.Strings[st.parts[s.Index]]))
		if e.Cap > 0 {
			word = uint64(e.Cap)
		}
	}
	b, err := st.reserve(s, s.Size.Bytes)
	if err != nil {
		return err
	}
	putUint(b, s.Size.Bytes, word)
	return nil
}

func selectCase(cases []planner.UnionCase, v uint64) *planner.UnionCase {
	var def *planner.UnionCase
	for i := range cases {
		for _, l := range cases[i].Labels {
			if l == v {
				return &cases[i]
			}
		}
		if cases[i].Default {
			def = &cases[i]
		}
	}
	return def
}
