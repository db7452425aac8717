package wire

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/ipcgen"
	"github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/internal/offset"
	"github.com/wippyai/ipcgen/internal/path"
	"github.com/wippyai/ipcgen/planner"
)

// Decoder unmarshals messages following a MarshalPlan on the receiving side.
// It is safe for concurrent use.
type Decoder struct {
	alloc Allocator
	cells cells
}

// NewDecoder returns a decoder. Nil facts use idl.StandardFacts with 4-byte
// words; a nil allocator allocates from the Go heap.
func NewDecoder(facts idl.TypeFacts, alloc Allocator) *Decoder {
	if facts == nil {
		facts = idl.NewStandardFacts(4)
	}
	if alloc == nil {
		alloc = ipcgen.HeapAllocator{}
	}
	return &Decoder{alloc: alloc, cells: cells{facts: facts, phase: errors.PhaseUnmarshal}}
}

// Decode reads the values of one message and its header word. known holds
// what the receiver has before the message arrives: the request values when
// decoding a reply, and the caller-owned buffers of init_with_in parameters.
// Buffers taken from the allocator are recorded in allocs, which may be nil
// when the plan never allocates.
func (d *Decoder) Decode(plan *planner.MarshalPlan, msg *Message, known Values, allocs *AllocationList) (Values, uint64, error) {
	st := &decoding{
		d:      d,
		plan:   plan,
		msg:    msg,
		known:  known,
		allocs: allocs,
		out:    make(Values),
		counts: make(map[string]uint64),
		word:   d.cells.facts.WordSize(),
	}
	if plan.Strings.Base.IsConstant() {
		st.strs = plan.Strings.Base.Const
	}
	if err := st.run(plan.Slots); err != nil {
		return nil, 0, errors.InOperation(err, plan.Operation)
	}
	return st.out, st.header, nil
}

type decoding struct {
	d      *Decoder
	plan   *planner.MarshalPlan
	msg    *Message
	known  Values
	out    Values
	allocs *AllocationList
	counts map[string]uint64
	sizes  map[int]uint64
	header uint64
	main   uint32
	strs   uint32
	saved  uint32
	word   uint32
}

// take returns n bytes at the cursor of s's region and advances it.
func (st *decoding) take(s *planner.Slot, n uint64) ([]byte, error) {
	cur := &st.main
	if s.Region == planner.RegionStrings {
		cur = &st.strs
	}
	if s.Offset.IsConstant() && s.Offset.Const != *cur {
		return nil, errors.InvalidData(errors.PhaseUnmarshal, s.Path,
			fmt.Sprintf("%s slot planned at %d, cursor at %d", s.Kind, s.Offset.Const, *cur))
	}
	end := uint64(*cur) + n
	if end > uint64(len(st.msg.Buf)) {
		return nil, errors.OutOfBounds(errors.PhaseUnmarshal, s.Path, int(end), len(st.msg.Buf))
	}
	b := st.msg.Buf[*cur:end:end]
	*cur = uint32(end)
	return b, nil
}

func (st *decoding) sibling(segs []string) (uint64, error) {
	v, ok := st.out.Lookup(segs)
	if !ok && st.known != nil {
		v, ok = st.known.Lookup(segs)
	}
	if !ok {
		return 0, errors.NotFound(errors.PhaseUnmarshal, "sizing value", path.Join(segs))
	}
	n, ok := uintOf(v)
	if !ok {
		return 0, errors.InvalidData(errors.PhaseUnmarshal, segs, "sizing value is not an unsigned integer")
	}
	return n, nil
}

func (st *decoding) run(slots []planner.Slot) error {
	for i := range slots {
		if err := st.slot(&slots[i]); err != nil {
			return err
		}
	}
	return nil
}

func (st *decoding) slot(s *planner.Slot) error {
	switch s.Kind {
	case planner.SlotOpcode, planner.SlotException:
		b, err := st.take(s, uint64(s.Size.Bytes))
		if err != nil {
			return err
		}
		st.header = getUint(b, s.Size.Bytes)

	case planner.SlotDelimiter:
		b, err := st.take(s, uint64(s.Size.Bytes))
		if err != nil {
			return err
		}
		for _, c := range b {
			if c != 0 {
				return errors.InvalidData(errors.PhaseUnmarshal, nil, "flexpage list is not terminated")
			}
		}

	case planner.SlotFlexpageBase, planner.SlotFlexpageDescriptor:
		b, err := st.take(s, 4)
		if err != nil {
			return err
		}
		var fp Flexpage
		if v, ok := st.out.Lookup(s.Path); ok {
			fp, _ = v.(Flexpage)
		}
		if s.Kind == planner.SlotFlexpageBase {
			fp.Base = order.Uint32(b)
		} else {
			fp.Fpage = order.Uint32(b)
		}
		st.out.Set(s.Path, fp)

	case planner.SlotScalar:
		b, err := st.take(s, uint64(s.Size.Bytes))
		if err != nil {
			return err
		}
		v, err := st.d.cells.get(b, s.Type, s.Path)
		if err != nil {
			return err
		}
		st.out.Set(s.Path, v)

	case planner.SlotSwitch:
		b, err := st.take(s, uint64(s.Size.Bytes))
		if err != nil {
			return err
		}
		st.out.Set(s.Path, &Union{Switch: getUint(b, s.Size.Bytes)})

	case planner.SlotRow, planner.SlotBlock:
		return st.fixed(s)

	case planner.SlotCount:
		b, err := st.take(s, uint64(s.Size.Bytes))
		if err != nil {
			return err
		}
		st.counts[path.Join(s.Path)] = getUint(b, s.Size.Bytes)

	case planner.SlotString:
		return st.str(s)

	case planner.SlotArray:
		return st.array(s)

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

func (st *decoding) fixed(s *planner.Slot) error {
	b, err := st.take(s, uint64(s.Size.Bytes))
	if err != nil {
		return err
	}
	if s.Dims == nil {
		v, err := st.d.cells.get(b, s.Type, s.Path)
		if err != nil {
			return err
		}
		st.out.Set(s.Path, v)
		return nil
	}

	total := uint32(1)
	for _, d := range s.Dims {
		total *= d
	}
	elems, err := st.d.cells.getElements(b, s.Type, s.Elements, s.Path)
	if err != nil {
		return err
	}
	prev, _ := st.out.Lookup(s.Path)
	switch e := elems.(type) {
	case []byte:
		arr, ok := prev.([]byte)
		if !ok {
			arr = make([]byte, total)
		}
		copy(arr[s.First:], e)
		st.out.Set(s.Path, arr)
	case []any:
		arr, ok := prev.([]any)
		if !ok {
			arr = make([]any, total)
		}
		copy(arr[s.First:], e)
		st.out.Set(s.Path, arr)
	}
	return nil
}

// length returns the transferred length of a string or array: from the
// count word when there was one, otherwise from the sizing sibling.
func (st *decoding) length(s *planner.Slot) (uint64, error) {
	if n, ok := st.counts[path.Join(s.Path)]; ok {
		return n, nil
	}
	if s.CountPath == nil {
		return 0, errors.InvalidData(errors.PhaseUnmarshal, s.Path, "no length word")
	}
	return st.sibling(s.CountPath)
}

func (st *decoding) str(s *planner.Slot) error {
	n, err := st.length(s)
	if err != nil {
		return err
	}
	if s.CountPath != nil {
		// the sibling counts characters, the wire also carries the terminator
		n++
		var runtime uint64
		if s.CapPath != nil {
			if runtime, err = st.sibling(s.CapPath); err != nil {
				return err
			}
		}
		n = clampLength(s.Path, n, s.Cap, s.CapPath != nil, runtime)
	}
	b, err := st.take(s, n)
	if err != nil {
		return err
	}
	keep := n
	if s.Cap > 0 && keep > uint64(s.Cap) {
		Logger().Warn("received string exceeds its cap",
			zap.String("path", path.Join(s.Path)),
			zap.Uint64("length", n),
			zap.Uint32("cap", s.Cap))
		keep = uint64(s.Cap)
	}
	if keep > 0 && b[keep-1] == 0 {
		keep--
	}
	v, err := st.receive(s.Path, b[:keep], s.Receive)
	if err != nil {
		return err
	}
	st.out.Set(s.Path, v)
	return nil
}

func (st *decoding) array(s *planner.Slot) error {
	units, err := st.length(s)
	if err != nil {
		return err
	}
	if s.CapPath != nil {
		c, err := st.sibling(s.CapPath)
		if err != nil {
			return err
		}
		if units > c {
			return errors.InvalidData(errors.PhaseUnmarshal, s.Path,
				fmt.Sprintf("%d elements exceed max_is %d", units, c))
		}
	}
	count := units * uint64(max(s.Elements, 1))
	size := count * uint64(st.d.cells.facts.SizeOf(s.Type))
	b, err := st.take(s, size)
	if err != nil {
		return err
	}

	if isByteKind(st.d.cells.facts.Resolve(s.Type)) {
		v, err := st.receive(s.Path, b, s.Receive)
		if err != nil {
			return err
		}
		st.out.Set(s.Path, v)
		return nil
	}
	elems, err := st.d.cells.getElements(b, s.Type, uint32(count), s.Path)
	if err != nil {
		return err
	}
	if s.Receive == planner.ReceiveInto {
		if dst, ok := st.knownValue(s.Path).([]any); ok {
			if len(dst) < len(elems.([]any)) {
				return errors.OutOfBounds(errors.PhaseUnmarshal, s.Path, len(elems.([]any)), len(dst))
			}
			elems = dst[:copy(dst, elems.([]any))]
		}
	}
	st.out.Set(s.Path, elems)
	return nil
}

func (st *decoding) knownValue(segs []string) any {
	if st.known == nil {
		return nil
	}
	v, _ := st.known.Lookup(segs)
	return v
}

// receive hands the bytes of a string or byte array to the receiver.
func (st *decoding) receive(segs []string, b []byte, mode planner.ReceiveMode) ([]byte, error) {
	switch mode {
	case planner.ReceiveAlias:
		return b, nil
	case planner.ReceiveAllocate:
		buf, err := st.d.alloc.Alloc(uint32(len(b)))
		if err != nil {
			return nil, errors.AllocationFailed(errors.PhaseUnmarshal, uint32(len(b)), err)
		}
		if len(buf) < len(b) {
			return nil, errors.AllocationFailed(errors.PhaseUnmarshal, uint32(len(b)), nil)
		}
		n := copy(buf, b)
		if st.allocs != nil {
			st.allocs.Add(buf, path.Join(segs))
		}
		return buf[:n], nil
	case planner.ReceiveInto:
		dst, ok := st.knownValue(segs).([]byte)
		if !ok {
			return nil, errors.New(errors.PhaseUnmarshal, errors.KindNotFound).
				Path(segs...).
				Detail("no caller buffer for init_with_in").
				Build()
		}
		if len(dst) < len(b) {
			return nil, errors.OutOfBounds(errors.PhaseUnmarshal, segs, len(b), len(dst))
		}
		return dst[:copy(dst, b)], nil
	default:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	}
}

func (st *decoding) union(s *planner.Slot) error {
	v, ok := st.out.Lookup(s.Path)
	u, isUnion := v.(*Union)
	if !ok || !isUnion {
		return errors.InvalidData(errors.PhaseUnmarshal, s.Path, "union without discriminant")
	}
	arm := selectCase(s.Cases, u.Switch)
	if arm == nil {
		return errors.InvalidData(errors.PhaseUnmarshal, s.Path, fmt.Sprintf("no arm for discriminant %d", u.Switch))
	}
	if s.Offset.IsConstant() && s.Offset.Const != st.main {
		return errors.InvalidData(errors.PhaseUnmarshal, s.Path,
			fmt.Sprintf("union planned at %d, cursor at %d", s.Offset.Const, st.main))
	}
	start := st.main
	if err := st.run(arm.Slots); err != nil {
		return err
	}
	if !s.Size.Dynamic {
		end := uint64(start) + uint64(s.Size.Bytes)
		if end > uint64(len(st.msg.Buf)) {
			return errors.OutOfBounds(errors.PhaseUnmarshal, s.Path, int(end), len(st.msg.Buf))
		}
		st.main = uint32(end)
	}
	return nil
}

// descriptor reads one word of an indirect string descriptor. The pointer
// word names the out-of-band part that holds the string.
func (st *decoding) descriptor(s *planner.Slot) error {
	if s.Index >= len(st.plan.Strings.Entries) {
		return errors.InvalidData(errors.PhaseUnmarshal, s.Path, "descriptor without string entry")
	}
	b, err := st.take(s, uint64(s.Size.Bytes))
	if err != nil {
		return err
	}
	word := getUint(b, s.Size.Bytes)
	e := &st.plan.Strings.Entries[s.Index]

	switch s.Kind {
	case planner.SlotStringSize:
		if st.sizes == nil {
			st.sizes = make(map[int]uint64)
		}
		st.sizes[s.Index] = word
	case planner.SlotStringPointer:
		if word >= uint64(len(st.msg.Strings)) {
			return errors.OutOfBounds(errors.PhaseUnmarshal, e.Path, int(word), len(st.msg.Strings))
		}
		part := st.msg.Strings[word]
		n := st.sizes[s.Index]
		if n > uint64(len(part)) {
			return errors.OutOfBounds(errors.PhaseUnmarshal, e.Path, int(n), len(part))
		}
		if e.Cap > 0 && n > uint64(e.Cap) {
			return errors.InvalidData(errors.PhaseUnmarshal, e.Path,
				fmt.Sprintf("string of %d bytes exceeds cap %d", n, e.Cap))
		}
		data := part[:n]
		if n > 0 && data[n-1] == 0 {
			data = data[:n-1]
		}
		v, err := st.receive(e.Path, data, e.Receive)
		if err != nil {
			return err
		}
		st.out.Set(e.Path, v)
	}
	return nil
}
