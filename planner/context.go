package planner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/internal/offset"
	"github.com/wippyai/ipcgen/internal/path"
)

// scope is the set of members a sizing attribute may name.
type scope struct {
	members []*idl.Member
	// dirs and done are set for the parameter scope only. done marks
	// parameters already planned in this flow.
	dirs    []idl.Direction
	done    []bool
	prefix  []string
	current int
}

// MarshalContext carries the state of planning one (operation, flow). It is
// created per pass and must not be shared between goroutines.
type MarshalContext struct {
	Op       *idl.Operation
	Facts    idl.TypeFacts
	Strategy Strategy
	Account  *FlexpageAccount
	Opts     *Options

	plan    *MarshalPlan
	main    *offset.Tracker
	strs    *offset.Tracker
	tracker *offset.Tracker
	sink    *[]Slot
	scopes  []scope
	path    path.Stack

	flexpages   int
	opFlexpages int
	strings     int
	opStrings   int
	temps       int
	unionDepth  int

	Flow     Flow
	state    State
	closed   bool
	aligned  bool
	restored bool
}

func newContext(p *Planner, op *idl.Operation, flow Flow, acc *FlexpageAccount) *MarshalContext {
	c := &MarshalContext{
		Op:       op,
		Flow:     flow,
		Facts:    p.facts,
		Strategy: p.strategy,
		Account:  acc,
		Opts:     &p.opts,
		plan: &MarshalPlan{
			Operation: op.Name,
			Flow:      flow,
			Receiver:  flow.Receiver(),
			Strategy:  p.strategy.Name(),
		},
		main: offset.New(p.opts.Namer.OffsetVar(RegionMain)),
	}
	c.tracker = c.main
	c.sink = &c.plan.Slots

	top := scope{}
	for _, prm := range op.Params {
		top.members = append(top.members, &prm.Member)
		top.dirs = append(top.dirs, prm.Dir)
	}
	top.done = make([]bool, len(op.Params))
	c.scopes = []scope{top}
	return c
}

// Plan returns the plan being built.
func (c *MarshalContext) Plan() *MarshalPlan {
	return c.plan
}

// Path returns the member path being planned.
func (c *MarshalContext) Path() []string {
	return c.path.Segments()
}

// Current returns the offset of the next slot in the active tracker.
func (c *MarshalContext) Current() Offset {
	return c.tracker.Current()
}

// WordSize is the machine word of the target.
func (c *MarshalContext) WordSize() uint32 {
	return c.Facts.WordSize()
}

// Emit appends s at the current offset of its region and advances past it.
// A nil Path is filled with the current member path. It returns the index of
// the slot in the active slot list.
func (c *MarshalContext) Emit(s Slot) (int, error) {
	if s.Path == nil && !s.Kind.IsControl() && s.Kind != SlotDelimiter && s.Kind != SlotOpcode && s.Kind != SlotException {
		s.Path = c.path.Segments()
	}
	tr := c.tracker
	if s.Region == RegionStrings {
		tr = c.strs
	}
	s.Offset = tr.Current()
	if err := tr.AdvanceBy(s.Size); err != nil {
		return -1, c.locate(err)
	}
	*c.sink = append(*c.sink, s)
	return len(*c.sink) - 1, nil
}

// PlanMember plans m under its own path segment through the active strategy.
func (c *MarshalContext) PlanMember(m *idl.Member) error {
	return c.path.With(m.Name, func() error {
		return c.dispatch(m)
	})
}

// PlanElement plans element i of an array member.
func (c *MarshalContext) PlanElement(m *idl.Member, i uint32) error {
	elem := &idl.Member{Name: m.Name, Type: m.Type}
	return c.path.With(path.Index(i), func() error {
		return c.dispatch(elem)
	})
}

// dispatch picks the strategy method for m: flexpage, string array,
// indirect string, string, array, then the resolved type.
func (c *MarshalContext) dispatch(m *idl.Member) error {
	t := c.Facts.Resolve(m.Type)
	if t == nil {
		return c.unsupported("member without type")
	}
	if err := c.checkAttributes(m, t); err != nil {
		return err
	}

	s := c.Strategy
	switch {
	case c.Facts.IsFlexpage(m.Type):
		return s.PlanFlexpage(c, m)
	case t.Kind == idl.KindString && len(m.Dims) > 0:
		if !m.HasFixedDims() {
			return c.unsupported("array of strings without fixed dimensions")
		}
		return s.PlanFixedArray(c, m, c.Facts.ArrayBounds(m))
	case isIndirectString(c.Facts, m):
		return s.PlanIndirectString(c, m)
	case c.Facts.IsString(m):
		return s.PlanString(c, m)
	}

	if bounds := c.Facts.ArrayBounds(m); len(bounds) > 0 {
		for _, b := range bounds {
			if !b.Fixed {
				return s.PlanVarArray(c, m, bounds)
			}
		}
		return s.PlanFixedArray(c, m, bounds)
	}

	switch t.Kind {
	case idl.KindVoid:
		return nil
	case idl.KindStruct:
		return s.PlanStruct(c, m, t)
	case idl.KindUnion:
		return s.PlanUnion(c, m, t)
	default:
		return s.PlanScalar(c, m, t)
	}
}

// checkAttributes rejects attribute combinations no strategy can lay out.
func (c *MarshalContext) checkAttributes(m *idl.Member, t *idl.Type) error {
	a := m.Attrs
	if a.Ref && m.HasFixedDims() {
		return c.conflict("ref", "cannot be combined with fixed dimensions")
	}
	if !a.HasSize() && a.MaxIs == "" {
		return nil
	}
	if t.Kind == idl.KindString && len(m.Dims) > 0 {
		attr := sizeAttrName(a)
		if attr == "" {
			attr = "max_is"
		}
		return c.conflict(attr, "an array of strings cannot be sized")
	}

	sizable := c.Facts.IsString(m)
	if !sizable && !c.Facts.IsFlexpage(m.Type) {
		for _, b := range c.Facts.ArrayBounds(m) {
			if !b.Fixed {
				sizable = true
			}
		}
	}
	if !sizable {
		attr := sizeAttrName(a)
		if attr == "" {
			attr = "max_is"
		}
		return c.conflict(attr, fmt.Sprintf("%s %s cannot be sized", t.Kind, m.Name))
	}

	for _, ref := range []struct{ attr, name string }{
		{"size_is", a.SizeIs},
		{"length_is", a.LengthIs},
		{"max_is", a.MaxIs},
	} {
		if ref.name == "" {
			continue
		}
		if _, err := c.Sibling(ref.attr, ref.name); err != nil {
			return err
		}
	}
	return nil
}

func sizeAttrName(a idl.Attributes) string {
	switch {
	case a.LengthIs != "":
		return "length_is"
	case a.SizeIs != "":
		return "size_is"
	default:
		return ""
	}
}

// Sibling resolves a member named by a sizing attribute to its value path.
func (c *MarshalContext) Sibling(attr, name string) ([]string, error) {
	sc := &c.scopes[len(c.scopes)-1]
	if sc.current < len(sc.members) && sc.members[sc.current].Name == name {
		return nil, c.conflict(attr, "names the member itself")
	}

	idx := -1
	for i, m := range sc.members {
		if m.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, c.conflict(attr, fmt.Sprintf("names unknown member %q", name))
	}

	sib := sc.members[idx]
	st := c.Facts.Resolve(sib.Type)
	if st == nil || !st.Kind.IsInteger() || len(sib.Dims) > 0 || sib.Pointer > 0 {
		return nil, c.conflict(attr, fmt.Sprintf("%q is not an integer", name))
	}
	if sc.dirs != nil {
		switch dir := sc.dirs[idx]; {
		case dir.Has(c.Flow.Direction()):
			if !sc.done[idx] {
				return nil, c.conflict(attr, fmt.Sprintf("%q is planned after the member it sizes", name))
			}
		case c.Flow == FlowReply && dir.Has(idl.DirIn):
			// the client still holds the request value
		default:
			return nil, c.conflict(attr, fmt.Sprintf("%q is not sent with the %s", name, c.Flow))
		}
	}
	if sc.dirs == nil && idx > sc.current {
		return nil, c.conflict(attr, fmt.Sprintf("%q is declared after the member it sizes", name))
	}

	out := make([]string, 0, len(sc.prefix)+1)
	out = append(out, sc.prefix...)
	return append(out, name), nil
}

// WithMembers runs fn with the members of a struct as the sizing scope.
func (c *MarshalContext) WithMembers(members []*idl.Member, fn func() error) error {
	c.scopes = append(c.scopes, scope{members: members, prefix: c.path.Segments()})
	defer func() { c.scopes = c.scopes[:len(c.scopes)-1] }()
	return fn()
}

// markPlanned records that top-level parameter i is in the message.
func (c *MarshalContext) markPlanned(i int) {
	c.scopes[0].done[i] = true
}

// Enter marks member i of the innermost scope as the one being planned.
func (c *MarshalContext) Enter(i int) {
	c.scopes[len(c.scopes)-1].current = i
}

// Within runs fn with tr and sink as the active tracker and slot list.
func (c *MarshalContext) Within(tr *offset.Tracker, sink *[]Slot, fn func() error) error {
	prevT, prevS := c.tracker, c.sink
	c.tracker, c.sink = tr, sink
	defer func() { c.tracker, c.sink = prevT, prevS }()
	return fn()
}

// Fork copies the active tracker.
func (c *MarshalContext) Fork() *offset.Tracker {
	return c.tracker.Fork()
}

// Temp returns a fresh runtime temporary name.
func (c *MarshalContext) Temp() string {
	n := c.temps
	c.temps++
	return c.Opts.Namer.TempVar(n)
}

// Receive picks the receive mode for a variable-size value. alias is the
// strategy's permission to point into the message buffer.
func (c *MarshalContext) Receive(m *idl.Member, alias bool) ReceiveMode {
	switch {
	case m.Attrs.InitWithIn:
		return ReceiveInto
	case alias && c.Flow.Receiver() == SideServer:
		return ReceiveAlias
	default:
		return ReceiveAllocate
	}
}

// Warn records a diagnostic on the plan and logs it.
func (c *MarshalContext) Warn(msg string, fields ...zap.Field) {
	p := c.path.String()
	c.plan.Diagnostics = append(c.plan.Diagnostics, Diagnostic{Level: "warn", Path: p, Message: msg})
	Logger().Warn(msg, append([]zap.Field{
		zap.String("operation", c.Op.Name),
		zap.Stringer("flow", c.Flow),
		zap.String("path", p),
	}, fields...)...)
}

func (c *MarshalContext) conflict(attr, detail string) error {
	return errors.AttributeConflict(c.path.Segments(), attr, detail)
}

func (c *MarshalContext) unsupported(what string) error {
	return errors.UnsupportedLayout(c.path.Segments(), what)
}

func (c *MarshalContext) locate(err error) error {
	if e, ok := err.(*errors.Error); ok {
		cp := *e
		cp.Path = c.path.Segments()
		return &cp
	}
	return err
}

// emitHeader places the opcode on requests and the exception word on
// replies. It always lands at a constant offset.
func (c *MarshalContext) emitHeader() error {
	var s Slot
	switch {
	case c.Flow == FlowRequest:
		s = Slot{Kind: SlotOpcode, Size: offset.Fixed(c.Opts.OpcodeSize)}
	case c.Opts.ExceptionWord:
		s = Slot{Kind: SlotException, Size: offset.Fixed(c.WordSize())}
	default:
		return nil
	}
	if c.tracker.IsDynamic() {
		panic("planner: header after a runtime-sized slot")
	}
	c.plan.HasHeader = true
	c.plan.HeaderOffset = c.tracker.Pos()
	_, err := c.Emit(s)
	return err
}
