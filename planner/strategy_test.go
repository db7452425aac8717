package planner

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	ipcerrors "github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/idl"
)

func point() *idl.Type {
	return idl.NewStruct("point", idl.NewMember("x", s32()), idl.NewMember("y", s32()))
}

func TestFixedArray(t *testing.T) {
	op := idl.NewOperation("op", 1, withDims(in("m", s32()), 3, 2))

	t.Run("generic rows", func(t *testing.T) {
		plan := planOne(t, newPlanner(t, withStrategy(StrategyGeneric)), op).Request
		checkSlots(t, plan, []slotWant{
			{"", SlotOpcode, "0", "4"},
			{"m", SlotRow, "4", "8"},
			{"m", SlotRow, "12", "8"},
			{"m", SlotRow, "20", "8"},
		})
		for i, first := range []uint32{0, 2, 4} {
			if s := plan.Slots[i+1]; s.First != first || s.Elements != 2 {
				t.Errorf("row %d: first %d elements %d", i, s.First, s.Elements)
			}
		}
	})

	t.Run("optimized block", func(t *testing.T) {
		plan := planOne(t, newPlanner(t, withStrategy(StrategyOptimized)), op).Request
		checkSlots(t, plan, []slotWant{
			{"", SlotOpcode, "0", "4"},
			{"m", SlotBlock, "4", "24"},
		})
		if plan.Slots[1].Elements != 6 {
			t.Errorf("elements: got %d, want 6", plan.Slots[1].Elements)
		}
	})
}

func TestStructArray(t *testing.T) {
	op := idl.NewOperation("op", 1, withDims(in("pts", point()), 2))

	plan := planOne(t, newPlanner(t, withStrategy(StrategyGeneric)), op).Request
	checkSlots(t, plan, []slotWant{
		{"", SlotOpcode, "0", "4"},
		{"pts[0].x", SlotScalar, "4", "4"},
		{"pts[0].y", SlotScalar, "8", "4"},
		{"pts[1].x", SlotScalar, "12", "4"},
		{"pts[1].y", SlotScalar, "16", "4"},
	})

	plan = planOne(t, newPlanner(t, nil), op).Request
	checkSlots(t, plan, []slotWant{
		{"", SlotOpcode, "0", "4"},
		{"pts", SlotBlock, "4", "16"},
	})
}

func TestBitfieldStruct(t *testing.T) {
	flags := idl.NewStruct("flags", idl.NewMember("a", idl.Scalar(idl.KindU8)), idl.NewMember("b", idl.Scalar(idl.KindU8)))
	flags.Bitfield = true
	plan := planOne(t, newPlanner(t, withStrategy(StrategyGeneric)), idl.NewOperation("op", 1, in("f", flags))).Request
	checkSlots(t, plan, []slotWant{
		{"", SlotOpcode, "0", "4"},
		{"f", SlotBlock, "4", "2"},
	})
	if plan.FixedSize != 8 {
		t.Errorf("fixed size: got %d, want 8", plan.FixedSize)
	}
}

func TestVarArray(t *testing.T) {
	t.Run("count word", func(t *testing.T) {
		plan := planOne(t, newPlanner(t, nil), idl.NewOperation("op", 1, withDims(in("v", s32()), 0))).Request
		checkSlots(t, plan, []slotWant{
			{"", SlotOpcode, "0", "4"},
			{"v", SlotCount, "4", "4"},
			{"v", SlotArray, "8", "_ipc_tmp0"},
		})
		if plan.Slots[2].CountPath != nil {
			t.Errorf("count path: got %v, want nil", plan.Slots[2].CountPath)
		}
	})

	t.Run("sized by sibling", func(t *testing.T) {
		op := idl.NewOperation("op", 1,
			withAttrs(withDims(in("v", s32()), 0), idl.Attributes{SizeIs: "n"}),
			in("n", s32()),
		)
		plan := planOne(t, newPlanner(t, nil), op).Request
		checkSlots(t, plan, []slotWant{
			{"", SlotOpcode, "0", "4"},
			{"n", SlotScalar, "4", "4"},
			{"v", SlotArray, "8", "_ipc_tmp0"},
		})
		if diff := cmp.Diff([]string{"n"}, plan.Slots[2].CountPath); diff != "" {
			t.Errorf("count path mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("sized pointer", func(t *testing.T) {
		v := withAttrs(in("v", s32()), idl.Attributes{LengthIs: "n"})
		v.Pointer = 1
		plan := planOne(t, newPlanner(t, nil), idl.NewOperation("op", 1, in("n", s32()), v)).Request
		if s := plan.Find("v", SlotArray); s == nil || !cmp.Equal(s.CountPath, []string{"n"}) {
			t.Errorf("array slot: %+v", s)
		}
	})

	t.Run("struct member scope", func(t *testing.T) {
		rec := idl.NewStruct("rec",
			idl.NewMember("len", idl.Scalar(idl.KindU32)),
			idl.NewMember("data", idl.Scalar(idl.KindU8)).WithDims(0).WithAttrs(idl.Attributes{SizeIs: "len"}),
		)
		plan := planOne(t, newPlanner(t, nil), idl.NewOperation("op", 1, in("r", rec))).Request
		checkSlots(t, plan, []slotWant{
			{"", SlotOpcode, "0", "4"},
			{"r.len", SlotScalar, "4", "4"},
			{"r.data", SlotArray, "8", "_ipc_tmp0"},
		})
		if diff := cmp.Diff([]string{"r", "len"}, plan.Slots[2].CountPath); diff != "" {
			t.Errorf("count path mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("max_is", func(t *testing.T) {
		v := withAttrs(withDims(in("v", s32()), 0), idl.Attributes{MaxIs: "m"})
		plan := planOne(t, newPlanner(t, nil), idl.NewOperation("op", 1, in("m", s32()), v)).Request
		s := plan.Find("v", SlotArray)
		if s == nil || !cmp.Equal(s.CapPath, []string{"m"}) {
			t.Fatalf("array slot: %+v", s)
		}
		if len(plan.Diagnostics) != 1 || plan.Diagnostics[0].Path != "v" {
			t.Errorf("diagnostics: %+v", plan.Diagnostics)
		}
	})
}

func unionType(arms ...idl.Case) *idl.Type {
	return idl.NewUnion("u_t", idl.Scalar(idl.KindU32), arms...)
}

func TestUnion(t *testing.T) {
	u := unionType(
		idl.Case{Labels: []uint64{1}, Member: idl.NewMember("pt", point())},
		idl.Case{Labels: []uint64{2}, Member: idl.NewMember("v", s32())},
		idl.Case{Default: true},
	)
	op := idl.NewOperation("op", 1, in("u", u), in("a", s32()))
	plan := planOne(t, newPlanner(t, nil), op).Request

	checkSlots(t, plan, []slotWant{
		{"", SlotOpcode, "0", "4"},
		{"a", SlotScalar, "4", "4"},
		{"u", SlotSwitch, "8", "4"},
		{"u", SlotUnion, "12", "8"},
	})
	cases := plan.Slots[3].Cases
	if len(cases) != 3 {
		t.Fatalf("got %d cases, want 3", len(cases))
	}
	pt := &MarshalPlan{Slots: cases[0].Slots}
	checkSlots(t, pt, []slotWant{
		{"u.pt.x", SlotScalar, "12", "4"},
		{"u.pt.y", SlotScalar, "16", "4"},
	})
	if cases[0].Size.Bytes != 8 || cases[1].Size.Bytes != 4 || len(cases[2].Slots) != 0 {
		t.Errorf("case sizes: %s %s %s", cases[0].Size, cases[1].Size, cases[2].Size)
	}
	if !cases[2].Default {
		t.Error("third case should be the default arm")
	}
	if plan.FixedSize != 20 || plan.Dynamic {
		t.Errorf("fixed %d dynamic %v", plan.FixedSize, plan.Dynamic)
	}
}

func TestUnion_DynamicArm(t *testing.T) {
	u := unionType(
		idl.Case{Labels: []uint64{1}, Member: idl.NewMember("s", idl.NewString(0))},
		idl.Case{Labels: []uint64{2}, Member: idl.NewMember("v", s32())},
	)
	plan := planOne(t, newPlanner(t, nil), idl.NewOperation("op", 1, in("u", u))).Request

	us := plan.Find("u", SlotUnion)
	if us == nil || !us.Size.Dynamic || us.Offset.String() != "8" {
		t.Fatalf("union slot: %+v", us)
	}
	if !us.Cases[0].Size.Dynamic || us.Cases[1].Size.Dynamic {
		t.Errorf("case sizes: %s %s", us.Cases[0].Size, us.Cases[1].Size)
	}
	arm := &MarshalPlan{Slots: us.Cases[0].Slots}
	checkSlots(t, arm, []slotWant{
		{"u.s", SlotCount, "8", "4"},
		{"u.s", SlotString, "12", "_ipc_tmp0"},
	})
	if !plan.Dynamic {
		t.Error("plan should be dynamic")
	}
}

func TestReceiveModes(t *testing.T) {
	fixedChars := in("name", idl.Scalar(idl.KindChar))
	fixedChars.Dims = []uint32{16}
	fixedChars.Attrs = idl.Attributes{String: true}

	tests := []struct {
		name     string
		strategy StrategyKind
		param    *idl.Parameter
		flow     Flow
		kind     SlotKind
		want     ReceiveMode
	}{
		{"optimized server", StrategyOptimized, withDims(in("v", s32()), 0), FlowRequest, SlotArray, ReceiveAlias},
		{"optimized client", StrategyOptimized, withDims(out("v", s32()), 0), FlowReply, SlotArray, ReceiveAllocate},
		{"generic server", StrategyGeneric, in("v", idl.NewString(0)), FlowRequest, SlotString, ReceiveAllocate},
		{"init with in", StrategyTarget, withAttrs(in("v", idl.NewString(0)), idl.Attributes{InitWithIn: true}), FlowRequest, SlotString, ReceiveInto},
		{"fixed dims copy", StrategyTarget, fixedChars, FlowRequest, SlotString, ReceiveCopy},
		{"inner fixed dims", StrategyTarget, withDims(in("v", s32()), 0, 4), FlowRequest, SlotArray, ReceiveAllocate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := planOne(t, newPlanner(t, withStrategy(tt.strategy)), idl.NewOperation("op", 1, tt.param))
			s := op.Plan(tt.flow).Find(tt.param.Name, tt.kind)
			if s == nil {
				t.Fatalf("no %s slot", tt.kind)
			}
			if s.Receive != tt.want {
				t.Errorf("got %s, want %s", s.Receive, tt.want)
			}
		})
	}
}

func TestAttributeConflicts(t *testing.T) {
	sized := func(name string, a idl.Attributes) *idl.Parameter {
		return withAttrs(withDims(in(name, s32()), 0), a)
	}
	laterMember := idl.NewStruct("rec",
		idl.NewMember("data", idl.Scalar(idl.KindU8)).WithDims(0).WithAttrs(idl.Attributes{SizeIs: "len"}),
		idl.NewMember("len", idl.Scalar(idl.KindU32)),
	)
	refFixed := in("s", idl.Scalar(idl.KindChar))
	refFixed.Dims = []uint32{8}
	refFixed.Attrs = idl.Attributes{String: true, Ref: true}

	tests := []struct {
		name   string
		params []*idl.Parameter
		attr   string
	}{
		{"unknown sibling", []*idl.Parameter{sized("v", idl.Attributes{SizeIs: "nope"})}, "size_is"},
		{"self", []*idl.Parameter{sized("v", idl.Attributes{SizeIs: "v"})}, "size_is"},
		{"float sibling", []*idl.Parameter{in("n", idl.Scalar(idl.KindF32)), sized("v", idl.Attributes{SizeIs: "n"})}, "size_is"},
		{"array sibling", []*idl.Parameter{withDims(in("n", s32()), 2), sized("v", idl.Attributes{LengthIs: "n"})}, "length_is"},
		{"out sibling", []*idl.Parameter{out("n", s32()), sized("v", idl.Attributes{SizeIs: "n"})}, "size_is"},
		{"later member", []*idl.Parameter{in("r", laterMember)}, "size_is"},
		{"scalar sized", []*idl.Parameter{in("n", s32()), withAttrs(in("v", s32()), idl.Attributes{SizeIs: "n"})}, "size_is"},
		{"flexpage sized", []*idl.Parameter{in("n", s32()), withAttrs(in("f", idl.NewFlexpage()), idl.Attributes{SizeIs: "n"})}, "size_is"},
		{"max_is only", []*idl.Parameter{in("n", s32()), withAttrs(in("v", s32()), idl.Attributes{MaxIs: "n"})}, "max_is"},
		{"ref fixed dims", []*idl.Parameter{refFixed}, "ref"},
		{"bad max_is", []*idl.Parameter{in("n", idl.NewString(0)), charString("s", idl.DirIn, idl.Attributes{MaxIs: "n"})}, "max_is"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := planErr(t, newPlanner(t, nil), idl.NewOperation("op", 1, tt.params...))
			if !errors.Is(err, &ipcerrors.Error{Kind: ipcerrors.KindAttributeConflict}) {
				t.Fatalf("got %v, want attribute_conflict", err)
			}
			if !strings.Contains(err.Error(), tt.attr) {
				t.Errorf("error %q does not name %s", err, tt.attr)
			}
		})
	}
}

func TestUnsupportedLayouts(t *testing.T) {
	refInUnion := unionType(idl.Case{
		Labels: []uint64{1},
		Member: idl.NewMember("s", idl.Scalar(idl.KindChar)).WithPointer(1).WithAttrs(idl.Attributes{String: true, Ref: true}),
	})
	nestedFlexpage := idl.NewStruct("grant", idl.NewMember("f", idl.NewFlexpage()))

	tests := []struct {
		name     string
		strategy StrategyKind
		param    *idl.Parameter
	}{
		{"ref string in union", StrategyTarget, in("u", refInUnion)},
		{"nested flexpage", StrategyTarget, in("g", nestedFlexpage)},
		{"generic flexpage", StrategyGeneric, in("f", idl.NewFlexpage())},
		{"optimized flexpage", StrategyOptimized, in("f", idl.NewFlexpage())},
		{"two open dims", StrategyTarget, withDims(in("v", s32()), 0, 0)},
		{"open array of variable structs", StrategyTarget, withDims(in("v", idl.NewStruct("named", idl.NewMember("n", idl.NewString(0)))), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := planErr(t, newPlanner(t, withStrategy(tt.strategy)), idl.NewOperation("op", 1, tt.param))
			if !errors.Is(err, &ipcerrors.Error{Kind: ipcerrors.KindUnsupportedLayout}) {
				t.Errorf("got %v, want unsupported_layout", err)
			}
		})
	}
}

func TestNestedRefString(t *testing.T) {
	rec := idl.NewStruct("rec",
		idl.NewMember("name", idl.Scalar(idl.KindChar)).WithPointer(1).WithAttrs(idl.Attributes{String: true, Ref: true}),
	)
	plan := planOne(t, newPlanner(t, nil), idl.NewOperation("op", 1, in("r", rec))).Request
	if plan.StringCount() != 0 {
		t.Errorf("strings: got %d, want 0", plan.StringCount())
	}
	if plan.Find("r.name", SlotString) == nil {
		t.Error("nested ref string should be sent inline")
	}
}

func TestStringClamp(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	name := in("name", idl.Scalar(idl.KindChar))
	name.Dims = []uint32{16}
	name.Attrs = idl.Attributes{String: true}

	plan := planOne(t, newPlanner(t, nil), idl.NewOperation("op", 1, name)).Request
	s := plan.Find("name", SlotString)
	if s == nil || s.Cap != 16 {
		t.Fatalf("string slot: %+v", s)
	}
	want := []Diagnostic{{Level: "warn", Path: "name", Message: "string length is clamped"}}
	if diff := cmp.Diff(want, plan.Diagnostics); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}

	entries := logs.FilterMessage("string length is clamped").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["operation"] != "op" || fields["path"] != "name" {
		t.Errorf("log fields: %v", fields)
	}
}

func TestStringCaps(t *testing.T) {
	tests := []struct {
		name  string
		param *idl.Parameter
		cap   uint32
	}{
		{"unbounded", in("s", idl.NewString(0)), 0},
		{"type max with size", withAttrs(in("s", idl.NewString(64)), idl.Attributes{SizeIs: "n"}), 64},
		{"default max with size", withAttrs(in("s", idl.NewString(0)), idl.Attributes{SizeIs: "n"}), idl.DefaultStringMax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planOne(t, newPlanner(t, nil), idl.NewOperation("op", 1, in("n", s32()), tt.param)).Request
			s := plan.Find("s", SlotString)
			if s == nil {
				t.Fatal("no string slot")
			}
			if s.Cap != tt.cap {
				t.Errorf("cap: got %d, want %d", s.Cap, tt.cap)
			}
			if tt.param.Attrs.HasSize() && plan.Find("s", SlotCount) != nil {
				t.Error("sized string should not carry a length word")
			}
		})
	}
}

func TestIndirectString_Entry(t *testing.T) {
	s := charString("s", idl.DirIn, idl.Attributes{SizeIs: "n", MaxIs: "m", Ref: true})
	op := idl.NewOperation("op", 1, in("n", s32()), in("m", s32()), s)
	plan := planOne(t, newPlanner(t, nil), op).Request

	if plan.StringCount() != 1 {
		t.Fatalf("strings: got %d, want 1", plan.StringCount())
	}
	e := plan.Strings.Entries[0]
	if !cmp.Equal(e.SizePath, []string{"n"}) || !cmp.Equal(e.CapPath, []string{"m"}) {
		t.Errorf("entry paths: size %v cap %v", e.SizePath, e.CapPath)
	}
	if plan.Strings.Base.String() != "12" || plan.Strings.Size() != DescriptorSize {
		t.Errorf("table at %s, size %d", plan.Strings.Base, plan.Strings.Size())
	}
	if e.Receive != ReceiveAllocate {
		t.Errorf("receive: got %s", e.Receive)
	}
}

func TestShortIPC_Reasons(t *testing.T) {
	two := idl.NewOperation("op", 1, in("a", s32()), in("b", s32()))
	tests := []struct {
		name   string
		mutate func(*Options)
		op     *idl.Operation
		reason string
	}{
		{"opt level 0", func(o *Options) { o.OptLevel = 0 }, two, "optimization level 0"},
		{"register budget", func(o *Options) { o.ABI = "l4v2-ia32" }, two, "request: 2 payload words exceed 1 registers"},
		{"variable size", nil, idl.NewOperation("op", 1, in("s", idl.NewString(0))), "request: variable-size parameters"},
		{"indirect strings", nil, idl.NewOperation("op", 1, charString("s", idl.DirIn, idl.Attributes{Ref: true})), "request: indirect strings"},
		{"reply flexpage", nil, idl.NewOperation("op", 1, out("f", idl.NewFlexpage())), "reply: flexpages"},
		{"generic", func(o *Options) { o.Strategy = StrategyGeneric }, two, "strategy generic does not use registers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := planOne(t, newPlanner(t, tt.mutate), tt.op)
			if op.ShortIPC.Eligible {
				t.Fatal("should not be eligible")
			}
			if op.ShortIPC.Reason != tt.reason {
				t.Errorf("got %q, want %q", op.ShortIPC.Reason, tt.reason)
			}
			if op.Request.ShortIPC {
				t.Error("request plan flagged as short IPC")
			}
		})
	}
}

func TestShortIPC_StagedRegister(t *testing.T) {
	p := newPlanner(t, func(o *Options) {
		o.ABI = "l4v2-ia32"
		o.Mode = "pic"
	})
	op := planOne(t, p, idl.NewOperation("op", 1, in("a", s32()), out("r", s32()).AsReturn()))
	if !op.ShortIPC.Eligible {
		t.Fatalf("not eligible: %s", op.ShortIPC.Reason)
	}
	rm := op.ShortIPC.Request
	if rm.Tag != "edx" || len(rm.Registers) != 1 || rm.Registers[0].String() != "ebx<edi" {
		t.Errorf("register map: %+v", rm)
	}
	if op.ShortIPC.Reply.Values["r"] != 1 {
		t.Errorf("reply values: %v", op.ShortIPC.Reply.Values)
	}
}

func TestIllegalTransition(t *testing.T) {
	c := &MarshalContext{Op: idl.NewOperation("op", 1)}
	c.transition(StateSorting)
	c.transition(StatePlanning)
	c.transition(StateFlexpageClosing)
	c.transition(StatePlanning)
	if c.State() != StatePlanning {
		t.Fatalf("state: got %s", c.State())
	}

	defer func() {
		r := recover()
		if r == nil || !strings.Contains(r.(string), "planning -> sorting") {
			t.Errorf("got panic %v", r)
		}
	}()
	c.transition(StateSorting)
}
