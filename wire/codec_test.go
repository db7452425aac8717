package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	ipcerrors "github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/planner"
)

func mixedOperation() *idl.Operation {
	u := idl.NewUnion("u_t", u32(),
		idl.Case{Labels: []uint64{1}, Member: idl.NewMember("pt", point())},
		idl.Case{Labels: []uint64{2}, Member: idl.NewMember("v", s32())},
		idl.Case{Default: true},
	)
	arr := in("arr", s32())
	arr.Dims = []uint32{4}
	vec := in("vec", u32())
	vec.Dims = []uint32{0}
	st := idl.NewStruct("pair",
		idl.NewMember("x", idl.Scalar(idl.KindU16)),
		idl.NewMember("y", u32()),
	)
	return idl.NewOperation("mixed", 7,
		in("a", s32()),
		in("b", idl.Scalar(idl.KindU8)),
		arr,
		in("st", st),
		in("s", idl.NewString(0)),
		vec,
		in("u", u),
	)
}

func mixedValues() Values {
	return Values{
		"a":   int32(-5),
		"b":   uint8(7),
		"arr": []any{int32(1), int32(2), int32(3), int32(4)},
		"st":  map[string]any{"x": uint16(3), "y": uint32(9)},
		"s":   []byte("hello"),
		"vec": []any{uint32(10), uint32(20)},
		"u":   &Union{Switch: 1, Value: map[string]any{"x": int32(5), "y": int32(6)}},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, kind := range []planner.StrategyKind{planner.StrategyGeneric, planner.StrategyOptimized, planner.StrategyTarget} {
		t.Run(kind.String(), func(t *testing.T) {
			ip := planFor(t, kind, mixedOperation())
			got, header := roundTrip(t, ip.Operations[0].Request, 7, mixedValues(), nil)
			if header != 7 {
				t.Errorf("header: got %d, want 7", header)
			}
			if diff := cmp.Diff(mixedValues(), got); diff != "" {
				t.Errorf("values mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoundTrip_LooseInput(t *testing.T) {
	ip := planFor(t, planner.StrategyTarget, mixedOperation())
	loose := Values{
		"a":   -5,
		"b":   7,
		"arr": []int32{1, 2, 3, 4},
		"st":  map[string]any{"x": 3, "y": 9},
		"s":   "hello",
		"vec": []uint32{10, 20},
		"u":   Union{Switch: 1, Value: map[string]any{"x": 5, "y": 6}},
	}
	got, _ := roundTrip(t, ip.Operations[0].Request, 7, loose, nil)
	if diff := cmp.Diff(mixedValues(), got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_UnionArms(t *testing.T) {
	ip := planFor(t, planner.StrategyTarget, mixedOperation())
	plan := ip.Operations[0].Request
	tests := []struct {
		name string
		u    *Union
	}{
		{"scalar arm", &Union{Switch: 2, Value: int32(-1)}},
		{"default arm", &Union{Switch: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := mixedValues()
			values["u"] = tt.u
			got, _ := roundTrip(t, plan, 7, values, nil)
			if diff := cmp.Diff(tt.u, got["u"]); diff != "" {
				t.Errorf("union mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncode_Layout(t *testing.T) {
	ip := planFor(t, planner.StrategyTarget, idl.NewOperation("op", 3, in("a", s32()), in("s", idl.NewString(0))))
	msg, err := NewEncoder(nil).Encode(ip.Operations[0].Request, 3, Values{"a": int32(1), "s": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	defer msg.Release()

	want := []byte{
		3, 0, 0, 0,
		1, 0, 0, 0,
		3, 0, 0, 0,
		'h', 'i', 0, 0,
	}
	if !bytes.Equal(msg.Bytes(), want) {
		t.Errorf("got % x, want % x", msg.Bytes(), want)
	}
}

func TestRoundTrip_ReplySizedByRequest(t *testing.T) {
	buf := out("buf", idl.Scalar(idl.KindU8))
	buf.Dims = []uint32{0}
	buf.Attrs = idl.Attributes{SizeIs: "n"}
	op := idl.NewOperation("read", 1, in("n", u32()), buf)
	plan := planFor(t, planner.StrategyTarget, op).Operations[0].Reply

	msg, err := NewEncoder(nil).Encode(plan, 0, Values{"n": uint32(3), "buf": []byte{1, 2, 3, 4}})
	if err != nil {
		t.Fatal(err)
	}
	defer msg.Release()

	allocs := NewAllocationList()
	defer allocs.Release()
	got, header, err := NewDecoder(nil, nil).Decode(plan, msg, Values{"n": uint32(3)}, allocs)
	if err != nil {
		t.Fatal(err)
	}
	if header != 0 {
		t.Errorf("exception word: got %d, want 0", header)
	}
	if diff := cmp.Diff(Values{"buf": []byte{1, 2, 3}}, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if allocs.Count() != 1 || allocs.Bytes() != 3 {
		t.Errorf("allocations: %d covering %d bytes", allocs.Count(), allocs.Bytes())
	}
}

func TestRoundTrip_ReplyCountInReply(t *testing.T) {
	arr := out("arr", u32())
	arr.Dims = []uint32{0}
	arr.Attrs = idl.Attributes{SizeIs: "n"}
	op := idl.NewOperation("list", 1, out("n", u32()), arr)
	plan := planFor(t, planner.StrategyTarget, op).Operations[0].Reply

	values := Values{"n": uint32(2), "arr": []any{uint32(7), uint32(9)}}
	got, header := roundTrip(t, plan, 0, values, nil)
	if header != 0 {
		t.Errorf("exception word: got %d, want 0", header)
	}
	if diff := cmp.Diff(values, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_StringArray(t *testing.T) {
	names := in("names", idl.NewString(0))
	names.Dims = []uint32{3}
	plan := planFor(t, planner.StrategyTarget, idl.NewOperation("names", 1, names)).Operations[0].Request

	values := Values{"names": []any{[]byte("a"), []byte("bc"), []byte("def")}}
	got, _ := roundTrip(t, plan, 1, values, nil)
	if diff := cmp.Diff(values, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_ReceiveModes(t *testing.T) {
	t.Run("alias points into the message", func(t *testing.T) {
		plan := planFor(t, planner.StrategyOptimized, idl.NewOperation("op", 1, in("s", idl.NewString(0)))).Operations[0].Request
		msg, err := NewEncoder(nil).Encode(plan, 1, Values{"s": "abc"})
		if err != nil {
			t.Fatal(err)
		}
		got, _, err := NewDecoder(nil, nil).Decode(plan, msg, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		s := got["s"].([]byte)
		if string(s) != "abc" || &s[0] != &msg.Buf[8] {
			t.Errorf("got %q, aliased %v", s, &s[0] == &msg.Buf[8])
		}
	})

	t.Run("into caller storage", func(t *testing.T) {
		name := out("name", idl.NewString(0))
		name.Attrs = idl.Attributes{InitWithIn: true}
		plan := planFor(t, planner.StrategyTarget, idl.NewOperation("op", 1, name)).Operations[0].Reply
		msg, err := NewEncoder(nil).Encode(plan, 0, Values{"name": "hello"})
		if err != nil {
			t.Fatal(err)
		}
		defer msg.Release()

		dst := make([]byte, 32)
		got, _, err := NewDecoder(nil, nil).Decode(plan, msg, Values{"name": dst}, nil)
		if err != nil {
			t.Fatal(err)
		}
		s := got["name"].([]byte)
		if string(s) != "hello" || &s[0] != &dst[0] {
			t.Errorf("got %q, in caller storage %v", s, &s[0] == &dst[0])
		}

		_, _, err = NewDecoder(nil, nil).Decode(plan, msg, Values{"name": make([]byte, 2)}, nil)
		if !errors.Is(err, &ipcerrors.Error{Kind: ipcerrors.KindOutOfBounds}) {
			t.Errorf("short caller buffer: got %v", err)
		}
	})

	t.Run("allocate records buffers", func(t *testing.T) {
		plan := planFor(t, planner.StrategyTarget, idl.NewOperation("op", 1, out("s", idl.NewString(0)))).Operations[0].Reply
		msg, err := NewEncoder(nil).Encode(plan, 0, Values{"s": "xyz"})
		if err != nil {
			t.Fatal(err)
		}
		defer msg.Release()

		alloc := &countingAllocator{}
		allocs := NewAllocationList()
		got, _, err := NewDecoder(nil, alloc).Decode(plan, msg, nil, allocs)
		if err != nil {
			t.Fatal(err)
		}
		if string(got["s"].([]byte)) != "xyz" || alloc.allocs != 1 {
			t.Errorf("got %q after %d allocations", got["s"], alloc.allocs)
		}
		allocs.FreeAndRelease(alloc)
		if alloc.frees != 1 {
			t.Errorf("frees: got %d, want 1", alloc.frees)
		}
	})
}

type countingAllocator struct {
	allocs int
	frees  int
}

func (a *countingAllocator) Alloc(size uint32) ([]byte, error) {
	a.allocs++
	return make([]byte, size), nil
}

func (a *countingAllocator) Free([]byte) { a.frees++ }

func TestClamping(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	t.Run("fixed string", func(t *testing.T) {
		name := in("name", idl.Scalar(idl.KindChar))
		name.Dims = []uint32{16}
		name.Attrs = idl.Attributes{String: true}
		plan := planFor(t, planner.StrategyTarget, idl.NewOperation("op", 1, name)).Operations[0].Request

		got, _ := roundTrip(t, plan, 1, Values{"name": "abcdefghijklmnopqrstuvwxyz"}, nil)
		if s := string(got["name"].([]byte)); s != "abcdefghijklmno" {
			t.Errorf("got %q, want 15 characters", s)
		}
		if n := logs.FilterMessage("string clamped").Len(); n != 1 {
			t.Errorf("got %d clamp warnings, want 1", n)
		}
	})

	t.Run("max_is array", func(t *testing.T) {
		vec := in("vec", u32())
		vec.Dims = []uint32{0}
		vec.Attrs = idl.Attributes{MaxIs: "m"}
		plan := planFor(t, planner.StrategyTarget, idl.NewOperation("op", 1, in("m", u32()), vec)).Operations[0].Request

		got, _ := roundTrip(t, plan, 1, Values{"m": uint32(2), "vec": []uint32{1, 2, 3}}, nil)
		if diff := cmp.Diff([]any{uint32(1), uint32(2)}, got["vec"]); diff != "" {
			t.Errorf("vec mismatch (-want +got):\n%s", diff)
		}
		if n := logs.FilterMessage("element count clamped").Len(); n != 1 {
			t.Errorf("got %d clamp warnings, want 1", n)
		}
	})
}

func TestIndirectString(t *testing.T) {
	name := in("name", idl.Scalar(idl.KindChar))
	name.Pointer = 1
	name.Attrs = idl.Attributes{String: true, Ref: true}
	plan := planFor(t, planner.StrategyTarget, idl.NewOperation("op", 1, name, in("x", s32()))).Operations[0].Request

	msg, err := NewEncoder(nil).Encode(plan, 1, Values{"name": "hello", "x": int32(4)})
	if err != nil {
		t.Fatal(err)
	}
	defer msg.Release()

	if len(msg.Strings) != 1 || string(msg.Strings[0]) != "hello\x00" {
		t.Fatalf("parts: %q", msg.Strings)
	}
	if msg.Len() != 24 {
		t.Errorf("length: got %d, want 24", msg.Len())
	}
	words := []uint32{order.Uint32(msg.Buf[8:]), order.Uint32(msg.Buf[12:]), order.Uint32(msg.Buf[16:])}
	if diff := cmp.Diff([]uint32{6, 0, 6}, words); diff != "" {
		t.Errorf("descriptor mismatch (-want +got):\n%s", diff)
	}

	got, _, err := NewDecoder(nil, nil).Decode(plan, msg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Values{"name": []byte("hello"), "x": int32(4)}, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	_, _, err = NewDecoder(nil, nil).Decode(plan, NewMessage(msg.Buf), nil, nil)
	if !errors.Is(err, &ipcerrors.Error{Kind: ipcerrors.KindOutOfBounds}) {
		t.Errorf("missing part: got %v", err)
	}
}

func TestFlexpages(t *testing.T) {
	ip := planFor(t, planner.StrategyTarget, idl.NewOperation("map", 1, in("x", s32()), in("f", idl.NewFlexpage())))
	plan := ip.Operations[0].Request
	values := Values{"x": int32(3), "f": Flexpage{Base: 0x1000, Fpage: 0x2005}}

	msg, err := NewEncoder(nil).Encode(plan, 1, values)
	if err != nil {
		t.Fatal(err)
	}
	defer msg.Release()

	for _, loc := range []planner.OpcodeLocation{ip.Request.OpcodeLocation(), {Scan: true}} {
		code, at, err := LocateOpcode(msg.Buf, loc, 4)
		if err != nil {
			t.Fatalf("%s: %v", loc, err)
		}
		if code != 1 || at != 16 {
			t.Errorf("%s: opcode %d at %d, want 1 at 16", loc, code, at)
		}
	}

	got, _, err := NewDecoder(nil, nil).Decode(plan, msg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(values, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	bad := bytes.Clone(msg.Buf)
	bad[8] = 1
	if _, _, err := NewDecoder(nil, nil).Decode(plan, NewMessage(bad), nil, nil); !errors.Is(err, &ipcerrors.Error{Kind: ipcerrors.KindInvalidData}) {
		t.Errorf("broken delimiter: got %v", err)
	}
}

func TestFlexpageArray(t *testing.T) {
	f := in("f", idl.NewFlexpage())
	f.Dims = []uint32{2}
	ip := planFor(t, planner.StrategyTarget, idl.NewOperation("grant", 1, in("x", s32()), f))
	plan := ip.Operations[0].Request
	values := Values{
		"x": int32(3),
		"f": []any{Flexpage{Base: 0x1000, Fpage: 0x2005}, Flexpage{Base: 0x3000, Fpage: 0x4005}},
	}

	msg, err := NewEncoder(nil).Encode(plan, 1, values)
	if err != nil {
		t.Fatal(err)
	}
	defer msg.Release()

	for _, loc := range []planner.OpcodeLocation{ip.Request.OpcodeLocation(), {Scan: true}} {
		code, at, err := LocateOpcode(msg.Buf, loc, 4)
		if err != nil {
			t.Fatalf("%s: %v", loc, err)
		}
		if code != 1 || at != 24 {
			t.Errorf("%s: opcode %d at %d, want 1 at 24", loc, code, at)
		}
	}

	got, _, err := NewDecoder(nil, nil).Decode(plan, msg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(values, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestLocateOpcode_Errors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		loc  planner.OpcodeLocation
		kind ipcerrors.Kind
	}{
		{"short", []byte{1, 0}, planner.OpcodeLocation{}, ipcerrors.KindOutOfBounds},
		{"no delimiter", bytes.Repeat([]byte{1}, 24), planner.OpcodeLocation{Scan: true}, ipcerrors.KindInvalidData},
		{"delimiter at end", make([]byte, 8), planner.OpcodeLocation{Scan: true}, ipcerrors.KindOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LocateOpcode(tt.buf, tt.loc, 4)
			if !errors.Is(err, &ipcerrors.Error{Kind: tt.kind}) {
				t.Errorf("got %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestEncode_Errors(t *testing.T) {
	op := idl.NewOperation("op", 1, in("a", s32()), in("b", idl.Scalar(idl.KindU8)))
	plan := planFor(t, planner.StrategyTarget, op).Operations[0].Request
	tests := []struct {
		name   string
		header uint64
		values Values
		kind   ipcerrors.Kind
	}{
		{"missing value", 1, Values{"a": 1}, ipcerrors.KindNotFound},
		{"wrong type", 1, Values{"a": "one", "b": 1}, ipcerrors.KindInvalidData},
		{"out of range", 1, Values{"a": 1, "b": 300}, ipcerrors.KindInvalidData},
		{"opcode too wide", 1 << 40, Values{"a": 1, "b": 1}, ipcerrors.KindOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEncoder(nil).Encode(plan, tt.header, tt.values)
			if !errors.Is(err, &ipcerrors.Error{Kind: tt.kind}) {
				t.Errorf("got %v, want %s", err, tt.kind)
			}
			var e *ipcerrors.Error
			if errors.As(err, &e) && e.Operation != "op" {
				t.Errorf("operation: got %q, want op", e.Operation)
			}
		})
	}
}

func TestDecode_Truncated(t *testing.T) {
	plan := planFor(t, planner.StrategyTarget, idl.NewOperation("op", 1, in("a", s32()), in("s", idl.NewString(0)))).Operations[0].Request
	msg, err := NewEncoder(nil).Encode(plan, 1, Values{"a": 1, "s": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	defer msg.Release()

	for _, n := range []int{2, 6, 14} {
		_, _, err := NewDecoder(nil, nil).Decode(plan, NewMessage(msg.Buf[:n]), nil, nil)
		if !errors.Is(err, &ipcerrors.Error{Kind: ipcerrors.KindOutOfBounds}) {
			t.Errorf("%d bytes: got %v", n, err)
		}
	}
}
