package planner

import (
	"context"
	"testing"

	"github.com/wippyai/ipcgen/idl"
)

func s32() *idl.Type { return idl.Scalar(idl.KindS32) }

func in(name string, t *idl.Type) *idl.Parameter {
	return idl.NewParameter(name, idl.DirIn, t)
}

func out(name string, t *idl.Type) *idl.Parameter {
	return idl.NewParameter(name, idl.DirOut, t)
}

func withAttrs(p *idl.Parameter, a idl.Attributes) *idl.Parameter {
	p.Attrs = a
	return p
}

func withDims(p *idl.Parameter, dims ...uint32) *idl.Parameter {
	p.Dims = dims
	return p
}

func charString(name string, dir idl.Direction, a idl.Attributes) *idl.Parameter {
	p := idl.NewParameter(name, dir, idl.Scalar(idl.KindChar))
	p.Pointer = 1
	a.String = true
	p.Attrs = a
	return p
}

func newPlanner(t *testing.T, mutate func(*Options)) *Planner {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	p, err := New(nil, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func withStrategy(k StrategyKind) func(*Options) {
	return func(o *Options) { o.Strategy = k }
}

// planOne plans a single-operation interface and fails on any error.
func planOne(t *testing.T, p *Planner, op *idl.Operation) *OperationPlan {
	t.Helper()
	ip, err := p.PlanInterface(context.Background(), idl.NewInterface("test", op))
	if err != nil {
		t.Fatalf("PlanInterface: %v", err)
	}
	return ip.Operations[0]
}

// planErr plans a single-operation interface and returns the operation error.
func planErr(t *testing.T, p *Planner, op *idl.Operation) error {
	t.Helper()
	ip, err := p.PlanInterface(context.Background(), idl.NewInterface("test", op))
	if ip == nil {
		t.Fatalf("PlanInterface: %v", err)
	}
	return ip.Operations[0].Err
}

type slotWant struct {
	name   string
	kind   SlotKind
	offset string
	size   string
}

func checkSlots(t *testing.T, plan *MarshalPlan, want []slotWant) {
	t.Helper()
	if len(plan.Slots) != len(want) {
		for _, s := range plan.Slots {
			t.Logf("  %s %s @%s size %s", s.Kind, s.Name(), s.Offset, s.Size)
		}
		t.Fatalf("%s/%s: got %d slots, want %d", plan.Operation, plan.Flow, len(plan.Slots), len(want))
	}
	for i, w := range want {
		s := plan.Slots[i]
		if s.Kind != w.kind || s.Name() != w.name || s.Offset.String() != w.offset || s.Size.String() != w.size {
			t.Errorf("slot %d: got %s %q @%s size %s, want %s %q @%s size %s",
				i, s.Kind, s.Name(), s.Offset, s.Size, w.kind, w.name, w.offset, w.size)
		}
	}
}
