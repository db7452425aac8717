package wire

import (
	"context"
	"testing"

	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/planner"
)

func s32() *idl.Type { return idl.Scalar(idl.KindS32) }
func u32() *idl.Type { return idl.Scalar(idl.KindU32) }

func in(name string, t *idl.Type) *idl.Parameter {
	return idl.NewParameter(name, idl.DirIn, t)
}

func out(name string, t *idl.Type) *idl.Parameter {
	return idl.NewParameter(name, idl.DirOut, t)
}

func point() *idl.Type {
	return idl.NewStruct("point", idl.NewMember("x", s32()), idl.NewMember("y", s32()))
}

// planFor plans ops as one interface and fails on any error.
func planFor(t *testing.T, kind planner.StrategyKind, ops ...*idl.Operation) *planner.InterfacePlan {
	t.Helper()
	opts := planner.DefaultOptions()
	opts.Strategy = kind
	p, err := planner.New(nil, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ip, err := p.PlanInterface(context.Background(), idl.NewInterface("test", ops...))
	if err != nil {
		t.Fatalf("PlanInterface: %v", err)
	}
	return ip
}

// roundTrip encodes values with plan and decodes them again.
func roundTrip(t *testing.T, plan *planner.MarshalPlan, header uint64, values, known Values) (Values, uint64) {
	t.Helper()
	msg, err := NewEncoder(nil).Encode(plan, header, values)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	t.Cleanup(msg.Release)

	got, h, err := NewDecoder(nil, nil).Decode(plan, msg, known, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got, h
}
