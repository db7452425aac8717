package planner

import (
	"github.com/wippyai/ipcgen/idl"
)

// Strategy lays out one member kind at a time. MarshalContext.PlanMember
// dispatches to it, and strategies call back into the context to recurse,
// so an embedding strategy sees its own overrides at every depth.
type Strategy interface {
	Name() string
	PlanScalar(c *MarshalContext, m *idl.Member, t *idl.Type) error
	PlanFixedArray(c *MarshalContext, m *idl.Member, bounds []idl.Bound) error
	PlanVarArray(c *MarshalContext, m *idl.Member, bounds []idl.Bound) error
	PlanString(c *MarshalContext, m *idl.Member) error
	PlanStruct(c *MarshalContext, m *idl.Member, t *idl.Type) error
	PlanUnion(c *MarshalContext, m *idl.Member, t *idl.Type) error
	PlanFlexpage(c *MarshalContext, m *idl.Member) error
	PlanIndirectString(c *MarshalContext, m *idl.Member) error
	// AfterParameter runs once each top-level parameter is planned.
	AfterParameter(c *MarshalContext, p *idl.Parameter) error
	// Analyze decides short IPC from both finished plans of an operation.
	Analyze(opts *Options, req, rep *MarshalPlan) ShortIPC
}

func newStrategy(opts *Options) (Strategy, error) {
	switch opts.Strategy {
	case StrategyGeneric:
		return &Generic{}, nil
	case StrategyOptimized:
		return &Optimized{}, nil
	default:
		table, err := opts.table()
		if err != nil {
			return nil, err
		}
		regs, err := table.Registers(opts.Mode)
		if err != nil {
			return nil, err
		}
		return &Target{Table: table, Registers: regs}, nil
	}
}
