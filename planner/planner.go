package planner

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/ipcgen/abi"
	"github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/internal/offset"
)

// Planner lays out the messages of RPC operations. A Planner is safe for
// concurrent use once created.
type Planner struct {
	facts    idl.TypeFacts
	strategy Strategy
	sorter   *Sorter
	table    *abi.Table
	opts     Options
}

// New returns a planner. Nil facts use idl.StandardFacts sized for the ABI's
// word.
func New(facts idl.TypeFacts, opts Options) (*Planner, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Namer == nil {
		opts.Namer = DefaultNamer{Prefix: "_ipc_"}
	}
	table, err := opts.table()
	if err != nil {
		return nil, err
	}
	if facts == nil {
		facts = idl.NewStandardFacts(table.WordSize)
	}
	if facts.WordSize() != table.WordSize {
		return nil, errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("type facts use %d-byte words, ABI %s uses %d", facts.WordSize(), table.Name, table.WordSize))
	}
	strategy, err := newStrategy(&opts)
	if err != nil {
		return nil, err
	}
	return &Planner{
		facts:    facts,
		strategy: strategy,
		sorter:   NewSorter(facts, opts.Policy),
		table:    table,
		opts:     opts,
	}, nil
}

// NewWithDefaults returns a planner with DefaultOptions and standard facts.
func NewWithDefaults() (*Planner, error) {
	return New(nil, DefaultOptions())
}

// Options returns the configuration.
func (p *Planner) Options() Options {
	return p.opts
}

// Strategy returns the active strategy.
func (p *Planner) Strategy() Strategy {
	return p.strategy
}

// Facts returns the type facts used for sizing.
func (p *Planner) Facts() idl.TypeFacts {
	return p.facts
}

// Sorter returns the parameter sorter.
func (p *Planner) Sorter() *Sorter {
	return p.sorter
}

// Count runs the count phase: it records the flexpages of every operation in
// both flows and seals the accounts.
func (p *Planner) Count(iface *idl.Interface) (req, rep *FlexpageAccount, err error) {
	req, rep = NewFlexpageAccount(FlowRequest), NewFlexpageAccount(FlowReply)
	seen := make(map[uint32]string, len(iface.Operations))
	names := make(map[string]bool, len(iface.Operations))
	for _, op := range iface.Operations {
		if prev, dup := seen[op.Opcode]; dup {
			return nil, nil, errors.New(errors.PhaseCount, errors.KindInvalidInput).
				Operation(op.Name).
				Detail("opcode %d already used by %s", op.Opcode, prev).
				Build()
		}
		seen[op.Opcode] = op.Name
		if names[op.Name] {
			return nil, nil, errors.New(errors.PhaseCount, errors.KindInvalidInput).
				Operation(op.Name).
				Detail("operation name used twice").
				Build()
		}
		names[op.Name] = true
		req.Record(op.Name, op.CountFlexpages(FlowRequest.Direction()))
		rep.Record(op.Name, op.CountFlexpages(FlowReply.Direction()))
	}
	req.Seal()
	rep.Seal()
	return req, rep, nil
}

// PlanFlow plans one flow of op. acc must be sealed.
func (p *Planner) PlanFlow(op *idl.Operation, flow Flow, acc *FlexpageAccount) (*MarshalPlan, error) {
	c := newContext(p, op, flow, acc)
	c.opFlexpages = acc.Count(op.Name)

	c.transition(StateSorting)
	params := p.sorter.Sort(op.Transmitted(flow.Direction()))
	for _, prm := range params {
		if isIndirectString(p.facts, &prm.Member) {
			c.opStrings++
		}
	}

	c.transition(StatePlanning)
	if c.opFlexpages == 0 {
		if err := c.emitHeader(); err != nil {
			return nil, err
		}
	}
	for _, prm := range params {
		i := declIndex(op, prm)
		c.Enter(i)
		if err := c.PlanMember(&prm.Member); err != nil {
			return nil, err
		}
		c.markPlanned(i)
		if err := p.strategy.AfterParameter(c, prm); err != nil {
			return nil, err
		}
	}

	c.transition(StateFinalizing)
	plan := c.plan
	plan.FixedSize = offset.RoundUp(c.main.Fixed(), p.facts.WordSize())
	plan.Dynamic = c.main.IsDynamic()
	plan.Flexpages = c.flexpages
	if err := plan.Validate(p.facts.WordSize()); err != nil {
		return nil, err
	}
	debugf("%s/%s: %d slots, fixed %d, dynamic %v", op.Name, flow, len(plan.Slots), plan.FixedSize, plan.Dynamic)
	return plan, nil
}

func declIndex(op *idl.Operation, prm *idl.Parameter) int {
	for i, q := range op.Params {
		if q == prm {
			return i
		}
	}
	return 0
}

// PlanOperation plans both flows of op against sealed accounts. Errors are
// recorded on the result.
func (p *Planner) PlanOperation(op *idl.Operation, req, rep *FlexpageAccount) *OperationPlan {
	out := &OperationPlan{Operation: op}
	var err error
	for _, f := range Flows {
		acc := req
		if f == FlowReply {
			acc = rep
		}
		plan, ferr := p.PlanFlow(op, f, acc)
		if ferr != nil {
			err = multierr.Append(err, errors.InOperation(ferr, op.Name))
			continue
		}
		if f == FlowReply {
			out.Reply = plan
		} else {
			out.Request = plan
		}
	}
	if err != nil {
		out.Err = err
		Logger().Debug("operation not planned", zap.String("operation", op.Name), zap.Error(err))
		return out
	}

	out.ShortIPC = p.strategy.Analyze(&p.opts, out.Request, out.Reply)
	out.Request.ShortIPC = out.ShortIPC.Eligible
	out.Reply.ShortIPC = out.ShortIPC.Eligible
	return out
}

// PlanInterface counts flexpages across the interface, then plans every
// operation. Operations are independent after the count phase and run with
// up to Options.Parallelism workers. Results keep declaration order; the
// returned error combines all operation errors.
func (p *Planner) PlanInterface(ctx context.Context, iface *idl.Interface) (*InterfacePlan, error) {
	req, rep, err := p.Count(iface)
	if err != nil {
		return nil, err
	}
	ip := newInterfacePlan(iface, req, rep)

	g, gctx := errgroup.WithContext(ctx)
	if p.opts.Parallelism > 0 {
		g.SetLimit(p.opts.Parallelism)
	} else {
		g.SetLimit(1)
	}
	for i, op := range iface.Operations {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ip.Operations[i] = p.PlanOperation(op, req, rep)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, op := range ip.Operations {
		ip.byOpcode.ReplaceOrInsert(op)
	}
	Logger().Info("interface planned",
		zap.String("interface", iface.Name),
		zap.Int("operations", len(ip.Operations)),
		zap.Stringer("request_opcode", req.OpcodeLocation()),
		zap.Stringer("reply_opcode", rep.OpcodeLocation()))
	return ip, ip.Err()
}
