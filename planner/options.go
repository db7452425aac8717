package planner

import (
	"fmt"
	"strings"

	"github.com/wippyai/ipcgen/abi"
	"github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/idl"
)

// StrategyKind selects how parameters are laid out.
type StrategyKind uint8

const (
	// StrategyGeneric copies every value into its own slot.
	StrategyGeneric StrategyKind = iota
	// StrategyOptimized adds block copies and server-side aliasing.
	StrategyOptimized
	// StrategyTarget adds flexpages, indirect strings and short IPC.
	StrategyTarget
)

var strategyNames = [...]string{"generic", "optimized", "target"}

func (k StrategyKind) String() string {
	if int(k) < len(strategyNames) {
		return strategyNames[k]
	}
	return "unknown"
}

// ParseStrategy maps a strategy name to its kind.
func ParseStrategy(s string) (StrategyKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range strategyNames {
		if n == s {
			return StrategyKind(i), nil
		}
	}
	return 0, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Detail("unknown strategy %q", s).
		Build()
}

// Options configures planning.
type Options struct {
	// Namer names the runtime variables referenced by symbolic offsets and sizes.
	Namer Namer
	// Policy orders non-flexpage parameters. Nil uses DefaultPolicy.
	Policy SortPolicy
	// Tables resolves ABI names. Nil uses the built-in tables.
	Tables *abi.Registry
	// ABI names the register table used for short IPC.
	ABI string
	// Mode selects the register variant of the ABI.
	Mode abi.Mode
	// Allocator is the hook receivers call for buffers they must own.
	Allocator string
	// OptLevel below 1 disables short IPC.
	OptLevel int
	// Parallelism bounds concurrent operation planning. 0 or less plans serially.
	Parallelism int
	// OpcodeSize is the width of the opcode on requests.
	OpcodeSize uint32
	Strategy   StrategyKind
	// ExceptionWord reserves a word at the head of every reply.
	ExceptionWord bool
}

// DefaultOptions returns the target strategy on the generic ABI.
func DefaultOptions() Options {
	return Options{
		Namer:         DefaultNamer{Prefix: "_ipc_"},
		ABI:           "generic",
		Mode:          abi.ModeNoPIC,
		Allocator:     "ipc_alloc",
		OptLevel:      1,
		OpcodeSize:    4,
		Strategy:      StrategyTarget,
		ExceptionWord: true,
	}
}

func (o *Options) table() (*abi.Table, error) {
	reg := o.Tables
	if reg == nil {
		reg = abi.Builtin()
	}
	return reg.Lookup(o.ABI)
}

func (o *Options) validate() error {
	if o.OpcodeSize != 1 && o.OpcodeSize != 2 && o.OpcodeSize != 4 && o.OpcodeSize != 8 {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("opcode size %d", o.OpcodeSize))
	}
	if o.Strategy > StrategyTarget {
		return errors.InvalidInput(errors.PhaseConfig, "unknown strategy")
	}
	return nil
}

// Namer names runtime variables of generated stubs.
type Namer interface {
	// OffsetVar holds the running offset of a region once it is dynamic.
	OffsetVar(region Region) string
	// SavedOffsetVar holds the main offset while indirect strings are realigned.
	SavedOffsetVar() string
	// TempVar holds the n-th runtime length computed by the stub.
	TempVar(n int) string
}

// DefaultNamer prefixes fixed names.
type DefaultNamer struct {
	Prefix string
}

func (n DefaultNamer) OffsetVar(region Region) string {
	if region == RegionStrings {
		return n.Prefix + "str_offset"
	}
	return n.Prefix + "offset"
}

func (n DefaultNamer) SavedOffsetVar() string {
	return n.Prefix + "saved_offset"
}

func (n DefaultNamer) TempVar(i int) string {
	return fmt.Sprintf("%stmp%d", n.Prefix, i)
}

// OptionsFrom returns DefaultOptions overridden by the options block of an
// interface description.
func OptionsFrom(d idl.DocumentOptions) (Options, error) {
	o := DefaultOptions()
	if d.ABI != "" {
		o.ABI = d.ABI
	}
	if d.Strategy != "" {
		k, err := ParseStrategy(d.Strategy)
		if err != nil {
			return o, err
		}
		o.Strategy = k
	}
	if d.Mode != "" {
		m, err := abi.ParseMode(d.Mode)
		if err != nil {
			return o, err
		}
		o.Mode = m
	}
	if d.Allocator != "" {
		o.Allocator = d.Allocator
	}
	if d.OptLevel != nil {
		o.OptLevel = *d.OptLevel
	}
	if d.Exception != nil {
		o.ExceptionWord = *d.Exception
	}
	return o, nil
}
