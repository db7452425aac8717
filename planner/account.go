package planner

import (
	"fmt"

	"github.com/wippyai/ipcgen/errors"
)

// FlexpageDelimiter is the size of the zero words closing a flexpage list.
const FlexpageDelimiter = 8

// OpcodeLocation is where a receiver finds the opcode of a flow.
type OpcodeLocation struct {
	// Offset is the constant position when Scan is false.
	Offset uint32
	// Scan asks the receiver to walk 8-byte steps from 0 to the two zero
	// delimiter words and read the opcode right after them.
	Scan bool
}

func (l OpcodeLocation) String() string {
	if l.Scan {
		return "scan"
	}
	return fmt.Sprintf("@%d", l.Offset)
}

// FlexpageAccount counts the flexpages each operation of an interface sends in
// one flow. It is filled in the count phase and read-only once sealed.
type FlexpageAccount struct {
	counts  map[string]int
	total   int
	flow    Flow
	uniform bool
	sealed  bool
}

// NewFlexpageAccount returns an empty account for flow f.
func NewFlexpageAccount(f Flow) *FlexpageAccount {
	return &FlexpageAccount{counts: make(map[string]int), flow: f, uniform: true}
}

// Record notes that op sends n flexpages. Operations without flexpages do not
// affect uniformity.
func (a *FlexpageAccount) Record(op string, n int) {
	if a.sealed {
		panic(errors.New(errors.PhaseCount, errors.KindInvalidInput).
			Operation(op).
			Detail("%s flexpage account is sealed", a.flow).
			Build())
	}
	a.counts[op] = n
	if n == 0 {
		return
	}
	if a.total != 0 && a.total != n {
		a.uniform = false
	}
	if n > a.total {
		a.total = n
	}
}

// Seal ends the count phase.
func (a *FlexpageAccount) Seal() {
	a.sealed = true
}

func (a *FlexpageAccount) Sealed() bool {
	return a.sealed
}

func (a *FlexpageAccount) mustBeSealed() {
	if !a.sealed {
		panic(errors.New(errors.PhasePlan, errors.KindInvalidInput).
			Detail("%s flexpage account read before the count phase finished", a.flow).
			Build())
	}
}

// IsUniform reports whether every operation that sends flexpages sends the
// same number.
func (a *FlexpageAccount) IsUniform() bool {
	a.mustBeSealed()
	return a.uniform
}

// Total is the largest flexpage count of any operation.
func (a *FlexpageAccount) Total() int {
	a.mustBeSealed()
	return a.total
}

// Count returns the flexpages recorded for op.
func (a *FlexpageAccount) Count(op string) int {
	a.mustBeSealed()
	return a.counts[op]
}

// OpcodeLocation is the receiver's opcode position for messages that carry
// flexpages. Messages without flexpages hold the opcode at 0.
func (a *FlexpageAccount) OpcodeLocation() OpcodeLocation {
	a.mustBeSealed()
	if a.total == 0 {
		return OpcodeLocation{}
	}
	if a.uniform {
		return OpcodeLocation{Offset: headerOffset(a.total)}
	}
	return OpcodeLocation{Scan: true}
}

// headerOffset is where the sender writes the header word after n flexpages.
func headerOffset(n int) uint32 {
	if n == 0 {
		return 0
	}
	return uint32(8*n + FlexpageDelimiter)
}
