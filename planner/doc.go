// Package planner assigns message offsets to the parameters of RPC
// operations for a message-passing microkernel.
//
// # Flows
//
// Each operation has two messages. The request carries in and inout
// parameters and the opcode; the reply carries out and inout parameters,
// the return value and the exception word. Planning produces one
// MarshalPlan per flow. The sender marshals with it and the receiver
// unmarshals with it, so both sides agree to the byte.
//
// # Phases
//
// PlanInterface first counts the flexpages every operation sends in each
// flow and seals the two FlexpageAccounts. Only then are operations planned,
// in parallel if configured. Planning one flow walks a fixed state machine:
//
//	start -> sorting -> planning <-> flexpage-closing -> finalizing
//
// # Layout
//
// Flexpages come first, two words each (one pair per element of a flexpage
// array), closed by an 8-byte zero delimiter.
// The opcode (or exception word) follows at 8*n+8, or at 0 when the message
// has no flexpages. A receiver finds the opcode at a constant offset when
// every operation of the interface sends the same number of flexpages and
// scans for the delimiter otherwise.
//
// Offsets are literals until the first runtime-sized slot. From there on
// they are the runtime offset variable named by the Namer. Indirect strings
// do not occupy the main region: they get 16-byte descriptors in a string
// table placed after the word-rounded main region.
//
// # Strategies
//
//   - Generic: one slot per scalar or array row
//   - Optimized: block copies of constant arrays, server-side aliasing
//   - Target: flexpages, indirect strings and short IPC for an ABI table
package planner
