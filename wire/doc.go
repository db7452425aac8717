// Package wire moves values through messages laid out by the planner.
//
// The planner decides where every byte goes; wire follows those decisions at
// runtime. Encoder walks a MarshalPlan and writes Values into a Message,
// Decoder walks the same plan on the receiving side:
//
//	plan := ip.Operations[0].Request
//	msg, err := wire.NewEncoder(facts).Encode(plan, opcode, wire.Values{"a": 1})
//	...
//	got, opcode, err := wire.NewDecoder(facts, nil).Decode(plan, msg, nil, nil)
//
// Variable-size values are received the way the plan says: copied, aliased
// into the message buffer, taken from an Allocator, or copied into caller
// storage passed as known values. Allocations are recorded in an
// AllocationList so the stub can hand them back.
//
// Indirect strings travel as out-of-band parts in Message.Strings; the
// descriptor's pointer word holds the part index.
//
// LocateOpcode finds the opcode of a request ahead of dispatch, and
// Encoder.Registers and Decoder.FromRegisters convert short-IPC messages to
// and from register files.
package wire
