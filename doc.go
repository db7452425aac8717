// Package ipcgen plans the message layout of RPC stubs for a message-passing
// microkernel.
//
// An IDL front end hands over operations with typed, directional parameters.
// The planner decides where every value travels: at which byte offset of the
// request or reply, whether that offset is known at compile time, which
// values go as flexpages or out-of-band strings, and whether the whole call
// fits into registers.
//
// # Architecture Overview
//
//	ipcgen/             Root package with the Allocator and Buffer interfaces
//	├── idl/            Types, parameters, operations, TypeFacts, YAML and WIT loaders
//	├── abi/            Short-IPC register tables per kernel ABI
//	├── planner/        Sorter, strategies, flexpage accounting, MarshalPlan
//	├── wire/           Runs a MarshalPlan against a message buffer
//	├── errors/         Structured error types
//	└── cmd/ipcgen/     Command line report, watch mode and plan browser
//
// # Quick Start
//
//	doc, err := idl.LoadFile("fs.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	opts, err := planner.OptionsFrom(doc.Options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	p, err := planner.New(nil, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ip, err := p.PlanInterface(ctx, doc.Interface)
//	for _, op := range ip.Operations {
//	    fmt.Println(op.Operation.Name, op.Request.FixedSize, op.ShortIPC.Eligible)
//	}
//
// # Message Layout
//
//	┌───────────────┬───────────┬────────┬─────────────────────┬──────────────┐
//	│ flexpages 8*n │ delimiter │ opcode │ parameters (sorted) │ string table │
//	└───────────────┴───────────┴────────┴─────────────────────┴──────────────┘
//
// Without flexpages the opcode sits at offset 0. Replies carry the
// exception word in place of the opcode.
//
// # Strategies
//
//   - generic: one slot per value, no registers, no flexpages
//   - optimized: block copies and in-place reads on the server
//   - target: flexpages, indirect strings and short IPC for an ABI table
package ipcgen
