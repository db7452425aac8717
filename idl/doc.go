// Package idl holds the front-end view of an interface: types, declarators,
// parameters, operations and the TypeFacts query surface the planner uses.
//
// The planner treats everything here as read-only input. Sizes, pointer-ness,
// array bounds and string-ness are always answered by a TypeFacts value; the
// planner never computes them on its own.
//
// # Sources
//
// Interfaces can be built in Go, loaded from a YAML description, or converted
// from WIT types:
//
//	doc, err := idl.LoadFile("fs.yaml")
//	m, err := idl.FromWIT("point", pointTypeDef)
//
// A YAML description lists named types and operations:
//
//	interface: fs
//	options:
//	  abi: l4x0-ia32
//	types:
//	  - name: stat
//	    kind: struct
//	    members:
//	      - {name: size, type: unsigned long}
//	      - {name: mode, type: int}
//	operations:
//	  - name: read
//	    params:
//	      - {name: len, dir: in, type: int}
//	      - {name: buf, dir: out, type: char, pointer: 1, attrs: ["size_is(len)"]}
//
// Type names resolve against declared types first, then interface
// description spellings (int, unsigned long, mword, fpage, ...), then WIT
// primitive names (u8 ... s64, f32, f64, bool, string).
//
// Types of kind record, tuple, variant, option, result, enum, flags and list
// are declared in WIT terms and converted like FromWIT. Their fields name WIT
// primitives or other WIT-kind types. A list type is only valid as a
// declarator, where it becomes an unbound array:
//
//	types:
//	  - {name: color, kind: enum, names: [red, green]}
//	  - {name: bytes, kind: list, type: u8}
//	  - name: blob
//	    kind: record
//	    members:
//	      - {name: tag, type: color}
//	      - {name: data, type: bytes}
//
// # Sizes
//
// StandardFacts lays members out packed, as message cells: a struct is the
// sum of its members, a union is its discriminant plus its largest arm, a
// flexpage is two 4-byte words.
package idl
