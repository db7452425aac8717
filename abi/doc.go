// Package abi holds the register tables used for short IPC.
//
// Register assignments are configuration data, not derived from a calling
// convention. The package embeds tables.yaml with the tables known at build
// time; Parse and ParseFile read additional ones in the same format.
//
// # Tables
//
//   - generic: two abstract payload words dw1, dw2 after the tag word dw0
//   - l4v2-ia32: opcode in edx, one payload word in ebx (staged via edi for PIC)
//   - l4x0-ia32: opcode in edx, payload words in ebx and edi
//
// The tag register carries the opcode on requests and the exception word on
// replies. Budget reports how many payload words a mode can carry.
package abi
