// Package coerce converts loosely typed Go values (YAML and JSON numbers,
// any sized integer) to the fixed-width integers and floats written into a
// message.
//
// This package is internal to wire.
package coerce
