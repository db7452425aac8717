// Package offset tracks slot positions inside a message region.
//
// A region is laid out front to back. While every slot so far has a
// compile-time size the next position is a literal; after the first
// runtime-sized slot it is the runtime offset variable and stays so.
//
// This package is internal to the planner.
package offset
