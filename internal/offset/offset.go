package offset

import (
	"math"
	"strconv"
)

// Offset is a slot position: a literal while the region is constant, the
// runtime offset variable once it went dynamic.
type Offset struct {
	Var   string
	Const uint32
}

// At returns a constant offset.
func At(n uint32) Offset {
	return Offset{Const: n}
}

// Symbolic returns a runtime offset held in variable v.
func Symbolic(v string) Offset {
	return Offset{Var: v}
}

func (o Offset) IsConstant() bool {
	return o.Var == ""
}

func (o Offset) String() string {
	if o.Var != "" {
		return o.Var
	}
	return strconv.FormatUint(uint64(o.Const), 10)
}

// Size is a slot length. Dynamic sizes are known only at runtime; Expr names
// the expression or temporary that holds them.
type Size struct {
	Expr    string
	Bytes   uint32
	Dynamic bool
}

// Fixed returns a compile-time constant size.
func Fixed(n uint32) Size {
	return Size{Bytes: n}
}

// Runtime returns a size computed at runtime by expr.
func Runtime(expr string) Size {
	return Size{Expr: expr, Dynamic: true}
}

func (s Size) String() string {
	if s.Dynamic {
		if s.Expr == "" {
			return "?"
		}
		return s.Expr
	}
	return strconv.FormatUint(uint64(s.Bytes), 10)
}

func SafeMulU32(a, b uint32) (uint32, bool) {
	if b != 0 && a > math.MaxUint32/b {
		return 0, false
	}
	return a * b, true
}

func SafeAddU32(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}

// RoundUp rounds n up to a multiple of word. word must be a power of two.
func RoundUp(n, word uint32) uint32 {
	if word == 0 {
		return n
	}
	return (n + word - 1) &^ (word - 1)
}
