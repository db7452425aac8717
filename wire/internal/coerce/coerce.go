package coerce

import (
	"math"
	"reflect"
)

// Unsigned returns v as an unsigned integer that fits in bits.
func Unsigned(v any, bits uint) (uint64, bool) {
	var u uint64
	switch x := v.(type) {
	case uint8:
		u = uint64(x)
	case uint16:
		u = uint64(x)
	case uint32:
		u = uint64(x)
	case uint64:
		u = x
	case uint:
		u = uint64(x)
	case int8, int16, int32, int64, int:
		i := reflect.ValueOf(x).Int()
		if i < 0 {
			return 0, false
		}
		u = uint64(i)
	case float64:
		if x < 0 || x >= math.MaxUint64 || x != math.Trunc(x) {
			return 0, false
		}
		u = uint64(x)
	case float32:
		// widen first so the range check does not lose precision
		f := float64(x)
		if f < 0 || f >= math.MaxUint64 || f != math.Trunc(f) {
			return 0, false
		}
		u = uint64(f)
	case bool:
		if x {
			u = 1
		}
	default:
		return 0, false
	}
	if bits < 64 && u>>bits != 0 {
		return 0, false
	}
	return u, true
}

// Signed returns v as a signed integer that fits in bits.
func Signed(v any, bits uint) (int64, bool) {
	var i int64
	switch x := v.(type) {
	case int8:
		i = int64(x)
	case int16:
		i = int64(x)
	case int32:
		i = int64(x)
	case int64:
		i = x
	case int:
		i = int64(x)
	case uint8, uint16, uint32, uint64, uint:
		u := reflect.ValueOf(x).Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		i = int64(u)
	case float64:
		if x < math.MinInt64 || x >= math.MaxInt64 || x != math.Trunc(x) {
			return 0, false
		}
		i = int64(x)
	case float32:
		f := float64(x)
		if f < math.MinInt64 || f >= math.MaxInt64 || f != math.Trunc(f) {
			return 0, false
		}
		i = int64(f)
	default:
		return 0, false
	}
	if bits < 64 {
		lo, hi := -int64(1)<<(bits-1), int64(1)<<(bits-1)-1
		if i < lo || i > hi {
			return 0, false
		}
	}
	return i, true
}

// Float returns v as a float64. Integers convert when exactly representable.
func Float(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int, int8, int16, int32, int64:
		i := reflect.ValueOf(x).Int()
		f := float64(i)
		return f, int64(f) == i
	case uint, uint8, uint16, uint32, uint64:
		u := reflect.ValueOf(x).Uint()
		f := float64(u)
		return f, f < math.MaxUint64 && uint64(f) == u
	}
	return 0, false
}

// TypeName returns "nil" for nil values, avoiding reflect.TypeOf(nil) panic.
func TypeName(value any) string {
	if value == nil {
		return "nil"
	}
	return reflect.TypeOf(value).String()
}
