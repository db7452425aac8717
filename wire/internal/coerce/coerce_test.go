package coerce

import (
	"math"
	"testing"
)

func TestUnsigned(t *testing.T) {
	tests := []struct {
		input  any
		name   string
		bits   uint
		want   uint64
		wantOK bool
	}{
		{uint8(255), "uint8 max", 8, 255, true},
		{uint16(256), "uint16 over u8", 8, 0, false},
		{uint32(math.MaxUint32), "uint32 max", 32, math.MaxUint32, true},
		{uint64(math.MaxUint64), "uint64 max", 64, math.MaxUint64, true},
		{int(7), "int", 16, 7, true},
		{int64(-1), "int64 negative", 64, 0, false},
		{int32(-1), "int32 negative", 32, 0, false},
		{float64(42), "float64 whole", 32, 42, true},
		{float64(3.5), "float64 fractional", 32, 0, false},
		{float64(-1), "float64 negative", 32, 0, false},
		{float32(100), "float32 whole", 8, 100, true},
		{true, "bool", 8, 1, true},
		{"12", "string", 32, 0, false},
		{nil, "nil", 32, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Unsigned(tt.input, tt.bits)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSigned(t *testing.T) {
	tests := []struct {
		input  any
		name   string
		bits   uint
		want   int64
		wantOK bool
	}{
		{int8(-128), "int8 min", 8, -128, true},
		{int(128), "int over s8", 8, 0, false},
		{int(-129), "int under s8", 8, 0, false},
		{int32(math.MinInt32), "int32 min", 32, math.MinInt32, true},
		{int64(math.MaxInt64), "int64 max", 64, math.MaxInt64, true},
		{uint64(math.MaxUint64), "uint64 max", 64, 0, false},
		{uint16(40000), "uint16 over s16", 16, 0, false},
		{float64(-7), "float64 whole", 16, -7, true},
		{float64(0.5), "float64 fractional", 16, 0, false},
		{"x", "string", 32, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Signed(tt.input, tt.bits)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFloat(t *testing.T) {
	tests := []struct {
		input  any
		want   float64
		wantOK bool
	}{
		{float32(1.5), 1.5, true},
		{float64(-2.25), -2.25, true},
		{int(3), 3, true},
		{uint8(9), 9, true},
		{int64(1<<53 + 1), 0, false},
		{"1.0", 0, false},
	}
	for _, tt := range tests {
		t.Run(TypeName(tt.input), func(t *testing.T) {
			got, ok := Float(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTypeName(t *testing.T) {
	if got := TypeName(nil); got != "nil" {
		t.Errorf("got %q, want nil", got)
	}
	if got := TypeName(uint16(1)); got != "uint16" {
		t.Errorf("got %q, want uint16", got)
	}
}
