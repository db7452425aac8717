package wire

import (
	"reflect"

	"github.com/wippyai/ipcgen"
	"github.com/wippyai/ipcgen/internal/path"
	"github.com/wippyai/ipcgen/wire/internal/coerce"
)

// Values maps parameter names to Go values.
//
//	scalars        any integer or float type, bool
//	strings        string or []byte
//	arrays         []any or any typed slice, flattened row-major
//	structs        map[string]any keyed by member name
//	unions         Union or *Union
//	flexpages      Flexpage
//
// Decoding produces the canonical form: the fixed-width Go type of each
// scalar kind, []byte for strings and byte arrays, []any for other arrays,
// map[string]any for structs and *Union for unions.
type Values map[string]any

// Union is a discriminated union value. Value holds the selected arm.
type Union struct {
	Value  any
	Switch uint64
}

// Flexpage is a memory mapping sent with a message: the send base and the
// flexpage descriptor word.
type Flexpage struct {
	Base  uint32
	Fpage uint32
}

// Message is one marshalled flow: the main region with its string
// descriptors, and the out-of-band parts that indirect strings point at.
type Message struct {
	pooled  *[]byte
	Buf     []byte
	Strings [][]byte
}

var _ ipcgen.Buffer = (*Message)(nil)

// NewMessage wraps received bytes.
func NewMessage(buf []byte, strings ...[]byte) *Message {
	return &Message{Buf: buf, Strings: strings}
}

func (m *Message) Bytes() []byte {
	return m.Buf
}

func (m *Message) Len() int {
	return len(m.Buf)
}

// Release returns the buffer to the encoder pool. Values aliasing the
// message are invalid afterwards.
func (m *Message) Release() {
	if m.pooled != nil {
		*m.pooled = m.Buf[:0]
		putBuf(m.pooled)
		m.pooled = nil
	}
	m.Buf = nil
	m.Strings = nil
}

// Lookup returns the value at a planner path such as [req items [2] len].
func (v Values) Lookup(segs []string) (any, bool) {
	var cur any = map[string]any(v)
	for _, seg := range segs {
		if i, ok := path.ParseIndex(seg); ok {
			seq, ok := sequence(cur)
			if !ok || int(i) >= seq.Len() {
				return nil, false
			}
			cur = seq.Index(int(i)).Interface()
			continue
		}
		switch n := cur.(type) {
		case map[string]any:
			next, found := n[seg]
			if !found {
				return nil, false
			}
			cur = next
		case Values:
			next, found := n[seg]
			if !found {
				return nil, false
			}
			cur = next
		case *Union:
			cur = n.Value
		case Union:
			cur = n.Value
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set stores x at a planner path, creating structs, arrays and union arms
// on the way.
func (v Values) Set(segs []string, x any) {
	setIn(map[string]any(v), segs, x)
}

func setIn(node any, segs []string, x any) any {
	if len(segs) == 0 {
		return x
	}
	seg, rest := segs[0], segs[1:]
	if i, ok := path.ParseIndex(seg); ok {
		list, _ := node.([]any)
		for len(list) <= int(i) {
			list = append(list, nil)
		}
		list[i] = setIn(list[i], rest, x)
		return list
	}
	switch n := node.(type) {
	case *Union:
		n.Value = setIn(n.Value, rest, x)
		return n
	case map[string]any:
		n[seg] = setIn(n[seg], rest, x)
		return n
	case Values:
		n[seg] = setIn(n[seg], rest, x)
		return n
	default:
		m := map[string]any{}
		m[seg] = setIn(nil, rest, x)
		return m
	}
}

// sequence returns v as a reflect slice. Strings are not sequences.
func sequence(v any) (reflect.Value, bool) {
	if v == nil {
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return reflect.Value{}, false
	}
	return rv, true
}

// bytesOf returns the raw bytes of a string value.
func bytesOf(v any) ([]byte, bool) {
	switch s := v.(type) {
	case string:
		return []byte(s), true
	case []byte:
		return s, true
	}
	return nil, false
}

func unionOf(v any) (*Union, bool) {
	switch u := v.(type) {
	case *Union:
		return u, u != nil
	case Union:
		return &u, true
	}
	return nil, false
}

func uintOf(v any) (uint64, bool) {
	return coerce.Unsigned(v, 64)
}
