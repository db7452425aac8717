package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/wire/internal/coerce"
)

// Messages are little-endian, as on every kernel ABI in the register tables.
var order = binary.LittleEndian

func putUint(dst []byte, size uint32, v uint64) {
	switch size {
	case 1:
		dst[0] = byte(v)
	case 2:
		order.PutUint16(dst, uint16(v))
	case 4:
		order.PutUint32(dst, uint32(v))
	case 8:
		order.PutUint64(dst, v)
	}
}

func getUint(src []byte, size uint32) uint64 {
	switch size {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(order.Uint16(src))
	case 4:
		return uint64(order.Uint32(src))
	case 8:
		return order.Uint64(src)
	}
	return 0
}

// isByteKind reports whether arrays of t decode to []byte.
func isByteKind(t *idl.Type) bool {
	return t != nil && (t.Kind == idl.KindU8 || t.Kind == idl.KindChar)
}

// cells packs fixed-size values the way idl.StandardFacts sizes them: no
// padding between members, unions as discriminant plus the largest arm.
type cells struct {
	facts idl.TypeFacts
	phase errors.Phase
}

func (c *cells) mismatch(segs []string, t *idl.Type, v any) error {
	return errors.New(c.phase, errors.KindInvalidData).
		Path(segs...).
		Type(t.String()).
		Detail("cannot use Go %s", coerce.TypeName(v)).
		Build()
}

// put writes v as a value of type t into dst, which is exactly SizeOf(t) long.
func (c *cells) put(dst []byte, t *idl.Type, v any, segs []string) error {
	t = c.facts.Resolve(t)
	size := c.facts.SizeOf(t)
	switch t.Kind {
	case idl.KindVoid:
		return nil
	case idl.KindF32:
		f, ok := coerce.Float(v)
		if !ok {
			return c.mismatch(segs, t, v)
		}
		order.PutUint32(dst, math.Float32bits(float32(f)))
	case idl.KindF64:
		f, ok := coerce.Float(v)
		if !ok {
			return c.mismatch(segs, t, v)
		}
		order.PutUint64(dst, math.Float64bits(f))
	case idl.KindS8, idl.KindS16, idl.KindS32, idl.KindS64:
		i, ok := coerce.Signed(v, uint(size*8))
		if !ok {
			return c.mismatch(segs, t, v)
		}
		putUint(dst, size, uint64(i))
	case idl.KindStruct:
		return c.putStruct(dst, t, v, segs)
	case idl.KindUnion:
		return c.putUnion(dst, t, v, segs)
	default:
		if !t.Kind.IsScalar() {
			return c.mismatch(segs, t, v)
		}
		u, ok := coerce.Unsigned(v, uint(size*8))
		if !ok {
			return c.mismatch(segs, t, v)
		}
		putUint(dst, size, u)
	}
	return nil
}

func (c *cells) putStruct(dst []byte, t *idl.Type, v any, segs []string) error {
	fields, ok := v.(map[string]any)
	if !ok {
		if vv, isValues := v.(Values); isValues {
			fields, ok = map[string]any(vv), true
		}
	}
	if !ok {
		return c.mismatch(segs, t, v)
	}
	var at uint32
	for _, m := range t.Members {
		fv, found := fields[m.Name]
		if !found {
			return errors.InvalidData(c.phase, append(segs, m.Name), "missing struct member")
		}
		n, err := c.putMember(dst[at:], m, fv, append(segs, m.Name))
		if err != nil {
			return err
		}
		at += n
	}
	return nil
}

// putMember writes a struct member or union arm, which may be a fixed array.
func (c *cells) putMember(dst []byte, m *idl.Member, v any, segs []string) (uint32, error) {
	elem := c.facts.SizeOf(m.Type)
	if len(m.Dims) == 0 {
		return elem, c.put(dst[:elem], m.Type, v, segs)
	}
	n := m.Elements()
	if err := c.putElements(dst, m.Type, v, 0, n, segs); err != nil {
		return 0, err
	}
	return n * elem, nil
}

// putElements writes count elements of an array value starting at first.
func (c *cells) putElements(dst []byte, t *idl.Type, v any, first, count uint32, segs []string) error {
	size := c.facts.SizeOf(t)
	if raw, ok := bytesOf(v); ok && size == 1 {
		if uint32(len(raw)) < first+count {
			return errors.OutOfBounds(c.phase, segs, int(first+count), len(raw))
		}
		copy(dst, raw[first:first+count])
		return nil
	}
	seq, ok := sequence(v)
	if !ok {
		return c.mismatch(segs, t, v)
	}
	if uint32(seq.Len()) < first+count {
		return errors.OutOfBounds(c.phase, segs, int(first+count), seq.Len())
	}
	for i := uint32(0); i < count; i++ {
		at := i * size
		if err := c.put(dst[at:at+size], t, seq.Index(int(first+i)).Interface(), segs); err != nil {
			return err
		}
	}
	return nil
}

func (c *cells) putUnion(dst []byte, t *idl.Type, v any, segs []string) error {
	u, ok := unionOf(v)
	if !ok {
		return c.mismatch(segs, t, v)
	}
	sw := c.facts.SizeOf(t.Switch)
	if err := c.put(dst[:sw], t.Switch, u.Switch, segs); err != nil {
		return err
	}
	arm, ok := t.CaseFor(u.Switch)
	if !ok {
		return errors.InvalidData(c.phase, segs, fmt.Sprintf("no arm for discriminant %d", u.Switch))
	}
	if arm.Member == nil {
		return nil
	}
	_, err := c.putMember(dst[sw:], arm.Member, u.Value, append(segs, arm.Member.Name))
	return err
}

// get reads a value of type t from src, which is exactly SizeOf(t) long.
func (c *cells) get(src []byte, t *idl.Type, segs []string) (any, error) {
	t = c.facts.Resolve(t)
	size := c.facts.SizeOf(t)
	switch t.Kind {
	case idl.KindVoid:
		return nil, nil
	case idl.KindBool:
		return src[0] != 0, nil
	case idl.KindChar, idl.KindU8:
		return src[0], nil
	case idl.KindS8:
		return int8(src[0]), nil
	case idl.KindU16:
		return order.Uint16(src), nil
	case idl.KindS16:
		return int16(order.Uint16(src)), nil
	case idl.KindU32:
		return order.Uint32(src), nil
	case idl.KindS32:
		return int32(order.Uint32(src)), nil
	case idl.KindU64:
		return order.Uint64(src), nil
	case idl.KindS64:
		return int64(order.Uint64(src)), nil
	case idl.KindF32:
		return math.Float32frombits(order.Uint32(src)), nil
	case idl.KindF64:
		return math.Float64frombits(order.Uint64(src)), nil
	case idl.KindWord:
		return getUint(src, size), nil
	case idl.KindStruct:
		out := make(map[string]any, len(t.Members))
		var at uint32
		for _, m := range t.Members {
			v, n, err := c.getMember(src[at:], m, append(segs, m.Name))
			if err != nil {
				return nil, err
			}
			out[m.Name] = v
			at += n
		}
		return out, nil
	case idl.KindUnion:
		sw := c.facts.SizeOf(t.Switch)
		u := &Union{Switch: getUint(src, sw)}
		arm, ok := t.CaseFor(u.Switch)
		if !ok {
			return nil, errors.InvalidData(c.phase, segs, fmt.Sprintf("no arm for discriminant %d", u.Switch))
		}
		if arm.Member != nil {
			v, _, err := c.getMember(src[sw:], arm.Member, append(segs, arm.Member.Name))
			if err != nil {
				return nil, err
			}
			u.Value = v
		}
		return u, nil
	}
	return nil, errors.New(c.phase, errors.KindUnsupportedLayout).
		Path(segs...).
		Type(t.String()).
		Detail("not a fixed-size value").
		Build()
}

func (c *cells) getMember(src []byte, m *idl.Member, segs []string) (any, uint32, error) {
	elem := c.facts.SizeOf(m.Type)
	if len(m.Dims) == 0 {
		v, err := c.get(src[:elem], m.Type, segs)
		return v, elem, err
	}
	n := m.Elements()
	v, err := c.getElements(src, m.Type, n, segs)
	return v, n * elem, err
}

// getElements reads count elements: []byte for byte kinds, []any otherwise.
func (c *cells) getElements(src []byte, t *idl.Type, count uint32, segs []string) (any, error) {
	t = c.facts.Resolve(t)
	size := c.facts.SizeOf(t)
	if isByteKind(t) {
		out := make([]byte, count)
		copy(out, src[:count])
		return out, nil
	}
	out := make([]any, count)
	for i := uint32(0); i < count; i++ {
		at := i * size
		v, err := c.get(src[at:at+size], t, segs)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
