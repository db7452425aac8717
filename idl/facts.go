package idl

import "sync"

// DefaultStringMax caps strings whose type and declarator carry no bound.
const DefaultStringMax = 1024

// Bound is one array dimension. Fixed bounds carry Value; open bounds may name
// the sibling that supplies the element count at runtime.
type Bound struct {
	Var   string
	Value uint32
	Fixed bool
}

// TypeFacts answers the read-only type queries the planner relies on.
// The planner never computes sizes itself.
type TypeFacts interface {
	SizeOf(t *Type) uint32
	MaxSizeOf(t *Type) uint32
	IsPointer(m *Member) bool
	ArrayBounds(m *Member) []Bound
	IsString(m *Member) bool
	IsFlexpage(t *Type) bool
	Resolve(t *Type) *Type
	WordSize() uint32
}

// StandardFacts sizes types as packed message cells: no padding between
// members, unions as discriminant plus the largest arm.
type StandardFacts struct {
	cache     map[*Type]uint32
	Word      uint32
	StringMax uint32
	mu        sync.Mutex
}

// NewStandardFacts returns facts for the given machine word size.
func NewStandardFacts(word uint32) *StandardFacts {
	if word == 0 {
		word = 4
	}
	return &StandardFacts{
		Word:      word,
		StringMax: DefaultStringMax,
		cache:     make(map[*Type]uint32),
	}
}

func (f *StandardFacts) WordSize() uint32 {
	return f.Word
}

func (f *StandardFacts) Resolve(t *Type) *Type {
	return t.Resolve()
}

func (f *StandardFacts) SizeOf(t *Type) uint32 {
	t = t.Resolve()
	if t == nil {
		return 0
	}
	switch t.Kind {
	case KindVoid:
		return 0
	case KindBool, KindChar, KindU8, KindS8:
		return 1
	case KindU16, KindS16:
		return 2
	case KindU32, KindS32, KindF32:
		return 4
	case KindU64, KindS64, KindF64:
		return 8
	case KindWord, KindString:
		return f.Word
	case KindFlexpage:
		return 8
	case KindStruct, KindUnion:
		return f.constructedSize(t)
	default:
		return 0
	}
}

func (f *StandardFacts) constructedSize(t *Type) uint32 {
	f.mu.Lock()
	if size, ok := f.cache[t]; ok {
		f.mu.Unlock()
		return size
	}
	f.mu.Unlock()

	var size uint32
	if t.Kind == KindStruct {
		for _, m := range t.Members {
			size += f.SizeOf(m.Type) * m.Elements()
		}
	} else {
		var largest uint32
		for _, c := range t.Cases {
			if c.Member == nil {
				continue
			}
			if s := f.SizeOf(c.Member.Type) * c.Member.Elements(); s > largest {
				largest = s
			}
		}
		size = f.SizeOf(t.Switch) + largest
	}

	f.mu.Lock()
	f.cache[t] = size
	f.mu.Unlock()
	return size
}

func (f *StandardFacts) MaxSizeOf(t *Type) uint32 {
	r := t.Resolve()
	if r != nil && r.Kind == KindString {
		if r.Max > 0 {
			return r.Max
		}
		return f.StringMax
	}
	return f.SizeOf(t)
}

func (f *StandardFacts) IsFlexpage(t *Type) bool {
	r := t.Resolve()
	return r != nil && r.Kind == KindFlexpage
}

func (f *StandardFacts) IsString(m *Member) bool {
	r := m.Type.Resolve()
	if r == nil {
		return false
	}
	if r.Kind == KindString {
		return true
	}
	if !m.Attrs.String {
		return false
	}
	return (r.Kind == KindChar || r.Kind == KindU8 || r.Kind == KindS8) &&
		(m.Pointer > 0 || len(m.Dims) > 0)
}

func (f *StandardFacts) IsPointer(m *Member) bool {
	if m.Pointer > 0 {
		return true
	}
	r := m.Type.Resolve()
	return r != nil && r.Kind == KindString
}

func (f *StandardFacts) ArrayBounds(m *Member) []Bound {
	var bounds []Bound
	for _, d := range m.Dims {
		if d == 0 {
			bounds = append(bounds, Bound{Var: m.Attrs.SizeFrom()})
			continue
		}
		bounds = append(bounds, Bound{Value: d, Fixed: true})
	}
	if len(m.Dims) == 0 && m.Pointer > 0 && m.Attrs.HasSize() && !f.IsString(m) {
		bounds = append(bounds, Bound{Var: m.Attrs.SizeFrom()})
	}
	return bounds
}
