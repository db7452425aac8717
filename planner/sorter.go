package planner

import (
	"sort"

	"github.com/wippyai/ipcgen/errors"
	"github.com/wippyai/ipcgen/idl"
)

// SortPolicy orders parameters that are neither flexpages nor the return
// value. Less must be a strict weak order.
type SortPolicy interface {
	Less(a, b *idl.Parameter) bool
}

// SortPolicyFunc adapts a function to SortPolicy.
type SortPolicyFunc func(a, b *idl.Parameter) bool

func (f SortPolicyFunc) Less(a, b *idl.Parameter) bool {
	return f(a, b)
}

// DefaultPolicy puts fixed-size values first: word-sized, then larger ones by
// descending size, then smaller ones by descending size. Variable-size values
// follow with structs and unions ahead of the rest.
type DefaultPolicy struct {
	Facts idl.TypeFacts
}

func (p DefaultPolicy) Less(a, b *idl.Parameter) bool {
	ca, sa := p.rank(&a.Member)
	cb, sb := p.rank(&b.Member)
	if ca != cb {
		return ca < cb
	}
	return sa > sb
}

// rank returns a class and a size; lower classes go first, larger sizes first
// within a class.
func (p DefaultPolicy) rank(m *idl.Member) (int, uint32) {
	word := p.Facts.WordSize()
	if size, ok := fixedSize(p.Facts, m); ok {
		switch {
		case size == word:
			return 0, size
		case size > word:
			return 1, size
		default:
			return 2, size
		}
	}
	if t := p.Facts.Resolve(m.Type); t != nil && t.Kind.IsConstructed() {
		return 3, 0
	}
	return 4, 0
}

// Sorter orders the parameters of one flow.
type Sorter struct {
	Facts  idl.TypeFacts
	Policy SortPolicy
}

// NewSorter returns a sorter using policy, or DefaultPolicy when nil.
func NewSorter(facts idl.TypeFacts, policy SortPolicy) *Sorter {
	if policy == nil {
		policy = DefaultPolicy{Facts: facts}
	}
	return &Sorter{Facts: facts, Policy: policy}
}

// Sort returns a new slice: flexpages in declaration order, the return value,
// the rest ordered by the policy, and indirect strings last. The sort is
// stable and never fails.
func (s *Sorter) Sort(params []*idl.Parameter) []*idl.Parameter {
	var flexpages, ret, rest, indirect []*idl.Parameter
	for _, p := range params {
		switch {
		case s.Facts.IsFlexpage(p.Type):
			flexpages = append(flexpages, p)
		case p.Role == idl.RoleReturn:
			ret = append(ret, p)
		case isIndirectString(s.Facts, &p.Member):
			indirect = append(indirect, p)
		default:
			rest = append(rest, p)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return s.Policy.Less(rest[i], rest[j])
	})

	out := make([]*idl.Parameter, 0, len(params))
	out = append(out, flexpages...)
	out = append(out, ret...)
	out = append(out, rest...)
	out = append(out, indirect...)
	return out
}

// Move returns a copy of params with the element at from moved to to. It
// panics with a flexpage ordering error if the move would place a flexpage
// after any other parameter.
func (s *Sorter) Move(params []*idl.Parameter, from, to int) []*idl.Parameter {
	if from < 0 || from >= len(params) || to < 0 || to >= len(params) {
		panic(errors.InvalidInput(errors.PhaseSort, "move index out of range"))
	}
	out := make([]*idl.Parameter, 0, len(params))
	moved := params[from]
	for i, p := range params {
		if i != from {
			out = append(out, p)
		}
	}
	out = append(out[:to], append([]*idl.Parameter{moved}, out[to:]...)...)

	seenOther := false
	for _, p := range out {
		if !s.Facts.IsFlexpage(p.Type) {
			seenOther = true
			continue
		}
		if seenOther {
			panic(errors.FlexpageOrdering(errors.PhaseSort, "flexpage "+p.Name+" would follow a non-flexpage parameter"))
		}
	}
	return out
}

func isIndirectString(facts idl.TypeFacts, m *idl.Member) bool {
	return m.Attrs.Ref && facts.IsString(m)
}

// fixedSize returns the size of m when it is known at compile time.
func fixedSize(facts idl.TypeFacts, m *idl.Member) (uint32, bool) {
	if facts.IsString(m) {
		return 0, false
	}
	for _, b := range facts.ArrayBounds(m) {
		if !b.Fixed {
			return 0, false
		}
	}
	if !fixedType(facts, facts.Resolve(m.Type)) {
		return 0, false
	}
	return facts.SizeOf(m.Type) * m.Elements(), true
}

func fixedType(facts idl.TypeFacts, t *idl.Type) bool {
	if t == nil {
		return true
	}
	switch t.Kind {
	case idl.KindString:
		return false
	case idl.KindStruct:
		for _, m := range t.Members {
			if _, ok := fixedSize(facts, m); !ok {
				return false
			}
		}
	case idl.KindUnion:
		for _, c := range t.Cases {
			if c.Member == nil {
				continue
			}
			if _, ok := fixedSize(facts, c.Member); !ok {
				return false
			}
		}
	}
	return true
}
