package idl

import "strings"

// Type is a front-end type as seen by the planner. Types are shared between
// parameters and must be treated as read-only once an operation is planned.
type Type struct {
	// Switch is the discriminant type of a union.
	Switch *Type
	// Elem is the target of an alias.
	Elem    *Type
	Name    string
	Members []*Member
	Cases   []Case
	// Max is the default length cap of a string type; 0 uses the facts default.
	Max  uint32
	Kind Kind
	// Bitfield marks a struct whose members share storage words; it is copied whole.
	Bitfield bool
}

// Case is one arm of a union. A nil Member is an empty arm.
type Case struct {
	Member  *Member
	Labels  []uint64
	Default bool
}

// Matches reports whether the case is selected by the discriminant value.
func (c Case) Matches(v uint64) bool {
	for _, l := range c.Labels {
		if l == v {
			return true
		}
	}
	return false
}

// Scalar returns a new unnamed type of kind k.
func Scalar(k Kind) *Type {
	return &Type{Kind: k}
}

// NewString returns a string type with an optional default cap.
func NewString(max uint32) *Type {
	return &Type{Kind: KindString, Max: max}
}

// NewFlexpage returns the flexpage descriptor type.
func NewFlexpage() *Type {
	return &Type{Kind: KindFlexpage, Name: "fpage"}
}

// NewStruct returns a struct type with the given members in declaration order.
func NewStruct(name string, members ...*Member) *Type {
	return &Type{Kind: KindStruct, Name: name, Members: members}
}

// NewUnion returns a discriminated union.
func NewUnion(name string, sw *Type, cases ...Case) *Type {
	return &Type{Kind: KindUnion, Name: name, Switch: sw, Cases: cases}
}

// NewAlias returns a named alias of elem.
func NewAlias(name string, elem *Type) *Type {
	return &Type{Kind: KindAlias, Name: name, Elem: elem}
}

// Resolve follows alias chains to the underlying type.
func (t *Type) Resolve() *Type {
	for t != nil && t.Kind == KindAlias {
		t = t.Elem
	}
	return t
}

// Member returns the struct member with the given name.
func (t *Type) Member(name string) *Member {
	for _, m := range t.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// CaseFor returns the union case selected by v, falling back to the default arm.
func (t *Type) CaseFor(v uint64) (Case, bool) {
	var def *Case
	for i := range t.Cases {
		c := t.Cases[i]
		if c.Matches(v) {
			return c, true
		}
		if c.Default {
			def = &t.Cases[i]
		}
	}
	if def != nil {
		return *def, true
	}
	return Case{}, false
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	if t.Name != "" {
		return t.Name
	}
	return t.Kind.String()
}

// ParseKind maps an interface description spelling ("int", "unsigned long",
// "fpage", ...) to a kind. WIT primitive names are handled by the loader.
func ParseKind(name string) (Kind, bool) {
	k, ok := idlSpellings[strings.Join(strings.Fields(name), " ")]
	return k, ok
}
