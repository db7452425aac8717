package idl

// Direction is the transfer direction of a parameter.
type Direction uint8

const (
	DirIn    Direction = 1 << iota
	DirOut
	DirInOut = DirIn | DirOut
)

// Has reports whether d includes every bit of other.
func (d Direction) Has(other Direction) bool {
	return d&other == other && other != 0
}

func (d Direction) String() string {
	switch d {
	case DirIn:
		return "in"
	case DirOut:
		return "out"
	case DirInOut:
		return "inout"
	default:
		return "none"
	}
}

// ParseDirection accepts "in", "out" and "inout".
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "in", "":
		return DirIn, true
	case "out":
		return DirOut, true
	case "inout", "in,out", "in out":
		return DirInOut, true
	default:
		return 0, false
	}
}

// Role marks parameters with a fixed position in the message.
type Role uint8

const (
	RoleNone Role = iota
	RoleReturn
)

// Attributes is the attribute set of a declarator. Sizing attributes name a
// sibling declarator (another parameter, or another member of the same struct).
type Attributes struct {
	SizeIs   string
	LengthIs string
	MaxIs    string
	// String marks a NUL-terminated character buffer.
	String bool
	// Ref transmits a string out of band through the indirect string table.
	Ref bool
	// InitWithIn makes the receiver copy into caller-owned storage.
	InitWithIn bool
}

// HasSize reports whether the transmitted element count comes from a sibling.
func (a Attributes) HasSize() bool {
	return a.SizeIs != "" || a.LengthIs != ""
}

// SizeFrom returns the sibling holding the transmitted count. length_is wins
// over size_is because it names the number of valid elements.
func (a Attributes) SizeFrom() string {
	if a.LengthIs != "" {
		return a.LengthIs
	}
	return a.SizeIs
}

// Member is a declarator: a named, typed slot of a parameter list or a struct.
type Member struct {
	Type *Type
	Name string
	// Dims are declarator array bounds, outermost first. 0 is an unbound dimension.
	Dims    []uint32
	Attrs   Attributes
	Pointer int
}

// NewMember returns a member of type t.
func NewMember(name string, t *Type) *Member {
	return &Member{Name: name, Type: t}
}

// WithDims sets fixed or unbound array dimensions.
func (m *Member) WithDims(dims ...uint32) *Member {
	m.Dims = dims
	return m
}

// WithAttrs sets the attribute set.
func (m *Member) WithAttrs(a Attributes) *Member {
	m.Attrs = a
	return m
}

// WithPointer sets the pointer depth.
func (m *Member) WithPointer(n int) *Member {
	m.Pointer = n
	return m
}

// HasFixedDims reports whether the declarator has array dimensions and all are bound.
func (m *Member) HasFixedDims() bool {
	if len(m.Dims) == 0 {
		return false
	}
	for _, d := range m.Dims {
		if d == 0 {
			return false
		}
	}
	return true
}

// Elements returns the product of all fixed dimensions, 1 for non-arrays.
func (m *Member) Elements() uint32 {
	n := uint32(1)
	for _, d := range m.Dims {
		if d != 0 {
			n *= d
		}
	}
	return n
}

// Parameter is one typed, directional operation argument.
type Parameter struct {
	Member
	Dir  Direction
	Role Role
}

// NewParameter returns a parameter of type t.
func NewParameter(name string, dir Direction, t *Type) *Parameter {
	return &Parameter{Member: Member{Name: name, Type: t}, Dir: dir}
}

// AsReturn marks the parameter as the operation's return value.
func (p *Parameter) AsReturn() *Parameter {
	p.Role = RoleReturn
	p.Dir = DirOut
	return p
}
