package idl

// Operation is one parsed interface operation.
type Operation struct {
	Name   string
	Params []*Parameter
	Opcode uint32
}

// NewOperation returns an operation with the given parameters in declaration order.
func NewOperation(name string, opcode uint32, params ...*Parameter) *Operation {
	return &Operation{Name: name, Opcode: opcode, Params: params}
}

// Param returns the parameter with the given name.
func (o *Operation) Param(name string) *Parameter {
	for _, p := range o.Params {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Return returns the designated return-value parameter, if any.
func (o *Operation) Return() *Parameter {
	for _, p := range o.Params {
		if p.Role == RoleReturn {
			return p
		}
	}
	return nil
}

// Transmitted returns the parameters carried in direction dir, in declaration order.
func (o *Operation) Transmitted(dir Direction) []*Parameter {
	var out []*Parameter
	for _, p := range o.Params {
		if p.Dir.Has(dir) {
			out = append(out, p)
		}
	}
	return out
}

// CountFlexpages returns the number of flexpages carried in direction dir. A
// flexpage array counts each element.
func (o *Operation) CountFlexpages(dir Direction) int {
	n := 0
	for _, p := range o.Params {
		if !p.Dir.Has(dir) {
			continue
		}
		if t := p.Type.Resolve(); t != nil && t.Kind == KindFlexpage {
			n += int(p.Elements())
		}
	}
	return n
}

// Interface is a named set of operations sharing one dispatch loop.
type Interface struct {
	Name       string
	Operations []*Operation
}

// NewInterface returns an interface with the given operations.
func NewInterface(name string, ops ...*Operation) *Interface {
	return &Interface{Name: name, Operations: ops}
}

// Operation returns the operation with the given name.
func (i *Interface) Operation(name string) *Operation {
	for _, o := range i.Operations {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// AssignOpcodes numbers operations without an explicit opcode as base+index.
func (i *Interface) AssignOpcodes(base uint32) {
	for idx, o := range i.Operations {
		if o.Opcode == 0 {
			o.Opcode = base + uint32(idx)
		}
	}
}
