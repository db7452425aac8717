package idl

import (
	"strconv"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/ipcgen/errors"
)

// FromWIT converts a WIT type into a declarator. Records and tuples become
// structs, variants, options and results become unions with a discriminant
// sized by case count, lists become unbound arrays and resource handles
// become machine words.
func FromWIT(name string, t wit.Type) (*Member, error) {
	c := &witConverter{cache: make(map[*wit.TypeDef]*Type)}
	return c.member(name, t)
}

type witConverter struct {
	cache map[*wit.TypeDef]*Type
}

func (c *witConverter) member(name string, t wit.Type) (*Member, error) {
	if td, ok := t.(*wit.TypeDef); ok {
		switch kind := td.Kind.(type) {
		case *wit.List:
			elem, err := c.typ(kind.Type)
			if err != nil {
				return nil, err
			}
			return &Member{Name: name, Type: elem, Dims: []uint32{0}}, nil
		case *wit.Flags:
			if n := len(kind.Flags); n > 64 {
				return &Member{Name: name, Type: Scalar(KindU32), Dims: []uint32{uint32((n + 31) / 32)}}, nil
			}
		}
	}
	typ, err := c.typ(t)
	if err != nil {
		return nil, err
	}
	return &Member{Name: name, Type: typ}, nil
}

func (c *witConverter) typ(t wit.Type) (*Type, error) {
	switch typ := t.(type) {
	case wit.Bool:
		return Scalar(KindBool), nil
	case wit.U8:
		return Scalar(KindU8), nil
	case wit.S8:
		return Scalar(KindS8), nil
	case wit.U16:
		return Scalar(KindU16), nil
	case wit.S16:
		return Scalar(KindS16), nil
	case wit.U32, wit.Char:
		return Scalar(KindU32), nil
	case wit.S32:
		return Scalar(KindS32), nil
	case wit.U64:
		return Scalar(KindU64), nil
	case wit.S64:
		return Scalar(KindS64), nil
	case wit.F32:
		return Scalar(KindF32), nil
	case wit.F64:
		return Scalar(KindF64), nil
	case wit.String:
		return NewString(0), nil
	case *wit.TypeDef:
		return c.typeDef(typ)
	default:
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Detail("unsupported WIT type %T", t).
			Build()
	}
}

func (c *witConverter) typeDef(td *wit.TypeDef) (*Type, error) {
	if cached, ok := c.cache[td]; ok {
		return cached, nil
	}

	name := ""
	if td.Name != nil {
		name = *td.Name
	}

	var (
		out *Type
		err error
	)
	switch kind := td.Kind.(type) {
	case *wit.Record:
		out = &Type{Kind: KindStruct, Name: name}
		for _, f := range kind.Fields {
			m, ferr := c.member(f.Name, f.Type)
			if ferr != nil {
				return nil, ferr
			}
			out.Members = append(out.Members, m)
		}
	case *wit.Tuple:
		out = &Type{Kind: KindStruct, Name: name}
		for i, elem := range kind.Types {
			m, ferr := c.member(strconv.Itoa(i), elem)
			if ferr != nil {
				return nil, ferr
			}
			out.Members = append(out.Members, m)
		}
	case *wit.Variant:
		out = &Type{Kind: KindUnion, Name: name, Switch: discriminant(len(kind.Cases))}
		for i, cs := range kind.Cases {
			arm := Case{Labels: []uint64{uint64(i)}}
			if cs.Type != nil {
				if arm.Member, err = c.member(cs.Name, cs.Type); err != nil {
					return nil, err
				}
			}
			out.Cases = append(out.Cases, arm)
		}
	case *wit.Option:
		some, serr := c.member("some", kind.Type)
		if serr != nil {
			return nil, serr
		}
		out = NewUnion(name, Scalar(KindU8),
			Case{Labels: []uint64{0}},
			Case{Labels: []uint64{1}, Member: some})
	case *wit.Result:
		out = NewUnion(name, Scalar(KindU8))
		okArm := Case{Labels: []uint64{0}}
		if kind.OK != nil {
			if okArm.Member, err = c.member("ok", kind.OK); err != nil {
				return nil, err
			}
		}
		errArm := Case{Labels: []uint64{1}}
		if kind.Err != nil {
			if errArm.Member, err = c.member("err", kind.Err); err != nil {
				return nil, err
			}
		}
		out.Cases = []Case{okArm, errArm}
	case *wit.Enum:
		out = discriminant(len(kind.Cases))
		out.Name = name
	case *wit.Flags:
		if len(kind.Flags) > 32 {
			out = &Type{Kind: KindU64, Name: name}
		} else {
			out = &Type{Kind: KindU32, Name: name}
		}
	case *wit.Own, *wit.Borrow:
		out = &Type{Kind: KindWord, Name: name}
	case *wit.List:
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Type(name).
			Detail("list is only supported as a declarator, not as a nested element type").
			Build()
	case wit.Type:
		elem, aerr := c.typ(kind)
		if aerr != nil {
			return nil, aerr
		}
		out = NewAlias(name, elem)
	default:
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Type(name).
			Detail("unsupported WIT type definition %T", td.Kind).
			Build()
	}

	c.cache[td] = out
	return out, nil
}

// discriminant returns the smallest unsigned type able to label n cases.
func discriminant(n int) *Type {
	switch {
	case n <= 256:
		return Scalar(KindU8)
	case n <= 65536:
		return Scalar(KindU16)
	default:
		return Scalar(KindU32)
	}
}
