package idl

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-yaml/yaml"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/ipcgen/errors"
)

// Document is a loaded interface description together with the planner
// options it requests.
type Document struct {
	Interface *Interface
	Options   DocumentOptions
}

// DocumentOptions mirrors the options block of an interface description.
// Zero values mean "use the planner default".
type DocumentOptions struct {
	Exception  *bool  `yaml:"exception"`
	ABI        string `yaml:"abi"`
	Strategy   string `yaml:"strategy"`
	Mode       string `yaml:"mode"`
	Allocator  string `yaml:"allocator"`
	OptLevel   *int   `yaml:"opt_level"`
	OpcodeBase uint32 `yaml:"opcode_base"`
	StringMax  uint32 `yaml:"string_max"`
}

type yamlDocument struct {
	Interface  string          `yaml:"interface"`
	Types      []yamlType      `yaml:"types"`
	Operations []yamlOperation `yaml:"operations"`
	Options    DocumentOptions `yaml:"options"`
}

type yamlType struct {
	Name    string       `yaml:"name"`
	Kind    string       `yaml:"kind"`
	Type    string       `yaml:"type"`
	Switch  string       `yaml:"switch"`
	Members []yamlMember `yaml:"members"`
	Cases   []yamlCase   `yaml:"cases"`
	// Names lists enum cases and flags.
	Names []string `yaml:"names"`
	// Types lists tuple elements.
	Types    []string `yaml:"types"`
	OK       string   `yaml:"ok"`
	Err      string   `yaml:"err"`
	Max      uint32   `yaml:"max"`
	Bitfield bool     `yaml:"bitfield"`
}

// witKinds are type kinds declared in WIT terms and converted with FromWIT
// rules.
var witKinds = map[string]bool{
	"record":  true,
	"tuple":   true,
	"variant": true,
	"option":  true,
	"result":  true,
	"enum":    true,
	"flags":   true,
	"list":    true,
}

type yamlCase struct {
	Member  *yamlMember `yaml:"member"`
	Labels  []uint64    `yaml:"labels"`
	Default bool        `yaml:"default"`
}

type yamlMember struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Dir     string   `yaml:"dir"`
	Attrs   []string `yaml:"attrs"`
	Dims    []uint32 `yaml:"dims"`
	Pointer int      `yaml:"pointer"`
	Return  bool     `yaml:"return"`
}

type yamlOperation struct {
	Name   string       `yaml:"name"`
	Params []yamlMember `yaml:"params"`
	Opcode uint32       `yaml:"opcode"`
}

// LoadFile reads an interface description from a YAML file.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Load("open "+path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads an interface description in YAML form.
func Load(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Load("read interface description", err)
	}

	var doc yamlDocument
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, errors.ParseFailed("interface description", err)
	}
	if doc.Interface == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "interface name is required")
	}

	l := &loader{
		named: make(map[string]*Type),
		wit:   make(map[string]*wit.TypeDef),
		conv:  &witConverter{cache: make(map[*wit.TypeDef]*Type)},
	}
	if err := l.declareTypes(doc.Types); err != nil {
		return nil, err
	}

	iface := &Interface{Name: doc.Interface}
	names := make(map[string]bool, len(doc.Operations))
	for _, yop := range doc.Operations {
		if names[yop.Name] {
			return nil, errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("operation %q declared twice", yop.Name))
		}
		names[yop.Name] = true
		op, err := l.operation(yop)
		if err != nil {
			return nil, err
		}
		iface.Operations = append(iface.Operations, op)
	}

	base := doc.Options.OpcodeBase
	if base == 0 {
		base = 1
	}
	iface.AssignOpcodes(base)

	Logger().Debug("interface loaded",
		zap.String("interface", iface.Name),
		zap.Int("operations", len(iface.Operations)),
		zap.Int("types", len(doc.Types)))
	return &Document{Interface: iface, Options: doc.Options}, nil
}

type loader struct {
	named map[string]*Type
	// wit holds the WIT-kind declarations. Lists are only found here since
	// they become declarator dimensions, not types.
	wit  map[string]*wit.TypeDef
	conv *witConverter
}

// declareTypes registers every named type before filling any, so members may
// refer to types declared later in the file.
func (l *loader) declareTypes(types []yamlType) error {
	for _, yt := range types {
		if yt.Name == "" {
			return errors.InvalidInput(errors.PhaseLoad, "type without name")
		}
		_, dup := l.named[yt.Name]
		if _, dupWIT := l.wit[yt.Name]; dup || dupWIT {
			return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("type %q declared twice", yt.Name))
		}
		if witKinds[yt.Kind] {
			name := yt.Name
			l.wit[name] = &wit.TypeDef{Name: &name}
			if yt.Kind == "list" {
				continue
			}
		}
		l.named[yt.Name] = &Type{Name: yt.Name}
	}

	for _, yt := range types {
		if !witKinds[yt.Kind] {
			continue
		}
		kind, err := l.witKind(yt)
		if err != nil {
			return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
				Type(yt.Name).
				Cause(err).
				Detail("%s definition", yt.Kind).
				Build()
		}
		l.wit[yt.Name].Kind = kind
	}

	for _, yt := range types {
		t := l.named[yt.Name]
		if witKinds[yt.Kind] {
			if t == nil {
				continue
			}
			out, err := l.conv.typ(l.wit[yt.Name])
			if err != nil {
				return err
			}
			*t = *out
			t.Name = yt.Name
			continue
		}
		switch yt.Kind {
		case "struct":
			t.Kind = KindStruct
			t.Bitfield = yt.Bitfield
			for _, ym := range yt.Members {
				m, err := l.member(ym)
				if err != nil {
					return err
				}
				t.Members = append(t.Members, m)
			}
		case "union":
			t.Kind = KindUnion
			sw, err := l.resolve(yt.Switch)
			if err != nil {
				return err
			}
			t.Switch = sw
			for _, yc := range yt.Cases {
				c := Case{Labels: yc.Labels, Default: yc.Default}
				if yc.Member != nil {
					if c.Member, err = l.member(*yc.Member); err != nil {
						return err
					}
				}
				t.Cases = append(t.Cases, c)
			}
		case "alias", "typedef":
			elem, err := l.resolve(yt.Type)
			if err != nil {
				return err
			}
			t.Kind = KindAlias
			t.Elem = elem
		case "string":
			t.Kind = KindString
			t.Max = yt.Max
		default:
			return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
				Type(yt.Name).
				Detail("unknown type kind %q", yt.Kind).
				Build()
		}
	}
	return nil
}

func (l *loader) operation(yop yamlOperation) (*Operation, error) {
	if yop.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "operation without name")
	}
	op := &Operation{Name: yop.Name, Opcode: yop.Opcode}
	for _, yp := range yop.Params {
		m, err := l.member(yp)
		if err != nil {
			return nil, errors.InOperation(err, yop.Name)
		}
		dir, ok := ParseDirection(yp.Dir)
		if !ok {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
				Operation(yop.Name).
				Path(yp.Name).
				Detail("unknown direction %q", yp.Dir).
				Build()
		}
		p := &Parameter{Member: *m, Dir: dir}
		if yp.Return {
			p.AsReturn()
		}
		op.Params = append(op.Params, p)
	}
	return op, nil
}

func (l *loader) member(ym yamlMember) (*Member, error) {
	if ym.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "member without name")
	}
	if td, ok := l.wit[strings.TrimSpace(ym.Type)]; ok {
		if _, isList := td.Kind.(*wit.List); isList {
			return l.listMember(ym, td)
		}
	}
	t, err := l.resolve(ym.Type)
	if err != nil {
		return nil, err
	}
	attrs, err := parseAttributes(ym.Attrs)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Path(ym.Name).
			Cause(err).
			Detail("attributes").
			Build()
	}
	return &Member{
		Name:    ym.Name,
		Type:    t,
		Dims:    ym.Dims,
		Pointer: ym.Pointer,
		Attrs:   attrs,
	}, nil
}

// resolve looks a type name up in declared types, then the interface
// description spellings, then WIT primitive names.
func (l *loader) resolve(name string) (*Type, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "missing type name")
	}
	if t, ok := l.named[name]; ok {
		return t, nil
	}
	if _, ok := l.wit[name]; ok {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Type(name).
			Detail("list type can only be used as a declarator").
			Build()
	}
	if k, ok := ParseKind(name); ok {
		if k == KindFlexpage {
			return NewFlexpage(), nil
		}
		return Scalar(k), nil
	}
	wt, err := wit.ParseType(name)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Type(name).
			Cause(err).
			Detail("unknown type").
			Build()
	}
	return l.conv.typ(wt)
}

// listMember turns a declarator of a list type into an unbound array.
func (l *loader) listMember(ym yamlMember, td *wit.TypeDef) (*Member, error) {
	if len(ym.Dims) > 0 || ym.Pointer > 0 {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Path(ym.Name).
			Detail("list declarator cannot carry dims or pointers").
			Build()
	}
	m, err := l.conv.member(ym.Name, td)
	if err != nil {
		return nil, err
	}
	if m.Attrs, err = parseAttributes(ym.Attrs); err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Path(ym.Name).
			Cause(err).
			Detail("attributes").
			Build()
	}
	return m, nil
}

// witKind builds the WIT definition of a WIT-kind declaration.
func (l *loader) witKind(yt yamlType) (wit.TypeDefKind, error) {
	switch yt.Kind {
	case "record":
		rec := &wit.Record{}
		for _, ym := range yt.Members {
			ft, err := l.witType(ym.Type)
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, wit.Field{Name: ym.Name, Type: ft})
		}
		return rec, nil
	case "tuple":
		tup := &wit.Tuple{}
		for _, name := range yt.Types {
			et, err := l.witType(name)
			if err != nil {
				return nil, err
			}
			tup.Types = append(tup.Types, et)
		}
		return tup, nil
	case "variant":
		v := &wit.Variant{}
		for _, ym := range yt.Members {
			c := wit.Case{Name: ym.Name}
			if ym.Type != "" {
				ct, err := l.witType(ym.Type)
				if err != nil {
					return nil, err
				}
				c.Type = ct
			}
			v.Cases = append(v.Cases, c)
		}
		return v, nil
	case "option", "list":
		et, err := l.witType(yt.Type)
		if err != nil {
			return nil, err
		}
		if yt.Kind == "list" {
			return &wit.List{Type: et}, nil
		}
		return &wit.Option{Type: et}, nil
	case "result":
		r := &wit.Result{}
		var err error
		if yt.OK != "" {
			if r.OK, err = l.witType(yt.OK); err != nil {
				return nil, err
			}
		}
		if yt.Err != "" {
			if r.Err, err = l.witType(yt.Err); err != nil {
				return nil, err
			}
		}
		return r, nil
	case "enum":
		e := &wit.Enum{}
		for _, n := range yt.Names {
			e.Cases = append(e.Cases, wit.EnumCase{Name: n})
		}
		return e, nil
	default:
		f := &wit.Flags{}
		for _, n := range yt.Names {
			f.Flags = append(f.Flags, wit.Flag{Name: n})
		}
		return f, nil
	}
}

// witType resolves a type name inside a WIT-kind declaration: another
// WIT-kind declaration or a WIT primitive.
func (l *loader) witType(name string) (wit.Type, error) {
	name = strings.TrimSpace(name)
	if td, ok := l.wit[name]; ok {
		return td, nil
	}
	t, err := wit.ParseType(name)
	if err != nil {
		return nil, fmt.Errorf("%q is not a WIT type", name)
	}
	return t, nil
}

// parseAttributes reads attribute spellings such as "string", "ref",
// "init_with_in", "size_is(n)", "length_is(n)" and "max_is(n)".
func parseAttributes(list []string) (Attributes, error) {
	var a Attributes
	for _, raw := range list {
		name, arg, hasArg := strings.Cut(strings.TrimSpace(raw), "(")
		name = strings.TrimSpace(name)
		if hasArg {
			if !strings.HasSuffix(arg, ")") {
				return a, fmt.Errorf("unterminated attribute %q", raw)
			}
			arg = strings.TrimSpace(strings.TrimSuffix(arg, ")"))
			if arg == "" {
				return a, fmt.Errorf("attribute %q needs an argument", name)
			}
		}
		switch name {
		case "string":
			a.String = true
		case "ref":
			a.Ref = true
		case "init_with_in", "prealloc":
			a.InitWithIn = true
		case "size_is":
			a.SizeIs = arg
		case "length_is":
			a.LengthIs = arg
		case "max_is":
			a.MaxIs = arg
		default:
			return a, fmt.Errorf("unknown attribute %q", name)
		}
		if (name == "size_is" || name == "length_is" || name == "max_is") && !hasArg {
			return a, fmt.Errorf("attribute %q needs an argument", name)
		}
	}
	return a, nil
}
