package abi

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-yaml/yaml"

	"github.com/wippyai/ipcgen/errors"
)

//go:embed tables.yaml
var builtinTables []byte

// Mode selects the register assignment variant of an ABI.
type Mode string

const (
	ModeNoPIC   Mode = "nopic"
	ModePIC     Mode = "pic"
	ModeProfile Mode = "profile"
)

// ParseMode accepts "nopic", "pic" and "profile". The empty string is nopic.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeNoPIC, nil
	case ModeNoPIC, ModePIC, ModeProfile:
		return m, nil
	default:
		return "", errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("unknown register mode %q", s).
			Build()
	}
}

// Register is one payload register. Staged is the scratch register the value
// passes through when the target register is reserved in this mode.
type Register struct {
	Name   string
	Staged string
}

func (r Register) String() string {
	if r.Staged == "" {
		return r.Name
	}
	return r.Name + "<" + r.Staged
}

// Table describes the short-IPC registers of one ABI.
type Table struct {
	Modes    map[Mode][]Register
	Name     string
	Tag      string
	WordSize uint32
}

// Registers returns the payload registers for a mode, in slot order.
func (t *Table) Registers(mode Mode) ([]Register, error) {
	regs, ok := t.Modes[mode]
	if !ok {
		return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Type(t.Name).
			Detail("no register assignment for mode %q", mode).
			Build()
	}
	return regs, nil
}

// Budget is the number of payload words that fit in registers for mode.
// The tag register is not counted.
func (t *Table) Budget(mode Mode) int {
	return len(t.Modes[mode])
}

type yamlTable struct {
	Modes    map[string][]string `yaml:"modes"`
	Name     string              `yaml:"name"`
	Tag      string              `yaml:"tag"`
	WordSize uint32              `yaml:"word_size"`
}

// Registry is a set of ABI tables keyed by name.
type Registry struct {
	tables map[string]*Table
}

// Parse reads ABI tables in the format of the built-in tables.yaml.
func Parse(data []byte) (*Registry, error) {
	var raw []yamlTable
	if err := yaml.UnmarshalStrict(data, &raw); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse ABI tables")
	}

	r := &Registry{tables: make(map[string]*Table, len(raw))}
	for _, yt := range raw {
		t, err := yt.table()
		if err != nil {
			return nil, err
		}
		if _, dup := r.tables[t.Name]; dup {
			return nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("ABI %q defined twice", t.Name))
		}
		r.tables[t.Name] = t
	}
	return r, nil
}

// ParseFile reads ABI tables from a file.
func ParseFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	return Parse(data)
}

func (yt yamlTable) table() (*Table, error) {
	if yt.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseConfig, "ABI table without name")
	}
	if yt.WordSize != 4 && yt.WordSize != 8 {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Type(yt.Name).
			Detail("word size %d, want 4 or 8", yt.WordSize).
			Build()
	}

	t := &Table{
		Name:     yt.Name,
		Tag:      yt.Tag,
		WordSize: yt.WordSize,
		Modes:    make(map[Mode][]Register, len(yt.Modes)),
	}
	for name, list := range yt.Modes {
		mode, err := ParseMode(name)
		if err != nil {
			return nil, err
		}
		regs := make([]Register, 0, len(list))
		for _, s := range list {
			reg, staged, _ := strings.Cut(s, "<")
			regs = append(regs, Register{Name: strings.TrimSpace(reg), Staged: strings.TrimSpace(staged)})
		}
		t.Modes[mode] = regs
	}
	return t, nil
}

// Lookup returns the named table.
func (r *Registry) Lookup(name string) (*Table, error) {
	t, ok := r.tables[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseConfig, "ABI", name)
	}
	return t, nil
}

// Names returns the table names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tables))
	for n := range r.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var (
	builtin     *Registry
	builtinErr  error
	builtinOnce sync.Once
)

// Builtin returns the tables shipped with the package.
func Builtin() *Registry {
	builtinOnce.Do(func() {
		builtin, builtinErr = Parse(builtinTables)
	})
	if builtinErr != nil {
		panic(builtinErr)
	}
	return builtin
}

// Lookup returns a built-in table by name.
func Lookup(name string) (*Table, error) {
	return Builtin().Lookup(name)
}

// Names lists the built-in tables.
func Names() []string {
	return Builtin().Names()
}
