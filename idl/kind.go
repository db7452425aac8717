package idl

type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindChar
	KindU8
	KindS8
	KindU16
	KindS16
	KindU32
	KindS32
	KindU64
	KindS64
	KindF32
	KindF64
	KindWord
	KindString
	KindFlexpage
	KindStruct
	KindUnion
	KindAlias
)

var kindNames = [...]string{
	KindVoid:     "void",
	KindBool:     "bool",
	KindChar:     "char",
	KindU8:       "u8",
	KindS8:       "s8",
	KindU16:      "u16",
	KindS16:      "s16",
	KindU32:      "u32",
	KindS32:      "s32",
	KindU64:      "u64",
	KindS64:      "s64",
	KindF32:      "f32",
	KindF64:      "f64",
	KindWord:     "mword",
	KindString:   "string",
	KindFlexpage: "fpage",
	KindStruct:   "struct",
	KindUnion:    "union",
	KindAlias:    "alias",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsScalar reports whether values of the kind occupy one fixed-size cell.
func (k Kind) IsScalar() bool {
	return k >= KindBool && k <= KindWord
}

// IsInteger reports whether the kind can carry an element count or a union label.
func (k Kind) IsInteger() bool {
	return k.IsScalar() && k != KindF32 && k != KindF64
}

func (k Kind) IsFloat() bool {
	return k == KindF32 || k == KindF64
}

// IsConstructed reports whether the kind has members.
func (k Kind) IsConstructed() bool {
	return k == KindStruct || k == KindUnion
}

// IsSigned reports whether the kind is a signed integer.
func (k Kind) IsSigned() bool {
	switch k {
	case KindS8, KindS16, KindS32, KindS64:
		return true
	default:
		return false
	}
}

// idlSpellings maps the type names accepted by interface descriptions that
// are not WIT primitive names.
var idlSpellings = map[string]Kind{
	"void":               KindVoid,
	"boolean":            KindBool,
	"char":               KindChar,
	"byte":               KindU8,
	"unsigned char":      KindU8,
	"short":              KindS16,
	"unsigned short":     KindU16,
	"int":                KindS32,
	"long":               KindS32,
	"unsigned":           KindU32,
	"unsigned int":       KindU32,
	"unsigned long":      KindU32,
	"long long":          KindS64,
	"unsigned long long": KindU64,
	"float":              KindF32,
	"double":             KindF64,
	"mword":              KindWord,
	"fpage":              KindFlexpage,
	"flexpage":           KindFlexpage,
}
