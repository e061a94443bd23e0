package trace

import (
	"math"
	"strconv"
)

// Kind identifies the variant of a [Value].
type Kind uint8

const (
	KindNull Kind = iota
	KindVoid
	KindLong
	KindDouble
	KindBoolean
	KindString
	KindChar
	KindReference
)

var kindTags = [...]string{
	KindNull:      "NULL",
	KindVoid:      "VOID",
	KindLong:      "LONG",
	KindDouble:    "DOUBLE",
	KindBoolean:   "BOOLEAN",
	KindString:    "STRING",
	KindChar:      "CHAR",
	KindReference: "REFERENCE",
}

// String returns the wire tag of the kind (e.g. "LONG").
func (k Kind) String() string {
	if int(k) < len(kindTags) {
		return kindTags[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind maps a wire tag back to its Kind.
func ParseKind(tag string) (Kind, bool) {
	for k, t := range kindTags {
		if t == tag {
			return Kind(k), true
		}
	}
	return 0, false
}

// RefMarker is the text shown for reference values. The target id is never
// displayed; references are drawn as arrows instead.
const RefMarker = "*REF*"

// Value is a primitive or reference slot value.
//
// Only the payload field matching Kind is meaningful; constructors such as
// [Long] and [Ref] leave the others zero. Changed is set by the diff engine
// and is not part of the value's identity or its encoding.
type Value struct {
	Kind    Kind
	Long    int64
	Double  float64
	Bool    bool
	Str     string
	Char    rune
	Ref     int64
	Changed bool
}

func Null() Value            { return Value{Kind: KindNull} }
func Void() Value            { return Value{Kind: KindVoid} }
func Long(v int64) Value     { return Value{Kind: KindLong, Long: v} }
func Double(v float64) Value { return Value{Kind: KindDouble, Double: v} }
func Boolean(v bool) Value   { return Value{Kind: KindBoolean, Bool: v} }
func String(v string) Value  { return Value{Kind: KindString, Str: v} }
func Char(v rune) Value      { return Value{Kind: KindChar, Char: v} }
func Ref(target int64) Value { return Value{Kind: KindReference, Ref: target} }

// IsRef reports whether v points at a heap entity.
func (v Value) IsRef() bool { return v.Kind == KindReference }

// Equal reports structural equality: same variant and same payload.
// Doubles follow total-order semantics, so NaN equals NaN and +0 differs
// from -0. The Changed flag is ignored.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull, KindVoid:
		return true
	case KindLong:
		return v.Long == o.Long
	case KindDouble:
		if math.IsNaN(v.Double) || math.IsNaN(o.Double) {
			return math.IsNaN(v.Double) && math.IsNaN(o.Double)
		}
		return math.Float64bits(v.Double) == math.Float64bits(o.Double)
	case KindBoolean:
		return v.Bool == o.Bool
	case KindString:
		return v.Str == o.Str
	case KindChar:
		return v.Char == o.Char
	case KindReference:
		return v.Ref == o.Ref
	default:
		return false
	}
}

// String renders the value for display labels. It is not the wire encoding.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindVoid:
		return "void"
	case KindLong:
		return strconv.FormatInt(v.Long, 10)
	case KindDouble:
		return formatDouble(v.Double)
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return `"` + v.Str + `"`
	case KindChar:
		return "'" + string(v.Char) + "'"
	case KindReference:
		return RefMarker
	default:
		return "<?>"
	}
}

// formatDouble prints doubles the way JVM debuggers show them: integral
// values keep a trailing ".0".
func formatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'n' || c == 'I' {
			return s
		}
	}
	return s + ".0"
}
