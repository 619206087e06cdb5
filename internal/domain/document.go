package domain

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Kind discriminates the variants of a document context value.
type Kind int

const (
	// KindAbsent marks a path that does not exist in the document.
	// Distinct from KindNull: a field present with a null value exists.
	KindAbsent Kind = iota
	KindNull
	KindString
	KindNumber
	KindBool
	KindDate
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is one node of a document context tree. Exactly the fields implied
// by Kind are meaningful; the zero Value is Absent.
type Value struct {
	Kind Kind

	Str  string
	Num  float64
	Bool bool
	Date time.Time
	List []Value
	Map  map[string]Value
}

// Absent returns the missing-field marker.
func Absent() Value { return Value{Kind: KindAbsent} }

// Null returns a present-but-null value.
func Null() Value { return Value{Kind: KindNull} }

// String builds a string value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue builds a numeric value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// BoolValue builds a boolean value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// DateValue builds a date value.
func DateValue(t time.Time) Value { return Value{Kind: KindDate, Date: t} }

// Present reports whether the value exists in the document, regardless of
// whether it is null or empty.
func (v Value) Present() bool { return v.Kind != KindAbsent }

// Display renders a value for message substitution. Numbers drop a
// trailing .0 so amounts read like the source document.
func (v Value) Display() string {
	switch v.Kind {
	case KindAbsent:
		return "(absent)"
	case KindNull:
		return "null"
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindDate:
		return v.Date.Format("2006-01-02")
	case KindList:
		return fmt.Sprintf("[%d items]", len(v.List))
	case KindMap:
		return fmt.Sprintf("{%d fields}", len(v.Map))
	default:
		return ""
	}
}

// DocumentContext is the nested field-value tree extracted from one trade
// document. It is owned by the caller and read-only to the evaluator.
type DocumentContext struct {
	root map[string]Value
}

// NewDocumentContext builds a context from decoded JSON (map[string]any as
// produced by encoding/json). Numbers arrive as float64, nested objects as
// map[string]any. Strings are kept as strings; date-typed operators coerce
// them on demand so that absence, null and malformed dates stay
// distinguishable.
func NewDocumentContext(raw map[string]any) *DocumentContext {
	root := make(map[string]Value, len(raw))
	for k, v := range raw {
		root[k] = fromAny(v)
	}
	return &DocumentContext{root: root}
}

// ValueOf converts a decoded JSON value (or a native Go scalar) into the
// typed tree representation. Used for document contexts and for condition
// literals, so both sides of a comparison share one type system.
func ValueOf(v any) Value {
	return fromAny(v)
}

func fromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case time.Time:
		return DateValue(t)
	case []any:
		list := make([]Value, len(t))
		for i, e := range t {
			list[i] = fromAny(e)
		}
		return Value{Kind: KindList, List: list}
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = fromAny(e)
		}
		return Value{Kind: KindMap, Map: m}
	default:
		return StringValue(fmt.Sprintf("%v", t))
	}
}

// Root returns the top-level value map.
func (d *DocumentContext) Root() map[string]Value {
	return d.root
}

// Fields returns the sorted top-level field names, for deterministic
// diagnostics.
func (d *DocumentContext) Fields() []string {
	keys := make([]string, 0, len(d.root))
	for k := range d.root {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
