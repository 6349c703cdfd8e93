package runtime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the value types of the language.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTable
	KindClosure
	KindGoFunc
)

var kindNames = [...]string{
	KindNil:     "nil",
	KindBool:    "boolean",
	KindInt:     "number",
	KindFloat:   "number",
	KindString:  "string",
	KindTable:   "table",
	KindClosure: "function",
	KindGoFunc:  "function",
}

// String returns the language-level type name, so integers and floats both
// read "number" and both closure kinds read "function".
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is a single language value. It is a closed tagged union: every value
// the VM touches is one of the kinds above. Values are passed by value;
// string, table, closure and gofunc values share their heap object, so two
// copies of a table value alias the same table.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	obj  Obj // set for string, table, closure, gofunc
}

// Nil is the nil value.
var Nil = Value{kind: KindNil}

// True and False are the boolean values.
var (
	True  = Value{kind: KindBool, b: true}
	False = Value{kind: KindBool}
)

// Bool builds a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int builds an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float builds a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// TypeName returns the language-level type name of the value.
func (v Value) TypeName() string { return v.kind.String() }

// IsNil reports whether the value is nil.
func (v Value) IsNil() bool { return v.kind == KindNil }

// Truthy implements the language's truth rule: everything except nil and
// false is true, including 0 and the empty string.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.b
	default:
		return true
	}
}

// AsBool returns the boolean payload. Valid only for KindBool.
func (v Value) AsBool() bool { return v.b }

// AsInt returns the integer payload. Valid only for KindInt.
func (v Value) AsInt() int64 { return v.i }

// AsFloat returns the float payload. Valid only for KindFloat.
func (v Value) AsFloat() float64 { return v.f }

// AsString returns the string payload. Valid only for KindString.
func (v Value) AsString() string { return v.obj.(*SString).s }

// AsTable returns the table object. Valid only for KindTable.
func (v Value) AsTable() *Table { return v.obj.(*Table) }

// AsClosure returns the closure object. Valid only for KindClosure.
func (v Value) AsClosure() *Closure { return v.obj.(*Closure) }

// AsGoFunc returns the host function object. Valid only for KindGoFunc.
func (v Value) AsGoFunc() *GoFunc { return v.obj.(*GoFunc) }

// Object returns the heap object backing the value, or nil for immediates.
func (v Value) Object() Obj { return v.obj }

// IsCallable reports whether the value can appear as a call target.
func (v Value) IsCallable() bool {
	return v.kind == KindClosure || v.kind == KindGoFunc
}

// Equal implements the language's == on raw values. Integers and floats
// compare numerically across kinds, so 1 == 1.0. Heap values compare by
// identity except strings, which compare by content.
func (v Value) Equal(o Value) bool {
	switch v.kind {
	case KindNil:
		return o.kind == KindNil
	case KindBool:
		return o.kind == KindBool && v.b == o.b
	case KindInt:
		switch o.kind {
		case KindInt:
			return v.i == o.i
		case KindFloat:
			return float64(v.i) == o.f
		}
		return false
	case KindFloat:
		switch o.kind {
		case KindInt:
			return v.f == float64(o.i)
		case KindFloat:
			return v.f == o.f
		}
		return false
	case KindString:
		return o.kind == KindString && v.AsString() == o.AsString()
	default:
		return v.kind == o.kind && v.obj == o.obj
	}
}

// String renders the value the way tostring does.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.AsString()
	case KindTable:
		return fmt.Sprintf("table: %p", v.obj)
	case KindClosure, KindGoFunc:
		return fmt.Sprintf("function: %p", v.obj)
	default:
		return fmt.Sprintf("Value(%d)", v.kind)
	}
}

// formatFloat matches the reference interpreter's %.14g output, with a
// trailing ".0" appended to integral floats so they stay visibly floats.
func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', 14, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// MarkValue passes the value's heap object, if any, to the mark function.
// GC helpers use it when tracing values held inside other objects.
func MarkValue(v Value, mark func(Obj)) {
	if v.obj != nil {
		mark(v.obj)
	}
}
