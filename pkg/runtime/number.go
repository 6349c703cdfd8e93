package runtime

import "math"

// ---------------------------------------------------------------------------
// Arithmetic
//
// The numeric tower follows the language rules: integer arithmetic wraps on
// overflow, any float operand promotes the operation to float, / and ^ are
// always float, and // and % floor toward negative infinity.
// ---------------------------------------------------------------------------

// ArithOp selects an arithmetic or bitwise operation for Arith.
type ArithOp int

const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithDiv
	ArithIDiv
	ArithMod
	ArithPow
	ArithBAnd
	ArithBOr
	ArithBXor
	ArithShl
	ArithShr
)

var arithNames = [...]string{
	ArithAdd: "add", ArithSub: "sub", ArithMul: "mul", ArithDiv: "div",
	ArithIDiv: "idiv", ArithMod: "mod", ArithPow: "pow", ArithBAnd: "band",
	ArithBOr: "bor", ArithBXor: "bxor", ArithShl: "shl", ArithShr: "shr",
}

// Arith applies a binary arithmetic or bitwise operation.
func Arith(h *Heap, op ArithOp, a, b Value) (Value, error) {
	switch op {
	case ArithBAnd, ArithBOr, ArithBXor, ArithShl, ArithShr:
		return bitwise(h, op, a, b)
	}

	if !isNumber(a) || !isNumber(b) {
		bad := a
		if isNumber(a) {
			bad = b
		}
		return Nil, NewError(h, "attempt to perform arithmetic on a %s value", bad.TypeName())
	}

	// Pure integer path, except for the always-float operations.
	if a.kind == KindInt && b.kind == KindInt && op != ArithDiv && op != ArithPow {
		return intArith(h, op, a.i, b.i)
	}
	return floatArith(toFloat(a), toFloat(b), op), nil
}

func intArith(h *Heap, op ArithOp, x, y int64) (Value, error) {
	switch op {
	case ArithAdd:
		return Int(x + y), nil
	case ArithSub:
		return Int(x - y), nil
	case ArithMul:
		return Int(x * y), nil
	case ArithIDiv:
		if y == 0 {
			return Nil, NewError(h, "attempt to perform 'n//0'")
		}
		return Int(floorDivInt(x, y)), nil
	case ArithMod:
		if y == 0 {
			return Nil, NewError(h, "attempt to perform 'n%%0'")
		}
		return Int(floorModInt(x, y)), nil
	default:
		panic("intArith: unhandled op " + arithNames[op])
	}
}

func floatArith(x, y float64, op ArithOp) Value {
	switch op {
	case ArithAdd:
		return Float(x + y)
	case ArithSub:
		return Float(x - y)
	case ArithMul:
		return Float(x * y)
	case ArithDiv:
		return Float(x / y)
	case ArithIDiv:
		return Float(math.Floor(x / y))
	case ArithMod:
		m := x - math.Floor(x/y)*y
		return Float(m)
	case ArithPow:
		return Float(math.Pow(x, y))
	default:
		panic("floatArith: unhandled op " + arithNames[op])
	}
}

// floorDivInt divides flooring toward negative infinity, so -7 // 2 is -4.
func floorDivInt(x, y int64) int64 {
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return q
}

// floorModInt takes the remainder with the sign of the divisor, so
// -5 % 3 is 1.
func floorModInt(x, y int64) int64 {
	r := x % y
	if r != 0 && ((r < 0) != (y < 0)) {
		r += y
	}
	return r
}

func bitwise(h *Heap, op ArithOp, a, b Value) (Value, error) {
	x, ok := toInteger(a)
	if !ok {
		return Nil, bitwiseErr(h, a)
	}
	y, ok := toInteger(b)
	if !ok {
		return Nil, bitwiseErr(h, b)
	}
	switch op {
	case ArithBAnd:
		return Int(x & y), nil
	case ArithBOr:
		return Int(x | y), nil
	case ArithBXor:
		return Int(x ^ y), nil
	case ArithShl:
		return Int(shiftLeft(x, y)), nil
	default:
		return Int(shiftLeft(x, -y)), nil
	}
}

func bitwiseErr(h *Heap, v Value) error {
	if v.kind == KindFloat {
		return NewError(h, "number has no integer representation")
	}
	return NewError(h, "attempt to perform bitwise operation on a %s value", v.TypeName())
}

// shiftLeft shifts logically. A negative count shifts the other way, and
// counts of 64 or more produce zero rather than wrapping.
func shiftLeft(x, n int64) int64 {
	if n <= -64 || n >= 64 {
		return 0
	}
	if n >= 0 {
		return int64(uint64(x) << uint(n))
	}
	return int64(uint64(x) >> uint(-n))
}

// Neg negates a number. Integer negation wraps, so -math.MinInt64 is itself.
func Neg(h *Heap, v Value) (Value, error) {
	switch v.kind {
	case KindInt:
		return Int(-v.i), nil
	case KindFloat:
		return Float(-v.f), nil
	default:
		return Nil, NewError(h, "attempt to perform arithmetic on a %s value", v.TypeName())
	}
}

// BNot is bitwise complement.
func BNot(h *Heap, v Value) (Value, error) {
	x, ok := toInteger(v)
	if !ok {
		return Nil, bitwiseErr(h, v)
	}
	return Int(^x), nil
}

// Len is the # operator: byte length of a string, border of a table.
func Len(h *Heap, v Value) (Value, error) {
	switch v.kind {
	case KindString:
		return Int(int64(len(v.AsString()))), nil
	case KindTable:
		return Int(v.AsTable().Len()), nil
	default:
		return Nil, NewError(h, "attempt to get length of a %s value", v.TypeName())
	}
}

// Concat is the .. operator. Strings pass through; numbers render with
// their tostring form; anything else errors.
func Concat(h *Heap, a, b Value) (Value, error) {
	as, ok := concatString(a)
	if !ok {
		return Nil, NewError(h, "attempt to concatenate a %s value", a.TypeName())
	}
	bs, ok := concatString(b)
	if !ok {
		return Nil, NewError(h, "attempt to concatenate a %s value", b.TypeName())
	}
	return h.String(as + bs), nil
}

func concatString(v Value) (string, bool) {
	switch v.kind {
	case KindString, KindInt, KindFloat:
		return v.String(), true
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// LessThan implements <. Numbers compare numerically across integer and
// float; strings compare bytewise; any other pairing errors.
func LessThan(h *Heap, a, b Value) (Value, error) {
	if isNumber(a) && isNumber(b) {
		return Bool(numLess(a, b, false)), nil
	}
	if a.kind == KindString && b.kind == KindString {
		return Bool(a.AsString() < b.AsString()), nil
	}
	return Nil, compareErr(h, a, b)
}

// LessEqual implements <=.
func LessEqual(h *Heap, a, b Value) (Value, error) {
	if isNumber(a) && isNumber(b) {
		return Bool(numLess(a, b, true)), nil
	}
	if a.kind == KindString && b.kind == KindString {
		return Bool(a.AsString() <= b.AsString()), nil
	}
	return Nil, compareErr(h, a, b)
}

func compareErr(h *Heap, a, b Value) error {
	return NewError(h, "attempt to compare %s with %s", a.TypeName(), b.TypeName())
}

func numLess(a, b Value, orEqual bool) bool {
	if a.kind == KindInt && b.kind == KindInt {
		if orEqual {
			return a.i <= b.i
		}
		return a.i < b.i
	}
	x, y := toFloat(a), toFloat(b)
	if orEqual {
		return x <= y
	}
	return x < y
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func isNumber(v Value) bool {
	return v.kind == KindInt || v.kind == KindFloat
}

func toFloat(v Value) float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// toInteger converts to an integer for bitwise operations: integers pass
// through, floats convert only when they hold an exact integer value.
func toInteger(v Value) (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if i := int64(v.f); float64(i) == v.f && !math.IsInf(v.f, 0) {
			return i, true
		}
	}
	return 0, false
}

// ToNumber exposes the numeric view of a value to builtins: integers and
// floats pass through unchanged.
func ToNumber(v Value) (Value, bool) {
	if isNumber(v) {
		return v, true
	}
	return Nil, false
}
