package runtime

import (
	"math"
	"strings"
	"testing"
)

func TestIntegerArithmetic(t *testing.T) {
	h := NewHeap(0, 0)
	tests := []struct {
		op   ArithOp
		a, b int64
		want int64
	}{
		{ArithAdd, 2, 3, 5},
		{ArithSub, 2, 3, -1},
		{ArithMul, 7, 6, 42},
		{ArithIDiv, 7, 2, 3},
		{ArithIDiv, -7, 2, -4},
		{ArithIDiv, 7, -2, -4},
		{ArithIDiv, -7, -2, 3},
		{ArithMod, 5, 3, 2},
		{ArithMod, -5, 3, 1},
		{ArithMod, 5, -3, -1},
		{ArithMod, -5, -3, -2},
		{ArithAdd, math.MaxInt64, 1, math.MinInt64}, // wraps
		{ArithMul, math.MinInt64, -1, math.MinInt64},
	}

	for _, tt := range tests {
		got, err := Arith(h, tt.op, Int(tt.a), Int(tt.b))
		if err != nil {
			t.Fatalf("Arith(%s, %d, %d) failed: %v", arithNames[tt.op], tt.a, tt.b, err)
		}
		if got.Kind() != KindInt {
			t.Errorf("Arith(%s, %d, %d) = %s, want integer", arithNames[tt.op], tt.a, tt.b, got)
			continue
		}
		if got.AsInt() != tt.want {
			t.Errorf("Arith(%s, %d, %d) = %d, want %d", arithNames[tt.op], tt.a, tt.b, got.AsInt(), tt.want)
		}
	}
}

func TestFloatPromotion(t *testing.T) {
	h := NewHeap(0, 0)

	// / and ^ always produce floats, even on integer operands.
	v, err := Arith(h, ArithDiv, Int(1), Int(2))
	if err != nil {
		t.Fatalf("div failed: %v", err)
	}
	if v.Kind() != KindFloat || v.AsFloat() != 0.5 {
		t.Errorf("1/2 = %s, want 0.5", v)
	}

	v, err = Arith(h, ArithPow, Int(2), Int(10))
	if err != nil {
		t.Fatalf("pow failed: %v", err)
	}
	if v.Kind() != KindFloat || v.AsFloat() != 1024 {
		t.Errorf("2^10 = %s, want float 1024", v)
	}

	// One float operand promotes the whole operation.
	v, err = Arith(h, ArithAdd, Int(1), Float(2.5))
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if v.Kind() != KindFloat || v.AsFloat() != 3.5 {
		t.Errorf("1 + 2.5 = %s, want 3.5", v)
	}

	// Float floor division floors toward negative infinity too.
	v, err = Arith(h, ArithIDiv, Float(-7), Float(2))
	if err != nil {
		t.Fatalf("idiv failed: %v", err)
	}
	if v.Kind() != KindFloat || v.AsFloat() != -4 {
		t.Errorf("-7.0 // 2.0 = %s, want -4.0", v)
	}
}

func TestDivisionByZero(t *testing.T) {
	h := NewHeap(0, 0)

	if _, err := Arith(h, ArithIDiv, Int(1), Int(0)); err == nil {
		t.Error("expected error for integer 1 // 0")
	}
	if _, err := Arith(h, ArithMod, Int(1), Int(0)); err == nil {
		t.Error("expected error for integer 1 % 0")
	}

	// Float division by zero is well defined.
	v, err := Arith(h, ArithDiv, Int(1), Float(0))
	if err != nil {
		t.Fatalf("float div failed: %v", err)
	}
	if !math.IsInf(v.AsFloat(), 1) {
		t.Errorf("1 / 0.0 = %s, want +Inf", v)
	}
}

func TestBitwise(t *testing.T) {
	h := NewHeap(0, 0)
	tests := []struct {
		op   ArithOp
		a, b int64
		want int64
	}{
		{ArithBAnd, 0b1100, 0b1010, 0b1000},
		{ArithBOr, 0b1100, 0b1010, 0b1110},
		{ArithBXor, 0b1100, 0b1010, 0b0110},
		{ArithShl, 1, 4, 16},
		{ArithShl, 1, 64, 0},   // full-width shift is zero
		{ArithShl, 16, -2, 4},  // negative count reverses direction
		{ArithShr, 16, 2, 4},
		{ArithShr, -1, 1, math.MaxInt64}, // logical, not arithmetic
		{ArithShr, 1, 100, 0},
	}

	for _, tt := range tests {
		got, err := Arith(h, tt.op, Int(tt.a), Int(tt.b))
		if err != nil {
			t.Fatalf("Arith(%s, %d, %d) failed: %v", arithNames[tt.op], tt.a, tt.b, err)
		}
		if got.AsInt() != tt.want {
			t.Errorf("Arith(%s, %d, %d) = %d, want %d", arithNames[tt.op], tt.a, tt.b, got.AsInt(), tt.want)
		}
	}
}

func TestBitwiseFloatOperands(t *testing.T) {
	h := NewHeap(0, 0)

	// Integral floats convert; fractional floats error.
	v, err := Arith(h, ArithBAnd, Float(6), Int(3))
	if err != nil {
		t.Fatalf("band with 6.0 failed: %v", err)
	}
	if v.AsInt() != 2 {
		t.Errorf("6.0 & 3 = %d, want 2", v.AsInt())
	}

	_, err = Arith(h, ArithBOr, Float(1.5), Int(0))
	if err == nil {
		t.Fatal("expected error for 1.5 | 0")
	}
	if !strings.Contains(err.Error(), "no integer representation") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNeg(t *testing.T) {
	h := NewHeap(0, 0)

	v, err := Neg(h, Int(5))
	if err != nil || v.AsInt() != -5 {
		t.Errorf("-5 = %s (%v)", v, err)
	}
	v, err = Neg(h, Int(math.MinInt64))
	if err != nil || v.AsInt() != math.MinInt64 {
		t.Errorf("-MinInt64 = %s (%v), want wraparound", v, err)
	}
	if _, err := Neg(h, h.String("x")); err == nil {
		t.Error("expected error negating a string")
	}
}

func TestConcat(t *testing.T) {
	h := NewHeap(0, 0)

	v, err := Concat(h, h.String("n="), Int(10))
	if err != nil {
		t.Fatalf("concat failed: %v", err)
	}
	if v.AsString() != "n=10" {
		t.Errorf("concat = %q, want %q", v.AsString(), "n=10")
	}

	v, err = Concat(h, Float(1.5), h.String("x"))
	if err != nil {
		t.Fatalf("concat failed: %v", err)
	}
	if v.AsString() != "1.5x" {
		t.Errorf("concat = %q, want %q", v.AsString(), "1.5x")
	}

	if _, err := Concat(h, h.NewTable(), h.String("x")); err == nil {
		t.Error("expected error concatenating a table")
	}
}

func TestComparison(t *testing.T) {
	h := NewHeap(0, 0)

	tests := []struct {
		a, b   Value
		lt, le bool
	}{
		{Int(1), Int(2), true, true},
		{Int(2), Int(2), false, true},
		{Int(3), Int(2), false, false},
		{Int(1), Float(1.5), true, true},  // mixed numeric compares numerically
		{Float(2.0), Int(2), false, true},
		{h.String("abc"), h.String("abd"), true, true},
		{h.String("b"), h.String("abc"), false, false},
	}

	for _, tt := range tests {
		lt, err := LessThan(h, tt.a, tt.b)
		if err != nil {
			t.Fatalf("LessThan(%s, %s) failed: %v", tt.a, tt.b, err)
		}
		if lt.AsBool() != tt.lt {
			t.Errorf("%s < %s = %v, want %v", tt.a, tt.b, lt.AsBool(), tt.lt)
		}
		le, err := LessEqual(h, tt.a, tt.b)
		if err != nil {
			t.Fatalf("LessEqual(%s, %s) failed: %v", tt.a, tt.b, err)
		}
		if le.AsBool() != tt.le {
			t.Errorf("%s <= %s = %v, want %v", tt.a, tt.b, le.AsBool(), tt.le)
		}
	}

	if _, err := LessThan(h, Int(1), h.String("1")); err == nil {
		t.Error("expected error comparing number with string")
	}
}

func TestLen(t *testing.T) {
	h := NewHeap(0, 0)

	v, err := Len(h, h.String("hello"))
	if err != nil || v.AsInt() != 5 {
		t.Errorf("#\"hello\" = %s (%v), want 5", v, err)
	}

	tv := h.NewTable()
	tbl := tv.AsTable()
	tbl.Append(Int(10))
	tbl.Append(Int(20))
	v, err = Len(h, tv)
	if err != nil || v.AsInt() != 2 {
		t.Errorf("#table = %s (%v), want 2", v, err)
	}

	if _, err := Len(h, Int(3)); err == nil {
		t.Error("expected error taking length of a number")
	}
}
