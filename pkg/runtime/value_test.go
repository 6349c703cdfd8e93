package runtime

import (
	"math"
	"testing"
)

func TestTruthy(t *testing.T) {
	h := NewHeap(0, 0)
	tests := []struct {
		v    Value
		want bool
	}{
		{Nil, false},
		{False, false},
		{True, true},
		{Int(0), true}, // zero is true
		{Float(0), true},
		{h.String(""), true}, // so is the empty string
		{h.NewTable(), true},
	}
	for _, tt := range tests {
		if got := tt.v.Truthy(); got != tt.want {
			t.Errorf("Truthy(%s) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestEqual(t *testing.T) {
	h := NewHeap(0, 0)
	t1 := h.NewTable()
	t2 := h.NewTable()

	tests := []struct {
		a, b Value
		want bool
	}{
		{Nil, Nil, true},
		{Nil, False, false}, // nil and false are distinct
		{Int(1), Int(1), true},
		{Int(1), Float(1.0), true}, // numeric equality crosses kinds
		{Float(0.5), Float(0.5), true},
		{Int(1), h.String("1"), false}, // no coercion in ==
		{h.String("a"), h.String("a"), true},
		{t1, t1, true},
		{t1, t2, false}, // tables compare by identity
	}
	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.want {
			t.Errorf("%s == %s is %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if got := tt.b.Equal(tt.a); got != tt.want {
			t.Errorf("%s == %s is %v, want %v (symmetry)", tt.b, tt.a, got, tt.want)
		}
	}

	// NaN is not equal to itself.
	nan := Float(math.NaN())
	if nan.Equal(nan) {
		t.Error("NaN == NaN should be false")
	}
}

func TestValueString(t *testing.T) {
	h := NewHeap(0, 0)
	tests := []struct {
		v    Value
		want string
	}{
		{Nil, "nil"},
		{True, "true"},
		{False, "false"},
		{Int(42), "42"},
		{Int(-1), "-1"},
		{Float(0.5), "0.5"},
		{Float(3), "3.0"}, // integral floats keep a visible point
		{Float(math.Inf(1)), "inf"},
		{Float(math.Inf(-1)), "-inf"},
		{Float(math.NaN()), "nan"},
		{h.String("hi"), "hi"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTypeName(t *testing.T) {
	h := NewHeap(0, 0)
	fn := h.NewGoFunc("f", func(ctx CallCtx, args []Value) ([]Value, error) { return nil, nil })

	tests := []struct {
		v    Value
		want string
	}{
		{Nil, "nil"},
		{True, "boolean"},
		{Int(1), "number"},
		{Float(1), "number"}, // both numeric kinds read "number"
		{h.String(""), "string"},
		{h.NewTable(), "table"},
		{fn, "function"},
	}
	for _, tt := range tests {
		if got := tt.v.TypeName(); got != tt.want {
			t.Errorf("TypeName(%s) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
