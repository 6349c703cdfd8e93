package runtime

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Table keys
// ---------------------------------------------------------------------------

// tableKey is the comparable form of a Value used in the hash part. Heap
// keys carry their object so trace can mark it; interning makes string
// identity and content equality agree for live strings. A float key with an
// integral value is normalized to the equivalent integer key, so t[2] and
// t[2.0] are the same slot.
type tableKey struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	obj  Obj
}

// ErrNilIndex and ErrNaNIndex are raised as table index errors by Set.
var (
	ErrNilIndex = fmt.Errorf("table index is nil")
	ErrNaNIndex = fmt.Errorf("table index is NaN")
)

// normalizeKey converts a Value into its canonical key form.
func normalizeKey(v Value) (tableKey, error) {
	switch v.kind {
	case KindNil:
		return tableKey{}, ErrNilIndex
	case KindBool:
		return tableKey{kind: KindBool, b: v.b}, nil
	case KindInt:
		return tableKey{kind: KindInt, i: v.i}, nil
	case KindFloat:
		f := v.f
		if math.IsNaN(f) {
			return tableKey{}, ErrNaNIndex
		}
		if i := int64(f); float64(i) == f {
			return tableKey{kind: KindInt, i: i}, nil
		}
		return tableKey{kind: KindFloat, f: f}, nil
	case KindString:
		return tableKey{kind: KindString, s: v.AsString(), obj: v.obj}, nil
	default:
		return tableKey{kind: v.kind, obj: v.obj}, nil
	}
}

// keyValue converts a canonical key back to a Value.
func (h *Heap) keyValue(k tableKey) Value {
	switch k.kind {
	case KindBool:
		return Bool(k.b)
	case KindInt:
		return Int(k.i)
	case KindFloat:
		return Float(k.f)
	default:
		return Value{kind: k.kind, obj: k.obj}
	}
}

// ---------------------------------------------------------------------------
// Table
// ---------------------------------------------------------------------------

// Table is the language's only aggregate: a hybrid of a dense array part and
// a hash part. The array part holds the values for integer keys 1..N with no
// nil gaps; every other live key is in the hash part. Stores maintain the
// split: extending the dense run migrates follower keys out of the hash
// part, and storing nil inside the run truncates it, spilling the tail into
// the hash part.
type Table struct {
	ObjHeader
	array []Value
	hash  map[tableKey]Value
}

func (t *Table) trace(mark func(Obj)) {
	for _, v := range t.array {
		MarkValue(v, mark)
	}
	for k, v := range t.hash {
		if k.obj != nil {
			mark(k.obj)
		}
		MarkValue(v, mark)
	}
}

// Get returns the value for a key, or nil for an absent key. A nil key reads
// as nil rather than erroring; only stores reject it.
func (t *Table) Get(key Value) Value {
	if key.kind == KindNil {
		return Nil
	}
	k, err := normalizeKey(key)
	if err != nil {
		return Nil
	}
	if k.kind == KindInt && k.i >= 1 && k.i <= int64(len(t.array)) {
		return t.array[k.i-1]
	}
	if t.hash == nil {
		return Nil
	}
	return t.hash[k]
}

// GetInt returns the value for an integer key.
func (t *Table) GetInt(i int64) Value {
	if i >= 1 && i <= int64(len(t.array)) {
		return t.array[i-1]
	}
	if t.hash == nil {
		return Nil
	}
	return t.hash[tableKey{kind: KindInt, i: i}]
}

// Set stores a value under a key. Storing nil removes the key. Nil and NaN
// keys are rejected.
func (t *Table) Set(key, val Value) error {
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	t.set(k, val)
	return nil
}

// SetInt stores a value under an integer key.
func (t *Table) SetInt(i int64, val Value) {
	t.set(tableKey{kind: KindInt, i: i}, val)
}

func (t *Table) set(k tableKey, val Value) {
	if k.kind == KindInt {
		n := int64(len(t.array))
		switch {
		case k.i >= 1 && k.i <= n:
			if val.kind == KindNil {
				t.truncate(k.i)
			} else {
				t.array[k.i-1] = val
			}
			return
		case k.i == n+1 && val.kind != KindNil:
			t.array = append(t.array, val)
			t.migrate()
			return
		}
	}
	if val.kind == KindNil {
		if t.hash != nil {
			delete(t.hash, k)
		}
		return
	}
	if t.hash == nil {
		t.hash = make(map[tableKey]Value)
	}
	t.hash[k] = val
}

// truncate stores nil at array index i (1-based): the dense run ends at i-1
// and the surviving tail moves to the hash part.
func (t *Table) truncate(i int64) {
	n := int64(len(t.array))
	if i == n {
		t.array = t.array[:n-1]
		return
	}
	if t.hash == nil {
		t.hash = make(map[tableKey]Value)
	}
	for j := i + 1; j <= n; j++ {
		t.hash[tableKey{kind: KindInt, i: j}] = t.array[j-1]
	}
	t.array = t.array[:i-1]
}

// migrate pulls keys that now extend the dense run out of the hash part.
func (t *Table) migrate() {
	if t.hash == nil {
		return
	}
	for {
		k := tableKey{kind: KindInt, i: int64(len(t.array)) + 1}
		v, ok := t.hash[k]
		if !ok {
			return
		}
		delete(t.hash, k)
		t.array = append(t.array, v)
	}
}

// Len returns the length of the dense run, the table's # border.
func (t *Table) Len() int64 {
	return int64(len(t.array))
}

// ArrayLen and HashLen expose the internal split sizes for diagnostics.
func (t *Table) ArrayLen() int { return len(t.array) }
func (t *Table) HashLen() int  { return len(t.hash) }

// Append stores a value at the end of the dense run.
func (t *Table) Append(val Value) {
	t.SetInt(int64(len(t.array))+1, val)
}

// Keys returns a snapshot of every live key, dense run first. Iteration
// helpers use the snapshot so mutation during traversal cannot skip or
// repeat surviving keys.
func (t *Table) Keys(h *Heap) []Value {
	keys := make([]Value, 0, len(t.array)+len(t.hash))
	for i := range t.array {
		keys = append(keys, Int(int64(i)+1))
	}
	for k := range t.hash {
		keys = append(keys, h.keyValue(k))
	}
	return keys
}
