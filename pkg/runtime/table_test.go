package runtime

import (
	"math"
	"testing"
)

func TestTableDenseAppend(t *testing.T) {
	h := NewHeap(0, 0)
	tbl := h.NewTable().AsTable()

	for i := int64(1); i <= 10; i++ {
		tbl.SetInt(i, Int(i*10))
	}

	if tbl.ArrayLen() != 10 || tbl.HashLen() != 0 {
		t.Errorf("split = %d/%d, want 10/0", tbl.ArrayLen(), tbl.HashLen())
	}
	if tbl.Len() != 10 {
		t.Errorf("Len = %d, want 10", tbl.Len())
	}
	for i := int64(1); i <= 10; i++ {
		if got := tbl.GetInt(i); got.AsInt() != i*10 {
			t.Errorf("t[%d] = %s, want %d", i, got, i*10)
		}
	}
}

func TestTableSparseThenMigrate(t *testing.T) {
	h := NewHeap(0, 0)
	tbl := h.NewTable().AsTable()

	// A store far past the dense run lands in the hash part.
	tbl.SetInt(100, Int(1))
	if tbl.ArrayLen() != 0 || tbl.HashLen() != 1 {
		t.Errorf("split = %d/%d, want 0/1", tbl.ArrayLen(), tbl.HashLen())
	}

	// Index 4 is still past the run, so it stays in the hash part too.
	tbl.SetInt(4, Int(2))
	if tbl.ArrayLen() != 0 || tbl.HashLen() != 2 {
		t.Errorf("split = %d/%d, want 0/2", tbl.ArrayLen(), tbl.HashLen())
	}

	// Filling 1..3 extends the run; 4 migrates out of the hash part.
	tbl.SetInt(1, Int(10))
	tbl.SetInt(2, Int(20))
	tbl.SetInt(3, Int(30))
	if tbl.ArrayLen() != 4 || tbl.HashLen() != 1 {
		t.Errorf("split = %d/%d, want 4/1", tbl.ArrayLen(), tbl.HashLen())
	}
	if tbl.Len() != 4 {
		t.Errorf("Len = %d, want 4", tbl.Len())
	}
	if got := tbl.GetInt(4); got.AsInt() != 2 {
		t.Errorf("t[4] = %s, want 2", got)
	}
	if got := tbl.GetInt(100); got.AsInt() != 1 {
		t.Errorf("t[100] = %s, want 1", got)
	}
}

func TestTableNilStoreTruncates(t *testing.T) {
	h := NewHeap(0, 0)
	tbl := h.NewTable().AsTable()

	for i := int64(1); i <= 5; i++ {
		tbl.SetInt(i, Int(i))
	}

	// Storing nil mid-run truncates the run and spills the tail.
	tbl.SetInt(3, Nil)
	if tbl.Len() != 2 {
		t.Errorf("Len after t[3]=nil = %d, want 2", tbl.Len())
	}
	if !tbl.GetInt(3).IsNil() {
		t.Error("t[3] should be nil")
	}
	if got := tbl.GetInt(4); got.AsInt() != 4 {
		t.Errorf("t[4] = %s, want 4 (spilled to hash part)", got)
	}
	if got := tbl.GetInt(5); got.AsInt() != 5 {
		t.Errorf("t[5] = %s, want 5 (spilled to hash part)", got)
	}

	// Restoring index 3 re-extends the run and pulls the tail back.
	tbl.SetInt(3, Int(33))
	if tbl.Len() != 5 {
		t.Errorf("Len after restore = %d, want 5", tbl.Len())
	}
	if tbl.ArrayLen() != 5 || tbl.HashLen() != 0 {
		t.Errorf("split = %d/%d, want 5/0", tbl.ArrayLen(), tbl.HashLen())
	}
}

func TestTableNilStoreAtEnd(t *testing.T) {
	h := NewHeap(0, 0)
	tbl := h.NewTable().AsTable()

	tbl.Append(Int(1))
	tbl.Append(Int(2))
	tbl.SetInt(2, Nil)
	if tbl.Len() != 1 {
		t.Errorf("Len = %d, want 1", tbl.Len())
	}
	if tbl.HashLen() != 0 {
		t.Errorf("HashLen = %d, want 0", tbl.HashLen())
	}
}

func TestTableFloatKeyNormalization(t *testing.T) {
	h := NewHeap(0, 0)
	tbl := h.NewTable().AsTable()

	// t[2] and t[2.0] name the same slot.
	tbl.SetInt(2, Int(99))
	if got := tbl.Get(Float(2.0)); got.AsInt() != 99 {
		t.Errorf("t[2.0] = %s, want 99", got)
	}
	if err := tbl.Set(Float(2.0), Int(100)); err != nil {
		t.Fatalf("Set(2.0) failed: %v", err)
	}
	if got := tbl.GetInt(2); got.AsInt() != 100 {
		t.Errorf("t[2] = %s, want 100", got)
	}

	// Fractional float keys keep their own slot.
	if err := tbl.Set(Float(2.5), Int(7)); err != nil {
		t.Fatalf("Set(2.5) failed: %v", err)
	}
	if got := tbl.Get(Float(2.5)); got.AsInt() != 7 {
		t.Errorf("t[2.5] = %s, want 7", got)
	}
	if got := tbl.GetInt(2); got.AsInt() != 100 {
		t.Errorf("t[2] disturbed by t[2.5] store: %s", got)
	}
}

func TestTableBadKeys(t *testing.T) {
	h := NewHeap(0, 0)
	tbl := h.NewTable().AsTable()

	if err := tbl.Set(Nil, Int(1)); err != ErrNilIndex {
		t.Errorf("Set(nil) = %v, want ErrNilIndex", err)
	}
	if err := tbl.Set(Float(math.NaN()), Int(1)); err != ErrNaNIndex {
		t.Errorf("Set(NaN) = %v, want ErrNaNIndex", err)
	}

	// Reads with bad keys are just nil.
	if !tbl.Get(Nil).IsNil() {
		t.Error("Get(nil) should read nil")
	}
	if !tbl.Get(Float(math.NaN())).IsNil() {
		t.Error("Get(NaN) should read nil")
	}
}

func TestTableStringAndBoolKeys(t *testing.T) {
	h := NewHeap(0, 0)
	tbl := h.NewTable().AsTable()

	if err := tbl.Set(h.String("name"), h.String("crescent")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := tbl.Set(True, Int(1)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if got := tbl.Get(h.String("name")); got.AsString() != "crescent" {
		t.Errorf("t.name = %s", got)
	}
	if got := tbl.Get(True); got.AsInt() != 1 {
		t.Errorf("t[true] = %s", got)
	}

	// Deleting via nil store removes the hash entry.
	if err := tbl.Set(True, Nil); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !tbl.Get(True).IsNil() {
		t.Error("t[true] should be nil after delete")
	}
}

func TestTableKeysSnapshot(t *testing.T) {
	h := NewHeap(0, 0)
	tbl := h.NewTable().AsTable()

	tbl.Append(Int(10))
	tbl.Append(Int(20))
	tbl.Set(h.String("k"), Int(30))

	keys := tbl.Keys(h)
	if len(keys) != 3 {
		t.Fatalf("len(keys) = %d, want 3", len(keys))
	}
	// Dense keys come first, in order.
	if keys[0].AsInt() != 1 || keys[1].AsInt() != 2 {
		t.Errorf("dense keys = %s, %s, want 1, 2", keys[0], keys[1])
	}
	if keys[2].AsString() != "k" {
		t.Errorf("hash key = %s, want k", keys[2])
	}
}
