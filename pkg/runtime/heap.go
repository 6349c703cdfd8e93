package runtime

import (
	"github.com/tliron/commonlog"
)

var gcLog = commonlog.GetLogger("crescent.gc")

// ---------------------------------------------------------------------------
// Heap objects
// ---------------------------------------------------------------------------

// Obj is implemented by every heap-allocated object. The collector owns the
// object graph: it reaches every live object from the registered roots via
// trace, and every allocated object via the intrusive list in ObjHeader.
type Obj interface {
	header() *ObjHeader
	trace(mark func(Obj))
}

// ObjHeader is embedded in every heap object. It links the object into the
// heap's allocation list and carries the mark bit.
type ObjHeader struct {
	marked bool
	dead   bool // set by sweep; use-after-free detector for tests
	next   Obj
}

func (h *ObjHeader) header() *ObjHeader { return h }

// Dead reports whether the object was reclaimed by the collector. A live
// reference to a dead object is an interpreter bug.
func (h *ObjHeader) Dead() bool { return h.dead }

// SString is a heap-allocated, interned string. Interning is per-heap, so
// equal strings on one heap share an object.
type SString struct {
	ObjHeader
	s string
}

func (s *SString) trace(func(Obj)) {}

// Str returns the string contents.
func (s *SString) Str() string { return s.s }

// RootSet is implemented by components whose values keep objects alive: the
// VM (live registers, open upvalues, pinned values) and the interpreter
// (globals). Root sets are registered on the heap and consulted at the start
// of every collection.
type RootSet interface {
	MarkRoots(mark func(Obj))
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// Default collection tuning, overridable through Config.
const (
	DefaultGCThreshold = 4096
	DefaultGCGrowth    = 2.0
)

// Heap owns every object an interpreter instance allocates. Collection is
// stop-the-world mark-and-sweep: allocation crossing the threshold triggers
// a cycle before the new object is linked in, so a collection never reclaims
// the object being allocated.
//
// A Heap is not safe for concurrent use. Each interpreter instance has its
// own heap and runs on one goroutine at a time.
type Heap struct {
	objects    Obj // head of the intrusive allocation list
	numObjects int
	threshold  int
	growth     float64
	roots      []RootSet
	interned   map[string]*SString
	disabled   bool // collectgarbage("stop")

	// Cycle statistics, refreshed by every collection.
	LastMarked int
	LastSwept  int
	Cycles     int
}

// NewHeap creates an empty heap with the given collection threshold and
// growth factor. Zero values select the defaults.
func NewHeap(threshold int, growth float64) *Heap {
	if threshold <= 0 {
		threshold = DefaultGCThreshold
	}
	if growth <= 1 {
		growth = DefaultGCGrowth
	}
	return &Heap{
		threshold: threshold,
		growth:    growth,
		interned:  make(map[string]*SString),
	}
}

// AddRoots registers a root set. Roots are never unregistered; components
// live as long as their heap.
func (h *Heap) AddRoots(r RootSet) {
	h.roots = append(h.roots, r)
}

// NumObjects returns the number of live heap objects.
func (h *Heap) NumObjects() int { return h.numObjects }

// SetEnabled turns automatic collection on or off. Explicit Collect calls
// still run while disabled.
func (h *Heap) SetEnabled(on bool) { h.disabled = !on }

// alloc links a freshly constructed object into the heap, collecting first
// if the threshold has been reached.
func (h *Heap) alloc(o Obj) {
	if h.numObjects >= h.threshold && !h.disabled {
		h.Collect()
		grown := int(float64(h.numObjects) * h.growth)
		if grown > h.threshold {
			h.threshold = grown
		}
	}
	o.header().next = h.objects
	h.objects = o
	h.numObjects++
}

// String allocates (or reuses) an interned string value.
func (h *Heap) String(s string) Value {
	if obj, ok := h.interned[s]; ok {
		return Value{kind: KindString, obj: obj}
	}
	obj := &SString{s: s}
	h.alloc(obj)
	h.interned[s] = obj
	return Value{kind: KindString, obj: obj}
}

// NewTable allocates an empty table value.
func (h *Heap) NewTable() Value {
	t := &Table{}
	h.alloc(t)
	return Value{kind: KindTable, obj: t}
}

// NewTableSized allocates a table with capacity hints for the array and
// hash parts.
func (h *Heap) NewTableSized(arrayHint, hashHint int) Value {
	t := &Table{}
	if arrayHint > 0 {
		t.array = make([]Value, 0, arrayHint)
	}
	if hashHint > 0 {
		t.hash = make(map[tableKey]Value, hashHint)
	}
	h.alloc(t)
	return Value{kind: KindTable, obj: t}
}

// NewGoFunc allocates a host function value.
func (h *Heap) NewGoFunc(name string, fn GoFn) Value {
	g := &GoFunc{Name: name, Fn: fn}
	h.alloc(g)
	return Value{kind: KindGoFunc, obj: g}
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// Collect runs one full mark-and-sweep cycle and returns the number of
// objects reclaimed.
func (h *Heap) Collect() int {
	marked := 0
	var pending []Obj

	mark := func(o Obj) {
		if o == nil || o.header().marked {
			return
		}
		o.header().marked = true
		marked++
		pending = append(pending, o)
	}

	for _, r := range h.roots {
		r.MarkRoots(mark)
	}
	// Tracing is iterative so arbitrarily deep object graphs cannot
	// overflow the Go stack.
	for len(pending) > 0 {
		o := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		o.trace(mark)
	}

	swept := h.sweep()

	h.LastMarked = marked
	h.LastSwept = swept
	h.Cycles++
	gcLog.Debugf("cycle %d: marked %d, swept %d, live %d, threshold %d",
		h.Cycles, marked, swept, h.numObjects, h.threshold)
	return swept
}

// sweep unlinks every unmarked object and clears the mark bits of the
// survivors.
func (h *Heap) sweep() int {
	swept := 0
	var prev Obj
	o := h.objects
	for o != nil {
		hd := o.header()
		next := hd.next
		if hd.marked {
			hd.marked = false
			prev = o
		} else {
			if prev == nil {
				h.objects = next
			} else {
				prev.header().next = next
			}
			if s, ok := o.(*SString); ok {
				delete(h.interned, s.s)
			}
			hd.next = nil
			hd.dead = true
			h.numObjects--
			swept++
		}
		o = next
	}
	return swept
}
