package runtime

import (
	"fmt"

	"github.com/crescent-lang/crescent/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Closures
// ---------------------------------------------------------------------------

// Closure is an instantiated function: a shared, immutable prototype plus
// this instance's upvalue cells and the globals table it resolves global
// names against. Many closures may share one prototype; each carries its
// own upvalues.
type Closure struct {
	ObjHeader
	Proto   *bytecode.Prototype
	Upvals  []*Upvalue
	Globals *Table
}

func (c *Closure) trace(mark func(Obj)) {
	for _, uv := range c.Upvals {
		mark(uv)
	}
	if c.Globals != nil {
		mark(c.Globals)
	}
}

// NewClosure allocates a closure over the prototype. Upvalue cells are bound
// by the caller (the VM's Closure instruction or the interpreter's
// Instantiate), which knows the enclosing frame.
func (h *Heap) NewClosure(proto *bytecode.Prototype, globals *Table) Value {
	c := &Closure{
		Proto:   proto,
		Upvals:  make([]*Upvalue, len(proto.Upvals)),
		Globals: globals,
	}
	h.alloc(c)
	return Value{kind: KindClosure, obj: c}
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// Upvalue is the cell behind a captured variable. While the variable's
// register is live the cell is open: it aliases the register through the
// VM's register stack, so the closure and the owning frame read and write
// the same storage. When the register dies the VM closes the cell, copying
// the value in. A cell is closed exactly once.
type Upvalue struct {
	ObjHeader
	slots *[]Value // VM register stack; nil once closed
	index int      // absolute stack index while open
	value Value    // payload once closed
}

func (u *Upvalue) trace(mark func(Obj)) {
	// Open cells alias a register that the VM marks as part of its own
	// roots; only the closed payload is traced here.
	if u.slots == nil {
		MarkValue(u.value, mark)
	}
}

// NewUpvalue allocates an open upvalue aliasing the given absolute register
// stack index.
func (h *Heap) NewUpvalue(slots *[]Value, index int) *Upvalue {
	u := &Upvalue{slots: slots, index: index}
	h.alloc(u)
	return u
}

// IsOpen reports whether the cell still aliases a live register.
func (u *Upvalue) IsOpen() bool { return u.slots != nil }

// StackIndex returns the absolute register index an open cell aliases.
// Valid only while open.
func (u *Upvalue) StackIndex() int { return u.index }

// Get reads through the cell.
func (u *Upvalue) Get() Value {
	if u.slots != nil {
		return (*u.slots)[u.index]
	}
	return u.value
}

// Set writes through the cell.
func (u *Upvalue) Set(v Value) {
	if u.slots != nil {
		(*u.slots)[u.index] = v
		return
	}
	u.value = v
}

// Close detaches the cell from the register stack, copying the current
// value in. Closing an already closed cell is an interpreter bug.
func (u *Upvalue) Close() {
	if u.slots == nil {
		panic(fmt.Sprintf("upvalue for stack index %d closed twice", u.index))
	}
	u.value = (*u.slots)[u.index]
	u.slots = nil
}

// ---------------------------------------------------------------------------
// Host functions
// ---------------------------------------------------------------------------

// CallCtx is the view of the interpreter a host function receives. Call is
// reentrant: a host function may call back into language code, including
// through nested protected calls.
type CallCtx interface {
	// Call invokes a callable value with the given arguments.
	Call(fn Value, args []Value) ([]Value, error)
	// Heap returns the allocating heap of the running interpreter.
	Heap() *Heap
	// Globals returns the globals table of the running closure.
	Globals() *Table
}

// GoFn is the signature of a host function. Returning a *Error raises a
// catchable language error; any other error aborts the interpreter.
type GoFn func(ctx CallCtx, args []Value) ([]Value, error)

// GoFunc is a host function installed into the interpreter, typically as a
// global. It participates in calls exactly like a closure. Values captured
// by the Go closure itself are invisible to the collector; anything it holds
// across calls must go in Pinned.
type GoFunc struct {
	ObjHeader
	Name   string
	Fn     GoFn
	Pinned []Value
}

func (g *GoFunc) trace(mark func(Obj)) {
	for _, v := range g.Pinned {
		MarkValue(v, mark)
	}
}
