// Package vm executes compiled prototypes over a register stack.
//
// The machine is a fetch-decode-execute loop over call frames. Each frame
// owns a window of the shared register stack; calls push frames with the
// callee's window starting right after the call target, so argument passing
// is mostly free. Runtime errors unwind frames to the nearest protected
// boundary; internal inconsistencies panic.
package vm

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/crescent-lang/crescent/pkg/bytecode"
	"github.com/crescent-lang/crescent/pkg/runtime"
)

var vmLog = commonlog.GetLogger("crescent.vm")

// Default execution limits, overridable through Options.
const (
	DefaultMaxCallDepth = 200
	DefaultMaxStack     = 65536
)

// Options bound a machine's resource use.
type Options struct {
	MaxCallDepth int // nested call frames before "stack overflow"
	MaxStack     int // register stack slots before "stack overflow"
}

func (o Options) withDefaults() Options {
	if o.MaxCallDepth <= 0 {
		o.MaxCallDepth = DefaultMaxCallDepth
	}
	if o.MaxStack <= 0 {
		o.MaxStack = DefaultMaxStack
	}
	return o
}

// frame is one activation record.
type frame struct {
	closure *runtime.Closure
	proto   *bytecode.Prototype
	base    int // absolute stack index of register 0
	pc      int
	top     int // absolute end of the live value window, for open protocols
	varargs []runtime.Value

	// Where results land in the caller when this frame returns.
	retA int // absolute stack index
	want int // result count the caller asked for, -1 for all
}

// VM is one execution engine. It shares a heap with its interpreter
// instance and registers itself as a GC root set: live registers, open
// upvalue cells and pinned values keep objects alive while the machine
// runs. A VM is single-threaded; instances never share values.
type VM struct {
	heap  *runtime.Heap
	opts  Options
	stack []runtime.Value

	frames     []frame
	openUpvals []*runtime.Upvalue
	pinned     []runtime.Value // host-call arguments mid-flight
}

// New creates a machine on the given heap and registers its roots.
func New(heap *runtime.Heap, opts Options) *VM {
	m := &VM{heap: heap, opts: opts.withDefaults()}
	heap.AddRoots(m)
	return m
}

// Heap returns the machine's allocating heap.
func (m *VM) Heap() *runtime.Heap { return m.heap }

// Globals returns the globals table of the innermost running closure, or
// nil when the machine is idle.
func (m *VM) Globals() *runtime.Table {
	for i := len(m.frames) - 1; i >= 0; i-- {
		if g := m.frames[i].closure.Globals; g != nil {
			return g
		}
	}
	return nil
}

// MarkRoots reports every value the machine is holding live.
func (m *VM) MarkRoots(mark func(runtime.Obj)) {
	for i := range m.stack {
		runtime.MarkValue(m.stack[i], mark)
	}
	for i := range m.frames {
		f := &m.frames[i]
		mark(f.closure)
		for _, v := range f.varargs {
			runtime.MarkValue(v, mark)
		}
	}
	for _, uv := range m.openUpvals {
		mark(uv)
	}
	for _, v := range m.pinned {
		runtime.MarkValue(v, mark)
	}
}

// ---------------------------------------------------------------------------
// Public call surface
// ---------------------------------------------------------------------------

// Call invokes a callable value. It is the protected-call boundary: a
// runtime error raised anywhere below returns here as a *runtime.Error with
// every intervening frame already unwound, and it is reentrant, so host
// functions may call back into language code.
func (m *VM) Call(fn runtime.Value, args []runtime.Value) ([]runtime.Value, error) {
	switch fn.Kind() {
	case runtime.KindGoFunc:
		return m.callHost(fn.AsGoFunc(), args)
	case runtime.KindClosure:
		return m.callClosure(fn.AsClosure(), args)
	default:
		return nil, runtime.NewError(m.heap, "attempt to call a %s value", fn.TypeName())
	}
}

func (m *VM) callHost(g *runtime.GoFunc, args []runtime.Value) ([]runtime.Value, error) {
	// Arguments and results are pinned around the host call: the host may
	// allocate, and a collection must not reclaim values only the host's
	// Go variables still reference.
	pinFloor := len(m.pinned)
	m.pinned = append(m.pinned, args...)
	results, err := g.Fn(m, args)
	m.pinned = append(m.pinned[:pinFloor], results...)
	defer func() { m.pinned = m.pinned[:pinFloor] }()
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (m *VM) callClosure(cl *runtime.Closure, args []runtime.Value) ([]runtime.Value, error) {
	base := m.stackFloor()
	if err := m.pushFrame(cl, base, args, base, -1); err != nil {
		return nil, err
	}
	return m.run(len(m.frames))
}

// ---------------------------------------------------------------------------
// Frames and the register stack
// ---------------------------------------------------------------------------

// stackFloor returns the first stack index above every live frame.
func (m *VM) stackFloor() int {
	if len(m.frames) == 0 {
		return 0
	}
	f := &m.frames[len(m.frames)-1]
	floor := f.base + f.proto.FrameSize
	if f.top > floor {
		floor = f.top
	}
	return floor
}

// ensureStack grows the register stack to hold index n-1.
func (m *VM) ensureStack(n int) error {
	if n > m.opts.MaxStack {
		return runtime.NewError(m.heap, "stack overflow")
	}
	for len(m.stack) < n {
		m.stack = append(m.stack, runtime.Nil)
	}
	return nil
}

// pushFrame activates a closure with its register window at base. Arguments
// may already sit at base (the in-place call path passes nil copyArgs and
// argc instead).
func (m *VM) pushFrame(cl *runtime.Closure, base int, args []runtime.Value, retA, want int) error {
	proto := cl.Proto
	if len(m.frames) >= m.opts.MaxCallDepth {
		return runtime.NewError(m.heap, "stack overflow")
	}
	if err := m.ensureStack(base + proto.FrameSize); err != nil {
		return err
	}

	f := frame{
		closure: cl,
		proto:   proto,
		base:    base,
		retA:    retA,
		want:    want,
	}

	// Parameters occupy the first registers, padded with nil; extras go
	// to the vararg store or are dropped.
	for i := 0; i < proto.NumParams; i++ {
		if i < len(args) {
			m.stack[base+i] = args[i]
		} else {
			m.stack[base+i] = runtime.Nil
		}
	}
	if proto.IsVararg && len(args) > proto.NumParams {
		f.varargs = append(f.varargs, args[proto.NumParams:]...)
	}
	for i := proto.NumParams; i < proto.FrameSize; i++ {
		m.stack[base+i] = runtime.Nil
	}
	f.top = base + proto.NumParams

	m.frames = append(m.frames, f)
	return nil
}

// popFrame removes the top frame, closing its upvalues and clearing the
// vacated stack slots so dead values do not linger as GC roots. floor is
// the first index that must survive (the end of the result window).
func (m *VM) popFrame(floor int) {
	f := &m.frames[len(m.frames)-1]
	m.closeUpvals(f.base)
	if floor < f.base {
		floor = f.base
	}
	for i := floor; i < len(m.stack); i++ {
		m.stack[i] = runtime.Nil
	}
	m.frames = m.frames[:len(m.frames)-1]
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// findOrCreateUpval returns the open cell aliasing an absolute stack index,
// creating it on first capture. Sharing the cell is what makes two closures
// over the same variable see each other's writes.
func (m *VM) findOrCreateUpval(idx int) *runtime.Upvalue {
	for _, uv := range m.openUpvals {
		if uv.StackIndex() == idx {
			return uv
		}
	}
	uv := m.heap.NewUpvalue(&m.stack, idx)
	m.openUpvals = append(m.openUpvals, uv)
	return uv
}

// closeUpvals closes every open cell at or above the given stack index.
// Each cell is closed exactly once; cells already closed are no longer in
// the open list.
func (m *VM) closeUpvals(from int) {
	remaining := m.openUpvals[:0]
	for _, uv := range m.openUpvals {
		if uv.StackIndex() >= from {
			uv.Close()
		} else {
			remaining = append(remaining, uv)
		}
	}
	m.openUpvals = remaining
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// throw decorates a runtime error with the current source position and
// unwinds every frame above entry. Non-runtime errors pass through for the
// host to handle.
func (m *VM) throw(entry int, err error) error {
	if rerr, ok := runtime.AsError(err); ok && rerr.Line == 0 && len(m.frames) >= entry {
		f := &m.frames[len(m.frames)-1]
		rerr.Source = f.proto.SourceName
		rerr.Line = f.proto.LineAt(f.pc - 1)
	}
	for len(m.frames) >= entry {
		floor := m.frames[len(m.frames)-1].base
		m.popFrame(floor)
	}
	vmLog.Debugf("unwound to frame depth %d: %s", len(m.frames), err)
	return err
}

// constValue materializes a constant pool entry.
func (m *VM) constValue(k bytecode.Constant) runtime.Value {
	switch k.Kind {
	case bytecode.ConstNil:
		return runtime.Nil
	case bytecode.ConstTrue:
		return runtime.True
	case bytecode.ConstFalse:
		return runtime.False
	case bytecode.ConstInt:
		return runtime.Int(k.I)
	case bytecode.ConstFloat:
		return runtime.Float(k.F)
	case bytecode.ConstString:
		return m.heap.String(k.S)
	default:
		panic(fmt.Sprintf("invalid constant kind %d", k.Kind))
	}
}
