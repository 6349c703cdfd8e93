// Package interp is the embedding surface: it owns an interpreter instance
// (heap, globals, machine) and offers compile, instantiate and call
// operations plus conversions between host values and language values.
//
// Instances are fully isolated: each has its own heap, globals table and
// register stack, and values never move between instances. One instance
// runs on one goroutine at a time; separate instances are independent.
package interp

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/crescent-lang/crescent/pkg/ast"
	"github.com/crescent-lang/crescent/pkg/bytecode"
	"github.com/crescent-lang/crescent/pkg/compiler"
	"github.com/crescent-lang/crescent/pkg/config"
	"github.com/crescent-lang/crescent/pkg/parser"
	"github.com/crescent-lang/crescent/pkg/runtime"
	"github.com/crescent-lang/crescent/pkg/vm"
)

var log = commonlog.GetLogger("crescent.interp")

// Interp is one interpreter instance.
type Interp struct {
	ID uuid.UUID

	heap    *runtime.Heap
	machine *vm.VM
	globals *runtime.Table
	out     io.Writer
}

// New creates an instance configured by cfg; a nil cfg uses the defaults.
func New(cfg *config.Config) *Interp {
	if cfg == nil {
		cfg = config.Default()
	}
	heap := runtime.NewHeap(cfg.GC.Threshold, cfg.GC.Growth)
	machine := vm.New(heap, vm.Options{
		MaxCallDepth: cfg.VM.MaxCallDepth,
		MaxStack:     cfg.VM.MaxStack,
	})

	i := &Interp{
		ID:      uuid.New(),
		heap:    heap,
		machine: machine,
		out:     os.Stdout,
	}
	i.globals = heap.NewTable().AsTable()
	heap.AddRoots(i)
	i.installBuiltins()

	log.Debugf("instance %s created", i.ID)
	return i
}

// MarkRoots keeps the globals table alive across collections.
func (i *Interp) MarkRoots(mark func(runtime.Obj)) {
	mark(i.globals)
}

// SetOutput redirects print output, which defaults to stdout.
func (i *Interp) SetOutput(w io.Writer) { i.out = w }

// Heap exposes the instance's heap, mainly for host allocation and tests.
func (i *Interp) Heap() *runtime.Heap { return i.heap }

// ---------------------------------------------------------------------------
// Compile, instantiate, call
// ---------------------------------------------------------------------------

// CompileSource parses and compiles a chunk of source text. name labels the
// chunk in error messages and disassembly.
func (i *Interp) CompileSource(name, source string) (*bytecode.Prototype, error) {
	block, err := parser.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return i.Compile(block, name)
}

// Compile lowers an already validated syntax tree.
func (i *Interp) Compile(block *ast.Block, name string) (*bytecode.Prototype, error) {
	proto, err := compiler.Compile(block, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return proto, nil
}

// Instantiate binds a prototype to this instance's globals, yielding a
// callable closure value. A prototype may be instantiated any number of
// times, including on different instances.
func (i *Interp) Instantiate(proto *bytecode.Prototype) runtime.Value {
	return i.heap.NewClosure(proto, i.globals)
}

// Call invokes a callable value. Runtime errors come back as
// *runtime.Error with the offending frames already unwound.
func (i *Interp) Call(fn runtime.Value, args ...runtime.Value) ([]runtime.Value, error) {
	return i.machine.Call(fn, args)
}

// Run compiles, instantiates and executes source in one step.
func (i *Interp) Run(name, source string, args ...runtime.Value) ([]runtime.Value, error) {
	proto, err := i.CompileSource(name, source)
	if err != nil {
		return nil, err
	}
	return i.Call(i.Instantiate(proto), args...)
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// Global reads a global by name.
func (i *Interp) Global(name string) runtime.Value {
	return i.globals.Get(i.heap.String(name))
}

// SetGlobal writes a global by name.
func (i *Interp) SetGlobal(name string, v runtime.Value) {
	if err := i.globals.Set(i.heap.String(name), v); err != nil {
		panic(err) // string keys cannot be rejected
	}
}

// RegisterFunc installs a host function as a global.
func (i *Interp) RegisterFunc(name string, fn runtime.GoFn) {
	i.SetGlobal(name, i.heap.NewGoFunc(name, fn))
}

// ---------------------------------------------------------------------------
// Host value conversion
// ---------------------------------------------------------------------------

// ToValue converts a Go value into a language value on this instance's
// heap. Maps and slices convert recursively into tables.
func (i *Interp) ToValue(v any) (runtime.Value, error) {
	switch x := v.(type) {
	case nil:
		return runtime.Nil, nil
	case bool:
		return runtime.Bool(x), nil
	case int:
		return runtime.Int(int64(x)), nil
	case int64:
		return runtime.Int(x), nil
	case float64:
		return runtime.Float(x), nil
	case string:
		return i.heap.String(x), nil
	case runtime.Value:
		return x, nil
	case []any:
		tv := i.heap.NewTableSized(len(x), 0)
		t := tv.AsTable()
		for _, item := range x {
			iv, err := i.ToValue(item)
			if err != nil {
				return runtime.Nil, err
			}
			t.Append(iv)
		}
		return tv, nil
	case map[string]any:
		tv := i.heap.NewTableSized(0, len(x))
		t := tv.AsTable()
		for k, item := range x {
			iv, err := i.ToValue(item)
			if err != nil {
				return runtime.Nil, err
			}
			if err := t.Set(i.heap.String(k), iv); err != nil {
				return runtime.Nil, err
			}
		}
		return tv, nil
	default:
		return runtime.Nil, fmt.Errorf("cannot convert %T to a language value", v)
	}
}

// FromValue converts a language value into plain Go data. Tables with only
// a dense array part become []any; others become map[any]any. Cyclic tables
// are not supported.
func (i *Interp) FromValue(v runtime.Value) (any, error) {
	switch v.Kind() {
	case runtime.KindNil:
		return nil, nil
	case runtime.KindBool:
		return v.AsBool(), nil
	case runtime.KindInt:
		return v.AsInt(), nil
	case runtime.KindFloat:
		return v.AsFloat(), nil
	case runtime.KindString:
		return v.AsString(), nil
	case runtime.KindTable:
		t := v.AsTable()
		if t.HashLen() == 0 {
			out := make([]any, 0, t.ArrayLen())
			for n := int64(1); n <= t.Len(); n++ {
				item, err := i.FromValue(t.GetInt(n))
				if err != nil {
					return nil, err
				}
				out = append(out, item)
			}
			return out, nil
		}
		out := make(map[any]any, t.ArrayLen()+t.HashLen())
		for _, key := range t.Keys(i.heap) {
			gk, err := i.FromValue(key)
			if err != nil {
				return nil, err
			}
			gv, err := i.FromValue(t.Get(key))
			if err != nil {
				return nil, err
			}
			out[gk] = gv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot convert a %s value to Go data", v.TypeName())
	}
}
