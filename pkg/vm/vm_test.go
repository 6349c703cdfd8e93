package vm

import (
	"strings"
	"testing"

	"github.com/crescent-lang/crescent/pkg/compiler"
	"github.com/crescent-lang/crescent/pkg/parser"
	"github.com/crescent-lang/crescent/pkg/runtime"
)

// env bundles a heap, a machine and a rooted globals table for script tests.
type env struct {
	heap    *runtime.Heap
	machine *VM
	globals *runtime.Table
}

func (e *env) MarkRoots(mark func(runtime.Obj)) {
	mark(e.globals)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	heap := runtime.NewHeap(0, 0)
	e := &env{
		heap:    heap,
		machine: New(heap, Options{}),
		globals: heap.NewTable().AsTable(),
	}
	heap.AddRoots(e)
	return e
}

func (e *env) compile(t *testing.T, src string) runtime.Value {
	t.Helper()
	block, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	proto, err := compiler.Compile(block, "test")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return e.heap.NewClosure(proto, e.globals)
}

func (e *env) run(t *testing.T, src string, args ...runtime.Value) []runtime.Value {
	t.Helper()
	results, err := e.machine.Call(e.compile(t, src), args)
	if err != nil {
		t.Fatalf("run failed: %v\nsource: %s", err, src)
	}
	return results
}

func (e *env) runErr(t *testing.T, src string) *runtime.Error {
	t.Helper()
	_, err := e.machine.Call(e.compile(t, src), nil)
	if err == nil {
		t.Fatalf("run of %q unexpectedly succeeded", src)
	}
	rerr, ok := runtime.AsError(err)
	if !ok {
		t.Fatalf("error is %T (%v), want *runtime.Error", err, err)
	}
	return rerr
}

// wantInts checks that results are exactly the given integers.
func wantInts(t *testing.T, results []runtime.Value, want ...int64) {
	t.Helper()
	if len(results) != len(want) {
		t.Fatalf("got %d results %v, want %d", len(results), results, len(want))
	}
	for i, w := range want {
		if results[i].Kind() != runtime.KindInt || results[i].AsInt() != w {
			t.Errorf("result %d = %s, want %d", i, results[i], w)
		}
	}
}

// ---------------------------------------------------------------------------
// Values and expressions
// ---------------------------------------------------------------------------

func TestReturnValues(t *testing.T) {
	e := newEnv(t)
	wantInts(t, e.run(t, "return 1, 2, 3"), 1, 2, 3)

	results := e.run(t, "return")
	if len(results) != 0 {
		t.Errorf("bare return produced %v", results)
	}

	results = e.run(t, "local x = 1")
	if len(results) != 0 {
		t.Errorf("chunk without return produced %v", results)
	}
}

func TestArithmeticSemantics(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		src  string
		want runtime.Value
	}{
		{"return 2 + 3", runtime.Int(5)},
		{"return 7 // 2", runtime.Int(3)},
		{"return -7 // 2", runtime.Int(-4)},
		{"return 5 % 3", runtime.Int(2)},
		{"return -5 % 3", runtime.Int(1)},
		{"return 1 / 2", runtime.Float(0.5)},
		{"return 4 / 2", runtime.Float(2)}, // / is float even when exact
		{"return 2 ^ 10", runtime.Float(1024)},
		{"return 9223372036854775807 + 1", runtime.Int(-9223372036854775808)},
		{"return 1 + 0.5", runtime.Float(1.5)},
		{"return 7 & 5", runtime.Int(5)},
		{"return 1 << 3", runtime.Int(8)},
		{"return -2", runtime.Int(-2)},
		{"return ~0", runtime.Int(-1)},
		{"return #\"hello\"", runtime.Int(5)},
	}
	for _, tt := range tests {
		results := e.run(t, tt.src)
		if len(results) != 1 {
			t.Fatalf("%q gave %d results", tt.src, len(results))
		}
		got := results[0]
		if got.Kind() != tt.want.Kind() || !got.Equal(tt.want) {
			t.Errorf("%q = %s (%s), want %s (%s)",
				tt.src, got, got.TypeName(), tt.want, tt.want.TypeName())
		}
	}
}

func TestComparisonAndEquality(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		src  string
		want bool
	}{
		{"return 1 < 2", true},
		{"return 2 <= 2", true},
		{"return 3 > 2", true},
		{"return 1 >= 2", false},
		{"return 1 == 1.0", true},
		{"return 1 ~= 2", true},
		{"return \"a\" < \"b\"", true},
		{"return \"1\" == 1", false},
		{"return nil == false", false},
	}
	for _, tt := range tests {
		results := e.run(t, tt.src)
		if results[0].Kind() != runtime.KindBool || results[0].AsBool() != tt.want {
			t.Errorf("%q = %s, want %v", tt.src, results[0], tt.want)
		}
	}
}

func TestConcat(t *testing.T) {
	e := newEnv(t)
	results := e.run(t, `return "x=" .. 1 .. "," .. 2.5`)
	if results[0].AsString() != "x=1,2.5" {
		t.Errorf("concat = %q", results[0].AsString())
	}
}

func TestShortCircuit(t *testing.T) {
	e := newEnv(t)
	wantInts(t, e.run(t, "return 1 and 2"), 2)
	wantInts(t, e.run(t, "return nil or 3"), 3)

	// The right side must not be evaluated: boom is nil and calling it
	// would error.
	results := e.run(t, "return false and boom()")
	if results[0].Kind() != runtime.KindBool || results[0].AsBool() {
		t.Errorf("false and boom() = %s, want false", results[0])
	}
	results = e.run(t, "return 1 or boom()")
	wantInts(t, results, 1)
}

func TestParenTruncation(t *testing.T) {
	e := newEnv(t)
	src := `
local function two() return 1, 2 end
return (two())
`
	wantInts(t, e.run(t, src), 1)
}

// ---------------------------------------------------------------------------
// Locals, scope, assignment
// ---------------------------------------------------------------------------

func TestShadowing(t *testing.T) {
	e := newEnv(t)
	src := `
local x = 1
do
	local x = 2
	x = x + 10
end
return x
`
	wantInts(t, e.run(t, src), 1)
}

func TestLocalInitializerSeesOuterBinding(t *testing.T) {
	e := newEnv(t)
	src := `
local x = 5
do
	local x = x + 1
	if x ~= 6 then return -1 end
end
return x
`
	wantInts(t, e.run(t, src), 5)
}

func TestMultipleAssignment(t *testing.T) {
	e := newEnv(t)
	wantInts(t, e.run(t, "local a, b = 1 return a or -1, b == nil and 2 or -1"), 1, 2)
	wantInts(t, e.run(t, "local a, b, c = 1, 2 return a, b, c == nil and 3 or -1"), 1, 2, 3)
	wantInts(t, e.run(t, "local a, b = 1, 2 a, b = b, a return a, b"), 2, 1)
	wantInts(t, e.run(t, "local a, b = 1, 2, 3 return a, b"), 1, 2)
}

func TestGlobals(t *testing.T) {
	e := newEnv(t)
	wantInts(t, e.run(t, "g = 42 return g"), 42)

	// Globals persist across chunks sharing the globals table.
	wantInts(t, e.run(t, "return g"), 42)

	results := e.run(t, "return missing")
	if !results[0].IsNil() {
		t.Errorf("unset global = %s, want nil", results[0])
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func TestWhileLoop(t *testing.T) {
	e := newEnv(t)
	src := `
local s, i = 0, 1
while i <= 10 do
	s = s + i
	i = i + 1
end
return s
`
	wantInts(t, e.run(t, src), 55)
}

func TestRepeatSeesBodyLocals(t *testing.T) {
	e := newEnv(t)
	src := `
local n = 0
repeat
	local done = n >= 3
	n = n + 1
until done
return n
`
	wantInts(t, e.run(t, src), 4)
}

func TestBreak(t *testing.T) {
	e := newEnv(t)
	src := `
local i = 0
while true do
	i = i + 1
	if i == 5 then break end
end
return i
`
	wantInts(t, e.run(t, src), 5)
}

func TestNumericFor(t *testing.T) {
	e := newEnv(t)
	wantInts(t, e.run(t, "local s = 0 for i = 1, 10 do s = s + i end return s"), 55)
	wantInts(t, e.run(t, "local s = 0 for i = 10, 1, -2 do s = s + i end return s"), 30)
	wantInts(t, e.run(t, "local n = 0 for i = 5, 1 do n = n + 1 end return n"), 0)

	// A float anywhere in the header promotes the counter.
	results := e.run(t, "local last for i = 1, 2, 0.5 do last = i end return last")
	if results[0].Kind() != runtime.KindFloat || results[0].AsFloat() != 2 {
		t.Errorf("float loop last = %s, want 2.0", results[0])
	}

	// The visible variable is a copy; writing it does not affect iteration.
	wantInts(t, e.run(t, "local n = 0 for i = 1, 3 do i = 100 n = n + 1 end return n"), 3)
}

func TestNumericForErrors(t *testing.T) {
	e := newEnv(t)
	rerr := e.runErr(t, "for i = 1, 10, 0 do end")
	if !strings.Contains(rerr.Error(), "'for' step is zero") {
		t.Errorf("error = %v", rerr)
	}
	rerr = e.runErr(t, `for i = "a", 10 do end`)
	if !strings.Contains(rerr.Error(), "'for' initial value must be a number") {
		t.Errorf("error = %v", rerr)
	}
}

func TestGenericFor(t *testing.T) {
	e := newEnv(t)
	src := `
local function iter(t, i)
	i = i + 1
	if t[i] ~= nil then
		return i, t[i]
	end
end
local t = {10, 20, 30}
local keys, sum = 0, 0
for i, v in iter, t, 0 do
	keys = keys + i
	sum = sum + v
end
return keys, sum
`
	wantInts(t, e.run(t, src), 6, 60)
}

func TestGotoLoop(t *testing.T) {
	e := newEnv(t)
	src := `
local i = 0
::top::
i = i + 1
if i < 5 then goto top end
return i
`
	wantInts(t, e.run(t, src), 5)
}

// ---------------------------------------------------------------------------
// Functions and closures
// ---------------------------------------------------------------------------

func TestFunctionCalls(t *testing.T) {
	e := newEnv(t)
	src := `
local function add(a, b) return a + b end
return add(2, 3), add(add(1, 1), 10)
`
	wantInts(t, e.run(t, src), 5, 12)
}

func TestRecursion(t *testing.T) {
	e := newEnv(t)
	src := `
local function fib(n)
	if n < 2 then return n end
	return fib(n - 1) + fib(n - 2)
end
return fib(15)
`
	wantInts(t, e.run(t, src), 610)
}

func TestArgumentAdjustment(t *testing.T) {
	e := newEnv(t)
	src := `
local function f(a, b, c) return a, b, c end
local x, y, z = f(1)
if y ~= nil or z ~= nil then return -1 end
return x
`
	wantInts(t, e.run(t, src), 1)

	// Extra arguments to a fixed-arity function are dropped.
	wantInts(t, e.run(t, "local function f(a) return a end return f(7, 8, 9)"), 7)
}

func TestMultipleReturnsSpread(t *testing.T) {
	e := newEnv(t)
	src := `
local function two() return 1, 2 end
return two(), two()
`
	// A call in the middle of a list gives one value; the last spreads.
	wantInts(t, e.run(t, src), 1, 1, 2)
}

func TestVarargs(t *testing.T) {
	e := newEnv(t)
	src := `
local function pass(...) return ... end
return pass(1, 2, 3)
`
	wantInts(t, e.run(t, src), 1, 2, 3)

	src = `
local function count(...)
	local t = {...}
	return #t
end
return count(10, 20, 30, 40)
`
	wantInts(t, e.run(t, src), 4)

	// Chunks are vararg: the host's arguments flow in as ...
	results, err := e.machine.Call(e.compile(t, "return ..."), []runtime.Value{runtime.Int(7), runtime.Int(8)})
	if err != nil {
		t.Fatalf("vararg chunk failed: %v", err)
	}
	wantInts(t, results, 7, 8)
}

func TestClosureCounter(t *testing.T) {
	e := newEnv(t)
	src := `
local function counter()
	local n = 0
	return function()
		n = n + 1
		return n
	end
end
local c = counter()
c()
c()
local d = counter()
return c(), d()
`
	wantInts(t, e.run(t, src), 3, 1)
}

func TestClosuresShareCell(t *testing.T) {
	e := newEnv(t)
	src := `
local n = 0
local function inc() n = n + 1 end
local function get() return n end
inc()
inc()
return get(), n
`
	wantInts(t, e.run(t, src), 2, 2)
}

func TestPerIterationCapture(t *testing.T) {
	e := newEnv(t)
	src := `
local fns = {}
for i = 1, 3 do
	fns[i] = function() return i end
end
return fns[1](), fns[2](), fns[3]()
`
	wantInts(t, e.run(t, src), 1, 2, 3)
}

func TestPerIterationCaptureWhile(t *testing.T) {
	e := newEnv(t)
	src := `
local fns = {}
local i = 1
while i <= 3 do
	local v = i * 10
	fns[i] = function() return v end
	i = i + 1
end
return fns[1](), fns[2](), fns[3]()
`
	wantInts(t, e.run(t, src), 10, 20, 30)
}

func TestCaptureOutlivesFrame(t *testing.T) {
	e := newEnv(t)
	src := `
local function make(v)
	return function() return v end
end
local a = make(1)
local b = make(2)
return a(), b(), a()
`
	wantInts(t, e.run(t, src), 1, 2, 1)
}

func TestMethodCall(t *testing.T) {
	e := newEnv(t)
	src := `
local t = {v = 40}
function t:get(extra)
	return self.v + extra
end
return t:get(2)
`
	wantInts(t, e.run(t, src), 42)
}

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

func TestTableConstructor(t *testing.T) {
	e := newEnv(t)
	src := `
local t = {5, 6, x = 7, [10] = 8}
return t[1], t[2], t.x, t[10], #t
`
	wantInts(t, e.run(t, src), 5, 6, 7, 8, 2)
}

func TestTableConstructorSpreadsLastCall(t *testing.T) {
	e := newEnv(t)
	src := `
local function three() return 1, 2, 3 end
local t = {three(), three()}
return #t
`
	wantInts(t, e.run(t, src), 4)
}

func TestLargeTableConstructor(t *testing.T) {
	e := newEnv(t)
	// More elements than one SetList batch.
	var sb strings.Builder
	sb.WriteString("local t = {")
	for i := 0; i < 120; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("1")
	}
	sb.WriteString("} return #t")
	wantInts(t, e.run(t, sb.String()), 120)
}

func TestTableIndexKinds(t *testing.T) {
	e := newEnv(t)
	src := `
local t = {}
t[2] = "int"
return t[2.0], t[2]
`
	results := e.run(t, src)
	if results[0].AsString() != "int" || results[1].AsString() != "int" {
		t.Errorf("t[2.0]=%s t[2]=%s, want both \"int\"", results[0], results[1])
	}
}

func TestTableNilKeyStoreFails(t *testing.T) {
	e := newEnv(t)
	rerr := e.runErr(t, "local t = {} t[nil] = 1")
	if !strings.Contains(rerr.Error(), "table index is nil") {
		t.Errorf("error = %v", rerr)
	}

	// Reading a nil key is fine.
	results := e.run(t, "local t = {} local k return t[k]")
	if !results[0].IsNil() {
		t.Errorf("t[nil] = %s, want nil", results[0])
	}
}

// ---------------------------------------------------------------------------
// Errors and limits
// ---------------------------------------------------------------------------

func TestRuntimeErrors(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		src     string
		message string
	}{
		{"return nil + 1", "attempt to perform arithmetic on a nil value"},
		{"return {} < {}", "attempt to compare table with table"},
		{"local x x()", "attempt to call a nil value"},
		{"local x return x.field", "attempt to index a nil value"},
		{"return 1 // 0", "attempt to perform 'n//0'"},
		{`return "a" < 1`, "attempt to compare string with number"},
	}
	for _, tt := range tests {
		rerr := e.runErr(t, tt.src)
		if !strings.Contains(rerr.Error(), tt.message) {
			t.Errorf("%q error = %q, want %q", tt.src, rerr.Error(), tt.message)
		}
	}
}

func TestErrorCarriesPosition(t *testing.T) {
	e := newEnv(t)
	rerr := e.runErr(t, "local a = 1\nlocal b = 2\nreturn a + {}")
	if rerr.Source != "test" {
		t.Errorf("Source = %q, want test", rerr.Source)
	}
	if rerr.Line != 3 {
		t.Errorf("Line = %d, want 3", rerr.Line)
	}
}

func TestErrorUnwindsFrames(t *testing.T) {
	e := newEnv(t)
	src := `
local function inner() return nil + 1 end
local function outer() return inner() end
return outer()
`
	e.runErr(t, src)
	if len(e.machine.frames) != 0 {
		t.Errorf("%d frames left after unwind", len(e.machine.frames))
	}
	if len(e.machine.openUpvals) != 0 {
		t.Errorf("%d open upvalues left after unwind", len(e.machine.openUpvals))
	}
}

func TestCallDepthLimit(t *testing.T) {
	heap := runtime.NewHeap(0, 0)
	e := &env{
		heap:    heap,
		machine: New(heap, Options{MaxCallDepth: 20}),
		globals: heap.NewTable().AsTable(),
	}
	heap.AddRoots(e)

	rerr := e.runErr(t, "local function f() return f() end return f()")
	if !strings.Contains(rerr.Error(), "stack overflow") {
		t.Errorf("error = %v", rerr)
	}
}

func TestCallNonCallableFromHost(t *testing.T) {
	e := newEnv(t)
	_, err := e.machine.Call(runtime.Int(1), nil)
	if err == nil || !strings.Contains(err.Error(), "attempt to call a number value") {
		t.Errorf("error = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Host interop
// ---------------------------------------------------------------------------

func TestHostFunctionCall(t *testing.T) {
	e := newEnv(t)
	double := e.heap.NewGoFunc("double", func(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
		return []runtime.Value{runtime.Int(args[0].AsInt() * 2)}, nil
	})
	if err := e.globals.Set(e.heap.String("double"), double); err != nil {
		t.Fatal(err)
	}

	wantInts(t, e.run(t, "return double(21)"), 42)
	wantInts(t, e.run(t, "return double(double(10))"), 40)
}

func TestHostFunctionMultipleResults(t *testing.T) {
	e := newEnv(t)
	pair := e.heap.NewGoFunc("pair", func(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
		return []runtime.Value{runtime.Int(1), runtime.Int(2)}, nil
	})
	if err := e.globals.Set(e.heap.String("pair"), pair); err != nil {
		t.Fatal(err)
	}

	wantInts(t, e.run(t, "return pair()"), 1, 2)
	wantInts(t, e.run(t, "local a = pair() return a"), 1)
	wantInts(t, e.run(t, "local t = {pair()} return #t"), 2)
}

func TestHostCallbackIntoScript(t *testing.T) {
	e := newEnv(t)
	apply := e.heap.NewGoFunc("apply", func(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
		return ctx.Call(args[0], args[1:])
	})
	if err := e.globals.Set(e.heap.String("apply"), apply); err != nil {
		t.Fatal(err)
	}

	src := `
local function add(a, b) return a + b end
return apply(add, 20, 22)
`
	wantInts(t, e.run(t, src), 42)
}

func TestHostCallbackResultsSpreadToTop(t *testing.T) {
	e := newEnv(t)
	relay := e.heap.NewGoFunc("relay", func(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
		return ctx.Call(args[0], args[1:])
	})
	if err := e.globals.Set(e.heap.String("relay"), relay); err != nil {
		t.Fatal(err)
	}

	// The reentrant call grows and shrinks the frame list; the caller's
	// frame must still see the relay results as its top afterward.
	wantInts(t, e.run(t, `
local function three() return 1, 2, 3 end
return relay(three)
`), 1, 2, 3)

	wantInts(t, e.run(t, `
local function three() return 1, 2, 3 end
local t = {relay(three)}
return #t, t[3]
`), 3, 3)
}

func TestHostErrorPropagates(t *testing.T) {
	e := newEnv(t)
	boom := e.heap.NewGoFunc("boom", func(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
		return nil, runtime.NewError(ctx.Heap(), "host failure")
	})
	if err := e.globals.Set(e.heap.String("boom"), boom); err != nil {
		t.Fatal(err)
	}

	rerr := e.runErr(t, "return boom()")
	if !strings.Contains(rerr.Error(), "host failure") {
		t.Errorf("error = %v", rerr)
	}
}

// ---------------------------------------------------------------------------
// GC interaction
// ---------------------------------------------------------------------------

func TestLiveRegistersSurviveCollection(t *testing.T) {
	e := newEnv(t)
	collect := e.heap.NewGoFunc("collect", func(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
		ctx.Heap().Collect()
		return nil, nil
	})
	if err := e.globals.Set(e.heap.String("collect"), collect); err != nil {
		t.Fatal(err)
	}

	src := `
local t = {1, 2, 3}
local s = "keep" .. "me"
collect()
return t[2], s
`
	results := e.run(t, src)
	wantInts(t, results[:1], 2)
	if results[1].AsString() != "keepme" {
		t.Errorf("string = %q after collection", results[1].AsString())
	}
}

func TestClosedUpvaluesSurviveCollection(t *testing.T) {
	e := newEnv(t)
	collect := e.heap.NewGoFunc("collect", func(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
		ctx.Heap().Collect()
		return nil, nil
	})
	if err := e.globals.Set(e.heap.String("collect"), collect); err != nil {
		t.Fatal(err)
	}

	src := `
local function make()
	local t = {42}
	return function() return t[1] end
end
local f = make()
collect()
return f()
`
	wantInts(t, e.run(t, src), 42)
}

func TestGarbageReclaimedBetweenRuns(t *testing.T) {
	e := newEnv(t)
	e.run(t, `
local trash = {}
for i = 1, 100 do
	trash[i] = {i}
end
`)
	before := e.heap.NumObjects()
	e.heap.Collect()
	after := e.heap.NumObjects()
	if after >= before {
		t.Errorf("NumObjects %d -> %d, expected dead tables to be reclaimed", before, after)
	}
}
