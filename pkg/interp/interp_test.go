package interp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/crescent-lang/crescent/pkg/runtime"
)

func run(t *testing.T, i *Interp, src string, args ...runtime.Value) []runtime.Value {
	t.Helper()
	results, err := i.Run("test", src, args...)
	if err != nil {
		t.Fatalf("run failed: %v\nsource: %s", err, src)
	}
	return results
}

func TestRunReturnsValues(t *testing.T) {
	i := New(nil)
	results := run(t, i, "return 1 + 1, 'two'")
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].AsInt() != 2 || results[1].AsString() != "two" {
		t.Errorf("results = %v", results)
	}
}

func TestRunReportsSyntaxErrors(t *testing.T) {
	i := New(nil)
	_, err := i.Run("bad.cres", "local = 1")
	if err == nil {
		t.Fatal("expected a syntax error")
	}
	if !strings.Contains(err.Error(), "bad.cres") {
		t.Errorf("error %q should name the chunk", err)
	}
}

func TestInstancesAreIsolated(t *testing.T) {
	a := New(nil)
	b := New(nil)
	run(t, a, "shared = 1")
	results := run(t, b, "return shared")
	if !results[0].IsNil() {
		t.Error("global leaked between instances")
	}
	if a.ID == b.ID {
		t.Error("instances share an ID")
	}
}

func TestInstantiateTwice(t *testing.T) {
	i := New(nil)
	proto, err := i.CompileSource("test", "n = (n or 0) + 1 return n")
	if err != nil {
		t.Fatal(err)
	}
	for want := int64(1); want <= 3; want++ {
		results, err := i.Call(i.Instantiate(proto))
		if err != nil {
			t.Fatal(err)
		}
		if results[0].AsInt() != want {
			t.Errorf("run %d = %s", want, results[0])
		}
	}
}

func TestGlobalAccessors(t *testing.T) {
	i := New(nil)
	i.SetGlobal("answer", runtime.Int(42))
	results := run(t, i, "return answer")
	if results[0].AsInt() != 42 {
		t.Errorf("answer = %s", results[0])
	}

	run(t, i, "fromscript = 'hello'")
	if got := i.Global("fromscript"); got.AsString() != "hello" {
		t.Errorf("fromscript = %s", got)
	}
}

func TestRegisterFunc(t *testing.T) {
	i := New(nil)
	var captured []runtime.Value
	i.RegisterFunc("sink", func(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
		captured = append(captured[:0], args...)
		return []runtime.Value{runtime.Int(int64(len(args)))}, nil
	})

	results := run(t, i, "return sink(1, 'a', true)")
	if results[0].AsInt() != 3 {
		t.Errorf("sink returned %s", results[0])
	}
	if len(captured) != 3 || captured[1].AsString() != "a" {
		t.Errorf("captured = %v", captured)
	}
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

func TestPrint(t *testing.T) {
	i := New(nil)
	var out bytes.Buffer
	i.SetOutput(&out)

	run(t, i, `print(1, "two", nil, true, 2.5)`)
	want := "1\ttwo\tnil\ttrue\t2.5\n"
	if out.String() != want {
		t.Errorf("print wrote %q, want %q", out.String(), want)
	}
}

func TestTypeBuiltin(t *testing.T) {
	i := New(nil)
	src := `
return type(nil), type(true), type(1), type(1.5), type("s"), type({}), type(print)
`
	results := run(t, i, src)
	want := []string{"nil", "boolean", "number", "number", "string", "table", "function"}
	for n, w := range want {
		if results[n].AsString() != w {
			t.Errorf("type #%d = %s, want %s", n, results[n], w)
		}
	}
}

func TestToStringToNumber(t *testing.T) {
	i := New(nil)
	results := run(t, i, "return tostring(12), tostring(nil), tonumber(5), tonumber('x')")
	if results[0].AsString() != "12" || results[1].AsString() != "nil" {
		t.Errorf("tostring results = %v", results[:2])
	}
	if results[2].AsInt() != 5 || !results[3].IsNil() {
		t.Errorf("tonumber results = %v", results[2:])
	}
}

func TestErrorAndPcall(t *testing.T) {
	i := New(nil)
	src := `
local ok, err = pcall(function() error("boom") end)
return ok, err
`
	results := run(t, i, src)
	if results[0].AsBool() {
		t.Error("pcall of a failing function returned true")
	}
	if results[1].AsString() != "boom" {
		t.Errorf("caught value = %s, want boom", results[1])
	}
}

func TestPcallSuccess(t *testing.T) {
	i := New(nil)
	results := run(t, i, "return pcall(function() return 1, 2 end)")
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].AsBool() || results[1].AsInt() != 1 || results[2].AsInt() != 2 {
		t.Errorf("results = %v", results)
	}
}

func TestPcallCatchesRuntimeErrors(t *testing.T) {
	i := New(nil)
	src := `
local ok, err = pcall(function() return nil + 1 end)
return ok, err
`
	results := run(t, i, src)
	if results[0].AsBool() {
		t.Error("pcall returned true for a runtime error")
	}
	if !strings.Contains(results[1].AsString(), "arithmetic") {
		t.Errorf("caught message = %s", results[1])
	}
}

func TestErrorCarriesNonStringValues(t *testing.T) {
	i := New(nil)
	src := `
local ok, err = pcall(function() error({code = 7}) end)
return ok, err.code
`
	results := run(t, i, src)
	if results[0].AsBool() || results[1].AsInt() != 7 {
		t.Errorf("results = %v", results)
	}
}

func TestUncaughtErrorReachesHost(t *testing.T) {
	i := New(nil)
	_, err := i.Run("test", `error("unhandled")`)
	if err == nil {
		t.Fatal("expected an error")
	}
	rerr, ok := runtime.AsError(err)
	if !ok {
		t.Fatalf("error is %T, want *runtime.Error", err)
	}
	if rerr.Value.AsString() != "unhandled" {
		t.Errorf("value = %s", rerr.Value)
	}
}

func TestAssert(t *testing.T) {
	i := New(nil)
	results := run(t, i, "return assert(42)")
	if results[0].AsInt() != 42 {
		t.Errorf("assert passed through %s", results[0])
	}

	results = run(t, i, "return pcall(function() assert(false) end)")
	if results[0].AsBool() {
		t.Error("assert(false) did not raise")
	}

	results = run(t, i, `
local ok, msg = pcall(function() assert(nil, "custom") end)
return msg
`)
	if results[0].AsString() != "custom" {
		t.Errorf("assert message = %s", results[0])
	}
}

func TestIpairs(t *testing.T) {
	i := New(nil)
	src := `
local t = {10, 20, 30, nil, 50}
local sum = 0
for _, v in ipairs(t) do
	sum = sum + v
end
return sum
`
	// ipairs stops at the first nil.
	results := run(t, i, src)
	if results[0].AsInt() != 60 {
		t.Errorf("sum = %s, want 60", results[0])
	}
}

func TestPairs(t *testing.T) {
	i := New(nil)
	src := `
local t = {a = 1, b = 2, c = 3}
t[1] = 10
local count, sum = 0, 0
for k, v in pairs(t) do
	count = count + 1
	sum = sum + v
end
return count, sum
`
	results := run(t, i, src)
	if results[0].AsInt() != 4 || results[1].AsInt() != 16 {
		t.Errorf("count, sum = %s, %s, want 4, 16", results[0], results[1])
	}
}

func TestPairsSkipsRemovedKeys(t *testing.T) {
	i := New(nil)
	src := `
local t = {a = 1, b = 1, c = 1, d = 1}
local visited = 0
for k in pairs(t) do
	visited = visited + 1
	t.a = nil
	t.b = nil
	t.c = nil
	t.d = nil
end
return visited
`
	results := run(t, i, src)
	if results[0].AsInt() != 1 {
		t.Errorf("visited = %s, want 1", results[0])
	}
}

func TestCollectGarbageBuiltin(t *testing.T) {
	i := New(nil)
	src := `
collectgarbage("stop")
for n = 1, 50 do
	local _ = {n}
end
local before = collectgarbage("count")
local swept = collectgarbage("collect")
local after = collectgarbage("count")
collectgarbage("restart")
return before, swept, after
`
	results := run(t, i, src)
	before, swept, after := results[0].AsInt(), results[1].AsInt(), results[2].AsInt()
	if swept < 50 {
		t.Errorf("swept = %d, want at least the 50 dead tables", swept)
	}
	if after >= before {
		t.Errorf("count %d -> %d, expected it to drop", before, after)
	}
}

// ---------------------------------------------------------------------------
// Host value conversion
// ---------------------------------------------------------------------------

func TestToValueRoundTrip(t *testing.T) {
	i := New(nil)
	v, err := i.ToValue(map[string]any{
		"name":  "crescent",
		"count": 3,
		"items": []any{1, 2.5, "x"},
	})
	if err != nil {
		t.Fatal(err)
	}
	i.SetGlobal("data", v)

	results := run(t, i, "return data.name, data.count, data.items[2], #data.items")
	if results[0].AsString() != "crescent" {
		t.Errorf("name = %s", results[0])
	}
	if results[1].AsInt() != 3 {
		t.Errorf("count = %s", results[1])
	}
	if results[2].AsFloat() != 2.5 {
		t.Errorf("items[2] = %s", results[2])
	}
	if results[3].AsInt() != 3 {
		t.Errorf("#items = %s", results[3])
	}
}

func TestFromValueArrays(t *testing.T) {
	i := New(nil)
	results := run(t, i, "return {1, 2, 3}")
	got, err := i.FromValue(results[0])
	if err != nil {
		t.Fatal(err)
	}
	arr, ok := got.([]any)
	if !ok {
		t.Fatalf("dense table converted to %T, want []any", got)
	}
	if len(arr) != 3 || arr[0] != int64(1) {
		t.Errorf("arr = %v", arr)
	}
}

func TestFromValueMaps(t *testing.T) {
	i := New(nil)
	results := run(t, i, "return {x = 1, [2] = 'two'}")
	got, err := i.FromValue(results[0])
	if err != nil {
		t.Fatal(err)
	}
	m, ok := got.(map[any]any)
	if !ok {
		t.Fatalf("mixed table converted to %T, want map[any]any", got)
	}
	if m["x"] != int64(1) || m[int64(2)] != "two" {
		t.Errorf("m = %v", m)
	}
}

func TestToValueRejectsUnknownTypes(t *testing.T) {
	i := New(nil)
	if _, err := i.ToValue(struct{}{}); err == nil {
		t.Error("expected an error for an unconvertible type")
	}
}
