package interp

import (
	"fmt"
	"strings"

	"github.com/crescent-lang/crescent/pkg/runtime"
)

// installBuiltins registers the base library. It is deliberately small: the
// functions here are the ones scripts need to observe results, signal and
// recover from errors, iterate tables and poke the collector.
func (i *Interp) installBuiltins() {
	i.RegisterFunc("print", i.builtinPrint)
	i.RegisterFunc("type", builtinType)
	i.RegisterFunc("tostring", builtinToString)
	i.RegisterFunc("tonumber", builtinToNumber)
	i.RegisterFunc("error", builtinError)
	i.RegisterFunc("assert", builtinAssert)
	i.RegisterFunc("pcall", builtinPcall)
	i.RegisterFunc("ipairs", builtinIpairs)
	i.RegisterFunc("pairs", builtinPairs)
	i.RegisterFunc("collectgarbage", builtinCollectGarbage)
}

func (i *Interp) builtinPrint(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
	parts := make([]string, len(args))
	for n, v := range args {
		parts[n] = v.String()
	}
	fmt.Fprintln(i.out, strings.Join(parts, "\t"))
	return nil, nil
}

func builtinType(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
	if len(args) == 0 {
		return nil, runtime.NewError(ctx.Heap(), "bad argument #1 to 'type' (value expected)")
	}
	return []runtime.Value{ctx.Heap().String(args[0].TypeName())}, nil
}

func builtinToString(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
	if len(args) == 0 {
		return nil, runtime.NewError(ctx.Heap(), "bad argument #1 to 'tostring' (value expected)")
	}
	return []runtime.Value{ctx.Heap().String(args[0].String())}, nil
}

func builtinToNumber(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
	if len(args) == 0 {
		return []runtime.Value{runtime.Nil}, nil
	}
	if n, ok := runtime.ToNumber(args[0]); ok {
		return []runtime.Value{n}, nil
	}
	return []runtime.Value{runtime.Nil}, nil
}

func builtinError(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
	v := runtime.Nil
	if len(args) > 0 {
		v = args[0]
	}
	return nil, &runtime.Error{Value: v}
}

func builtinAssert(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
	if len(args) == 0 || !args[0].Truthy() {
		if len(args) > 1 {
			return nil, &runtime.Error{Value: args[1]}
		}
		return nil, runtime.NewError(ctx.Heap(), "assertion failed!")
	}
	return args, nil
}

// builtinPcall is the protected-call boundary scripts see. A runtime error
// in the called function is converted to (false, value); success returns
// true followed by the function's results. Host infrastructure errors are
// not catchable and keep propagating.
func builtinPcall(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
	if len(args) == 0 {
		return nil, runtime.NewError(ctx.Heap(), "bad argument #1 to 'pcall' (value expected)")
	}
	results, err := ctx.Call(args[0], args[1:])
	if err != nil {
		if rerr, ok := runtime.AsError(err); ok {
			return []runtime.Value{runtime.False, rerr.Value}, nil
		}
		return nil, err
	}
	return append([]runtime.Value{runtime.True}, results...), nil
}

func builtinIpairs(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
	if len(args) == 0 || args[0].Kind() != runtime.KindTable {
		return nil, runtime.NewError(ctx.Heap(), "bad argument #1 to 'ipairs' (table expected)")
	}
	iter := ctx.Heap().NewGoFunc("ipairs.iterator", func(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
		t := args[0].AsTable()
		n := args[1].AsInt() + 1
		v := t.GetInt(n)
		if v.IsNil() {
			return []runtime.Value{runtime.Nil}, nil
		}
		return []runtime.Value{runtime.Int(n), v}, nil
	})
	return []runtime.Value{iter, args[0], runtime.Int(0)}, nil
}

// builtinPairs iterates over a key snapshot taken when iteration starts, so
// mutating the table mid-loop cannot skip or repeat surviving keys. The
// snapshot rides in the iterator's pinned values to stay visible to the
// collector.
func builtinPairs(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
	if len(args) == 0 || args[0].Kind() != runtime.KindTable {
		return nil, runtime.NewError(ctx.Heap(), "bad argument #1 to 'pairs' (table expected)")
	}
	t := args[0].AsTable()
	keys := t.Keys(ctx.Heap())
	pos := 0

	iter := ctx.Heap().NewGoFunc("pairs.iterator", func(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
		tbl := args[0].AsTable()
		for pos < len(keys) {
			key := keys[pos]
			pos++
			v := tbl.Get(key)
			if !v.IsNil() {
				return []runtime.Value{key, v}, nil
			}
		}
		return []runtime.Value{runtime.Nil}, nil
	})
	iter.AsGoFunc().Pinned = keys
	return []runtime.Value{iter, args[0], runtime.Nil}, nil
}

func builtinCollectGarbage(ctx runtime.CallCtx, args []runtime.Value) ([]runtime.Value, error) {
	opt := "collect"
	if len(args) > 0 && args[0].Kind() == runtime.KindString {
		opt = args[0].AsString()
	}
	h := ctx.Heap()
	switch opt {
	case "collect":
		swept := h.Collect()
		return []runtime.Value{runtime.Int(int64(swept))}, nil
	case "count":
		return []runtime.Value{runtime.Int(int64(h.NumObjects()))}, nil
	case "stop":
		h.SetEnabled(false)
		return []runtime.Value{runtime.Int(0)}, nil
	case "restart":
		h.SetEnabled(true)
		return []runtime.Value{runtime.Int(0)}, nil
	default:
		return nil, runtime.NewError(h, "bad argument #1 to 'collectgarbage' (invalid option '%s')", opt)
	}
}
