package vm

import (
	"fmt"
	"math"

	"github.com/crescent-lang/crescent/pkg/bytecode"
	"github.com/crescent-lang/crescent/pkg/runtime"
)

var arithOps = map[bytecode.Opcode]runtime.ArithOp{
	bytecode.OpAdd:    runtime.ArithAdd,
	bytecode.OpSub:    runtime.ArithSub,
	bytecode.OpMul:    runtime.ArithMul,
	bytecode.OpDiv:    runtime.ArithDiv,
	bytecode.OpIDiv:   runtime.ArithIDiv,
	bytecode.OpMod:    runtime.ArithMod,
	bytecode.OpPow:    runtime.ArithPow,
	bytecode.OpBAnd:   runtime.ArithBAnd,
	bytecode.OpBOr:    runtime.ArithBOr,
	bytecode.OpBXor:   runtime.ArithBXor,
	bytecode.OpShl:    runtime.ArithShl,
	bytecode.OpShr:    runtime.ArithShr,
}

// run is the dispatch loop. It executes until the frame that was at depth
// entry returns, handing back that frame's results. A runtime error unwinds
// to entry and returns the error instead.
func (m *VM) run(entry int) ([]runtime.Value, error) {
	for {
		f := &m.frames[len(m.frames)-1]
		in := f.proto.Code[f.pc]
		f.pc++
		base := f.base

		switch in.Op {

		// ================= Loads and moves =================

		case bytecode.OpLoadConst:
			m.stack[base+int(in.A)] = m.constValue(f.proto.Constants[in.B])

		case bytecode.OpLoadNil:
			for i := int(in.A); i <= int(in.A+in.B); i++ {
				m.stack[base+i] = runtime.Nil
			}

		case bytecode.OpLoadBool:
			m.stack[base+int(in.A)] = runtime.Bool(in.B != 0)

		case bytecode.OpMove:
			m.stack[base+int(in.A)] = m.stack[base+int(in.B)]

		// ================= Globals and upvalues =================

		case bytecode.OpGetGlobal:
			key := m.constValue(f.proto.Constants[in.B])
			m.stack[base+int(in.A)] = f.closure.Globals.Get(key)

		case bytecode.OpSetGlobal:
			key := m.constValue(f.proto.Constants[in.A])
			if err := f.closure.Globals.Set(key, m.stack[base+int(in.B)]); err != nil {
				return nil, m.throw(entry, runtime.NewError(m.heap, "%s", err))
			}

		case bytecode.OpGetUpval:
			m.stack[base+int(in.A)] = f.closure.Upvals[in.B].Get()

		case bytecode.OpSetUpval:
			f.closure.Upvals[in.A].Set(m.stack[base+int(in.B)])

		// ================= Tables =================

		case bytecode.OpNewTable:
			m.stack[base+int(in.A)] = m.heap.NewTableSized(int(in.B), int(in.C))

		case bytecode.OpGetIndex:
			obj := m.stack[base+int(in.B)]
			if obj.Kind() != runtime.KindTable {
				return nil, m.throw(entry, runtime.NewError(m.heap,
					"attempt to index a %s value", obj.TypeName()))
			}
			m.stack[base+int(in.A)] = obj.AsTable().Get(m.stack[base+int(in.C)])

		case bytecode.OpSetIndex:
			obj := m.stack[base+int(in.A)]
			if obj.Kind() != runtime.KindTable {
				return nil, m.throw(entry, runtime.NewError(m.heap,
					"attempt to index a %s value", obj.TypeName()))
			}
			if err := obj.AsTable().Set(m.stack[base+int(in.B)], m.stack[base+int(in.C)]); err != nil {
				return nil, m.throw(entry, runtime.NewError(m.heap, "%s", err))
			}

		case bytecode.OpSetList:
			tbl := m.stack[base+int(in.A)].AsTable()
			first := base + int(in.A) + 1
			n := int(in.B)
			if n < 0 {
				n = f.top - first
			}
			for i := 0; i < n; i++ {
				tbl.SetInt(int64(in.C)+int64(i)+1, m.stack[first+i])
			}

		// ================= Arithmetic and bitwise =================

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv,
			bytecode.OpIDiv, bytecode.OpMod, bytecode.OpPow,
			bytecode.OpBAnd, bytecode.OpBOr, bytecode.OpBXor,
			bytecode.OpShl, bytecode.OpShr:
			v, err := runtime.Arith(m.heap, arithOps[in.Op],
				m.stack[base+int(in.B)], m.stack[base+int(in.C)])
			if err != nil {
				return nil, m.throw(entry, err)
			}
			m.stack[base+int(in.A)] = v

		case bytecode.OpConcat:
			v, err := runtime.Concat(m.heap, m.stack[base+int(in.B)], m.stack[base+int(in.C)])
			if err != nil {
				return nil, m.throw(entry, err)
			}
			m.stack[base+int(in.A)] = v

		// ================= Comparison =================

		case bytecode.OpEq:
			m.stack[base+int(in.A)] = runtime.Bool(
				m.stack[base+int(in.B)].Equal(m.stack[base+int(in.C)]))

		case bytecode.OpLt:
			v, err := runtime.LessThan(m.heap, m.stack[base+int(in.B)], m.stack[base+int(in.C)])
			if err != nil {
				return nil, m.throw(entry, err)
			}
			m.stack[base+int(in.A)] = v

		case bytecode.OpLe:
			v, err := runtime.LessEqual(m.heap, m.stack[base+int(in.B)], m.stack[base+int(in.C)])
			if err != nil {
				return nil, m.throw(entry, err)
			}
			m.stack[base+int(in.A)] = v

		// ================= Unary =================

		case bytecode.OpNeg:
			v, err := runtime.Neg(m.heap, m.stack[base+int(in.B)])
			if err != nil {
				return nil, m.throw(entry, err)
			}
			m.stack[base+int(in.A)] = v

		case bytecode.OpNot:
			m.stack[base+int(in.A)] = runtime.Bool(!m.stack[base+int(in.B)].Truthy())

		case bytecode.OpBNot:
			v, err := runtime.BNot(m.heap, m.stack[base+int(in.B)])
			if err != nil {
				return nil, m.throw(entry, err)
			}
			m.stack[base+int(in.A)] = v

		case bytecode.OpLen:
			v, err := runtime.Len(m.heap, m.stack[base+int(in.B)])
			if err != nil {
				return nil, m.throw(entry, err)
			}
			m.stack[base+int(in.A)] = v

		// ================= Control flow =================

		case bytecode.OpJump:
			f.pc += int(in.A)

		case bytecode.OpJumpIfFalse:
			if !m.stack[base+int(in.B)].Truthy() {
				f.pc += int(in.A)
			}

		case bytecode.OpJumpIfTrue:
			if m.stack[base+int(in.B)].Truthy() {
				f.pc += int(in.A)
			}

		case bytecode.OpJumpIfNil:
			if m.stack[base+int(in.B)].IsNil() {
				f.pc += int(in.A)
			}

		case bytecode.OpForPrep:
			if err := m.forPrep(f, int(in.A), int(in.B)); err != nil {
				return nil, m.throw(entry, err)
			}

		case bytecode.OpForLoop:
			m.forLoop(f, int(in.A), int(in.B))

		// ================= Closures =================

		case bytecode.OpClosure:
			proto := f.proto.Protos[in.B]
			v := m.heap.NewClosure(proto, f.closure.Globals)
			cl := v.AsClosure()
			for i, desc := range proto.Upvals {
				switch desc.Source {
				case bytecode.UpvalFromRegister:
					cl.Upvals[i] = m.findOrCreateUpval(base + desc.Index)
				case bytecode.UpvalFromUpvalue:
					cl.Upvals[i] = f.closure.Upvals[desc.Index]
				}
			}
			m.stack[base+int(in.A)] = v

		case bytecode.OpCloseUpvals:
			m.closeUpvals(base + int(in.A))

		// ================= Calls =================

		case bytecode.OpCall:
			if err := m.execCall(f, in); err != nil {
				return nil, m.throw(entry, err)
			}

		case bytecode.OpReturn:
			out, done := m.execReturn(f, in, entry)
			if done {
				return out, nil
			}

		case bytecode.OpVarArg:
			at := base + int(in.A)
			n := int(in.B)
			if n < 0 {
				n = len(f.varargs)
			}
			if err := m.ensureStack(at + n); err != nil {
				return nil, m.throw(entry, err)
			}
			f = &m.frames[len(m.frames)-1] // ensureStack cannot move frames, but stay consistent
			for i := 0; i < n; i++ {
				if i < len(f.varargs) {
					m.stack[at+i] = f.varargs[i]
				} else {
					m.stack[at+i] = runtime.Nil
				}
			}
			f.top = at + n

		default:
			panic(fmt.Sprintf("invalid opcode %s at pc %d", in.Op, f.pc-1))
		}
	}
}

// execCall implements the Call instruction: dispatch to a closure (new
// frame, registers shared in place) or a host function (direct Go call).
func (m *VM) execCall(f *frame, in bytecode.Instr) error {
	fnIdx := f.base + int(in.A)
	fn := m.stack[fnIdx]

	nargs := int(in.B)
	if nargs < 0 {
		nargs = f.top - (fnIdx + 1)
		if nargs < 0 {
			nargs = 0
		}
	}
	want := int(in.C)

	switch fn.Kind() {
	case runtime.KindClosure:
		args := m.stack[fnIdx+1 : fnIdx+1+nargs]
		return m.pushFrame(fn.AsClosure(), fnIdx+1, args, fnIdx, want)

	case runtime.KindGoFunc:
		args := make([]runtime.Value, nargs)
		copy(args, m.stack[fnIdx+1:fnIdx+1+nargs])
		results, err := m.callHost(fn.AsGoFunc(), args)
		if err != nil {
			return err
		}
		// A reentrant host call grows m.frames and can move its backing
		// array, leaving f pointing into the old one.
		f = &m.frames[len(m.frames)-1]
		keep := want
		if keep < 0 {
			keep = len(results)
		}
		if err := m.ensureStack(fnIdx + keep); err != nil {
			return err
		}
		for i := 0; i < keep; i++ {
			if i < len(results) {
				m.stack[fnIdx+i] = results[i]
			} else {
				m.stack[fnIdx+i] = runtime.Nil
			}
		}
		// Stale argument slots above the results are dead; drop them so
		// the collector does not see them as roots.
		for i := fnIdx + keep; i <= fnIdx+nargs && i < len(m.stack); i++ {
			m.stack[i] = runtime.Nil
		}
		f.top = fnIdx + keep
		return nil

	default:
		return runtime.NewError(m.heap, "attempt to call a %s value", fn.TypeName())
	}
}

// execReturn implements the Return instruction. done is true when the
// returning frame is the run entry, with out holding its results.
func (m *VM) execReturn(f *frame, in bytecode.Instr, entry int) ([]runtime.Value, bool) {
	resBase := f.base + int(in.A)
	n := int(in.B)
	if n < 0 {
		n = f.top - resBase
		if n < 0 {
			n = 0
		}
	}

	if len(m.frames) == entry {
		out := make([]runtime.Value, n)
		copy(out, m.stack[resBase:resBase+n])
		m.popFrame(f.base)
		return out, true
	}

	retA, want := f.retA, f.want
	keep := want
	if keep < 0 {
		keep = n
	}
	// Result window moves down into the caller; source is above dest, so a
	// forward copy is safe.
	for i := 0; i < keep; i++ {
		if i < n {
			m.stack[retA+i] = m.stack[resBase+i]
		} else {
			m.stack[retA+i] = runtime.Nil
		}
	}
	m.popFrame(retA + keep)

	caller := &m.frames[len(m.frames)-1]
	caller.top = retA + keep
	return nil, false
}

// ---------------------------------------------------------------------------
// Numeric for
// ---------------------------------------------------------------------------

// forPrep validates and normalizes the loop state at regs A..A+2. An
// integer loop stays integer; one float anywhere promotes all three. When
// the loop runs at least once the visible variable at A+3 gets the start
// value, otherwise control jumps past the loop body.
func (m *VM) forPrep(f *frame, a, offset int) error {
	base := f.base
	start, stop, step := m.stack[base+a], m.stack[base+a+1], m.stack[base+a+2]

	if !isNumber(start) {
		return runtime.NewError(m.heap, "'for' initial value must be a number")
	}
	if !isNumber(stop) {
		return runtime.NewError(m.heap, "'for' limit must be a number")
	}
	if !isNumber(step) {
		return runtime.NewError(m.heap, "'for' step must be a number")
	}

	if start.Kind() == runtime.KindInt && stop.Kind() == runtime.KindInt && step.Kind() == runtime.KindInt {
		if step.AsInt() == 0 {
			return runtime.NewError(m.heap, "'for' step is zero")
		}
		runs := false
		if step.AsInt() > 0 {
			runs = start.AsInt() <= stop.AsInt()
		} else {
			runs = start.AsInt() >= stop.AsInt()
		}
		if !runs {
			f.pc += offset
			return nil
		}
		m.stack[base+a+3] = start
		return nil
	}

	sf, pf, tf := asFloat(start), asFloat(stop), asFloat(step)
	if tf == 0 {
		return runtime.NewError(m.heap, "'for' step is zero")
	}
	m.stack[base+a] = runtime.Float(sf)
	m.stack[base+a+1] = runtime.Float(pf)
	m.stack[base+a+2] = runtime.Float(tf)
	runs := false
	if tf > 0 {
		runs = sf <= pf
	} else {
		runs = sf >= pf
	}
	if !runs {
		f.pc += offset
		return nil
	}
	m.stack[base+a+3] = runtime.Float(sf)
	return nil
}

// forLoop advances the counter and either jumps back to the body start or
// falls through past the loop. Integer loops stop on wraparound instead of
// cycling forever.
func (m *VM) forLoop(f *frame, a, offset int) {
	base := f.base
	counter := m.stack[base+a]

	if counter.Kind() == runtime.KindInt {
		i, stop, step := counter.AsInt(), m.stack[base+a+1].AsInt(), m.stack[base+a+2].AsInt()
		next := i + step
		if step > 0 && (next < i || next > stop) {
			return
		}
		if step < 0 && (next > i || next < stop) {
			return
		}
		m.stack[base+a] = runtime.Int(next)
		m.stack[base+a+3] = runtime.Int(next)
		f.pc += offset
		return
	}

	x, stop, step := counter.AsFloat(), m.stack[base+a+1].AsFloat(), m.stack[base+a+2].AsFloat()
	next := x + step
	if step > 0 && next > stop {
		return
	}
	if step < 0 && next < stop {
		return
	}
	if math.IsNaN(next) {
		return
	}
	m.stack[base+a] = runtime.Float(next)
	m.stack[base+a+3] = runtime.Float(next)
	f.pc += offset
}

func isNumber(v runtime.Value) bool {
	return v.Kind() == runtime.KindInt || v.Kind() == runtime.KindFloat
}

func asFloat(v runtime.Value) float64 {
	if v.Kind() == runtime.KindInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}
