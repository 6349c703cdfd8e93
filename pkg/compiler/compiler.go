// Package compiler lowers syntax trees to register-based bytecode.
//
// Compilation is single pass: each function body is walked once, emitting
// instructions as it goes, with forward jumps patched when their targets
// become known. The compiler performs name resolution (local, upvalue or
// global), capture analysis, block-scoped register allocation, constant
// folding of literal operands and dead-branch elimination of literal
// conditions. The produced prototypes are immutable and self-contained.
package compiler

import (
	"fmt"

	"github.com/crescent-lang/crescent/pkg/ast"
	"github.com/crescent-lang/crescent/pkg/bytecode"
)

// Error is a compile-time error with its source position.
type Error struct {
	Span    ast.Span
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Span, e.Message)
}

func errf(span ast.Span, format string, args ...any) error {
	return &Error{Span: span, Message: fmt.Sprintf(format, args...)}
}

// Compile lowers a chunk to a prototype. The chunk behaves like a vararg
// function body: a top-level return ends it, and ... yields the arguments
// the host passed to the instantiated chunk.
func Compile(chunk *ast.Block, source string) (*bytecode.Prototype, error) {
	fs := newFuncState(nil, "main", source, nil, true)
	if err := compileFuncBody(fs, chunk); err != nil {
		return nil, err
	}
	return fs.finish()
}

// compileFuncBody compiles a function (or chunk) body into fs, including
// the implicit trailing return.
func compileFuncBody(fs *funcState, body *ast.Block) error {
	fs.enterBlock(false)
	if err := compileBlock(fs, body); err != nil {
		return err
	}
	fs.leaveBlock()
	if body.Return == nil {
		fs.emit(bytecode.OpReturn, 0, 0, 0)
	}
	return nil
}

// compileBlock compiles the statements of an already entered block.
func compileBlock(fs *funcState, block *ast.Block) error {
	for _, stmt := range block.Stmts {
		if err := compileStatement(fs, stmt); err != nil {
			return err
		}
		// Statement temporaries die here; locals keep their registers.
		fs.freeTo(fs.localTop())
	}
	if block.Return != nil {
		if err := compileReturn(fs, block.Return); err != nil {
			return err
		}
		fs.freeTo(fs.localTop())
	}
	return nil
}

func compileStatement(fs *funcState, stmt ast.Stmt) error {
	fs.line = stmt.Pos().Line
	switch s := stmt.(type) {
	case *ast.LocalStmt:
		return compileLocal(fs, s)
	case *ast.AssignStmt:
		return compileAssign(fs, s)
	case *ast.CallStmt:
		_, err := compileCallAt(fs, s.Call, 0)
		return err
	case *ast.DoStmt:
		fs.enterBlock(false)
		if err := compileBlock(fs, s.Body); err != nil {
			return err
		}
		fs.leaveBlock()
		return nil
	case *ast.WhileStmt:
		return compileWhile(fs, s)
	case *ast.RepeatStmt:
		return compileRepeat(fs, s)
	case *ast.IfStmt:
		return compileIf(fs, s)
	case *ast.NumericForStmt:
		return compileNumericFor(fs, s)
	case *ast.GenericForStmt:
		return compileGenericFor(fs, s)
	case *ast.FuncStmt:
		return compileFuncStmt(fs, s)
	case *ast.LocalFuncStmt:
		return compileLocalFunc(fs, s)
	case *ast.BreakStmt:
		return compileBreak(fs, s)
	case *ast.GotoStmt:
		fs.emitGoto(s.Label, s.Span)
		return nil
	case *ast.LabelStmt:
		return fs.declareLabel(s.Name, s.Span)
	default:
		return errf(stmt.Pos(), "unhandled statement %T", stmt)
	}
}

// ---------------------------------------------------------------------------
// Declarations and assignment
// ---------------------------------------------------------------------------

func compileLocal(fs *funcState, s *ast.LocalStmt) error {
	base, err := fs.reserve(len(s.Names), s.Span)
	if err != nil {
		return err
	}
	if err := compileExprList(fs, s.Exprs, base, len(s.Names), s.Span); err != nil {
		return err
	}
	// Names come into scope only after the initializers ran, so
	// `local x = x` reads the outer x.
	for i, name := range s.Names {
		fs.declareLocal(name, base+i)
	}
	return nil
}

func compileLocalFunc(fs *funcState, s *ast.LocalFuncStmt) error {
	reg, err := fs.reserve(1, s.Span)
	if err != nil {
		return err
	}
	// The name is visible inside the body, so the function can recurse
	// through an upvalue on itself.
	fs.declareLocal(s.Name, reg)
	return compileFuncExprTo(fs, s.Func, s.Name, reg)
}

func compileFuncStmt(fs *funcState, s *ast.FuncStmt) error {
	name := s.Name[len(s.Name)-1]
	tmp, err := fs.reserve(1, s.Span)
	if err != nil {
		return err
	}
	if err := compileFuncExprTo(fs, s.Func, name, tmp); err != nil {
		return err
	}

	if len(s.Name) == 1 {
		return storeName(fs, s.Name[0], tmp, s.Span)
	}

	// function a.b.c(...): resolve the path, then store the last segment.
	obj, err := fs.reserve(1, s.Span)
	if err != nil {
		return err
	}
	if err := loadName(fs, s.Name[0], obj, s.Span); err != nil {
		return err
	}
	key, err := fs.reserve(1, s.Span)
	if err != nil {
		return err
	}
	for _, part := range s.Name[1 : len(s.Name)-1] {
		fs.emit(bytecode.OpLoadConst, int32(key), fs.addConst(bytecode.StringConst(part)), 0)
		fs.emit(bytecode.OpGetIndex, int32(obj), int32(obj), int32(key))
	}
	fs.emit(bytecode.OpLoadConst, int32(key), fs.addConst(bytecode.StringConst(name)), 0)
	fs.emit(bytecode.OpSetIndex, int32(obj), int32(key), int32(tmp))
	return nil
}

func compileAssign(fs *funcState, s *ast.AssignStmt) error {
	// Fast path: one name, one value.
	if len(s.Targets) == 1 && len(s.Exprs) == 1 {
		if name, ok := s.Targets[0].(*ast.NameExpr); ok {
			return compileNameAssign(fs, name, s.Exprs[0])
		}
	}

	// Target prefixes evaluate before the right-hand side, left to right.
	type indexTarget struct {
		obj, key int
	}
	slots := make([]indexTarget, len(s.Targets))
	for i, t := range s.Targets {
		idx, ok := t.(*ast.IndexExpr)
		if !ok {
			continue
		}
		obj, err := fs.reserve(1, idx.Span)
		if err != nil {
			return err
		}
		if err := compileExprTo(fs, idx.Obj, obj); err != nil {
			return err
		}
		key, err := fs.reserve(1, idx.Span)
		if err != nil {
			return err
		}
		if err := compileExprTo(fs, idx.Key, key); err != nil {
			return err
		}
		slots[i] = indexTarget{obj: obj, key: key}
	}

	base, err := fs.reserve(len(s.Targets), s.Span)
	if err != nil {
		return err
	}
	if err := compileExprList(fs, s.Exprs, base, len(s.Targets), s.Span); err != nil {
		return err
	}

	for i, t := range s.Targets {
		val := base + i
		switch target := t.(type) {
		case *ast.NameExpr:
			if err := storeName(fs, target.Name, val, target.Span); err != nil {
				return err
			}
		case *ast.IndexExpr:
			fs.emit(bytecode.OpSetIndex, int32(slots[i].obj), int32(slots[i].key), int32(val))
		}
	}
	return nil
}

func compileNameAssign(fs *funcState, name *ast.NameExpr, value ast.Expr) error {
	if i, ok := fs.findLocal(name.Name); ok {
		return compileExprTo(fs, value, fs.locals[i].reg)
	}
	tmp, err := fs.reserve(1, name.Span)
	if err != nil {
		return err
	}
	if err := compileExprTo(fs, value, tmp); err != nil {
		return err
	}
	return storeName(fs, name.Name, tmp, name.Span)
}

// storeName writes a register to a named variable: local, upvalue or global.
func storeName(fs *funcState, name string, reg int, span ast.Span) error {
	if i, ok := fs.findLocal(name); ok {
		if fs.locals[i].reg != reg {
			fs.emit(bytecode.OpMove, int32(fs.locals[i].reg), int32(reg), 0)
		}
		return nil
	}
	if idx, ok := fs.resolveUpval(name); ok {
		fs.emit(bytecode.OpSetUpval, int32(idx), int32(reg), 0)
		return nil
	}
	fs.emit(bytecode.OpSetGlobal, fs.addConst(bytecode.StringConst(name)), int32(reg), 0)
	return nil
}

// loadName reads a named variable into a register.
func loadName(fs *funcState, name string, reg int, span ast.Span) error {
	if i, ok := fs.findLocal(name); ok {
		if fs.locals[i].reg != reg {
			fs.emit(bytecode.OpMove, int32(reg), int32(fs.locals[i].reg), 0)
		}
		return nil
	}
	if idx, ok := fs.resolveUpval(name); ok {
		fs.emit(bytecode.OpGetUpval, int32(reg), int32(idx), 0)
		return nil
	}
	fs.emit(bytecode.OpGetGlobal, int32(reg), fs.addConst(bytecode.StringConst(name)), 0)
	return nil
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func compileWhile(fs *funcState, s *ast.WhileStmt) error {
	if isLiteralFalse(s.Cond) {
		return nil // dead loop
	}
	start := len(fs.code)

	var exitJump = -1
	if !isLiteralTrue(s.Cond) {
		cond, err := fs.reserve(1, s.Span)
		if err != nil {
			return err
		}
		if err := compileExprTo(fs, s.Cond, cond); err != nil {
			return err
		}
		exitJump = fs.emitJump(bytecode.OpJumpIfFalse, int32(cond))
		fs.freeTo(cond)
	}

	b := fs.enterBlock(true)
	if err := compileBlock(fs, s.Body); err != nil {
		return err
	}
	fs.leaveBlock() // closes captured body locals each iteration
	fs.jumpBack(start)

	if exitJump >= 0 {
		fs.patchJump(exitJump)
	}
	for _, pc := range b.breakJumps {
		fs.patchJump(pc)
	}
	return nil
}

func compileRepeat(fs *funcState, s *ast.RepeatStmt) error {
	start := len(fs.code)
	b := fs.enterBlock(true)
	if err := compileBlock(fs, s.Body); err != nil {
		return err
	}

	// The condition sees the body's locals, so it compiles inside the
	// block scope.
	fs.line = s.Cond.Pos().Line
	cond, err := fs.reserve(1, s.Span)
	if err != nil {
		return err
	}
	if err := compileExprTo(fs, s.Cond, cond); err != nil {
		return err
	}

	// Close this iteration's captured locals before looping so each pass
	// gets fresh cells, then jump back while the condition is false.
	fs.closeBlockUpvals(b)
	pc := fs.emit(bytecode.OpJumpIfFalse, 0, int32(cond), 0)
	fs.patchJumpTo(pc, start)

	fs.leaveBlock()
	for _, bpc := range b.breakJumps {
		fs.patchJump(bpc)
	}
	return nil
}

func compileIf(fs *funcState, s *ast.IfStmt) error {
	var endJumps []int

	for i, cond := range s.Conds {
		if isLiteralFalse(cond) {
			continue // dead branch
		}
		if isLiteralTrue(cond) {
			// This branch always runs; later branches are dead.
			fs.enterBlock(false)
			if err := compileBlock(fs, s.Blocks[i]); err != nil {
				return err
			}
			fs.leaveBlock()
			for _, pc := range endJumps {
				fs.patchJump(pc)
			}
			return nil
		}

		fs.line = cond.Pos().Line
		reg, err := fs.reserve(1, cond.Pos())
		if err != nil {
			return err
		}
		if err := compileExprTo(fs, cond, reg); err != nil {
			return err
		}
		skip := fs.emitJump(bytecode.OpJumpIfFalse, int32(reg))
		fs.freeTo(reg)

		fs.enterBlock(false)
		if err := compileBlock(fs, s.Blocks[i]); err != nil {
			return err
		}
		fs.leaveBlock()

		last := i == len(s.Conds)-1 && s.Else == nil
		if !last {
			endJumps = append(endJumps, fs.emitJump(bytecode.OpJump, 0))
		}
		fs.patchJump(skip)
	}

	if s.Else != nil {
		fs.enterBlock(false)
		if err := compileBlock(fs, s.Else); err != nil {
			return err
		}
		fs.leaveBlock()
	}
	for _, pc := range endJumps {
		fs.patchJump(pc)
	}
	return nil
}

func compileBreak(fs *funcState, s *ast.BreakStmt) error {
	loop := fs.currentLoop()
	if loop == nil {
		return errf(s.Span, "break outside a loop")
	}
	// The break path skips the loop's normal close, so close here. A close
	// with no open cells is a no-op.
	fs.emit(bytecode.OpCloseUpvals, int32(loop.firstReg), 0, 0)
	loop.breakJumps = append(loop.breakJumps, fs.emitJump(bytecode.OpJump, 0))
	return nil
}

func compileReturn(fs *funcState, s *ast.ReturnStmt) error {
	fs.line = s.Span.Line
	base := fs.freeReg
	n, open, err := compileExprListOpen(fs, s.Exprs, base)
	if err != nil {
		return err
	}
	if open {
		fs.emit(bytecode.OpReturn, int32(base), -1, 0)
	} else {
		fs.emit(bytecode.OpReturn, int32(base), int32(n), 0)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Loops with loop variables
// ---------------------------------------------------------------------------

func compileNumericFor(fs *funcState, s *ast.NumericForStmt) error {
	outer := fs.enterBlock(true)

	// Frame layout: base holds the hidden counter, base+1 the stop value,
	// base+2 the step and base+3 the visible loop variable.
	base, err := fs.reserve(4, s.Span)
	if err != nil {
		return err
	}
	if err := compileExprTo(fs, s.Start, base); err != nil {
		return err
	}
	if err := compileExprTo(fs, s.Stop, base+1); err != nil {
		return err
	}
	if s.Step != nil {
		if err := compileExprTo(fs, s.Step, base+2); err != nil {
			return err
		}
	} else {
		fs.emit(bytecode.OpLoadConst, int32(base+2), fs.addConst(bytecode.IntConst(1)), 0)
	}

	prep := fs.emit(bytecode.OpForPrep, int32(base), 0, 0)
	loopStart := len(fs.code)

	inner := fs.enterBlock(false)
	inner.firstReg = base + 3 // the loop variable belongs to the iteration
	fs.declareLocal(s.Name, base+3)
	if err := compileBlock(fs, s.Body); err != nil {
		return err
	}
	fs.leaveBlock() // per-iteration close for a captured loop variable

	loop := fs.emit(bytecode.OpForLoop, int32(base), 0, 0)
	fs.code[loop].B = int32(loopStart - loop - 1)
	fs.code[prep].B = int32(len(fs.code) - prep - 1)

	fs.leaveBlock()
	for _, pc := range outer.breakJumps {
		fs.patchJump(pc)
	}
	return nil
}

func compileGenericFor(fs *funcState, s *ast.GenericForStmt) error {
	outer := fs.enterBlock(true)

	// Frame layout: base holds the iterator, base+1 the state, base+2 the
	// control value, then one register per loop name.
	base, err := fs.reserve(3, s.Span)
	if err != nil {
		return err
	}
	if err := compileExprList(fs, s.Exprs, base, 3, s.Span); err != nil {
		return err
	}

	vars, err := fs.reserve(len(s.Names), s.Span)
	if err != nil {
		return err
	}

	loopStart := len(fs.code)
	inner := fs.enterBlock(false)
	inner.firstReg = vars
	for i, name := range s.Names {
		fs.declareLocal(name, vars+i)
	}

	// Call iterator(state, control); the first result becomes the new
	// control value and ends the loop when nil.
	callSpan := 3
	if len(s.Names) > callSpan {
		callSpan = len(s.Names)
	}
	call, err := fs.reserve(callSpan, s.Span)
	if err != nil {
		return err
	}
	fs.emit(bytecode.OpMove, int32(call), int32(base), 0)
	fs.emit(bytecode.OpMove, int32(call+1), int32(base+1), 0)
	fs.emit(bytecode.OpMove, int32(call+2), int32(base+2), 0)
	fs.emit(bytecode.OpCall, int32(call), 2, int32(len(s.Names)))
	fs.emit(bytecode.OpMove, int32(base+2), int32(call), 0)
	exit := fs.emitJump(bytecode.OpJumpIfNil, int32(call))
	for i := range s.Names {
		fs.emit(bytecode.OpMove, int32(vars+i), int32(call+i), 0)
	}
	fs.freeTo(vars + len(s.Names))

	if err := compileBlock(fs, s.Body); err != nil {
		return err
	}
	fs.leaveBlock() // per-iteration close for captured loop variables
	fs.jumpBack(loopStart)

	fs.patchJump(exit)
	fs.leaveBlock()
	for _, pc := range outer.breakJumps {
		fs.patchJump(pc)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Literal condition analysis
// ---------------------------------------------------------------------------

// isLiteralTrue reports a condition that can never be falsy. Only literals
// count; a constant-valued expression is not chased.
func isLiteralTrue(e ast.Expr) bool {
	switch e.(type) {
	case *ast.TrueExpr, *ast.IntExpr, *ast.FloatExpr, *ast.StringExpr, *ast.FuncExpr, *ast.TableExpr:
		return true
	}
	return false
}

// isLiteralFalse reports a condition that is always falsy.
func isLiteralFalse(e ast.Expr) bool {
	switch e.(type) {
	case *ast.FalseExpr, *ast.NilExpr:
		return true
	}
	return false
}
