package compiler

import (
	"github.com/crescent-lang/crescent/pkg/ast"
	"github.com/crescent-lang/crescent/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Function state: registers, scopes, captures
// ---------------------------------------------------------------------------

// localVar is one named local binding. Its register is reserved for the
// whole binding lifetime: temporaries always allocate above the live
// locals, so a captured local's register cannot be reused while an open
// upvalue may still alias it.
type localVar struct {
	name     string
	reg      int
	captured bool
}

// blockScope tracks one lexical block. Closing the block retires its locals
// and releases their registers; if any of them was captured, the compiler
// emits a close instruction so the VM detaches the open cells first.
type blockScope struct {
	firstLocal  int // index into fs.locals at block entry
	firstReg    int // register watermark at block entry
	hasCaptured bool
	isLoop      bool
	breakJumps  []int // jump instructions to patch to the loop end
}

// pendingGoto is an unresolved goto, matched against labels when its target
// block closes.
type pendingGoto struct {
	label string
	pc    int // the Jump instruction to patch
	span  ast.Span
}

// labelDef is a declared ::label::.
type labelDef struct {
	name string
	pc   int
}

// funcState carries the per-function compilation state. Nested function
// literals get their own funcState linked through parent, which is what
// capture resolution walks.
type funcState struct {
	parent *funcState

	name      string
	source    string
	numParams int
	isVararg  bool

	code   []bytecode.Instr
	lines  []int
	consts []bytecode.Constant
	protos []*bytecode.Prototype
	upvals []bytecode.UpvalDesc

	locals []localVar
	blocks []*blockScope

	freeReg int // next register to allocate
	maxReg  int // high-water mark, becomes FrameSize

	labels []labelDef
	gotos  []pendingGoto

	line int // current source line for debug info
}

func newFuncState(parent *funcState, name, source string, params []string, isVararg bool) *funcState {
	fs := &funcState{
		parent:    parent,
		name:      name,
		source:    source,
		numParams: len(params),
		isVararg:  isVararg,
	}
	// Parameters are ordinary locals occupying the first registers.
	for _, p := range params {
		fs.locals = append(fs.locals, localVar{name: p, reg: fs.freeReg})
		fs.freeReg++
	}
	fs.maxReg = fs.freeReg
	return fs
}

// finish seals the function into an immutable prototype.
func (fs *funcState) finish() (*bytecode.Prototype, error) {
	if len(fs.gotos) > 0 {
		g := fs.gotos[0]
		return nil, &Error{Span: g.span, Message: "no visible label '" + g.label + "' for goto"}
	}
	return &bytecode.Prototype{
		Name:       fs.name,
		SourceName: fs.source,
		NumParams:  fs.numParams,
		IsVararg:   fs.isVararg,
		FrameSize:  fs.maxReg,
		Code:       fs.code,
		Constants:  fs.consts,
		Upvals:     fs.upvals,
		Protos:     fs.protos,
		Lines:      fs.lines,
	}, nil
}

// ---------------------------------------------------------------------------
// Registers
// ---------------------------------------------------------------------------

// reserve allocates n consecutive registers and returns the first.
func (fs *funcState) reserve(n int, span ast.Span) (int, error) {
	reg := fs.freeReg
	fs.freeReg += n
	if fs.freeReg > bytecode.MaxFrameRegisters {
		return 0, &Error{Span: span, Message: "function needs too many registers"}
	}
	if fs.freeReg > fs.maxReg {
		fs.maxReg = fs.freeReg
	}
	return reg, nil
}

// freeTo releases every register at or above the watermark. Locals are never
// released this way; statement compilation frees only its temporaries.
func (fs *funcState) freeTo(reg int) {
	fs.freeReg = reg
}

// setTop places the allocation watermark explicitly, keeping the frame-size
// high-water mark in step. Call compilation uses it to claim the result
// window of a finished call.
func (fs *funcState) setTop(reg int) {
	fs.freeReg = reg
	if reg > fs.maxReg {
		fs.maxReg = reg
	}
}

// localTop returns the register just above the live locals, the floor for
// temporary allocation.
func (fs *funcState) localTop() int {
	if len(fs.locals) == 0 {
		return 0
	}
	last := fs.locals[len(fs.locals)-1]
	return last.reg + 1
}

// ---------------------------------------------------------------------------
// Locals and blocks
// ---------------------------------------------------------------------------

// declareLocal binds a name to a register already holding its value.
// Shadowing is just declaration order: resolution searches newest-first.
func (fs *funcState) declareLocal(name string, reg int) {
	fs.locals = append(fs.locals, localVar{name: name, reg: reg})
}

// findLocal resolves a name against the live locals, newest binding first.
func (fs *funcState) findLocal(name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i, true
		}
	}
	return 0, false
}

func (fs *funcState) enterBlock(isLoop bool) *blockScope {
	b := &blockScope{
		firstLocal: len(fs.locals),
		firstReg:   fs.freeReg,
		isLoop:     isLoop,
	}
	fs.blocks = append(fs.blocks, b)
	return b
}

// leaveBlock retires the block's locals and releases their registers,
// closing any upvalues that still alias them.
func (fs *funcState) leaveBlock() {
	b := fs.blocks[len(fs.blocks)-1]
	fs.blocks = fs.blocks[:len(fs.blocks)-1]
	if b.hasCaptured {
		fs.emit(bytecode.OpCloseUpvals, int32(b.firstReg), 0, 0)
	}
	fs.locals = fs.locals[:b.firstLocal]
	fs.freeReg = b.firstReg
}

// closeBlockUpvals emits a close for the block's register range without
// leaving the block. Loop compilation uses it at the end of an iteration so
// closures created in the body capture that iteration's variables, not the
// next one's.
func (fs *funcState) closeBlockUpvals(b *blockScope) {
	if b.hasCaptured {
		fs.emit(bytecode.OpCloseUpvals, int32(b.firstReg), 0, 0)
	}
}

// currentLoop finds the innermost enclosing loop block for break.
func (fs *funcState) currentLoop() *blockScope {
	for i := len(fs.blocks) - 1; i >= 0; i-- {
		if fs.blocks[i].isLoop {
			return fs.blocks[i]
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Capture resolution
// ---------------------------------------------------------------------------

// resolveUpval resolves a free name to an upvalue index, creating the
// descriptor chain on demand. A local of the immediately enclosing function
// is captured from its register; anything further out is reached by
// capturing the enclosing function's upvalue, so the chain stays one hop
// deep at every level.
func (fs *funcState) resolveUpval(name string) (int, bool) {
	if fs.parent == nil {
		return 0, false
	}
	if i, ok := fs.parent.findLocal(name); ok {
		fs.parent.locals[i].captured = true
		fs.parent.markCaptured(fs.parent.locals[i].reg)
		return fs.addUpval(bytecode.UpvalDesc{
			Source: bytecode.UpvalFromRegister,
			Index:  fs.parent.locals[i].reg,
			Name:   name,
		}), true
	}
	if idx, ok := fs.parent.resolveUpval(name); ok {
		return fs.addUpval(bytecode.UpvalDesc{
			Source: bytecode.UpvalFromUpvalue,
			Index:  idx,
			Name:   name,
		}), true
	}
	return 0, false
}

// markCaptured records that a register in some live block is captured, so
// the owning block emits a close when it ends.
func (fs *funcState) markCaptured(reg int) {
	for i := len(fs.blocks) - 1; i >= 0; i-- {
		if fs.blocks[i].firstReg <= reg {
			fs.blocks[i].hasCaptured = true
			return
		}
	}
	// Captured register belongs to the function's outermost scope (a
	// parameter); the frame pop closes it.
}

// addUpval appends a descriptor, reusing an existing identical one so a
// name captured twice shares a cell.
func (fs *funcState) addUpval(d bytecode.UpvalDesc) int {
	for i, existing := range fs.upvals {
		if existing == d {
			return i
		}
	}
	fs.upvals = append(fs.upvals, d)
	return len(fs.upvals) - 1
}

// ---------------------------------------------------------------------------
// Constants and emission
// ---------------------------------------------------------------------------

// addConst interns a constant into the pool.
func (fs *funcState) addConst(k bytecode.Constant) int32 {
	for i, existing := range fs.consts {
		if existing.Equal(k) {
			return int32(i)
		}
	}
	fs.consts = append(fs.consts, k)
	return int32(len(fs.consts) - 1)
}

// emit appends an instruction and returns its pc.
func (fs *funcState) emit(op bytecode.Opcode, a, b, c int32) int {
	fs.code = append(fs.code, bytecode.Instr{Op: op, A: a, B: b, C: c})
	fs.lines = append(fs.lines, fs.line)
	return len(fs.code) - 1
}

// emitJump emits a jump with a placeholder offset to patch later.
func (fs *funcState) emitJump(op bytecode.Opcode, reg int32) int {
	if op == bytecode.OpJump {
		return fs.emit(op, 0, 0, 0)
	}
	return fs.emit(op, 0, reg, 0)
}

// patchJump points a previously emitted jump at the current pc.
func (fs *funcState) patchJump(pc int) {
	fs.code[pc].A = int32(len(fs.code) - pc - 1)
}

// patchJumpTo points a previously emitted jump at an explicit target pc.
func (fs *funcState) patchJumpTo(pc, target int) {
	fs.code[pc].A = int32(target - pc - 1)
}

// jumpBack emits an unconditional jump to an earlier pc.
func (fs *funcState) jumpBack(target int) {
	fs.emit(bytecode.OpJump, int32(target-len(fs.code)-1), 0, 0)
}

// ---------------------------------------------------------------------------
// Labels and goto
// ---------------------------------------------------------------------------

// declareLabel records a label at the current pc and resolves any pending
// gotos that name it.
func (fs *funcState) declareLabel(name string, span ast.Span) error {
	for _, l := range fs.labels {
		if l.name == name {
			return &Error{Span: span, Message: "label '" + name + "' already defined"}
		}
	}
	fs.labels = append(fs.labels, labelDef{name: name, pc: len(fs.code)})

	remaining := fs.gotos[:0]
	for _, g := range fs.gotos {
		if g.label == name {
			fs.patchJump(g.pc)
		} else {
			remaining = append(remaining, g)
		}
	}
	fs.gotos = remaining
	return nil
}

// emitGoto resolves against already seen labels or defers to a later one.
func (fs *funcState) emitGoto(name string, span ast.Span) {
	for _, l := range fs.labels {
		if l.name == name {
			fs.jumpBack(l.pc)
			return
		}
	}
	pc := fs.emitJump(bytecode.OpJump, 0)
	fs.gotos = append(fs.gotos, pendingGoto{label: name, pc: pc, span: span})
}
