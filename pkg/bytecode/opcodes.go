package bytecode

import "fmt"

// Opcode identifies a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Loads and moves (0x00-0x0F)
	// ========================================================================

	OpLoadConst Opcode = 0x00 // R[A] = K[B]
	OpLoadNil   Opcode = 0x01 // R[A..A+B] = nil
	OpLoadBool  Opcode = 0x02 // R[A] = (B != 0)
	OpMove      Opcode = 0x03 // R[A] = R[B]

	// ========================================================================
	// Globals and upvalues (0x10-0x1F)
	// ========================================================================

	OpGetGlobal Opcode = 0x10 // R[A] = globals[K[B]]
	OpSetGlobal Opcode = 0x11 // globals[K[A]] = R[B]
	OpGetUpval  Opcode = 0x12 // R[A] = upvals[B]
	OpSetUpval  Opcode = 0x13 // upvals[A] = R[B]

	// ========================================================================
	// Tables (0x20-0x2F)
	// ========================================================================

	OpNewTable Opcode = 0x20 // R[A] = {} with array hint B, hash hint C
	OpGetIndex Opcode = 0x21 // R[A] = R[B][R[C]]
	OpSetIndex Opcode = 0x22 // R[A][R[B]] = R[C]
	OpSetList  Opcode = 0x23 // R[A][C+1..] = R[A+1..A+B]; B = -1 means up to top

	// ========================================================================
	// Arithmetic and bitwise (0x30-0x4F)
	// ========================================================================

	OpAdd    Opcode = 0x30 // R[A] = R[B] + R[C]
	OpSub    Opcode = 0x31 // R[A] = R[B] - R[C]
	OpMul    Opcode = 0x32 // R[A] = R[B] * R[C]
	OpDiv    Opcode = 0x33 // R[A] = R[B] / R[C], always float
	OpIDiv   Opcode = 0x34 // R[A] = R[B] // R[C], floor division
	OpMod    Opcode = 0x35 // R[A] = R[B] % R[C], floor modulo
	OpPow    Opcode = 0x36 // R[A] = R[B] ^ R[C], always float
	OpConcat Opcode = 0x37 // R[A] = R[B] .. R[C]
	OpBAnd   Opcode = 0x38 // R[A] = R[B] & R[C]
	OpBOr    Opcode = 0x39 // R[A] = R[B] | R[C]
	OpBXor   Opcode = 0x3A // R[A] = R[B] ~ R[C]
	OpShl    Opcode = 0x3B // R[A] = R[B] << R[C]
	OpShr    Opcode = 0x3C // R[A] = R[B] >> R[C]

	// ========================================================================
	// Comparison (0x50-0x5F)
	// ========================================================================

	OpEq Opcode = 0x50 // R[A] = R[B] == R[C]
	OpLt Opcode = 0x51 // R[A] = R[B] < R[C]
	OpLe Opcode = 0x52 // R[A] = R[B] <= R[C]

	// ========================================================================
	// Unary (0x60-0x6F)
	// ========================================================================

	OpNeg  Opcode = 0x60 // R[A] = -R[B]
	OpNot  Opcode = 0x61 // R[A] = not R[B]
	OpBNot Opcode = 0x62 // R[A] = ~R[B]
	OpLen  Opcode = 0x63 // R[A] = #R[B]

	// ========================================================================
	// Control flow (0x70-0x7F)
	// ========================================================================

	OpJump        Opcode = 0x70 // pc += A
	OpJumpIfFalse Opcode = 0x71 // if R[B] is falsy: pc += A
	OpJumpIfTrue  Opcode = 0x72 // if R[B] is truthy: pc += A
	OpJumpIfNil   Opcode = 0x73 // if R[B] is nil: pc += A
	OpForPrep     Opcode = 0x74 // normalize R[A..A+2] as loop state, pc += B on empty loop
	OpForLoop     Opcode = 0x75 // step R[A..A+2], set R[A+3], pc += B while running

	// ========================================================================
	// Closures and upvalue lifetime (0x80-0x8F)
	// ========================================================================

	OpClosure     Opcode = 0x80 // R[A] = closure of Protos[B], capturing per descriptors
	OpCloseUpvals Opcode = 0x81 // close open upvalues for registers >= A

	// ========================================================================
	// Calls (0x90-0x9F)
	// ========================================================================

	OpCall   Opcode = 0x90 // call R[A] with B args (-1 = to top), C results (-1 = all)
	OpReturn Opcode = 0x91 // return R[A..A+B-1]; B = -1 means up to top
	OpVarArg Opcode = 0x92 // R[A..] = varargs; B = count wanted, -1 = all
)

// opInfo describes one opcode for the disassembler and for sanity checks.
type opInfo struct {
	name string
	args int // operand count: uses A, A+B, or A+B+C
}

var opcodeInfo = map[Opcode]opInfo{
	OpLoadConst:   {"LOADK", 2},
	OpLoadNil:     {"LOADNIL", 2},
	OpLoadBool:    {"LOADBOOL", 2},
	OpMove:        {"MOVE", 2},
	OpGetGlobal:   {"GETGLOBAL", 2},
	OpSetGlobal:   {"SETGLOBAL", 2},
	OpGetUpval:    {"GETUPVAL", 2},
	OpSetUpval:    {"SETUPVAL", 2},
	OpNewTable:    {"NEWTABLE", 3},
	OpGetIndex:    {"GETINDEX", 3},
	OpSetIndex:    {"SETINDEX", 3},
	OpSetList:     {"SETLIST", 3},
	OpAdd:         {"ADD", 3},
	OpSub:         {"SUB", 3},
	OpMul:         {"MUL", 3},
	OpDiv:         {"DIV", 3},
	OpIDiv:        {"IDIV", 3},
	OpMod:         {"MOD", 3},
	OpPow:         {"POW", 3},
	OpConcat:      {"CONCAT", 3},
	OpBAnd:        {"BAND", 3},
	OpBOr:         {"BOR", 3},
	OpBXor:        {"BXOR", 3},
	OpShl:         {"SHL", 3},
	OpShr:         {"SHR", 3},
	OpEq:          {"EQ", 3},
	OpLt:          {"LT", 3},
	OpLe:          {"LE", 3},
	OpNeg:         {"NEG", 2},
	OpNot:         {"NOT", 2},
	OpBNot:        {"BNOT", 2},
	OpLen:         {"LEN", 2},
	OpJump:        {"JMP", 1},
	OpJumpIfFalse: {"JMPFALSE", 2},
	OpJumpIfTrue:  {"JMPTRUE", 2},
	OpJumpIfNil:   {"JMPNIL", 2},
	OpForPrep:     {"FORPREP", 2},
	OpForLoop:     {"FORLOOP", 2},
	OpClosure:     {"CLOSURE", 2},
	OpCloseUpvals: {"CLOSEUPS", 1},
	OpCall:        {"CALL", 3},
	OpReturn:      {"RETURN", 2},
	OpVarArg:      {"VARARG", 2},
}

// String returns the mnemonic for the opcode.
func (op Opcode) String() string {
	if info, ok := opcodeInfo[op]; ok {
		return info.name
	}
	return fmt.Sprintf("Opcode(0x%02X)", byte(op))
}

// Valid reports whether the opcode is part of the instruction set.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfo[op]
	return ok
}
