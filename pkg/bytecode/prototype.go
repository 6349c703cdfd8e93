package bytecode

import (
	"fmt"
	"math"
)

// FormatVersion identifies the instruction encoding. Cached prototypes
// compiled under a different version are discarded, never migrated.
const FormatVersion = 3

// MaxFrameRegisters is the largest register frame a prototype may request.
const MaxFrameRegisters = 250

// Instr is one decoded instruction. Operand meaning depends on the opcode;
// unused operands are zero. B and C use -1 as the "to top of frame" marker
// in the multi-value call and return protocol.
type Instr struct {
	Op Opcode
	A  int32
	B  int32
	C  int32
}

// String formats the instruction for diagnostics.
func (i Instr) String() string {
	info, ok := opcodeInfo[i.Op]
	if !ok {
		return fmt.Sprintf("%-10s %d %d %d", i.Op, i.A, i.B, i.C)
	}
	switch info.args {
	case 1:
		return fmt.Sprintf("%-10s %d", info.name, i.A)
	case 2:
		return fmt.Sprintf("%-10s %d %d", info.name, i.A, i.B)
	default:
		return fmt.Sprintf("%-10s %d %d %d", info.name, i.A, i.B, i.C)
	}
}

// ConstKind discriminates constant pool entries.
type ConstKind byte

const (
	ConstNil ConstKind = iota
	ConstTrue
	ConstFalse
	ConstInt
	ConstFloat
	ConstString
)

// Constant is one constant pool entry. Only the field selected by Kind is
// meaningful.
type Constant struct {
	Kind ConstKind
	I    int64
	F    float64
	S    string
}

// IntConst builds an integer constant.
func IntConst(v int64) Constant { return Constant{Kind: ConstInt, I: v} }

// FloatConst builds a float constant.
func FloatConst(v float64) Constant { return Constant{Kind: ConstFloat, F: v} }

// StringConst builds a string constant.
func StringConst(v string) Constant { return Constant{Kind: ConstString, S: v} }

// BoolConst builds a boolean constant.
func BoolConst(v bool) Constant {
	if v {
		return Constant{Kind: ConstTrue}
	}
	return Constant{Kind: ConstFalse}
}

// Equal reports whether two constants are identical pool entries. Integer
// and float constants are distinct even when numerically equal, so constant
// pooling cannot collapse 1 and 1.0. Floats compare by bit pattern, which
// keeps 0.0 and -0.0 in separate slots.
func (c Constant) Equal(o Constant) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstInt:
		return c.I == o.I
	case ConstFloat:
		return math.Float64bits(c.F) == math.Float64bits(o.F)
	case ConstString:
		return c.S == o.S
	default:
		return true
	}
}

// String formats the constant for the disassembler.
func (c Constant) String() string {
	switch c.Kind {
	case ConstNil:
		return "nil"
	case ConstTrue:
		return "true"
	case ConstFalse:
		return "false"
	case ConstInt:
		return fmt.Sprintf("%d", c.I)
	case ConstFloat:
		return fmt.Sprintf("%g", c.F)
	case ConstString:
		return fmt.Sprintf("%q", c.S)
	default:
		return fmt.Sprintf("ConstKind(%d)", c.Kind)
	}
}

// UpvalSource says where a closure finds the variable behind one of its
// upvalues at instantiation time.
type UpvalSource byte

const (
	// UpvalFromRegister captures a live register of the enclosing frame.
	UpvalFromRegister UpvalSource = iota
	// UpvalFromUpvalue shares an upvalue of the enclosing closure.
	UpvalFromUpvalue
)

// UpvalDesc describes one upvalue of a prototype.
type UpvalDesc struct {
	Source UpvalSource
	Index  int    // register or enclosing-upvalue index
	Name   string // variable name, for diagnostics
}

func (d UpvalDesc) String() string {
	switch d.Source {
	case UpvalFromRegister:
		return fmt.Sprintf("%s (register %d)", d.Name, d.Index)
	default:
		return fmt.Sprintf("%s (upvalue %d)", d.Name, d.Index)
	}
}

// Prototype is a compiled function. It is immutable after compilation and
// shared by every closure instantiated from it.
type Prototype struct {
	Name       string // chunk or function name, for diagnostics
	NumParams  int
	IsVararg   bool
	FrameSize  int // registers the frame needs, params included
	Code       []Instr
	Constants  []Constant
	Upvals     []UpvalDesc
	Protos     []*Prototype // nested function prototypes
	Lines      []int        // source line per instruction, parallel to Code
	SourceName string       // file or chunk the prototype came from
}

// LineAt returns the source line for an instruction index, or 0 when no
// debug info is present.
func (p *Prototype) LineAt(pc int) int {
	if pc >= 0 && pc < len(p.Lines) {
		return p.Lines[pc]
	}
	return 0
}
