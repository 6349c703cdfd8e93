package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the prototype and all of
// its nested prototypes.
func (p *Prototype) Disassemble() string {
	var sb strings.Builder
	disasmProto(&sb, p, "")
	return sb.String()
}

func disasmProto(sb *strings.Builder, p *Prototype, path string) {
	name := p.Name
	if name == "" {
		name = "?"
	}
	if path != "" {
		name = path + "/" + name
	}

	fmt.Fprintf(sb, "; === %s ===\n", name)
	fmt.Fprintf(sb, "; format v%d", FormatVersion)
	if p.SourceName != "" {
		fmt.Fprintf(sb, ", source %s", p.SourceName)
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "; params=%d vararg=%t frame=%d\n", p.NumParams, p.IsVararg, p.FrameSize)

	if len(p.Constants) > 0 {
		sb.WriteString("; constants:\n")
		for i, k := range p.Constants {
			display := k.String()
			if len(display) > 48 {
				display = display[:45] + "..."
			}
			fmt.Fprintf(sb, ";   [%3d] %s\n", i, display)
		}
	}
	if len(p.Upvals) > 0 {
		sb.WriteString("; upvalues:\n")
		for i, d := range p.Upvals {
			fmt.Fprintf(sb, ";   [%3d] %s\n", i, d)
		}
	}

	for pc, instr := range p.Code {
		fmt.Fprintf(sb, "%4d  %s", pc, instr)
		if note := instrNote(p, instr); note != "" {
			fmt.Fprintf(sb, "  ; %s", note)
		}
		if line := p.LineAt(pc); line > 0 {
			fmt.Fprintf(sb, "  (line %d)", line)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	for _, nested := range p.Protos {
		disasmProto(sb, nested, name)
	}
}

// instrNote renders the constant or jump target an instruction refers to.
func instrNote(p *Prototype, i Instr) string {
	k := func(idx int32) string {
		if int(idx) < len(p.Constants) {
			return p.Constants[idx].String()
		}
		return "?"
	}
	switch i.Op {
	case OpLoadConst:
		return k(i.B)
	case OpGetGlobal:
		return k(i.B)
	case OpSetGlobal:
		return k(i.A)
	case OpJump:
		return fmt.Sprintf("-> %+d", i.A)
	case OpJumpIfFalse, OpJumpIfTrue, OpJumpIfNil:
		return fmt.Sprintf("-> %+d", i.A)
	case OpForPrep, OpForLoop:
		return fmt.Sprintf("-> %+d", i.B)
	case OpClosure:
		if int(i.B) < len(p.Protos) {
			nested := p.Protos[i.B]
			if nested.Name != "" {
				return nested.Name
			}
		}
	}
	return ""
}
