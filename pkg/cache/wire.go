package cache

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/crescent-lang/crescent/pkg/bytecode"
)

// cborEncMode uses canonical options for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// The wire structs mirror bytecode types field for field. They exist so the
// cache encoding can evolve (and be versioned) independently of the
// in-memory representation, which carries no stability promise.

type wireInstr struct {
	Op byte  `cbor:"1,keyasint"`
	A  int32 `cbor:"2,keyasint"`
	B  int32 `cbor:"3,keyasint"`
	C  int32 `cbor:"4,keyasint"`
}

type wireConstant struct {
	Kind byte    `cbor:"1,keyasint"`
	I    int64   `cbor:"2,keyasint,omitempty"`
	F    float64 `cbor:"3,keyasint,omitempty"`
	S    string  `cbor:"4,keyasint,omitempty"`
}

type wireUpval struct {
	Source byte   `cbor:"1,keyasint"`
	Index  int    `cbor:"2,keyasint"`
	Name   string `cbor:"3,keyasint,omitempty"`
}

type wireProto struct {
	Name       string         `cbor:"1,keyasint,omitempty"`
	NumParams  int            `cbor:"2,keyasint"`
	IsVararg   bool           `cbor:"3,keyasint"`
	FrameSize  int            `cbor:"4,keyasint"`
	Code       []wireInstr    `cbor:"5,keyasint"`
	Constants  []wireConstant `cbor:"6,keyasint,omitempty"`
	Upvals     []wireUpval    `cbor:"7,keyasint,omitempty"`
	Protos     []wireProto    `cbor:"8,keyasint,omitempty"`
	Lines      []int          `cbor:"9,keyasint,omitempty"`
	SourceName string         `cbor:"10,keyasint,omitempty"`
}

// marshalProto serializes a prototype tree to CBOR bytes.
func marshalProto(p *bytecode.Prototype) ([]byte, error) {
	return cborEncMode.Marshal(toWire(p))
}

// unmarshalProto deserializes a prototype tree from CBOR bytes.
func unmarshalProto(data []byte) (*bytecode.Prototype, error) {
	var w wireProto
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("cache: unmarshal prototype: %w", err)
	}
	return fromWire(&w), nil
}

func toWire(p *bytecode.Prototype) wireProto {
	w := wireProto{
		Name:       p.Name,
		NumParams:  p.NumParams,
		IsVararg:   p.IsVararg,
		FrameSize:  p.FrameSize,
		Lines:      p.Lines,
		SourceName: p.SourceName,
	}
	w.Code = make([]wireInstr, len(p.Code))
	for i, instr := range p.Code {
		w.Code[i] = wireInstr{Op: byte(instr.Op), A: instr.A, B: instr.B, C: instr.C}
	}
	for _, k := range p.Constants {
		w.Constants = append(w.Constants, wireConstant{Kind: byte(k.Kind), I: k.I, F: k.F, S: k.S})
	}
	for _, d := range p.Upvals {
		w.Upvals = append(w.Upvals, wireUpval{Source: byte(d.Source), Index: d.Index, Name: d.Name})
	}
	for _, nested := range p.Protos {
		w.Protos = append(w.Protos, toWire(nested))
	}
	return w
}

func fromWire(w *wireProto) *bytecode.Prototype {
	p := &bytecode.Prototype{
		Name:       w.Name,
		NumParams:  w.NumParams,
		IsVararg:   w.IsVararg,
		FrameSize:  w.FrameSize,
		Lines:      w.Lines,
		SourceName: w.SourceName,
	}
	p.Code = make([]bytecode.Instr, len(w.Code))
	for i, instr := range w.Code {
		p.Code[i] = bytecode.Instr{Op: bytecode.Opcode(instr.Op), A: instr.A, B: instr.B, C: instr.C}
	}
	for _, k := range w.Constants {
		p.Constants = append(p.Constants, bytecode.Constant{
			Kind: bytecode.ConstKind(k.Kind), I: k.I, F: k.F, S: k.S,
		})
	}
	for _, d := range w.Upvals {
		p.Upvals = append(p.Upvals, bytecode.UpvalDesc{
			Source: bytecode.UpvalSource(d.Source), Index: d.Index, Name: d.Name,
		})
	}
	for i := range w.Protos {
		p.Protos = append(p.Protos, fromWire(&w.Protos[i]))
	}
	return p
}
