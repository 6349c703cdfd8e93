// Package ast defines the syntax tree consumed by the Crescent compiler.
//
// The tree is produced by pkg/parser, but the compiler treats it as an
// opaque, already-validated input: any well-formed tree, however it was
// built, can be compiled. Every node carries a source span for diagnostics.
package ast

import "fmt"

// Span identifies a region of source text. Lines and columns are 1-based.
type Span struct {
	Line   int
	Column int
}

// String renders the span as "line:column".
func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

// Node is implemented by every syntax tree node.
type Node interface {
	Pos() Span
}

// Stmt is implemented by statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Block is a sequence of statements with an optional trailing return.
type Block struct {
	Span   Span
	Stmts  []Stmt
	Return *ReturnStmt // nil when the block has no return statement
}

func (b *Block) Pos() Span { return b.Span }

// ============================================================================
// Statements
// ============================================================================

// LocalStmt declares local variables: `local a, b = e1, e2`.
type LocalStmt struct {
	Span  Span
	Names []string
	Exprs []Expr
}

// AssignStmt assigns to one or more targets: `a, t[k] = e1, e2`.
// Targets are NameExpr or IndexExpr nodes.
type AssignStmt struct {
	Span    Span
	Targets []Expr
	Exprs   []Expr
}

// CallStmt is a function or method call in statement position.
type CallStmt struct {
	Span Span
	Call Expr // *CallExpr or *MethodCallExpr
}

// DoStmt is an explicit block: `do ... end`.
type DoStmt struct {
	Span Span
	Body *Block
}

// WhileStmt is `while cond do body end`.
type WhileStmt struct {
	Span Span
	Cond Expr
	Body *Block
}

// RepeatStmt is `repeat body until cond`. The condition is evaluated in the
// scope of the body, so body locals are visible to it.
type RepeatStmt struct {
	Span Span
	Body *Block
	Cond Expr
}

// IfStmt is an if/elseif/else chain. Conds and Blocks are parallel; Else may
// be nil.
type IfStmt struct {
	Span   Span
	Conds  []Expr
	Blocks []*Block
	Else   *Block
}

// NumericForStmt is `for v = start, stop [, step] do body end`.
type NumericForStmt struct {
	Span  Span
	Name  string
	Start Expr
	Stop  Expr
	Step  Expr // nil means 1
	Body  *Block
}

// GenericForStmt is `for n1, n2, ... in e1, e2, e3 do body end`.
type GenericForStmt struct {
	Span  Span
	Names []string
	Exprs []Expr
	Body  *Block
}

// FuncStmt declares a function: `function a.b.c(...)` or `function a:m(...)`.
// Name holds the dotted path; IsMethod adds an implicit `self` parameter.
type FuncStmt struct {
	Span     Span
	Name     []string
	IsMethod bool
	Func     *FuncExpr
}

// LocalFuncStmt is `local function f(...)`. The name is in scope inside the
// body, so the function can recurse.
type LocalFuncStmt struct {
	Span Span
	Name string
	Func *FuncExpr
}

// ReturnStmt is `return e1, e2, ...`.
type ReturnStmt struct {
	Span  Span
	Exprs []Expr
}

// BreakStmt exits the nearest enclosing loop.
type BreakStmt struct {
	Span Span
}

// GotoStmt jumps to a visible label.
type GotoStmt struct {
	Span  Span
	Label string
}

// LabelStmt declares a label: `::name::`.
type LabelStmt struct {
	Span Span
	Name string
}

func (s *LocalStmt) Pos() Span      { return s.Span }
func (s *AssignStmt) Pos() Span     { return s.Span }
func (s *CallStmt) Pos() Span       { return s.Span }
func (s *DoStmt) Pos() Span         { return s.Span }
func (s *WhileStmt) Pos() Span      { return s.Span }
func (s *RepeatStmt) Pos() Span     { return s.Span }
func (s *IfStmt) Pos() Span         { return s.Span }
func (s *NumericForStmt) Pos() Span { return s.Span }
func (s *GenericForStmt) Pos() Span { return s.Span }
func (s *FuncStmt) Pos() Span       { return s.Span }
func (s *LocalFuncStmt) Pos() Span  { return s.Span }
func (s *ReturnStmt) Pos() Span     { return s.Span }
func (s *BreakStmt) Pos() Span      { return s.Span }
func (s *GotoStmt) Pos() Span       { return s.Span }
func (s *LabelStmt) Pos() Span      { return s.Span }

func (*LocalStmt) stmtNode()      {}
func (*AssignStmt) stmtNode()     {}
func (*CallStmt) stmtNode()       {}
func (*DoStmt) stmtNode()         {}
func (*WhileStmt) stmtNode()      {}
func (*RepeatStmt) stmtNode()     {}
func (*IfStmt) stmtNode()         {}
func (*NumericForStmt) stmtNode() {}
func (*GenericForStmt) stmtNode() {}
func (*FuncStmt) stmtNode()       {}
func (*LocalFuncStmt) stmtNode()  {}
func (*ReturnStmt) stmtNode()     {}
func (*BreakStmt) stmtNode()      {}
func (*GotoStmt) stmtNode()       {}
func (*LabelStmt) stmtNode()      {}

// ============================================================================
// Expressions
// ============================================================================

// NilExpr is the literal `nil`.
type NilExpr struct {
	Span Span
}

// TrueExpr is the literal `true`.
type TrueExpr struct {
	Span Span
}

// FalseExpr is the literal `false`.
type FalseExpr struct {
	Span Span
}

// IntExpr is an integer literal.
type IntExpr struct {
	Span  Span
	Value int64
}

// FloatExpr is a float literal.
type FloatExpr struct {
	Span  Span
	Value float64
}

// StringExpr is a string literal.
type StringExpr struct {
	Span  Span
	Value string
}

// VarArgExpr is `...`.
type VarArgExpr struct {
	Span Span
}

// NameExpr is an identifier reference. The compiler resolves it to a local
// register, an upvalue, or a global at compile time.
type NameExpr struct {
	Span Span
	Name string
}

// IndexExpr is `obj[key]`; dotted access `obj.name` parses to an IndexExpr
// with a string key.
type IndexExpr struct {
	Span Span
	Obj  Expr
	Key  Expr
}

// CallExpr is `f(args...)`.
type CallExpr struct {
	Span Span
	Fn   Expr
	Args []Expr
}

// MethodCallExpr is `obj:name(args...)`; the receiver is evaluated once and
// passed as the first argument.
type MethodCallExpr struct {
	Span Span
	Obj  Expr
	Name string
	Args []Expr
}

// FuncExpr is a function literal.
type FuncExpr struct {
	Span     Span
	Params   []string
	IsVararg bool
	Body     *Block
}

// BinOp names a binary operator.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv    // always float
	OpIDiv   // floor division
	OpMod    // floor modulo
	OpPow    // always float
	OpConcat // ..
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd // short-circuit
	OpOr  // short-circuit
	OpBAnd
	OpBOr
	OpBXor
	OpShl
	OpShr
)

var binOpNames = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpIDiv: "//",
	OpMod: "%", OpPow: "^", OpConcat: "..", OpEq: "==", OpNe: "~=",
	OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=", OpAnd: "and",
	OpOr: "or", OpBAnd: "&", OpBOr: "|", OpBXor: "~", OpShl: "<<",
	OpShr: ">>",
}

// String returns the operator's surface syntax.
func (op BinOp) String() string {
	if int(op) < len(binOpNames) {
		return binOpNames[op]
	}
	return fmt.Sprintf("BinOp(%d)", int(op))
}

// UnOp names a unary operator.
type UnOp int

const (
	OpNeg UnOp = iota // -
	OpNot             // not
	OpLen             // #
	OpBNot            // ~
)

var unOpNames = [...]string{OpNeg: "-", OpNot: "not", OpLen: "#", OpBNot: "~"}

// String returns the operator's surface syntax.
func (op UnOp) String() string {
	if int(op) < len(unOpNames) {
		return unOpNames[op]
	}
	return fmt.Sprintf("UnOp(%d)", int(op))
}

// BinExpr is a binary operation.
type BinExpr struct {
	Span  Span
	Op    BinOp
	Left  Expr
	Right Expr
}

// UnExpr is a unary operation.
type UnExpr struct {
	Span    Span
	Op      UnOp
	Operand Expr
}

// ParenExpr marks a parenthesized multi-value expression. Parentheses
// truncate a call or vararg to exactly one value, so the parser keeps them
// in the tree; parentheses around single-value expressions carry no meaning
// and are dropped.
type ParenExpr struct {
	Span Span
	Expr Expr
}

// TableField is one entry in a table constructor. A nil Key means the value
// takes the next array slot.
type TableField struct {
	Key   Expr
	Value Expr
}

// TableExpr is a table constructor `{ ... }`.
type TableExpr struct {
	Span   Span
	Fields []TableField
}

func (e *NilExpr) Pos() Span        { return e.Span }
func (e *TrueExpr) Pos() Span       { return e.Span }
func (e *FalseExpr) Pos() Span      { return e.Span }
func (e *IntExpr) Pos() Span        { return e.Span }
func (e *FloatExpr) Pos() Span      { return e.Span }
func (e *StringExpr) Pos() Span     { return e.Span }
func (e *VarArgExpr) Pos() Span     { return e.Span }
func (e *NameExpr) Pos() Span       { return e.Span }
func (e *IndexExpr) Pos() Span      { return e.Span }
func (e *CallExpr) Pos() Span       { return e.Span }
func (e *MethodCallExpr) Pos() Span { return e.Span }
func (e *FuncExpr) Pos() Span       { return e.Span }
func (e *BinExpr) Pos() Span        { return e.Span }
func (e *UnExpr) Pos() Span         { return e.Span }
func (e *ParenExpr) Pos() Span      { return e.Span }
func (e *TableExpr) Pos() Span      { return e.Span }

func (*NilExpr) exprNode()        {}
func (*TrueExpr) exprNode()       {}
func (*FalseExpr) exprNode()      {}
func (*IntExpr) exprNode()        {}
func (*FloatExpr) exprNode()      {}
func (*StringExpr) exprNode()     {}
func (*VarArgExpr) exprNode()     {}
func (*NameExpr) exprNode()       {}
func (*IndexExpr) exprNode()      {}
func (*CallExpr) exprNode()       {}
func (*MethodCallExpr) exprNode() {}
func (*FuncExpr) exprNode()       {}
func (*BinExpr) exprNode()        {}
func (*UnExpr) exprNode()         {}
func (*ParenExpr) exprNode()      {}
func (*TableExpr) exprNode()      {}

// IsMultiValue reports whether an expression can produce more than one value
// when it appears last in an expression list.
func IsMultiValue(e Expr) bool {
	switch e.(type) {
	case *CallExpr, *MethodCallExpr, *VarArgExpr:
		return true
	}
	return false
}
