// Package parser builds a syntax tree from Crescent source.
//
// The parser is a straightforward recursive-descent implementation with a
// precedence climber for expressions. It is the only producer of pkg/ast
// trees in this repository, but the compiler does not depend on that: it
// accepts any well-formed tree.
package parser

import (
	"fmt"

	"github.com/crescent-lang/crescent/pkg/ast"
	"github.com/crescent-lang/crescent/pkg/lexer"
)

// Error is a syntax error with source position.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// Parser consumes tokens from a lexer and produces an ast.Block.
type Parser struct {
	lex  *lexer.Lexer
	tok  lexer.Token // current token
	next lexer.Token // one token of lookahead
}

// Parse parses a complete chunk of Crescent source.
func Parse(source string) (*ast.Block, error) {
	p := &Parser{lex: lexer.New(source)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	block, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if p.tok.Type != lexer.TokenEOF {
		return nil, p.errorf("unexpected %s", p.tok)
	}
	return block, nil
}

func (p *Parser) advance() error {
	p.tok = p.next
	p.next = p.lex.NextToken()
	if p.next.Type == lexer.TokenError {
		return &Error{Line: p.next.Line, Column: p.next.Column, Message: p.next.Literal}
	}
	return nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return &Error{Line: p.tok.Line, Column: p.tok.Column, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) span() ast.Span {
	return ast.Span{Line: p.tok.Line, Column: p.tok.Column}
}

// expect consumes a token of the given type or fails.
func (p *Parser) expect(t lexer.TokenType) (lexer.Token, error) {
	if p.tok.Type != t {
		return lexer.Token{}, p.errorf("expected %s, found %s", t, p.tok)
	}
	tok := p.tok
	if err := p.advance(); err != nil {
		return lexer.Token{}, err
	}
	return tok, nil
}

// accept consumes a token of the given type if present.
func (p *Parser) accept(t lexer.TokenType) (bool, error) {
	if p.tok.Type != t {
		return false, nil
	}
	return true, p.advance()
}

// ---------------------------------------------------------------------------
// Blocks and statements
// ---------------------------------------------------------------------------

// blockFollow reports whether the current token terminates a block.
func (p *Parser) blockFollow() bool {
	switch p.tok.Type {
	case lexer.TokenEOF, lexer.TokenEnd, lexer.TokenElse, lexer.TokenElseif, lexer.TokenUntil:
		return true
	}
	return false
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	block := &ast.Block{Span: p.span()}
	for !p.blockFollow() {
		if p.tok.Type == lexer.TokenReturn {
			ret, err := p.parseReturn()
			if err != nil {
				return nil, err
			}
			block.Return = ret
			break // return must be the last statement of a block
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}
	}
	return block, nil
}

func (p *Parser) parseStatement() (ast.Stmt, error) {
	switch p.tok.Type {
	case lexer.TokenSemicolon:
		return nil, p.advance()
	case lexer.TokenLocal:
		return p.parseLocal()
	case lexer.TokenIf:
		return p.parseIf()
	case lexer.TokenWhile:
		return p.parseWhile()
	case lexer.TokenRepeat:
		return p.parseRepeat()
	case lexer.TokenFor:
		return p.parseFor()
	case lexer.TokenDo:
		span := p.span()
		if err := p.advance(); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenEnd); err != nil {
			return nil, err
		}
		return &ast.DoStmt{Span: span, Body: body}, nil
	case lexer.TokenFunction:
		return p.parseFunctionStmt()
	case lexer.TokenBreak:
		span := p.span()
		return &ast.BreakStmt{Span: span}, p.advance()
	case lexer.TokenGoto:
		span := p.span()
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.expect(lexer.TokenName)
		if err != nil {
			return nil, err
		}
		return &ast.GotoStmt{Span: span, Label: name.Literal}, nil
	case lexer.TokenDoubleColon:
		span := p.span()
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.expect(lexer.TokenName)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenDoubleColon); err != nil {
			return nil, err
		}
		return &ast.LabelStmt{Span: span, Name: name.Literal}, nil
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseReturn() (*ast.ReturnStmt, error) {
	ret := &ast.ReturnStmt{Span: p.span()}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if !p.blockFollow() && p.tok.Type != lexer.TokenSemicolon {
		exprs, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		ret.Exprs = exprs
	}
	if _, err := p.accept(lexer.TokenSemicolon); err != nil {
		return nil, err
	}
	return ret, nil
}

func (p *Parser) parseLocal() (ast.Stmt, error) {
	span := p.span()
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.tok.Type == lexer.TokenFunction {
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.expect(lexer.TokenName)
		if err != nil {
			return nil, err
		}
		fn, err := p.parseFuncBody(span, false)
		if err != nil {
			return nil, err
		}
		return &ast.LocalFuncStmt{Span: span, Name: name.Literal, Func: fn}, nil
	}

	names, err := p.parseNameList()
	if err != nil {
		return nil, err
	}
	stmt := &ast.LocalStmt{Span: span, Names: names}
	ok, err := p.accept(lexer.TokenAssign)
	if err != nil {
		return nil, err
	}
	if ok {
		stmt.Exprs, err = p.parseExprList()
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	stmt := &ast.IfStmt{Span: p.span()}
	for {
		if err := p.advance(); err != nil { // consume if/elseif
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenThen); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Conds = append(stmt.Conds, cond)
		stmt.Blocks = append(stmt.Blocks, body)
		if p.tok.Type != lexer.TokenElseif {
			break
		}
	}
	if p.tok.Type == lexer.TokenElse {
		if err := p.advance(); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Else = body
	}
	if _, err := p.expect(lexer.TokenEnd); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (ast.Stmt, error) {
	span := p.span()
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenDo); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenEnd); err != nil {
		return nil, err
	}
	return &ast.WhileStmt{Span: span, Cond: cond, Body: body}, nil
}

func (p *Parser) parseRepeat() (ast.Stmt, error) {
	span := p.span()
	if err := p.advance(); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenUntil); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.RepeatStmt{Span: span, Body: body, Cond: cond}, nil
}

func (p *Parser) parseFor() (ast.Stmt, error) {
	span := p.span()
	if err := p.advance(); err != nil {
		return nil, err
	}
	first, err := p.expect(lexer.TokenName)
	if err != nil {
		return nil, err
	}

	if p.tok.Type == lexer.TokenAssign {
		// Numeric for: for v = start, stop [, step] do ... end
		if err := p.advance(); err != nil {
			return nil, err
		}
		start, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenComma); err != nil {
			return nil, err
		}
		stop, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		var step ast.Expr
		ok, err := p.accept(lexer.TokenComma)
		if err != nil {
			return nil, err
		}
		if ok {
			step, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		body, err := p.parseLoopBody()
		if err != nil {
			return nil, err
		}
		return &ast.NumericForStmt{
			Span: span, Name: first.Literal,
			Start: start, Stop: stop, Step: step, Body: body,
		}, nil
	}

	// Generic for: for n1, n2 in exprs do ... end
	names := []string{first.Literal}
	for {
		ok, err := p.accept(lexer.TokenComma)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		name, err := p.expect(lexer.TokenName)
		if err != nil {
			return nil, err
		}
		names = append(names, name.Literal)
	}
	if _, err := p.expect(lexer.TokenIn); err != nil {
		return nil, err
	}
	exprs, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseLoopBody()
	if err != nil {
		return nil, err
	}
	return &ast.GenericForStmt{Span: span, Names: names, Exprs: exprs, Body: body}, nil
}

func (p *Parser) parseLoopBody() (*ast.Block, error) {
	if _, err := p.expect(lexer.TokenDo); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenEnd); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *Parser) parseFunctionStmt() (ast.Stmt, error) {
	span := p.span()
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.TokenName)
	if err != nil {
		return nil, err
	}
	path := []string{name.Literal}
	isMethod := false
	for {
		if ok, err := p.accept(lexer.TokenDot); err != nil {
			return nil, err
		} else if ok {
			part, err := p.expect(lexer.TokenName)
			if err != nil {
				return nil, err
			}
			path = append(path, part.Literal)
			continue
		}
		if ok, err := p.accept(lexer.TokenColon); err != nil {
			return nil, err
		} else if ok {
			part, err := p.expect(lexer.TokenName)
			if err != nil {
				return nil, err
			}
			path = append(path, part.Literal)
			isMethod = true
		}
		break
	}
	fn, err := p.parseFuncBody(span, isMethod)
	if err != nil {
		return nil, err
	}
	return &ast.FuncStmt{Span: span, Name: path, IsMethod: isMethod, Func: fn}, nil
}

// parseFuncBody parses a parameter list and body, positioned at '('.
func (p *Parser) parseFuncBody(span ast.Span, isMethod bool) (*ast.FuncExpr, error) {
	if _, err := p.expect(lexer.TokenLParen); err != nil {
		return nil, err
	}
	fn := &ast.FuncExpr{Span: span}
	if isMethod {
		fn.Params = append(fn.Params, "self")
	}
	for p.tok.Type != lexer.TokenRParen {
		if p.tok.Type == lexer.TokenEllipsis {
			fn.IsVararg = true
			if err := p.advance(); err != nil {
				return nil, err
			}
			break // ... must be last
		}
		name, err := p.expect(lexer.TokenName)
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, name.Literal)
		ok, err := p.accept(lexer.TokenComma)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenEnd); err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

// parseExprStatement parses assignments and call statements, which both
// begin with a prefix expression.
func (p *Parser) parseExprStatement() (ast.Stmt, error) {
	span := p.span()
	expr, err := p.parsePrefixExpr()
	if err != nil {
		return nil, err
	}

	if p.tok.Type == lexer.TokenAssign || p.tok.Type == lexer.TokenComma {
		targets := []ast.Expr{expr}
		for {
			ok, err := p.accept(lexer.TokenComma)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			target, err := p.parsePrefixExpr()
			if err != nil {
				return nil, err
			}
			targets = append(targets, target)
		}
		for _, t := range targets {
			switch t.(type) {
			case *ast.NameExpr, *ast.IndexExpr:
			default:
				return nil, p.errorf("cannot assign to this expression")
			}
		}
		if _, err := p.expect(lexer.TokenAssign); err != nil {
			return nil, err
		}
		exprs, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		return &ast.AssignStmt{Span: span, Targets: targets, Exprs: exprs}, nil
	}

	switch expr.(type) {
	case *ast.CallExpr, *ast.MethodCallExpr:
		return &ast.CallStmt{Span: span, Call: expr}, nil
	}
	return nil, p.errorf("syntax error: expression cannot be used as a statement")
}

func (p *Parser) parseNameList() ([]string, error) {
	name, err := p.expect(lexer.TokenName)
	if err != nil {
		return nil, err
	}
	names := []string{name.Literal}
	for {
		ok, err := p.accept(lexer.TokenComma)
		if err != nil {
			return nil, err
		}
		if !ok {
			return names, nil
		}
		name, err := p.expect(lexer.TokenName)
		if err != nil {
			return nil, err
		}
		names = append(names, name.Literal)
	}
}

func (p *Parser) parseExprList() ([]ast.Expr, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	exprs := []ast.Expr{expr}
	for {
		ok, err := p.accept(lexer.TokenComma)
		if err != nil {
			return nil, err
		}
		if !ok {
			return exprs, nil
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Binary operator precedence, higher binds tighter. Left and
// right values differ for the right-associative operators (.. and ^).
type opPrec struct {
	left  int
	right int
}

var binaryPrec = map[lexer.TokenType]opPrec{
	lexer.TokenOr:          {1, 1},
	lexer.TokenAnd:         {2, 2},
	lexer.TokenLt:          {3, 3},
	lexer.TokenGt:          {3, 3},
	lexer.TokenLe:          {3, 3},
	lexer.TokenGe:          {3, 3},
	lexer.TokenNe:          {3, 3},
	lexer.TokenEq:          {3, 3},
	lexer.TokenPipe:        {4, 4},
	lexer.TokenTilde:       {5, 5},
	lexer.TokenAmp:         {6, 6},
	lexer.TokenShl:         {7, 7},
	lexer.TokenShr:         {7, 7},
	lexer.TokenConcat:      {9, 8},
	lexer.TokenPlus:        {10, 10},
	lexer.TokenMinus:       {10, 10},
	lexer.TokenStar:        {11, 11},
	lexer.TokenSlash:       {11, 11},
	lexer.TokenDoubleSlash: {11, 11},
	lexer.TokenPercent:     {11, 11},
	lexer.TokenCaret:       {14, 13},
}

const unaryPrec = 12

var binOps = map[lexer.TokenType]ast.BinOp{
	lexer.TokenOr: ast.OpOr, lexer.TokenAnd: ast.OpAnd,
	lexer.TokenLt: ast.OpLt, lexer.TokenGt: ast.OpGt,
	lexer.TokenLe: ast.OpLe, lexer.TokenGe: ast.OpGe,
	lexer.TokenNe: ast.OpNe, lexer.TokenEq: ast.OpEq,
	lexer.TokenPipe: ast.OpBOr, lexer.TokenTilde: ast.OpBXor,
	lexer.TokenAmp: ast.OpBAnd, lexer.TokenShl: ast.OpShl,
	lexer.TokenShr: ast.OpShr, lexer.TokenConcat: ast.OpConcat,
	lexer.TokenPlus: ast.OpAdd, lexer.TokenMinus: ast.OpSub,
	lexer.TokenStar: ast.OpMul, lexer.TokenSlash: ast.OpDiv,
	lexer.TokenDoubleSlash: ast.OpIDiv, lexer.TokenPercent: ast.OpMod,
	lexer.TokenCaret: ast.OpPow,
}

var unaryOps = map[lexer.TokenType]ast.UnOp{
	lexer.TokenNot:   ast.OpNot,
	lexer.TokenMinus: ast.OpNeg,
	lexer.TokenHash:  ast.OpLen,
	lexer.TokenTilde: ast.OpBNot,
}

func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseBinExpr(0)
}

// parseBinExpr implements precedence climbing.
func (p *Parser) parseBinExpr(limit int) (ast.Expr, error) {
	var left ast.Expr
	var err error

	span := p.span()
	if op, ok := unaryOps[p.tok.Type]; ok {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseBinExpr(unaryPrec)
		if err != nil {
			return nil, err
		}
		left = &ast.UnExpr{Span: span, Op: op, Operand: operand}
	} else {
		left, err = p.parseSimpleExpr()
		if err != nil {
			return nil, err
		}
	}

	for {
		prec, ok := binaryPrec[p.tok.Type]
		if !ok || prec.left <= limit {
			return left, nil
		}
		op := binOps[p.tok.Type]
		opSpan := p.span()
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseBinExpr(prec.right)
		if err != nil {
			return nil, err
		}
		left = &ast.BinExpr{Span: opSpan, Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseSimpleExpr() (ast.Expr, error) {
	span := p.span()
	switch p.tok.Type {
	case lexer.TokenNil:
		return &ast.NilExpr{Span: span}, p.advance()
	case lexer.TokenTrue:
		return &ast.TrueExpr{Span: span}, p.advance()
	case lexer.TokenFalse:
		return &ast.FalseExpr{Span: span}, p.advance()
	case lexer.TokenInt:
		v := p.tok.Int
		return &ast.IntExpr{Span: span, Value: v}, p.advance()
	case lexer.TokenFloat:
		v := p.tok.Float
		return &ast.FloatExpr{Span: span, Value: v}, p.advance()
	case lexer.TokenString:
		v := p.tok.Literal
		return &ast.StringExpr{Span: span, Value: v}, p.advance()
	case lexer.TokenEllipsis:
		return &ast.VarArgExpr{Span: span}, p.advance()
	case lexer.TokenFunction:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseFuncBody(span, false)
	case lexer.TokenLBrace:
		return p.parseTableConstructor()
	default:
		return p.parsePrefixExpr()
	}
}

// parsePrefixExpr parses names, parenthesized expressions, and the chains of
// indexing and calls that can follow them.
func (p *Parser) parsePrefixExpr() (ast.Expr, error) {
	span := p.span()
	var expr ast.Expr

	switch p.tok.Type {
	case lexer.TokenName:
		expr = &ast.NameExpr{Span: span, Name: p.tok.Literal}
		if err := p.advance(); err != nil {
			return nil, err
		}
	case lexer.TokenLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRParen); err != nil {
			return nil, err
		}
		// Parentheses truncate multi-value expressions to a single value.
		if ast.IsMultiValue(inner) {
			inner = &ast.ParenExpr{Span: span, Expr: inner}
		}
		expr = inner
	default:
		return nil, p.errorf("unexpected %s", p.tok)
	}

	for {
		span := p.span()
		switch p.tok.Type {
		case lexer.TokenDot:
			if err := p.advance(); err != nil {
				return nil, err
			}
			name, err := p.expect(lexer.TokenName)
			if err != nil {
				return nil, err
			}
			expr = &ast.IndexExpr{
				Span: span, Obj: expr,
				Key: &ast.StringExpr{Span: span, Value: name.Literal},
			}
		case lexer.TokenLBracket:
			if err := p.advance(); err != nil {
				return nil, err
			}
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenRBracket); err != nil {
				return nil, err
			}
			expr = &ast.IndexExpr{Span: span, Obj: expr, Key: key}
		case lexer.TokenColon:
			if err := p.advance(); err != nil {
				return nil, err
			}
			name, err := p.expect(lexer.TokenName)
			if err != nil {
				return nil, err
			}
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			expr = &ast.MethodCallExpr{Span: span, Obj: expr, Name: name.Literal, Args: args}
		case lexer.TokenLParen, lexer.TokenString, lexer.TokenLBrace:
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			expr = &ast.CallExpr{Span: span, Fn: expr, Args: args}
		default:
			return expr, nil
		}
	}
}

// parseCallArgs parses call arguments: a parenthesized list, a single string
// literal, or a single table constructor.
func (p *Parser) parseCallArgs() ([]ast.Expr, error) {
	switch p.tok.Type {
	case lexer.TokenString:
		arg := &ast.StringExpr{Span: p.span(), Value: p.tok.Literal}
		return []ast.Expr{arg}, p.advance()
	case lexer.TokenLBrace:
		arg, err := p.parseTableConstructor()
		if err != nil {
			return nil, err
		}
		return []ast.Expr{arg}, nil
	}

	if _, err := p.expect(lexer.TokenLParen); err != nil {
		return nil, err
	}
	var args []ast.Expr
	if p.tok.Type != lexer.TokenRParen {
		var err error
		args, err = p.parseExprList()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseTableConstructor() (ast.Expr, error) {
	table := &ast.TableExpr{Span: p.span()}
	if _, err := p.expect(lexer.TokenLBrace); err != nil {
		return nil, err
	}
	for p.tok.Type != lexer.TokenRBrace {
		var field ast.TableField
		switch {
		case p.tok.Type == lexer.TokenLBracket:
			if err := p.advance(); err != nil {
				return nil, err
			}
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenRBracket); err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenAssign); err != nil {
				return nil, err
			}
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			field = ast.TableField{Key: key, Value: value}
		case p.tok.Type == lexer.TokenName && p.next.Type == lexer.TokenAssign:
			key := &ast.StringExpr{Span: p.span(), Value: p.tok.Literal}
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.advance(); err != nil { // consume =
				return nil, err
			}
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			field = ast.TableField{Key: key, Value: value}
		default:
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			field = ast.TableField{Value: value}
		}
		table.Fields = append(table.Fields, field)

		sep := false
		for _, t := range []lexer.TokenType{lexer.TokenComma, lexer.TokenSemicolon} {
			ok, err := p.accept(t)
			if err != nil {
				return nil, err
			}
			sep = sep || ok
		}
		if !sep && p.tok.Type != lexer.TokenRBrace {
			return nil, p.errorf("expected , or } in table constructor, found %s", p.tok)
		}
	}
	return table, p.advance()
}
