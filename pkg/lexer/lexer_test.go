package lexer

import "testing"

func lexAll(t *testing.T, input string) []Token {
	t.Helper()
	l := New(input)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return toks
		}
	}
}

func TestOperators(t *testing.T) {
	input := "+ - * / // % ^ # & ~ | << >> == ~= < <= > >= = ( ) { } [ ] :: ; : , . .. ..."
	want := []TokenType{
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenDoubleSlash,
		TokenPercent, TokenCaret, TokenHash, TokenAmp, TokenTilde, TokenPipe,
		TokenShl, TokenShr, TokenEq, TokenNe, TokenLt, TokenLe, TokenGt,
		TokenGe, TokenAssign, TokenLParen, TokenRParen, TokenLBrace,
		TokenRBrace, TokenLBracket, TokenRBracket, TokenDoubleColon,
		TokenSemicolon, TokenColon, TokenComma, TokenDot, TokenConcat,
		TokenEllipsis, TokenEOF,
	}

	toks := lexAll(t, input)
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, tt := range want {
		if toks[i].Type != tt {
			t.Errorf("token %d = %s, want %s", i, toks[i].Type, tt)
		}
	}
}

func TestKeywordsAndNames(t *testing.T) {
	toks := lexAll(t, "local function foo whilex while")
	want := []struct {
		t   TokenType
		lit string
	}{
		{TokenLocal, "local"},
		{TokenFunction, "function"},
		{TokenName, "foo"},
		{TokenName, "whilex"}, // keyword prefix does not make a keyword
		{TokenWhile, "while"},
		{TokenEOF, ""},
	}
	for i, w := range want {
		if toks[i].Type != w.t {
			t.Errorf("token %d = %s, want %s", i, toks[i].Type, w.t)
		}
		if w.lit != "" && toks[i].Literal != w.lit {
			t.Errorf("token %d literal = %q, want %q", i, toks[i].Literal, w.lit)
		}
	}
}

func TestIntegerLiterals(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"42", 42},
		{"0xFF", 255},
		{"0X10", 16},
		{"9223372036854775807", 9223372036854775807},
		{"0xFFFFFFFFFFFFFFFF", -1}, // hex literals wrap
	}
	for _, tt := range tests {
		toks := lexAll(t, tt.input)
		if toks[0].Type != TokenInt {
			t.Errorf("%q lexed as %s, want INT", tt.input, toks[0].Type)
			continue
		}
		if toks[0].Int != tt.want {
			t.Errorf("%q = %d, want %d", tt.input, toks[0].Int, tt.want)
		}
	}
}

func TestFloatLiterals(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"3.14", 3.14},
		{"1.", 1},
		{".5", 0.5},
		{"1e3", 1000},
		{"1.5e-2", 0.015},
		{"1E2", 100},
		// A decimal integer too large for int64 becomes a float.
		{"9223372036854775808", 9223372036854775808},
	}
	for _, tt := range tests {
		toks := lexAll(t, tt.input)
		if toks[0].Type != TokenFloat {
			t.Errorf("%q lexed as %s, want FLOAT", tt.input, toks[0].Type)
			continue
		}
		if toks[0].Float != tt.want {
			t.Errorf("%q = %g, want %g", tt.input, toks[0].Float, tt.want)
		}
	}
}

func TestStringLiterals(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`"a\nb"`, "a\nb"},
		{`"a\tb"`, "a\tb"},
		{`"\\"`, `\`},
		{`"\""`, `"`},
		{`"\65\66"`, "AB"},
		{`"\x41"`, "A"},
		{"[[long string]]", "long string"},
		{"[==[has ]] inside]==]", "has ]] inside"},
		{"[[\nfirst newline dropped]]", "first newline dropped"},
	}
	for _, tt := range tests {
		toks := lexAll(t, tt.input)
		if toks[0].Type != TokenString {
			t.Errorf("%q lexed as %s (%s), want STRING", tt.input, toks[0].Type, toks[0].Literal)
			continue
		}
		if toks[0].Literal != tt.want {
			t.Errorf("%q = %q, want %q", tt.input, toks[0].Literal, tt.want)
		}
	}
}

func TestUnterminatedString(t *testing.T) {
	toks := lexAll(t, `"no end`)
	if toks[0].Type != TokenError {
		t.Errorf("unterminated string lexed as %s, want ERROR", toks[0].Type)
	}
}

func TestComments(t *testing.T) {
	input := `
-- line comment
a --[[ block
comment ]] b
--[==[ long
block ]==]
c
`
	toks := lexAll(t, input)
	var names []string
	for _, tok := range toks {
		if tok.Type == TokenName {
			names = append(names, tok.Literal)
		}
	}
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Errorf("names = %v, want [a b c]", names)
	}
}

func TestLineAndColumnTracking(t *testing.T) {
	toks := lexAll(t, "a\n  b")
	if toks[0].Line != 1 {
		t.Errorf("a at line %d, want 1", toks[0].Line)
	}
	if toks[1].Line != 2 || toks[1].Column != 3 {
		t.Errorf("b at %d:%d, want 2:3", toks[1].Line, toks[1].Column)
	}
}
