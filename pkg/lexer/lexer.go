// Package lexer tokenizes Crescent source code.
package lexer

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for Crescent syntax
// ---------------------------------------------------------------------------

// Lexer tokenizes Crescent source code. Input is treated as a byte sequence;
// string literals may contain arbitrary bytes.
type Lexer struct {
	input string
	pos   int  // current position in input
	ch    byte // current character (0 at EOF)
	line  int  // current line (1-based)
	col   int  // current column (1-based)
}

// New creates a lexer for the given input.
func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, col: 0}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.pos >= len(l.input) {
		l.ch = 0
		return
	}
	l.ch = l.input[l.pos]
	l.pos++
	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) errorToken(line, col int, format string, args ...any) Token {
	return Token{
		Type:    TokenError,
		Literal: fmt.Sprintf(format, args...),
		Line:    line,
		Column:  col,
	}
}

// NextToken returns the next token in the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	line, col := l.line, l.col
	tok := func(t TokenType) Token {
		return Token{Type: t, Line: line, Column: col}
	}

	switch {
	case l.ch == 0:
		return tok(TokenEOF)

	case isNameStart(l.ch):
		name := l.readName()
		if kw, ok := keywords[name]; ok {
			return Token{Type: kw, Literal: name, Line: line, Column: col}
		}
		return Token{Type: TokenName, Literal: name, Line: line, Column: col}

	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		return l.readNumber(line, col)

	case l.ch == '"' || l.ch == '\'':
		return l.readString(line, col)
	}

	ch := l.ch
	l.readChar()
	switch ch {
	case '+':
		return tok(TokenPlus)
	case '-':
		return tok(TokenMinus)
	case '*':
		return tok(TokenStar)
	case '/':
		if l.ch == '/' {
			l.readChar()
			return tok(TokenDoubleSlash)
		}
		return tok(TokenSlash)
	case '%':
		return tok(TokenPercent)
	case '^':
		return tok(TokenCaret)
	case '#':
		return tok(TokenHash)
	case '&':
		return tok(TokenAmp)
	case '~':
		if l.ch == '=' {
			l.readChar()
			return tok(TokenNe)
		}
		return tok(TokenTilde)
	case '|':
		return tok(TokenPipe)
	case '<':
		switch l.ch {
		case '<':
			l.readChar()
			return tok(TokenShl)
		case '=':
			l.readChar()
			return tok(TokenLe)
		}
		return tok(TokenLt)
	case '>':
		switch l.ch {
		case '>':
			l.readChar()
			return tok(TokenShr)
		case '=':
			l.readChar()
			return tok(TokenGe)
		}
		return tok(TokenGt)
	case '=':
		if l.ch == '=' {
			l.readChar()
			return tok(TokenEq)
		}
		return tok(TokenAssign)
	case '(':
		return tok(TokenLParen)
	case ')':
		return tok(TokenRParen)
	case '{':
		return tok(TokenLBrace)
	case '}':
		return tok(TokenRBrace)
	case '[':
		if l.ch == '[' || l.ch == '=' {
			return l.readLongString(line, col)
		}
		return tok(TokenLBracket)
	case ']':
		return tok(TokenRBracket)
	case ';':
		return tok(TokenSemicolon)
	case ':':
		if l.ch == ':' {
			l.readChar()
			return tok(TokenDoubleColon)
		}
		return tok(TokenColon)
	case ',':
		return tok(TokenComma)
	case '.':
		if l.ch == '.' {
			l.readChar()
			if l.ch == '.' {
				l.readChar()
				return tok(TokenEllipsis)
			}
			return tok(TokenConcat)
		}
		return tok(TokenDot)
	}

	return l.errorToken(line, col, "unexpected character %q", string(rune(ch)))
}

// skipWhitespaceAndComments consumes whitespace, line comments and long
// comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.ch {
		case ' ', '\t', '\r', '\n':
			l.readChar()
		case '-':
			if l.peekChar() != '-' {
				return
			}
			l.readChar() // first -
			l.readChar() // second -
			if l.ch == '[' {
				// Possible long comment: --[=*[
				save := l.pos
				level := 0
				l.readChar()
				for l.ch == '=' {
					level++
					l.readChar()
				}
				if l.ch == '[' {
					l.readChar()
					l.skipLongBracket(level)
					continue
				}
				// Not a long bracket; rewind to just after "--[".
				l.pos = save
				l.ch = '['
			}
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

// skipLongBracket consumes input until the matching ]=*] closer.
func (l *Lexer) skipLongBracket(level int) {
	for l.ch != 0 {
		if l.ch == ']' {
			l.readChar()
			n := 0
			for l.ch == '=' {
				n++
				l.readChar()
			}
			if n == level && l.ch == ']' {
				l.readChar()
				return
			}
			continue
		}
		l.readChar()
	}
}

func isNameStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isNameChar(ch byte) bool {
	return isNameStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func (l *Lexer) readName() string {
	var sb strings.Builder
	for isNameChar(l.ch) {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	return sb.String()
}

// readNumber reads an integer or float literal, including hex forms.
func (l *Lexer) readNumber(line, col int) Token {
	var sb strings.Builder

	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		return l.readHexNumber(line, col)
	}

	isFloat := false
	for isDigit(l.ch) {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	if l.ch == '.' && l.peekChar() != '.' {
		isFloat = true
		sb.WriteByte(l.ch)
		l.readChar()
		for isDigit(l.ch) {
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		isFloat = true
		sb.WriteByte(l.ch)
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			sb.WriteByte(l.ch)
			l.readChar()
		}
		if !isDigit(l.ch) {
			return l.errorToken(line, col, "malformed number near %q", sb.String())
		}
		for isDigit(l.ch) {
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
	text := sb.String()

	if !isFloat {
		var n int64
		overflow := false
		for i := 0; i < len(text); i++ {
			d := int64(text[i] - '0')
			if n > (1<<63-1-d)/10 {
				overflow = true
				break
			}
			n = n*10 + d
		}
		if !overflow {
			return Token{Type: TokenInt, Int: n, Line: line, Column: col}
		}
		// Integer literals too large for int64 become floats rather than erroring.
		isFloat = true
	}

	var f float64
	if _, err := fmt.Sscanf(text, "%g", &f); err != nil {
		return l.errorToken(line, col, "malformed number near %q", text)
	}
	return Token{Type: TokenFloat, Float: f, Line: line, Column: col}
}

// readHexNumber reads the digits of a hex literal after the 0x prefix.
// Hex integers wrap around on overflow rather than converting to float.
func (l *Lexer) readHexNumber(line, col int) Token {
	if !isHexDigit(l.ch) {
		return l.errorToken(line, col, "malformed hexadecimal number")
	}
	var n uint64
	for isHexDigit(l.ch) {
		n = n*16 + uint64(hexValue(l.ch))
		l.readChar()
	}
	return Token{Type: TokenInt, Int: int64(n), Line: line, Column: col}
}

func hexValue(ch byte) int {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0')
	case ch >= 'a' && ch <= 'f':
		return int(ch-'a') + 10
	default:
		return int(ch-'A') + 10
	}
}

// readString reads a quoted string literal with escape processing.
func (l *Lexer) readString(line, col int) Token {
	quote := l.ch
	l.readChar()

	var sb strings.Builder
	for l.ch != quote {
		switch l.ch {
		case 0, '\n':
			return l.errorToken(line, col, "unterminated string")
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'a':
				sb.WriteByte(7)
			case 'b':
				sb.WriteByte(8)
			case 'f':
				sb.WriteByte(12)
			case 'v':
				sb.WriteByte(11)
			case '\\', '"', '\'':
				sb.WriteByte(l.ch)
			case '\n':
				sb.WriteByte('\n')
			case 'x':
				l.readChar()
				if !isHexDigit(l.ch) || !isHexDigit(l.peekChar()) {
					return l.errorToken(line, col, "invalid hex escape in string")
				}
				hi := hexValue(l.ch)
				l.readChar()
				sb.WriteByte(byte(hi*16 + hexValue(l.ch)))
			case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
				n := 0
				for i := 0; i < 3 && isDigit(l.ch); i++ {
					n = n*10 + int(l.ch-'0')
					l.readChar()
				}
				if n > 255 {
					return l.errorToken(line, col, "decimal escape too large")
				}
				sb.WriteByte(byte(n))
				continue // readChar already past the escape
			default:
				return l.errorToken(line, col, "invalid escape sequence %q", string(rune(l.ch)))
			}
			l.readChar()
		default:
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
	l.readChar() // closing quote
	return Token{Type: TokenString, Literal: sb.String(), Line: line, Column: col}
}

// readLongString reads a [[...]] literal. The opening '[' has been consumed.
func (l *Lexer) readLongString(line, col int) Token {
	level := 0
	for l.ch == '=' {
		level++
		l.readChar()
	}
	if l.ch != '[' {
		return l.errorToken(line, col, "malformed long string delimiter")
	}
	l.readChar()
	// A newline immediately after the opener is not part of the string.
	if l.ch == '\n' {
		l.readChar()
	}

	var sb strings.Builder
	for {
		if l.ch == 0 {
			return l.errorToken(line, col, "unterminated long string")
		}
		if l.ch == ']' {
			l.readChar()
			n := 0
			for l.ch == '=' {
				n++
				l.readChar()
			}
			if n == level && l.ch == ']' {
				l.readChar()
				return Token{Type: TokenString, Literal: sb.String(), Line: line, Column: col}
			}
			sb.WriteByte(']')
			for i := 0; i < n; i++ {
				sb.WriteByte('=')
			}
			continue
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}
}
