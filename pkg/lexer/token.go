package lexer

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Crescent lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInt    // 42, 0xFF
	TokenFloat  // 3.14, 1.5e10
	TokenString // "hello", 'hello', [[hello]]
	TokenName   // foo

	// Keywords
	TokenAnd
	TokenBreak
	TokenDo
	TokenElse
	TokenElseif
	TokenEnd
	TokenFalse
	TokenFor
	TokenFunction
	TokenGoto
	TokenIf
	TokenIn
	TokenLocal
	TokenNil
	TokenNot
	TokenOr
	TokenRepeat
	TokenReturn
	TokenThen
	TokenTrue
	TokenUntil
	TokenWhile

	// Operators and delimiters
	TokenPlus        // +
	TokenMinus       // -
	TokenStar        // *
	TokenSlash       // /
	TokenDoubleSlash // //
	TokenPercent     // %
	TokenCaret       // ^
	TokenHash        // #
	TokenAmp         // &
	TokenTilde       // ~
	TokenPipe        // |
	TokenShl         // <<
	TokenShr         // >>
	TokenEq          // ==
	TokenNe          // ~=
	TokenLt          // <
	TokenLe          // <=
	TokenGt          // >
	TokenGe          // >=
	TokenAssign      // =
	TokenLParen      // (
	TokenRParen      // )
	TokenLBrace      // {
	TokenRBrace      // }
	TokenLBracket    // [
	TokenRBracket    // ]
	TokenDoubleColon // ::
	TokenSemicolon   // ;
	TokenColon       // :
	TokenComma       // ,
	TokenDot         // .
	TokenConcat      // ..
	TokenEllipsis    // ...
)

var tokenNames = map[TokenType]string{
	TokenEOF:    "EOF",
	TokenError:  "ERROR",
	TokenInt:    "INT",
	TokenFloat:  "FLOAT",
	TokenString: "STRING",
	TokenName:   "NAME",

	TokenAnd: "and", TokenBreak: "break", TokenDo: "do", TokenElse: "else",
	TokenElseif: "elseif", TokenEnd: "end", TokenFalse: "false",
	TokenFor: "for", TokenFunction: "function", TokenGoto: "goto",
	TokenIf: "if", TokenIn: "in", TokenLocal: "local", TokenNil: "nil",
	TokenNot: "not", TokenOr: "or", TokenRepeat: "repeat",
	TokenReturn: "return", TokenThen: "then", TokenTrue: "true",
	TokenUntil: "until", TokenWhile: "while",

	TokenPlus: "+", TokenMinus: "-", TokenStar: "*", TokenSlash: "/",
	TokenDoubleSlash: "//", TokenPercent: "%", TokenCaret: "^",
	TokenHash: "#", TokenAmp: "&", TokenTilde: "~", TokenPipe: "|",
	TokenShl: "<<", TokenShr: ">>", TokenEq: "==", TokenNe: "~=",
	TokenLt: "<", TokenLe: "<=", TokenGt: ">", TokenGe: ">=",
	TokenAssign: "=", TokenLParen: "(", TokenRParen: ")",
	TokenLBrace: "{", TokenRBrace: "}", TokenLBracket: "[",
	TokenRBracket: "]", TokenDoubleColon: "::", TokenSemicolon: ";",
	TokenColon: ":", TokenComma: ",", TokenDot: ".", TokenConcat: "..",
	TokenEllipsis: "...",
}

// String returns a human-readable name for the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// keywords maps reserved identifiers to their token types.
var keywords = map[string]TokenType{
	"and": TokenAnd, "break": TokenBreak, "do": TokenDo, "else": TokenElse,
	"elseif": TokenElseif, "end": TokenEnd, "false": TokenFalse,
	"for": TokenFor, "function": TokenFunction, "goto": TokenGoto,
	"if": TokenIf, "in": TokenIn, "local": TokenLocal, "nil": TokenNil,
	"not": TokenNot, "or": TokenOr, "repeat": TokenRepeat,
	"return": TokenReturn, "then": TokenThen, "true": TokenTrue,
	"until": TokenUntil, "while": TokenWhile,
}

// Token is a single lexical token.
type Token struct {
	Type    TokenType
	Literal string  // raw text for names/strings, message for errors
	Int     int64   // value when Type == TokenInt
	Float   float64 // value when Type == TokenFloat
	Line    int     // 1-based
	Column  int     // 1-based
}

// String formats the token for diagnostics.
func (t Token) String() string {
	switch t.Type {
	case TokenInt:
		return fmt.Sprintf("%d", t.Int)
	case TokenFloat:
		return fmt.Sprintf("%g", t.Float)
	case TokenString, TokenName, TokenError:
		return t.Literal
	default:
		return t.Type.String()
	}
}
