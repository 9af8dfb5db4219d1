package spreadsheet

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenBoolean
	TokenCell
	TokenRange
	TokenFunction
	TokenUnaryPrefixOp
	TokenUnaryPostfixOp
	TokenBinaryOp
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenIdentifier
	TokenError
)

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent
)

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in input
}

// tokenSet is a bitmask of token types.
type tokenSet uint32

func setOf(types ...TokenType) tokenSet {
	var s tokenSet
	for _, t := range types {
		s |= 1 << t
	}
	return s
}

func (s tokenSet) has(t TokenType) bool { return s&(1<<t) != 0 }

// lexState is what the lexer has just seen, which decides the tokens
// allowed next.
type lexState uint8

const (
	expectOperand  lexState = iota // start, after an operator or a comma
	afterOpenParen                 // like expectOperand, but ')' closes an empty call
	afterOperand                   // a literal, reference or ')'
	afterName                      // a function name or bare identifier
)

var operandStart = setOf(TokenNumber, TokenString, TokenBoolean, TokenCell, TokenRange,
	TokenFunction, TokenIdentifier, TokenLeftParen, TokenUnaryPrefixOp)

var follows = [...]tokenSet{
	expectOperand:  operandStart,
	afterOpenParen: operandStart | setOf(TokenRightParen),
	afterOperand:   setOf(TokenBinaryOp, TokenUnaryPostfixOp, TokenRightParen, TokenComma, TokenEOF),
	afterName:      setOf(TokenLeftParen, TokenBinaryOp, TokenUnaryPostfixOp, TokenRightParen, TokenComma, TokenEOF),
}

func (s lexState) next(t TokenType) lexState {
	switch t {
	case TokenBinaryOp, TokenUnaryPrefixOp, TokenComma:
		return expectOperand
	case TokenLeftParen:
		return afterOpenParen
	case TokenFunction, TokenIdentifier:
		return afterName
	case TokenUnaryPostfixOp:
		return s
	default:
		return afterOperand
	}
}

// binary operators other than + and -, longest first so "<=" wins over "<"
var operators = []string{"<=", ">=", "<>", "!=", "=", "<", ">", "*", "/", "^", "&"}

// Lexer tokenizes a formula expression (the text after the leading '=')
type Lexer struct {
	src   []rune
	pos   int
	state lexState
	depth int
}

// NewLexer creates a new lexer for the given expression
func NewLexer(expression string) *Lexer {
	return &Lexer{src: []rune(expression)}
}

// Tokenize returns every token of the expression followed by TokenEOF.
// Any failure is a formula syntax error and no tokens are returned.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			break
		}
		tok := l.scan()
		if tok.Type == TokenError {
			return nil, syntaxError(tok.Pos, tok.Value)
		}
		if !follows[l.state].has(tok.Type) {
			return nil, syntaxError(tok.Pos, "unexpected token: "+tok.Value)
		}
		tokens = append(tokens, tok)
		l.state = l.state.next(tok.Type)
	}

	switch {
	case !follows[l.state].has(TokenEOF):
		return nil, syntaxError(l.pos, "unexpected end of expression")
	case l.depth > 0:
		return nil, syntaxError(l.pos, "unbalanced parentheses: missing closing parenthesis")
	}
	return append(tokens, Token{Type: TokenEOF, Pos: l.pos}), nil
}

func syntaxError(pos int, msg string) *SpreadsheetError {
	return NewSpreadsheetError(ErrorCodeSyntax, fmt.Sprintf("%s at position %d", msg, pos))
}

func (l *Lexer) at(i int) rune {
	if i < 0 || i >= len(l.src) {
		return 0
	}
	return l.src[i]
}

func (l *Lexer) skipSpace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
}

// emit returns a token spanning start..l.pos
func (l *Lexer) emit(t TokenType, start int) Token {
	return Token{Type: t, Value: string(l.src[start:l.pos]), Pos: start}
}

func (l *Lexer) fail(start int, msg string) Token {
	return Token{Type: TokenError, Value: msg, Pos: start}
}

func (l *Lexer) scan() Token {
	start := l.pos
	ch := l.src[l.pos]

	switch {
	case ch == '"':
		return l.scanString()
	case isDigit(ch) || (ch == '.' && isDigit(l.at(l.pos+1))):
		return l.scanNumber()
	case isLetter(ch) || ch == '_' || ch == '$':
		return l.scanWord()
	}

	l.pos++
	switch ch {
	case '(':
		l.depth++
		return l.emit(TokenLeftParen, start)
	case ')':
		l.depth--
		if l.depth < 0 {
			return l.fail(start, "unexpected closing parenthesis")
		}
		return l.emit(TokenRightParen, start)
	case ',':
		if l.depth == 0 {
			return l.fail(start, "argument separator outside function call")
		}
		return l.emit(TokenComma, start)
	case '%':
		return l.emit(TokenUnaryPostfixOp, start)
	case '+', '-':
		// a sign wherever an operand is expected
		if l.state == expectOperand || l.state == afterOpenParen {
			return l.emit(TokenUnaryPrefixOp, start)
		}
		return l.emit(TokenBinaryOp, start)
	}

	l.pos = start
	rest := string(l.src[start:min(start+2, len(l.src))])
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			l.pos += len(op)
			return l.emit(TokenBinaryOp, start)
		}
	}
	l.pos++
	return l.fail(start, "unexpected character: "+string(ch))
}

// scanNumber reads digits, an optional fraction and an optional exponent.
// An 'e' not followed by digits is left for the next token.
func (l *Lexer) scanNumber() Token {
	start := l.pos
	l.skipDigits()
	if l.at(l.pos) == '.' {
		l.pos++
		l.skipDigits()
	}
	if e := l.at(l.pos); e == 'e' || e == 'E' {
		exp := l.pos + 1
		if s := l.at(exp); s == '+' || s == '-' {
			exp++
		}
		if isDigit(l.at(exp)) {
			l.pos = exp
			l.skipDigits()
		}
	}
	return l.emit(TokenNumber, start)
}

func (l *Lexer) skipDigits() {
	for isDigit(l.at(l.pos)) {
		l.pos++
	}
}

// scanString reads a double-quoted literal; "" inside it is one quote
func (l *Lexer) scanString() Token {
	start := l.pos
	var sb strings.Builder
	for l.pos++; l.pos < len(l.src); l.pos++ {
		ch := l.src[l.pos]
		if ch != '"' {
			sb.WriteRune(ch)
			continue
		}
		if l.at(l.pos+1) != '"' {
			l.pos++
			return Token{Type: TokenString, Value: sb.String(), Pos: start}
		}
		sb.WriteRune('"')
		l.pos++
	}
	return l.fail(start, "unclosed string literal")
}

// scanWord reads a function name, boolean, cell, range or bare identifier
func (l *Lexer) scanWord() Token {
	start := l.pos
	word := l.readWord()
	upper := strings.ToUpper(word)

	switch {
	case l.at(l.pos) == '(' && !strings.Contains(word, "$"):
		// names win over cells so LOG10( is a call
		return Token{Type: TokenFunction, Value: upper, Pos: start}
	case upper == "TRUE" || upper == "FALSE":
		return Token{Type: TokenBoolean, Value: upper, Pos: start}
	case isCellLabel(word) && l.at(l.pos) == ':':
		l.pos++
		if end := l.readWord(); !isCellLabel(end) {
			return l.fail(start, "invalid range reference: "+word+":")
		}
		return l.emit(TokenRange, start)
	case isCellLabel(word):
		return Token{Type: TokenCell, Value: word, Pos: start}
	case strings.ContainsAny(word, "$."):
		return l.fail(start, "invalid reference: "+word)
	}
	return Token{Type: TokenIdentifier, Value: word, Pos: start}
}

func (l *Lexer) readWord() string {
	start := l.pos
	for isWordRune(l.at(l.pos)) {
		l.pos++
	}
	return string(l.src[start:l.pos])
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }

func isLetter(ch rune) bool { return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') }

func isWordRune(ch rune) bool {
	return isLetter(ch) || isDigit(ch) || ch == '_' || ch == '$' || ch == '.'
}

// isCellLabel checks the shape of a cell label: optional $, letters,
// optional $, digits. Whether the row is in range is decided later.
func isCellLabel(s string) bool {
	rest := strings.TrimPrefix(s, "$")
	letters := strings.TrimLeftFunc(rest, isLetter)
	if len(letters) == len(rest) {
		return false
	}
	digits := strings.TrimPrefix(letters, "$")
	return digits != "" && strings.TrimLeftFunc(digits, isDigit) == ""
}
