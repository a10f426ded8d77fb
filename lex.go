package main

import (
	"fmt"
	"strconv"
)

// TokenType is the type of token (keyword, identifier, number or symbol).
type TokenType string

const (
	EOF    TokenType = "EOF"
	IDENT  TokenType = "IDENT"  // foo, x1
	NUMBER TokenType = "NUMBER" // 1, 2.5, .5
	CHAR   TokenType = "CHAR"   // any other single character: ( ) , ; + < ...

	DEF    TokenType = "DEF"
	EXTERN TokenType = "EXTERN"
	IF     TokenType = "IF"
	THEN   TokenType = "THEN"
	ELSE   TokenType = "ELSE"
	FOR    TokenType = "FOR"
	IN     TokenType = "IN"
	VAR    TokenType = "VAR"
)

var keywords = map[string]TokenType{
	"def":    DEF,
	"extern": EXTERN,
	"if":     IF,
	"then":   THEN,
	"else":   ELSE,
	"for":    FOR,
	"in":     IN,
	"var":    VAR,
}

// Pos is a 1-based source position.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Token is one lexed token. Only the fields matching Type are meaningful.
type Token struct {
	Type    TokenType
	Literal string  // IDENT, NUMBER and keywords
	Num     float64 // NUMBER
	Char    rune    // CHAR
	Pos     Pos
}

// Is reports whether the token is the single-character symbol c.
func (t Token) Is(c rune) bool {
	return t.Type == CHAR && t.Char == c
}

func (t Token) String() string {
	switch t.Type {
	case EOF:
		return "end of input"
	case IDENT:
		return "identifier " + strconv.Quote(t.Literal)
	case NUMBER:
		return "number " + t.Literal
	case CHAR:
		return strconv.QuoteRune(t.Char)
	default:
		return "'" + t.Literal + "'"
	}
}

// Lexer turns source bytes into tokens, one at a time.
type Lexer struct {
	input []byte
	pos   int
	line  int
	col   int

	// Curr is the token most recently produced by NextToken.
	Curr Token
}

func NewLexer(input []byte) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	if l.input[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

// NextToken scans the next token into l.Curr and returns it.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	start := Pos{Line: l.line, Col: l.col}
	c := l.peek()

	switch {
	case l.atEOF():
		l.Curr = Token{Type: EOF, Pos: start}

	case isLetter(c):
		lit := l.readIdentifier()
		if kw, ok := keywords[lit]; ok {
			l.Curr = Token{Type: kw, Literal: lit, Pos: start}
		} else {
			l.Curr = Token{Type: IDENT, Literal: lit, Pos: start}
		}

	case isDigit(c) || c == '.':
		lit := l.readNumber()
		val, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			// Only a bare "." gets here.
			val = 0
		}
		l.Curr = Token{Type: NUMBER, Literal: lit, Num: val, Pos: start}

	default:
		l.advance()
		l.Curr = Token{Type: CHAR, Char: rune(c), Literal: string(c), Pos: start}
	}

	return l.Curr
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.advance()
		case c == '#':
			for !l.atEOF() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.peek()) || isDigit(l.peek()) {
		l.advance()
	}
	return string(l.input[start:l.pos])
}

// readNumber reads digits with at most one '.'; a second '.' ends the literal.
func (l *Lexer) readNumber() string {
	start := l.pos
	seenDot := false
	for {
		c := l.peek()
		if c == '.' {
			if seenDot {
				break
			}
			seenDot = true
		} else if !isDigit(c) {
			break
		}
		l.advance()
	}
	return string(l.input[start:l.pos])
}
