package main

import (
	"log/slog"
	"maps"
	"strings"
)

// DefaultPrecedence is the binary operator table. Higher binds tighter.
var DefaultPrecedence = map[rune]int{
	':': 1,
	'=': 2,
	'<': 10,
	'>': 11,
	'+': 20,
	'-': 30,
	'*': 40,
}

// operatorChars are the only symbols that may act as binary operators.
const operatorChars = "&|><+-*/=:"

// Parser is a recursive-descent parser with precedence climbing for binary
// operators. It holds exactly one token of lookahead (the lexer's Curr).
type Parser struct {
	lex  *Lexer
	prec map[rune]int
	log  *slog.Logger
}

// NewParser creates a parser over src and reads the first token.
func NewParser(ctx *Context, src []byte) *Parser {
	p := &Parser{
		lex:  NewLexer(src),
		prec: maps.Clone(DefaultPrecedence),
		log:  ctx.Log.With("component", "parser"),
	}
	p.lex.NextToken()
	return p
}

// Curr returns the current token.
func (p *Parser) Curr() Token {
	return p.lex.Curr
}

func (p *Parser) next() Token {
	return p.lex.NextToken()
}

// SetPrecedence installs or overrides a binary operator. A precedence <= 0
// removes it.
func (p *Parser) SetPrecedence(op rune, prec int) {
	if prec <= 0 {
		delete(p.prec, op)
		return
	}
	p.prec[op] = prec
}

// tokPrecedence returns the precedence of the current token, or -1 if it is
// not a binary operator.
func (p *Parser) tokPrecedence() int {
	tok := p.Curr()
	if tok.Type != CHAR || !strings.ContainsRune(operatorChars, tok.Char) {
		return -1
	}
	prec, ok := p.prec[tok.Char]
	if !ok || prec <= 0 {
		return -1
	}
	return prec
}

func (p *Parser) expect(tt TokenType, context string) error {
	if p.Curr().Type != tt {
		what := strings.ToLower(string(tt))
		if tt == IDENT {
			what = "identifier"
		}
		return syntaxErrorf(p.Curr(), "expected %s %s, got %s", what, context, p.Curr())
	}
	return nil
}

func (p *Parser) expectChar(c rune, context string) error {
	if !p.Curr().Is(c) {
		return syntaxErrorf(p.Curr(), "expected '%c' %s, got %s", c, context, p.Curr())
	}
	return nil
}

// Next parses the next top-level construct: a *Function for "def" and for
// bare expressions, a *Prototype for "extern". Stray ';' separators are
// skipped. It returns (nil, nil) at end of input. When parsing fails, the
// token the parse stopped at has already been skipped.
func (p *Parser) Next() (Node, error) {
	for p.Curr().Is(';') {
		p.next()
	}

	var node Node
	var err error
	switch p.Curr().Type {
	case EOF:
		return nil, nil
	case DEF:
		node, err = p.ParseDefinition()
	case EXTERN:
		node, err = p.ParseExtern()
	default:
		node, err = p.ParseTopLevelExpr()
	}

	if err != nil {
		p.log.Debug("skipping token after error", "tok", p.Curr().String())
		p.next()
		return nil, err
	}
	return node, nil
}

// ParseProgram parses every top-level construct without generating code.
// Syntax errors are collected in errs and parsing resumes after them.
func (p *Parser) ParseProgram(errs *ErrorList) []Node {
	var nodes []Node
	for {
		node, err := p.Next()
		if err != nil {
			errs.Add(err)
			continue
		}
		if node == nil {
			return nodes
		}
		nodes = append(nodes, node)
	}
}

// ParseDefinition parses "def" prototype expression.
func (p *Parser) ParseDefinition() (*Function, error) {
	pos := p.Curr().Pos
	p.next() // consume 'def'
	proto, err := p.ParsePrototype()
	if err != nil {
		return nil, err
	}
	body, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	return &Function{Pos: pos, Proto: proto, Body: body}, nil
}

// ParseExtern parses "extern" prototype.
func (p *Parser) ParseExtern() (*Prototype, error) {
	p.next() // consume 'extern'
	return p.ParsePrototype()
}

// ParseTopLevelExpr wraps a bare expression in an anonymous, parameterless
// function.
func (p *Parser) ParseTopLevelExpr() (*Function, error) {
	pos := p.Curr().Pos
	body, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	return &Function{
		Pos:   pos,
		Proto: &Prototype{Pos: pos, Name: ""},
		Body:  body,
	}, nil
}

// ParsePrototype parses name '(' params ')'. Parameters may be separated by
// commas, whitespace, or both.
func (p *Parser) ParsePrototype() (*Prototype, error) {
	if err := p.expect(IDENT, "for function name in prototype"); err != nil {
		return nil, err
	}
	proto := &Prototype{Pos: p.Curr().Pos, Name: p.Curr().Literal}
	p.next()

	if err := p.expectChar('(', "in prototype"); err != nil {
		return nil, err
	}
	p.next()

	for p.Curr().Type == IDENT || p.Curr().Is(',') {
		if p.Curr().Type == IDENT {
			proto.Params = append(proto.Params, p.Curr().Literal)
		}
		p.next()
	}

	if err := p.expectChar(')', "in prototype"); err != nil {
		return nil, err
	}
	p.next()

	p.log.Debug("parsed prototype", "name", proto.Name, "params", len(proto.Params))
	return proto, nil
}

// ParseExpression parses a primary expression followed by any number of
// binary operators.
func (p *Parser) ParseExpression() (Expr, error) {
	lhs, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parseBinOpRHS(0, lhs)
}

// parseBinOpRHS implements precedence climbing. It folds operators whose
// precedence is at least minPrec into lhs.
func (p *Parser) parseBinOpRHS(minPrec int, lhs Expr) (Expr, error) {
	for {
		tokPrec := p.tokPrecedence()
		if tokPrec < minPrec {
			return lhs, nil
		}

		op := p.Curr()
		p.next() // consume operator

		rhs, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}

		// If the next operator binds at least as tightly, let it take rhs
		// as its left operand first.
		if nextPrec := p.tokPrecedence(); nextPrec >= tokPrec {
			threshold := tokPrec + 1
			if op.Char == '=' {
				// Assignment is right-associative: a = b = c is a = (b = c).
				threshold = tokPrec
			}
			rhs, err = p.parseBinOpRHS(threshold, rhs)
			if err != nil {
				return nil, err
			}
		}

		lhs = &BinaryExpr{Pos: op.Pos, Op: op.Char, LHS: lhs, RHS: rhs}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.Curr()
	switch {
	case tok.Type == IDENT:
		return p.parseIdentifierExpr()
	case tok.Type == NUMBER:
		p.next()
		return &NumberExpr{Pos: tok.Pos, Val: tok.Num}, nil
	case tok.Is('('):
		return p.parseParenExpr()
	case tok.Type == IF:
		return p.parseIfExpr()
	case tok.Type == FOR:
		return p.parseForExpr()
	case tok.Type == VAR:
		return p.parseVarExpr()
	default:
		return nil, syntaxErrorf(tok, "unknown token %s when expecting an expression", tok)
	}
}

// parseIdentifierExpr parses a variable reference or, if the name is
// followed by '(', a call.
func (p *Parser) parseIdentifierExpr() (Expr, error) {
	tok := p.Curr()
	p.next() // consume identifier

	if !p.Curr().Is('(') {
		return &VariableExpr{Pos: tok.Pos, Name: tok.Literal}, nil
	}
	p.next() // consume '('

	call := &CallExpr{Pos: tok.Pos, Callee: tok.Literal}
	if !p.Curr().Is(')') {
		for {
			arg, err := p.ParseExpression()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)

			if p.Curr().Is(')') {
				break
			}
			if !p.Curr().Is(',') {
				return nil, syntaxErrorf(p.Curr(), "expected ')' or ',' in argument list, got %s", p.Curr())
			}
			p.next() // consume ','
		}
	}
	p.next() // consume ')'

	return call, nil
}

func (p *Parser) parseParenExpr() (Expr, error) {
	p.next() // consume '('
	expr, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectChar(')', "to close parenthesized expression"); err != nil {
		return nil, err
	}
	p.next()
	return expr, nil
}

// parseIfExpr parses "if" cond "then" expr "else" expr.
func (p *Parser) parseIfExpr() (Expr, error) {
	pos := p.Curr().Pos
	p.next() // consume 'if'

	cond, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	if err := p.expect(THEN, "after if condition"); err != nil {
		return nil, err
	}
	p.next()

	then, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	if err := p.expect(ELSE, "after then branch"); err != nil {
		return nil, err
	}
	p.next()

	els, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	return &IfExpr{Pos: pos, Cond: cond, Then: then, Else: els}, nil
}

// parseForExpr parses "for" ident '=' start ',' end ',' step "in" body.
func (p *Parser) parseForExpr() (Expr, error) {
	pos := p.Curr().Pos
	p.next() // consume 'for'

	if err := p.expect(IDENT, "after 'for'"); err != nil {
		return nil, err
	}
	name := p.Curr().Literal
	p.next()

	if err := p.expectChar('=', "after for loop variable"); err != nil {
		return nil, err
	}
	p.next()

	start, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	if err := p.expectChar(',', "after for start value"); err != nil {
		return nil, err
	}
	p.next()

	end, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	if err := p.expectChar(',', "after for end condition"); err != nil {
		return nil, err
	}
	p.next()

	step, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	if err := p.expect(IN, "after for step"); err != nil {
		return nil, err
	}
	p.next()

	body, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	return &ForExpr{Pos: pos, Var: name, Start: start, End: end, Step: step, Body: body}, nil
}

// parseVarExpr parses "var" ident ['=' expr] (',' ident ['=' expr])* "in" body.
func (p *Parser) parseVarExpr() (Expr, error) {
	pos := p.Curr().Pos
	p.next() // consume 'var'

	if err := p.expect(IDENT, "after 'var'"); err != nil {
		return nil, err
	}

	var bindings []Binding
	for {
		name := p.Curr().Literal
		p.next()

		var init Expr
		if p.Curr().Is('=') {
			p.next()
			var err error
			init, err = p.ParseExpression()
			if err != nil {
				return nil, err
			}
		}
		bindings = append(bindings, Binding{Name: name, Init: init})

		if !p.Curr().Is(',') {
			break
		}
		p.next()

		if err := p.expect(IDENT, "after ',' in var list"); err != nil {
			return nil, err
		}
	}

	if err := p.expect(IN, "after var bindings"); err != nil {
		return nil, err
	}
	p.next()

	body, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	return &VarExpr{Pos: pos, Bindings: bindings, Body: body}, nil
}
