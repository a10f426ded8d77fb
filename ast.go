package main

import (
	"strconv"
	"strings"
)

// Node is any AST node. The set of implementations is closed: only the types
// in this file satisfy it.
type Node interface {
	Position() Pos
	node()
}

// Expr is a Node that produces a value.
type Expr interface {
	Node
	expr()
}

type NumberExpr struct {
	Pos Pos
	Val float64
}

type VariableExpr struct {
	Pos  Pos
	Name string
}

type BinaryExpr struct {
	Pos Pos
	Op  rune
	LHS Expr
	RHS Expr
}

type CallExpr struct {
	Pos    Pos
	Callee string
	Args   []Expr
}

// Prototype is a function signature: a name and its parameter names. All
// parameters and the result are doubles. Parameter names may repeat.
type Prototype struct {
	Pos    Pos
	Name   string
	Params []string
}

// Function is a definition. A top-level expression is a Function whose
// prototype has an empty name and no parameters.
type Function struct {
	Pos   Pos
	Proto *Prototype
	Body  Expr
}

// IsAnonymous reports whether f wraps a bare top-level expression.
func (f *Function) IsAnonymous() bool {
	return f.Proto.Name == ""
}

type IfExpr struct {
	Pos  Pos
	Cond Expr
	Then Expr
	Else Expr
}

type ForExpr struct {
	Pos   Pos
	Var   string
	Start Expr
	End   Expr
	Step  Expr
	Body  Expr
}

// Binding is one "name [= init]" clause of a var expression. Init is nil when
// the clause has no initializer.
type Binding struct {
	Name string
	Init Expr
}

type VarExpr struct {
	Pos      Pos
	Bindings []Binding
	Body     Expr
}

func (n *NumberExpr) Position() Pos   { return n.Pos }
func (n *VariableExpr) Position() Pos { return n.Pos }
func (n *BinaryExpr) Position() Pos   { return n.Pos }
func (n *CallExpr) Position() Pos     { return n.Pos }
func (n *Prototype) Position() Pos    { return n.Pos }
func (n *Function) Position() Pos     { return n.Pos }
func (n *IfExpr) Position() Pos       { return n.Pos }
func (n *ForExpr) Position() Pos      { return n.Pos }
func (n *VarExpr) Position() Pos      { return n.Pos }

func (*NumberExpr) node()   {}
func (*VariableExpr) node() {}
func (*BinaryExpr) node()   {}
func (*CallExpr) node()     {}
func (*Prototype) node()    {}
func (*Function) node()     {}
func (*IfExpr) node()       {}
func (*ForExpr) node()      {}
func (*VarExpr) node()      {}

func (*NumberExpr) expr()   {}
func (*VariableExpr) expr() {}
func (*BinaryExpr) expr()   {}
func (*CallExpr) expr()     {}
func (*IfExpr) expr()       {}
func (*ForExpr) expr()      {}
func (*VarExpr) expr()      {}

// ToSExpr converts an AST node to its s-expression form. Tests compare
// against this form, and the check command prints it.
func ToSExpr(node Node) string {
	switch n := node.(type) {
	case *NumberExpr:
		return "(number " + formatNumber(n.Val) + ")"
	case *VariableExpr:
		return "(ident " + strconv.Quote(n.Name) + ")"
	case *BinaryExpr:
		return "(binary " + strconv.Quote(string(n.Op)) + " " + ToSExpr(n.LHS) + " " + ToSExpr(n.RHS) + ")"
	case *CallExpr:
		var b strings.Builder
		b.WriteString("(call " + strconv.Quote(n.Callee))
		for _, arg := range n.Args {
			b.WriteString(" " + ToSExpr(arg))
		}
		b.WriteString(")")
		return b.String()
	case *Prototype:
		params := make([]string, len(n.Params))
		for i, p := range n.Params {
			params[i] = strconv.Quote(p)
		}
		return "(proto " + strconv.Quote(n.Name) + " [" + strings.Join(params, " ") + "])"
	case *Function:
		return "(func " + ToSExpr(n.Proto) + " " + ToSExpr(n.Body) + ")"
	case *IfExpr:
		return "(if " + ToSExpr(n.Cond) + " " + ToSExpr(n.Then) + " " + ToSExpr(n.Else) + ")"
	case *ForExpr:
		return "(for " + strconv.Quote(n.Var) + " " + ToSExpr(n.Start) + " " + ToSExpr(n.End) + " " +
			ToSExpr(n.Step) + " " + ToSExpr(n.Body) + ")"
	case *VarExpr:
		bindings := make([]string, len(n.Bindings))
		for i, bnd := range n.Bindings {
			if bnd.Init == nil {
				bindings[i] = "(" + strconv.Quote(bnd.Name) + ")"
			} else {
				bindings[i] = "(" + strconv.Quote(bnd.Name) + " " + ToSExpr(bnd.Init) + ")"
			}
		}
		return "(var [" + strings.Join(bindings, " ") + "] " + ToSExpr(n.Body) + ")"
	default:
		return ""
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
