package main

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/strager/kal/backend"
)

var zero = constant.NewFloat(types.Double, 0)

// Generate emits IR for node into the context's module. Prototypes and
// functions produce an *ir.Func; expressions produce their value and must
// be generated while a function is being built. On failure the returned
// value is nil and nothing dependent on it has been emitted.
func (c *Context) Generate(node Node) (value.Value, error) {
	switch n := node.(type) {
	case *Prototype:
		f, err := c.GenPrototype(n)
		if err != nil {
			return nil, err
		}
		return f, nil
	case *Function:
		f, err := c.GenFunction(n)
		if err != nil {
			return nil, err
		}
		return f, nil
	case Expr:
		if c.block == nil {
			return nil, &Error{Kind: ErrInternal, Pos: n.Position(), Msg: "expression generated outside of a function"}
		}
		return c.genExpr(n)
	default:
		panic(fmt.Sprintf("internal error: unhandled AST node %T", node))
	}
}

func (c *Context) genExpr(node Expr) (value.Value, error) {
	switch n := node.(type) {
	case *NumberExpr:
		return constant.NewFloat(types.Double, n.Val), nil
	case *VariableExpr:
		return c.genVariable(n)
	case *BinaryExpr:
		return c.genBinary(n)
	case *CallExpr:
		return c.genCall(n)
	case *IfExpr:
		return c.genIf(n)
	case *ForExpr:
		return c.genFor(n)
	case *VarExpr:
		return c.genVar(n)
	default:
		panic(fmt.Sprintf("internal error: unhandled expression %T", node))
	}
}

func (c *Context) genVariable(n *VariableExpr) (value.Value, error) {
	slot, ok := c.slots[n.Name]
	if !ok {
		return nil, semanticErrorf(n.Pos, "unknown variable name %q", n.Name)
	}
	load := c.block.NewLoad(types.Double, slot)
	load.SetName(c.uniqueName(n.Name))
	return load, nil
}

func (c *Context) genBinary(n *BinaryExpr) (value.Value, error) {
	if n.Op == '=' {
		return c.genAssign(n)
	}

	l, err := c.genExpr(n.LHS)
	if err != nil {
		return nil, err
	}
	r, err := c.genExpr(n.RHS)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case '+':
		inst := c.block.NewFAdd(l, r)
		inst.SetName(c.uniqueName("addtmp"))
		return inst, nil
	case '-':
		inst := c.block.NewFSub(l, r)
		inst.SetName(c.uniqueName("subtmp"))
		return inst, nil
	case '*':
		inst := c.block.NewFMul(l, r)
		inst.SetName(c.uniqueName("multmp"))
		return inst, nil
	case '<':
		return c.genCompare(enum.FPredULT, l, r), nil
	case '>':
		// "not less than": unordered greater-or-equal.
		return c.genCompare(enum.FPredUGE, l, r), nil
	case ':':
		return r, nil
	default:
		return nil, semanticErrorf(n.Pos, "invalid binary operator '%c'", n.Op)
	}
}

// genCompare emits a comparison and widens the i1 result to 0.0 or 1.0.
func (c *Context) genCompare(pred enum.FPred, l, r value.Value) value.Value {
	cmp := c.block.NewFCmp(pred, l, r)
	cmp.SetName(c.uniqueName("cmptmp"))
	widened := c.block.NewUIToFP(cmp, types.Double)
	widened.SetName(c.uniqueName("booltmp"))
	return widened
}

func (c *Context) genAssign(n *BinaryExpr) (value.Value, error) {
	dest, ok := n.LHS.(*VariableExpr)
	if !ok {
		return nil, semanticErrorf(n.Pos, "destination of '=' must be a variable")
	}

	val, err := c.genExpr(n.RHS)
	if err != nil {
		return nil, err
	}

	slot, ok := c.slots[dest.Name]
	if !ok {
		return nil, semanticErrorf(dest.Pos, "unknown variable name %q", dest.Name)
	}
	c.block.NewStore(val, slot)

	// Returning the value allows chained assignment: a = (b = c).
	return val, nil
}

func (c *Context) genCall(n *CallExpr) (value.Value, error) {
	callee := c.LookupFunc(n.Callee)
	if callee == nil {
		return nil, semanticErrorf(n.Pos, "unknown function referenced %q", n.Callee)
	}
	if len(callee.Params) != len(n.Args) {
		return nil, semanticErrorf(n.Pos, "incorrect number of arguments passed to %q: want %d, got %d",
			n.Callee, len(callee.Params), len(n.Args))
	}

	args := make([]value.Value, 0, len(n.Args))
	for _, arg := range n.Args {
		v, err := c.genExpr(arg)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	call := c.block.NewCall(callee, args...)
	call.SetName(c.uniqueName("calltmp"))
	return call, nil
}

// GenPrototype declares a function taking and returning doubles. Declaring
// a name again returns the existing function if the arity agrees.
func (c *Context) GenPrototype(proto *Prototype) (*ir.Func, error) {
	if f := c.LookupFunc(proto.Name); f != nil {
		if len(f.Params) != len(proto.Params) {
			return nil, semanticErrorf(proto.Pos, "declaration of %q has %d parameters but it was declared with %d",
				proto.Name, len(proto.Params), len(f.Params))
		}
		return f, nil
	}
	return c.declare(proto.Name, proto.Params), nil
}

func (c *Context) declare(name string, paramNames []string) *ir.Func {
	used := make(map[string]bool)
	params := make([]*ir.Param, len(paramNames))
	for i, pn := range paramNames {
		unique := pn
		for j := 1; used[unique]; j++ {
			unique = fmt.Sprintf("%s%d", pn, j)
		}
		used[unique] = true
		params[i] = ir.NewParam(unique, types.Double)
	}
	f := c.Module.NewFunc(name, types.Double, params...)
	c.Log.Debug("declared function", "component", "codegen", "name", name, "params", len(params))
	return f
}

// GenFunction emits a function definition. A function already declared by
// an extern is reused. If the body fails to generate, the function is
// removed from the module.
func (c *Context) GenFunction(fn *Function) (*ir.Func, error) {
	proto := fn.Proto
	name := proto.Name
	if fn.IsAnonymous() {
		name = c.anonName()
	}

	f := c.LookupFunc(name)
	if f == nil {
		f = c.declare(name, proto.Params)
	} else {
		if len(f.Params) != len(proto.Params) {
			return nil, semanticErrorf(proto.Pos, "definition of %q has %d parameters but it was declared with %d",
				name, len(proto.Params), len(f.Params))
		}
		if len(f.Blocks) > 0 {
			warn := semanticErrorf(proto.Pos, "function %q cannot be redefined; replacing its previous body", name)
			c.Log.Error("function redefined", "component", "codegen", "name", name, "pos", proto.Pos.String())
			c.Warnings.Add(warn)
			f.Blocks = nil
		}
		used := make(map[string]bool)
		for i, p := range f.Params {
			unique := proto.Params[i]
			for j := 1; used[unique]; j++ {
				unique = fmt.Sprintf("%s%d", proto.Params[i], j)
			}
			used[unique] = true
			p.SetName(unique)
		}
	}

	c.beginFunction(f)
	defer c.endFunction()

	// Parameters are mutable, so each one lives in a stack slot.
	for i, param := range f.Params {
		slot := c.entryAlloca(proto.Params[i])
		c.block.NewStore(param, slot)
		c.bind(proto.Params[i], slot)
	}

	body, err := c.genExpr(fn.Body)
	if err != nil {
		c.removeFunc(f)
		return nil, err
	}
	c.block.NewRet(body)

	if err := backend.Verify(f); err != nil {
		c.removeFunc(f)
		return nil, &Error{Kind: ErrInternal, Pos: fn.Pos, Msg: err.Error()}
	}

	c.Log.Debug("generated function", "component", "codegen", "name", name, "blocks", len(f.Blocks))
	return f, nil
}

func (c *Context) genIf(n *IfExpr) (value.Value, error) {
	cond, err := c.genExpr(n.Cond)
	if err != nil {
		return nil, err
	}
	condBool := c.block.NewFCmp(enum.FPredONE, cond, zero)
	condBool.SetName(c.uniqueName("ifcond"))

	thenBB := c.newBlock("then")
	c.appendBlock(thenBB)
	elseBB := c.newBlock("else")
	mergeBB := c.newBlock("ifcont")

	c.block.NewCondBr(condBool, thenBB, elseBB)

	c.setBlock(thenBB)
	thenV, err := c.genExpr(n.Then)
	if err != nil {
		return nil, err
	}
	c.block.NewBr(mergeBB)
	// The then branch may have ended in a different block than it started.
	thenEnd := c.block

	c.appendBlock(elseBB)
	c.setBlock(elseBB)
	elseV, err := c.genExpr(n.Else)
	if err != nil {
		return nil, err
	}
	c.block.NewBr(mergeBB)
	elseEnd := c.block

	c.appendBlock(mergeBB)
	c.setBlock(mergeBB)
	phi := c.block.NewPhi(ir.NewIncoming(thenV, thenEnd), ir.NewIncoming(elseV, elseEnd))
	phi.SetName(c.uniqueName("iftmp"))
	return phi, nil
}

// genFor emits a loop that runs the body, adds step to the loop variable,
// and repeats while end is non-zero. Its value is always 0.0.
func (c *Context) genFor(n *ForExpr) (value.Value, error) {
	slot := c.entryAlloca(n.Var)

	start, err := c.genExpr(n.Start)
	if err != nil {
		return nil, err
	}
	c.block.NewStore(start, slot)

	loopBB := c.newBlock("loop")
	c.appendBlock(loopBB)
	c.block.NewBr(loopBB)
	c.setBlock(loopBB)

	if err := c.checkRedefinition(n.Pos, n.Var, "for loop variable"); err != nil {
		return nil, err
	}
	restore := c.bind(n.Var, slot)

	if _, err := c.genExpr(n.Body); err != nil {
		return nil, err
	}

	step, err := c.genExpr(n.Step)
	if err != nil {
		return nil, err
	}
	cur := c.block.NewLoad(types.Double, slot)
	cur.SetName(c.uniqueName(n.Var))
	next := c.block.NewFAdd(cur, step)
	next.SetName(c.uniqueName("nextvar"))
	c.block.NewStore(next, slot)

	end, err := c.genExpr(n.End)
	if err != nil {
		return nil, err
	}
	endBool := c.block.NewFCmp(enum.FPredONE, end, zero)
	endBool.SetName(c.uniqueName("loopcond"))

	afterBB := c.newBlock("afterloop")
	c.appendBlock(afterBB)
	c.block.NewCondBr(endBool, loopBB, afterBB)
	c.setBlock(afterBB)

	restore()
	return zero, nil
}

func (c *Context) genVar(n *VarExpr) (value.Value, error) {
	var restores []func()
	for _, b := range n.Bindings {
		if err := c.checkRedefinition(n.Pos, b.Name, "variable"); err != nil {
			return nil, err
		}

		var init value.Value = zero
		if b.Init != nil {
			v, err := c.genExpr(b.Init)
			if err != nil {
				return nil, err
			}
			init = v
		}

		slot := c.entryAlloca(b.Name)
		c.block.NewStore(init, slot)
		restores = append(restores, c.bind(b.Name, slot))
	}

	body, err := c.genExpr(n.Body)
	if err != nil {
		return nil, err
	}

	for i := len(restores) - 1; i >= 0; i-- {
		restores[i]()
	}
	return body, nil
}
