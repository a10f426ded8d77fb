package main

import (
	"errors"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/nalgeon/be"

	"github.com/strager/kal/backend"
)

func compileSrc(t *testing.T, src string, opts ...Option) (*Context, error) {
	t.Helper()
	ctx := NewContext("test", opts...)
	err := NewCompiler(ctx).Compile([]byte(src))
	return ctx, err
}

func mustCompile(t *testing.T, src string, opts ...Option) *Context {
	t.Helper()
	ctx, err := compileSrc(t, src, opts...)
	be.Err(t, err, nil)
	return ctx
}

func callFunc(t *testing.T, ctx *Context, name string, args ...float64) float64 {
	t.Helper()
	v, err := backend.NewEngine(ctx.Module).Call(name, args...)
	be.Err(t, err, nil)
	return v
}

func evalExpr(t *testing.T, src string, opts ...Option) float64 {
	t.Helper()
	ctx := mustCompile(t, src, opts...)
	return callFunc(t, ctx, "__anon_expr")
}

func funcNames(m *ir.Module) []string {
	var names []string
	for _, f := range m.Funcs {
		names = append(names, f.GlobalName)
	}
	return names
}

func countCalls(m *ir.Module) int {
	n := 0
	for _, f := range m.Funcs {
		for _, b := range f.Blocks {
			for _, inst := range b.Insts {
				if _, ok := inst.(*ir.InstCall); ok {
					n++
				}
			}
		}
	}
	return n
}

func blockNames(f *ir.Func) []string {
	var names []string
	for _, b := range f.Blocks {
		names = append(names, b.LocalName)
	}
	return names
}

func TestCodegenRoundTrip(t *testing.T) {
	ctx := mustCompile(t, "def foo(x) x + 1")
	be.Equal(t, callFunc(t, ctx, "foo", 41), 42.0)
}

func TestCodegenArithmetic(t *testing.T) {
	tests := []struct {
		src      string
		expected float64
	}{
		{"1 + 2 * 3", 7},
		{"10 - 4 - 3", 3},
		{"2.5 * 4", 10},
		{"1 : 2", 2},
		{"1 < 2", 1},
		{"2 < 1", 0},
		{"2 > 1", 1},
		{"1 > 2", 0},
		// '>' is "not less than".
		{"1 > 1", 1},
	}

	for _, test := range tests {
		t.Run(test.src, func(t *testing.T) {
			be.Equal(t, evalExpr(t, test.src), test.expected)
		})
	}
}

func TestCodegenIf(t *testing.T) {
	be.Equal(t, evalExpr(t, "if 1 < 2 then 10 else 20"), 10.0)
	be.Equal(t, evalExpr(t, "if 2 < 1 then 10 else 20"), 20.0)

	ctx := mustCompile(t, "def sel(a b) if a then (if b then 1 else 2) else 3")
	be.Equal(t, callFunc(t, ctx, "sel", 1, 1), 1.0)
	be.Equal(t, callFunc(t, ctx, "sel", 1, 0), 2.0)
	be.Equal(t, callFunc(t, ctx, "sel", 0, 1), 3.0)
}

func TestCodegenIfBlocks(t *testing.T) {
	ctx := mustCompile(t, "def f(x) if x then 1 else 2")
	f := ctx.LookupFunc("f")
	be.Equal(t, blockNames(f), []string{"entry", "then", "else", "ifcont"})

	merge := f.Blocks[3]
	phi, ok := merge.Insts[0].(*ir.InstPhi)
	be.True(t, ok)
	be.Equal(t, phi.LocalName, "iftmp")
	be.Equal(t, len(phi.Incs), 2)
	be.True(t, phi.Incs[0].Pred == f.Blocks[1])
	be.True(t, phi.Incs[1].Pred == f.Blocks[2])
}

func TestCodegenNestedIfUsesCurrentBlockForPhi(t *testing.T) {
	ctx := mustCompile(t, "def f(a b) if a then (if b then 1 else 2) else 3")
	f := ctx.LookupFunc("f")
	be.Equal(t, blockNames(f), []string{"entry", "then", "then1", "else1", "ifcont1", "else", "ifcont"})

	// The outer phi's then edge comes from the inner merge block.
	outer := f.Blocks[6].Insts[0].(*ir.InstPhi)
	be.True(t, outer.Incs[0].Pred == f.Blocks[4])
	be.True(t, outer.Incs[1].Pred == f.Blocks[5])
	be.Err(t, backend.Verify(f), nil)
}

func TestCodegenUniqueLocalNames(t *testing.T) {
	ctx := mustCompile(t, "def f(x) (if x then 1 else 2) + (if x then 3 else 4)")
	f := ctx.LookupFunc("f")
	be.Equal(t, blockNames(f), []string{"entry", "then", "else", "ifcont", "then1", "else1", "ifcont1"})
	be.Equal(t, callFunc(t, ctx, "f", 1), 4.0)
	be.Equal(t, callFunc(t, ctx, "f", 0), 6.0)
}

func TestCodegenFor(t *testing.T) {
	be.Equal(t, evalExpr(t, "for i = 1, i < 4, 1.0 in i"), 0.0)

	var seen []float64
	ctx := mustCompile(t, "extern record(x); def loop() for i = 1, i < 4, 1 in record(i)")
	eng := backend.NewEngine(ctx.Module)
	eng.Externs["record"] = func(_ *backend.Engine, args []float64) float64 {
		seen = append(seen, args[0])
		return 0
	}
	v, err := eng.Call("loop")
	be.Err(t, err, nil)
	be.Equal(t, v, 0.0)
	be.Equal(t, seen, []float64{1, 2, 3})

	f := ctx.LookupFunc("loop")
	be.Equal(t, blockNames(f), []string{"entry", "loop", "afterloop"})
}

func TestCodegenVar(t *testing.T) {
	be.Equal(t, evalExpr(t, "var x = 1, y = 2 in x + y"), 3.0)
	be.Equal(t, evalExpr(t, "var x in x"), 0.0)
	// Later initializers see earlier bindings.
	be.Equal(t, evalExpr(t, "var a = 2, b = a * 3 in b"), 6.0)
}

func TestCodegenAssignment(t *testing.T) {
	ctx := mustCompile(t, "def f(a) var b in a = b = a + 1 : a * b")
	be.Equal(t, callFunc(t, ctx, "f", 3), 16.0)

	ctx = mustCompile(t, "def sum(n) var acc in (for i = 1, i < n + 1, 1 in acc = acc + i) : acc")
	be.Equal(t, callFunc(t, ctx, "sum", 10), 55.0)
}

func TestCodegenRecursion(t *testing.T) {
	ctx := mustCompile(t, "def fib(x) if x < 3 then 1 else fib(x-1) + fib(x-2)")
	be.Equal(t, callFunc(t, ctx, "fib", 10), 55.0)
}

func TestCodegenAllocasAtEntryStart(t *testing.T) {
	ctx := mustCompile(t, "def f(x) var a = 1 in for i = 1, i < 3, 1 in a = a + i")
	entry := ctx.LookupFunc("f").Blocks[0]

	allocas := 0
	for _, inst := range entry.Insts {
		if _, ok := inst.(*ir.InstAlloca); !ok {
			break
		}
		allocas++
	}
	be.Equal(t, allocas, 3)
	for _, inst := range entry.Insts[allocas:] {
		_, ok := inst.(*ir.InstAlloca)
		be.True(t, !ok)
	}
}

func TestCodegenUnknownFunction(t *testing.T) {
	ctx, err := compileSrc(t, "foo(1)")
	be.Err(t, err, `unknown function referenced "foo"`)
	be.True(t, errors.Is(err, ErrSemantic))
	be.Equal(t, countCalls(ctx.Module), 0)
	be.Equal(t, len(ctx.Module.Funcs), 0)
}

func TestCodegenArityMismatch(t *testing.T) {
	ctx, err := compileSrc(t, "def f(a) a; f(1, 2)")
	be.Err(t, err, `incorrect number of arguments passed to "f": want 1, got 2`)
	be.Equal(t, countCalls(ctx.Module), 0)
	be.Equal(t, funcNames(ctx.Module), []string{"f"})
}

func TestCodegenFailedArgumentEmitsNoCall(t *testing.T) {
	ctx, err := compileSrc(t, "def f(a) a; def g() f(nope)")
	be.Err(t, err, `unknown variable name "nope"`)
	be.Equal(t, countCalls(ctx.Module), 0)
	be.Equal(t, funcNames(ctx.Module), []string{"f"})
}

func TestCodegenUnknownVariable(t *testing.T) {
	ctx, err := compileSrc(t, "def good() 1; def bad() y; good()")
	be.Err(t, err, `unknown variable name "y"`)
	be.Equal(t, ctx.Errors.Len(), 1)
	be.Equal(t, funcNames(ctx.Module), []string{"good", "__anon_expr"})
	be.Equal(t, callFunc(t, ctx, "__anon_expr"), 1.0)
}

func TestCodegenAssignToNonVariable(t *testing.T) {
	_, err := compileSrc(t, "def f(a) 1 = a")
	be.Err(t, err, "destination of '=' must be a variable")

	_, err = compileSrc(t, "def f(a) b = a")
	be.Err(t, err, `unknown variable name "b"`)
}

func TestCodegenInvalidOperator(t *testing.T) {
	ctx := NewContext("test")
	p := NewParser(ctx, []byte("def f(a b) a / b"))
	p.SetPrecedence('/', 50)
	node, err := p.Next()
	be.Err(t, err, nil)

	_, err = ctx.Generate(node)
	be.Err(t, err, "invalid binary operator '/'")
	be.Equal(t, len(ctx.Module.Funcs), 0)
}

func TestCodegenForRedefinition(t *testing.T) {
	_, err := compileSrc(t, "def f(i) for i = 1, i < 2, 1 in i")
	be.Err(t, err, `redefinition of for loop variable "i"`)

	ctx := mustCompile(t, "def f(i) (for i = 1, i < 2, 1 in i) : i", WithScope(ScopeLexical))
	be.Equal(t, callFunc(t, ctx, "f", 7), 7.0)
}

func TestCodegenVarRedefinition(t *testing.T) {
	_, err := compileSrc(t, "def f(x) var x = 1 in x")
	be.Err(t, err, `redefinition of variable "x"`)

	_, err = compileSrc(t, "var a = 1 in (var a = 2 in a)")
	be.Err(t, err, `redefinition of variable "a"`)

	ctx := mustCompile(t, "def f(x) var x = 1 in x", WithScope(ScopeLexical))
	be.Equal(t, callFunc(t, ctx, "f", 5), 1.0)
}

func TestCodegenFlatScopeKeepsBindings(t *testing.T) {
	be.Equal(t, evalExpr(t, "(var a = 1 in a) : a"), 1.0)

	_, err := compileSrc(t, "(var a = 1 in a) : a", WithScope(ScopeLexical))
	be.Err(t, err, `unknown variable name "a"`)
}

func TestCodegenLexicalShadowingRestores(t *testing.T) {
	src := "def f(x) (var x = x + 1 in x * 10) + x"
	ctx := mustCompile(t, src, WithScope(ScopeLexical))
	be.Equal(t, callFunc(t, ctx, "f", 1), 21.0)
}

func TestCodegenExternThenDefine(t *testing.T) {
	ctx := mustCompile(t, "extern f(a); def f(b) b * 2; f(4)")
	be.Equal(t, funcNames(ctx.Module), []string{"f", "__anon_expr"})
	be.Equal(t, ctx.LookupFunc("f").Params[0].LocalName, "b")
	be.Equal(t, callFunc(t, ctx, "__anon_expr"), 8.0)
}

func TestCodegenExternArityMismatch(t *testing.T) {
	ctx, err := compileSrc(t, "extern f(a); def f(a b) a")
	be.Err(t, err, `definition of "f" has 2 parameters but it was declared with 1`)
	be.Equal(t, funcNames(ctx.Module), []string{"f"})
	be.Equal(t, len(ctx.LookupFunc("f").Blocks), 0)
}

func TestCodegenRepeatedExtern(t *testing.T) {
	ctx := mustCompile(t, "extern sin(x); extern sin(y); def f(x) x; extern f(a); sin(0) + f(2)")
	be.Equal(t, funcNames(ctx.Module), []string{"sin", "f", "__anon_expr"})
	be.True(t, len(ctx.LookupFunc("f").Blocks) > 0)
	be.Equal(t, callFunc(t, ctx, "__anon_expr"), 2.0)
}

func TestCodegenExternConflictsWithDeclaration(t *testing.T) {
	ctx, err := compileSrc(t, "extern sin(x); extern sin(x y); def f(x) x; extern f(a b)")
	be.Err(t, err, `declaration of "sin" has 2 parameters but it was declared with 1`)
	be.Err(t, err, `declaration of "f" has 2 parameters but it was declared with 1`)
	be.Equal(t, ctx.Errors.Len(), 2)
	be.Equal(t, funcNames(ctx.Module), []string{"sin", "f"})
	be.Equal(t, len(ctx.LookupFunc("sin").Params), 1)
}

func TestCodegenRedefinitionReplacesBody(t *testing.T) {
	ctx := mustCompile(t, "def f() 1; def f() 2; f()")
	be.Equal(t, ctx.Warnings.Len(), 1)
	be.Err(t, ctx.Warnings.Err(), `function "f" cannot be redefined`)
	be.Equal(t, funcNames(ctx.Module), []string{"f", "__anon_expr"})
	be.Equal(t, callFunc(t, ctx, "__anon_expr"), 2.0)
}

func TestCodegenAnonymousNames(t *testing.T) {
	ctx := mustCompile(t, "1; 2; 3")
	be.Equal(t, funcNames(ctx.Module), []string{"__anon_expr", "__anon_expr.1", "__anon_expr.2"})
	be.Equal(t, callFunc(t, ctx, "__anon_expr.2"), 3.0)
}

func TestCodegenDuplicateParameterNames(t *testing.T) {
	ctx := mustCompile(t, "def f(a a) a")
	f := ctx.LookupFunc("f")
	be.Equal(t, f.Params[0].LocalName, "a")
	be.Equal(t, f.Params[1].LocalName, "a1")
	// The later binding of a wins.
	be.Equal(t, callFunc(t, ctx, "f", 1, 2), 2.0)
}

func TestCodegenEveryFunctionVerifies(t *testing.T) {
	ctx := mustCompile(t, `
def fib(x) if x < 3 then 1 else fib(x-1) + fib(x-2)
def loop(n) var acc in (for i = 0, i < n, 1 in acc = acc + fib(i)) : acc
extern sin(x)
loop(5) + sin(0)
`)
	for _, f := range ctx.Module.Funcs {
		be.Err(t, backend.Verify(f), nil)
	}
	be.Equal(t, callFunc(t, ctx, "__anon_expr"), 8.0)
}

func TestCodegenIdempotent(t *testing.T) {
	src := "extern putchard(c); def f(x) var y = x in for i = 0, i < 3, 1 in y = y * 2; if f(1) < 2 then 1 else putchard(65)"
	a := mustCompile(t, src)
	b := mustCompile(t, src)
	be.Equal(t, a.Module.String(), b.Module.String())
}

func TestGenerateExpressionOutsideFunction(t *testing.T) {
	ctx := NewContext("test")
	_, err := ctx.Generate(&NumberExpr{Val: 1})
	be.True(t, errors.Is(err, ErrInternal))
}

type bogusNode struct{}

func (bogusNode) Position() Pos { return Pos{} }
func (bogusNode) node()         {}

func TestGenerateUnknownNodePanics(t *testing.T) {
	defer func() {
		be.True(t, recover() != nil)
	}()
	ctx := NewContext("test")
	ctx.Generate(bogusNode{})
}
