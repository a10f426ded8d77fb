package main

import (
	"fmt"
	"io"
	"os"

	"github.com/llir/llvm/ir"

	"github.com/strager/kal/backend"
)

// Compiler runs the top-level loop: parse one construct, generate it, repeat.
type Compiler struct {
	Ctx *Context

	// OnTopLevel, if set, is called with each successfully generated
	// top-level expression.
	OnTopLevel func(f *ir.Func) error
}

func NewCompiler(ctx *Context) *Compiler {
	return &Compiler{Ctx: ctx}
}

// Compile parses and generates every construct of src into the context's
// module. Diagnostics are collected in Ctx.Errors and do not stop the loop.
// It returns Ctx.Errors.Err().
func (c *Compiler) Compile(src []byte) error {
	p := NewParser(c.Ctx, src)
	for {
		done, err := c.step(p)
		if err != nil {
			c.Ctx.Errors.Add(err)
			c.Ctx.Log.Error("compile error", "component", "driver", "err", err)
		}
		if done {
			return c.Ctx.Errors.Err()
		}
	}
}

// step handles one top-level construct. It reports done at end of input.
func (c *Compiler) step(p *Parser) (done bool, err error) {
	node, err := p.Next()
	if err != nil {
		return false, err
	}
	if node == nil {
		return true, nil
	}

	switch n := node.(type) {
	case *Prototype:
		f, err := c.Ctx.GenPrototype(n)
		if err != nil {
			return false, err
		}
		c.Ctx.Log.Debug("read extern", "component", "driver", "ir", f.LLString())
	case *Function:
		f, err := c.Ctx.GenFunction(n)
		if err != nil {
			return false, err
		}
		if !n.IsAnonymous() {
			c.Ctx.Log.Debug("read function definition", "component", "driver", "name", f.GlobalName)
			return false, nil
		}
		if c.OnTopLevel != nil {
			if err := c.OnTopLevel(f); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// Evaluator returns an OnTopLevel hook that runs each top-level expression
// once on eng and prints its value to w.
func Evaluator(eng *backend.Engine, w io.Writer) func(f *ir.Func) error {
	return func(f *ir.Func) error {
		v, err := eng.Call(f.GlobalName)
		if err != nil {
			return fmt.Errorf("evaluating %s: %w", f.GlobalName, err)
		}
		fmt.Fprintf(w, "Evaluated to %s\n", formatNumber(v))
		return nil
	}
}

// compileFile reads filename and compiles it into a new context.
func compileFile(filename string, cfg *Config, onTopLevel func(ctx *Context) func(*ir.Func) error) (*Context, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return compileSource(filename, src, cfg, onTopLevel)
}

func compileSource(name string, src []byte, cfg *Config, onTopLevel func(ctx *Context) func(*ir.Func) error) (*Context, error) {
	ctx := NewContext(name, WithLogger(cfg.Logger()), WithScope(cfg.Scope))
	comp := NewCompiler(ctx)
	if onTopLevel != nil {
		comp.OnTopLevel = onTopLevel(ctx)
	}
	err := comp.Compile(src)
	for _, w := range ctx.Warnings.Errors() {
		fmt.Fprintf(os.Stderr, "warning: %v\n", w)
	}
	return ctx, err
}
