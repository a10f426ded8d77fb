package main

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

// ScopeMode selects how var and for bindings are scoped inside a function.
type ScopeMode int

const (
	// ScopeFlat keeps every binding until the function ends, and rejects a
	// second binding of the same name anywhere in the function.
	ScopeFlat ScopeMode = iota
	// ScopeLexical drops a binding when the body of its var or for ends and
	// lets inner bindings shadow outer ones.
	ScopeLexical
)

func (m ScopeMode) String() string {
	switch m {
	case ScopeFlat:
		return "flat"
	case ScopeLexical:
		return "lexical"
	default:
		return "ScopeMode(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseScopeMode converts a flag value to a ScopeMode.
func ParseScopeMode(s string) (ScopeMode, error) {
	switch s {
	case "flat":
		return ScopeFlat, nil
	case "lexical":
		return ScopeLexical, nil
	default:
		return 0, fmt.Errorf("unknown scope mode %q (want flat or lexical)", s)
	}
}

// Context is the state of one compilation: the module being built, the
// current insertion point and the slot table of the function being
// generated. Independent contexts share nothing.
type Context struct {
	Module *ir.Module
	Log    *slog.Logger
	Scope  ScopeMode

	// Errors holds diagnostics that made a construct fail. Warnings holds
	// problems that did not.
	Errors   ErrorList
	Warnings ErrorList

	fn    *ir.Func
	block *ir.Block
	slots map[string]*ir.InstAlloca
	names map[string]bool
	anon  int
}

// Option configures a Context created by NewContext.
type Option func(*Context)

// WithLogger sets the logger for diagnostics and tracing.
func WithLogger(log *slog.Logger) Option {
	return func(c *Context) { c.Log = log }
}

// WithScope sets how var and for bindings are scoped.
func WithScope(mode ScopeMode) Option {
	return func(c *Context) { c.Scope = mode }
}

// NewContext returns a context with an empty module named moduleName and a
// logger that discards output.
func NewContext(moduleName string, opts ...Option) *Context {
	m := ir.NewModule()
	m.SourceFilename = moduleName
	c := &Context{
		Module: m,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupFunc finds a function in the module by name.
func (c *Context) LookupFunc(name string) *ir.Func {
	for _, f := range c.Module.Funcs {
		if f.GlobalName == name {
			return f
		}
	}
	return nil
}

func (c *Context) removeFunc(f *ir.Func) {
	c.Module.Funcs = slices.DeleteFunc(c.Module.Funcs, func(g *ir.Func) bool { return g == f })
}

// anonName returns a fresh module-level name for a top-level expression.
func (c *Context) anonName() string {
	name := "__anon_expr"
	if c.anon > 0 {
		name += "." + strconv.Itoa(c.anon)
	}
	c.anon++
	return name
}

// beginFunction resets the per-function state and positions the builder at
// the start of entry.
func (c *Context) beginFunction(f *ir.Func) {
	c.fn = f
	c.slots = make(map[string]*ir.InstAlloca)
	c.names = make(map[string]bool)
	for _, p := range f.Params {
		c.names[p.LocalName] = true
	}
	entry := c.newBlock("entry")
	c.appendBlock(entry)
	c.setBlock(entry)
}

func (c *Context) endFunction() {
	c.fn = nil
	c.block = nil
	c.slots = nil
	c.names = nil
}

// uniqueName returns base, or base followed by the smallest number that
// makes it unused in the current function.
func (c *Context) uniqueName(base string) string {
	name := base
	for i := 1; c.names[name]; i++ {
		name = base + strconv.Itoa(i)
	}
	c.names[name] = true
	return name
}

// newBlock creates a block that is not yet attached to the function.
func (c *Context) newBlock(name string) *ir.Block {
	return ir.NewBlock(c.uniqueName(name))
}

func (c *Context) appendBlock(b *ir.Block) {
	b.Parent = c.fn
	c.fn.Blocks = append(c.fn.Blocks, b)
}

func (c *Context) setBlock(b *ir.Block) {
	c.block = b
}

// entryAlloca creates a stack slot at the top of the function's entry
// block, after any slots already there.
func (c *Context) entryAlloca(name string) *ir.InstAlloca {
	entry := c.fn.Blocks[0]
	slot := ir.NewAlloca(types.Double)
	slot.SetName(c.uniqueName(name))

	i := 0
	for i < len(entry.Insts) {
		if _, ok := entry.Insts[i].(*ir.InstAlloca); !ok {
			break
		}
		i++
	}
	entry.Insts = slices.Insert(entry.Insts, i, ir.Instruction(slot))
	return slot
}

// bind maps name to slot and returns a function that undoes the binding.
// In flat scope mode bindings are never undone.
func (c *Context) bind(name string, slot *ir.InstAlloca) (restore func()) {
	old, had := c.slots[name]
	c.slots[name] = slot
	if c.Scope == ScopeFlat {
		return func() {}
	}
	return func() {
		if had {
			c.slots[name] = old
		} else {
			delete(c.slots, name)
		}
	}
}

// checkRedefinition rejects a second binding of name in flat scope mode.
func (c *Context) checkRedefinition(pos Pos, name, what string) error {
	if c.Scope != ScopeFlat {
		return nil
	}
	if _, exists := c.slots[name]; exists {
		return semanticErrorf(pos, "redefinition of %s %q", what, name)
	}
	return nil
}
