package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/peterh/liner"

	"github.com/strager/kal/backend"
)

const (
	historyFile = ".kal_history"
	promptMain  = "ready> "
	promptCont  = "  ...> "
)

// Session is a persistent interactive compilation: definitions from earlier
// inputs stay visible to later ones.
type Session struct {
	ctx    *Context
	comp   *Compiler
	eng    *backend.Engine
	out    io.Writer
	dumpIR bool
}

func NewSession(cfg *Config, out io.Writer) *Session {
	ctx := NewContext("repl", WithLogger(cfg.Logger()), WithScope(cfg.Scope))
	eng := backend.NewEngine(ctx.Module)
	eng.Stdout = out
	s := &Session{ctx: ctx, comp: NewCompiler(ctx), eng: eng, out: out}
	s.comp.OnTopLevel = Evaluator(eng, out)
	return s
}

// Eval compiles src into the session and evaluates its top-level
// expressions. It returns the diagnostics of this input only.
func (s *Session) Eval(src string) error {
	s.ctx.Errors = ErrorList{}
	s.ctx.Warnings = ErrorList{}
	before := len(s.ctx.Module.Funcs)

	err := s.comp.Compile([]byte(src))

	for _, w := range s.ctx.Warnings.Errors() {
		fmt.Fprintf(s.out, "warning: %v\n", w)
	}
	if s.dumpIR {
		for _, f := range s.ctx.Module.Funcs[min(before, len(s.ctx.Module.Funcs)):] {
			if !strings.HasPrefix(f.GlobalName, "__anon_expr") {
				fmt.Fprintln(s.out, f.LLString())
			}
		}
	}
	return err
}

// Module returns the module built so far.
func (s *Session) Module() *ir.Module {
	return s.ctx.Module
}

// isIncomplete reports whether src stops in the middle of a construct, so
// the REPL should read another line before compiling it.
func isIncomplete(src string) bool {
	var errs ErrorList
	NewParser(NewContext("probe"), []byte(src)).ParseProgram(&errs)
	for _, err := range errs.Errors() {
		if IsIncomplete(err) {
			return true
		}
	}
	return false
}

func runRepl(cfg *Config, dumpIR bool) error {
	fmt.Println("kal interactive session. Type :quit to exit, :ir to print the module.")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	s := NewSession(cfg, os.Stdout)
	s.dumpIR = dumpIR

	for {
		code, ok := readByParseProbe(ln)
		if !ok {
			fmt.Println()
			return nil
		}

		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, ":") {
			switch strings.ToLower(trimmed) {
			case ":quit", ":q":
				return nil
			case ":ir":
				if err := backend.WriteIR(os.Stdout, s.Module()); err != nil {
					return err
				}
			default:
				fmt.Println("unknown command. Type :quit to exit.")
			}
			continue
		}

		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
		if err := s.Eval(code); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// readByParseProbe reads lines until they form complete constructs. It
// returns false at end of input.
func readByParseProbe(ln *liner.State) (string, bool) {
	var b strings.Builder

	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			// Ctrl-C drops the pending input.
			b.Reset()
			continue
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if !isIncomplete(src) {
			return src, true
		}
	}
}
