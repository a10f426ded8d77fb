package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/llir/llvm/ir"

	"github.com/strager/kal/backend"
)

// Config is the result of command-line parsing shared by every command.
type Config struct {
	Verbose bool
	Scope   ScopeMode
	IRDump  string
	Obj     string
}

// Logger returns a text logger on stderr: Debug when verbose, Warn otherwise.
func (cfg *Config) Logger() *slog.Logger {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func addScopeFlag(fs *flag.FlagSet, cfg *Config) {
	fs.Func("scope", "Variable scoping: flat (default) or lexical", func(s string) error {
		mode, err := ParseScopeMode(s)
		if err != nil {
			return err
		}
		cfg.Scope = mode
		return nil
	})
}

func showUsage() {
	fmt.Fprintf(os.Stderr, `kal - A small expression language that compiles to LLVM IR

Usage:
    kal --src <file> [--log] [--ir-dump <file>] [--obj <file>]
    kal <command> [arguments]

Commands:
    build <file>    Compile a .kal file to LLVM IR and an object file
    run <file>      Compile a .kal file and evaluate its top-level expressions
    eval <code>     Evaluate inline kal code
    check <file>    Parse and check a .kal file without running it
    repl            Start an interactive session
    help            Show this help message

Examples:
    kal --src examples/fib.kal --ir-dump fib.ll
    kal build -o fib.o examples/fib.kal
    kal eval 'def sq(x) x*x; sq(4)'
    kal repl

Use "kal <command> -h" for more information about a command.
`)
}

// legacyCommand implements the flag-only interface: compile --src, dump the
// IR and write an object file.
func legacyCommand(args []string) {
	cfg := &Config{}
	fs := flag.NewFlagSet("kal", flag.ExitOnError)
	src := fs.String("src", "", "Source file (required)")
	fs.BoolVar(&cfg.Verbose, "log", false, "Turn on logging")
	fs.StringVar(&cfg.IRDump, "ir-dump", "ex.ll", "File for the IR dump")
	fs.StringVar(&cfg.Obj, "obj", "output.o", "File for the object code")
	addScopeFlag(fs, cfg)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kal --src <file> [--log] [--ir-dump <file>] [--obj <file>]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *src == "" {
		fmt.Fprintf(os.Stderr, "No source file provided\n")
		fs.Usage()
		os.Exit(1)
	}

	ctx, err := compileFile(*src, cfg, nil)
	if ctx == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ctx.Errors.String())
	}

	// Whatever was generated successfully is still written out.
	if err := writeOutputs(ctx.Module, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing object file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Object file written to %s\n", cfg.Obj)

	if ctx.Errors.HasErrors() {
		os.Exit(1)
	}
}

func writeOutputs(m *ir.Module, cfg *Config) error {
	if err := backend.WriteIRFile(cfg.IRDump, m); err != nil {
		return err
	}
	return backend.WriteObject(context.Background(), cfg.IRDump, cfg.Obj)
}

func buildCommand(args []string) {
	cfg := &Config{}
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	fs.StringVar(&cfg.Obj, "o", "", "Output file path (default: <filename>.o)")
	fs.StringVar(&cfg.IRDump, "ir-dump", "", "IR dump path (default: <filename>.ll)")
	fs.BoolVar(&cfg.Verbose, "v", false, "Show verbose compilation details")
	addScopeFlag(fs, cfg)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kal build [-o output] [--ir-dump file] [-v] <file>\n")
		fmt.Fprintf(os.Stderr, "Compile a .kal file to LLVM IR and an object file\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: expected exactly one file argument\n")
		fs.Usage()
		os.Exit(1)
	}

	filename := fs.Arg(0)
	base := strings.TrimSuffix(filename, ".kal")
	if cfg.Obj == "" {
		cfg.Obj = base + ".o"
	}
	if cfg.IRDump == "" {
		cfg.IRDump = base + ".ll"
	}

	if cfg.Verbose {
		fmt.Printf("Compiling %s to %s...\n", filename, cfg.Obj)
	}

	ctx, err := compileFile(filename, cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compilation failed: %v\n", err)
		os.Exit(1)
	}

	if err := writeOutputs(ctx.Module, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", cfg.Obj, err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s and %s\n", cfg.IRDump, cfg.Obj)
}

func runCommand(args []string) {
	cfg := &Config{}
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.BoolVar(&cfg.Verbose, "v", false, "Show verbose compilation details")
	addScopeFlag(fs, cfg)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kal run [-v] <file>\n")
		fmt.Fprintf(os.Stderr, "Compile a .kal file and evaluate its top-level expressions\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: expected exactly one file argument\n")
		fs.Usage()
		os.Exit(1)
	}

	if _, err := compileFile(fs.Arg(0), cfg, evaluateToStdout); err != nil {
		fmt.Fprintf(os.Stderr, "Compilation failed: %v\n", err)
		os.Exit(1)
	}
}

func evalCommand(args []string) {
	cfg := &Config{}
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	fs.BoolVar(&cfg.Verbose, "v", false, "Show verbose compilation details")
	addScopeFlag(fs, cfg)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kal eval [-v] <code>\n")
		fmt.Fprintf(os.Stderr, "Evaluate inline kal code\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: expected exactly one code argument\n")
		fs.Usage()
		os.Exit(1)
	}

	code := fs.Arg(0)
	if cfg.Verbose {
		fmt.Printf("Evaluating: %s\n", code)
	}

	if _, err := compileSource("eval", []byte(code), cfg, evaluateToStdout); err != nil {
		fmt.Fprintf(os.Stderr, "Compilation failed: %v\n", err)
		os.Exit(1)
	}
}

func checkCommand(args []string) {
	cfg := &Config{}
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	fs.BoolVar(&cfg.Verbose, "v", false, "Show verbose checking details")
	addScopeFlag(fs, cfg)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kal check [-v] <file>\n")
		fmt.Fprintf(os.Stderr, "Parse and check a .kal file without running it\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: expected exactly one file argument\n")
		fs.Usage()
		os.Exit(1)
	}

	filename := fs.Arg(0)
	src, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file %s: %v\n", filename, err)
		os.Exit(1)
	}

	// Parse alone first so syntax errors are reported without codegen noise.
	ctx := NewContext(filename, WithLogger(cfg.Logger()), WithScope(cfg.Scope))
	var errs ErrorList
	nodes := NewParser(ctx, src).ParseProgram(&errs)
	if errs.HasErrors() {
		fmt.Printf("Parsing errors in %s:\n%s\n", filename, errs.String())
		os.Exit(1)
	}

	if cfg.Verbose {
		for _, node := range nodes {
			fmt.Printf("AST: %s\n", ToSExpr(node))
		}
	}

	if _, err := compileSource(filename, src, cfg, nil); err != nil {
		fmt.Printf("Semantic errors in %s:\n%v\n", filename, err)
		os.Exit(1)
	}

	fmt.Printf("%s: no errors found\n", filename)
}

func replCommand(args []string) {
	cfg := &Config{}
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	fs.BoolVar(&cfg.Verbose, "v", false, "Show verbose compilation details")
	dumpIR := fs.Bool("ir", false, "Print the IR of each definition")
	addScopeFlag(fs, cfg)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kal repl [-v] [-ir]\n")
		fmt.Fprintf(os.Stderr, "Start an interactive session\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := runRepl(cfg, *dumpIR); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func evaluateToStdout(ctx *Context) func(*ir.Func) error {
	return Evaluator(backend.NewEngine(ctx.Module), os.Stdout)
}

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "run":
		runCommand(args)
	case "build":
		buildCommand(args)
	case "eval":
		evalCommand(args)
	case "check":
		checkCommand(args)
	case "repl":
		replCommand(args)
	case "help", "-h", "--help":
		showUsage()
	default:
		if strings.HasPrefix(command, "-") {
			legacyCommand(os.Args[1:])
			return
		}
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		showUsage()
		os.Exit(1)
	}
}
