package backend

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/value"
)

var (
	ErrNoFunction  = errors.New("no such function")
	ErrNoExtern    = errors.New("unresolved external function")
	ErrArity       = errors.New("wrong number of arguments")
	ErrStackDepth  = errors.New("call depth limit exceeded")
	ErrStepLimit   = errors.New("step limit exceeded")
	ErrUnsupported = errors.New("unsupported instruction")
	ErrUndefined   = errors.New("read of a value before it was defined")
)

// Extern is a host function callable from IR by its declared name.
type Extern func(e *Engine, args []float64) float64

// DefaultExterns returns the host functions every engine starts with.
func DefaultExterns() map[string]Extern {
	return map[string]Extern{
		"putchard": func(e *Engine, args []float64) float64 {
			fmt.Fprintf(e.Stdout, "%c", rune(args[0]))
			return 0
		},
		"printd": func(e *Engine, args []float64) float64 {
			fmt.Fprintf(e.Stdout, "%f\n", args[0])
			return 0
		},
		"sin":  func(_ *Engine, args []float64) float64 { return math.Sin(args[0]) },
		"cos":  func(_ *Engine, args []float64) float64 { return math.Cos(args[0]) },
		"sqrt": func(_ *Engine, args []float64) float64 { return math.Sqrt(args[0]) },
	}
}

// Engine executes functions of a module whose values are all doubles. It
// stands in for a JIT: functions with a body are interpreted, declarations
// resolve to Externs.
type Engine struct {
	Module  *ir.Module
	Externs map[string]Extern
	Stdout  io.Writer

	// MaxDepth bounds the call stack and MaxSteps the number of executed
	// instructions per Call. Zero means no limit.
	MaxDepth int
	MaxSteps int

	depth int
	steps int
}

func NewEngine(m *ir.Module) *Engine {
	return &Engine{
		Module:   m,
		Externs:  DefaultExterns(),
		Stdout:   os.Stdout,
		MaxDepth: 10000,
		MaxSteps: 50_000_000,
	}
}

// Call runs the named function with args and returns its result.
func (e *Engine) Call(name string, args ...float64) (float64, error) {
	f := e.lookup(name)
	if f == nil {
		return 0, fmt.Errorf("%w: @%s", ErrNoFunction, name)
	}
	e.depth = 0
	e.steps = 0
	return e.call(f, args)
}

func (e *Engine) lookup(name string) *ir.Func {
	for _, f := range e.Module.Funcs {
		if f.GlobalName == name {
			return f
		}
	}
	return nil
}

func (e *Engine) call(f *ir.Func, args []float64) (float64, error) {
	if len(args) != len(f.Params) {
		return 0, fmt.Errorf("%w: @%s takes %d, got %d", ErrArity, f.GlobalName, len(f.Params), len(args))
	}

	if len(f.Blocks) == 0 {
		ext, ok := e.Externs[f.GlobalName]
		if !ok {
			return 0, fmt.Errorf("%w: @%s", ErrNoExtern, f.GlobalName)
		}
		return ext(e, args), nil
	}

	if e.MaxDepth > 0 && e.depth >= e.MaxDepth {
		return 0, fmt.Errorf("%w (%d) calling @%s", ErrStackDepth, e.MaxDepth, f.GlobalName)
	}
	e.depth++
	defer func() { e.depth-- }()

	fr := &frame{
		values: make(map[value.Value]float64),
		slots:  make(map[*ir.InstAlloca]float64),
	}
	for i, p := range f.Params {
		fr.values[p] = args[i]
	}

	var prev *ir.Block
	block := f.Blocks[0]
	for {
		if err := e.runPhis(fr, block, prev); err != nil {
			return 0, fmt.Errorf("@%s: %w", f.GlobalName, err)
		}
		for _, inst := range block.Insts {
			if _, ok := inst.(*ir.InstPhi); ok {
				continue
			}
			if err := e.step(); err != nil {
				return 0, err
			}
			if err := e.exec(fr, inst); err != nil {
				return 0, fmt.Errorf("@%s: %w", f.GlobalName, err)
			}
		}

		switch term := block.Term.(type) {
		case *ir.TermRet:
			if term.X == nil {
				return 0, nil
			}
			return fr.get(term.X)
		case *ir.TermBr:
			prev, block = block, term.Succs()[0]
		case *ir.TermCondBr:
			cond, err := fr.get(term.Cond)
			if err != nil {
				return 0, fmt.Errorf("@%s: %w", f.GlobalName, err)
			}
			succs := term.Succs()
			if cond != 0 {
				prev, block = block, succs[0]
			} else {
				prev, block = block, succs[1]
			}
		default:
			return 0, fmt.Errorf("@%s: %w: terminator %T", f.GlobalName, ErrUnsupported, block.Term)
		}
	}
}

func (e *Engine) step() error {
	e.steps++
	if e.MaxSteps > 0 && e.steps > e.MaxSteps {
		return fmt.Errorf("%w (%d)", ErrStepLimit, e.MaxSteps)
	}
	return nil
}

// runPhis evaluates every phi at the start of block as one parallel
// assignment, selecting the edge taken from prev.
func (e *Engine) runPhis(fr *frame, block, prev *ir.Block) error {
	type assign struct {
		phi *ir.InstPhi
		v   float64
	}
	var pending []assign
	for _, inst := range block.Insts {
		phi, ok := inst.(*ir.InstPhi)
		if !ok {
			break
		}
		var (
			v     float64
			found bool
		)
		for _, inc := range phi.Incs {
			if inc.Pred == prev {
				var err error
				if v, err = fr.get(inc.X); err != nil {
					return err
				}
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("phi %%%s has no edge from the previous block", phi.LocalName)
		}
		pending = append(pending, assign{phi, v})
	}
	for _, a := range pending {
		fr.values[a.phi] = a.v
	}
	return nil
}

func (e *Engine) exec(fr *frame, inst ir.Instruction) error {
	switch inst := inst.(type) {
	case *ir.InstAlloca:
		fr.slots[inst] = 0
	case *ir.InstLoad:
		slot, ok := inst.Src.(*ir.InstAlloca)
		if !ok {
			return fmt.Errorf("%w: load from %T", ErrUnsupported, inst.Src)
		}
		fr.values[inst] = fr.slots[slot]
	case *ir.InstStore:
		slot, ok := inst.Dst.(*ir.InstAlloca)
		if !ok {
			return fmt.Errorf("%w: store to %T", ErrUnsupported, inst.Dst)
		}
		v, err := fr.get(inst.Src)
		if err != nil {
			return err
		}
		fr.slots[slot] = v
	case *ir.InstFAdd:
		return fr.binary(inst, inst.X, inst.Y, func(x, y float64) float64 { return x + y })
	case *ir.InstFSub:
		return fr.binary(inst, inst.X, inst.Y, func(x, y float64) float64 { return x - y })
	case *ir.InstFMul:
		return fr.binary(inst, inst.X, inst.Y, func(x, y float64) float64 { return x * y })
	case *ir.InstFDiv:
		return fr.binary(inst, inst.X, inst.Y, func(x, y float64) float64 { return x / y })
	case *ir.InstFCmp:
		return fr.binary(inst, inst.X, inst.Y, func(x, y float64) float64 {
			if compare(inst.Pred, x, y) {
				return 1
			}
			return 0
		})
	case *ir.InstUIToFP:
		v, err := fr.get(inst.From)
		if err != nil {
			return err
		}
		fr.values[inst] = v
	case *ir.InstCall:
		callee, ok := inst.Callee.(*ir.Func)
		if !ok {
			return fmt.Errorf("%w: indirect call", ErrUnsupported)
		}
		args := make([]float64, len(inst.Args))
		for i, arg := range inst.Args {
			v, err := fr.get(arg)
			if err != nil {
				return err
			}
			args[i] = v
		}
		v, err := e.call(callee, args)
		if err != nil {
			return err
		}
		fr.values[inst] = v
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, inst)
	}
	return nil
}

// compare implements the LLVM floating-point predicates. Unordered
// predicates are true when either operand is NaN.
func compare(pred enum.FPred, x, y float64) bool {
	unordered := math.IsNaN(x) || math.IsNaN(y)
	switch pred {
	case enum.FPredFalse:
		return false
	case enum.FPredTrue:
		return true
	case enum.FPredOEQ:
		return !unordered && x == y
	case enum.FPredOGT:
		return !unordered && x > y
	case enum.FPredOGE:
		return !unordered && x >= y
	case enum.FPredOLT:
		return !unordered && x < y
	case enum.FPredOLE:
		return !unordered && x <= y
	case enum.FPredONE:
		return !unordered && x != y
	case enum.FPredORD:
		return !unordered
	case enum.FPredUEQ:
		return unordered || x == y
	case enum.FPredUGT:
		return unordered || x > y
	case enum.FPredUGE:
		return unordered || x >= y
	case enum.FPredULT:
		return unordered || x < y
	case enum.FPredULE:
		return unordered || x <= y
	case enum.FPredUNE:
		return unordered || x != y
	case enum.FPredUNO:
		return unordered
	default:
		return false
	}
}

// frame is the state of one activation: SSA values and stack slots.
type frame struct {
	values map[value.Value]float64
	slots  map[*ir.InstAlloca]float64
}

func (fr *frame) get(v value.Value) (float64, error) {
	switch v := v.(type) {
	case *constant.Float:
		f, _ := v.X.Float64()
		return f, nil
	case *constant.Int:
		return float64(v.X.Int64()), nil
	}
	x, ok := fr.values[v]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUndefined, v.Ident())
	}
	return x, nil
}

func (fr *frame) binary(dst value.Value, x, y value.Value, op func(x, y float64) float64) error {
	a, err := fr.get(x)
	if err != nil {
		return err
	}
	b, err := fr.get(y)
	if err != nil {
		return err
	}
	fr.values[dst] = op(a, b)
	return nil
}
