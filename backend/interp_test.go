package backend

import (
	"bytes"
	"math"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/nalgeon/be"
)

func TestEngineArithmetic(t *testing.T) {
	m := ir.NewModule()
	x := ir.NewParam("x", types.Double)
	y := ir.NewParam("y", types.Double)
	f := m.NewFunc("f", types.Double, x, y)
	entry := f.NewBlock("entry")
	sum := entry.NewFAdd(x, y)
	diff := entry.NewFSub(sum, double(1))
	prod := entry.NewFMul(diff, y)
	entry.NewRet(entry.NewFDiv(prod, double(2)))

	v, err := NewEngine(m).Call("f", 3, 4)
	be.Err(t, err, nil)
	be.Equal(t, v, 12.0)
}

func TestEnginePhiFollowsEdge(t *testing.T) {
	m, _ := buildSelect()
	eng := NewEngine(m)

	v, err := eng.Call("select", 1)
	be.Err(t, err, nil)
	be.Equal(t, v, 1.0)

	v, err = eng.Call("select", 0)
	be.Err(t, err, nil)
	be.Equal(t, v, 2.0)
}

func TestEngineStackSlots(t *testing.T) {
	// Counts x down to zero through a stack slot and returns the number of
	// iterations.
	m := ir.NewModule()
	x := ir.NewParam("x", types.Double)
	f := m.NewFunc("count", types.Double, x)
	entry := f.NewBlock("entry")
	loop := f.NewBlock("loop")
	done := f.NewBlock("done")

	n := entry.NewAlloca(types.Double)
	acc := entry.NewAlloca(types.Double)
	entry.NewStore(x, n)
	entry.NewStore(double(0), acc)
	entry.NewBr(loop)

	cur := loop.NewLoad(types.Double, n)
	loop.NewStore(loop.NewFSub(cur, double(1)), n)
	loop.NewStore(loop.NewFAdd(loop.NewLoad(types.Double, acc), double(1)), acc)
	more := loop.NewFCmp(enum.FPredOGT, loop.NewLoad(types.Double, n), double(0))
	loop.NewCondBr(more, loop, done)

	done.NewRet(done.NewLoad(types.Double, acc))

	v, err := NewEngine(m).Call("count", 5)
	be.Err(t, err, nil)
	be.Equal(t, v, 5.0)
}

func TestEngineExterns(t *testing.T) {
	m := ir.NewModule()
	putchard := m.NewFunc("putchard", types.Double, ir.NewParam("c", types.Double))
	printd := m.NewFunc("printd", types.Double, ir.NewParam("x", types.Double))
	f := m.NewFunc("main", types.Double)
	entry := f.NewBlock("entry")
	entry.NewCall(putchard, double('H'))
	entry.NewCall(putchard, double('\n'))
	entry.NewCall(printd, double(1.5))
	entry.NewRet(double(0))

	var out bytes.Buffer
	eng := NewEngine(m)
	eng.Stdout = &out
	_, err := eng.Call("main")
	be.Err(t, err, nil)
	be.Equal(t, out.String(), "H\n1.500000\n")
}

func TestEngineCustomExtern(t *testing.T) {
	m := ir.NewModule()
	twice := m.NewFunc("twice", types.Double, ir.NewParam("x", types.Double))
	f := m.NewFunc("f", types.Double)
	entry := f.NewBlock("entry")
	entry.NewRet(entry.NewCall(twice, double(21)))

	eng := NewEngine(m)
	eng.Externs["twice"] = func(_ *Engine, args []float64) float64 { return args[0] * 2 }
	v, err := eng.Call("f")
	be.Err(t, err, nil)
	be.Equal(t, v, 42.0)

	// Other engines keep the defaults.
	_, ok := NewEngine(m).Externs["twice"]
	be.True(t, !ok)
}

func TestEngineErrors(t *testing.T) {
	m := ir.NewModule()
	mystery := m.NewFunc("mystery", types.Double)
	x := ir.NewParam("x", types.Double)
	id := m.NewFunc("id", types.Double, x)
	id.NewBlock("entry").NewRet(x)
	f := m.NewFunc("f", types.Double)
	entry := f.NewBlock("entry")
	entry.NewRet(entry.NewCall(mystery))
	neg := m.NewFunc("neg", types.Double, ir.NewParam("y", types.Double))
	negEntry := neg.NewBlock("entry")
	negEntry.NewRet(negEntry.NewFNeg(neg.Params[0]))

	eng := NewEngine(m)
	_, err := eng.Call("nope")
	be.Err(t, err, ErrNoFunction)

	_, err = eng.Call("id")
	be.Err(t, err, ErrArity)

	_, err = eng.Call("f")
	be.Err(t, err, ErrNoExtern)

	_, err = eng.Call("neg", 1)
	be.Err(t, err, ErrUnsupported)
}

func TestEngineStackDepth(t *testing.T) {
	m := ir.NewModule()
	x := ir.NewParam("x", types.Double)
	f := m.NewFunc("forever", types.Double, x)
	entry := f.NewBlock("entry")
	entry.NewRet(entry.NewCall(f, x))

	eng := NewEngine(m)
	eng.MaxDepth = 50
	_, err := eng.Call("forever", 1)
	be.Err(t, err, ErrStackDepth)

	// The depth is reset for the next call.
	_, err = eng.Call("forever", 1)
	be.Err(t, err, ErrStackDepth)
	be.Equal(t, eng.depth, 0)
}

func TestEngineStepLimit(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("spin", types.Double)
	entry := f.NewBlock("entry")
	loop := f.NewBlock("loop")
	entry.NewBr(loop)
	loop.NewFAdd(double(1), double(1))
	loop.NewBr(loop)

	eng := NewEngine(m)
	eng.MaxSteps = 100
	_, err := eng.Call("spin")
	be.Err(t, err, ErrStepLimit)
}

func TestCompareNaN(t *testing.T) {
	nan := math.NaN()
	be.True(t, compare(enum.FPredULT, nan, 1))
	be.True(t, compare(enum.FPredUGE, nan, 1))
	be.True(t, !compare(enum.FPredOLT, nan, 1))
	be.True(t, !compare(enum.FPredONE, nan, 0))
	be.True(t, compare(enum.FPredUNE, nan, 0))
	be.True(t, compare(enum.FPredUGE, 1, 1))
	be.True(t, !compare(enum.FPredULT, 1, 1))
}
