// Package backend holds the collaborators that consume a finished LLVM IR
// module: a structural verifier, an interpreter, and writers for the textual
// dump and for object files.
package backend

import (
	"fmt"

	"github.com/llir/llvm/ir"
)

// VerifyError describes the first structural problem found in a function.
type VerifyError struct {
	Func  string
	Block string
	Msg   string
}

func (e *VerifyError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("verify @%s: %s", e.Func, e.Msg)
	}
	return fmt.Sprintf("verify @%s, block %%%s: %s", e.Func, e.Block, e.Msg)
}

// Verify checks the control-flow structure of a defined function. A
// declaration (no blocks) is always valid.
func Verify(f *ir.Func) error {
	if len(f.Blocks) == 0 {
		return nil
	}

	fail := func(b *ir.Block, format string, args ...any) error {
		e := &VerifyError{Func: f.GlobalName, Msg: fmt.Sprintf(format, args...)}
		if b != nil {
			e.Block = b.LocalName
		}
		return e
	}

	owned := make(map[*ir.Block]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		if owned[b] {
			return fail(b, "block appears twice")
		}
		owned[b] = true
	}

	preds := make(map[*ir.Block][]*ir.Block)
	for _, b := range f.Blocks {
		if b.Term == nil {
			return fail(b, "block has no terminator")
		}
		for _, succ := range b.Term.Succs() {
			if !owned[succ] {
				return fail(b, "branch to a block outside the function")
			}
			preds[succ] = append(preds[succ], b)
		}
		if ret, ok := b.Term.(*ir.TermRet); ok {
			if ret.X == nil {
				return fail(b, "ret without a value in a function returning %s", f.Sig.RetType)
			}
			if !ret.X.Type().Equal(f.Sig.RetType) {
				return fail(b, "ret of %s in a function returning %s", ret.X.Type(), f.Sig.RetType)
			}
		}
	}

	if entry := f.Blocks[0]; len(preds[entry]) > 0 {
		return fail(entry, "entry block has predecessors")
	}

	for _, b := range f.Blocks {
		seenNonPhi := false
		for _, inst := range b.Insts {
			phi, ok := inst.(*ir.InstPhi)
			if !ok {
				seenNonPhi = true
				continue
			}
			if seenNonPhi {
				return fail(b, "phi %%%s is not at the start of its block", phi.LocalName)
			}
			if err := verifyPhi(phi, preds[b]); err != nil {
				return fail(b, "phi %%%s: %v", phi.LocalName, err)
			}
		}
	}
	return nil
}

// verifyPhi checks that phi has exactly one incoming edge per predecessor.
func verifyPhi(phi *ir.InstPhi, preds []*ir.Block) error {
	if len(phi.Incs) != len(preds) {
		return fmt.Errorf("%d incoming values but %d predecessors", len(phi.Incs), len(preds))
	}
	for _, inc := range phi.Incs {
		found := false
		for _, pred := range preds {
			if inc.Pred == pred {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("incoming block %s is not a predecessor", inc.Pred.Ident())
		}
		if !inc.X.Type().Equal(phi.Type()) {
			return fmt.Errorf("incoming value of type %s, want %s", inc.X.Type(), phi.Type())
		}
	}
	return nil
}
