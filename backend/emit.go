package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/llir/llvm/ir"
)

// ErrNoLLC is returned by WriteObject when no llc binary can be found.
var ErrNoLLC = errors.New("llc not found in PATH")

// LLC is the program WriteObject runs. It may be a path or a name looked up
// in PATH.
var LLC = "llc"

// WriteIR writes the textual form of m.
func WriteIR(w io.Writer, m *ir.Module) error {
	_, err := io.WriteString(w, m.String())
	return err
}

// WriteIRFile writes the textual form of m to path, replacing any existing
// file.
func WriteIRFile(path string, m *ir.Module) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteIR(f, m); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// WriteObject lowers the IR file at irPath to a native object file at
// objPath using llc.
func WriteObject(ctx context.Context, irPath, objPath string) error {
	llc, err := exec.LookPath(LLC)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoLLC, err)
	}

	cmd := exec.CommandContext(ctx, llc, "-filetype=obj", "-o", objPath, irPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("llc failed: %v\nOutput: %s", err, output)
	}
	return nil
}
