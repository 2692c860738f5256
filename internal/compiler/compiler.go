// Package compiler turns source fragments into compiled artifacts for
// disassembly. It drives an external C toolchain in two steps so a hook can
// inspect or rewrite the intermediate assembly before code generation.
package compiler

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
)

// Phase is the last compilation step to run.
type Phase int

const (
	// PhaseObject runs the full pipeline and yields an object file.
	PhaseObject Phase = iota
	// PhaseAssembly stops after the front-end and yields assembly text.
	PhaseAssembly
)

func (p Phase) String() string {
	switch p {
	case PhaseObject:
		return "object"
	case PhaseAssembly:
		return "assembly"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ParsePhase parses the names produced by Phase.String.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "", "object", "obj":
		return PhaseObject, nil
	case "assembly", "asm":
		return PhaseAssembly, nil
	default:
		return 0, errors.Newf("unknown phase %q", s)
	}
}

// Hook sees the front-end's assembly output once, before code generation,
// and returns the assembly to continue with.
type Hook func(asm []byte) ([]byte, error)

// Result is a compiled artifact.
type Result struct {
	Code  []byte // object bytes, or assembly text for PhaseAssembly
	Path  string // on-disk artifact, valid until Cleanup
	Phase Phase
	Dir   string // work dir owned by the result, removed by Cleanup
}

// Cleanup removes the work dir behind the result. It is safe to call on a
// result without one.
func (r *Result) Cleanup() error {
	if r == nil || r.Dir == "" {
		return nil
	}
	err := os.RemoveAll(r.Dir)
	r.Dir = ""
	return err
}

// Compiler compiles a source fragment up to phase.
type Compiler interface {
	Compile(ctx context.Context, src string, phase Phase, hook Hook) (*Result, error)
}

// CompilationError reports source that failed to compile.
type CompilationError struct {
	Stage  string // "frontend", "hook" or "codegen"
	Output string // toolchain diagnostics
	Err    error
}

func (e *CompilationError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("compilation failed in %s: %v\n%s", e.Stage, e.Err, e.Output)
	}
	return fmt.Sprintf("compilation failed in %s: %v", e.Stage, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// IsCompilationError reports whether err is or wraps a *CompilationError.
func IsCompilationError(err error) bool {
	var ce *CompilationError
	return errors.As(err, &ce)
}
