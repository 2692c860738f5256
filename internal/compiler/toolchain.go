package compiler

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// Toolchain compiles with a gcc/clang compatible driver.
type Toolchain struct {
	Path     string   // driver, e.g. "cc" or "aarch64-linux-gnu-gcc"
	Flags    []string // extra flags for both steps, e.g. "-O0"
	Language string   // value for -x, defaults to "c"
	Dir      string   // parent for work dirs, defaults to os.TempDir()
	Logger   *log.Logger
}

var _ Compiler = (*Toolchain)(nil)

// Compile writes src to a fresh work dir, runs the front-end with -S, passes
// the assembly through hook, and unless phase is PhaseAssembly assembles it
// with -c. The work dir is removed on failure; on success it stays so
// Result.Path is loadable until Result.Cleanup.
func (tc *Toolchain) Compile(ctx context.Context, src string, phase Phase, hook Hook) (*Result, error) {
	driver := tc.Path
	if driver == "" {
		driver = "cc"
	}
	lang := tc.Language
	if lang == "" {
		lang = "c"
	}

	dir, err := os.MkdirTemp(tc.Dir, "asmcheck-")
	if err != nil {
		return nil, errors.Wrap(err, "create work dir")
	}
	keep := false
	defer func() {
		if !keep {
			os.RemoveAll(dir)
		}
	}()

	srcPath := filepath.Join(dir, "fragment."+lang)
	asmPath := filepath.Join(dir, "fragment.s")
	objPath := filepath.Join(dir, "fragment.o")
	if err := os.WriteFile(srcPath, []byte(src), 0o644); err != nil {
		return nil, errors.Wrap(err, "write source")
	}

	args := append(append([]string{}, tc.Flags...), "-x", lang, "-S", "-o", asmPath, srcPath)
	if err := tc.run(ctx, "frontend", driver, args); err != nil {
		return nil, err
	}

	asm, err := os.ReadFile(asmPath)
	if err != nil {
		return nil, errors.Wrap(err, "read assembly")
	}
	if hook != nil {
		asm, err = hook(asm)
		if err != nil {
			return nil, &CompilationError{Stage: "hook", Err: err}
		}
		if err := os.WriteFile(asmPath, asm, 0o644); err != nil {
			return nil, errors.Wrap(err, "write assembly")
		}
	}
	if phase == PhaseAssembly {
		keep = true
		return &Result{Code: asm, Path: asmPath, Phase: phase, Dir: dir}, nil
	}

	args = append(append([]string{}, tc.Flags...), "-c", "-o", objPath, asmPath)
	if err := tc.run(ctx, "codegen", driver, args); err != nil {
		return nil, err
	}
	obj, err := os.ReadFile(objPath)
	if err != nil {
		return nil, errors.Wrap(err, "read object")
	}
	keep = true
	return &Result{Code: obj, Path: objPath, Phase: phase, Dir: dir}, nil
}

func (tc *Toolchain) run(ctx context.Context, stage, driver string, args []string) error {
	cmd := exec.CommandContext(ctx, driver, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if tc.Logger != nil {
		tc.Logger.Debug("Running toolchain", "stage", stage, "cmd", driver+" "+strings.Join(args, " "))
	}
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "%s interrupted", stage)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return errors.Wrapf(err, "run %s", driver)
		}
		return &CompilationError{Stage: stage, Output: strings.TrimSpace(out.String()), Err: err}
	}
	return nil
}
