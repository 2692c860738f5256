package harness

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asmcheck/internal/compiler"
	"asmcheck/internal/disasm"
	"asmcheck/internal/elfx/elfxtest"
)

const (
	movW0One  = 0x52800020 // mov w0, #0x1
	movW1Two  = 0x52800041 // mov w1, #0x2
	addW0W0W1 = 0x0b010000 // add w0, w0, w1
	movW0Nine = 0x52800120 // mov w0, #0x9
	ret       = 0xd65f03c0
)

// fixedCompiler stands in for a toolchain: it hands the front-end output to
// the hook and returns a canned artifact.
type fixedCompiler struct {
	res       compiler.Result
	err       error
	hookCalls int
	lastSrc   string
}

func (f *fixedCompiler) Compile(_ context.Context, src string, phase compiler.Phase, hook compiler.Hook) (*compiler.Result, error) {
	f.lastSrc = src
	if f.err != nil {
		return nil, f.err
	}
	if hook != nil {
		f.hookCalls++
		if _, err := hook([]byte("\tmov w0, 3\n")); err != nil {
			return nil, &compiler.CompilationError{Stage: "hook", Err: err}
		}
	}
	res := f.res
	res.Phase = phase
	return &res, nil
}

func TestCompileRemovesWorkDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	require.NoError(t, os.Mkdir(dir, 0o755))
	path := filepath.Join(dir, "fragment.o")
	require.NoError(t, os.WriteFile(path, sampleObject(), 0o644))

	fc := &fixedCompiler{res: compiler.Result{Code: sampleObject(), Path: path, Dir: dir}}
	seq, err := newHarness(fc).Compile(context.Background(), "src", compiler.PhaseObject, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, seq.Len())
	assert.NoDirExists(t, dir)
}

func sampleObject() []byte {
	return elfxtest.Build(
		[]elfxtest.Func{
			{Name: "run", Code: []uint32{movW0One, movW1Two, addW0W0W1, ret}},
			{Name: "helper", Code: []uint32{movW0Nine, ret}},
		},
		[]elfxtest.Object{
			{Name: "answer", Data: []byte{0x2a, 0, 0, 0}},
		},
	)
}

func newHarness(c compiler.Compiler, opts ...Option) *Harness {
	return New(c, disasm.ARM64{}, opts...)
}

func TestCompileAndMatchDefaultEntryPoint(t *testing.T) {
	fc := &fixedCompiler{res: compiler.Result{Code: sampleObject()}}
	h := newHarness(fc)

	seq, err := h.Compile(context.Background(), "def x = 1 + 2", compiler.PhaseObject, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "def x = 1 + 2", fc.lastSrc)
	require.Equal(t, 4, seq.Len())

	assert.True(t, seq.MatchStrict([]string{"mov", "mov", "add"}, 0))
	assert.True(t, seq.MatchStrict([]string{"add", "ret"}, 0))
	assert.False(t, seq.MatchStrict([]string{"mov", "add", "mov"}, 0))
	assert.False(t, seq.MatchStrict([]string{"mov", "ret"}, 0))
	assert.True(t, seq.MatchLoose([]string{"mov", "ret"}, 0))
}

func TestExtractIsolatesMembers(t *testing.T) {
	h := newHarness(nil)
	code := sampleObject()

	run, err := h.Extract(code, Options{TargetMethod: "run"})
	require.NoError(t, err)
	helper, err := h.Extract(code, Options{TargetMethod: "helper"})
	require.NoError(t, err)

	require.Equal(t, 4, run.Len())
	require.Equal(t, 2, helper.Len())
	assert.NotContains(t, run.Instructions(), helper.At(0))
	assert.NotContains(t, helper.Instructions(), run.At(0))
	assert.NotContains(t, helper.Instructions(), run.At(2))
}

func TestExtractField(t *testing.T) {
	seq, err := newHarness(nil).Extract(sampleObject(), Options{TargetField: "answer"})
	require.NoError(t, err)
	assert.Equal(t, []string{".word 0x0000002a"}, seq.Instructions())
	assert.True(t, seq.MatchStrict([]string{".word 0x0000002a"}, 0))
}

func TestExtractMissingMember(t *testing.T) {
	seq, err := newHarness(nil).Extract(sampleObject(), Options{TargetMethod: "absent"})
	require.NoError(t, err)
	assert.Equal(t, 0, seq.Len())
	assert.False(t, seq.MatchLoose([]string{"ret"}, 0))
	assert.False(t, seq.MatchStrict([]string{"ret"}, 0))
	assert.True(t, seq.MatchLoose(nil, 0))
}

func TestExtractDisassemblerError(t *testing.T) {
	_, err := newHarness(nil).Extract([]byte("garbage"), Options{})
	assert.Error(t, err)
}

func TestCompilationErrorAbortsCycle(t *testing.T) {
	fc := &fixedCompiler{err: &compiler.CompilationError{Stage: "frontend", Output: "fragment.c:1:1: error", Err: errors.New("exit status 1")}}

	seq, err := newHarness(fc).Compile(context.Background(), "def x = ", compiler.PhaseObject, nil, Options{})
	require.Error(t, err)
	assert.True(t, compiler.IsCompilationError(err))
	assert.Equal(t, 0, seq.Len())
}

func TestCompileRunsHook(t *testing.T) {
	fc := &fixedCompiler{res: compiler.Result{Code: sampleObject()}}

	var seen []byte
	_, err := newHarness(fc).Compile(context.Background(), "src", compiler.PhaseObject, func(asm []byte) ([]byte, error) {
		seen = asm
		return asm, nil
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, fc.hookCalls)
	assert.Equal(t, "\tmov w0, 3\n", string(seen))

	_, err = newHarness(fc).Compile(context.Background(), "src", compiler.PhaseObject, func([]byte) ([]byte, error) {
		return nil, errors.New("rejected")
	}, Options{})
	assert.True(t, compiler.IsCompilationError(err))
}

func TestCompileAssemblyPhase(t *testing.T) {
	asm := "\t.type\trun, %function\nrun:\n\tmov\tw0, 1\n\tmov\tw1, 2\n\tadd\tw0, w0, w1\n\tret\n\t.size\trun, .-run\n"
	fc := &fixedCompiler{res: compiler.Result{Code: []byte(asm), Path: "fragment.s"}}

	seq, err := newHarness(fc).Compile(context.Background(), "src", compiler.PhaseAssembly, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"mov w0, 1", "mov w1, 2", "add w0, w0, w1", "ret"}, seq.Instructions())
	assert.True(t, seq.MatchStrict([]string{"mov w0", "mov w1", "add"}, 0))
}

func TestCompileWithoutCompiler(t *testing.T) {
	_, err := newHarness(nil).Compile(context.Background(), "src", compiler.PhaseObject, nil, Options{})
	assert.Error(t, err)
}

func TestPrintOnExtract(t *testing.T) {
	t.Setenv("ASMCHECK_NO_COLOR", "1")
	var out bytes.Buffer
	h := newHarness(nil, WithOutput(&out))

	quiet, err := h.Extract(sampleObject(), Options{})
	require.NoError(t, err)
	assert.Empty(t, out.String())

	loud, err := h.Extract(sampleObject(), Options{PrintOnExtract: true})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "; method run\n")
	assert.Contains(t, out.String(), "\tret\n")
	assert.Equal(t, quiet.Instructions(), loud.Instructions())
}

func TestExtractParallel(t *testing.T) {
	h := newHarness(nil)
	code := sampleObject()
	for _, name := range []string{"run", "helper", "run", "helper"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			seq, err := h.Extract(code, Options{TargetMethod: name})
			require.NoError(t, err)
			assert.True(t, seq.MatchLoose([]string{"mov", "ret"}, 0))
			assert.Equal(t, name == "helper", seq.MatchStrict([]string{"mov", "ret"}, 0))
		})
	}
}

func TestOptionsSelector(t *testing.T) {
	assert.Equal(t, "run", Options{}.Selector().Method)
	assert.Equal(t, "answer", Options{TargetField: "answer"}.Selector().Field)
	assert.Empty(t, Options{TargetField: "answer"}.Selector().Method)
}
