// Package harness ties compilation, disassembly and member filtering
// together so tests can assert on the instructions of one member.
package harness

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	"asmcheck/internal/compiler"
	"asmcheck/internal/disasm"
	"asmcheck/internal/insnseq"
	"asmcheck/internal/logging"
	"asmcheck/internal/member"
	"asmcheck/internal/ui/colorize"
)

// Options select the member to extract. Set one of TargetMethod and
// TargetField; with neither, the "run" method is used. PrintOnExtract
// prints the selected instructions and never affects matching.
type Options struct {
	TargetMethod   string
	TargetField    string
	PrintOnExtract bool
}

// Selector converts the options into a member selector.
func (o Options) Selector() member.Selector {
	return member.Selector{Method: o.TargetMethod, Field: o.TargetField}.Normalize()
}

// Harness runs compile and extract cycles. It holds no per-cycle state, so
// one Harness can serve parallel tests.
type Harness struct {
	compiler compiler.Compiler
	disasm   disasm.Disassembler
	logger   *log.Logger
	out      io.Writer
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger used for extraction diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithOutput sets where PrintOnExtract writes. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(h *Harness) { h.out = w }
}

// New returns a Harness. c may be nil when only Extract is used.
func New(c compiler.Compiler, d disasm.Disassembler, opts ...Option) *Harness {
	h := &Harness{
		compiler: c,
		disasm:   d,
		logger:   logging.Discard(),
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Extract disassembles code and returns the instructions of the selected
// member. A member that does not exist yields an empty sequence, not an error.
func (h *Harness) Extract(code []byte, o Options) (insnseq.Sequence, error) {
	listing, err := h.disasm.Disassemble(code)
	if err != nil {
		return insnseq.Sequence{}, errors.Wrap(err, "disassemble")
	}
	entries, hits := disasm.DemangleCacheStats()
	h.logger.Debug("Disassembled artifact", "bytes", len(code), "demangled", entries, "cache_hits", hits)
	return h.extractListing(listing, o), nil
}

func (h *Harness) extractListing(listing string, o Options) insnseq.Sequence {
	sel := o.Selector()
	seq := insnseq.New(member.Filter(listing, sel))

	h.logger.Debug("Extracted member", "selector", sel.String(), "instructions", seq.Len())
	if seq.Len() == 0 {
		h.logger.Warn("Selected member not found or empty", "selector", sel.String())
	}
	if o.PrintOnExtract {
		h.print(sel, seq)
	}
	return seq
}

func (h *Harness) print(sel member.Selector, seq insnseq.Sequence) {
	var b strings.Builder
	fmt.Fprintf(&b, "; %s\n", sel)
	for _, in := range seq.Instructions() {
		b.WriteString("\t")
		b.WriteString(in)
		b.WriteString("\n")
	}
	fmt.Fprint(h.out, colorize.ColorizeListing(b.String()))
}

// Compile builds src through phase, running hook between the front-end and
// code generation, and extracts the selected member. Compilation failures
// abort the cycle and are returned as is. The compiler's work dir is
// removed once the member is extracted.
func (h *Harness) Compile(ctx context.Context, src string, phase compiler.Phase, hook compiler.Hook, o Options) (insnseq.Sequence, error) {
	if h.compiler == nil {
		return insnseq.Sequence{}, errors.New("harness has no compiler")
	}
	res, err := h.compiler.Compile(ctx, src, phase, hook)
	if err != nil {
		return insnseq.Sequence{}, err
	}
	defer func(dir string) {
		if err := res.Cleanup(); err != nil {
			h.logger.Warn("Failed to remove work dir", "dir", dir, "error", err)
		}
	}(res.Dir)
	h.logger.Debug("Compiled fragment", "phase", res.Phase, "bytes", len(res.Code), "path", res.Path)

	if res.Phase == compiler.PhaseAssembly {
		listing, err := disasm.Assembly{Source: res.Path}.Disassemble(res.Code)
		if err != nil {
			return insnseq.Sequence{}, errors.Wrap(err, "parse assembly")
		}
		return h.extractListing(listing, o), nil
	}
	return h.Extract(res.Code, o)
}
