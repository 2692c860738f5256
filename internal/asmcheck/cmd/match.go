package cmd

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"asmcheck/internal/asmcheck/styles"
	"asmcheck/internal/harness"
	"asmcheck/internal/insnseq"
	"asmcheck/internal/member"
)

// ErrNoMatch is returned when the pattern is not found, so the process
// exits non-zero.
var ErrNoMatch = errors.New("pattern not matched")

func addMatchFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("strict", "s", false, "Require pattern elements to be adjacent")
	cmd.Flags().IntP("offset", "o", 0, "Instruction index to start searching from")
	cmd.Flags().Bool("markdown", false, "Render a markdown report")
}

func matchRequest(cmd *cobra.Command, pattern []string) insnseq.MatchRequest {
	strict, _ := cmd.Flags().GetBool("strict")
	offset, _ := cmd.Flags().GetInt("offset")
	return insnseq.MatchRequest{Pattern: pattern, Offset: offset, Strict: strict}
}

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <artifact> <prefix>...",
		Short: "Check a member's instructions against an ordered pattern",
		Long: `Match each prefix against the selected member's instructions in order.
Loose matching allows gaps between matched instructions; --strict requires them
to be adjacent once the first element has matched.`,
		Example: `
# mov ... add ... ret, in that order
asmcheck match fragment.o mov add ret

# adjacent, starting at the third instruction
asmcheck match --strict --offset 2 fragment.o "add w0" ret
  `,
		Args: cobra.MinimumNArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			data, release, err := openArtifact(args[0], s.logger.Logger)
			if err != nil {
				return err
			}
			defer release()
			h := harness.New(nil, disassemblerFor(args[0]),
				harness.WithLogger(s.logger.Logger),
				harness.WithOutput(s.out))
			seq, err := h.Extract(data, s.opts)
			if err != nil {
				return err
			}

			markdown, _ := cmd.Flags().GetBool("markdown")
			return s.verdict(s.opts.Selector(), matchRequest(cmd, args[1:]), seq, markdown)
		}),
	}
	addMatchFlags(cmd)
	return cmd
}

// verdict prints the outcome of req against seq and returns ErrNoMatch on
// failure.
func (s *session) verdict(sel member.Selector, req insnseq.MatchRequest, seq insnseq.Sequence, markdown bool) error {
	matched := seq.Match(req)
	s.logger.Debug("Matched pattern", "selector", sel.String(), "pattern", req.Pattern,
		"offset", req.Offset, "strict", req.Strict, "matched", matched)

	if markdown {
		report := matchReport(sel, req, seq, matched)
		if s.plain {
			fmt.Fprint(s.out, report)
		} else {
			fmt.Fprint(s.out, styles.RenderMarkdown(report, 80))
		}
	} else {
		fmt.Fprintf(s.out, "%s %s %s\n", styles.Verdict(matched, s.plain), sel, formatPattern(req))
	}

	if !matched {
		return errors.Wrapf(ErrNoMatch, "%s", sel)
	}
	return nil
}

func formatPattern(req insnseq.MatchRequest) string {
	mode := "loose"
	if req.Strict {
		mode = "strict"
	}
	quoted := make([]string, len(req.Pattern))
	for i, p := range req.Pattern {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return fmt.Sprintf("%s@%d [%s]", mode, req.Offset, strings.Join(quoted, " "))
}

func matchReport(sel member.Selector, req insnseq.MatchRequest, seq insnseq.Sequence, matched bool) string {
	var b strings.Builder
	if matched {
		b.WriteString("# Match\n\n")
	} else {
		b.WriteString("# No match\n\n")
	}
	fmt.Fprintf(&b, "- **Member:** `%s`\n", sel)
	fmt.Fprintf(&b, "- **Pattern:** `%s`\n", formatPattern(req))
	fmt.Fprintf(&b, "- **Instructions:** %d\n\n", seq.Len())
	if seq.Len() > 0 {
		b.WriteString("```asm\n")
		b.WriteString(seq.String())
		b.WriteString("\n```\n")
	}
	return b.String()
}

func newLiteralCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "literal <artifact>",
		Short: "Print a member's instructions as a Go string slice",
		Long:  `Print the selected member's instructions as a Go []string literal, ready to paste into a test as a strict pattern.`,
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			data, release, err := openArtifact(args[0], s.logger.Logger)
			if err != nil {
				return err
			}
			defer release()
			h := harness.New(nil, disassemblerFor(args[0]), harness.WithLogger(s.logger.Logger))
			seq, err := h.Extract(data, s.opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, seq.Literal())
			return nil
		}),
	}
}
