package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"asmcheck/internal/disasm"
	"asmcheck/internal/member"
)

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <artifact>",
		Short: "Print the disassembly listing of an artifact",
		Long: `Print the member listing of a compiled artifact. With --method or --field
only the selected member's instructions are printed.`,
		Example: `
# Every member
asmcheck dump fragment.o

# Only the initializer of a data object
asmcheck dump -F table fragment.o
  `,
		Args: cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			listing, err := loadListing(s, args[0])
			if err != nil {
				return err
			}
			if s.opts.TargetMethod == "" && s.opts.TargetField == "" {
				fmt.Fprint(s.out, s.highlight(listing))
				return nil
			}
			sel := s.opts.Selector()
			fmt.Fprint(s.out, s.highlight(memberListing(sel, member.Filter(listing, sel))))
			return nil
		}),
	}
}

func memberListing(sel member.Selector, lines []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; %s\n", sel)
	for _, line := range lines {
		b.WriteString("\t")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// summary prints one line per member with its instruction count.
type summary struct {
	w     io.Writer
	name  string
	kind  disasm.Kind
	count int
}

func (m *summary) MemberStart(name string, kind disasm.Kind) {
	m.name, m.kind, m.count = name, kind, 0
}

func (m *summary) InstructionLine(string) { m.count++ }

func (m *summary) MemberEnd() {
	fmt.Fprintf(m.w, "%-6s %4d  %s\n", m.kind, m.count, m.name)
}

func newMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members <artifact>",
		Short: "List the methods and fields of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			listing, err := loadListing(s, args[0])
			if err != nil {
				return err
			}
			sum := &summary{w: s.out}
			member.Walk(listing, func(string, disasm.Kind) member.Visitor { return sum })
			return nil
		}),
	}
}
