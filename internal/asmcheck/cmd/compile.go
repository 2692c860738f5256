package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"asmcheck/internal/compiler"
	"asmcheck/internal/disasm"
	"asmcheck/internal/harness"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <source|-> [prefix...]",
		Short: "Compile a fragment and check the selected member",
		Long: `Compile a source fragment with the configured toolchain, extract the selected
member and, when prefixes are given, match them in order. The object phase
decodes AArch64 objects, so use an AArch64 compiler or --phase assembly.`,
		Example: `
# Front-end output of the run function
echo 'int run(void) { return 1 + 2; }' | asmcheck compile --phase assembly -

# Full build with a cross compiler, strict match
ASMCHECK_COMPILER=aarch64-linux-gnu-gcc asmcheck compile --strict fragment.c mov ret
  `,
		Args: cobra.MinimumNArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			src, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			phaseName, _ := cmd.Flags().GetString("phase")
			phase, err := compiler.ParsePhase(phaseName)
			if err != nil {
				return err
			}
			saveAsm, _ := cmd.Flags().GetString("save-asm")

			tc := &compiler.Toolchain{
				Path:     s.cfg.Compiler,
				Flags:    s.cfg.CompilerFlags,
				Language: s.cfg.Language,
				Logger:   s.logger.Logger,
			}
			h := harness.New(tc, disasm.ARM64{Source: args[0]},
				harness.WithLogger(s.logger.Logger),
				harness.WithOutput(s.out))

			seq, err := h.Compile(cmd.Context(), src, phase, saveHook(saveAsm), s.opts)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				if !s.opts.PrintOnExtract {
					fmt.Fprint(s.out, s.highlight(memberListing(s.opts.Selector(), seq.Instructions())))
				}
				return nil
			}
			markdown, _ := cmd.Flags().GetBool("markdown")
			return s.verdict(s.opts.Selector(), matchRequest(cmd, args[1:]), seq, markdown)
		}),
	}
	cmd.Flags().String("phase", compiler.PhaseObject.String(), "Last compilation phase: object or assembly")
	cmd.Flags().String("save-asm", "", "Write the intermediate assembly to this file")
	addMatchFlags(cmd)
	return cmd
}

// readSource reads the fragment from a file, or from stdin when path is "-".
func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		bts, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", errors.Wrap(err, "read stdin")
		}
		return string(bts), nil
	}
	bts, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "read source")
	}
	return string(bts), nil
}

// saveHook returns a hook that copies the front-end output to path, or nil
// when path is empty.
func saveHook(path string) compiler.Hook {
	if path == "" {
		return nil
	}
	return func(asm []byte) ([]byte, error) {
		if err := os.WriteFile(path, asm, 0o644); err != nil {
			return nil, errors.Wrap(err, "save assembly")
		}
		return asm, nil
	}
}
