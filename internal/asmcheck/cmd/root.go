package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/pprof"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"asmcheck/internal/config"
	alog "asmcheck/internal/asmcheck/log"
	"asmcheck/internal/harness"
	"asmcheck/internal/logging"
	"asmcheck/internal/ui/colorize"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "asmcheck",
		Short: "Assert on the instructions a compiler emits for one member",
		Long: `Asmcheck disassembles compiled artifacts, isolates a single method or field
and checks its instruction list against an ordered pattern of prefixes.`,
		Example: `
# Show the instructions of the default "run" method
asmcheck dump fragment.o

# Check that helper loads two constants before adding them
asmcheck match -m helper --strict fragment.o mov mov add

# Compile a fragment and check the front-end output
asmcheck compile --phase assembly fragment.c mov ret
  `,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	root.PersistentFlags().String("config", "", "Config file (default ./asmcheck.yaml)")
	root.PersistentFlags().BoolP("debug", "d", false, "Debug")
	root.PersistentFlags().String("log-file", "", "Write slog output to this file instead of stderr")
	root.PersistentFlags().StringP("method", "m", "", "Method to extract (default run)")
	root.PersistentFlags().StringP("field", "F", "", "Field to extract instead of a method")
	root.PersistentFlags().BoolP("print", "p", false, "Print the selected listing after extraction")
	root.PersistentFlags().String("cpuprofile", "", "Write CPU profile to file")

	root.AddCommand(
		newDumpCmd(),
		newMembersCmd(),
		newMatchCmd(),
		newLiteralCmd(),
		newCompileCmd(),
		newSchemaCmd(),
	)
	return root
}

// session is the per-invocation state shared by every subcommand.
type session struct {
	cfg    *config.Config
	logger *logging.LoggerCloser
	opts   harness.Options
	out    io.Writer
	plain  bool

	stopProfile func()
}

func newSession(cmd *cobra.Command) (*session, error) {
	if _, err := ResolveCwd(cmd); err != nil {
		return nil, err
	}

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	debug, _ := cmd.Flags().GetBool("debug")
	debug = debug || logging.IsDebug()
	logFile, _ := cmd.Flags().GetString("log-file")
	alog.Setup(logFile, debug)
	logger := logging.NewLogger()
	if debug {
		logger.SetLevel(log.DebugLevel)
	}

	if cfg.NoColor {
		os.Setenv("ASMCHECK_NO_COLOR", "1")
	}

	s := &session{
		cfg:    cfg,
		logger: logger,
		opts:   selection(cmd, cfg),
		out:    cmd.OutOrStdout(),
	}
	s.plain = !colorize.Enabled() || !isTerminal(s.out)

	cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			return nil, errors.Wrap(err, "could not create CPU profile")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "could not start CPU profile")
		}
		s.stopProfile = func() {
			pprof.StopCPUProfile()
			f.Close()
		}
	}
	return s, nil
}

func (s *session) Close() {
	if s.stopProfile != nil {
		s.stopProfile()
	}
	s.logger.Close()
}

// selection merges the member flags over the configured defaults. Flags
// that were set explicitly win.
func selection(cmd *cobra.Command, cfg *config.Config) harness.Options {
	o := harness.Options{
		TargetMethod:   cfg.TargetMethod,
		TargetField:    cfg.TargetField,
		PrintOnExtract: cfg.PrintOnExtract,
	}
	if cmd.Flags().Changed("method") {
		o.TargetMethod, _ = cmd.Flags().GetString("method")
		if !cmd.Flags().Changed("field") {
			o.TargetField = ""
		}
	}
	if cmd.Flags().Changed("field") {
		o.TargetField, _ = cmd.Flags().GetString("field")
		if !cmd.Flags().Changed("method") {
			o.TargetMethod = ""
		}
	}
	if cmd.Flags().Changed("print") {
		o.PrintOnExtract, _ = cmd.Flags().GetBool("print")
	}
	return o
}

// highlight colorizes a listing unless output is plain.
func (s *session) highlight(listing string) string {
	if s.plain {
		return listing
	}
	return colorize.ColorizeListing(listing)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

func Execute() {
	root := newRootCmd()

	// fang renders help and errors for humans; pipes get plain cobra.
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := root.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}
