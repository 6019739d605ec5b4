package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dspgen/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "dspgen",
	Short: "Vector DSP C code generator",
	Long: `dspgen lowers parallel loops and async tasks of .dspir modules into runtime
calls and emits C for Xtensa vector DSPs`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: preRun,
	PersistentPostRun: postRun,
}

var (
	traceCleanup   func()
	profileCleanup func()
)

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(lowerCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("quiet", false, "suppress non-essential output")
	flags.Bool("timings", false, "show timing information")
	flags.Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	flags.String("trace", "", "write trace events to a file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "ring buffer capacity for --trace-mode ring|both")
	flags.String("cpu-profile", "", "write a CPU profile to file")
	flags.String("mem-profile", "", "write a heap profile to file on exit")
	flags.String("runtime-trace", "", "write a Go runtime trace to file")
}

// main executes the root command. Any error exits with status 1.
func main() {
	err := rootCmd.Execute()
	// cobra skips PersistentPostRun when RunE fails
	postRun(rootCmd, nil)
	if err != nil {
		if !isExitError(err) {
			fmt.Fprintln(os.Stderr, color.New(color.FgRed, color.Bold).Sprint("error:"), err)
		}
		os.Exit(1)
	}
}

func preRun(cmd *cobra.Command, _ []string) error {
	if err := setupColor(cmd); err != nil {
		return err
	}
	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	traceCleanup = cleanup
	stopProfiles, err := setupProfiling(cmd)
	if err != nil {
		postRun(cmd, nil)
		return err
	}
	profileCleanup = stopProfiles
	return nil
}

func postRun(*cobra.Command, []string) {
	if profileCleanup != nil {
		profileCleanup()
		profileCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
}

// setupColor applies --color to fatih/color globally.
func setupColor(cmd *cobra.Command) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "", "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits int
}

// exitError signals a failure that was already reported.
type exitError struct{}

func (exitError) Error() string { return "failed" }

func isExitError(err error) bool {
	_, ok := err.(exitError)
	return ok
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
