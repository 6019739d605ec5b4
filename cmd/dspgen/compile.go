package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"dspgen/internal/diag"
	"dspgen/internal/diagfmt"
	"dspgen/internal/irpack"
	"dspgen/internal/observ"
	"dspgen/internal/pipeline"
	"dspgen/internal/target"
	runtimeembed "dspgen/runtime"
)

var compileCmd = &cobra.Command{
	Use:   "compile [flags] <file.dspir|dir>...",
	Short: "Lower parallel tasks and emit C for .dspir modules",
	Long: `Validate each module, lower its parallel loops and async tasks into runtime
calls and write <out>/<module>.c (or .h with --header). Directories expand to
the .dspir files they contain.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().String("target", "", "builtin target name or path to a dspgen.toml (default: $DSPGEN_TARGET, then search upwards)")
	compileCmd.Flags().StringP("out", "o", "", "output directory (default: build.out_dir or ./build)")
	compileCmd.Flags().Bool("header", false, "emit declarations only")
	compileCmd.Flags().Int("jobs", 0, "max units compiled at once (0=build.jobs, $DSPGEN_JOBS, then auto)")
	compileCmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
	compileCmd.Flags().String("format", "pretty", "diagnostics format (pretty|json)")
	compileCmd.Flags().Bool("with-notes", false, "include diagnostic notes in output")
	compileCmd.Flags().Bool("emit-runtime", false, "also write the reference task runtime sources to the output directory")
}

func runCompile(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	targetFlag, err := flags.GetString("target")
	if err != nil {
		return fmt.Errorf("failed to get target flag: %w", err)
	}
	outFlag, err := flags.GetString("out")
	if err != nil {
		return fmt.Errorf("failed to get out flag: %w", err)
	}
	header, err := flags.GetBool("header")
	if err != nil {
		return fmt.Errorf("failed to get header flag: %w", err)
	}
	jobs, err := flags.GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	uiFlag, err := flags.GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	format, err := flags.GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	withNotes, err := flags.GetBool("with-notes")
	if err != nil {
		return fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	emitRuntime, err := flags.GetBool("emit-runtime")
	if err != nil {
		return fmt.Errorf("failed to get emit-runtime flag: %w", err)
	}
	root := cmd.Root().PersistentFlags()
	quiet, err := root.GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	showTimings, err := root.GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	maxDiagnostics, err := root.GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}

	mode, err := readUIMode(uiFlag)
	if err != nil {
		return err
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}

	if targetFlag == "" {
		targetFlag = env.Str("DSPGEN_TARGET")
	}
	proj, err := resolveProject(targetFlag)
	if err != nil {
		return err
	}
	tgt := proj.Target
	if header {
		tgt = tgt.Clone()
		tgt.Output = target.OutputHeader
	}
	outDir := proj.OutDir
	if outFlag != "" {
		outDir = outFlag
	}
	if !flags.Changed("jobs") {
		jobs = proj.Jobs
		if jobs == 0 {
			jobs = env.Int("DSPGEN_JOBS", 0)
		}
	}
	files, err := collectInputs(args)
	if err != nil {
		return err
	}

	var timer *observ.Timer
	if showTimings {
		timer = observ.NewTimer()
	}
	req := &pipeline.Request{
		Files:          files,
		Target:         tgt,
		OutDir:         outDir,
		Jobs:           jobs,
		MaxDiagnostics: maxDiagnostics,
		Timer:          timer,
	}

	var res pipeline.Result
	if !quiet && format == "pretty" && shouldUseTUI(mode, len(files)) {
		res, err = runCompileWithUI(cmd.Context(), "compiling", req)
	} else {
		res, err = pipeline.Compile(cmd.Context(), req)
	}
	if err != nil {
		return err
	}

	bag := res.Diagnostics(maxDiagnostics)
	if format == "json" {
		if err := diagfmt.JSON(cmd.OutOrStdout(), bag, diagfmt.JSONOpts{IncludeNotes: withNotes}); err != nil {
			return err
		}
	} else {
		diagfmt.Pretty(cmd.ErrOrStderr(), bag, diagfmt.PrettyOpts{Color: !color.NoColor, ShowNotes: withNotes})
		if !quiet {
			printUnits(cmd.OutOrStdout(), res)
		}
	}
	if timer != nil {
		printStageTimings(cmd.ErrOrStderr(), res)
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	if res.HasErrors() {
		if format == "pretty" {
			fmt.Fprintln(cmd.ErrOrStderr(), color.New(color.FgRed, color.Bold).Sprint("failed:"), diagfmt.Summary(bag))
		}
		return exitError{}
	}
	if emitRuntime {
		paths, err := runtimeembed.WriteTo(outDir)
		if err != nil {
			return fmt.Errorf("failed to write task runtime: %w", err)
		}
		if !quiet && format == "pretty" {
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.New(color.FgGreen, color.Bold).Sprint("wrote"), p)
			}
		}
	}
	return nil
}

// collectInputs expands directories to their .dspir files, sorted, and
// keeps plain files as given.
func collectInputs(args []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(path string) {
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}
	for _, arg := range args {
		st, err := os.Stat(arg)
		if err != nil || !st.IsDir() {
			// missing files are reported per unit
			add(arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*"+irpack.Ext))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: no %s files", arg, irpack.Ext)
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}
	return files, nil
}

func printUnits(out io.Writer, res pipeline.Result) {
	ok := color.New(color.FgGreen, color.Bold)
	for i := range res.Units {
		u := &res.Units[i]
		if u.Failed() {
			continue
		}
		fmt.Fprintf(out, "%s %s -> %s (%s)\n", ok.Sprint("wrote"), u.File, u.Output, plural(u.Tasks, "task"))
	}
}

func printStageTimings(out io.Writer, res pipeline.Result) {
	var total pipeline.Timings
	for i := range res.Units {
		for _, st := range pipeline.Stages {
			if res.Units[i].Timings.Has(st) {
				total.Set(st, total.Duration(st)+res.Units[i].Timings.Duration(st))
			}
		}
	}
	for _, st := range pipeline.Stages {
		if total.Has(st) {
			fmt.Fprintf(out, "%s %.1f ms\n", st, toMillis(total.Duration(st)))
		}
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// reportError prints err as a diagnostic when it carries one.
func reportError(cmd *cobra.Command, err error, code diag.Code, unit string) error {
	bag := diag.NewBag(1)
	bag.AddError(err, code, diag.Site{Unit: unit})
	diagfmt.Pretty(cmd.ErrOrStderr(), bag, diagfmt.PrettyOpts{Color: !color.NoColor})
	return exitError{}
}
