package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dspgen/internal/diag"
	"dspgen/internal/ir"
	"dspgen/internal/irpack"
	"dspgen/internal/pipeline"
)

var lowerCmd = &cobra.Command{
	Use:   "lower [flags] <file.dspir>",
	Short: "Run parallel task lowering only and write the lowered module",
	Args:  cobra.ExactArgs(1),
	RunE:  runLower,
}

func init() {
	lowerCmd.Flags().StringP("out", "o", "", "output file (default: <input>.lowered.dspir)")
	lowerCmd.Flags().Bool("print", false, "print the lowered module")
}

func runLower(cmd *cobra.Command, args []string) error {
	in := args[0]
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return fmt.Errorf("failed to get out flag: %w", err)
	}
	printModule, err := cmd.Flags().GetBool("print")
	if err != nil {
		return fmt.Errorf("failed to get print flag: %w", err)
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	if out == "" {
		out = strings.TrimSuffix(in, irpack.Ext) + ".lowered" + irpack.Ext
	}
	m, err := pipeline.LowerFile(cmd.Context(), in, out)
	if err != nil {
		return reportError(cmd, err, diag.IRMalformedInput, in)
	}
	if printModule {
		ir.DumpModule(cmd.OutOrStdout(), m)
	}
	if !quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%s)\n", out, plural(len(m.Funcs), "function"))
	}
	return nil
}
