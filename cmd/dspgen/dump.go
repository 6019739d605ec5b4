package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dspgen/internal/diag"
	"dspgen/internal/pipeline"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [flags] <file.dspir>",
	Short: "Print a module as text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lowered, err := cmd.Flags().GetBool("lowered")
		if err != nil {
			return fmt.Errorf("failed to get lowered flag: %w", err)
		}
		text, err := pipeline.Dump(cmd.Context(), args[0], lowered)
		if err != nil {
			return reportError(cmd, err, diag.IRMalformedInput, args[0])
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}

func init() {
	dumpCmd.Flags().Bool("lowered", false, "lower parallel tasks before printing")
}
