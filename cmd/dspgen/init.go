package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dspgen/internal/target"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a default dspgen.toml",
	Long: `Create dspgen.toml in dir (default: the current directory) with the
xtensa-q8 target and default [build] settings. An existing file is kept.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	if st, err := os.Stat(dir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	} else if !st.IsDir() {
		return fmt.Errorf("%q is not a directory", dir)
	}

	path := filepath.Join(dir, configName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("already initialized: %s exists", path)
	}
	if err := os.WriteFile(path, []byte(target.DefaultFile), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configName, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
