package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"dspgen/internal/target"
)

const configName = "dspgen.toml"

const defaultOutDir = "build"

type projectConfig struct {
	Target target.Spec `toml:"target"`
	Build  buildConfig `toml:"build"`
}

type buildConfig struct {
	Jobs   int    `toml:"jobs"`
	OutDir string `toml:"out_dir"`
}

// project is the resolved build setup: the target plus [build] defaults.
type project struct {
	Path   string
	Target *target.Target
	Jobs   int
	OutDir string
}

func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, configName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// loadProject decodes a dspgen.toml. A file without [target] builds for the
// default target; a relative out_dir is taken from the file's directory.
func loadProject(path string) (*project, error) {
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	tgt, err := cfg.Target.Build(meta, "target")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Build.Jobs < 0 {
		return nil, fmt.Errorf("%s: build.jobs must not be negative", path)
	}
	outDir := strings.TrimSpace(cfg.Build.OutDir)
	if outDir == "" {
		outDir = defaultOutDir
	}
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(filepath.Dir(path), outDir)
	}
	return &project{Path: path, Target: tgt, Jobs: cfg.Build.Jobs, OutDir: outDir}, nil
}

// resolveProject picks the build setup for a command. spec is the --target
// value: a builtin target name, a path to a dspgen.toml, or empty to search
// the working directory and its parents.
func resolveProject(spec string) (*project, error) {
	spec = strings.TrimSpace(spec)
	if spec != "" {
		if t, ok := target.Builtin(spec); ok {
			return &project{Target: t, OutDir: defaultOutDir}, nil
		}
		if _, err := os.Stat(spec); err != nil {
			return nil, fmt.Errorf("unknown target %q: not a builtin (%s) and not a readable file",
				spec, strings.Join(target.BuiltinNames(), ", "))
		}
		return loadProject(spec)
	}
	path, ok, err := findConfig(".")
	if err != nil {
		return nil, err
	}
	if !ok {
		return &project{Target: target.XtensaQ8(), OutDir: defaultOutDir}, nil
	}
	return loadProject(path)
}
