// Package runtimeembed ships the reference C task runtime that generated
// units link against.
package runtimeembed

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

//go:embed native/*.c native/*.h
var nativeRuntimeFS embed.FS

// NativeRuntimeFS exposes the runtime sources rooted at their file names.
func NativeRuntimeFS() fs.FS {
	sub, err := fs.Sub(nativeRuntimeFS, "native")
	if err != nil {
		panic(err)
	}
	return sub
}

// Files lists the runtime sources in name order.
func Files() []string {
	entries, err := fs.ReadDir(NativeRuntimeFS(), ".")
	if err != nil {
		panic(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// WriteTo copies the runtime sources into dir and returns the written paths.
func WriteTo(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	src := NativeRuntimeFS()
	var written []string
	for _, name := range Files() {
		data, err := fs.ReadFile(src, name)
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
