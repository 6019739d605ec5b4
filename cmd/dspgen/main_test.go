package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dspgen/internal/interp"
	"dspgen/internal/ir"
	"dspgen/internal/irpack"
	"dspgen/internal/target"
)

func writeScaleModule(t *testing.T, dir string) string {
	t.Helper()
	i := ir.NewVar("i", ir.Int(32))
	m := &ir.Module{
		Name:   "scale",
		Target: "xtensa-q8",
		Funcs: []ir.LoweredFunc{{
			Name: "scale",
			Args: []ir.Arg{ir.BufferArg("buf", ir.Int(32)), ir.ScalarArg("k", ir.Int(32))},
			Body: ir.ParFor("i", ir.I32(0), ir.I32(8),
				ir.StoreTo("buf", ir.Mul(ir.Load(ir.Int(32), "buf", i), ir.NewVar("k", ir.Int(32))), i)),
		}},
	}
	path := filepath.Join(dir, "scale"+irpack.Ext)
	if err := irpack.WriteFile(path, m); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--color", "off"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	file := writeScaleModule(t, dir)
	outDir := filepath.Join(dir, "out")

	if _, err := execute(t, "compile", "--target", "xtensa-q8", "-o", outDir, "--ui", "off", "--emit-runtime", file); err != nil {
		t.Fatalf("compile: %v", err)
	}
	src, err := os.ReadFile(filepath.Join(outDir, "scale.c"))
	if err != nil {
		t.Fatalf("compile output: %v", err)
	}
	if !strings.Contains(string(src), "dsp_run_parallel_for(scale_par_for_i_0_task") {
		t.Fatalf("generated C does not launch the loop:\n%s", src)
	}

	if _, err := os.Stat(filepath.Join(outDir, "dsp_task.h")); err != nil {
		t.Fatalf("runtime header not emitted: %v", err)
	}

	lowered := filepath.Join(dir, "scale.lowered"+irpack.Ext)
	if _, err := execute(t, "lower", file); err != nil {
		t.Fatalf("lower: %v", err)
	}
	text, err := execute(t, "dump", lowered)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(text, "scale.par_for.i.0") {
		t.Fatalf("dump of the lowered module:\n%s", text)
	}

	got, err := execute(t, "run", file, "scale", "--lowered", "--jobs", "4",
		"--buf", "buf=int32:1,2,3,4,5,6,7,8", "--arg", "k=-3")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if want := "buf = [-3 -6 -9 -12 -15 -18 -21 -24]\n"; got != want {
		t.Fatalf("run printed %q, want %q", got, want)
	}

	initDir := filepath.Join(dir, "proj")
	if _, err := execute(t, "init", initDir); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := execute(t, "init", initDir); err == nil {
		t.Fatal("second init succeeded")
	}
	proj, err := loadProject(filepath.Join(initDir, configName))
	if err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	if proj.Target.Name != "q8" || proj.OutDir != filepath.Join(initDir, "build") {
		t.Fatalf("default project = %+v", proj)
	}
}

func TestCompileReportsFailures(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "compile", "--target", "host", "-o", dir, "--ui", "off", filepath.Join(dir, "missing"+irpack.Ext))
	if !isExitError(err) {
		t.Fatalf("err = %v, want an exit error", err)
	}
	if !strings.Contains(out, "IO5001") || !strings.Contains(out, "failed: 1 error") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantErr string
		check   func(t *testing.T, p *project)
	}{
		{
			name: "header build",
			content: `[target]
base = "host"
output = "header"

[build]
jobs = 3
out_dir = "gen"
`,
			check: func(t *testing.T, p *project) {
				if p.Target.Arch != target.ArchHost || p.Target.Output != target.OutputHeader {
					t.Fatalf("target = %+v", p.Target)
				}
				if p.Jobs != 3 || p.OutDir != filepath.Join(dir, "gen") {
					t.Fatalf("build = %d %s", p.Jobs, p.OutDir)
				}
			},
		},
		{
			name:    "unknown key",
			content: "[build]\nthreads = 2\n",
			wantErr: "unknown keys: build.threads",
		},
		{
			name:    "negative jobs",
			content: "[build]\njobs = -1\n",
			wantErr: "must not be negative",
		},
		{
			name:    "bad base",
			content: "[target]\nbase = \"arm\"\n",
			wantErr: "unknown base target",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, configName)
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatal(err)
			}
			p, err := loadProject(path)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadProject: %v", err)
			}
			tc.check(t, p)
		})
	}
}

func TestResolveProject(t *testing.T) {
	p, err := resolveProject("host")
	if err != nil || p.Target.Arch != target.ArchHost || p.OutDir != defaultOutDir {
		t.Fatalf("resolveProject(host) = %+v, %v", p, err)
	}
	if _, err := resolveProject(filepath.Join(t.TempDir(), "nope.toml")); err == nil || !strings.Contains(err.Error(), "not a builtin") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseBufferSpec(t *testing.T) {
	tests := []struct {
		spec    string
		want    string
		wantErr string
	}{
		{"a=int16*3", "a = [0 0 0]\n", ""},
		{"b=uint8:1,0x10,255", "b = [1 16 255]\n", ""},
		{"c=float32: 0.5, -1", "c = [0.5 -1]\n", ""},
		{"=int8*1", "", "expected name=type"},
		{"d=int8", "", "expected type*count"},
		{"e=int8*-1", "", "bad count"},
		{"f=int8:300", "", "f[0]"},
		{"g=vec*2", "", "buffer g"},
	}
	for _, tc := range tests {
		b, err := parseBufferSpec(tc.spec)
		if tc.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("parseBufferSpec(%q) err = %v, want %q", tc.spec, err, tc.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseBufferSpec(%q): %v", tc.spec, err)
			continue
		}
		var out bytes.Buffer
		printBuffer(&out, b)
		if out.String() != tc.want {
			t.Errorf("parseBufferSpec(%q) prints %q, want %q", tc.spec, out.String(), tc.want)
		}
	}
}

func TestBindArgs(t *testing.T) {
	f := &ir.LoweredFunc{
		Name: "f",
		Args: []ir.Arg{ir.BufferArg("in", ir.Int(16)), ir.ScalarArg("n", ir.UInt(8)), ir.ScalarArg("v", ir.Int(32, 4))},
	}
	in, err := parseBufferSpec("in=int16*2")
	if err != nil {
		t.Fatal(err)
	}
	wrong, err := parseBufferSpec("in=int32*2")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		bufs    map[string]*interp.Buffer
		scalars map[string]string
		wantErr string
	}{
		{"missing buffer", nil, nil, "missing --buf in=int16*N"},
		{"wrong element", map[string]*interp.Buffer{"in": wrong}, nil, "holds int32"},
		{"missing scalar", map[string]*interp.Buffer{"in": in}, nil, "missing --arg n=<uint8>"},
		{"overflow", map[string]*interp.Buffer{"in": in}, map[string]string{"n": "256"}, "argument n"},
		{"vector scalar", map[string]*interp.Buffer{"in": in}, map[string]string{"n": "7", "v": "1"}, "cannot pass int32x4"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := bindArgs(f, tc.bufs, tc.scalars)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestCollectInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b" + irpack.Ext, "a" + irpack.Ext, "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	a := filepath.Join(dir, "a"+irpack.Ext)
	got, err := collectInputs([]string{a, dir, "missing" + irpack.Ext})
	if err != nil {
		t.Fatalf("collectInputs: %v", err)
	}
	want := []string{a, filepath.Join(dir, "b"+irpack.Ext), "missing" + irpack.Ext}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("inputs = %v, want %v", got, want)
	}
	if _, err := collectInputs([]string{t.TempDir()}); err == nil {
		t.Fatal("empty directory accepted")
	}
}

func TestCompileTargetFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := writeScaleModule(t, dir)
	t.Setenv("DSPGEN_TARGET", "host")
	t.Setenv("DSPGEN_JOBS", "2")
	// flag values persist between executions of rootCmd
	if err := compileCmd.Flags().Set("target", ""); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "compile", "-o", dir, "--ui", "off", file)
	if err != nil {
		t.Fatalf("compile: %v\n%s", err, out)
	}
	if !strings.Contains(out, "module was built for xtensa-q8, compiling for c") {
		t.Fatalf("expected a target mismatch warning:\n%s", out)
	}
	src, err := os.ReadFile(filepath.Join(dir, "scale.c"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(src), "xt_ivpn.h") {
		t.Fatal("host output includes the vendor header")
	}
}
