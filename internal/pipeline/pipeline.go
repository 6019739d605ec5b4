// Package pipeline drives .dspir modules through validation, parallel task
// lowering and C emission, one unit per file, several units at a time.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"dspgen/internal/codegen/cgen"
	"dspgen/internal/codegen/xtensa"
	"dspgen/internal/diag"
	"dspgen/internal/ir"
	"dspgen/internal/irpack"
	"dspgen/internal/lower"
	"dspgen/internal/observ"
	"dspgen/internal/target"
	"dspgen/internal/trace"
)

// Request configures a multi-unit build.
type Request struct {
	Files          []string
	Target         *target.Target
	OutDir         string
	Jobs           int
	MaxDiagnostics int
	Progress       ProgressSink
	Timer          *observ.Timer
}

// UnitResult describes one compiled file.
type UnitResult struct {
	File        string
	Module      string
	Output      string
	Tasks       int
	Diagnostics *diag.Bag
	Timings     Timings
}

// Failed reports whether the unit produced an error diagnostic.
func (u *UnitResult) Failed() bool {
	return u.Diagnostics != nil && u.Diagnostics.HasErrors()
}

// Result collects the units of a build in request order.
type Result struct {
	Units []UnitResult
}

// HasErrors reports whether any unit failed.
func (r Result) HasErrors() bool {
	for i := range r.Units {
		if r.Units[i].Failed() {
			return true
		}
	}
	return false
}

// Diagnostics merges the per-unit bags into one sorted, deduplicated bag.
func (r Result) Diagnostics(maxDiagnostics int) *diag.Bag {
	bag := diag.NewBag(maxDiagnostics)
	for i := range r.Units {
		if r.Units[i].Diagnostics != nil {
			bag.Merge(r.Units[i].Diagnostics)
		}
	}
	bag.Sort()
	bag.Dedup()
	return bag
}

// Compile builds every file of req. Unit failures are reported through the
// unit diagnostics; the returned error covers a malformed request and
// cancellation only.
func Compile(ctx context.Context, req *Request) (Result, error) {
	var result Result
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return result, fmt.Errorf("missing compile request")
	}
	if len(req.Files) == 0 {
		return result, fmt.Errorf("no input files")
	}
	if req.Target == nil {
		return result, fmt.Errorf("missing target")
	}
	if err := req.Target.Validate(); err != nil {
		return result, err
	}

	span, ctx := trace.Start(ctx, trace.ScopeDriver, "compile")
	defer span.End(fmt.Sprintf("%d units", len(req.Files)))

	if req.Progress != nil {
		emitQueued(req.Progress, req.Files)
	}

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = len(req.Files)
	}
	result.Units = make([]UnitResult, len(req.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(req.Files)))
	for i, file := range req.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result.Units[i] = compileUnit(gctx, req, file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

type unit struct {
	req    *Request
	file   string
	res    *UnitResult
	site   diag.Site
	failed bool
}

func compileUnit(ctx context.Context, req *Request, file string) UnitResult {
	res := UnitResult{File: file, Diagnostics: diag.NewBag(req.MaxDiagnostics)}
	u := &unit{req: req, file: file, res: &res, site: diag.Site{Unit: file}}
	span, ctx := trace.Start(ctx, trace.ScopeModule, file)
	defer func() {
		status := "ok"
		if u.failed {
			status = "failed"
		}
		span.End(status)
	}()

	var m *ir.Module
	u.stage(StageLoad, func() error {
		var err error
		m, err = irpack.ReadFile(file)
		if err != nil {
			code := diag.IRMalformedInput
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				code = diag.IOLoadFileError
			}
			u.report(err, code)
			return err
		}
		res.Module = m.Name
		u.site.Unit = m.Name
		if m.Target != "" && !req.Target.Matches(m.Target) {
			diag.ReportWarning(diag.BagReporter{Bag: res.Diagnostics}, diag.TargetInfo, u.site,
				fmt.Sprintf("module was built for %s, compiling for %s", m.Target, req.Target.Name)).
				WithNote(diag.Site{Unit: m.Name}, "pass --target "+m.Target+" to match").
				Emit()
		}
		return nil
	})
	if m != nil {
		ctx = trace.WithUnit(ctx, m.Name)
	}
	u.stage(StageValidate, func() error {
		err := ir.Validate(m)
		if err == nil {
			return nil
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				u.report(e, diag.IRInvalid)
			}
		} else {
			u.report(err, diag.IRInvalid)
		}
		return err
	})
	var lowered *ir.Module
	u.stage(StageLower, func() error {
		var err error
		lowered, err = lower.LowerModule(ctx, m)
		if err != nil {
			u.report(err, diag.LowerInfo)
			return err
		}
		res.Tasks = len(lowered.Funcs) - len(m.Funcs)
		return nil
	})
	var src bytes.Buffer
	u.stage(StageCodegen, func() error {
		span, cctx := trace.Start(ctx, trace.ScopePass, "codegen")
		err := xtensa.New(&src, req.Target).WithContext(cctx).CompileModule(lowered)
		if err != nil {
			u.report(err, diag.CodegenUnsupportedNode)
			span.End("failed")
			return err
		}
		span.End(req.Target.Name)
		return nil
	})
	u.stage(StageWrite, func() error {
		path := OutputPath(req.OutDir, lowered.Name, req.Target.Output)
		if err := writeFile(path, src.Bytes()); err != nil {
			u.report(err, diag.IOWriteFileError)
			return err
		}
		res.Output = path
		return nil
	})
	return res
}

// stage runs fn unless an earlier stage failed, recording its duration and
// progress events.
func (u *unit) stage(stage Stage, fn func() error) {
	if u.failed {
		return
	}
	emit(u.req.Progress, u.file, stage, StatusWorking, nil, 0)
	idx := u.req.Timer.Begin(u.file + ": " + string(stage))
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	u.res.Timings.Set(stage, elapsed)
	note := ""
	status := StatusDone
	if err != nil {
		u.failed = true
		note = "failed"
		status = StatusError
	}
	u.req.Timer.End(idx, note)
	emit(u.req.Progress, u.file, stage, status, err, elapsed)
}

func (u *unit) report(err error, code diag.Code) {
	u.res.Diagnostics.Add(diag.FromError(err, code, u.site))
}

// OutputPath is where the C text of module name lands inside dir.
func OutputPath(dir, name string, kind target.OutputKind) string {
	ext := ".c"
	if kind == target.OutputHeader {
		ext = ".h"
	}
	return filepath.Join(dir, cgen.SanitizeName(name)+ext)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

func emit(sink ProgressSink, file string, stage Stage, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{File: file, Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}

func emitQueued(sink ProgressSink, files []string) {
	for _, file := range files {
		emit(sink, file, StageLoad, StatusQueued, nil, 0)
	}
}

// LowerFile reads in, validates and lowers it, and writes the lowered module
// to out. The lowered module is returned for display.
func LowerFile(ctx context.Context, in, out string) (*ir.Module, error) {
	m, err := irpack.ReadFile(in)
	if err != nil {
		return nil, err
	}
	if err := ir.Validate(m); err != nil {
		return nil, diag.Errorf(diag.IRInvalid, diag.Site{Unit: m.Name}, "%v", err)
	}
	lowered, err := lower.LowerModule(ctx, m)
	if err != nil {
		return nil, err
	}
	if out != "" {
		if err := irpack.WriteFile(out, lowered); err != nil {
			return nil, diag.Errorf(diag.IOWriteFileError, diag.Site{Unit: m.Name}, "%v", err)
		}
	}
	return lowered, nil
}

// Dump renders the module stored at path as text, lowering it first when
// asked to.
func Dump(ctx context.Context, path string, lowered bool) (string, error) {
	m, err := irpack.ReadFile(path)
	if err != nil {
		return "", err
	}
	if lowered {
		if m, err = lower.LowerModule(ctx, m); err != nil {
			return "", err
		}
	}
	var sb strings.Builder
	ir.DumpModule(&sb, m)
	return sb.String(), nil
}
