package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dspgen/internal/diag"
	"dspgen/internal/interp"
	"dspgen/internal/ir"
	"dspgen/internal/irpack"
	"dspgen/internal/lower"
	"dspgen/internal/taskrt"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <file.dspir> <func>",
	Short: "Execute a module function with the reference interpreter",
	Long: `Run a function of a module over buffers given on the command line and print
the buffers afterwards. Buffers are spelled name=type*count (zero filled) or
name=type:v0,v1,...; scalars are name=value.`,
	Args: cobra.ExactArgs(2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringArray("buf", nil, "buffer argument (name=int32*16 or name=int16:1,2,3)")
	runCmd.Flags().StringArray("arg", nil, "scalar argument (name=value)")
	runCmd.Flags().Int("jobs", 1, "worker limit for parallel loops and tasks (1 runs inline)")
	runCmd.Flags().Bool("lowered", false, "lower parallel tasks first and run through the task runtime")
}

func runRun(cmd *cobra.Command, args []string) error {
	path, fn := args[0], args[1]
	bufSpecs, err := cmd.Flags().GetStringArray("buf")
	if err != nil {
		return fmt.Errorf("failed to get buf flag: %w", err)
	}
	argSpecs, err := cmd.Flags().GetStringArray("arg")
	if err != nil {
		return fmt.Errorf("failed to get arg flag: %w", err)
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	lowered, err := cmd.Flags().GetBool("lowered")
	if err != nil {
		return fmt.Errorf("failed to get lowered flag: %w", err)
	}

	m, err := irpack.ReadFile(path)
	if err != nil {
		return reportError(cmd, err, diag.IRMalformedInput, path)
	}
	if err := ir.Validate(m); err != nil {
		return reportError(cmd, err, diag.IRInvalid, m.Name)
	}
	if lowered {
		low, err := lower.LowerModule(cmd.Context(), m)
		if err != nil {
			return reportError(cmd, err, diag.LowerInfo, m.Name)
		}
		m = low
	}
	f, ok := m.Func(fn)
	if !ok {
		return fmt.Errorf("%s: no function %q", path, fn)
	}

	bufs := make(map[string]*interp.Buffer, len(bufSpecs))
	for _, spec := range bufSpecs {
		b, err := parseBufferSpec(spec)
		if err != nil {
			return err
		}
		bufs[b.Name] = b
	}
	scalars, err := parseAssignments(argSpecs)
	if err != nil {
		return err
	}
	callArgs, err := bindArgs(f, bufs, scalars)
	if err != nil {
		return err
	}

	var rt taskrt.Runtime = taskrt.NewSequential()
	if jobs != 1 {
		rt = taskrt.NewConcurrent(jobs)
	}
	vm, err := interp.New(m, interp.Config{Runtime: rt})
	if err != nil {
		return err
	}
	if err := vm.Run(cmd.Context(), fn, callArgs); err != nil {
		return err
	}
	for _, a := range f.Args {
		if a.IsBuffer {
			printBuffer(cmd.OutOrStdout(), bufs[a.Name])
		}
	}
	return nil
}

// parseBufferSpec reads name=type*count or name=type:v0,v1,...
func parseBufferSpec(spec string) (*interp.Buffer, error) {
	name, rest, ok := strings.Cut(spec, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return nil, fmt.Errorf("buffer %q: expected name=type*count or name=type:values", spec)
	}
	if typ, count, ok := strings.Cut(rest, "*"); ok {
		elem, err := ir.ParseType(strings.TrimSpace(typ))
		if err != nil {
			return nil, fmt.Errorf("buffer %s: %w", name, err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("buffer %s: bad count %q", name, count)
		}
		return interp.NewBuffer(name, elem, n), nil
	}
	typ, values, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("buffer %s: expected type*count or type:values", name)
	}
	elem, err := ir.ParseType(strings.TrimSpace(typ))
	if err != nil {
		return nil, fmt.Errorf("buffer %s: %w", name, err)
	}
	fields := strings.Split(values, ",")
	b := interp.NewBuffer(name, elem, len(fields))
	for i, v := range fields {
		if err := b.Parse(i, v); err != nil {
			return nil, fmt.Errorf("buffer %s[%d]: %w", name, i, err)
		}
	}
	return b, nil
}

func parseAssignments(specs []string) (map[string]string, error) {
	out := make(map[string]string, len(specs))
	for _, spec := range specs {
		name, value, ok := strings.Cut(spec, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("argument %q: expected name=value", spec)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

// bindArgs matches the parameters of f to the parsed buffers and scalars.
func bindArgs(f *ir.LoweredFunc, bufs map[string]*interp.Buffer, scalars map[string]string) (interp.Args, error) {
	args := make(interp.Args, len(f.Args))
	for _, a := range f.Args {
		if a.IsBuffer {
			b, ok := bufs[a.Name]
			if !ok {
				return nil, fmt.Errorf("missing --buf %s=%s*N", a.Name, a.Type.Element())
			}
			if b.Elem != a.Type.Element() {
				return nil, fmt.Errorf("buffer %s holds %s, %s expects %s", a.Name, b.Elem, f.Name, a.Type.Element())
			}
			args[a.Name] = b
			continue
		}
		s, ok := scalars[a.Name]
		if !ok {
			return nil, fmt.Errorf("missing --arg %s=<%s>", a.Name, a.Type)
		}
		v, err := parseScalar(a.Type, s)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", a.Name, err)
		}
		args[a.Name] = v
	}
	return args, nil
}

func parseScalar(t ir.Type, s string) (interp.Value, error) {
	if !t.IsScalar() {
		return interp.Value{}, fmt.Errorf("cannot pass %s on the command line", t)
	}
	switch {
	case t.IsFloat():
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return interp.Value{}, err
		}
		return interp.Float(t, v), nil
	case t.IsBool():
		v, err := strconv.ParseBool(s)
		if err != nil {
			return interp.Value{}, err
		}
		return interp.Bool(v), nil
	case t.IsUInt():
		v, err := strconv.ParseUint(s, 0, int(t.Bits))
		if err != nil {
			return interp.Value{}, err
		}
		return interp.Int(t, int64(v)), nil //nolint:gosec // bit pattern kept by the value
	case t.IsInt():
		v, err := strconv.ParseInt(s, 0, int(t.Bits))
		if err != nil {
			return interp.Value{}, err
		}
		return interp.Int(t, v), nil
	}
	return interp.Value{}, fmt.Errorf("cannot pass %s on the command line", t)
}

func printBuffer(out io.Writer, b *interp.Buffer) {
	vals := make([]string, b.Len())
	for i := range vals {
		vals[i] = b.Format(i)
	}
	fmt.Fprintf(out, "%s = [%s]\n", b.Name, strings.Join(vals, " "))
}
