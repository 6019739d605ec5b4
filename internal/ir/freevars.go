package ir

import "fmt"

// Capture is a name referenced but not bound inside a region.
type Capture struct {
	Name     string
	Type     Type
	IsBuffer bool
}

// Arg converts the capture into a function parameter.
func (c Capture) Arg() Arg {
	return Arg{Name: c.Name, Type: c.Type, IsBuffer: c.IsBuffer}
}

// CaptureConflictError reports a name used with two incompatible types.
type CaptureConflictError struct {
	Name  string
	First Type
	Other Type
}

func (e *CaptureConflictError) Error() string {
	return fmt.Sprintf("%q is referenced as both %s and %s", e.Name, e.First, e.Other)
}

type freeVarCollector struct {
	bound map[string]int
	seen  map[string]int
	out   []Capture
	err   error
}

// FreeVars returns the names referenced in s that are not bound inside s nor
// listed in bound, ordered by first occurrence in a pre-order traversal.
// Buffers accessed by Load and Store are reported with IsBuffer set and their
// element type.
func FreeVars(s Stmt, bound ...string) ([]Capture, error) {
	c := &freeVarCollector{
		bound: make(map[string]int, len(bound)),
		seen:  make(map[string]int),
	}
	for _, name := range bound {
		c.bound[name]++
	}
	c.stmt(s)
	if c.err != nil {
		return nil, c.err
	}
	return c.out, nil
}

// FreeVarsExpr is FreeVars for a single expression.
func FreeVarsExpr(e Expr, bound ...string) ([]Capture, error) {
	c := &freeVarCollector{
		bound: make(map[string]int, len(bound)),
		seen:  make(map[string]int),
	}
	for _, name := range bound {
		c.bound[name]++
	}
	c.expr(e)
	if c.err != nil {
		return nil, c.err
	}
	return c.out, nil
}

func (c *freeVarCollector) push(name string) { c.bound[name]++ }

func (c *freeVarCollector) pop(name string) {
	c.bound[name]--
	if c.bound[name] == 0 {
		delete(c.bound, name)
	}
}

func (c *freeVarCollector) use(name string, t Type, isBuffer bool) {
	if c.err != nil || c.bound[name] > 0 {
		return
	}
	if idx, ok := c.seen[name]; ok {
		prev := &c.out[idx]
		switch {
		case prev.IsBuffer && isBuffer:
			if prev.Type != t {
				c.err = &CaptureConflictError{Name: name, First: prev.Type, Other: t}
			}
		case prev.IsBuffer != isBuffer:
			// a buffer may also be passed around as a plain handle
			other := t
			if isBuffer {
				other = prev.Type
				prev.IsBuffer = true
				prev.Type = t
			}
			if !other.IsHandle() {
				c.err = &CaptureConflictError{Name: name, First: prev.Type, Other: other}
			}
		default:
			if prev.Type != t {
				c.err = &CaptureConflictError{Name: name, First: prev.Type, Other: t}
			}
		}
		return
	}
	c.seen[name] = len(c.out)
	c.out = append(c.out, Capture{Name: name, Type: t, IsBuffer: isBuffer})
}

func (c *freeVarCollector) expr(e Expr) {
	if e == nil || c.err != nil {
		return
	}
	switch n := e.(type) {
	case *Var:
		c.use(n.Name, n.T, false)
	case *LoadOp:
		c.use(n.Buffer, n.T.Element(), true)
		c.expr(n.Index)
	case *LetOp:
		c.expr(n.Value)
		c.push(n.Name)
		c.expr(n.Body)
		c.pop(n.Name)
	default:
		for _, k := range ExprChildren(e) {
			c.expr(k)
		}
	}
}

func (c *freeVarCollector) stmt(s Stmt) {
	if s == nil || c.err != nil {
		return
	}
	switch n := s.(type) {
	case *LetStmt:
		c.expr(n.Value)
		c.push(n.Name)
		c.stmt(n.Body)
		c.pop(n.Name)
	case *For:
		c.expr(n.Min)
		c.expr(n.Extent)
		c.push(n.Name)
		c.stmt(n.Body)
		c.pop(n.Name)
	case *ParallelFor:
		c.expr(n.Min)
		c.expr(n.Extent)
		c.push(n.Name)
		c.stmt(n.Body)
		c.pop(n.Name)
	case *Allocate:
		c.expr(n.Extent)
		c.push(n.Name)
		c.stmt(n.Body)
		c.pop(n.Name)
	case *Store:
		c.expr(n.Value)
		c.use(n.Buffer, n.Value.Type().Element(), true)
		c.expr(n.Index)
	default:
		for _, e := range StmtExprs(s) {
			c.expr(e)
		}
		for _, k := range StmtChildren(s) {
			c.stmt(k)
		}
	}
}
