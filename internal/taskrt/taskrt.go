// Package taskrt runs the parallel-for and async tasks produced by the task
// lowering. Tasks run to completion; the only cancellation is the context
// handed to each body.
package taskrt

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// TaskID identifies a spawned task.
type TaskID uint64

// Task is the handle returned by Spawn.
type Task struct {
	ID   TaskID
	done chan struct{}
	err  error
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Runtime executes task bodies.
type Runtime interface {
	// ParallelFor calls body for every index in [min, min+extent) and
	// returns the first error.
	ParallelFor(ctx context.Context, min, extent int32, body func(ctx context.Context, i int32) error) error
	// Spawn starts fn and returns its handle.
	Spawn(ctx context.Context, fn func(ctx context.Context) error) *Task
	// Join waits for t and returns its error.
	Join(t *Task) error
}

// ErrJoinedTwice is returned when a handle is joined more than once.
var ErrJoinedTwice = errors.New("taskrt: task joined twice")

// TaskError wraps the failure of one parallel-for index.
type TaskError struct {
	Index int32
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d: %v", e.Index, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

type tracker struct {
	nextID atomic.Uint64
	mu     sync.Mutex
	joined map[TaskID]struct{}
}

func (tr *tracker) task() *Task {
	return &Task{ID: TaskID(tr.nextID.Add(1)), done: make(chan struct{})}
}

func (tr *tracker) join(t *Task) error {
	if t == nil {
		return errors.New("taskrt: join of nil task")
	}
	<-t.done
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.joined == nil {
		tr.joined = make(map[TaskID]struct{})
	}
	if _, dup := tr.joined[t.ID]; dup {
		return ErrJoinedTwice
	}
	tr.joined[t.ID] = struct{}{}
	return t.err
}

// indices yields [min, min+extent) without overflowing int32 arithmetic.
func indices(min, extent int32) func(yield func(int32) bool) {
	return func(yield func(int32) bool) {
		end := int64(min) + int64(extent)
		for i := int64(min); i < end; i++ {
			if !yield(int32(i)) {
				return
			}
		}
	}
}

// Sequential runs every task inline on the calling goroutine, in index order.
// Spawned tasks run to completion before Spawn returns.
type Sequential struct {
	tracker
}

// NewSequential returns an inline runtime.
func NewSequential() *Sequential { return &Sequential{} }

func (s *Sequential) ParallelFor(ctx context.Context, min, extent int32, body func(ctx context.Context, i int32) error) error {
	for i := range indices(min, extent) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := body(ctx, i); err != nil {
			return &TaskError{Index: i, Err: err}
		}
	}
	return nil
}

func (s *Sequential) Spawn(ctx context.Context, fn func(ctx context.Context) error) *Task {
	t := s.task()
	t.err = fn(ctx)
	close(t.done)
	return t
}

func (s *Sequential) Join(t *Task) error { return s.join(t) }

// Concurrent runs parallel-for indices on an errgroup bounded by Limit and
// every spawned task on its own goroutine.
type Concurrent struct {
	tracker
	limit int
	live  sync.WaitGroup
}

// NewConcurrent returns a runtime running at most limit indices of one
// parallel-for at a time. A non-positive limit means GOMAXPROCS.
func NewConcurrent(limit int) *Concurrent {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &Concurrent{limit: limit}
}

// Limit reports the per-loop concurrency bound.
func (c *Concurrent) Limit() int { return c.limit }

func (c *Concurrent) ParallelFor(ctx context.Context, min, extent int32, body func(ctx context.Context, i int32) error) error {
	if extent <= 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i := range indices(min, extent) {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			if err := body(gctx, i); err != nil {
				return &TaskError{Index: i, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Concurrent) Spawn(ctx context.Context, fn func(ctx context.Context) error) *Task {
	t := c.task()
	c.live.Add(1)
	go func() {
		defer c.live.Done()
		defer close(t.done)
		t.err = fn(ctx)
	}()
	return t
}

func (c *Concurrent) Join(t *Task) error { return c.join(t) }

// Wait blocks until every spawned task has finished.
func (c *Concurrent) Wait() { c.live.Wait() }
