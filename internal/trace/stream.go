package trace

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sync"
)

// StreamTracer writes each event as it arrives. Write errors are dropped so
// tracing never fails a build.
type StreamTracer struct {
	mu     sync.Mutex
	w      io.Writer
	buf    *bufio.Writer // set when the tracer owns a file
	file   *os.File
	level  Level
	format Format
}

// NewStreamTracer writes to w unbuffered. Close leaves w open.
func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	return &StreamTracer{w: w, level: level, format: format}
}

// newFileStream buffers writes to f and closes it with the tracer.
func newFileStream(f *os.File, level Level, format Format) *StreamTracer {
	buf := bufio.NewWriter(f)
	return &StreamTracer{w: buf, buf: buf, file: f, level: level, format: format}
}

func (t *StreamTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	stamp(ev)
	data := FormatEvent(ev, t.format)

	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = t.w.Write(data) //nolint:errcheck
}

func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buf != nil {
		return t.buf.Flush()
	}
	return nil
}

// Close flushes and closes the trace file, if the tracer opened one.
func (t *StreamTracer) Close() error {
	err := t.Flush()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file != nil {
		err = errors.Join(err, t.file.Close())
		t.file, t.buf, t.w = nil, nil, io.Discard
	}
	return err
}

func (t *StreamTracer) Level() Level  { return t.level }
func (t *StreamTracer) Enabled() bool { return t.level > LevelOff }
