package ir

// Entry points of the task runtime. Lowered code reaches them through
// CallExtern calls; the interpreter and the C backend both resolve them by
// name.
const (
	// RuntimeParallelFor(fn, min, extent, closure...) runs fn once per index
	// and returns the first nonzero task result, or 0.
	RuntimeParallelFor = "dsp_run_parallel_for"
	// RuntimeAsyncTask(fn, closure...) starts fn and returns a handle.
	RuntimeAsyncTask = "dsp_run_async_task"
	// RuntimeJoinTask(handle) waits for the task and returns its result.
	RuntimeJoinTask = "dsp_join_task"
)

// IsRuntimeCall reports whether e is a call into the task runtime.
func IsRuntimeCall(e Expr) bool {
	c, ok := e.(*CallOp)
	if !ok {
		return false
	}
	switch c.Name {
	case RuntimeParallelFor, RuntimeAsyncTask, RuntimeJoinTask:
		return true
	}
	return false
}
