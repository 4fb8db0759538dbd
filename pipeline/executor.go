package pipeline

// Executor decides how pipeline runs are scheduled.
type Executor interface {
	Go(fn func())
}

// AsyncExecutor runs each pipeline on its own goroutine.
type AsyncExecutor struct{}

func (AsyncExecutor) Go(fn func()) { go fn() }

// SyncExecutor runs the pipeline inline. Used in tests.
type SyncExecutor struct{}

func (SyncExecutor) Go(fn func()) { fn() }
