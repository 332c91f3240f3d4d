package scheduler

// defaultThreadCount is the number of consumer goroutines per worker group
// when none is configured.
const defaultThreadCount = 4

// Option configures an Executor.
type Option func(*Executor)

// WithProcessCount sets the number of worker groups (or worker processes,
// when combined with a process-isolated pool).
func WithProcessCount(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.procs = n
		}
	}
}

// WithThreadCount sets the number of consumers per worker group.
func WithThreadCount(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.threads = n
		}
	}
}

// WithTopLevelLimit overrides the top-level admission limit. The default is
// 2 * procs * threads.
func WithTopLevelLimit(n int) Option {
	return func(e *Executor) {
		e.topLevelLimit = n
	}
}

// WithPool injects a worker pool, replacing the default in-process one.
// The pool must match the configured procs and threads counts so the
// shutdown fan-out covers every consumer.
func WithPool(p Pool) Option {
	return func(e *Executor) {
		e.pool = p
	}
}

// WithRunID overrides the generated run identifier used in logs.
func WithRunID(id string) Option {
	return func(e *Executor) {
		e.runID = id
	}
}
