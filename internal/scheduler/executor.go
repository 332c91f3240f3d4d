package scheduler

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/vk/taskgrid/internal/ctxlog"
)

// failure records one task that failed or was skipped during a run.
type failure struct {
	desc string
	err  error
	skip bool
}

// Executor coordinates the full lifecycle of a task-graph run: intake from
// the input sequence, dispatch to the worker pool, completion handling, and
// the one-time shutdown fan-out.
type Executor struct {
	tasks         iter.Seq[Task]
	procs         int
	threads       int
	topLevelLimit int
	pool          Pool
	runID         string

	graph  *Graph
	buffer *Buffer

	// inputDone is set once the input sequence is exhausted. Together with
	// an empty graph it forms the exact termination condition.
	inputDone    atomic.Bool
	shutdownOnce sync.Once

	mu       sync.Mutex
	failures []failure
}

// New returns an executor over the given input sequence. Defaults: one
// worker group per CPU, defaultThreadCount consumers per group, a top-level
// admission limit of twice the consumer count, and an in-process pool.
func New(tasks iter.Seq[Task], opts ...Option) *Executor {
	e := &Executor{
		tasks:   tasks,
		procs:   runtime.NumCPU(),
		threads: defaultThreadCount,
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.topLevelLimit <= 0 {
		// Slack for two full worker-generations of tasks in flight.
		e.topLevelLimit = 2 * e.procs * e.threads
	}
	if e.pool == nil {
		e.pool = NewWorkerPool(e.procs, e.threads)
	}
	e.graph = NewGraph(e.topLevelLimit)
	e.buffer = NewBuffer()
	return e
}

// sentinelCount is the number of shutdown envelopes fanned out on
// termination: one per consumer, so every worker thread observes exactly
// one sentinel and exits.
func (e *Executor) sentinelCount() int {
	return e.procs * e.threads
}

// Run executes the entire workload, including all dynamically spawned
// follow-up work, and blocks until every worker has exited. It returns an
// aggregated error if any task failed.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("run_id", e.runID)
	ctx = ctxlog.WithLogger(ctx, logger)

	logger.Debug("Starting worker pool.", "procs", e.procs, "threads", e.threads, "top_level_limit", e.topLevelLimit)
	if err := e.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	var wg conc.WaitGroup
	wg.Go(func() { e.intake(ctx) })
	wg.Go(func() { e.dispatch(ctx) })
	wg.Go(func() { e.collect(ctx) })
	wg.Wait()

	logger.Debug("Coordinator goroutines finished, joining workers.")
	if err := e.pool.Join(); err != nil {
		return fmt.Errorf("worker pool join failed: %w", err)
	}
	logger.Debug("All workers exited.")

	return e.aggregateFailures()
}

// intake pulls tasks from the input sequence one at a time into the graph
// and the buffer's low-priority lane. Admission blocks while the graph is
// at its top-level limit.
func (e *Executor) intake(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	count := 0
	for task := range e.tasks {
		w, err := e.graph.AddTopLevel(ctx, task)
		if err != nil {
			logger.Warn("Intake stopped before input was exhausted.", "error", err, "admitted", count)
			e.beginShutdown(ctx)
			return
		}
		w.submitted = true
		e.buffer.Put(w, false)
		count++
	}
	logger.Debug("Input sequence exhausted.", "admitted", count)
	e.inputDone.Store(true)
	// Covers workloads that finish (or were empty) before intake ends:
	// no further completion will arrive to observe the termination
	// condition, so check it here too.
	if e.graph.IsEmpty() {
		e.beginShutdown(ctx)
	}
}

// dispatch moves buffered wrappers into the worker pool's task queue,
// blocking on both sides, until it dequeues the shutdown marker. It then
// performs the sentinel fan-out and stops.
func (e *Executor) dispatch(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for {
		item := e.buffer.Get()
		if item.shutdown {
			logger.Debug("Fanning out shutdown sentinels.", "count", e.sentinelCount())
			for i := 0; i < e.sentinelCount(); i++ {
				if err := e.pool.Put(ctx, Envelope{Kind: KindShutdown}); err != nil {
					logger.Warn("Shutdown fan-out interrupted.", "error", err)
					return
				}
			}
			return
		}
		if err := e.pool.Put(ctx, Envelope{Kind: KindTask, ID: item.wrapper.id, Task: item.wrapper.task}); err != nil {
			logger.Warn("Dispatch stopped.", "error", err)
			return
		}
	}
}

// collect consumes completed-task results, updates the graph, and feeds
// newly-executable wrappers back through the buffer's high-priority lane.
// It performs the one-time shutdown trigger when the input is exhausted and
// the graph holds nothing.
func (e *Executor) collect(ctx context.Context) {
	for {
		res, ok := e.pool.Get(ctx)
		if !ok {
			// Canceled or drained without observing the termination
			// condition; unblock the dispatch goroutine regardless.
			e.beginShutdown(ctx)
			return
		}
		e.handleResult(ctx, res)
		if e.inputDone.Load() && e.graph.IsEmpty() {
			e.beginShutdown(ctx)
			return
		}
	}
}

// handleResult applies one worker result to the graph.
func (e *Executor) handleResult(ctx context.Context, res Result) {
	logger := ctxlog.FromContext(ctx)
	w := e.graph.lookup(res.ID)
	if w == nil {
		logger.Error("Result for unknown task id dropped.", "task_id", res.ID)
		return
	}

	if res.Err != nil {
		desc := describeTask(w.id, w.task)
		logger.Error("Task failed.", "task", desc, "error", res.Err)
		e.recordFailure(failure{desc: desc, err: res.Err})
		for _, s := range e.graph.Fail(w) {
			logger.Warn("Skipping task due to upstream failure.", "task", describeTask(s.ID, s.Task))
			e.recordFailure(failure{desc: describeTask(s.ID, s.Task), err: s.Err, skip: true})
		}
		return
	}

	layers := nonEmptyLayers(res.Layers)
	var ready []*wrapper
	if len(layers) > 0 {
		logger.Debug("Task spawned follow-up layers.", "task_id", w.id, "layers", len(layers))
		ready = e.graph.AddLayers(w, layers)
	} else {
		ready = e.graph.Complete(w)
	}
	for _, nw := range ready {
		nw.submitted = true
		e.buffer.Put(nw, true)
	}
}

// beginShutdown routes the shutdown marker through the buffer exactly once;
// the dispatch goroutine turns it into the per-consumer sentinel fan-out.
func (e *Executor) beginShutdown(ctx context.Context) {
	e.shutdownOnce.Do(func() {
		ctxlog.FromContext(ctx).Debug("Workload drained, beginning shutdown.")
		e.buffer.PutShutdown()
	})
}

func (e *Executor) recordFailure(f failure) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, f)
}

// aggregateFailures folds recorded failures into a single error, wrapping
// the first real execution error as the root cause. Skips are symptoms,
// not causes.
func (e *Executor) aggregateFailures() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.failures) == 0 {
		return nil
	}

	var descs []string
	var rootCause error
	for _, f := range e.failures {
		descs = append(descs, f.desc)
		if rootCause == nil && !f.skip {
			rootCause = f.err
		}
	}
	if rootCause == nil {
		rootCause = e.failures[0].err
	}
	return fmt.Errorf("execution failed for %s: %w", strings.Join(descs, ", "), rootCause)
}

// nonEmptyLayers drops empty layers so a degenerate return like [[], [a]]
// cannot leave a wrapper chained to nothing.
func nonEmptyLayers(layers [][]Task) [][]Task {
	out := layers[:0:0]
	for _, layer := range layers {
		if len(layer) > 0 {
			out = append(out, layer)
		}
	}
	return out
}

// describeTask names a task for logs and errors, preferring the task's own
// Stringer over its graph id.
func describeTask(id uint64, task Task) string {
	if s, ok := task.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("task %d", id)
}
