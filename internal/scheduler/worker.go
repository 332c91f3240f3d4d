package scheduler

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"
)

// Envelope kinds. The shutdown kind is compared structurally, never by
// identity, because envelopes may cross a serialization boundary on their
// way to a worker process.
const (
	KindTask     = "task"
	KindShutdown = "shutdown"
)

// Envelope is one message on the coordinator-to-worker task queue: a
// wrapped task, or the shutdown marker telling one consumer to exit.
type Envelope struct {
	Kind string
	ID   uint64
	Task Task
}

// Result is one message on the worker-to-coordinator output queue.
type Result struct {
	ID     uint64
	Layers [][]Task
	Err    error
}

// Pool is the executor's view of a worker pool. Put and Get are the two
// bounded blocking queues of the coordination protocol; both honor ctx so
// a canceled run cannot wedge the coordinator.
type Pool interface {
	// Start launches the workers.
	Start(ctx context.Context) error
	// Put enqueues an envelope for a worker, blocking while the task queue
	// is full.
	Put(ctx context.Context, env Envelope) error
	// Get dequeues the next result, blocking while none is available. It
	// returns false once the pool has drained after shutdown or ctx ends.
	Get(ctx context.Context) (Result, bool)
	// Join blocks until every worker has exited.
	Join() error
}

// WorkerPool runs tasks on procs worker groups of threads consumer
// goroutines each, all sharing one bounded task queue and one bounded
// output queue. The group-of-consumers shape mirrors a process worker
// bootstrapping its consumer threads; ProcessPool provides the same
// protocol with real OS process isolation.
type WorkerPool struct {
	procs   int
	threads int

	tasks   chan Envelope
	results chan Result
	groups  sync.WaitGroup
}

// NewWorkerPool returns an in-process pool of procs groups with threads
// consumers each. Both queues are sized to procs*threads, one slot of
// headroom per consumer, bounding the number of tasks in flight between
// coordinator and workers.
func NewWorkerPool(procs, threads int) *WorkerPool {
	return &WorkerPool{
		procs:   procs,
		threads: threads,
		tasks:   make(chan Envelope, procs*threads),
		results: make(chan Result, procs*threads),
	}
}

// Start launches the worker groups. The results queue closes once every
// group has exited.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.groups.Add(p.procs)
	for i := 0; i < p.procs; i++ {
		go p.workerGroup(ctx)
	}
	go func() {
		p.groups.Wait()
		close(p.results)
	}()
	return nil
}

// workerGroup starts the group's consumers and joins them all before
// returning, the same lifecycle a worker process runs.
func (p *WorkerPool) workerGroup(ctx context.Context) {
	defer p.groups.Done()
	var wg conc.WaitGroup
	for i := 0; i < p.threads; i++ {
		wg.Go(func() { p.consume(ctx) })
	}
	wg.Wait()
}

// consume is the consumer loop: dequeue, execute, report. A shutdown
// envelope ends the loop without being executed or re-enqueued; each
// consumer swallows exactly one.
func (p *WorkerPool) consume(ctx context.Context) {
	for {
		var env Envelope
		select {
		case env = <-p.tasks:
		case <-ctx.Done():
			return
		}
		if env.Kind == KindShutdown {
			return
		}

		layers, err := env.Task.Execute(ctx)

		select {
		case p.results <- Result{ID: env.ID, Layers: layers, Err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// Put enqueues an envelope, blocking while the task queue is full.
func (p *WorkerPool) Put(ctx context.Context, env Envelope) error {
	select {
	case p.tasks <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the next result.
func (p *WorkerPool) Get(ctx context.Context) (Result, bool) {
	select {
	case res, ok := <-p.results:
		return res, ok
	case <-ctx.Done():
		return Result{}, false
	}
}

// Join blocks until all worker groups have exited.
func (p *WorkerPool) Join() error {
	p.groups.Wait()
	return nil
}
