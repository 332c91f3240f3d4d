package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/scheduler"
)

// workerProc is one spawned worker process together with its pipes and its
// dispatch credits.
type workerProc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	// credits bounds tasks in flight inside this child to its consumer
	// count: one taken per task frame written, one returned per result
	// frame read. Shutdown frames carry no work and need no credit.
	credits chan struct{}
}

// ProcessPool is a scheduler.Pool backed by real OS worker processes. The
// coordinator re-execs its own binary with workerArgs once per process;
// each child runs `threads` consumers over its stdin/stdout frame stream.
// Total in-flight work is bounded to procs*threads by per-child credits,
// the same headroom the in-process pool gets from its channel capacity.
type ProcessPool struct {
	procs      int
	threads    int
	workerArgs []string

	tasks    chan scheduler.Envelope
	results  chan scheduler.Result
	children []*workerProc
	io       sync.WaitGroup
}

// NewProcessPool returns a pool of procs worker processes with threads
// consumers each. workerArgs are the command-line arguments that put the
// re-exec'd binary into worker mode.
func NewProcessPool(procs, threads int, workerArgs ...string) *ProcessPool {
	return &ProcessPool{
		procs:      procs,
		threads:    threads,
		workerArgs: workerArgs,
		tasks:      make(chan scheduler.Envelope, procs*threads),
		results:    make(chan scheduler.Result, procs*threads),
	}
}

// Start spawns the worker processes and their feeder/reader goroutines.
func (p *ProcessPool) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own binary for worker re-exec: %w", err)
	}

	for i := 0; i < p.procs; i++ {
		cmd := exec.Command(exe, p.workerArgs...)
		cmd.Stderr = os.Stderr
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return err
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start worker process: %w", err)
		}
		logger.Debug("Worker process started.", "pid", cmd.Process.Pid)

		child := &workerProc{
			cmd:     cmd,
			stdin:   stdin,
			stdout:  stdout,
			credits: make(chan struct{}, p.threads),
		}
		for j := 0; j < p.threads; j++ {
			child.credits <- struct{}{}
		}
		p.children = append(p.children, child)

		p.io.Add(2)
		go p.feed(ctx, child)
		go p.read(ctx, child)
	}

	go func() {
		p.io.Wait()
		close(p.results)
	}()
	return nil
}

// feed pulls envelopes from the shared task queue and writes them to one
// child. It stops after forwarding exactly one shutdown frame per consumer;
// sentinels are enqueued only once the workload has drained, so every
// feeder ends up delivering its child's share.
func (p *ProcessPool) feed(ctx context.Context, child *workerProc) {
	defer p.io.Done()
	defer child.stdin.Close()

	sentinels := 0
	for {
		var env scheduler.Envelope
		select {
		case env = <-p.tasks:
		case <-ctx.Done():
			return
		}

		if env.Kind == scheduler.KindShutdown {
			if err := writeFrame(child.stdin, taskFrame{Kind: scheduler.KindShutdown}); err != nil {
				return
			}
			sentinels++
			if sentinels == p.threads {
				return
			}
			continue
		}

		select {
		case <-child.credits:
		case <-ctx.Done():
			return
		}

		ref, err := encodeTask(env.Task)
		if err != nil {
			child.credits <- struct{}{}
			p.report(ctx, scheduler.Result{ID: env.ID, Err: err})
			continue
		}
		if err := writeFrame(child.stdin, taskFrame{Kind: scheduler.KindTask, ID: env.ID, Task: &ref}); err != nil {
			// Child is gone; fail the task so the graph can drain.
			child.credits <- struct{}{}
			p.report(ctx, scheduler.Result{ID: env.ID, Err: fmt.Errorf("worker process unreachable: %w", err)})
		}
	}
}

// read consumes result frames from one child, returning a credit and
// forwarding each result to the shared output queue. It exits on EOF when
// the child does.
func (p *ProcessPool) read(ctx context.Context, child *workerProc) {
	defer p.io.Done()

	br := bufio.NewReader(child.stdout)
	for {
		var rf resultFrame
		if err := readFrame(br, &rf); err != nil {
			return
		}

		select {
		case child.credits <- struct{}{}:
		default:
		}

		res := scheduler.Result{ID: rf.ID}
		switch {
		case rf.Err != "":
			res.Err = errors.New(rf.Err)
		default:
			layers, err := decodeLayers(rf.Layers)
			if err != nil {
				res.Err = err
			} else {
				res.Layers = layers
			}
		}
		if !p.report(ctx, res) {
			return
		}
	}
}

func (p *ProcessPool) report(ctx context.Context, res scheduler.Result) bool {
	select {
	case p.results <- res:
		return true
	case <-ctx.Done():
		return false
	}
}

// Put enqueues an envelope for any worker process, blocking while the
// shared task queue is full.
func (p *ProcessPool) Put(ctx context.Context, env scheduler.Envelope) error {
	select {
	case p.tasks <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the next result.
func (p *ProcessPool) Get(ctx context.Context) (scheduler.Result, bool) {
	select {
	case res, ok := <-p.results:
		return res, ok
	case <-ctx.Done():
		return scheduler.Result{}, false
	}
}

// Join waits for the feeder/reader goroutines and then for every worker
// process to exit.
func (p *ProcessPool) Join() error {
	p.io.Wait()
	var errs []error
	for _, child := range p.children {
		if err := child.cmd.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("worker process %d: %w", child.cmd.Process.Pid, err))
		}
	}
	return errors.Join(errs...)
}
