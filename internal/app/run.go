package app

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strconv"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/scheduler"
	"github.com/vk/taskgrid/internal/transport"
	"github.com/vk/taskgrid/internal/workload"
)

// Run executes the loaded workload and blocks until every task, including
// all dynamically spawned follow-up work, has completed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.config.HealthcheckPort)
	}

	tasks := a.grid.Tasks()
	if len(tasks) == 0 {
		a.logger.Warn("No jobs found in grid, execution not required.")
		return nil
	}

	procs := a.config.Procs
	if procs <= 0 {
		procs = runtime.NumCPU()
	}
	threads := a.config.Threads

	opts := []scheduler.Option{
		scheduler.WithProcessCount(procs),
		scheduler.WithThreadCount(threads),
	}
	if a.config.Isolate {
		a.logger.Debug("Using process-isolated worker pool.")
		opts = append(opts, scheduler.WithPool(
			transport.NewProcessPool(procs, threads, WorkerFlag, strconv.Itoa(threads)),
		))
	}

	a.logger.Info("🚀 Starting concurrent execution...", "tasks", len(tasks), "procs", procs, "threads", threads, "isolate", a.config.Isolate)
	exec := scheduler.New(slices.Values(tasks), opts...)
	if err := exec.Run(ctx); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Execution finished.")

	a.logger.Debug("App.Run method finished.")
	return nil
}

// RunWorker is the worker-mode entry point used by process isolation: the
// parent coordinator feeds task frames over stdin and reads results from
// stdout.
func RunWorker(ctx context.Context, cfg *Config) error {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	ctx = ctxlog.WithLogger(ctx, logger)

	workload.RegisterKinds()
	return transport.WorkerMain(ctx, os.Stdin, os.Stdout, cfg.WorkerThreads)
}
