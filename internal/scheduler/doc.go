// Package scheduler is the execution core of taskgrid. It coordinates a
// dynamic, dependency-aware graph of tasks across a pool of workers.
//
// Tasks enter through an input sequence. Each task may, on completion,
// spawn further layers of tasks that must run in order before anything
// that was waiting on the original task becomes eligible. The Executor
// owns the bookkeeping: a Graph tracking dependency edges, a two-lane
// buffer that favors finishing started pipelines over admitting fresh
// work, and a worker pool fed through a pair of bounded queues.
package scheduler
