package scheduler

import "context"

// Task is a single unit of work. The scheduler is agnostic to what a task
// does; it only cares about the follow-up work a task reports.
//
// Execute performs the task's side effect and returns any follow-up layers.
// A nil or empty return means the task is self-contained. A non-empty return
// is an ordered sequence of layers: every task in layer 0 depends on this
// task having completed, every task in layer 1 depends on all of layer 0
// completing, and so on. Anything that was waiting on this task stays
// blocked until the last layer has drained. This models pipelines like
// "upload all parts, then compose the result".
//
// A returned error marks the task as failed. The scheduler performs no
// retries: the failed task's pipeline is skipped transitively, unrelated
// work keeps running, and Run reports the failure once the workload drains.
// Tasks that want retry or backoff behavior implement it themselves.
type Task interface {
	Execute(ctx context.Context) ([][]Task, error)
}
