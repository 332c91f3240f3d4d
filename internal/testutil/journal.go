// Package testutil provides shared helpers for exercising the scheduler in
// tests: a journal that records task executions with timestamps, and a
// configurable task type that writes to it.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/taskgrid/internal/scheduler"
)

// ExecutionRecord captures one task execution.
type ExecutionRecord struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Journal is a concurrency-safe log of task executions in completion order.
type Journal struct {
	mu      sync.Mutex
	records []ExecutionRecord
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) add(rec ExecutionRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
}

// Records returns a copy of all recorded executions.
func (j *Journal) Records() []ExecutionRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]ExecutionRecord, len(j.records))
	copy(out, j.records)
	return out
}

// Names returns the recorded task names in completion order.
func (j *Journal) Names() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	names := make([]string, len(j.records))
	for i, rec := range j.records {
		names[i] = rec.Name
	}
	return names
}

// Count returns the number of recorded executions.
func (j *Journal) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.records)
}

// CountOf returns how many times the named task executed.
func (j *Journal) CountOf(name string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, rec := range j.records {
		if rec.Name == name {
			n++
		}
	}
	return n
}

// Index returns the completion-order position of the named task's first
// execution, or -1 if it never ran.
func (j *Journal) Index(name string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, rec := range j.records {
		if rec.Name == name {
			return i
		}
	}
	return -1
}

// Record looks up the named task's first execution.
func (j *Journal) Record(name string) (ExecutionRecord, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, rec := range j.records {
		if rec.Name == name {
			return rec, true
		}
	}
	return ExecutionRecord{}, false
}

// Step is a scheduler.Task that records its execution in a journal. Layers,
// Delay, and Err shape its behavior; the zero values give an instantaneous
// successful task with no follow-up work.
type Step struct {
	Name    string
	Journal *Journal
	Layers  [][]scheduler.Task
	Delay   time.Duration
	Err     error
}

// NewStep returns a journal-recording task.
func (j *Journal) NewStep(name string) *Step {
	return &Step{Name: name, Journal: j}
}

func (s *Step) String() string { return s.Name }

// Execute records the execution and returns the configured layers and error.
func (s *Step) Execute(ctx context.Context) ([][]scheduler.Task, error) {
	start := time.Now()
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.Journal.add(ExecutionRecord{Name: s.Name, Start: start, End: time.Now()})
	return s.Layers, s.Err
}
