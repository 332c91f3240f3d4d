package scheduler

import (
	"context"
	"fmt"
	"sync"
)

// wrapper is the graph's node identity for a submitted task. It is
// un-exported to enforce interaction through the Graph API: the arena map
// owns every wrapper for its lifetime, and edges are stored as id sets so
// no wrapper ever holds a pointer to another.
type wrapper struct {
	// id is the graph-assigned monotonic identifier.
	id uint64
	// task is the wrapped unit of work.
	task Task
	// submitted reports whether the wrapper has been handed to the ready buffer.
	submitted bool
	// executed is set once a result for this task has been processed. A
	// wrapper whose dependencies clear after it executed settles without
	// running again; this is how a task that spawned layers completes when
	// its final layer drains.
	executed bool
	// topLevel marks tasks admitted from the external input sequence, which
	// count against the graph's admission limit.
	topLevel bool
	// dependencyIDs holds ids of tasks that must complete before this one
	// is eligible.
	dependencyIDs map[uint64]struct{}
	// dependentIDs holds ids of tasks waiting on this one.
	dependentIDs map[uint64]struct{}
}

// Graph tracks dependency relationships between in-flight tasks and computes
// which tasks become executable as others complete. It is mutated only by
// the coordinating goroutines, never by workers, so a single mutex suffices.
type Graph struct {
	mu       sync.Mutex
	nextID   uint64
	wrappers map[uint64]*wrapper

	// topLevelSlots bounds the number of top-level tasks concurrently in
	// flight (registered but not yet completed), providing backpressure
	// against an input sequence that outpaces the workers.
	topLevelSlots chan struct{}
}

// NewGraph returns an empty graph admitting at most topLevelLimit top-level
// tasks at a time.
func NewGraph(topLevelLimit int) *Graph {
	return &Graph{
		wrappers:      make(map[uint64]*wrapper),
		topLevelSlots: make(chan struct{}, topLevelLimit),
	}
}

// AddTopLevel registers a task admitted from the external input sequence.
// It blocks while the graph is at its top-level admission limit, until a
// slot frees up or ctx is canceled.
func (g *Graph) AddTopLevel(ctx context.Context, task Task) (*wrapper, error) {
	select {
	case g.topLevelSlots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.addLocked(task, nil)
	w.topLevel = true
	return w, nil
}

// Add registers a spawned task. dependentIDs name the tasks whose execution
// this new task's completion should unblock; each named task gains the new
// id as an outstanding dependency. Spawned adds never block.
func (g *Graph) Add(task Task, dependentIDs []uint64) *wrapper {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addLocked(task, dependentIDs)
}

func (g *Graph) addLocked(task Task, dependentIDs []uint64) *wrapper {
	g.nextID++
	w := &wrapper{
		id:            g.nextID,
		task:          task,
		dependencyIDs: make(map[uint64]struct{}),
		dependentIDs:  make(map[uint64]struct{}),
	}
	for _, id := range dependentIDs {
		dep, ok := g.wrappers[id]
		if !ok {
			continue
		}
		w.dependentIDs[id] = struct{}{}
		dep.dependencyIDs[w.id] = struct{}{}
	}
	g.wrappers[w.id] = w
	return w
}

// AddLayers registers the follow-up layers reported by an executed task.
// Layers are processed in reverse so edges land correctly: the final layer
// is added with the executed parent as its dependent, and each earlier
// layer with the layer after it. The first layer therefore ends up with no
// outstanding dependencies and is returned as immediately executable. The
// parent settles (and frees its own dependents) once the final layer drains.
func (g *Graph) AddLayers(parent *wrapper, layers [][]Task) []*wrapper {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent.executed = true

	dependentIDs := []uint64{parent.id}
	var first []*wrapper
	for i := len(layers) - 1; i >= 0; i-- {
		ids := make([]uint64, 0, len(layers[i]))
		wrappers := make([]*wrapper, 0, len(layers[i]))
		for _, task := range layers[i] {
			w := g.addLocked(task, dependentIDs)
			ids = append(ids, w.id)
			wrappers = append(wrappers, w)
		}
		dependentIDs = ids
		first = wrappers
	}
	return first
}

// Complete marks a task as finished, removes it from the graph, and returns
// the dependents that became executable as a direct result. A dependent that
// already executed is settled recursively instead of being returned.
func (g *Graph) Complete(w *wrapper) []*wrapper {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ready []*wrapper
	g.completeLocked(w, &ready)
	return ready
}

func (g *Graph) completeLocked(w *wrapper, ready *[]*wrapper) {
	g.removeLocked(w)
	for id := range w.dependentIDs {
		dep, ok := g.wrappers[id]
		if !ok {
			continue
		}
		delete(dep.dependencyIDs, w.id)
		if len(dep.dependencyIDs) > 0 {
			continue
		}
		if dep.executed {
			g.completeLocked(dep, ready)
		} else {
			*ready = append(*ready, dep)
		}
	}
}

// Fail removes a failed task and, transitively, every task downstream of it.
// Skipped dependents are reported back so the executor can surface them;
// they are never executed.
func (g *Graph) Fail(w *wrapper) []SkippedTask {
	g.mu.Lock()
	defer g.mu.Unlock()
	var skipped []SkippedTask
	g.failLocked(w, w, &skipped)
	return skipped
}

// SkippedTask records a task removed from the graph without executing
// because something upstream of it failed.
type SkippedTask struct {
	ID   uint64
	Task Task
	Err  error
}

func (g *Graph) failLocked(w, cause *wrapper, skipped *[]SkippedTask) {
	g.removeLocked(w)
	for id := range w.dependentIDs {
		dep, ok := g.wrappers[id]
		if !ok {
			continue
		}
		*skipped = append(*skipped, SkippedTask{
			ID:   dep.id,
			Task: dep.task,
			Err:  fmt.Errorf("skipped due to upstream failure of %s", describeTask(cause.id, cause.task)),
		})
		g.failLocked(dep, cause, skipped)
	}
}

func (g *Graph) removeLocked(w *wrapper) {
	delete(g.wrappers, w.id)
	if w.topLevel {
		// Free an admission slot for the intake goroutine.
		<-g.topLevelSlots
	}
}

// IsEmpty reports whether no tasks remain tracked. The executor uses this,
// together with input exhaustion, to decide when shutdown should begin.
func (g *Graph) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.wrappers) == 0
}

// Len returns the number of tasks currently tracked.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.wrappers)
}

func (g *Graph) lookup(id uint64) *wrapper {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.wrappers[id]
}
