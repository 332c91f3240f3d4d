package transport

import (
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vk/taskgrid/internal/scheduler"
)

// Codable is a task that can cross the process boundary. Its kind names a
// registered factory, and its fields must round-trip through msgpack.
type Codable interface {
	scheduler.Task
	TaskKind() string
}

var (
	kindsMu sync.RWMutex
	kinds   = make(map[string]func() Codable)
)

// RegisterKind registers a factory for a task kind. Both the coordinator
// and the worker binary must register the same kinds before a run;
// registering the same kind twice panics, as that is a wiring mistake.
func RegisterKind(kind string, factory func() Codable) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	if _, dup := kinds[kind]; dup {
		panic(fmt.Sprintf("transport: task kind %q registered twice", kind))
	}
	kinds[kind] = factory
}

func encodeTask(task scheduler.Task) (taskRef, error) {
	c, ok := task.(Codable)
	if !ok {
		return taskRef{}, fmt.Errorf("task %T cannot cross a process boundary: it does not implement transport.Codable", task)
	}
	payload, err := msgpack.Marshal(c)
	if err != nil {
		return taskRef{}, fmt.Errorf("failed to encode %q task: %w", c.TaskKind(), err)
	}
	return taskRef{Kind: c.TaskKind(), Payload: payload}, nil
}

func decodeTask(ref taskRef) (scheduler.Task, error) {
	kindsMu.RLock()
	factory, ok := kinds[ref.Kind]
	kindsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown task kind %q", ref.Kind)
	}
	task := factory()
	if err := msgpack.Unmarshal(ref.Payload, task); err != nil {
		return nil, fmt.Errorf("failed to decode %q task: %w", ref.Kind, err)
	}
	return task, nil
}

func encodeLayers(layers [][]scheduler.Task) ([][]taskRef, error) {
	if len(layers) == 0 {
		return nil, nil
	}
	out := make([][]taskRef, len(layers))
	for i, layer := range layers {
		out[i] = make([]taskRef, len(layer))
		for j, task := range layer {
			ref, err := encodeTask(task)
			if err != nil {
				return nil, err
			}
			out[i][j] = ref
		}
	}
	return out, nil
}

func decodeLayers(refs [][]taskRef) ([][]scheduler.Task, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make([][]scheduler.Task, len(refs))
	for i, layer := range refs {
		out[i] = make([]scheduler.Task, len(layer))
		for j, ref := range layer {
			task, err := decodeTask(ref)
			if err != nil {
				return nil, err
			}
			out[i][j] = task
		}
	}
	return out, nil
}
