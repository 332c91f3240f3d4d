package scheduler

import (
	"sync"

	"github.com/earthboundkid/deque/v2"
)

// bufferItem is one entry in the ready buffer: either a wrapper awaiting
// dispatch or the shutdown marker.
type bufferItem struct {
	wrapper  *wrapper
	shutdown bool
}

// Buffer holds executable wrappers pending dispatch to the worker pool.
// It keeps two lanes: tasks spawned by completed work (high) and fresh
// top-level intake (low). The high lane drains strictly first, so started
// pipelines finish before new ones open, which bounds how much graph state
// can be in flight at once.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond
	high deque.Deque[bufferItem]
	low  deque.Deque[bufferItem]
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Put inserts a wrapper into the high-priority lane when prioritize is true
// (spawned follow-up work) or the low-priority lane when false (fresh
// top-level intake). It never blocks; admission control lives at the graph.
func (b *Buffer) Put(w *wrapper, prioritize bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prioritize {
		b.high.PushBack(bufferItem{wrapper: w})
	} else {
		b.low.PushBack(bufferItem{wrapper: w})
	}
	b.cond.Signal()
}

// PutShutdown enqueues the shutdown marker. It lands in the low lane so any
// already-buffered work is dispatched before the dispatch goroutine stops.
func (b *Buffer) PutShutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.low.PushBack(bufferItem{shutdown: true})
	b.cond.Signal()
}

// Get blocks until an item is available and returns it, always draining the
// high lane before the low lane.
func (b *Buffer) Get() bufferItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if item, ok := b.high.Front(); ok {
			b.high.RemoveFront()
			return item
		}
		if item, ok := b.low.Front(); ok {
			b.low.RemoveFront()
			return item
		}
		b.cond.Wait()
	}
}

// Len returns the total number of buffered items.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.high.Len() + b.low.Len()
}
