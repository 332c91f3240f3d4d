package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPriorityOrder(t *testing.T) {
	b := NewBuffer()
	g := NewGraph(4)

	low1 := g.Add(noopTask{}, nil)
	low2 := g.Add(noopTask{}, nil)
	high := g.Add(noopTask{}, nil)

	b.Put(low1, false)
	b.Put(low2, false)
	b.Put(high, true)

	// The high lane drains before anything in the low lane, regardless of
	// insertion order.
	assert.Same(t, high, b.Get().wrapper)
	assert.Same(t, low1, b.Get().wrapper)
	assert.Same(t, low2, b.Get().wrapper)
	assert.Equal(t, 0, b.Len())
}

func TestBufferShutdownAfterBufferedWork(t *testing.T) {
	b := NewBuffer()
	g := NewGraph(4)

	low := g.Add(noopTask{}, nil)
	b.Put(low, false)
	b.PutShutdown()
	high := g.Add(noopTask{}, nil)
	b.Put(high, true)

	assert.Same(t, high, b.Get().wrapper)
	assert.Same(t, low, b.Get().wrapper)
	assert.True(t, b.Get().shutdown)
}

func TestBufferGetBlocksUntilPut(t *testing.T) {
	b := NewBuffer()
	g := NewGraph(4)
	w := g.Add(noopTask{}, nil)

	got := make(chan bufferItem, 1)
	go func() { got <- b.Get() }()

	select {
	case <-got:
		t.Fatal("Get returned from an empty buffer")
	case <-time.After(50 * time.Millisecond):
	}

	b.Put(w, true)
	select {
	case item := <-got:
		require.Same(t, w, item.wrapper)
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not observe the put")
	}
}
