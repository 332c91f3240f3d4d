package scheduler_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgrid/internal/scheduler"
	"github.com/vk/taskgrid/internal/testutil"
)

func runTasks(t *testing.T, tasks []scheduler.Task, opts ...scheduler.Option) error {
	t.Helper()
	exec := scheduler.New(slices.Values(tasks), opts...)
	return exec.Run(context.Background())
}

func TestRunExecutesEveryTaskExactlyOnce(t *testing.T) {
	j := testutil.NewJournal()
	tasks := []scheduler.Task{j.NewStep("t1"), j.NewStep("t2"), j.NewStep("t3")}

	err := runTasks(t, tasks, scheduler.WithProcessCount(1), scheduler.WithThreadCount(2))
	require.NoError(t, err)

	assert.Equal(t, 3, j.Count())
	for _, name := range []string{"t1", "t2", "t3"} {
		assert.Equal(t, 1, j.CountOf(name), "task %s", name)
	}
}

func TestRunEmptyInput(t *testing.T) {
	err := runTasks(t, nil, scheduler.WithProcessCount(1), scheduler.WithThreadCount(2))
	require.NoError(t, err)
}

func TestRunChainedLayers(t *testing.T) {
	j := testutil.NewJournal()
	a := j.NewStep("a")
	a.Layers = [][]scheduler.Task{{j.NewStep("b")}, {j.NewStep("c")}}

	err := runTasks(t, []scheduler.Task{a}, scheduler.WithProcessCount(1), scheduler.WithThreadCount(2))
	require.NoError(t, err)

	require.Equal(t, 3, j.Count())
	assert.Equal(t, []string{"a", "b", "c"}, j.Names())
}

func TestRunLayerBarrier(t *testing.T) {
	j := testutil.NewJournal()
	a := j.NewStep("a")
	a.Layers = [][]scheduler.Task{
		{j.NewStep("b"), j.NewStep("c")},
		{j.NewStep("d"), j.NewStep("e")},
	}

	err := runTasks(t, []scheduler.Task{a}, scheduler.WithProcessCount(2), scheduler.WithThreadCount(2))
	require.NoError(t, err)
	require.Equal(t, 5, j.Count())

	recA, _ := j.Record("a")
	for _, second := range []string{"d", "e"} {
		recSecond, ok := j.Record(second)
		require.True(t, ok)
		for _, first := range []string{"b", "c"} {
			recFirst, ok := j.Record(first)
			require.True(t, ok)
			// Layer 0 starts only after a completed, layer 1 only after
			// all of layer 0 completed.
			assert.False(t, recFirst.Start.Before(recA.End), "%s started before a completed", first)
			assert.False(t, recSecond.Start.Before(recFirst.End), "%s started before %s completed", second, first)
		}
	}
}

func TestRunCountsAllSpawnedWork(t *testing.T) {
	j := testutil.NewJournal()
	const n = 20
	tasks := make([]scheduler.Task, 0, n)
	for i := 0; i < n; i++ {
		grandchild := j.NewStep("grandchild")
		child := j.NewStep("child")
		child.Layers = [][]scheduler.Task{{grandchild}}
		parent := j.NewStep("parent")
		parent.Layers = [][]scheduler.Task{{child}}
		tasks = append(tasks, parent)
	}

	err := runTasks(t, tasks, scheduler.WithProcessCount(2), scheduler.WithThreadCount(2))
	require.NoError(t, err)

	// Shutdown must not begin while any spawned task is outstanding: every
	// task ever added to the graph ran.
	assert.Equal(t, 3*n, j.Count())
	assert.Equal(t, n, j.CountOf("grandchild"))
}

func TestRunManyIndependentTasks(t *testing.T) {
	j := testutil.NewJournal()
	const n = 500
	tasks := make([]scheduler.Task, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, j.NewStep("t"))
	}

	err := runTasks(t, tasks)
	require.NoError(t, err)
	assert.Equal(t, n, j.Count())
}

func TestRunReportsTaskFailure(t *testing.T) {
	j := testutil.NewJournal()
	boom := errors.New("boom")
	bad := j.NewStep("bad")
	bad.Err = boom

	err := runTasks(t, []scheduler.Task{j.NewStep("ok"), bad}, scheduler.WithProcessCount(1), scheduler.WithThreadCount(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "bad")

	// Unrelated work still ran.
	assert.Equal(t, 1, j.CountOf("ok"))
}

func TestRunSkipsDownstreamOfFailure(t *testing.T) {
	j := testutil.NewJournal()
	boom := errors.New("boom")
	bad := j.NewStep("bad")
	bad.Err = boom
	a := j.NewStep("a")
	a.Layers = [][]scheduler.Task{{bad}, {j.NewStep("never")}}

	err := runTasks(t, []scheduler.Task{a}, scheduler.WithProcessCount(1), scheduler.WithThreadCount(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 0, j.CountOf("never"))
	assert.Equal(t, 1, j.CountOf("a"))
	assert.Equal(t, 1, j.CountOf("bad"))
}
