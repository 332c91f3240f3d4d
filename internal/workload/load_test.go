package workload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGrid(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGridSingleFile(t *testing.T) {
	path := writeGrid(t, "grid.hcl", `
job "sleep" "warmup" {
  count    = 3
  duration = "10ms"
}

job "fanout" "bigcopy" {
  width    = 4
  finalize = true
}
`)

	grid, err := LoadGrid(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, grid.Jobs, 2)

	sleep := grid.Jobs[0]
	assert.Equal(t, "sleep", sleep.Type)
	assert.Equal(t, "warmup", sleep.Name)
	require.NotNil(t, sleep.Sleep)
	assert.Equal(t, 3, sleep.Sleep.Count)
	assert.Equal(t, "10ms", sleep.Sleep.Duration)

	fanout := grid.Jobs[1]
	require.NotNil(t, fanout.Fanout)
	assert.Equal(t, 4, fanout.Fanout.Width)
	assert.True(t, fanout.Fanout.Finalize)
}

func TestLoadGridDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(`
job "sleep" "one" { duration = "1ms" }
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hcl"), []byte(`
job "exec" "two" { command = "true" }
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	grid, err := LoadGrid(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, grid.Jobs, 2)
}

func TestLoadGridEnvInterpolation(t *testing.T) {
	t.Setenv("TASKGRID_TEST_URL", "http://localhost:1234/ping")
	path := writeGrid(t, "grid.hcl", `
job "http" "ping" {
  url = env.TASKGRID_TEST_URL
}
`)

	grid, err := LoadGrid(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, grid.Jobs, 1)
	assert.Equal(t, "http://localhost:1234/ping", grid.Jobs[0].HTTP.URL)
}

func TestLoadGridRejectsUnknownJobType(t *testing.T) {
	path := writeGrid(t, "grid.hcl", `
job "teleport" "nope" {}
`)
	_, err := LoadGrid(context.Background(), path)
	assert.ErrorContains(t, err, `unknown job type "teleport"`)
}

func TestLoadGridRejectsBadArguments(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		path := writeGrid(t, "grid.hcl", `
job "sleep" "x" { duration = "soon" }
`)
		_, err := LoadGrid(context.Background(), path)
		assert.ErrorContains(t, err, "bad duration")
	})

	t.Run("missing width", func(t *testing.T) {
		path := writeGrid(t, "grid.hcl", `
job "fanout" "x" {}
`)
		_, err := LoadGrid(context.Background(), path)
		assert.Error(t, err)
	})

	t.Run("zero width", func(t *testing.T) {
		path := writeGrid(t, "grid.hcl", `
job "fanout" "x" { width = 0 }
`)
		_, err := LoadGrid(context.Background(), path)
		assert.ErrorContains(t, err, "width must be positive")
	})
}

func TestGridTasksExpandsCount(t *testing.T) {
	path := writeGrid(t, "grid.hcl", `
job "sleep" "warmup" {
  count    = 3
  duration = "1ms"
}

job "exec" "once" { command = "true" }
`)
	grid, err := LoadGrid(context.Background(), path)
	require.NoError(t, err)

	tasks := grid.Tasks()
	require.Len(t, tasks, 4)
	assert.Equal(t, "job.sleep.warmup[0]", tasks[0].(*SleepTask).String())
	assert.Equal(t, "job.sleep.warmup[2]", tasks[2].(*SleepTask).String())
	assert.Equal(t, "job.exec.once[0]", tasks[3].(*ExecTask).String())
}
