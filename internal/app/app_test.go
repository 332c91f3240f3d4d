package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigValidation(t *testing.T) {
	_, err := NewConfig(Config{})
	assert.ErrorContains(t, err, "GridPath")

	cfg, err := NewConfig(Config{GridPath: "grid.hcl"})
	require.NoError(t, err)
	assert.Equal(t, "grid.hcl", cfg.GridPath)

	// Worker mode needs no grid.
	cfg, err = NewConfig(Config{WorkerThreads: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.WorkerThreads)
}

func TestAppRunsGridEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
job "sleep" "warmup" {
  count    = 4
  duration = "1ms"
}

job "fanout" "copy" {
  width    = 3
  duration = "1ms"
  finalize = true
}
`), 0o644))

	cfg, err := NewConfig(Config{
		GridPath:  path,
		Procs:     1,
		Threads:   2,
		LogFormat: "text",
		LogLevel:  "error",
	})
	require.NoError(t, err)

	a := NewApp(io.Discard, cfg)
	require.Len(t, a.Grid().Jobs, 2)
	assert.NoError(t, a.Run(context.Background()))
}

func TestNewAppPanicsOnMissingGrid(t *testing.T) {
	cfg, err := NewConfig(Config{GridPath: "does/not/exist.hcl", LogLevel: "error", LogFormat: "text"})
	require.NoError(t, err)

	assert.Panics(t, func() { NewApp(io.Discard, cfg) })
}
