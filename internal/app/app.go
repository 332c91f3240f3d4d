package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/workload"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	grid   *workload.Grid
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and the grid
// already loaded and decoded.
func NewApp(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	grid, err := workload.LoadGrid(ctx, cfg.GridPath)
	if err != nil {
		// A failure to load the grid is a fatal startup error.
		panic(fmt.Errorf("failed to load grid: %w", err))
	}
	logger.Debug("Grid loaded.", "jobs", len(grid.Jobs))

	workload.RegisterKinds()

	return &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		grid:   grid,
	}
}

// Grid returns the loaded workload. This is primarily for testing.
func (a *App) Grid() *workload.Grid {
	return a.grid
}
