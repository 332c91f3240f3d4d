package workload

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/scheduler"
)

// SleepTask waits for a fixed duration. It exists to give grids a
// deterministic synthetic load.
type SleepTask struct {
	Name     string        `msgpack:"name"`
	Duration time.Duration `msgpack:"duration"`
}

func (t *SleepTask) TaskKind() string { return "sleep" }
func (t *SleepTask) String() string   { return "job.sleep." + t.Name }

func (t *SleepTask) Execute(ctx context.Context) ([][]scheduler.Task, error) {
	select {
	case <-time.After(t.Duration):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ExecTask runs a shell command and fails if it exits non-zero.
type ExecTask struct {
	Name    string `msgpack:"name"`
	Command string `msgpack:"command"`
}

func (t *ExecTask) TaskKind() string { return "exec" }
func (t *ExecTask) String() string   { return "job.exec." + t.Name }

func (t *ExecTask) Execute(ctx context.Context) ([][]scheduler.Task, error) {
	logger := ctxlog.FromContext(ctx).With("job", t.String())
	logger.Debug("Running command.", "command", t.Command)

	out, err := exec.CommandContext(ctx, "bash", "-c", t.Command).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	logger.Debug("Command finished.", "output_bytes", len(out))
	return nil, nil
}

// HTTPTask performs a single HTTP request and fails on transport errors or
// error-class status codes.
type HTTPTask struct {
	Name   string `msgpack:"name"`
	URL    string `msgpack:"url"`
	Method string `msgpack:"method"`
}

func (t *HTTPTask) TaskKind() string { return "http" }
func (t *HTTPTask) String() string   { return "job.http." + t.Name }

func (t *HTTPTask) Execute(ctx context.Context) ([][]scheduler.Task, error) {
	logger := ctxlog.FromContext(ctx).With("job", t.String())

	method := t.Method
	if method == "" {
		method = "GET"
	}
	logger.Debug("Making HTTP request.", "method", method, "url", t.URL)

	client := resty.New()
	defer client.Close()

	resp, err := client.R().SetContext(ctx).Execute(method, t.URL)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", t.URL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("request to %s returned %s", t.URL, resp.Status())
	}
	logger.Debug("Received HTTP response.", "status", resp.Status())
	return nil, nil
}

// FanoutTask spawns width part tasks and, when Finalize is set, a finalize
// step that runs only after every part completes. This is the multipart
// shape: anything waiting on the fanout job stays blocked until the whole
// pipeline drains.
type FanoutTask struct {
	Name     string        `msgpack:"name"`
	Width    int           `msgpack:"width"`
	Duration time.Duration `msgpack:"duration"`
	Finalize bool          `msgpack:"finalize"`
}

func (t *FanoutTask) TaskKind() string { return "fanout" }
func (t *FanoutTask) String() string   { return "job.fanout." + t.Name }

func (t *FanoutTask) Execute(ctx context.Context) ([][]scheduler.Task, error) {
	ctxlog.FromContext(ctx).Debug("Spawning parts.", "job", t.String(), "width", t.Width)

	parts := make([]scheduler.Task, t.Width)
	for i := range parts {
		parts[i] = &PartTask{Parent: t.String(), Index: i, Duration: t.Duration}
	}
	layers := [][]scheduler.Task{parts}
	if t.Finalize {
		layers = append(layers, []scheduler.Task{&FinalizeTask{Parent: t.String()}})
	}
	return layers, nil
}

// PartTask is one spawned slice of a fanout pipeline.
type PartTask struct {
	Parent   string        `msgpack:"parent"`
	Index    int           `msgpack:"index"`
	Duration time.Duration `msgpack:"duration"`
}

func (t *PartTask) TaskKind() string { return "part" }
func (t *PartTask) String() string   { return fmt.Sprintf("%s.part[%d]", t.Parent, t.Index) }

func (t *PartTask) Execute(ctx context.Context) ([][]scheduler.Task, error) {
	if t.Duration <= 0 {
		return nil, nil
	}
	select {
	case <-time.After(t.Duration):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FinalizeTask closes a fanout pipeline once all of its parts are done.
type FinalizeTask struct {
	Parent string `msgpack:"parent"`
}

func (t *FinalizeTask) TaskKind() string { return "finalize" }
func (t *FinalizeTask) String() string   { return t.Parent + ".finalize" }

func (t *FinalizeTask) Execute(ctx context.Context) ([][]scheduler.Task, error) {
	ctxlog.FromContext(ctx).Info("✅ Pipeline finalized.", "job", t.Parent)
	return nil, nil
}
