package transport

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgrid/internal/scheduler"
)

// echoTask is the test task kind for exercising the frame protocol.
type echoTask struct {
	Value string `msgpack:"value"`
	Spawn bool   `msgpack:"spawn"`
	Fail  bool   `msgpack:"fail"`
}

func (t *echoTask) TaskKind() string { return "echo-test" }

func (t *echoTask) Execute(context.Context) ([][]scheduler.Task, error) {
	if t.Fail {
		return nil, errors.New("echo failed: " + t.Value)
	}
	if t.Spawn {
		return [][]scheduler.Task{
			{&echoTask{Value: t.Value + ".a"}, &echoTask{Value: t.Value + ".b"}},
			{&echoTask{Value: t.Value + ".tail"}},
		}, nil
	}
	return nil, nil
}

var registerEchoKind = sync.OnceFunc(func() {
	RegisterKind("echo-test", func() Codable { return new(echoTask) })
})

func TestCodecRoundTrip(t *testing.T) {
	registerEchoKind()

	ref, err := encodeTask(&echoTask{Value: "v1", Spawn: true})
	require.NoError(t, err)
	assert.Equal(t, "echo-test", ref.Kind)

	task, err := decodeTask(ref)
	require.NoError(t, err)
	echo, ok := task.(*echoTask)
	require.True(t, ok)
	assert.Equal(t, "v1", echo.Value)
	assert.True(t, echo.Spawn)
}

func TestCodecRejectsUnknownKind(t *testing.T) {
	_, err := decodeTask(taskRef{Kind: "no-such-kind"})
	assert.ErrorContains(t, err, "unknown task kind")
}

func TestCodecRejectsNonCodableTask(t *testing.T) {
	_, err := encodeTask(plainTask{})
	assert.ErrorContains(t, err, "does not implement transport.Codable")
}

type plainTask struct{}

func (plainTask) Execute(context.Context) ([][]scheduler.Task, error) { return nil, nil }

// Drives a worker process main loop over in-memory pipes: tasks in, results
// out, then one sentinel per consumer thread ends it.
func TestWorkerMainProtocol(t *testing.T) {
	registerEchoKind()

	taskR, taskW := io.Pipe()
	resultR, resultW := io.Pipe()
	const threads = 2

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- WorkerMain(context.Background(), taskR, resultW, threads)
	}()

	const n = 5
	go func() {
		for i := 1; i <= n; i++ {
			task := &echoTask{Value: strconv.Itoa(i), Spawn: i == 1, Fail: i == 2}
			ref, err := encodeTask(task)
			assert.NoError(t, err)
			assert.NoError(t, writeFrame(taskW, taskFrame{Kind: scheduler.KindTask, ID: uint64(i), Task: &ref}))
		}
	}()

	results := make(map[uint64]resultFrame, n)
	for i := 0; i < n; i++ {
		var rf resultFrame
		require.NoError(t, readFrame(resultR, &rf))
		results[rf.ID] = rf
	}
	require.Len(t, results, n)

	// Task 1 spawned two layers that round-trip through the codec.
	spawned := results[1]
	assert.Empty(t, spawned.Err)
	require.Len(t, spawned.Layers, 2)
	layers, err := decodeLayers(spawned.Layers)
	require.NoError(t, err)
	assert.Len(t, layers[0], 2)
	assert.Len(t, layers[1], 1)

	// Task 2 failed; the error travels as text.
	assert.Contains(t, results[2].Err, "echo failed: 2")

	// One sentinel per consumer shuts the worker down; none is executed.
	for i := 0; i < threads; i++ {
		require.NoError(t, writeFrame(taskW, taskFrame{Kind: scheduler.KindShutdown}))
	}
	select {
	case err := <-workerDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker main did not exit after sentinels")
	}
}
