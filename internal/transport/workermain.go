package transport

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/scheduler"
)

// WorkerMain is the entry point of a re-exec'd worker process. It starts
// `threads` consumer goroutines over the frame stream on r/w and joins them
// all before returning, mirroring the in-process worker group bootstrap.
// Task kinds must be registered before calling it.
func WorkerMain(ctx context.Context, r io.Reader, w io.Writer, threads int) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker process main started.", "threads", threads)

	br := bufio.NewReader(r)
	var readMu, writeMu sync.Mutex

	var wg conc.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Go(func() { consume(ctx, br, w, &readMu, &writeMu) })
	}
	wg.Wait()

	logger.Debug("Worker process main finished.")
	return nil
}

// consume is one consumer loop: read a frame, execute, write the result.
// A shutdown frame (or stream EOF, meaning the coordinator went away) ends
// the loop; each consumer swallows exactly one sentinel and never executes
// it as a task.
func consume(ctx context.Context, r *bufio.Reader, w io.Writer, readMu, writeMu *sync.Mutex) {
	for {
		readMu.Lock()
		var tf taskFrame
		err := readFrame(r, &tf)
		readMu.Unlock()
		if err != nil {
			return
		}
		if tf.Kind == scheduler.KindShutdown {
			return
		}

		res := resultFrame{ID: tf.ID}
		switch {
		case tf.Task == nil:
			res.Err = "task frame carried no task"
		default:
			task, err := decodeTask(*tf.Task)
			if err != nil {
				res.Err = err.Error()
			} else if layers, execErr := task.Execute(ctx); execErr != nil {
				res.Err = execErr.Error()
			} else if refs, encErr := encodeLayers(layers); encErr != nil {
				res.Err = encErr.Error()
			} else {
				res.Layers = refs
			}
		}

		writeMu.Lock()
		err = writeFrame(w, res)
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}
