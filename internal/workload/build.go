package workload

import (
	"fmt"
	"sync"
	"time"

	"github.com/vk/taskgrid/internal/scheduler"
	"github.com/vk/taskgrid/internal/transport"
)

// Tasks compiles the grid into its top-level tasks, expanding each job into
// count instances named name[i].
func (g *Grid) Tasks() []scheduler.Task {
	var tasks []scheduler.Task
	for _, job := range g.Jobs {
		for i := 0; i < job.count(); i++ {
			tasks = append(tasks, job.instance(i))
		}
	}
	return tasks
}

func (j *Job) instance(i int) scheduler.Task {
	name := fmt.Sprintf("%s[%d]", j.Name, i)
	switch {
	case j.Sleep != nil:
		d, _ := time.ParseDuration(j.Sleep.Duration)
		return &SleepTask{Name: name, Duration: d}
	case j.Exec != nil:
		return &ExecTask{Name: name, Command: j.Exec.Command}
	case j.HTTP != nil:
		return &HTTPTask{Name: name, URL: j.HTTP.URL, Method: j.HTTP.Method}
	default:
		var d time.Duration
		if j.Fanout.Duration != "" {
			d, _ = time.ParseDuration(j.Fanout.Duration)
		}
		return &FanoutTask{Name: name, Width: j.Fanout.Width, Duration: d, Finalize: j.Fanout.Finalize}
	}
}

var registerOnce sync.Once

// RegisterKinds registers every job task kind with the transport codec.
// Both the coordinator and the worker-mode binary call this before a
// process-isolated run; it is safe to call more than once.
func RegisterKinds() {
	registerOnce.Do(func() {
		transport.RegisterKind("sleep", func() transport.Codable { return new(SleepTask) })
		transport.RegisterKind("exec", func() transport.Codable { return new(ExecTask) })
		transport.RegisterKind("http", func() transport.Codable { return new(HTTPTask) })
		transport.RegisterKind("fanout", func() transport.Codable { return new(FanoutTask) })
		transport.RegisterKind("part", func() transport.Codable { return new(PartTask) })
		transport.RegisterKind("finalize", func() transport.Codable { return new(FinalizeTask) })
	})
}
