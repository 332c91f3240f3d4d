package workload

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
)

// gridFile is the top-level HCL schema of one grid file.
type gridFile struct {
	Jobs []*jobBlock `hcl:"job,block"`
}

// jobBlock is a raw job block; its body is decoded per job type.
type jobBlock struct {
	Type string   `hcl:"type,label"`
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// Grid is a fully decoded workload.
type Grid struct {
	Jobs []*Job
}

// Job is one decoded job block. Exactly one of the args fields is set,
// matching the job's type label.
type Job struct {
	Type string
	Name string

	Sleep  *SleepArgs
	Exec   *ExecArgs
	HTTP   *HTTPArgs
	Fanout *FanoutArgs
}

// SleepArgs configures a synthetic sleep job.
type SleepArgs struct {
	Count    int    `hcl:"count,optional"`
	Duration string `hcl:"duration"`
}

// ExecArgs configures a shell command job.
type ExecArgs struct {
	Count   int    `hcl:"count,optional"`
	Command string `hcl:"command"`
}

// HTTPArgs configures an HTTP request job.
type HTTPArgs struct {
	Count  int    `hcl:"count,optional"`
	URL    string `hcl:"url"`
	Method string `hcl:"method,optional"`
}

// FanoutArgs configures a layered pipeline job: width parts followed, when
// finalize is set, by a single finalize step that runs only after every
// part has completed.
type FanoutArgs struct {
	Count    int    `hcl:"count,optional"`
	Width    int    `hcl:"width"`
	Duration string `hcl:"duration,optional"`
	Finalize bool   `hcl:"finalize,optional"`
}

// decodeJob decodes one raw block into a typed Job.
func decodeJob(block *jobBlock, evalCtx *hcl.EvalContext) (*Job, error) {
	job := &Job{Type: block.Type, Name: block.Name}

	var diags hcl.Diagnostics
	switch block.Type {
	case "sleep":
		job.Sleep = &SleepArgs{}
		diags = gohcl.DecodeBody(block.Body, evalCtx, job.Sleep)
	case "exec":
		job.Exec = &ExecArgs{}
		diags = gohcl.DecodeBody(block.Body, evalCtx, job.Exec)
	case "http":
		job.HTTP = &HTTPArgs{}
		diags = gohcl.DecodeBody(block.Body, evalCtx, job.HTTP)
	case "fanout":
		job.Fanout = &FanoutArgs{}
		diags = gohcl.DecodeBody(block.Body, evalCtx, job.Fanout)
	default:
		return nil, fmt.Errorf("unknown job type %q for job %q", block.Type, block.Name)
	}
	if diags.HasErrors() {
		return nil, diags
	}
	if err := job.validate(); err != nil {
		return nil, fmt.Errorf("invalid job %s.%s: %w", block.Type, block.Name, err)
	}
	return job, nil
}

func (j *Job) validate() error {
	switch {
	case j.Sleep != nil:
		if _, err := time.ParseDuration(j.Sleep.Duration); err != nil {
			return fmt.Errorf("bad duration: %w", err)
		}
	case j.Exec != nil:
		if j.Exec.Command == "" {
			return fmt.Errorf("command must not be empty")
		}
	case j.HTTP != nil:
		if j.HTTP.URL == "" {
			return fmt.Errorf("url must not be empty")
		}
	case j.Fanout != nil:
		if j.Fanout.Width <= 0 {
			return fmt.Errorf("width must be positive")
		}
		if j.Fanout.Duration != "" {
			if _, err := time.ParseDuration(j.Fanout.Duration); err != nil {
				return fmt.Errorf("bad duration: %w", err)
			}
		}
	}
	return nil
}

// count returns the job's instance count, defaulting to one.
func (j *Job) count() int {
	var n int
	switch {
	case j.Sleep != nil:
		n = j.Sleep.Count
	case j.Exec != nil:
		n = j.Exec.Count
	case j.HTTP != nil:
		n = j.HTTP.Count
	case j.Fanout != nil:
		n = j.Fanout.Count
	}
	if n < 1 {
		return 1
	}
	return n
}
