package app

import "errors"

// WorkerFlag is the command-line flag that puts the binary into worker
// mode. The process pool passes it when re-execing the binary, and the CLI
// recognizes it to skip normal startup.
const WorkerFlag = "-worker-threads"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	GridPath string

	Procs   int
	Threads int
	Isolate bool

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	// WorkerThreads puts the binary into worker mode when positive; the
	// process reads task frames from stdin instead of loading a grid.
	WorkerThreads int
}

// NewConfig validates a Config and returns it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkerThreads > 0 {
		return &cfg, nil
	}
	if cfg.GridPath == "" {
		return nil, errors.New("GridPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
