package config

import (
	"errors"
	"time"
)

// Job is the immutable description of one foreach invocation. It is built
// once at startup and passed by value to every component.
type Job struct {
	Pattern  string        // glob pattern selecting the files
	Command  string        // program to run for each file
	Args     []string      // argument templates, may contain placeholders
	Out      string        // stdout redirect template; empty inherits stdout
	Err      string        // stderr redirect template; empty inherits stderr
	Parallel int           // max concurrent processes; 0 = unbounded
	Timeout  time.Duration // per-process timeout; 0 = none
}

// Validate checks that the job can be run.
func (j Job) Validate() error {
	if j.Pattern == "" {
		return errors.New("missing <files> pattern")
	}
	if j.Command == "" {
		return errors.New("missing <cmd>")
	}
	if j.Parallel < 0 {
		return errors.New("parallel must be >= 0")
	}
	if j.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}
