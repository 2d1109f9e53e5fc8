package runner

import "time"

// Outcome is the result of running the command for one file. It is a
// success when Err is nil.
type Outcome struct {
	RunID     string        // unique identifier for this run
	File      string        // discovered file path
	Argv      []string      // resolved command line
	OutPath   string        // resolved stdout redirect, empty if none
	ErrPath   string        // resolved stderr redirect, empty if none
	ExitCode  int           // process exit code, -1 if it never ran to completion
	Err       error         // nil on success
	Duration  time.Duration // wall time including redirect setup
	Stdout    []byte        // captured stdout (capture mode only, may be truncated)
	Stderr    []byte        // captured stderr (capture mode only, may be truncated)
	Truncated bool          // true if captured output exceeded the size cap
}

// OK reports whether the run succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Message returns the failure text, or "" on success.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
