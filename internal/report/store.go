// Package report records the outcome of a foreach batch so it can be
// written as JSON or inspected later by run ID.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deixis/foreach/internal/config"
	"github.com/deixis/foreach/internal/runner"
)

// Store persists and retrieves batch runs.
type Store interface {
	Save(run *Run) error
	Load(runID string) (*Run, error)
}

// Run holds the structured result of one batch.
type Run struct {
	ID       string        `json:"id"`
	Pattern  string        `json:"pattern"`
	Command  string        `json:"command"`
	Args     []string      `json:"args,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	Files    []FileResult  `json:"files"`
}

// FileResult is the stored form of a runner.Outcome.
type FileResult struct {
	RunID     string   `json:"run_id"`
	File      string   `json:"file"`
	Argv      []string `json:"argv"`
	OutPath   string   `json:"out,omitempty"`
	ErrPath   string   `json:"err,omitempty"`
	ExitCode  int      `json:"exit_code"`
	Error     string   `json:"error,omitempty"`
	Duration  int64    `json:"duration_ms"`
	Stdout    string   `json:"stdout,omitempty"`
	Stderr    string   `json:"stderr,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
}

// OK reports whether the file's command succeeded.
func (f FileResult) OK() bool { return f.Error == "" }

// New builds a Run from the outcomes of a batch, keeping discovery order.
func New(id string, job config.Job, started time.Time, outcomes []runner.Outcome) *Run {
	r := &Run{
		ID:       id,
		Pattern:  job.Pattern,
		Command:  job.Command,
		Args:     job.Args,
		Started:  started,
		Duration: time.Since(started),
		Files:    make([]FileResult, len(outcomes)),
	}
	for i, o := range outcomes {
		r.Files[i] = FileResult{
			RunID:     o.RunID,
			File:      o.File,
			Argv:      o.Argv,
			OutPath:   o.OutPath,
			ErrPath:   o.ErrPath,
			ExitCode:  o.ExitCode,
			Error:     o.Message(),
			Duration:  o.Duration.Milliseconds(),
			Stdout:    string(o.Stdout),
			Stderr:    string(o.Stderr),
			Truncated: o.Truncated,
		}
	}
	return r
}

// Failed returns the number of files whose command failed.
func (r *Run) Failed() int {
	n := 0
	for _, f := range r.Files {
		if !f.OK() {
			n++
		}
	}
	return n
}

// Lookup returns the result for file, matching either the discovered path
// or the per-file run ID.
func (r *Run) Lookup(file string) (FileResult, bool) {
	for _, f := range r.Files {
		if f.File == file || f.RunID == file {
			return f, true
		}
	}
	return FileResult{}, false
}

// WriteFile writes run as indented JSON to path, creating parent directories.
func WriteFile(path string, run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling run %s: %w", run.ID, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}
