package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/foreach/internal/config"
	"github.com/deixis/foreach/internal/discover"
	"github.com/deixis/foreach/internal/fanout"
	"github.com/deixis/foreach/internal/report"
	"github.com/deixis/foreach/internal/runner"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type globParams struct {
	Pattern string `json:"pattern" jsonschema:"glob pattern relative to the workspace, e.g. src/**/*.go"`
}

func (h *handler) globHandler(ctx context.Context, req *mcp.CallToolRequest, params globParams) (*mcp.CallToolResult, any, error) {
	workspace, _ := h.current()
	files, err := discover.FilesIn(workspace, params.Pattern)
	if err != nil {
		return errorResult(fmt.Sprintf("discovery failed: %v", err))
	}
	if len(files) == 0 {
		return textResult(fmt.Sprintf("No files found for %s.", params.Pattern))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Files (%d):\n", len(files))
	for _, f := range files {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	return textResult(b.String())
}

type runParams struct {
	Pattern  string   `json:"pattern" jsonschema:"glob pattern relative to the workspace selecting the files"`
	Command  string   `json:"command" jsonschema:"program to run once per file"`
	Args     []string `json:"args,omitempty" jsonschema:"arguments for the command; may contain {file}, {basefile}, {path}, {dir}"`
	Out      string   `json:"out,omitempty" jsonschema:"path template to redirect standard output to (relative to the workspace)"`
	Err      string   `json:"err,omitempty" jsonschema:"path template to redirect standard error to (relative to the workspace)"`
	Parallel int      `json:"parallel,omitempty" jsonschema:"maximum concurrent processes; 0 means unbounded"`
	Timeout  string   `json:"timeout,omitempty" jsonschema:"per-process timeout such as 30s; empty means no timeout"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	workspace, cfg := h.current()

	job, err := jobFromParams(params, cfg)
	if err != nil {
		return errorResult(err.Error())
	}

	files, err := discover.FilesIn(workspace, job.Pattern)
	if err != nil {
		return errorResult(fmt.Sprintf("discovery failed: %v", err))
	}
	if len(files) == 0 {
		return textResult("No files found, exiting...")
	}

	// Stdin stays closed and unredirected output is captured: the server's
	// own stdio carries the protocol.
	r := &runner.Runner{
		Job:       job,
		Dir:       workspace,
		MaxOutput: cfg.MaxOutputBytes(),
	}

	started := time.Now()
	outcomes, err := fanout.Run(ctx, files, r, job.Parallel)
	if err != nil {
		return errorResult(fmt.Sprintf("run failed: %v", err))
	}

	run := report.New(uuid.New().String(), job, started, outcomes)
	if err := h.store.Save(run); err != nil {
		return errorResult(fmt.Sprintf("saving run: %v", err))
	}

	return textResult(formatRun(run))
}

// jobFromParams builds a Job, falling back to the workspace config for
// optional fields.
func jobFromParams(p runParams, cfg *config.Config) (config.Job, error) {
	job := config.Job{
		Pattern:  p.Pattern,
		Command:  p.Command,
		Args:     p.Args,
		Out:      p.Out,
		Err:      p.Err,
		Parallel: p.Parallel,
		Timeout:  cfg.Timeout(),
	}
	if job.Out == "" {
		job.Out = cfg.Out
	}
	if job.Err == "" {
		job.Err = cfg.Err
	}
	if job.Parallel == 0 {
		job.Parallel = cfg.Parallel
	}
	if p.Timeout != "" {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return config.Job{}, fmt.Errorf("invalid timeout %q: %v", p.Timeout, err)
		}
		job.Timeout = d
	}
	if err := job.Validate(); err != nil {
		return config.Job{}, err
	}
	return job, nil
}

func formatRun(run *report.Run) string {
	var b strings.Builder

	failed := run.Failed()
	status := "PASS"
	if failed > 0 {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Run: %s\n", run.ID)
	fmt.Fprintf(&b, "Files: %d (%d ok, %d failed)\n", len(run.Files), len(run.Files)-failed, failed)
	fmt.Fprintln(&b)

	for _, f := range run.Files {
		if f.OK() {
			fmt.Fprintf(&b, "  ok    %s\n", f.File)
		} else {
			fmt.Fprintf(&b, "  FAIL  %s: %s\n", f.File, f.Error)
		}
	}
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "Inspect with foreach_inspect(run_id=%q, file=\"<path>\").\n", run.ID)
	return b.String()
}
