package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/foreach/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID from a foreach_run result"`
	File  string `json:"file,omitempty" jsonschema:"discovered file path or per-file run id; omit for a run summary"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	run, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	if params.File == "" {
		return textResult(formatRun(run))
	}

	f, ok := run.Lookup(params.File)
	if !ok {
		return errorResult(fmt.Sprintf("No file %s in run %s.", params.File, params.RunID))
	}
	return textResult(formatFile(run.ID, f))
}

func formatFile(runID string, f report.FileResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", runID)
	status := "ok"
	if !f.OK() {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "%s — %s\n", f.File, status)
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "Command: %s\n", strings.Join(f.Argv, " "))
	fmt.Fprintf(&b, "Exit code: %d\n", f.ExitCode)
	fmt.Fprintf(&b, "Duration: %dms\n", f.Duration)
	if f.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", f.Error)
	}
	if f.OutPath != "" {
		fmt.Fprintf(&b, "Stdout file: %s\n", f.OutPath)
	}
	if f.ErrPath != "" {
		fmt.Fprintf(&b, "Stderr file: %s\n", f.ErrPath)
	}

	writeStream(&b, "Stdout", f.Stdout)
	writeStream(&b, "Stderr", f.Stderr)
	if f.Truncated {
		fmt.Fprintln(&b, "\n(output truncated)")
	}
	return b.String()
}

func writeStream(b *strings.Builder, name, text string) {
	if text == "" {
		return
	}
	fmt.Fprintln(b)
	fmt.Fprintf(b, "%s:\n", name)
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(b, "    %s\n", line)
	}
}
