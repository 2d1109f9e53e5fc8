package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deixis/foreach/internal/config"
	"github.com/deixis/foreach/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// setup creates a foreach MCP server + client over in-memory transports.
func setup(t *testing.T, workspace string, cfg *config.Config) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	if cfg == nil {
		cfg = &config.Config{}
	}
	store := report.NewLRUStore(5, report.NewDiskStore(t.TempDir()))
	server := NewServer(cfg, store, workspace)

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	return cs
}

// workspace creates files (relative paths) in a temp dir.
func workspace(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		p := filepath.Join(dir, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(f+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func runID(t *testing.T, text string) string {
	t.Helper()
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "Run: ") {
			return strings.TrimPrefix(line, "Run: ")
		}
	}
	t.Fatalf("no Run ID found in output:\n%s", text)
	return ""
}

func TestListTools(t *testing.T) {
	cs := setup(t, t.TempDir(), nil)
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"foreach_glob", "foreach_run", "foreach_inspect"} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}
}

// --- foreach_glob ---

func TestGlob(t *testing.T) {
	dir := workspace(t, "b.txt", "a.txt", "notes/c.txt", "skip.md")
	cs := setup(t, dir, nil)

	res := callTool(t, cs, "foreach_glob", map[string]any{"pattern": "**/*.txt"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "Files (3):") {
		t.Errorf("expected 3 files, got:\n%s", text)
	}
	if strings.Index(text, "a.txt") > strings.Index(text, "b.txt") {
		t.Errorf("files not sorted:\n%s", text)
	}
	if strings.Contains(text, "skip.md") {
		t.Errorf("unexpected match:\n%s", text)
	}
}

func TestGlob_NoMatch(t *testing.T) {
	cs := setup(t, workspace(t, "a.txt"), nil)
	res := callTool(t, cs, "foreach_glob", map[string]any{"pattern": "*.none"})
	if !strings.Contains(resultText(res), "No files found") {
		t.Errorf("expected no-match message, got:\n%s", resultText(res))
	}
}

// --- foreach_run ---

func TestRun_Passing(t *testing.T) {
	dir := workspace(t, "a.txt", "b.txt")
	cs := setup(t, dir, nil)

	res := callTool(t, cs, "foreach_run", map[string]any{
		"pattern": "*.txt",
		"command": "echo",
		"args":    []string{"{basefile}"},
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "Status: PASS") {
		t.Errorf("expected Status: PASS, got:\n%s", text)
	}
	if !strings.Contains(text, "Files: 2 (2 ok, 0 failed)") {
		t.Errorf("expected 2 ok files, got:\n%s", text)
	}
	if !strings.Contains(text, "foreach_inspect") {
		t.Errorf("expected foreach_inspect hint, got:\n%s", text)
	}
}

func TestRun_Redirect(t *testing.T) {
	dir := workspace(t, "data/report.csv")
	cs := setup(t, dir, nil)

	res := callTool(t, cs, "foreach_run", map[string]any{
		"pattern": "data/*.csv",
		"command": "cat",
		"args":    []string{"{path}"},
		"out":     "logs/{basefile}.log",
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	data, err := os.ReadFile(filepath.Join(dir, "logs", "report.log"))
	if err != nil {
		t.Fatalf("reading redirected output: %v", err)
	}
	if string(data) != "data/report.csv\n" {
		t.Errorf("redirected output = %q, want %q", data, "data/report.csv\n")
	}
}

func TestRun_OneFailure(t *testing.T) {
	dir := workspace(t, "1.txt", "2.txt", "3.txt", "4.txt", "5.txt")
	cs := setup(t, dir, nil)

	res := callTool(t, cs, "foreach_run", map[string]any{
		"pattern": "*.txt",
		"command": "sh",
		"args":    []string{"-c", `test "{basefile}" != 3`},
	})
	text := resultText(res)
	if !strings.Contains(text, "Status: FAIL") {
		t.Errorf("expected Status: FAIL, got:\n%s", text)
	}
	if !strings.Contains(text, "Files: 5 (4 ok, 1 failed)") {
		t.Errorf("expected exactly one failure, got:\n%s", text)
	}
	if strings.Count(text, "FAIL  ") != 1 || !strings.Contains(text, "FAIL  3.txt") {
		t.Errorf("expected one failure line for 3.txt, got:\n%s", text)
	}
}

func TestRun_NoFiles(t *testing.T) {
	cs := setup(t, workspace(t, "a.txt"), nil)
	res := callTool(t, cs, "foreach_run", map[string]any{"pattern": "*.none", "command": "echo"})
	if !strings.Contains(resultText(res), "No files found, exiting...") {
		t.Errorf("expected no-files message, got:\n%s", resultText(res))
	}
}

func TestRun_InvalidTimeout(t *testing.T) {
	cs := setup(t, workspace(t, "a.txt"), nil)
	res := callTool(t, cs, "foreach_run", map[string]any{"pattern": "*.txt", "command": "echo", "timeout": "soon"})
	if !res.IsError {
		t.Errorf("expected IsError for invalid timeout, got:\n%s", resultText(res))
	}
}

func TestRun_ConfigDefaults(t *testing.T) {
	dir := workspace(t, "a.txt")
	cs := setup(t, dir, &config.Config{Err: "errs/{file}.err"})

	res := callTool(t, cs, "foreach_run", map[string]any{
		"pattern": "*.txt",
		"command": "sh",
		"args":    []string{"-c", "echo oops >&2"},
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	data, err := os.ReadFile(filepath.Join(dir, "errs", "a.txt.err"))
	if err != nil {
		t.Fatalf("reading redirected stderr: %v", err)
	}
	if string(data) != "oops\n" {
		t.Errorf("stderr = %q, want %q", data, "oops\n")
	}
}

func TestRun_MissingCommand(t *testing.T) {
	cs := setup(t, t.TempDir(), nil)
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "foreach_run",
		Arguments: map[string]any{"pattern": "*.txt"},
	})
	if err == nil {
		t.Error("expected error for missing command")
	}
}

// --- foreach_inspect ---

func TestInspect_AfterRun(t *testing.T) {
	dir := workspace(t, "a.txt", "b.txt")
	cs := setup(t, dir, nil)

	runRes := callTool(t, cs, "foreach_run", map[string]any{
		"pattern": "*.txt",
		"command": "sh",
		"args":    []string{"-c", `echo hello {file}; test {basefile} = a`},
	})
	id := runID(t, resultText(runRes))

	res := callTool(t, cs, "foreach_inspect", map[string]any{"run_id": id, "file": "b.txt"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{"b.txt — FAIL", "Exit code: 1", "hello b.txt"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}

	summary := callTool(t, cs, "foreach_inspect", map[string]any{"run_id": id})
	if !strings.Contains(resultText(summary), "Files: 2 (1 ok, 1 failed)") {
		t.Errorf("unexpected summary:\n%s", resultText(summary))
	}
}

func TestInspect_UnknownFile(t *testing.T) {
	dir := workspace(t, "a.txt")
	cs := setup(t, dir, nil)
	id := runID(t, resultText(callTool(t, cs, "foreach_run", map[string]any{"pattern": "*.txt", "command": "true"})))

	res := callTool(t, cs, "foreach_inspect", map[string]any{"run_id": id, "file": "zzz.txt"})
	if !res.IsError {
		t.Error("expected IsError for unknown file")
	}
}

func TestInspect_InvalidRunID(t *testing.T) {
	cs := setup(t, t.TempDir(), nil)
	res := callTool(t, cs, "foreach_inspect", map[string]any{"run_id": "nonexistent-id"})
	if !res.IsError {
		t.Error("expected IsError for invalid run_id")
	}
}

func TestInspect_MissingRunID(t *testing.T) {
	cs := setup(t, t.TempDir(), nil)
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "foreach_inspect",
		Arguments: map[string]any{"file": "a.txt"},
	})
	if err == nil {
		t.Error("expected error for missing run_id")
	}
}
