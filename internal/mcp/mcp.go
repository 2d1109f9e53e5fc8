// Package mcp provides the foreach MCP server, exposing file discovery,
// batch runs and run inspection as tools.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/foreach"
	"github.com/deixis/foreach/internal/config"
	"github.com/deixis/foreach/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu        sync.RWMutex
	cfg       *config.Config
	workspace string // directory patterns and commands are relative to

	store report.Store
}

// NewServer creates an MCP server with all foreach tools registered.
func NewServer(cfg *config.Config, store report.Store, workspace string) *mcp.Server {
	h := &handler{cfg: cfg, workspace: workspace, store: store}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "foreach", Version: foreach.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "foreach_glob",
		Description: "List the files a glob pattern matches in the workspace, in processing order. Directories are excluded.",
	}, h.globHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "foreach_run",
		Description: `Run a command once for every file matching a glob pattern, all concurrently.

Arguments and the out/err redirect templates may contain {file}, {basefile}, {path} and {dir}.
Streams that are not redirected are captured. One failing file never stops the others.
Results are stored for drill-down via foreach_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "foreach_inspect",
		Description: `Show a stored foreach_run result.

Without file, summarises the run. With file (a discovered path or per-file run id),
shows that file's command line, exit code, error and captured output.`,
	}, h.inspectHandler)

	return s
}

// current returns the workspace and config in effect for a tool call.
func (h *handler) current() (string, *config.Config) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.workspace, h.cfg
}

// updateWorkspaceFromRoots queries the client for MCP roots and switches the
// workspace to the first file root, reloading its .foreach file.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}

	loaded, err := config.Load(u.Path)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.workspace = u.Path
	h.cfg = loaded.Config
	h.mu.Unlock()
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
