// Command foreach runs a command once for every file matching a glob pattern.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/deixis/foreach"
	"github.com/deixis/foreach/internal/config"
	"github.com/deixis/foreach/internal/ctxlog"
	"github.com/deixis/foreach/internal/discover"
	"github.com/deixis/foreach/internal/fanout"
	fmcp "github.com/deixis/foreach/internal/mcp"
	"github.com/deixis/foreach/internal/report"
	"github.com/deixis/foreach/internal/runner"
	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("foreach: ")

	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "mcp":
			if err := mcpMain(args[1:]); err != nil {
				log.Fatal(err)
			}
			return
		case "version":
			fmt.Println(foreach.Version)
			return
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("determining working directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code := run(ctx, args, wd, stdio{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	stop()
	os.Exit(code)
}

// usage prints the run-mode help, which also lists the subcommands.
func usage(w io.Writer) {
	_, _ = config.ParseFlags([]string{"-h"}, &config.Config{}, w)
}

// --- run ---

// stdio is the set of streams handed to child processes.
type stdio struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// run executes the default command and returns the process exit code.
// Per-file failures are reported but do not change the exit code; only
// usage errors (2) and discovery or orchestration errors (1) do.
func run(ctx context.Context, args []string, dir string, std stdio) int {
	fatal := log.New(std.err, "foreach: ", 0)

	// Same stream as -h.
	if len(args) > 0 && args[0] == "help" {
		usage(std.err)
		return 0
	}

	loaded, err := config.Load(dir)
	if err != nil {
		fatal.Printf("loading config: %v", err)
		return 1
	}
	cfg := loaded.Config

	opts, err := config.ParseFlags(args, cfg, std.err)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		if !errors.Is(err, config.ErrUsage) {
			fatal.Print(err)
		}
		return 2
	}

	logger := ctxlog.New(std.err, opts.Verbose)
	ctx = ctxlog.WithLogger(ctx, logger)
	if loaded.Path != "" {
		logger.Debug("loaded config", "path", loaded.Path)
	}

	files, err := discover.FilesIn(dir, opts.Job.Pattern)
	if err != nil {
		fatal.Print(err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintln(std.err, "No files found, exiting...")
		return 0
	}
	logger.Debug("discovered files", "pattern", opts.Job.Pattern, "count", len(files))

	r := &runner.Runner{
		Job:       opts.Job,
		Dir:       dir,
		Stdin:     std.in,
		Stdout:    std.out,
		Stderr:    std.err,
		MaxOutput: cfg.MaxOutputBytes(),
	}

	started := time.Now()
	outcomes, err := fanout.Run(ctx, files, r, opts.Job.Parallel)
	if err != nil {
		fatal.Print(err)
		return 1
	}

	for _, o := range fanout.Failures(outcomes) {
		fmt.Fprintf(std.err, "With %s: %s\n", o.File, o.Message())
	}

	if opts.Report != "" {
		rep := report.New(uuid.New().String(), opts.Job, started, outcomes)
		if err := report.WriteFile(resolve(dir, opts.Report), rep); err != nil {
			fatal.Print(err)
			return 1
		}
		logger.Debug("wrote report", "path", opts.Report, "run_id", rep.ID, "failed", rep.Failed())
	}
	return 0
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(fmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return serve(ctx, *httpAddr)
}

func serve(ctx context.Context, httpAddr string) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store := report.NewLRUStore(5, report.NewDiskStore(""))
	server := fmcp.NewServer(loaded.Config, store, workspace)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
