// Package runner executes a Job's command for a single file, wiring its
// standard streams to redirect files, the parent's streams, or bounded
// capture buffers.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/deixis/foreach/internal/config"
	"github.com/deixis/foreach/internal/ctxlog"
	"github.com/deixis/foreach/internal/token"
	"github.com/google/uuid"
)

// Runner runs Job.Command once per file.
//
// Streams without a redirect template go to Stdout/Stderr. When those are
// nil the stream is captured into the Outcome, up to MaxOutput bytes.
// Stdin is given to every child; nil means the null device. Dir, when set,
// is the children's working directory and the base for relative redirects.
type Runner struct {
	Job       config.Job
	Dir       string
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
	MaxOutput int // bytes
}

// Run resolves the job's templates for path, runs the command and returns
// its Outcome. Failures are reported in Outcome.Err and never abort the
// caller.
func (r *Runner) Run(ctx context.Context, path string) Outcome {
	start := time.Now()
	f := token.Parse(path)

	out := Outcome{
		RunID:    uuid.New().String(),
		File:     path,
		Argv:     append([]string{r.Job.Command}, token.SubstituteAll(r.Job.Args, f)...),
		ExitCode: -1,
	}
	if r.Job.Out != "" {
		out.OutPath = r.resolve(token.Substitute(r.Job.Out, f))
	}
	if r.Job.Err != "" {
		out.ErrPath = r.resolve(token.Substitute(r.Job.Err, f))
	}

	log := ctxlog.FromContext(ctx).With("run_id", out.RunID, "file", path)
	log.Debug("starting", "argv", out.Argv, "out", out.OutPath, "err", out.ErrPath)

	out.Err = r.exec(ctx, &out)
	out.Duration = time.Since(start)

	if out.Err != nil {
		log.Debug("failed", "error", out.Err, "exit_code", out.ExitCode, "duration", out.Duration)
	} else {
		log.Debug("finished", "duration", out.Duration)
	}
	return out
}

// exec acquires the redirect handles, runs the process and releases the
// handles on every path.
func (r *Runner) exec(ctx context.Context, out *Outcome) (err error) {
	var stdoutBuf, stderrBuf bytes.Buffer

	stdout, closeOut, err := r.sink(out.OutPath, r.Stdout, &stdoutBuf)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeOut(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	stderr, closeErr, err := r.sink(out.ErrPath, r.Stderr, &stderrBuf)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeErr(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if r.Job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Job.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, out.Argv[0], out.Argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Stdin = r.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	out.Stdout = captured(stdout, &stdoutBuf)
	out.Stderr = captured(stderr, &stderrBuf)
	out.Truncated = isTruncated(stdout) || isTruncated(stderr)

	if runErr == nil {
		out.ExitCode = 0
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
	}

	switch {
	case r.Job.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s timed out after %s", out.Argv[0], r.Job.Timeout)
	case exitErr == nil:
		// Binary not found or other launch error.
		return fmt.Errorf("executing %s: %w", out.Argv[0], runErr)
	case ctx.Err() != nil:
		return fmt.Errorf("%s interrupted: %w", out.Argv[0], ctx.Err())
	}
	return fmt.Errorf("%s exited: %w", out.Argv[0], runErr)
}

// sink returns the writer for one child stream and the function releasing it.
func (r *Runner) sink(path string, inherit io.Writer, buf *bytes.Buffer) (io.Writer, func() error, error) {
	noop := func() error { return nil }
	if path == "" {
		if inherit != nil {
			return inherit, noop, nil
		}
		return &limitWriter{buf: buf, limit: r.maxOutput()}, noop, nil
	}

	f, err := openRedirect(path)
	if err != nil {
		return nil, noop, err
	}
	return f, func() error {
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", path, err)
		}
		return nil
	}, nil
}

// openRedirect creates the parent directories of path and opens it for
// writing, truncating existing content.
func openRedirect(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// resolve anchors a relative redirect path at Dir.
func (r *Runner) resolve(path string) string {
	if r.Dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.Dir, path)
}

func (r *Runner) maxOutput() int {
	if r.MaxOutput > 0 {
		return r.MaxOutput
	}
	return config.DefaultMaxOutput
}

func captured(w io.Writer, buf *bytes.Buffer) []byte {
	if _, ok := w.(*limitWriter); !ok {
		return nil
	}
	return buf.Bytes()
}

func isTruncated(w io.Writer) bool {
	lw, ok := w.(*limitWriter)
	return ok && lw.truncated
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
type limitWriter struct {
	buf       *bytes.Buffer
	limit     int
	truncated bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		w.truncated = w.truncated || len(p) > 0
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Report all bytes as consumed to avoid short write errors from io.Copy.
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	return w.buf.Write(p)
}
