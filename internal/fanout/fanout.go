// Package fanout runs a FileRunner for every discovered file concurrently
// and gathers the outcomes in discovery order.
package fanout

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/deixis/foreach/internal/ctxlog"
	"github.com/deixis/foreach/internal/runner"
)

// FileRunner runs the command for one file. Implemented by runner.Runner.
type FileRunner interface {
	Run(ctx context.Context, path string) runner.Outcome
}

// PanicError is returned when a FileRunner panics. It escapes the per-file
// isolation boundary and is fatal to the batch.
type PanicError struct {
	File  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("runner panicked on %s: %v\n%s", e.File, e.Value, e.Stack)
}

// Run starts one r.Run per file and waits for all of them. limit caps the
// number of runs in flight; limit <= 0 means unbounded.
//
// outcomes[i] always belongs to files[i]. Per-file failures are data in the
// outcomes and never stop other runs. A panic in any runner is reported as
// a *PanicError after every other run has finished.
func Run(ctx context.Context, files []string, r FileRunner, limit int) ([]runner.Outcome, error) {
	outcomes := make([]runner.Outcome, len(files))
	panics := make([]*PanicError, len(files))

	var sem chan struct{}
	if limit > 0 {
		sem = make(chan struct{}, limit)
	}

	log := ctxlog.FromContext(ctx)
	log.Debug("fan-out", "files", len(files), "limit", limit)

	var wg sync.WaitGroup
	for i, path := range files {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			defer func() {
				if v := recover(); v != nil {
					panics[i] = &PanicError{File: path, Value: v, Stack: debug.Stack()}
				}
			}()
			outcomes[i] = r.Run(ctx, path)
		}()
	}
	wg.Wait()

	for _, p := range panics {
		if p != nil {
			return outcomes, p
		}
	}
	return outcomes, nil
}

// Failures returns the failed outcomes, preserving order.
func Failures(outcomes []runner.Outcome) []runner.Outcome {
	var failed []runner.Outcome
	for _, o := range outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}
