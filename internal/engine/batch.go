package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/seantiz/backtest/internal/model"
	"github.com/seantiz/backtest/internal/runner"
)

// BatchRequest is one batch computation over an uploaded dataset.
type BatchRequest struct {
	// DatasetPath is a temporary file the engine removes once the run ends.
	DatasetPath string
	Params      model.Params
}

// BatchOutcome is a persisted batch result.
type BatchOutcome struct {
	ID       string
	Document json.RawMessage
	ExitCode int
}

// RunBatch runs the computation to completion, parses its stdout as one JSON
// document and stores it under a new identifier. The dataset file is removed
// as soon as the process exits, or right away if it could not be started.
//
// Once the process is running, cancelling ctx no longer affects the run: a
// document that parses is stored even if the caller has gone away.
//
// A launch failure is returned as *runner.LaunchError and output that does not
// parse as *OutputParseError; in both cases nothing is stored.
func (e *Engine) RunBatch(ctx context.Context, req BatchRequest) (*BatchOutcome, error) {
	var stdout, stderr bytes.Buffer
	logHook, flushLog := e.logStderr(ctx, "mode", modeBatch, "path", req.DatasetPath)

	proc, err := e.runner.Start(ctx, e.command(req.DatasetPath, req.Params), runner.Hooks{
		Stdout: func(b []byte) { stdout.Write(b) },
		Stderr: func(b []byte) {
			stderr.Write(b)
			logHook(b)
		},
	})
	if err != nil {
		runsTotal.WithLabelValues(modeBatch, outcomeLaunchError).Inc()
		e.logger.ErrorContext(ctx, "batch launch failed", "error", err)
		e.removeDataset(ctx, req.DatasetPath)
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	exit := proc.Wait()
	e.removeDataset(ctx, req.DatasetPath)
	flushLog()
	runDuration.WithLabelValues(modeBatch).Observe(exit.Duration.Seconds())
	if exit.Err != nil {
		e.logger.WarnContext(ctx, "batch process ended abnormally", "error", exit.Err)
	}

	fail := func(err error) (*BatchOutcome, error) {
		runsTotal.WithLabelValues(modeBatch, outcomeFailed).Inc()
		return nil, &OutputParseError{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			ExitCode: exit.Code,
			Err:      err,
		}
	}

	var doc bytes.Buffer
	if err := json.Compact(&doc, stdout.Bytes()); err != nil {
		return fail(fmt.Errorf("parse output: %w", err))
	}
	if e.cfg.StrictExit && (exit.Code != 0 || exit.Err != nil) {
		return fail(fmt.Errorf("computation exited with status %d", exit.Code))
	}

	id := model.NewID()
	if err := e.store.PutResult(ctx, id, doc.Bytes()); err != nil {
		runsTotal.WithLabelValues(modeBatch, outcomeFailed).Inc()
		return nil, fmt.Errorf("store result: %w", err)
	}

	runsTotal.WithLabelValues(modeBatch, outcomeSucceeded).Inc()
	e.logger.InfoContext(ctx, "batch result stored",
		"backtest_id", id,
		"exit_code", exit.Code,
		"duration_ms", exit.Duration.Milliseconds(),
	)
	return &BatchOutcome{ID: id, Document: doc.Bytes(), ExitCode: exit.Code}, nil
}

// removeDataset deletes an uploaded dataset. Failures are logged only.
func (e *Engine) removeDataset(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.logger.WarnContext(ctx, "failed to remove dataset", "path", path, "error", err)
	}
}
