package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/seantiz/backtest/internal/framer"
	"github.com/seantiz/backtest/internal/model"
	"github.com/seantiz/backtest/internal/runner"
)

// streamFlag switches the computation into line-per-event output.
const streamFlag = "--stream"

// StreamRequest is one streaming computation over a dataset in the data
// directory. Parameters missing from Params take their configured defaults.
type StreamRequest struct {
	Dataset string
	Params  map[string]float64
}

// StartStream validates the request and starts the run in the background,
// returning its run id. Every event the computation writes is published to
// the Hub as it arrives, followed by exactly one stream-finished event, or by
// one stream-error event if the process could not be started or did not exit
// normally.
func (e *Engine) StartStream(ctx context.Context, req StreamRequest) (string, error) {
	path, err := e.resolveDataset(req.Dataset)
	if err != nil {
		return "", err
	}
	params, err := model.ResolveParams(e.cfg.Params, req.Params, true)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	cmd := e.command(path, params, streamFlag)

	// The run outlives the request that started it.
	runCtx := context.WithoutCancel(ctx)

	e.active.Add(1)
	activeStreams.Inc()
	e.wg.Go(func() {
		defer func() {
			e.active.Add(-1)
			activeStreams.Dec()
		}()
		e.stream(runCtx, runID, cmd)
	})

	e.logger.InfoContext(ctx, "stream started", "run_id", runID, "dataset", req.Dataset)
	return runID, nil
}

func (e *Engine) stream(ctx context.Context, runID string, cmd runner.Command) {
	f := framer.New()
	logHook, flushLog := e.logStderr(ctx, "mode", modeStream, "run_id", runID)

	proc, err := e.runner.Start(ctx, cmd, runner.Hooks{
		Stdout: func(b []byte) {
			for line := range f.Feed(b) {
				e.publishLine(ctx, runID, line)
			}
		},
		Stderr: logHook,
	})
	if err != nil {
		runsTotal.WithLabelValues(modeStream, outcomeLaunchError).Inc()
		e.logger.ErrorContext(ctx, "stream launch failed", "run_id", runID, "error", err)
		e.publish(ctx, runID, model.StreamError(runID, err.Error()))
		return
	}

	exit := proc.Wait()
	if line, ok := f.Flush(); ok {
		e.publishLine(ctx, runID, line)
	}
	flushLog()
	runDuration.WithLabelValues(modeStream).Observe(exit.Duration.Seconds())

	if exit.Err != nil {
		runsTotal.WithLabelValues(modeStream, outcomeFailed).Inc()
		e.logger.WarnContext(ctx, "stream process ended abnormally", "run_id", runID, "error", exit.Err)
		e.publish(ctx, runID, model.StreamError(runID, fmt.Sprintf("computation failed: %v", exit.Err)))
		return
	}

	runsTotal.WithLabelValues(modeStream, outcomeSucceeded).Inc()
	e.logger.InfoContext(ctx, "stream finished",
		"run_id", runID,
		"exit_code", exit.Code,
		"duration_ms", exit.Duration.Milliseconds(),
	)
	e.publish(ctx, runID, model.StreamFinished(runID, exit.Code))
}

// publishLine publishes one framed line if it is a JSON document. Lines that
// do not parse are dropped and the stream continues.
func (e *Engine) publishLine(ctx context.Context, runID, line string) {
	if !json.Valid([]byte(line)) {
		streamLines.WithLabelValues("dropped").Inc()
		e.logger.WarnContext(ctx, "dropping unparseable stream line", "run_id", runID, "line", line)
		return
	}
	streamLines.WithLabelValues("published").Inc()
	e.publish(ctx, runID, json.RawMessage(line))
}

func (e *Engine) publish(ctx context.Context, runID string, doc any) {
	if err := e.hub.Publish(doc); err != nil {
		e.logger.ErrorContext(ctx, "publish failed", "run_id", runID, "error", err)
	}
}
