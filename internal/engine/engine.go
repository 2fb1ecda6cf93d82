package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/seantiz/backtest/internal/framer"
	"github.com/seantiz/backtest/internal/model"
	"github.com/seantiz/backtest/internal/runner"
	"github.com/seantiz/backtest/internal/store"
)

// Config describes how to invoke the computation.
type Config struct {
	// Executable and ScriptArgs prefix every invocation, e.g. "python3" and
	// ["backtester.py"].
	Executable string
	ScriptArgs []string
	// DataDir holds the datasets that streaming runs may name.
	DataDir string
	// Params lists the accepted parameters in invocation order.
	Params []model.ParamSpec
	// StrictExit makes a nonzero exit status fail a batch run even when its
	// output parses.
	StrictExit bool
}

// Engine orchestrates computation runs.
type Engine struct {
	store  store.Store
	runner *runner.Runner
	hub    *Hub
	cfg    Config
	logger *slog.Logger
	wg     sync.WaitGroup
	active atomic.Int64
}

// NewEngine creates a new execution engine.
func NewEngine(s store.Store, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Params == nil {
		cfg.Params = model.DefaultParamSpecs
	}
	return &Engine{
		store:  s,
		runner: runner.New(logger),
		hub:    NewHub(),
		cfg:    cfg,
		logger: logger,
	}
}

// Hub returns the engine's event hub for live subscriptions.
func (e *Engine) Hub() *Hub {
	return e.hub
}

// Params returns the configured parameter specs.
func (e *Engine) Params() []model.ParamSpec {
	return e.cfg.Params
}

// Wait blocks until all in-flight streaming runs complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// ActiveStreams returns the number of streaming runs in progress.
func (e *Engine) ActiveStreams() int {
	return int(e.active.Load())
}

// Datasets returns the names of regular files in the data directory, sorted.
func (e *Engine) Datasets() ([]string, error) {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var names []string
	for _, de := range entries {
		if !de.Type().IsRegular() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		names = append(names, de.Name())
	}
	slices.Sort(names)
	return names, nil
}

// resolveDataset maps a dataset name to a file inside the data directory.
func (e *Engine) resolveDataset(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: dataset name is required", model.ErrMalformedInput)
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: invalid dataset name %q", model.ErrMalformedInput, name)
	}

	path := filepath.Join(e.cfg.DataDir, name)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("stat dataset: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a file", model.ErrMalformedInput, name)
	}
	return path, nil
}

// command builds the invocation for a dataset and parameter set.
func (e *Engine) command(path string, params model.Params, extra ...string) runner.Command {
	args := slices.Clone(e.cfg.ScriptArgs)
	args = append(args, "--filepath", path)
	args = append(args, params.Args()...)
	args = append(args, extra...)
	return runner.Command{Path: e.cfg.Executable, Args: args}
}

// logStderr returns a hook that logs each complete stderr line at warn, and
// a func that logs the unterminated remainder once the process has exited.
func (e *Engine) logStderr(ctx context.Context, attrs ...any) (func([]byte), func()) {
	f := framer.New()
	logger := e.logger.With(attrs...)
	log := func(line string) {
		logger.WarnContext(ctx, "computation stderr", "line", line)
	}
	hook := func(chunk []byte) {
		for line := range f.Feed(chunk) {
			log(line)
		}
	}
	flush := func() {
		if line, ok := f.Flush(); ok {
			log(line)
		}
	}
	return hook, flush
}
