// Package runner launches external computations as subprocesses and delivers
// their output as ordered byte chunks followed by a single exit notification.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// defaultChunkSize is the read buffer size for each output pipe.
const defaultChunkSize = 32 * 1024

// Command describes a process to launch.
type Command struct {
	Path string
	Args []string
	// Env replaces the process environment when non-nil.
	Env []string
	Dir string
}

// Hooks receive output chunks in the order the process wrote them. Stdout and
// Stderr are called from different goroutines, but each is never called
// concurrently with itself. The chunk slice is reused once the hook returns.
type Hooks struct {
	Stdout func(chunk []byte)
	Stderr func(chunk []byte)
}

// Exit is the termination outcome of a process.
type Exit struct {
	// Code is the exit status, or -1 if the process was terminated by a signal.
	Code int
	// Err is set when the process did not exit normally or its output could
	// not be read. A nonzero Code alone does not set Err.
	Err      error
	Duration time.Duration
}

// LaunchError reports that an executable could not be started.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Runner starts processes. It is safe for concurrent use; every Start call
// yields an independent Process.
type Runner struct {
	logger    *slog.Logger
	chunkSize int

	stdoutPipe func(*exec.Cmd) (io.ReadCloser, error)
	stderrPipe func(*exec.Cmd) (io.ReadCloser, error)
}

// New creates a Runner logging to logger.
func New(logger *slog.Logger) *Runner {
	return &Runner{
		logger:     logger,
		chunkSize:  defaultChunkSize,
		stdoutPipe: (*exec.Cmd).StdoutPipe,
		stderrPipe: (*exec.Cmd).StderrPipe,
	}
}

// Process is one launched computation.
type Process struct {
	cmd     *exec.Cmd
	started time.Time
	done    chan struct{}
	exit    Exit
}

// Start launches c and returns once the process is running. Its output is
// drained in the background into hooks; a failure to start is returned as a
// *LaunchError and is never retried.
func (r *Runner) Start(ctx context.Context, c Command, hooks Hooks) (*Process, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir

	stdout, err := r.stdoutPipe(cmd)
	if err != nil {
		return nil, &LaunchError{Path: c.Path, Err: err}
	}
	stderr, err := r.stderrPipe(cmd)
	if err != nil {
		stdout.Close()
		return nil, &LaunchError{Path: c.Path, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Path: c.Path, Err: err}
	}

	p := &Process{
		cmd:     cmd,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	r.logger.DebugContext(ctx, "process started", "path", c.Path, "args", c.Args, "pid", cmd.Process.Pid)

	go p.wait(stdout, stderr, hooks, r.chunkSize)
	return p, nil
}

// wait drains both pipes to EOF before reaping the process, so every chunk
// reaches its hook before Done is closed.
func (p *Process) wait(stdout, stderr io.Reader, hooks Hooks, chunkSize int) {
	var g errgroup.Group
	g.Go(func() error { return pump(stdout, hooks.Stdout, chunkSize) })
	g.Go(func() error { return pump(stderr, hooks.Stderr, chunkSize) })
	drainErr := g.Wait()

	waitErr := p.cmd.Wait()

	exit := Exit{Code: -1, Duration: time.Since(p.started)}
	if p.cmd.ProcessState != nil {
		exit.Code = p.cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr) && exit.Code >= 0:
		// Nonzero status is reported through Code.
	default:
		exit.Err = waitErr
	}
	if exit.Err == nil && drainErr != nil {
		exit.Err = fmt.Errorf("read output: %w", drainErr)
	}

	p.exit = exit
	close(p.done)
}

func pump(r io.Reader, hook func([]byte), chunkSize int) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 && hook != nil {
			hook(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Wait blocks until the process has exited and all of its output has been
// delivered, then returns the outcome. It may be called any number of times.
func (p *Process) Wait() Exit {
	<-p.done
	return p.exit
}

// Done is closed when Wait would return.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}
