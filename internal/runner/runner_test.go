package runner_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/seantiz/backtest/internal/runner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRunner() *runner.Runner {
	return runner.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func sh(script string) runner.Command {
	return runner.Command{Path: "sh", Args: []string{"-c", script}}
}

func TestStartCapturesOutputAndExitCode(t *testing.T) {
	t.Parallel()
	requireShell(t)

	var stdout, stderr bytes.Buffer
	p, err := newRunner().Start(context.Background(), sh(`printf hello; printf oops 1>&2; exit 3`), runner.Hooks{
		Stdout: func(b []byte) { stdout.Write(b) },
		Stderr: func(b []byte) { stderr.Write(b) },
	})
	require.NoError(t, err)
	require.Positive(t, p.Pid())

	exit := p.Wait()
	require.NoError(t, exit.Err)
	require.Equal(t, 3, exit.Code)
	require.Equal(t, "hello", stdout.String())
	require.Equal(t, "oops", stderr.String())
	require.Positive(t, exit.Duration)
}

func TestStartDeliversAllOutputBeforeDone(t *testing.T) {
	t.Parallel()
	requireShell(t)

	var stdout bytes.Buffer
	script := `i=0; while [ $i -lt 5000 ]; do echo "line $i"; i=$((i+1)); done`
	p, err := newRunner().Start(context.Background(), sh(script), runner.Hooks{
		Stdout: func(b []byte) { stdout.Write(b) },
	})
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("process did not finish")
	}

	lines := strings.Split(strings.TrimSuffix(stdout.String(), "\n"), "\n")
	require.Len(t, lines, 5000)
	require.Equal(t, "line 0", lines[0])
	require.Equal(t, "line 4999", lines[4999])
	require.Equal(t, 0, p.Wait().Code)
}

func TestStartNilHooksStillDrains(t *testing.T) {
	t.Parallel()
	requireShell(t)

	p, err := newRunner().Start(context.Background(), sh(`yes | head -n 20000; echo done 1>&2`), runner.Hooks{})
	require.NoError(t, err)
	exit := p.Wait()
	require.NoError(t, exit.Err)
	require.Equal(t, 0, exit.Code)
}

func TestStartMissingExecutable(t *testing.T) {
	t.Parallel()

	p, err := newRunner().Start(context.Background(), runner.Command{Path: "definitely-not-a-real-binary-7f3a"}, runner.Hooks{})
	require.Nil(t, p)

	var launchErr *runner.LaunchError
	require.ErrorAs(t, err, &launchErr)
	require.Equal(t, "definitely-not-a-real-binary-7f3a", launchErr.Path)

	var execErr *exec.Error
	require.ErrorAs(t, err, &execErr)
}

func TestStartClosesStdoutWhenStderrPipeFails(t *testing.T) {
	t.Parallel()

	var stdout io.ReadCloser
	pipeErr := errors.New("too many open files")
	r := newRunner()
	r.SetPipes(
		func(cmd *exec.Cmd) (io.ReadCloser, error) {
			rc, err := cmd.StdoutPipe()
			stdout = rc
			return rc, err
		},
		func(*exec.Cmd) (io.ReadCloser, error) { return nil, pipeErr },
	)

	p, err := r.Start(context.Background(), sh("exit 0"), runner.Hooks{})
	require.Nil(t, p)
	require.ErrorIs(t, err, pipeErr)

	var launchErr *runner.LaunchError
	require.ErrorAs(t, err, &launchErr)

	require.NotNil(t, stdout)
	_, err = stdout.Read(make([]byte, 1))
	require.ErrorIs(t, err, os.ErrClosed)
}

func TestStartNonExecutableFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "script")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o644))

	_, err := newRunner().Start(context.Background(), runner.Command{Path: path}, runner.Hooks{})
	var launchErr *runner.LaunchError
	require.ErrorAs(t, err, &launchErr)
}

func TestWaitAfterSignal(t *testing.T) {
	t.Parallel()
	requireShell(t)

	p, err := newRunner().Start(context.Background(), sh(`kill -9 $$`), runner.Hooks{})
	require.NoError(t, err)

	exit := p.Wait()
	require.Equal(t, -1, exit.Code)
	require.Error(t, exit.Err)
}

func TestWaitIsIdempotent(t *testing.T) {
	t.Parallel()
	requireShell(t)

	p, err := newRunner().Start(context.Background(), sh(`echo x; exit 2`), runner.Hooks{})
	require.NoError(t, err)

	exits := make([]runner.Exit, 8)
	var wg sync.WaitGroup
	for i := range exits {
		wg.Go(func() { exits[i] = p.Wait() })
	}
	wg.Wait()

	for _, e := range exits {
		require.Equal(t, 2, e.Code)
		require.NoError(t, e.Err)
	}
}

func TestCommandEnvAndDir(t *testing.T) {
	t.Parallel()
	requireShell(t)

	dir := t.TempDir()
	var stdout bytes.Buffer
	cmd := sh(`printf "%s|%s" "$BACKTEST_MARK" "$(pwd)"`)
	cmd.Env = []string{"BACKTEST_MARK=on", "PATH=" + os.Getenv("PATH")}
	cmd.Dir = dir

	p, err := newRunner().Start(context.Background(), cmd, runner.Hooks{
		Stdout: func(b []byte) { stdout.Write(b) },
	})
	require.NoError(t, err)
	require.Equal(t, 0, p.Wait().Code)

	mark, wd, ok := strings.Cut(stdout.String(), "|")
	require.True(t, ok)
	require.Equal(t, "on", mark)

	// Resolve symlinks so macOS /private/var paths compare equal.
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(wd)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestConcurrentProcessesAreIndependent(t *testing.T) {
	t.Parallel()
	requireShell(t)

	r := newRunner()
	const n = 6
	outs := make([]bytes.Buffer, n)
	procs := make([]*runner.Process, n)
	for i := range n {
		cmd := runner.Command{Path: "sh", Args: []string{"-c", `echo "$0"; exit "$0"`, strconv.Itoa(i)}}
		p, err := r.Start(context.Background(), cmd, runner.Hooks{
			Stdout: func(b []byte) { outs[i].Write(b) },
		})
		require.NoError(t, err)
		procs[i] = p
	}

	for i, p := range procs {
		exit := p.Wait()
		require.NoError(t, exit.Err)
		require.Equal(t, i, exit.Code)
		require.Equal(t, strconv.Itoa(i)+"\n", outs[i].String())
	}
}
