package runner

import (
	"io"
	"os/exec"
)

// SetPipes replaces how r attaches the output pipes of each command.
func (r *Runner) SetPipes(stdout, stderr func(*exec.Cmd) (io.ReadCloser, error)) {
	r.stdoutPipe = stdout
	r.stderrPipe = stderr
}
