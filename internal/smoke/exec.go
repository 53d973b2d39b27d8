package smoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// ErrTimedOut is returned when a command is killed for exceeding its deadline.
var ErrTimedOut = errors.New("timed out")

// maxCapture bounds how much of each output stream is retained.
const maxCapture = 256 * 1024

// Result is the outcome of one finished command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// CommandRunner runs a shell command in dir and waits for it to finish.
// A non-zero exit is reported through Result.ExitCode, not as an error.
// Errors are reserved for commands that could not run or were killed; a
// deadline kill wraps ErrTimedOut.
type CommandRunner interface {
	Run(ctx context.Context, command, dir string, timeout time.Duration) (*Result, error)
}

// ShellRunner runs commands through a local shell in their own process group.
type ShellRunner struct {
	// Shell defaults to "sh".
	Shell string
}

// Run executes command with "<shell> -c". On timeout the whole process group
// is killed, so children spawned by the command do not outlive it.
func (r *ShellRunner) Run(ctx context.Context, command, dir string, timeout time.Duration) (*Result, error) {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr cappedBuffer
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killGroup(cmd.Process.Pid) }
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			res.TimedOut = true
			return res, fmt.Errorf("command %w after %s", ErrTimedOut, timeout)
		}
		return res, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, nil
		}
		return res, fmt.Errorf("run %q: %w", command, err)
	}
	return res, nil
}

// cappedBuffer is a goroutine-safe buffer that silently drops bytes past maxCapture.
type cappedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := maxCapture - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
