package smoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/skilleval/engine/pkg/types"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultPollInterval   = 200 * time.Millisecond
	DefaultTermGrace      = 5 * time.Second
	DefaultCleanupTimeout = 10 * time.Second
	// readyGrace is how long a background process with no readiness
	// condition must stay alive to count as started.
	readyGrace = time.Second

	groupPollInterval = 20 * time.Millisecond
)

// Outcome is the terminal state of one smoke test.
type Outcome struct {
	Passed   bool
	Message  string
	Output   string
	Duration time.Duration
}

// Runner supervises smoke-test processes. The zero value is not usable;
// construct with NewRunner.
type Runner struct {
	shell          string
	exec           CommandRunner
	client         *http.Client
	pollInterval   time.Duration
	termGrace      time.Duration
	cleanupTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithPollInterval sets the readiness polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) { r.pollInterval = d }
}

// WithTermGrace sets how long to wait between SIGTERM and SIGKILL.
func WithTermGrace(d time.Duration) Option {
	return func(r *Runner) { r.termGrace = d }
}

// WithCleanupTimeout bounds the optional cleanup command.
func WithCleanupTimeout(d time.Duration) Option {
	return func(r *Runner) { r.cleanupTimeout = d }
}

// WithHTTPClient replaces the client used for health checks.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) { r.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a smoke-test runner using sh.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		shell:          "sh",
		exec:           &ShellRunner{Shell: "sh"},
		client:         &http.Client{Timeout: 2 * time.Second},
		pollInterval:   DefaultPollInterval,
		termGrace:      DefaultTermGrace,
		cleanupTimeout: DefaultCleanupTimeout,
		logger:         slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes one smoke test in dir. The cleanup command, if any, runs on
// every exit path. Run never returns an error: every failure, including a
// timeout, is a failed Outcome.
func (r *Runner) Run(ctx context.Context, st types.SmokeTest, dir string) (out Outcome) {
	start := time.Now()
	timeout := DefaultTimeout
	if st.Timeout > 0 {
		timeout = time.Duration(st.Timeout * float64(time.Second))
	}

	defer func() {
		if msg := r.cleanup(st, dir); msg != "" {
			if out.Message != "" {
				msg = out.Message + "; " + msg
			}
			out.Message = msg
		}
		out.Duration = time.Since(start)
	}()

	if strings.TrimSpace(st.Command) == "" {
		return Outcome{Message: "smoke test has no command"}
	}
	if st.Background {
		return r.background(ctx, st, dir, timeout)
	}
	return r.foreground(ctx, st, dir, timeout)
}

func (r *Runner) foreground(ctx context.Context, st types.SmokeTest, dir string, timeout time.Duration) Outcome {
	res, err := r.exec.Run(ctx, st.Command, dir, timeout)
	if err != nil {
		o := Outcome{Message: err.Error()}
		if res != nil {
			o.Output = res.Stdout + res.Stderr
		}
		if errors.Is(err, ErrTimedOut) {
			o.Message = fmt.Sprintf("timed out after %s", timeout)
		}
		return o
	}
	if res.ExitCode != 0 {
		return Outcome{
			Message: fmt.Sprintf("exited with code %d", res.ExitCode),
			Output:  res.Stdout + res.Stderr,
		}
	}
	return Outcome{Passed: true, Message: "exited with code 0", Output: res.Stdout}
}

// bgProcess is a started background command whose Wait runs in its own goroutine.
type bgProcess struct {
	cmd    *exec.Cmd
	stdout *cappedBuffer
	stderr *cappedBuffer
	done   chan struct{}
	err    error
}

func (p *bgProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (r *Runner) start(st types.SmokeTest, dir string) (*bgProcess, error) {
	p := &bgProcess{
		stdout: &cappedBuffer{},
		stderr: &cappedBuffer{},
		done:   make(chan struct{}),
	}
	cmd := exec.Command(r.shell, "-c", st.Command)
	cmd.Dir = dir
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr
	cmd.WaitDelay = 2 * time.Second
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p.cmd = cmd
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// stop sends SIGTERM to the process group, waits up to the grace period and
// then force-kills it. The group is signalled even when the leader has
// already exited, since anything it backgrounded is still a member.
func (r *Runner) stop(p *bgProcess) {
	pid := p.cmd.Process.Pid
	if err := terminateGroup(pid); err != nil {
		r.logger.Debug("smoke: SIGTERM process group", "pid", pid, "err", err)
	}
	if r.waitStopped(p, pid) {
		return
	}
	if err := killGroup(pid); err != nil {
		r.logger.Warn("smoke: SIGKILL process group", "pid", pid, "err", err)
	}
	if !r.waitStopped(p, pid) {
		r.logger.Error("smoke: process group survived SIGKILL", "pid", pid)
	}
}

// waitStopped waits up to the grace period for the leader to be reaped and
// the rest of its group to exit.
func (r *Runner) waitStopped(p *bgProcess, pid int) bool {
	grace := time.NewTimer(r.termGrace)
	defer grace.Stop()
	tick := time.NewTicker(groupPollInterval)
	defer tick.Stop()

	done := p.done
	for {
		if p.exited() && !groupAlive(pid) {
			return true
		}
		select {
		case <-grace.C:
			return false
		case <-done:
			done = nil
		case <-tick.C:
		}
	}
}

func (r *Runner) background(ctx context.Context, st types.SmokeTest, dir string, timeout time.Duration) Outcome {
	p, err := r.start(st, dir)
	if err != nil {
		return Outcome{Message: fmt.Sprintf("failed to start: %v", err)}
	}
	defer r.stop(p)

	expected := st.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	noConditions := st.WaitFor == "" && st.HealthCheck == ""
	startedAt := time.Now()
	deadline := startedAt.Add(timeout)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if st.WaitFor != "" && strings.Contains(p.stdout.String(), st.WaitFor) {
			return Outcome{Passed: true, Message: fmt.Sprintf("ready: output contained %q", st.WaitFor), Output: p.stdout.String()}
		}
		if st.HealthCheck != "" {
			if code, ok := r.probe(ctx, st.HealthCheck, expected); ok {
				return Outcome{Passed: true, Message: fmt.Sprintf("ready: %s returned %d", st.HealthCheck, code), Output: p.stdout.String()}
			}
		}
		if p.exited() {
			return Outcome{
				Message: fmt.Sprintf("process exited before becoming ready: %s", exitDescription(p)),
				Output:  p.stdout.String() + p.stderr.String(),
			}
		}
		if noConditions && time.Since(startedAt) >= min(readyGrace, timeout) {
			return Outcome{Passed: true, Message: "process still running after startup grace period", Output: p.stdout.String()}
		}
		if !time.Now().Before(deadline) {
			return Outcome{
				Message: fmt.Sprintf("timed out after %s waiting for %s", timeout, waitDescription(st)),
				Output:  p.stdout.String() + p.stderr.String(),
			}
		}

		select {
		case <-ctx.Done():
			return Outcome{Message: fmt.Sprintf("canceled: %v", ctx.Err())}
		case <-p.done:
		case <-ticker.C:
		}
	}
}

// probe performs one health-check request.
func (r *Runner) probe(ctx context.Context, url string, expected int) (int, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, resp.StatusCode == expected
}

// cleanup runs the optional cleanup command with its own timeout, detached
// from the caller's context so it still runs after cancellation.
func (r *Runner) cleanup(st types.SmokeTest, dir string) string {
	if strings.TrimSpace(st.Cleanup) == "" {
		return ""
	}
	res, err := r.exec.Run(context.Background(), st.Cleanup, dir, r.cleanupTimeout)
	if err != nil {
		r.logger.Warn("smoke: cleanup command failed", "test", st.Label(), "err", err)
		return fmt.Sprintf("cleanup failed: %v", err)
	}
	if res.ExitCode != 0 {
		r.logger.Warn("smoke: cleanup command exited non-zero", "test", st.Label(), "code", res.ExitCode)
		return fmt.Sprintf("cleanup exited with code %d", res.ExitCode)
	}
	return ""
}

func exitDescription(p *bgProcess) string {
	if p.cmd.ProcessState != nil {
		return fmt.Sprintf("exit code %d", p.cmd.ProcessState.ExitCode())
	}
	if p.err != nil {
		return p.err.Error()
	}
	return "unknown status"
}

func waitDescription(st types.SmokeTest) string {
	var parts []string
	if st.WaitFor != "" {
		parts = append(parts, fmt.Sprintf("output %q", st.WaitFor))
	}
	if st.HealthCheck != "" {
		expected := st.ExpectedStatus
		if expected == 0 {
			expected = http.StatusOK
		}
		parts = append(parts, fmt.Sprintf("%s to return %d", st.HealthCheck, expected))
	}
	return strings.Join(parts, " or ")
}
