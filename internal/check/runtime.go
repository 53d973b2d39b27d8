package check

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skilleval/engine/internal/smoke"
	"github.com/skilleval/engine/pkg/types"
)

// maxListedChanges bounds the paths named in a failing git_clean result.
const maxListedChanges = 5

// checkBuildMustPass runs each build command in cwd and reports one result
// per command. A command passes iff it exits 0 before the build timeout.
func checkBuildMustPass(ctx context.Context, env *Env) []types.CheckResult {
	const name = "build_must_pass"
	out := make([]types.CheckResult, 0, len(env.Spec.BuildMustPass))
	for _, command := range env.Spec.BuildMustPass {
		expected := "exit 0: " + command
		res, err := env.build.Run(ctx, command, env.Cwd, env.buildTimeout)
		switch {
		case errors.Is(err, smoke.ErrTimedOut):
			out = append(out, fail(name, expected, "killed", fmt.Sprintf("%q timed out after %s", command, env.buildTimeout)))
		case err != nil:
			out = append(out, fail(name, expected, "error", fmt.Sprintf("%q failed to run: %v", command, err)))
		case res.ExitCode != 0:
			out = append(out, fail(name, expected, fmt.Sprintf("exit %d", res.ExitCode),
				fmt.Sprintf("%q exited with code %d: %s", command, res.ExitCode, tail(res.Stderr+res.Stdout, maxReported))))
		default:
			out = append(out, pass(name, expected, "exit 0", fmt.Sprintf("%q succeeded in %s", command, res.Duration.Round(time.Millisecond))))
		}
	}
	return out
}

// checkSmokeTests runs each smoke test and reports one result per test.
func checkSmokeTests(ctx context.Context, env *Env) []types.CheckResult {
	const name = "smoke_test"
	out := make([]types.CheckResult, 0, len(env.Spec.SmokeTests))
	for _, st := range env.Spec.SmokeTests {
		o := env.smoke.Run(ctx, st, env.Cwd)
		msg := fmt.Sprintf("%s: %s", st.Label(), o.Message)
		actual := truncate(o.Output, maxReported)
		if o.Passed {
			out = append(out, pass(name, st.Label(), actual, msg))
		} else {
			out = append(out, fail(name, st.Label(), actual, msg))
		}
	}
	return out
}

// checkGitClean passes when `git status --porcelain` reports nothing.
func checkGitClean(ctx context.Context, env *Env) []types.CheckResult {
	const name = "git_clean"
	const expected = "clean working tree"
	res, err := env.local.Run(ctx, "git status --porcelain", env.Cwd, gitTimeout)
	if err != nil {
		return one(fail(name, expected, "error", fmt.Sprintf("git status failed: %v", err)))
	}
	if res.ExitCode != 0 {
		return one(fail(name, expected, fmt.Sprintf("exit %d", res.ExitCode),
			fmt.Sprintf("git status exited with code %d: %s", res.ExitCode, strings.TrimSpace(tail(res.Stderr, maxReported)))))
	}

	var changed []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if len(strings.TrimSpace(line)) == 0 {
			continue
		}
		if len(line) > 3 {
			line = line[3:]
		}
		changed = append(changed, strings.TrimSpace(line))
	}
	if len(changed) == 0 {
		return one(pass(name, expected, "clean", "working tree is clean"))
	}
	listed := changed
	if len(listed) > maxListedChanges {
		listed = listed[:maxListedChanges]
	}
	msg := fmt.Sprintf("%d uncommitted change(s): %s", len(changed), strings.Join(listed, ", "))
	if len(changed) > maxListedChanges {
		msg += fmt.Sprintf(" (and %d more)", len(changed)-maxListedChanges)
	}
	return one(fail(name, expected, fmt.Sprintf("%d changed", len(changed)), msg))
}

// tail returns the last n bytes of s, where build errors usually are.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !isRuneStart(s[i]) {
		i++
	}
	return "..." + s[i:]
}
