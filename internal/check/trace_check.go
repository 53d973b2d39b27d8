package check

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/skilleval/engine/internal/trace"
	"github.com/skilleval/engine/pkg/types"
)

// maxReported bounds string values echoed back in results.
const maxReported = 500

func checkToolCallsContain(_ context.Context, env *Env) []types.CheckResult {
	const name = "tool_calls_contain"
	want := env.Spec.ToolCallsContain
	have := trace.ToolSet(env.Trace)
	var missing []string
	for _, tool := range want {
		if _, ok := have[tool]; !ok {
			missing = append(missing, tool)
		}
	}
	actual := formatList(env.Trace.ToolCalls)
	if len(missing) > 0 {
		return one(fail(name, formatList(want), actual, fmt.Sprintf("required tools not called: %v", missing)))
	}
	return one(pass(name, formatList(want), actual, fmt.Sprintf("all required tools called: %v", want)))
}

func checkToolCallsNotContain(_ context.Context, env *Env) []types.CheckResult {
	const name = "tool_calls_not_contain"
	forbidden := env.Spec.ToolCallsNotContain
	have := trace.ToolSet(env.Trace)
	var found []string
	for _, tool := range forbidden {
		if _, ok := have[tool]; ok {
			found = append(found, tool)
		}
	}
	actual := formatList(env.Trace.ToolCalls)
	if len(found) > 0 {
		return one(fail(name, "none of "+formatList(forbidden), actual, fmt.Sprintf("forbidden tools called: %v", found)))
	}
	return one(pass(name, "none of "+formatList(forbidden), actual, "no forbidden tools called"))
}

func checkToolSequence(_ context.Context, env *Env) []types.CheckResult {
	const name = "tool_sequence"
	ok, msg := checkContainsInOrder(env.Trace.ToolCalls, env.Spec.ToolSequence)
	return one(result(ok, name, formatList(env.Spec.ToolSequence), formatList(env.Trace.ToolCalls), msg))
}

// checkContainsInOrder verifies that tools appear in calls in order, not
// necessarily contiguously.
func checkContainsInOrder(calls []string, tools []string) (bool, string) {
	indices := make([]int, 0, len(tools))
	cursor := 0
	for _, tool := range tools {
		found := false
		for i := cursor; i < len(calls); i++ {
			if calls[i] == tool {
				indices = append(indices, i)
				cursor = i + 1
				found = true
				break
			}
		}
		if !found {
			return false, fmt.Sprintf("tool sequence %v not found in order; missing %q after position %d", tools, tool, cursor)
		}
	}
	return true, fmt.Sprintf("tool sequence %v found in order at calls %v", tools, indices)
}

func checkFilesCreated(_ context.Context, env *Env) []types.CheckResult {
	return filesPresent("files_created", env.Spec.FilesCreated, env.Trace.FilesCreated, "created")
}

func checkFilesModified(_ context.Context, env *Env) []types.CheckResult {
	return filesPresent("files_modified", env.Spec.FilesModified, env.Trace.FilesModified, "modified")
}

// filesPresent compares by basename, since adapters report paths relative
// to different working directories.
func filesPresent(name string, want, got []string, verb string) []types.CheckResult {
	have := trace.BasenameSet(got)
	var missing []string
	for _, f := range want {
		if _, ok := have[trace.Basename(f)]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return one(fail(name, formatList(want), formatList(got), fmt.Sprintf("files not %s: %v", verb, missing)))
	}
	return one(pass(name, formatList(want), formatList(got), fmt.Sprintf("all %d expected files %s", len(want), verb)))
}

func checkFilesNotModified(_ context.Context, env *Env) []types.CheckResult {
	const name = "files_not_modified"
	protected := env.Spec.FilesNotModified
	have := trace.BasenameSet(env.Trace.FilesModified)
	var touched []string
	for _, f := range protected {
		if _, ok := have[trace.Basename(f)]; ok {
			touched = append(touched, f)
		}
	}
	expected := "unchanged: " + formatList(protected)
	if len(touched) > 0 {
		return one(fail(name, expected, formatList(env.Trace.FilesModified), fmt.Sprintf("protected files were modified: %v", touched)))
	}
	return one(pass(name, expected, formatList(env.Trace.FilesModified), "protected files were not modified"))
}

func checkCommandsRan(_ context.Context, env *Env) []types.CheckResult {
	const name = "commands_ran"
	want := env.Spec.CommandsRan
	var missing []string
	for _, c := range want {
		if !anyContainsFold(env.Trace.CommandsRan, c) {
			missing = append(missing, c)
		}
	}
	actual := truncate(formatList(env.Trace.CommandsRan), maxReported)
	if len(missing) > 0 {
		return one(fail(name, formatList(want), actual, fmt.Sprintf("expected commands not run: %v", missing)))
	}
	return one(pass(name, formatList(want), actual, "all expected commands were run"))
}

func checkCommandsNotRan(_ context.Context, env *Env) []types.CheckResult {
	const name = "commands_not_ran"
	forbidden := env.Spec.CommandsNotRan
	var found []string
	for _, c := range forbidden {
		if anyContainsFold(env.Trace.CommandsRan, c) {
			found = append(found, c)
		}
	}
	actual := truncate(formatList(env.Trace.CommandsRan), maxReported)
	if len(found) > 0 {
		return one(fail(name, "none of "+formatList(forbidden), actual, fmt.Sprintf("forbidden commands were run: %v", found)))
	}
	return one(pass(name, "none of "+formatList(forbidden), actual, "no forbidden commands were run"))
}

func checkCommandsCountMax(_ context.Context, env *Env) []types.CheckResult {
	return atMost("commands_count_max", "commands", len(env.Trace.CommandsRan), *env.Spec.CommandsCountMax)
}

func checkOutputContains(_ context.Context, env *Env) []types.CheckResult {
	const name = "output_contains"
	want := env.Spec.OutputContains
	lower := strings.ToLower(env.Trace.FinalOutput)
	var missing []string
	for _, s := range want {
		if !strings.Contains(lower, strings.ToLower(s)) {
			missing = append(missing, s)
		}
	}
	actual := truncate(env.Trace.FinalOutput, maxReported)
	if len(missing) > 0 {
		return one(fail(name, formatList(want), actual, fmt.Sprintf("output missing: %v", missing)))
	}
	return one(pass(name, formatList(want), actual, fmt.Sprintf("output contains all %d expected strings", len(want))))
}

func checkOutputNotContains(_ context.Context, env *Env) []types.CheckResult {
	const name = "output_not_contains"
	forbidden := env.Spec.OutputNotContains
	lower := strings.ToLower(env.Trace.FinalOutput)
	var found []string
	for _, s := range forbidden {
		if strings.Contains(lower, strings.ToLower(s)) {
			found = append(found, s)
		}
	}
	actual := truncate(env.Trace.FinalOutput, maxReported)
	if len(found) > 0 {
		return one(fail(name, "none of "+formatList(forbidden), actual, fmt.Sprintf("output contains forbidden strings: %v", found)))
	}
	return one(pass(name, "none of "+formatList(forbidden), actual, "output contains no forbidden strings"))
}

func checkMaxInputTokens(_ context.Context, env *Env) []types.CheckResult {
	return atMost("max_input_tokens", "input tokens", env.Trace.InputTokens, *env.Spec.MaxInputTokens)
}

func checkMaxOutputTokens(_ context.Context, env *Env) []types.CheckResult {
	return atMost("max_output_tokens", "output tokens", env.Trace.OutputTokens, *env.Spec.MaxOutputTokens)
}

func checkMaxTotalTokens(_ context.Context, env *Env) []types.CheckResult {
	return atMost("max_total_tokens", "total tokens", env.Trace.TotalTokens(), *env.Spec.MaxTotalTokens)
}

func checkMaxFilesCreated(_ context.Context, env *Env) []types.CheckResult {
	return atMost("max_files_created", "files created", len(env.Trace.FilesCreated), *env.Spec.MaxFilesCreated)
}

func checkMaxFilesModified(_ context.Context, env *Env) []types.CheckResult {
	return atMost("max_files_modified", "files modified", len(env.Trace.FilesModified), *env.Spec.MaxFilesModified)
}

func checkMaxToolCalls(_ context.Context, env *Env) []types.CheckResult {
	return atMost("max_tool_calls", "tool calls", trace.ToolCallCount(env.Trace), *env.Spec.MaxToolCalls)
}

func checkMaxDuration(_ context.Context, env *Env) []types.CheckResult {
	const name = "max_duration_seconds"
	limit := *env.Spec.MaxDurationSeconds
	got := env.Trace.Duration().Seconds()
	expected := "<= " + strconv.FormatFloat(limit, 'f', -1, 64) + "s"
	actual := strconv.FormatFloat(got, 'f', 2, 64) + "s"
	if got > limit {
		return one(fail(name, expected, actual, fmt.Sprintf("run took %s, exceeds limit %s", actual, expected[3:])))
	}
	return one(pass(name, expected, actual, fmt.Sprintf("run took %s, within limit", actual)))
}

func checkNoErrors(_ context.Context, env *Env) []types.CheckResult {
	const name = "no_errors"
	errs := env.Trace.Errors
	if len(errs) > 0 {
		return one(fail(name, "no errors", truncate(formatList(errs), maxReported), fmt.Sprintf("%d error(s) recorded; first: %s", len(errs), truncate(errs[0], 200))))
	}
	return one(pass(name, "no errors", "[]", "no errors recorded"))
}

// atMost is the shared "value <= limit" check.
func atMost(name, what string, got, limit int) []types.CheckResult {
	expected := "<= " + strconv.Itoa(limit)
	actual := strconv.Itoa(got)
	if got > limit {
		return one(fail(name, expected, actual, fmt.Sprintf("%d %s exceeds limit %d", got, what, limit)))
	}
	return one(pass(name, expected, actual, fmt.Sprintf("%d %s within limit %d", got, what, limit)))
}

func result(ok bool, name, expected, actual, msg string) types.CheckResult {
	if ok {
		return pass(name, expected, actual, msg)
	}
	return fail(name, expected, actual, msg)
}

func anyContainsFold(haystack []string, needle string) bool {
	n := strings.ToLower(needle)
	for _, h := range haystack {
		if strings.Contains(strings.ToLower(h), n) {
			return true
		}
	}
	return false
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	return "[" + strings.Join(items, ", ") + "]"
}

// truncate shortens s to n bytes plus an ellipsis, backing off to a rune
// boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
