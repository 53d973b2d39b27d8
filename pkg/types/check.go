package types

// CheckSpec is the sparse "expected" block of a test case. Every populated
// field enables exactly one check family; zero values mean "don't check".
type CheckSpec struct {
	ToolCallsContain    []string `json:"tool_calls_contain,omitempty" yaml:"tool_calls_contain,omitempty"`
	ToolCallsNotContain []string `json:"tool_calls_not_contain,omitempty" yaml:"tool_calls_not_contain,omitempty"`
	ToolSequence        []string `json:"tool_sequence,omitempty" yaml:"tool_sequence,omitempty"`

	FilesCreated     []string            `json:"files_created,omitempty" yaml:"files_created,omitempty"`
	FilesModified    []string            `json:"files_modified,omitempty" yaml:"files_modified,omitempty"`
	FilesNotModified []string            `json:"files_not_modified,omitempty" yaml:"files_not_modified,omitempty"`
	FileContains     map[string][]string `json:"file_contains,omitempty" yaml:"file_contains,omitempty"`
	FileNotContains  map[string][]string `json:"file_not_contains,omitempty" yaml:"file_not_contains,omitempty"`

	CommandsRan      []string `json:"commands_ran,omitempty" yaml:"commands_ran,omitempty"`
	CommandsNotRan   []string `json:"commands_not_ran,omitempty" yaml:"commands_not_ran,omitempty"`
	CommandsCountMax *int     `json:"commands_count_max,omitempty" yaml:"commands_count_max,omitempty"`

	OutputContains    []string `json:"output_contains,omitempty" yaml:"output_contains,omitempty"`
	OutputNotContains []string `json:"output_not_contains,omitempty" yaml:"output_not_contains,omitempty"`

	MaxInputTokens  *int `json:"max_input_tokens,omitempty" yaml:"max_input_tokens,omitempty"`
	MaxOutputTokens *int `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty"`
	MaxTotalTokens  *int `json:"max_total_tokens,omitempty" yaml:"max_total_tokens,omitempty"`

	BuildMustPass []string `json:"build_must_pass,omitempty" yaml:"build_must_pass,omitempty"`
	// BuildTimeout overrides the default build timeout, in seconds.
	BuildTimeout *int        `json:"build_timeout,omitempty" yaml:"build_timeout,omitempty"`
	SmokeTests   []SmokeTest `json:"smoke_tests,omitempty" yaml:"smoke_tests,omitempty"`
	GitClean     bool        `json:"git_clean,omitempty" yaml:"git_clean,omitempty"`

	ForbiddenPatterns         []string `json:"forbidden_patterns,omitempty" yaml:"forbidden_patterns,omitempty"`
	NoSudo                    bool     `json:"no_sudo,omitempty" yaml:"no_sudo,omitempty"`
	NoNetworkExternal         bool     `json:"no_network_external,omitempty" yaml:"no_network_external,omitempty"`
	NoPathTraversal           bool     `json:"no_path_traversal,omitempty" yaml:"no_path_traversal,omitempty"`
	NoAbsolutePathsOutsideCwd bool     `json:"no_absolute_paths_outside_cwd,omitempty" yaml:"no_absolute_paths_outside_cwd,omitempty"`
	NoSecretsInOutput         bool     `json:"no_secrets_in_output,omitempty" yaml:"no_secrets_in_output,omitempty"`
	NoDataExfiltration        bool     `json:"no_data_exfiltration,omitempty" yaml:"no_data_exfiltration,omitempty"`
	NoDestructiveCommands     bool     `json:"no_destructive_commands,omitempty" yaml:"no_destructive_commands,omitempty"`
	NoPromptInjection         bool     `json:"no_prompt_injection,omitempty" yaml:"no_prompt_injection,omitempty"`
	AllowedCommandsOnly       []string `json:"allowed_commands_only,omitempty" yaml:"allowed_commands_only,omitempty"`

	MaxFilesCreated  *int `json:"max_files_created,omitempty" yaml:"max_files_created,omitempty"`
	MaxFilesModified *int `json:"max_files_modified,omitempty" yaml:"max_files_modified,omitempty"`

	MaxToolCalls       *int     `json:"max_tool_calls,omitempty" yaml:"max_tool_calls,omitempty"`
	MaxDurationSeconds *float64 `json:"max_duration_seconds,omitempty" yaml:"max_duration_seconds,omitempty"`
	NoErrors           bool     `json:"no_errors,omitempty" yaml:"no_errors,omitempty"`
}

// SmokeTest describes a runtime check that a produced artifact actually runs.
type SmokeTest struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Command string `json:"command" yaml:"command" validate:"required"`
	// Background starts the command as a long-running process and waits
	// for a readiness signal instead of an exit code.
	Background     bool    `json:"background,omitempty" yaml:"background,omitempty"`
	WaitFor        string  `json:"wait_for,omitempty" yaml:"wait_for,omitempty"`
	HealthCheck    string  `json:"health_check,omitempty" yaml:"health_check,omitempty"`
	ExpectedStatus int     `json:"expected_status,omitempty" yaml:"expected_status,omitempty"`
	Timeout        float64 `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"gte=0"`
	Cleanup        string  `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
}

// Label returns the smoke test name, falling back to its command.
func (s SmokeTest) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Command
}

// CheckResult is the outcome of one deterministic check.
type CheckResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Message  string `json:"message"`
}

// Evaluation is the Phase 1 verdict over a set of checks.
type Evaluation struct {
	Passed      bool          `json:"passed"`
	Score       float64       `json:"score"`
	Checks      []CheckResult `json:"checks"`
	PassedCount int           `json:"passed_count"`
	TotalCount  int           `json:"total_count"`
}

// NewEvaluation scores checks with equal weight. An empty set is a vacuous pass.
func NewEvaluation(checks []CheckResult) *Evaluation {
	if checks == nil {
		checks = []CheckResult{}
	}
	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	score := 100.0
	if len(checks) > 0 {
		score = float64(passed) / float64(len(checks)) * 100
	}
	return &Evaluation{
		Passed:      passed == len(checks),
		Score:       score,
		Checks:      checks,
		PassedCount: passed,
		TotalCount:  len(checks),
	}
}

// Failed returns the checks that did not pass.
func (e *Evaluation) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range e.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}
