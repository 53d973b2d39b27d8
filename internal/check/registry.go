package check

import "github.com/skilleval/engine/pkg/types"

// Descriptors returns the built-in check table in evaluation order. Order
// does not affect the score; it only fixes the order of reported results.
// The returned slice is a fresh copy.
func Descriptors() []Descriptor {
	return []Descriptor{
		// Tool calls
		{Name: "tool_calls_contain", Enabled: func(s *types.CheckSpec) bool { return len(s.ToolCallsContain) > 0 }, Run: checkToolCallsContain},
		{Name: "tool_calls_not_contain", Enabled: func(s *types.CheckSpec) bool { return len(s.ToolCallsNotContain) > 0 }, Run: checkToolCallsNotContain},
		{Name: "tool_sequence", Enabled: func(s *types.CheckSpec) bool { return len(s.ToolSequence) > 0 }, Run: checkToolSequence},

		// Files
		{Name: "files_created", Enabled: func(s *types.CheckSpec) bool { return len(s.FilesCreated) > 0 }, Run: checkFilesCreated},
		{Name: "files_modified", Enabled: func(s *types.CheckSpec) bool { return len(s.FilesModified) > 0 }, Run: checkFilesModified},
		{Name: "files_not_modified", Enabled: func(s *types.CheckSpec) bool { return len(s.FilesNotModified) > 0 }, Run: checkFilesNotModified},
		{Name: "file_contains", Enabled: func(s *types.CheckSpec) bool { return len(s.FileContains) > 0 }, Run: checkFileContains},
		{Name: "file_not_contains", Enabled: func(s *types.CheckSpec) bool { return len(s.FileNotContains) > 0 }, Run: checkFileNotContains},

		// Commands
		{Name: "commands_ran", Enabled: func(s *types.CheckSpec) bool { return len(s.CommandsRan) > 0 }, Run: checkCommandsRan},
		{Name: "commands_not_ran", Enabled: func(s *types.CheckSpec) bool { return len(s.CommandsNotRan) > 0 }, Run: checkCommandsNotRan},
		{Name: "commands_count_max", Enabled: func(s *types.CheckSpec) bool { return s.CommandsCountMax != nil }, Run: checkCommandsCountMax},

		// Output
		{Name: "output_contains", Enabled: func(s *types.CheckSpec) bool { return len(s.OutputContains) > 0 }, Run: checkOutputContains},
		{Name: "output_not_contains", Enabled: func(s *types.CheckSpec) bool { return len(s.OutputNotContains) > 0 }, Run: checkOutputNotContains},

		// Token budgets
		{Name: "max_input_tokens", Enabled: func(s *types.CheckSpec) bool { return s.MaxInputTokens != nil }, Run: checkMaxInputTokens},
		{Name: "max_output_tokens", Enabled: func(s *types.CheckSpec) bool { return s.MaxOutputTokens != nil }, Run: checkMaxOutputTokens},
		{Name: "max_total_tokens", Enabled: func(s *types.CheckSpec) bool { return s.MaxTotalTokens != nil }, Run: checkMaxTotalTokens},

		// Build and runtime verification
		{Name: "build_must_pass", Enabled: func(s *types.CheckSpec) bool { return len(s.BuildMustPass) > 0 }, Run: checkBuildMustPass},
		{Name: "smoke_test", Enabled: func(s *types.CheckSpec) bool { return len(s.SmokeTests) > 0 }, Run: checkSmokeTests},
		{Name: "git_clean", Enabled: func(s *types.CheckSpec) bool { return s.GitClean }, Run: checkGitClean},

		// Security
		{Name: "forbidden_patterns", Enabled: func(s *types.CheckSpec) bool { return len(s.ForbiddenPatterns) > 0 }, Run: checkForbiddenPatterns},
		{Name: "no_sudo", Enabled: func(s *types.CheckSpec) bool { return s.NoSudo }, Run: checkNoSudo},
		{Name: "no_network_external", Enabled: func(s *types.CheckSpec) bool { return s.NoNetworkExternal }, Run: checkNoNetworkExternal},
		{Name: "no_path_traversal", Enabled: func(s *types.CheckSpec) bool { return s.NoPathTraversal }, Run: checkNoPathTraversal},
		{Name: "no_absolute_paths_outside_cwd", Enabled: func(s *types.CheckSpec) bool { return s.NoAbsolutePathsOutsideCwd }, Run: checkNoAbsolutePathsOutsideCwd},
		{Name: "no_secrets_in_output", Enabled: func(s *types.CheckSpec) bool { return s.NoSecretsInOutput }, Run: checkNoSecretsInOutput},
		{Name: "no_data_exfiltration", Enabled: func(s *types.CheckSpec) bool { return s.NoDataExfiltration }, Run: checkNoDataExfiltration},
		{Name: "no_destructive_commands", Enabled: func(s *types.CheckSpec) bool { return s.NoDestructiveCommands }, Run: checkNoDestructiveCommands},
		{Name: "no_prompt_injection", Enabled: func(s *types.CheckSpec) bool { return s.NoPromptInjection }, Run: checkNoPromptInjection},
		{Name: "allowed_commands_only", Enabled: func(s *types.CheckSpec) bool { return len(s.AllowedCommandsOnly) > 0 }, Run: checkAllowedCommandsOnly},

		// Quantity limits
		{Name: "max_files_created", Enabled: func(s *types.CheckSpec) bool { return s.MaxFilesCreated != nil }, Run: checkMaxFilesCreated},
		{Name: "max_files_modified", Enabled: func(s *types.CheckSpec) bool { return s.MaxFilesModified != nil }, Run: checkMaxFilesModified},
		{Name: "max_tool_calls", Enabled: func(s *types.CheckSpec) bool { return s.MaxToolCalls != nil }, Run: checkMaxToolCalls},
		{Name: "max_duration_seconds", Enabled: func(s *types.CheckSpec) bool { return s.MaxDurationSeconds != nil }, Run: checkMaxDuration},
		{Name: "no_errors", Enabled: func(s *types.CheckSpec) bool { return s.NoErrors }, Run: checkNoErrors},
	}
}

// Names returns the built-in check names in evaluation order.
func Names() []string {
	ds := Descriptors()
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}
