package types

import "time"

// Trace is the record of one agent execution as captured by an adapter.
// The evaluation core treats it as read-only.
type Trace struct {
	SessionID     string    `json:"session_id" yaml:"session_id"`
	SkillName     string    `json:"skill_name" yaml:"skill_name"`
	TestName      string    `json:"test_name" yaml:"test_name"`
	StartedAt     time.Time `json:"started_at" yaml:"started_at"`
	EndedAt       time.Time `json:"ended_at" yaml:"ended_at"`
	ToolCalls     []string  `json:"tool_calls" yaml:"tool_calls"`
	FilesCreated  []string  `json:"files_created" yaml:"files_created"`
	FilesModified []string  `json:"files_modified" yaml:"files_modified"`
	CommandsRan   []string  `json:"commands_ran" yaml:"commands_ran"`
	FinalOutput   string    `json:"final_output" yaml:"final_output"`
	InputTokens   int       `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens  int       `json:"output_tokens" yaml:"output_tokens"`
	Errors        []string  `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Duration returns the wall-clock time between start and end.
// Missing or inverted timestamps yield zero.
func (t *Trace) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.EndedAt.IsZero() || t.EndedAt.Before(t.StartedAt) {
		return 0
	}
	return t.EndedAt.Sub(t.StartedAt)
}

// TotalTokens returns input plus output tokens.
func (t *Trace) TotalTokens() int {
	return t.InputTokens + t.OutputTokens
}

// FirstError returns the first recorded error, or "" when the run was clean.
func (t *Trace) FirstError() string {
	if len(t.Errors) == 0 {
		return ""
	}
	return t.Errors[0]
}
