package types

const (
	CategoryExplicit   = "explicit"
	CategoryImplicit   = "implicit"
	CategoryContextual = "contextual"
	CategoryNegative   = "negative"
)

// DefaultMinScore is the rubric pass threshold when a test does not set one.
const DefaultMinScore = 70.0

// RubricConfig is the free-text rubric an LLM judge grades against.
type RubricConfig struct {
	Prompt   string   `json:"prompt" yaml:"prompt" validate:"required,min=10"`
	MinScore *float64 `json:"min_score,omitempty" yaml:"min_score,omitempty" validate:"omitempty,gte=0,lte=100"`
	Model    string   `json:"model,omitempty" yaml:"model,omitempty"`
}

// Threshold returns the configured minimum score or DefaultMinScore.
func (r *RubricConfig) Threshold() float64 {
	if r == nil || r.MinScore == nil {
		return DefaultMinScore
	}
	return *r.MinScore
}

// RubricEvaluation is the Phase 2 verdict from the judge.
type RubricEvaluation struct {
	Passed    bool    `json:"passed"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
	MinScore  float64 `json:"min_score"`
	Raw       string  `json:"raw,omitempty"`
	Model     string  `json:"model,omitempty"`
	Cached    bool    `json:"cached,omitempty"`
}

// TestCase is one declarative test against a skill.
type TestCase struct {
	Name     string `json:"name" yaml:"name" validate:"required"`
	Input    string `json:"input" yaml:"input"`
	Category string `json:"category" yaml:"category" validate:"omitempty,oneof=explicit implicit contextual negative"`
	// ShouldTrigger defaults to true when omitted.
	ShouldTrigger *bool         `json:"should_trigger,omitempty" yaml:"should_trigger,omitempty"`
	Expected      *CheckSpec    `json:"expected,omitempty" yaml:"expected,omitempty"`
	Rubric        *RubricConfig `json:"rubric,omitempty" yaml:"rubric,omitempty" validate:"omitempty"`
}

// Triggers reports whether the skill is expected to activate for this input.
func (tc *TestCase) Triggers() bool {
	if tc.ShouldTrigger == nil {
		return true
	}
	return *tc.ShouldTrigger
}

// FinalResult combines both phases into the verdict for one test execution.
type FinalResult struct {
	TestName      string            `json:"test_name"`
	Category      string            `json:"category"`
	Passed        bool              `json:"passed"`
	Score         float64           `json:"score"`
	Deterministic *Evaluation       `json:"deterministic,omitempty"`
	Rubric        *RubricEvaluation `json:"rubric,omitempty"`
	LatencyMS     int64             `json:"latency_ms"`
	InputTokens   int               `json:"input_tokens"`
	OutputTokens  int               `json:"output_tokens"`
	TotalTokens   int               `json:"total_tokens"`
	Error         string            `json:"error,omitempty"`
}
