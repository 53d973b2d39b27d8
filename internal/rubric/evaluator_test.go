package rubric_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/skilleval/engine/internal/cache"
	"github.com/skilleval/engine/internal/llm"
	"github.com/skilleval/engine/internal/rubric"
	"github.com/skilleval/engine/pkg/types"
)

func sampleTrace() *types.Trace {
	return &types.Trace{
		TestName:    "creates-readme",
		ToolCalls:   []string{"Write"},
		FinalOutput: "I wrote README.md with install steps.",
	}
}

func rubricConfig(minScore float64) types.RubricConfig {
	return types.RubricConfig{Prompt: "README explains installation clearly", MinScore: &minScore}
}

func TestEvaluate_PassFollowsMinScore(t *testing.T) {
	tests := []struct {
		score    float64
		minScore float64
		passed   bool
	}{
		{82, 70, true},
		{70, 70, true},
		{69.9, 70, false},
		{0, 0, true},
	}
	for _, tt := range tests {
		mock := llm.NewMockProvider([]*llm.CompletionResponse{llm.JudgeResponse(tt.score, "because")}, nil)
		got := rubric.New(mock).Evaluate(context.Background(), rubricConfig(tt.minScore), sampleTrace(), "readme-writer")
		if got.Passed != tt.passed || got.Score != tt.score || got.MinScore != tt.minScore {
			t.Errorf("score %v min %v: got %+v, want passed=%v", tt.score, tt.minScore, got, tt.passed)
		}
		if got.Rationale != "because" {
			t.Errorf("rationale = %q", got.Rationale)
		}
		if got.Raw == "" {
			t.Error("raw judge response not recorded")
		}
	}
}

func TestEvaluate_DefaultMinScore(t *testing.T) {
	mock := llm.NewMockProvider([]*llm.CompletionResponse{llm.JudgeResponse(65, "meh")}, nil)
	got := rubric.New(mock).Evaluate(context.Background(), types.RubricConfig{Prompt: "README explains installation"}, sampleTrace(), "")
	if got.MinScore != types.DefaultMinScore || got.Passed {
		t.Errorf("got %+v, want min score %v and a failure", got, types.DefaultMinScore)
	}
}

func TestEvaluate_RequestShape(t *testing.T) {
	mock := llm.NewMockProvider(nil, nil)
	rubric.New(mock, rubric.WithModel("judge-default")).Evaluate(context.Background(), rubricConfig(70), sampleTrace(), "readme-writer")

	req := mock.LastRequest
	if req == nil {
		t.Fatal("provider was not called")
	}
	if req.Model != "judge-default" {
		t.Errorf("model = %q, want evaluator default", req.Model)
	}
	if !strings.Contains(req.SystemPrompt, "README explains installation clearly") {
		t.Error("system prompt does not embed the rubric")
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v, want one user message", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, "<<<AGENT_OUTPUT_START>>>\nI wrote README.md") {
		t.Error("user prompt does not carry the wrapped final output")
	}
	if req.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", req.Temperature)
	}
}

func TestEvaluate_ModelResolution(t *testing.T) {
	mock := llm.NewMockProvider(nil, nil)

	rc := rubricConfig(70)
	rc.Model = "rubric-model"
	rubric.New(mock, rubric.WithModel("judge-default")).Evaluate(context.Background(), rc, sampleTrace(), "")
	if mock.LastRequest.Model != "rubric-model" {
		t.Errorf("model = %q, want the rubric override", mock.LastRequest.Model)
	}

	rubric.New(mock).Evaluate(context.Background(), rubricConfig(70), sampleTrace(), "")
	if mock.LastRequest.Model != "mock-model" {
		t.Errorf("model = %q, want the provider default", mock.LastRequest.Model)
	}
}

func TestEvaluate_FaultsDegrade(t *testing.T) {
	tests := []struct {
		name     string
		provider llm.Provider
		want     string
	}{
		{"no provider", nil, "no LLM provider"},
		{"provider error", llm.NewMockProvider(nil, []error{errors.New("503 upstream")}), "503 upstream"},
		{"malformed reply", llm.NewMockProvider([]*llm.CompletionResponse{{Content: "I think it is fine"}}, nil), "parse judge response"},
		{"injected fault", llm.NewFaultInjector(llm.NewMockProvider(nil, nil), llm.FaultConfig{ErrorRate: 1, Seed: 1}), "injected fault"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rubric.New(tt.provider).Evaluate(context.Background(), rubricConfig(0), sampleTrace(), "")
			if got == nil {
				t.Fatal("Evaluate returned nil")
			}
			if got.Passed || got.Score != 0 {
				t.Errorf("got passed=%v score=%v, want a zero-score failure", got.Passed, got.Score)
			}
			if !strings.Contains(got.Rationale, tt.want) {
				t.Errorf("rationale = %q, want it to contain %q", got.Rationale, tt.want)
			}
		})
	}
}

func TestEvaluate_Timeout(t *testing.T) {
	slow := llm.NewFaultInjector(llm.NewMockProvider(nil, nil), llm.FaultConfig{HangFor: time.Minute, Seed: 1})
	ev := rubric.New(slow, rubric.WithTimeout(50*time.Millisecond))

	start := time.Now()
	got := ev.Evaluate(context.Background(), rubricConfig(50), sampleTrace(), "")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("judge call took %s, timeout not applied", elapsed)
	}
	if got.Passed || !strings.Contains(got.Rationale, "deadline exceeded") {
		t.Errorf("got %+v, want a deadline failure", got)
	}
}

func TestEvaluate_NilTrace(t *testing.T) {
	got := rubric.New(llm.NewMockProvider(nil, nil)).Evaluate(context.Background(), rubricConfig(70), nil, "skill")
	if got.Score != 75 || !got.Passed {
		t.Errorf("got %+v, want the default mock verdict", got)
	}
}

func TestEvaluate_CacheShortCircuits(t *testing.T) {
	mock := llm.NewMockProvider([]*llm.CompletionResponse{llm.JudgeResponse(90, "great")}, nil)
	jc := cache.NewJudgeCache()
	ev := rubric.New(mock, rubric.WithCache(jc))

	first := ev.Evaluate(context.Background(), rubricConfig(70), sampleTrace(), "")
	if first.Cached {
		t.Error("first evaluation reported as cached")
	}

	// A stricter threshold on a cached verdict must be re-applied.
	second := ev.Evaluate(context.Background(), rubricConfig(95), sampleTrace(), "")
	if !second.Cached || second.Score != 90 || second.Rationale != "great" {
		t.Errorf("second = %+v, want cached score 90", second)
	}
	if second.Passed || second.MinScore != 95 {
		t.Errorf("cached verdict passed=%v min=%v, want failure against 95", second.Passed, second.MinScore)
	}
	if n := mock.GetCallCount(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
}

func TestEvaluate_CacheKeyedByTestAndOutput(t *testing.T) {
	mock := llm.NewMockProvider(nil, nil)
	ev := rubric.New(mock, rubric.WithCache(cache.NewJudgeCache()))

	tr := sampleTrace()
	ev.Evaluate(context.Background(), rubricConfig(70), tr, "")

	other := sampleTrace()
	other.TestName = "another-test"
	ev.Evaluate(context.Background(), rubricConfig(70), other, "")

	changed := sampleTrace()
	changed.FinalOutput = "different output"
	ev.Evaluate(context.Background(), rubricConfig(70), changed, "")

	if n := mock.GetCallCount(); n != 3 {
		t.Errorf("provider calls = %d, want 3 distinct judgements", n)
	}
}

func TestEvaluate_FailuresNotCached(t *testing.T) {
	mock := llm.NewMockProvider(
		[]*llm.CompletionResponse{nil, llm.JudgeResponse(80, "recovered")},
		[]error{errors.New("transient")},
	)
	ev := rubric.New(mock, rubric.WithCache(cache.NewJudgeCache()))

	if got := ev.Evaluate(context.Background(), rubricConfig(70), sampleTrace(), ""); got.Passed {
		t.Fatal("first call should fail")
	}
	got := ev.Evaluate(context.Background(), rubricConfig(70), sampleTrace(), "")
	if !got.Passed || got.Score != 80 || got.Cached {
		t.Errorf("second = %+v, want a fresh passing verdict", got)
	}
}
