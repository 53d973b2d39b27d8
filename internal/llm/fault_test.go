package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func judgeReply(content string) *MockProvider {
	return NewMockProvider([]*CompletionResponse{{Content: content, Model: "judge-model"}}, nil)
}

func judgeReq() *CompletionRequest {
	return &CompletionRequest{
		Model:     "judge-model",
		Messages:  []Message{{Role: "user", Content: "grade this"}},
		MaxTokens: 100,
	}
}

func TestFaultInjector_Passthrough(t *testing.T) {
	fi := NewFaultInjector(judgeReply(`{"score": 90}`), FaultConfig{Seed: 42})

	resp, err := fi.Complete(context.Background(), judgeReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"score": 90}` {
		t.Fatalf("expected passthrough content, got %q", resp.Content)
	}
	if fi.Name() != "fault:mock" || fi.DefaultModel() != "mock-model" {
		t.Errorf("name/model not delegated: %q %q", fi.Name(), fi.DefaultModel())
	}
}

func TestFaultInjector_ErrorRate(t *testing.T) {
	always := NewFaultInjector(judgeReply("ok"), FaultConfig{ErrorRate: 1.0, Seed: 42})
	never := NewFaultInjector(judgeReply("ok"), FaultConfig{ErrorRate: 0.0, Seed: 42})

	for i := range 10 {
		if _, err := always.Complete(context.Background(), judgeReq()); !errors.Is(err, ErrInjected) {
			t.Fatalf("call %d: expected ErrInjected with ErrorRate=1.0, got %v", i, err)
		}
		if _, err := never.Complete(context.Background(), judgeReq()); err != nil {
			t.Fatalf("call %d: unexpected error with ErrorRate=0.0: %v", i, err)
		}
	}
}

func TestFaultInjector_LatencyJitterBounded(t *testing.T) {
	fi := NewFaultInjector(judgeReply("ok"), FaultConfig{Jitter: 100 * time.Millisecond, Seed: 1})

	start := time.Now()
	if _, err := fi.Complete(context.Background(), judgeReq()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("elapsed %v exceeds jitter ceiling of 100ms plus overhead", elapsed)
	}
}

func TestFaultInjector_TruncationLeavesInnerIntact(t *testing.T) {
	original := `{"score": 85, "reasoning": "the quick brown fox jumps over the lazy dog"}`
	inner := judgeReply(original)
	fi := NewFaultInjector(inner, FaultConfig{TruncateReplies: true, Seed: 99})

	resp, err := fi.Complete(context.Background(), judgeReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Content) >= len(original) || !strings.HasPrefix(original, resp.Content) {
		t.Fatalf("expected a strict prefix of the reply, got %q", resp.Content)
	}
	if inner.Responses[0].Content != original {
		t.Error("truncation must not mutate the inner provider's response")
	}
	if fi.Injected() != 1 {
		t.Errorf("Injected() = %d, want 1", fi.Injected())
	}
}

func TestFaultConfig_Enabled(t *testing.T) {
	if (FaultConfig{Seed: 7}).Enabled() {
		t.Error("a seed alone injects nothing")
	}
	for _, c := range []FaultConfig{{ErrorRate: 0.1}, {Jitter: time.Millisecond}, {TruncateReplies: true}, {HangFor: time.Second}} {
		if !c.Enabled() {
			t.Errorf("%+v should be enabled", c)
		}
	}
}

func TestFaultInjector_Timeout(t *testing.T) {
	fi := NewFaultInjector(judgeReply("ok"), FaultConfig{HangFor: 10 * time.Millisecond, Seed: 42})

	start := time.Now()
	_, err := fi.Complete(context.Background(), judgeReq())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("expected at least 10ms delay, got %v", elapsed)
	}
}

func TestFaultInjector_TimeoutHonoursCancel(t *testing.T) {
	fi := NewFaultInjector(judgeReply("ok"), FaultConfig{HangFor: time.Minute, Seed: 42})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := fi.Complete(ctx, judgeReq()); err == nil {
		t.Fatal("expected error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("injected sleep ignored cancellation: %v", elapsed)
	}
}

func TestFaultInjector_InnerErrorPropagates(t *testing.T) {
	inner := NewMockProvider(nil, []error{errors.New("inner failure")})
	fi := NewFaultInjector(inner, FaultConfig{Seed: 42})

	_, err := fi.Complete(context.Background(), judgeReq())
	if err == nil || err.Error() != "inner failure" {
		t.Fatalf("expected inner error to propagate, got %v", err)
	}
}
