package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"
)

// DefaultMockContent is the judge reply returned when no responses are
// scripted: a mid-range passing score.
const DefaultMockContent = `{"score": 75, "reasoning": "default mock judgement"}`

// MockProvider implements Provider with scripted judge replies for tests
// and for dry runs of the CLI (`--judge-provider mock`).
type MockProvider struct {
	mu               sync.Mutex
	Responses        []*CompletionResponse
	Errors           []error
	CallCount        int
	LastRequest      *CompletionRequest
	RequestHistory   []CompletionRequest
	ReplayMode       bool
	SimulatedLatency time.Duration
	MatchFunc        func(*CompletionRequest) *CompletionResponse
}

// NewMockProvider creates a MockProvider cycling through the given responses.
// If both are nil/empty, every call returns DefaultMockContent.
func NewMockProvider(responses []*CompletionResponse, errors []error) *MockProvider {
	return &MockProvider{Responses: responses, Errors: errors}
}

// NewReplayProvider creates a MockProvider that uses responses exactly once in order.
// Returns an error when all responses have been consumed.
func NewReplayProvider(responses []*CompletionResponse) *MockProvider {
	return &MockProvider{Responses: responses, ReplayMode: true}
}

func (m *MockProvider) Name() string        { return "mock" }
func (m *MockProvider) DefaultModel() string { return "mock-model" }

func (m *MockProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	latency := m.SimulatedLatency
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.CallCount
	m.CallCount++
	m.LastRequest = req
	m.RequestHistory = append(m.RequestHistory, *req)

	if idx < len(m.Errors) && m.Errors[idx] != nil {
		return nil, m.Errors[idx]
	}

	// MatchFunc takes priority over index-based selection.
	if m.MatchFunc != nil {
		if resp := m.MatchFunc(req); resp != nil {
			return resp, nil
		}
	}

	if m.ReplayMode {
		if idx >= len(m.Responses) {
			return nil, fmt.Errorf("mock provider: all %d responses exhausted at call %d", len(m.Responses), idx)
		}
		return m.Responses[idx], nil
	}

	if len(m.Responses) > 0 {
		return m.Responses[idx%len(m.Responses)], nil
	}

	model := req.Model
	if model == "" {
		model = "mock-model"
	}
	return &CompletionResponse{
		Content:      DefaultMockContent,
		Model:        model,
		InputTokens:  10,
		OutputTokens: 10,
		DurationMS:   50,
	}, nil
}

// JudgeResponse builds a well-formed judge reply with the given score and
// reasoning.
func JudgeResponse(score float64, reasoning string) *CompletionResponse {
	body, _ := json.Marshal(map[string]any{"score": score, "reasoning": reasoning})
	return &CompletionResponse{Content: string(body), Model: "mock-model", InputTokens: 10, OutputTokens: 10}
}

// Reset clears call counters and history, keeping scripted responses.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount = 0
	m.LastRequest = nil
	m.RequestHistory = nil
}

// GetCallCount returns the number of times Complete has been called.
func (m *MockProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// GetRequestHistory returns a copy of all requests made to this provider.
func (m *MockProvider) GetRequestHistory() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.RequestHistory...)
}
