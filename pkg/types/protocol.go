package types

import "encoding/json"

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error object.
type RPCError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData holds structured error detail.
type ErrorData struct {
	ErrorType string `json:"error_type"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail"`
}

// InitializeParams holds parameters for the initialize method.
type InitializeParams struct {
	ClientName           string   `json:"client_name"`
	ClientVersion        string   `json:"client_version"`
	ProtocolVersion      int      `json:"protocol_version"`
	RequiredCapabilities []string `json:"required_capabilities"`
}

// InitializeResult holds the result of the initialize method.
type InitializeResult struct {
	EngineVersion         string   `json:"engine_version"`
	ProtocolVersion       int      `json:"protocol_version"`
	Capabilities          []string `json:"capabilities"`
	Missing               []string `json:"missing"`
	Compatible            bool     `json:"compatible"`
	MaxConcurrentRequests int      `json:"max_concurrent_requests"`
	MaxTraceSizeBytes     int      `json:"max_trace_size_bytes"`
	CheckCatalogVersion   string   `json:"check_catalog_version"`
}

// EvaluateParams holds parameters for the evaluate method. The test case is
// kept raw so it can be schema-validated before decoding.
type EvaluateParams struct {
	TestCase  json.RawMessage `json:"test_case"`
	Trace     Trace           `json:"trace"`
	Cwd       string          `json:"cwd,omitempty"`
	SkillName string          `json:"skill_name,omitempty"`
}

// EvaluateBatchParams holds parameters for the evaluate_batch method.
type EvaluateBatchParams struct {
	Items []EvaluateParams `json:"items"`
}

// EvaluateBatchResult holds the result of the evaluate_batch method.
type EvaluateBatchResult struct {
	Results         []FinalResult `json:"results"`
	TotalDurationMS int64         `json:"total_duration_ms"`
}

// EvaluateChecksParams holds parameters for the evaluate_checks method,
// which runs Phase 1 only.
type EvaluateChecksParams struct {
	Expected *CheckSpec `json:"expected"`
	Trace    Trace      `json:"trace"`
	Cwd      string     `json:"cwd,omitempty"`
}

// CacheStatsResult holds the result of the cache_stats method.
type CacheStatsResult struct {
	Enabled   bool  `json:"enabled"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Entries   int   `json:"entries"`
	Persisted int   `json:"persisted"`
}

// ShutdownResult holds the result of the shutdown method.
type ShutdownResult struct {
	SessionsCompleted    int `json:"sessions_completed"`
	EvaluationsCompleted int `json:"evaluations_completed"`
}
