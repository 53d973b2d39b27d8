package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/encoding/json"
	"golang.org/x/sync/errgroup"

	"github.com/skilleval/engine/internal/cache"
	"github.com/skilleval/engine/internal/check"
	"github.com/skilleval/engine/internal/orchestrator"
	"github.com/skilleval/engine/internal/security"
	"github.com/skilleval/engine/internal/testcase"
	"github.com/skilleval/engine/internal/trace"
	"github.com/skilleval/engine/pkg/types"
)

const (
	engineVersion   = "0.4.0"
	protocolVersion = 1

	// MaxBatchItems bounds the number of items in one evaluate_batch call.
	MaxBatchItems = 1000

	defaultBatchConcurrency = 4
	defaultHistoryWindow    = 20
)

// Deps are the evaluation components the built-in handlers serve.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	// Checks runs Phase 1 alone for evaluate_checks.
	Checks orchestrator.CheckEvaluator
	// Cache and History are optional.
	Cache   *cache.JudgeCache
	History *cache.HistoryStore

	RubricEnabled    bool
	BatchConcurrency int
}

// Capabilities lists what the engine can do with these dependencies.
func (d Deps) Capabilities() []string {
	caps := []string{"deterministic_checks", "smoke_tests", "security_checks", "evaluate_batch"}
	if d.RubricEnabled {
		caps = append(caps, "rubric_judge")
	}
	if d.Cache != nil {
		caps = append(caps, "judge_cache")
	}
	if d.History != nil {
		caps = append(caps, "history")
	}
	return caps
}

// RegisterBuiltinHandlers registers the built-in JSON-RPC handlers on s.
// A nil Checks falls back to the default check evaluator.
func RegisterBuiltinHandlers(s *Server, deps Deps) {
	if deps.Checks == nil {
		deps.Checks = check.NewEvaluator(check.WithLogger(s.logger))
	}
	s.RegisterHandler("initialize", handleInitialize(deps.Capabilities()))
	s.RegisterHandler("shutdown", handleShutdown)
	s.RegisterHandler("evaluate", handleEvaluate(deps))
	s.RegisterHandler("evaluate_batch", handleEvaluateBatch(s, deps))
	s.RegisterHandler("evaluate_checks", handleEvaluateChecks(deps))
	s.RegisterHandler("cache_stats", handleCacheStats(s.logger, deps))
	if deps.History != nil {
		s.RegisterHandler("query_history", handleQueryHistory(deps.History))
	}
}

func requireInitialized(session *Session, method string) *types.RPCError {
	if session.State() == StateInitialized {
		return nil
	}
	return types.NewRPCError(
		types.ErrSessionError,
		method+" called before initialize",
		types.ErrTypeSessionError,
		false,
		"call initialize first to establish a session",
	)
}

func handleInitialize(caps []string) Handler {
	return func(_ context.Context, session *Session, params json.RawMessage) (any, *types.RPCError) {
		if session.State() != StateUninitialized {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				"initialize called on already-initialized session",
				types.ErrTypeSessionError,
				false,
				"initialize may only be called once per session",
			)
		}

		var p types.InitializeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				"invalid initialize params",
				types.ErrTypeSessionError,
				false,
				err.Error(),
			)
		}

		if p.ProtocolVersion != protocolVersion {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				fmt.Sprintf("protocol version %d not supported; engine supports version %d", p.ProtocolVersion, protocolVersion),
				types.ErrTypeSessionError,
				false,
				"Upgrade the engine binary or downgrade the client protocol_version",
			)
		}

		supported := make(map[string]bool, len(caps))
		for _, c := range caps {
			supported[c] = true
		}
		missing := []string{}
		for _, req := range p.RequiredCapabilities {
			if !supported[req] {
				missing = append(missing, req)
			}
		}

		session.SetState(StateInitialized)

		return &types.InitializeResult{
			EngineVersion:         engineVersion,
			ProtocolVersion:       protocolVersion,
			Capabilities:          caps,
			Missing:               missing,
			Compatible:            len(missing) == 0,
			MaxConcurrentRequests: 64,
			MaxTraceSizeBytes:     trace.MaxTraceSize,
			CheckCatalogVersion:   security.CatalogVersion,
		}, nil
	}
}

func handleShutdown(_ context.Context, session *Session, _ json.RawMessage) (any, *types.RPCError) {
	if session.State() != StateInitialized {
		return nil, types.NewRPCError(
			types.ErrSessionError,
			"shutdown called on uninitialized or already-shutting-down session",
			types.ErrTypeSessionError,
			false,
			"call initialize before shutdown",
		)
	}

	session.SetState(StateShuttingDown)

	session.mu.Lock()
	session.sessionsCompleted++
	completed := session.sessionsCompleted
	evaluated := session.evaluationsCompleted
	session.mu.Unlock()

	return &types.ShutdownResult{
		SessionsCompleted:    int(completed),
		EvaluationsCompleted: int(evaluated),
	}, nil
}

func handleEvaluate(deps Deps) Handler {
	return func(ctx context.Context, session *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session, "evaluate"); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.EvaluateParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("evaluate", err)
		}

		res, rpcErr := evaluateOne(ctx, deps, &p)
		if rpcErr != nil {
			return nil, rpcErr
		}
		session.IncrementEvaluations(1)
		return res, nil
	}
}

// evaluateOne validates one item and runs both phases on it.
func evaluateOne(ctx context.Context, deps Deps, p *types.EvaluateParams) (*types.FinalResult, *types.RPCError) {
	if len(p.TestCase) == 0 {
		return nil, types.NewRPCError(
			types.ErrInvalidTestCase,
			"test_case is required",
			types.ErrTypeInvalidTestCase,
			false,
			"send the test case object under params.test_case",
		)
	}
	tc, rpcErr := testcase.ParseJSON(p.TestCase)
	if rpcErr != nil {
		return nil, rpcErr
	}

	trace.Normalize(&p.Trace)
	if rpcErr := trace.Validate(&p.Trace); rpcErr != nil {
		return nil, rpcErr
	}
	if p.Trace.SkillName == "" {
		p.Trace.SkillName = p.SkillName
	}

	return deps.Orchestrator.Evaluate(ctx, tc, &p.Trace, p.Cwd), nil
}

// handleEvaluateBatch evaluates items concurrently and emits one
// evaluate/progress notification per finished item. Any invalid item fails
// the whole call before evaluation starts.
func handleEvaluateBatch(s *Server, deps Deps) Handler {
	return func(ctx context.Context, session *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session, "evaluate_batch"); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.EvaluateBatchParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("evaluate_batch", err)
		}
		if len(p.Items) > MaxBatchItems {
			return nil, types.NewRPCError(
				types.ErrInvalidTestCase,
				fmt.Sprintf("batch has %d items, limit is %d", len(p.Items), MaxBatchItems),
				types.ErrTypeInvalidTestCase,
				false,
				"split the batch into smaller requests",
			)
		}

		tests := make([]*types.TestCase, len(p.Items))
		for i := range p.Items {
			item := &p.Items[i]
			tc, rpcErr := testcase.ParseJSON(item.TestCase)
			if rpcErr != nil {
				rpcErr.Message = fmt.Sprintf("items[%d]: %s", i, rpcErr.Message)
				return nil, rpcErr
			}
			trace.Normalize(&item.Trace)
			if rpcErr := trace.Validate(&item.Trace); rpcErr != nil {
				rpcErr.Message = fmt.Sprintf("items[%d]: %s", i, rpcErr.Message)
				return nil, rpcErr
			}
			if item.Trace.SkillName == "" {
				item.Trace.SkillName = item.SkillName
			}
			tests[i] = tc
		}

		limit := deps.BatchConcurrency
		if limit < 1 {
			limit = defaultBatchConcurrency
		}

		start := time.Now()
		results := make([]types.FinalResult, len(p.Items))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for i := range p.Items {
			g.Go(func() error {
				item := &p.Items[i]
				res := deps.Orchestrator.Evaluate(gctx, tests[i], &item.Trace, item.Cwd)
				results[i] = *res
				s.writeNotification(progressNotification(i, len(p.Items), res))
				return nil
			})
		}
		_ = g.Wait()

		session.IncrementEvaluations(len(results))
		return &types.EvaluateBatchResult{
			Results:         results,
			TotalDurationMS: time.Since(start).Milliseconds(),
		}, nil
	}
}

type progressParams struct {
	Index    int     `json:"index"`
	Total    int     `json:"total"`
	TestName string  `json:"test_name"`
	Passed   bool    `json:"passed"`
	Score    float64 `json:"score"`
}

type notification struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  progressParams `json:"params"`
}

func progressNotification(i, total int, res *types.FinalResult) notification {
	return notification{
		JSONRPC: "2.0",
		Method:  "evaluate/progress",
		Params: progressParams{
			Index:    i,
			Total:    total,
			TestName: res.TestName,
			Passed:   res.Passed,
			Score:    res.Score,
		},
	}
}

func handleEvaluateChecks(deps Deps) Handler {
	return func(ctx context.Context, session *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session, "evaluate_checks"); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.EvaluateChecksParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("evaluate_checks", err)
		}
		if p.Expected != nil {
			if err := testcase.Validate(&types.TestCase{Name: "evaluate_checks", Expected: p.Expected}); err != nil {
				return nil, types.NewRPCError(
					types.ErrInvalidTestCase,
					"invalid expected block",
					types.ErrTypeInvalidTestCase,
					false,
					err.Error(),
				)
			}
		}

		trace.Normalize(&p.Trace)
		if rpcErr := trace.Validate(&p.Trace); rpcErr != nil {
			return nil, rpcErr
		}

		eval := deps.Checks.Evaluate(ctx, p.Expected, &p.Trace, p.Cwd)
		session.IncrementEvaluations(1)
		return eval, nil
	}
}

type cacheStatsResponse struct {
	Cache  types.CacheStatsResult     `json:"cache"`
	Engine orchestrator.StatsSnapshot `json:"engine"`
}

func handleCacheStats(logger *slog.Logger, deps Deps) Handler {
	return func(_ context.Context, session *Session, _ json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session, "cache_stats"); rpcErr != nil {
			return nil, rpcErr
		}

		out := &cacheStatsResponse{Engine: deps.Orchestrator.Stats().Snapshot()}
		if deps.Cache != nil {
			st := deps.Cache.Stats()
			out.Cache = types.CacheStatsResult{
				Enabled: true,
				Hits:    st.Hits,
				Misses:  st.Misses,
				Entries: st.Entries,
			}
			n, err := deps.Cache.Persisted()
			if err != nil {
				logger.Warn("judge cache count failed", "err", err)
			}
			out.Cache.Persisted = n
		}
		return out, nil
	}
}

type queryHistoryParams struct {
	TestName   string `json:"test_name"`
	WindowSize int    `json:"window_size"`
}

type queryHistoryResult struct {
	TestName string               `json:"test_name"`
	Entries  []cache.HistoryEntry `json:"entries"`
	Mean     float64              `json:"mean"`
	StdDev   float64              `json:"stddev"`
	Runs     int                  `json:"runs"`
}

func handleQueryHistory(history *cache.HistoryStore) Handler {
	return func(_ context.Context, session *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session, "query_history"); rpcErr != nil {
			return nil, rpcErr
		}

		var p queryHistoryParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("query_history", err)
		}
		if p.TestName == "" {
			return nil, types.NewRPCError(
				types.ErrInvalidTestCase,
				"test_name is required",
				types.ErrTypeInvalidTestCase,
				false,
				"name the test whose history should be returned",
			)
		}
		if p.WindowSize <= 0 {
			p.WindowSize = defaultHistoryWindow
		}

		entries, err := history.Recent(p.TestName, p.WindowSize)
		if err != nil {
			return nil, engineError("query history", err)
		}
		mean, stddev, runs, err := history.Stats(p.TestName)
		if err != nil {
			return nil, engineError("history stats", err)
		}
		if entries == nil {
			entries = []cache.HistoryEntry{}
		}
		return &queryHistoryResult{
			TestName: p.TestName,
			Entries:  entries,
			Mean:     mean,
			StdDev:   stddev,
			Runs:     runs,
		}, nil
	}
}

func invalidParams(method string, err error) *types.RPCError {
	return types.NewRPCError(
		types.ErrInvalidTrace,
		fmt.Sprintf("invalid %s params: %v", method, err),
		types.ErrTypeInvalidTrace,
		false,
		"Check the request format matches the protocol.",
	)
}

func engineError(what string, err error) *types.RPCError {
	return types.NewRPCError(
		types.ErrEngineError,
		what+" failed",
		types.ErrTypeEngineError,
		true,
		err.Error(),
	)
}
