// Package orchestrator drives a test execution through deterministic checks,
// an optional rubric judgement and the final score combination.
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/skilleval/engine/internal/cache"
	"github.com/skilleval/engine/internal/metrics"
	"github.com/skilleval/engine/pkg/types"
)

// CheckEvaluator runs Phase 1. *check.Evaluator satisfies it.
type CheckEvaluator interface {
	Evaluate(ctx context.Context, expected *types.CheckSpec, tr *types.Trace, cwd string) *types.Evaluation
}

// RubricEvaluator runs Phase 2. *rubric.Evaluator satisfies it.
type RubricEvaluator interface {
	Evaluate(ctx context.Context, rc types.RubricConfig, tr *types.Trace, skillName string) *types.RubricEvaluation
}

// HistoryRecorder persists final scores. *cache.HistoryStore satisfies it.
type HistoryRecorder interface {
	Record(e cache.HistoryEntry) error
}

// Orchestrator combines both evaluation phases into a FinalResult.
type Orchestrator struct {
	checks     CheckEvaluator
	rubric     RubricEvaluator
	weights    Weights
	skipRubric bool
	stats      *Stats
	history    HistoryRecorder
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithWeights(w Weights) Option {
	return func(o *Orchestrator) { o.weights = w }
}

// WithSkipRubric disables Phase 2 for every test.
func WithSkipRubric(skip bool) Option {
	return func(o *Orchestrator) { o.skipRubric = skip }
}

func WithStats(s *Stats) Option {
	return func(o *Orchestrator) { o.stats = s }
}

// WithHistory records every final result in h. Write failures are logged.
func WithHistory(h HistoryRecorder) Option {
	return func(o *Orchestrator) { o.history = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New returns an Orchestrator. A nil rubric evaluator behaves like
// WithSkipRubric(true).
func New(checks CheckEvaluator, rubric RubricEvaluator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		checks:  checks,
		rubric:  rubric,
		weights: DefaultWeights,
		stats:   NewStats(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stats returns the orchestrator's counters.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// judgedTrace names the trace after the test case so judge cache entries are
// scoped per test even when the adapter left test_name empty.
func judgedTrace(test *types.TestCase, tr *types.Trace) *types.Trace {
	if test.Name == "" || tr.TestName == test.Name {
		return tr
	}
	cp := *tr
	cp.TestName = test.Name
	return &cp
}

// Evaluate scores one execution of test. It always returns a result.
func (o *Orchestrator) Evaluate(ctx context.Context, test *types.TestCase, tr *types.Trace, cwd string) *types.FinalResult {
	if test == nil {
		test = &types.TestCase{}
	}
	if tr == nil {
		tr = &types.Trace{}
	}

	det := o.checks.Evaluate(ctx, test.Expected, tr, cwd)

	var rub *types.RubricEvaluation
	ran := o.rubric != nil && ShouldRunRubric(test, det, o.skipRubric)
	if ran {
		rub = o.rubric.Evaluate(ctx, *test.Rubric, judgedTrace(test, tr), tr.SkillName)
	}

	score, passed := Combine(test, det, rub, o.weights)
	res := &types.FinalResult{
		TestName:      test.Name,
		Category:      test.Category,
		Passed:        passed,
		Score:         score,
		Deterministic: det,
		Rubric:        rub,
		LatencyMS:     tr.Duration().Milliseconds(),
		InputTokens:   tr.InputTokens,
		OutputTokens:  tr.OutputTokens,
		TotalTokens:   tr.TotalTokens(),
		Error:         tr.FirstError(),
	}
	if res.TestName == "" {
		res.TestName = tr.TestName
	}

	o.logger.Debug("evaluation complete",
		"test", res.TestName,
		"category", res.Category,
		"passed", res.Passed,
		"score", res.Score,
		"deterministic", det.Score,
		"rubric_ran", ran,
	)

	o.stats.Record(res)
	metrics.RecordEvaluation(categoryLabel(res.Category), res.Passed, ran, res.Score)
	if o.history != nil {
		err := o.history.Record(cache.HistoryEntry{
			TestName:  res.TestName,
			Category:  res.Category,
			SessionID: tr.SessionID,
			Score:     res.Score,
			Passed:    res.Passed,
			RubricRan: ran,
		})
		if err != nil {
			o.logger.Error("history write error", "test", res.TestName, "err", err)
		}
	}
	return res
}

func categoryLabel(c string) string {
	if c == "" {
		return "uncategorized"
	}
	return c
}
