// Package rubric grades a trace against a free-text rubric with an LLM judge.
package rubric

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/skilleval/engine/internal/cache"
	"github.com/skilleval/engine/internal/llm"
	"github.com/skilleval/engine/internal/metrics"
	"github.com/skilleval/engine/pkg/types"
)

const (
	// DefaultTimeout bounds a single judge call.
	DefaultTimeout = 30 * time.Second
	judgeMaxTokens = 1024
)

// Evaluator runs rubric judgements. It is safe for concurrent use as long as
// the provider is.
type Evaluator struct {
	provider llm.Provider
	cache    *cache.JudgeCache
	model    string
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCache consults c before calling the judge and stores fresh verdicts in
// it. The caller owns c's lifecycle.
func WithCache(c *cache.JudgeCache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// WithModel sets the model used when a rubric does not name one.
func WithModel(model string) Option {
	return func(e *Evaluator) { e.model = model }
}

func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// New returns an Evaluator backed by provider. A nil provider is allowed;
// every evaluation then fails with a zero score.
func New(provider llm.Provider, opts ...Option) *Evaluator {
	e := &Evaluator{provider: provider, timeout: DefaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// cachedVerdict is what the judge cache stores. The pass flag is recomputed
// on read because min_score is not part of the key.
type cachedVerdict struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
	Raw       string  `json:"raw"`
	Model     string  `json:"model"`
}

// Evaluate grades trace against rc. It never returns nil and never panics:
// provider, network and parse faults yield a failed evaluation with score 0
// and the fault text as rationale.
func (e *Evaluator) Evaluate(ctx context.Context, rc types.RubricConfig, tr *types.Trace, skillName string) (out *types.RubricEvaluation) {
	minScore := rc.Threshold()
	model := e.resolveModel(rc)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = failed(minScore, model, fmt.Sprintf("judge error: %v", r))
			metrics.RecordRubric(model, "error", time.Since(start).Seconds())
		}
	}()

	if tr == nil {
		tr = &types.Trace{}
	}
	if e.provider == nil {
		metrics.RecordRubric(model, "error", 0)
		return failed(minScore, model, llm.ErrNoProvider.Error())
	}

	testID := tr.TestName
	if testID == "" {
		testID = skillName
	}
	key := cache.Key(tr.FinalOutput, rc.Prompt, testID)

	if e.cache != nil {
		if raw, ok := e.cache.Get(key); ok {
			var v cachedVerdict
			if err := json.Unmarshal(raw, &v); err == nil {
				metrics.RecordRubric(v.Model, "cached", 0)
				res := verdict(v.Score, v.Rationale, minScore, v.Raw, v.Model)
				res.Cached = true
				return res
			}
			e.logger.Warn("discarding undecodable judge cache entry", "key", key)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := &llm.CompletionRequest{
		Model:        model,
		SystemPrompt: SystemPrompt(rc.Prompt),
		Messages:     []llm.Message{{Role: "user", Content: UserPrompt(tr, skillName)}},
		Temperature:  0.0,
		MaxTokens:    judgeMaxTokens,
	}
	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		metrics.RecordRubric(model, "error", time.Since(start).Seconds())
		return failed(minScore, model, fmt.Sprintf("LLM call failed: %v", err))
	}
	if resp == nil {
		metrics.RecordRubric(model, "error", time.Since(start).Seconds())
		return failed(minScore, model, "LLM call returned no response")
	}

	sr, err := ParseScoreResult(resp.Content)
	if err != nil {
		metrics.RecordRubric(model, "error", time.Since(start).Seconds())
		res := failed(minScore, model, fmt.Sprintf("parse judge response: %v", err))
		res.Raw = resp.Content
		return res
	}

	res := verdict(sr.Score, sr.Rationale, minScore, resp.Content, model)
	metrics.RecordRubric(model, outcome(res.Passed), time.Since(start).Seconds())

	if e.cache != nil {
		data, mErr := json.Marshal(cachedVerdict{Score: sr.Score, Rationale: sr.Rationale, Raw: resp.Content, Model: model})
		if mErr == nil {
			if putErr := e.cache.Put(key, data); putErr != nil {
				e.logger.Error("judge cache write error", "err", putErr)
			}
		}
	}
	return res
}

func (e *Evaluator) resolveModel(rc types.RubricConfig) string {
	switch {
	case rc.Model != "":
		return rc.Model
	case e.model != "":
		return e.model
	case e.provider != nil:
		return e.provider.DefaultModel()
	}
	return ""
}

func verdict(score float64, rationale string, minScore float64, raw, model string) *types.RubricEvaluation {
	return &types.RubricEvaluation{
		Passed:    score >= minScore,
		Score:     score,
		Rationale: rationale,
		MinScore:  minScore,
		Raw:       raw,
		Model:     model,
	}
}

func failed(minScore float64, model, reason string) *types.RubricEvaluation {
	return &types.RubricEvaluation{Passed: false, Score: 0, Rationale: reason, MinScore: minScore, Model: model}
}

func outcome(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}
