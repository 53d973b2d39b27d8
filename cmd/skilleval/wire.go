package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/skilleval/engine/internal/cache"
	"github.com/skilleval/engine/internal/check"
	"github.com/skilleval/engine/internal/config"
	"github.com/skilleval/engine/internal/llm"
	"github.com/skilleval/engine/internal/orchestrator"
	"github.com/skilleval/engine/internal/rubric"
	"github.com/skilleval/engine/internal/server"
	"github.com/skilleval/engine/internal/smoke"
)

// engine holds the components built from one Config.
type engine struct {
	cfg     config.Config
	logger  *slog.Logger
	orch    *orchestrator.Orchestrator
	checks  *check.Evaluator
	cache   *cache.JudgeCache
	history *cache.HistoryStore

	historyDB *sql.DB
	docker    *smoke.DockerRunner
}

func buildEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *engine, err error) {
	e := &engine{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	checkOpts := []check.Option{
		check.WithLogger(logger),
		check.WithBuildTimeout(cfg.Build.Timeout),
	}
	if cfg.Build.Image != "" {
		e.docker, err = smoke.NewDockerRunner(ctx, cfg.Build.Image, logger)
		if err != nil {
			return nil, err
		}
		checkOpts = append(checkOpts, check.WithCommandRunner(e.docker))
		logger.Info("build commands run in docker", "image", cfg.Build.Image)
	}
	e.checks = check.NewEvaluator(checkOpts...)

	e.cache, err = cache.Open(cache.Backend(cfg.Cache.Backend), cfg.Cache.Path,
		cache.WithTTL(cfg.Cache.TTL), cache.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	var judge orchestrator.RubricEvaluator
	if !cfg.SkipRubric {
		provider, err := buildProvider(cfg.Judge, logger)
		if err != nil {
			return nil, err
		}
		judge = rubric.New(provider,
			rubric.WithCache(e.cache),
			rubric.WithModel(cfg.Judge.Model),
			rubric.WithTimeout(cfg.Judge.Timeout),
			rubric.WithLogger(logger),
		)
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithWeights(cfg.Weights),
		orchestrator.WithSkipRubric(cfg.SkipRubric),
		orchestrator.WithLogger(logger),
	}
	if cfg.HistoryDB != "" {
		e.historyDB, e.history, err = openHistory(cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		orchOpts = append(orchOpts, orchestrator.WithHistory(e.history))
	}
	e.orch = orchestrator.New(e.checks, judge, orchOpts...)
	return e, nil
}

// buildProvider returns the judge provider. A missing OpenAI key yields a
// nil provider, which the rubric evaluator reports as a judge fault.
func buildProvider(cfg config.JudgeConfig, logger *slog.Logger) (llm.Provider, error) {
	p, err := baseProvider(cfg, logger)
	if err != nil || p == nil || !cfg.Faults.Enabled() {
		return p, err
	}
	logger.Warn("judge fault injection enabled",
		"error_rate", cfg.Faults.ErrorRate,
		"jitter", cfg.Faults.Jitter,
		"truncate_replies", cfg.Faults.TruncateReplies,
		"hang_for", cfg.Faults.HangFor)
	return llm.NewFaultInjector(p, cfg.Faults), nil
}

func baseProvider(cfg config.JudgeConfig, logger *slog.Logger) (llm.Provider, error) {
	switch cfg.Provider {
	case "mock":
		return llm.NewMockProvider(nil, nil), nil
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			logger.Warn("no judge API key configured; rubric evaluations will fail", "hint", "set SKILLEVAL_JUDGE_API_KEY or skip_rubric")
			return nil, nil
		}
		p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		rl := llm.DefaultRateLimiterConfig
		rl.RequestsPerMinute = cfg.RequestsPerMinute
		rl.Burst = cfg.Burst
		rl.MaxRetries = cfg.MaxRetries
		limited, err := llm.NewRateLimitedProvider(p, rl)
		if err != nil {
			return nil, err
		}
		return limited, nil
	default:
		return nil, fmt.Errorf("unknown judge provider %q", cfg.Provider)
	}
}

func openHistory(path string) (*sql.DB, *cache.HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	h, err := cache.NewHistoryStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, h, nil
}

func (e *engine) deps() server.Deps {
	return server.Deps{
		Orchestrator:  e.orch,
		Checks:        e.checks,
		Cache:         e.cache,
		History:       e.history,
		RubricEnabled: !e.cfg.SkipRubric,
	}
}

func (e *engine) Close() error {
	var errs []error
	if e.cache != nil {
		errs = append(errs, e.cache.Close())
	}
	if e.historyDB != nil {
		errs = append(errs, e.historyDB.Close())
	}
	if e.docker != nil {
		errs = append(errs, e.docker.Close())
	}
	return errors.Join(errs...)
}
