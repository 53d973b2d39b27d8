package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig bounds judge traffic and controls retries.
type RateLimiterConfig struct {
	RequestsPerMinute int
	Burst             int
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRateLimiterConfig is a conservative default for hosted judges.
var DefaultRateLimiterConfig = RateLimiterConfig{
	RequestsPerMinute: 60,
	Burst:             5,
	MaxRetries:        3,
	InitialBackoff:    500 * time.Millisecond,
	MaxBackoff:        10 * time.Second,
}

// RateLimitedProvider wraps a Provider with a token-bucket limiter and
// exponential backoff on retryable errors. It is safe for concurrent use.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	cfg     RateLimiterConfig
}

// NewRateLimitedProvider validates cfg and wraps inner.
func NewRateLimitedProvider(inner Provider, cfg RateLimiterConfig) (*RateLimitedProvider, error) {
	if inner == nil {
		return nil, ErrNoProvider
	}
	if cfg.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("requests per minute must be positive, got %d", cfg.RequestsPerMinute)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative, got %d", cfg.MaxRetries)
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultRateLimiterConfig.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(perSecond, cfg.Burst),
		cfg:     cfg,
	}, nil
}

func (r *RateLimitedProvider) Name() string         { return r.inner.Name() }
func (r *RateLimitedProvider) DefaultModel() string { return r.inner.DefaultModel() }

// Complete waits for a token before every attempt, so retries are rate
// limited too.
func (r *RateLimitedProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	backoff := r.cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("waiting to retry: %w", errors.Join(ctx.Err(), lastErr))
			}
			backoff = min(backoff*2, r.cfg.MaxBackoff)
		}
		if err := r.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("rate limiter: %w", errors.Join(err, lastErr))
			}
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
