package llm

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrInjected marks errors produced by a FaultInjector.
var ErrInjected = errors.New("injected fault")

// FaultConfig selects the judge faults a FaultInjector produces. The zero
// value injects nothing.
type FaultConfig struct {
	// ErrorRate is the probability in [0,1] that a call fails outright.
	ErrorRate float64 `yaml:"error_rate" validate:"gte=0,lte=1"`
	// Jitter adds a random delay in [0, Jitter) before each call.
	Jitter time.Duration `yaml:"jitter" validate:"gte=0"`
	// TruncateReplies cuts every reply at a random point.
	TruncateReplies bool `yaml:"truncate_replies"`
	// HangFor makes every call block this long and then report a deadline.
	HangFor time.Duration `yaml:"hang_for" validate:"gte=0"`
	// Seed fixes the random source. Zero seeds from the clock.
	Seed int64 `yaml:"seed"`
}

// Enabled reports whether c injects any fault.
func (c FaultConfig) Enabled() bool {
	return c.ErrorRate > 0 || c.Jitter > 0 || c.TruncateReplies || c.HangFor > 0
}

// FaultInjector wraps a judge Provider and injects faults, for chaos runs
// that confirm every judge failure degrades to a failed rubric result.
type FaultInjector struct {
	inner Provider
	cfg   FaultConfig

	mu       sync.Mutex
	rng      *rand.Rand
	injected int
}

func NewFaultInjector(inner Provider, cfg FaultConfig) *FaultInjector {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &FaultInjector{
		inner: inner,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)), //nolint:gosec
	}
}

func (f *FaultInjector) Name() string         { return "fault:" + f.inner.Name() }
func (f *FaultInjector) DefaultModel() string { return f.inner.DefaultModel() }

// Injected returns how many calls have been faulted so far.
func (f *FaultInjector) Injected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.injected
}

// faultPlan is everything one call draws from the random source.
type faultPlan struct {
	fail  bool
	delay time.Duration
}

func (f *FaultInjector) plan() faultPlan {
	f.mu.Lock()
	defer f.mu.Unlock()
	var p faultPlan
	if f.cfg.ErrorRate > 0 && f.rng.Float64() < f.cfg.ErrorRate {
		p.fail = true
	}
	if f.cfg.Jitter > 0 {
		p.delay = time.Duration(f.rng.Int63n(int64(f.cfg.Jitter)))
	}
	if p.fail || f.cfg.HangFor > 0 {
		f.injected++
	}
	return p
}

// Complete applies the planned faults, then delegates. Injected delays
// honour ctx.
func (f *FaultInjector) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	p := f.plan()
	if p.fail {
		return nil, ErrInjected
	}
	if f.cfg.HangFor > 0 {
		if err := sleep(ctx, f.cfg.HangFor); err != nil {
			return nil, err
		}
		return nil, context.DeadlineExceeded
	}
	if p.delay > 0 {
		if err := sleep(ctx, p.delay); err != nil {
			return nil, err
		}
	}

	resp, err := f.inner.Complete(ctx, req)
	if err != nil || resp == nil || !f.cfg.TruncateReplies || resp.Content == "" {
		return resp, err
	}
	// The inner provider may hand out shared responses.
	cp := *resp
	cp.Content = f.truncate(resp.Content)
	return &cp, nil
}

// truncate keeps a random strict prefix of s.
func (f *FaultInjector) truncate(s string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injected++
	runes := []rune(s)
	return string(runes[:f.rng.Intn(len(runes))])
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
