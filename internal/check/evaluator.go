package check

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/skilleval/engine/internal/metrics"
	"github.com/skilleval/engine/internal/smoke"
	"github.com/skilleval/engine/pkg/types"
)

// DefaultBuildTimeout bounds each build_must_pass command.
const DefaultBuildTimeout = 300 * time.Second

// gitTimeout bounds the git status call of the git_clean check.
const gitTimeout = 30 * time.Second

// SmokeRunner runs one smoke test to completion, including cleanup.
type SmokeRunner interface {
	Run(ctx context.Context, st types.SmokeTest, dir string) smoke.Outcome
}

// Env is the read-only input shared by every check in one evaluation.
// Checks must not modify the spec or trace.
type Env struct {
	Spec  *types.CheckSpec
	Trace *types.Trace
	// Cwd is the sandbox root: file checks resolve relative paths against
	// it and build/smoke commands run in it.
	Cwd string

	build        smoke.CommandRunner
	local        smoke.CommandRunner
	smoke        SmokeRunner
	buildTimeout time.Duration
}

// Descriptor binds one CheckSpec field to the check it enables.
type Descriptor struct {
	// Name is the check name reported in results and metrics.
	Name string
	// Enabled reports whether the spec populates this check's field.
	Enabled func(*types.CheckSpec) bool
	// Run evaluates the check. It returns one result, or one per entry
	// for list-valued checks such as build_must_pass.
	Run func(ctx context.Context, env *Env) []types.CheckResult
}

// Evaluator runs the deterministic checks of a CheckSpec against a trace.
// It is safe for concurrent use.
type Evaluator struct {
	descriptors  []Descriptor
	build        smoke.CommandRunner
	local        smoke.CommandRunner
	smoke        SmokeRunner
	buildTimeout time.Duration
	logger       *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCommandRunner sets the runner used for build_must_pass commands,
// e.g. a smoke.DockerRunner for containerised builds.
func WithCommandRunner(r smoke.CommandRunner) Option {
	return func(e *Evaluator) { e.build = r }
}

// WithBuildTimeout changes the default build timeout. A spec's
// build_timeout still takes precedence.
func WithBuildTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.buildTimeout = d
		}
	}
}

// WithSmokeRunner sets the smoke-test runner.
func WithSmokeRunner(r SmokeRunner) Option {
	return func(e *Evaluator) { e.smoke = r }
}

// WithDescriptors replaces the check table. Intended for tests and for
// callers that extend the catalog.
func WithDescriptors(d []Descriptor) Option {
	return func(e *Evaluator) { e.descriptors = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator creates an evaluator with the built-in check table.
func NewEvaluator(opts ...Option) *Evaluator {
	local := &smoke.ShellRunner{}
	e := &Evaluator{
		descriptors:  Descriptors(),
		build:        local,
		local:        local,
		buildTimeout: DefaultBuildTimeout,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.smoke == nil {
		e.smoke = smoke.NewRunner(smoke.WithLogger(e.logger))
	}
	return e
}

// Evaluate runs every check whose field is populated in expected and scores
// the results with equal weight. A nil or empty spec is a vacuous pass.
//
// Evaluate never fails: a check that errors or panics is reported as a
// failing CheckResult carrying the fault text.
func (e *Evaluator) Evaluate(ctx context.Context, expected *types.CheckSpec, tr *types.Trace, cwd string) *types.Evaluation {
	if expected == nil {
		return types.NewEvaluation(nil)
	}
	if tr == nil {
		tr = &types.Trace{}
	}
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}

	env := &Env{
		Spec:         expected,
		Trace:        tr,
		Cwd:          cwd,
		build:        e.build,
		local:        e.local,
		smoke:        e.smoke,
		buildTimeout: e.buildTimeout,
	}
	if expected.BuildTimeout != nil && *expected.BuildTimeout > 0 {
		env.buildTimeout = time.Duration(*expected.BuildTimeout) * time.Second
	}

	var results []types.CheckResult
	for _, d := range e.descriptors {
		if !d.Enabled(expected) {
			continue
		}
		start := time.Now()
		rs := e.run(ctx, d, env)
		elapsed := time.Since(start).Seconds()
		for _, r := range rs {
			metrics.RecordCheck(d.Name, r.Passed, elapsed)
		}
		results = append(results, rs...)
	}

	eval := types.NewEvaluation(results)
	e.logger.Debug("deterministic evaluation complete",
		"test", tr.TestName, "score", eval.Score, "passed", eval.PassedCount, "total", eval.TotalCount)
	return eval
}

// run executes one descriptor, converting a panic into a failing result.
func (e *Evaluator) run(ctx context.Context, d Descriptor, env *Env) (out []types.CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("check panicked", "check", d.Name, "panic", r, "stack", string(debug.Stack()))
			out = []types.CheckResult{fail(d.Name, "", "", fmt.Sprintf("check error: %v", r))}
		}
	}()
	out = d.Run(ctx, env)
	if len(out) == 0 {
		out = []types.CheckResult{fail(d.Name, "", "", "check produced no result")}
	}
	return out
}

func pass(name, expected, actual, msg string) types.CheckResult {
	return types.CheckResult{Name: name, Passed: true, Expected: expected, Actual: actual, Message: msg}
}

func fail(name, expected, actual, msg string) types.CheckResult {
	return types.CheckResult{Name: name, Passed: false, Expected: expected, Actual: actual, Message: msg}
}

func one(r types.CheckResult) []types.CheckResult {
	return []types.CheckResult{r}
}
