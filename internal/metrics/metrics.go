// Package metrics exposes Prometheus collectors for the evaluation engine.
//
// Collectors are registered on the default registry at init, so the serve
// command only has to mount promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "skilleval"

var (
	// checksTotal counts deterministic checks by name and outcome.
	// Labels: check, result (pass, fail)
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "check",
		Name:      "results_total",
		Help:      "Deterministic check results by check name and outcome",
	}, []string{"check", "result"})

	checkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "check",
		Name:      "duration_seconds",
		Help:      "Time spent running one deterministic check",
		Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120, 300},
	}, []string{"check"})

	// rubricTotal counts judge evaluations.
	// Labels: model, result (pass, fail, error, cached)
	rubricTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rubric",
		Name:      "evaluations_total",
		Help:      "Rubric evaluations by model and outcome",
	}, []string{"model", "result"})

	rubricLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rubric",
		Name:      "latency_seconds",
		Help:      "Judge call latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"model"})

	// cacheLookups counts judge cache lookups.
	// Labels: tier (memory, store), result (hit, miss, expired)
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "judge_cache",
		Name:      "lookups_total",
		Help:      "Judge cache lookups by tier and result",
	}, []string{"tier", "result"})

	// evaluationsTotal counts orchestrated evaluations.
	// Labels: category, result (pass, fail), rubric (ran, skipped)
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "evaluations_total",
		Help:      "Final evaluations by category, verdict and whether the rubric ran",
	}, []string{"category", "result", "rubric"})

	finalScore = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "final_score",
		Help:      "Distribution of combined final scores",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	}, []string{"category"})
)

// RecordCheck records one deterministic check outcome.
func RecordCheck(name string, passed bool, durationSec float64) {
	checksTotal.WithLabelValues(name, outcome(passed)).Inc()
	checkDuration.WithLabelValues(name).Observe(durationSec)
}

// RecordRubric records one judge evaluation.
//
// Inputs:
//
//	model - The resolved judge model.
//	result - "pass", "fail", "error" or "cached".
//	durationSec - Wall time of the call; ignored for cached results.
func RecordRubric(model, result string, durationSec float64) {
	rubricTotal.WithLabelValues(model, result).Inc()
	if result != "cached" {
		rubricLatency.WithLabelValues(model).Observe(durationSec)
	}
}

// RecordCacheLookup records a judge cache lookup.
func RecordCacheLookup(tier, result string) {
	cacheLookups.WithLabelValues(tier, result).Inc()
}

// RecordEvaluation records one orchestrated evaluation.
func RecordEvaluation(category string, passed, rubricRan bool, score float64) {
	ran := "skipped"
	if rubricRan {
		ran = "ran"
	}
	evaluationsTotal.WithLabelValues(category, outcome(passed), ran).Inc()
	finalScore.WithLabelValues(category).Observe(score)
}

func outcome(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}
