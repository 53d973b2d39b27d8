package orchestrator

import (
	"sync"

	"github.com/skilleval/engine/pkg/types"
)

// Stats accumulates counters across evaluations. It is safe for concurrent use.
type Stats struct {
	mu            sync.Mutex
	runs          int
	passed        int
	rubricRuns    int
	rubricCached  int
	rubricSkipped int
	totalTokens   int
	scoreSum      float64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Runs          int     `json:"runs"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	RubricRuns    int     `json:"rubric_runs"`
	RubricCached  int     `json:"rubric_cached"`
	RubricSkipped int     `json:"rubric_skipped"`
	TotalTokens   int     `json:"total_tokens"`
	MeanScore     float64 `json:"mean_score"`
}

func NewStats() *Stats {
	return &Stats{}
}

// Record accounts for one final result.
func (s *Stats) Record(r *types.FinalResult) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs++
	if r.Passed {
		s.passed++
	}
	switch {
	case r.Rubric == nil:
		s.rubricSkipped++
	case r.Rubric.Cached:
		s.rubricRuns++
		s.rubricCached++
	default:
		s.rubricRuns++
	}
	s.totalTokens += r.TotalTokens
	s.scoreSum += r.Score
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{
		Runs:          s.runs,
		Passed:        s.passed,
		Failed:        s.runs - s.passed,
		RubricRuns:    s.rubricRuns,
		RubricCached:  s.rubricCached,
		RubricSkipped: s.rubricSkipped,
		TotalTokens:   s.totalTokens,
	}
	if s.runs > 0 {
		snap.MeanScore = round2(s.scoreSum / float64(s.runs))
	}
	return snap
}

// Reset clears all counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs, s.passed = 0, 0
	s.rubricRuns, s.rubricCached, s.rubricSkipped = 0, 0, 0
	s.totalTokens = 0
	s.scoreSum = 0
}
