package orchestrator

import (
	"fmt"
	"math"

	"github.com/skilleval/engine/pkg/types"
)

// Weights splits the final score between the two phases.
type Weights struct {
	Deterministic float64 `json:"deterministic" yaml:"deterministic"`
	Rubric        float64 `json:"rubric" yaml:"rubric"`
}

// DefaultWeights is the 60/40 deterministic/rubric split.
var DefaultWeights = Weights{Deterministic: 0.6, Rubric: 0.4}

// Validate requires non-negative weights summing to 1.
func (w Weights) Validate() error {
	if w.Deterministic < 0 || w.Rubric < 0 {
		return fmt.Errorf("weights must be non-negative, got %v/%v", w.Deterministic, w.Rubric)
	}
	if math.Abs(w.Deterministic+w.Rubric-1) > 1e-9 {
		return fmt.Errorf("weights must sum to 1, got %v", w.Deterministic+w.Rubric)
	}
	return nil
}

// ShouldRunRubric decides whether Phase 2 runs. It is false when rubric
// grading is disabled, when the test has no rubric, or when Phase 1 failed
// on a non-negative test.
func ShouldRunRubric(test *types.TestCase, det *types.Evaluation, skip bool) bool {
	if skip || test == nil || test.Rubric == nil {
		return false
	}
	if det != nil && !det.Passed && test.Category != types.CategoryNegative {
		return false
	}
	return true
}

// Combine folds the phase results into a final score and verdict. Tests that
// must not trigger the skill take the Phase 1 result verbatim; otherwise a
// rubric verdict, when present, is blended in by w and must also pass.
func Combine(test *types.TestCase, det *types.Evaluation, rub *types.RubricEvaluation, w Weights) (score float64, passed bool) {
	if det == nil {
		det = types.NewEvaluation(nil)
	}
	if test != nil && !test.Triggers() {
		return det.Score, det.Passed
	}
	if rub == nil {
		return det.Score, det.Passed
	}
	score = round2(w.Deterministic*det.Score + w.Rubric*rub.Score)
	return score, det.Passed && rub.Passed
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
