package report

import (
	"fmt"
	"math"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/skilleval/engine/pkg/types"
)

type JSONReport struct {
	Version       string              `json:"version"`
	Timestamp     string              `json:"timestamp"`
	Skill         string              `json:"skill,omitempty"`
	Results       []types.FinalResult `json:"results"`
	Summary       Summary             `json:"summary"`
	TotalTokens   int                 `json:"total_tokens"`
	TotalDuration int64               `json:"total_duration_ms"`
}

type Summary struct {
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	RubricRuns  int     `json:"rubric_runs"`
	MeanScore   float64 `json:"mean_score"`
	PassRatePct float64 `json:"pass_rate_pct"`
}

// Summarize counts verdicts across results.
func Summarize(results []types.FinalResult) Summary {
	s := Summary{Total: len(results)}
	var sum float64
	for _, r := range results {
		if r.Passed {
			s.Passed++
		}
		if r.Rubric != nil {
			s.RubricRuns++
		}
		sum += r.Score
	}
	s.Failed = s.Total - s.Passed
	if s.Total > 0 {
		s.MeanScore = round2(sum / float64(s.Total))
		s.PassRatePct = round2(float64(s.Passed) / float64(s.Total) * 100)
	}
	return s
}

// GenerateJSONReport generates a structured JSON report from final results.
func GenerateJSONReport(skill string, results []types.FinalResult, totalDurationMS int64) ([]byte, error) {
	if results == nil {
		results = []types.FinalResult{}
	}
	var tokens int
	for _, r := range results {
		tokens += r.TotalTokens
	}

	report := JSONReport{
		Version:       "1.0",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Skill:         skill,
		Results:       results,
		Summary:       Summarize(results),
		TotalTokens:   tokens,
		TotalDuration: totalDurationMS,
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return output, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
