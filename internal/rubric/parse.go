package rubric

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
)

// ScoreResult is a parsed judge reply.
type ScoreResult struct {
	Score     float64
	Rationale string
}

// ParseScoreResult extracts the JSON object between the first '{' and the
// last '}' of content. A missing or non-numeric score is 0; scores are
// clamped to [0, 100].
func ParseScoreResult(content string) (ScoreResult, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ScoreResult{}, errors.New("no JSON object in judge response")
	}

	var reply map[string]any
	if err := json.Unmarshal([]byte(content[start:end+1]), &reply); err != nil {
		return ScoreResult{}, fmt.Errorf("decode judge response: %w", err)
	}

	res := ScoreResult{Score: clamp(coerceScore(reply["score"]))}
	res.Rationale = stringField(reply, "reasoning")
	if res.Rationale == "" {
		res.Rationale = stringField(reply, "rationale")
	}
	if s := stringList(reply["strengths"]); s != "" {
		res.Rationale = appendSection(res.Rationale, "Strengths: "+s)
	}
	if w := stringList(reply["weaknesses"]); w != "" {
		res.Rationale = appendSection(res.Rationale, "Weaknesses: "+w)
	}
	return res, nil
}

func coerceScore(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func clamp(f float64) float64 {
	switch {
	case f != f: // NaN
		return 0
	case f < 0:
		return 0
	case f > 100:
		return 100
	}
	return f
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func stringList(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, "; ")
}

func appendSection(base, section string) string {
	if base == "" {
		return section
	}
	return base + "\n" + section
}
