package report_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/skilleval/engine/internal/report"
	"github.com/skilleval/engine/pkg/types"
)

func sampleResults() []types.FinalResult {
	return []types.FinalResult{
		{
			TestName:      "creates-readme",
			Category:      "explicit",
			Passed:        true,
			Score:         92,
			Deterministic: types.NewEvaluation([]types.CheckResult{{Name: "files_created", Passed: true}}),
			Rubric:        &types.RubricEvaluation{Passed: true, Score: 80, MinScore: 70, Rationale: "clear | concise", Cached: true},
			TotalTokens:   150,
		},
		{
			TestName: "no-sudo",
			Category: "negative",
			Passed:   false,
			Score:    50,
			Deterministic: types.NewEvaluation([]types.CheckResult{
				{Name: "no_sudo", Passed: false, Message: "privilege escalation detected: sudo rm"},
				{Name: "tool_calls_not_contain", Passed: true},
			}),
			TotalTokens: 50,
		},
	}
}

func TestSummarize(t *testing.T) {
	s := report.Summarize(sampleResults())
	want := report.Summary{Total: 2, Passed: 1, Failed: 1, RubricRuns: 1, MeanScore: 71, PassRatePct: 50}
	if s != want {
		t.Errorf("Summarize = %+v, want %+v", s, want)
	}
	if empty := report.Summarize(nil); empty != (report.Summary{}) {
		t.Errorf("Summarize(nil) = %+v", empty)
	}
}

func TestGenerateJSONReport(t *testing.T) {
	out, err := report.GenerateJSONReport("readme-writer", sampleResults(), 1234)
	if err != nil {
		t.Fatalf("GenerateJSONReport: %v", err)
	}

	var got report.JSONReport
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if got.Version != "1.0" || got.Skill != "readme-writer" {
		t.Errorf("header = %+v", got)
	}
	if _, err := time.Parse(time.RFC3339, got.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", got.Timestamp, err)
	}
	if len(got.Results) != 2 || got.TotalTokens != 200 || got.TotalDuration != 1234 {
		t.Errorf("results=%d tokens=%d duration=%d", len(got.Results), got.TotalTokens, got.TotalDuration)
	}
	if got.Summary.Failed != 1 {
		t.Errorf("summary = %+v", got.Summary)
	}

	empty, err := report.GenerateJSONReport("", nil, 0)
	if err != nil {
		t.Fatalf("empty report: %v", err)
	}
	if !bytes.Contains(empty, []byte(`"results": []`)) {
		t.Errorf("empty report should carry an empty results list:\n%s", empty)
	}
}

func TestGenerateMarkdown(t *testing.T) {
	var buf bytes.Buffer
	err := report.GenerateMarkdown(&buf, &report.MarkdownReport{
		RunAt:      time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Results:    sampleResults(),
		DurationMS: 900,
	})
	if err != nil {
		t.Fatalf("GenerateMarkdown: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"## Skill Evaluation Report",
		"**Run at:** 2026-03-04T05:06:07Z",
		"2 total, 1 passed, 1 failed (mean score 71.00)",
		"| `creates-readme` | explicit | :white_check_mark: pass | 92.00 | 1/1 | 80.0/70 (cached) | clear \\| concise |",
		"| `no-sudo` | negative | :x: fail | 50.00 | 1/2 | skipped | privilege escalation detected: sudo rm |",
		"### Failed checks",
		"- `no_sudo`: privilege escalation detected: sudo rm",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateMarkdown_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := report.GenerateMarkdown(&buf, &report.MarkdownReport{Title: "Nightly"}); err != nil {
		t.Fatalf("GenerateMarkdown: %v", err)
	}
	if !strings.Contains(buf.String(), "## Nightly") || !strings.Contains(buf.String(), "_No tests evaluated._") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestGenerateMarkdown_TruncatesNotes(t *testing.T) {
	long := strings.Repeat("x", 300)
	var buf bytes.Buffer
	err := report.GenerateMarkdown(&buf, &report.MarkdownReport{Results: []types.FinalResult{{TestName: "t", Error: long}}})
	if err != nil {
		t.Fatalf("GenerateMarkdown: %v", err)
	}
	if strings.Contains(buf.String(), long) || !strings.Contains(buf.String(), strings.Repeat("x", 97)+"...") {
		t.Error("long notes should be truncated to the column width")
	}
}
