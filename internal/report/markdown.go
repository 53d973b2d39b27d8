package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/skilleval/engine/pkg/types"
)

// maxNoteLen bounds the notes column of the results table.
const maxNoteLen = 100

// MarkdownReport holds data for a Markdown PR comment report.
type MarkdownReport struct {
	Title      string
	RunAt      time.Time
	Results    []types.FinalResult
	DurationMS int64
}

// GenerateMarkdown writes a Markdown-formatted report to w.
func GenerateMarkdown(w io.Writer, r *MarkdownReport) error {
	title := r.Title
	if title == "" {
		title = "Skill Evaluation Report"
	}

	if _, err := fmt.Fprintf(w, "## %s\n\n", title); err != nil {
		return err
	}

	if !r.RunAt.IsZero() {
		if _, err := fmt.Fprintf(w, "**Run at:** %s\n\n", r.RunAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	s := Summarize(r.Results)
	if _, err := fmt.Fprintf(w, "**Results:** %d total, %d passed, %d failed (mean score %.2f)\n\n",
		s.Total, s.Passed, s.Failed, s.MeanScore); err != nil {
		return err
	}

	if r.DurationMS > 0 {
		if _, err := fmt.Fprintf(w, "**Duration:** %dms\n\n", r.DurationMS); err != nil {
			return err
		}
	}

	if len(r.Results) == 0 {
		_, err := fmt.Fprintln(w, "_No tests evaluated._")
		return err
	}

	if _, err := fmt.Fprintln(w, "| Test | Category | Status | Score | Checks | Rubric | Notes |"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "|------|----------|--------|-------|--------|--------|-------|"); err != nil {
		return err
	}

	for _, res := range r.Results {
		if _, err := fmt.Fprintf(w, "| `%s` | %s | %s | %.2f | %s | %s | %s |\n",
			res.TestName, orDash(res.Category), statusIcon(res.Passed), res.Score,
			checksCell(res.Deterministic), rubricCell(res.Rubric), escape(note(res))); err != nil {
			return err
		}
	}

	return writeFailures(w, r.Results)
}

// writeFailures lists every failing check under its test.
func writeFailures(w io.Writer, results []types.FinalResult) error {
	header := false
	for _, res := range results {
		if res.Deterministic == nil {
			continue
		}
		failed := res.Deterministic.Failed()
		if len(failed) == 0 {
			continue
		}
		if !header {
			if _, err := fmt.Fprint(w, "\n### Failed checks\n"); err != nil {
				return err
			}
			header = true
		}
		if _, err := fmt.Fprintf(w, "\n**%s**\n\n", res.TestName); err != nil {
			return err
		}
		for _, c := range failed {
			if _, err := fmt.Fprintf(w, "- `%s`: %s\n", c.Name, c.Message); err != nil {
				return err
			}
		}
	}
	return nil
}

func statusIcon(passed bool) string {
	if passed {
		return ":white_check_mark: pass"
	}
	return ":x: fail"
}

func checksCell(e *types.Evaluation) string {
	if e == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d", e.PassedCount, e.TotalCount)
}

func rubricCell(r *types.RubricEvaluation) string {
	if r == nil {
		return "skipped"
	}
	s := fmt.Sprintf("%.1f/%.0f", r.Score, r.MinScore)
	if r.Cached {
		s += " (cached)"
	}
	return s
}

// note picks the most useful one-line explanation for a result.
func note(res types.FinalResult) string {
	switch {
	case res.Error != "":
		return res.Error
	case res.Deterministic != nil && len(res.Deterministic.Failed()) > 0:
		return res.Deterministic.Failed()[0].Message
	case res.Rubric != nil:
		return res.Rubric.Rationale
	}
	return ""
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > maxNoteLen {
		s = string(r[:maxNoteLen-3]) + "..."
	}
	return strings.ReplaceAll(s, "|", "\\|")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
