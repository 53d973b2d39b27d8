package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/skilleval/engine/internal/report"
	"github.com/skilleval/engine/internal/testcase"
	"github.com/skilleval/engine/internal/trace"
	"github.com/skilleval/engine/pkg/types"
)

type reportFlags struct {
	format string
	output string
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", "json", "report format: json or markdown")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write the report to a file instead of stdout")
}

func newEvaluateCmd() *cobra.Command {
	var (
		testsFile string
		traceFile string
		testName  string
		cwd       string
		rf        reportFlags
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one recorded trace against a test case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			suite, err := testcase.LoadFile(testsFile)
			if err != nil {
				return err
			}
			tr, err := trace.LoadFile(traceFile)
			if err != nil {
				return err
			}
			if testName == "" {
				testName = tr.TestName
			}
			tc, err := pickTest(suite, testName)
			if err != nil {
				return err
			}

			eng, err := buildEngine(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			start := time.Now()
			res := eng.orch.Evaluate(cmd.Context(), tc, tr, workDir(cwd))
			results := []types.FinalResult{*res}
			if err := rf.write(cmd.OutOrStdout(), skillName(suite, tr), results, time.Since(start)); err != nil {
				return err
			}
			return failures(results)
		},
	}
	cmd.Flags().StringVarP(&testsFile, "tests", "t", "", "test case file (YAML or JSON)")
	cmd.Flags().StringVar(&traceFile, "trace", "", "trace file (YAML or JSON)")
	cmd.Flags().StringVar(&testName, "test", "", "test to run when the file holds several (default: the trace's test_name)")
	cmd.Flags().StringVar(&cwd, "cwd", "", "sandbox root the agent worked in (default: current directory)")
	_ = cmd.MarkFlagRequired("tests")
	_ = cmd.MarkFlagRequired("trace")
	rf.register(cmd)
	return cmd
}

// pickTest selects the named test, or the only test of a one-test suite.
func pickTest(suite *testcase.Suite, name string) (*types.TestCase, error) {
	if name == "" && len(suite.Tests) == 1 {
		return &suite.Tests[0], nil
	}
	for i := range suite.Tests {
		if suite.Tests[i].Name == name {
			return &suite.Tests[i], nil
		}
	}
	if name == "" {
		return nil, fmt.Errorf("suite has %d tests; name one with --test", len(suite.Tests))
	}
	return nil, fmt.Errorf("no test named %q", name)
}

func skillName(suite *testcase.Suite, tr *types.Trace) string {
	if suite.Skill != "" {
		return suite.Skill
	}
	if tr != nil {
		return tr.SkillName
	}
	return ""
}

func workDir(cwd string) string {
	if cwd != "" {
		return cwd
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func (f *reportFlags) write(stdout io.Writer, skill string, results []types.FinalResult, elapsed time.Duration) (err error) {
	w := stdout
	if f.output != "" {
		file, ferr := os.Create(f.output)
		if ferr != nil {
			return fmt.Errorf("create report: %w", ferr)
		}
		defer func() {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}()
		w = file
	}

	switch f.format {
	case "json":
		data, err := report.GenerateJSONReport(skill, results, elapsed.Milliseconds())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "markdown", "md":
		title := ""
		if skill != "" {
			title = "Skill Evaluation Report: " + skill
		}
		return report.GenerateMarkdown(w, &report.MarkdownReport{
			Title:      title,
			RunAt:      time.Now(),
			Results:    results,
			DurationMS: elapsed.Milliseconds(),
		})
	default:
		return fmt.Errorf("unknown report format %q", f.format)
	}
}

// failures turns failed tests into a non-zero exit.
func failures(results []types.FinalResult) error {
	s := report.Summarize(results)
	if s.Failed > 0 {
		return fmt.Errorf("%d of %d test(s) failed", s.Failed, s.Total)
	}
	return nil
}
