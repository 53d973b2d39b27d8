package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skilleval/engine/internal/testcase"
	"github.com/skilleval/engine/internal/trace"
	"github.com/skilleval/engine/pkg/types"
)

func newBatchCmd() *cobra.Command {
	var (
		testsFile   string
		tracesDir   string
		cwd         string
		concurrency int
		rf          reportFlags
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Evaluate a directory of traces against a test suite",
		Long: `batch loads every .json, .yaml and .yml trace in --traces and pairs each
with the suite test named by its test_name. Traces without a matching test
are reported as errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			suite, err := testcase.LoadFile(testsFile)
			if err != nil {
				return err
			}
			traces, err := loadTraces(tracesDir)
			if err != nil {
				return err
			}
			if len(traces) == 0 {
				return fmt.Errorf("no traces found in %s", tracesDir)
			}

			tests := make([]*types.TestCase, len(traces))
			for i, tr := range traces {
				tc, err := pickTest(suite, tr.TestName)
				if err != nil {
					return fmt.Errorf("trace %d (session %q): %w", i, tr.SessionID, err)
				}
				tests[i] = tc
			}

			eng, err := buildEngine(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			if concurrency < 1 {
				concurrency = 1
			}
			root := workDir(cwd)
			start := time.Now()
			results := make([]types.FinalResult, len(traces))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(concurrency)
			for i := range traces {
				g.Go(func() error {
					results[i] = *eng.orch.Evaluate(ctx, tests[i], traces[i], root)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info("batch complete", "traces", len(traces), "elapsed", time.Since(start).Round(time.Millisecond))

			if err := rf.write(cmd.OutOrStdout(), skillName(suite, traces[0]), results, time.Since(start)); err != nil {
				return err
			}
			return failures(results)
		},
	}
	cmd.Flags().StringVarP(&testsFile, "tests", "t", "", "test suite file (YAML or JSON)")
	cmd.Flags().StringVar(&tracesDir, "traces", "", "directory of trace files")
	cmd.Flags().StringVar(&cwd, "cwd", "", "sandbox root shared by all traces (default: current directory)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 4, "evaluations to run in parallel")
	_ = cmd.MarkFlagRequired("tests")
	_ = cmd.MarkFlagRequired("traces")
	rf.register(cmd)
	return cmd
}

// loadTraces reads every trace file in dir, sorted by file name.
func loadTraces(dir string) ([]*types.Trace, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read traces: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".json", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]*types.Trace, 0, len(names))
	for _, name := range names {
		tr, err := trace.LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}
