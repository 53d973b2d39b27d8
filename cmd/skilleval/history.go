package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history [test-name]",
		Short: "Show recorded scores per test",
		Long: `history prints a summary of every test recorded in the history database,
or the most recent runs of one test when a name is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			dbPath := cfg.HistoryDB
			if dbPath == "" {
				return fmt.Errorf("no history database: set history_db or pass --history-db")
			}
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("history database: %w", err)
			}
			db, h, err := openHistory(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				entries, err := h.Recent(args[0], limit)
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(out).Encode(entries)
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tSESSION\tSCORE\tPASSED\tRUBRIC")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%.2f\t%t\t%t\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.SessionID, e.Score, e.Passed, e.RubricRan)
				}
				return w.Flush()
			}

			sums, err := h.Summaries()
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(out).Encode(sums)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TEST\tRUNS\tPASS RATE\tMEAN\tSTDDEV")
			for _, s := range sums {
				fmt.Fprintf(w, "%s\t%d\t%.0f%%\t%.2f\t%.2f\n", s.TestName, s.Runs, s.PassRate*100, s.Mean, s.StdDev)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "runs to show for one test")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
