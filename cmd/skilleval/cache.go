package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skilleval/engine/internal/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the judge cache",
	}
	cmd.AddCommand(newCacheStatsCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the configured judge cache backend and entry count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			jc, err := cache.Open(cache.Backend(cfg.Cache.Backend), cfg.Cache.Path, cache.WithLogger(logger))
			if err != nil {
				return err
			}
			defer jc.Close()

			n, err := jc.Persisted()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "backend\t%s\n", cfg.Cache.Backend)
			if cfg.Cache.Path != "" {
				fmt.Fprintf(w, "path\t%s\n", cfg.Cache.Path)
			}
			fmt.Fprintf(w, "ttl\t%s\n", ttlString(cfg.Cache.TTL.String(), cfg.Cache.TTL == 0))
			fmt.Fprintf(w, "persisted entries\t%d\n", n)
			return w.Flush()
		},
	}
}

func ttlString(s string, never bool) string {
	if never {
		return "never expires"
	}
	return s
}
