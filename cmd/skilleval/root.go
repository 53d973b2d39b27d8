package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/skilleval/engine/internal/config"
)

// Set by the release build.
var version = "0.4.0-dev"

var (
	configFile string
	envFile    string
	logLevel   string
	historyDB  string
)

var rootCmd = &cobra.Command{
	Use:   "skilleval",
	Short: "Evaluate AI agent skills against declarative test cases",
	Long: `skilleval scores recorded agent executions in two phases: deterministic
checks over the trace and workspace, then an LLM rubric judge that runs only
when every check passes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load if present")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().StringVar(&historyDB, "history-db", "", "SQLite file recording final scores (overrides config)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newEvaluateCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newHistoryCmd())
}

// loadConfig reads the configuration named by the persistent flags and
// builds a logger writing to stderr.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.Options{File: configFile, EnvFile: envFile})
	if err != nil {
		return config.Config{}, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if historyDB != "" {
		cfg.HistoryDB = historyDB
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "skilleval %s\n", version)
		},
	}
}

func main() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(`{{printf "skilleval version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
