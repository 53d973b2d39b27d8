package config

import (
	"bytes"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnv replaces the environment lookup for the duration of a test.
func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	orig := lookupEnv
	lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	t.Cleanup(func() { lookupEnv = orig })
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	withEnv(t, nil)
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 0.6, cfg.Weights.Deterministic)
	assert.Equal(t, 300*time.Second, cfg.Build.Timeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	withEnv(t, nil)
	path := writeFile(t, "skilleval.yaml", `
judge:
  model: claude-judge
  timeout: 45s
cache:
  backend: sqlite
  path: /tmp/judge.db
  ttl: 24h
weights:
  deterministic: 0.5
  rubric: 0.5
log:
  format: json
`)
	cfg, err := Load(Options{File: path})
	require.NoError(t, err)
	assert.Equal(t, "claude-judge", cfg.Judge.Model)
	assert.Equal(t, "openai", cfg.Judge.Provider, "unset keys keep their defaults")
	assert.Equal(t, 45*time.Second, cfg.Judge.Timeout)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 0.5, cfg.Weights.Rubric)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "skilleval.yaml", "judge:\n  model: from-file\n")
	withEnv(t, map[string]string{
		"SKILLEVAL_JUDGE_MODEL": "from-env",
		"SKILLEVAL_SKIP_RUBRIC": "true",
		"SKILLEVAL_JUDGE_RPM":   "120",
		"SKILLEVAL_CACHE_TTL":   "90m",
		"OPENAI_API_KEY":        "sk-fallback",
	})
	cfg, err := Load(Options{File: path})
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Judge.Model)
	assert.True(t, cfg.SkipRubric)
	assert.Equal(t, 120, cfg.Judge.RequestsPerMinute)
	assert.Equal(t, 90*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "sk-fallback", cfg.Judge.APIKey)
}

func TestLoad_PrefixedKeyWins(t *testing.T) {
	withEnv(t, map[string]string{
		"SKILLEVAL_JUDGE_API_KEY": "sk-primary",
		"OPENAI_API_KEY":          "sk-fallback",
	})
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "sk-primary", cfg.Judge.APIKey)
}

func TestLoad_EnvFile(t *testing.T) {
	const key = "SKILLEVAL_LOG_LEVEL"
	require.Empty(t, os.Getenv(key))
	t.Cleanup(func() { os.Unsetenv(key) })

	path := writeFile(t, ".env", key+"=debug\n")
	cfg, err := Load(Options{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = Load(Options{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	assert.NoError(t, err, "a missing env file is not an error")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{"bad provider", "judge:\n  provider: carrier-pigeon\n", nil, "Provider"},
		{"bad backend", "cache:\n  backend: redis\n", nil, "Backend"},
		{"persistent backend needs path", "cache:\n  backend: badger\n", nil, "Path"},
		{"weights must sum to one", "weights:\n  deterministic: 0.9\n  rubric: 0.9\n", nil, "sum to 1"},
		{"bad log level", "log:\n  level: loud\n", nil, "Level"},
		{"malformed yaml", "judge: [", nil, "parse config"},
		{"bad env duration", "", map[string]string{"SKILLEVAL_BUILD_TIMEOUT": "soon"}, "SKILLEVAL_BUILD_TIMEOUT"},
		{"bad env bool", "", map[string]string{"SKILLEVAL_SKIP_RUBRIC": "maybe"}, "SKILLEVAL_SKIP_RUBRIC"},
		{"zero rpm", "", map[string]string{"SKILLEVAL_JUDGE_RPM": "0"}, "RequestsPerMinute"},
		{"fault rate above one", "", map[string]string{"SKILLEVAL_JUDGE_FAULT_ERROR_RATE": "1.5"}, "ErrorRate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.env)
			opts := Options{}
			if tt.yaml != "" {
				opts.File = writeFile(t, "c.yaml", tt.yaml)
			}
			_, err := Load(opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_JudgeFaults(t *testing.T) {
	path := writeFile(t, "skilleval.yaml", `
judge:
  faults:
    error_rate: 0.25
    truncate_replies: true
    seed: 7
`)
	withEnv(t, map[string]string{"SKILLEVAL_JUDGE_FAULT_HANG_FOR": "2s"})
	cfg, err := Load(Options{File: path})
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Judge.Faults.ErrorRate)
	assert.True(t, cfg.Judge.Faults.TruncateReplies)
	assert.Equal(t, int64(7), cfg.Judge.Faults.Seed)
	assert.Equal(t, 2*time.Second, cfg.Judge.Faults.HangFor)
	assert.True(t, cfg.Judge.Faults.Enabled())
	assert.False(t, Default().Judge.Faults.Enabled())
}

func TestLoad_MissingFile(t *testing.T) {
	withEnv(t, nil)
	_, err := Load(Options{File: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"), "json handler expected, got %q", out)
	assert.Contains(t, out, `"k":"v"`)

	assert.Equal(t, slog.LevelInfo, SlogLevel("bogus"))
	assert.Equal(t, slog.LevelDebug, SlogLevel("DEBUG"))
}
