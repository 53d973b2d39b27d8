// Package config loads engine settings from defaults, an optional YAML file,
// a .env file and SKILLEVAL_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/skilleval/engine/internal/llm"
	"github.com/skilleval/engine/internal/orchestrator"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "SKILLEVAL_"

// Config is the full engine configuration.
type Config struct {
	Judge       JudgeConfig          `yaml:"judge"`
	SkipRubric  bool                 `yaml:"skip_rubric"`
	Weights     orchestrator.Weights `yaml:"weights"`
	Cache       CacheConfig          `yaml:"cache"`
	Build       BuildConfig          `yaml:"build"`
	Log         LogConfig            `yaml:"log"`
	MetricsAddr string               `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
	HistoryDB   string               `yaml:"history_db"`
}

// JudgeConfig selects and tunes the rubric judge.
type JudgeConfig struct {
	Provider          string        `yaml:"provider" validate:"oneof=openai mock"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerMinute int           `yaml:"requests_per_minute" validate:"gt=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
	MaxRetries        int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	// Faults wraps the judge in a fault injector for chaos runs.
	Faults llm.FaultConfig `yaml:"faults"`
}

// CacheConfig selects the judge cache backend.
type CacheConfig struct {
	Backend string        `yaml:"backend" validate:"oneof=memory sqlite badger"`
	Path    string        `yaml:"path" validate:"required_unless=Backend memory"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
}

// BuildConfig controls build_must_pass execution.
type BuildConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	// Image runs build commands in a docker container when set.
	Image string `yaml:"image"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Judge: JudgeConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			Timeout:           30 * time.Second,
			RequestsPerMinute: 60,
			Burst:             5,
			MaxRetries:        3,
		},
		Weights: orchestrator.DefaultWeights,
		Cache: CacheConfig{
			Backend: "memory",
		},
		Build: BuildConfig{Timeout: 300 * time.Second},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Options names the optional files Load reads.
type Options struct {
	// File is a YAML config file. Empty skips it; a named file must exist.
	File string
	// EnvFile is a dotenv file. A missing file is ignored.
	EnvFile string
}

var validate = validator.New()

// Load builds a Config from defaults, opts.File, opts.EnvFile and the
// environment, then validates it.
func Load(opts Options) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", opts.File, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", opts.File, err)
		}
	}

	if opts.EnvFile != "" {
		// Load never overrides variables already set in the process.
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and the score weights.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// binding maps one environment variable onto a Config field.
type binding struct {
	name string
	set  func(c *Config, v string) error
}

var bindings = []binding{
	{"JUDGE_PROVIDER", func(c *Config, v string) error { c.Judge.Provider = v; return nil }},
	{"JUDGE_MODEL", func(c *Config, v string) error { c.Judge.Model = v; return nil }},
	{"JUDGE_BASE_URL", func(c *Config, v string) error { c.Judge.BaseURL = v; return nil }},
	{"JUDGE_API_KEY", func(c *Config, v string) error { c.Judge.APIKey = v; return nil }},
	{"JUDGE_TIMEOUT", durationSetter(func(c *Config) *time.Duration { return &c.Judge.Timeout })},
	{"JUDGE_RPM", intSetter(func(c *Config) *int { return &c.Judge.RequestsPerMinute })},
	{"JUDGE_BURST", intSetter(func(c *Config) *int { return &c.Judge.Burst })},
	{"JUDGE_MAX_RETRIES", intSetter(func(c *Config) *int { return &c.Judge.MaxRetries })},
	{"JUDGE_FAULT_ERROR_RATE", floatSetter(func(c *Config) *float64 { return &c.Judge.Faults.ErrorRate })},
	{"JUDGE_FAULT_JITTER", durationSetter(func(c *Config) *time.Duration { return &c.Judge.Faults.Jitter })},
	{"JUDGE_FAULT_TRUNCATE", boolSetter(func(c *Config) *bool { return &c.Judge.Faults.TruncateReplies })},
	{"JUDGE_FAULT_HANG_FOR", durationSetter(func(c *Config) *time.Duration { return &c.Judge.Faults.HangFor })},
	{"SKIP_RUBRIC", boolSetter(func(c *Config) *bool { return &c.SkipRubric })},
	{"WEIGHT_DETERMINISTIC", floatSetter(func(c *Config) *float64 { return &c.Weights.Deterministic })},
	{"WEIGHT_RUBRIC", floatSetter(func(c *Config) *float64 { return &c.Weights.Rubric })},
	{"CACHE_BACKEND", func(c *Config, v string) error { c.Cache.Backend = v; return nil }},
	{"CACHE_PATH", func(c *Config, v string) error { c.Cache.Path = v; return nil }},
	{"CACHE_TTL", durationSetter(func(c *Config) *time.Duration { return &c.Cache.TTL })},
	{"BUILD_TIMEOUT", durationSetter(func(c *Config) *time.Duration { return &c.Build.Timeout })},
	{"BUILD_IMAGE", func(c *Config, v string) error { c.Build.Image = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
	{"METRICS_ADDR", func(c *Config, v string) error { c.MetricsAddr = v; return nil }},
	{"HISTORY_DB", func(c *Config, v string) error { c.HistoryDB = v; return nil }},
}

// For mocking in tests
var lookupEnv = os.LookupEnv

func applyEnv(c *Config) error {
	for _, b := range bindings {
		v, ok := lookupEnv(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.set(c, v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, b.name, err)
		}
	}
	// The conventional OpenAI variable is honoured when no judge key is set.
	if c.Judge.APIKey == "" {
		if v, ok := lookupEnv("OPENAI_API_KEY"); ok {
			c.Judge.APIKey = v
		}
	}
	return nil
}

func durationSetter(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatSetter(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}
