package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

const (
	envPrefix  = "ROLLCALL_"
	envConfig  = envPrefix + "CONFIG"
	envDotFile = envPrefix + "ENV_FILE"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ROLLCALL_CONFIG is set
//  3. env (prefix ROLLCALL_), after loading .env if present
func Load(_ context.Context) (*Config, error) {
	const op = "config.Load"

	// .env never overrides variables already set in the process.
	dotFile := os.Getenv(envDotFile)
	if dotFile == "" {
		dotFile = ".env"
	}
	if err := godotenv.Load(dotFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w: %s: %w", op, ErrLoadConfig, dotFile, err)
	}

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrLoadConfig, err)
		}
	}

	// ROLLCALL_QUEUE_SIZE -> queue_size (flat keys, underscores kept).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var problems, schedule []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr must not be empty")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		problems = append(problems, "database_path must not be empty")
	}
	if c.QueueSize <= 0 {
		problems = append(problems, "queue_size must be positive")
	}
	if c.WorkerCount <= 0 {
		problems = append(problems, "worker_count must be positive")
	}
	if c.DedupeSize < 0 {
		problems = append(problems, "dedupe_size must not be negative")
	}
	if c.MaxLeaderboardLimit <= 0 {
		problems = append(problems, "max_leaderboard_limit must be positive")
	}
	if c.MaxIngestBatch <= 0 {
		problems = append(problems, "max_ingest_batch must be positive")
	}
	if c.EvaluationWindowDays < 0 {
		problems = append(problems, "evaluation_window_days must not be negative")
	}
	if c.TrialDeclineThreshold >= c.TrialRecruitThreshold {
		problems = append(problems, "trial_decline_threshold must be below trial_recruit_threshold")
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		problems = append(problems, "shutdown_timeout_seconds must be positive")
	}
	if expr := strings.TrimSpace(c.RecomputeCron); expr != "" {
		if _, err := cron.ParseStandard(expr); err != nil {
			schedule = append(schedule, fmt.Sprintf("recompute_cron %q: %v", expr, err))
		}
	}
	if _, err := time.LoadLocation(c.RecomputeTimezone); err != nil {
		schedule = append(schedule, fmt.Sprintf("recompute_timezone %q: %v", c.RecomputeTimezone, err))
	}
	if len(schedule) > 0 {
		problems = append(problems, schedule...)
		return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrInvalidSchedule, strings.Join(problems, "; "))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
