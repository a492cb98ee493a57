// Package config defines service configuration and its defaults.
package config

import "runtime"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabasePath is the SQLite file holding attendance, settings and runs.
	DatabasePath string `koanf:"database_path"`

	// QueueSize bounds the in-memory recompute queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the per-team pending job tracker.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /teams/{team}/leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// MaxIngestBatch caps records per attendance or award upload.
	MaxIngestBatch int `koanf:"max_ingest_batch"`

	// EvaluationWindowDays limits scoring to recent history; 0 means all.
	EvaluationWindowDays int `koanf:"evaluation_window_days"`

	// RecomputeCron schedules recomputes for every active team; empty disables.
	RecomputeCron string `koanf:"recompute_cron"`

	// RecomputeTimezone is the IANA zone the cron expression runs in.
	RecomputeTimezone string `koanf:"recompute_timezone"`

	// TrialRecruitThreshold and TrialDeclineThreshold bound trialist decisions.
	TrialRecruitThreshold int `koanf:"trial_recruit_threshold"`
	TrialDeclineThreshold int `koanf:"trial_decline_threshold"`

	// ShutdownTimeoutSeconds bounds graceful shutdown.
	ShutdownTimeoutSeconds int `koanf:"shutdown_timeout_seconds"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		DatabasePath:           "data/rollcall.db",
		QueueSize:              1_024,
		WorkerCount:            runtime.NumCPU(),
		DedupeSize:             10_000,
		MaxLeaderboardLimit:    100,
		MaxIngestBatch:         5_000,
		EvaluationWindowDays:   0,
		RecomputeCron:          "0 3 * * *",
		RecomputeTimezone:      "UTC",
		TrialRecruitThreshold:  1,
		TrialDeclineThreshold:  -1,
		ShutdownTimeoutSeconds: 30,
	}
}
