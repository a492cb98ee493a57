package config

import "errors"

var (
	// ErrInvalidConfig is returned by Validate for any rejected field.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig covers unreadable .env, YAML, or env sources.
	ErrLoadConfig = errors.New("load config failed")
	// ErrInvalidSchedule additionally marks a bad recompute cron or timezone.
	ErrInvalidSchedule = errors.New("invalid recompute schedule")
)
