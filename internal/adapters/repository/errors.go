package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrSettingsNotFound = errors.New("no active score settings")
	ErrInvalidLimit     = errors.New("invalid leaderboard limit")
	ErrTeamMismatch     = errors.New("row belongs to another team")
)
