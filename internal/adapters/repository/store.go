// Package repository persists attendance, settings and score runs, and
// keeps the latest ranking per team in memory.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/okian/rollcall/internal/domain/model"
)

// Store provides read/write access to the persisted state.
type Store interface {
	// ActiveSettings returns the team's active settings row.
	// Returns ErrSettingsNotFound when the team has none.
	ActiveSettings(ctx context.Context, teamID string) (*model.ScoreSettings, error)
	// SaveSettings deactivates the team's current row and inserts s as the
	// new active one in a single transaction.
	SaveSettings(ctx context.Context, s model.ScoreSettings) (model.ScoreSettings, error)

	// AttendanceRecords returns the team's records that occurred within
	// [since, until], ordered by occurrence. A zero since or until leaves
	// that end open.
	AttendanceRecords(ctx context.Context, teamID string, since, until time.Time) ([]model.RawRecord, error)
	// MVPAwards returns the team's awards granted within [since, until].
	MVPAwards(ctx context.Context, teamID string, since, until time.Time) ([]model.MVPAward, error)

	// UpsertAttendance inserts or replaces records keyed by record id.
	UpsertAttendance(ctx context.Context, records []model.RawRecord) (int, error)
	// UpsertMVPAwards inserts or replaces awards keyed by award id.
	UpsertMVPAwards(ctx context.Context, awards []model.MVPAward) (int, error)

	// SaveRun persists a run and its per-player scores atomically.
	SaveRun(ctx context.Context, run model.ScoreRun, scores []model.PlayerScore) error
	// LatestRun returns the team's most recent run or ErrNotFound.
	LatestRun(ctx context.Context, teamID string) (model.ScoreRun, error)
	// RunScores returns every player score stored for a run, ranked players
	// first in rank order.
	RunScores(ctx context.Context, runID uuid.UUID) ([]model.PlayerScore, error)

	// ActiveTeams lists teams with an active settings row.
	ActiveTeams(ctx context.Context) ([]string, error)

	Close() error
}
