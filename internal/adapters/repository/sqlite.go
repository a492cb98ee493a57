package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/metrics"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultBusyTimeout = 5 * time.Second

// SQLiteStore is the Store backed by a single SQLite file.
type SQLiteStore struct {
	db          *sql.DB
	now         func() time.Time
	busyTimeout time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies
// the embedded migrations.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	const op = "repository.OpenSQLite"

	s := &SQLiteStore{now: time.Now, busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s: create dir: %w", op, err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(path, s.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// One connection serializes writers and keeps the file lock simple.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.db = db
	return s, nil
}

func dsn(path string, busy time.Duration) string {
	params := fmt.Sprintf("_fk=1&_busy_timeout=%d", busy.Milliseconds())
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migrate driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not create source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RunInTx runs fn in a transaction, rolling back on error or panic.
func (s *SQLiteStore) RunInTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("error rolling back: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing: %w", err)
	}
	return nil
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

const settingsColumns = `id, team_id,
	training_on_time, training_late, training_absent, training_no_response,
	match_on_time, match_late, match_absent, match_no_response,
	mvp_bonus, mvp_per_award, min_events, is_active, created_at`

// ActiveSettings returns the team's active settings row.
func (s *SQLiteStore) ActiveSettings(ctx context.Context, teamID string) (*model.ScoreSettings, error) {
	const op = "repository.ActiveSettings"
	defer observe("active_settings", time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM score_settings WHERE team_id = ? AND is_active = 1`, teamID)

	var (
		st        model.ScoreSettings
		createdAt int64
	)
	err := row.Scan(&st.ID, &st.TeamID,
		&st.Training.OnTime, &st.Training.Late, &st.Training.Absent, &st.Training.NoResponse,
		&st.Match.OnTime, &st.Match.Late, &st.Match.Absent, &st.Match.NoResponse,
		&st.MVPBonus, &st.MVPPerAward, &st.MinEvents, &st.Active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: team %s: %w", op, teamID, ErrSettingsNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	st.CreatedAt = fromMillis(createdAt)
	return &st, nil
}

// SaveSettings deactivates the current row and inserts the new active one.
func (s *SQLiteStore) SaveSettings(ctx context.Context, st model.ScoreSettings) (model.ScoreSettings, error) {
	const op = "repository.SaveSettings"
	defer observe("save_settings", time.Now())

	if err := st.Validate(); err != nil {
		return model.ScoreSettings{}, fmt.Errorf("%s: %w", op, err)
	}
	st.Active = true
	st.CreatedAt = s.now().UTC()

	err := s.RunInTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE score_settings SET is_active = 0 WHERE team_id = ? AND is_active = 1`, st.TeamID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO score_settings (
			team_id,
			training_on_time, training_late, training_absent, training_no_response,
			match_on_time, match_late, match_absent, match_no_response,
			mvp_bonus, mvp_per_award, min_events, is_active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			st.TeamID,
			st.Training.OnTime, st.Training.Late, st.Training.Absent, st.Training.NoResponse,
			st.Match.OnTime, st.Match.Late, st.Match.Absent, st.Match.NoResponse,
			st.MVPBonus, st.MVPPerAward, st.MinEvents, toMillis(st.CreatedAt))
		if err != nil {
			return err
		}
		st.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return model.ScoreSettings{}, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}

// AttendanceRecords returns the team's records in [since, until], in
// occurrence order.
func (s *SQLiteStore) AttendanceRecords(ctx context.Context, teamID string, since, until time.Time) ([]model.RawRecord, error) {
	const op = "repository.AttendanceRecords"
	defer observe("attendance_records", time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT record_id, team_id, player_id, session_id, event_kind, outcome, occurred_at
		FROM attendance_records
		WHERE team_id = ? AND occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at, record_id`, teamID, sinceMillis(since), untilMillis(until))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []model.RawRecord
	for rows.Next() {
		var (
			r  model.RawRecord
			at int64
		)
		if err := rows.Scan(&r.RecordID, &r.TeamID, &r.PlayerID, &r.SessionID, &r.EventKind, &r.Outcome, &at); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		r.OccurredAt = fromMillis(at)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// MVPAwards returns the team's awards in [since, until], in grant order.
func (s *SQLiteStore) MVPAwards(ctx context.Context, teamID string, since, until time.Time) ([]model.MVPAward, error) {
	const op = "repository.MVPAwards"
	defer observe("mvp_awards", time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT award_id, team_id, player_id, match_id, awarded_at
		FROM mvp_awards
		WHERE team_id = ? AND awarded_at >= ? AND awarded_at <= ?
		ORDER BY awarded_at, award_id`, teamID, sinceMillis(since), untilMillis(until))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []model.MVPAward
	for rows.Next() {
		var (
			a  model.MVPAward
			at int64
		)
		if err := rows.Scan(&a.AwardID, &a.TeamID, &a.PlayerID, &a.MatchID, &at); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.AwardedAt = fromMillis(at)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func sinceMillis(since time.Time) int64 {
	if since.IsZero() {
		return 0
	}
	return toMillis(since)
}

func untilMillis(until time.Time) int64 {
	if until.IsZero() {
		return math.MaxInt64
	}
	return toMillis(until)
}

// UpsertAttendance writes records in one transaction. A record id already
// stored for a different team fails the whole batch with ErrTeamMismatch.
func (s *SQLiteStore) UpsertAttendance(ctx context.Context, records []model.RawRecord) (int, error) {
	const op = "repository.UpsertAttendance"
	defer observe("upsert_attendance", time.Now())

	err := s.RunInTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO attendance_records
			(record_id, team_id, player_id, session_id, event_kind, outcome, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (record_id) DO UPDATE SET
				player_id = excluded.player_id,
				session_id = excluded.session_id,
				event_kind = excluded.event_kind,
				outcome = excluded.outcome,
				occurred_at = excluded.occurred_at
			WHERE attendance_records.team_id = excluded.team_id`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			res, err := stmt.ExecContext(ctx, r.RecordID, r.TeamID, r.PlayerID, r.SessionID, r.EventKind, r.Outcome, toMillis(r.OccurredAt))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("record %s: %w", r.RecordID, ErrTeamMismatch)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return len(records), nil
}

// UpsertMVPAwards writes awards in one transaction.
func (s *SQLiteStore) UpsertMVPAwards(ctx context.Context, awards []model.MVPAward) (int, error) {
	const op = "repository.UpsertMVPAwards"
	defer observe("upsert_mvp_awards", time.Now())

	err := s.RunInTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO mvp_awards
			(award_id, team_id, player_id, match_id, awarded_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (award_id) DO UPDATE SET
				player_id = excluded.player_id,
				match_id = excluded.match_id,
				awarded_at = excluded.awarded_at
			WHERE mvp_awards.team_id = excluded.team_id`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range awards {
			res, err := stmt.ExecContext(ctx, a.AwardID, a.TeamID, a.PlayerID, a.MatchID, toMillis(a.AwardedAt))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("award %s: %w", a.AwardID, ErrTeamMismatch)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return len(awards), nil
}

// SaveRun persists the run row and every player score together.
func (s *SQLiteStore) SaveRun(ctx context.Context, run model.ScoreRun, scores []model.PlayerScore) error {
	const op = "repository.SaveRun"
	defer observe("save_run", time.Now())

	reasons := run.SkippedByReason
	if reasons == nil {
		reasons = map[string]int{}
	}
	skipped, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("%s: encode skipped: %w", op, err)
	}

	err = s.RunInTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO score_runs
			(run_id, team_id, run_trigger, computed_at, records_processed, records_skipped, skipped_by_reason, players_scored, players_ranked)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID.String(), run.TeamID, string(run.Trigger), toMillis(run.ComputedAt),
			run.RecordsProcessed, run.RecordsSkipped, string(skipped), run.PlayersScored, run.PlayersRanked); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO player_scores
			(run_id, player_id, raw_points, normalized_score, total_events, no_response_rate, match_presence_rate, match_late_rate, eligible, rank)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sc := range scores {
			if _, err := stmt.ExecContext(ctx, run.RunID.String(), sc.PlayerID, sc.RawPoints, sc.NormalizedScore,
				sc.TotalEvents, sc.NoResponseRate, sc.MatchPresenceRate, sc.MatchLateRate, sc.Eligible, sc.Rank); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// LatestRun returns the team's most recent run.
func (s *SQLiteStore) LatestRun(ctx context.Context, teamID string) (model.ScoreRun, error) {
	const op = "repository.LatestRun"
	defer observe("latest_run", time.Now())

	row := s.db.QueryRowContext(ctx, `SELECT run_id, team_id, run_trigger, computed_at, records_processed,
			records_skipped, skipped_by_reason, players_scored, players_ranked
		FROM score_runs
		WHERE team_id = ?
		ORDER BY computed_at DESC, rowid DESC
		LIMIT 1`, teamID)

	var (
		run        model.ScoreRun
		runID      string
		trigger    string
		computedAt int64
		skipped    string
	)
	err := row.Scan(&runID, &run.TeamID, &trigger, &computedAt, &run.RecordsProcessed,
		&run.RecordsSkipped, &skipped, &run.PlayersScored, &run.PlayersRanked)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScoreRun{}, fmt.Errorf("%s: team %s: %w", op, teamID, ErrNotFound)
	}
	if err != nil {
		return model.ScoreRun{}, fmt.Errorf("%s: %w", op, err)
	}

	if run.RunID, err = uuid.Parse(runID); err != nil {
		return model.ScoreRun{}, fmt.Errorf("%s: run id: %w", op, err)
	}
	run.Trigger = model.Trigger(trigger)
	run.ComputedAt = fromMillis(computedAt)
	if err := json.Unmarshal([]byte(skipped), &run.SkippedByReason); err != nil {
		return model.ScoreRun{}, fmt.Errorf("%s: decode skipped: %w", op, err)
	}
	if run.SkippedByReason == nil {
		run.SkippedByReason = map[string]int{}
	}
	return run, nil
}

// RunScores returns the scores of a run, ranked players first.
func (s *SQLiteStore) RunScores(ctx context.Context, runID uuid.UUID) ([]model.PlayerScore, error) {
	const op = "repository.RunScores"
	defer observe("run_scores", time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT player_id, raw_points, normalized_score, total_events,
			no_response_rate, match_presence_rate, match_late_rate, eligible, rank
		FROM player_scores
		WHERE run_id = ?
		ORDER BY rank = 0, rank, rowid`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []model.PlayerScore
	for rows.Next() {
		var sc model.PlayerScore
		if err := rows.Scan(&sc.PlayerID, &sc.RawPoints, &sc.NormalizedScore, &sc.TotalEvents,
			&sc.NoResponseRate, &sc.MatchPresenceRate, &sc.MatchLateRate, &sc.Eligible, &sc.Rank); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// ActiveTeams lists teams with an active settings row, sorted by id.
func (s *SQLiteStore) ActiveTeams(ctx context.Context) ([]string, error) {
	const op = "repository.ActiveTeams"
	defer observe("active_teams", time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT team_id FROM score_settings WHERE is_active = 1 ORDER BY team_id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var teams []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		teams = append(teams, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return teams, nil
}
