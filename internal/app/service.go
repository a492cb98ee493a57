// Package service wires storage, the recompute queue and the reliability
// pipeline into the operations the HTTP API and scheduler call.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	jobqueue "github.com/okian/rollcall/internal/adapters/mq/queue"
	workerpool "github.com/okian/rollcall/internal/adapters/mq/worker"
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/dedupe"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/reliability"
	"github.com/okian/rollcall/internal/domain/trial"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

const day = 24 * time.Hour

// Order selects which end of the ranking a leaderboard shows.
type Order string

// Orders.
const (
	OrderBest  Order = "best"
	OrderWorst Order = "worst"
)

// ParseOrder parses a leaderboard order; empty means best.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best":
		return OrderBest, nil
	case "worst":
		return OrderWorst, nil
	default:
		return "", fmt.Errorf("%w: order %q", ErrInvalidInput, s)
	}
}

// Service implements the API and scheduler dependencies.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	board      *repository.Board
	pending    dedupe.Deduper
	queue      jobqueue.Queue
	workerPool *workerpool.Pool
	teamLocks  sync.Map // team id -> *sync.Mutex

	workerCount     int
	queueSize       int
	dedupeSize      int
	windowDays      int
	maxBatch        int
	trialThresholds trial.Thresholds
	now             func() time.Time

	started bool
	logger  logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       1_024,
		dedupeSize:      10_000,
		maxBatch:        5_000,
		trialThresholds: trial.DefaultThresholds(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the board, the queue and the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		return ErrStoreRequired
	}

	s.board = repository.NewBoard(repository.WithLoader(repository.LoadFromStore(s.store)))
	s.pending = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "reliability service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("evaluation_window_days", s.windowDays),
	)
	return nil
}

// Stop closes the queue and waits for in-flight recomputes. Queued jobs
// that never started are dropped.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	pool := s.workerPool
	s.mu.Unlock()

	// Workers still draining call Process, which reads started under s.mu.
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.logger.Info(ctx, "reliability service stopped")
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func (s *Service) windowStart(now time.Time) time.Time {
	if s.windowDays == 0 {
		return time.Time{}
	}
	return now.Add(-time.Duration(s.windowDays) * day)
}

func (s *Service) teamLock(teamID string) *sync.Mutex {
	v, _ := s.teamLocks.LoadOrStore(teamID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Recompute fetches the team's snapshot, runs the pipeline, persists the run
// and publishes it. On any failure previous results stay in place.
func (s *Service) Recompute(ctx context.Context, job model.RecomputeJob) (model.ScoreRun, error) {
	const op = "service.Recompute"

	if !s.isStarted() {
		return model.ScoreRun{}, ErrNotStarted
	}
	lock := s.teamLock(job.TeamID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	computedAt := s.now().UTC().Truncate(time.Millisecond)
	since := s.windowStart(computedAt)
	log := s.logger.With(
		logger.String("team_id", job.TeamID),
		logger.String("trigger", string(job.Trigger)),
		logger.String("job_id", job.JobID.String()),
	)

	var (
		settings *model.ScoreSettings
		records  []model.RawRecord
		awards   []model.MVPAward
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		settings, err = s.store.ActiveSettings(gctx, job.TeamID)
		return err
	})
	g.Go(func() (err error) {
		records, err = s.store.AttendanceRecords(gctx, job.TeamID, since, computedAt)
		return err
	})
	g.Go(func() (err error) {
		awards, err = s.store.MVPAwards(gctx, job.TeamID, since, computedAt)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			metrics.RecordRecomputeRun(metrics.ResultConfigurationMissing, msSince(start))
			log.Warn(ctx, "recompute skipped: no active score settings")
			return model.ScoreRun{}, fmt.Errorf("%s: team %s: %w", op, job.TeamID, ErrConfigurationMissing)
		}
		metrics.RecordRecomputeRun(metrics.ResultStoreError, msSince(start))
		return model.ScoreRun{}, retryable(op, err)
	}

	res, err := reliability.Compute(ctx, reliability.Input{
		TeamID:   job.TeamID,
		Records:  records,
		Awards:   awards,
		Settings: settings,
	})
	if err != nil {
		metrics.RecordRecomputeRun(metrics.ResultFailed, msSince(start))
		return model.ScoreRun{}, fmt.Errorf("%s: %w", op, err)
	}

	agg := res.Aggregation
	for reason, n := range agg.Skipped {
		log.Warn(ctx, "attendance records skipped", logger.String("reason", reason), logger.Int("count", n))
	}

	run := model.ScoreRun{
		RunID:            uuid.New(),
		TeamID:           job.TeamID,
		Trigger:          job.Trigger,
		ComputedAt:       computedAt,
		RecordsProcessed: agg.Processed,
		RecordsSkipped:   agg.SkippedTotal(),
		SkippedByReason:  agg.Skipped,
		PlayersScored:    len(res.Scores),
		PlayersRanked:    len(res.Ranked),
	}
	if err := s.store.SaveRun(ctx, run, res.Scores); err != nil {
		metrics.RecordRecomputeRun(metrics.ResultStoreError, msSince(start))
		return model.ScoreRun{}, retryable(op, err)
	}
	s.board.Publish(repository.NewSnapshot(run, res.Scores))

	metrics.RecordRecomputeRun(metrics.ResultSuccess, msSince(start))
	metrics.RecordAggregation(agg.Processed, agg.Skipped)
	metrics.UpdatePlayersRanked(job.TeamID, run.PlayersRanked)
	log.Info(ctx, "recompute finished",
		logger.String("run_id", run.RunID.String()),
		logger.Int("records_processed", run.RecordsProcessed),
		logger.Int("records_skipped", run.RecordsSkipped),
		logger.Int("players_scored", run.PlayersScored),
		logger.Int("players_ranked", run.PlayersRanked),
		logger.Duration("took", time.Since(start)),
	)
	return run, nil
}

// Process runs a queued job. The team leaves the pending set first so a
// request arriving mid-run queues a fresh job.
//
// Jobs still queued when Stop is called are dropped without running.
func (s *Service) Process(ctx context.Context, job model.RecomputeJob) error {
	s.pending.Unrecord(ctx, job.TeamID)
	if !s.isStarted() {
		s.logger.Debug(ctx, "dropping queued recompute after stop",
			logger.String("team_id", job.TeamID),
			logger.String("job_id", job.JobID.String()),
		)
		return nil
	}
	_, err := s.Recompute(ctx, job)
	return err
}

// EnqueueRecompute queues a recompute for the team. A team that already has
// a pending job is acknowledged as coalesced. ErrQueueFull is returned when
// the queue is full or closed, ErrNotStarted before Start.
func (s *Service) EnqueueRecompute(ctx context.Context, teamID string, trigger model.Trigger) (coalesced bool, err error) {
	const op = "service.EnqueueRecompute"

	if !s.isStarted() {
		return false, ErrNotStarted
	}
	if s.pending.SeenAndRecord(ctx, teamID) {
		metrics.RecordRecomputeCoalesced()
		return true, nil
	}
	job := model.NewRecomputeJob(teamID, trigger, s.now().UTC())
	if !s.queue.Enqueue(ctx, job) {
		s.pending.Unrecord(ctx, teamID)
		s.logger.Warn(ctx, "recompute queue full", logger.String("team_id", teamID))
		return false, fmt.Errorf("%s: team %s: %w", op, teamID, ErrQueueFull)
	}
	s.logger.Debug(ctx, "recompute queued",
		logger.String("team_id", teamID),
		logger.String("job_id", job.JobID.String()),
		logger.String("trigger", string(trigger)),
	)
	return false, nil
}

// Leaderboard returns up to n ranked players of the latest run.
func (s *Service) Leaderboard(ctx context.Context, teamID string, n int, order Order) ([]model.PlayerScore, model.ScoreRun, error) {
	const op = "service.Leaderboard"

	if n <= 0 {
		return nil, model.ScoreRun{}, fmt.Errorf("%s: %w", op, ErrInvalidLimit)
	}
	snap, err := s.snapshot(ctx, op, teamID)
	if err != nil {
		return nil, model.ScoreRun{}, err
	}
	return snap.Top(n, order == OrderWorst), snap.Run, nil
}

// PlayerScore returns one player's score from the latest run.
func (s *Service) PlayerScore(ctx context.Context, teamID, playerID string) (model.PlayerScore, error) {
	const op = "service.PlayerScore"

	if !s.isStarted() {
		return model.PlayerScore{}, ErrNotStarted
	}
	sc, err := s.board.Player(ctx, teamID, playerID)
	switch {
	case err == nil:
		return sc, nil
	case errors.Is(err, ErrNotFound):
		return model.PlayerScore{}, fmt.Errorf("%s: %w", op, err)
	default:
		return model.PlayerScore{}, retryable(op, err)
	}
}

// LatestRun returns the audit summary of the latest run.
func (s *Service) LatestRun(ctx context.Context, teamID string) (model.ScoreRun, error) {
	snap, err := s.snapshot(ctx, "service.LatestRun", teamID)
	if err != nil {
		return model.ScoreRun{}, err
	}
	return snap.Run, nil
}

func (s *Service) snapshot(ctx context.Context, op, teamID string) (*repository.Snapshot, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	snap, err := s.board.Get(ctx, teamID)
	switch {
	case err == nil:
		return snap, nil
	case errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	default:
		return nil, retryable(op, err)
	}
}

// Settings returns the team's active score settings.
func (s *Service) Settings(ctx context.Context, teamID string) (*model.ScoreSettings, error) {
	const op = "service.Settings"

	st, err := s.store.ActiveSettings(ctx, teamID)
	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, repository.ErrSettingsNotFound):
		return nil, fmt.Errorf("%s: team %s: %w", op, teamID, ErrNotFound)
	default:
		return nil, retryable(op, err)
	}
}

// SaveSettings stores st as the team's only active settings row.
func (s *Service) SaveSettings(ctx context.Context, st model.ScoreSettings) (model.ScoreSettings, error) {
	const op = "service.SaveSettings"

	if err := st.Validate(); err != nil {
		return model.ScoreSettings{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, err)
	}
	saved, err := s.store.SaveSettings(ctx, st)
	if err != nil {
		return model.ScoreSettings{}, retryable(op, err)
	}
	metrics.RecordSettingsSaved()
	s.logger.Info(ctx, "score settings saved",
		logger.String("team_id", saved.TeamID),
		logger.Int64("settings_id", saved.ID),
	)
	return saved, nil
}

// RecordAttendance validates and upserts a batch of attendance records.
func (s *Service) RecordAttendance(ctx context.Context, teamID string, records []model.Record) (int, error) {
	const op = "service.RecordAttendance"

	if err := s.checkBatch(op, len(records)); err != nil {
		return 0, err
	}
	raw := make([]model.RawRecord, 0, len(records))
	for i, r := range records {
		switch {
		case strings.TrimSpace(r.RecordID) == "":
			return 0, fmt.Errorf("%s: record %d: %w: record id is required", op, i, ErrInvalidInput)
		case strings.TrimSpace(r.PlayerID) == "":
			return 0, fmt.Errorf("%s: record %s: %w: player id is required", op, r.RecordID, ErrInvalidInput)
		case r.TeamID != "" && r.TeamID != teamID:
			return 0, fmt.Errorf("%s: record %s: %w: team %s does not match %s", op, r.RecordID, ErrInvalidInput, r.TeamID, teamID)
		case r.OccurredAt.IsZero():
			return 0, fmt.Errorf("%s: record %s: %w: occurred_at is required", op, r.RecordID, ErrInvalidInput)
		}
		r.TeamID = teamID
		raw = append(raw, r.Raw())
	}

	n, err := s.store.UpsertAttendance(ctx, raw)
	if errors.Is(err, repository.ErrTeamMismatch) {
		return 0, fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, err)
	}
	if err != nil {
		return 0, retryable(op, err)
	}
	metrics.RecordAttendanceIngested(n)
	return n, nil
}

// RecordMVPAwards validates and upserts a batch of MVP awards.
func (s *Service) RecordMVPAwards(ctx context.Context, teamID string, awards []model.MVPAward) (int, error) {
	const op = "service.RecordMVPAwards"

	if err := s.checkBatch(op, len(awards)); err != nil {
		return 0, err
	}
	out := make([]model.MVPAward, 0, len(awards))
	for i, a := range awards {
		switch {
		case strings.TrimSpace(a.AwardID) == "":
			return 0, fmt.Errorf("%s: award %d: %w: award id is required", op, i, ErrInvalidInput)
		case strings.TrimSpace(a.PlayerID) == "":
			return 0, fmt.Errorf("%s: award %s: %w: player id is required", op, a.AwardID, ErrInvalidInput)
		case a.TeamID != "" && a.TeamID != teamID:
			return 0, fmt.Errorf("%s: award %s: %w: team %s does not match %s", op, a.AwardID, ErrInvalidInput, a.TeamID, teamID)
		case a.AwardedAt.IsZero():
			return 0, fmt.Errorf("%s: award %s: %w: awarded_at is required", op, a.AwardID, ErrInvalidInput)
		}
		a.TeamID = teamID
		out = append(out, a)
	}

	n, err := s.store.UpsertMVPAwards(ctx, out)
	if errors.Is(err, repository.ErrTeamMismatch) {
		return 0, fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, err)
	}
	if err != nil {
		return 0, retryable(op, err)
	}
	metrics.RecordAwardsIngested(n)
	return n, nil
}

func (s *Service) checkBatch(op string, n int) error {
	if n == 0 {
		return fmt.Errorf("%s: %w: empty batch", op, ErrInvalidInput)
	}
	if n > s.maxBatch {
		return fmt.Errorf("%s: %w: %d > %d", op, ErrBatchTooLarge, n, s.maxBatch)
	}
	return nil
}

// EvaluateTrial reduces a trialist's ratings to a decision.
func (s *Service) EvaluateTrial(_ context.Context, ratings []int) (trial.Evaluation, error) {
	ev, err := trial.Evaluate(ratings, s.trialThresholds)
	if err != nil {
		return trial.Evaluation{}, fmt.Errorf("service.EvaluateTrial: %w: %w", ErrInvalidInput, err)
	}
	metrics.RecordTrialEvaluation(string(ev.Decision))
	return ev, nil
}

// ActiveTeams lists teams with active settings.
func (s *Service) ActiveTeams(ctx context.Context) ([]string, error) {
	teams, err := s.store.ActiveTeams(ctx)
	if err != nil {
		return nil, retryable("service.ActiveTeams", err)
	}
	return teams, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":              s.started,
		"workerCount":          s.workerCount,
		"queueSize":            s.queueSize,
		"evaluationWindowDays": s.windowDays,
	}
	if s.started {
		queueLen := s.queue.Len(context.Background())
		stats["queueLength"] = queueLen
		stats["pendingTeams"] = s.pending.Size()
		stats["teamsOnBoard"] = s.board.Teams()
		metrics.UpdateQueue(queueLen, s.queueSize)
		metrics.UpdateWorkerCount(s.workerCount)
	}
	return stats
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
