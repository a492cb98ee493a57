// Package scheduler runs cron-driven jobs, chiefly the periodic recompute
// of every active team.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// RecomputeJobName names the periodic recompute job.
const RecomputeJobName = "recompute-active-teams"

// Enqueuer is the slice of the service the recompute job needs.
type Enqueuer interface {
	ActiveTeams(ctx context.Context) ([]string, error)
	EnqueueRecompute(ctx context.Context, teamID string, trigger model.Trigger) (coalesced bool, err error)
}

// Service wraps a gocron scheduler.
type Service struct {
	scheduler gocron.Scheduler
	logger    logger.Logger
	stopOnce  sync.Once
	stopErr   error
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger   logger.Logger
	location *time.Location
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLocation sets the time zone cron expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// New creates a stopped scheduler. Job panics are recovered and logged.
func New(opts ...Option) (*Service, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("scheduler")
	}
	log := o.logger

	schedOpts := []gocron.SchedulerOption{
		gocron.WithGlobalJobOptions(
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					metrics.RecordErrorByComponent("scheduler", "job_panic")
					log.Error(context.Background(), "scheduler job panicked",
						logger.String("job_id", jobID.String()),
						logger.String("job_name", jobName),
						logger.Any("panic", recoverData),
					)
				}),
			),
		),
	}
	if o.location != nil {
		schedOpts = append(schedOpts, gocron.WithLocation(o.location))
	}

	sched, err := gocron.NewScheduler(schedOpts...)
	if err != nil {
		return nil, err
	}
	return &Service{scheduler: sched, logger: log}, nil
}

// Start begins running scheduled jobs.
func (s *Service) Start() {
	s.logger.Info(context.Background(), "scheduler starting", logger.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop shuts the scheduler down; later calls return the first result.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info(context.Background(), "scheduler stopping")
		s.stopErr = s.scheduler.Shutdown()
	})
	return s.stopErr
}

// AddJob registers a cron job. Runs of the same job never overlap.
func (s *Service) AddJob(name, cronExpr string, task func()) (gocron.Job, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyJobName
	}
	if strings.TrimSpace(cronExpr) == "" {
		return nil, ErrEmptyCronExpr
	}
	jobLogger := s.logger.With(logger.String("job_name", name), logger.String("cron", cronExpr))

	wrapped := func() {
		jobLogger.Debug(context.Background(), "scheduler job started")
		task()
		jobLogger.Debug(context.Background(), "scheduler job completed")
	}

	job, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(wrapped),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		jobLogger.Error(context.Background(), "failed to register scheduler job", logger.Error(err))
		return nil, err
	}
	jobLogger.Info(context.Background(), "scheduler job registered")
	return job, nil
}

// RecomputeActiveTeams enqueues a schedule-triggered recompute for every
// team with active settings. Teams with a pending job are coalesced.
func RecomputeActiveTeams(ctx context.Context, svc Enqueuer, log logger.Logger) (queued int, err error) {
	teams, err := svc.ActiveTeams(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("scheduler", "active_teams")
		log.Error(ctx, "listing active teams failed", logger.Error(err))
		return 0, err
	}
	for _, team := range teams {
		coalesced, enqErr := svc.EnqueueRecompute(ctx, team, model.TriggerSchedule)
		switch {
		case enqErr != nil:
			log.Warn(ctx, "scheduled recompute dropped", logger.String("team_id", team), logger.Error(enqErr))
		case coalesced:
			log.Debug(ctx, "scheduled recompute coalesced", logger.String("team_id", team))
		default:
			metrics.RecordScheduledRecompute()
			queued++
		}
	}
	log.Info(ctx, "scheduled recompute enqueued", logger.Int("teams", len(teams)), logger.Int("queued", queued))
	return queued, nil
}

// ScheduleRecompute registers the periodic recompute job on s.
func (s *Service) ScheduleRecompute(ctx context.Context, cronExpr string, svc Enqueuer) error {
	_, err := s.AddJob(RecomputeJobName, cronExpr, func() {
		_, _ = RecomputeActiveTeams(ctx, svc, s.logger)
	})
	return err
}
