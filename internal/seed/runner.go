package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/rollcall/pkg/logger"
)

const maxLeaderboardFetch = 100

// Run generates squads, uploads them, recomputes every team and verifies the
// resulting leaderboards.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("seed")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting rollcall seed",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("teams", cfg.Teams),
		logger.Int("players", cfg.PlayersPerTeam),
		logger.Int("weeks", cfg.Weeks),
		logger.Int("workers", cfg.Workers),
		logger.Int64("seed", cfg.Seed),
		logger.Int("window_days", cfg.WindowDays),
	)

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := client.healthy(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	squads := Generate(ctx, cfg, time.Now())
	for _, sq := range squads {
		stats.RecordsGenerated += len(sq.Records)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for _, sq := range squads {
		g.Go(func() error {
			res, err := seedSquad(gctx, client, sq, cfg.WindowDays, log)
			if err != nil {
				return fmt.Errorf("%s: %w", sq.TeamID, err)
			}
			mu.Lock()
			stats.TeamsSeeded++
			stats.RecordsAccepted += res.records
			stats.AwardsAccepted += res.awards
			stats.PlayersRanked += res.ranked
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	if cfg.OutputFile != "" {
		if err := saveSquads(cfg.OutputFile, squads); err != nil {
			log.Warn(ctx, "failed to save dataset", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "seed completed",
		logger.Int("teams", stats.TeamsSeeded),
		logger.Int("records", stats.RecordsAccepted),
		logger.Int("awards", stats.AwardsAccepted),
		logger.Int("players_ranked", stats.PlayersRanked),
		logger.Duration("took", stats.Duration),
	)
	return stats, nil
}

type squadResult struct {
	records int
	awards  int
	ranked  int
}

func seedSquad(ctx context.Context, client *HTTPClient, sq Squad, windowDays int, log logger.Logger) (squadResult, error) {
	var res squadResult
	log = log.With(logger.String("team_id", sq.TeamID))

	if err := client.putSettings(ctx, sq.TeamID, sq.Settings); err != nil {
		return res, err
	}
	n, err := client.postRecords(ctx, sq.TeamID, sq.Records)
	if err != nil {
		return res, err
	}
	res.records = n
	if res.awards, err = client.postAwards(ctx, sq.TeamID, sq.Awards); err != nil {
		return res, err
	}

	run, err := client.recompute(ctx, sq.TeamID)
	if err != nil {
		return res, err
	}
	res.ranked = run.PlayersRanked
	log.Debug(ctx, "squad recomputed",
		logger.String("run_id", run.RunID),
		logger.Int("records_processed", run.RecordsProcessed),
		logger.Int("players_ranked", run.PlayersRanked),
	)

	computedAt, err := time.Parse(time.RFC3339Nano, run.ComputedAt)
	if err != nil {
		return res, fmt.Errorf("run %s: computed_at: %w", run.RunID, err)
	}
	want, err := expectedRanking(ctx, sq, computedAt, windowDays)
	if err != nil {
		return res, err
	}

	limit := min(len(sq.Profiles), maxLeaderboardFetch)
	lb, err := client.leaderboard(ctx, sq.TeamID, limit)
	if err != nil {
		return res, err
	}
	if err := verifyLeaderboard(sq, lb); err != nil {
		return res, err
	}
	if err := compareLeaderboard(sq, lb, want, limit); err != nil {
		return res, err
	}
	means := profileMeans(sq, lb)
	for _, pm := range means {
		log.Info(ctx, "profile score",
			logger.String("profile", pm.Profile),
			logger.Float64("mean", pm.Mean),
			logger.Int("players", pm.Players),
		)
	}
	if inverted(means) {
		log.Warn(ctx, "least reliable profile outscored the most reliable one")
	}
	return res, nil
}

func saveSquads(filename string, squads []Squad) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(squads, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}
	if err := os.WriteFile(filename, data, outputFilePerm); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	return nil
}
