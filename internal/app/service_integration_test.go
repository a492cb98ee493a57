package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/adapters/repository"
	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var errStoreDown = errors.New("store down")

// gatedStore blocks ActiveSettings for one team until gate is closed, and
// can be told to fail SaveRun.
type gatedStore struct {
	repository.Store
	gateTeam    string
	gate        chan struct{}
	entered     chan struct{}
	failSaveRun atomic.Bool
}

func (g *gatedStore) ActiveSettings(ctx context.Context, teamID string) (*model.ScoreSettings, error) {
	if teamID == g.gateTeam && g.gate != nil {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.Store.ActiveSettings(ctx, teamID)
}

func (g *gatedStore) SaveRun(ctx context.Context, run model.ScoreRun, scores []model.PlayerScore) error {
	if g.failSaveRun.Load() {
		return errStoreDown
	}
	return g.Store.SaveRun(ctx, run, scores)
}

func openStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "rollcall.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func simpleSettings(teamID string, minEvents int) model.ScoreSettings {
	return model.ScoreSettings{
		TeamID:    teamID,
		Training:  model.Weights{OnTime: 1, Late: 0, Absent: -1, NoResponse: -1},
		Match:     model.Weights{OnTime: 2, Late: 0, Absent: -2, NoResponse: -2},
		MVPBonus:  0,
		MinEvents: minEvents,
	}
}

func training(id, player string, o model.Outcome, at time.Time) model.Record {
	return model.Record{
		RecordID:   id,
		PlayerID:   player,
		SessionID:  "s-" + id,
		Kind:       model.EventKindTraining,
		Outcome:    o,
		OccurredAt: at,
	}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestServiceRecompute(t *testing.T) {
	Convey("Given a started service over a SQLite store", t, func() {
		ctx := context.Background()
		clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		store := &gatedStore{Store: openStore(t)}
		svc := service.New(
			service.WithStore(store),
			service.WithWorkerCount(1),
			service.WithClock(func() time.Time { return clock }),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		day := clock.Add(-24 * time.Hour)
		_, err := svc.SaveSettings(ctx, simpleSettings("team-1", 1))
		So(err, ShouldBeNil)
		n, err := svc.RecordAttendance(ctx, "team-1", []model.Record{
			training("a1", "alice", model.OutcomePresentOnTime, day),
			training("a2", "alice", model.OutcomePresentOnTime, day.Add(time.Hour)),
			training("b1", "bob", model.OutcomePresentOnTime, day),
			training("b2", "bob", model.OutcomeAbsent, day.Add(time.Hour)),
			training("c1", "carol", model.OutcomeAbsent, day),
			training("c2", "carol", model.OutcomeNoResponse, day.Add(time.Hour)),
		})
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 6)

		Convey("When the team is recomputed", func() {
			run, err := svc.Recompute(ctx, model.NewRecomputeJob("team-1", model.TriggerManual, clock))
			So(err, ShouldBeNil)

			Convey("Then the run summarizes the pipeline", func() {
				So(run.TeamID, ShouldEqual, "team-1")
				So(run.Trigger, ShouldEqual, model.TriggerManual)
				So(run.ComputedAt, ShouldEqual, clock)
				So(run.RecordsProcessed, ShouldEqual, 6)
				So(run.RecordsSkipped, ShouldEqual, 0)
				So(run.PlayersScored, ShouldEqual, 3)
				So(run.PlayersRanked, ShouldEqual, 3)
			})

			Convey("And the leaderboard is ranked best first", func() {
				top, latest, err := svc.Leaderboard(ctx, "team-1", 10, service.OrderBest)
				So(err, ShouldBeNil)
				So(latest.RunID, ShouldEqual, run.RunID)
				So(len(top), ShouldEqual, 3)
				So(top[0].PlayerID, ShouldEqual, "alice")
				So(top[0].Rank, ShouldEqual, 1)
				So(top[1].PlayerID, ShouldEqual, "bob")
				So(top[2].PlayerID, ShouldEqual, "carol")
				So(top[0].NormalizedScore, ShouldBeGreaterThan, top[1].NormalizedScore)
			})

			Convey("And the worst card is the reversed ranking", func() {
				worst, _, err := svc.Leaderboard(ctx, "team-1", 2, service.OrderWorst)
				So(err, ShouldBeNil)
				So(len(worst), ShouldEqual, 2)
				So(worst[0].PlayerID, ShouldEqual, "carol")
				So(worst[1].PlayerID, ShouldEqual, "bob")
			})

			Convey("And a single player can be read", func() {
				sc, err := svc.PlayerScore(ctx, "team-1", "bob")
				So(err, ShouldBeNil)
				So(sc.Rank, ShouldEqual, 2)
				So(sc.TotalEvents, ShouldEqual, 2)

				_, err = svc.PlayerScore(ctx, "team-1", "nobody")
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})

			Convey("And a non-positive limit is rejected", func() {
				_, _, err := svc.Leaderboard(ctx, "team-1", 0, service.OrderBest)
				So(errors.Is(err, service.ErrInvalidLimit), ShouldBeTrue)
			})

			Convey("And a fresh service hydrates the same run from the store", func() {
				other := service.New(service.WithStore(store), service.WithWorkerCount(1))
				So(other.Start(ctx), ShouldBeNil)
				defer other.Stop(ctx)

				latest, err := other.LatestRun(ctx, "team-1")
				So(err, ShouldBeNil)
				So(latest.RunID, ShouldEqual, run.RunID)
				So(latest.ComputedAt.Equal(run.ComputedAt), ShouldBeTrue)
			})

			Convey("And a failing save leaves the previous results in place", func() {
				store.failSaveRun.Store(true)
				_, err := svc.RecordAttendance(ctx, "team-1", []model.Record{
					training("c1", "carol", model.OutcomePresentOnTime, day),
				})
				So(err, ShouldBeNil)

				_, err = svc.Recompute(ctx, model.NewRecomputeJob("team-1", model.TriggerManual, clock))
				So(service.IsRetryable(err), ShouldBeTrue)
				So(errors.Is(err, errStoreDown), ShouldBeTrue)

				latest, err := svc.LatestRun(ctx, "team-1")
				So(err, ShouldBeNil)
				So(latest.RunID, ShouldEqual, run.RunID)
				worst, _, err := svc.Leaderboard(ctx, "team-1", 1, service.OrderWorst)
				So(err, ShouldBeNil)
				So(worst[0].PlayerID, ShouldEqual, "carol")
			})
		})

		Convey("When a team without settings is recomputed", func() {
			_, err := svc.RecordAttendance(ctx, "team-2", []model.Record{
				training("x1", "xavier", model.OutcomePresentOnTime, day),
			})
			So(err, ShouldBeNil)
			_, err = svc.Recompute(ctx, model.NewRecomputeJob("team-2", model.TriggerSchedule, clock))

			Convey("Then it fails fast without a retry and without results", func() {
				So(errors.Is(err, service.ErrConfigurationMissing), ShouldBeTrue)
				So(service.IsRetryable(err), ShouldBeFalse)

				_, err = svc.LatestRun(ctx, "team-2")
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a record is re-sent for another team", func() {
			_, err := svc.RecordAttendance(ctx, "team-2", []model.Record{
				training("a1", "alice", model.OutcomeAbsent, day),
			})

			Convey("Then it is rejected as invalid input", func() {
				So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(err, repository.ErrTeamMismatch), ShouldBeTrue)
			})
		})

		Convey("When settings are read back", func() {
			st, err := svc.Settings(ctx, "team-1")
			So(err, ShouldBeNil)
			So(st.MinEvents, ShouldEqual, 1)
			So(st.Active, ShouldBeTrue)

			_, err = svc.Settings(ctx, "team-9")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)

			teams, err := svc.ActiveTeams(ctx)
			So(err, ShouldBeNil)
			So(teams, ShouldResemble, []string{"team-1"})
		})
	})
}

func TestServiceEvaluationWindow(t *testing.T) {
	Convey("Given a service with a seven day window", t, func() {
		ctx := context.Background()
		clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		svc := service.New(
			service.WithStore(openStore(t)),
			service.WithWorkerCount(1),
			service.WithEvaluationWindow(7),
			service.WithClock(func() time.Time { return clock }),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		_, err := svc.SaveSettings(ctx, simpleSettings("team-1", 1))
		So(err, ShouldBeNil)
		_, err = svc.RecordAttendance(ctx, "team-1", []model.Record{
			training("recent", "alice", model.OutcomePresentOnTime, clock.Add(-48*time.Hour)),
			training("old", "alice", model.OutcomeAbsent, clock.Add(-30*24*time.Hour)),
			training("old-bob", "bob", model.OutcomeAbsent, clock.Add(-30*24*time.Hour)),
			training("future", "alice", model.OutcomeNoResponse, clock.Add(30*24*time.Hour)),
			training("future-carol", "carol", model.OutcomeAbsent, clock.Add(time.Hour)),
		})
		So(err, ShouldBeNil)
		_, err = svc.RecordMVPAwards(ctx, "team-1", []model.MVPAward{
			{AwardID: "m-old", PlayerID: "alice", MatchID: "g1", AwardedAt: clock.Add(-60 * 24 * time.Hour)},
		})
		So(err, ShouldBeNil)

		Convey("When the team is recomputed", func() {
			run, err := svc.Recompute(ctx, model.NewRecomputeJob("team-1", model.TriggerSchedule, clock))
			So(err, ShouldBeNil)

			Convey("Then only records inside the window count", func() {
				So(run.RecordsProcessed, ShouldEqual, 1)
				So(run.PlayersScored, ShouldEqual, 1)

				sc, err := svc.PlayerScore(ctx, "team-1", "alice")
				So(err, ShouldBeNil)
				So(sc.TotalEvents, ShouldEqual, 1)

				_, err = svc.PlayerScore(ctx, "team-1", "bob")
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})

			Convey("And records dated after the run are not scored", func() {
				sc, err := svc.PlayerScore(ctx, "team-1", "alice")
				So(err, ShouldBeNil)
				So(sc.NormalizedScore, ShouldEqual, 100)

				_, err = svc.PlayerScore(ctx, "team-1", "carol")
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})
		})
	})

	Convey("Given a service scoring all history", t, func() {
		ctx := context.Background()
		clock := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
		svc := service.New(
			service.WithStore(openStore(t)),
			service.WithWorkerCount(1),
			service.WithClock(func() time.Time { return clock }),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		settings := simpleSettings("team-1", 1)
		settings.MVPBonus = 5
		_, err := svc.SaveSettings(ctx, settings)
		So(err, ShouldBeNil)
		_, err = svc.RecordAttendance(ctx, "team-1", []model.Record{
			training("r1", "p1", model.OutcomePresentOnTime, clock.Add(-time.Hour)),
			training("r2", "p1", model.OutcomeNoResponse, clock.Add(30*24*time.Hour)),
			training("r3", "p2", model.OutcomeAbsent, clock.Add(-time.Hour)),
		})
		So(err, ShouldBeNil)
		_, err = svc.RecordMVPAwards(ctx, "team-1", []model.MVPAward{
			{AwardID: "m-future", PlayerID: "p2", MatchID: "g9", AwardedAt: clock.Add(24 * time.Hour)},
		})
		So(err, ShouldBeNil)

		Convey("When the team is recomputed", func() {
			run, err := svc.Recompute(ctx, model.NewRecomputeJob("team-1", model.TriggerManual, clock))
			So(err, ShouldBeNil)

			Convey("Then future-dated records and awards are ignored", func() {
				So(run.RecordsProcessed, ShouldEqual, 2)

				p1, err := svc.PlayerScore(ctx, "team-1", "p1")
				So(err, ShouldBeNil)
				So(p1.TotalEvents, ShouldEqual, 1)
				So(p1.NormalizedScore, ShouldEqual, 100)

				p2, err := svc.PlayerScore(ctx, "team-1", "p2")
				So(err, ShouldBeNil)
				So(p2.NormalizedScore, ShouldEqual, 0)
			})
		})
	})
}

func TestServiceQueueing(t *testing.T) {
	Convey("Given a single worker held busy by a gated team", t, func() {
		ctx := context.Background()
		store := &gatedStore{
			Store:    openStore(t),
			gateTeam: "blocker",
			gate:     make(chan struct{}),
			entered:  make(chan struct{}, 1),
		}
		svc := service.New(
			service.WithStore(store),
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)
		var release sync.Once
		defer release.Do(func() { close(store.gate) })

		for _, team := range []string{"blocker", "team-1", "team-2"} {
			_, err := svc.SaveSettings(ctx, simpleSettings(team, 0))
			So(err, ShouldBeNil)
			_, err = svc.RecordAttendance(ctx, team, []model.Record{
				training(team+"-r1", team+"-p1", model.OutcomePresentOnTime, time.Now().Add(-time.Hour)),
			})
			So(err, ShouldBeNil)
		}

		coalesced, err := svc.EnqueueRecompute(ctx, "blocker", model.TriggerManual)
		So(err, ShouldBeNil)
		So(coalesced, ShouldBeFalse)
		select {
		case <-store.entered:
		case <-time.After(5 * time.Second):
			t.Fatal("worker never picked up the blocking job")
		}

		Convey("When the same team is requested twice while pending", func() {
			c1, err1 := svc.EnqueueRecompute(ctx, "team-1", model.TriggerManual)
			c2, err2 := svc.EnqueueRecompute(ctx, "team-1", model.TriggerManual)

			Convey("Then the second request is coalesced into the first", func() {
				So(err1, ShouldBeNil)
				So(c1, ShouldBeFalse)
				So(err2, ShouldBeNil)
				So(c2, ShouldBeTrue)
				So(svc.GetStats()["pendingTeams"], ShouldEqual, int64(1))
			})

			Convey("And the queue reports backpressure for another team", func() {
				c3, err3 := svc.EnqueueRecompute(ctx, "team-2", model.TriggerManual)
				So(errors.Is(err3, service.ErrQueueFull), ShouldBeTrue)
				So(c3, ShouldBeFalse)
			})

			Convey("And once released every queued team gets one run", func() {
				release.Do(func() { close(store.gate) })
				ok := waitFor(func() bool {
					_, err := svc.LatestRun(ctx, "team-1")
					return err == nil
				})
				So(ok, ShouldBeTrue)

				run, err := svc.LatestRun(ctx, "blocker")
				So(err, ShouldBeNil)
				So(run.Trigger, ShouldEqual, model.TriggerManual)

				So(waitFor(func() bool {
					return svc.GetStats()["pendingTeams"] == int64(0)
				}), ShouldBeTrue)

				c4, err4 := svc.EnqueueRecompute(ctx, "team-1", model.TriggerSchedule)
				So(err4, ShouldBeNil)
				So(c4, ShouldBeFalse)
			})
		})
	})
}

func TestServiceStopWithQueuedJobs(t *testing.T) {
	Convey("Given a busy worker and a backlog of queued teams", t, func() {
		ctx := context.Background()
		sqlite := openStore(t)
		store := &gatedStore{
			Store:    sqlite,
			gateTeam: "blocker",
			gate:     make(chan struct{}),
			entered:  make(chan struct{}, 1),
		}
		svc := service.New(
			service.WithStore(store),
			service.WithWorkerCount(1),
			service.WithQueueSize(64),
		)
		So(svc.Start(ctx), ShouldBeNil)
		var release sync.Once
		defer release.Do(func() { close(store.gate) })

		teams := []string{"blocker"}
		for i := 0; i < 20; i++ {
			teams = append(teams, fmt.Sprintf("queued-%02d", i))
		}
		for _, team := range teams {
			_, err := svc.SaveSettings(ctx, simpleSettings(team, 0))
			So(err, ShouldBeNil)
		}
		for _, team := range teams {
			_, err := svc.EnqueueRecompute(ctx, team, model.TriggerSchedule)
			So(err, ShouldBeNil)
			if team == "blocker" {
				select {
				case <-store.entered:
				case <-time.After(5 * time.Second):
					t.Fatal("worker never picked up the blocking job")
				}
			}
		}

		Convey("When the service is stopped", func() {
			stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			stopped := make(chan time.Duration, 1)
			begin := time.Now()
			go func() {
				svc.Stop(stopCtx)
				stopped <- time.Since(begin)
			}()

			So(waitFor(func() bool { return svc.GetStats()["started"] == false }), ShouldBeTrue)
			release.Do(func() { close(store.gate) })

			var took time.Duration
			select {
			case took = <-stopped:
			case <-time.After(8 * time.Second):
				t.Fatal("Stop did not return")
			}

			Convey("Then it returns without waiting for its deadline", func() {
				So(took < 5*time.Second, ShouldBeTrue)
			})

			Convey("And the in-flight run completes while queued jobs are dropped", func() {
				_, err := sqlite.LatestRun(ctx, "blocker")
				So(err, ShouldBeNil)
				_, err = sqlite.LatestRun(ctx, "queued-00")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("And new work is refused", func() {
				_, err := svc.EnqueueRecompute(ctx, "queued-00", model.TriggerManual)
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})
	})
}

func TestServiceConcurrentRecompute(t *testing.T) {
	Convey("Given many concurrent recomputes of one team", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithStore(openStore(t)), service.WithWorkerCount(2))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		_, err := svc.SaveSettings(ctx, simpleSettings("team-1", 0))
		So(err, ShouldBeNil)
		records := make([]model.Record, 0, 20)
		for i := 0; i < 20; i++ {
			records = append(records, training(fmt.Sprintf("r%d", i), fmt.Sprintf("p%d", i%5), model.OutcomePresentOnTime, time.Now().Add(-time.Hour)))
		}
		_, err = svc.RecordAttendance(ctx, "team-1", records)
		So(err, ShouldBeNil)

		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			go func() {
				_, err := svc.Recompute(ctx, model.NewRecomputeJob("team-1", model.TriggerManual, time.Now()))
				errs <- err
			}()
		}

		Convey("Then every run succeeds and the board holds a full ranking", func() {
			for i := 0; i < 8; i++ {
				So(<-errs, ShouldBeNil)
			}
			top, _, err := svc.Leaderboard(ctx, "team-1", 100, service.OrderBest)
			So(err, ShouldBeNil)
			So(len(top), ShouldEqual, 5)
		})
	})
}
