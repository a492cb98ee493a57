package seed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/adapters/http/api"
	"github.com/okian/rollcall/internal/adapters/repository"
	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestGenerate(t *testing.T) {
	Convey("Given a seeded configuration", t, func() {
		cfg := &Config{Teams: 2, PlayersPerTeam: 6, Weeks: 3, Seed: 42}
		now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

		Convey("When generating twice with the same seed", func() {
			a := Generate(context.Background(), cfg, now)
			b := Generate(context.Background(), cfg, now)

			Convey("Then the datasets are identical", func() {
				So(a, ShouldResemble, b)
			})

			Convey("Then every player has one record per session", func() {
				So(len(a), ShouldEqual, 2)
				sessions := 3 * (trainingsPerWeek + matchesPerWeek)
				So(len(a[0].Records), ShouldEqual, 6*sessions)
				So(a[0].TeamID, ShouldEqual, "squad-01")
				So(a[0].Profiles["squad-01-p01"], ShouldEqual, "reliable")
				So(a[0].Profiles["squad-01-p04"], ShouldEqual, "ghost")
			})

			Convey("Then record ids are unique and times are in the past", func() {
				seen := map[string]bool{}
				for _, r := range a[0].Records {
					So(seen[r.RecordID], ShouldBeFalse)
					seen[r.RecordID] = true
					at, err := time.Parse(time.RFC3339, r.OccurredAt)
					So(err, ShouldBeNil)
					So(at.Before(now), ShouldBeTrue)
				}
			})

			Convey("Then at most one MVP is awarded per match", func() {
				So(len(a[0].Awards), ShouldBeLessThanOrEqualTo, 3*matchesPerWeek)
			})
		})

		Convey("When a different seed is used", func() {
			a := Generate(context.Background(), cfg, now)
			cfg.Seed = 43
			b := Generate(context.Background(), cfg, now)

			Convey("Then the datasets differ", func() {
				So(a[0].Records[0].RecordID, ShouldNotEqual, b[0].Records[0].RecordID)
			})
		})
	})
}

func TestVerifyLeaderboard(t *testing.T) {
	Convey("Given a squad and its leaderboard", t, func() {
		sq := Squad{TeamID: "squad-01", Profiles: map[string]string{"a": "reliable", "b": "ghost"}}
		lb := Leaderboard{Entries: []Entry{
			{Rank: 1, PlayerID: "a", NormalizedScore: 90, Eligible: true},
			{Rank: 2, PlayerID: "b", NormalizedScore: 20, Eligible: true},
		}}

		Convey("When it is well formed", func() {
			So(verifyLeaderboard(sq, lb), ShouldBeNil)

			means := profileMeans(sq, lb)
			So(len(means), ShouldEqual, 2)
			So(means[0].Profile, ShouldEqual, "reliable")
			So(inverted(means), ShouldBeFalse)
		})

		Convey("When scores increase down the ranking", func() {
			lb.Entries[1].NormalizedScore = 95
			So(errors.Is(verifyLeaderboard(sq, lb), ErrVerification), ShouldBeTrue)
			So(inverted(profileMeans(sq, lb)), ShouldBeTrue)
		})

		Convey("When ranks skip", func() {
			lb.Entries[1].Rank = 3
			So(errors.Is(verifyLeaderboard(sq, lb), ErrVerification), ShouldBeTrue)
		})

		Convey("When an unknown player appears", func() {
			lb.Entries[1].PlayerID = "stranger"
			So(errors.Is(verifyLeaderboard(sq, lb), ErrVerification), ShouldBeTrue)
		})
	})
}

func TestExpectedRanking(t *testing.T) {
	Convey("Given a small squad with one stale and one future record", t, func() {
		ctx := context.Background()
		at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		rfc := func(d time.Duration) string { return at.Add(d).Format(time.RFC3339) }
		sq := Squad{
			TeamID: "squad-01",
			Settings: Settings{
				Training:  Weights{PresentOnTime: 1, PresentLate: 0.5, Absent: -0.5, NoResponse: -1},
				Match:     Weights{PresentOnTime: 2, PresentLate: 1, Absent: -1, NoResponse: -2},
				MinEvents: 1,
			},
			Profiles: map[string]string{"a": "reliable", "b": "flaky"},
			Records: []Record{
				{RecordID: "r2", PlayerID: "b", SessionID: "s1", EventKind: "training", Outcome: "absent", OccurredAt: rfc(-time.Hour)},
				{RecordID: "r1", PlayerID: "a", SessionID: "s1", EventKind: "training", Outcome: "present_on_time", OccurredAt: rfc(-time.Hour)},
				{RecordID: "r0", PlayerID: "a", SessionID: "s0", EventKind: "training", Outcome: "absent", OccurredAt: rfc(-30 * 24 * time.Hour)},
				{RecordID: "r9", PlayerID: "b", SessionID: "s9", EventKind: "training", Outcome: "no_response", OccurredAt: rfc(time.Hour)},
			},
		}

		Convey("When scored over a seven day window", func() {
			want, err := expectedRanking(ctx, sq, at, 7)

			Convey("Then stale and future records are left out", func() {
				So(err, ShouldBeNil)
				So(len(want), ShouldEqual, 2)
				So(want[0].PlayerID, ShouldEqual, "a")
				So(want[0].NormalizedScore, ShouldEqual, 100)
				So(want[1].PlayerID, ShouldEqual, "b")
				So(want[1].NormalizedScore, ShouldEqual, 25)
				So(want[1].TotalEvents, ShouldEqual, 1)
			})

			Convey("Then a matching leaderboard passes", func() {
				lb := Leaderboard{Entries: []Entry{
					{Rank: 1, PlayerID: "a", NormalizedScore: 100, TotalEvents: 1, Eligible: true},
					{Rank: 2, PlayerID: "b", NormalizedScore: 25, TotalEvents: 1, Eligible: true},
				}}
				So(compareLeaderboard(sq, lb, want, 10), ShouldBeNil)
				So(compareLeaderboard(sq, Leaderboard{Entries: lb.Entries[:1]}, want, 1), ShouldBeNil)
			})

			Convey("Then a disagreeing leaderboard fails", func() {
				lb := Leaderboard{Entries: []Entry{
					{Rank: 1, PlayerID: "a", NormalizedScore: 100, TotalEvents: 1, Eligible: true},
					{Rank: 2, PlayerID: "b", NormalizedScore: 12.5, TotalEvents: 2, Eligible: true},
				}}
				So(errors.Is(compareLeaderboard(sq, lb, want, 10), ErrVerification), ShouldBeTrue)
				So(errors.Is(compareLeaderboard(sq, Leaderboard{Entries: lb.Entries[:1]}, want, 10), ErrVerification), ShouldBeTrue)
			})
		})

		Convey("When scored over all history", func() {
			want, err := expectedRanking(ctx, sq, at, 0)

			Convey("Then the stale record counts but the future one still does not", func() {
				So(err, ShouldBeNil)
				So(want[0].PlayerID, ShouldEqual, "a")
				So(want[0].TotalEvents, ShouldEqual, 2)
				So(want[0].NormalizedScore, ShouldEqual, 62.5)
				So(want[1].TotalEvents, ShouldEqual, 1)
			})
		})
	})
}

func TestRunAgainstService(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		store, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "seed.db"))
		So(err, ShouldBeNil)
		defer store.Close()

		svc := service.New(service.WithStore(store), service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		mux := http.NewServeMux()
		api.NewServer(svc, svc, 100).Register(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When seeding two squads", func() {
			out := filepath.Join(t.TempDir(), "out", "squads.json")
			stats, err := Run(ctx, &Config{
				BaseURL:        srv.URL,
				Teams:          2,
				PlayersPerTeam: 8,
				Weeks:          4,
				Workers:        2,
				Seed:           7,
				Timeout:        5 * time.Second,
				OutputFile:     out,
			})

			Convey("Then every record is accepted and every player ranked", func() {
				So(err, ShouldBeNil)
				So(stats.TeamsSeeded, ShouldEqual, 2)
				So(stats.RecordsAccepted, ShouldEqual, stats.RecordsGenerated)
				So(stats.PlayersRanked, ShouldEqual, 16)
			})

			Convey("Then the dataset is written", func() {
				data, err := os.ReadFile(out)
				So(err, ShouldBeNil)
				var squads []Squad
				So(json.Unmarshal(data, &squads), ShouldBeNil)
				So(len(squads), ShouldEqual, 2)
			})
		})

		Convey("When the service is unreachable", func() {
			_, err := Run(ctx, &Config{BaseURL: "http://127.0.0.1:1", Teams: 1, PlayersPerTeam: 1, Weeks: 1, Timeout: time.Second})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRunAgainstWindowedService(t *testing.T) {
	Convey("Given a service scoring a two week window", t, func() {
		ctx := context.Background()
		store, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "seed.db"))
		So(err, ShouldBeNil)
		defer store.Close()

		svc := service.New(service.WithStore(store), service.WithWorkerCount(1), service.WithEvaluationWindow(14))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		mux := http.NewServeMux()
		api.NewServer(svc, svc, 100).Register(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When six weeks of history are seeded with the same window", func() {
			_, err := Run(ctx, &Config{
				BaseURL:        srv.URL,
				Teams:          1,
				PlayersPerTeam: 6,
				Weeks:          6,
				Workers:        1,
				Seed:           11,
				WindowDays:     14,
				Timeout:        5 * time.Second,
			})

			Convey("Then the served leaderboard matches the local computation", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When the seed assumes all history instead", func() {
			_, err := Run(ctx, &Config{
				BaseURL:        srv.URL,
				Teams:          1,
				PlayersPerTeam: 6,
				Weeks:          6,
				Workers:        1,
				Seed:           11,
				Timeout:        5 * time.Second,
			})

			Convey("Then the mismatch is reported", func() {
				So(errors.Is(err, ErrVerification), ShouldBeTrue)
			})
		})
	})
}
