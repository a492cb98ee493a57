package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/rollcall/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func snapshotAt(teamID string, at time.Time, ids ...string) *Snapshot {
	scores := make([]model.PlayerScore, 0, len(ids)+1)
	for i, id := range ids {
		scores = append(scores, model.PlayerScore{PlayerID: id, NormalizedScore: float64(100 - i*10), Eligible: true, Rank: i + 1})
	}
	scores = append(scores, model.PlayerScore{PlayerID: "bench", NormalizedScore: 100})
	run := model.ScoreRun{RunID: uuid.New(), TeamID: teamID, ComputedAt: at}
	return NewSnapshot(run, scores)
}

func TestBoard(t *testing.T) {
	Convey("Given a board without a loader", t, func() {
		ctx := context.Background()
		board := NewBoard()
		now := time.Now()

		Convey("When a team was never published", func() {
			_, err := board.TopN(ctx, "team-1", 5, false)

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a snapshot is published", func() {
			So(board.Publish(snapshotAt("team-1", now, "a", "b", "c")), ShouldBeTrue)

			Convey("Then best and worst views are served", func() {
				best, err := board.TopN(ctx, "team-1", 2, false)
				So(err, ShouldBeNil)
				So(best, ShouldHaveLength, 2)
				So(best[0].PlayerID, ShouldEqual, "a")

				worst, err := board.TopN(ctx, "team-1", 10, true)
				So(err, ShouldBeNil)
				So(worst, ShouldHaveLength, 3)
				So(worst[0].PlayerID, ShouldEqual, "c")
				So(worst[0].Rank, ShouldEqual, 3)
			})

			Convey("And unranked players are still found individually", func() {
				sc, err := board.Player(ctx, "team-1", "bench")
				So(err, ShouldBeNil)
				So(sc.Rank, ShouldEqual, 0)

				_, err = board.Player(ctx, "team-1", "ghost")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("And an invalid limit is rejected", func() {
				_, err := board.TopN(ctx, "team-1", 0, false)
				So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
			})

			Convey("And an older run never replaces a newer one", func() {
				So(board.Publish(snapshotAt("team-1", now.Add(-time.Minute), "z")), ShouldBeFalse)
				So(board.Publish(snapshotAt("team-1", now.Add(time.Minute), "y")), ShouldBeTrue)
				best, err := board.TopN(ctx, "team-1", 1, false)
				So(err, ShouldBeNil)
				So(best[0].PlayerID, ShouldEqual, "y")
				So(board.Teams(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a board with a slow loader", t, func() {
		ctx := context.Background()
		var calls atomic.Int32
		board := NewBoard(WithLoader(func(_ context.Context, teamID string) (*Snapshot, error) {
			calls.Add(1)
			if teamID == "missing" {
				return nil, fmt.Errorf("load: %w", ErrNotFound)
			}
			time.Sleep(20 * time.Millisecond)
			return snapshotAt(teamID, time.Now(), "a"), nil
		}))

		Convey("When many readers ask for the same team at once", func() {
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = board.TopN(ctx, "team-1", 1, false)
				}()
			}
			wg.Wait()

			Convey("Then the loader ran once", func() {
				So(calls.Load(), ShouldEqual, 1)
				_, err := board.Get(ctx, "team-1")
				So(err, ShouldBeNil)
				So(calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the loader finds nothing", func() {
			_, err := board.Get(ctx, "missing")

			Convey("Then ErrNotFound is surfaced", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})
	})

	Convey("Given a board hydrated from the store", t, func() {
		ctx := context.Background()
		store := newTestStore(t)
		run := model.ScoreRun{RunID: uuid.New(), TeamID: "team-1", Trigger: model.TriggerManual, ComputedAt: time.Now()}
		So(store.SaveRun(ctx, run, []model.PlayerScore{
			{PlayerID: "p2", Eligible: true, Rank: 2},
			{PlayerID: "p1", Eligible: true, Rank: 1},
		}), ShouldBeNil)
		board := NewBoard(WithLoader(LoadFromStore(store)))

		Convey("Then the latest run is served after a restart", func() {
			top, err := board.TopN(ctx, "team-1", 5, false)
			So(err, ShouldBeNil)
			So(top, ShouldHaveLength, 2)
			So(top[0].PlayerID, ShouldEqual, "p1")

			snap, err := board.Get(ctx, "team-1")
			So(err, ShouldBeNil)
			So(snap.Run.RunID, ShouldEqual, run.RunID)
		})

		Convey("And unknown teams are not found", func() {
			_, err := board.Get(ctx, "team-9")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})
	})
}
