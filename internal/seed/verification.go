package seed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/reliability"
)

// ErrVerification is returned when a leaderboard breaks a ranking invariant
// or disagrees with the local computation.
var ErrVerification = errors.New("leaderboard verification failed")

const scoreTolerance = 1e-9

// verifyLeaderboard checks that ranks are 1..n, scores are within 0..100 and
// non-increasing, and every entry is an eligible squad member.
func verifyLeaderboard(sq Squad, lb Leaderboard) error {
	for i, e := range lb.Entries {
		switch {
		case e.Rank != i+1:
			return fmt.Errorf("%w: %s: entry %d has rank %d", ErrVerification, sq.TeamID, i, e.Rank)
		case e.NormalizedScore < 0 || e.NormalizedScore > 100:
			return fmt.Errorf("%w: %s: %s scored %.2f", ErrVerification, sq.TeamID, e.PlayerID, e.NormalizedScore)
		case !e.Eligible:
			return fmt.Errorf("%w: %s: ineligible player %s is ranked", ErrVerification, sq.TeamID, e.PlayerID)
		case i > 0 && e.NormalizedScore > lb.Entries[i-1].NormalizedScore:
			return fmt.Errorf("%w: %s: %s outranked by a lower score", ErrVerification, sq.TeamID, e.PlayerID)
		}
		if _, ok := sq.Profiles[e.PlayerID]; !ok {
			return fmt.Errorf("%w: %s: unknown player %s", ErrVerification, sq.TeamID, e.PlayerID)
		}
	}
	return nil
}

// ProfileMean is the mean normalized score of one attendance habit.
type ProfileMean struct {
	Profile string
	Mean    float64
	Players int
}

// profileMeans averages leaderboard scores per profile, most reliable
// profile first.
func profileMeans(sq Squad, lb Leaderboard) []ProfileMean {
	sums := map[string]*ProfileMean{}
	for _, e := range lb.Entries {
		name := sq.Profiles[e.PlayerID]
		pm, ok := sums[name]
		if !ok {
			pm = &ProfileMean{Profile: name}
			sums[name] = pm
		}
		pm.Mean += e.NormalizedScore
		pm.Players++
	}
	out := make([]ProfileMean, 0, len(sums))
	for _, pm := range sums {
		pm.Mean /= float64(pm.Players)
		out = append(out, *pm)
	}
	sort.Slice(out, func(i, j int) bool {
		return profileRank(out[i].Profile) < profileRank(out[j].Profile)
	})
	return out
}

// inverted reports whether the most reliable profile scored below the least
// reliable one.
func inverted(means []ProfileMean) bool {
	if len(means) < 2 {
		return false
	}
	return means[0].Mean < means[len(means)-1].Mean
}

// expectedRanking scores the squad locally the way the service does for a
// run computed at computedAt over a window of windowDays (0 = all history).
func expectedRanking(ctx context.Context, sq Squad, computedAt time.Time, windowDays int) ([]model.PlayerScore, error) {
	var since time.Time
	if windowDays > 0 {
		since = computedAt.Add(-time.Duration(windowDays) * 24 * time.Hour)
	}
	inWindow := func(at time.Time) bool {
		return !at.Before(since) && !at.After(computedAt)
	}

	records := make([]model.RawRecord, 0, len(sq.Records))
	for _, r := range sq.Records {
		at, err := time.Parse(time.RFC3339, r.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.RecordID, err)
		}
		at = at.UTC().Truncate(time.Millisecond)
		if !inWindow(at) {
			continue
		}
		records = append(records, model.RawRecord{
			RecordID:   r.RecordID,
			TeamID:     sq.TeamID,
			PlayerID:   r.PlayerID,
			SessionID:  r.SessionID,
			EventKind:  r.EventKind,
			Outcome:    r.Outcome,
			OccurredAt: at,
		})
	}
	// Same order the store reads them back in.
	slices.SortFunc(records, func(a, b model.RawRecord) int {
		if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
			return c
		}
		return strings.Compare(a.RecordID, b.RecordID)
	})

	awards := make([]model.MVPAward, 0, len(sq.Awards))
	for _, a := range sq.Awards {
		at, err := time.Parse(time.RFC3339, a.AwardedAt)
		if err != nil {
			return nil, fmt.Errorf("award %s: %w", a.AwardID, err)
		}
		at = at.UTC().Truncate(time.Millisecond)
		if !inWindow(at) {
			continue
		}
		awards = append(awards, model.MVPAward{
			AwardID:   a.AwardID,
			TeamID:    sq.TeamID,
			PlayerID:  a.PlayerID,
			MatchID:   a.MatchID,
			AwardedAt: at,
		})
	}

	st := sq.Settings
	res, err := reliability.Compute(ctx, reliability.Input{
		TeamID:  sq.TeamID,
		Records: records,
		Awards:  awards,
		Settings: &model.ScoreSettings{
			TeamID:      sq.TeamID,
			Training:    toModelWeights(st.Training),
			Match:       toModelWeights(st.Match),
			MVPBonus:    st.MVPBonus,
			MVPPerAward: st.MVPPerAward,
			MinEvents:   st.MinEvents,
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Ranked, nil
}

func toModelWeights(w Weights) model.Weights {
	return model.Weights{OnTime: w.PresentOnTime, Late: w.PresentLate, Absent: w.Absent, NoResponse: w.NoResponse}
}

// compareLeaderboard checks the served top entries against the local
// ranking: same players in the same order with the same scores.
func compareLeaderboard(sq Squad, lb Leaderboard, want []model.PlayerScore, limit int) error {
	if n := min(len(want), limit); len(lb.Entries) != n {
		return fmt.Errorf("%w: %s: served %d entries, expected %d", ErrVerification, sq.TeamID, len(lb.Entries), n)
	}
	for i, e := range lb.Entries {
		w := want[i]
		switch {
		case e.PlayerID != w.PlayerID:
			return fmt.Errorf("%w: %s: rank %d is %s, expected %s", ErrVerification, sq.TeamID, i+1, e.PlayerID, w.PlayerID)
		case e.Rank != w.Rank:
			return fmt.Errorf("%w: %s: %s has rank %d, expected %d", ErrVerification, sq.TeamID, e.PlayerID, e.Rank, w.Rank)
		case math.Abs(e.NormalizedScore-w.NormalizedScore) > scoreTolerance:
			return fmt.Errorf("%w: %s: %s scored %.6f, expected %.6f", ErrVerification, sq.TeamID, e.PlayerID, e.NormalizedScore, w.NormalizedScore)
		case e.TotalEvents != w.TotalEvents:
			return fmt.Errorf("%w: %s: %s has %d events, expected %d", ErrVerification, sq.TeamID, e.PlayerID, e.TotalEvents, w.TotalEvents)
		}
	}
	return nil
}
