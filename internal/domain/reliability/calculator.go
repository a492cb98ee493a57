package reliability

import (
	"math"

	"github.com/okian/rollcall/internal/domain/model"
)

const maxScore = 100.0

// Bounds returns the points a player would have with the worst (no
// response) and the best (on time) outcome at every observed event.
func Bounds(t *Tally, s *model.ScoreSettings) (minPoints, maxPoints float64) {
	training := float64(t.TrainingEvents())
	match := float64(t.MatchEvents())
	minPoints = training*s.Training.NoResponse + match*s.Match.NoResponse
	maxPoints = training*s.Training.OnTime + match*s.Match.OnTime
	return minPoints, maxPoints
}

// RawPoints sums weighted outcomes plus the MVP bonus.
func RawPoints(t *Tally, s *model.ScoreSettings) float64 {
	points := 0.0
	for o := model.Outcome(0); o < model.OutcomeCount; o++ {
		points += float64(t.Training[o]) * s.Training.For(o)
		points += float64(t.Match[o]) * s.Match.For(o)
	}
	switch {
	case t.MVPAwards == 0:
	case s.MVPPerAward:
		points += s.MVPBonus * float64(t.MVPAwards)
	default:
		points += s.MVPBonus
	}
	return points
}

// Normalize maps raw points onto 0..100 between the bounds. A degenerate
// range (max == min) scores 0.
func Normalize(raw, minPoints, maxPoints float64) float64 {
	if maxPoints == minPoints {
		return 0
	}
	n := (raw - minPoints) / (maxPoints - minPoints) * maxScore
	if math.IsNaN(n) {
		return 0
	}
	return math.Max(0, math.Min(maxScore, n))
}

// Score computes a player's unranked score.
func Score(playerID string, t *Tally, s *model.ScoreSettings) model.PlayerScore {
	raw := RawPoints(t, s)
	minPoints, maxPoints := Bounds(t, s)
	total := t.Total()
	matches := t.MatchEvents()

	return model.PlayerScore{
		PlayerID:          playerID,
		RawPoints:         raw,
		NormalizedScore:   Normalize(raw, minPoints, maxPoints),
		TotalEvents:       total,
		NoResponseRate:    ratio(t.Training[model.OutcomeNoResponse]+t.Match[model.OutcomeNoResponse], total),
		MatchPresenceRate: ratio(t.Match[model.OutcomePresentOnTime]+t.Match[model.OutcomePresentLate], matches),
		MatchLateRate:     ratio(t.Match[model.OutcomePresentLate], matches),
		Eligible:          Eligible(total, s.MinEvents),
	}
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
