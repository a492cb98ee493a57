package reliability

import (
	"context"
	"fmt"

	"github.com/okian/rollcall/internal/domain/model"
)

// Input is one team's snapshot.
type Input struct {
	TeamID   string
	Records  []model.RawRecord
	Awards   []model.MVPAward
	Settings *model.ScoreSettings
}

// Result is the output of Compute.
type Result struct {
	// Scores has every aggregated player in first-seen order, ranks filled
	// in for the eligible ones.
	Scores []model.PlayerScore
	// Ranked holds the eligible players best first.
	Ranked      []model.PlayerScore
	Aggregation *Aggregation
}

// Compute runs the whole pipeline. It fails only when settings are missing.
func Compute(ctx context.Context, in Input) (*Result, error) {
	if in.Settings == nil {
		return nil, fmt.Errorf("team %s: %w", in.TeamID, ErrSettingsMissing)
	}

	agg := Aggregate(ctx, in.Records, in.Awards)
	scores := make([]model.PlayerScore, 0, len(agg.Players))
	for _, id := range agg.Players {
		scores = append(scores, Score(id, agg.Tallies[id], in.Settings))
	}

	ranked := Rank(scores)
	rankByPlayer := make(map[string]int, len(ranked))
	for _, r := range ranked {
		rankByPlayer[r.PlayerID] = r.Rank
	}
	for i := range scores {
		scores[i].Rank = rankByPlayer[scores[i].PlayerID]
	}

	return &Result{
		Scores:      scores,
		Ranked:      ranked,
		Aggregation: agg,
	}, nil
}
