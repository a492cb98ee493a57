package reliability

import (
	"slices"

	"github.com/okian/rollcall/internal/domain/model"
)

// Eligible reports whether a player has enough events to be ranked.
func Eligible(totalEvents, minEvents int) bool {
	return totalEvents >= minEvents
}

// Compare orders two scores best first: normalized score desc, then
// no-response rate asc, match presence desc, match late rate asc.
func Compare(a, b *model.PlayerScore) int {
	switch {
	case a.NormalizedScore != b.NormalizedScore:
		return descending(a.NormalizedScore, b.NormalizedScore)
	case a.NoResponseRate != b.NoResponseRate:
		return ascending(a.NoResponseRate, b.NoResponseRate)
	case a.MatchPresenceRate != b.MatchPresenceRate:
		return descending(a.MatchPresenceRate, b.MatchPresenceRate)
	case a.MatchLateRate != b.MatchLateRate:
		return ascending(a.MatchLateRate, b.MatchLateRate)
	default:
		return 0
	}
}

func ascending(a, b float64) int {
	if a < b {
		return -1
	}
	return 1
}

func descending(a, b float64) int { return ascending(b, a) }

// Rank returns the eligible scores stably sorted best first with 1-based
// ranks assigned. The input slice is not modified.
func Rank(scores []model.PlayerScore) []model.PlayerScore {
	ranked := make([]model.PlayerScore, 0, len(scores))
	for _, s := range scores {
		if s.Eligible {
			ranked = append(ranked, s)
		}
	}
	slices.SortStableFunc(ranked, func(a, b model.PlayerScore) int {
		return Compare(&a, &b)
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Worst returns the ranking reversed, worst first. Ranks are kept.
func Worst(ranked []model.PlayerScore) []model.PlayerScore {
	out := slices.Clone(ranked)
	slices.Reverse(out)
	return out
}
