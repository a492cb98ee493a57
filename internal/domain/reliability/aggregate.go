// Package reliability turns attendance outcomes into a 0-100 reliability
// score per player and ranks the squad.
//
// The pipeline is pure and synchronous: Aggregate -> Score -> Eligible ->
// Rank. Compute runs all four over one snapshot.
package reliability

import (
	"context"
	"strings"

	"github.com/okian/rollcall/internal/domain/dedupe"
	"github.com/okian/rollcall/internal/domain/model"
)

// Tally holds one player's outcome counts.
type Tally struct {
	Training  [model.OutcomeCount]int
	Match     [model.OutcomeCount]int
	MVPAwards int
}

// Add counts one outcome.
func (t *Tally) Add(kind model.EventKind, o model.Outcome) {
	if kind == model.EventKindMatch {
		t.Match[o]++
		return
	}
	t.Training[o]++
}

// TrainingEvents is the number of training sessions observed.
func (t *Tally) TrainingEvents() int { return sum(t.Training) }

// MatchEvents is the number of matches observed.
func (t *Tally) MatchEvents() int { return sum(t.Match) }

// Total is the number of events of both kinds.
func (t *Tally) Total() int { return t.TrainingEvents() + t.MatchEvents() }

func sum(counts [model.OutcomeCount]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

// Aggregation is the output of Aggregate.
type Aggregation struct {
	Tallies map[string]*Tally
	// Players lists player ids in first-seen order; ranking ties keep it.
	Players []string
	// Processed counts records that reached a tally.
	Processed int
	// Skipped counts dropped records by reason.
	Skipped map[string]int
}

// SkippedTotal is the number of dropped records.
func (a *Aggregation) SkippedTotal() int {
	n := 0
	for _, c := range a.Skipped {
		n += c
	}
	return n
}

func (a *Aggregation) tally(playerID string) *Tally {
	t, ok := a.Tallies[playerID]
	if !ok {
		t = &Tally{}
		a.Tallies[playerID] = t
		a.Players = append(a.Players, playerID)
	}
	return t
}

// Aggregate classifies raw records into per-player tallies and counts MVP
// awards. Malformed or repeated records are skipped and reported, never
// fatal.
func Aggregate(ctx context.Context, records []model.RawRecord, awards []model.MVPAward) *Aggregation {
	agg := &Aggregation{
		Tallies: make(map[string]*Tally),
		Skipped: make(map[string]int),
	}
	seen := dedupe.NewInMemoryDeduper()

	for i := range records {
		rec := &records[i]
		playerID := strings.TrimSpace(rec.PlayerID)
		if playerID == "" {
			agg.Skipped[SkipMissingPlayer]++
			continue
		}
		kind, err := model.ParseEventKind(rec.EventKind)
		if err != nil {
			agg.Skipped[SkipUnknownEventKind]++
			continue
		}
		outcome, err := model.ParseOutcome(rec.Outcome)
		if err != nil {
			agg.Skipped[SkipUnknownOutcome]++
			continue
		}
		if rec.RecordID != "" && seen.SeenAndRecord(ctx, rec.RecordID) {
			agg.Skipped[SkipDuplicate]++
			continue
		}
		agg.tally(playerID).Add(kind, outcome)
		agg.Processed++
	}

	awarded := dedupe.NewInMemoryDeduper()
	for _, a := range awards {
		playerID := strings.TrimSpace(a.PlayerID)
		if playerID == "" {
			continue
		}
		if a.AwardID != "" && awarded.SeenAndRecord(ctx, a.AwardID) {
			continue
		}
		agg.tally(playerID).MVPAwards++
	}

	return agg
}
