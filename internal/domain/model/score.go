package model

import (
	"time"

	"github.com/google/uuid"
)

// PlayerScore is the derived reliability of one player for one run.
type PlayerScore struct {
	PlayerID          string
	RawPoints         float64
	NormalizedScore   float64 // 0..100, unrounded
	TotalEvents       int
	NoResponseRate    float64
	MatchPresenceRate float64
	MatchLateRate     float64
	Eligible          bool
	Rank              int // 1-based, 0 when not ranked
}

// Trigger names what started a recompute.
type Trigger string

// Triggers.
const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
)

// RecomputeJob is a request to recompute one team's scores.
type RecomputeJob struct {
	JobID       uuid.UUID
	TeamID      string
	Trigger     Trigger
	RequestedAt time.Time
}

// NewRecomputeJob creates a job with a fresh id.
func NewRecomputeJob(teamID string, trigger Trigger, now time.Time) RecomputeJob {
	return RecomputeJob{
		JobID:       uuid.New(),
		TeamID:      teamID,
		Trigger:     trigger,
		RequestedAt: now,
	}
}

// ScoreRun is the audit summary of one successful recompute.
type ScoreRun struct {
	RunID            uuid.UUID
	TeamID           string
	Trigger          Trigger
	ComputedAt       time.Time
	RecordsProcessed int
	RecordsSkipped   int
	SkippedByReason  map[string]int
	PlayersScored    int
	PlayersRanked    int
}
