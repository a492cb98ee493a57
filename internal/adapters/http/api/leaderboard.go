package api

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/domain/model"
)

const defaultLeaderboardLimit = 10

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, teamID string, n int, order service.Order) ([]model.PlayerScore, model.ScoreRun, error)
	LatestRun(ctx context.Context, teamID string) (model.ScoreRun, error)
}

// LeaderboardHandler handles leaderboard and run summary requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// scoreEntry is the rendered form of a player score. Score is the
// normalized score rounded to the nearest integer.
type scoreEntry struct {
	Rank              int     `json:"rank"`
	PlayerID          string  `json:"player_id"`
	Score             int     `json:"score"`
	NormalizedScore   float64 `json:"normalized_score"`
	RawPoints         float64 `json:"raw_points"`
	TotalEvents       int     `json:"total_events"`
	NoResponseRate    float64 `json:"no_response_rate"`
	MatchPresenceRate float64 `json:"match_presence_rate"`
	MatchLateRate     float64 `json:"match_late_rate"`
	Eligible          bool    `json:"eligible"`
}

func newScoreEntry(ps model.PlayerScore) scoreEntry {
	return scoreEntry{
		Rank:              ps.Rank,
		PlayerID:          ps.PlayerID,
		Score:             int(math.Round(ps.NormalizedScore)),
		NormalizedScore:   ps.NormalizedScore,
		RawPoints:         ps.RawPoints,
		TotalEvents:       ps.TotalEvents,
		NoResponseRate:    ps.NoResponseRate,
		MatchPresenceRate: ps.MatchPresenceRate,
		MatchLateRate:     ps.MatchLateRate,
		Eligible:          ps.Eligible,
	}
}

type runResponse struct {
	RunID            string         `json:"run_id"`
	TeamID           string         `json:"team_id"`
	Trigger          string         `json:"trigger"`
	ComputedAt       string         `json:"computed_at"`
	RecordsProcessed int            `json:"records_processed"`
	RecordsSkipped   int            `json:"records_skipped"`
	SkippedByReason  map[string]int `json:"skipped_by_reason"`
	PlayersScored    int            `json:"players_scored"`
	PlayersRanked    int            `json:"players_ranked"`
}

func newRunResponse(run model.ScoreRun) runResponse {
	skipped := run.SkippedByReason
	if skipped == nil {
		skipped = map[string]int{}
	}
	return runResponse{
		RunID:            run.RunID.String(),
		TeamID:           run.TeamID,
		Trigger:          string(run.Trigger),
		ComputedAt:       run.ComputedAt.UTC().Format(time.RFC3339Nano),
		RecordsProcessed: run.RecordsProcessed,
		RecordsSkipped:   run.RecordsSkipped,
		SkippedByReason:  skipped,
		PlayersScored:    run.PlayersScored,
		PlayersRanked:    run.PlayersRanked,
	}
}

type leaderboardResponse struct {
	TeamID     string       `json:"team_id"`
	RunID      string       `json:"run_id"`
	ComputedAt string       `json:"computed_at"`
	Order      string       `json:"order"`
	Entries    []scoreEntry `json:"entries"`
}

// HandleGetLeaderboard handles GET /teams/{team}/leaderboard?limit=N&order=best|worst.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	team, ok := teamID(w, r, op)
	if !ok {
		return
	}

	n := defaultLeaderboardLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		n, err = strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, codeBadRequest, NewKind(op, ErrBadRequest))
			return
		}
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, codeLimitExceeded, NewKind(op, ErrLimitExceeded))
		return
	}
	order, err := service.ParseOrder(r.URL.Query().Get("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err))
		return
	}

	scores, run, err := h.deps.Leaderboard(r.Context(), team, n, order)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	entries := make([]scoreEntry, 0, len(scores))
	for _, ps := range scores {
		entries = append(entries, newScoreEntry(ps))
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{
		TeamID:     team,
		RunID:      run.RunID.String(),
		ComputedAt: run.ComputedAt.UTC().Format(time.RFC3339Nano),
		Order:      string(order),
		Entries:    entries,
	})
}

// HandleGetLatestRun handles GET /teams/{team}/runs/latest.
func (h *LeaderboardHandler) HandleGetLatestRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_latest_run"
	team, ok := teamID(w, r, op)
	if !ok {
		return
	}
	run, err := h.deps.LatestRun(r.Context(), team)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(run))
}
