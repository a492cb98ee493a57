package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// IngestDependencies defines the interface for attendance and award ingestion.
type IngestDependencies interface {
	RecordAttendance(ctx context.Context, teamID string, records []model.Record) (int, error)
	RecordMVPAwards(ctx context.Context, teamID string, awards []model.MVPAward) (int, error)
}

// IngestHandler handles batch uploads of attendance events.
type IngestHandler struct {
	deps IngestDependencies
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(deps IngestDependencies) *IngestHandler {
	return &IngestHandler{deps: deps}
}

// attendanceRecord mirrors the OpenAPI schema for one attendance record.
type attendanceRecord struct {
	RecordID   string `json:"record_id"`
	PlayerID   string `json:"player_id"`
	SessionID  string `json:"session_id"`
	EventKind  string `json:"event_kind"`
	Outcome    string `json:"outcome"`
	OccurredAt string `json:"occurred_at"`
}

func (a attendanceRecord) record(teamID string) (model.Record, error) {
	kind, err := model.ParseEventKind(a.EventKind)
	if err != nil {
		return model.Record{}, fmt.Errorf("record %q: %w", a.RecordID, err)
	}
	outcome, err := model.ParseOutcome(a.Outcome)
	if err != nil {
		return model.Record{}, fmt.Errorf("record %q: %w", a.RecordID, err)
	}
	at, err := time.Parse(time.RFC3339, a.OccurredAt)
	if err != nil {
		return model.Record{}, fmt.Errorf("record %q: invalid occurred_at; must be RFC3339", a.RecordID)
	}
	return model.Record{
		RecordID:   a.RecordID,
		TeamID:     teamID,
		PlayerID:   a.PlayerID,
		SessionID:  a.SessionID,
		Kind:       kind,
		Outcome:    outcome,
		OccurredAt: at.UTC(),
	}, nil
}

type attendanceRequest struct {
	Records []attendanceRecord `json:"records"`
}

type mvpAward struct {
	AwardID   string `json:"award_id"`
	PlayerID  string `json:"player_id"`
	MatchID   string `json:"match_id"`
	AwardedAt string `json:"awarded_at"`
}

type mvpAwardsRequest struct {
	Awards []mvpAward `json:"awards"`
}

type ingestResponse struct {
	Accepted int `json:"accepted"`
}

// HandlePostAttendance handles POST /teams/{team}/attendance.
func (h *IngestHandler) HandlePostAttendance(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_attendance"
	team, ok := teamID(w, r, op)
	if !ok {
		return
	}
	var req attendanceRequest
	if !decodeJSON(w, r, op, &req) {
		return
	}
	records := make([]model.Record, 0, len(req.Records))
	for _, a := range req.Records {
		rec, err := a.record(team)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err))
			return
		}
		records = append(records, rec)
	}
	n, err := h.deps.RecordAttendance(r.Context(), team, records)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Accepted: n})
}

// HandlePostMVPAwards handles POST /teams/{team}/mvp-awards.
func (h *IngestHandler) HandlePostMVPAwards(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_mvp_awards"
	team, ok := teamID(w, r, op)
	if !ok {
		return
	}
	var req mvpAwardsRequest
	if !decodeJSON(w, r, op, &req) {
		return
	}
	awards := make([]model.MVPAward, 0, len(req.Awards))
	for _, a := range req.Awards {
		at, err := time.Parse(time.RFC3339, a.AwardedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest,
				WrapKind(op, ErrBadRequest, fmt.Errorf("award %q: invalid awarded_at; must be RFC3339", a.AwardID)))
			return
		}
		awards = append(awards, model.MVPAward{
			AwardID:   a.AwardID,
			TeamID:    team,
			PlayerID:  a.PlayerID,
			MatchID:   a.MatchID,
			AwardedAt: at.UTC(),
		})
	}
	n, err := h.deps.RecordMVPAwards(r.Context(), team, awards)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Accepted: n})
}
