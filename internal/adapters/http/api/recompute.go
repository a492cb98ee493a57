package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/domain/model"
)

// RecomputeDependencies defines the interface for triggering recomputes.
type RecomputeDependencies interface {
	Recompute(ctx context.Context, job model.RecomputeJob) (model.ScoreRun, error)
	EnqueueRecompute(ctx context.Context, teamID string, trigger model.Trigger) (coalesced bool, err error)
}

// RecomputeHandler handles manual recompute requests.
type RecomputeHandler struct {
	deps RecomputeDependencies
}

// NewRecomputeHandler creates a new recompute handler.
func NewRecomputeHandler(deps RecomputeDependencies) *RecomputeHandler {
	return &RecomputeHandler{deps: deps}
}

type ackResponse struct {
	Status    string `json:"status"`
	Coalesced bool   `json:"coalesced"`
}

// HandlePostRecompute handles POST /teams/{team}/recompute. With sync=true
// the run happens inline and its summary is returned.
func (h *RecomputeHandler) HandlePostRecompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_recompute"
	team, ok := teamID(w, r, op)
	if !ok {
		return
	}

	inline := false
	if v := r.URL.Query().Get("sync"); v != "" {
		var err error
		if inline, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err))
			return
		}
	}

	if inline {
		run, err := h.deps.Recompute(r.Context(), model.NewRecomputeJob(team, model.TriggerManual, time.Now().UTC()))
		if err != nil {
			writeServiceError(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, newRunResponse(run))
		return
	}

	coalesced, err := h.deps.EnqueueRecompute(r.Context(), team, model.TriggerManual)
	if errors.Is(err, service.ErrQueueFull) {
		writeError(w, http.StatusTooManyRequests, codeBackpressure, WrapKind(op, ErrBackpressure, err))
		return
	}
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	status := "accepted"
	if coalesced {
		status = "coalesced"
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: status, Coalesced: coalesced})
}
