package api

import (
	"context"
	"net/http"

	"github.com/okian/rollcall/internal/domain/trial"
)

// TrialDependencies defines the interface for trialist evaluation.
type TrialDependencies interface {
	EvaluateTrial(ctx context.Context, ratings []int) (trial.Evaluation, error)
}

// TrialHandler handles trialist quick evaluations.
type TrialHandler struct {
	deps TrialDependencies
}

// NewTrialHandler creates a new trial handler.
func NewTrialHandler(deps TrialDependencies) *TrialHandler {
	return &TrialHandler{deps: deps}
}

type trialRequest struct {
	Ratings []int `json:"ratings"`
}

type trialResponse struct {
	Total    int    `json:"total"`
	Positive int    `json:"positive"`
	Neutral  int    `json:"neutral"`
	Negative int    `json:"negative"`
	Decision string `json:"decision"`
}

// HandlePostEvaluate handles POST /trials/evaluate.
func (h *TrialHandler) HandlePostEvaluate(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_trial_evaluate"
	var req trialRequest
	if !decodeJSON(w, r, op, &req) {
		return
	}
	ev, err := h.deps.EvaluateTrial(r.Context(), req.Ratings)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, trialResponse{
		Total:    ev.Total,
		Positive: ev.Positive,
		Neutral:  ev.Neutral,
		Negative: ev.Negative,
		Decision: string(ev.Decision),
	})
}
