package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// SettingsDependencies defines the interface for score settings.
type SettingsDependencies interface {
	Settings(ctx context.Context, teamID string) (*model.ScoreSettings, error)
	SaveSettings(ctx context.Context, s model.ScoreSettings) (model.ScoreSettings, error)
}

// SettingsHandler handles score settings requests.
type SettingsHandler struct {
	deps SettingsDependencies
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(deps SettingsDependencies) *SettingsHandler {
	return &SettingsHandler{deps: deps}
}

type weightsBody struct {
	PresentOnTime float64 `json:"present_on_time"`
	PresentLate   float64 `json:"present_late"`
	Absent        float64 `json:"absent"`
	NoResponse    float64 `json:"no_response"`
}

func (b weightsBody) weights() model.Weights {
	return model.Weights{OnTime: b.PresentOnTime, Late: b.PresentLate, Absent: b.Absent, NoResponse: b.NoResponse}
}

func newWeightsBody(w model.Weights) weightsBody {
	return weightsBody{PresentOnTime: w.OnTime, PresentLate: w.Late, Absent: w.Absent, NoResponse: w.NoResponse}
}

// settingsRequest mirrors the OpenAPI schema for PUT /teams/{team}/settings.
type settingsRequest struct {
	Training    weightsBody `json:"training"`
	Match       weightsBody `json:"match"`
	MVPBonus    float64     `json:"mvp_bonus"`
	MVPPerAward bool        `json:"mvp_per_award"`
	MinEvents   int         `json:"min_events"`
}

type settingsResponse struct {
	ID        int64  `json:"id"`
	TeamID    string `json:"team_id"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
	settingsRequest
}

func newSettingsResponse(s model.ScoreSettings) settingsResponse {
	return settingsResponse{
		ID:        s.ID,
		TeamID:    s.TeamID,
		Active:    s.Active,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		settingsRequest: settingsRequest{
			Training:    newWeightsBody(s.Training),
			Match:       newWeightsBody(s.Match),
			MVPBonus:    s.MVPBonus,
			MVPPerAward: s.MVPPerAward,
			MinEvents:   s.MinEvents,
		},
	}
}

// HandleGetSettings handles GET /teams/{team}/settings.
func (h *SettingsHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_settings"
	team, ok := teamID(w, r, op)
	if !ok {
		return
	}
	s, err := h.deps.Settings(r.Context(), team)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsResponse(*s))
}

// HandlePutSettings handles PUT /teams/{team}/settings. The body becomes the
// team's new active row.
func (h *SettingsHandler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_settings"
	team, ok := teamID(w, r, op)
	if !ok {
		return
	}
	var req settingsRequest
	if !decodeJSON(w, r, op, &req) {
		return
	}
	saved, err := h.deps.SaveSettings(r.Context(), model.ScoreSettings{
		TeamID:      team,
		Training:    req.Training.weights(),
		Match:       req.Match.weights(),
		MVPBonus:    req.MVPBonus,
		MVPPerAward: req.MVPPerAward,
		MinEvents:   req.MinEvents,
	})
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsResponse(saved))
}
