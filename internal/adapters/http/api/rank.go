package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/rollcall/internal/domain/model"
)

// RankDependencies defines the interface for single player lookups.
type RankDependencies interface {
	PlayerScore(ctx context.Context, teamID, playerID string) (model.PlayerScore, error)
}

// RankHandler handles player score requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetPlayerScore handles GET /teams/{team}/players/{player}/score.
func (h *RankHandler) HandleGetPlayerScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player_score"
	team, ok := teamID(w, r, op)
	if !ok {
		return
	}
	player := strings.TrimSpace(r.PathValue("player"))
	if player == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, NewKind(op, ErrBadRequest))
		return
	}
	ps, err := h.deps.PlayerScore(r.Context(), team, player)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newScoreEntry(ps))
}
