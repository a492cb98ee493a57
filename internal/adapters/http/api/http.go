// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	service "github.com/okian/rollcall/internal/app"
)

const maxBodyBytes = 4 << 20

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	LeaderboardDependencies
	RankDependencies
	RecomputeDependencies
	SettingsDependencies
	IngestDependencies
	TrialDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	recomputeHandler   *RecomputeHandler
	settingsHandler    *SettingsHandler
	ingestHandler      *IngestHandler
	trialHandler       *TrialHandler
	dashboardHandler   *dashboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		rankHandler:        NewRankHandler(deps),
		recomputeHandler:   NewRecomputeHandler(deps),
		settingsHandler:    NewSettingsHandler(deps),
		ingestHandler:      NewIngestHandler(deps),
		trialHandler:       NewTrialHandler(deps),
		dashboardHandler:   newDashboardHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /dashboard", s.dashboardHandler.HandleDashboard)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /teams/{team}/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /teams/{team}/runs/latest", MetricsMiddleware(s.leaderboardHandler.HandleGetLatestRun, "latest_run"))
	mux.HandleFunc("GET /teams/{team}/players/{player}/score", MetricsMiddleware(s.rankHandler.HandleGetPlayerScore, "player_score"))
	mux.HandleFunc("POST /teams/{team}/recompute", MetricsMiddleware(s.recomputeHandler.HandlePostRecompute, "recompute"))
	mux.HandleFunc("GET /teams/{team}/settings", MetricsMiddleware(s.settingsHandler.HandleGetSettings, "settings"))
	mux.HandleFunc("PUT /teams/{team}/settings", MetricsMiddleware(s.settingsHandler.HandlePutSettings, "settings"))
	mux.HandleFunc("POST /teams/{team}/attendance", MetricsMiddleware(s.ingestHandler.HandlePostAttendance, "attendance"))
	mux.HandleFunc("POST /teams/{team}/mvp-awards", MetricsMiddleware(s.ingestHandler.HandlePostMVPAwards, "mvp_awards"))
	mux.HandleFunc("POST /trials/evaluate", MetricsMiddleware(s.trialHandler.HandlePostEvaluate, "trial_evaluate"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service failures onto the error envelope.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	err = Wrap(op, err)
	switch {
	case errors.Is(err, service.ErrBatchTooLarge):
		writeError(w, http.StatusBadRequest, codeLimitExceeded, err)
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, codeBadRequest, err)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err)
	case errors.Is(err, service.ErrConfigurationMissing):
		writeError(w, http.StatusConflict, codeConfigurationMissing, err)
	case service.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, err)
	}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err))
		return false
	}
	return true
}

// teamID returns the {team} path value or writes a 400.
func teamID(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	team := strings.TrimSpace(r.PathValue("team"))
	if team == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, fmt.Errorf("missing team id")))
		return "", false
	}
	return team, true
}
