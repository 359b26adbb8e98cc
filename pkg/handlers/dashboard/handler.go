package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/seclens/auditgate/pkg/adapters"
	"github.com/seclens/auditgate/pkg/models/api"
	"github.com/seclens/auditgate/pkg/models/domain"
	"github.com/seclens/auditgate/pkg/services/dashboard"
	runstore "github.com/seclens/auditgate/pkg/store/run"
)

const maxListLimit = 200

type Handler struct {
	svc *dashboard.Service
}

func NewHandler(svc *dashboard.Service) *Handler {
	return &Handler{svc: svc}
}

// ListRuns handles GET /api/v1/runs?repo=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	filter := runstore.ListFilter{
		RepoFingerprint: r.URL.Query().Get("repo"),
	}

	var err error
	filter.Limit, err = queryInt(r, "limit", 0)
	if err != nil {
		http.Error(w, "invalid 'limit' parameter. Expected a non-negative integer", http.StatusBadRequest)
		return
	}
	filter.Offset, err = queryInt(r, "offset", 0)
	if err != nil {
		http.Error(w, "invalid 'offset' parameter. Expected a non-negative integer", http.StatusBadRequest)
		return
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	runs, err := h.svc.ListRuns(ctx, filter)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list runs")
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}

	response := api.RunList{
		Runs:   make([]api.Run, 0, len(runs)),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, adapters.MapDomainRunToApi(run))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error().Err(err).Msg("failed to encode run list")
	}
}

// GetRun handles GET /api/v1/runs/{run_id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)
	id := chi.URLParam(r, "run_id")

	run, err := h.svc.GetRun(ctx, id)
	if errors.Is(err, domain.ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("run_id", id).Msg("failed to load run")
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(adapters.MapDomainRunToApi(run)); err != nil {
		logger.Error().Err(err).Str("run_id", id).Msg("failed to encode run")
	}
}

// GetSummary handles GET /api/v1/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	summary, err := h.svc.GetSummary(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build summary")
		http.Error(w, "failed to build summary", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(adapters.MapDomainSummaryToApi(summary)); err != nil {
		logger.Error().Err(err).Msg("failed to encode summary")
	}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer parameter")
	}
	return n, nil
}
