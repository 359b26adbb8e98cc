package ingest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/seclens/auditgate/pkg/models/api"
	"github.com/seclens/auditgate/pkg/models/domain"
	"github.com/seclens/auditgate/pkg/services/ingest"
)

type Handler struct {
	gateway *ingest.Gateway
}

func NewHandler(gateway *ingest.Gateway) *Handler {
	return &Handler{gateway: gateway}
}

// Submit handles POST /api/v1/runs.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	var envelope api.SubmissionEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorResponse{
			Error:  "validation_error",
			Detail: "malformed JSON envelope",
		})
		return
	}

	result, err := h.gateway.Submit(ctx, envelope)
	if err != nil {
		h.writeSubmitError(w, logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	status := http.StatusCreated
	if result.DedupeSkipped {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	err = json.NewEncoder(w).Encode(api.SubmitResponse{
		RunID:            result.RunID,
		Status:           string(result.Status),
		DedupeSkipped:    result.DedupeSkipped,
		RateLimitSkipped: result.RateLimitSkipped,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode submit response")
	}
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, api.ErrorResponse{
			Error:  "validation_error",
			Detail: validation.Error(),
		})
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, api.ErrorResponse{
			Error:     "rate_limited",
			Detail:    err.Error(),
			Retryable: true,
		})
	case errors.Is(err, domain.ErrStorageUnavailable):
		logger.Error().Err(err).Msg("storage unavailable during submit")
		writeError(w, http.StatusServiceUnavailable, api.ErrorResponse{
			Error:     "storage_unavailable",
			Detail:    "retry with the same idempotency key",
			Retryable: true,
		})
	default:
		logger.Error().Err(err).Msg("submit failed")
		writeError(w, http.StatusInternalServerError, api.ErrorResponse{
			Error:     "internal_error",
			Retryable: true,
		})
	}
}

func writeError(w http.ResponseWriter, status int, body api.ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
