package httpapi

import (
	"fmt"
	"net/http"

	"github.com/riskibarqy/live-match/internal/usecase"
)

func (h *Handler) GetStreamPoolStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetStreamPoolStatus")
	defer span.End()

	summary, err := h.poolService.Summary(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "stream pool summary failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, summary)
}

func (h *Handler) ProvisionStreams(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ProvisionStreams")
	defer span.End()

	var req provisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.poolService.ProvisionBatch(ctx, req.Count)
	if err != nil {
		h.logger.WarnContext(ctx, "provision streams failed", "count", req.Count, "kind", usecase.KindOf(err), "error", err)
		writeError(ctx, w, err)
		return
	}

	if result.Created == 0 && len(result.Errors) > 0 {
		writeError(ctx, w, fmt.Errorf("%w: no stream was provisioned: %s", usecase.ErrDependencyUnavailable, result.Errors[0].Message))
		return
	}

	status := http.StatusCreated
	if len(result.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	writeSuccess(ctx, w, status, provisionToDTO(result))
}

// CleanupStreamPool deletes entries past the configured retention.
func (h *Handler) CleanupStreamPool(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CleanupStreamPool")
	defer span.End()

	deleted, err := h.poolService.CleanupRetired(ctx, 0)
	if err != nil {
		h.logger.ErrorContext(ctx, "stream pool cleanup failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, cleanupResponse{Deleted: deleted})
}
