package httpapi

import (
	"net/http"
	"strings"

	"github.com/riskibarqy/live-match/internal/usecase"
)

func (h *Handler) ApplyScoreAction(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ApplyScoreAction")
	defer span.End()

	matchID := strings.TrimSpace(r.PathValue("matchID"))
	var req scoreActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}
	action, err := usecase.ParseScoreAction(req.Action)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	snapshot, err := h.scoreService.ApplyAction(ctx, matchID, action, req.Override)
	if err != nil {
		h.logger.WarnContext(ctx, "score action rejected",
			"match_id", matchID,
			"action", action,
			"override", req.Override,
			"kind", usecase.KindOf(err),
			"error", err,
		)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, scoreSnapshotToDTO(snapshot))
}

func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetScore")
	defer span.End()

	matchID := strings.TrimSpace(r.PathValue("matchID"))
	snapshot, err := h.scoreService.Snapshot(ctx, matchID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeSuccess(ctx, w, http.StatusOK, scoreSnapshotToDTO(snapshot))
}
