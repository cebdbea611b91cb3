package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/usecase"
)

func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListTeams")
	defer span.End()

	teams, err := h.matchService.ListTeams(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list teams failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	out := make([]teamDTO, 0, len(teams))
	for _, item := range teams {
		out = append(out, teamDTO{ID: item.ID, Slug: item.Slug, Name: item.Name})
	}
	writeSuccess(ctx, w, http.StatusOK, out)
}

func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CreateMatch")
	defer span.End()

	var req createMatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.matchService.CreateMatch(ctx, usecase.CreateMatchInput{
		TeamID:         req.TeamID,
		OpponentName:   req.OpponentName,
		TournamentID:   req.TournamentID,
		TournamentName: req.TournamentName,
		ScheduledStart: req.ScheduledStart,
		CourtLabel:     req.CourtLabel,
		IdempotencyKey: req.IdempotencyKey,
		Rules:          req.Rules,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "create match failed", "team_id", req.TeamID, "kind", usecase.KindOf(err), "error", err)
		writeError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeSuccess(ctx, w, status, createMatchResponse{
		Match:    matchToDTO(result.Match),
		Replayed: result.Replayed,
	})
}

func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetMatch")
	defer span.End()

	matchID := strings.TrimSpace(r.PathValue("matchID"))
	item, err := h.matchService.GetMatch(ctx, matchID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, matchToDTO(item))
}

func (h *Handler) UpdateMatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.UpdateMatch")
	defer span.End()

	matchID := strings.TrimSpace(r.PathValue("matchID"))
	var req updateMatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	input := usecase.UpdateMatchInput{
		OpponentName:   req.OpponentName,
		CourtLabel:     req.CourtLabel,
		ScheduledStart: req.ScheduledStart,
	}
	if req.Status != nil {
		status, err := match.ParseStatus(*req.Status)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: %v", usecase.ErrInvalidInput, err))
			return
		}
		input.Status = &status
	}

	item, err := h.matchService.UpdateMatch(ctx, matchID, input)
	if err != nil {
		h.logger.WarnContext(ctx, "update match failed", "match_id", matchID, "kind", usecase.KindOf(err), "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, matchToDTO(item))
}

func (h *Handler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CancelMatch")
	defer span.End()

	matchID := strings.TrimSpace(r.PathValue("matchID"))
	result, err := h.matchService.CancelMatch(ctx, matchID)
	if err != nil {
		h.logger.WarnContext(ctx, "cancel match failed", "match_id", matchID, "kind", usecase.KindOf(err), "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, matchChangeResponse{
		Match:    matchToDTO(result.Match),
		External: result.External,
	})
}

func (h *Handler) EndMatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.EndMatch")
	defer span.End()

	matchID := strings.TrimSpace(r.PathValue("matchID"))
	result, err := h.matchService.EndMatch(ctx, matchID)
	if err != nil {
		h.logger.WarnContext(ctx, "end match failed", "match_id", matchID, "kind", usecase.KindOf(err), "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, matchChangeResponse{
		Match:    matchToDTO(result.Match),
		External: result.External,
	})
}

func (h *Handler) GetStreamConnection(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetStreamConnection")
	defer span.End()

	matchID := strings.TrimSpace(r.PathValue("matchID"))
	conn, err := h.matchService.StreamConnection(ctx, matchID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, conn)
}

// PollAutoLive serves both the admin POST and the public GET. Public callers
// get stream health attached to an already-live report.
func (h *Handler) PollAutoLive(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.PollAutoLive")
	defer span.End()

	matchID := strings.TrimSpace(r.PathValue("matchID"))
	result, err := h.autoLiveService.PollAutoLive(ctx, matchID, !isAdmin(ctx))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, result)
}
