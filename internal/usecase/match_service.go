package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/live-match/internal/domain/audit"
	"github.com/riskibarqy/live-match/internal/domain/broadcast"
	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/domain/scoring"
	"github.com/riskibarqy/live-match/internal/domain/streampool"
	"github.com/riskibarqy/live-match/internal/domain/team"
	"github.com/riskibarqy/live-match/internal/domain/tournament"
	"github.com/riskibarqy/live-match/internal/platform/id"
	"github.com/riskibarqy/live-match/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

type MatchConfig struct {
	DefaultStartLead time.Duration
	Privacy          broadcast.Privacy
	DefaultRules     scoring.Rules
}

type CreateMatchInput struct {
	TeamID         string `validate:"required,max=64"`
	OpponentName   string `validate:"required,max=120"`
	TournamentID   string `validate:"omitempty,max=64"`
	TournamentName string `validate:"omitempty,max=120"`
	ScheduledStart *time.Time
	CourtLabel     string `validate:"omitempty,max=40"`
	IdempotencyKey string `validate:"omitempty,max=128"`
	Rules          *scoring.RulesOverride
}

type CreateMatchResult struct {
	Match match.Match
	// Replayed is true when the idempotency key matched an earlier match.
	Replayed bool
}

// UpdateMatchInput is a partial update; nil fields stay unchanged.
type UpdateMatchInput struct {
	Status         *match.Status
	OpponentName   *string `validate:"omitempty,min=1,max=120"`
	CourtLabel     *string `validate:"omitempty,max=40"`
	ScheduledStart *time.Time
}

// ExternalOutcome records a best-effort provider call that never blocks the
// local state change.
type ExternalOutcome struct {
	Attempted bool   `json:"attempted"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

type MatchChangeResult struct {
	Match    match.Match
	External ExternalOutcome
}

type MatchService struct {
	matchRepo      match.Repository
	teamRepo       team.Repository
	tournamentRepo tournament.Repository
	pool           *StreamPoolService
	provider       broadcast.Provider
	ids            id.Generator
	audit          audit.Sink
	metrics        Metrics
	validator      *validator.Validate
	cfg            MatchConfig
	logger         *logging.Logger
	now            func() time.Time
}

func NewMatchService(
	matchRepo match.Repository,
	teamRepo team.Repository,
	tournamentRepo tournament.Repository,
	pool *StreamPoolService,
	provider broadcast.Provider,
	ids id.Generator,
	sink audit.Sink,
	metrics Metrics,
	cfg MatchConfig,
	logger *logging.Logger,
) *MatchService {
	if ids == nil {
		ids = id.NewUUIDGenerator()
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.DefaultStartLead <= 0 {
		cfg.DefaultStartLead = 5 * time.Minute
	}
	if cfg.Privacy == "" {
		cfg.Privacy = broadcast.PrivacyUnlisted
	}
	if cfg.DefaultRules == (scoring.Rules{}) {
		cfg.DefaultRules = scoring.DefaultRules()
	}

	return &MatchService{
		matchRepo:      matchRepo,
		teamRepo:       teamRepo,
		tournamentRepo: tournamentRepo,
		pool:           pool,
		provider:       provider,
		ids:            ids,
		audit:          sink,
		metrics:        metrics,
		validator:      validator.New(validator.WithRequiredStructEnabled()),
		cfg:            cfg,
		logger:         logger.Named("match"),
		now:            time.Now,
	}
}

func (s *MatchService) GetMatch(ctx context.Context, matchID string) (match.Match, error) {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return match.Match{}, fmt.Errorf("%w: match id is required", ErrInvalidInput)
	}

	item, exists, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return match.Match{}, fmt.Errorf("get match: %w", err)
	}
	if !exists {
		return match.Match{}, fmt.Errorf("%w: match=%s", ErrNotFound, matchID)
	}
	return item, nil
}

// ListTeams returns the teams a new match can be created for.
func (s *MatchService) ListTeams(ctx context.Context) ([]team.Team, error) {
	teams, err := s.teamRepo.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled teams: %w", err)
	}
	return teams, nil
}

// CreateMatch reserves a stream, creates and binds the external broadcast,
// then persists the match. Any failure after the reservation releases the
// entry before the error is returned.
func (s *MatchService) CreateMatch(ctx context.Context, input CreateMatchInput) (result CreateMatchResult, err error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.MatchService.CreateMatch")
	defer span.End()

	input = normalizeCreateMatchInput(input)
	if err := s.validator.StructCtx(ctx, input); err != nil {
		return CreateMatchResult{}, fmt.Errorf("%w: %s", ErrInvalidInput, describeValidation(err))
	}
	if input.Rules != nil {
		if err := scoring.ValidateRules(s.cfg.DefaultRules.Merge(input.Rules)); err != nil {
			return CreateMatchResult{}, err
		}
	}

	owner, exists, err := s.teamRepo.GetByID(ctx, input.TeamID)
	if err != nil {
		return CreateMatchResult{}, fmt.Errorf("get team by id: %w", err)
	}
	if !exists {
		return CreateMatchResult{}, fmt.Errorf("%w: team not found", ErrNotFound)
	}

	if input.IdempotencyKey != "" {
		existing, found, err := s.matchRepo.GetByIdempotencyKey(ctx, input.IdempotencyKey)
		if err != nil {
			return CreateMatchResult{}, fmt.Errorf("get match by idempotency key: %w", err)
		}
		if found {
			s.logger.InfoContext(ctx, "create match replayed", "match_id", existing.ID)
			return CreateMatchResult{Match: existing, Replayed: true}, nil
		}
	}

	tournamentLabel := input.TournamentName
	if input.TournamentID != "" {
		linked, exists, err := s.tournamentRepo.GetByID(ctx, input.TournamentID)
		if err != nil {
			return CreateMatchResult{}, fmt.Errorf("get tournament by id: %w", err)
		}
		if !exists {
			return CreateMatchResult{}, fmt.Errorf("%w: tournament not found", ErrNotFound)
		}
		tournamentLabel = linked.Name
		input.TournamentName = ""
	}

	entry, err := s.reserveWithRecovery(ctx)
	if err != nil {
		return CreateMatchResult{}, err
	}
	span.SetAttributes(attribute.String("stream_pool.entry_id", entry.ID))

	var broadcastID string
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := s.rollbackCreate(ctx, entry, broadcastID); rbErr != nil {
			err = crerr.CombineErrors(err, rbErr)
		}
	}()

	start := s.now().UTC().Add(s.cfg.DefaultStartLead)
	if input.ScheduledStart != nil {
		start = input.ScheduledStart.UTC()
	}

	created, err := s.provider.CreateBroadcast(ctx, broadcast.CreateRequest{
		Title:          matchTitle(owner.Name, input.OpponentName, tournamentLabel),
		Description:    matchDescription(tournamentLabel, input.CourtLabel, start),
		ScheduledStart: start,
		Privacy:        s.cfg.Privacy,
	})
	if err != nil {
		return CreateMatchResult{}, dependencyError(err, "create broadcast for team %s", owner.ID)
	}
	broadcastID = created.ID

	if err := s.provider.BindStream(ctx, created.ID, entry.ExternalStreamID); err != nil {
		return CreateMatchResult{}, dependencyError(err, "bind broadcast %s to stream %s", created.ID, entry.ExternalStreamID)
	}

	matchID, err := s.ids.NewID()
	if err != nil {
		return CreateMatchResult{}, err
	}
	status := match.StatusDraft
	if input.ScheduledStart != nil {
		status = match.StatusScheduled
	}
	now := s.now().UTC()
	item := match.Match{
		ID:             matchID,
		TeamID:         owner.ID,
		OpponentName:   input.OpponentName,
		TournamentID:   input.TournamentID,
		TournamentName: input.TournamentName,
		ScheduledStart: input.ScheduledStart,
		CourtLabel:     input.CourtLabel,
		Status:         status,
		BroadcastID:    created.ID,
		WatchURL:       created.WatchURL,
		StreamPoolID:   entry.ID,
		IdempotencyKey: input.IdempotencyKey,
		Rules:          input.Rules,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.matchRepo.Create(ctx, item); err != nil {
		if errors.Is(err, match.ErrDuplicateIdempotencyKey) {
			return s.replayAfterRace(ctx, input.IdempotencyKey)
		}
		return CreateMatchResult{}, fmt.Errorf("create match: %w", err)
	}
	committed = true

	if err := s.pool.BindToMatch(ctx, entry.ID, item.ID); err != nil {
		return s.failAfterPersist(ctx, item, entry, err)
	}

	s.logger.InfoContext(ctx, "match created",
		"match_id", item.ID,
		"team_id", item.TeamID,
		"entry_id", entry.ID,
		"broadcast_id", item.BroadcastID,
	)
	s.audit.Record(ctx, audit.ActionMatchCreated, map[string]any{
		"matchId":     item.ID,
		"teamId":      item.TeamID,
		"streamPool":  entry.ID,
		"broadcastId": item.BroadcastID,
	})
	return CreateMatchResult{Match: item}, nil
}

// reserveWithRecovery retries once after sweeping stale reservations.
func (s *MatchService) reserveWithRecovery(ctx context.Context) (streampool.Entry, error) {
	entry, ok, err := s.pool.Reserve(ctx)
	if err != nil {
		return streampool.Entry{}, err
	}
	if ok {
		return entry, nil
	}

	recovered, err := s.pool.RecoverStuck(ctx, 0)
	if err != nil {
		return streampool.Entry{}, err
	}
	if recovered > 0 {
		entry, ok, err = s.pool.Reserve(ctx)
		if err != nil {
			return streampool.Entry{}, err
		}
		if ok {
			return entry, nil
		}
	}

	summary, err := s.pool.Summary(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "pool summary unavailable after exhaustion", "error", err)
	}
	return streampool.Entry{}, &PoolExhaustedError{Summary: summary}
}

// rollbackCreate undoes a partially created match. The broadcast delete is
// best-effort; only a failed release is returned.
func (s *MatchService) rollbackCreate(ctx context.Context, entry streampool.Entry, broadcastID string) error {
	ctx = context.WithoutCancel(ctx)

	if broadcastID != "" {
		if err := s.provider.DeleteBroadcast(ctx, broadcastID); err != nil {
			s.logger.WarnContext(ctx, "rollback could not delete broadcast", "broadcast_id", broadcastID, "error", err)
		}
	}

	if err := s.pool.Release(ctx, entry.ExternalStreamID); err != nil {
		s.logger.ErrorContext(ctx, "rollback could not release stream pool entry", "entry_id", entry.ID, "error", err)
		return crerr.Wrapf(err, "rollback release entry %s", entry.ID)
	}

	s.logger.WarnContext(ctx, "match creation rolled back", "entry_id", entry.ID, "broadcast_id", broadcastID)
	s.audit.Record(ctx, audit.ActionMatchRollback, map[string]any{
		"streamPool":  entry.ID,
		"broadcastId": broadcastID,
	})
	return nil
}

// replayAfterRace handles a concurrent create that won the idempotency key.
// The caller's deferred rollback frees this attempt's reservation.
func (s *MatchService) replayAfterRace(ctx context.Context, key string) (CreateMatchResult, error) {
	winner, found, err := s.matchRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return CreateMatchResult{}, fmt.Errorf("get match by idempotency key: %w", err)
	}
	if !found {
		return CreateMatchResult{}, fmt.Errorf("%w: idempotency key conflict without stored match", ErrConflict)
	}
	s.logger.InfoContext(ctx, "create match lost idempotency race", "match_id", winner.ID)
	return CreateMatchResult{Match: winner, Replayed: true}, nil
}

// failAfterPersist parks a match whose reservation could not be bound in the
// error status and frees what it held.
func (s *MatchService) failAfterPersist(ctx context.Context, item match.Match, entry streampool.Entry, cause error) (CreateMatchResult, error) {
	ctx = context.WithoutCancel(ctx)
	s.logger.ErrorContext(ctx, "bind reservation failed after match persisted", "match_id", item.ID, "entry_id", entry.ID, "error", cause)

	err := fmt.Errorf("bind stream pool entry: %w", cause)
	if rbErr := s.rollbackCreate(ctx, entry, item.BroadcastID); rbErr != nil {
		err = crerr.CombineErrors(err, rbErr)
	}

	failed := item
	failed.Status = match.StatusError
	failed.StreamPoolID = ""
	failed.UpdatedAt = s.now().UTC()
	if _, upErr := s.matchRepo.Update(ctx, failed, item.Status); upErr != nil {
		err = crerr.CombineErrors(err, crerr.Wrapf(upErr, "mark match %s as error", item.ID))
	}
	return CreateMatchResult{}, err
}

func (s *MatchService) CancelMatch(ctx context.Context, matchID string) (MatchChangeResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.MatchService.CancelMatch")
	defer span.End()

	item, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return MatchChangeResult{}, err
	}

	switch {
	case item.Status == match.StatusLive:
		return MatchChangeResult{}, fmt.Errorf("%w: cannot cancel a live match", ErrConflict)
	case item.Status == match.StatusEnded || item.Status == match.StatusCanceled:
		return MatchChangeResult{}, fmt.Errorf("%w: match is already %s", ErrConflict, item.Status)
	case !item.Status.Cancelable():
		return MatchChangeResult{}, fmt.Errorf("%w: cannot cancel a match in %s status", ErrConflict, item.Status)
	}

	outcome := ExternalOutcome{}
	if item.BroadcastID != "" {
		outcome = s.attempt(ctx, "delete broadcast", item, func(ctx context.Context) error {
			err := s.provider.DeleteBroadcast(ctx, item.BroadcastID)
			if errors.Is(err, broadcast.ErrNotFound) {
				return nil
			}
			return err
		})
	}

	updated, err := s.closeMatch(ctx, item, match.StatusCanceled)
	if err != nil {
		return MatchChangeResult{}, err
	}

	s.audit.Record(ctx, audit.ActionMatchCanceled, map[string]any{
		"matchId":         updated.ID,
		"previousStatus":  item.Status,
		"externalDeleted": outcome.Succeeded,
	})
	return MatchChangeResult{Match: updated, External: outcome}, nil
}

func (s *MatchService) EndMatch(ctx context.Context, matchID string) (MatchChangeResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.MatchService.EndMatch")
	defer span.End()

	item, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return MatchChangeResult{}, err
	}
	if item.Status == match.StatusEnded {
		return MatchChangeResult{Match: item}, nil
	}
	if item.Status == match.StatusCanceled {
		return MatchChangeResult{}, fmt.Errorf("%w: match is canceled", ErrConflict)
	}
	if err := match.ValidateTransition(item.Status, match.StatusEnded); err != nil {
		return MatchChangeResult{}, err
	}

	outcome := ExternalOutcome{}
	if item.BroadcastID != "" {
		outcome = s.attempt(ctx, "complete broadcast", item, func(ctx context.Context) error {
			err := s.provider.TransitionBroadcast(ctx, item.BroadcastID, broadcast.TargetComplete)
			if errors.Is(err, broadcast.ErrRedundantTransition) {
				return nil
			}
			return err
		})
	}

	updated, err := s.closeMatch(ctx, item, match.StatusEnded)
	if err != nil {
		return MatchChangeResult{}, err
	}

	s.audit.Record(ctx, audit.ActionMatchEnded, map[string]any{
		"matchId":           updated.ID,
		"previousStatus":    item.Status,
		"externalCompleted": outcome.Succeeded,
	})
	return MatchChangeResult{Match: updated, External: outcome}, nil
}

func (s *MatchService) UpdateMatch(ctx context.Context, matchID string, input UpdateMatchInput) (match.Match, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.MatchService.UpdateMatch")
	defer span.End()

	if input.OpponentName != nil {
		trimmed := strings.TrimSpace(*input.OpponentName)
		input.OpponentName = &trimmed
	}
	if input.CourtLabel != nil {
		trimmed := strings.TrimSpace(*input.CourtLabel)
		input.CourtLabel = &trimmed
	}
	if err := s.validator.StructCtx(ctx, input); err != nil {
		return match.Match{}, fmt.Errorf("%w: %s", ErrInvalidInput, describeValidation(err))
	}

	item, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return match.Match{}, err
	}

	next := item
	if input.OpponentName != nil && *input.OpponentName != item.OpponentName {
		if !item.OpponentEditable() {
			return match.Match{}, fmt.Errorf("%w: opponent name cannot change once the match has left draft (status=%s)", ErrConflict, item.Status)
		}
		next.OpponentName = *input.OpponentName
	}
	if input.CourtLabel != nil {
		next.CourtLabel = *input.CourtLabel
	}
	if input.ScheduledStart != nil {
		start := input.ScheduledStart.UTC()
		next.ScheduledStart = &start
	}

	target := item.Status
	if input.Status != nil && *input.Status != item.Status {
		target = *input.Status
		if err := match.ValidateTransition(item.Status, target); err != nil {
			return match.Match{}, err
		}
		next.Status = target
		if target == match.StatusEnded || target == match.StatusCanceled {
			next.StreamPoolID = ""
		}
	}
	next.UpdatedAt = s.now().UTC()

	updated, err := s.matchRepo.Update(ctx, next, item.Status)
	if err != nil {
		return match.Match{}, fmt.Errorf("update match: %w", err)
	}
	if !updated {
		return match.Match{}, fmt.Errorf("%w: match=%s changed concurrently, reload and retry", ErrConflict, item.ID)
	}

	if target != item.Status {
		s.metrics.IncMatchTransition(item.Status, target)
		if err := s.applyStatusSideEffects(ctx, item, target); err != nil {
			return match.Match{}, err
		}
	}

	s.audit.Record(ctx, audit.ActionMatchUpdated, map[string]any{
		"matchId": next.ID,
		"from":    item.Status,
		"to":      next.Status,
	})
	return next, nil
}

func (s *MatchService) applyStatusSideEffects(ctx context.Context, before match.Match, target match.Status) error {
	if !before.HasStream() {
		return nil
	}
	switch target {
	case match.StatusLive:
		return s.pool.MarkInUse(ctx, before.StreamPoolID)
	case match.StatusEnded, match.StatusCanceled:
		return s.pool.ReleaseEntry(ctx, before.StreamPoolID, before.ID)
	default:
		return nil
	}
}

// StreamConnection returns ingest details for the match's bound entry.
func (s *MatchService) StreamConnection(ctx context.Context, matchID string) (streampool.Connection, error) {
	item, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return streampool.Connection{}, err
	}
	if !item.HasStream() {
		return streampool.Connection{}, fmt.Errorf("%w: match=%s has no bound stream", ErrConflict, item.ID)
	}
	return s.pool.Connection(ctx, item.StreamPoolID, item.ID)
}

// closeMatch moves item to a terminal status, clears the stream binding and
// releases the entry.
func (s *MatchService) closeMatch(ctx context.Context, item match.Match, target match.Status) (match.Match, error) {
	next := item
	next.Status = target
	next.StreamPoolID = ""
	next.UpdatedAt = s.now().UTC()

	updated, err := s.matchRepo.Update(ctx, next, item.Status)
	if err != nil {
		return match.Match{}, fmt.Errorf("update match status: %w", err)
	}
	if !updated {
		return match.Match{}, fmt.Errorf("%w: match=%s changed concurrently, reload and retry", ErrConflict, item.ID)
	}
	s.metrics.IncMatchTransition(item.Status, target)

	if item.HasStream() {
		if err := s.pool.ReleaseEntry(ctx, item.StreamPoolID, item.ID); err != nil {
			s.logger.ErrorContext(ctx, "release after status change failed", "match_id", item.ID, "entry_id", item.StreamPoolID, "error", err)
			return match.Match{}, err
		}
	}

	s.logger.InfoContext(ctx, "match closed", "match_id", item.ID, "from", item.Status, "to", target)
	return next, nil
}

// attempt runs a best-effort provider call and captures its outcome.
func (s *MatchService) attempt(ctx context.Context, op string, item match.Match, fn func(ctx context.Context) error) ExternalOutcome {
	outcome := ExternalOutcome{Attempted: true}
	if err := fn(ctx); err != nil {
		outcome.Error = err.Error()
		s.logger.WarnContext(ctx, "best-effort broadcast call failed",
			"operation", op,
			"match_id", item.ID,
			"broadcast_id", item.BroadcastID,
			"error", err,
		)
		return outcome
	}
	outcome.Succeeded = true
	return outcome
}

func normalizeCreateMatchInput(input CreateMatchInput) CreateMatchInput {
	input.TeamID = strings.TrimSpace(input.TeamID)
	input.OpponentName = strings.TrimSpace(input.OpponentName)
	input.TournamentID = strings.TrimSpace(input.TournamentID)
	input.TournamentName = strings.TrimSpace(input.TournamentName)
	input.CourtLabel = strings.TrimSpace(input.CourtLabel)
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if input.Rules != nil && input.Rules.IsZero() {
		input.Rules = nil
	}
	return input
}

func matchTitle(teamName, opponent, tournamentLabel string) string {
	title := teamName + " vs " + opponent
	if tournamentLabel != "" {
		title += " - " + tournamentLabel
	}
	return title
}

func matchDescription(tournamentLabel, court string, start time.Time) string {
	lines := make([]string, 0, 3)
	if tournamentLabel != "" {
		lines = append(lines, "Tournament: "+tournamentLabel)
	}
	if court != "" {
		lines = append(lines, "Court: "+court)
	}
	lines = append(lines, "Date: "+start.Format("2006-01-02 15:04 MST"))
	return strings.Join(lines, "\n")
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func dependencyError(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrDependencyUnavailable, crerr.Wrapf(err, format, args...))
}
