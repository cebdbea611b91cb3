package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riskibarqy/live-match/internal/domain/audit"
	"github.com/riskibarqy/live-match/internal/domain/broadcast"
	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/platform/logging"
)

type AutoLiveState string

const (
	AutoLiveAlreadyLive      AutoLiveState = "already_live"
	AutoLiveEnded            AutoLiveState = "ended"
	AutoLiveCanceled         AutoLiveState = "canceled"
	AutoLiveError            AutoLiveState = "error"
	AutoLiveWaiting          AutoLiveState = "waiting"
	AutoLiveTransitionFailed AutoLiveState = "transition_failed"
	AutoLiveWentLive         AutoLiveState = "went_live"
)

const autoLiveNoStreamBound = "no_stream_bound"

// AutoLiveResult is returned on every poll. Pollers stop on already_live,
// went_live and the terminal statuses and keep polling otherwise.
type AutoLiveResult struct {
	State        AutoLiveState `json:"state"`
	MatchStatus  match.Status  `json:"matchStatus"`
	StreamStatus string        `json:"streamStatus,omitempty"`
	HealthStatus string        `json:"healthStatus,omitempty"`
	Message      string        `json:"message,omitempty"`
}

type AutoLiveConfig struct {
	SettleDelay time.Duration
}

// AutoLiveService drives a match's broadcast to live once its stream
// receives data. It holds no timers; callers invoke PollAutoLive repeatedly.
type AutoLiveService struct {
	matchRepo match.Repository
	pool      *StreamPoolService
	provider  broadcast.Provider
	audit     audit.Sink
	metrics   Metrics
	cfg       AutoLiveConfig
	logger    *logging.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewAutoLiveService(
	matchRepo match.Repository,
	pool *StreamPoolService,
	provider broadcast.Provider,
	sink audit.Sink,
	metrics Metrics,
	cfg AutoLiveConfig,
	logger *logging.Logger,
) *AutoLiveService {
	if sink == nil {
		sink = audit.NopSink{}
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}

	return &AutoLiveService{
		matchRepo: matchRepo,
		pool:      pool,
		provider:  provider,
		audit:     sink,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.Named("auto_live"),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// PollAutoLive re-reads all state on entry so duplicate or concurrent polls
// from several viewers cannot transition the broadcast twice. public adds
// live stream health to the already_live report.
func (s *AutoLiveService) PollAutoLive(ctx context.Context, matchID string, public bool) (AutoLiveResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.AutoLiveService.PollAutoLive")
	defer span.End()

	item, exists, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return AutoLiveResult{}, fmt.Errorf("get match: %w", err)
	}
	if !exists {
		return AutoLiveResult{}, fmt.Errorf("%w: match=%s", ErrNotFound, matchID)
	}

	result := s.poll(ctx, item, public)
	s.metrics.IncAutoLive(string(result.State))
	return result, nil
}

func (s *AutoLiveService) poll(ctx context.Context, item match.Match, public bool) AutoLiveResult {
	result := AutoLiveResult{MatchStatus: item.Status}

	switch item.Status {
	case match.StatusLive:
		result.State = AutoLiveAlreadyLive
		if public {
			s.attachLiveHealth(ctx, item, &result)
		}
		return result
	case match.StatusEnded:
		result.State = AutoLiveEnded
		return result
	case match.StatusCanceled:
		result.State = AutoLiveCanceled
		return result
	case match.StatusError:
		result.State = AutoLiveError
		return result
	}

	if item.BroadcastID == "" || !item.HasStream() {
		result.State = AutoLiveWaiting
		result.Message = autoLiveNoStreamBound
		return result
	}

	entry, err := s.pool.Get(ctx, item.StreamPoolID)
	if err != nil {
		s.logger.WarnContext(ctx, "bound stream entry unavailable", "match_id", item.ID, "entry_id", item.StreamPoolID, "error", err)
		result.State = AutoLiveWaiting
		result.Message = autoLiveNoStreamBound
		return result
	}

	health, err := s.provider.GetStreamHealth(ctx, entry.ExternalStreamID)
	if err != nil {
		result.State = AutoLiveWaiting
		result.Message = "stream health unavailable: " + err.Error()
		return result
	}
	result.StreamStatus = health.Status
	result.HealthStatus = health.HealthStatus
	if !health.IsActive() {
		result.State = AutoLiveWaiting
		return result
	}

	if err := s.driveToLive(ctx, item.BroadcastID); err != nil {
		s.logger.WarnContext(ctx, "broadcast transition failed", "match_id", item.ID, "broadcast_id", item.BroadcastID, "error", err)
		result.State = AutoLiveTransitionFailed
		result.Message = err.Error()
		return result
	}

	return s.markLive(ctx, item, result)
}

// driveToLive moves the broadcast through testing to live, skipping steps the
// provider already reports as reached.
func (s *AutoLiveService) driveToLive(ctx context.Context, broadcastID string) error {
	status, err := s.provider.GetBroadcastStatus(ctx, broadcastID)
	if err != nil {
		return fmt.Errorf("get broadcast %s status: %w", broadcastID, err)
	}
	if status.IsLive() {
		return nil
	}

	if !status.InTesting() {
		if err := s.transition(ctx, broadcastID, broadcast.TargetTesting); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.cfg.SettleDelay); err != nil {
			return err
		}
	}

	return s.transition(ctx, broadcastID, broadcast.TargetLive)
}

func (s *AutoLiveService) transition(ctx context.Context, broadcastID string, target broadcast.TargetState) error {
	err := s.provider.TransitionBroadcast(ctx, broadcastID, target)
	if err == nil || errors.Is(err, broadcast.ErrRedundantTransition) {
		return nil
	}
	return fmt.Errorf("transition broadcast %s to %s: %w", broadcastID, target, err)
}

func (s *AutoLiveService) markLive(ctx context.Context, item match.Match, result AutoLiveResult) AutoLiveResult {
	if err := match.ValidateTransition(item.Status, match.StatusLive); err != nil {
		result.State = AutoLiveTransitionFailed
		result.Message = err.Error()
		return result
	}

	next := item
	next.Status = match.StatusLive
	next.UpdatedAt = s.now().UTC()
	updated, err := s.matchRepo.Update(ctx, next, item.Status)
	if err != nil {
		result.State = AutoLiveTransitionFailed
		result.Message = fmt.Sprintf("update match status: %v", err)
		return result
	}
	if !updated {
		// Another poller won; report the stored state.
		current, exists, err := s.matchRepo.GetByID(ctx, item.ID)
		if err == nil && exists && current.Status == match.StatusLive {
			result.State = AutoLiveAlreadyLive
			result.MatchStatus = current.Status
			return result
		}
		result.State = AutoLiveWaiting
		result.Message = "match status changed during transition"
		return result
	}

	if err := s.pool.MarkInUse(ctx, item.StreamPoolID); err != nil {
		s.logger.ErrorContext(ctx, "mark stream in use failed", "match_id", item.ID, "entry_id", item.StreamPoolID, "error", err)
	}
	s.metrics.IncMatchTransition(item.Status, match.StatusLive)
	s.logger.InfoContext(ctx, "match went live", "match_id", item.ID, "broadcast_id", item.BroadcastID)
	s.audit.Record(ctx, audit.ActionMatchWentLive, map[string]any{
		"matchId":     item.ID,
		"broadcastId": item.BroadcastID,
		"from":        item.Status,
	})

	result.State = AutoLiveWentLive
	result.MatchStatus = match.StatusLive
	return result
}

func (s *AutoLiveService) attachLiveHealth(ctx context.Context, item match.Match, result *AutoLiveResult) {
	if !item.HasStream() {
		return
	}
	entry, err := s.pool.Get(ctx, item.StreamPoolID)
	if err != nil {
		return
	}
	health, err := s.provider.GetStreamHealth(ctx, entry.ExternalStreamID)
	if err != nil {
		result.Message = "stream health unavailable: " + err.Error()
		return
	}
	result.StreamStatus = health.Status
	result.HealthStatus = health.HealthStatus
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
