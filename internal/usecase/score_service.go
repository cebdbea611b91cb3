package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/riskibarqy/live-match/internal/domain/audit"
	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/domain/scoring"
	"github.com/riskibarqy/live-match/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

type ScoreAction string

const (
	ScoreHomePlus  ScoreAction = "home_plus"
	ScoreHomeMinus ScoreAction = "home_minus"
	ScoreAwayPlus  ScoreAction = "away_plus"
	ScoreAwayMinus ScoreAction = "away_minus"
	ScoreNextSet   ScoreAction = "next_set"
	ScoreResetSet  ScoreAction = "reset_set"
)

func ParseScoreAction(raw string) (ScoreAction, error) {
	action := ScoreAction(strings.ToLower(strings.TrimSpace(raw)))
	switch action {
	case ScoreHomePlus, ScoreHomeMinus, ScoreAwayPlus, ScoreAwayMinus, ScoreNextSet, ScoreResetSet:
		return action, nil
	default:
		return "", fmt.Errorf("%w: unknown score action %q", ErrInvalidInput, raw)
	}
}

// ScoreSnapshot is the authoritative score view, always derived from the
// stored set rows.
type ScoreSnapshot struct {
	MatchID string             `json:"matchId"`
	Status  match.Status       `json:"status"`
	Rules   scoring.Rules      `json:"rules"`
	State   scoring.MatchState `json:"state"`
	Sets    []scoring.SetScore `json:"-"`
}

type ScoreService struct {
	matchRepo    match.Repository
	sets         scoring.SetStore
	defaultRules scoring.Rules
	audit        audit.Sink
	metrics      Metrics
	logger       *logging.Logger
	now          func() time.Time
}

func NewScoreService(
	matchRepo match.Repository,
	sets scoring.SetStore,
	defaultRules scoring.Rules,
	sink audit.Sink,
	metrics Metrics,
	logger *logging.Logger,
) *ScoreService {
	if defaultRules == (scoring.Rules{}) {
		defaultRules = scoring.DefaultRules()
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

	return &ScoreService{
		matchRepo:    matchRepo,
		sets:         sets,
		defaultRules: defaultRules,
		audit:        sink,
		metrics:      metrics,
		logger:       logger.Named("score"),
		now:          time.Now,
	}
}

// ApplyAction mutates the current set inside one locked transaction per match
// and returns the state derived from the rows that transaction committed. override lifts the
// completeness guards and allows corrections on closed matches.
func (s *ScoreService) ApplyAction(ctx context.Context, matchID string, action ScoreAction, override bool) (ScoreSnapshot, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScoreService.ApplyAction")
	defer span.End()
	span.SetAttributes(attribute.String("score.action", string(action)), attribute.Bool("score.override", override))

	snapshot, err := s.applyAction(ctx, matchID, action, override)
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	s.metrics.IncScoreAction(string(action), outcome)
	return snapshot, err
}

func (s *ScoreService) applyAction(ctx context.Context, matchID string, action ScoreAction, override bool) (ScoreSnapshot, error) {
	if _, err := ParseScoreAction(string(action)); err != nil {
		return ScoreSnapshot{}, err
	}

	// The closed check runs against the status read under the match lock,
	// not the one loaded here.
	item, rules, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return ScoreSnapshot{}, err
	}

	var committed []scoring.SetScore
	var status match.Status
	err = s.sets.WithinMatchTx(ctx, item.ID, func(ctx context.Context, tx scoring.SetTx) error {
		raw, err := tx.MatchStatus(ctx)
		if err != nil {
			return fmt.Errorf("match status: %w", err)
		}
		status = match.Status(raw)
		if closedForScoring(status) && !override {
			return fmt.Errorf("%w: match is %s, use override to correct scores", ErrConflict, status)
		}

		if err := s.mutate(ctx, tx, rules, action, override); err != nil {
			return err
		}

		committed, err = tx.ListSets(ctx)
		if err != nil {
			return fmt.Errorf("list sets: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, scoring.ErrMatchNotFound) {
			return ScoreSnapshot{}, fmt.Errorf("%w: match=%s", ErrNotFound, item.ID)
		}
		return ScoreSnapshot{}, err
	}

	if override {
		s.audit.Record(ctx, audit.ActionScoreCorrected, map[string]any{
			"matchId": item.ID,
			"action":  string(action),
		})
	}

	return ScoreSnapshot{
		MatchID: item.ID,
		Status:  status,
		Rules:   rules,
		State:   scoring.DeriveMatchState(committed, rules),
		Sets:    committed,
	}, nil
}

func (s *ScoreService) mutate(ctx context.Context, tx scoring.SetTx, rules scoring.Rules, action ScoreAction, override bool) error {
	stored, err := tx.ListSets(ctx)
	if err != nil {
		return fmt.Errorf("list sets: %w", err)
	}
	state := scoring.DeriveMatchState(stored, rules)

	current, err := tx.EnsureSet(ctx, state.CurrentSetNumber)
	if err != nil {
		return fmt.Errorf("ensure set %d: %w", state.CurrentSetNumber, err)
	}
	target := scoring.TargetPointsFor(rules, current.SetNumber)
	setComplete := scoring.IsSetComplete(current.HomeScore, current.AwayScore, target, rules.WinBy)

	switch action {
	case ScoreNextSet:
		if !override {
			if state.Complete {
				return fmt.Errorf("%w: match already complete", ErrConflict)
			}
			if !setComplete {
				return fmt.Errorf("%w: set %d is not complete (%d-%d, target %d)", ErrConflict, current.SetNumber, current.HomeScore, current.AwayScore, target)
			}
		}
		next := current.SetNumber + 1
		if next > rules.BestOf {
			return fmt.Errorf("%w: no more sets available (best of %d)", ErrConflict, rules.BestOf)
		}
		if _, err := tx.EnsureSet(ctx, next); err != nil {
			return fmt.Errorf("ensure set %d: %w", next, err)
		}
		return nil
	case ScoreResetSet:
		current.HomeScore = 0
		current.AwayScore = 0
	default:
		if setComplete && !override {
			return fmt.Errorf("%w: set %d already complete", ErrConflict, current.SetNumber)
		}
		applyPoint(&current, action)
	}

	current.UpdatedAt = s.now().UTC()
	if err := tx.SaveSet(ctx, current); err != nil {
		return fmt.Errorf("save set %d: %w", current.SetNumber, err)
	}
	return nil
}

// Snapshot returns the current derived score. Rules are re-validated on every
// read since a stored override may predate the current defaults.
func (s *ScoreService) Snapshot(ctx context.Context, matchID string) (ScoreSnapshot, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScoreService.Snapshot")
	defer span.End()

	item, rules, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return ScoreSnapshot{}, err
	}
	return s.snapshot(ctx, item, rules)
}

func (s *ScoreService) loadMatch(ctx context.Context, matchID string) (match.Match, scoring.Rules, error) {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return match.Match{}, scoring.Rules{}, fmt.Errorf("%w: match id is required", ErrInvalidInput)
	}

	item, exists, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return match.Match{}, scoring.Rules{}, fmt.Errorf("get match: %w", err)
	}
	if !exists {
		return match.Match{}, scoring.Rules{}, fmt.Errorf("%w: match=%s", ErrNotFound, matchID)
	}

	rules := item.EffectiveRules(s.defaultRules)
	if err := scoring.ValidateRules(rules); err != nil {
		return match.Match{}, scoring.Rules{}, fmt.Errorf("match=%s: %w", item.ID, err)
	}
	return item, rules, nil
}

func (s *ScoreService) snapshot(ctx context.Context, item match.Match, rules scoring.Rules) (ScoreSnapshot, error) {
	stored, err := s.sets.ListSets(ctx, item.ID)
	if err != nil {
		if errors.Is(err, scoring.ErrMatchNotFound) {
			return ScoreSnapshot{}, fmt.Errorf("%w: match=%s", ErrNotFound, item.ID)
		}
		return ScoreSnapshot{}, fmt.Errorf("list sets: %w", err)
	}

	return ScoreSnapshot{
		MatchID: item.ID,
		Status:  item.Status,
		Rules:   rules,
		State:   scoring.DeriveMatchState(stored, rules),
		Sets:    stored,
	}, nil
}

func applyPoint(set *scoring.SetScore, action ScoreAction) {
	switch action {
	case ScoreHomePlus:
		set.HomeScore++
	case ScoreHomeMinus:
		set.HomeScore = max(set.HomeScore-1, 0)
	case ScoreAwayPlus:
		set.AwayScore++
	case ScoreAwayMinus:
		set.AwayScore = max(set.AwayScore-1, 0)
	}
}

func closedForScoring(status match.Status) bool {
	return status.IsTerminal()
}
