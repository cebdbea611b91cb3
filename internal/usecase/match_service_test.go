package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/riskibarqy/live-match/internal/domain/audit"
	"github.com/riskibarqy/live-match/internal/domain/broadcast"
	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/domain/scoring"
	"github.com/riskibarqy/live-match/internal/domain/streampool"
	"github.com/riskibarqy/live-match/internal/domain/team"
	"github.com/riskibarqy/live-match/internal/infrastructure/repository/memory"
	teammock "github.com/riskibarqy/live-match/internal/mocks/domain/team"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) expectBroadcastCreated(broadcastID, externalStreamID string) {
	e.provider.
		On("CreateBroadcast", mock.Anything, mock.AnythingOfType("broadcast.CreateRequest")).
		Return(broadcast.Broadcast{ID: broadcastID, WatchURL: "https://watch.example/" + broadcastID}, nil).
		Once()
	e.provider.
		On("BindStream", mock.Anything, broadcastID, externalStreamID).
		Return(nil).
		Once()
}

func TestMatchService_CreateMatch_ReservesAndBindsStream(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 2)
	env.provider.
		On("CreateBroadcast", mock.Anything, mock.MatchedBy(func(req broadcast.CreateRequest) bool {
			return req.Title == "North Falcons vs Harbor Sharks - Spring Cup 2026" &&
				req.ScheduledStart.Equal(env.now.Add(5*time.Minute)) &&
				req.Privacy == broadcast.PrivacyUnlisted
		})).
		Return(broadcast.Broadcast{ID: "bc-1", WatchURL: "https://watch.example/bc-1"}, nil).
		Once()
	env.provider.On("BindStream", mock.Anything, "bc-1", "ext-e1").Return(nil).Once()

	result, err := env.matchSvc.CreateMatch(env.ctx, CreateMatchInput{
		TeamID:       memory.TeamIDNorthFalcons,
		OpponentName: "  Harbor Sharks ",
		TournamentID: memory.TournamentIDSpringCup,
		// Ignored when a tournament id is given.
		TournamentName: "Free text cup",
	})
	require.NoError(t, err)
	assert.False(t, result.Replayed)

	created := env.storedMatch(t, result.Match.ID)
	assert.Equal(t, match.StatusDraft, created.Status)
	assert.Equal(t, "Harbor Sharks", created.OpponentName)
	assert.Equal(t, "e1", created.StreamPoolID)
	assert.Equal(t, "bc-1", created.BroadcastID)
	assert.Empty(t, created.TournamentName)

	entry := env.entry(t, "e1")
	assert.Equal(t, streampool.StatusReserved, entry.Status)
	assert.Equal(t, created.ID, entry.ReservedMatchID)
	assert.True(t, env.audit.has(audit.ActionMatchCreated))
}

func TestMatchService_CreateMatch_ScheduledStartSetsScheduled(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 1)
	start := env.now.Add(48 * time.Hour)
	env.provider.
		On("CreateBroadcast", mock.Anything, mock.MatchedBy(func(req broadcast.CreateRequest) bool {
			return req.ScheduledStart.Equal(start)
		})).
		Return(broadcast.Broadcast{ID: "bc-1"}, nil).
		Once()
	env.provider.On("BindStream", mock.Anything, "bc-1", "ext-e1").Return(nil).Once()

	result, err := env.matchSvc.CreateMatch(env.ctx, CreateMatchInput{
		TeamID:         memory.TeamIDNorthFalcons,
		OpponentName:   "Harbor Sharks",
		ScheduledStart: &start,
	})
	require.NoError(t, err)
	assert.Equal(t, match.StatusScheduled, result.Match.Status)
}

func TestMatchService_CreateMatch_BroadcastFailureReleasesReservation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 1)
	env.provider.
		On("CreateBroadcast", mock.Anything, mock.Anything).
		Return(broadcast.Broadcast{}, errors.New("provider 503")).
		Once()

	_, err := env.matchSvc.CreateMatch(env.ctx, CreateMatchInput{
		TeamID:       memory.TeamIDNorthFalcons,
		OpponentName: "Harbor Sharks",
	})
	require.Error(t, err)
	assert.Equal(t, KindDependency, KindOf(err))
	assert.True(t, KindOf(err).Retryable())

	summary, err := env.poolSvc.Summary(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Available)
	assert.Equal(t, 0, summary.Reserved)
	assert.True(t, env.audit.has(audit.ActionMatchRollback))
	env.provider.AssertNotCalled(t, "DeleteBroadcast", mock.Anything, mock.Anything)
}

func TestMatchService_CreateMatch_BindFailureDeletesBroadcast(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 1)
	env.provider.
		On("CreateBroadcast", mock.Anything, mock.Anything).
		Return(broadcast.Broadcast{ID: "bc-1"}, nil).
		Once()
	env.provider.On("BindStream", mock.Anything, "bc-1", "ext-e1").Return(errors.New("stream not found")).Once()
	env.provider.On("DeleteBroadcast", mock.Anything, "bc-1").Return(errors.New("still failing")).Once()

	_, err := env.matchSvc.CreateMatch(env.ctx, CreateMatchInput{
		TeamID:       memory.TeamIDNorthFalcons,
		OpponentName: "Harbor Sharks",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind broadcast bc-1")
	assert.Equal(t, streampool.StatusAvailable, env.entry(t, "e1").Status)
}

func TestMatchService_CreateMatch_IdempotencyKeyReplays(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 3)
	env.expectBroadcastCreated("bc-1", "ext-e1")

	input := CreateMatchInput{
		TeamID:         memory.TeamIDNorthFalcons,
		OpponentName:   "Harbor Sharks",
		IdempotencyKey: "submit-123",
	}
	first, err := env.matchSvc.CreateMatch(env.ctx, input)
	require.NoError(t, err)

	second, err := env.matchSvc.CreateMatch(env.ctx, input)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Match.ID, second.Match.ID)

	counts, err := env.pool.CountByStatus(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[streampool.StatusReserved])
	assert.Equal(t, 2, counts[streampool.StatusAvailable])
}

func TestMatchService_CreateMatch_IdempotencyRaceReleasesLoser(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 2)
	winner := match.Match{ID: "winner", TeamID: memory.TeamIDNorthFalcons, Status: match.StatusDraft, IdempotencyKey: "k-1"}

	env.provider.
		On("CreateBroadcast", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			// A concurrent request stores the same key while this one talks to the provider.
			require.NoError(t, env.matches.Create(env.ctx, winner))
		}).
		Return(broadcast.Broadcast{ID: "bc-loser"}, nil).
		Once()
	env.provider.On("BindStream", mock.Anything, "bc-loser", "ext-e1").Return(nil).Once()
	env.provider.On("DeleteBroadcast", mock.Anything, "bc-loser").Return(nil).Once()

	result, err := env.matchSvc.CreateMatch(env.ctx, CreateMatchInput{
		TeamID:         memory.TeamIDNorthFalcons,
		OpponentName:   "Harbor Sharks",
		IdempotencyKey: "k-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, "winner", result.Match.ID)
	assert.Equal(t, streampool.StatusAvailable, env.entry(t, "e1").Status)
}

func TestMatchService_CreateMatch_PoolExhausted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	_, err := env.matchSvc.CreateMatch(env.ctx, CreateMatchInput{
		TeamID:       memory.TeamIDNorthFalcons,
		OpponentName: "Harbor Sharks",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoStreamsAvailable)
	assert.Equal(t, KindExhausted, KindOf(err))

	var exhausted *PoolExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 0, exhausted.Summary.Total)
}

func TestMatchService_CreateMatch_ValidationFailures(t *testing.T) {
	t.Parallel()

	badBestOf := 4
	tests := []struct {
		name  string
		input CreateMatchInput
		kind  Kind
	}{
		{name: "missing opponent", input: CreateMatchInput{TeamID: memory.TeamIDNorthFalcons}, kind: KindValidation},
		{name: "court too long", input: CreateMatchInput{TeamID: memory.TeamIDNorthFalcons, OpponentName: "X", CourtLabel: string(make([]byte, 41))}, kind: KindValidation},
		{name: "unknown team", input: CreateMatchInput{TeamID: "ghost", OpponentName: "X"}, kind: KindNotFound},
		{name: "unknown tournament", input: CreateMatchInput{TeamID: memory.TeamIDNorthFalcons, OpponentName: "X", TournamentID: "ghost"}, kind: KindNotFound},
		{name: "invalid rules", input: CreateMatchInput{TeamID: memory.TeamIDNorthFalcons, OpponentName: "X", Rules: &scoring.RulesOverride{BestOf: &badBestOf}}, kind: KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 1)
			_, err := env.matchSvc.CreateMatch(env.ctx, tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, streampool.StatusAvailable, env.entry(t, "e1").Status)
		})
	}
}

func TestMatchService_CreateMatch_TeamLookupFailureUsingMockery(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 1)
	teamRepo := teammock.NewRepository(t)
	teamRepo.
		On("GetByID", mock.Anything, "t-1").
		Return(team.Team{}, false, errors.New("connection reset")).
		Once()
	env.matchSvc.teamRepo = teamRepo

	_, err := env.matchSvc.CreateMatch(env.ctx, CreateMatchInput{TeamID: "t-1", OpponentName: "X"})
	require.Error(t, err)
	assert.Equal(t, KindFatal, KindOf(err))
}

func TestMatchService_ListTeams(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	teams, err := env.matchSvc.ListTeams(env.ctx)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	for _, item := range teams {
		assert.True(t, item.Enabled, item.ID)
	}

	teamRepo := teammock.NewRepository(t)
	teamRepo.On("ListEnabled", mock.Anything).Return(nil, errors.New("connection reset")).Once()
	env.matchSvc.teamRepo = teamRepo

	_, err = env.matchSvc.ListTeams(env.ctx)
	require.Error(t, err)
	assert.Equal(t, KindFatal, KindOf(err))
}

func TestMatchService_CancelMatch(t *testing.T) {
	t.Parallel()

	t.Run("rejects live", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.seedMatch(t, "m1", match.StatusLive, "e1")

		_, err := env.matchSvc.CancelMatch(env.ctx, "m1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot cancel a live match")
		assert.Equal(t, KindStateConflict, KindOf(err))
	})

	t.Run("rejects ended", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.seedMatch(t, "m1", match.StatusEnded, "")

		_, err := env.matchSvc.CancelMatch(env.ctx, "m1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "match is already ended")
	})

	t.Run("releases stream of draft match", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.seedMatch(t, "m1", match.StatusDraft, "e1")
		env.provider.On("DeleteBroadcast", mock.Anything, "bc-m1").Return(nil).Once()

		result, err := env.matchSvc.CancelMatch(env.ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, match.StatusCanceled, result.Match.Status)
		assert.True(t, result.External.Succeeded)

		entry := env.entry(t, "e1")
		assert.Equal(t, streampool.StatusAvailable, entry.Status)
		assert.Empty(t, entry.ReservedMatchID)
		assert.Empty(t, env.storedMatch(t, "m1").StreamPoolID)
	})

	t.Run("ready match can be canceled", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.seedMatch(t, "m1", match.StatusReady, "e1")
		env.provider.On("DeleteBroadcast", mock.Anything, "bc-m1").Return(nil).Once()

		result, err := env.matchSvc.CancelMatch(env.ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, match.StatusCanceled, result.Match.Status)
	})

	t.Run("external failure does not block", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.seedMatch(t, "m1", match.StatusScheduled, "e1")
		env.provider.On("DeleteBroadcast", mock.Anything, "bc-m1").Return(errors.New("timeout")).Once()

		result, err := env.matchSvc.CancelMatch(env.ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, ExternalOutcome{Attempted: true, Succeeded: false, Error: "timeout"}, result.External)
		assert.Equal(t, match.StatusCanceled, env.storedMatch(t, "m1").Status)
		assert.Equal(t, streampool.StatusAvailable, env.entry(t, "e1").Status)
	})
}

func TestMatchService_EndMatch(t *testing.T) {
	t.Parallel()

	t.Run("already ended is a no-op", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.seedMatch(t, "m1", match.StatusEnded, "")

		result, err := env.matchSvc.EndMatch(env.ctx, "m1")
		require.NoError(t, err)
		assert.False(t, result.External.Attempted)
	})

	t.Run("rejects canceled", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.seedMatch(t, "m1", match.StatusCanceled, "")

		_, err := env.matchSvc.EndMatch(env.ctx, "m1")
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("completes broadcast and releases stream", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.seedMatch(t, "m1", match.StatusLive, "e1")
		env.provider.
			On("TransitionBroadcast", mock.Anything, "bc-m1", broadcast.TargetComplete).
			Return(errors.New("provider down")).
			Once()

		result, err := env.matchSvc.EndMatch(env.ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, match.StatusEnded, result.Match.Status)
		assert.False(t, result.External.Succeeded)
		assert.Equal(t, streampool.StatusAvailable, env.entry(t, "e1").Status)
		assert.True(t, env.audit.has(audit.ActionMatchEnded))
	})
}

func TestMatchService_UpdateMatch(t *testing.T) {
	t.Parallel()

	statusPtr := func(s match.Status) *match.Status { return &s }
	strPtr := func(s string) *string { return &s }

	t.Run("opponent editable only in draft", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.seedMatch(t, "m1", match.StatusScheduled, "e1")

		_, err := env.matchSvc.UpdateMatch(env.ctx, "m1", UpdateMatchInput{OpponentName: strPtr("Other")})
		assert.ErrorIs(t, err, ErrConflict)

		updated, err := env.matchSvc.UpdateMatch(env.ctx, "m1", UpdateMatchInput{CourtLabel: strPtr(" Court 2 ")})
		require.NoError(t, err)
		assert.Equal(t, "Court 2", updated.CourtLabel)
	})

	t.Run("illegal transition names both states", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.seedMatch(t, "m1", match.StatusReady, "e1")

		_, err := env.matchSvc.UpdateMatch(env.ctx, "m1", UpdateMatchInput{Status: statusPtr(match.StatusScheduled)})
		require.Error(t, err)
		assert.ErrorIs(t, err, match.ErrIllegalTransition)
		assert.Contains(t, err.Error(), "ready")
		assert.Contains(t, err.Error(), "scheduled")
	})

	t.Run("live marks stream in use", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.seedMatch(t, "m1", match.StatusReady, "e1")

		updated, err := env.matchSvc.UpdateMatch(env.ctx, "m1", UpdateMatchInput{Status: statusPtr(match.StatusLive)})
		require.NoError(t, err)
		assert.Equal(t, match.StatusLive, updated.Status)
		assert.Equal(t, streampool.StatusInUse, env.entry(t, "e1").Status)
	})

	t.Run("ended releases stream", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.seedMatch(t, "m1", match.StatusLive, "e1")

		updated, err := env.matchSvc.UpdateMatch(env.ctx, "m1", UpdateMatchInput{Status: statusPtr(match.StatusEnded)})
		require.NoError(t, err)
		assert.Empty(t, updated.StreamPoolID)
		assert.Equal(t, streampool.StatusAvailable, env.entry(t, "e1").Status)
	})
}

func TestMatchService_StreamConnection(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 1)
	env.seedMatch(t, "m1", match.StatusDraft, "e1")
	env.seedMatch(t, "m2", match.StatusDraft, "")

	conn, err := env.matchSvc.StreamConnection(env.ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "ext-e1", conn.ExternalStreamID)
	assert.Equal(t, "https://live.example/overlay/m1", conn.OverlayURL)

	_, err = env.matchSvc.StreamConnection(env.ctx, "m2")
	assert.ErrorIs(t, err, ErrConflict)
}
