package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskibarqy/live-match/internal/domain/audit"
	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/domain/scoring"
	"github.com/riskibarqy/live-match/internal/domain/streampool"
	"github.com/riskibarqy/live-match/internal/infrastructure/repository/memory"
	broadcastmock "github.com/riskibarqy/live-match/internal/mocks/domain/broadcast"
	"github.com/riskibarqy/live-match/internal/platform/logging"
	"github.com/stretchr/testify/require"
)

type sequentialIDs struct {
	prefix string
	n      atomic.Int64
}

func (g *sequentialIDs) NewID() (string, error) {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1)), nil
}

type testEnv struct {
	ctx      context.Context
	now      time.Time
	matches  *memory.MatchRepository
	pool     *memory.StreamPoolRepository
	sets     *memory.SetStore
	audit    *recordingSink
	provider *broadcastmock.Provider
	poolSvc  *StreamPoolService
	matchSvc *MatchService
	autoLive *AutoLiveService
	scoreSvc *ScoreService
}

func newTestEnv(t *testing.T, poolSize int) *testEnv {
	t.Helper()

	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	entries := make([]streampool.Entry, 0, poolSize)
	for i := 1; i <= poolSize; i++ {
		entries = append(entries, streampool.Entry{
			ID:               fmt.Sprintf("e%d", i),
			ExternalStreamID: fmt.Sprintf("ext-e%d", i),
			IngestAddress:    "rtmp://ingest.example/live2",
			StreamCredential: fmt.Sprintf("key-e%d", i),
			Title:            fmt.Sprintf("Pool %d", i),
			Status:           streampool.StatusAvailable,
			CreatedAt:        now.Add(-24 * time.Hour),
			UpdatedAt:        now.Add(-24 * time.Hour),
		})
	}
	poolRepo := memory.NewStreamPoolRepository(entries...)
	poolRepo.SetClock(clock)

	matches := memory.NewMatchRepository()
	sets := memory.NewSetStore(matches)
	provider := broadcastmock.NewProvider(t)
	sink := &recordingSink{}
	logger := logging.NewNop()

	poolSvc := NewStreamPoolService(poolRepo, provider, &sequentialIDs{prefix: "entry"}, sink, nil, StreamPoolConfig{
		StuckThreshold:       6 * time.Hour,
		ProvisionConcurrency: 2,
		OverlayBaseURL:       "https://live.example",
	}, logger)
	poolSvc.now = clock

	matchSvc := NewMatchService(
		matches,
		memory.NewTeamRepository(memory.SeedTeams()),
		memory.NewTournamentRepository(memory.SeedTournaments()),
		poolSvc,
		provider,
		&sequentialIDs{prefix: "match"},
		sink,
		nil,
		MatchConfig{DefaultRules: scoring.DefaultRules()},
		logger,
	)
	matchSvc.now = clock

	autoLive := NewAutoLiveService(matches, poolSvc, provider, sink, nil, AutoLiveConfig{SettleDelay: time.Second}, logger)
	autoLive.now = clock
	autoLive.sleep = func(context.Context, time.Duration) error { return nil }

	scoreSvc := NewScoreService(matches, sets, scoring.DefaultRules(), sink, nil, logger)
	scoreSvc.now = clock

	return &testEnv{
		ctx:      context.Background(),
		now:      now,
		matches:  matches,
		pool:     poolRepo,
		sets:     sets,
		audit:    sink,
		provider: provider,
		poolSvc:  poolSvc,
		matchSvc: matchSvc,
		autoLive: autoLive,
		scoreSvc: scoreSvc,
	}
}

func (e *testEnv) entry(t *testing.T, entryID string) streampool.Entry {
	t.Helper()
	item, ok, err := e.pool.GetByID(e.ctx, entryID)
	require.NoError(t, err)
	require.True(t, ok, "entry %s missing", entryID)
	return item
}

func (e *testEnv) storedMatch(t *testing.T, matchID string) match.Match {
	t.Helper()
	item, ok, err := e.matches.GetByID(e.ctx, matchID)
	require.NoError(t, err)
	require.True(t, ok, "match %s missing", matchID)
	return item
}

// seedMatch stores a match bound to entryID (reserved or in use) without
// going through the provider.
func (e *testEnv) seedMatch(t *testing.T, matchID string, status match.Status, entryID string) match.Match {
	t.Helper()

	item := match.Match{
		ID:           matchID,
		TeamID:       memory.TeamIDNorthFalcons,
		OpponentName: "Harbor Sharks",
		Status:       status,
		CreatedAt:    e.now,
		UpdatedAt:    e.now,
	}
	if entryID != "" {
		reserved, ok, err := e.pool.ReserveAvailable(e.ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, entryID, reserved.ID)
		require.NoError(t, e.pool.BindToMatch(e.ctx, entryID, matchID))
		if status == match.StatusLive {
			_, err := e.pool.MarkInUse(e.ctx, entryID)
			require.NoError(t, err)
		}
		item.StreamPoolID = entryID
		item.BroadcastID = "bc-" + matchID
	}
	require.NoError(t, e.matches.Create(e.ctx, item))
	return item
}

type recordingSink struct {
	mu      sync.Mutex
	actions []audit.Action
}

func (s *recordingSink) Record(_ context.Context, action audit.Action, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
}

func (s *recordingSink) has(action audit.Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, recorded := range s.actions {
		if recorded == action {
			return true
		}
	}
	return false
}
