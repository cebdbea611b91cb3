package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/live-match/internal/domain/broadcast"
	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/domain/scoring"
	"github.com/riskibarqy/live-match/internal/domain/streampool"
	"github.com/riskibarqy/live-match/internal/infrastructure/repository/memory"
	broadcastmock "github.com/riskibarqy/live-match/internal/mocks/domain/broadcast"
	"github.com/riskibarqy/live-match/internal/platform/logging"
	"github.com/riskibarqy/live-match/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "admin-token"

type routerEnv struct {
	router   http.Handler
	matches  *memory.MatchRepository
	pool     *memory.StreamPoolRepository
	provider *broadcastmock.Provider
}

func newRouterEnv(t *testing.T, poolSize int) *routerEnv {
	t.Helper()

	now := time.Now().UTC()
	entries := make([]streampool.Entry, 0, poolSize)
	for i := 1; i <= poolSize; i++ {
		entries = append(entries, streampool.Entry{
			ID:               fmt.Sprintf("e%d", i),
			ExternalStreamID: fmt.Sprintf("ext-e%d", i),
			IngestAddress:    "rtmp://ingest.example/live2",
			StreamCredential: fmt.Sprintf("key-e%d", i),
			Title:            fmt.Sprintf("Pool %d", i),
			Status:           streampool.StatusAvailable,
			CreatedAt:        now.Add(-time.Hour),
			UpdatedAt:        now.Add(-time.Hour),
		})
	}

	poolRepo := memory.NewStreamPoolRepository(entries...)
	matches := memory.NewMatchRepository()
	sets := memory.NewSetStore(matches)
	provider := broadcastmock.NewProvider(t)
	logger := logging.NewNop()

	poolSvc := usecase.NewStreamPoolService(poolRepo, provider, nil, nil, nil, usecase.StreamPoolConfig{
		OverlayBaseURL: "https://live.example",
	}, logger)
	matchSvc := usecase.NewMatchService(
		matches,
		memory.NewTeamRepository(memory.SeedTeams()),
		memory.NewTournamentRepository(memory.SeedTournaments()),
		poolSvc,
		provider,
		nil,
		nil,
		nil,
		usecase.MatchConfig{DefaultRules: scoring.DefaultRules()},
		logger,
	)
	autoLive := usecase.NewAutoLiveService(matches, poolSvc, provider, nil, nil, usecase.AutoLiveConfig{}, logger)
	scoreSvc := usecase.NewScoreService(matches, sets, scoring.DefaultRules(), nil, nil, logger)

	handler := NewHandler(matchSvc, poolSvc, autoLive, scoreSvc, logger)
	router := NewRouter(handler, logger, RouterConfig{
		AdminToken: testAdminToken,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})

	return &routerEnv{router: router, matches: matches, pool: poolRepo, provider: provider}
}

func (e *routerEnv) do(t *testing.T, method, path, body string, admin bool) (*httptest.ResponseRecorder, googleResponseEnvelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var envelope googleResponseEnvelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &envelope))
	}
	return rec, envelope
}

func decodeData[T any](t *testing.T, envelope googleResponseEnvelope) T {
	t.Helper()

	raw, err := sonic.Marshal(envelope.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, sonic.Unmarshal(raw, &out))
	return out
}

func (e *routerEnv) seedMatch(t *testing.T, matchID string, status match.Status, bind bool) {
	t.Helper()

	ctx := context.Background()
	item := match.Match{
		ID:           matchID,
		TeamID:       memory.TeamIDNorthFalcons,
		OpponentName: "Harbor Sharks",
		Status:       status,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if bind {
		entry, ok, err := e.pool.ReserveAvailable(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, e.pool.BindToMatch(ctx, entry.ID, matchID))
		if status == match.StatusLive {
			_, err := e.pool.MarkInUse(ctx, entry.ID)
			require.NoError(t, err)
		}
		item.StreamPoolID = entry.ID
		item.BroadcastID = "bc-" + matchID
	}
	require.NoError(t, e.matches.Create(ctx, item))
}

func TestHealthzAndMetricsArePublic(t *testing.T) {
	env := newRouterEnv(t, 0)

	rec, envelope := env.do(t, http.MethodGet, "/healthz", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "ok"}, envelope.Data)

	rec, _ = env.do(t, http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := newRouterEnv(t, 1)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/v1/matches"},
		{http.MethodGet, "/v1/matches/m1"},
		{http.MethodPost, "/v1/matches/m1/score"},
		{http.MethodGet, "/v1/stream-pool/status"},
		{http.MethodPost, "/v1/stream-pool/provision"},
	} {
		rec, envelope := env.do(t, route.method, route.path, `{}`, false)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
		require.NotNil(t, envelope.Error)
		assert.Equal(t, "UNAUTHENTICATED", envelope.Error.Status)
	}
}

func TestCreateMatchAndReplayByIdempotencyKey(t *testing.T) {
	env := newRouterEnv(t, 2)
	env.provider.On("CreateBroadcast", mock.Anything, mock.MatchedBy(func(req broadcast.CreateRequest) bool {
		return req.Title == "North Falcons vs Harbor Sharks - Spring Cup 2026"
	})).Return(broadcast.Broadcast{ID: "bc-1", WatchURL: "https://www.youtube.com/watch?v=bc-1"}, nil).Once()
	env.provider.On("BindStream", mock.Anything, "bc-1", "ext-e1").Return(nil).Once()

	body := `{"teamId":"team-north-falcons","opponentName":" Harbor Sharks ","tournamentId":"tournament-spring-cup-2026","courtLabel":"Court 1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/matches", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	req.Header.Set("Idempotency-Key", "form-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var envelope googleResponseEnvelope
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &envelope))
	created := decodeData[createMatchResponse](t, envelope)
	assert.False(t, created.Replayed)
	assert.Equal(t, match.StatusDraft, created.Match.Status)
	assert.Equal(t, "e1", created.Match.StreamPoolID)
	assert.Equal(t, "bc-1", created.Match.BroadcastID)
	assert.Equal(t, "Harbor Sharks", created.Match.OpponentName)

	replay := httptest.NewRequest(http.MethodPost, "/v1/matches", strings.NewReader(body))
	replay.Header.Set("Authorization", "Bearer "+testAdminToken)
	replay.Header.Set("Idempotency-Key", "form-123")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, replay)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &envelope))
	replayed := decodeData[createMatchResponse](t, envelope)
	assert.True(t, replayed.Replayed)
	assert.Equal(t, created.Match.ID, replayed.Match.ID)

	rec, envelope = env.do(t, http.MethodGet, "/v1/matches/"+created.Match.ID, "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decodeData[matchDTO](t, envelope)
	assert.Equal(t, created.Match.ID, fetched.ID)
	assert.Contains(t, fetched.AllowedNext, match.StatusCanceled)
}

func TestCreateMatchRejectsInvalidPayload(t *testing.T) {
	env := newRouterEnv(t, 1)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing opponent", body: `{"teamId":"team-north-falcons"}`},
		{name: "unknown field", body: `{"teamId":"team-north-falcons","opponentName":"X","colour":"red"}`},
		{name: "bad rules", body: `{"teamId":"team-north-falcons","opponentName":"X","rules":{"bestOf":4}}`},
		{name: "malformed json", body: `{"teamId":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, envelope := env.do(t, http.MethodPost, "/v1/matches", tt.body, true)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			require.NotNil(t, envelope.Error)
			assert.Equal(t, "invalidInput", envelope.Error.Errors[0].Reason)
		})
	}

	entry, ok, err := env.pool.GetByID(context.Background(), "e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, streampool.StatusAvailable, entry.Status)
}

func TestCreateMatchReportsPoolExhaustion(t *testing.T) {
	env := newRouterEnv(t, 0)

	rec, envelope := env.do(t, http.MethodPost, "/v1/matches", `{"teamId":"team-north-falcons","opponentName":"Harbor Sharks"}`, true)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "noStreamsAvailable", envelope.Error.Errors[0].Reason)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	env.provider.AssertNotCalled(t, "CreateBroadcast", mock.Anything, mock.Anything)
}

func TestUpdateMatchStatusAndConflicts(t *testing.T) {
	env := newRouterEnv(t, 1)
	env.seedMatch(t, "m1", match.StatusScheduled, true)

	rec, envelope := env.do(t, http.MethodPatch, "/v1/matches/m1", `{"status":"ready"}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, match.StatusReady, decodeData[matchDTO](t, envelope).Status)

	rec, envelope = env.do(t, http.MethodPatch, "/v1/matches/m1", `{"status":"draft"}`, true)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "stateConflict", envelope.Error.Errors[0].Reason)

	rec, _ = env.do(t, http.MethodPatch, "/v1/matches/m1", `{"status":"paused"}`, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPatch, "/v1/matches/missing", `{"courtLabel":"Court 2"}`, true)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelMatchReleasesStream(t *testing.T) {
	env := newRouterEnv(t, 1)
	env.seedMatch(t, "m1", match.StatusDraft, true)
	env.provider.On("DeleteBroadcast", mock.Anything, "bc-m1").Return(nil).Once()

	rec, envelope := env.do(t, http.MethodPost, "/v1/matches/m1/cancel", "", true)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeData[matchChangeResponse](t, envelope)
	assert.Equal(t, match.StatusCanceled, result.Match.Status)
	assert.Empty(t, result.Match.StreamPoolID)
	assert.True(t, result.External.Attempted)
	assert.True(t, result.External.Succeeded)

	entry, _, err := env.pool.GetByID(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, streampool.StatusAvailable, entry.Status)
}

func TestEndMatchKeepsLocalChangeWhenProviderFails(t *testing.T) {
	env := newRouterEnv(t, 1)
	env.seedMatch(t, "m1", match.StatusLive, true)
	env.provider.On("TransitionBroadcast", mock.Anything, "bc-m1", broadcast.TargetComplete).
		Return(fmt.Errorf("provider unavailable")).Once()

	rec, envelope := env.do(t, http.MethodPost, "/v1/matches/m1/end", "", true)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeData[matchChangeResponse](t, envelope)
	assert.Equal(t, match.StatusEnded, result.Match.Status)
	assert.True(t, result.External.Attempted)
	assert.False(t, result.External.Succeeded)
	assert.NotEmpty(t, result.External.Error)
}

func TestStreamConnectionIncludesOverlayURL(t *testing.T) {
	env := newRouterEnv(t, 1)
	env.seedMatch(t, "m1", match.StatusDraft, true)

	rec, envelope := env.do(t, http.MethodGet, "/v1/matches/m1/stream-connection", "", true)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	conn := decodeData[streampool.Connection](t, envelope)
	assert.Equal(t, "rtmp://ingest.example/live2", conn.IngestAddress)
	assert.Equal(t, "key-e1", conn.StreamCredential)
	assert.Equal(t, "https://live.example/overlay/m1", conn.OverlayURL)
}

func TestAutoLiveAddsHealthOnlyForPublicCallers(t *testing.T) {
	env := newRouterEnv(t, 1)
	env.seedMatch(t, "m1", match.StatusLive, true)
	env.provider.On("GetStreamHealth", mock.Anything, "ext-e1").
		Return(broadcast.StreamHealth{Status: "active", HealthStatus: "good"}, nil).Once()

	rec, envelope := env.do(t, http.MethodPost, "/v1/matches/m1/auto-live", "", true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	adminResult := decodeData[usecase.AutoLiveResult](t, envelope)
	assert.Equal(t, usecase.AutoLiveAlreadyLive, adminResult.State)
	assert.Empty(t, adminResult.HealthStatus)

	rec, envelope = env.do(t, http.MethodGet, "/v1/public/matches/m1/auto-live", "", false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	publicResult := decodeData[usecase.AutoLiveResult](t, envelope)
	assert.Equal(t, usecase.AutoLiveAlreadyLive, publicResult.State)
	assert.Equal(t, "good", publicResult.HealthStatus)
}

func TestScoreActionsAndPublicSnapshot(t *testing.T) {
	env := newRouterEnv(t, 0)
	env.seedMatch(t, "m1", match.StatusLive, false)

	for i := 0; i < 3; i++ {
		rec, _ := env.do(t, http.MethodPost, "/v1/matches/m1/score", `{"action":"home_plus"}`, true)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec, envelope := env.do(t, http.MethodPost, "/v1/matches/m1/score", `{"action":"away_plus"}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scored := decodeData[scoreSnapshotDTO](t, envelope)
	require.Len(t, scored.Sets, 1)
	assert.Equal(t, 3, scored.Sets[0].Home)
	assert.Equal(t, 1, scored.Sets[0].Away)

	rec, envelope = env.do(t, http.MethodGet, "/v1/public/matches/m1/score", "", false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	public := decodeData[scoreSnapshotDTO](t, envelope)
	assert.Equal(t, scored.State, public.State)
	assert.Equal(t, 25, public.State.Sets[0].Target)

	rec, envelope = env.do(t, http.MethodPost, "/v1/matches/m1/score", `{"action":"next_set"}`, true)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "stateConflict", envelope.Error.Errors[0].Reason)

	rec, _ = env.do(t, http.MethodPost, "/v1/matches/m1/score", `{"action":"ace"}`, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/v1/public/matches/missing/score", "", false)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamPoolStatusAndProvision(t *testing.T) {
	env := newRouterEnv(t, 2)
	env.provider.On("CreatePhysicalStream", mock.Anything, mock.AnythingOfType("string")).
		Return(broadcast.PhysicalStream{ExternalStreamID: "ext-new", IngestAddress: "rtmp://ingest.example/live2", StreamCredential: "key-new"}, nil).Once()
	env.provider.On("CreatePhysicalStream", mock.Anything, mock.AnythingOfType("string")).
		Return(broadcast.PhysicalStream{}, fmt.Errorf("quota exceeded")).Once()

	rec, envelope := env.do(t, http.MethodGet, "/v1/stream-pool/status", "", true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeData[streampool.Summary](t, envelope)
	assert.Equal(t, 2, summary.Available)
	assert.Equal(t, 2, summary.Total)

	rec, envelope = env.do(t, http.MethodPost, "/v1/stream-pool/provision", `{"count":2}`, true)
	require.Equal(t, http.StatusMultiStatus, rec.Code, rec.Body.String())
	provisioned := decodeData[provisionResponse](t, envelope)
	assert.Equal(t, 2, provisioned.Requested)
	assert.Equal(t, 1, provisioned.Created)
	assert.Len(t, provisioned.EntryIDs, 1)
	assert.Len(t, provisioned.Errors, 1)

	rec, _ = env.do(t, http.MethodPost, "/v1/stream-pool/provision", `{"count":50}`, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTeamsReturnsEnabledOnly(t *testing.T) {
	env := newRouterEnv(t, 0)

	rec, _ := env.do(t, http.MethodGet, "/v1/teams", "", false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, envelope := env.do(t, http.MethodGet, "/v1/teams", "", true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	teams := decodeData[[]teamDTO](t, envelope)
	require.Len(t, teams, 2)
	for _, item := range teams {
		assert.NotEmpty(t, item.Slug)
		assert.NotEmpty(t, item.Name)
	}
}

func TestStreamPoolCleanupDeletesRetiredEntries(t *testing.T) {
	env := newRouterEnv(t, 1)
	ctx := context.Background()
	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	require.NoError(t, env.pool.Insert(ctx, streampool.Entry{
		ID: "d1", ExternalStreamID: "ext-d1", IngestAddress: "rtmp://x", StreamCredential: "k",
		Status: streampool.StatusDisabled, UpdatedAt: old,
	}))

	rec, _ := env.do(t, http.MethodPost, "/v1/stream-pool/cleanup", "", false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, envelope := env.do(t, http.MethodPost, "/v1/stream-pool/cleanup", "", true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeData[cleanupResponse](t, envelope).Deleted)

	_, exists, err := env.pool.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, exists)
	_, exists, err = env.pool.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, exists)
}
