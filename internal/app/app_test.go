package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/riskibarqy/live-match/internal/config"
	"github.com/riskibarqy/live-match/internal/domain/scoring"
	"github.com/riskibarqy/live-match/internal/platform/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() config.Config {
	return config.Config{
		AppEnv:                         config.EnvDev,
		ServiceName:                    "live-match-api",
		HTTPAddr:                       ":0",
		AdminAPIToken:                  "admin",
		CORSAllowedOrigins:             []string{"*"},
		StoreBackend:                   config.StoreBackendMemory,
		CacheBackend:                   config.CacheBackendMemory,
		CacheTTL:                       30 * time.Second,
		PoolProvisionConcurrency:       2,
		DefaultRules:                   scoring.DefaultRules(),
		AuditWorkers:                   1,
		AuditWriteTimeout:              time.Second,
		BroadcastCircuitFailureCount:   1,
		BroadcastCircuitHalfOpenMaxReq: 1,
		MetricsEnabled:                 true,
	}
}

func TestNewHTTPServer_MemoryBackend(t *testing.T) {
	srv, err := NewHTTPServer(context.Background(), memoryConfig(), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, srv.Cleanup()) })

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stream-pool/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewHTTPServer_MetricsDisabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.MetricsEnabled = false
	cfg.CacheBackend = config.CacheBackendNone

	srv, err := NewHTTPServer(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Cleanup() })

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewHTTPServer_RejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "sqlite"
	_, err := NewHTTPServer(context.Background(), cfg, logging.NewNop())
	require.Error(t, err)

	cfg = memoryConfig()
	cfg.HTTPAddr = ""
	_, err = NewHTTPServer(context.Background(), cfg, logging.NewNop())
	require.Error(t, err)
}

func TestServerCleanup_CombinesErrorsInReverseOrder(t *testing.T) {
	var order []int
	srv := &Server{closers: []func() error{
		func() error { order = append(order, 1); return errors.New("first") },
		func() error { order = append(order, 2); return nil },
		func() error { order = append(order, 3); return errors.New("third") },
	}}

	err := srv.Cleanup()
	require.Error(t, err)
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.Contains(t, err.Error(), "third")
}
