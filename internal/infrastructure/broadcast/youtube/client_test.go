package youtube

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/riskibarqy/live-match/internal/domain/broadcast"
	"github.com/riskibarqy/live-match/internal/platform/logging"
	"github.com/riskibarqy/live-match/internal/platform/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg ClientConfig) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL
	cfg.AccessToken = "token-123"
	cfg.RetryBackoff = time.Millisecond
	cfg.Logger = logging.NewNop()
	return NewClient(cfg)
}

func TestCreateBroadcastSendsSnippetAndStatus(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/liveBroadcasts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Errorf("unexpected authorization header %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		var body liveBroadcastInsert
		if err := sonic.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Snippet.Title != "North Falcons vs Harbor Sharks" {
			t.Errorf("unexpected title %q", body.Snippet.Title)
		}
		if body.Snippet.ScheduledStartTime != "2026-05-02T09:05:00Z" {
			t.Errorf("unexpected start %q", body.Snippet.ScheduledStartTime)
		}
		if body.Status.PrivacyStatus != "unlisted" {
			t.Errorf("unexpected privacy %q", body.Status.PrivacyStatus)
		}
		_, _ = w.Write([]byte(`{"id":"bc-1","snippet":{"title":"x"}}`))
	}, ClientConfig{})

	got, err := client.CreateBroadcast(context.Background(), broadcast.CreateRequest{
		Title:          "North Falcons vs Harbor Sharks",
		ScheduledStart: time.Date(2026, 5, 2, 16, 5, 0, 0, time.FixedZone("WIB", 7*3600)),
		Privacy:        broadcast.PrivacyUnlisted,
	})
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}
	if got.ID != "bc-1" || got.WatchURL != "https://www.youtube.com/watch?v=bc-1" {
		t.Fatalf("unexpected broadcast %+v", got)
	}
}

func TestCreateBroadcastIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, ClientConfig{MaxRetries: 3})

	_, err := client.CreateBroadcast(context.Background(), broadcast.CreateRequest{Title: "t"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestTransitionRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("broadcastStatus") != "live" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"id":"bc-1"}`))
	}, ClientConfig{MaxRetries: 2})

	if err := client.TransitionBroadcast(context.Background(), "bc-1", broadcast.TargetLive); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestProviderErrorReasonsMapToSentinels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "redundant transition",
			status: http.StatusForbidden,
			body:   `{"error":{"code":403,"message":"Redundant transition","errors":[{"reason":"redundantTransition"}]}}`,
			want:   broadcast.ErrRedundantTransition,
		},
		{
			name:   "missing broadcast",
			status: http.StatusNotFound,
			body:   `{"error":{"code":404,"message":"Broadcast not found","errors":[{"reason":"liveBroadcastNotFound"}]}}`,
			want:   broadcast.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, ClientConfig{})

			err := client.TransitionBroadcast(context.Background(), "bc-1", broadcast.TargetComplete)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGetBroadcastStatus(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "missing" {
			_, _ = w.Write([]byte(`{"items":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"bc-1","status":{"lifeCycleStatus":"testing"}}]}`))
	}, ClientConfig{})

	status, err := client.GetBroadcastStatus(context.Background(), "bc-1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status != broadcast.LifecycleTesting {
		t.Fatalf("expected testing, got %s", status)
	}

	_, err = client.GetBroadcastStatus(context.Background(), "missing")
	if !errors.Is(err, broadcast.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreatePhysicalStreamAndHealth(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"id":"stream-1","cdn":{"ingestionInfo":{"ingestionAddress":"rtmp://a.rtmp.youtube.com/live2","streamName":"abcd-efgh"}}}`))
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"items":[{"id":"stream-1","status":{"streamStatus":"active","healthStatus":{"status":"good"}}}]}`))
		}
	}, ClientConfig{})

	stream, err := client.CreatePhysicalStream(context.Background(), "Pool 1")
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}
	if stream.ExternalStreamID != "stream-1" || stream.StreamCredential != "abcd-efgh" {
		t.Fatalf("unexpected stream %+v", stream)
	}

	health, err := client.GetStreamHealth(context.Background(), "stream-1")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	if !health.IsActive() || health.HealthStatus != "good" {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestConcurrentHealthReadsShareOneRequest(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"items":[{"id":"s","status":{"streamStatus":"ready"}}]}`))
	}, ClientConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.GetStreamHealth(context.Background(), "s"); err != nil {
				t.Errorf("get health: %v", err)
			}
		}()
	}
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one upstream request, got %d", calls.Load())
	}
}

func TestCircuitBreakerOpensAfterTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, ClientConfig{CircuitBreaker: resilience.BreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	}})

	for i := 0; i < 2; i++ {
		_ = client.DeleteBroadcast(context.Background(), "bc-1")
	}
	err := client.DeleteBroadcast(context.Background(), "bc-1")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected breaker to stop upstream calls, got %d", calls.Load())
	}
}

func TestPermanentFailureDoesNotTripBreaker(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid value","errors":[{"reason":"invalidValue"}]}}`))
	}, ClientConfig{CircuitBreaker: resilience.BreakerConfig{Enabled: true, FailureThreshold: 1}})

	for i := 0; i < 3; i++ {
		err := client.BindStream(context.Background(), "bc-1", "stream-1")
		if err == nil || !strings.Contains(err.Error(), "invalidValue") {
			t.Fatalf("expected permanent provider error, got %v", err)
		}
	}
	if client.breaker.State() != resilience.CircuitStateClosed {
		t.Fatalf("expected closed breaker, got %s", client.breaker.State())
	}
}
