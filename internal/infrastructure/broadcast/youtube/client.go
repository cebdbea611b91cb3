package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/live-match/internal/domain/broadcast"
	"github.com/riskibarqy/live-match/internal/platform/logging"
	"github.com/riskibarqy/live-match/internal/platform/resilience"
	"github.com/valyala/bytebufferpool"
)

const (
	defaultBaseURL  = "https://www.googleapis.com/youtube/v3"
	defaultWatchURL = "https://www.youtube.com/watch?v="
	maxResponseSize = 2 << 20
)

var errTransient = crerr.New("broadcast provider transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	AccessToken    string
	Timeout        time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	CircuitBreaker resilience.BreakerConfig
	Logger         *logging.Logger
}

// Client implements broadcast.Provider on top of the YouTube Live Streaming API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	maxRetries int
	backoff    time.Duration
	breaker    *resilience.Breaker
	flight     resilience.Group[[]byte]
	logger     *logging.Logger
}

var _ broadcast.Provider = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.AccessToken),
		maxRetries: max(cfg.MaxRetries, 0),
		backoff:    backoff,
		breaker:    resilience.NewBreaker(cfg.CircuitBreaker),
		logger:     logger.Named("youtube"),
	}
}

func (c *Client) CreateBroadcast(ctx context.Context, req broadcast.CreateRequest) (broadcast.Broadcast, error) {
	payload := liveBroadcastInsert{
		Snippet: broadcastSnippet{
			Title:              req.Title,
			Description:        req.Description,
			ScheduledStartTime: req.ScheduledStart.UTC().Format(time.RFC3339),
		},
		Status: broadcastStatusInsert{
			PrivacyStatus:           string(req.Privacy),
			SelfDeclaredMadeForKids: false,
		},
		ContentDetails: broadcastContentDetails{
			EnableAutoStart: false,
			EnableAutoStop:  false,
		},
	}

	var out resourceID
	if err := c.call(ctx, http.MethodPost, "/liveBroadcasts", url.Values{"part": {"snippet,status,contentDetails"}}, payload, &out, false); err != nil {
		return broadcast.Broadcast{}, crerr.Wrapf(err, "create broadcast %q", req.Title)
	}
	if out.ID == "" {
		return broadcast.Broadcast{}, crerr.Newf("create broadcast %q: provider returned no id", req.Title)
	}
	return broadcast.Broadcast{ID: out.ID, WatchURL: defaultWatchURL + out.ID}, nil
}

func (c *Client) BindStream(ctx context.Context, broadcastID, externalStreamID string) error {
	query := url.Values{
		"id":       {broadcastID},
		"part":     {"id,contentDetails"},
		"streamId": {externalStreamID},
	}
	if err := c.call(ctx, http.MethodPost, "/liveBroadcasts/bind", query, nil, nil, true); err != nil {
		return crerr.Wrapf(err, "bind broadcast %s to stream %s", broadcastID, externalStreamID)
	}
	return nil
}

func (c *Client) TransitionBroadcast(ctx context.Context, broadcastID string, target broadcast.TargetState) error {
	query := url.Values{
		"broadcastStatus": {string(target)},
		"id":              {broadcastID},
		"part":            {"status"},
	}
	if err := c.call(ctx, http.MethodPost, "/liveBroadcasts/transition", query, nil, nil, true); err != nil {
		return crerr.Wrapf(err, "transition broadcast %s to %s", broadcastID, target)
	}
	return nil
}

func (c *Client) DeleteBroadcast(ctx context.Context, broadcastID string) error {
	if err := c.call(ctx, http.MethodDelete, "/liveBroadcasts", url.Values{"id": {broadcastID}}, nil, nil, true); err != nil {
		return crerr.Wrapf(err, "delete broadcast %s", broadcastID)
	}
	return nil
}

func (c *Client) GetBroadcastStatus(ctx context.Context, broadcastID string) (broadcast.LifecycleStatus, error) {
	var out broadcastList
	if err := c.get(ctx, "/liveBroadcasts", url.Values{"id": {broadcastID}, "part": {"status"}}, &out); err != nil {
		return "", crerr.Wrapf(err, "get broadcast %s status", broadcastID)
	}
	if len(out.Items) == 0 {
		return "", crerr.Wrapf(broadcast.ErrNotFound, "broadcast %s", broadcastID)
	}
	return broadcast.LifecycleStatus(out.Items[0].Status.LifeCycleStatus), nil
}

func (c *Client) CreatePhysicalStream(ctx context.Context, title string) (broadcast.PhysicalStream, error) {
	payload := liveStreamInsert{
		Snippet: streamSnippet{Title: title},
		CDN: streamCDN{
			FrameRate:     "variable",
			IngestionType: "rtmp",
			Resolution:    "variable",
		},
		ContentDetails: streamContentDetails{IsReusable: true},
	}

	var out liveStream
	if err := c.call(ctx, http.MethodPost, "/liveStreams", url.Values{"part": {"snippet,cdn,contentDetails"}}, payload, &out, false); err != nil {
		return broadcast.PhysicalStream{}, crerr.Wrapf(err, "create stream %q", title)
	}
	if out.ID == "" || out.CDN.IngestionInfo.IngestionAddress == "" || out.CDN.IngestionInfo.StreamName == "" {
		return broadcast.PhysicalStream{}, crerr.Newf("create stream %q: provider returned incomplete ingestion info", title)
	}
	return broadcast.PhysicalStream{
		ExternalStreamID: out.ID,
		IngestAddress:    out.CDN.IngestionInfo.IngestionAddress,
		StreamCredential: out.CDN.IngestionInfo.StreamName,
	}, nil
}

func (c *Client) GetStreamHealth(ctx context.Context, externalStreamID string) (broadcast.StreamHealth, error) {
	var out streamList
	if err := c.get(ctx, "/liveStreams", url.Values{"id": {externalStreamID}, "part": {"status"}}, &out); err != nil {
		return broadcast.StreamHealth{}, crerr.Wrapf(err, "get stream %s health", externalStreamID)
	}
	if len(out.Items) == 0 {
		return broadcast.StreamHealth{}, crerr.Wrapf(broadcast.ErrNotFound, "stream %s", externalStreamID)
	}
	status := out.Items[0].Status
	return broadcast.StreamHealth{
		Status:       status.StreamStatus,
		HealthStatus: status.HealthStatus.Status,
	}, nil
}

// get collapses concurrent identical reads into one request.
func (c *Client) get(ctx context.Context, path string, query url.Values, target any) error {
	key := path + "?" + query.Encode()
	raw, err, _ := c.flight.Do(key, func() ([]byte, error) {
		return c.execute(ctx, http.MethodGet, path, query, nil, true)
	})
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(raw, target); err != nil {
		return crerr.Wrap(err, "decode provider payload")
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, payload, target any, retry bool) error {
	var body []byte
	if payload != nil {
		encoded, err := encodeBody(payload)
		if err != nil {
			return err
		}
		body = encoded
	}

	raw, err := c.execute(ctx, method, path, query, body, retry)
	if err != nil {
		return err
	}
	if target == nil || len(raw) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(raw, target); err != nil {
		return crerr.Wrap(err, "decode provider payload")
	}
	return nil
}

func (c *Client) execute(ctx context.Context, method, path string, query url.Values, body []byte, retry bool) ([]byte, error) {
	var raw []byte
	err := c.breaker.Execute(func() error {
		var err error
		raw, err = c.executeWithRetry(ctx, method, path, query, body, retry)
		return err
	}, isTransient)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.WarnContext(ctx, "broadcast provider circuit breaker rejected request", "path", path, "state", c.breaker.State())
	}
	return raw, err
}

func (c *Client) executeWithRetry(ctx context.Context, method, path string, query url.Values, body []byte, retry bool) ([]byte, error) {
	attempts := 1
	if retry {
		attempts += c.maxRetries
	}

	fullURL := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		raw, err := c.do(ctx, method, fullURL, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !isTransient(err) || attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(time.Duration(attempt+1) * c.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if isTransient(lastErr) {
		c.logger.WarnContext(ctx, "broadcast provider request failed", "method", method, "path", path, "error", lastErr)
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, fullURL string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, crerr.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: send request: %v", errTransient, err)
	}
	defer resp.Body.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(io.LimitReader(resp.Body, maxResponseSize)); err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", errTransient, err)
	}
	raw := append([]byte(nil), buf.B...)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	return nil, classifyFailure(resp.StatusCode, raw)
}

func encodeBody(payload any) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := sonic.ConfigDefault.NewEncoder(buf).Encode(payload); err != nil {
		return nil, crerr.Wrap(err, "encode request body")
	}
	return append([]byte(nil), bytes.TrimSpace(buf.B)...), nil
}

// classifyFailure maps a non-2xx response to a provider sentinel where one
// applies, otherwise to a transient or permanent failure.
func classifyFailure(status int, raw []byte) error {
	var envelope errorEnvelope
	_ = sonic.Unmarshal(raw, &envelope)
	reason := envelope.reason()
	message := envelope.Error.Message
	if message == "" {
		message = abbreviate(raw)
	}

	switch {
	case reason == "redundantTransition":
		return fmt.Errorf("%w: %s", broadcast.ErrRedundantTransition, message)
	case status == http.StatusNotFound,
		reason == "liveBroadcastNotFound",
		reason == "liveStreamNotFound":
		return fmt.Errorf("%w: %s", broadcast.ErrNotFound, message)
	case status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError,
		reason == "rateLimitExceeded",
		reason == "userRateLimitExceeded":
		return fmt.Errorf("%w: status=%d reason=%s: %s", errTransient, status, reason, message)
	default:
		return fmt.Errorf("provider status=%d reason=%s: %s", status, reason, message)
	}
}

func isTransient(err error) bool {
	return errors.Is(err, errTransient)
}

func abbreviate(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if len(text) > 256 {
		return text[:256] + "..."
	}
	return text
}
