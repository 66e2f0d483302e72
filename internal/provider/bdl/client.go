// Package bdl provides the HTTP client for the BallDontLie-style NBA stats
// API and the per-entity endpoint walker built on top of it.
//
// The API uses cursor-based pagination and Authorization header auth.
// Rate limiting is handled via a token bucket limiter; failed pages are
// retried under a provider.RetryPolicy.
package bdl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/albapepper/scoracle-lake/internal/provider"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ClientConfig configures a Client. Zero Sleeper and Jitter fall back to
// real sleeps and random jitter.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerMinute int
	Timeout           time.Duration
	Retry             provider.RetryPolicy

	Sleeper provider.Sleeper
	Jitter  provider.JitterFunc

	// OnAttempt, when set, is called after every HTTP attempt with the
	// endpoint and "ok", "transient" or "permanent".
	OnAttempt func(endpoint, outcome string)
}

// Client is the rate-limited, retrying HTTP client for all endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	retrier    *provider.Retrier
	onAttempt  func(endpoint, outcome string)
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates an HTTP client with rate limiting and retries.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	retrier := provider.NewRetrier(cfg.Retry)
	if cfg.Sleeper != nil {
		retrier.Sleeper = cfg.Sleeper
	}
	if cfg.Jitter != nil {
		retrier.Jitter = cfg.Jitter
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(limit, 1),
		retrier:    retrier,
		onAttempt:  cfg.OnAttempt,
		logger:     logger,
		now:        time.Now,
	}
	retrier.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("fetch retry", "attempt", attempt, "delay", delay.Round(time.Millisecond), "error", err)
	}
	return c
}

// paginatedResponse is the common response wrapper.
type paginatedResponse struct {
	Data jsoniter.RawMessage `json:"data"`
	Meta struct {
		NextCursor *int64 `json:"next_cursor"`
	} `json:"meta"`
}

// Fetch retrieves one page of endpoint, retrying transient failures. The
// returned error is always a *provider.FetchError.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values) (provider.RawRecord, error) {
	var resp *paginatedResponse
	attempts, err := c.retrier.Do(ctx, func(ctx context.Context) error {
		r, err := c.get(ctx, endpoint, params)
		c.observe(endpoint, err)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		fe, ok := err.(*provider.FetchError)
		if !ok {
			fe = provider.Permanent(endpoint, err)
		}
		fe.Endpoint = endpoint
		fe.Attempts = attempts
		return provider.RawRecord{}, fe
	}

	rec := provider.RawRecord{
		Payload: []byte(resp.Data),
		Provenance: provider.Provenance{
			Endpoint:  endpoint,
			Cursor:    params.Get("cursor"),
			FetchedAt: c.now().UTC(),
			Attempts:  attempts,
		},
	}
	if len(rec.Payload) == 0 || string(rec.Payload) == "null" {
		rec.Payload = []byte("[]")
	}
	if resp.Meta.NextCursor != nil {
		rec.NextCursor = strconv.FormatInt(*resp.Meta.NextCursor, 10)
	}
	return rec, nil
}

func (c *Client) observe(endpoint string, err error) {
	if c.onAttempt == nil {
		return
	}
	if err == nil {
		c.onAttempt(endpoint, "ok")
		return
	}
	c.onAttempt(endpoint, provider.KindOf(err).String())
}

// get performs a single rate-limited GET request and classifies failures.
func (c *Client) get(ctx context.Context, path string, params url.Values) (*paginatedResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, provider.Transient(path, fmt.Errorf("rate limit wait: %w", err))
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, provider.Permanent(path, fmt.Errorf("create request: %w", err))
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.Transient(path, fmt.Errorf("http request %s: %w", path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Transient(path, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		fe := &provider.FetchError{
			Endpoint:   path,
			Kind:       provider.ClassifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, truncate(body, 200)),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if d, ok := provider.ParseRetryAfter(resp.Header.Get("Retry-After"), c.now()); ok {
				fe.RetryAfter = d
			}
		}
		return nil, fe
	}

	var result paginatedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, provider.Permanent(path, fmt.Errorf("decode response: %w", err))
	}

	return &result, nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
