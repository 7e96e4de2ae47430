package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"resumelift/internal/cache"
	"resumelift/internal/config"
	"resumelift/internal/errors"
	"resumelift/internal/observability"
	"resumelift/internal/session"
	"resumelift/internal/types"
)

// maxErrorBodySize caps how much of an error response body is read for
// message extraction.
const maxErrorBodySize = 1 << 20

// Client is the single gateway to the optimization backend. It owns
// the session token, attaches auth headers, normalizes backend and
// transport failures into coded errors, and fronts the read endpoints
// with per-domain TTL caches.
type Client struct {
	cfg     *config.Config
	httpc   *http.Client
	streamc *http.Client
	session *session.Store
	logger  *errors.Logger
	breaker *BackendBreaker
	limiter *rate.Limiter
	metrics *observability.Metrics

	userCache *cache.Store[types.User]
	keyCache  *cache.Store[types.APIKeyStatus]
	runsCache *cache.Store[[]types.Run]
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces both the request and stream HTTP clients.
// Intended for tests.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpc
		c.streamc = httpc
	}
}

// WithMetrics attaches request and cache metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock replaces the cache clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.userCache = cache.NewWithClock[types.User](now)
		c.keyCache = cache.NewWithClock[types.APIKeyStatus](now)
		c.runsCache = cache.NewWithClock[[]types.Run](now)
	}
}

// New creates a backend client from configuration.
func New(cfg *config.Config, sess *session.Store, logger *errors.Logger, opts ...Option) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport)

	c := &Client{
		cfg: cfg,
		httpc: &http.Client{
			Timeout:   cfg.Backend.Timeout,
			Transport: transport,
		},
		streamc: &http.Client{
			Timeout:   cfg.Backend.StreamTimeout,
			Transport: transport,
		},
		session: sess,
		logger:  logger,
		breaker: NewBackendBreaker(cfg.Backend.CircuitBreaker, logger),

		userCache: cache.New[types.User](),
		keyCache:  cache.New[types.APIKeyStatus](),
		runsCache: cache.New[[]types.Run](),
	}

	if cfg.Backend.RateLimit.Enabled {
		perSecond := rate.Limit(float64(cfg.Backend.RateLimit.RequestsPerMin) / 60.0)
		c.limiter = rate.NewLimiter(perSecond, cfg.Backend.RateLimit.BurstCapacity)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session exposes the underlying session store.
func (c *Client) Session() *session.Store {
	return c.session
}

// BreakerStats reports circuit breaker state for diagnostics output.
func (c *Client) BreakerStats() map[string]any {
	return c.breaker.GetStats()
}

// CacheStats reports cumulative hit/miss/coalesced counters per domain.
func (c *Client) CacheStats() map[string][3]int64 {
	stats := make(map[string][3]int64, 3)
	h, m, co := c.userCache.Stats()
	stats["current_user"] = [3]int64{h, m, co}
	h, m, co = c.keyCache.Stats()
	stats["api_key_status"] = [3]int64{h, m, co}
	h, m, co = c.runsCache.Stats()
	stats["runs"] = [3]int64{h, m, co}
	return stats
}

// requireAuth fails fast with a coded error instead of letting the
// backend reject an unauthenticated request.
func (c *Client) requireAuth() error {
	if !c.session.IsAuthenticated() {
		return errors.NewAuthError(errors.ErrCodeNotLoggedIn,
			"Not logged in. Run 'resumelift login' first.", nil)
	}
	return nil
}

// do issues a JSON request and decodes the response body into out.
// A nil out discards the body; a 204 response never carries one.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.NewInternalError(errors.ErrCodeInvalidRequest,
				"Cannot encode request body", err)
		}
	}

	resp, err := c.send(ctx, c.httpc, method, path, payload, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewServerError(errors.ErrCodeServerError,
			"Backend returned an unreadable response body", err)
	}
	return nil
}

// send issues one request through the rate limiter and circuit
// breaker. Responses with status >= 400 are consumed and turned into
// coded errors; the caller owns the body of any returned response.
func (c *Client) send(ctx context.Context, httpc *http.Client, method, path string, body []byte, contentType string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.NewNetworkError(errors.ErrCodeNetworkFailed,
				"Request cancelled while waiting for the rate limiter", err)
		}
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.Backend.BaseURL+path, reader)
		if err != nil {
			return nil, errors.NewInternalError(errors.ErrCodeInvalidRequest,
				"Cannot build backend request", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}
		if token := c.session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := httpc.Do(req)
		if err != nil {
			return nil, errors.NewNetworkError(errors.ErrCodeNetworkFailed,
				"Cannot reach the optimization backend. Ensure the API server is running.", err)
		}
		if resp.StatusCode >= 400 {
			return nil, c.errorFromResponse(resp)
		}
		return resp, nil
	})

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.metrics.RecordRequest(ctx, method, path, status, err == nil, time.Since(start))

	if err != nil {
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.NewNetworkError(errors.ErrCodeCircuitOpen,
				"Backend requests suspended after repeated failures. Try again shortly.", err)
		}
		if c.logger != nil {
			c.logger.LogError(err, "Backend request failed", "method", method, "path", path)
		}
		return nil, err
	}
	return resp, nil
}

// errorFromResponse consumes an error response and normalizes it. The
// message comes from the backend's detail or message field when the
// body is JSON, from the raw text when it is not, and falls back to a
// generic one otherwise. Callers branch on the error code, never on
// the message.
func (c *Client) errorFromResponse(resp *http.Response) error {
	defer resp.Body.Close() //nolint:errcheck

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	message := extractErrorMessage(data)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.NewAuthError(errors.ErrCodeAuthFailed, message, nil).
			WithContext("status", resp.StatusCode)
	case resp.StatusCode < 500 && strings.Contains(strings.ToLower(message), "api key"):
		// The backend refuses optimization for accounts without a
		// stored provider key; surface that as its own condition.
		return errors.NewAuthError(errors.ErrCodeMissingAPIKey, message, nil).
			WithContext("status", resp.StatusCode)
	case resp.StatusCode >= 500:
		return errors.NewServerError(errors.ErrCodeServerError, message, nil).
			WithContext("status", resp.StatusCode)
	default:
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, message, nil).
			WithContext("status", resp.StatusCode)
	}
}

// recordLookup reports a cache hit or miss before a Read resolves it.
// A forced read always counts as a miss since the cache is bypassed.
func recordLookup[V any](ctx context.Context, m *observability.Metrics, domain string, force bool, store *cache.Store[V], key string) {
	if force {
		m.RecordCacheLookup(ctx, domain, false)
		return
	}
	_, hit := store.Peek(key)
	m.RecordCacheLookup(ctx, domain, hit)
}

// extractErrorMessage pulls a human-readable message out of an error
// response body.
func extractErrorMessage(data []byte) string {
	var body struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		var detail string
		if json.Unmarshal(body.Detail, &detail) == nil && detail != "" {
			return detail
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && !strings.HasPrefix(text, "{") {
		return text
	}
	return "Request failed"
}
