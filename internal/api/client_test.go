package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumelift/internal/config"
	"resumelift/internal/errors"
	"resumelift/internal/session"
	"resumelift/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{
			BaseURL: baseURL,
			Timeout: 5 * time.Second,
		},
		Cache: config.CacheConfig{
			CurrentUserTTL:  5 * time.Minute,
			APIKeyStatusTTL: 2 * time.Minute,
			RunsTTL:         60 * time.Second,
		},
		App: config.AppConfig{
			DefaultRunLimit: 20,
		},
	}
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sess, err := session.NewStore(filepath.Join(t.TempDir(), "token"), nil)
	require.NoError(t, err)
	require.NoError(t, sess.SetToken("test-token"))

	client := New(testConfig(srv.URL), sess, nil, opts...)
	return client, srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestAuthorizationHeaderAttached(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		writeJSON(t, w, http.StatusOK, types.User{ID: "u1", Email: "a@b.c"})
	}))

	user, err := client.CurrentUser(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestAuthenticatedCallsFailFastWhenLoggedOut(t *testing.T) {
	var requests atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	require.NoError(t, client.Session().Clear())

	_, err := client.CurrentUser(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotLoggedIn))
	assert.Equal(t, int64(0), requests.Load(), "no request should reach the backend")
}

func TestLoginStoresTokenAndClearsStaleCaches(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			writeJSON(t, w, http.StatusOK, types.TokenResponse{AccessToken: "fresh-jwt"})
		case "/api/user/me":
			writeJSON(t, w, http.StatusOK, types.User{ID: "old-user"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	// Seed a cache entry belonging to the old session.
	_, err := client.CurrentUser(context.Background(), false)
	require.NoError(t, err)

	require.NoError(t, client.Login(context.Background(), "a@b.c", "pw"))
	assert.Equal(t, "fresh-jwt", client.Session().Token())

	_, ok := client.CachedCurrentUser()
	assert.False(t, ok, "login must drop caches from the previous session")
}

func TestLogoutClearsTokenAndAllCaches(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/user/me":
			writeJSON(t, w, http.StatusOK, types.User{ID: "u1"})
		case "/api/user/api-key/status":
			writeJSON(t, w, http.StatusOK, types.APIKeyStatus{HasAPIKey: true})
		case "/api/agent/runs":
			writeJSON(t, w, http.StatusOK, []types.Run{{ID: "r1"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ctx := context.Background()
	_, err := client.CurrentUser(ctx, false)
	require.NoError(t, err)
	_, err = client.APIKeyStatus(ctx, false)
	require.NoError(t, err)
	_, err = client.Runs(ctx, 20, false)
	require.NoError(t, err)

	require.NoError(t, client.Logout())

	assert.False(t, client.Session().IsAuthenticated())
	_, ok := client.CachedCurrentUser()
	assert.False(t, ok)
	_, ok = client.CachedAPIKeyStatus()
	assert.False(t, ok)
	_, ok = client.CachedRuns(20)
	assert.False(t, ok)
}

func TestErrorMessageFromDetailField(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]string{"detail": "Job description is too short"})
	}))

	_, err := client.Optimize(context.Background(), types.OptimizeRequest{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
	assert.Contains(t, err.Error(), "Job description is too short")
}

func TestErrorMessageFromMessageField(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]string{"message": "Something specific"})
	}))

	_, err := client.Optimize(context.Background(), types.OptimizeRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Something specific")
}

func TestErrorMessageFallback(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]int{"code": 7})
	}))

	_, err := client.Optimize(context.Background(), types.OptimizeRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Request failed")
}

func TestUnauthorizedMapsToAuthFailed(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
	}))

	_, err := client.CurrentUser(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAuthFailed))
}

func TestMissingProviderKeyClassifiedOnce(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]string{
			"detail": "No API key found. Please add your Gemini API key in Settings.",
		})
	}))

	_, err := client.Optimize(context.Background(), types.OptimizeRequest{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingAPIKey))
}

func TestServerErrorMapsToServerCode(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
	}))

	_, err := client.CurrentUser(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeServerError))
}

func TestTransportFailureMapsToNetworkCode(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := client.CurrentUser(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNetworkFailed))
}

func TestRunsCachedPerLimitWithTTL(t *testing.T) {
	var requests atomic.Int64
	clock := newFakeClock()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		limit := r.URL.Query().Get("limit")
		writeJSON(t, w, http.StatusOK, []types.Run{{ID: "run-" + limit}})
	}), WithClock(clock.Now))

	ctx := context.Background()

	// Two reads of the same limit within the TTL: one fetch.
	first, err := client.Runs(ctx, 10, false)
	require.NoError(t, err)
	second, err := client.Runs(ctx, 10, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), requests.Load())

	// A different limit is its own cache entry.
	other, err := client.Runs(ctx, 50, false)
	require.NoError(t, err)
	assert.Equal(t, "run-50", other[0].ID)
	assert.Equal(t, int64(2), requests.Load())

	// Past the TTL the entry is stale and refetched.
	clock.Advance(61 * time.Second)
	_, err = client.Runs(ctx, 10, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), requests.Load())
}

func TestForceBypassesFreshCache(t *testing.T) {
	var requests atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeJSON(t, w, http.StatusOK, types.User{ID: fmt.Sprintf("u%d", requests.Load())})
	}))

	ctx := context.Background()
	_, err := client.CurrentUser(ctx, false)
	require.NoError(t, err)

	user, err := client.CurrentUser(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "u2", user.ID)
	assert.Equal(t, int64(2), requests.Load())

	// The forced result refreshed the cache for subsequent reads.
	cached, ok := client.CachedCurrentUser()
	require.True(t, ok)
	assert.Equal(t, "u2", cached.ID)
}

func TestConcurrentRunsReadsCoalesce(t *testing.T) {
	var requests atomic.Int64
	release := make(chan struct{})
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		writeJSON(t, w, http.StatusOK, []types.Run{{ID: "r1"}})
	}))

	ctx := context.Background()
	const readers = 8
	var wg sync.WaitGroup
	results := make([][]types.Run, readers)
	errs := make([]error, readers)

	for i := 0; i < readers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = client.Runs(ctx, 20, false)
		}()
	}

	// Give the readers time to pile onto the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "r1", results[i][0].ID)
	}
	assert.Equal(t, int64(1), requests.Load(), "concurrent reads must share one fetch")
}

func TestSaveAPIKeyOptimisticallyUpdatesStatus(t *testing.T) {
	var statusGets atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/user/api-key" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/api/user/api-key/status":
			statusGets.Add(1)
			writeJSON(t, w, http.StatusOK, types.APIKeyStatus{HasAPIKey: true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ctx := context.Background()
	require.NoError(t, client.SaveAPIKey(ctx, "sk-123"))

	status, err := client.APIKeyStatus(ctx, false)
	require.NoError(t, err)
	assert.True(t, status.HasAPIKey)
	assert.Equal(t, int64(0), statusGets.Load(), "status must come from the optimistic cache entry")
}

func TestDeleteAPIKeyOptimisticallyUpdatesStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/user/api-key" && r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	require.NoError(t, client.DeleteAPIKey(context.Background()))

	status, ok := client.CachedAPIKeyStatus()
	require.True(t, ok)
	assert.False(t, status.HasAPIKey)
}

func TestDeleteRunInvalidatesEveryRunList(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(t, w, http.StatusOK, []types.Run{{ID: "r1"}})
	}))

	ctx := context.Background()
	_, err := client.Runs(ctx, 10, false)
	require.NoError(t, err)
	_, err = client.Runs(ctx, 20, false)
	require.NoError(t, err)

	require.NoError(t, client.DeleteRun(ctx, "r1"))

	_, ok := client.CachedRuns(10)
	assert.False(t, ok)
	_, ok = client.CachedRuns(20)
	assert.False(t, ok)
}

func TestClearRunHistoryReturnsSummary(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/api/agent/runs", r.URL.Path)
		writeJSON(t, w, http.StatusOK, types.DeleteSummary{Deleted: 7})
	}))

	summary, err := client.ClearRunHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, summary.Deleted)
}

func TestOptimizeInvalidatesRunLists(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/agent/run" {
			writeJSON(t, w, http.StatusOK, types.OptimizationResult{FinalStatus: "completed"})
			return
		}
		writeJSON(t, w, http.StatusOK, []types.Run{{ID: "r1"}})
	}))

	ctx := context.Background()
	_, err := client.Runs(ctx, 20, false)
	require.NoError(t, err)

	result, err := client.Optimize(ctx, types.OptimizeRequest{JobDescription: "jd", Resume: "cv"})
	require.NoError(t, err)
	assert.Equal(t, "completed", result.FinalStatus)

	_, ok := client.CachedRuns(20)
	assert.False(t, ok, "a new run invalidates cached run lists")
}

func TestOptimizeStreamDeliversEventsAndResult(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/agent/run/stream":
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			fmt.Fprint(w, "event: analyzing\ndata: {\"step\":1}\n\n")
			flusher.Flush()
			fmt.Fprint(w, "event: completed\ndata: {\"result\":{\"modified_resume\":\"better\",\"ats_score_after\":82.5,\"final_status\":\"completed\"}}\n\n")
			flusher.Flush()
		case "/api/agent/runs":
			writeJSON(t, w, http.StatusOK, []types.Run{{ID: "r1"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ctx := context.Background()
	_, err := client.Runs(ctx, 20, false)
	require.NoError(t, err)

	var events []types.StreamEvent
	result, err := client.OptimizeStream(ctx, types.OptimizeRequest{JobDescription: "jd", Resume: "cv"},
		func(ev types.StreamEvent) { events = append(events, ev) })
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "analyzing", events[0].Event)
	assert.Equal(t, "completed", events[1].Event)

	assert.Equal(t, "better", result.ModifiedResume)
	assert.InDelta(t, 82.5, result.ATSScoreAfter, 0.001)

	_, ok := client.CachedRuns(20)
	assert.False(t, ok, "a successful stream invalidates cached run lists")
}

func TestOptimizeStreamErrorEvent(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: error\ndata: {\"message\":\"Invalid API key\"}\n\n")
	}))

	_, err := client.OptimizeStream(context.Background(), types.OptimizeRequest{}, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStreamError))
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestOptimizeStreamIncomplete(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: analyzing\ndata: {\"step\":1}\n\n")
	}))

	_, err := client.OptimizeStream(context.Background(), types.OptimizeRequest{}, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStreamIncomplete))
}

func TestCircuitBreakerOpensAfterRepeatedServerFailures(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeJSON(t, w, http.StatusInternalServerError, map[string]string{"detail": "down"})
	}))
	t.Cleanup(srv.Close)

	sess, err := session.NewStore(filepath.Join(t.TempDir(), "token"), nil)
	require.NoError(t, err)
	require.NoError(t, sess.SetToken("test-token"))

	cfg := testConfig(srv.URL)
	cfg.Backend.CircuitBreaker = config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      3,
		FailureThreshold: 0.6,
	}
	client := New(cfg, sess, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := client.CurrentUser(ctx, true)
		require.Error(t, err)
	}

	_, err = client.CurrentUser(ctx, true)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCircuitOpen))
	assert.Equal(t, int64(3), requests.Load(), "open breaker must short-circuit the request")
}

func TestCompileLaTeXReturnsPDFBytes(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake")
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/latex/compile", r.URL.Path)
		var req types.CompileRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "\\documentclass{article}", req.LatexCode)

		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf)
	}))

	got, err := client.CompileLaTeX(context.Background(), "\\documentclass{article}")
	require.NoError(t, err)
	assert.Equal(t, pdf, got)
}

func TestExtractPDFTextUploadsMultipart(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/pdf/extract", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close() //nolint:errcheck
		assert.Equal(t, "resume.pdf", header.Filename)

		writeJSON(t, w, http.StatusOK, types.ExtractResponse{Text: "plain resume text"})
	}))

	text, err := client.ExtractPDFText(context.Background(), "resume.pdf",
		strings.NewReader("%PDF-1.4 content"))
	require.NoError(t, err)
	assert.Equal(t, "plain resume text", text)
}

func TestCompileAndExtractWorkWithoutSession(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/latex/compile":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 fake"))
		case "/api/pdf/extract":
			writeJSON(t, w, http.StatusOK, types.ExtractResponse{Text: "text"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	require.NoError(t, client.Session().Clear())

	_, err := client.CompileLaTeX(context.Background(), "\\documentclass{article}")
	require.NoError(t, err, "compile is a public endpoint")

	_, err = client.ExtractPDFText(context.Background(), "resume.pdf",
		strings.NewReader("%PDF-1.4 content"))
	require.NoError(t, err, "extract is a public endpoint")
}
