package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func limitedRequest(t *testing.T, h http.Handler, addr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/quote", nil)
	req.RemoteAddr = addr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimitUnderLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := limitedRequest(t, h, "192.168.1.1:12345")
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimitExceeded(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, limitedRequest(t, h, "10.0.0.1:9999").Code)
	}

	w := limitedRequest(t, h, "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimitKeysAreIndependent(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, limitedRequest(t, h, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, limitedRequest(t, h, "10.0.0.2:1234").Code)
	// Same host, different port: still the first client.
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(t, h, "10.0.0.1:5678").Code)
}

func TestRateLimitCustomKeyFunc(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-API-Key")
		},
	})(okHandler())

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("key-a"))
	assert.Equal(t, http.StatusTooManyRequests, send("key-a"))
	assert.Equal(t, http.StatusOK, send("key-b"))
}

func TestRateLimitForwardedFor(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	// The first forwarded hop is the client, regardless of the proxy address.
	assert.Equal(t, http.StatusOK, send("192.168.1.1:4444"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.168.1.2:5555"))
}

func TestSlidingWindowEstimate(t *testing.T) {
	const window = 10 * time.Second
	l := newLimiter(RateLimitConfig{Max: 10, Window: window})
	base := time.Unix(1000, 0).Truncate(window)

	for range 10 {
		_, _, ok := l.take("c", base)
		require.True(t, ok)
	}
	_, _, ok := l.take("c", base)
	require.False(t, ok)

	// At the start of the next window the previous one still counts in full.
	_, _, ok = l.take("c", base.Add(window))
	assert.False(t, ok)

	// Halfway through, only half of the previous window weighs in.
	_, _, ok = l.take("c", base.Add(window+window/2))
	assert.True(t, ok)

	// Two idle windows later the budget is fully restored.
	remaining, _, ok := l.take("c", base.Add(4*window))
	assert.True(t, ok)
	assert.Equal(t, 9, remaining)
}

func TestEvictStale(t *testing.T) {
	const window = time.Minute
	l := newLimiter(RateLimitConfig{Max: 5, Window: window})
	now := time.Unix(2000, 0).Truncate(window)

	l.take("old", now)
	l.take("fresh", now.Add(2*window))

	l.evictStale(now.Add(2 * window))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "old")
	assert.Contains(t, l.clients, "fresh")
}
