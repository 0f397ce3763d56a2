package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	// Max requests allowed per window.
	Max int
	// Window duration.
	Window time.Duration
	// KeyFunc derives the limiter key from a request. Nil means client IP.
	KeyFunc func(*http.Request) string
}

// clientWindow tracks request counts in the current aligned window and the
// one before it. The sliding estimate weighs the previous window by how much
// of it still overlaps the trailing Window-sized interval.
type clientWindow struct {
	start time.Time
	curr  int
	prev  int
}

type limiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientWindow
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &limiter{cfg: cfg, clients: make(map[string]*clientWindow)}
}

// take records one request for key if the sliding estimate permits it.
func (l *limiter) take(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	aligned := now.Truncate(l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	cw, found := l.clients[key]
	if !found {
		cw = &clientWindow{start: aligned}
		l.clients[key] = cw
	}

	switch {
	case aligned.Equal(cw.start):
		// Still in the same window.
	case aligned.Sub(cw.start) == l.cfg.Window:
		cw.prev, cw.curr, cw.start = cw.curr, 0, aligned
	default:
		// More than one full window elapsed, nothing carries over.
		cw.prev, cw.curr, cw.start = 0, 0, aligned
	}

	overlap := 1 - now.Sub(cw.start).Seconds()/l.cfg.Window.Seconds()
	estimate := float64(cw.prev)*overlap + float64(cw.curr)
	resetAt = cw.start.Add(l.cfg.Window)

	if estimate >= float64(l.cfg.Max) {
		return 0, resetAt, false
	}

	cw.curr++
	remaining = int(float64(l.cfg.Max) - estimate - 1)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

// evictStale drops clients idle for two full windows.
func (l *limiter) evictStale(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, cw := range l.clients {
		if now.Sub(cw.start) >= 2*l.cfg.Window {
			delete(l.clients, key)
		}
	}
}

// RateLimit enforces a per-key sliding window limit: 429 with the uniform
// error body when exceeded, X-RateLimit-* headers on every response. State
// for idle clients is never evicted; prefer RateLimitWithCleanup on
// long-running servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return limitMiddleware(newLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that evicts
// idle client state until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evictStale(now)
			}
		}
	}()
	return limitMiddleware(l)
}

func limitMiddleware(l *limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, ok := l.take(l.cfg.KeyFunc(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				retryAfter := math.Ceil(time.Until(resetAt).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
				h.Set("Retry-After", strconv.Itoa(int(retryAfter)))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"code":429,"message":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP keys requests by origin address: first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
