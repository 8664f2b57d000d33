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

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	// Max requests per key per Window.
	Max    int
	Window time.Duration
	// KeyFunc buckets requests. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// window holds the counts of the current and the previous fixed window.
type window struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

type limiter struct {
	max    int
	size   time.Duration
	key    func(*http.Request) string
	mu     sync.Mutex
	window map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	key := cfg.KeyFunc
	if key == nil {
		key = ClientIP
	}
	return &limiter{
		max:    cfg.Max,
		size:   cfg.Window,
		key:    key,
		window: make(map[string]*window),
	}
}

// take counts one request for key at now and reports whether it fits.
// The previous window is weighted by the share of it still inside the
// sliding window.
func (l *limiter) take(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.window[key]
	if !found {
		w = &window{currStart: now.Truncate(l.size)}
		l.window[key] = w
	}
	if elapsed := now.Sub(w.currStart); elapsed >= l.size {
		w.prevCount = w.currCount
		if elapsed >= 2*l.size {
			w.prevCount = 0
		}
		w.currCount = 0
		w.currStart = now.Truncate(l.size)
	}

	weight := 1 - now.Sub(w.currStart).Seconds()/l.size.Seconds()
	if weight < 0 {
		weight = 0
	}
	used := w.prevCount*weight + w.currCount
	resetAt = w.currStart.Add(l.size)
	if used >= float64(l.max) {
		return 0, resetAt, false
	}

	w.currCount++
	remaining = max(int(float64(l.max)-used-1), 0)
	return remaining, resetAt, true
}

// evict drops keys idle for two full windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.window {
		if now.Sub(w.currStart) >= 2*l.size {
			delete(l.window, key)
		}
	}
}

func (l *limiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * l.size)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

// RateLimit limits requests per key with a sliding window. Rejected requests
// get 429 with a Retry-After header; every response carries the
// X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit with a goroutine evicting idle keys until
// ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.evictLoop(ctx)
	return l.middleware()
}

func (l *limiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := l.key(r)
			remaining, resetAt, ok := l.take(key, time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retry := max(time.Until(resetAt), 0)
			zctx.From(r.Context()).Debug("Rate limited",
				zap.String("key", key),
				zap.Duration("retry_after", retry),
			)

			var e jx.Encoder
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusTooManyRequests) })
				e.Field("kind", func(e *jx.Encoder) { e.Str("rate_limited") })
				e.Field("message", func(e *jx.Encoder) { e.Str("rate limit exceeded") })
			})
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write(e.Bytes())
		})
	}
}

// ClientIP keys by the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
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

// APIKeyOrIP keys authenticated callers by the value of header and anonymous
// ones by ClientIP, so customers behind one NAT do not share a budget.
func APIKeyOrIP(header string) func(*http.Request) string {
	return func(r *http.Request) string {
		if k := r.Header.Get(header); k != "" {
			return "key:" + k
		}
		return "ip:" + ClientIP(r)
	}
}
