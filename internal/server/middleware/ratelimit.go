package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// LocalLimiter hands out one token bucket per client key.
type LocalLimiter struct {
	rps   rate.Limit
	burst int
	ttl   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates a LocalLimiter allowing rps requests per second with
// the given burst per client. Idle buckets are dropped after ten minutes.
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &LocalLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     10 * time.Minute,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether key may make another request now.
func (l *LocalLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if len(l.buckets) > 1024 {
		for k, other := range l.buckets {
			if now.Sub(other.lastSeen) > l.ttl {
				delete(l.buckets, k)
			}
		}
	}
	return b.limiter.AllowN(now, 1)
}

// RateLimit returns middleware that limits each client IP. The local limiter
// always applies; when shared is non-nil the client must also pass the
// cluster-wide window of limit requests per window. Errors from the shared
// limiter fail open.
func RateLimit(local *LocalLimiter, shared domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := extractClientIP(r)

			if local != nil && !local.Allow(clientIP) {
				writeTooManyRequests(w)
				return
			}
			if shared != nil {
				allowed, err := shared.Allow(r.Context(), "api:"+clientIP, limit, window)
				if err == nil && !allowed {
					writeTooManyRequests(w)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// extractClientIP attempts to determine the real client IP from standard
// proxy headers, falling back to the direct remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
