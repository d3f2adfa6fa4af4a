package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harliandi/sizefit/pkg/metrics"
)

// RateLimiter implements token bucket rate limiting per IP address
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]*bucket
	rate   int           // tokens per second
	burst  int           // max burst size
	ttl    time.Duration // idle time before an entry is dropped
	now    func() time.Time
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

type bucket struct {
	tokens  float64
	lastRef time.Time
}

// NewRateLimiter creates a new rate limiter
// rate: requests per second allowed
// burst: maximum burst size (tokens can accumulate to this)
func NewRateLimiter(rate, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		limits: make(map[string]*bucket),
		rate:   rate,
		burst:  burst,
		ttl:    5 * time.Minute,
		now:    time.Now,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	go rl.cleanup(time.Minute)

	return rl
}

// Allow checks if a request from the given IP should be allowed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, exists := rl.limits[ip]
	if !exists {
		rl.limits[ip] = &bucket{
			tokens:  float64(rl.burst) - 1, // Consume one token
			lastRef: now,
		}
		return true
	}

	b.tokens += now.Sub(b.lastRef).Seconds() * float64(rl.rate)
	b.lastRef = now
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Close stops the cleanup goroutine and waits for it to exit.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
	<-rl.exited
}

// cleanup removes stale entries to prevent memory leaks
func (rl *RateLimiter) cleanup(every time.Duration) {
	defer close(rl.exited)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *RateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, b := range rl.limits {
		if now.Sub(b.lastRef) > rl.ttl {
			delete(rl.limits, ip)
		}
	}
}

// getIP extracts the client IP from the request, without the port.
func getIP(r *http.Request) string {
	// Check X-Forwarded-For header (for proxies/load balancers)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// getIPPrefix extracts the first octet of an IP for privacy-preserving metrics
func getIPPrefix(ip string) string {
	parsed := net.ParseIP(ip)
	switch {
	case parsed == nil:
		return "unknown"
	case parsed.To4() != nil:
		first, _, _ := strings.Cut(ip, ".")
		return first + ".0.0.0"
	default:
		first, _, _ := strings.Cut(ip, ":")
		return first + ":"
	}
}

// RateLimit returns middleware that enforces rl per client IP. The caller
// owns rl and closes it on shutdown.
func RateLimit(rl *RateLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getIP(r)

			if !rl.Allow(ip) {
				logger.Warn("rate limit exceeded", zap.String("ip", ip))
				metrics.RecordRateLimitExceeded(getIPPrefix(ip))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"Rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
