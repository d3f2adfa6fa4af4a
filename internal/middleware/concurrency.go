package middleware

import (
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/harliandi/sizefit/pkg/metrics"
)

// ConcurrencyLimiter limits the number of concurrent requests
type ConcurrencyLimiter struct {
	semaphore chan struct{}
	mu        sync.Mutex
	active    int
	max       int
}

// NewConcurrencyLimiter creates a new concurrency limiter
func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	if max <= 0 {
		max = 1
	}
	return &ConcurrencyLimiter{
		semaphore: make(chan struct{}, max),
		max:       max,
	}
}

// Acquire tries to acquire a slot. Returns false if limit is reached
func (cl *ConcurrencyLimiter) Acquire() bool {
	select {
	case cl.semaphore <- struct{}{}:
		metrics.UpdateConcurrency(cl.add(1))
		return true
	default:
		return false
	}
}

// Release releases a slot
func (cl *ConcurrencyLimiter) Release() {
	<-cl.semaphore
	metrics.UpdateConcurrency(cl.add(-1))
}

// Active returns the number of held slots.
func (cl *ConcurrencyLimiter) Active() int {
	return cl.add(0)
}

func (cl *ConcurrencyLimiter) add(d int) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.active += d
	return cl.active
}

// ConcurrencyLimit returns middleware that enforces concurrency limits
func ConcurrencyLimit(max int, logger *zap.Logger) func(http.Handler) http.Handler {
	cl := NewConcurrencyLimiter(max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cl.Acquire() {
				logger.Warn("concurrency limit reached", zap.Int("max", cl.max))
				metrics.RecordConcurrencyLimitExceeded()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"Service busy, please try again"}`))
				return
			}

			defer cl.Release()
			next.ServeHTTP(w, r)
		})
	}
}
