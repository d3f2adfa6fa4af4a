package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var nop = zap.NewNop()

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// TestSecurityHeaders tests security headers are set correctly
func TestSecurityHeaders(t *testing.T) {
	handler := Security(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	tests := []struct {
		header string
		want   string
	}{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Content-Security-Policy", "default-src 'none'"},
		{"Referrer-Policy", "no-referrer"},
		{"Cross-Origin-Resource-Policy", "same-origin"},
		{"Strict-Transport-Security", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got := w.Header().Get(tt.header)
			if got != tt.want {
				t.Errorf("%s header = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

// TestRateLimit_Basic tests basic rate limiting
func TestRateLimit_Basic(t *testing.T) {
	rl := NewRateLimiter(2, 2)
	defer rl.Close()
	handler := RateLimit(rl, nop)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != want {
			t.Errorf("request %d: got %d, want %d", i+1, w.Code, want)
		}
	}
}

// TestRateLimit_SameIPDifferentPorts tests buckets are keyed by host only
func TestRateLimit_SameIPDifferentPorts(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Close()
	handler := RateLimit(rl, nop)(okHandler())

	req1 := httptest.NewRequest(http.MethodGet, "/test", nil)
	req1.RemoteAddr = "192.168.1.1:1234"
	req2 := httptest.NewRequest(http.MethodGet, "/test", nil)
	req2.RemoteAddr = "192.168.1.1:5678"

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req1)
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)

	if w1.Code != http.StatusOK {
		t.Errorf("first request should pass, got %d", w1.Code)
	}
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("second connection from same host should be limited, got %d", w2.Code)
	}
}

// TestRateLimit_DifferentIPs tests rate limiting is per IP
func TestRateLimit_DifferentIPs(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Close()
	handler := RateLimit(rl, nop)(okHandler())

	for _, addr := range []string{"192.168.1.1:1234", "192.168.1.2:1234"} {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s first request should pass, got %d", addr, w.Code)
		}
	}
}

// TestRateLimiter_Close tests Close stops the cleanup goroutine
func TestRateLimiter_Close(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	closed := make(chan struct{})
	go func() {
		rl.Close()
		rl.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the cleanup goroutine exited")
	}
	select {
	case <-rl.exited:
	default:
		t.Error("cleanup goroutine still running")
	}
}

// TestRateLimiter_Refill tests token bucket refills over time
func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(5, 1) // 5 requests/sec, burst 1
	defer rl.Close()

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("10.0.0.1") {
		t.Fatal("first request should pass")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("second request should be limited")
	}

	now = now.Add(250 * time.Millisecond)
	if !rl.Allow("10.0.0.1") {
		t.Error("request after refill should pass")
	}
}

// TestRateLimiter_Evict tests idle entries are dropped
func TestRateLimiter_Evict(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Close()

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	rl.Allow("10.0.0.1")

	now = now.Add(rl.ttl + time.Second)
	rl.evict()

	rl.mu.Lock()
	n := len(rl.limits)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("expected stale entry to be evicted, %d left", n)
	}
	rl.Close()
}

func TestGetIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "192.168.1.1:1234", nil, "192.168.1.1"},
		{"no port", "192.168.1.1", nil, "192.168.1.1"},
		{"ipv6", "[2001:db8::1]:1234", nil, "2001:db8::1"},
		{"forwarded list", "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"real ip", "10.0.0.1:1", map[string]string{"X-Real-IP": " 203.0.113.9 "}, "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getIP(req); got != tt.want {
				t.Errorf("getIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetIPPrefix(t *testing.T) {
	tests := map[string]string{
		"192.168.1.1": "192.0.0.0",
		"2001:db8::1": "2001:",
		"garbage":     "unknown",
	}
	for in, want := range tests {
		if got := getIPPrefix(in); got != want {
			t.Errorf("getIPPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestConcurrencyLimit_Basic tests concurrent request limiting
func TestConcurrencyLimit_Basic(t *testing.T) {
	release := make(chan struct{})
	var entered sync.WaitGroup
	entered.Add(2)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered.Done()
		<-release
		w.WriteHeader(http.StatusOK)
	})

	handler := ConcurrencyLimit(2, nop)(next)

	var successCount, rejectedCount int32
	var wg sync.WaitGroup
	serve := func() {
		defer wg.Done()
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		switch w.Code {
		case http.StatusOK:
			atomic.AddInt32(&successCount, 1)
		case http.StatusServiceUnavailable:
			atomic.AddInt32(&rejectedCount, 1)
		}
	}

	// Fill both slots, then three more must bounce.
	wg.Add(2)
	go serve()
	go serve()
	entered.Wait()

	wg.Add(3)
	for i := 0; i < 3; i++ {
		serve()
	}
	close(release)
	wg.Wait()

	if successCount != 2 {
		t.Errorf("Expected 2 successful requests, got %d", successCount)
	}
	if rejectedCount != 3 {
		t.Errorf("Expected 3 rejected requests, got %d", rejectedCount)
	}
}

// TestConcurrencyLimit_Decrement tests semaphore is released after request
func TestConcurrencyLimit_Decrement(t *testing.T) {
	cl := NewConcurrencyLimiter(1)
	if !cl.Acquire() {
		t.Fatal("first acquire should succeed")
	}
	if cl.Acquire() {
		t.Fatal("second acquire should fail while slot is held")
	}
	cl.Release()
	if cl.Active() != 0 {
		t.Errorf("Active() = %d after release", cl.Active())
	}

	handler := ConcurrencyLimit(1, nop)(okHandler())
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		if w.Code != http.StatusOK {
			t.Errorf("Sequential request %d should pass, got %d", i, w.Code)
		}
	}
}

// TestRecovery tests panic recovery
func TestRecovery(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
	}{
		{"string panic", "test panic"},
		{"nil panic", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.ErrorLevel)
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(tt.value)
			})

			w := httptest.NewRecorder()
			Recovery(zap.New(core))(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			if w.Code != http.StatusInternalServerError {
				t.Errorf("Expected status 500 after panic, got %d", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected Content-Type application/json, got %s", ct)
			}
			if logs.FilterMessage("panic recovered").Len() != 1 {
				t.Error("expected panic to be logged")
			}
		})
	}
}

// TestRecovery_NoPanic tests normal requests pass through
func TestRecovery_NoPanic(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	w := httptest.NewRecorder()
	Recovery(nop)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != "OK" {
		t.Errorf("Expected body 'OK', got %s", body)
	}
}

// TestLogger tests the request log entry
func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("done"))
	})

	w := httptest.NewRecorder()
	RequestID(Logger(zap.New(core))(next)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/resize", nil))

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusCreated) {
		t.Errorf("status field = %v", fields["status"])
	}
	if fields["bytes"] != int64(4) {
		t.Errorf("bytes field = %v", fields["bytes"])
	}
	if fields["request_id"] != w.Header().Get(RequestIDHeader) {
		t.Errorf("request_id field = %v, header = %s", fields["request_id"], w.Header().Get(RequestIDHeader))
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})
	handler := RequestID(next)

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if _, err := uuid.Parse(seen); err != nil {
			t.Errorf("generated id %q is not a uuid: %v", seen, err)
		}
		if w.Header().Get(RequestIDHeader) != seen {
			t.Error("response header does not match context id")
		}
	})

	t.Run("propagated", func(t *testing.T) {
		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, id)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if seen != id {
			t.Errorf("id = %q, want %q", seen, id)
		}
	})

	t.Run("malformed replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "<script>")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if seen == "<script>" {
			t.Error("malformed id should be replaced")
		}
	})
}

// TestMiddlewareChaining tests multiple middleware work together
func TestMiddlewareChaining(t *testing.T) {
	rl := NewRateLimiter(100, 10)
	defer rl.Close()

	handler := Security(
		RequestID(
			RateLimit(rl, nop)(
				ConcurrencyLimit(10, nop)(
					Recovery(nop)(
						Logger(nop)(okHandler()),
					),
				),
			),
		),
	)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Chained middleware should pass, got %d", w.Code)
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("Security headers should be set")
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Request id header should be set")
	}
}
