package security

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leslieo2/tekton-pipeline-demo/internal/config"
)

// MockClock allows controlling time in tests
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (mc *MockClock) Now() time.Time {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.now
}

func (mc *MockClock) Advance(d time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.now = mc.now.Add(d)
}

func newTestRateLimiter(rps, burst int) (*RateLimiter, *MockClock) {
	cfg := config.RateLimitConfig{
		Enabled: true,
		ByIP: &config.RateLimit{
			RequestsPerSecond: rps,
			BurstSize:         burst,
			WindowSize:        time.Minute,
		},
	}
	mockClock := &MockClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	// Do not start cleanup goroutine in tests
	return newRateLimiter(cfg, mockClock), mockClock
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiter_Success(t *testing.T) {
	rl, _ := newTestRateLimiter(5, 10)
	middleware := rl.Middleware(okHandler())

	rr := doRequest(middleware, "/", "192.0.2.1:12345")

	assert.Equal(t, http.StatusOK, rr.Code, "Request within limit should succeed")
	assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rr.Header().Get("X-RateLimit-Remaining"), "Remaining requests should be correct")
}

func TestRateLimiter_Failure_Exceeded(t *testing.T) {
	rl, _ := newTestRateLimiter(1, 1)
	middleware := rl.Middleware(okHandler())

	rr := doRequest(middleware, "/", "192.0.2.2:12345")
	assert.Equal(t, http.StatusOK, rr.Code, "Request #1 should succeed")

	rr = doRequest(middleware, "/", "192.0.2.2:12345")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "Request exceeding limit should fail")
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Too many requests"}`, rr.Body.String())
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl, _ := newTestRateLimiter(1, 1)
	middleware := rl.Middleware(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(middleware, "/", "192.0.2.3:12345").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(middleware, "/", "192.0.2.3:12345").Code)
	assert.Equal(t, http.StatusOK, doRequest(middleware, "/", "192.0.2.4:12345").Code)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := newRateLimiter(config.RateLimitConfig{Enabled: false}, &MockClock{})
	middleware := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rr := doRequest(middleware, "/", "192.0.2.5:12345")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"), "Should not have rate limit headers when disabled")
	}
}

func TestRateLimiter_HealthNeverLimited(t *testing.T) {
	rl, _ := newTestRateLimiter(1, 1)
	middleware := rl.Middleware(okHandler())

	for _, path := range []string{"/health", "/health", "/HEALTH", "/health/", "/Health/"} {
		rr := doRequest(middleware, path, "192.0.2.8:12345")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"), path)
	}
	assert.Equal(t, http.StatusOK, doRequest(middleware, "/", "192.0.2.8:12345").Code)
}

func TestRateLimiter_TokensRefill(t *testing.T) {
	rl, clock := newTestRateLimiter(1, 1)
	middleware := rl.Middleware(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(middleware, "/", "192.0.2.6:12345").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(middleware, "/", "192.0.2.6:12345").Code)

	clock.Advance(time.Second)

	rr := doRequest(middleware, "/", "192.0.2.6:12345")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
}

func TestGetClientIP(t *testing.T) {
	rl := newRateLimiter(config.RateLimitConfig{
		TrustedProxies: []string{"10.0.0.0/8", "192.0.2.50"},
	}, &MockClock{})

	testCases := []struct {
		name    string
		headers map[string]string
		remote  string
		wantIP  string
	}{
		{
			name:    "X-Forwarded-For from untrusted peer is ignored",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.2"},
			remote:  "192.0.2.1:12345",
			wantIP:  "192.0.2.1",
		},
		{
			name:    "X-Real-IP from untrusted peer is ignored",
			headers: map[string]string{"X-Real-IP": "203.0.113.2"},
			remote:  "192.0.2.1:12345",
			wantIP:  "192.0.2.1",
		},
		{
			name:    "X-Forwarded-For from trusted range",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.2"},
			remote:  "10.1.2.3:12345",
			wantIP:  "203.0.113.1",
		},
		{
			name:    "X-Real-IP from trusted address",
			headers: map[string]string{"X-Real-IP": "203.0.113.2"},
			remote:  "192.0.2.50:12345",
			wantIP:  "203.0.113.2",
		},
		{
			name:    "trusted peer without headers",
			headers: map[string]string{},
			remote:  "10.1.2.3:12345",
			wantIP:  "10.1.2.3",
		},
		{
			name:    "From RemoteAddr",
			headers: map[string]string{},
			remote:  "203.0.113.3:12345",
			wantIP:  "203.0.113.3",
		},
		{
			name:    "RemoteAddr without port",
			headers: map[string]string{},
			remote:  "203.0.113.4",
			wantIP:  "203.0.113.4",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			req.RemoteAddr = tc.remote

			assert.Equal(t, tc.wantIP, rl.getClientIP(req))
		})
	}
}

func TestRateLimiter_SpoofedForwardingHeader(t *testing.T) {
	rl, _ := newTestRateLimiter(1, 1)
	middleware := rl.Middleware(okHandler())

	spoofed := func(forwardedFor string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.0.2.9:12345"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, spoofed("203.0.113.10"))
	assert.Equal(t, http.StatusTooManyRequests, spoofed("203.0.113.11"),
		"a fresh X-Forwarded-For must not buy a new bucket")
}

func TestRateLimitStatusHeaders(t *testing.T) {
	rl, clock := newTestRateLimiter(10, 10)
	middleware := rl.Middleware(okHandler())

	rr := doRequest(middleware, "/api/info", "192.0.2.7:12345")
	require.Equal(t, http.StatusOK, rr.Code)

	limit, _ := strconv.Atoi(rr.Header().Get("X-RateLimit-Limit"))
	remaining, _ := strconv.Atoi(rr.Header().Get("X-RateLimit-Remaining"))
	reset, _ := strconv.ParseInt(rr.Header().Get("X-RateLimit-Reset"), 10, 64)

	assert.Equal(t, 10, limit)
	assert.Equal(t, 9, remaining)
	assert.True(t, time.Unix(reset, 0).After(clock.Now()))
}

func TestRateLimiter_Evict(t *testing.T) {
	rl, _ := newTestRateLimiter(1, 1)
	for i := 0; i < 30; i++ {
		rl.Allow(fmt.Sprintf("ip:10.0.0.%d", i))
	}

	assert.Equal(t, 0, rl.evict(50), "nothing to evict below the limit")

	removed := rl.evict(20)
	assert.Equal(t, 12, removed)
	assert.Equal(t, 18, rl.limiters.ItemCount())
}

func TestRateLimiter_CloseIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, ByIP: config.DefaultRateLimit()})
	assert.NotPanics(t, func() {
		rl.Close()
		rl.Close()
	})
}
