package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("write")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/mint", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesPolicies(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"read":  {RequestsPerMinute: 60, Burst: 1},
		"write": {RequestsPerMinute: 60, Burst: 1},
	}, nil)
	readHandler := limiter.Middleware("read")(okHandler())
	writeHandler := limiter.Middleware("write")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/params", nil)
	req.Header.Set("X-API-Key", "tenant-A")
	res := httptest.NewRecorder()
	readHandler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected read request to succeed, got %d", res.Code)
	}

	writeReq := httptest.NewRequest(http.MethodPost, "/v1/deposit", nil)
	writeReq.Header.Set("X-API-Key", "tenant-A")
	writeRes := httptest.NewRecorder()
	writeHandler.ServeHTTP(writeRes, writeReq)
	if writeRes.Code != http.StatusOK {
		t.Fatalf("expected first write request to succeed, got %d", writeRes.Code)
	}

	writeRes = httptest.NewRecorder()
	writeHandler.ServeHTTP(writeRes, writeReq)
	if writeRes.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second write request to hit limit, got %d", writeRes.Code)
	}
}

func TestRateLimiterPrefersAPIKeyOverIP(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"read": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("read")(okHandler())

	for _, tenant := range []string{"tenant-A", "tenant-B"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/solvency", nil)
		req.Header.Set("X-API-Key", tenant)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected %s request to succeed, got %d", tenant, res.Code)
		}
	}
}

func TestRateLimiterPrunesIdleClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"read": {RatePerSecond: 1, Burst: 1},
	}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("read")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/params", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected one tracked client, got %d", len(limiter.visitors))
	}

	now = now.Add(10 * time.Minute)
	other := httptest.NewRequest(http.MethodGet, "/v1/params", nil)
	other.RemoteAddr = "10.0.0.9:1234"
	handler.ServeHTTP(httptest.NewRecorder(), other)
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected idle client to be pruned, got %d", len(limiter.visitors))
	}
}

func TestRateLimiterPassesUnknownPolicy(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	handler := limiter.Middleware("missing")(okHandler())
	for i := 0; i < 3; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("expected unknown policy to pass through, got %d", res.Code)
		}
	}
}
