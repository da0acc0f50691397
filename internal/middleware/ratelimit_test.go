package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowWithinLimit(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 10; i++ {
		if !rl.Allow("10.0.0.1", 10, time.Minute) {
			t.Fatalf("scan %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1", 10, time.Minute) {
		t.Error("scan over the limit should be denied")
	}
	// A different device is unaffected.
	if !rl.Allow("10.0.0.2", 10, time.Minute) {
		t.Error("other key should still be allowed")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter()

	rl.Allow("k", 1, 10*time.Millisecond)
	if rl.Allow("k", 1, 10*time.Millisecond) {
		t.Error("second hit inside the window should be denied")
	}

	time.Sleep(15 * time.Millisecond)
	if !rl.Allow("k", 1, 10*time.Millisecond) {
		t.Error("hit after the window should be allowed again")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter()

	rl.Allow("gone", 5, 10*time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	rl.Allow("kept", 5, time.Minute)

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.entries["gone"]; ok {
		t.Error("expired entry survived cleanup")
	}
	if _, ok := rl.entries["kept"]; !ok {
		t.Error("live entry removed by cleanup")
	}
}

func TestRateLimiterCleanupBoundsMap(t *testing.T) {
	rl := NewRateLimiter()

	// One entry per scanning device; after their windows lapse a sweep must
	// reclaim them all, or the map grows for the life of the process.
	for i := 0; i < 1000; i++ {
		rl.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256), 5, time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if n := len(rl.entries); n != 0 {
		t.Errorf("entries retained after all windows expired: %d", n)
	}
}

func TestRateLimitMiddlewareThrottles(t *testing.T) {
	rl := NewRateLimiter()
	h := RateLimit(rl, RealIP, 2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/scan", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("scan %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/scan", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("throttled scan: status = %d, want 429", rec.Code)
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	if got := RealIP(req); got != "10.0.0.9" {
		t.Errorf("RealIP = %s, want 10.0.0.9", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := RealIP(req); got != "203.0.113.7" {
		t.Errorf("RealIP with XFF = %s, want 203.0.113.7", got)
	}
}
