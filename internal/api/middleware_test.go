package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/redis"
)

func setupLimiter(t *testing.T, limit int) (*redis.RateLimiter, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("bad miniredis port: %v", err)
	}
	client, err := redis.New(context.Background(), redis.Config{
		Host: mr.Host(),
		Port: port,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}

	limiter := redis.NewRateLimiter(client, zap.NewNop(), redis.RateLimitConfig{
		Limit:  limit,
		Window: time.Minute,
	})

	return limiter, func() {
		client.Close()
		mr.Close()
	}
}

func rateLimitedHandler(limiter *redis.RateLimiter) http.Handler {
	var ok http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	return RateLimitMiddleware(limiter, zap.NewNop(), IPKeyFunc)(ok)
}

func TestRateLimitMiddleware_HeadersReportConfiguredLimit(t *testing.T) {
	limiter, cleanup := setupLimiter(t, 5)
	defer cleanup()

	handler := rateLimitedHandler(limiter)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/leads", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, w.Code)
		}
		// The limit header is the configured ceiling, not a
		// per-request countdown.
		if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
			t.Fatalf("request %d: X-RateLimit-Limit = %s, want 5", i+1, got)
		}
		wantRemaining := strconv.Itoa(5 - i - 1)
		if got := w.Header().Get("X-RateLimit-Remaining"); got != wantRemaining {
			t.Fatalf("request %d: X-RateLimit-Remaining = %s, want %s", i+1, got, wantRemaining)
		}
	}
}

func TestRateLimitMiddleware_RejectsOverLimit(t *testing.T) {
	limiter, cleanup := setupLimiter(t, 1)
	defer cleanup()

	handler := rateLimitedHandler(limiter)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/v1/leads", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.8")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != want {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Code, want)
		}
	}
}

func TestRateLimitMiddleware_NilLimiterPasses(t *testing.T) {
	handler := rateLimitedHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/leads", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
