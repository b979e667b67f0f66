package redis

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  3,
		Window: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "ip:10.0.0.1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if result.Remaining != 3-i-1 {
			t.Errorf("request %d: remaining = %d, want %d", i+1, result.Remaining, 3-i-1)
		}
	}

	result, err := limiter.Allow(ctx, "ip:10.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed {
		t.Fatal("fourth request should be rejected")
	}
	if result.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", result.Remaining)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  1,
		Window: time.Minute,
	})
	ctx := context.Background()

	if result, _ := limiter.Allow(ctx, "ip:10.0.0.1"); !result.Allowed {
		t.Fatal("first key should be allowed")
	}
	if result, _ := limiter.Allow(ctx, "ip:10.0.0.2"); !result.Allowed {
		t.Fatal("second key should be allowed")
	}
	if result, _ := limiter.Allow(ctx, "ip:10.0.0.1"); result.Allowed {
		t.Fatal("first key should now be exhausted")
	}
}

func TestRateLimiter_Limit(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  120,
		Window: time.Minute,
	})

	if limiter.Limit() != 120 {
		t.Fatalf("Limit() = %d, want 120", limiter.Limit())
	}
}
