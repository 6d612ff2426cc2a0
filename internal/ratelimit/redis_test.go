package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestLimiter(t *testing.T, limit int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	limiter, err := NewRedisLimiter("redis://"+s.Addr(), limit, window)
	if err != nil {
		t.Fatalf("failed to create redis limiter: %v", err)
	}
	return limiter, s
}

func TestNewRedisLimiter(t *testing.T) {
	limiter, s := setupTestLimiter(t, 10, time.Second)
	defer limiter.Close()
	defer s.Close()

	if err := limiter.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRedisLimiterAllowsUpToLimit(t *testing.T) {
	limiter, s := setupTestLimiter(t, 3, time.Minute)
	defer limiter.Close()
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "client-a")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, "client-a")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if allowed {
		t.Fatal("request over the limit should be denied")
	}

	// A different client key has its own window.
	allowed, err = limiter.Allow(ctx, "client-b")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !allowed {
		t.Fatal("separate client should not share the counter")
	}
}

func TestRedisLimiterWindowResets(t *testing.T) {
	limiter, s := setupTestLimiter(t, 1, time.Second)
	defer limiter.Close()
	defer s.Close()

	ctx := context.Background()
	if allowed, _ := limiter.Allow(ctx, "client-a"); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _ := limiter.Allow(ctx, "client-a"); allowed {
		t.Fatal("second request within window should be denied")
	}

	s.FastForward(2 * time.Second)

	if allowed, _ := limiter.Allow(ctx, "client-a"); !allowed {
		t.Fatal("request after window expiry should be allowed")
	}
}
