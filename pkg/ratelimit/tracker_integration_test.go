//go:build integration

package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}
	return client, cleanup
}

func budgetHeaders(remaining, reset string) http.Header {
	h := http.Header{}
	h.Set(HeaderRemaining, remaining)
	h.Set(HeaderReset, reset)
	return h
}

func TestTracker_Integration_GetState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, "people", logger)
	ctx := context.Background()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 100 || !state.Healthy {
		t.Errorf("default state = %+v, want 100 remaining and healthy", state)
	}

	if err := tracker.UpdateFromHeaders(ctx, budgetHeaders("75", "120")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err = tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() after update error = %v", err)
	}
	if state.Remaining != 75 {
		t.Errorf("Remaining = %d, want 75", state.Remaining)
	}
	if !state.Healthy {
		t.Error("State with 75 remaining should be healthy")
	}

	expected := 120 * time.Second
	tolerance := 5 * time.Second
	if got := state.TimeUntilReset(); got < expected-tolerance || got > expected+tolerance {
		t.Errorf("TimeUntilReset = %v, want approximately %v", got, expected)
	}

	ttl, err := redisClient.TTL(ctx, tracker.Key()).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 {
		t.Errorf("state key TTL = %v, want an expiry", ttl)
	}
}

func TestTracker_Integration_Critical(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, "people", zerolog.Nop())
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, budgetHeaders("3", "60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("ShouldAllowRequest() = true, want false for critical state")
	}
	if err := tracker.Wait(ctx); !errors.Is(err, ErrBlocked) {
		t.Errorf("Wait() = %v, want ErrBlocked", err)
	}
}

func TestTracker_Integration_Warning(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, "people", zerolog.Nop())
	tracker.SetThrottleDelay(100 * time.Millisecond)
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, budgetHeaders("15", "60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	start := time.Now()
	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("ShouldAllowRequest() = false, want true for warning state")
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("elapsed = %v, want throttle delay", elapsed)
	}
}

func TestTracker_Integration_SourcesAreIsolated(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	people := NewTracker(redisClient, "people", zerolog.Nop())
	teams := NewTracker(redisClient, "teams", zerolog.Nop())

	if err := people.UpdateFromHeaders(ctx, budgetHeaders("2", "60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err := teams.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Blocked() {
		t.Error("another source's budget leaked into this one")
	}
}
