package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iho/treasury/internal/infrastructure/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StorageDriver:      config.StorageDriverMemory,
		LockTimeout:        time.Second,
		StatsCacheTTL:      time.Minute,
		IdempotencyTTL:     time.Hour,
		OutboxPollInterval: 10 * time.Millisecond,
		OutboxBatchSize:    10,
		OutboxStream:       "treasury:events",
		JWTExpiration:      time.Hour,
	}
}

func TestNewApp_MemoryWithoutRedis(t *testing.T) {
	a, err := newApp(context.Background(), memoryConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	for _, path := range []string{"/health", "/ready", "/metrics", "/api/v1/stats"} {
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected %s to return 200, got %d", path, rec.Code)
		}
	}
	if a.rateLimiter != nil {
		t.Fatalf("expected rate limiting to be off by default")
	}
}

func TestNewApp_WithRedisPublishesEvents(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := memoryConfig()
	cfg.RedisEnabled = true
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.RateLimitRPS = 100
	cfg.RateLimitBurst = 10

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/treasuries/", strings.NewReader(`{"name":"Main Cash","type":"GENERAL","opening_balance":"10"}`))
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create treasury: %d %s", rec.Code, rec.Body.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = a.publisher.Start(ctx)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	n, err := client.XLen(context.Background(), "treasury:events").Result()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected outbox events on the redis stream")
	}

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"redis":"ok"`) {
		t.Fatalf("expected redis readiness, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestNewApp_RedisUnavailable(t *testing.T) {
	cfg := memoryConfig()
	cfg.RedisEnabled = true
	cfg.RedisURL = "redis://127.0.0.1:1"

	if _, err := newApp(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected an error when redis is unreachable")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := memoryConfig()
	cfg.HTTPPort = "0"
	cfg.HTTPShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zerolog.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
}
