package realtime

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisBroker_RunResubscribesUntilCanceled(t *testing.T) {
	// Nothing listens on port 1, so every subscribe attempt fails.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	b := NewRedisBroker(rdb, NewHub(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.retryMin = 5 * time.Millisecond
	b.retryMax = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for b.Restarts() < 3 {
		select {
		case err := <-done:
			t.Fatalf("relay stopped before cancel: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated resubscribes, got %d", b.Restarts())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}
