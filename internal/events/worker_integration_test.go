//go:build integration

package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
	"github.com/chenjf2025/BookQuoteApp/internal/model"
	"github.com/chenjf2025/BookQuoteApp/internal/testutil"
)

type memoryRepo struct {
	mu    sync.Mutex
	byID  map[string]*model.LedgerEvent
	failN int
}

func (r *memoryRepo) BulkInsert(_ context.Context, events []*model.LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failN > 0 {
		r.failN--
		return errors.New("db unavailable")
	}
	for _, e := range events {
		if _, ok := r.byID[e.EventID]; !ok {
			r.byID[e.EventID] = e
		}
	}
	return nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func TestWorker_PersistsAndDeadLetters(t *testing.T) {
	client := testutil.NewTestRedis(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := metrics.NewInMemory()

	pub := NewPublisher(client, logger, rec)
	for i := 0; i < 3; i++ {
		if _, err := pub.Publish(ctx, validPayload()); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		Values: map[string]interface{}{"payload": "{not json"},
	}).Err(); err != nil {
		t.Fatalf("xadd poison: %v", err)
	}

	repo := &memoryRepo{byID: map[string]*model.LedgerEvent{}, failN: 1}
	w := NewWorker(client, repo, WorkerConfig{
		ConsumerID:   NewConsumerID(),
		BlockTimeout: 100 * time.Millisecond,
		RetryBase:    10 * time.Millisecond,
		Logger:       logger,
		Metrics:      rec,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	deadline := time.Now().Add(5 * time.Second)
	for repo.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	shutdownCtx, stop := context.WithTimeout(ctx, 5*time.Second)
	defer stop()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := repo.count(); got != 3 {
		t.Fatalf("stored events = %d, want 3", got)
	}
	dlq, err := client.XLen(ctx, DeadLetterStreamKey).Result()
	if err != nil || dlq != 1 {
		t.Errorf("dead letters = %d (%v), want 1", dlq, err)
	}

	snap := rec.Snapshot()
	if snap.LedgerEventsProcessed != 3 || snap.LedgerEventsDeadLettered != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	pending, err := client.XPending(ctx, StreamKey, ConsumerGroup).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Errorf("pending = %d, want 0", pending.Count)
	}
}
