package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

// ConsumerGroup is the Redis consumer group shared by all API replicas.
const ConsumerGroup = "ledger_writers"

const deadLetterMaxLen = 10000

// Repository persists ledger events. BulkInsert must be idempotent on
// LedgerEvent.EventID.
type Repository interface {
	BulkInsert(ctx context.Context, events []*model.LedgerEvent) error
}

// WorkerConfig tunes a Worker. Zero fields take the defaults below.
type WorkerConfig struct {
	ConsumerID      string
	BatchSize       int           // 200
	BlockTimeout    time.Duration // 5s
	MaxRetries      int           // 3
	RetryBase       time.Duration // 1s, doubled per retry
	ClaimInterval   time.Duration // 10s
	ClaimIdle       time.Duration // 30s
	MetricsInterval time.Duration // 5s
	Logger          *slog.Logger
	Metrics         metrics.Recorder
}

func (c *WorkerConfig) applyDefaults() {
	if c.ConsumerID == "" {
		c.ConsumerID = NewConsumerID()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = 10 * time.Second
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = 30 * time.Second
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNoop()
	}
}

// Worker moves ledger events from the Redis stream into the repository.
type Worker struct {
	redis        *redis.Client
	repo         Repository
	cfg          WorkerConfig
	logger       *slog.Logger
	metrics      metrics.Recorder
	claimStartID string
	lastClaim    time.Time
	lastMetrics  time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a ledger event worker reading StreamKey.
func NewWorker(client *redis.Client, repo Repository, cfg WorkerConfig) *Worker {
	cfg.applyDefaults()
	return &Worker{
		redis:        client,
		repo:         repo,
		cfg:          cfg,
		logger:       cfg.Logger.With("component", "events.worker", "consumer_id", cfg.ConsumerID),
		metrics:      cfg.Metrics,
		claimStartID: "0-0",
	}
}

// Run processes batches until ctx is cancelled or Shutdown is called.
// A Worker runs at most once.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.done != nil {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()
	defer close(w.done)

	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}
	w.logger.Info("ledger event worker started")

	for ctx.Err() == nil {
		err := w.processOnce(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		w.logger.Error("process error", "error", err)
		_ = sleepCtx(ctx, time.Second)
	}
	w.logger.Info("ledger event worker stopping")
	return nil
}

// Shutdown stops the worker and waits for the in-flight batch.
// It matches server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		w.logger.Info("ledger event worker stopped")
		return nil
	case <-ctx.Done():
		w.logger.Warn("ledger event worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}
	if len(messages) == 0 {
		messages, err = w.readBatch(ctx)
		if err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	events, ids := w.parseMessages(ctx, messages)
	if len(events) > 0 {
		if err := w.processBatchWithRetry(ctx, events); err != nil {
			// Left pending; a later claim retries them.
			return err
		}
	}
	return w.ack(ctx, ids)
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.cfg.ClaimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.cfg.ConsumerID,
		MinIdle:  w.cfg.ClaimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.cfg.BatchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		w.claimStartID = next
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.cfg.MetricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetLedgerQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.cfg.ConsumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.cfg.BatchSize),
		Block:    w.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

// parseMessages decodes messages into events. Undecodable or invalid
// messages go to the dead-letter stream; every ID is returned for ack.
func (w *Worker) parseMessages(ctx context.Context, messages []redis.XMessage) ([]*model.LedgerEvent, []string) {
	events := make([]*model.LedgerEvent, 0, len(messages))
	ids := make([]string, 0, len(messages))

	for _, msg := range messages {
		ids = append(ids, msg.ID)

		raw, ok := msg.Values["payload"].(string)
		if !ok {
			w.deadLetter(ctx, msg, "invalid_format", "payload field missing or not a string")
			continue
		}
		var p Payload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			w.deadLetter(ctx, msg, "unmarshal_error", err.Error())
			continue
		}
		if err := ValidatePayload(p); err != nil {
			w.deadLetter(ctx, msg, "validation_error", err.Error())
			continue
		}
		events = append(events, p.Event(ulid.Make().String(), msg.ID))
	}
	return events, ids
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering ledger event",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          fmt.Sprint(msg.Values["payload"]),
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("failed to write to dead-letter stream", "message_id", msg.ID, "error", err)
	}
	w.metrics.IncLedgerEventProcessed("dead_lettered")
}

func (w *Worker) processBatchWithRetry(ctx context.Context, events []*model.LedgerEvent) error {
	var lastErr error
	backoff := w.cfg.RetryBase

	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		start := time.Now()
		err := w.repo.BulkInsert(ctx, events)
		if err == nil {
			w.metrics.ObserveLedgerBatch(len(events), time.Since(start))
			for range events {
				w.metrics.IncLedgerEventProcessed("success")
			}
			w.logger.Debug("ledger batch stored", "events", len(events), "duration", time.Since(start))
			return nil
		}

		lastErr = err
		w.logger.Warn("ledger batch insert failed",
			"attempt", attempt,
			"batch_size", len(events),
			"first_event_id", events[0].EventID,
			"error", err,
		)
		if attempt == w.cfg.MaxRetries {
			break
		}
		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}

	for range events {
		w.metrics.IncLedgerEventProcessed("failed")
	}
	return fmt.Errorf("bulk insert: %w", lastErr)
}

func (w *Worker) ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
