// Package events carries the quota audit trail: ledger events are appended
// to a Redis stream on the request path and persisted to Postgres by a
// background worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

const (
	// StreamKey is the Redis stream for ledger events.
	StreamKey = "ledger:events"

	// DeadLetterStreamKey holds messages the worker could not decode.
	DeadLetterStreamKey = "ledger:events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout bounds one asynchronous publish.
	PublishTimeout = 250 * time.Millisecond
)

// Payload is the compact stream encoding of a model.LedgerEvent.
type Payload struct {
	Kind       string `json:"k"`
	ChargeID   string `json:"cid,omitempty"`
	AccountID  string `json:"aid,omitempty"`
	Identity   string `json:"idn,omitempty"`
	Source     string `json:"src,omitempty"`
	Delta      int    `json:"d"`
	Detail     string `json:"dt,omitempty"`
	OccurredAt int64  `json:"t"` // Unix milliseconds
}

// PayloadFrom encodes e, truncating free-text fields to stored limits.
func PayloadFrom(e *model.LedgerEvent) Payload {
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return Payload{
		Kind:       string(e.Kind),
		ChargeID:   e.ChargeID,
		AccountID:  e.AccountID,
		Identity:   truncate(e.Identity, maxIdentityLength),
		Source:     string(e.Source),
		Delta:      e.Delta,
		Detail:     truncate(e.Detail, maxDetailLength),
		OccurredAt: occurred.UnixMilli(),
	}
}

// Event decodes p into a ledger event with the given stream message ID.
func (p Payload) Event(id, messageID string) *model.LedgerEvent {
	return &model.LedgerEvent{
		ID:         id,
		EventID:    messageID,
		Kind:       model.LedgerEventKind(p.Kind),
		ChargeID:   p.ChargeID,
		AccountID:  p.AccountID,
		Identity:   p.Identity,
		Source:     model.ChargeSource(p.Source),
		Delta:      p.Delta,
		Detail:     p.Detail,
		OccurredAt: time.UnixMilli(p.OccurredAt).UTC(),
	}
}

// Publisher enqueues ledger events to the Redis stream.
type Publisher struct {
	redis    *redis.Client
	logger   *slog.Logger
	metrics  metrics.Recorder
	inflight sync.WaitGroup
}

// NewPublisher creates a new ledger event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// Publish adds an event to the stream synchronously and returns its ID.
func (p *Publisher) Publish(ctx context.Context, payload Payload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// PublishAsync publishes without blocking the caller. Failures are logged
// and counted, never returned: the audit trail must not fail a charge.
func (p *Publisher) PublishAsync(ctx context.Context, event *model.LedgerEvent) {
	payload := PayloadFrom(event)
	ctx = context.WithoutCancel(ctx)

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, payload)
		if err != nil {
			p.logger.Warn("failed to publish ledger event",
				"kind", payload.Kind,
				"charge_id", payload.ChargeID,
				"error", err,
			)
			p.metrics.IncLedgerEventPublished("dropped")
			return
		}

		p.logger.Debug("ledger event published",
			"kind", payload.Kind,
			"charge_id", payload.ChargeID,
			"stream_id", streamID,
		)
		p.metrics.IncLedgerEventPublished("success")
	}()
}

// Flush waits for in-flight asynchronous publishes or until ctx is done.
// It matches server.ShutdownFunc.
func (p *Publisher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
