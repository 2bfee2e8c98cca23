package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.LedgerEvent
}

func (p *recordingPublisher) PublishAsync(_ context.Context, e *model.LedgerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) kinds() []model.LedgerEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.LedgerEventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

func newTestLedger(t *testing.T, store *MemoryStore, opts ...Option) *Ledger {
	t.Helper()
	var seq atomic.Int64
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return fmt.Sprintf("chg-%d", seq.Add(1)) }),
	}
	return NewLedger(store, DefaultDailyFreeCap, append(base, opts...)...)
}

func state(t *testing.T, l *Ledger, identity, account string) (int, int) {
	t.Helper()
	u, err := l.Usage(context.Background(), identity, account)
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	return u.FreeUsed, u.PaidQuota
}

func TestLedger_Charge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		freeUsed   int
		paid       int
		wantSource model.ChargeSource
		wantErr    error
		wantFree   int
		wantPaid   int
	}{
		{"fresh identity uses free", 0, 0, model.SourceFreeDaily, nil, 1, 0},
		{"last free unit", 4, 3, model.SourceFreeDaily, nil, 5, 3},
		{"free exhausted falls back to paid", 5, 2, model.SourcePaid, nil, 5, 1},
		{"both exhausted", 5, 0, "", ErrQuotaExhausted, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := NewMemoryStore()
			store.SetFreeUsed("10.0.0.1", model.UsageDay(fixedNow, time.UTC), tt.freeUsed)
			store.SetPaidQuota("acct-1", tt.paid)
			l := newTestLedger(t, store)

			charge, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "活着")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Charge() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				if charge.Source != tt.wantSource {
					t.Errorf("Source = %s, want %s", charge.Source, tt.wantSource)
				}
				if charge.Status != model.AttemptCharged {
					t.Errorf("Status = %s, want charged", charge.Status)
				}
			} else if charge != nil {
				t.Errorf("expected nil charge on denial, got %+v", charge)
			}

			free, paid := state(t, l, "10.0.0.1", "acct-1")
			if free != tt.wantFree || paid != tt.wantPaid {
				t.Errorf("post state free=%d paid=%d, want free=%d paid=%d", free, paid, tt.wantFree, tt.wantPaid)
			}
		})
	}
}

func TestLedger_ChargeValidatesInput(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t, NewMemoryStore())
	if _, err := l.Charge(context.Background(), "  ", "acct-1", "x"); !errors.Is(err, ErrInvalidCharge) {
		t.Errorf("blank identity: error = %v, want ErrInvalidCharge", err)
	}
	if _, err := l.Charge(context.Background(), "10.0.0.1", "", "x"); !errors.Is(err, ErrInvalidCharge) {
		t.Errorf("blank account: error = %v, want ErrInvalidCharge", err)
	}
}

func TestLedger_FreeChargesNeverExceedCap(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.SetPaidQuota("acct-1", 3)
	l := newTestLedger(t, store)

	var sources []model.ChargeSource
	for i := 0; i < 10; i++ {
		charge, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "x")
		if errors.Is(err, ErrQuotaExhausted) {
			sources = append(sources, "denied")
			continue
		}
		if err != nil {
			t.Fatalf("Charge() error = %v", err)
		}
		sources = append(sources, charge.Source)
	}

	for i, s := range sources {
		var want model.ChargeSource
		switch {
		case i < 5:
			want = model.SourceFreeDaily
		case i < 8:
			want = model.SourcePaid
		default:
			want = "denied"
		}
		if s != want {
			t.Errorf("charge %d source = %s, want %s", i, s, want)
		}
	}
}

func TestLedger_ConcurrentChargesRespectBounds(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.SetPaidQuota("acct-1", 7)
	l := newTestLedger(t, store)

	var (
		wg      sync.WaitGroup
		free    atomic.Int64
		paid    atomic.Int64
		denied  atomic.Int64
		failure atomic.Value
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			charge, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "x")
			switch {
			case errors.Is(err, ErrQuotaExhausted):
				denied.Add(1)
			case err != nil:
				failure.Store(err)
			case charge.Source == model.SourceFreeDaily:
				free.Add(1)
			default:
				paid.Add(1)
			}
		}()
	}
	wg.Wait()

	if err, _ := failure.Load().(error); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if free.Load() != 5 || paid.Load() != 7 || denied.Load() != 28 {
		t.Errorf("free=%d paid=%d denied=%d, want 5/7/28", free.Load(), paid.Load(), denied.Load())
	}
	f, p := state(t, l, "10.0.0.1", "acct-1")
	if f != 5 || p != 0 {
		t.Errorf("post state free=%d paid=%d, want 5/0", f, p)
	}
}

func TestLedger_RefundRestoresPriorState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		freeUsed int
		paid     int
	}{
		{"free source", 2, 4},
		{"paid source", 5, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := NewMemoryStore()
			store.SetFreeUsed("10.0.0.1", model.UsageDay(fixedNow, time.UTC), tt.freeUsed)
			store.SetPaidQuota("acct-1", tt.paid)
			l := newTestLedger(t, store)

			charge, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "x")
			if err != nil {
				t.Fatalf("Charge() error = %v", err)
			}
			ok, err := l.Refund(context.Background(), charge, "render failed")
			if err != nil || !ok {
				t.Fatalf("Refund() = %v, %v; want true, nil", ok, err)
			}

			free, paid := state(t, l, "10.0.0.1", "acct-1")
			if free != tt.freeUsed || paid != tt.paid {
				t.Errorf("after refund free=%d paid=%d, want %d/%d", free, paid, tt.freeUsed, tt.paid)
			}
			if charge.Status != model.AttemptRefunded {
				t.Errorf("charge status = %s, want refunded", charge.Status)
			}
		})
	}
}

func TestLedger_RefundIsIdempotent(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.SetFreeUsed("10.0.0.1", model.UsageDay(fixedNow, time.UTC), 5)
	store.SetPaidQuota("acct-1", 1)
	m := metrics.NewInMemory()
	l := newTestLedger(t, store, WithMetrics(m))

	charge, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "x")
	if err != nil {
		t.Fatalf("Charge() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		ok, err := l.Refund(context.Background(), charge, "timeout")
		if err != nil {
			t.Fatalf("Refund() #%d error = %v", i, err)
		}
		if ok != (i == 0) {
			t.Errorf("Refund() #%d = %v, want %v", i, ok, i == 0)
		}
	}

	if _, paid := state(t, l, "10.0.0.1", "acct-1"); paid != 1 {
		t.Errorf("paid = %d after repeated refunds, want 1", paid)
	}
	if got := m.Snapshot().RefundedPaid; got != 1 {
		t.Errorf("refund metric = %d, want 1", got)
	}
}

func TestLedger_SettleBlocksRefund(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	l := newTestLedger(t, store)

	charge, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "x")
	if err != nil {
		t.Fatalf("Charge() error = %v", err)
	}
	if err := l.Settle(context.Background(), charge, "/static/mindmap.html"); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	ok, err := l.Refund(context.Background(), charge, "late")
	if err != nil || ok {
		t.Fatalf("Refund() after settle = %v, %v; want false, nil", ok, err)
	}
	if free, _ := state(t, l, "10.0.0.1", "acct-1"); free != 1 {
		t.Errorf("free = %d, want 1 (settled charge stays)", free)
	}

	stored, _ := store.Attempt(charge.ID)
	if stored.Status != model.AttemptSettled || stored.ArtifactURL != "/static/mindmap.html" {
		t.Errorf("stored attempt = %+v", stored)
	}

	if err := l.Settle(context.Background(), charge, "again"); !errors.Is(err, ErrChargeNotFound) {
		t.Errorf("second Settle() error = %v, want ErrChargeNotFound", err)
	}
}

func TestLedger_RefundUnknownCharge(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t, NewMemoryStore())
	_, err := l.Refund(context.Background(), &model.GenerationAttempt{ID: "nope"}, "x")
	if !errors.Is(err, ErrChargeNotFound) {
		t.Errorf("Refund(unknown) error = %v, want ErrChargeNotFound", err)
	}
	if _, err := l.Refund(context.Background(), nil, "x"); !errors.Is(err, ErrChargeNotFound) {
		t.Errorf("Refund(nil) error = %v, want ErrChargeNotFound", err)
	}
}

func TestLedger_DailyRollover(t *testing.T) {
	t.Parallel()

	now := fixedNow
	store := NewMemoryStore()
	l := NewLedger(store, 1, WithClock(func() time.Time { return now }))

	if _, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "x"); err != nil {
		t.Fatalf("day 1 Charge() error = %v", err)
	}
	if _, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "x"); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("second charge on day 1 error = %v, want ErrQuotaExhausted", err)
	}

	now = now.Add(24 * time.Hour)
	if _, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "x"); err != nil {
		t.Fatalf("day 2 Charge() error = %v", err)
	}
}

func TestLedger_ZeroCapSkipsFreeTier(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.SetPaidQuota("acct-1", 1)
	l := NewLedger(store, 0)

	charge, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "x")
	if err != nil {
		t.Fatalf("Charge() error = %v", err)
	}
	if charge.Source != model.SourcePaid {
		t.Errorf("Source = %s, want paid", charge.Source)
	}
}

func TestLedger_PublishesEvents(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	pub := &recordingPublisher{}
	l := NewLedger(store, 1, WithEvents(pub), WithClock(func() time.Time { return fixedNow }))

	charge, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "x")
	if err != nil {
		t.Fatalf("Charge() error = %v", err)
	}
	if _, err := l.Refund(context.Background(), charge, "boom"); err != nil {
		t.Fatalf("Refund() error = %v", err)
	}
	charge, err = l.Charge(context.Background(), "10.0.0.1", "acct-1", "x")
	if err != nil {
		t.Fatalf("Charge() error = %v", err)
	}
	if err := l.Settle(context.Background(), charge, "/static/a.html"); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	_, _ = l.Charge(context.Background(), "10.0.0.1", "acct-1", "x")

	want := []model.LedgerEventKind{
		model.LedgerCharged, model.LedgerRefunded, model.LedgerCharged, model.LedgerSettled, model.LedgerDenied,
	}
	got := pub.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLedger_ReconcileStale(t *testing.T) {
	t.Parallel()

	now := fixedNow
	store := NewMemoryStore()
	store.SetPaidQuota("acct-1", 1)
	l := NewLedger(store, 1, WithClock(func() time.Time { return now }))

	if _, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "x"); err != nil {
		t.Fatalf("Charge() error = %v", err)
	}
	settled, err := l.Charge(context.Background(), "10.0.0.1", "acct-1", "x")
	if err != nil {
		t.Fatalf("Charge() error = %v", err)
	}
	if err := l.Settle(context.Background(), settled, "/static/a.html"); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}

	now = now.Add(2 * time.Hour)
	n, err := l.ReconcileStale(context.Background(), time.Hour, 10)
	if err != nil {
		t.Fatalf("ReconcileStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("reconciled = %d, want 1", n)
	}
	free, paid := state(t, l, "10.0.0.1", "acct-1")
	if free != 0 || paid != 0 {
		t.Errorf("post reconcile free=%d paid=%d, want 0/0", free, paid)
	}
}

func TestUsage_FreeRemaining(t *testing.T) {
	t.Parallel()

	if got := (Usage{FreeUsed: 2, FreeTotal: 5}).FreeRemaining(); got != 3 {
		t.Errorf("FreeRemaining() = %d, want 3", got)
	}
	if got := (Usage{FreeUsed: 7, FreeTotal: 5}).FreeRemaining(); got != 0 {
		t.Errorf("FreeRemaining() = %d, want 0", got)
	}
}

func TestLedger_UsageWithoutAccount(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	l := newTestLedger(t, store)
	store.SetFreeUsed("198.51.100.4", l.Today(), 2)

	u, err := l.Usage(context.Background(), "198.51.100.4", "")
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if u.FreeUsed != 2 || u.FreeTotal != DefaultDailyFreeCap || u.PaidQuota != 0 {
		t.Errorf("Usage() = %+v", u)
	}
}
