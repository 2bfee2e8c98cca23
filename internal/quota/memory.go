package quota

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

type usageKey struct {
	identity string
	day      string
}

func keyFor(identity string, day time.Time) usageKey {
	return usageKey{identity: identity, day: day.Format(time.DateOnly)}
}

// MemoryStore is an in-process Store. A single mutex serialises every
// operation, which gives the same atomicity as the SQL store.
type MemoryStore struct {
	mu       sync.Mutex
	usage    map[usageKey]int
	balances map[string]int
	attempts map[string]*model.GenerationAttempt
	now      func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usage:    make(map[usageKey]int),
		balances: make(map[string]int),
		attempts: make(map[string]*model.GenerationAttempt),
		now:      time.Now,
	}
}

// SetPaidQuota seeds an account balance.
func (s *MemoryStore) SetPaidQuota(accountID string, quota int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[accountID] = quota
}

// SetFreeUsed seeds a daily usage counter.
func (s *MemoryStore) SetFreeUsed(identity string, day time.Time, used int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[keyFor(identity, day)] = used
}

// Attempt returns a copy of a recorded attempt.
func (s *MemoryStore) Attempt(id string) (model.GenerationAttempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return model.GenerationAttempt{}, false
	}
	return *a, true
}

// ChargeFree implements Store.
func (s *MemoryStore) ChargeFree(_ context.Context, a *model.GenerationAttempt, dailyCap int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyFor(a.Identity, a.UsageDate)
	if s.usage[k] >= dailyCap {
		return false, nil
	}
	s.usage[k]++
	s.record(a, model.SourceFreeDaily)
	return true, nil
}

// ChargePaid implements Store.
func (s *MemoryStore) ChargePaid(_ context.Context, a *model.GenerationAttempt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances[a.AccountID] <= 0 {
		return false, nil
	}
	s.balances[a.AccountID]--
	s.record(a, model.SourcePaid)
	return true, nil
}

func (s *MemoryStore) record(a *model.GenerationAttempt, source model.ChargeSource) {
	stored := *a
	stored.Source = source
	stored.Status = model.AttemptCharged
	s.attempts[a.ID] = &stored
}

// Refund implements Store.
func (s *MemoryStore) Refund(_ context.Context, chargeID, reason string) (*model.GenerationAttempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[chargeID]
	if !ok {
		return nil, false, ErrChargeNotFound
	}
	if a.Status != model.AttemptCharged {
		return nil, false, nil
	}

	switch a.Source {
	case model.SourceFreeDaily:
		k := keyFor(a.Identity, a.UsageDate)
		if s.usage[k] > 0 {
			s.usage[k]--
		}
	case model.SourcePaid:
		s.balances[a.AccountID]++
	}
	a.Status = model.AttemptRefunded
	a.FailureReason = reason
	a.UpdatedAt = s.now()

	out := *a
	return &out, true, nil
}

// Settle implements Store.
func (s *MemoryStore) Settle(_ context.Context, chargeID, artifactURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[chargeID]
	if !ok || a.Status != model.AttemptCharged {
		return false, nil
	}
	a.Status = model.AttemptSettled
	a.ArtifactURL = artifactURL
	a.UpdatedAt = s.now()
	return true, nil
}

// FreeUsed implements Store.
func (s *MemoryStore) FreeUsed(_ context.Context, identity string, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[keyFor(identity, day)], nil
}

// PaidQuota implements Store.
func (s *MemoryStore) PaidQuota(_ context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[accountID], nil
}

// StaleCharges implements Store.
func (s *MemoryStore) StaleCharges(_ context.Context, before time.Time, limit int) ([]*model.GenerationAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.GenerationAttempt
	for _, a := range s.attempts {
		if a.Status == model.AttemptCharged && a.CreatedAt.Before(before) {
			cp := *a
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *model.GenerationAttempt) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
