package store

import (
	"context"
	"sync"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
)

// MemoryRepo keeps the collection in process memory. Used for STORE_BACKEND=memory
// and in tests; FailSaves makes every save return the configured error.
type MemoryRepo struct {
	mu        sync.Mutex
	subs      []domain.Subscription
	saves     int
	FailSaves error
}

func NewMemoryRepo(initial ...domain.Subscription) *MemoryRepo {
	return &MemoryRepo{subs: cloneAll(initial)}
}

func (r *MemoryRepo) LoadSubscriptions(context.Context) ([]domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneAll(r.subs), nil
}

func (r *MemoryRepo) SaveSubscriptions(_ context.Context, subs []domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSaves != nil {
		return r.FailSaves
	}
	r.subs = cloneAll(subs)
	r.saves++
	return nil
}

// Saves reports how many successful saves happened.
func (r *MemoryRepo) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func (r *MemoryRepo) Close() error { return nil }

func cloneAll(in []domain.Subscription) []domain.Subscription {
	out := make([]domain.Subscription, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}
