package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
)

// ErrPersist wraps backend write failures. When it is returned the in-memory
// collection already holds the mutation and the backend does not.
var ErrPersist = errors.New("persist subscriptions")

// Store owns the live subscription collection. Every mutation runs under one
// lock and is followed by a full rewrite through the Repo.
type Store struct {
	mu   sync.Mutex
	repo Repo
	log  *zap.Logger
	subs []domain.Subscription
}

func New(repo Repo, log *zap.Logger) *Store {
	return &Store{repo: repo, log: log}
}

// Load replaces the in-memory collection with the persisted one.
func (s *Store) Load(ctx context.Context) error {
	subs, err := s.repo.LoadSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	for i := range subs {
		subs[i] = normalize(subs[i])
	}
	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()
	return nil
}

// Save rewrites the persisted collection from memory.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	if err := s.repo.SaveSubscriptions(ctx, s.subs); err != nil {
		s.log.Error("save subscriptions failed", zap.Int("count", len(s.subs)), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// List returns copies of all subscriptions in insertion order.
func (s *Store) List() []domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Subscription, len(s.subs))
	for i, sub := range s.subs {
		out[i] = sub.Clone()
	}
	return out
}

// Get returns a copy of the subscription with the given id.
func (s *Store) Get(id string) (domain.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.subs[i].Clone(), true
	}
	return domain.Subscription{}, false
}

// ForUser returns copies of the user's subscriptions.
func (s *Store) ForUser(userID string) []domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub.Clone())
		}
	}
	return out
}

// Add normalizes fields into a new record, appends it and persists.
func (s *Store) Add(ctx context.Context, fields domain.Subscription) (domain.Subscription, error) {
	rec := normalize(fields.Clone())
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, rec)
	return rec.Clone(), s.saveLocked(ctx)
}

// Update applies fn to the record with the given id and persists.
// ok is false when no such record exists; fn cannot change the id.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.Subscription)) (domain.Subscription, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return domain.Subscription{}, false, nil
	}
	rec := s.subs[i].Clone()
	fn(&rec)
	rec.ID = id
	s.subs[i] = normalize(rec)
	return s.subs[i].Clone(), true, s.saveLocked(ctx)
}

// UpdateWhere applies fn to every record matching pred and persists once.
// It returns copies of the updated records.
func (s *Store) UpdateWhere(ctx context.Context, pred func(domain.Subscription) bool, fn func(*domain.Subscription)) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated []domain.Subscription
	for i := range s.subs {
		if !pred(s.subs[i]) {
			continue
		}
		rec := s.subs[i].Clone()
		fn(&rec)
		rec.ID = s.subs[i].ID
		s.subs[i] = normalize(rec)
		updated = append(updated, s.subs[i].Clone())
	}
	if len(updated) == 0 {
		return nil, nil
	}
	return updated, s.saveLocked(ctx)
}

// Remove deletes the record with the given id.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	removed, err := s.RemoveWhere(ctx, func(sub domain.Subscription) bool { return sub.ID == id })
	return len(removed) > 0, err
}

// RemoveAllForUser deletes every record owned by userID and returns how many went.
func (s *Store) RemoveAllForUser(ctx context.Context, userID string) (int, error) {
	removed, err := s.RemoveWhere(ctx, func(sub domain.Subscription) bool { return sub.UserID == userID })
	return len(removed), err
}

// RemoveWhere deletes every record matching pred, persists once, and returns
// the removed records.
func (s *Store) RemoveWhere(ctx context.Context, pred func(domain.Subscription) bool) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.subs[:0:0]
	var removed []domain.Subscription
	for _, sub := range s.subs {
		if pred(sub) {
			removed = append(removed, sub)
			continue
		}
		kept = append(kept, sub)
	}
	if len(removed) == 0 {
		return nil, nil
	}
	s.subs = kept
	return removed, s.saveLocked(ctx)
}

func (s *Store) indexLocked(id string) int {
	for i := range s.subs {
		if s.subs[i].ID == id {
			return i
		}
	}
	return -1
}

// normalize fills documented defaults on a record.
func normalize(sub domain.Subscription) domain.Subscription {
	sub.Mode = domain.NormalizeMode(string(sub.Mode))
	sub.Window = domain.NormalizeWindow(sub.Window)
	sub.Timezone = strings.TrimSpace(sub.Timezone)
	return sub
}
