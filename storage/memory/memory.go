// Package memory is an in-process Storage backed by maps.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahmed-com/pgcalendar/storage"
)

// MemoryStorage implements storage.Storage in memory. Records are copied on
// the way in and out so callers cannot mutate stored state.
type MemoryStorage struct {
	mu       sync.RWMutex
	firings  map[string]*storage.Firing
	attempts map[string]*storage.Attempt
}

var _ storage.Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		firings:  make(map[string]*storage.Firing),
		attempts: make(map[string]*storage.Attempt),
	}
}

func (s *MemoryStorage) CreateFiring(ctx context.Context, firing *storage.Firing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.firings[firing.ID]; exists {
		return fmt.Errorf("firing %s: %w", firing.ID, storage.ErrAlreadyExists)
	}
	cp := *firing
	s.firings[firing.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetFiring(ctx context.Context, firingID string) (*storage.Firing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.firings[firingID]
	if !ok {
		return nil, fmt.Errorf("firing %s: %w", firingID, storage.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStorage) UpdateFiring(ctx context.Context, firing *storage.Firing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.firings[firing.ID]; !ok {
		return fmt.Errorf("firing %s: %w", firing.ID, storage.ErrNotFound)
	}
	firing.UpdatedAt = time.Now()
	cp := *firing
	s.firings[firing.ID] = &cp
	return nil
}

func (s *MemoryStorage) DeleteFiring(ctx context.Context, firingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.firings, firingID)
	for id, a := range s.attempts {
		if a.FiringID == firingID {
			delete(s.attempts, id)
		}
	}
	return nil
}

func (s *MemoryStorage) ListFiringsByRuleID(ctx context.Context, ruleID string) ([]*storage.Firing, error) {
	return s.filter(func(f *storage.Firing) bool { return f.RuleID == ruleID }), nil
}

func (s *MemoryStorage) ListRunningFirings(ctx context.Context) ([]*storage.Firing, error) {
	return s.filter(func(f *storage.Firing) bool { return f.Status == storage.FiringStatusRunning }), nil
}

func (s *MemoryStorage) ListStaleFirings(ctx context.Context, threshold time.Duration) ([]*storage.Firing, error) {
	now := time.Now()
	return s.filter(func(f *storage.Firing) bool { return f.IsStale(now, threshold) }), nil
}

// filter returns copies of matching firings ordered by creation time
func (s *MemoryStorage) filter(keep func(*storage.Firing) bool) []*storage.Firing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.Firing
	for _, f := range s.firings {
		if keep(f) {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStorage) CreateAttempt(ctx context.Context, attempt *storage.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attempts[attempt.ID]; exists {
		return fmt.Errorf("attempt %s: %w", attempt.ID, storage.ErrAlreadyExists)
	}
	cp := *attempt
	s.attempts[attempt.ID] = &cp
	return nil
}

func (s *MemoryStorage) UpdateAttempt(ctx context.Context, attempt *storage.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[attempt.ID]; !ok {
		return fmt.Errorf("attempt %s: %w", attempt.ID, storage.ErrNotFound)
	}
	cp := *attempt
	s.attempts[attempt.ID] = &cp
	return nil
}

func (s *MemoryStorage) ListAttemptsByFiringID(ctx context.Context, firingID string) ([]*storage.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.Attempt
	for _, a := range s.attempts {
		if a.FiringID == firingID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

// Close is a no-op
func (s *MemoryStorage) Close() error { return nil }
