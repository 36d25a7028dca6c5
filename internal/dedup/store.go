package dedup

import (
	"context"
	"sync"
)

// Store records conversations that already received a match note.
type Store interface {
	// HasProcessed reports whether id was marked before.
	HasProcessed(ctx context.Context, id string) (bool, error)
	// MarkProcessed marks id and returns true only for the first caller.
	MarkProcessed(ctx context.Context, id string) (bool, error)
}

// MemoryStore is a process-lifetime Store. Its contents are lost on restart.
type MemoryStore struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: map[string]struct{}{}}
}

// HasProcessed reports whether id was marked. It never fails.
func (s *MemoryStore) HasProcessed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok, nil
}

// MarkProcessed is an atomic check-and-set.
func (s *MemoryStore) MarkProcessed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false, nil
	}
	s.ids[id] = struct{}{}
	return true, nil
}

// Len returns the number of marked ids.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
