package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory checkpoint store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byRun  map[string][]*Checkpoint
	closed bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byRun: make(map[string][]*Checkpoint),
	}
}

func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.RunID == "" {
		return ErrInvalidRun
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	stored := *cp
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.Version = len(s.byRun[cp.RunID]) + 1
	s.byRun[cp.RunID] = append(s.byRun[cp.RunID], &stored)
	cp.ID = stored.ID
	cp.Version = stored.Version
	return nil
}

func (s *MemoryStore) Latest(ctx context.Context, runID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	cps := s.byRun[runID]
	if len(cps) == 0 {
		return nil, ErrNotFound
	}
	cp := *cps[len(cps)-1]
	return &cp, nil
}

func (s *MemoryStore) Version(ctx context.Context, runID string, version int) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cps := s.byRun[runID]
	if version < 1 || version > len(cps) {
		return nil, ErrNotFound
	}
	cp := *cps[version-1]
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, runID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cps := s.byRun[runID]
	out := make([]*Checkpoint, len(cps))
	for i, cp := range cps {
		c := *cp
		out[i] = &c
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byRun, runID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
