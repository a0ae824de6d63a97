package instance

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and broker-less local runs.
// All methods are safe for concurrent use; instances are deep-copied on the
// way in and out.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Instance
	byKey map[string]string // idempotency key -> instance id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Instance),
		byKey: make(map[string]string),
	}
}

func (s *MemoryStore) Save(_ context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inst.IdempotencyKey != "" {
		if owner, ok := s.byKey[inst.IdempotencyKey]; ok && owner != inst.ID {
			return ErrDuplicateIdempotencyKey
		}
		s.byKey[inst.IdempotencyKey] = inst.ID
	}
	s.byID[inst.ID] = inst.Clone()
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inst.Clone(), nil
}

func (s *MemoryStore) FindByIdempotencyKey(_ context.Context, key string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	inst, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inst.Clone(), nil
}

func (s *MemoryStore) FindByState(_ context.Context, state State) ([]*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Instance
	for _, inst := range s.byID {
		if inst.State == state {
			out = append(out, inst.Clone())
		}
	}
	return out, nil
}
