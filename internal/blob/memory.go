package blob

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. DeleteErr, when set, is returned by
// every Delete so callers can exercise cleanup failure paths.
type MemoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	DeleteErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, data []byte, contentType string) (string, error) {
	id, err := NewID(contentType)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = append([]byte(nil), data...)
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.objects, id)
	s.deleted = append(s.deleted, id)
	return nil
}

// Seed stores data under a caller-chosen ID.
func (s *MemoryStore) Seed(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = data
}

// Has reports whether id is currently stored.
func (s *MemoryStore) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[id]
	return ok
}

// Deleted returns the IDs passed to successful Delete calls, in order.
func (s *MemoryStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}
