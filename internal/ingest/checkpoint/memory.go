package checkpoint

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is a thread-safe in-memory Store for tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string][]byte
	writes  []string
	saveErr error
	loadErr error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// Load returns a copy of the document stored under key.
func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadErr != nil {
		return nil, s.loadErr
	}

	doc, ok := s.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(doc), nil
}

// Save stores a copy of data under key.
func (s *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}

	s.docs[key] = slices.Clone(data)
	s.writes = append(s.writes, key)
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Put seeds a document without recording a write.
func (s *MemoryStore) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = slices.Clone(data)
}

// Get returns the raw document under key.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	return slices.Clone(doc), ok
}

// Writes returns the keys of every successful Save, in order.
func (s *MemoryStore) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.writes)
}

// FailSaves makes every subsequent Save return err. A nil err clears it.
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// FailLoads makes every subsequent Load return err. A nil err clears it.
func (s *MemoryStore) FailLoads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

var _ Store = (*MemoryStore)(nil)
