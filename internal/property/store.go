package property

import "sync"

// MemoryStore is an in-memory Store. Host layers write into it (for example
// from MQTT context feeds) and resolvers read from it.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[Scope]map[string]any
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Scope]map[string]any)}
}

// Get returns the value stored under key in scope.
func (s *MemoryStore) Get(scope Scope, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[scope][key]
	return v, ok
}

// Set stores value under key in scope.
func (s *MemoryStore) Set(scope Scope, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.values[scope]
	if !ok {
		m = make(map[string]any)
		s.values[scope] = m
	}
	m[key] = value
}

// Delete removes key from scope.
func (s *MemoryStore) Delete(scope Scope, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values[scope], key)
}

// Snapshot returns a copy of every value in scope.
func (s *MemoryStore) Snapshot(scope Scope) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values[scope]))
	for k, v := range s.values[scope] {
		out[k] = v
	}
	return out
}
