// ABOUTME: In-memory SessionStore for tests and single-process deployments
// ABOUTME: Keeps encoded sessions in a map guarded by a mutex, with the same versioning as durable backends

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory SessionStore implementation. Updates hold
// writeMu for the whole read-modify-write, so they never conflict.
type MemoryStore struct {
	writeMu  sync.Mutex
	mu       sync.RWMutex
	sessions map[string][]byte // keyed by session ID, JSON encoded
	versions map[string]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

// Get retrieves a session by ID.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	return m.load(ctx, id)
}

// Update applies fn with all writers serialized.
func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return updateVersioned(ctx, m, id, fn)
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) load(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	data, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	// Decode a fresh copy so callers never share memory with the map
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &s, nil
}

func (m *MemoryStore) save(_ context.Context, s *Session, prev int64) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.versions[s.ID] != prev {
		return ErrConflict
	}
	m.sessions[s.ID] = data
	m.versions[s.ID] = s.Version
	return nil
}
