// Package preference provides PreferenceStore implementations for the spend
// confirmation opt-out.
package preference

import (
	"context"
	"sync"

	"github.com/ineyio/creditsync"
)

// MemoryStore is an in-memory PreferenceStore. It is lost on exit, which makes it
// suitable for tests and for clients without durable storage.
type MemoryStore struct {
	mu       sync.RWMutex
	suppress bool
	writes   int
}

var _ creditsync.PreferenceStore = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore with confirmations enabled.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SuppressConfirmations(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suppress, nil
}

func (s *MemoryStore) SetSuppressConfirmations(_ context.Context, suppress bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppress = suppress
	s.writes++
	return nil
}

// Writes returns how many times the flag was stored.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
