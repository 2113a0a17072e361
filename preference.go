package creditsync

import (
	"context"
	"sync"
)

// PreferenceStore persists the user's "don't show spend confirmations again" choice
// in client-local durable storage.
type PreferenceStore interface {
	// SuppressConfirmations returns the stored flag. An unset flag reads as false.
	SuppressConfirmations(ctx context.Context) (bool, error)

	// SetSuppressConfirmations stores the flag.
	SetSuppressConfirmations(ctx context.Context, suppress bool) error
}

// memoryPreferences is the default PreferenceStore; it forgets everything on exit.
type memoryPreferences struct {
	mu       sync.RWMutex
	suppress bool
}

func (p *memoryPreferences) SuppressConfirmations(context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.suppress, nil
}

func (p *memoryPreferences) SetSuppressConfirmations(_ context.Context, suppress bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suppress = suppress
	return nil
}
