package revocation

import (
	"context"
	"sync"
	"time"
)

// cleanupInterval bounds how often the in-memory list sweeps expired
// entries. Sweeps are piggybacked on Revoke calls to avoid a background
// goroutine.
const cleanupInterval = time.Minute

// Memory is an in-process revocation list. Entries expire together with
// the tokens they refer to, so the list stays proportional to the number
// of live revoked tokens.
//
// Memory is safe for concurrent use. It is suitable for single-instance
// deployments and tests; multi-instance deployments need [Redis] so all
// instances see the same list.
type Memory struct {
	mu        sync.RWMutex
	entries   map[string]time.Time // jti -> token expiry
	lastSweep time.Time
}

// NewMemory creates an empty in-memory revocation list.
func NewMemory() *Memory {
	return &Memory{
		entries:   make(map[string]time.Time),
		lastSweep: time.Now(),
	}
}

// Revoke adds jti to the list until expiresAt. Revoking an already expired
// token is a no-op.
func (m *Memory) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	now := time.Now()
	if !expiresAt.After(now) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jti] = expiresAt
	if now.Sub(m.lastSweep) >= cleanupInterval {
		m.sweepLocked(now)
	}
	return nil
}

// IsRevoked reports whether jti is on the list and its entry has not
// expired.
func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}

	m.mu.RLock()
	expiresAt, ok := m.entries[jti]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(expiresAt) {
		// Entry outlived its token; drop it lazily.
		m.mu.Lock()
		delete(m.entries, jti)
		m.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Len returns the number of entries currently on the list, including any
// expired entries not yet swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// sweepLocked removes expired entries. Caller must hold the write lock.
func (m *Memory) sweepLocked(now time.Time) {
	for jti, expiresAt := range m.entries {
		if now.After(expiresAt) {
			delete(m.entries, jti)
		}
	}
	m.lastSweep = now
}
