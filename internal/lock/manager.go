// Package lock provides the advisory per-item process locks that
// serialize mutating tree operations within this process.
//
// These are cooperative try-locks, not blocking mutexes: a caller that
// loses the race gets false back immediately and is expected to abort
// with a lock error rather than wait. Mutating operations acquire locks
// narrowly and release them before recursing, so concurrent work on
// disjoint subtrees proceeds unimpeded.
package lock

import "sync"

// Manager hands out advisory locks keyed by item ID.
//
// A disabled Manager (see NewDisabled) grants every request; the site
// settings expose this as the process-lock toggle.
type Manager struct {
	mu       sync.Mutex
	held     map[string]struct{}
	disabled bool
}

// NewManager creates an enabled lock manager.
func NewManager() *Manager {
	return &Manager{held: make(map[string]struct{})}
}

// NewDisabled creates a manager that grants every acquisition. Used when
// process locks are switched off in the site settings.
func NewDisabled() *Manager {
	return &Manager{held: make(map[string]struct{}), disabled: true}
}

// TryLock attempts to acquire the lock for id. It never blocks; false
// means another operation holds the lock.
func (m *Manager) TryLock(id string) bool {
	if m.disabled {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[id]; ok {
		return false
	}
	m.held[id] = struct{}{}
	return true
}

// Unlock releases the lock for id. Releasing an unheld lock is a no-op;
// the delete protocol unlocks on several exit paths and must not panic
// on the overlap.
func (m *Manager) Unlock(id string) {
	if m.disabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, id)
}

// Held reports whether id is currently locked. Intended for tests.
func (m *Manager) Held(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[id]
	return ok
}
