package core

import (
	"fmt"
	"sync"
)

// AffineMutex is a mutex that remembers the scheduler it was acquired on.
//
// Holding a lock across Await is unsafe: the body may resume on another
// context, so the unlock happens somewhere the lock was never taken.
// AffineMutex makes that visible: Unlock reports ErrAffinityViolation when
// the current scheduler differs from the one Lock saw. The lock is released
// either way.
type AffineMutex struct {
	mu    sync.Mutex
	owner Scheduler
}

// Lock acquires the mutex on the body's current scheduler.
func (m *AffineMutex) Lock(co *Co) {
	m.mu.Lock()
	m.owner = co.Scheduler()
}

// Unlock releases the mutex, reporting a migration since Lock.
func (m *AffineMutex) Unlock(co *Co) error {
	owner, current := m.owner, co.Scheduler()
	m.owner = nil
	m.mu.Unlock()
	if owner != current {
		return fmt.Errorf("%w: locked on %s, unlocked on %s", ErrAffinityViolation, describe(owner), describe(current))
	}
	return nil
}
