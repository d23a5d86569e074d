package service

import (
	"sync"

	"github.com/google/uuid"
)

// LockManager hands out one mutex per draft so mutations of the same draft
// run one at a time while different drafts proceed in parallel.
type LockManager struct {
	locks map[uuid.UUID]*sync.Mutex
	mu    sync.RWMutex
}

func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (lm *LockManager) get(id uuid.UUID) *sync.Mutex {
	lm.mu.RLock()
	lock, ok := lm.locks[id]
	lm.mu.RUnlock()
	if ok {
		return lock
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	// Another goroutine may have created it between the two locks.
	if lock, ok := lm.locks[id]; ok {
		return lock
	}
	lock = &sync.Mutex{}
	lm.locks[id] = lock
	return lock
}

// Lock acquires the draft's mutex and returns the matching unlock.
func (lm *LockManager) Lock(id uuid.UUID) func() {
	lock := lm.get(id)
	lock.Lock()
	return lock.Unlock
}

// WithLock runs fn while holding the draft's mutex.
func (lm *LockManager) WithLock(id uuid.UUID, fn func() error) error {
	unlock := lm.Lock(id)
	defer unlock()
	return fn()
}

// Forget drops the mutex of a deleted draft.
func (lm *LockManager) Forget(id uuid.UUID) {
	lm.mu.Lock()
	delete(lm.locks, id)
	lm.mu.Unlock()
}

// Len returns the number of tracked drafts.
func (lm *LockManager) Len() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.locks)
}
