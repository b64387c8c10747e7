package service

import (
	"sync"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
)

// entityLocks serialises work per entity. Entries are reference counted and
// dropped once no goroutine holds or waits on them, so distinct entities never
// contend and the map does not grow with history.
type entityLocks struct {
	mu    sync.Mutex
	locks map[models.EntityRef]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[models.EntityRef]*entityLock)}
}

// Lock blocks until the caller owns ref and returns the matching unlock func.
func (l *entityLocks) Lock(ref models.EntityRef) func() {
	l.mu.Lock()
	lock, ok := l.locks[ref]
	if !ok {
		lock = &entityLock{}
		l.locks[ref] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, ref)
		}
		l.mu.Unlock()
	}
}

func (l *entityLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
