package agent

import (
	"sync"

	"github.com/google/uuid"
)

// sessionLocks serializes runs per session id. A second run on the same
// session blocks until the first finishes; runs on different sessions do not
// contend. Entries are reference-counted so the map does not grow without
// bound.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[uuid.UUID]*lockEntry)}
}

// acquire blocks until the session lock is held and returns the release
// function.
func (l *sessionLocks) acquire(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
