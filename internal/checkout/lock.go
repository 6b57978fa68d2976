package checkout

import "sync"

// userLocks serializes checkouts per user inside one process.
type userLocks struct {
	mu    sync.Mutex
	locks map[uint64]*userLock
}

// userLock is a reference-counted mutex for one user.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// newUserLocks constructs an empty lock table.
func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[uint64]*userLock)}
}

// lock acquires the user's mutex and returns its release func.
func (l *userLocks) lock(userID uint64) func() {
	l.mu.Lock()
	entry := l.locks[userID]
	if entry == nil {
		entry = &userLock{}
		l.locks[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
