package intake

import "sync"

// userLocks serializes event handling per user. Entries are dropped once no
// goroutine holds or waits for them.
type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{m: make(map[int64]*userLock)}
}

func (l *userLocks) lock(userID int64) (unlock func()) {
	l.mu.Lock()
	ul, ok := l.m[userID]
	if !ok {
		ul = &userLock{}
		l.m[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
