package journey

import "sync"

// enrollmentLocker serializes execution per enrollment. Different
// enrollments advance concurrently; two workers touching the same
// enrollment take turns.
type enrollmentLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newEnrollmentLocker() *enrollmentLocker {
	return &enrollmentLocker{
		locks: make(map[string]*lockEntry),
	}
}

func (l *enrollmentLocker) Lock(id string) {
	l.mu.Lock()

	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{}
		l.locks[id] = entry
	}

	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *enrollmentLocker) Unlock(id string) {
	l.mu.Lock()

	entry, ok := l.locks[id]
	if ok {
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
	}

	l.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}
