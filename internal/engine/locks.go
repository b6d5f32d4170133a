package engine

import "sync"

// matchLocks serializes the capacity-sensitive section per draft-match id so
// concurrent approvals cannot both observe the same approved count and
// overfill a match. Unrelated matches proceed in parallel.
type matchLocks struct {
	mu sync.Mutex
	m  map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func newMatchLocks() *matchLocks {
	return &matchLocks{m: make(map[string]*entryLock)}
}

// Acquire locks the given match id and returns the release func. Entries are
// reference-counted and removed once unused, so the map does not grow with
// the number of matches ever seen.
func (l *matchLocks) Acquire(id string) func() {
	l.mu.Lock()
	e, ok := l.m[id]
	if !ok {
		e = &entryLock{}
		l.m[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
