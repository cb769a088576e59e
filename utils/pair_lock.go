package utils

import "sync"

// PairLock serializes work on an unordered pair of keys inside one process.
// Entries are reference counted and dropped once no goroutine holds or waits on them.
type PairLock struct {
	mu    sync.Mutex
	locks map[string]*pairEntry
}

type pairEntry struct {
	mu   sync.Mutex
	refs int
}

func NewPairLock() *PairLock {
	return &PairLock{locks: make(map[string]*pairEntry)}
}

// Lock blocks until the pair {a, b} is free and returns the matching unlock func.
func (l *PairLock) Lock(a, b string) func() {
	key := a + "\x00" + b
	if b < a {
		key = b + "\x00" + a
	}

	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &pairEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of pairs currently held or awaited.
func (l *PairLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
