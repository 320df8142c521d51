// Package keylock provides mutual exclusion per string key. Entries are
// reference counted and dropped once no goroutine holds or waits on them,
// so the map stays proportional to the number of contended aggregates.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

// Lock blocks until key is held and returns the matching unlock func.
func (l *Locker) Lock(key string) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*entry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.entries, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len reports how many keys are currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
