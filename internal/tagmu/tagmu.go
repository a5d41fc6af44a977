// Package tagmu provides one mutex per endpoint tag. Entries live only while
// someone holds or waits for them.
package tagmu

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

type Locks struct {
	mu sync.Mutex
	m  map[string]*entry
}

func New() *Locks {
	return &Locks{m: make(map[string]*entry)}
}

// Lock blocks until tag is free and returns its unlock func. Calling unlock
// more than once is a no-op.
func (l *Locks) Lock(tag string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.m[tag]
	if !ok {
		e = &entry{}
		l.m[tag] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			if e.refs--; e.refs == 0 {
				delete(l.m, tag)
			}
			l.mu.Unlock()
		})
	}
}

// Len reports how many tags are currently locked or awaited.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
