package service

import "sync"

// lanes serializes work per conversation. Entries are reference counted and
// dropped once no goroutine holds or waits on them.
type lanes struct {
	mu    sync.Mutex
	byKey map[int64]*lane
}

type lane struct {
	mu   sync.Mutex
	refs int
}

func newLanes() *lanes {
	return &lanes{byKey: make(map[int64]*lane)}
}

// acquire blocks until the lane for key is free and returns its release func.
func (l *lanes) acquire(key int64) func() {
	l.mu.Lock()
	ln, ok := l.byKey[key]
	if !ok {
		ln = &lane{}
		l.byKey[key] = ln
	}
	ln.refs++
	l.mu.Unlock()

	ln.mu.Lock()
	return func() {
		ln.mu.Unlock()
		l.mu.Lock()
		ln.refs--
		if ln.refs == 0 {
			delete(l.byKey, key)
		}
		l.mu.Unlock()
	}
}

func (l *lanes) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}
