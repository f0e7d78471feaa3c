// Package presence tracks which users have live connections on this process.
//
// State is in memory and process local. Users are spread over shards, each
// with its own mutex, so connect and disconnect handlers for different users
// rarely contend. Changes are queued under the shard lock and handed to
// observers by a single dispatcher goroutine, which keeps every user's
// offline/online sequence in order without observers running under a lock.
package presence

import (
	"sync"
	"time"

	"chatcore/pkg/metrics"
)

const shardCount = 32

// Change is emitted on every offline→online and online→offline transition.
type Change struct {
	UserID      int64
	Online      bool
	LastSeenAt  time.Time
	Connections int
}

// Snapshot is the current presence of a user.
type Snapshot struct {
	Online      bool      `json:"online"`
	Connections int       `json:"connections"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

type record struct {
	handles  map[string]struct{}
	lastSeen time.Time
}

type shard struct {
	mu    sync.Mutex
	users map[int64]*record
}

type Tracker struct {
	shards [shardCount]shard
	now    func() time.Time

	obsMu     sync.RWMutex
	observers []func(Change)

	qMu     sync.Mutex
	queue   []Change
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	closed  sync.Once
}

// NewTracker starts the change dispatcher. Close stops it.
func NewTracker() *Tracker {
	t := &Tracker{
		now:     time.Now,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for i := range t.shards {
		t.shards[i].users = make(map[int64]*record)
	}
	go t.dispatch()
	return t
}

// OnChange registers an observer. Observers run on the dispatcher goroutine
// and must not block for long.
func (t *Tracker) OnChange(fn func(Change)) {
	t.obsMu.Lock()
	t.observers = append(t.observers, fn)
	t.obsMu.Unlock()
}

func (t *Tracker) shardFor(userID int64) *shard {
	idx := userID % shardCount
	if idx < 0 {
		idx = -idx
	}
	return &t.shards[idx]
}

// RegisterConnection adds handle to the user's active set. It reports whether
// this registration brought the user online.
func (t *Tracker) RegisterConnection(userID int64, handle string) bool {
	s := t.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.users[userID]
	if rec == nil {
		rec = &record{handles: make(map[string]struct{})}
		s.users[userID] = rec
	}
	if _, ok := rec.handles[handle]; ok {
		return false
	}
	rec.handles[handle] = struct{}{}
	if len(rec.handles) != 1 {
		return false
	}
	metrics.UsersOnline.Inc()
	t.enqueue(Change{UserID: userID, Online: true, LastSeenAt: rec.lastSeen, Connections: 1})
	return true
}

// DeregisterConnection removes handle. When the set becomes empty the user
// goes offline and last-seen is stamped; it reports whether that happened.
func (t *Tracker) DeregisterConnection(userID int64, handle string) bool {
	s := t.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.users[userID]
	if rec == nil {
		return false
	}
	if _, ok := rec.handles[handle]; !ok {
		return false
	}
	delete(rec.handles, handle)
	if len(rec.handles) > 0 {
		return false
	}
	rec.lastSeen = t.now().UTC()
	metrics.UsersOnline.Dec()
	t.enqueue(Change{UserID: userID, Online: false, LastSeenAt: rec.lastSeen})
	return true
}

// IsOnline reports whether the user has at least one live connection.
func (t *Tracker) IsOnline(userID int64) bool {
	return t.Snapshot(userID).Online
}

func (t *Tracker) Snapshot(userID int64) Snapshot {
	s := t.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.users[userID]
	if rec == nil {
		return Snapshot{}
	}
	return Snapshot{
		Online:      len(rec.handles) > 0,
		Connections: len(rec.handles),
		LastSeenAt:  rec.lastSeen,
	}
}

// OnlineUsers lists every user with a live connection.
func (t *Tracker) OnlineUsers() []int64 {
	var ids []int64
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for id, rec := range s.users {
			if len(rec.handles) > 0 {
				ids = append(ids, id)
			}
		}
		s.mu.Unlock()
	}
	return ids
}

// Close delivers the changes already queued, then stops the dispatcher and
// waits for it. Changes after Close are not delivered. It must not be called
// from an observer.
func (t *Tracker) Close() {
	t.closed.Do(func() { close(t.done) })
	<-t.stopped
}

func (t *Tracker) enqueue(c Change) {
	t.qMu.Lock()
	t.queue = append(t.queue, c)
	t.qMu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Tracker) dispatch() {
	defer close(t.stopped)
	for {
		select {
		case <-t.done:
			t.flush()
			return
		case <-t.wake:
			t.flush()
		}
	}
}

func (t *Tracker) flush() {
	for {
		t.qMu.Lock()
		batch := t.queue
		t.queue = nil
		t.qMu.Unlock()
		if len(batch) == 0 {
			return
		}
		t.obsMu.RLock()
		observers := t.observers
		t.obsMu.RUnlock()
		for _, c := range batch {
			for _, fn := range observers {
				fn(c)
			}
		}
	}
}
