// Package ws carries the realtime channel: the registry of live connections,
// the per-connection pumps and the session protocol spoken over them.
package ws

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"chatcore/internal/domain"
	"chatcore/internal/presence"
	"chatcore/internal/protocol"
	"chatcore/pkg/logger"
	"chatcore/pkg/metrics"
)

// Registry owns every live connection of the process. Connections are
// indexed by handle, with a secondary index by user.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	byUser  map[int64]map[string]*Client

	tracker *presence.Tracker
	log     *logger.Logger
}

func NewRegistry(tracker *presence.Tracker, log *logger.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		byUser:  make(map[int64]map[string]*Client),
		tracker: tracker,
		log:     log,
	}
}

// Register adds an authenticated client and marks its user online.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	r.clients[c.Handle] = c
	if r.byUser[c.UserID] == nil {
		r.byUser[c.UserID] = make(map[string]*Client)
	}
	r.byUser[c.UserID][c.Handle] = c
	r.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	r.tracker.RegisterConnection(c.UserID, c.Handle)
}

// Deregister closes and forgets the client. Unknown handles are ignored.
func (r *Registry) Deregister(handle string) {
	r.mu.Lock()
	c, ok := r.clients[handle]
	if ok {
		delete(r.clients, handle)
		if set := r.byUser[c.UserID]; set != nil {
			delete(set, handle)
			if len(set) == 0 {
				delete(r.byUser, c.UserID)
			}
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	c.close()
	metrics.ConnectionsActive.Dec()
	r.tracker.DeregisterConnection(c.UserID, handle)
}

func (r *Registry) client(handle string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[handle]
	return c, ok
}

// Subscribe attaches the connection to live events of a conversation.
func (r *Registry) Subscribe(handle string, conversationID int64) error {
	c, ok := r.client(handle)
	if !ok || !c.subscribe(conversationID) {
		return fmt.Errorf("subscribe %s: %w", handle, domain.ErrTransportFault)
	}
	return nil
}

func (r *Registry) Unsubscribe(handle string, conversationID int64) {
	if c, ok := r.client(handle); ok {
		c.unsubscribe(conversationID)
	}
}

// Handles lists every live connection of the user.
func (r *Registry) Handles(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	res := make([]string, 0, len(set))
	for h := range set {
		res = append(res, h)
	}
	return res
}

// SubscribedHandles lists the user's connections subscribed to the conversation.
func (r *Registry) SubscribedHandles(userID, conversationID int64) []string {
	r.mu.RLock()
	set := r.byUser[userID]
	clients := make([]*Client, 0, len(set))
	for _, c := range set {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	var res []string
	for _, c := range clients {
		if c.subscribed(conversationID) {
			res = append(res, c.Handle)
		}
	}
	return res
}

// Send encodes ev and queues it on the connection. A missing, closed or
// saturated connection is a transport fault: the connection is deregistered
// before the error is returned.
func (r *Registry) Send(handle, ref string, ev protocol.Outbound) error {
	frame, err := protocol.Encode(ref, ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	c, ok := r.client(handle)
	if !ok {
		return fmt.Errorf("send to %s: %w", handle, domain.ErrTransportFault)
	}
	if !c.enqueue(frame) {
		r.log.Warn("ws: dropping connection",
			zap.String("conn", handle),
			zap.Int64("user_id", c.UserID),
			zap.String("event", ev.EventName()),
		)
		r.Deregister(handle)
		return fmt.Errorf("send to %s: %w", handle, domain.ErrTransportFault)
	}
	return nil
}

// Len is the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close deregisters every connection.
func (r *Registry) Close() {
	r.mu.RLock()
	handles := make([]string, 0, len(r.clients))
	for h := range r.clients {
		handles = append(handles, h)
	}
	r.mu.RUnlock()
	for _, h := range handles {
		r.Deregister(h)
	}
}
