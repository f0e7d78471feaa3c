package ws

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"chatcore/internal/domain"
	"chatcore/internal/protocol"
	"chatcore/internal/service"
	"chatcore/pkg/logger"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateSubscribed
	StateLive
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateLive:
		return "live"
	}
	return "unknown"
}

// Router is the part of service.DeliveryRouter a session drives.
type Router interface {
	Send(ctx context.Context, req service.Request, in protocol.SendMessage) (*domain.Message, error)
	Ack(ctx context.Context, req service.Request, in protocol.AckMessage) (*domain.Message, error)
	Subscribe(ctx context.Context, req service.Request, in protocol.Subscribe) (int, error)
	Unsubscribe(req service.Request, in protocol.Unsubscribe)
}

// Session runs the requests of one connection, one at a time and in arrival
// order. A failed request produces an error event and leaves the connection
// open; only a transport fault ends it.
type Session struct {
	client   *Client
	registry *Registry
	router   Router
	log      *logger.Logger
	state    atomic.Int32
}

func NewSession(client *Client, registry *Registry, router Router, log *logger.Logger) *Session {
	return &Session{client: client, registry: registry, router: router, log: log}
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	if old := State(s.state.Swap(int32(st))); old != st {
		s.log.Debug("ws: session state", zap.Stringer("from", old), zap.Stringer("to", st))
	}
}

// Start registers the client with the registry.
func (s *Session) Start() {
	s.registry.Register(s.client)
	s.setState(StateAuthenticated)
}

// Handle processes one inbound frame.
func (s *Session) Handle(ctx context.Context, data []byte) {
	ref, in, err := protocol.Decode(data)
	if err != nil {
		s.reply(ref, err)
		return
	}
	req := service.Request{UserID: s.client.UserID, Handle: s.client.Handle, Ref: ref}

	switch in := in.(type) {
	case protocol.SendMessage:
		_, err = s.router.Send(ctx, req, in)
	case protocol.AckMessage:
		_, err = s.router.Ack(ctx, req, in)
	case protocol.Subscribe:
		s.setState(StateSubscribed)
		var n int
		n, err = s.router.Subscribe(ctx, req, in)
		if err == nil {
			s.log.Debug("ws: subscribed",
				zap.Int64("conversation_id", in.ConversationID),
				zap.Int64("since", in.SinceSequence),
				zap.Int("backfill", n),
			)
		}
		s.settle()
	case protocol.Unsubscribe:
		s.router.Unsubscribe(req, in)
		s.settle()
	}
	if err != nil {
		s.reply(ref, err)
	}
}

// settle moves the session to live once every requested subscription has
// been served, or back to authenticated when none remain.
func (s *Session) settle() {
	if len(s.client.Subscriptions()) == 0 {
		s.setState(StateAuthenticated)
		return
	}
	s.setState(StateLive)
}

func (s *Session) reply(ref string, err error) {
	if errors.Is(err, domain.ErrTransportFault) {
		return
	}
	ev := protocol.NewError(ref, err)
	if ev.Code == protocol.CodeInternal {
		s.log.Error("ws: request failed", zap.String("ref", ref), zap.Error(err))
	} else {
		s.log.Debug("ws: request rejected", zap.String("ref", ref), zap.String("code", ev.Code), zap.Error(err))
	}
	_ = s.registry.Send(s.client.Handle, ref, ev)
}
