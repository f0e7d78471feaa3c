package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chatcore/internal/domain"
	"chatcore/internal/presence"
	"chatcore/internal/protocol"
	"chatcore/pkg/logger"
	"chatcore/pkg/metrics"
)

// DefaultBackfillPage is the store page size used while assembling a backfill batch.
const DefaultBackfillPage = 200

// Outbox is the connection registry as the router sees it.
type Outbox interface {
	// SubscribedHandles lists the user's connections subscribed to the conversation.
	SubscribedHandles(userID, conversationID int64) []string
	// Handles lists every connection of the user.
	Handles(userID int64) []string
	// Send enqueues ev without blocking. A dead or saturated connection
	// yields domain.ErrTransportFault and is torn down by the registry.
	Send(handle string, ref string, ev protocol.Outbound) error
	Subscribe(handle string, conversationID int64) error
	Unsubscribe(handle string, conversationID int64)
}

// EventPublisher mirrors core events to other processes.
type EventPublisher interface {
	PublishMessage(ctx context.Context, msg *domain.Message) error
	PublishPresence(ctx context.Context, c presence.Change) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishMessage(context.Context, *domain.Message) error  { return nil }
func (NopPublisher) PublishPresence(context.Context, presence.Change) error { return nil }

// DeliveryRouter turns client requests into store mutations and fans the
// results out to connected members. All work for one conversation runs on
// that conversation's lane, so pushes leave in sequence order.
type DeliveryRouter struct {
	conversations domain.ConversationRepository
	members       domain.MemberRepository
	messages      domain.MessageStore
	outbox        Outbox
	events        EventPublisher
	log           *logger.Logger
	lanes         *lanes

	BackfillPage int
	now          func() time.Time
}

func NewDeliveryRouter(
	conversations domain.ConversationRepository,
	members domain.MemberRepository,
	messages domain.MessageStore,
	outbox Outbox,
	events EventPublisher,
	log *logger.Logger,
	backfillPage int,
) *DeliveryRouter {
	if events == nil {
		events = NopPublisher{}
	}
	if backfillPage <= 0 {
		backfillPage = DefaultBackfillPage
	}
	return &DeliveryRouter{
		conversations: conversations,
		members:       members,
		messages:      messages,
		outbox:        outbox,
		events:        events,
		log:           log,
		lanes:         newLanes(),
		BackfillPage:  backfillPage,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Request identifies the connection and user a request came from.
type Request struct {
	UserID int64
	Handle string
	Ref    string
}

// Send appends a message and delivers it. Nothing is pushed unless the
// append succeeded.
func (r *DeliveryRouter) Send(ctx context.Context, req Request, in protocol.SendMessage) (*domain.Message, error) {
	release := r.lanes.acquire(in.ConversationID)
	defer release()

	if _, err := r.conversations.GetByID(ctx, in.ConversationID); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	members, err := r.members.ListMembers(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if !containsMember(members, req.UserID) {
		return nil, fmt.Errorf("send to conversation %d: %w", in.ConversationID, domain.ErrForbidden)
	}

	msg, err := r.messages.Append(ctx, in.ConversationID, req.UserID, in.Content, in.ReplyTo)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	metrics.MessagesAppended.WithLabelValues(string(msg.Content.Kind)).Inc()

	// The message is durable; finish fan-out even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	log := r.log.With(zap.Int64("conversation_id", msg.ConversationID), zap.Int64("seq", msg.Seq))

	if err := r.members.AdvanceLastRead(ctx, msg.ConversationID, req.UserID, msg.Seq, msg.CreatedAt); err != nil {
		log.Warn("advance sender cursor", zap.Int64("user_id", req.UserID), zap.Error(err))
	}

	ev := protocol.MessageNew{Message: protocol.NewMessageView(msg)}
	for _, m := range members {
		delivered := 0
		for _, h := range r.outbox.SubscribedHandles(m.UserID, msg.ConversationID) {
			ref := ""
			if h == req.Handle {
				ref = req.Ref
			}
			if r.push(h, ref, ev) {
				delivered++
			}
		}
		if m.UserID == req.UserID || delivered > 0 {
			continue
		}
		if err := r.members.IncrementUnread(ctx, msg.ConversationID, m.UserID); err != nil {
			log.Error("increment unread", zap.Int64("user_id", m.UserID), zap.Error(err))
			continue
		}
		metrics.UnreadIncrements.Inc()
	}

	if err := r.conversations.SetLastMessage(ctx, msg.ConversationID, msg.ID, msg.CreatedAt); err != nil {
		log.Warn("set last message", zap.Error(err))
	}
	if err := r.events.PublishMessage(ctx, msg); err != nil {
		log.Warn("publish message", zap.Error(err))
	}
	return msg, nil
}

// Ack moves a message forward to delivered or read on behalf of a member.
// A read ack also clears the member's unread counter for the conversation.
func (r *DeliveryRouter) Ack(ctx context.Context, req Request, in protocol.AckMessage) (*domain.Message, error) {
	current, err := r.messages.GetByID(ctx, in.MessageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	// Receipts come from recipients only.
	if current.SenderID == req.UserID {
		metrics.StatusTransitions.WithLabelValues(in.Status.String(), "rejected").Inc()
		return nil, fmt.Errorf("ack own message %d: %w", in.MessageID, domain.ErrForbidden)
	}

	release := r.lanes.acquire(current.ConversationID)
	defer release()

	msg, changed, err := r.messages.UpdateStatus(ctx, in.MessageID, in.Status, req.UserID)
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		metrics.StatusTransitions.WithLabelValues(in.Status.String(), "rejected").Inc()
		r.log.Info("status regression ignored",
			zap.Int64("message_id", in.MessageID),
			zap.Int64("user_id", req.UserID),
			zap.Stringer("requested", in.Status),
		)
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("update status: %w", err)
	}

	if in.Status == domain.StatusRead {
		if err := r.members.MarkRead(ctx, msg.ConversationID, req.UserID, msg.Seq, r.now()); err != nil {
			r.log.Error("mark read",
				zap.Int64("conversation_id", msg.ConversationID),
				zap.Int64("user_id", req.UserID),
				zap.Error(err),
			)
		}
	}

	if !changed {
		metrics.StatusTransitions.WithLabelValues(in.Status.String(), "noop").Inc()
		return msg, nil
	}
	metrics.StatusTransitions.WithLabelValues(in.Status.String(), "applied").Inc()

	ev := protocol.MessageStatusChanged{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Status:         msg.Status,
		ActorID:        req.UserID,
	}
	for _, h := range r.outbox.SubscribedHandles(msg.SenderID, msg.ConversationID) {
		r.push(h, "", ev)
	}
	return msg, nil
}

// MarkConversationRead clears the user's unread counter up to the current
// end of the conversation.
func (r *DeliveryRouter) MarkConversationRead(ctx context.Context, userID, conversationID int64) error {
	release := r.lanes.acquire(conversationID)
	defer release()

	conv, err := r.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if err := r.members.MarkRead(ctx, conversationID, userID, conv.LastSeq, r.now()); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// Subscribe replays everything after the client's cursor as one batch and
// then attaches the connection to live delivery. Both happen on the
// conversation lane, so no live event can overtake the batch.
func (r *DeliveryRouter) Subscribe(ctx context.Context, req Request, in protocol.Subscribe) (int, error) {
	release := r.lanes.acquire(in.ConversationID)
	defer release()

	if _, err := r.conversations.GetByID(ctx, in.ConversationID); err != nil {
		return 0, fmt.Errorf("get conversation: %w", err)
	}
	ok, err := r.members.IsMember(ctx, in.ConversationID, req.UserID)
	if err != nil {
		return 0, fmt.Errorf("check member: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("subscribe to conversation %d: %w", in.ConversationID, domain.ErrForbidden)
	}

	batch, err := r.backfill(ctx, in.ConversationID, in.SinceSequence)
	if err != nil {
		return 0, err
	}
	metrics.BackfillSize.Observe(float64(len(batch)))

	ev := protocol.NewBackfill(in.ConversationID, in.SinceSequence, batch)
	if err := r.outbox.Send(req.Handle, req.Ref, ev); err != nil {
		metrics.RecordPush(ev.EventName(), err)
		return 0, err
	}
	metrics.RecordPush(ev.EventName(), nil)
	if err := r.outbox.Subscribe(req.Handle, in.ConversationID); err != nil {
		return 0, err
	}
	return len(batch), nil
}

func (r *DeliveryRouter) backfill(ctx context.Context, conversationID, since int64) ([]*domain.Message, error) {
	var batch []*domain.Message
	cursor := since
	for {
		page, err := r.messages.Backfill(ctx, conversationID, cursor, r.BackfillPage)
		if err != nil {
			return nil, fmt.Errorf("backfill: %w", err)
		}
		batch = append(batch, page...)
		if len(page) < r.BackfillPage {
			return batch, nil
		}
		cursor = page[len(page)-1].Seq
	}
}

// Unsubscribe detaches the connection from live delivery for a conversation.
func (r *DeliveryRouter) Unsubscribe(req Request, in protocol.Unsubscribe) {
	release := r.lanes.acquire(in.ConversationID)
	defer release()
	r.outbox.Unsubscribe(req.Handle, in.ConversationID)
}

// PresenceChanged tells every contact of the user about a transition. It is
// registered as a presence.Tracker observer.
func (r *DeliveryRouter) PresenceChanged(c presence.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev := protocol.PresenceChanged{UserID: c.UserID, Online: c.Online}
	if !c.LastSeenAt.IsZero() {
		at := c.LastSeenAt
		ev.LastSeenAt = &at
	}

	contacts, err := r.members.ListContactIDs(ctx, c.UserID)
	if err != nil {
		r.log.Warn("presence: list contacts", zap.Int64("user_id", c.UserID), zap.Error(err))
	}
	for _, id := range contacts {
		for _, h := range r.outbox.Handles(id) {
			r.push(h, "", ev)
		}
	}
	if err := r.events.PublishPresence(ctx, c); err != nil {
		r.log.Warn("publish presence", zap.Int64("user_id", c.UserID), zap.Error(err))
	}
}

// push enqueues one event. A failure is a transport fault that the registry
// already handled; it is counted and logged, never retried.
func (r *DeliveryRouter) push(handle, ref string, ev protocol.Outbound) bool {
	err := r.outbox.Send(handle, ref, ev)
	metrics.RecordPush(ev.EventName(), err)
	if err != nil {
		r.log.Debug("push failed", zap.String("conn", handle), zap.String("event", ev.EventName()), zap.Error(err))
		return false
	}
	return true
}

func containsMember(members []*domain.ConversationMember, userID int64) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
