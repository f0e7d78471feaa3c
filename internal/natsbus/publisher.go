package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatcore/internal/domain"
	"chatcore/internal/presence"
	"chatcore/internal/service"
)

// Subjects published by the core.
const (
	MessageSubjectPrefix  = "chat.message."
	PresenceSubjectPrefix = "chat.presence."
)

type rawPublisher interface {
	Publish(subject string, data []byte) error
}

// Publisher mirrors chat and presence events. Message content never leaves
// the process; consumers get metadata only.
type Publisher struct {
	nc rawPublisher
}

var _ service.EventPublisher = (*Publisher)(nil)

func NewPublisher(c *Client) *Publisher {
	return &Publisher{nc: c.conn}
}

type messageEvent struct {
	ID             int64              `json:"id"`
	ConversationID int64              `json:"conversation_id"`
	SenderID       int64              `json:"sender_id"`
	Seq            int64              `json:"seq"`
	Kind           domain.ContentKind `json:"kind"`
	CreatedAt      time.Time          `json:"created_at"`
}

type presenceEvent struct {
	UserID     int64      `json:"user_id"`
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

func (p *Publisher) PublishMessage(_ context.Context, m *domain.Message) error {
	return p.publish(fmt.Sprintf("%s%d", MessageSubjectPrefix, m.ConversationID), messageEvent{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Seq:            m.Seq,
		Kind:           m.Content.Kind,
		CreatedAt:      m.CreatedAt,
	})
}

func (p *Publisher) PublishPresence(_ context.Context, c presence.Change) error {
	ev := presenceEvent{UserID: c.UserID, Online: c.Online}
	if !c.Online && !c.LastSeenAt.IsZero() {
		at := c.LastSeenAt
		ev.LastSeenAt = &at
	}
	return p.publish(fmt.Sprintf("%s%d", PresenceSubjectPrefix, c.UserID), ev)
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
