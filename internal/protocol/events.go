// Package protocol defines the realtime wire format: a JSON envelope carrying
// one of a closed set of inbound and outbound events.
package protocol

import (
	"encoding/json"
	"time"

	"chatcore/internal/domain"
)

// Event names.
const (
	EventMessageSend             = "message.send"
	EventMessageAck              = "message.ack"
	EventConversationSubscribe   = "conversation.subscribe"
	EventConversationUnsubscribe = "conversation.unsubscribe"

	EventMessageNew           = "message.new"
	EventMessageStatus        = "message.status"
	EventPresenceChanged      = "presence.changed"
	EventConversationBackfill = "conversation.backfill"
	EventNotificationNew      = "notification.new"
	EventError                = "error"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is an event the server pushes to a client.
type Outbound interface {
	EventName() string
}

// ContentView is the wire form of a message payload.
type ContentView struct {
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// MessageView is the wire form of a stored message.
type MessageView struct {
	ID             int64                `json:"id"`
	ConversationID int64                `json:"conversationId"`
	SenderID       int64                `json:"senderId"`
	Seq            int64                `json:"seq"`
	Type           domain.ContentKind   `json:"type"`
	Content        ContentView          `json:"content"`
	ReplyTo        *int64               `json:"replyTo,omitempty"`
	Status         domain.MessageStatus `json:"status"`
	CreatedAt      time.Time            `json:"createdAt"`
	DeliveredAt    *time.Time           `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time           `json:"readAt,omitempty"`
}

func NewMessageView(m *domain.Message) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Seq:            m.Seq,
		Type:           m.Content.Kind,
		Content: ContentView{
			Text:     m.Content.Text,
			URL:      m.Content.URL,
			MimeType: m.Content.MimeType,
			FileName: m.Content.FileName,
			Size:     m.Content.Size,
		},
		ReplyTo:     m.ReplyToID,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt,
		DeliveredAt: m.DeliveredAt,
		ReadAt:      m.ReadAt,
	}
}

type MessageNew struct {
	Message MessageView `json:"message"`
}

func (MessageNew) EventName() string { return EventMessageNew }

type MessageStatusChanged struct {
	MessageID      int64                `json:"messageId"`
	ConversationID int64                `json:"conversationId"`
	Status         domain.MessageStatus `json:"status"`
	ActorID        int64                `json:"actorId"`
}

func (MessageStatusChanged) EventName() string { return EventMessageStatus }

type PresenceChanged struct {
	UserID     int64      `json:"userId"`
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}

func (PresenceChanged) EventName() string { return EventPresenceChanged }

type ConversationBackfill struct {
	ConversationID int64         `json:"conversationId"`
	SinceSequence  int64         `json:"sinceSequence"`
	Messages       []MessageView `json:"messages"`
}

func (ConversationBackfill) EventName() string { return EventConversationBackfill }

// NewBackfill converts a page of stored messages. Messages is never null on
// the wire.
func NewBackfill(conversationID, since int64, msgs []*domain.Message) ConversationBackfill {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, NewMessageView(m))
	}
	return ConversationBackfill{ConversationID: conversationID, SinceSequence: since, Messages: views}
}

type NotificationNew struct {
	Notification *domain.Notification `json:"notification"`
}

func (NotificationNew) EventName() string { return EventNotificationNew }

// Encode renders an outbound event as an envelope.
func Encode(ref string, ev Outbound) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: ev.EventName(), Ref: ref, Payload: payload})
}
