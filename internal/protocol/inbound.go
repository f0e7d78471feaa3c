package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"chatcore/internal/domain"
)

// Inbound is a validated client request. The concrete types below are the
// only implementations.
type Inbound interface {
	inbound()
}

// SendMessage asks the server to append a message to a conversation.
type SendMessage struct {
	ConversationID int64
	Content        domain.Content
	ReplyTo        *int64
}

// AckMessage reports that a message reached a new delivery state.
type AckMessage struct {
	MessageID int64
	Status    domain.MessageStatus
}

// Subscribe requests the gap after SinceSequence followed by live events.
type Subscribe struct {
	ConversationID int64
	SinceSequence  int64
}

type Unsubscribe struct {
	ConversationID int64
}

func (SendMessage) inbound() {}
func (AckMessage) inbound()  {}
func (Subscribe) inbound()   {}
func (Unsubscribe) inbound() {}

type sendPayload struct {
	ConversationID int64              `json:"conversationId"`
	Type           domain.ContentKind `json:"type"`
	Content        json.RawMessage    `json:"content"`
	ReplyTo        *int64             `json:"replyTo"`
}

type ackPayload struct {
	MessageID int64                `json:"messageId"`
	Status    domain.MessageStatus `json:"status"`
}

type subscribePayload struct {
	ConversationID int64 `json:"conversationId"`
	SinceSequence  int64 `json:"sinceSequence"`
}

type unsubscribePayload struct {
	ConversationID int64 `json:"conversationId"`
}

// Decode parses one frame. The returned ref is set whenever the envelope
// itself was readable, so errors can be correlated by the client.
func Decode(raw []byte) (string, Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: malformed envelope", domain.ErrInvalidInput)
	}
	in, err := decodePayload(env.Event, env.Payload)
	return env.Ref, in, err
}

func decodePayload(event string, payload json.RawMessage) (Inbound, error) {
	switch event {
	case EventMessageSend:
		var p sendPayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.ConversationID <= 0 {
			return nil, fmt.Errorf("%w: conversationId is required", domain.ErrInvalidInput)
		}
		if p.ReplyTo != nil && *p.ReplyTo <= 0 {
			return nil, fmt.Errorf("%w: replyTo must be positive", domain.ErrInvalidInput)
		}
		content, err := decodeContent(p.Type, p.Content)
		if err != nil {
			return nil, err
		}
		return SendMessage{ConversationID: p.ConversationID, Content: content, ReplyTo: p.ReplyTo}, nil

	case EventMessageAck:
		var p ackPayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.MessageID <= 0 {
			return nil, fmt.Errorf("%w: messageId is required", domain.ErrInvalidInput)
		}
		if p.Status != domain.StatusDelivered && p.Status != domain.StatusRead {
			return nil, fmt.Errorf("%w: ack status must be delivered or read", domain.ErrInvalidInput)
		}
		return AckMessage{MessageID: p.MessageID, Status: p.Status}, nil

	case EventConversationSubscribe:
		var p subscribePayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.ConversationID <= 0 {
			return nil, fmt.Errorf("%w: conversationId is required", domain.ErrInvalidInput)
		}
		if p.SinceSequence < 0 {
			return nil, fmt.Errorf("%w: sinceSequence cannot be negative", domain.ErrInvalidInput)
		}
		return Subscribe{ConversationID: p.ConversationID, SinceSequence: p.SinceSequence}, nil

	case EventConversationUnsubscribe:
		var p unsubscribePayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.ConversationID <= 0 {
			return nil, fmt.Errorf("%w: conversationId is required", domain.ErrInvalidInput)
		}
		return Unsubscribe{ConversationID: p.ConversationID}, nil

	case "":
		return nil, fmt.Errorf("%w: event is required", domain.ErrInvalidInput)
	}
	return nil, fmt.Errorf("%w: unknown event %q", domain.ErrInvalidInput, event)
}

func strictUnmarshal(payload json.RawMessage, v any) error {
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return fmt.Errorf("%w: payload is required", domain.ErrInvalidInput)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// decodeContent accepts a bare string (the text body, or the url of a media
// message) or an object with the media fields.
func decodeContent(kind domain.ContentKind, raw json.RawMessage) (domain.Content, error) {
	c := domain.Content{Kind: kind}
	if len(raw) == 0 {
		return c, fmt.Errorf("%w: content is required", domain.ErrInvalidInput)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return c, fmt.Errorf("%w: content", domain.ErrInvalidInput)
		}
		if kind == domain.ContentText {
			c.Text = s
		} else {
			c.URL = s
		}
	} else {
		var v ContentView
		if err := strictUnmarshal(raw, &v); err != nil {
			return c, err
		}
		c.Text, c.URL, c.MimeType, c.FileName, c.Size = v.Text, v.URL, v.MimeType, v.FileName, v.Size
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}
