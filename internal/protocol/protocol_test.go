package protocol_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/protocol"
)

func TestDecodeInbound(t *testing.T) {
	reply := int64(4)
	tests := []struct {
		name string
		raw  string
		ref  string
		want protocol.Inbound
	}{
		{
			name: "text message",
			raw:  `{"event":"message.send","ref":"r1","payload":{"conversationId":3,"type":"text","content":"hi"}}`,
			ref:  "r1",
			want: protocol.SendMessage{ConversationID: 3, Content: domain.Content{Kind: domain.ContentText, Text: "hi"}},
		},
		{
			name: "image by url with reply",
			raw:  `{"event":"message.send","payload":{"conversationId":3,"type":"image","content":"https://cdn/x.png","replyTo":4}}`,
			want: protocol.SendMessage{ConversationID: 3, Content: domain.Content{Kind: domain.ContentImage, URL: "https://cdn/x.png"}, ReplyTo: &reply},
		},
		{
			name: "file object",
			raw:  `{"event":"message.send","payload":{"conversationId":3,"type":"file","content":{"url":"u","fileName":"a.pdf","mimeType":"application/pdf","size":10}}}`,
			want: protocol.SendMessage{ConversationID: 3, Content: domain.Content{Kind: domain.ContentFile, URL: "u", FileName: "a.pdf", MimeType: "application/pdf", Size: 10}},
		},
		{
			name: "ack",
			raw:  `{"event":"message.ack","ref":"a","payload":{"messageId":9,"status":"read"}}`,
			ref:  "a",
			want: protocol.AckMessage{MessageID: 9, Status: domain.StatusRead},
		},
		{
			name: "subscribe",
			raw:  `{"event":"conversation.subscribe","payload":{"conversationId":1,"sinceSequence":0}}`,
			want: protocol.Subscribe{ConversationID: 1},
		},
		{
			name: "unsubscribe",
			raw:  `{"event":"conversation.unsubscribe","payload":{"conversationId":1}}`,
			want: protocol.Unsubscribe{ConversationID: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, in, err := protocol.Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.ref, ref)
			assert.Equal(t, tt.want, in)
		})
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	long := make([]byte, domain.MaxTextLength+1)
	for i := range long {
		long[i] = 'x'
	}
	cases := map[string]string{
		"not json":          `{`,
		"missing event":     `{"payload":{}}`,
		"unknown event":     `{"event":"typing","payload":{}}`,
		"missing payload":   `{"event":"message.ack"}`,
		"unknown field":     `{"event":"message.ack","payload":{"messageId":1,"status":"read","extra":1}}`,
		"wrong type":        `{"event":"message.ack","payload":{"messageId":"1","status":"read"}}`,
		"bad status":        `{"event":"message.ack","payload":{"messageId":1,"status":"seen"}}`,
		"ack sent":          `{"event":"message.ack","payload":{"messageId":1,"status":"sent"}}`,
		"no conversation":   `{"event":"message.send","payload":{"type":"text","content":"hi"}}`,
		"empty text":        `{"event":"message.send","payload":{"conversationId":1,"type":"text","content":"  "}}`,
		"unknown kind":      `{"event":"message.send","payload":{"conversationId":1,"type":"sticker","content":"x"}}`,
		"media without url": `{"event":"message.send","payload":{"conversationId":1,"type":"video","content":{"fileName":"a"}}}`,
		"text too long":     fmt.Sprintf(`{"event":"message.send","payload":{"conversationId":1,"type":"text","content":%q}}`, string(long)),
		"negative cursor":   `{"event":"conversation.subscribe","payload":{"conversationId":1,"sinceSequence":-1}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, in, err := protocol.Decode([]byte(raw))
			assert.Nil(t, in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Equal(t, protocol.CodeInvalidInput, protocol.Code(err))
		})
	}
}

func TestDecodeKeepsRefOnPayloadError(t *testing.T) {
	ref, _, err := protocol.Decode([]byte(`{"event":"message.ack","ref":"x7","payload":{"messageId":0,"status":"read"}}`))
	require.Error(t, err)
	assert.Equal(t, "x7", ref)
}

func TestEncodeOutbound(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := &domain.Message{
		ID: 11, ConversationID: 2, SenderID: 1, Seq: 5,
		Content: domain.Content{Kind: domain.ContentText, Text: "hi"},
		Status:  domain.StatusSent, CreatedAt: at,
	}

	raw, err := protocol.Encode("r1", protocol.MessageNew{Message: protocol.NewMessageView(msg)})
	require.NoError(t, err)

	var env struct {
		Event   string `json:"event"`
		Ref     string `json:"ref"`
		Payload struct {
			Message map[string]any `json:"message"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "message.new", env.Event)
	assert.Equal(t, "r1", env.Ref)
	assert.Equal(t, "sent", env.Payload.Message["status"])
	assert.Equal(t, "text", env.Payload.Message["type"])
	assert.EqualValues(t, 5, env.Payload.Message["seq"])
	assert.Equal(t, map[string]any{"text": "hi"}, env.Payload.Message["content"])
}

func TestEmptyBackfillEncodesEmptyList(t *testing.T) {
	raw, err := protocol.Encode("", protocol.NewBackfill(3, 7, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"conversation.backfill","payload":{"conversationId":3,"sinceSequence":7,"messages":[]}}`, string(raw))
}

func TestErrorMapping(t *testing.T) {
	cases := map[error]string{
		domain.ErrUnauthorized:                      protocol.CodeUnauthorized,
		fmt.Errorf("send: %w", domain.ErrForbidden): protocol.CodeForbidden,
		fmt.Errorf("get: %w", domain.ErrNotFound):   protocol.CodeNotFound,
		domain.ErrInvalidTransition:                 protocol.CodeInvalidTransition,
		domain.ErrInvalidInput:                      protocol.CodeInvalidInput,
		domain.ErrDatabaseConnection:                protocol.CodeInternal,
	}
	for err, code := range cases {
		assert.Equal(t, code, protocol.Code(err), err.Error())
	}

	ev := protocol.NewError("r", fmt.Errorf("boom: disk on fire"))
	assert.Equal(t, protocol.ErrorEvent{Code: protocol.CodeInternal, Message: "internal error", Ref: "r"}, ev)
}
