package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/presence"
	"chatcore/internal/service"
	"chatcore/pkg/logger"
)

type recorded struct {
	subject string
	data    []byte
}

type fakeConn struct {
	published []recorded
	err       error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, recorded{subject, data})
	return nil
}

func TestPublishMessageOmitsContent(t *testing.T) {
	fc := &fakeConn{}
	p := &Publisher{nc: fc}
	msg := &domain.Message{
		ID: 5, ConversationID: 42, SenderID: 1, Seq: 9,
		Content:   domain.Content{Kind: domain.ContentText, Text: "top secret"},
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, p.PublishMessage(context.Background(), msg))
	require.Len(t, fc.published, 1)
	assert.Equal(t, "chat.message.42", fc.published[0].subject)
	assert.NotContains(t, string(fc.published[0].data), "top secret")
	assert.JSONEq(t, `{"id":5,"conversation_id":42,"sender_id":1,"seq":9,"kind":"text","created_at":"2024-03-01T00:00:00Z"}`, string(fc.published[0].data))
}

func TestPublishPresence(t *testing.T) {
	fc := &fakeConn{}
	p := &Publisher{nc: fc}
	seen := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.PublishPresence(context.Background(), presence.Change{UserID: 7, Online: true, LastSeenAt: seen}))
	require.NoError(t, p.PublishPresence(context.Background(), presence.Change{UserID: 7, Online: false, LastSeenAt: seen}))

	require.Len(t, fc.published, 2)
	assert.Equal(t, "chat.presence.7", fc.published[0].subject)
	assert.JSONEq(t, `{"user_id":7,"online":true}`, string(fc.published[0].data))
	assert.JSONEq(t, `{"user_id":7,"online":false,"last_seen_at":"2024-03-01T00:00:00Z"}`, string(fc.published[1].data))

	fc.err = errors.New("nats: connection closed")
	assert.Error(t, p.PublishPresence(context.Background(), presence.Change{UserID: 7}))
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Create(ctx context.Context, in service.NotificationCreateInput) (*domain.Notification, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

func TestConsumerHandle(t *testing.T) {
	sink := new(MockSink)
	c := NewNotificationConsumer(sink, logger.Nop())
	ctx := context.Background()

	want := service.NotificationCreateInput{
		UserID:  3,
		Type:    domain.NotificationComment,
		Payload: json.RawMessage(`{"post_id":1}`),
	}
	sink.On("Create", mock.Anything, want).Return(&domain.Notification{ID: 1, UserID: 3}, nil).Once()
	assert.NoError(t, c.Handle(ctx, []byte(`{"user_id":3,"type":"comment","payload":{"post_id":1}}`)))

	assert.ErrorIs(t, c.Handle(ctx, []byte(`not json`)), domain.ErrInvalidInput)

	sink.On("Create", mock.Anything, mock.MatchedBy(func(in service.NotificationCreateInput) bool {
		return in.UserID == 404
	})).Return(nil, domain.ErrNotFound).Once()
	assert.ErrorIs(t, c.Handle(ctx, []byte(`{"user_id":404,"type":"follow"}`)), domain.ErrNotFound)

	sink.AssertExpectations(t)
}
