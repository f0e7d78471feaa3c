package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/protocol"
	"chatcore/internal/service"
	"chatcore/pkg/logger"
)

func TestNotificationLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "a"), f.user(t, "b")
	f.outbox.connect(a.ID, "a1")
	f.outbox.connect(a.ID, "a2")
	f.outbox.connect(b.ID, "b1")
	svc := service.NewNotificationService(f.notifs, f.users, f.outbox, logger.Nop())

	n, err := svc.Create(ctx, service.NotificationCreateInput{
		UserID:  a.ID,
		Type:    domain.NotificationLike,
		Payload: json.RawMessage(`{"post_id":7,"by":"b"}`),
	})
	require.NoError(t, err)
	assert.NotZero(t, n.ID)

	for _, h := range []string{"a1", "a2"} {
		got := events[protocol.NotificationNew](f.outbox, h)
		require.Len(t, got, 1, h)
		assert.Equal(t, n.ID, got[0].Notification.ID)
	}
	assert.Empty(t, f.outbox.frames("b1"))

	_, err = svc.Create(ctx, service.NotificationCreateInput{UserID: a.ID, Type: domain.NotificationFollow})
	require.NoError(t, err)

	count, err := svc.CountUnread(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, svc.MarkRead(ctx, n.ID, a.ID))
	assert.ErrorIs(t, svc.MarkRead(ctx, n.ID, b.ID), domain.ErrNotFound)
	count, _ = svc.CountUnread(ctx, a.ID)
	assert.Equal(t, 1, count)

	list, err := svc.List(ctx, a.ID, -5, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.ErrorIs(t, svc.Delete(ctx, n.ID, b.ID), domain.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, n.ID, a.ID))
	list, _ = svc.List(ctx, a.ID, 0, 10)
	assert.Len(t, list, 1)
}

func TestNotificationValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "a")
	svc := service.NewNotificationService(f.notifs, f.users, f.outbox, logger.Nop())

	_, err := svc.Create(ctx, service.NotificationCreateInput{UserID: a.ID, Type: "message"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Create(ctx, service.NotificationCreateInput{UserID: a.ID, Type: domain.NotificationSystem, Payload: json.RawMessage(`{`)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Create(ctx, service.NotificationCreateInput{UserID: 404, Type: domain.NotificationSystem})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChatMessagesDoNotCreateNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "a"), f.user(t, "b")
	conv := f.conversation(t, domain.ConversationDirect, a.ID, b.ID)

	_, err := f.router.Send(ctx, service.Request{UserID: a.ID}, send(conv.ID, "hi"))
	require.NoError(t, err)

	count, err := f.notifs.CountUnread(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
