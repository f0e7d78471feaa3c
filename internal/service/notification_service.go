package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"chatcore/internal/domain"
	"chatcore/internal/protocol"
	"chatcore/internal/store"
	"chatcore/pkg/logger"
	"chatcore/pkg/metrics"
)

// NotificationService stores asynchronous social events and pushes them to
// the target user's live connections. Chat messages never pass through here.
type NotificationService struct {
	notifications domain.NotificationRepository
	users         domain.UserRepository
	outbox        Outbox
	log           *logger.Logger
}

func NewNotificationService(
	notifications domain.NotificationRepository,
	users domain.UserRepository,
	outbox Outbox,
	log *logger.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		users:         users,
		outbox:        outbox,
		log:           log,
	}
}

type NotificationCreateInput struct {
	UserID  int64                   `json:"user_id"`
	Type    domain.NotificationType `json:"type"`
	Payload json.RawMessage         `json:"payload"`
}

func (s *NotificationService) Create(ctx context.Context, in NotificationCreateInput) (*domain.Notification, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown notification type %q", domain.ErrInvalidInput, in.Type)
	}
	if len(in.Payload) > 0 && !json.Valid(in.Payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", domain.ErrInvalidInput)
	}
	if _, err := s.users.GetByID(ctx, in.UserID); err != nil {
		return nil, fmt.Errorf("notification target: %w", err)
	}

	n := &domain.Notification{UserID: in.UserID, Type: in.Type, Payload: in.Payload}
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()

	ev := protocol.NotificationNew{Notification: n}
	for _, h := range s.outbox.Handles(n.UserID) {
		err := s.outbox.Send(h, "", ev)
		metrics.RecordPush(ev.EventName(), err)
		if err != nil {
			s.log.Debug("push notification", zap.String("conn", h), zap.Error(err))
		}
	}
	return n, nil
}

func (s *NotificationService) List(ctx context.Context, userID int64, offset, limit int) ([]*domain.Notification, error) {
	offset, limit = store.ClampPage(offset, limit)
	return s.notifications.ListForUser(ctx, userID, offset, limit)
}

func (s *NotificationService) CountUnread(ctx context.Context, userID int64) (int, error) {
	return s.notifications.CountUnread(ctx, userID)
}

// MarkRead and Delete only touch notifications owned by userID; anything
// else reports domain.ErrNotFound.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID int64) error {
	return s.notifications.MarkRead(ctx, id, userID)
}

func (s *NotificationService) Delete(ctx context.Context, id, userID int64) error {
	return s.notifications.Delete(ctx, id, userID)
}
