package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"chatcore/internal/domain"
	"chatcore/internal/service"
	"chatcore/pkg/logger"
)

// DefaultNotificationSubject carries like/comment/follow/friend_request/system
// events from the social backend.
const DefaultNotificationSubject = "social.notifications"

// NotificationSink stores and delivers a notification.
type NotificationSink interface {
	Create(ctx context.Context, in service.NotificationCreateInput) (*domain.Notification, error)
}

// NotificationConsumer turns bus messages into notifications.
type NotificationConsumer struct {
	sink    NotificationSink
	log     *logger.Logger
	timeout time.Duration
}

func NewNotificationConsumer(sink NotificationSink, log *logger.Logger) *NotificationConsumer {
	return &NotificationConsumer{sink: sink, log: log, timeout: 5 * time.Second}
}

// Subscribe joins queue group queue on subject, so each event is handled by
// exactly one instance.
func (nc *NotificationConsumer) Subscribe(c *Client, subject, queue string) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultNotificationSubject
	}
	sub, err := c.conn.QueueSubscribe(subject, queue, func(m *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), nc.timeout)
		defer cancel()
		_ = nc.Handle(ctx, m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Handle processes one raw event. Malformed events are logged and dropped.
func (nc *NotificationConsumer) Handle(ctx context.Context, data []byte) error {
	var in service.NotificationCreateInput
	if err := json.Unmarshal(data, &in); err != nil {
		nc.log.Warn("notifications: malformed event", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	n, err := nc.sink.Create(ctx, in)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound) {
			nc.log.Warn("notifications: rejected event",
				zap.Int64("user_id", in.UserID),
				zap.String("type", string(in.Type)),
				zap.Error(err),
			)
		} else {
			nc.log.Error("notifications: create", zap.Int64("user_id", in.UserID), zap.Error(err))
		}
		return err
	}
	nc.log.Debug("notifications: delivered", zap.Int64("id", n.ID), zap.Int64("user_id", n.UserID))
	return nil
}
