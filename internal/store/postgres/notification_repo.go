package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"chatcore/internal/domain"
	"chatcore/internal/store"
)

type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

var _ domain.NotificationRepository = (*NotificationRepo)(nil)

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	var payload *string
	if len(n.Payload) > 0 {
		p := string(n.Payload)
		payload = &p
	}
	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, type, is_read, payload, created_at)
		VALUES ($1, $2, FALSE, $3::jsonb, NOW())
		RETURNING id, created_at
	`, n.UserID, string(n.Type), payload).Scan(&n.ID, &n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.IsRead = false
	return nil
}

func (r *NotificationRepo) ListForUser(ctx context.Context, userID int64, offset, limit int) ([]*domain.Notification, error) {
	offset, limit = store.ClampPage(offset, limit)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, is_read, payload::text, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var res []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		var typ string
		var payload *string
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.IsRead, &payload, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = domain.NotificationType(typ)
		if payload != nil {
			n.Payload = []byte(*payload)
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *NotificationRepo) Delete(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
