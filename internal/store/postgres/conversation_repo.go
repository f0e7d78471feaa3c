package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatcore/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation, memberIDs []int64) error {
	if err := domain.ValidateRoster(c.Kind, memberIDs); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO conversations (kind, name, last_seq, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, string(c.Kind), c.Name).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	for i, uid := range memberIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_members (conversation_id, user_id, position, joined_at)
			VALUES ($1, $2, $3, NOW())
		`, c.ID, uid, i); err != nil {
			return fmt.Errorf("insert member %d: %w", uid, err)
		}
	}

	return tx.Commit()
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	var kind string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, kind, name, last_seq, last_message_id, last_message_at, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &kind, &c.Name, &c.LastSeq, &c.LastMessageID, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.Kind = domain.ConversationKind(kind)
	return c, nil
}

func (r *ConversationRepo) SetLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = $2, last_message_at = $3, updated_at = NOW()
		WHERE id = $1 AND (last_message_id IS NULL OR last_message_id < $2)
	`, conversationID, messageID, at)
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	return nil
}

func (r *ConversationRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
