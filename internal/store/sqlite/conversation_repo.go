package sqlite

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

// Create inserts the conversation and its members in order. Member positions
// follow the order of memberIDs.
func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation, memberIDs []int64) error {
	if err := domain.ValidateRoster(c.Kind, memberIDs); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (kind, name, last_seq, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
	`, string(c.Kind), c.Name, now, now)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	for i, uid := range memberIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_members (conversation_id, user_id, position, joined_at)
			VALUES (?, ?, ?, ?)
		`, id, uid, i, now); err != nil {
			return fmt.Errorf("insert member %d: %w", uid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	c.ID = id
	c.LastSeq = 0
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	var kind string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, kind, name, last_seq, last_message_id, last_message_at, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`, id).Scan(
		&c.ID,
		&kind,
		&c.Name,
		&c.LastSeq,
		&c.LastMessageID,
		&c.LastMessageAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.Kind = domain.ConversationKind(kind)
	return c, nil
}

// SetLastMessage moves the denormalized pointer forward only; a late writer
// carrying an older message leaves the newer pointer untouched.
func (r *ConversationRepo) SetLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = ?, last_message_at = ?, updated_at = ?
		WHERE id = ? AND (last_message_id IS NULL OR last_message_id < ?)
	`, messageID, at.UTC(), time.Now().UTC(), conversationID, messageID)
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	return nil
}

func (r *ConversationRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
