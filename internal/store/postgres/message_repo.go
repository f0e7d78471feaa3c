package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatcore/internal/domain"
	"chatcore/internal/store"
)

type MessageRepo struct {
	db     *sql.DB
	cipher domain.Cipher
}

func NewMessageRepo(db *sql.DB, cipher domain.Cipher) *MessageRepo {
	return &MessageRepo{db: db, cipher: cipher}
}

var _ domain.MessageStore = (*MessageRepo)(nil)

const messageColumns = `id, conversation_id, sender_id, seq, content, reply_to_id, status, created_at, delivered_at, read_at`

// Append locks the conversation row through the sequence update, so the
// position claim and the insert commit together.
func (r *MessageRepo) Append(ctx context.Context, conversationID, senderID int64, content domain.Content, replyTo *int64) (*domain.Message, error) {
	sealed, err := store.EncodeContent(r.cipher, content)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	if replyTo != nil {
		var replyConv int64
		err := tx.QueryRowContext(ctx, `SELECT conversation_id FROM messages WHERE id = $1`, *replyTo).Scan(&replyConv)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && replyConv != conversationID) {
			return nil, fmt.Errorf("%w: reply target %d is not in conversation %d", domain.ErrInvalidInput, *replyTo, conversationID)
		}
		if err != nil {
			return nil, fmt.Errorf("check reply target: %w", err)
		}
	}

	var seq int64
	err = tx.QueryRowContext(ctx, `
		UPDATE conversations SET last_seq = last_seq + 1
		WHERE id = $1
		RETURNING last_seq
	`, conversationID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim sequence: %w", err)
	}

	m := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Seq:            seq,
		Content:        content,
		ReplyToID:      replyTo,
		Status:         domain.StatusSent,
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, seq, kind, content, reply_to_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at
	`, m.ConversationID, m.SenderID, m.Seq, string(content.Kind), sealed, m.ReplyToID, int(m.Status),
	).Scan(&m.ID, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append tx: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	msgs, err := r.scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, domain.ErrNotFound
	}
	return msgs[0], nil
}

// UpdateStatus applies the transition with a conditional update; the
// follow-up read only classifies a no-op versus a regression.
func (r *MessageRepo) UpdateStatus(ctx context.Context, messageID int64, status domain.MessageStatus, actingUserID int64) (*domain.Message, bool, error) {
	if !status.Valid() {
		return nil, false, fmt.Errorf("%w: status %s", domain.ErrInvalidInput, status)
	}
	msg, err := r.GetByID(ctx, messageID)
	if err != nil {
		return nil, false, err
	}

	var member bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM conversation_members WHERE conversation_id = $1 AND user_id = $2)
	`, msg.ConversationID, actingUserID).Scan(&member); err != nil {
		return nil, false, fmt.Errorf("check member: %w", err)
	}
	if !member {
		return nil, false, domain.ErrForbidden
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = $2::smallint,
		    delivered_at = COALESCE(delivered_at, NOW()),
		    read_at = CASE WHEN $2::smallint >= $3::smallint THEN COALESCE(read_at, NOW()) ELSE read_at END
		WHERE id = $1 AND status < $2::smallint
	`, messageID, int(status), int(domain.StatusRead))
	if err != nil {
		return nil, false, fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	updated, err := r.GetByID(ctx, messageID)
	if err != nil {
		return nil, false, err
	}
	if n == 1 {
		return updated, true, nil
	}
	if updated.Status > status {
		return updated, false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, updated.Status, status)
	}
	return updated, false, nil
}

func (r *MessageRepo) Backfill(ctx context.Context, conversationID, sinceSeq int64, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`, conversationID, sinceSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("backfill: %w", err)
	}
	return r.scanMessages(rows)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (r *MessageRepo) scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()
	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		var sealed string
		var status int
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID, &m.Seq, &sealed, &m.ReplyToID,
			&status, &m.CreatedAt, &m.DeliveredAt, &m.ReadAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		content, err := store.DecodeContent(r.cipher, sealed)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", m.ID, err)
		}
		m.Content = content
		m.Status = domain.MessageStatus(status)
		res = append(res, m)
	}
	return res, rows.Err()
}
