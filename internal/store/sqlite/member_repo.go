package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatcore/internal/domain"
)

type MemberRepo struct {
	db *sql.DB
}

func NewMemberRepo(db *sql.DB) *MemberRepo {
	return &MemberRepo{db: db}
}

var _ domain.MemberRepository = (*MemberRepo)(nil)

const memberColumns = `conversation_id, user_id, position, unread_count, muted, pinned, last_read_seq, last_read_at, joined_at`

func (r *MemberRepo) ListMembers(ctx context.Context, conversationID int64) ([]*domain.ConversationMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM conversation_members
		WHERE conversation_id = ?
		ORDER BY position ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return scanMembers(rows)
}

func (r *MemberRepo) GetMember(ctx context.Context, conversationID, userID int64) (*domain.ConversationMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM conversation_members
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	res, err := scanMembers(rows)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, domain.ErrNotFound
	}
	return res[0], nil
}

func (r *MemberRepo) IsMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM conversation_members
			WHERE conversation_id = ? AND user_id = ?
		)
	`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return exists, nil
}

func (r *MemberRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.ConversationMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM conversation_members
		WHERE user_id = ?
		ORDER BY pinned DESC, conversation_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return scanMembers(rows)
}

// ListContactIDs returns every other user sharing at least one conversation
// with userID.
func (r *MemberRepo) ListContactIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT other.user_id
		FROM conversation_members self
		JOIN conversation_members other ON other.conversation_id = self.conversation_id
		WHERE self.user_id = ? AND other.user_id != ?
		ORDER BY other.user_id
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *MemberRepo) IncrementUnread(ctx context.Context, conversationID, userID int64) error {
	return r.exec(ctx, "increment unread", `
		UPDATE conversation_members
		SET unread_count = unread_count + 1
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID)
}

// AdvanceLastRead moves the read cursor forward without touching the unread
// counter. Used for the sender of a message.
func (r *MemberRepo) AdvanceLastRead(ctx context.Context, conversationID, userID, seq int64, at time.Time) error {
	return r.exec(ctx, "advance last read", `
		UPDATE conversation_members
		SET last_read_seq = MAX(last_read_seq, ?), last_read_at = ?
		WHERE conversation_id = ? AND user_id = ?
	`, seq, at.UTC(), conversationID, userID)
}

// MarkRead is the member's own read action: it clears unread and advances the
// read cursor.
func (r *MemberRepo) MarkRead(ctx context.Context, conversationID, userID, seq int64, at time.Time) error {
	return r.exec(ctx, "mark read", `
		UPDATE conversation_members
		SET unread_count = 0, last_read_seq = MAX(last_read_seq, ?), last_read_at = ?
		WHERE conversation_id = ? AND user_id = ?
	`, seq, at.UTC(), conversationID, userID)
}

func (r *MemberRepo) SetFlags(ctx context.Context, conversationID, userID int64, muted, pinned *bool) error {
	return r.exec(ctx, "set member flags", `
		UPDATE conversation_members
		SET muted = COALESCE(?, muted), pinned = COALESCE(?, pinned)
		WHERE conversation_id = ? AND user_id = ?
	`, muted, pinned, conversationID, userID)
}

func (r *MemberRepo) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func scanMembers(rows *sql.Rows) ([]*domain.ConversationMember, error) {
	defer rows.Close()
	var res []*domain.ConversationMember
	for rows.Next() {
		m := &domain.ConversationMember{}
		if err := rows.Scan(
			&m.ConversationID, &m.UserID, &m.Position, &m.UnreadCount,
			&m.Muted, &m.Pinned, &m.LastReadSeq, &m.LastReadAt, &m.JoinedAt,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return res, nil
}
