package domain

import (
	"context"
	"time"
)

// UserRepository exposes the identity lookups and presence columns the core uses.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	SetOnlineStatus(ctx context.Context, id int64, isOnline bool, lastSeen time.Time) error
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation, memberIDs []int64) error
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	SetLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
}

// MemberRepository owns the per-user view state of conversation members.
// Counter updates are single conditional statements, never read-modify-write.
type MemberRepository interface {
	ListMembers(ctx context.Context, conversationID int64) ([]*ConversationMember, error)
	GetMember(ctx context.Context, conversationID, userID int64) (*ConversationMember, error)
	IsMember(ctx context.Context, conversationID, userID int64) (bool, error)
	ListForUser(ctx context.Context, userID int64) ([]*ConversationMember, error)
	ListContactIDs(ctx context.Context, userID int64) ([]int64, error)
	IncrementUnread(ctx context.Context, conversationID, userID int64) error
	AdvanceLastRead(ctx context.Context, conversationID, userID, seq int64, at time.Time) error
	MarkRead(ctx context.Context, conversationID, userID, seq int64, at time.Time) error
	SetFlags(ctx context.Context, conversationID, userID int64, muted, pinned *bool) error
}

// MessageStore is the durable, ordered per-conversation message log.
type MessageStore interface {
	// Append assigns the next sequence position of the conversation and stores
	// the message with status sent.
	Append(ctx context.Context, conversationID, senderID int64, content Content, replyTo *int64) (*Message, error)
	GetByID(ctx context.Context, id int64) (*Message, error)
	// UpdateStatus applies a forward-only status transition. changed is false
	// when the message already has the requested status.
	UpdateStatus(ctx context.Context, messageID int64, status MessageStatus, actingUserID int64) (msg *Message, changed bool, err error)
	// Backfill returns up to limit messages with seq > sinceSeq, ascending.
	Backfill(ctx context.Context, conversationID, sinceSeq int64, limit int) ([]*Message, error)
}

// NotificationRepository persists user notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID int64, offset, limit int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, id, userID int64) error
	Delete(ctx context.Context, id, userID int64) error
}
