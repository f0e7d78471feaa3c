package domain

import (
	"encoding/json"
	"time"
)

// User is the slice of the application user the realtime core needs.
type User struct {
	ID       int64     `db:"id" json:"id"`
	Username string    `db:"username" json:"username"`
	IsActive bool      `db:"is_active" json:"is_active"`
	IsOnline bool      `db:"is_online" json:"is_online"`
	LastSeen time.Time `db:"last_seen" json:"last_seen"`
}

// ConversationKind distinguishes direct (two member) from group conversations.
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// Conversation represents a chat conversation (direct or group).
type Conversation struct {
	ID            int64            `db:"id" json:"id"`
	Kind          ConversationKind `db:"kind" json:"kind"`
	Name          *string          `db:"name" json:"name,omitempty"`
	LastSeq       int64            `db:"last_seq" json:"last_seq"`
	LastMessageID *int64           `db:"last_message_id" json:"last_message_id,omitempty"`
	LastMessageAt *time.Time       `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// ConversationMember is a user's membership and per-user view state in a conversation.
type ConversationMember struct {
	ConversationID int64      `db:"conversation_id" json:"conversation_id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	Position       int        `db:"position" json:"position"`
	UnreadCount    int        `db:"unread_count" json:"unread_count"`
	Muted          bool       `db:"muted" json:"muted"`
	Pinned         bool       `db:"pinned" json:"pinned"`
	LastReadSeq    int64      `db:"last_read_seq" json:"last_read_seq"`
	LastReadAt     *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
	JoinedAt       time.Time  `db:"joined_at" json:"joined_at"`
}

// Message represents a single chat message.
type Message struct {
	ID             int64         `db:"id"`
	ConversationID int64         `db:"conversation_id"`
	SenderID       int64         `db:"sender_id"`
	Seq            int64         `db:"seq"`
	Content        Content       `db:"content"` // sealed at rest
	ReplyToID      *int64        `db:"reply_to_id"`
	Status         MessageStatus `db:"status"`
	CreatedAt      time.Time     `db:"created_at"`
	DeliveredAt    *time.Time    `db:"delivered_at"`
	ReadAt         *time.Time    `db:"read_at"`
}

// NotificationType enumerates asynchronous events surfaced to a user.
type NotificationType string

const (
	NotificationLike          NotificationType = "like"
	NotificationComment       NotificationType = "comment"
	NotificationFollow        NotificationType = "follow"
	NotificationFriendRequest NotificationType = "friend_request"
	NotificationSystem        NotificationType = "system"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationFollow, NotificationFriendRequest, NotificationSystem:
		return true
	}
	return false
}

// Notification is an offline/asynchronous event addressed to one user.
type Notification struct {
	ID        int64            `db:"id" json:"id"`
	UserID    int64            `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	IsRead    bool             `db:"is_read" json:"is_read"`
	Payload   json.RawMessage  `db:"payload" json:"payload,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
