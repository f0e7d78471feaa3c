package service

import (
	"context"
	"time"

	"chatcore/internal/domain"
	"chatcore/internal/presence"
)

// UserService answers presence queries for the REST surface.
type UserService struct {
	users    domain.UserRepository
	tracker  *presence.Tracker
	lastSeen LastSeenReader
}

// LastSeenReader is an external last-seen record, such as presence.RedisStore.
type LastSeenReader interface {
	LastSeen(ctx context.Context, userID int64) (at time.Time, online bool, ok bool, err error)
}

func NewUserService(users domain.UserRepository, tracker *presence.Tracker) *UserService {
	return &UserService{users: users, tracker: tracker}
}

// WithLastSeen makes Presence consult r before the users table.
func (s *UserService) WithLastSeen(r LastSeenReader) *UserService {
	s.lastSeen = r
	return s
}

// PresenceView is the public presence of one user.
type PresenceView struct {
	UserID      int64      `json:"user_id"`
	Username    string     `json:"username"`
	Online      bool       `json:"online"`
	Connections int        `json:"connections"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

// Presence prefers the live tracker and falls back to the persisted last
// seen for users that have not connected since this process started.
func (s *UserService) Presence(ctx context.Context, userID int64) (*PresenceView, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := &PresenceView{UserID: u.ID, Username: u.Username}

	snap := s.tracker.Snapshot(userID)
	view.Online = snap.Online
	view.Connections = snap.Connections
	switch {
	case snap.Online:
	case !snap.LastSeenAt.IsZero():
		at := snap.LastSeenAt
		view.LastSeenAt = &at
	case s.lastSeen != nil:
		at, _, ok, err := s.lastSeen.LastSeen(ctx, userID)
		if err == nil && ok {
			view.LastSeenAt = &at
		} else if !u.LastSeen.IsZero() {
			at := u.LastSeen
			view.LastSeenAt = &at
		}
	case !u.LastSeen.IsZero():
		at := u.LastSeen
		view.LastSeenAt = &at
	}
	return view, nil
}
