package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chatcore/pkg/logger"
)

// LastSeenStore persists the online flag and last-seen stamp of a user.
type LastSeenStore interface {
	SaveLastSeen(ctx context.Context, userID int64, online bool, at time.Time) error
}

// Persist returns an observer that writes every change to store.
func Persist(store LastSeenStore, log *logger.Logger, timeout time.Duration) func(Change) {
	return func(c Change) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		at := c.LastSeenAt
		if c.Online || at.IsZero() {
			at = time.Now().UTC()
		}
		if err := store.SaveLastSeen(ctx, c.UserID, c.Online, at); err != nil {
			log.Warn("presence: persist last seen",
				zap.Int64("user_id", c.UserID),
				zap.Bool("online", c.Online),
				zap.Error(err),
			)
		}
	}
}
