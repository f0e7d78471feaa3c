package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatcore/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

// Create inserts a user row. The realtime core does not own user CRUD; this
// exists for seeding and tests.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.LastSeen.IsZero() {
		u.LastSeen = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (username, is_active, is_online, last_seen)
		VALUES (?, ?, ?, ?)
	`, u.Username, u.IsActive, u.IsOnline, u.LastSeen)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, `SELECT id, username, is_active, is_online, last_seen FROM users WHERE id = ?`, id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT id, username, is_active, is_online, last_seen FROM users WHERE username = ?`, username)
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, id int64, isOnline bool, lastSeen time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?
	`, isOnline, lastSeen.UTC(), id)
	if err != nil {
		return fmt.Errorf("set online status: %w", err)
	}
	return nil
}

// SaveLastSeen satisfies presence.LastSeenStore.
func (r *UserRepo) SaveLastSeen(ctx context.Context, userID int64, online bool, at time.Time) error {
	return r.SetOnlineStatus(ctx, userID, online, at)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.IsActive, &u.IsOnline, &u.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
