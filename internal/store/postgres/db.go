package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"chatcore/internal/domain"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w: %w", domain.ErrDatabaseConnection, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w: %w", domain.ErrDatabaseConnection, err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the realtime schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         BIGSERIAL    PRIMARY KEY,
			username   VARCHAR(50)  UNIQUE NOT NULL,
			is_active  BOOLEAN      NOT NULL DEFAULT TRUE,
			is_online  BOOLEAN      NOT NULL DEFAULT FALSE,
			last_seen  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id              BIGSERIAL    PRIMARY KEY,
			kind            VARCHAR(10)  NOT NULL CHECK (kind IN ('direct', 'group')),
			name            VARCHAR(100),
			last_seq        BIGINT       NOT NULL DEFAULT 0,
			last_message_id BIGINT,
			last_message_at TIMESTAMPTZ,
			created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS conversation_members (
			conversation_id BIGINT       NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id         BIGINT       NOT NULL REFERENCES users(id),
			position        INT          NOT NULL DEFAULT 0,
			unread_count    INT          NOT NULL DEFAULT 0,
			muted           BOOLEAN      NOT NULL DEFAULT FALSE,
			pinned          BOOLEAN      NOT NULL DEFAULT FALSE,
			last_read_seq   BIGINT       NOT NULL DEFAULT 0,
			last_read_at    TIMESTAMPTZ,
			joined_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			PRIMARY KEY (conversation_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id              BIGSERIAL    PRIMARY KEY,
			conversation_id BIGINT       NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			sender_id       BIGINT       NOT NULL REFERENCES users(id),
			seq             BIGINT       NOT NULL,
			kind            VARCHAR(10)  NOT NULL,
			content         TEXT         NOT NULL,
			reply_to_id     BIGINT       REFERENCES messages(id) ON DELETE SET NULL,
			status          SMALLINT     NOT NULL DEFAULT 1,
			created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			delivered_at    TIMESTAMPTZ,
			read_at         TIMESTAMPTZ,
			UNIQUE (conversation_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id         BIGSERIAL    PRIMARY KEY,
			user_id    BIGINT       NOT NULL REFERENCES users(id),
			type       VARCHAR(20)  NOT NULL,
			is_read    BOOLEAN      NOT NULL DEFAULT FALSE,
			payload    JSONB,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_members_user ON conversation_members(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_seq ON messages(conversation_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(user_id) WHERE is_read = FALSE`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
