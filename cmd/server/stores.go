package main

import (
	"database/sql"
	"fmt"

	"chatcore/internal/config"
	"chatcore/internal/domain"
	"chatcore/internal/presence"
	"chatcore/internal/store/postgres"
	"chatcore/internal/store/sqlite"
)

type stores struct {
	db            *sql.DB
	users         domain.UserRepository
	lastSeen      presence.LastSeenStore
	conversations domain.ConversationRepository
	members       domain.MemberRepository
	messages      domain.MessageStore
	notifications domain.NotificationRepository
}

func openStores(cfg *config.Config, cipher domain.Cipher) (*stores, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		users := postgres.NewUserRepo(db)
		return &stores{
			db:            db,
			users:         users,
			lastSeen:      users,
			conversations: postgres.NewConversationRepo(db),
			members:       postgres.NewMemberRepo(db),
			messages:      postgres.NewMessageRepo(db, cipher),
			notifications: postgres.NewNotificationRepo(db),
		}, nil
	default:
		db, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		users := sqlite.NewUserRepo(db)
		return &stores{
			db:            db,
			users:         users,
			lastSeen:      users,
			conversations: sqlite.NewConversationRepo(db),
			members:       sqlite.NewMemberRepo(db),
			messages:      sqlite.NewMessageRepo(db, cipher),
			notifications: sqlite.NewNotificationRepo(db),
		}, nil
	}
}
