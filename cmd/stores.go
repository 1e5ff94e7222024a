package main

import (
	"fmt"

	"github.com/Gopher0727/MindBridge/config"
	"github.com/Gopher0727/MindBridge/internal/repository"
	"github.com/Gopher0727/MindBridge/internal/repository/memory"
)

// stores bundles the repositories of one storage driver.
type stores struct {
	users       repository.IUserRepository
	circles     repository.ICircleRepository
	memberships repository.IMembershipRepository
	posts       repository.IPostRepository
	friendships repository.IFriendshipRepository
	messages    repository.IMessageRepository
	moods       repository.IMoodRepository
	journals    repository.IJournalRepository

	close func() error
}

func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.Storage.Driver {
	case "memory":
		s := memory.NewStore()
		return &stores{
			users:       s.Users(),
			circles:     s.Circles(),
			memberships: s.Memberships(),
			posts:       s.Posts(),
			friendships: s.Friendships(),
			messages:    s.Messages(),
			moods:       s.Moods(),
			journals:    s.Journals(),
			close:       func() error { return nil },
		}, nil

	case "", "postgres":
		db, err := repository.OpenPostgres(&cfg.Postgres)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		return &stores{
			users:       repository.NewUserRepository(db),
			circles:     repository.NewCircleRepository(db),
			memberships: repository.NewMembershipRepository(db),
			posts:       repository.NewPostRepository(db),
			friendships: repository.NewFriendshipRepository(db),
			messages:    repository.NewMessageRepository(db),
			moods:       repository.NewMoodRepository(db),
			journals:    repository.NewJournalRepository(db),
			close:       sqlDB.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
