package db

import (
	"context"
	"log"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/auth"
	"messenger-service/internal/repositories"
)

// SeedDemoData creates a handful of demo accounts and a starter chat so a
// fresh instance is usable immediately. Existing rows are left alone.
func SeedDemoData(ctx context.Context, database *sqlx.DB) error {
	users := repositories.NewUserRepo(database)
	chats := repositories.NewChatRepo(database)
	messages := repositories.NewMessageRepo(database)

	usernames := []string{"alice", "bob", "charlie"}
	ids := map[string]string{}

	for _, username := range usernames {
		user, err := users.GetUserByUsername(ctx, username)
		if err == nil {
			ids[username] = user.ID
			continue
		}
		if err != repositories.ErrUserNotFound {
			return err
		}

		hash, err := auth.HashPassword("password123")
		if err != nil {
			return err
		}
		created, err := users.CreateUser(ctx, username, hash)
		if err != nil {
			return err
		}
		ids[username] = created.ID
		log.Printf("seeded demo user %s", username)
	}

	chat, err := chats.CreateChat(ctx, ids["alice"], ids["bob"])
	if err != nil {
		if err == repositories.ErrChatExists {
			return nil
		}
		return err
	}

	if _, err := messages.AppendMessage(ctx, chat.ID, ids["alice"], "hey bob!"); err != nil {
		return err
	}
	if _, err := messages.AppendMessage(ctx, chat.ID, ids["bob"], "hi alice, it works"); err != nil {
		return err
	}
	log.Printf("seeded demo chat %s", chat.ID)
	return nil
}
