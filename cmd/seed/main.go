package main

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/internal"
	"chat-relay/repositories"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

// seed fills the embedded user directory and prints a token per user,
// ready to be used as CHAT_TOKEN by the client.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	names := flag.String("users", "alice,bob,carol", "Comma separated usernames, ids are assigned from 1")
	flag.Parse()

	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer db.Close()

	users := repositories.NewUserRepository(db)
	tokens := auth.NewTokenManager(config.JwtSecret, config.AuthTokenDuration)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Username", "Token"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for i, name := range strings.Split(*names, ",") {
		user := domain.Identity{
			ID:        domain.UserID(i + 1),
			Username:  strings.TrimSpace(name),
			AvatarURL: fmt.Sprintf("/avatars/%s.png", strings.TrimSpace(name)),
		}
		if err := users.PutUser(context.Background(), user); err != nil {
			return err
		}
		token, err := tokens.GenerateToken(user.ID, user.Username, nil)
		if err != nil {
			return err
		}
		table.Append([]string{strconv.FormatInt(int64(user.ID), 10), user.Username, token})
	}
	table.Render()
	return nil
}
