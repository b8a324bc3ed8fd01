package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/meetsync/internal/client/storage"
)

// runStatus показывает сессию и состояние локального кеша без обращения к серверу
func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Status ===")
	c.io.Printf("Server: %s\n", c.app.API.BaseURL())

	authData, err := c.app.Auth.Current(ctx)
	switch {
	case errors.Is(err, storage.ErrAuthNotFound):
		c.io.Println("Session: not authenticated")
	case err != nil:
		return fmt.Errorf("failed to read session: %w", err)
	default:
		c.io.Printf("Session: %s (user id %d)\n", authData.Username, authData.UserID)
		if authData.ExpiresAt > 0 {
			expiresAt := time.Unix(authData.ExpiresAt, 0)
			if remaining := time.Until(expiresAt); remaining > 0 {
				c.io.Printf("Token expires: %s (in %s)\n", expiresAt.Format(time.RFC3339), remaining.Round(time.Second))
			} else {
				c.io.Println("⚠️  Token has expired. Please login again.")
			}
		}
	}

	if whoami := c.app.Operator.WhoAmIFromStorage(ctx); whoami != nil {
		if whoami.IsAnonymous() {
			c.io.Printf("Cached operator: anonymous, guests enabled: %t\n", whoami.GuestEnabled)
		} else {
			c.io.Printf("Cached operator: user id %d, %d permission(s)\n", whoami.ID(), len(whoami.Permissions))
		}
	}

	changeID, err := c.app.Store.InitFromStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to read local data: %w", err)
	}

	collections := c.app.Store.Collections()
	if len(collections) == 0 {
		c.io.Println("Local data: empty")
		return nil
	}
	c.io.Printf("Local data: change id %d\n", changeID)
	for _, name := range collections {
		c.io.Printf("  %-32s %d\n", name, c.app.Store.Count(name))
	}
	return nil
}
