package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/meetsync/internal/client/storage"
	"github.com/iudanet/meetsync/internal/validation"
)

func (c *Cli) runLogin(ctx context.Context, username string) error {
	c.io.Println("=== Login ===")

	if username == "" {
		var err error
		username, err = c.io.ReadInput("Username: ")
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
	}
	if err := validation.ValidateUsername(username); err != nil {
		return fmt.Errorf("invalid username: %w", err)
	}

	password, err := c.io.ReadPassword("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	c.io.Println("Authenticating...")
	whoami, err := c.app.Login(ctx, username, password)
	if err != nil {
		return err
	}

	c.io.Println("✓ Login successful!")
	c.io.Printf("Username: %s\n", username)
	c.io.Printf("User ID: %d\n", whoami.ID())
	c.io.Printf("Local data: %d collection(s), change id %d\n",
		len(c.app.Store.Collections()), c.app.Store.MaxChangeID())
	return nil
}

func (c *Cli) runLogout(ctx context.Context) error {
	current, err := c.app.Auth.Current(ctx)
	if errors.Is(err, storage.ErrAuthNotFound) {
		c.io.Println("Not logged in.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	if err := c.app.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	c.io.Printf("✓ Logged out %s\n", current.Username)
	return nil
}
