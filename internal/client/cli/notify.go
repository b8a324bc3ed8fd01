package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/meetsync/internal/client/notify"
)

type notifyArgs struct {
	name     string
	content  string
	users    []int
	channels []string
	all      bool
}

// runNotify отправляет notify сообщение. Содержимое, которое является
// корректным JSON, уходит как есть, иначе как строка.
func (c *Cli) runNotify(ctx context.Context, args notifyArgs) error {
	if args.name == "" {
		return errors.New("notify name cannot be empty")
	}
	if !args.all && len(args.users) == 0 && len(args.channels) == 0 {
		return notify.ErrNoRecipients
	}

	if err := c.app.Bootup(ctx); err != nil {
		return fmt.Errorf("bootup failed: %w", err)
	}
	if !c.app.Transport.IsConnected() {
		return errors.New("not connected to the server")
	}

	to := notify.Recipients{All: args.all, UserIDs: args.users}
	if err := c.app.Notify.Send(args.name, notifyContent(args.content), to, args.channels...); err != nil {
		return err
	}
	c.io.Printf("✓ Notify %s sent\n", args.name)
	return nil
}

func notifyContent(s string) any {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return s
}
