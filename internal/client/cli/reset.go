package cli

import (
	"context"
	"fmt"
)

// runReset удаляет локальный кеш и загружает данные заново
func (c *Cli) runReset(ctx context.Context) error {
	if err := c.app.Session.Reset(ctx); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	c.io.Printf("✓ Local data reset, change id %d\n", c.app.Store.MaxChangeID())
	return nil
}
