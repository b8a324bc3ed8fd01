package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/internal/validation"
	"github.com/iudanet/meetsync/pkg/api"
)

// runWrite записывает объект на сервер. Локальный кеш обновится через
// autoupdate, когда клиент подключен.
func (c *Cli) runWrite(ctx context.Context, collection, data, info string) error {
	if err := validation.ValidateCollection(collection); err != nil {
		return err
	}
	element, err := models.NewElement(collection, json.RawMessage(data))
	if err != nil {
		return err
	}

	resp, err := c.app.Write(ctx, api.WriteRequest{
		Changed:     []api.ElementWrite{{Collection: collection, Data: element.Data}},
		Information: information(info),
	})
	if err != nil {
		return err
	}
	c.io.Printf("✓ %s written, change id %d\n", element.Key(), resp.ChangeID)
	return nil
}

// runDelete удаляет объект collection:id на сервере
func (c *Cli) runDelete(ctx context.Context, elementID, info string) error {
	if err := validation.ValidateElementID(elementID); err != nil {
		return fmt.Errorf("invalid element id: %w", err)
	}

	resp, err := c.app.Write(ctx, api.WriteRequest{
		Deleted:     []string{elementID},
		Information: information(info),
	})
	if err != nil {
		return err
	}
	c.io.Printf("✓ %s deleted, change id %d\n", elementID, resp.ChangeID)
	return nil
}

func information(info string) []string {
	if info == "" {
		return nil
	}
	return []string{info}
}
