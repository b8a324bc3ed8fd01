package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/internal/validation"
)

// runList выводит объекты коллекции из локального кеша
func (c *Cli) runList(ctx context.Context, collection, where string) error {
	if err := validation.ValidateCollection(collection); err != nil {
		return err
	}

	if _, err := c.app.Store.InitFromStorage(ctx); err != nil {
		return fmt.Errorf("failed to read local data: %w", err)
	}

	elements, err := c.app.Store.FilterExpr(collection, where)
	if err != nil {
		return fmt.Errorf("failed to filter %s: %w", collection, err)
	}

	c.printElements(collection, elements)
	return nil
}

func (c *Cli) printElements(collection string, elements []models.Element) {
	c.io.Printf("=== %s ===\n", collection)
	if len(elements) == 0 {
		c.io.Println("No objects found.")
		return
	}
	for _, e := range elements {
		c.io.Printf("%d\t%s\n", e.ID, e.Data)
	}
	c.io.Printf("Total: %d\n", len(elements))
}
