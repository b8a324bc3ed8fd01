package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/internal/validation"
)

// runHistory без timestamp выводит точки истории сервера. С timestamp
// загружает состояние на этот момент, печатает его и возвращается к
// текущему состоянию.
func (c *Cli) runHistory(ctx context.Context, timestamp, collection string) error {
	if timestamp == "" {
		return c.printHistoryPoints(ctx)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || ts <= 0 {
		return fmt.Errorf("invalid timestamp %q", timestamp)
	}
	if collection != "" {
		if err := validation.ValidateCollection(collection); err != nil {
			return err
		}
	}

	if err := c.app.Bootup(ctx); err != nil {
		return fmt.Errorf("bootup failed: %w", err)
	}

	point := models.History{Timestamp: ts}
	if err := c.app.TimeTravel.LoadHistoryPoint(ctx, point); err != nil {
		return err
	}

	c.io.Printf("=== State at %s ===\n", formatTimestamp(ts))
	if collection != "" {
		c.printElements(collection, c.app.Store.GetAll(collection))
	} else {
		for _, name := range c.app.Store.Collections() {
			c.io.Printf("  %-32s %d\n", name, c.app.Store.Count(name))
		}
	}

	if err := c.app.TimeTravel.ResumeTime(ctx); err != nil {
		return fmt.Errorf("failed to resume live data: %w", err)
	}
	return nil
}

func (c *Cli) printHistoryPoints(ctx context.Context) error {
	points, err := c.app.API.HistoryInformation(ctx)
	if err != nil {
		return err
	}

	c.io.Println("=== History ===")
	if len(points) == 0 {
		c.io.Println("No history found.")
		return nil
	}
	for _, p := range points {
		c.io.Printf("%d\t%s\t%s\n", p.Timestamp, formatTimestamp(p.Timestamp), p.Information)
	}
	return nil
}

func formatTimestamp(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
