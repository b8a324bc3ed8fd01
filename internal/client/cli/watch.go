package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/iudanet/meetsync/internal/client/datastore"
	"github.com/iudanet/meetsync/internal/client/notify"
	"github.com/iudanet/meetsync/internal/client/offline"
	"github.com/iudanet/meetsync/internal/client/websocket"
	"github.com/iudanet/meetsync/internal/event"
)

// runWatch загружает сессию и печатает изменения, пока не отменен ctx
// или не истек duration
func (c *Cli) runWatch(ctx context.Context, duration time.Duration) error {
	unsubscribe := []event.Unsubscribe{
		c.app.Store.OnModified(func(u datastore.Update) {
			c.io.Println(formatUpdate(u))
		}),
		c.app.Transport.OnStateChange(func(s websocket.ConnectionState) {
			c.io.Printf("connection: %s\n", s)
		}),
		c.app.Offline.OnNotice(func(n offline.Notice) {
			if n.Dismiss {
				c.io.Printf("notice %s dismissed\n", n.Kind)
				return
			}
			c.io.Errorf("notice %s: %s\n", n.Kind, n.Message)
		}),
		c.app.Notify.Subscribe(func(m notify.Message) {
			c.io.Printf("notify %s from user %d: %s\n", m.Name, m.SenderUserID, m.Content)
		}),
	}
	defer func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}()

	if err := c.app.Bootup(ctx); err != nil {
		return fmt.Errorf("bootup failed: %w", err)
	}

	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}
	<-ctx.Done()

	// Shutdown возвращает ошибку контекста, завершение по таймеру ошибкой не считается
	_ = c.app.Session.Shutdown(context.WithoutCancel(ctx))
	c.io.Printf("Stopped at change id %d\n", c.app.Store.MaxChangeID())
	return nil
}

// formatUpdate описывает коммит одной строкой
func formatUpdate(u datastore.Update) string {
	var b strings.Builder
	fmt.Fprintf(&b, "change id %d", u.ChangeID)
	if u.Reset {
		b.WriteString(" reset")
	}
	writeIDs(&b, "changed", u.Changed)
	writeIDs(&b, "deleted", u.Deleted)
	return b.String()
}

func writeIDs(b *strings.Builder, label string, ids map[string][]int) {
	for _, collection := range slices.Sorted(maps.Keys(ids)) {
		if len(ids[collection]) == 0 {
			continue
		}
		sorted := slices.Sorted(slices.Values(ids[collection]))
		fmt.Fprintf(b, " %s %s%v", label, collection, sorted)
	}
}
