// Package cli команды клиента командной строки
package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/iudanet/meetsync/internal/client/app"
	"github.com/iudanet/meetsync/internal/client/iocli"
)

// Usage описание команд для docopt
const Usage = `meetsync client.

Usage:
  meetsync [options] login [--username=<name>]
  meetsync [options] logout
  meetsync [options] status
  meetsync [options] watch [--duration=<duration>]
  meetsync [options] list <collection> [--where=<expr>]
  meetsync [options] history [<timestamp> [<collection>]]
  meetsync [options] notify <name> [<content>] [--all | --users=<ids>] [--channel=<channel>...]
  meetsync [options] write <collection> <data> [--info=<text>]
  meetsync [options] delete <element_id> [--info=<text>]
  meetsync [options] reset
  meetsync -h | --help
  meetsync --version

Options:
  -h --help               Show this screen.
  --version               Show version.
  --config=<path>         Config file: toml, json or yaml [default: meetsync.toml].
  --server=<url>          Server URL, overrides the config file.
  --db=<path>             Local database path, overrides the config file.
  --username=<name>       Username for login, asked interactively if omitted.
  --duration=<duration>   Stop watching after this duration, e.g. 30s.
  --where=<expr>          Filter expression, e.g. 'is_active && id > 3'.
  --all                   Send to all online users.
  --users=<ids>           Comma separated user ids.
  --channel=<channel>     Reply channel, may be repeated.
  --info=<text>           Information for the history log.
`

// Cli выполняет команды поверх собранного приложения
type Cli struct {
	app *app.App
	io  iocli.IO
}

// New создает Cli
func New(a *app.App, io iocli.IO) *Cli {
	return &Cli{app: a, io: io}
}

// Run выполняет команду, выбранную docopt
func (c *Cli) Run(ctx context.Context, opts docopt.Opts) error {
	switch {
	case optBool(opts, "login"):
		return c.runLogin(ctx, optString(opts, "--username"))
	case optBool(opts, "logout"):
		return c.runLogout(ctx)
	case optBool(opts, "status"):
		return c.runStatus(ctx)
	case optBool(opts, "watch"):
		duration, err := optDuration(opts, "--duration")
		if err != nil {
			return err
		}
		return c.runWatch(ctx, duration)
	case optBool(opts, "list"):
		return c.runList(ctx, optString(opts, "<collection>"), optString(opts, "--where"))
	case optBool(opts, "history"):
		return c.runHistory(ctx, optString(opts, "<timestamp>"), optString(opts, "<collection>"))
	case optBool(opts, "notify"):
		users, err := parseUserIDs(optString(opts, "--users"))
		if err != nil {
			return err
		}
		return c.runNotify(ctx, notifyArgs{
			name:     optString(opts, "<name>"),
			content:  optString(opts, "<content>"),
			all:      optBool(opts, "--all"),
			users:    users,
			channels: optStrings(opts, "--channel"),
		})
	case optBool(opts, "write"):
		return c.runWrite(ctx, optString(opts, "<collection>"), optString(opts, "<data>"), optString(opts, "--info"))
	case optBool(opts, "delete"):
		return c.runDelete(ctx, optString(opts, "<element_id>"), optString(opts, "--info"))
	case optBool(opts, "reset"):
		return c.runReset(ctx)
	}
	return errors.New("unknown command")
}

// Navigator сообщает пользователю, что нужен вход. Сессия вызывает его
// вместо перехода на страницу логина.
type Navigator struct {
	io iocli.IO
}

// NewNavigator создает Navigator
func NewNavigator(io iocli.IO) *Navigator {
	return &Navigator{io: io}
}

// Navigate выводит подсказку для пути path
func (n *Navigator) Navigate(path string) {
	n.io.Errorf("Login required (%s). Run 'meetsync login' first.\n", path)
}

func optBool(opts docopt.Opts, key string) bool {
	v, _ := opts[key].(bool)
	return v
}

func optString(opts docopt.Opts, key string) string {
	v, _ := opts[key].(string)
	return v
}

func optStrings(opts docopt.Opts, key string) []string {
	v, _ := opts[key].([]string)
	return v
}

func optDuration(opts docopt.Opts, key string) (time.Duration, error) {
	s := optString(opts, key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative", key)
	}
	return d, nil
}

// parseUserIDs разбирает список вида "1,2,3"
func parseUserIDs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
