// Package app собирает сервисы клиента в одно приложение
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iudanet/meetsync/internal/client/api"
	"github.com/iudanet/meetsync/internal/client/auth"
	"github.com/iudanet/meetsync/internal/client/autoupdate"
	"github.com/iudanet/meetsync/internal/client/datastore"
	"github.com/iudanet/meetsync/internal/client/notify"
	"github.com/iudanet/meetsync/internal/client/offline"
	"github.com/iudanet/meetsync/internal/client/operator"
	"github.com/iudanet/meetsync/internal/client/repository"
	"github.com/iudanet/meetsync/internal/client/session"
	"github.com/iudanet/meetsync/internal/client/status"
	"github.com/iudanet/meetsync/internal/client/storage"
	"github.com/iudanet/meetsync/internal/client/storage/boltdb"
	"github.com/iudanet/meetsync/internal/client/timetravel"
	"github.com/iudanet/meetsync/internal/client/websocket"
	"github.com/iudanet/meetsync/internal/config"
	"github.com/iudanet/meetsync/internal/models"
	pkgapi "github.com/iudanet/meetsync/pkg/api"
)

// ErrNotAuthenticated возвращается командами, которым нужен вход
var ErrNotAuthenticated = errors.New("not authenticated")

// App клиент целиком. Поля открыты для команд CLI и тестов.
type App struct {
	DB         *boltdb.Storage
	Status     *status.Service
	Offline    *offline.Service
	Storage    *storage.Guard
	Store      *datastore.Store
	API        *api.Client
	Auth       *auth.AuthService
	Transport  *websocket.Transport
	Autoupdate *autoupdate.Service
	Operator   *operator.Operator
	Users      *repository.Users
	Session    *session.Controller
	TimeTravel *timetravel.Service
	Notify     *notify.Service

	logger *slog.Logger
}

// New открывает локальную базу и связывает сервисы. Сессия не
// загружается: это делает Bootup.
func New(ctx context.Context, cfg config.ClientConfig, navigator session.Navigator, logger *slog.Logger) (*App, error) {
	db, err := boltdb.New(ctx, cfg.DBPath, boltdb.WithQuota(cfg.QuotaBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	a := &App{DB: db, logger: logger}
	a.Status = status.NewService()
	a.Offline = offline.NewService(logger)
	// все записи в локальную базу, кроме токена, идут через Guard
	a.Storage = storage.NewGuard(db, db, a.Status)
	a.Store = datastore.NewStore(a.Storage, a.Status, a.Offline, logger)

	a.API = api.NewClient(cfg.ServerURL)
	a.Auth = auth.NewService(a.API, db, logger)
	a.API.SetTokenSource(a.Auth)

	a.Transport = websocket.New(cfg.ServerURL, a.Auth, a.Offline, cfg.WebsocketSettings(), logger)
	a.Autoupdate = autoupdate.NewService(a.Store, a.Transport, logger, autoupdate.WithDelay(cfg.AutoupdateDelay()),
		autoupdate.WithHistoryMode(a.Status))

	a.Operator = operator.New(a.Store, a.API, a.Storage, a.Offline, a.Status, logger)
	a.Users = repository.NewUsers(a.Store, logger)
	a.Operator.AfterAppsLoaded(a.Users)

	a.Session = session.New(a.Store, a.Transport, a.Operator, a.Autoupdate, a.Storage, navigator, logger)
	a.TimeTravel = timetravel.New(a.Store, a.API, a.Transport, a.Session, a.Status, logger)
	a.Notify = notify.New(a.Transport, a.Operator, logger)

	a.Autoupdate.Start()
	return a, nil
}

// Bootup загружает сессию
func (a *App) Bootup(ctx context.Context) error {
	return a.Session.Bootup(ctx)
}

// Login входит на сервер и загружает данные нового пользователя
func (a *App) Login(ctx context.Context, username, password string) (*models.WhoAmI, error) {
	whoami, err := a.Auth.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	a.Operator.SetWhoAmI(ctx, whoami)
	a.logger.InfoContext(ctx, "logged in", slog.Int("user_id", whoami.ID()))

	if err := a.Session.AfterLoginBootup(ctx, whoami.UserID); err != nil {
		return nil, fmt.Errorf("failed to boot after login: %w", err)
	}
	return whoami, nil
}

// Logout выходит из системы и перезагружает сессию анонимно
func (a *App) Logout(ctx context.Context) error {
	if err := a.Auth.Logout(ctx); err != nil {
		return err
	}
	a.Operator.SetWhoAmI(ctx, nil)

	if a.Session.State() == session.StateCold {
		return nil
	}
	return a.Session.Reboot(ctx)
}

// Write отправляет изменения на сервер. До прихода autoupdate с
// выданным change id пакеты применяются без задержки.
func (a *App) Write(ctx context.Context, req pkgapi.WriteRequest) (*pkgapi.WriteResponse, error) {
	resp, err := a.API.WriteElements(ctx, req)
	if err != nil {
		return nil, err
	}
	a.Autoupdate.DisableUntil(resp.ChangeID)
	return resp, nil
}

// Close останавливает сервисы и закрывает базу
func (a *App) Close() error {
	a.Notify.Close()
	a.Session.Close()
	a.Autoupdate.Stop()
	a.Transport.Close()
	a.Operator.Close()
	if err := a.DB.Close(); err != nil {
		a.logger.Error("failed to close local database", slog.Any("error", err))
		return fmt.Errorf("failed to close local database: %w", err)
	}
	return nil
}
