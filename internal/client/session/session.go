// Package session управляет жизненным циклом клиента: загрузкой,
// подключением к серверу, сменой пользователя и завершением работы.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iudanet/meetsync/internal/client/datastore"
	"github.com/iudanet/meetsync/internal/client/storage"
	"github.com/iudanet/meetsync/internal/client/websocket"
	"github.com/iudanet/meetsync/internal/event"
	"github.com/iudanet/meetsync/internal/models"
)

// LoginPath путь страницы логина
const LoginPath = "/login"

// ErrAlreadyBooted возвращается Bootup, если сессия уже загружается или загружена
var ErrAlreadyBooted = errors.New("session already booted")

// State состояние сессии
type State string

const (
	StateCold         State = "cold"
	StateBooting      State = "booting"
	StateBooted       State = "booted"
	StateShuttingDown State = "shuttingDown"
)

// Transport часть websocket транспорта, которой управляет сессия
type Transport interface {
	Connect(ctx context.Context, opts websocket.ConnectOptions) error
	Close()
	IsConnected() bool
	CancelReconnectRetry()
	OnRetryReconnect(fn func()) event.Unsubscribe
}

// Operator источник сведений о текущем пользователе
type Operator interface {
	WhoAmIFromStorage(ctx context.Context) *models.WhoAmI
	WhoAmI(ctx context.Context) *models.WhoAmI
	UserID() int
}

// ChangeRequester запрашивает пропущенные изменения
type ChangeRequester interface {
	RequestChanges(ctx context.Context) error
}

// Navigator переводит пользователя на другую страницу
type Navigator interface {
	Navigate(path string)
}

// Option настройка контроллера
type Option func(*Controller)

// WithExecutor задает способ запуска фоновых проверок. По умолчанию
// каждая проверка запускается в отдельной горутине.
func WithExecutor(exec func(fn func())) Option {
	return func(c *Controller) { c.exec = exec }
}

// Controller контроллер сессии
type Controller struct {
	store     *datastore.Store
	transport Transport
	operator  Operator
	changes   ChangeRequester
	kv        storage.KeyValueStorage
	navigator Navigator
	logger    *slog.Logger
	exec      func(fn func())

	booted      *event.Subject[bool]
	unsubscribe event.Unsubscribe
	wg          sync.WaitGroup

	mu    sync.Mutex
	state State
}

// New создает контроллер и подписывает его на переподключения транспорта
func New(store *datastore.Store, transport Transport, operator Operator, changes ChangeRequester,
	kv storage.KeyValueStorage, navigator Navigator, logger *slog.Logger, opts ...Option,
) *Controller {
	c := &Controller{
		store:     store,
		transport: transport,
		operator:  operator,
		changes:   changes,
		kv:        kv,
		navigator: navigator,
		logger:    logger,
		exec:      func(fn func()) { go fn() },
		booted:    event.NewSubject[bool](),
		state:     StateCold,
	}
	for _, opt := range opts {
		opt(c)
	}

	// после переподключения пользователь мог смениться на сервере
	c.unsubscribe = transport.OnRetryReconnect(func() {
		c.runAsync(func() {
			if err := c.CheckOperator(context.Background(), true); err != nil {
				c.logger.Error("Operator check after reconnect failed", "error", err)
			}
		})
	})
	return c
}

// Close отписывает контроллер от транспорта и ждет фоновые проверки
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.Wait()
}

// Wait ждет завершения фоновых проверок
func (c *Controller) Wait() {
	c.wg.Wait()
}

// State возвращает текущее состояние
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsBooted проверяет, загружена ли сессия
func (c *Controller) IsBooted() bool {
	return c.State() == StateBooted
}

// OnBooted подписывает fn на смену признака загрузки
func (c *Controller) OnBooted(fn func(booted bool)) event.Unsubscribe {
	return c.booted.Subscribe(fn)
}

// Bootup загружает сессию: восстанавливает пользователя из кеша и либо
// переходит на страницу логина, либо подключается к серверу. После
// загрузки кеш проверяется фоновым запросом whoami.
func (c *Controller) Bootup(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateCold {
		c.mu.Unlock()
		return ErrAlreadyBooted
	}
	c.state = StateBooting
	c.mu.Unlock()

	whoami := c.operator.WhoAmIFromStorage(ctx)

	var err error
	if whoami.User == nil && !whoami.GuestEnabled {
		c.logger.Info("No user and no guest access, redirecting to login")
		c.setState(StateCold)
		c.redirectToLogin()
	} else {
		err = c.afterLoginBootup(ctx, whoami.UserID)
	}

	// проверяем, что кеш whoami еще актуален
	c.runAsync(func() {
		if err := c.CheckOperator(context.Background(), false); err != nil {
			c.logger.Error("Operator check after bootup failed", "error", err)
		}
	})
	return err
}

// AfterLoginBootup загружает данные для пользователя userID (nil для
// анонимного) и подключается к серверу.
func (c *Controller) AfterLoginBootup(ctx context.Context, userID *int) error {
	c.mu.Lock()
	if c.state == StateBooting || c.state == StateShuttingDown {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot boot while %s", state)
	}
	c.state = StateBooting
	c.mu.Unlock()

	return c.afterLoginBootup(ctx, userID)
}

func (c *Controller) afterLoginBootup(ctx context.Context, userID *int) error {
	if err := c.checkLastUser(ctx, userID); err != nil {
		c.setState(StateCold)
		return err
	}

	changeID, err := c.store.InitFromStorage(ctx)
	if err != nil {
		c.setState(StateCold)
		return fmt.Errorf("failed to restore store: %w", err)
	}

	// параметры соединения зависят от пользователя, переподключаемся
	if c.transport.IsConnected() {
		c.transport.Close()
	}

	opts := websocket.ConnectOptions{EnableAutoupdates: true}
	if changeID > 0 {
		next := changeID + 1
		opts.ChangeID = &next
	}
	if err := c.transport.Connect(ctx, opts); err != nil {
		// транспорт переподключается сам, работаем с кешем
		c.logger.Warn("Initial connect failed, working from cache", "error", err)
	}

	c.setState(StateBooted)
	c.logger.Info("Session booted", "user_id", userIDValue(userID), "change_id", changeID)
	c.booted.Publish(true)
	return nil
}

// checkLastUser очищает хранилище, если с прошлого запуска сменился пользователь
func (c *Controller) checkLastUser(ctx context.Context, userID *int) error {
	var lastUserID *int
	found, err := storage.GetJSON(ctx, c.kv, storage.KeyLastUserLoggedIn, &lastUserID)
	if err != nil {
		c.logger.Warn("Failed to read last logged in user", "error", err)
		found = false
	}

	if found && sameUser(lastUserID, userID) {
		return nil
	}

	c.logger.Info("User changed, clearing cached data",
		"last_user_id", userIDValue(lastUserID), "user_id", userIDValue(userID))
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear store for new user: %w", err)
	}
	if err := storage.SetJSON(ctx, c.kv, storage.KeyLastUserLoggedIn, userID); err != nil {
		return fmt.Errorf("failed to save last logged in user: %w", err)
	}
	return nil
}

// Shutdown закрывает соединение и снимает признак загрузки
func (c *Controller) Shutdown(ctx context.Context) error {
	c.setState(StateShuttingDown)
	c.transport.Close()
	c.setState(StateCold)

	c.logger.Info("Session shut down")
	c.booted.Publish(false)
	return ctx.Err()
}

// Reboot перезагружает сессию
func (c *Controller) Reboot(ctx context.Context) error {
	if err := c.Shutdown(ctx); err != nil {
		return err
	}
	return c.Bootup(ctx)
}

// Reset завершает сессию, удаляет все локальные данные и загружается заново
func (c *Controller) Reset(ctx context.Context) error {
	if err := c.Shutdown(ctx); err != nil {
		return err
	}
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	if err := c.kv.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear local storage: %w", err)
	}
	return c.Bootup(ctx)
}

// CheckOperator сверяет кеш пользователя с сервером. Если пользователь
// вышел, сессия завершается; если сменился, данные удаляются и сессия
// перезагружается; иначе при requestChanges запрашиваются пропущенные
// изменения.
func (c *Controller) CheckOperator(ctx context.Context, requestChanges bool) error {
	before := c.operator.UserID()
	resp := c.operator.WhoAmI(ctx)

	if resp.Offline {
		c.logger.Debug("Skipping operator check while offline")
		return nil
	}

	switch {
	case resp.User == nil && !resp.GuestEnabled:
		c.logger.Info("User logged off on server")
		c.transport.CancelReconnectRetry()
		if err := c.Shutdown(ctx); err != nil {
			return err
		}
		c.redirectToLogin()

	case before != resp.ID():
		c.logger.Info("Operator changed, rebooting", "before", before, "after", resp.ID())
		if err := c.store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
		return c.Reboot(ctx)

	case requestChanges:
		if err := c.changes.RequestChanges(ctx); err != nil {
			return fmt.Errorf("failed to request changes: %w", err)
		}
	}
	return nil
}

func (c *Controller) redirectToLogin() {
	if c.navigator != nil {
		c.navigator.Navigate(LoginPath)
	}
}

func (c *Controller) runAsync(fn func()) {
	c.wg.Add(1)
	c.exec(func() {
		defer c.wg.Done()
		fn()
	})
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func sameUser(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func userIDValue(id *int) int {
	if id == nil {
		return 0
	}
	return *id
}
