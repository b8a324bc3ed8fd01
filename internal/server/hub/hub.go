// Package hub обслуживает websocket клиентов dev-сервера:
// рассылку autoupdate, ответы на getElements и пересылку notify
package hub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/meetsync/internal/server/handlers"
	"github.com/iudanet/meetsync/internal/server/storage"
	"github.com/iudanet/meetsync/pkg/api"
)

// channelPrefix префикс имени канала клиента для notify
const channelPrefix = "client:"

// maxMessageSize максимальный размер входящего кадра
const maxMessageSize = 1 << 20

// errConnectionClosed клиент закрыл соединение штатно
var errConnectionClosed = errors.New("connection closed")

// AccessChecker проверяет права пользователя
type AccessChecker interface {
	IsSuperadmin(ctx context.Context, userID int) (bool, error)
}

// Settings параметры hub
type Settings struct {
	// Constants ответ на сообщение constants
	Constants api.ConstantsContent
	// ReadTimeout продлевается каждым кадром и ping от клиента
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	GuestEnabled bool
	Compression  bool
}

// DefaultSettings возвращает параметры по умолчанию
func DefaultSettings() Settings {
	return Settings{
		Constants:    api.ConstantsContent{},
		ReadTimeout:  90 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
		Compression:  true,
	}
}

// Hub держит подключенных клиентов
type Hub struct {
	logger    *slog.Logger
	elements  storage.ElementStorage
	access    AccessChecker
	validator *api.Validator
	clients   map[*client]struct{}
	upgrader  websocket.Upgrader
	settings  Settings
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
}

// New создает hub
func New(logger *slog.Logger, elements storage.ElementStorage, access AccessChecker, settings Settings) *Hub {
	if settings.SendBuffer <= 0 {
		settings.SendBuffer = DefaultSettings().SendBuffer
	}
	if settings.Constants == nil {
		settings.Constants = api.ConstantsContent{}
	}
	return &Hub{
		logger:    logger,
		elements:  elements,
		access:    access,
		validator: api.MustValidator(api.SchemaClientMessage),
		clients:   make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// dev-сервер принимает соединения с любого origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		settings: settings,
	}
}

// ServeHTTP обрабатывает GET /ws/?autoupdate=true&change_id=N
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, _ := handlers.GetUserID(r.Context())

	query := r.URL.Query()
	autoupdate, _ := strconv.ParseBool(query.Get(api.QueryAutoupdate))
	var changeID int64
	if raw := query.Get(api.QueryChangeID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			handlers.SendError(w, "change_id must be a non-negative integer", http.StatusBadRequest)
			return
		}
		changeID = id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		hub:        h,
		conn:       conn,
		send:       make(chan *api.Message, h.settings.SendBuffer),
		channel:    channelPrefix + uuid.NewString(),
		userID:     userID,
		autoupdate: autoupdate,
	}
	c.logger = h.logger.With(slog.String("channel", c.channel), slog.Int("user_id", userID))

	if userID == 0 && !h.settings.GuestEnabled {
		c.logger.InfoContext(r.Context(), "anonymous connection rejected")
		c.writeDirect(errorMessage(api.ErrorCodeNotAuthorized, "Anonymous is not enabled", ""))
		c.closeWith(websocket.CloseNormalClosure, "not authorized")
		return
	}

	if !h.register(c) {
		c.closeWith(websocket.CloseGoingAway, "server is shutting down")
		return
	}
	defer h.unregister(c)

	c.logger.InfoContext(r.Context(), "client connected",
		slog.Bool("autoupdate", autoupdate),
		slog.Int64("change_id", changeID))

	// после hijack временем жизни соединения управляет hub
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.writePump(ctx) })
	g.Go(func() error { return c.readPump(ctx) })
	if autoupdate {
		h.sendChanges(ctx, c, changeID, "")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errConnectionClosed) && !errors.Is(err, context.Canceled) {
		c.logger.DebugContext(ctx, "client connection ended", slog.Any("error", err))
	}
	c.logger.InfoContext(ctx, "client disconnected")
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.wg.Done()
}

// snapshot возвращает клиентов, подходящих под filter
func (h *Hub) snapshot(filter func(*client) bool) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []*client
	for c := range h.clients {
		if filter(c) {
			result = append(result, c)
		}
	}
	return result
}

// Clients возвращает число подключенных клиентов
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close закрывает все соединения с кодом 1001 и ждет их завершения
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.closeWith(websocket.CloseGoingAway, "server is shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
