// Package websocket реализует транспорт клиента: одно дуплексное
// соединение с сервером, переподключение со случайной задержкой, очередь
// исходящих сообщений и мультиплексирование входящих по типу.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/meetsync/internal/event"
	"github.com/iudanet/meetsync/pkg/api"
)

// TokenSource возвращает access token для заголовка Authorization.
// Пустой токен означает анонимное подключение.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// OfflineNotifier получает сигналы о потере и восстановлении связи
type OfflineNotifier interface {
	GoOfflineBecauseConnectionLost()
	GoOnline()
}

// ConnectOptions параметры подключения
type ConnectOptions struct {
	ChangeID          *int64 // с какого change id продолжить поток изменений
	EnableAutoupdates bool   // получать autoupdate сообщения
}

// Transport websocket транспорт клиента
type Transport struct {
	tokens    TokenSource
	offline   OfflineNotifier
	settings  *Settings
	dialer    *websocket.Dialer
	logger    *slog.Logger
	validator *api.Validator

	subscriptions  *event.Topics[string, json.RawMessage]
	errorsSubject  *event.Subject[*ErrorResponse]
	stateSubject   *event.Subject[ConnectionState]
	generalConnect *event.Subject[struct{}]
	retryReconnect *event.Subject[struct{}]
	noRetryConnect *event.Subject[struct{}]
	closeSubject   *event.Subject[struct{}]

	conn       *websocket.Conn
	retryTimer *time.Timer
	responses  map[string]chan *api.Message
	baseURL    string
	state      ConnectionState
	queue      []*api.Message
	options    ConnectOptions
	generation uint64
	retries    int
	closing    bool
	mu         sync.Mutex
}

// New создает транспорт для сервера baseURL (http://host:port)
func New(baseURL string, tokens TokenSource, offline OfflineNotifier, settings *Settings, logger *slog.Logger) *Transport {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Transport{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokens:   tokens,
		offline:  offline,
		settings: settings,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: settings.HandshakeTimeout,
		},
		logger:         logger,
		validator:      api.MustValidator(api.SchemaServerMessage),
		subscriptions:  event.NewTopics[string, json.RawMessage](),
		errorsSubject:  event.NewSubject[*ErrorResponse](),
		stateSubject:   event.NewSubject[ConnectionState](),
		generalConnect: event.NewSubject[struct{}](),
		retryReconnect: event.NewSubject[struct{}](),
		noRetryConnect: event.NewSubject[struct{}](),
		closeSubject:   event.NewSubject[struct{}](),
		responses:      make(map[string]chan *api.Message),
		state:          StateDisconnected,
	}
}

// State возвращает текущее состояние соединения
func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsConnected проверяет, открыто ли соединение
func (t *Transport) IsConnected() bool {
	return t.State() == StateConnected
}

// Connect открывает соединение, предварительно закрыв предыдущее.
// Если первая попытка не удалась, ошибка возвращается, а транспорт
// продолжает переподключаться в фоне.
func (t *Transport) Connect(ctx context.Context, opts ConnectOptions) error {
	t.mu.Lock()
	old := t.detachLocked()
	t.closing = false
	t.options = opts
	t.retries = 0
	t.generation++
	gen := t.generation
	t.setStateLocked(StateConnecting)
	t.mu.Unlock()

	if old != nil {
		closeGracefully(old, t.settings.WriteTimeout)
	}
	t.publishState()

	return t.dial(ctx, gen)
}

// Reconnect закрывает соединение и открывает его заново с прежними параметрами
func (t *Transport) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	opts := t.options
	t.mu.Unlock()

	t.Close()
	return t.Connect(ctx, opts)
}

// Close закрывает соединение с кодом 1000. Переподключения не будет.
func (t *Transport) Close() {
	t.mu.Lock()
	t.closing = true
	t.generation++
	old := t.detachLocked()
	changed := t.setStateLocked(StateDisconnected)
	t.mu.Unlock()

	if old != nil {
		closeGracefully(old, t.settings.WriteTimeout)
	}
	if changed {
		t.publishState()
	}
	t.closeSubject.Publish(struct{}{})
}

// CancelReconnectRetry отменяет запланированное переподключение
func (t *Transport) CancelReconnectRetry() {
	t.mu.Lock()
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	changed := false
	if t.state == StateRetrying {
		t.generation++
		changed = t.setStateLocked(StateDisconnected)
	}
	t.mu.Unlock()

	if changed {
		t.publishState()
	}
}

// SimulateAbnormalClose обрывает соединение без close кадра, как при сбое сети
func (t *Transport) SimulateAbnormalClose() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Send отправляет сообщение или ставит его в очередь, если соединения нет.
// Возвращает идентификатор сообщения.
func (t *Transport) Send(msgType string, content any, id ...string) (string, error) {
	msgID := ""
	if len(id) > 0 {
		msgID = id[0]
	}
	if msgID == "" {
		msgID = NewMessageID()
	}

	msg, err := api.NewMessage(msgType, content, msgID)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.state != StateConnected {
		t.queue = append(t.queue, msg)
		t.logger.Debug("Message queued", "type", msgType, "id", msgID, "queue", len(t.queue))
		return msgID, nil
	}

	if err := t.writeLocked(t.conn, msg); err != nil {
		// соединение умирает, сообщение уйдет после переподключения
		t.queue = append(t.queue, msg)
		t.logger.Warn("Failed to send message, queued", "type", msgType, "error", err)
	}
	return msgID, nil
}

// SendAndGetResponse отправляет сообщение и ждет ответ с in_response,
// равным его ID. Ответ типа "error" возвращается как *ErrorResponse.
func (t *Transport) SendAndGetResponse(ctx context.Context, msgType string, content any) (json.RawMessage, error) {
	id := NewMessageID()
	ch := make(chan *api.Message, 1)

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	t.responses[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.responses, id)
		t.mu.Unlock()
	}()

	if _, err := t.Send(msgType, content, id); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s response: %w", msgType, ctx.Err())
	case msg := <-ch:
		if msg.Type == api.TypeError {
			return nil, decodeError(msg.Content)
		}
		return msg.Content, nil
	}
}

// Subscribe подписывает fn на входящие сообщения типа msgType.
// Сообщения одного типа доставляются в порядке получения.
func (t *Transport) Subscribe(msgType string, fn func(content json.RawMessage)) event.Unsubscribe {
	return t.subscriptions.Subscribe(msgType, fn)
}

// OnError подписывает fn на ошибки сервера, которые не являются ответом на запрос
func (t *Transport) OnError(fn func(*ErrorResponse)) event.Unsubscribe {
	return t.errorsSubject.Subscribe(fn)
}

// OnStateChange подписывает fn на смену состояния
func (t *Transport) OnStateChange(fn func(ConnectionState)) event.Unsubscribe {
	return t.stateSubject.Subscribe(fn)
}

// OnConnect подписывает fn на любое успешное подключение
func (t *Transport) OnConnect(fn func()) event.Unsubscribe {
	return t.generalConnect.Subscribe(func(struct{}) { fn() })
}

// OnRetryReconnect подписывает fn на подключение после неудачных попыток
func (t *Transport) OnRetryReconnect(fn func()) event.Unsubscribe {
	return t.retryReconnect.Subscribe(func(struct{}) { fn() })
}

// OnNoRetryConnect подписывает fn на подключение с первой попытки
func (t *Transport) OnNoRetryConnect(fn func()) event.Unsubscribe {
	return t.noRetryConnect.Subscribe(func(struct{}) { fn() })
}

// OnClose подписывает fn на закрытие соединения
func (t *Transport) OnClose(fn func()) event.Unsubscribe {
	return t.closeSubject.Subscribe(func(struct{}) { fn() })
}

// URL собирает адрес websocket с параметрами подключения
func (t *Transport) URL(opts ConnectOptions) (string, error) {
	u, err := url.Parse(t.baseURL + "/ws/")
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set(api.QueryAutoupdate, strconv.FormatBool(opts.EnableAutoupdates))
	if opts.ChangeID != nil {
		q.Set(api.QueryChangeID, strconv.FormatInt(*opts.ChangeID, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *Transport) dial(ctx context.Context, gen uint64) error {
	t.mu.Lock()
	opts := t.options
	t.mu.Unlock()

	target, err := t.URL(opts)
	if err != nil {
		return err
	}

	header := http.Header{}
	if t.tokens != nil {
		token, err := t.tokens.AccessToken(ctx)
		if err != nil {
			t.logger.Warn("Failed to get access token, connecting anonymously", "error", err)
		} else if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := t.dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.logger.Info("Websocket connect failed", "url", target, "error", err)
		t.handleFailure(gen)
		return fmt.Errorf("websocket connect failed: %w", err)
	}

	t.onOpen(conn, gen)
	return nil
}

func (t *Transport) onOpen(conn *websocket.Conn, gen uint64) {
	t.mu.Lock()
	if gen != t.generation || t.closing {
		t.mu.Unlock()
		// соединение устарело, пока шел dial
		closeGracefully(conn, t.settings.WriteTimeout)
		return
	}

	wasRetry := t.retries > 0
	t.retries = 0
	t.conn = conn
	t.setStateLocked(StateConnected)

	// Сначала отправляем накопленную очередь, в исходном порядке
	queue := t.queue
	t.queue = nil
	for i, msg := range queue {
		if err := t.writeLocked(conn, msg); err != nil {
			t.logger.Warn("Failed to flush queued messages", "error", err)
			t.queue = append(queue[i:], t.queue...)
			break
		}
	}
	t.mu.Unlock()

	t.logger.Info("Websocket connected", "retry", wasRetry, "flushed", len(queue))

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * t.settings.PingInterval))
	})
	_ = conn.SetReadDeadline(time.Now().Add(2 * t.settings.PingInterval))

	go t.readLoop(conn, gen)
	go t.pingLoop(conn, gen)

	if t.offline != nil {
		t.offline.GoOnline()
	}
	t.publishState()
	if wasRetry {
		t.retryReconnect.Publish(struct{}{})
	} else {
		t.noRetryConnect.Publish(struct{}{})
	}
	t.generalConnect.Publish(struct{}{})
}

func (t *Transport) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.onConnectionLost(conn, gen, err)
			return
		}

		raw, err := api.DecodeFrame(data, messageType == websocket.BinaryMessage)
		if err != nil {
			t.logger.Warn("Dropping undecodable frame", "error", err)
			continue
		}
		if err := t.validator.Validate(raw); err != nil {
			t.logger.Warn("Dropping invalid message", "error", err)
			continue
		}

		var msg api.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.logger.Warn("Dropping malformed message", "error", err)
			continue
		}
		t.dispatch(&msg)
	}
}

func (t *Transport) dispatch(msg *api.Message) {
	if msg.InResponse != "" {
		t.mu.Lock()
		ch, ok := t.responses[msg.InResponse]
		t.mu.Unlock()
		if ok {
			select {
			case ch <- msg:
			default:
				t.logger.Debug("Dropping duplicate response", "in_response", msg.InResponse)
			}
			return
		}
	}

	if msg.Type == api.TypeError {
		errResp := decodeError(msg.Content)
		t.logger.Warn("Server error", "code", errResp.Code, "message", errResp.Message)
		t.errorsSubject.Publish(errResp)
	}

	if !t.subscriptions.Publish(msg.Type, msg.Content) && msg.Type != api.TypeError {
		t.logger.Debug("No subscribers for message", "type", msg.Type)
	}
}

func (t *Transport) pingLoop(conn *websocket.Conn, gen uint64) {
	ticker := time.NewTicker(t.settings.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		t.mu.Lock()
		current := t.generation == gen && t.conn == conn
		t.mu.Unlock()
		if !current {
			return
		}

		deadline := time.Now().Add(t.settings.WriteTimeout)
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			return
		}
	}
}

func (t *Transport) onConnectionLost(conn *websocket.Conn, gen uint64, err error) {
	t.mu.Lock()
	if gen != t.generation || t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	conn.Close()

	if t.closing || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		// закрытие с кодом 1000 намеренное
		t.setStateLocked(StateDisconnected)
		t.mu.Unlock()

		t.logger.Info("Websocket closed", "reason", err)
		t.publishState()
		t.closeSubject.Publish(struct{}{})
		return
	}
	t.mu.Unlock()

	t.logger.Warn("Websocket connection lost", "error", err)
	t.closeSubject.Publish(struct{}{})
	t.handleFailure(gen)
}

// handleFailure планирует переподключение после неудачи
func (t *Transport) handleFailure(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || t.closing {
		t.mu.Unlock()
		return
	}

	if t.retries <= t.settings.OfflineThreshold {
		t.retries++
	}
	goOffline := t.retries > t.settings.OfflineThreshold && !t.settings.DisplayOnly

	delay := t.retryDelay()
	if t.retryTimer != nil {
		t.retryTimer.Stop()
	}
	t.retryTimer = time.AfterFunc(delay, func() {
		t.retry(gen)
	})
	t.setStateLocked(StateRetrying)
	retries := t.retries
	t.mu.Unlock()

	t.logger.Info("Reconnect scheduled", "delay", delay, "attempt", retries)
	t.publishState()
	if goOffline && t.offline != nil {
		t.offline.GoOfflineBecauseConnectionLost()
	}
}

func (t *Transport) retry(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || t.closing {
		t.mu.Unlock()
		return
	}
	t.retryTimer = nil
	t.setStateLocked(StateConnecting)
	t.mu.Unlock()

	t.publishState()
	ctx, cancel := context.WithTimeout(context.Background(), t.settings.HandshakeTimeout)
	defer cancel()
	_ = t.dial(ctx, gen)
}

func (t *Transport) retryDelay() time.Duration {
	lo, hi := t.settings.ReconnectMinDelay, t.settings.ReconnectMaxDelay
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

// detachLocked отвязывает текущее соединение и отменяет таймер
func (t *Transport) detachLocked() *websocket.Conn {
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	conn := t.conn
	t.conn = nil
	return conn
}

func (t *Transport) setStateLocked(state ConnectionState) bool {
	if t.state == state {
		return false
	}
	t.state = state
	return true
}

func (t *Transport) publishState() {
	t.stateSubject.Publish(t.State())
}

func (t *Transport) writeLocked(conn *websocket.Conn, msg *api.Message) error {
	data, binary, err := api.EncodeFrame(msg, t.settings.Compression)
	if err != nil {
		return err
	}

	messageType := websocket.TextMessage
	if binary {
		messageType = websocket.BinaryMessage
	}

	if err := conn.SetWriteDeadline(time.Now().Add(t.settings.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, data)
}

func closeGracefully(conn *websocket.Conn, timeout time.Duration) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
	conn.Close()
}

func decodeError(content json.RawMessage) *ErrorResponse {
	var errContent api.ErrorContent
	if err := json.Unmarshal(content, &errContent); err != nil {
		return &ErrorResponse{Message: fmt.Sprintf("malformed error: %s", err)}
	}
	return &ErrorResponse{Code: errContent.Code, Message: errContent.Message}
}

// AsErrorResponse извлекает *ErrorResponse из цепочки ошибок
func AsErrorResponse(err error) (*ErrorResponse, bool) {
	var resp *ErrorResponse
	if errors.As(err, &resp) {
		return resp, true
	}
	return nil, false
}
