package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/meetsync/pkg/api"
)

// client одно websocket соединение
type client struct {
	hub        *Hub
	conn       *websocket.Conn
	logger     *slog.Logger
	send       chan *api.Message
	channel    string
	userID     int
	autoupdate bool
	closeOnce  sync.Once
}

// enqueue ставит сообщение в очередь отправки.
// Клиент, который не успевает читать, отключается.
func (c *client) enqueue(msg *api.Message) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer is full, dropping client")
		c.closeWith(websocket.ClosePolicyViolation, "too slow")
	}
}

// closeWith отправляет close кадр и закрывает соединение
func (c *client) closeWith(code int, text string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, text)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.hub.settings.WriteTimeout))
		_ = c.conn.Close()
	})
}

// writeDirect пишет сообщение в обход очереди, до запуска writePump
func (c *client) writeDirect(msg *api.Message) {
	if err := c.write(msg); err != nil {
		c.logger.Debug("failed to write message", slog.Any("error", err))
	}
}

func (c *client) write(msg *api.Message) error {
	data, binary, err := api.EncodeFrame(msg, c.hub.settings.Compression)
	if err != nil {
		return err
	}
	messageType := websocket.TextMessage
	if binary {
		messageType = websocket.BinaryMessage
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.settings.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *client) writePump(ctx context.Context) error {
	defer c.conn.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return err
			}
		}
	}
}

func (c *client) readPump(ctx context.Context) error {
	c.conn.SetReadLimit(maxMessageSize)
	c.extendReadDeadline()
	c.conn.SetPingHandler(func(data string) error {
		c.extendReadDeadline()
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.hub.settings.WriteTimeout))
		var netErr net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil
		}
		return err
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errConnectionClosed
			}
			return err
		}
		c.extendReadDeadline()

		raw, err := api.DecodeFrame(data, messageType == websocket.BinaryMessage)
		if err != nil {
			c.enqueue(errorMessage(api.ErrorCodeWrongFormat, err.Error(), ""))
			continue
		}
		c.hub.handleMessage(ctx, c, raw)
	}
}

func (c *client) extendReadDeadline() {
	if c.hub.settings.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.settings.ReadTimeout))
	}
}

func errorMessage(code int, message, inResponse string) *api.Message {
	content, _ := json.Marshal(api.ErrorContent{Code: code, Message: message})
	return &api.Message{Type: api.TypeError, Content: content, InResponse: inResponse}
}
