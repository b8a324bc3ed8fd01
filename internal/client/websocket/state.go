package websocket

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/iudanet/meetsync/pkg/api"
)

// ConnectionState состояние соединения
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateRetrying     ConnectionState = "retrying"
)

// ErrClosed возвращается, если транспорт закрыт явно
var ErrClosed = errors.New("websocket transport closed")

// ErrorResponse ошибка, которую сервер прислал сообщением типа "error"
type ErrorResponse struct {
	Message string
	Code    int
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// IsNotAuthorized проверяет код NOT_AUTHORIZED
func (e *ErrorResponse) IsNotAuthorized() bool { return e.Code == api.ErrorCodeNotAuthorized }

// IsChangeIDTooHigh проверяет код CHANGE_ID_TOO_HIGH
func (e *ErrorResponse) IsChangeIDTooHigh() bool { return e.Code == api.ErrorCodeChangeIDTooHigh }

const idLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewMessageID генерирует случайный идентификатор сообщения из латинских букв
func NewMessageID() string {
	b := make([]byte, api.MessageIDLength)
	for i := range b {
		b[i] = idLetters[rand.IntN(len(idLetters))]
	}
	return string(b)
}
