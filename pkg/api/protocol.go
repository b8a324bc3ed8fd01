package api

import (
	"encoding/json"
	"fmt"
)

// Типы сообщений websocket протокола
const (
	TypeAutoupdate         = "autoupdate"
	TypeNotify             = "notify"
	TypeGetElements        = "getElements"
	TypeListenToProjectors = "listenToProjectors"
	TypePing               = "ping"
	TypePong               = "pong"
	TypeError              = "error"
	TypeConstants          = "constants"
)

// Коды ошибок, которые сервер присылает в сообщении типа "error"
const (
	ErrorCodeNotAuthorized   = 100
	ErrorCodeChangeIDTooHigh = 101
	ErrorCodeWrongFormat     = 102
)

// Параметры URL websocket соединения
const (
	QueryAutoupdate = "autoupdate"
	QueryChangeID   = "change_id"
)

// NotifySWCheckForUpdate имя notify, рассылку которого сервер разрешает только superadmin
const NotifySWCheckForUpdate = "swCheckForUpdate"

// MessageIDLength длина идентификатора сообщения
const MessageIDLength = 8

// Message конверт websocket сообщения
type Message struct {
	Type       string          `json:"type"`                  // тип сообщения
	Content    json.RawMessage `json:"content"`               // содержимое, зависит от типа
	ID         string          `json:"id,omitempty"`          // идентификатор для корреляции
	InResponse string          `json:"in_response,omitempty"` // ID сообщения, на которое это ответ
}

// NewMessage кодирует content и собирает конверт
func NewMessage(msgType string, content any, id string) (*Message, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s content: %w", msgType, err)
	}
	return &Message{Type: msgType, Content: raw, ID: id}, nil
}

// ErrorContent содержимое сообщения об ошибке
type ErrorContent struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// NotifyRequest исходящее notify сообщение.
// Users либо список ID, либо true для всех пользователей.
type NotifyRequest struct {
	Content       json.RawMessage `json:"content"`                 // произвольное содержимое
	Users         any             `json:"users,omitempty"`         // []int или true
	Name          string          `json:"name"`                    // логическое имя канала
	ReplyChannels []string        `json:"replyChannels,omitempty"` // каналы для ответа
}

// NotifyMessage входящее notify сообщение
type NotifyMessage struct {
	Content           json.RawMessage `json:"content"`           // содержимое
	Name              string          `json:"name"`              // логическое имя канала
	SenderChannelName string          `json:"senderChannelName"` // канал отправителя
	SenderUserID      int             `json:"senderUserId"`      // ID отправителя, 0 - анонимный
}

// ConstantsContent набор серверных констант
type ConstantsContent map[string]json.RawMessage
