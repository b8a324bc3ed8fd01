// Package notify отправляет и принимает короткоживущие сообщения между
// клиентами через websocket соединение.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iudanet/meetsync/internal/event"
	"github.com/iudanet/meetsync/pkg/api"
)

var (
	// ErrConflictingRecipients сообщение адресовано одновременно всем и конкретным пользователям
	ErrConflictingRecipients = errors.New("notify: all users and explicit user ids are mutually exclusive")
	// ErrNoRecipients пустой список адресатов
	ErrNoRecipients = errors.New("notify: at least one recipient is required")
)

//go:generate moq -out transport_mock.go . Transport

// Transport часть websocket транспорта, нужная для notify
type Transport interface {
	Send(msgType string, content any, id ...string) (string, error)
	Subscribe(msgType string, fn func(content json.RawMessage)) event.Unsubscribe
}

// OperatorID возвращает ID текущего пользователя, 0 для анонимного
type OperatorID interface {
	UserID() int
}

// Recipients адресаты сообщения. Пустое значение означает, что сервер
// решает сам (сообщение уйдет только в ReplyChannels).
type Recipients struct {
	UserIDs []int
	All     bool
}

// Message входящее сообщение
type Message struct {
	Name              string
	SenderChannelName string
	Content           json.RawMessage
	SenderUserID      int
	// SendByThisUser true, если сообщение отправил текущий пользователь
	SendByThisUser bool
}

// Decode декодирует содержимое сообщения в v
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Content, v); err != nil {
		return fmt.Errorf("failed to decode notify %s: %w", m.Name, err)
	}
	return nil
}

// Service канал notify сообщений
type Service struct {
	transport   Transport
	operator    OperatorID
	logger      *slog.Logger
	all         *event.Subject[Message]
	named       *event.Topics[string, Message]
	unsubscribe event.Unsubscribe
}

// New создает сервис и подписывает его на входящие notify сообщения
func New(transport Transport, operator OperatorID, logger *slog.Logger) *Service {
	s := &Service{
		transport: transport,
		operator:  operator,
		logger:    logger,
		all:       event.NewSubject[Message](),
		named:     event.NewTopics[string, Message](),
	}
	s.unsubscribe = transport.Subscribe(api.TypeNotify, s.handle)
	return s
}

// Close отписывает сервис от транспорта
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Send отправляет сообщение name. Если соединения нет, сообщение
// ставится в очередь транспорта и уйдет после переподключения.
func (s *Service) Send(name string, content any, to Recipients, replyChannels ...string) error {
	if to.All && len(to.UserIDs) > 0 {
		return ErrConflictingRecipients
	}

	raw, err := marshalContent(content)
	if err != nil {
		return err
	}

	req := api.NotifyRequest{
		Name:          name,
		Content:       raw,
		ReplyChannels: replyChannels,
	}
	switch {
	case to.All:
		req.Users = true
	case len(to.UserIDs) > 0:
		req.Users = to.UserIDs
	}

	if _, err := s.transport.Send(api.TypeNotify, req); err != nil {
		return fmt.Errorf("failed to send notify %s: %w", name, err)
	}
	s.logger.Debug("Notify sent", "name", name, "all", to.All, "users", to.UserIDs, "channels", replyChannels)
	return nil
}

// SendToAllUsers отправляет сообщение всем пользователям онлайн
func (s *Service) SendToAllUsers(name string, content any) error {
	return s.Send(name, content, Recipients{All: true})
}

// SendToUsers отправляет сообщение всем клиентам перечисленных пользователей
func (s *Service) SendToUsers(name string, content any, users ...int) error {
	if len(users) == 0 {
		return ErrNoRecipients
	}
	return s.Send(name, content, Recipients{UserIDs: users})
}

// SendToChannels отправляет сообщение в перечисленные каналы
func (s *Service) SendToChannels(name string, content any, channels ...string) error {
	if len(channels) == 0 {
		return ErrNoRecipients
	}
	return s.Send(name, content, Recipients{}, channels...)
}

// Subscribe подписывает fn на все входящие сообщения
func (s *Service) Subscribe(fn func(Message)) event.Unsubscribe {
	return s.all.Subscribe(fn)
}

// SubscribeMessage подписывает fn на сообщения с именем name
func (s *Service) SubscribeMessage(name string, fn func(Message)) event.Unsubscribe {
	return s.named.Subscribe(name, fn)
}

func (s *Service) handle(content json.RawMessage) {
	var in api.NotifyMessage
	if err := json.Unmarshal(content, &in); err != nil {
		s.logger.Error("Unknown notify message", "error", err)
		return
	}

	msg := Message{
		Name:              in.Name,
		Content:           in.Content,
		SenderChannelName: in.SenderChannelName,
		SenderUserID:      in.SenderUserID,
		SendByThisUser:    in.SenderUserID == s.operator.UserID(),
	}
	s.all.Publish(msg)
	s.named.Publish(msg.Name, msg)
}

func marshalContent(content any) (json.RawMessage, error) {
	if raw, ok := content.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notify content: %w", err)
	}
	return raw, nil
}
