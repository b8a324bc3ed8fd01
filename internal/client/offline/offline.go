// Package offline отслеживает, работает ли клиент без связи с сервером,
// и публикует уведомления для пользователя.
package offline

import (
	"log/slog"
	"sync"

	"github.com/iudanet/meetsync/internal/event"
)

// Reason причина перехода в offline
type Reason string

const (
	ReasonConnectionLost Reason = "connection_lost" // повторные попытки переподключения не удались
	ReasonWhoAmIFailed   Reason = "whoami_failed"   // не удалось проверить пользователя
)

// NoticeKind тип уведомления
type NoticeKind string

const (
	NoticeOffline          NoticeKind = "offline"
	NoticeTooLittleStorage NoticeKind = "too_little_storage"
)

// Notice уведомление для пользователя. Уведомление без Dismiss остается
// на экране, пока его не закроют.
type Notice struct {
	Kind    NoticeKind
	Message string
	Dismiss bool // true - закрыть ранее показанное уведомление этого типа
}

// State текущее состояние связи
type State struct {
	Reason  Reason
	Offline bool
}

// Service хранит offline состояние
type Service struct {
	logger  *slog.Logger
	changes *event.Subject[State]
	notices *event.Subject[Notice]
	state   State
	mu      sync.Mutex
}

// NewService создает сервис в online состоянии
func NewService(logger *slog.Logger) *Service {
	return &Service{
		logger:  logger,
		changes: event.NewSubject[State](),
		notices: event.NewSubject[Notice](),
	}
}

// GoOfflineBecauseConnectionLost вызывается транспортом после серии неудачных переподключений
func (s *Service) GoOfflineBecauseConnectionLost() {
	s.goOffline(ReasonConnectionLost)
}

// GoOfflineBecauseFailedWhoAmI вызывается, если whoami не дошел до сервера
func (s *Service) GoOfflineBecauseFailedWhoAmI() {
	s.goOffline(ReasonWhoAmIFailed)
}

func (s *Service) goOffline(reason Reason) {
	s.mu.Lock()
	if s.state.Offline {
		s.mu.Unlock()
		return
	}
	s.state = State{Offline: true, Reason: reason}
	state := s.state
	s.mu.Unlock()

	s.logger.Warn("Going offline", "reason", reason)
	s.changes.Publish(state)
	s.notices.Publish(Notice{
		Kind:    NoticeOffline,
		Message: "Offline mode. Changes are not saved.",
	})
}

// GoOnline возвращает online состояние
func (s *Service) GoOnline() {
	s.mu.Lock()
	if !s.state.Offline {
		s.mu.Unlock()
		return
	}
	s.state = State{}
	s.mu.Unlock()

	s.logger.Info("Back online")
	s.changes.Publish(State{})
	s.notices.Publish(Notice{Kind: NoticeOffline, Dismiss: true})
}

// IsOffline проверяет offline состояние
func (s *Service) IsOffline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Offline
}

// State возвращает текущее состояние
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ShowNotice публикует произвольное уведомление
func (s *Service) ShowNotice(n Notice) {
	s.notices.Publish(n)
}

// OnChange подписывает fn на смену состояния
func (s *Service) OnChange(fn func(State)) event.Unsubscribe {
	return s.changes.Subscribe(fn)
}

// OnNotice подписывает fn на уведомления
func (s *Service) OnNotice(fn func(Notice)) event.Unsubscribe {
	return s.notices.Subscribe(fn)
}
