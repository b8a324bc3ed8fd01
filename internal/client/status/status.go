// Package status хранит глобальное состояние клиента, которое читают
// несколько сервисов: активен ли режим просмотра истории.
package status

import (
	"sync"

	"github.com/iudanet/meetsync/internal/event"
	"github.com/iudanet/meetsync/internal/models"
)

// Service флаг режима истории
type Service struct {
	history *models.History
	changes *event.Subject[bool]
	mu      sync.RWMutex
}

// NewService создает сервис в живом режиме
func NewService() *Service {
	return &Service{changes: event.NewSubject[bool]()}
}

// EnterHistoryMode включает режим истории для точки h
func (s *Service) EnterHistoryMode(h models.History) {
	s.mu.Lock()
	s.history = &h
	s.mu.Unlock()

	s.changes.Publish(true)
}

// LeaveHistoryMode возвращает живой режим
func (s *Service) LeaveHistoryMode() {
	s.mu.Lock()
	was := s.history != nil
	s.history = nil
	s.mu.Unlock()

	if was {
		s.changes.Publish(false)
	}
}

// IsInHistoryMode реализует storage.HistoryMode
func (s *Service) IsInHistoryMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history != nil
}

// CurrentHistory возвращает активную точку истории или nil
func (s *Service) CurrentHistory() *models.History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.history == nil {
		return nil
	}
	h := *s.history
	return &h
}

// OnHistoryModeChange подписывает fn на включение и выключение режима
func (s *Service) OnHistoryModeChange(fn func(active bool)) event.Unsubscribe {
	return s.changes.Subscribe(fn)
}
