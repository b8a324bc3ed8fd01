// Package timetravel показывает состояние данных на момент в прошлом.
// Пока открыта точка истории, соединение закрыто, а запись в локальное
// хранилище запрещена.
package timetravel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iudanet/meetsync/internal/client/datastore"
	"github.com/iudanet/meetsync/internal/client/status"
	"github.com/iudanet/meetsync/internal/models"
)

//go:generate moq -out history_mock.go . HistoryClient

// HistoryClient загружает записи истории с сервера
type HistoryClient interface {
	HistoryData(ctx context.Context, timestamp int64) ([]models.HistoryRecord, error)
}

// Transport закрывается на время просмотра истории
type Transport interface {
	Close()
}

// Rebooter перезагружает сессию после выхода из истории
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// Service переключает хранилище между живыми данными и точкой истории
type Service struct {
	store     *datastore.Store
	client    HistoryClient
	transport Transport
	session   Rebooter
	status    *status.Service
	logger    *slog.Logger
	mu        sync.Mutex
}

// New создает сервис
func New(store *datastore.Store, client HistoryClient, transport Transport, session Rebooter,
	st *status.Service, logger *slog.Logger,
) *Service {
	return &Service{
		store:     store,
		client:    client,
		transport: transport,
		session:   session,
		status:    st,
		logger:    logger,
	}
}

// IsActive проверяет, открыта ли точка истории
func (s *Service) IsActive() bool {
	return s.status.IsInHistoryMode()
}

// CurrentHistory возвращает открытую точку истории или nil
func (s *Service) CurrentHistory() *models.History {
	return s.status.CurrentHistory()
}

// LoadHistoryPoint заменяет содержимое хранилища состоянием на момент
// h.Timestamp. Повторный вызов заменяет открытую точку. Если загрузить
// историю не удалось, живые данные восстанавливаются.
func (s *Service) LoadHistoryPoint(ctx context.Context, h models.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// автообновления не должны смешиваться с историческими данными
	s.transport.Close()
	s.status.EnterHistoryMode(h)

	records, err := s.client.HistoryData(ctx, h.Timestamp)
	if err != nil {
		if resumeErr := s.resumeLocked(ctx); resumeErr != nil {
			s.logger.Error("Failed to resume after history error", "error", resumeErr)
		}
		return fmt.Errorf("failed to load history point %d: %w", h.Timestamp, err)
	}

	elements := s.replay(records)
	if err := s.store.Set(ctx, 0, elements...); err != nil {
		return fmt.Errorf("failed to apply history point: %w", err)
	}

	s.logger.Info("History point loaded",
		"timestamp", h.Timestamp,
		"records", len(records),
		"elements", len(elements),
	)
	return nil
}

// replay применяет записи по порядку и возвращает итоговые объекты
func (s *Service) replay(records []models.HistoryRecord) []models.Element {
	state := make(map[models.ElementID]models.Element)
	listed := make(map[models.ElementID]bool)
	var order []models.ElementID

	for _, r := range records {
		collection, id, err := models.ParseElementID(r.ElementID)
		if err != nil {
			s.logger.Warn("Skipping history record", "element_id", r.ElementID, "error", err)
			continue
		}
		key := models.NewElementID(collection, id)

		if r.IsDeletion() {
			delete(state, key)
			continue
		}

		e, err := models.NewElement(collection, r.FullData)
		if err != nil {
			s.logger.Warn("Skipping history record", "element_id", r.ElementID, "error", err)
			continue
		}
		if !listed[key] {
			listed[key] = true
			order = append(order, key)
		}
		state[key] = e
	}

	elements := make([]models.Element, 0, len(state))
	for _, key := range order {
		if e, ok := state[key]; ok {
			elements = append(elements, e)
		}
	}
	return elements
}

// ResumeTime закрывает точку истории и перезагружает сессию, которая
// восстанавливает живые данные из локального снимка и подключается заново.
func (s *Service) ResumeTime(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.IsInHistoryMode() {
		return nil
	}
	return s.resumeLocked(ctx)
}

func (s *Service) resumeLocked(ctx context.Context) error {
	s.status.LeaveHistoryMode()
	s.logger.Info("Leaving history mode")

	if err := s.session.Reboot(ctx); err != nil {
		return fmt.Errorf("failed to reboot after history: %w", err)
	}
	return nil
}
