// Package autoupdate переводит пакеты autoupdate, пришедшие по websocket,
// в изменения локального хранилища и следит за непрерывностью потока
// change id.
package autoupdate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/meetsync/internal/client/datastore"
	"github.com/iudanet/meetsync/internal/client/websocket"
	"github.com/iudanet/meetsync/internal/event"
	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/pkg/api"
)

// ErrMalformedBatch пакет не удалось разобрать, он пропущен целиком
var ErrMalformedBatch = errors.New("malformed autoupdate batch")

//go:generate moq -out transport_mock.go . Transport

// Transport часть websocket транспорта, нужная сервису
type Transport interface {
	Subscribe(msgType string, fn func(content json.RawMessage)) event.Unsubscribe
	OnError(fn func(*websocket.ErrorResponse)) event.Unsubscribe
	Send(msgType string, content any, id ...string) (string, error)
}

// Registry список известных клиенту коллекций
type Registry interface {
	IsCollectionRegistered(collection string) bool
}

// HistoryMode сообщает, открыта ли точка истории
type HistoryMode interface {
	IsInHistoryMode() bool
}

// Action решение по входящему пакету
type Action int

const (
	ActionReset   Action = iota // полная замена содержимого хранилища
	ActionDrop                  // пакет уже применен
	ActionApply                 // инкрементальное применение
	ActionRequest               // пропущены изменения, нужен запрос
)

func (a Action) String() string {
	switch a {
	case ActionReset:
		return "reset"
	case ActionDrop:
		return "drop"
	case ActionApply:
		return "apply"
	case ActionRequest:
		return "request"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decide выбирает действие для пакета при текущем watermark хранилища
func Decide(au *api.Autoupdate, maxChangeID int64) Action {
	switch {
	case au.AllData || au.FromChangeID == 0:
		return ActionReset
	case au.ToChangeID <= maxChangeID:
		return ActionDrop
	case au.FromChangeID <= maxChangeID+1:
		return ActionApply
	default:
		return ActionRequest
	}
}

// Option настройка сервиса
type Option func(*Service)

// WithDelay включает накопление пакетов на delay
func WithDelay(delay time.Duration) Option {
	return func(s *Service) { s.delay = delay }
}

// WithRegistry включает фильтрацию неизвестных коллекций
func WithRegistry(r Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithHistoryMode отключает применение пакетов, пока открыта точка истории
func WithHistoryMode(h HistoryMode) Option {
	return func(s *Service) { s.history = h }
}

// Service прием autoupdate
type Service struct {
	store     *datastore.Store
	transport Transport
	registry  Registry
	history   HistoryMode
	throttle  *Throttle
	logger    *slog.Logger
	unsubs    []event.Unsubscribe
	delay     time.Duration
	// mu сериализует применение пакетов и DoFullUpdate
	mu          sync.Mutex
	lastAllData bool
	subMu       sync.Mutex
}

// NewService создает сервис приема autoupdate
func NewService(store *datastore.Store, transport Transport, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		transport: transport,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.throttle = NewThrottle(s.delay, s.inject, logger)
	return s
}

// Start подписывается на сообщения транспорта. Повторный вызов
// пересоздает подписки.
func (s *Service) Start() {
	s.Stop()

	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.unsubs = append(s.unsubs,
		s.transport.Subscribe(api.TypeAutoupdate, s.onMessage),
		s.transport.OnError(func(e *websocket.ErrorResponse) {
			if !e.IsChangeIDTooHigh() {
				return
			}
			s.logger.Warn("Server reports change id too high, requesting full update")
			if err := s.DoFullUpdate(context.Background()); err != nil {
				s.logger.Error("Full update failed", "error", err)
			}
		}),
	)
}

// Stop снимает подписки и отбрасывает накопленные пакеты
func (s *Service) Stop() {
	s.subMu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.subMu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	s.throttle.Discard()
}

// Discard отбрасывает накопленные пакеты
func (s *Service) Discard() {
	s.throttle.Discard()
}

// DisableUntil пропускает пакеты без задержки, пока не придет changeID
func (s *Service) DisableUntil(changeID int64) {
	s.throttle.DisableUntil(changeID)
}

// Flush применяет накопленные пакеты немедленно
func (s *Service) Flush() {
	s.throttle.Flush()
}

func (s *Service) onMessage(content json.RawMessage) {
	var au api.Autoupdate
	if err := json.Unmarshal(content, &au); err != nil {
		s.logger.Warn("Skipping undecodable autoupdate", "error", err)
		return
	}
	s.throttle.Push(&au)
}

func (s *Service) inject(au *api.Autoupdate) {
	if err := s.Handle(context.Background(), au); err != nil {
		s.logger.Error("Failed to apply autoupdate", "from", au.FromChangeID, "to", au.ToChangeID, "error", err)
	}
}

// Handle применяет один пакет согласно его change id.
// Пакет применяется целиком или не применяется вовсе.
func (s *Service) Handle(ctx context.Context, au *api.Autoupdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// живые данные не попадают в исторический срез, после выхода
	// из истории сессия загружается заново
	if s.history != nil && s.history.IsInHistoryMode() {
		s.logger.Debug("Dropping autoupdate in history mode", "from", au.FromChangeID, "to", au.ToChangeID)
		return nil
	}

	s.lastAllData = au.AllData
	maxChangeID := s.store.MaxChangeID()
	action := Decide(au, maxChangeID)

	switch action {
	case ActionDrop:
		s.logger.Debug("Ignoring autoupdate behind local change id",
			"change_id", maxChangeID, "from", au.FromChangeID, "to", au.ToChangeID)
		return nil

	case ActionRequest:
		s.logger.Info("Autoupdate in the future, requesting missed changes",
			"change_id", maxChangeID, "from", au.FromChangeID, "to", au.ToChangeID)
		return s.requestChanges(ctx, maxChangeID)
	}

	elements, err := s.elements(au)
	if err != nil {
		s.logger.Warn("Skipping malformed autoupdate", "from", au.FromChangeID, "to", au.ToChangeID, "error", err)
		return err
	}

	if action == ActionReset {
		s.logger.Info("Applying full data", "to", au.ToChangeID, "elements", len(elements))
		return s.store.Set(ctx, au.ToChangeID, elements...)
	}

	slot, err := s.store.BeginUpdate(ctx)
	if err != nil {
		return err
	}
	for collection, ids := range au.Deleted {
		if !s.known(collection) {
			continue
		}
		slot.Remove(collection, ids...)
	}
	slot.Add(elements...)

	s.logger.Debug("Applying autoupdate", "from", au.FromChangeID, "to", au.ToChangeID, "ops", slot.Len())
	return slot.Commit(ctx, au.ToChangeID)
}

func (s *Service) elements(au *api.Autoupdate) ([]models.Element, error) {
	var elements []models.Element
	for _, collection := range au.Collections() {
		objects := au.Changed[collection]
		if len(objects) == 0 {
			continue
		}
		if !s.known(collection) {
			s.logger.Error("Unregistered collection, ignoring it", "collection", collection)
			continue
		}
		for _, raw := range objects {
			el, err := models.NewElement(collection, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrMalformedBatch, collection, err)
			}
			elements = append(elements, el)
		}
	}
	return elements, nil
}

func (s *Service) known(collection string) bool {
	return s.registry == nil || s.registry.IsCollectionRegistered(collection)
}

// RequestChanges запрашивает у сервера изменения, которых нет в хранилище
func (s *Service) RequestChanges(ctx context.Context) error {
	return s.requestChanges(ctx, s.store.MaxChangeID())
}

func (s *Service) requestChanges(ctx context.Context, maxChangeID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	changeID := int64(0)
	if maxChangeID > 0 {
		changeID = maxChangeID + 1
	}
	if _, err := s.transport.Send(api.TypeGetElements, api.GetElementsRequest{ChangeID: changeID}); err != nil {
		return fmt.Errorf("failed to request changes from %d: %w", changeID, err)
	}
	s.logger.Debug("Requested changes", "change_id", changeID)
	return nil
}

// DoFullUpdate очищает хранилище и запрашивает все данные заново.
// Если последний пакет уже содержал все данные, ничего не делает.
func (s *Service) DoFullUpdate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastAllData {
		s.logger.Info("Full update requested, skipping: last message already contained all data")
		return nil
	}

	s.logger.Info("Requesting full update")
	s.throttle.Discard()
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear store for full update: %w", err)
	}
	return s.requestChanges(ctx, 0)
}
