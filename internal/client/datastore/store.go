// Package datastore содержит локальное хранилище синхронизируемых объектов.
//
// Все изменения проходят через слот обновления (UpdateSlot): одновременно
// открыт только один слот, изменения слота применяются атомарно под
// блокировкой записи, поэтому читатели никогда не видят частично
// примененный пакет. Уведомления рассылаются синхронно после применения,
// в порядке коммитов.
package datastore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/iudanet/meetsync/internal/client/offline"
	"github.com/iudanet/meetsync/internal/client/storage"
	"github.com/iudanet/meetsync/internal/event"
	"github.com/iudanet/meetsync/internal/models"
)

// NoticeSink принимает уведомления для пользователя
type NoticeSink interface {
	ShowNotice(n offline.Notice)
}

// Deleted информация об удаленном объекте
type Deleted struct {
	Collection string
	ID         int
}

// Update итог одного коммита: какие объекты изменились и удалились
type Update struct {
	Changed  map[string][]int // коллекция -> ID измененных объектов
	Deleted  map[string][]int // коллекция -> ID удаленных объектов
	ChangeID int64            // watermark после коммита
	Reset    bool             // хранилище было полностью заменено
}

// Touches проверяет, затронул ли коммит объект collection:id
func (u Update) Touches(collection string, id int) bool {
	return slices.Contains(u.Changed[collection], id) || slices.Contains(u.Deleted[collection], id)
}

// TouchesCollection проверяет, затронул ли коммит коллекцию
func (u Update) TouchesCollection(collection string) bool {
	return len(u.Changed[collection]) > 0 || len(u.Deleted[collection]) > 0
}

// Store локальное хранилище объектов
type Store struct {
	persist     storage.SnapshotStorage
	history     storage.HistoryMode
	notices     NoticeSink
	logger      *slog.Logger
	collections map[string]map[int]models.Element
	slot        chan struct{}
	changes     *event.Subject[models.Element]
	byColl      *event.Topics[string, models.Element]
	deletes     *event.Subject[Deleted]
	modified    *event.Subject[Update]
	cleared     *event.Subject[struct{}]
	filters     *filterCache
	// pending уведомления коммитов в порядке коммитов
	pending     []func()
	maxChangeID int64
	mu          sync.RWMutex
	pubMu       sync.Mutex
	draining    bool
}

// NewStore создает пустое хранилище.
// persist может быть nil, тогда хранилище работает только в памяти.
func NewStore(persist storage.SnapshotStorage, history storage.HistoryMode, notices NoticeSink, logger *slog.Logger) *Store {
	return &Store{
		persist:     persist,
		history:     history,
		notices:     notices,
		logger:      logger,
		collections: make(map[string]map[int]models.Element),
		slot:        make(chan struct{}, 1),
		changes:     event.NewSubject[models.Element](),
		byColl:      event.NewTopics[string, models.Element](),
		deletes:     event.NewSubject[Deleted](),
		modified:    event.NewSubject[Update](),
		cleared:     event.NewSubject[struct{}](),
		filters:     newFilterCache(),
	}
}

// MaxChangeID возвращает максимальный примененный change id
func (s *Store) MaxChangeID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxChangeID
}

// Get возвращает объект по коллекции и ID
func (s *Store) Get(collection string, id int) (models.Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.collections[collection][id]
	if !ok {
		return models.Element{}, false
	}
	return e.Clone(), true
}

// Exists проверяет наличие объекта
func (s *Store) Exists(collection string, id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection][id]
	return ok
}

// GetMany возвращает найденные объекты в порядке ids, отсутствующие пропускаются
func (s *Store) GetMany(collection string, ids []int) []models.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Element, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.collections[collection][id]; ok {
			result = append(result, e.Clone())
		}
	}
	return result
}

// GetAll возвращает все объекты коллекции, отсортированные по ID
func (s *Store) GetAll(collection string) []models.Element {
	return s.Filter(collection, nil)
}

// Filter возвращает объекты коллекции, для которых predicate вернул true.
// nil predicate пропускает все объекты.
func (s *Store) Filter(collection string, predicate func(models.Element) bool) []models.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects := s.collections[collection]
	result := make([]models.Element, 0, len(objects))
	for _, e := range objects {
		if predicate == nil || predicate(e) {
			result = append(result, e.Clone())
		}
	}
	slices.SortFunc(result, func(a, b models.Element) int { return cmp.Compare(a.ID, b.ID) })
	return result
}

// Count возвращает количество объектов в коллекции
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Collections возвращает отсортированный список непустых коллекций
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name, objects := range s.collections {
		if len(objects) > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// OnChange подписывает fn на каждый добавленный или обновленный объект
func (s *Store) OnChange(fn func(models.Element)) event.Unsubscribe {
	return s.changes.Subscribe(fn)
}

// OnCollectionChange подписывает fn на изменения объектов одной коллекции
func (s *Store) OnCollectionChange(collection string, fn func(models.Element)) event.Unsubscribe {
	return s.byColl.Subscribe(collection, fn)
}

// OnDelete подписывает fn на удаление объектов
func (s *Store) OnDelete(fn func(Deleted)) event.Unsubscribe {
	return s.deletes.Subscribe(fn)
}

// OnModified подписывает fn на завершение каждого коммита.
// Уведомления приходят в порядке коммитов после освобождения слота записи,
// поэтому подписчик может сам писать в хранилище.
func (s *Store) OnModified(fn func(Update)) event.Unsubscribe {
	return s.modified.Subscribe(fn)
}

// OnClear подписывает fn на полную очистку хранилища
func (s *Store) OnClear(fn func()) event.Unsubscribe {
	return s.cleared.Subscribe(func(struct{}) { fn() })
}

// Add добавляет или заменяет объекты. Watermark не меняется.
func (s *Store) Add(ctx context.Context, elements ...models.Element) error {
	slot, err := s.BeginUpdate(ctx)
	if err != nil {
		return err
	}
	slot.Add(elements...)
	return slot.Commit(ctx, 0)
}

// Remove удаляет объекты коллекции. Отсутствующие ID игнорируются.
func (s *Store) Remove(ctx context.Context, collection string, ids ...int) error {
	slot, err := s.BeginUpdate(ctx)
	if err != nil {
		return err
	}
	slot.Remove(collection, ids...)
	return slot.Commit(ctx, 0)
}

// Set полностью заменяет содержимое хранилища и устанавливает watermark.
// Set без объектов очищает хранилище в памяти.
func (s *Store) Set(ctx context.Context, changeID int64, elements ...models.Element) error {
	slot, err := s.BeginUpdate(ctx)
	if err != nil {
		return err
	}
	slot.reset = true
	slot.Add(elements...)
	return slot.Commit(ctx, changeID)
}

// Clear очищает хранилище и его сохраненную копию.
// Используется при логауте и смене пользователя.
func (s *Store) Clear(ctx context.Context) error {
	slot, err := s.BeginUpdate(ctx)
	if err != nil {
		return err
	}
	defer slot.release()

	s.mu.Lock()
	s.collections = make(map[string]map[int]models.Element)
	s.maxChangeID = 0
	s.mu.Unlock()

	s.logger.Debug("Store cleared")

	var clearErr error
	if !s.persistenceDisabled() {
		if err := s.persist.ClearSnapshot(ctx); err != nil {
			clearErr = fmt.Errorf("failed to clear persisted snapshot: %w", err)
		}
	}

	s.notify(slot.release, func() { s.cleared.Publish(struct{}{}) })
	return clearErr
}

// notify ставит уведомления коммита в очередь, освобождает слот записи и
// доставляет очередь, если ее еще никто не разбирает. Запись в хранилище
// из подписчика не блокируется: ее уведомления придут после текущих.
func (s *Store) notify(release func(), fn func()) {
	s.pubMu.Lock()
	s.pending = append(s.pending, fn)
	drain := !s.draining
	s.draining = true
	s.pubMu.Unlock()

	release()
	if !drain {
		return
	}

	for {
		s.pubMu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.pubMu.Unlock()
			return
		}
		next := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.pubMu.Unlock()

		next()
	}
}

// InitFromStorage восстанавливает хранилище из сохраненного снимка и
// возвращает его change id. Нечитаемый снимок удаляется, хранилище
// остается пустым.
func (s *Store) InitFromStorage(ctx context.Context) (int64, error) {
	if s.persist == nil {
		return s.MaxChangeID(), nil
	}

	snapshot, err := s.persist.LoadSnapshot(ctx)
	if err != nil {
		s.logger.Warn("Failed to restore store from storage, clearing", "error", err)
		if clearErr := s.Clear(ctx); clearErr != nil {
			return 0, fmt.Errorf("failed to clear store after restore error: %w", errors.Join(err, clearErr))
		}
		return 0, nil
	}

	slot, err := s.BeginUpdate(ctx)
	if err != nil {
		return 0, err
	}
	slot.reset = true
	slot.skipPersist = true
	slot.Add(snapshot.Elements...)
	if err := slot.Commit(ctx, snapshot.MaxChangeID); err != nil {
		return 0, err
	}

	s.logger.Info("Store restored from storage",
		"elements", len(snapshot.Elements),
		"change_id", snapshot.MaxChangeID,
	)
	return snapshot.MaxChangeID, nil
}

// Flush сохраняет полный снимок хранилища вместе с текущим watermark
func (s *Store) Flush(ctx context.Context) error {
	slot, err := s.BeginUpdate(ctx)
	if err != nil {
		return err
	}
	defer slot.release()

	s.mu.RLock()
	snapshot := &storage.Snapshot{
		Elements:    s.allLocked(),
		MaxChangeID: s.maxChangeID,
	}
	s.mu.RUnlock()

	return s.saveSnapshot(ctx, snapshot)
}

func (s *Store) allLocked() []models.Element {
	var all []models.Element
	for _, name := range slices.Sorted(maps.Keys(s.collections)) {
		objects := s.collections[name]
		for _, id := range slices.Sorted(maps.Keys(objects)) {
			all = append(all, objects[id])
		}
	}
	return all
}

func (s *Store) persistenceDisabled() bool {
	if s.persist == nil {
		return true
	}
	return s.history != nil && s.history.IsInHistoryMode()
}

func (s *Store) saveSnapshot(ctx context.Context, snapshot *storage.Snapshot) error {
	if s.persistenceDisabled() {
		return nil
	}
	return s.handlePersistError(s.persist.SaveSnapshot(ctx, snapshot))
}

func (s *Store) applyDelta(ctx context.Context, delta *storage.Delta) error {
	if s.persistenceDisabled() {
		return nil
	}
	return s.handlePersistError(s.persist.ApplyDelta(ctx, delta))
}

func (s *Store) handlePersistError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrQuotaExceeded) && s.notices != nil {
		s.notices.ShowNotice(offline.Notice{
			Kind:    offline.NoticeTooLittleStorage,
			Message: "Too little local storage. Cached data is not saved.",
		})
	}
	s.logger.Error("Failed to persist store", "error", err)
	return fmt.Errorf("failed to persist store: %w", err)
}
