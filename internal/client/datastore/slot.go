package datastore

import (
	"context"
	"fmt"

	"github.com/iudanet/meetsync/internal/client/storage"
	"github.com/iudanet/meetsync/internal/models"
)

type opKind int

const (
	opAdd opKind = iota
	opRemove
)

type op struct {
	element    models.Element
	collection string
	id         int
	kind       opKind
}

// UpdateSlot накапливает изменения одного пакета. Пока слот открыт,
// другие писатели ждут в BeginUpdate.
type UpdateSlot struct {
	store       *Store
	ops         []op
	reset       bool
	skipPersist bool
	done        bool
}

// BeginUpdate занимает слот записи. Слот обязательно закрывается через
// Commit или Discard.
func (s *Store) BeginUpdate(ctx context.Context) (*UpdateSlot, error) {
	select {
	case s.slot <- struct{}{}:
		return &UpdateSlot{store: s}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to acquire update slot: %w", ctx.Err())
	}
}

// Add добавляет объекты в пакет
func (u *UpdateSlot) Add(elements ...models.Element) {
	for _, e := range elements {
		u.ops = append(u.ops, op{kind: opAdd, element: e.Clone()})
	}
}

// Remove добавляет удаления в пакет
func (u *UpdateSlot) Remove(collection string, ids ...int) {
	for _, id := range ids {
		u.ops = append(u.ops, op{kind: opRemove, collection: collection, id: id})
	}
}

// Len возвращает количество накопленных операций
func (u *UpdateSlot) Len() int {
	return len(u.ops)
}

// Discard освобождает слот без применения изменений
func (u *UpdateSlot) Discard() {
	u.release()
}

func (u *UpdateSlot) release() {
	if u.done {
		return
	}
	u.done = true
	<-u.store.slot
}

// Commit применяет пакет, сохраняет его и рассылает уведомления.
// Watermark становится max(текущий, changeID); для слота сброса (Set)
// watermark равен changeID. Ошибка сохранения возвращается, но изменения
// в памяти остаются примененными.
func (u *UpdateSlot) Commit(ctx context.Context, changeID int64) error {
	if u.done {
		return fmt.Errorf("update slot already closed")
	}
	defer u.release()

	s := u.store
	changed, deleted, update := u.apply(changeID)
	err := u.persist(ctx, changed, deleted, update, changeID)

	s.notify(u.release, func() {
		for _, e := range changed {
			s.changes.Publish(e)
			s.byColl.Publish(e.Collection, e)
		}
		for _, d := range deleted {
			s.deletes.Publish(d)
		}
		s.modified.Publish(update)
	})
	return err
}

func (u *UpdateSlot) persist(ctx context.Context, changed []models.Element, deleted []Deleted, update Update, changeID int64) error {
	if u.skipPersist {
		return nil
	}
	s := u.store
	if u.reset {
		s.mu.RLock()
		snapshot := &storage.Snapshot{Elements: s.allLocked(), MaxChangeID: s.maxChangeID}
		s.mu.RUnlock()
		return s.saveSnapshot(ctx, snapshot)
	}

	delta := &storage.Delta{MaxChangeID: update.ChangeID}
	delta.Changed = append(delta.Changed, changed...)
	for _, d := range deleted {
		delta.Deleted = append(delta.Deleted, models.NewElementID(d.Collection, d.ID))
	}
	if delta.IsEmpty() && changeID == 0 {
		return nil
	}
	return s.applyDelta(ctx, delta)
}

// apply применяет операции под блокировкой записи и возвращает итоговые
// изменения. Для каждого ключа учитывается последняя операция.
func (u *UpdateSlot) apply(changeID int64) ([]models.Element, []Deleted, Update) {
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.reset {
		s.collections = make(map[string]map[int]models.Element)
		s.maxChangeID = changeID
	} else if changeID > s.maxChangeID {
		s.maxChangeID = changeID
	}

	last := make(map[models.ElementID]int, len(u.ops))
	for i, o := range u.ops {
		if o.kind == opAdd {
			last[o.element.Key()] = i
		} else {
			last[models.NewElementID(o.collection, o.id)] = i
		}
	}

	// удаление публикуется, только если объект был до начала пакета
	existed := make(map[models.ElementID]bool)
	for _, o := range u.ops {
		if o.kind == opRemove {
			_, existed[models.NewElementID(o.collection, o.id)] = s.collections[o.collection][o.id]
		}
	}

	update := Update{
		Changed:  make(map[string][]int),
		Deleted:  make(map[string][]int),
		ChangeID: s.maxChangeID,
		Reset:    u.reset,
	}
	var changed []models.Element
	var deleted []Deleted

	for i, o := range u.ops {
		switch o.kind {
		case opAdd:
			e := o.element
			objects, ok := s.collections[e.Collection]
			if !ok {
				objects = make(map[int]models.Element)
				s.collections[e.Collection] = objects
			}
			objects[e.ID] = e
			if last[e.Key()] == i {
				changed = append(changed, e)
				update.Changed[e.Collection] = append(update.Changed[e.Collection], e.ID)
			}
		case opRemove:
			key := models.NewElementID(o.collection, o.id)
			delete(s.collections[o.collection], o.id)
			if existed[key] && last[key] == i {
				deleted = append(deleted, Deleted{Collection: o.collection, ID: o.id})
				update.Deleted[o.collection] = append(update.Deleted[o.collection], o.id)
			}
		}
	}

	return changed, deleted, update
}
