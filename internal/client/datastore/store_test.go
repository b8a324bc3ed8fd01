package datastore

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/meetsync/internal/client/offline"
	"github.com/iudanet/meetsync/internal/client/storage"
	"github.com/iudanet/meetsync/internal/client/storage/boltdb"
	"github.com/iudanet/meetsync/internal/models"
)

type historyFlag struct{ active bool }

func (h *historyFlag) IsInHistoryMode() bool { return h.active }

type noticeRecorder struct{ notices []offline.Notice }

func (r *noticeRecorder) ShowNotice(n offline.Notice) { r.notices = append(r.notices, n) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func newBolt(t *testing.T) *boltdb.Storage {
	t.Helper()
	db, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func el(collection string, fields map[string]any) models.Element {
	return models.MustElement(collection, fields)
}

func TestStore_MergeReplacesWholeObject(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, nil, testLogger())

	require.NoError(t, s.Add(ctx, el("x", map[string]any{"id": 5, "a": 1, "c": 9})))
	require.NoError(t, s.Add(ctx, el("x", map[string]any{"id": 5, "a": 2, "b": 3})))

	got, ok := s.Get("x", 5)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":5,"a":2,"b":3}`, string(got.Data))
}

func TestStore_Reads(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, nil, testLogger())

	require.NoError(t, s.Add(ctx,
		el("x", map[string]any{"id": 3}),
		el("x", map[string]any{"id": 1}),
		el("x", map[string]any{"id": 2}),
		el("y", map[string]any{"id": 1}),
	))

	_, ok := s.Get("x", 99)
	assert.False(t, ok)
	_, ok = s.Get("missing", 1)
	assert.False(t, ok)

	many := s.GetMany("x", []int{3, 99, 1})
	require.Len(t, many, 2)
	assert.Equal(t, 3, many[0].ID)
	assert.Equal(t, 1, many[1].ID)

	all := s.GetAll("x")
	require.Len(t, all, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{all[0].ID, all[1].ID, all[2].ID})

	odd := s.Filter("x", func(e models.Element) bool { return e.ID%2 == 1 })
	assert.Len(t, odd, 2)

	assert.Equal(t, []string{"x", "y"}, s.Collections())
	assert.Equal(t, 3, s.Count("x"))
	assert.True(t, s.Exists("y", 1))
	assert.Empty(t, s.GetAll("missing"))
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, nil, testLogger())
	require.NoError(t, s.Add(ctx, el("x", map[string]any{"id": 1, "a": 1})))

	got, _ := s.Get("x", 1)
	got.Data[0] = '['

	again, _ := s.Get("x", 1)
	assert.JSONEq(t, `{"id":1,"a":1}`, string(again.Data))
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, nil, testLogger())
	require.NoError(t, s.Add(ctx, el("x", map[string]any{"id": 1}), el("x", map[string]any{"id": 2})))

	var deleted []Deleted
	s.OnDelete(func(d Deleted) { deleted = append(deleted, d) })

	require.NoError(t, s.Remove(ctx, "x", 1))
	require.NoError(t, s.Remove(ctx, "x", 1))
	require.NoError(t, s.Remove(ctx, "nothing", 1))

	assert.False(t, s.Exists("x", 1))
	assert.True(t, s.Exists("x", 2))
	assert.Equal(t, []Deleted{{Collection: "x", ID: 1}}, deleted)
}

func TestStore_NotificationsOncePerBatch(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, nil, testLogger())
	require.NoError(t, s.Add(ctx, el("x", map[string]any{"id": 9})))

	var changed []models.ElementID
	var userChanges []int
	var updates []Update
	s.OnChange(func(e models.Element) { changed = append(changed, e.Key()) })
	s.OnCollectionChange(models.CollectionUser, func(e models.Element) { userChanges = append(userChanges, e.ID) })
	s.OnModified(func(u Update) { updates = append(updates, u) })

	slot, err := s.BeginUpdate(ctx)
	require.NoError(t, err)
	slot.Add(el(models.CollectionUser, map[string]any{"id": 1}))
	slot.Add(el("x", map[string]any{"id": 1}))
	slot.Remove("x", 9)
	require.NoError(t, slot.Commit(ctx, 4))

	assert.Equal(t, []models.ElementID{"users/user:1", "x:1"}, changed)
	assert.Equal(t, []int{1}, userChanges)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(4), updates[0].ChangeID)
	assert.True(t, updates[0].Touches(models.CollectionUser, 1))
	assert.True(t, updates[0].Touches("x", 9))
	assert.False(t, updates[0].TouchesCollection(models.CollectionGroup))
	assert.Equal(t, int64(4), s.MaxChangeID())
}

func TestStore_LastOperationWins(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, nil, testLogger())

	var update Update
	s.OnModified(func(u Update) { update = u })

	slot, err := s.BeginUpdate(ctx)
	require.NoError(t, err)
	slot.Add(el("x", map[string]any{"id": 1, "v": 1}))
	slot.Remove("x", 1)
	slot.Add(el("x", map[string]any{"id": 2, "v": 1}))
	slot.Add(el("x", map[string]any{"id": 2, "v": 2}))
	require.NoError(t, slot.Commit(ctx, 1))

	assert.False(t, s.Exists("x", 1))
	got, _ := s.Get("x", 2)
	assert.JSONEq(t, `{"id":2,"v":2}`, string(got.Data))
	assert.Equal(t, []int{2}, update.Changed["x"])
	// x:1 не существовал до пакета
	assert.Empty(t, update.Deleted["x"])
}

func TestStore_DeletionOnlyForPreexistingElements(t *testing.T) {
	ctx := context.Background()
	db := newBolt(t)
	s := NewStore(db, nil, nil, testLogger())
	require.NoError(t, s.Add(ctx, el("x", map[string]any{"id": 1})))

	var deleted []Deleted
	s.OnDelete(func(d Deleted) { deleted = append(deleted, d) })
	var update Update
	s.OnModified(func(u Update) { update = u })

	slot, err := s.BeginUpdate(ctx)
	require.NoError(t, err)
	slot.Add(el("x", map[string]any{"id": 1, "v": 2}))
	slot.Remove("x", 1)
	slot.Add(el("x", map[string]any{"id": 7}))
	slot.Remove("x", 7)
	require.NoError(t, slot.Commit(ctx, 2))

	assert.Equal(t, []Deleted{{Collection: "x", ID: 1}}, deleted)
	assert.Equal(t, []int{1}, update.Deleted["x"])
	assert.Empty(t, update.Changed["x"])
	assert.Zero(t, s.Count("x"))

	snapshot, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Elements)
	assert.Equal(t, int64(2), snapshot.MaxChangeID)
}

func TestStore_SubscriberMayWrite(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, nil, testLogger())

	var order []int64
	s.OnModified(func(u Update) {
		order = append(order, u.ChangeID)
		if u.Touches("x", 1) {
			// вложенная запись не блокируется, ее уведомление приходит следующим
			assert.NoError(t, s.Add(ctx, el("derived", map[string]any{"id": 1})))
			order = append(order, -1)
		}
	})
	cleared := 0
	s.OnClear(func() {
		cleared++
		assert.NoError(t, s.Add(ctx, el("after", map[string]any{"id": 1})))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		slot, err := s.BeginUpdate(ctx)
		if !assert.NoError(t, err) {
			return
		}
		slot.Add(el("x", map[string]any{"id": 1}))
		assert.NoError(t, slot.Commit(ctx, 3))
		assert.NoError(t, s.Clear(ctx))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("store deadlocked on a writing subscriber")
	}

	assert.Equal(t, []int64{3, -1, 3, 0}, order)
	// Clear удалил объект, записанный подписчиком
	assert.False(t, s.Exists("derived", 1))
	assert.True(t, s.Exists("after", 1))
	assert.Equal(t, 1, cleared)
}

func TestStore_WatermarkIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, nil, testLogger())

	for _, id := range []int64{3, 7, 5, 0, 7, 8} {
		slot, err := s.BeginUpdate(ctx)
		require.NoError(t, err)
		before := s.MaxChangeID()
		require.NoError(t, slot.Commit(ctx, id))
		assert.GreaterOrEqual(t, s.MaxChangeID(), before)
	}
	assert.Equal(t, int64(8), s.MaxChangeID())

	// Set это точка сброса
	require.NoError(t, s.Set(ctx, 2))
	assert.Equal(t, int64(2), s.MaxChangeID())
}

func TestStore_SetReplacesEverything(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, nil, testLogger())
	require.NoError(t, s.Add(ctx, el("x", map[string]any{"id": 1}), el("y", map[string]any{"id": 1})))

	require.NoError(t, s.Set(ctx, 10, el("z", map[string]any{"id": 4})))

	assert.Empty(t, s.GetAll("x"))
	assert.Empty(t, s.GetAll("y"))
	assert.True(t, s.Exists("z", 4))
	assert.Equal(t, int64(10), s.MaxChangeID())

	require.NoError(t, s.Set(ctx, 0))
	assert.Empty(t, s.Collections())
}

func TestStore_ClearIsTotal(t *testing.T) {
	ctx := context.Background()
	db := newBolt(t)
	s := NewStore(db, nil, nil, testLogger())

	slot, err := s.BeginUpdate(ctx)
	require.NoError(t, err)
	slot.Add(el("x", map[string]any{"id": 1}), el(models.CollectionUser, map[string]any{"id": 7}))
	require.NoError(t, slot.Commit(ctx, 12))

	cleared := 0
	s.OnClear(func() { cleared++ })

	require.NoError(t, s.Clear(ctx))

	for _, c := range []string{"x", models.CollectionUser} {
		assert.Empty(t, s.GetAll(c))
	}
	assert.Equal(t, int64(0), s.MaxChangeID())
	assert.Equal(t, 1, cleared)

	snapshot, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Elements)
	assert.Equal(t, int64(0), snapshot.MaxChangeID)
}

func TestStore_PersistAndRestore(t *testing.T) {
	ctx := context.Background()
	db := newBolt(t)
	s := NewStore(db, nil, nil, testLogger())

	slot, err := s.BeginUpdate(ctx)
	require.NoError(t, err)
	slot.Add(el("x", map[string]any{"id": 1, "a": 1}), el("x", map[string]any{"id": 2}))
	require.NoError(t, slot.Commit(ctx, 5))

	slot, err = s.BeginUpdate(ctx)
	require.NoError(t, err)
	slot.Remove("x", 2)
	slot.Add(el("x", map[string]any{"id": 1, "a": 2}))
	require.NoError(t, slot.Commit(ctx, 6))

	restored := NewStore(db, nil, nil, testLogger())
	changeID, err := restored.InitFromStorage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), changeID)
	assert.Equal(t, int64(6), restored.MaxChangeID())

	got, ok := restored.Get("x", 1)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":1,"a":2}`, string(got.Data))
	assert.False(t, restored.Exists("x", 2))
}

func TestStore_InitFromStorage_CorruptSnapshotClears(t *testing.T) {
	ctx := context.Background()

	persist := &storage.SnapshotStorageMock{
		LoadSnapshotFunc: func(ctx context.Context) (*storage.Snapshot, error) {
			return nil, errors.New("corrupted")
		},
		ClearSnapshotFunc: func(ctx context.Context) error { return nil },
	}
	s := NewStore(persist, nil, nil, testLogger())

	changeID, err := s.InitFromStorage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), changeID)
	assert.Len(t, persist.ClearSnapshotCalls(), 1)
}

func TestStore_SkipsPersistenceInHistoryMode(t *testing.T) {
	ctx := context.Background()
	persist := &storage.SnapshotStorageMock{
		ApplyDeltaFunc:   func(ctx context.Context, delta *storage.Delta) error { return nil },
		SaveSnapshotFunc: func(ctx context.Context, snapshot *storage.Snapshot) error { return nil },
	}
	mode := &historyFlag{}
	s := NewStore(persist, mode, nil, testLogger())

	require.NoError(t, s.Add(ctx, el("x", map[string]any{"id": 1})))
	assert.Len(t, persist.ApplyDeltaCalls(), 1)

	mode.active = true
	require.NoError(t, s.Set(ctx, 0, el("x", map[string]any{"id": 2})))
	require.NoError(t, s.Add(ctx, el("x", map[string]any{"id": 3})))
	require.NoError(t, s.Clear(ctx))

	assert.Len(t, persist.ApplyDeltaCalls(), 1)
	assert.Empty(t, persist.SaveSnapshotCalls())
}

func TestStore_QuotaExceededRaisesNotice(t *testing.T) {
	ctx := context.Background()
	persist := &storage.SnapshotStorageMock{
		ApplyDeltaFunc: func(ctx context.Context, delta *storage.Delta) error {
			return storage.ErrQuotaExceeded
		},
	}
	notices := &noticeRecorder{}
	s := NewStore(persist, nil, notices, testLogger())

	err := s.Add(ctx, el("x", map[string]any{"id": 1}))
	assert.ErrorIs(t, err, storage.ErrQuotaExceeded)

	// изменения в памяти остаются
	assert.True(t, s.Exists("x", 1))
	require.Len(t, notices.notices, 1)
	assert.Equal(t, offline.NoticeTooLittleStorage, notices.notices[0].Kind)
}

func TestStore_Flush(t *testing.T) {
	ctx := context.Background()
	db := newBolt(t)
	mode := &historyFlag{active: true}
	s := NewStore(db, mode, nil, testLogger())

	require.NoError(t, s.Set(ctx, 3, el("x", map[string]any{"id": 1})))

	snapshot, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Elements)

	mode.active = false
	require.NoError(t, s.Flush(ctx))

	snapshot, err = db.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot.Elements, 1)
	assert.Equal(t, int64(3), snapshot.MaxChangeID)
}

func TestStore_BeginUpdateRespectsContext(t *testing.T) {
	s := NewStore(nil, nil, nil, testLogger())

	slot, err := s.BeginUpdate(context.Background())
	require.NoError(t, err)
	defer slot.Discard()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = s.BeginUpdate(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_NoTornReads(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, nil, testLogger())

	const batchSize = 50
	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Читатель всегда видит либо весь пакет, либо ничего
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			n := s.Count("x")
			assert.True(t, n%batchSize == 0, "torn read: %d", n)
		}
	}()

	for batch := 0; batch < 20; batch++ {
		slot, err := s.BeginUpdate(ctx)
		require.NoError(t, err)
		for i := 0; i < batchSize; i++ {
			slot.Add(el("x", map[string]any{"id": batch*batchSize + i}))
		}
		require.NoError(t, slot.Commit(ctx, int64(batch+1)))
	}

	close(stop)
	wg.Wait()
	assert.Equal(t, 20*batchSize, s.Count("x"))
}

func TestStore_CommitTwice(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, nil, testLogger())

	slot, err := s.BeginUpdate(ctx)
	require.NoError(t, err)
	require.NoError(t, slot.Commit(ctx, 1))
	assert.Error(t, slot.Commit(ctx, 2))

	// слот освобожден
	require.NoError(t, s.Add(ctx, el("x", map[string]any{"id": 1})))
}
