package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type historyFlag bool

func (h *historyFlag) IsInHistoryMode() bool { return bool(*h) }

func TestGuard_RejectsWritesInHistoryMode(t *testing.T) {
	ctx := context.Background()
	flag := historyFlag(false)

	kv := &KeyValueStorageMock{
		GetFunc:    func(ctx context.Context, key string) ([]byte, error) { return []byte("1"), nil },
		SetFunc:    func(ctx context.Context, key string, value []byte) error { return nil },
		RemoveFunc: func(ctx context.Context, key string) error { return nil },
		ClearFunc:  func(ctx context.Context) error { return nil },
	}
	snap := &SnapshotStorageMock{
		LoadSnapshotFunc:  func(ctx context.Context) (*Snapshot, error) { return &Snapshot{MaxChangeID: 3}, nil },
		SaveSnapshotFunc:  func(ctx context.Context, snapshot *Snapshot) error { return nil },
		ApplyDeltaFunc:    func(ctx context.Context, delta *Delta) error { return nil },
		ClearSnapshotFunc: func(ctx context.Context) error { return nil },
	}

	guard := NewGuard(kv, snap, &flag)

	// Вне режима истории все операции проходят
	require.NoError(t, guard.Set(ctx, "k", []byte("v")))
	require.NoError(t, guard.ApplyDelta(ctx, &Delta{MaxChangeID: 1}))

	flag = true

	assert.ErrorIs(t, guard.Set(ctx, "k", []byte("v")), ErrHistoryMode)
	assert.ErrorIs(t, guard.Remove(ctx, "k"), ErrHistoryMode)
	assert.ErrorIs(t, guard.Clear(ctx), ErrHistoryMode)
	assert.ErrorIs(t, guard.SaveSnapshot(ctx, &Snapshot{}), ErrHistoryMode)
	assert.ErrorIs(t, guard.ApplyDelta(ctx, &Delta{}), ErrHistoryMode)
	assert.ErrorIs(t, guard.ClearSnapshot(ctx), ErrHistoryMode)

	// Чтение разрешено
	v, err := guard.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	snapshot, err := guard.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snapshot.MaxChangeID)

	// Запись дошла до хранилищ только до включения режима
	assert.Len(t, kv.SetCalls(), 1)
	assert.Len(t, snap.ApplyDeltaCalls(), 1)
	assert.Empty(t, kv.RemoveCalls())
	assert.Empty(t, snap.SaveSnapshotCalls())
}
