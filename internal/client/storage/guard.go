package storage

import (
	"context"
)

// HistoryMode сообщает, активен ли режим просмотра истории
type HistoryMode interface {
	IsInHistoryMode() bool
}

// Guard оборачивает хранилища и отклоняет любые записи, пока активен режим
// истории. Исторические данные не должны попасть в живой снимок.
type Guard struct {
	kv       KeyValueStorage
	snapshot SnapshotStorage
	mode     HistoryMode
}

// NewGuard создает Guard поверх kv и snapshot хранилищ
func NewGuard(kv KeyValueStorage, snapshot SnapshotStorage, mode HistoryMode) *Guard {
	return &Guard{kv: kv, snapshot: snapshot, mode: mode}
}

func (g *Guard) checkWrite() error {
	if g.mode != nil && g.mode.IsInHistoryMode() {
		return ErrHistoryMode
	}
	return nil
}

// Get implements KeyValueStorage
func (g *Guard) Get(ctx context.Context, key string) ([]byte, error) {
	return g.kv.Get(ctx, key)
}

// Set implements KeyValueStorage
func (g *Guard) Set(ctx context.Context, key string, value []byte) error {
	if err := g.checkWrite(); err != nil {
		return err
	}
	return g.kv.Set(ctx, key, value)
}

// Remove implements KeyValueStorage
func (g *Guard) Remove(ctx context.Context, key string) error {
	if err := g.checkWrite(); err != nil {
		return err
	}
	return g.kv.Remove(ctx, key)
}

// Clear implements KeyValueStorage
func (g *Guard) Clear(ctx context.Context) error {
	if err := g.checkWrite(); err != nil {
		return err
	}
	return g.kv.Clear(ctx)
}

// LoadSnapshot implements SnapshotStorage
func (g *Guard) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	return g.snapshot.LoadSnapshot(ctx)
}

// SaveSnapshot implements SnapshotStorage
func (g *Guard) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if err := g.checkWrite(); err != nil {
		return err
	}
	return g.snapshot.SaveSnapshot(ctx, snapshot)
}

// ApplyDelta implements SnapshotStorage
func (g *Guard) ApplyDelta(ctx context.Context, delta *Delta) error {
	if err := g.checkWrite(); err != nil {
		return err
	}
	return g.snapshot.ApplyDelta(ctx, delta)
}

// ClearSnapshot implements SnapshotStorage
func (g *Guard) ClearSnapshot(ctx context.Context) error {
	if err := g.checkWrite(); err != nil {
		return err
	}
	return g.snapshot.ClearSnapshot(ctx)
}
