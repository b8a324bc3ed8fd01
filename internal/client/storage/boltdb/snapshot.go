package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/meetsync/internal/client/storage"
	"github.com/iudanet/meetsync/internal/models"
)

var keyMaxChangeID = []byte("maxChangeId")

// LoadSnapshot returns all persisted elements and their change id
func (s *Storage) LoadSnapshot(ctx context.Context) (*storage.Snapshot, error) {
	snapshot := &storage.Snapshot{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDatastore)
		if bucket == nil {
			return fmt.Errorf("datastore bucket not found")
		}

		err := bucket.ForEach(func(k, v []byte) error {
			collection, id, err := models.ParseElementID(string(k))
			if err != nil {
				return err
			}
			snapshot.Elements = append(snapshot.Elements, models.Element{
				Collection: collection,
				ID:         id,
				Data:       bytes.Clone(v),
			})
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read snapshot: %w", err)
		}

		changeID, err := readChangeID(tx)
		if err != nil {
			return err
		}
		snapshot.MaxChangeID = changeID
		return nil
	})

	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// SaveSnapshot replaces the persisted snapshot
func (s *Storage) SaveSnapshot(ctx context.Context, snapshot *storage.Snapshot) error {
	return s.update(func(tx *bbolt.Tx) error {
		if err := s.checkQuota(tx, payloadSize(snapshot.Elements)); err != nil {
			return err
		}
		if err := resetBucket(tx, bucketDatastore); err != nil {
			return err
		}

		bucket := tx.Bucket(bucketDatastore)
		for _, e := range snapshot.Elements {
			if err := bucket.Put([]byte(e.Key()), e.Data); err != nil {
				return fmt.Errorf("failed to save %s: %w", e.Key(), err)
			}
		}

		return writeChangeID(tx, snapshot.MaxChangeID)
	})
}

// ApplyDelta upserts and deletes elements in one transaction
func (s *Storage) ApplyDelta(ctx context.Context, delta *storage.Delta) error {
	return s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDatastore)
		if bucket == nil {
			return fmt.Errorf("datastore bucket not found")
		}
		if err := s.checkQuota(tx, payloadSize(delta.Changed)); err != nil {
			return err
		}

		for _, e := range delta.Changed {
			if err := bucket.Put([]byte(e.Key()), e.Data); err != nil {
				return fmt.Errorf("failed to save %s: %w", e.Key(), err)
			}
		}

		for _, id := range delta.Deleted {
			if err := bucket.Delete([]byte(id)); err != nil {
				return fmt.Errorf("failed to delete %s: %w", id, err)
			}
		}

		return writeChangeID(tx, delta.MaxChangeID)
	})
}

// ClearSnapshot removes all persisted elements
func (s *Storage) ClearSnapshot(ctx context.Context) error {
	return s.update(func(tx *bbolt.Tx) error {
		if err := resetBucket(tx, bucketDatastore); err != nil {
			return err
		}
		return writeChangeID(tx, 0)
	})
}

func payloadSize(elements []models.Element) int {
	size := 0
	for _, e := range elements {
		size += len(e.Key()) + len(e.Data)
	}
	return size
}

func readChangeID(tx *bbolt.Tx) (int64, error) {
	bucket := tx.Bucket(bucketMetadata)
	if bucket == nil {
		return 0, fmt.Errorf("metadata bucket not found")
	}

	data := bucket.Get(keyMaxChangeID)
	if data == nil {
		// Снимок еще не сохранялся
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupted change id: %d bytes", len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

func writeChangeID(tx *bbolt.Tx, changeID int64) error {
	bucket := tx.Bucket(bucketMetadata)
	if bucket == nil {
		return fmt.Errorf("metadata bucket not found")
	}

	// Конвертируем int64 в bytes
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(changeID))

	if err := bucket.Put(keyMaxChangeID, buf); err != nil {
		return fmt.Errorf("failed to save change id: %w", err)
	}
	return nil
}
