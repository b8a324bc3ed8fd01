package boltdb

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/iudanet/meetsync/internal/client/storage"
)

var (
	// BoltDB bucket names
	bucketAuth      = []byte("auth")
	bucketKV        = []byte("kv")
	bucketDatastore = []byte("datastore")
	bucketMetadata  = []byte("metadata")

	allBuckets = [][]byte{bucketAuth, bucketKV, bucketDatastore, bucketMetadata}
)

// Option настраивает Storage
type Option func(*Storage)

// WithQuota ограничивает размер файла БД. Запись снимка, после которой
// размер превысит quota байт, отклоняется с storage.ErrQuotaExceeded.
func WithQuota(quota int64) Option {
	return func(s *Storage) {
		s.quota = quota
	}
}

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db    *bbolt.DB
	quota int64
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string, opts ...Option) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}
	for _, opt := range opts {
		opt(storage)
	}

	// Инициализируем buckets
	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path возвращает путь к файлу БД
func (s *Storage) Path() string {
	return s.db.Path()
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// update выполняет транзакцию записи
func (s *Storage) update(fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	return s.db.Update(fn)
}

// checkQuota оценивает размер БД после записи payload байт.
// Страницы выделяются только при коммите, поэтому считаем по данным.
func (s *Storage) checkQuota(tx *bbolt.Tx, payload int) error {
	if s.quota <= 0 {
		return nil
	}
	if size := tx.Size() + int64(payload); size > s.quota {
		return fmt.Errorf("%w: %d bytes > %d", storage.ErrQuotaExceeded, size, s.quota)
	}
	return nil
}

// resetBucket удаляет bucket и создает его заново
func resetBucket(tx *bbolt.Tx, name []byte) error {
	if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, berrors.ErrBucketNotFound) {
		return fmt.Errorf("failed to delete %s bucket: %w", name, err)
	}
	if _, err := tx.CreateBucket(name); err != nil {
		return fmt.Errorf("failed to create %s bucket: %w", name, err)
	}
	return nil
}

// RemoveFile закрывает хранилище и удаляет файл БД
func (s *Storage) RemoveFile() error {
	path := s.db.Path()
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove database file: %w", err)
	}
	return nil
}
