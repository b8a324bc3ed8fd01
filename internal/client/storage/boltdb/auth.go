package boltdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/meetsync/internal/client/storage"
)

// ключи bucket auth, каждое поле хранится отдельно
var (
	authKeyToken     = []byte("access_token")
	authKeyUsername  = []byte("username")
	authKeyUserID    = []byte("user_id")
	authKeyExpiresAt = []byte("expires_at")
)

func authBucket(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	bucket := tx.Bucket(bucketAuth)
	if bucket == nil {
		return nil, fmt.Errorf("auth bucket not found")
	}
	return bucket, nil
}

// SaveAuth replaces stored session credentials
func (s *Storage) SaveAuth(ctx context.Context, auth *storage.AuthData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(tx *bbolt.Tx) error {
		bucket, err := authBucket(tx)
		if err != nil {
			return err
		}
		fields := [][2][]byte{
			{authKeyToken, []byte(auth.AccessToken)},
			{authKeyUsername, []byte(auth.Username)},
			{authKeyUserID, strconv.AppendInt(nil, int64(auth.UserID), 10)},
			{authKeyExpiresAt, strconv.AppendInt(nil, auth.ExpiresAt, 10)},
		}
		for _, f := range fields {
			if err := bucket.Put(f[0], f[1]); err != nil {
				return fmt.Errorf("failed to save %s: %w", f[0], err)
			}
		}
		return nil
	})
}

// GetAuth returns stored credentials or storage.ErrAuthNotFound
func (s *Storage) GetAuth(ctx context.Context) (*storage.AuthData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var auth *storage.AuthData
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := authBucket(tx)
		if err != nil {
			return err
		}
		token := bucket.Get(authKeyToken)
		if token == nil {
			return storage.ErrAuthNotFound
		}

		userID, err := parseInt(bucket.Get(authKeyUserID))
		if err != nil {
			return fmt.Errorf("corrupted user id: %w", err)
		}
		expiresAt, err := parseInt(bucket.Get(authKeyExpiresAt))
		if err != nil {
			return fmt.Errorf("corrupted expiry: %w", err)
		}

		auth = &storage.AuthData{
			AccessToken: string(token),
			Username:    string(bucket.Get(authKeyUsername)),
			UserID:      int(userID),
			ExpiresAt:   expiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return auth, nil
}

func parseInt(v []byte) (int64, error) {
	if len(v) == 0 {
		return 0, nil
	}
	return strconv.ParseInt(string(v), 10, 64)
}

// DeleteAuth забывает токен при логауте
func (s *Storage) DeleteAuth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(tx *bbolt.Tx) error {
		bucket, err := authBucket(tx)
		if err != nil {
			return err
		}
		if bucket.Get(authKeyToken) == nil {
			return storage.ErrAuthNotFound
		}
		return resetBucket(tx, bucketAuth)
	})
}

// IsAuthenticated проверяет, что токен есть и не истек
func (s *Storage) IsAuthenticated(ctx context.Context) (bool, error) {
	auth, err := s.GetAuth(ctx)
	switch {
	case errors.Is(err, storage.ErrAuthNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	if auth.AccessToken == "" {
		return false, nil
	}
	return auth.ExpiresAt == 0 || time.Now().Unix() < auth.ExpiresAt, nil
}
