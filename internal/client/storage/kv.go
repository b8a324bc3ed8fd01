package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

//go:generate moq -out kvstorage_mock.go . KeyValueStorage

// Well-known keys of the key-value storage
const (
	KeyWhoAmI           = "whoami"
	KeyLastUserLoggedIn = "lastUserLoggedIn"
)

// KeyValueStorage defines a namespaced key-value store for small values
// (cached whoami, last logged in user, per-feature preferences)
type KeyValueStorage interface {
	// Get returns the raw value stored under key
	// Returns ErrKeyNotFound if the key doesn't exist
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error
	Remove(ctx context.Context, key string) error

	// Clear removes all keys
	Clear(ctx context.Context) error
}

// GetJSON читает значение по ключу и декодирует его в v.
// Возвращает false, если ключ не найден.
func GetJSON(ctx context.Context, kv KeyValueStorage, key string, v any) (bool, error) {
	data, err := kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON кодирует v в JSON и сохраняет по ключу
func SetJSON(ctx context.Context, kv KeyValueStorage, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, data)
}
