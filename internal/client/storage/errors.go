package storage

import "errors"

// Common client storage errors
var (
	// ErrAuthNotFound indicates that no authentication data exists
	ErrAuthNotFound = errors.New("authentication data not found")

	// ErrKeyNotFound indicates that a key-value entry does not exist
	ErrKeyNotFound = errors.New("key not found")

	// ErrHistoryMode indicates a write attempt while the history overlay is active
	ErrHistoryMode = errors.New("storage is read-only in history mode")

	// ErrQuotaExceeded indicates that the local database grew beyond its quota
	ErrQuotaExceeded = errors.New("local storage quota exceeded")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
