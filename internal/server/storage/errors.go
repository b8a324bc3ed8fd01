package storage

import "errors"

// Common storage errors
var (
	// ErrAccountNotFound indicates that account was not found in storage
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists indicates that account with this username already exists
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrSessionNotFound indicates that session was not found or already revoked
	ErrSessionNotFound = errors.New("session not found")

	// ErrElementNotFound indicates that element was not found
	ErrElementNotFound = errors.New("element not found")

	// ErrEmptyChange indicates that change has neither changed nor deleted elements
	ErrEmptyChange = errors.New("change is empty")
)
