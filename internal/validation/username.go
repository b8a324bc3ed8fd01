package validation

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

const (
	MinUsernameLen = 2
	MaxUsernameLen = 64
	MinPasswordLen = 8
)

var (
	ErrEmptyUsername    = errors.New("username cannot be empty")
	ErrUsernameLength   = errors.New("username length out of range")
	ErrUsernameSymbols  = errors.New("username contains forbidden symbols")
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordTooShort = errors.New("password is too short")
)

// Участники собраний входят под именами на любом алфавите, допускаются
// точка, дефис, подчеркивание и @ внутри имени
var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}](?:[\p{L}\p{N}._@-]*[\p{L}\p{N}])?$`)

// ValidateUsername проверяет логин учетной записи
func ValidateUsername(username string) error {
	if username == "" {
		return ErrEmptyUsername
	}
	if n := utf8.RuneCountInString(username); n < MinUsernameLen || n > MaxUsernameLen {
		return fmt.Errorf("%w: %d characters, want %d-%d", ErrUsernameLength, n, MinUsernameLen, MaxUsernameLen)
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: %q", ErrUsernameSymbols, username)
	}
	return nil
}

// ValidatePassword проверяет только длину, остальное решает сервер
func ValidatePassword(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if n := utf8.RuneCountInString(password); n < MinPasswordLen {
		return fmt.Errorf("%w: %d characters, want at least %d", ErrPasswordTooShort, n, MinPasswordLen)
	}
	return nil
}
