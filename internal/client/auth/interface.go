package auth

import (
	"context"

	"github.com/iudanet/meetsync/internal/client/storage"
	"github.com/iudanet/meetsync/internal/models"
)

//go:generate moq -out service_mock.go . Service

// Service defines the main interface for authentication operations.
// Access token is kept in AuthStorage between runs.
type Service interface {
	// Login выполняет аутентификацию пользователя и сохраняет токен.
	// Возвращает ответ whoami для нового пользователя.
	Login(ctx context.Context, username, password string) (*models.WhoAmI, error)

	// Logout завершает серверную сессию (best effort) и удаляет локальный токен
	Logout(ctx context.Context) error

	// AccessToken возвращает действующий токен или пустую строку
	AccessToken(ctx context.Context) (string, error)

	// Current возвращает сохраненные данные авторизации
	// Returns storage.ErrAuthNotFound if no auth data exists
	Current(ctx context.Context) (*storage.AuthData, error)

	// IsAuthenticated checks if valid authentication exists
	IsAuthenticated(ctx context.Context) (bool, error)
}
