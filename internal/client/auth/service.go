package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/meetsync/internal/client/storage"
	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/internal/validation"
	pkgapi "github.com/iudanet/meetsync/pkg/api"
)

//go:generate moq -out client_mock.go . Client

// Client часть API клиента, нужная для авторизации
type Client interface {
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.LoginResponse, error)
	Logout(ctx context.Context) error
}

// AuthService реализует Service поверх API клиента и AuthStorage
type AuthService struct {
	apiClient Client
	authStore storage.AuthStorage
	logger    *slog.Logger
	now       func() time.Time
}

// Compile-time check that AuthService implements Service
var _ Service = (*AuthService)(nil)

// NewService создает новый сервис авторизации
func NewService(apiClient Client, authStore storage.AuthStorage, logger *slog.Logger) *AuthService {
	return &AuthService{
		apiClient: apiClient,
		authStore: authStore,
		logger:    logger,
		now:       time.Now,
	}
}

// Login выполняет аутентификацию пользователя
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.WhoAmI, error) {
	// Валидация входных данных
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	resp, err := s.apiClient.Login(ctx, pkgapi.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	authData := &storage.AuthData{
		Username:    username,
		AccessToken: resp.AccessToken,
		UserID:      resp.WhoAmI.ID(),
	}
	if resp.ExpiresIn > 0 {
		authData.ExpiresAt = s.now().Add(time.Duration(resp.ExpiresIn) * time.Second).Unix()
	}
	if err := s.authStore.SaveAuth(ctx, authData); err != nil {
		return nil, fmt.Errorf("failed to save auth data: %w", err)
	}

	s.logger.Info("Logged in", "username", username, "user_id", authData.UserID)

	whoami := resp.WhoAmI
	return whoami.Clone(), nil
}

// Logout выполняет выход из системы
// Удаляет локальные данные авторизации и уведомляет сервер
func (s *AuthService) Logout(ctx context.Context) error {
	// 1. Уведомляем сервер, только если есть токен
	if _, err := s.authStore.GetAuth(ctx); err != nil {
		s.logger.Debug("no auth data found during logout", "error", err)
	} else if logoutErr := s.apiClient.Logout(ctx); logoutErr != nil {
		// Не прерываем процесс, если сервер недоступен
		s.logger.Warn("failed to logout on server", "error", logoutErr)
	}

	// 2. Всегда удаляем локальные данные, даже если сервер недоступен
	if err := s.authStore.DeleteAuth(ctx); err != nil && !errors.Is(err, storage.ErrAuthNotFound) {
		return fmt.Errorf("failed to delete local auth data: %w", err)
	}
	return nil
}

// AccessToken возвращает сохраненный токен, если он не истек.
// Отсутствие токена не ошибка: запрос уйдет анонимно.
func (s *AuthService) AccessToken(ctx context.Context) (string, error) {
	authData, err := s.authStore.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get auth data: %w", err)
	}
	if authData.ExpiresAt > 0 && s.now().Unix() >= authData.ExpiresAt {
		s.logger.Debug("access token expired", "username", authData.Username)
		return "", nil
	}
	return authData.AccessToken, nil
}

// Current возвращает сохраненные данные авторизации
func (s *AuthService) Current(ctx context.Context) (*storage.AuthData, error) {
	return s.authStore.GetAuth(ctx)
}

// IsAuthenticated checks if valid authentication exists
func (s *AuthService) IsAuthenticated(ctx context.Context) (bool, error) {
	return s.authStore.IsAuthenticated(ctx)
}
