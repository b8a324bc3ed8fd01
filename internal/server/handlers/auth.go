package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/internal/server/accounts"
	"github.com/iudanet/meetsync/internal/server/storage"
	"github.com/iudanet/meetsync/internal/validation"
	"github.com/iudanet/meetsync/pkg/api"
)

// AccountService операции над учетными записями, нужные обработчикам
type AccountService interface {
	Authenticate(ctx context.Context, username, password string) (*models.Account, error)
	WhoAmI(ctx context.Context, userID int) (*models.WhoAmI, error)
	Anonymous(ctx context.Context, guestEnabled bool) (*models.WhoAmI, error)
	IsSuperadmin(ctx context.Context, userID int) (bool, error)
}

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	logger       *slog.Logger
	accounts     AccountService
	accountStore storage.AccountStorage
	sessions     storage.SessionStorage
	jwtConfig    JWTConfig
	guestEnabled bool
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(
	logger *slog.Logger,
	accountService AccountService,
	accountStore storage.AccountStorage,
	sessions storage.SessionStorage,
	jwtConfig JWTConfig,
	guestEnabled bool,
) *AuthHandler {
	return &AuthHandler{
		logger:       logger,
		accounts:     accountService,
		accountStore: accountStore,
		sessions:     sessions,
		jwtConfig:    jwtConfig,
		guestEnabled: guestEnabled,
	}
}

// Login обрабатывает POST /apps/users/login/
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode login request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		sendError(h.logger, w, "password is required", http.StatusBadRequest)
		return
	}

	account, err := h.accounts.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			h.logger.WarnContext(ctx, "login failed", slog.String("username", req.Username))
			sendError(h.logger, w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to authenticate", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	accessToken, claims, err := GenerateAccessToken(h.jwtConfig, account.UserID, account.Username)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate access token", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	session := &models.Session{
		ID:        claims.ID,
		UserID:    account.UserID,
		CreatedAt: claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := h.sessions.CreateSession(ctx, session); err != nil {
		h.logger.ErrorContext(ctx, "failed to save session", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.accountStore.UpdateLastLogin(ctx, account.UserID, time.Now()); err != nil {
		// Не критичная ошибка, логируем но не прерываем
		h.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	}

	whoami, err := h.accounts.WhoAmI(ctx, account.UserID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build whoami", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}
	whoami.GuestEnabled = h.guestEnabled

	h.logger.InfoContext(ctx, "user logged in successfully",
		slog.String("username", account.Username),
		slog.Int("user_id", account.UserID))

	sendJSON(h.logger, w, api.LoginResponse{
		WhoAmI:      *whoami,
		AccessToken: accessToken,
		ExpiresIn:   int64(h.jwtConfig.AccessTokenTTL.Seconds()),
	}, http.StatusOK)
}

// Logout обрабатывает POST /apps/users/logout/, отзывает текущую сессию
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, ok := GetSessionID(ctx)
	if !ok {
		sendError(h.logger, w, "authentication required", http.StatusUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(ctx, sessionID); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		h.logger.ErrorContext(ctx, "failed to revoke session", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	userID, _ := GetUserID(ctx)
	h.logger.InfoContext(ctx, "user logged out successfully", slog.Int("user_id", userID))

	w.WriteHeader(http.StatusNoContent)
}

// WhoAmI обрабатывает GET /apps/users/whoami/
func (h *AuthHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		whoami *models.WhoAmI
		err    error
	)
	if userID, ok := GetUserID(ctx); ok {
		whoami, err = h.accounts.WhoAmI(ctx, userID)
	} else {
		whoami, err = h.accounts.Anonymous(ctx, h.guestEnabled)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build whoami", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}
	whoami.GuestEnabled = h.guestEnabled

	sendJSON(h.logger, w, whoami, http.StatusOK)
}
