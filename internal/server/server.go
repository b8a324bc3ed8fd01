// Package server собирает dev-сервер: хранилище, REST API и websocket hub
package server

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/meetsync/internal/config"
	"github.com/iudanet/meetsync/internal/crypto"
	"github.com/iudanet/meetsync/internal/server/accounts"
	"github.com/iudanet/meetsync/internal/server/handlers"
	"github.com/iudanet/meetsync/internal/server/hub"
	"github.com/iudanet/meetsync/internal/server/middleware"
	"github.com/iudanet/meetsync/internal/server/storage/sqlite"
	"github.com/iudanet/meetsync/pkg/api"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = 10 * time.Minute
)

// Options дополнительные параметры сборки сервера
type Options struct {
	Version        string
	PasswordParams crypto.Params
}

// Server dev-сервер
type Server struct {
	logger     *slog.Logger
	store      *sqlite.Storage
	accounts   *accounts.Service
	hub        *hub.Hub
	limiter    *middleware.RateLimiter
	httpServer *http.Server
}

// New открывает базу, создает начальные данные и собирает маршруты
func New(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger, opts Options) (*Server, error) {
	if opts.PasswordParams == (crypto.Params{}) {
		opts.PasswordParams = crypto.DefaultParams()
	}

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	accountService := accounts.New(logger, store, store, opts.PasswordParams)
	if err := accountService.Seed(ctx, cfg.AdminPassword); err != nil {
		return nil, errors.Join(err, store.Close())
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to generate jwt secret: %w", err), store.Close())
		}
		logger.WarnContext(ctx, "jwt secret is not configured, tokens will not survive restart")
	}
	jwtConfig := handlers.JWTConfig{Secret: secret, AccessTokenTTL: cfg.TokenTTL()}

	version, err := json.Marshal(opts.Version)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	settings := hub.DefaultSettings()
	settings.GuestEnabled = cfg.GuestEnabled
	settings.Constants = api.ConstantsContent{"ServerVersion": version}

	s := &Server{
		logger:   logger,
		store:    store,
		accounts: accountService,
		hub:      hub.New(logger, store, accountService, settings),
		limiter:  middleware.NewRateLimiter(cfg.RateLimit, time.Minute, logger),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(jwtConfig, cfg.GuestEnabled, opts.Version),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(jwtConfig handlers.JWTConfig, guestEnabled bool, version string) http.Handler {
	authHandler := handlers.NewAuthHandler(s.logger, s.accounts, s.store, s.store, jwtConfig, guestEnabled)
	elementsHandler := handlers.NewElementsHandler(s.logger, s.store, s.hub)
	historyHandler := handlers.NewHistoryHandler(s.logger, s.accounts, s.store)
	healthHandler := handlers.NewHealthHandler(s.logger, s.store, version)

	r := mux.NewRouter()
	r.Use(
		middleware.LoggingMiddleware(s.logger, "/health"),
		middleware.RecoveryMiddleware(s.logger),
	)
	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	authed := r.NewRoute().Subrouter()
	authed.Use(middleware.AuthMiddleware(s.logger, jwtConfig, s.store))

	authed.Handle("/apps/users/login/", s.limiter.Middleware(http.HandlerFunc(authHandler.Login))).Methods(http.MethodPost)
	authed.HandleFunc("/apps/users/logout/", authHandler.Logout).Methods(http.MethodPost)
	authed.HandleFunc("/apps/users/whoami/", authHandler.WhoAmI).Methods(http.MethodGet)
	authed.HandleFunc("/rest/elements/", elementsHandler.Write).Methods(http.MethodPost)
	authed.HandleFunc("/apps/core/history/data/", historyHandler.Data).Methods(http.MethodGet)
	authed.HandleFunc("/apps/core/history/information/", historyHandler.Information).Methods(http.MethodGet)
	authed.Handle("/ws/", s.hub).Methods(http.MethodGet)

	return r
}

// Handler возвращает корневой http.Handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run обслуживает запросы до отмены ctx, затем останавливает сервер
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.InfoContext(ctx, "server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.cleanupSessions(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.InfoContext(ctx, "shutting down server")
	s.limiter.Stop()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.hub.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// cleanupSessions периодически удаляет истекшие и отозванные сессии
func (s *Server) cleanupSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.DeleteExpiredSessions(ctx)
			if err != nil {
				s.logger.WarnContext(ctx, "failed to delete expired sessions", slog.Any("error", err))
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "expired sessions deleted", slog.Int("count", n))
			}
		}
	}
}

// Close освобождает ресурсы, которые не закрывает Run
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.store.Close()
}
