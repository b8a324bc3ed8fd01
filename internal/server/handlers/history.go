package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/meetsync/internal/server/storage"
)

// HistoryHandler отдает журнал изменений
type HistoryHandler struct {
	logger   *slog.Logger
	accounts AccountService
	storage  storage.ElementStorage
}

// NewHistoryHandler создает handler истории
func NewHistoryHandler(logger *slog.Logger, accounts AccountService, elements storage.ElementStorage) *HistoryHandler {
	return &HistoryHandler{
		logger:   logger,
		accounts: accounts,
		storage:  elements,
	}
}

// Data обрабатывает GET /apps/core/history/data/?timestamp=N.
// Доступно только superadmin.
func (h *HistoryHandler) Data(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "authentication required", http.StatusUnauthorized)
		return
	}
	superadmin, err := h.accounts.IsSuperadmin(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to check permissions", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !superadmin {
		sendError(h.logger, w, "you are not allowed to see the history", http.StatusForbidden)
		return
	}

	timestamp, err := strconv.ParseInt(r.URL.Query().Get("timestamp"), 10, 64)
	if err != nil || timestamp <= 0 {
		sendError(h.logger, w, "timestamp must be a positive unix time", http.StatusBadRequest)
		return
	}

	records, err := h.storage.HistoryData(ctx, timestamp)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load history", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, records, http.StatusOK)
}

// Information обрабатывает GET /apps/core/history/information/
func (h *HistoryHandler) Information(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := GetUserID(ctx); !ok {
		sendError(h.logger, w, "authentication required", http.StatusUnauthorized)
		return
	}

	points, err := h.storage.HistoryInformation(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load history information", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, points, http.StatusOK)
}
