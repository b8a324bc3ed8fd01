package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/internal/server/storage"
	"github.com/iudanet/meetsync/internal/validation"
	"github.com/iudanet/meetsync/pkg/api"
)

// ChangePublisher рассылает записанное изменение подписчикам autoupdate
type ChangePublisher interface {
	PublishChange(ctx context.Context, changeID int64, change *storage.Change)
}

// ElementsHandler обрабатывает запись элементов
type ElementsHandler struct {
	logger    *slog.Logger
	storage   storage.ElementStorage
	publisher ChangePublisher
}

// NewElementsHandler создает handler записи элементов
func NewElementsHandler(logger *slog.Logger, elements storage.ElementStorage, publisher ChangePublisher) *ElementsHandler {
	return &ElementsHandler{
		logger:    logger,
		storage:   elements,
		publisher: publisher,
	}
}

// Write обрабатывает POST /rest/elements/
func (h *ElementsHandler) Write(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req api.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode write request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	change, err := buildChange(&req)
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	change.UserID = &userID

	changeID, err := h.storage.WriteChange(ctx, change)
	if err != nil {
		if errors.Is(err, storage.ErrEmptyChange) {
			sendError(h.logger, w, "nothing to write", http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "failed to write change", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "change written",
		slog.Int64("change_id", changeID),
		slog.Int("user_id", userID),
		slog.Int("changed", len(change.Changed)),
		slog.Int("deleted", len(change.Deleted)))

	if h.publisher != nil {
		h.publisher.PublishChange(ctx, changeID, change)
	}

	sendJSON(h.logger, w, api.WriteResponse{ChangeID: changeID}, http.StatusOK)
}

// buildChange проверяет запрос и собирает изменение
func buildChange(req *api.WriteRequest) (*storage.Change, error) {
	if len(req.Changed) == 0 && len(req.Deleted) == 0 {
		return nil, fmt.Errorf("nothing to write")
	}

	change := &storage.Change{Information: req.Information}
	for _, ew := range req.Changed {
		if err := validation.ValidateCollection(ew.Collection); err != nil {
			return nil, err
		}
		e, err := models.NewElement(ew.Collection, ew.Data)
		if err != nil {
			return nil, err
		}
		if e.ID <= 0 {
			return nil, fmt.Errorf("%s: id must be positive", e.Key())
		}
		change.Changed = append(change.Changed, e)
	}
	for _, key := range req.Deleted {
		if err := validation.ValidateElementID(key); err != nil {
			return nil, err
		}
		change.Deleted = append(change.Deleted, models.ElementID(key))
	}
	return change, nil
}
