package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/internal/server/storage"
	"github.com/iudanet/meetsync/pkg/api"
)

// handleMessage разбирает проверенный по схеме кадр и отвечает клиенту
func (h *Hub) handleMessage(ctx context.Context, c *client, raw []byte) {
	if err := h.validator.Validate(raw); err != nil {
		c.enqueue(errorMessage(api.ErrorCodeWrongFormat, err.Error(), messageID(raw)))
		return
	}

	var msg api.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.enqueue(errorMessage(api.ErrorCodeWrongFormat, err.Error(), ""))
		return
	}

	switch msg.Type {
	case api.TypePing:
		c.enqueue(&api.Message{Type: api.TypePong, InResponse: msg.ID})
	case api.TypeGetElements:
		var req api.GetElementsRequest
		if err := json.Unmarshal(msg.Content, &req); err != nil {
			c.enqueue(errorMessage(api.ErrorCodeWrongFormat, err.Error(), msg.ID))
			return
		}
		h.sendChanges(ctx, c, req.ChangeID, msg.ID)
	case api.TypeNotify:
		h.handleNotify(ctx, c, &msg)
	case api.TypeConstants:
		content, err := json.Marshal(h.settings.Constants)
		if err != nil {
			c.enqueue(errorMessage(api.ErrorCodeWrongFormat, err.Error(), msg.ID))
			return
		}
		c.enqueue(&api.Message{Type: api.TypeConstants, Content: content, InResponse: msg.ID})
	case api.TypeListenToProjectors:
		// проекторов на dev-сервере нет
		c.logger.DebugContext(ctx, "listenToProjectors ignored")
	default:
		c.enqueue(errorMessage(api.ErrorCodeWrongFormat, "unknown message type "+msg.Type, msg.ID))
	}
}

// messageID достает id из кадра, не прошедшего проверку схемы
func messageID(raw []byte) string {
	var head struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &head)
	return head.ID
}

// sendChanges отправляет клиенту изменения начиная с changeID.
// 0 означает все данные. changeID выше max+1 дает ошибку 101.
// Если изменений нет, ответ отправляется только на явный запрос.
func (h *Hub) sendChanges(ctx context.Context, c *client, changeID int64, inResponse string) {
	var au *api.Autoupdate
	if changeID == 0 {
		elements, maxID, err := h.elements.AllElements(ctx)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to load all data", slog.Any("error", err))
			return
		}
		au = newAutoupdate(elements, nil, 0, maxID)
		au.AllData = true
	} else {
		delta, err := h.elements.ChangesSince(ctx, changeID)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to load changes", slog.Any("error", err))
			return
		}
		if changeID > delta.ToChangeID+1 {
			c.enqueue(errorMessage(api.ErrorCodeChangeIDTooHigh,
				"change_id is higher than the highest change id of the server", inResponse))
			return
		}
		if changeID == delta.ToChangeID+1 && inResponse == "" {
			return
		}
		au = newAutoupdate(delta.Changed, delta.Deleted, changeID, delta.ToChangeID)
	}

	msg, err := api.NewMessage(api.TypeAutoupdate, au, "")
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to encode autoupdate", slog.Any("error", err))
		return
	}
	msg.InResponse = inResponse
	c.enqueue(msg)
}

func newAutoupdate(changed []models.Element, deleted map[string][]int, from, to int64) *api.Autoupdate {
	au := &api.Autoupdate{
		Changed:      make(map[string][]json.RawMessage),
		Deleted:      make(map[string][]int),
		FromChangeID: from,
		ToChangeID:   to,
	}
	for _, e := range changed {
		au.Changed[e.Collection] = append(au.Changed[e.Collection], e.Data)
	}
	for collection, ids := range deleted {
		au.Deleted[collection] = slices.Clone(ids)
	}
	return au
}

// PublishChange рассылает записанное изменение всем клиентам с autoupdate
func (h *Hub) PublishChange(ctx context.Context, changeID int64, change *storage.Change) {
	deleted := make(map[string][]int)
	for _, key := range change.Deleted {
		collection, id, err := models.ParseElementID(string(key))
		if err != nil {
			continue
		}
		deleted[collection] = append(deleted[collection], id)
	}

	msg, err := api.NewMessage(api.TypeAutoupdate, newAutoupdate(change.Changed, deleted, changeID, changeID), "")
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode autoupdate", slog.Any("error", err))
		return
	}

	recipients := h.snapshot(func(c *client) bool { return c.autoupdate })
	for _, c := range recipients {
		c.enqueue(msg)
	}
	h.logger.DebugContext(ctx, "change published",
		slog.Int64("change_id", changeID),
		slog.Int("recipients", len(recipients)))
}

// handleNotify пересылает notify адресатам: пользователям из users
// (true - всем) и каналам из replyChannels
func (h *Hub) handleNotify(ctx context.Context, c *client, msg *api.Message) {
	var req struct {
		Content       json.RawMessage `json:"content"`
		Users         json.RawMessage `json:"users"`
		Name          string          `json:"name"`
		ReplyChannels []string        `json:"replyChannels"`
	}
	if err := json.Unmarshal(msg.Content, &req); err != nil {
		c.enqueue(errorMessage(api.ErrorCodeWrongFormat, err.Error(), msg.ID))
		return
	}

	if req.Name == api.NotifySWCheckForUpdate {
		superadmin, err := h.access.IsSuperadmin(ctx, c.userID)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to check permissions", slog.Any("error", err))
			return
		}
		if !superadmin {
			c.enqueue(errorMessage(api.ErrorCodeNotAuthorized, "You are not allowed to send this notify", msg.ID))
			return
		}
	}

	allUsers := string(req.Users) == "true"
	var userIDs []int
	if !allUsers && len(req.Users) > 0 && string(req.Users) != "null" {
		if err := json.Unmarshal(req.Users, &userIDs); err != nil {
			c.enqueue(errorMessage(api.ErrorCodeWrongFormat, "users must be a list of ids or true", msg.ID))
			return
		}
	}

	out, err := api.NewMessage(api.TypeNotify, api.NotifyMessage{
		Content:           req.Content,
		Name:              req.Name,
		SenderChannelName: c.channel,
		SenderUserID:      c.userID,
	}, "")
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to encode notify", slog.Any("error", err))
		return
	}

	recipients := h.snapshot(func(r *client) bool {
		return allUsers ||
			(r.userID != 0 && slices.Contains(userIDs, r.userID)) ||
			slices.Contains(req.ReplyChannels, r.channel)
	})
	for _, r := range recipients {
		r.enqueue(out)
	}
	c.logger.DebugContext(ctx, "notify forwarded",
		slog.String("name", req.Name),
		slog.Int("recipients", len(recipients)))
}
