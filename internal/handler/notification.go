package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/store"
)

type NotificationHandler struct {
	notifications *store.NotificationStore
	logger        *slog.Logger
}

func NewNotificationHandler(ns *store.NotificationStore, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: ns, logger: logger}
}

// List handles GET /api/accounts/{id}/notifications?unread_only=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	unreadOnly, err := queryBool(r, "unread_only", false)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := h.notifications.ListByAccount(r.Context(), id, unreadOnly)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// MarkRead handles PUT /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok, err := h.notifications.MarkRead(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !ok {
		writeError(w, r, h.logger, notFound("notification", id))
		return
	}
	n, err := h.notifications.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
