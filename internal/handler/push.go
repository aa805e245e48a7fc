package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/store"
)

type PushHandler struct {
	accounts  *store.AccountStore
	pushStore *store.PushStore
	publicKey string
	logger    *slog.Logger
}

// NewPushHandler takes the VAPID public key browsers subscribe with. An
// empty key means push is disabled.
func NewPushHandler(accounts *store.AccountStore, ps *store.PushStore, vapidPublicKey string, logger *slog.Logger) *PushHandler {
	return &PushHandler{accounts: accounts, pushStore: ps, publicKey: vapidPublicKey, logger: logger}
}

// VAPIDKey handles GET /api/push/vapid-public-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":    h.publicKey != "",
		"public_key": h.publicKey,
	})
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/accounts/{id}/push-subscriptions
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, r, h.logger, apperr.Validationf("endpoint, p256dh, and auth are required"))
		return
	}
	ok, err := h.accounts.Exists(r.Context(), accountID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !ok {
		writeError(w, r, h.logger, notFound("account", accountID))
		return
	}

	sub, err := h.pushStore.CreateSubscription(r.Context(), accountID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListSubscriptions handles GET /api/accounts/{id}/push-subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	subs, err := h.pushStore.ListByAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// Unsubscribe handles DELETE /api/push-subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.pushStore.DeleteSubscription(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
