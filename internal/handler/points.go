package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/store"
	"github.com/dukerupert/foodbridge/internal/websocket"
)

type PointsHandler struct {
	accounts *store.AccountStore
	points   *store.PointsStore
	broadcaster
	logger *slog.Logger
}

func NewPointsHandler(accounts *store.AccountStore, points *store.PointsStore, hub *websocket.Hub, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{accounts: accounts, points: points, broadcaster: broadcaster{hub}, logger: logger}
}

func (h *PointsHandler) requireAccount(ctx context.Context, id int64) error {
	ok, err := h.accounts.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("account", id)
	}
	return nil
}

// Get handles GET /api/users/{id}/points
func (h *PointsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.requireAccount(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	balance, err := h.points.Balance(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

type addPointsRequest struct {
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

// Add handles POST /api/users/{id}/points. A negative amount is a debit and
// cannot take the balance below zero.
func (h *PointsHandler) Add(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req addPointsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Points == 0 {
		writeError(w, r, h.logger, apperr.Validationf("points must be non-zero"))
		return
	}
	if err := h.requireAccount(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	reference := strings.TrimSpace(req.Reason)

	var balance *model.PointBalance
	if req.Points > 0 {
		balance, err = h.points.Credit(r.Context(), id, req.Points, model.PointReasonManual, reference)
	} else {
		balance, err = h.points.Debit(r.Context(), id, -req.Points, model.PointReasonManual, reference)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("points", "updated", id)
	writeJSON(w, http.StatusOK, balance)
}

// History handles GET /api/users/{id}/points/history
func (h *PointsHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit, err := queryInt64(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n := 0
	if limit != nil {
		n = int(*limit)
	}
	entries, err := h.points.History(r.Context(), id, n)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []model.PointEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
