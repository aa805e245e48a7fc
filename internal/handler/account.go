package handler

import (
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/store"
	"github.com/dukerupert/foodbridge/internal/websocket"
)

type AccountHandler struct {
	accounts *store.AccountStore
	broadcaster
	logger *slog.Logger
}

func NewAccountHandler(accounts *store.AccountStore, hub *websocket.Hub, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, broadcaster: broadcaster{hub}, logger: logger}
}

type accountRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, h.logger, apperr.Validationf("name is required"))
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, r, h.logger, apperr.Validationf("invalid email %q", req.Email))
		return
	}

	account, err := h.accounts.Create(r.Context(), req.Email, req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("account", "created", account.ID)
	writeJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	account, err := h.accounts.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if account == nil {
		writeError(w, r, h.logger, notFound("account", id))
		return
	}
	writeJSON(w, http.StatusOK, account)
}
