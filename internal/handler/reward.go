package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/reward"
	"github.com/dukerupert/foodbridge/internal/store"
	"github.com/dukerupert/foodbridge/internal/websocket"
)

type RewardHandler struct {
	rewards *store.RewardStore
	claims  *reward.Service
	broadcaster
	logger *slog.Logger
}

func NewRewardHandler(rs *store.RewardStore, claims *reward.Service, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{rewards: rs, claims: claims, broadcaster: broadcaster{hub}, logger: logger}
}

type rewardRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	PointsRequired int    `json:"points_required"`
	Type           string `json:"reward_type"`
	Value          string `json:"value"`
	Active         *bool  `json:"is_active"`
}

func (req rewardRequest) toReward() (model.Reward, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return model.Reward{}, apperr.Validationf("name is required")
	}
	if req.PointsRequired < 0 {
		return model.Reward{}, apperr.Validationf("points_required must be >= 0")
	}
	if req.Type == "" {
		req.Type = string(model.RewardVoucher)
	}
	typ, err := model.ParseRewardType(req.Type)
	if err != nil {
		return model.Reward{}, apperr.Validationf("%v", err)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return model.Reward{
		Name:           name,
		Description:    strings.TrimSpace(req.Description),
		PointsRequired: req.PointsRequired,
		Type:           typ,
		Value:          req.Value,
		Active:         active,
	}, nil
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rw, err := req.toReward()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	created, err := h.rewards.Create(r.Context(), rw)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("reward", "created", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

// List handles GET /api/rewards. By default only active, non-badge rewards
// are listed.
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := queryBool(r, "active_only", true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rewards, err := h.rewards.List(r.Context(), activeOnly, activeOnly)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rw, err := h.rewards.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if rw == nil {
		writeError(w, r, h.logger, notFound("reward", id))
		return
	}
	writeJSON(w, http.StatusOK, rw)
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req rewardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rw, err := req.toReward()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rw.ID = id

	updated, err := h.rewards.Update(r.Context(), rw)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if updated == nil {
		writeError(w, r, h.logger, notFound("reward", id))
		return
	}
	h.broadcast("reward", "updated", id)
	writeJSON(w, http.StatusOK, updated)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	existing, err := h.rewards.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if existing == nil {
		writeError(w, r, h.logger, notFound("reward", id))
		return
	}
	if err := h.rewards.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("reward", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

type claimRequest struct {
	AccountID int64 `json:"user_id"`
}

// Claim handles POST /api/rewards/{id}/claim
func (h *RewardHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.claims.Claim(r.Context(), req.AccountID, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("reward", "claimed", id)
	writeJSON(w, http.StatusCreated, result)
}

// Use handles PUT /api/rewards/claims/{id}/use
func (h *RewardHandler) Use(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	claim, err := h.claims.Use(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// ListClaims handles GET /api/users/{id}/rewards
func (h *RewardHandler) ListClaims(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	claims, err := h.claims.ListClaims(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if claims == nil {
		claims = []model.ClaimedReward{}
	}
	writeJSON(w, http.StatusOK, claims)
}
