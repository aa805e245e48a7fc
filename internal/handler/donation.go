package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/donation"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/pickup"
	"github.com/dukerupert/foodbridge/internal/websocket"
)

type DonationHandler struct {
	svc           *donation.Service
	defaultRadius float64
	qrSize        int
	broadcaster
	logger *slog.Logger
}

func NewDonationHandler(svc *donation.Service, defaultRadiusKm float64, qrSize int, hub *websocket.Hub, logger *slog.Logger) *DonationHandler {
	return &DonationHandler{
		svc:           svc,
		defaultRadius: defaultRadiusKm,
		qrSize:        qrSize,
		broadcaster:   broadcaster{hub},
		logger:        logger,
	}
}

type proposeRequest struct {
	DonorID   int64    `json:"donor_user_id"`
	Items     []string `json:"type_of_food"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Propose handles POST /api/donations
func (h *DonationHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.svc.Propose(r.Context(), donation.ProposeRequest{
		DonorID:   req.DonorID,
		Items:     req.Items,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("donation", "created", result.Donation.ID)
	writeJSON(w, http.StatusCreated, result)
}

// List handles GET /api/donations?status=&user_id=&active_only=
func (h *DonationHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter model.DonationFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := model.ParseDonationStatus(raw)
		if err != nil {
			writeError(w, r, h.logger, apperr.Validationf("%v", err))
			return
		}
		filter.Status = &status
	}
	donor, err := queryInt64(r, "user_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filter.DonorID = donor
	if filter.ActiveOnly, err = queryBool(r, "active_only", true); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	list, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Nearby handles GET /api/donations/nearby
func (h *DonationHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	lat, err := queryFloat(r, "latitude")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	lon, err := queryFloat(r, "longitude")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if lat == nil || lon == nil {
		writeError(w, r, h.logger, apperr.Validationf("latitude and longitude are required"))
		return
	}
	radius := h.defaultRadius
	if v, err := queryFloat(r, "radius_km"); err != nil {
		writeError(w, r, h.logger, err)
		return
	} else if v != nil {
		radius = *v
	}
	var requester int64
	if v, err := queryInt64(r, "user_id"); err != nil {
		writeError(w, r, h.logger, err)
		return
	} else if v != nil {
		requester = *v
	}

	nearby, err := h.svc.Discover(r.Context(), requester, *lat, *lon, radius)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nearby)
}

func (h *DonationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	d, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Update handles PUT /api/donations/{id}
func (h *DonationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var patch model.DonationPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if patch.Status != nil {
		if _, err := model.ParseDonationStatus(string(*patch.Status)); err != nil {
			writeError(w, r, h.logger, apperr.Validationf("%v", err))
			return
		}
	}

	d, err := h.svc.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("donation", "updated", id)
	writeJSON(w, http.StatusOK, d)
}

func (h *DonationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("donation", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles POST /api/donations/{id}/cancel and returns the restored
// inventory rows.
func (h *DonationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	restored, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if restored == nil {
		restored = []model.Product{}
	}
	h.broadcast("donation", "deleted", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"donation_id":       id,
		"restored_products": restored,
	})
}

type acceptRequest struct {
	ReceiverID int64 `json:"receiver_user_id"`
}

// Accept handles POST /api/donations/{id}/accept
func (h *DonationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req acceptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.svc.Accept(r.Context(), id, req.ReceiverID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("donation", "accepted", id)
	writeJSON(w, http.StatusOK, result)
}

type verifyRequest struct {
	Token string `json:"qr_hash"`
}

// VerifyPickup handles POST /api/donations/verify-pickup
func (h *DonationHandler) VerifyPickup(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.svc.VerifyPickup(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("donation", "completed", result.Donation.ID)
	writeJSON(w, http.StatusOK, result)
}

// QRCode handles GET /api/donations/{id}/qrcode and renders the pickup token
// as a PNG.
func (h *DonationHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	token, err := h.svc.Token(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	png, err := pickup.QR(token, h.qrSize)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
