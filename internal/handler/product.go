package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/foodbridge/internal/apperr"
	"github.com/dukerupert/foodbridge/internal/inventory"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/websocket"
)

type ProductHandler struct {
	inventory *inventory.Service
	broadcaster
	logger *slog.Logger
}

func NewProductHandler(inv *inventory.Service, hub *websocket.Hub, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{inventory: inv, broadcaster: broadcaster{hub}, logger: logger}
}

type productRequest struct {
	Name       string `json:"product_name"`
	ExpiryDate string `json:"expiry_date"`
	Count      int    `json:"count"`
	Category   string `json:"type_product"`
}

// Create handles POST /api/accounts/{id}/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.ExpiryDate == "" {
		writeError(w, r, h.logger, apperr.Validationf("expiry_date is required"))
		return
	}
	expiry, err := parseDate("expiry_date", req.ExpiryDate)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	product, err := h.inventory.Add(r.Context(), inventory.AddRequest{
		OwnerID:    ownerID,
		Name:       req.Name,
		Count:      req.Count,
		Category:   req.Category,
		ExpiryDate: expiry,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("product", "created", product.ID)
	writeJSON(w, http.StatusCreated, product)
}

// List handles GET /api/accounts/{id}/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	products, err := h.inventory.List(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	product, err := h.inventory.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

type productPatchRequest struct {
	Name       *string `json:"product_name"`
	ExpiryDate *string `json:"expiry_date"`
	Count      *int    `json:"count"`
	Category   *string `json:"type_product"`
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req productPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	patch := model.ProductPatch{Name: req.Name, Count: req.Count, Category: req.Category}
	if req.ExpiryDate != nil {
		expiry, err := parseDate("expiry_date", *req.ExpiryDate)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		patch.ExpiryDate = &expiry
	}

	product, err := h.inventory.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("product", "updated", id)
	writeJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.inventory.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast("product", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}
