package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/snapshot"
	"github.com/dukerupert/foodbridge/internal/store"
)

type SnapshotHandler struct {
	manager *snapshot.Manager
	records *store.SnapshotStore
	logger  *slog.Logger
}

func NewSnapshotHandler(m *snapshot.Manager, records *store.SnapshotStore, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{manager: m, records: records, logger: logger}
}

// List handles GET /api/snapshots
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt64(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n := 20
	if limit != nil && *limit > 0 {
		n = int(*limit)
	}
	list, err := h.records.List(r.Context(), n)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    h.manager.Status(),
		"snapshots": list,
	})
}

// Run handles POST /api/snapshots
func (h *SnapshotHandler) Run(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.Run(r.Context())
	if errors.Is(err, snapshot.ErrDisabled) {
		writeMessage(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}
