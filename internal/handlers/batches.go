package handlers

import (
	"net/http"

	"github.com/tphummel/rackline/internal/models"
	"github.com/tphummel/rackline/internal/service"
)

// CreateBatch handles POST /api/v1/batches.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req service.BatchInput
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.Service.CreateBatch(r.Context(), req, actor(r))
	writeCreated(w, r, b, err)
}

// ListBatches handles GET /api/v1/batches.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.Service.ListBatches(r.Context())
	if batches == nil {
		batches = []*models.Batch{}
	}
	writeResult(w, r, batches, err)
}

// GetBatch handles GET /api/v1/batches/{id}.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.GetBatch(r.Context(), r.PathValue("id"))
	writeResult(w, r, b, err)
}

// UpdateBatch handles PUT /api/v1/batches/{id}.
func (h *Handler) UpdateBatch(w http.ResponseWriter, r *http.Request) {
	var req service.BatchInput
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.Service.UpdateBatch(r.Context(), r.PathValue("id"), req, actor(r))
	writeResult(w, r, b, err)
}

// DeleteBatch handles DELETE /api/v1/batches/{id}. Member servers are
// detached, not deleted.
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	writeNoContent(w, r, h.Service.DeleteBatch(r.Context(), r.PathValue("id"), actor(r)))
}

// BatchStats handles GET /api/v1/batches/{id}/stats.
func (h *Handler) BatchStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Service.BatchStats(r.Context(), r.PathValue("id"))
	writeResult(w, r, st, err)
}

// AssignBatchServers handles POST /api/v1/batches/{id}/servers. Responds 207
// when some servers were rejected.
func (h *Handler) AssignBatchServers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServerIDs []string `json:"server_ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.ServerIDs) == 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION", "server_ids is required")
		return
	}
	res, err := h.Service.AssignToBatch(r.Context(), r.PathValue("id"), req.ServerIDs, actor(r))
	writeBatch(w, r, res, err)
}
