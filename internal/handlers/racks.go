package handlers

import (
	"net/http"

	"github.com/tphummel/rackline/internal/models"
	"github.com/tphummel/rackline/internal/service"
)

// CreateRack handles POST /api/v1/racks.
func (h *Handler) CreateRack(w http.ResponseWriter, r *http.Request) {
	var req service.RackInput
	if !decodeJSON(w, r, &req) {
		return
	}
	rack, err := h.Service.CreateRack(r.Context(), req, actor(r))
	writeCreated(w, r, rack, err)
}

// ListRacks handles GET /api/v1/racks.
func (h *Handler) ListRacks(w http.ResponseWriter, r *http.Request) {
	racks, err := h.Service.ListRacks(r.Context())
	if racks == nil {
		racks = []*models.Rack{}
	}
	writeResult(w, r, racks, err)
}

// GetRack handles GET /api/v1/racks/{id}. The response includes every unit.
func (h *Handler) GetRack(w http.ResponseWriter, r *http.Request) {
	rack, err := h.Service.GetRack(r.Context(), r.PathValue("id"))
	writeResult(w, r, rack, err)
}

// UpdateRack handles PUT /api/v1/racks/{id}.
func (h *Handler) UpdateRack(w http.ResponseWriter, r *http.Request) {
	var req service.RackInput
	if !decodeJSON(w, r, &req) {
		return
	}
	rack, err := h.Service.UpdateRack(r.Context(), r.PathValue("id"), req, actor(r))
	writeResult(w, r, rack, err)
}

// DeleteRack handles DELETE /api/v1/racks/{id}.
func (h *Handler) DeleteRack(w http.ResponseWriter, r *http.Request) {
	writeNoContent(w, r, h.Service.DeleteRack(r.Context(), r.PathValue("id"), actor(r)))
}

// RackStats handles GET /api/v1/racks/{id}/stats.
func (h *Handler) RackStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Service.RackStats(r.Context(), r.PathValue("id"))
	writeResult(w, r, st, err)
}

// FreeUnits handles GET /api/v1/racks/{id}/free-units.
func (h *Handler) FreeUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.Service.ListFreeUnits(r.Context(), r.PathValue("id"))
	if units == nil {
		units = []models.RackUnit{}
	}
	writeResult(w, r, units, err)
}

type placeRequest struct {
	ServerID string `json:"server_id"`
	models.UnitData
}

// PlaceInUnit handles PUT /api/v1/racks/{id}/units/{unit}.
func (h *Handler) PlaceInUnit(w http.ResponseWriter, r *http.Request) {
	unit, ok := pathInt(w, r, "unit")
	if !ok {
		return
	}
	var req placeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ServerID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION", "server_id is required")
		return
	}
	u, err := h.Service.PlaceInUnit(r.Context(), r.PathValue("id"), unit, req.ServerID, req.UnitData, actor(r))
	writeResult(w, r, u, err)
}

// TakeUnitToWork handles POST /api/v1/racks/{id}/units/{unit}/take.
func (h *Handler) TakeUnitToWork(w http.ResponseWriter, r *http.Request) {
	unit, ok := pathInt(w, r, "unit")
	if !ok {
		return
	}
	u, err := h.Service.TakeUnitToWork(r.Context(), r.PathValue("id"), unit, actor(r))
	writeResult(w, r, u, err)
}

// RemoveFromUnit handles DELETE /api/v1/racks/{id}/units/{unit}.
func (h *Handler) RemoveFromUnit(w http.ResponseWriter, r *http.Request) {
	unit, ok := pathInt(w, r, "unit")
	if !ok {
		return
	}
	u, err := h.Service.RemoveFromUnit(r.Context(), r.PathValue("id"), unit, actor(r))
	writeResult(w, r, u, err)
}

// MoveServer handles POST /api/v1/racks/{id}/units/{unit}/move.
func (h *Handler) MoveServer(w http.ResponseWriter, r *http.Request) {
	unit, ok := pathInt(w, r, "unit")
	if !ok {
		return
	}
	var req struct {
		ToRackID     string `json:"to_rack_id"`
		ToUnitNumber int    `json:"to_unit_number"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ToRackID == "" {
		req.ToRackID = r.PathValue("id")
	}
	u, err := h.Service.MoveServer(r.Context(), r.PathValue("id"), unit, req.ToRackID, req.ToUnitNumber, actor(r))
	writeResult(w, r, u, err)
}
