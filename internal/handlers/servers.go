package handlers

import (
	"net/http"
	"strconv"

	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/models"
	"github.com/tphummel/rackline/internal/service"
)

// CreateServer handles POST /api/v1/servers.
func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	var req service.ServerInput
	if !decodeJSON(w, r, &req) {
		return
	}
	srv, err := h.Service.CreateServer(r.Context(), req, actor(r))
	writeCreated(w, r, srv, err)
}

// ListServers handles GET /api/v1/servers with optional ?status=, ?batch_id=,
// ?search= and ?unclustered= filters.
func (h *Handler) ListServers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := db.ServerFilter{
		Status:  models.ServerStatus(q.Get("status")),
		BatchID: q.Get("batch_id"),
		Search:  q.Get("search"),
	}
	if f.Status != "" && !models.ValidServerStatuses[f.Status] {
		writeError(w, http.StatusBadRequest, "VALIDATION", "invalid status")
		return
	}
	if v := q.Get("unclustered"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "unclustered must be a boolean")
			return
		}
		f.Unclustered = b
	}
	servers, err := h.Service.ListServers(r.Context(), f)
	if servers == nil {
		servers = []*models.Server{}
	}
	writeResult(w, r, servers, err)
}

// GetServer handles GET /api/v1/servers/{id}.
func (h *Handler) GetServer(w http.ResponseWriter, r *http.Request) {
	srv, err := h.Service.GetServer(r.Context(), r.PathValue("id"))
	writeResult(w, r, srv, err)
}

// DeleteServer handles DELETE /api/v1/servers/{id}. Admin only.
func (h *Handler) DeleteServer(w http.ResponseWriter, r *http.Request) {
	writeNoContent(w, r, h.Service.DeleteServer(r.Context(), r.PathValue("id"), actor(r)))
}

// TakeServer handles POST /api/v1/servers/{id}/take.
func (h *Handler) TakeServer(w http.ResponseWriter, r *http.Request) {
	srv, err := h.Service.Take(r.Context(), r.PathValue("id"), actor(r))
	writeResult(w, r, srv, err)
}

// ReleaseServer handles POST /api/v1/servers/{id}/release.
func (h *Handler) ReleaseServer(w http.ResponseWriter, r *http.Request) {
	srv, err := h.Service.Release(r.Context(), r.PathValue("id"), actor(r))
	writeResult(w, r, srv, err)
}

type statusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// SetServerStatus handles PUT /api/v1/servers/{id}/status.
func (h *Handler) SetServerStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	srv, err := h.Service.SetStatus(r.Context(), r.PathValue("id"), models.ServerStatus(req.Status), actor(r), req.Notes)
	writeResult(w, r, srv, err)
}

// ArchiveServer handles POST /api/v1/servers/{id}/archive.
func (h *Handler) ArchiveServer(w http.ResponseWriter, r *http.Request) {
	srv, err := h.Service.Archive(r.Context(), r.PathValue("id"), actor(r))
	writeResult(w, r, srv, err)
}

// UnarchiveServer handles POST /api/v1/servers/{id}/unarchive.
func (h *Handler) UnarchiveServer(w http.ResponseWriter, r *http.Request) {
	srv, err := h.Service.Unarchive(r.Context(), r.PathValue("id"), actor(r))
	writeResult(w, r, srv, err)
}

// UpdateServerNotes handles PUT /api/v1/servers/{id}/notes.
func (h *Handler) UpdateServerNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	srv, err := h.Service.UpdateNotes(r.Context(), r.PathValue("id"), req.Notes, actor(r))
	writeResult(w, r, srv, err)
}

// AssignAPKSerial handles PUT /api/v1/servers/{id}/apk-serial.
func (h *Handler) AssignAPKSerial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APKSerialNumber string `json:"apk_serial_number"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	srv, err := h.Service.AssignAPKSerial(r.Context(), r.PathValue("id"), req.APKSerialNumber, actor(r))
	writeResult(w, r, srv, err)
}

// UpdateServerNetwork handles PUT /api/v1/servers/{id}/network.
func (h *Handler) UpdateServerNetwork(w http.ResponseWriter, r *http.Request) {
	var req service.NetworkInput
	if !decodeJSON(w, r, &req) {
		return
	}
	srv, err := h.Service.UpdateNetwork(r.Context(), r.PathValue("id"), req, actor(r))
	writeResult(w, r, srv, err)
}

// RefreshLease handles POST /api/v1/servers/{id}/refresh-lease.
func (h *Handler) RefreshLease(w http.ResponseWriter, r *http.Request) {
	srv, err := h.Service.RefreshLease(r.Context(), r.PathValue("id"), actor(r))
	writeResult(w, r, srv, err)
}

// RemoveServerFromBatch handles DELETE /api/v1/servers/{id}/batch.
func (h *Handler) RemoveServerFromBatch(w http.ResponseWriter, r *http.Request) {
	srv, err := h.Service.RemoveFromBatch(r.Context(), r.PathValue("id"), actor(r))
	writeResult(w, r, srv, err)
}

// ServerHistory handles GET /api/v1/servers/{id}/history.
func (h *Handler) ServerHistory(w http.ResponseWriter, r *http.Request) {
	f, ok := historyFilter(w, r)
	if !ok {
		return
	}
	f.ServerID = r.PathValue("id")
	if _, err := h.Service.GetServer(r.Context(), f.ServerID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeHistory(w, r, f)
}

// TimeInStatus handles GET /api/v1/servers/{id}/time-in-status.
func (h *Handler) TimeInStatus(w http.ResponseWriter, r *http.Request) {
	secs, err := h.Service.TimeInStatus(r.Context(), r.PathValue("id"))
	writeResult(w, r, secs, err)
}

// SerialUnique handles GET /api/v1/identity/serial-unique?serial=.
func (h *Handler) SerialUnique(w http.ResponseWriter, r *http.Request) {
	serial := r.URL.Query().Get("serial")
	if serial == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION", "serial is required")
		return
	}
	unique, err := h.Service.IsSerialUnique(r.Context(), serial)
	writeResult(w, r, map[string]any{"serial": serial, "unique": unique}, err)
}

// Collisions handles GET /api/v1/identity/collisions.
func (h *Handler) Collisions(w http.ResponseWriter, r *http.Request) {
	found, err := h.Service.FindCollisions(r.Context())
	if found == nil {
		found = []db.IdentifierCollision{}
	}
	writeResult(w, r, found, err)
}
