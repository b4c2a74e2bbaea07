package handlers

import (
	"net/http"

	"github.com/tphummel/rackline/internal/models"
	"github.com/tphummel/rackline/internal/service"
)

// CreateCluster handles POST /api/v1/clusters.
func (h *Handler) CreateCluster(w http.ResponseWriter, r *http.Request) {
	var req service.ClusterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Service.CreateCluster(r.Context(), req, actor(r))
	writeCreated(w, r, c, err)
}

// ListClusters handles GET /api/v1/clusters with an optional ?shipment_id=
// filter.
func (h *Handler) ListClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := h.Service.ListClusters(r.Context(), r.URL.Query().Get("shipment_id"))
	if clusters == nil {
		clusters = []*models.Cluster{}
	}
	writeResult(w, r, clusters, err)
}

// GetCluster handles GET /api/v1/clusters/{id}. The response includes the
// members in order.
func (h *Handler) GetCluster(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetCluster(r.Context(), r.PathValue("id"))
	writeResult(w, r, c, err)
}

// UpdateCluster handles PUT /api/v1/clusters/{id}.
func (h *Handler) UpdateCluster(w http.ResponseWriter, r *http.Request) {
	var req service.ClusterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Service.UpdateCluster(r.Context(), r.PathValue("id"), req, actor(r))
	writeResult(w, r, c, err)
}

// DeleteCluster handles DELETE /api/v1/clusters/{id}.
func (h *Handler) DeleteCluster(w http.ResponseWriter, r *http.Request) {
	writeNoContent(w, r, h.Service.DeleteCluster(r.Context(), r.PathValue("id"), actor(r)))
}

// SetClusterStatus handles PUT /api/v1/clusters/{id}/status.
func (h *Handler) SetClusterStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Service.SetClusterStatus(r.Context(), r.PathValue("id"), models.ClusterStatus(req.Status), actor(r))
	writeResult(w, r, c, err)
}

// AssignClusterShipment handles PUT /api/v1/clusters/{id}/shipment. A null
// shipment_id detaches the cluster.
func (h *Handler) AssignClusterShipment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShipmentID *string `json:"shipment_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Service.AssignClusterToShipment(r.Context(), r.PathValue("id"), req.ShipmentID, actor(r))
	writeResult(w, r, c, err)
}

// ClusterStats handles GET /api/v1/clusters/{id}/stats.
func (h *Handler) ClusterStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Service.ClusterStats(r.Context(), r.PathValue("id"))
	writeResult(w, r, st, err)
}

// AddClusterServers handles POST /api/v1/clusters/{id}/servers. Responds
// 207 when some servers were rejected.
func (h *Handler) AddClusterServers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServerIDs []string          `json:"server_ids"`
		Role      models.ServerRole `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.ServerIDs) == 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION", "server_ids is required")
		return
	}
	res, err := h.Service.AddServersToCluster(r.Context(), r.PathValue("id"), req.ServerIDs, req.Role, actor(r))
	writeBatch(w, r, res, err)
}

// UpdateClusterServer handles PUT /api/v1/clusters/{id}/servers/{serverId}.
func (h *Handler) UpdateClusterServer(w http.ResponseWriter, r *http.Request) {
	var req service.ClusterServerInput
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.Service.UpdateClusterServer(r.Context(), r.PathValue("id"), r.PathValue("serverId"), req, actor(r))
	writeResult(w, r, m, err)
}

// RemoveClusterServer handles DELETE /api/v1/clusters/{id}/servers/{serverId}.
func (h *Handler) RemoveClusterServer(w http.ResponseWriter, r *http.Request) {
	writeNoContent(w, r, h.Service.RemoveServerFromCluster(r.Context(), r.PathValue("id"), r.PathValue("serverId"), actor(r)))
}

// CreateShipment handles POST /api/v1/shipments.
func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var req service.ShipmentInput
	if !decodeJSON(w, r, &req) {
		return
	}
	sh, err := h.Service.CreateShipment(r.Context(), req, actor(r))
	writeCreated(w, r, sh, err)
}

// ListShipments handles GET /api/v1/shipments.
func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	shipments, err := h.Service.ListShipments(r.Context())
	if shipments == nil {
		shipments = []*models.Shipment{}
	}
	writeResult(w, r, shipments, err)
}

// GetShipment handles GET /api/v1/shipments/{id}.
func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := h.Service.GetShipment(r.Context(), r.PathValue("id"))
	writeResult(w, r, sh, err)
}

// UpdateShipment handles PUT /api/v1/shipments/{id}.
func (h *Handler) UpdateShipment(w http.ResponseWriter, r *http.Request) {
	var req service.ShipmentInput
	if !decodeJSON(w, r, &req) {
		return
	}
	sh, err := h.Service.UpdateShipment(r.Context(), r.PathValue("id"), req, actor(r))
	writeResult(w, r, sh, err)
}

// DeleteShipment handles DELETE /api/v1/shipments/{id}.
func (h *Handler) DeleteShipment(w http.ResponseWriter, r *http.Request) {
	writeNoContent(w, r, h.Service.DeleteShipment(r.Context(), r.PathValue("id"), actor(r)))
}

// SetShipmentStatus handles PUT /api/v1/shipments/{id}/status.
func (h *Handler) SetShipmentStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sh, err := h.Service.SetShipmentStatus(r.Context(), r.PathValue("id"), models.ShipmentStatus(req.Status), actor(r))
	writeResult(w, r, sh, err)
}

// ShipmentStats handles GET /api/v1/shipments/{id}/stats.
func (h *Handler) ShipmentStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Service.ShipmentStats(r.Context(), r.PathValue("id"))
	writeResult(w, r, st, err)
}
