package handlers

import (
	"net/http"

	"github.com/tphummel/rackline/internal/metrics"
	"github.com/tphummel/rackline/internal/middleware"
)

// Register adds every route to mux. Health and docs need no auth; API
// routes require token. Deleting servers or defects and editing checklist
// templates also require adminToken. Each API route records HTTP metrics
// under its pattern.
func (h *Handler) Register(mux *http.ServeMux, token, adminToken string) {
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /openapi.yaml", OpenAPISpec)
	mux.HandleFunc("GET /docs", Docs)

	api := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, metrics.Middleware(pattern, middleware.Auth(token, adminToken, fn)))
	}

	// Servers
	api("POST /api/v1/servers", h.CreateServer)
	api("GET /api/v1/servers", h.ListServers)
	api("GET /api/v1/servers/{id}", h.GetServer)
	api("DELETE /api/v1/servers/{id}", adminOnly(h.DeleteServer))
	api("POST /api/v1/servers/{id}/take", h.TakeServer)
	api("POST /api/v1/servers/{id}/release", h.ReleaseServer)
	api("PUT /api/v1/servers/{id}/status", h.SetServerStatus)
	api("POST /api/v1/servers/{id}/archive", h.ArchiveServer)
	api("POST /api/v1/servers/{id}/unarchive", h.UnarchiveServer)
	api("PUT /api/v1/servers/{id}/notes", h.UpdateServerNotes)
	api("PUT /api/v1/servers/{id}/apk-serial", h.AssignAPKSerial)
	api("PUT /api/v1/servers/{id}/network", h.UpdateServerNetwork)
	api("POST /api/v1/servers/{id}/refresh-lease", h.RefreshLease)
	api("DELETE /api/v1/servers/{id}/batch", h.RemoveServerFromBatch)
	api("GET /api/v1/servers/{id}/history", h.ServerHistory)
	api("GET /api/v1/servers/{id}/time-in-status", h.TimeInStatus)
	api("GET /api/v1/servers/{id}/checklist", h.ServerChecklist)
	api("PUT /api/v1/servers/{id}/checklist/{templateId}", h.ToggleChecklistItem)
	api("POST /api/v1/servers/{id}/checklist/{templateId}/files", h.UploadChecklistFile)
	api("GET /api/v1/servers/{id}/checklist-files/{fileId}", h.DownloadChecklistFile)
	api("DELETE /api/v1/servers/{id}/checklist-files/{fileId}", h.DeleteChecklistFile)

	// Checklist templates
	api("GET /api/v1/checklist-templates", h.ListChecklistTemplates)
	api("POST /api/v1/checklist-templates", adminOnly(h.CreateChecklistTemplate))
	api("POST /api/v1/checklist-templates/reorder", adminOnly(h.ReorderChecklistTemplates))
	api("PUT /api/v1/checklist-templates/{id}", adminOnly(h.UpdateChecklistTemplate))
	api("DELETE /api/v1/checklist-templates/{id}", adminOnly(h.DeleteChecklistTemplate))

	// Identity
	api("GET /api/v1/identity/serial-unique", h.SerialUnique)
	api("GET /api/v1/identity/collisions", h.Collisions)

	// Batches
	api("POST /api/v1/batches", h.CreateBatch)
	api("GET /api/v1/batches", h.ListBatches)
	api("GET /api/v1/batches/{id}", h.GetBatch)
	api("PUT /api/v1/batches/{id}", h.UpdateBatch)
	api("DELETE /api/v1/batches/{id}", h.DeleteBatch)
	api("GET /api/v1/batches/{id}/stats", h.BatchStats)
	api("POST /api/v1/batches/{id}/servers", h.AssignBatchServers)

	// Racks and placement
	api("POST /api/v1/racks", h.CreateRack)
	api("GET /api/v1/racks", h.ListRacks)
	api("GET /api/v1/racks/{id}", h.GetRack)
	api("PUT /api/v1/racks/{id}", h.UpdateRack)
	api("DELETE /api/v1/racks/{id}", h.DeleteRack)
	api("GET /api/v1/racks/{id}/stats", h.RackStats)
	api("GET /api/v1/racks/{id}/free-units", h.FreeUnits)
	api("PUT /api/v1/racks/{id}/units/{unit}", h.PlaceInUnit)
	api("DELETE /api/v1/racks/{id}/units/{unit}", h.RemoveFromUnit)
	api("POST /api/v1/racks/{id}/units/{unit}/take", h.TakeUnitToWork)
	api("POST /api/v1/racks/{id}/units/{unit}/move", h.MoveServer)

	// Clusters
	api("POST /api/v1/clusters", h.CreateCluster)
	api("GET /api/v1/clusters", h.ListClusters)
	api("GET /api/v1/clusters/{id}", h.GetCluster)
	api("PUT /api/v1/clusters/{id}", h.UpdateCluster)
	api("DELETE /api/v1/clusters/{id}", h.DeleteCluster)
	api("PUT /api/v1/clusters/{id}/status", h.SetClusterStatus)
	api("PUT /api/v1/clusters/{id}/shipment", h.AssignClusterShipment)
	api("GET /api/v1/clusters/{id}/stats", h.ClusterStats)
	api("POST /api/v1/clusters/{id}/servers", h.AddClusterServers)
	api("PUT /api/v1/clusters/{id}/servers/{serverId}", h.UpdateClusterServer)
	api("DELETE /api/v1/clusters/{id}/servers/{serverId}", h.RemoveClusterServer)

	// Shipments
	api("POST /api/v1/shipments", h.CreateShipment)
	api("GET /api/v1/shipments", h.ListShipments)
	api("GET /api/v1/shipments/{id}", h.GetShipment)
	api("PUT /api/v1/shipments/{id}", h.UpdateShipment)
	api("DELETE /api/v1/shipments/{id}", h.DeleteShipment)
	api("PUT /api/v1/shipments/{id}/status", h.SetShipmentStatus)
	api("GET /api/v1/shipments/{id}/stats", h.ShipmentStats)

	// Defects
	api("POST /api/v1/defects", h.CreateDefect)
	api("GET /api/v1/defects", h.ListDefects)
	api("GET /api/v1/defects/stats", h.DefectStats)
	api("GET /api/v1/defects/{id}", h.GetDefect)
	api("PUT /api/v1/defects/{id}", h.UpdateDefect)
	api("DELETE /api/v1/defects/{id}", adminOnly(h.DeleteDefect))
	api("PUT /api/v1/defects/{id}/status", h.SetDefectStatus)
	api("POST /api/v1/defects/{id}/send-to-yadro", h.SendToYadro)
	api("POST /api/v1/defects/{id}/return-from-yadro", h.ReturnFromYadro)
	api("POST /api/v1/defects/{id}/resolve", h.ResolveDefect)
	api("POST /api/v1/defects/{id}/mark-repeated", h.MarkRepeated)
	api("POST /api/v1/defects/{id}/close", h.CloseDefect)
	api("POST /api/v1/defects/{id}/files", h.UploadDefectFile)
	api("GET /api/v1/defects/{id}/files/{fileId}", h.DownloadDefectFile)
	api("DELETE /api/v1/defects/{id}/files/{fileId}", h.DeleteDefectFile)

	// History
	api("GET /api/v1/history", h.ListHistory)
}
