package handlers

import (
	"net/http"
	"strconv"

	"github.com/tphummel/rackline/internal/service"
)

// ListChecklistTemplates handles GET /api/v1/checklist-templates.
// ?include_inactive=true adds deactivated templates.
func (h *Handler) ListChecklistTemplates(w http.ResponseWriter, r *http.Request) {
	var all bool
	if v := r.URL.Query().Get("include_inactive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "include_inactive must be a boolean")
			return
		}
		all = b
	}
	ts, err := h.Service.ListChecklistTemplates(r.Context(), all)
	writeResult(w, r, ts, err)
}

// CreateChecklistTemplate handles POST /api/v1/checklist-templates.
func (h *Handler) CreateChecklistTemplate(w http.ResponseWriter, r *http.Request) {
	var req service.ChecklistTemplateInput
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.Service.CreateChecklistTemplate(r.Context(), req)
	writeCreated(w, r, t, err)
}

// UpdateChecklistTemplate handles PUT /api/v1/checklist-templates/{id}.
func (h *Handler) UpdateChecklistTemplate(w http.ResponseWriter, r *http.Request) {
	var req service.ChecklistTemplateInput
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.Service.UpdateChecklistTemplate(r.Context(), r.PathValue("id"), req)
	writeResult(w, r, t, err)
}

// DeleteChecklistTemplate handles DELETE /api/v1/checklist-templates/{id}.
// The template is deactivated unless ?hard=true.
func (h *Handler) DeleteChecklistTemplate(w http.ResponseWriter, r *http.Request) {
	var hard bool
	if v := r.URL.Query().Get("hard"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "hard must be a boolean")
			return
		}
		hard = b
	}
	writeNoContent(w, r, h.Service.DeleteChecklistTemplate(r.Context(), r.PathValue("id"), hard))
}

// ReorderChecklistTemplates handles POST /api/v1/checklist-templates/reorder.
func (h *Handler) ReorderChecklistTemplates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateIDs []string `json:"template_ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ts, err := h.Service.ReorderChecklistTemplates(r.Context(), req.TemplateIDs)
	writeResult(w, r, ts, err)
}

// ServerChecklist handles GET /api/v1/servers/{id}/checklist.
func (h *Handler) ServerChecklist(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetServerChecklist(r.Context(), r.PathValue("id"))
	writeResult(w, r, c, err)
}

// ToggleChecklistItem handles PUT /api/v1/servers/{id}/checklist/{templateId}.
func (h *Handler) ToggleChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req service.ChecklistToggle
	if !decodeJSON(w, r, &req) {
		return
	}
	it, err := h.Service.ToggleChecklistItem(r.Context(), r.PathValue("id"), r.PathValue("templateId"), req, actor(r))
	writeResult(w, r, it, err)
}

// UploadChecklistFile handles
// POST /api/v1/servers/{id}/checklist/{templateId}/files?name=. The request
// body is the raw file content.
func (h *Handler) UploadChecklistFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := readUpload(w, r)
	if !ok {
		return
	}
	f, err := h.Service.AddChecklistFile(r.Context(), r.PathValue("id"), r.PathValue("templateId"),
		r.URL.Query().Get("name"), contentType, data, actor(r))
	writeCreated(w, r, f, err)
}

// DownloadChecklistFile handles GET /api/v1/servers/{id}/checklist-files/{fileId}.
func (h *Handler) DownloadChecklistFile(w http.ResponseWriter, r *http.Request) {
	f, data, err := h.Service.GetChecklistFile(r.Context(), r.PathValue("id"), r.PathValue("fileId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeFile(w, f.FileName, f.ContentType, data)
}

// DeleteChecklistFile handles DELETE /api/v1/servers/{id}/checklist-files/{fileId}.
func (h *Handler) DeleteChecklistFile(w http.ResponseWriter, r *http.Request) {
	writeNoContent(w, r, h.Service.DeleteChecklistFile(r.Context(), r.PathValue("id"), r.PathValue("fileId"), actor(r)))
}
