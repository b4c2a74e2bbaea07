package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/models"
	"github.com/tphummel/rackline/internal/service"
)

const maxFileBytes = 10 << 20

func defectFilter(w http.ResponseWriter, r *http.Request) (db.DefectFilter, bool) {
	q := r.URL.Query()
	f := db.DefectFilter{
		Status:         models.DefectStatus(q.Get("status")),
		ServerID:       q.Get("server_id"),
		RepairPartType: models.RepairPartType(q.Get("repair_part_type")),
	}
	if v := q.Get("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "invalid open")
			return f, false
		}
		f.OpenOnly = open
	}
	return f, true
}

// CreateDefect handles POST /api/v1/defects.
func (h *Handler) CreateDefect(w http.ResponseWriter, r *http.Request) {
	var req service.DefectInput
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.Service.CreateDefect(r.Context(), req, actor(r))
	writeCreated(w, r, d, err)
}

// ListDefects handles GET /api/v1/defects with optional ?status=,
// ?server_id=, ?repair_part_type= and ?open= filters.
func (h *Handler) ListDefects(w http.ResponseWriter, r *http.Request) {
	f, ok := defectFilter(w, r)
	if !ok {
		return
	}
	records, err := h.Service.ListDefects(r.Context(), f)
	if records == nil {
		records = []*models.DefectRecord{}
	}
	writeResult(w, r, records, err)
}

// DefectStats handles GET /api/v1/defects/stats. It accepts the same
// filters as ListDefects.
func (h *Handler) DefectStats(w http.ResponseWriter, r *http.Request) {
	f, ok := defectFilter(w, r)
	if !ok {
		return
	}
	st, err := h.Service.DefectStats(r.Context(), f)
	writeResult(w, r, st, err)
}

// GetDefect handles GET /api/v1/defects/{id}.
func (h *Handler) GetDefect(w http.ResponseWriter, r *http.Request) {
	d, err := h.Service.GetDefect(r.Context(), r.PathValue("id"))
	writeResult(w, r, d, err)
}

// UpdateDefect handles PUT /api/v1/defects/{id}.
func (h *Handler) UpdateDefect(w http.ResponseWriter, r *http.Request) {
	var req service.DefectUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.Service.UpdateDefect(r.Context(), r.PathValue("id"), req, actor(r))
	writeResult(w, r, d, err)
}

// DeleteDefect handles DELETE /api/v1/defects/{id}. Admin only.
func (h *Handler) DeleteDefect(w http.ResponseWriter, r *http.Request) {
	writeNoContent(w, r, h.Service.DeleteDefect(r.Context(), r.PathValue("id"), actor(r)))
}

// SetDefectStatus handles PUT /api/v1/defects/{id}/status.
func (h *Handler) SetDefectStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.Service.SetDefectStatus(r.Context(), r.PathValue("id"), models.DefectStatus(req.Status), actor(r), req.Notes)
	writeResult(w, r, d, err)
}

// SendToYadro handles POST /api/v1/defects/{id}/send-to-yadro.
func (h *Handler) SendToYadro(w http.ResponseWriter, r *http.Request) {
	var req service.YadroShipment
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.Service.SendToYadro(r.Context(), r.PathValue("id"), req, actor(r))
	writeResult(w, r, d, err)
}

// ReturnFromYadro handles POST /api/v1/defects/{id}/return-from-yadro.
func (h *Handler) ReturnFromYadro(w http.ResponseWriter, r *http.Request) {
	var req service.YadroReturn
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.Service.ReturnFromYadro(r.Context(), r.PathValue("id"), req, actor(r))
	writeResult(w, r, d, err)
}

// ResolveDefect handles POST /api/v1/defects/{id}/resolve.
func (h *Handler) ResolveDefect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resolution string `json:"resolution"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.Service.Resolve(r.Context(), r.PathValue("id"), req.Resolution, actor(r))
	writeResult(w, r, d, err)
}

// MarkRepeated handles POST /api/v1/defects/{id}/mark-repeated.
func (h *Handler) MarkRepeated(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.Service.MarkRepeated(r.Context(), r.PathValue("id"), req.Reason, actor(r))
	writeResult(w, r, d, err)
}

// CloseDefect handles POST /api/v1/defects/{id}/close.
func (h *Handler) CloseDefect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.Service.CloseDefect(r.Context(), r.PathValue("id"), req.Notes, actor(r))
	writeResult(w, r, d, err)
}

// UploadDefectFile handles POST /api/v1/defects/{id}/files?name=. The
// request body is the raw file content.
func (h *Handler) UploadDefectFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := readUpload(w, r)
	if !ok {
		return
	}
	f, err := h.Service.AddFile(r.Context(), r.PathValue("id"), r.URL.Query().Get("name"), contentType, data, actor(r))
	writeCreated(w, r, f, err)
}

// readUpload reads a raw file body of at most maxFileBytes. The content
// type is sniffed when the client sends none.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFileBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "file too large")
			return nil, "", false
		}
		writeError(w, http.StatusBadRequest, "VALIDATION", "unreadable body")
		return nil, "", false
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, true
}

// DownloadDefectFile handles GET /api/v1/defects/{id}/files/{fileId}.
func (h *Handler) DownloadDefectFile(w http.ResponseWriter, r *http.Request) {
	f, data, err := h.Service.GetFile(r.Context(), r.PathValue("id"), r.PathValue("fileId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeFile(w, f.FileName, f.ContentType, data)
}

func writeFile(w http.ResponseWriter, name, contentType string, data []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// DeleteDefectFile handles DELETE /api/v1/defects/{id}/files/{fileId}.
func (h *Handler) DeleteDefectFile(w http.ResponseWriter, r *http.Request) {
	writeNoContent(w, r, h.Service.DeleteFile(r.Context(), r.PathValue("id"), r.PathValue("fileId"), actor(r)))
}
