package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tphummel/rackline/internal/models"
)

// historyFilter parses the ledger query parameters. Times are RFC 3339.
func historyFilter(w http.ResponseWriter, r *http.Request) (models.HistoryFilter, bool) {
	q := r.URL.Query()
	f := models.HistoryFilter{
		EntityType: models.EntityType(q.Get("entity_type")),
		EntityID:   q.Get("entity_id"),
		ServerID:   q.Get("server_id"),
		Action:     models.HistoryAction(q.Get("action")),
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{
		{"since", &f.Since},
		{"until", &f.Until},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "invalid "+p.name)
			return f, false
		}
		*p.dst = t.UTC()
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "invalid "+p.name)
			return f, false
		}
		*p.dst = n
	}
	return f, true
}

func (h *Handler) writeHistory(w http.ResponseWriter, r *http.Request, f models.HistoryFilter) {
	entries, err := h.Service.ListHistory(r.Context(), f)
	if entries == nil {
		entries = []*models.HistoryEntry{}
	}
	writeResult(w, r, entries, err)
}

// ListHistory handles GET /api/v1/history.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	f, ok := historyFilter(w, r)
	if !ok {
		return
	}
	h.writeHistory(w, r, f)
}
