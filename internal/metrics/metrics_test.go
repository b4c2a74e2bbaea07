package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/tphummel/rackline/internal/models"
)

type fakeInventory struct {
	servers map[string]int
	defects map[string]int
	units   map[string]int
	err     error
}

func (f *fakeInventory) CountServersByStatus(context.Context) (map[string]int, error) {
	return f.servers, f.err
}

func (f *fakeInventory) CountOpenDefectsByStatus(context.Context) (map[string]int, error) {
	return f.defects, nil
}

func (f *fakeInventory) CountOccupiedUnits(context.Context) (map[string]int, error) {
	return f.units, nil
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func gaugeValue(mf *dto.MetricFamily, label string) (float64, bool) {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetValue() == label {
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func TestInventoryCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(newInventoryCollector(&fakeInventory{
		servers: map[string]int{"NEW": 3, "DONE": 1},
		defects: map[string]int{"SENT_TO_YADRO": 2},
		units:   map[string]int{"R1": 5},
	}))

	fams := gather(t, reg)
	tests := []struct {
		family, label string
		want          float64
	}{
		{"rackline_servers", "NEW", 3},
		{"rackline_servers", "DONE", 1},
		{"rackline_open_defects", "SENT_TO_YADRO", 2},
		{"rackline_rack_units_occupied", "R1", 5},
	}
	for _, tt := range tests {
		mf, ok := fams[tt.family]
		if !ok {
			t.Fatalf("family %s missing", tt.family)
		}
		got, ok := gaugeValue(mf, tt.label)
		if !ok || got != tt.want {
			t.Errorf("%s{%s}: got %v (found=%v), want %v", tt.family, tt.label, got, ok, tt.want)
		}
	}
}

func TestInventoryCollector_Error(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(newInventoryCollector(&fakeInventory{err: errors.New("db closed")}))

	if _, err := reg.Gather(); err == nil {
		t.Fatal("expected gather error when a count query fails")
	}
}

func TestLedger_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(historyAppendedTotal, historyTransitionsTotal, historyFailedTotal)

	before := counterValue(t, reg, "rackline_history_entries_total", "RACK")
	var l Ledger
	l.HistoryAppended(models.EntityRack, false)
	l.HistoryAppended(models.EntityRack, true)
	l.HistoryFailed(models.EntityRack)

	if got := counterValue(t, reg, "rackline_history_entries_total", "RACK"); got != before+2 {
		t.Errorf("appended: got %v, want %v", got, before+2)
	}
	if got := counterValue(t, reg, "rackline_status_transitions_total", "RACK"); got < 1 {
		t.Errorf("transitions: got %v, want >= 1", got)
	}
	if got := counterValue(t, reg, "rackline_history_append_failures_total", "RACK"); got < 1 {
		t.Errorf("failures: got %v, want >= 1", got)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, family, label string) float64 {
	t.Helper()
	mf, ok := gather(t, reg)[family]
	if !ok {
		return 0
	}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetValue() == label {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMiddleware_RecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(httpRequestsTotal)

	h := Middleware("GET /api/v1/servers/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/servers/x", nil))

	mf := gather(t, reg)["rackline_http_requests_total"]
	if mf == nil {
		t.Fatal("rackline_http_requests_total missing")
	}
	var found bool
	for _, m := range mf.GetMetric() {
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["path"] == "GET /api/v1/servers/{id}" && labels["status"] == "404" {
			found = true
		}
	}
	if !found {
		t.Error("expected a sample labelled with the route pattern and status 404")
	}
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg, &fakeInventory{servers: map[string]int{"NEW": 1}})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `rackline_servers{status="NEW"} 1`) {
		t.Errorf("body missing server gauge:\n%s", rec.Body.String())
	}
}
