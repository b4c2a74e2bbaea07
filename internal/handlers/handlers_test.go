package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tphummel/rackline/internal/attachments"
	"github.com/tphummel/rackline/internal/db"
	"github.com/tphummel/rackline/internal/handlers"
	"github.com/tphummel/rackline/internal/models"
	"github.com/tphummel/rackline/internal/service"
)

const (
	apiToken   = "test-token"
	adminToken = "admin-token"
)

// newTestMux builds the same mux as main.go, backed by an in-memory DB and
// an in-memory attachment store. It returns both the mux and the service
// for pre-seeding.
func newTestMux(t *testing.T) (*http.ServeMux, *service.Service) {
	t.Helper()
	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	store, err := attachments.Open("")
	if err != nil {
		t.Fatalf("attachments.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := service.New(d, service.Options{Attachments: store})
	h := &handlers.Handler{Service: svc, Version: "test", Commit: "abc123"}

	mux := http.NewServeMux()
	h.Register(mux, apiToken, adminToken)
	return mux, svc
}

// authReq builds a request with the test Bearer token and actor attached.
func authReq(method, path string, body []byte) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, path, bytes.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	r.Header.Set("Authorization", "Bearer "+apiToken)
	r.Header.Set("X-Actor-ID", "7")
	return r
}

// serve is a small helper that runs a request through the mux and returns the recorder.
func serve(mux http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

// call marshals payload (if any) and serves an authenticated request.
func call(t *testing.T, mux http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	return serve(mux, authReq(method, path, body))
}

// decodeBody unmarshals a recorder's body into v.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response body: %v\nbody: %s", err, w.Body.String())
	}
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status: got %d, want %d\nbody: %s", w.Code, want, w.Body.String())
	}
}

func wantCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	wantStatus(t, w, status)
	var body map[string]string
	decodeBody(t, w, &body)
	if body["code"] != code {
		t.Errorf("code: got %q, want %q (error %q)", body["code"], code, body["error"])
	}
	if body["error"] == "" {
		t.Error("error message should be non-empty")
	}
}

func createServer(t *testing.T, mux http.Handler, serial string) models.Server {
	t.Helper()
	w := call(t, mux, http.MethodPost, "/api/v1/servers", map[string]any{"serial_number": serial})
	wantStatus(t, w, http.StatusCreated)
	var s models.Server
	decodeBody(t, w, &s)
	return s
}

// --- Health ---

func TestHealth(t *testing.T) {
	mux, _ := newTestMux(t)
	w := serve(mux, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	wantStatus(t, w, http.StatusOK)
	var body map[string]string
	decodeBody(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("status field: got %q, want %q", body["status"], "ok")
	}
	if body["version"] != "test" || body["commit"] != "abc123" {
		t.Errorf("build info: got %q/%q", body["version"], body["commit"])
	}
}

// --- Auth guard on protected routes ---

func TestProtectedRoutes_RequireAuth(t *testing.T) {
	mux, _ := newTestMux(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/servers"},
		{http.MethodGet, "/api/v1/servers"},
		{http.MethodGet, "/api/v1/servers/some-id"},
		{http.MethodDelete, "/api/v1/servers/some-id"},
		{http.MethodPut, "/api/v1/racks/r1/units/1"},
		{http.MethodPost, "/api/v1/clusters/c1/servers"},
		{http.MethodPost, "/api/v1/defects"},
		{http.MethodPut, "/api/v1/servers/some-id/checklist/tpl-raid"},
		{http.MethodPost, "/api/v1/checklist-templates"},
		{http.MethodGet, "/api/v1/history"},
	}

	for _, rt := range routes {
		t.Run(fmt.Sprintf("%s %s", rt.method, rt.path), func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			w := serve(mux, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401 without auth, got %d", w.Code)
			}
		})
	}
}

func TestInvalidActorHeader(t *testing.T) {
	mux, _ := newTestMux(t)
	req := authReq(http.MethodGet, "/api/v1/servers", nil)
	req.Header.Set("X-Actor-ID", "bob")
	wantCode(t, serve(mux, req), http.StatusBadRequest, "VALIDATION")
}

func TestDeleteServer_RequiresAdmin(t *testing.T) {
	mux, _ := newTestMux(t)
	s := createServer(t, mux, "SN-DEL")

	w := call(t, mux, http.MethodDelete, "/api/v1/servers/"+s.ID, nil)
	wantCode(t, w, http.StatusForbidden, "FORBIDDEN")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/servers/"+s.ID, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	wantStatus(t, serve(mux, req), http.StatusNoContent)

	wantCode(t, call(t, mux, http.MethodGet, "/api/v1/servers/"+s.ID, nil), http.StatusNotFound, "NOT_FOUND")
}

// --- Servers ---

func TestCreateServer_Valid(t *testing.T) {
	mux, _ := newTestMux(t)
	s := createServer(t, mux, "SN-100")

	if s.ID == "" {
		t.Error("ID should be non-empty")
	}
	if s.Status != models.ServerNew {
		t.Errorf("Status: got %q, want NEW", s.Status)
	}
	if s.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	w := call(t, mux, http.MethodGet, "/api/v1/servers/"+s.ID, nil)
	wantStatus(t, w, http.StatusOK)
	var got models.Server
	decodeBody(t, w, &got)
	if got.SerialNumber != "SN-100" {
		t.Errorf("SerialNumber: got %q", got.SerialNumber)
	}
}

func TestCreateServer_Errors(t *testing.T) {
	mux, _ := newTestMux(t)
	createServer(t, mux, "SN-DUP")

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"no serials", `{"hostname":"x"}`, http.StatusBadRequest, "VALIDATION"},
		{"equal serials", `{"serial_number":"A","apk_serial_number":"A"}`, http.StatusBadRequest, "VALIDATION"},
		{"bad ip", `{"serial_number":"B","ip_address":"999.1.1.1"}`, http.StatusBadRequest, "VALIDATION"},
		{"duplicate serial", `{"serial_number":"SN-DUP"}`, http.StatusConflict, "DUPLICATE_IDENTIFIER"},
		{"unknown batch", `{"serial_number":"C","batch_id":"nope"}`, http.StatusNotFound, "NOT_FOUND"},
		{"malformed json", `{"serial_number":`, http.StatusBadRequest, "VALIDATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(mux, authReq(http.MethodPost, "/api/v1/servers", []byte(tt.body)))
			wantCode(t, w, tt.status, tt.code)
		})
	}
}

func TestCreateServer_BodyTooLarge(t *testing.T) {
	mux, _ := newTestMux(t)
	big := `{"serial_number":"X","notes":"` + strings.Repeat("a", 70*1024) + `"}`
	w := serve(mux, authReq(http.MethodPost, "/api/v1/servers", []byte(big)))
	wantCode(t, w, http.StatusRequestEntityTooLarge, "TOO_LARGE")
}

func TestServerLifecycle(t *testing.T) {
	mux, _ := newTestMux(t)
	s := createServer(t, mux, "SN-LIFE")
	base := "/api/v1/servers/" + s.ID

	// DONE is not reachable from NEW.
	w := call(t, mux, http.MethodPut, base+"/status", map[string]string{"status": "DONE"})
	wantCode(t, w, http.StatusConflict, "INVALID_TRANSITION")

	wantStatus(t, call(t, mux, http.MethodPost, base+"/take", nil), http.StatusOK)
	w = call(t, mux, http.MethodPut, base+"/status", map[string]string{"status": "DONE", "notes": "burn-in ok"})
	wantStatus(t, w, http.StatusOK)

	// Archiving needs an APK serial.
	wantCode(t, call(t, mux, http.MethodPost, base+"/archive", nil), http.StatusPreconditionFailed, "PRECONDITION_FAILED")
	w = call(t, mux, http.MethodPut, base+"/apk-serial", map[string]string{"apk_serial_number": "APK-LIFE"})
	wantStatus(t, w, http.StatusOK)

	w = call(t, mux, http.MethodPost, base+"/archive", nil)
	wantStatus(t, w, http.StatusOK)
	var got models.Server
	decodeBody(t, w, &got)
	if got.Status != models.ServerArchived || got.ArchivedByID == nil || *got.ArchivedByID != 7 {
		t.Errorf("archive: got status %q archived_by %v", got.Status, got.ArchivedByID)
	}

	w = call(t, mux, http.MethodGet, base+"/history?action=STATUS_CHANGED", nil)
	wantStatus(t, w, http.StatusOK)
	var entries []models.HistoryEntry
	decodeBody(t, w, &entries)
	if len(entries) != 1 || entries[0].ToStatus != "DONE" || entries[0].Comment != "burn-in ok" {
		t.Errorf("history: got %+v", entries)
	}

	w = call(t, mux, http.MethodGet, base+"/time-in-status", nil)
	wantStatus(t, w, http.StatusOK)
	var tis map[string]int64
	decodeBody(t, w, &tis)
	for status, secs := range tis {
		if secs < 0 {
			t.Errorf("time in %s: got %d seconds", status, secs)
		}
	}
}

func TestListServers_Filters(t *testing.T) {
	mux, _ := newTestMux(t)
	a := createServer(t, mux, "SN-A1")
	createServer(t, mux, "SN-B2")
	wantStatus(t, call(t, mux, http.MethodPost, "/api/v1/servers/"+a.ID+"/take", nil), http.StatusOK)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?status=IN_WORK", 1},
		{"?status=NEW", 1},
		{"?search=B2", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := call(t, mux, http.MethodGet, "/api/v1/servers"+tt.query, nil)
			wantStatus(t, w, http.StatusOK)
			var list []models.Server
			decodeBody(t, w, &list)
			if len(list) != tt.want {
				t.Errorf("got %d servers, want %d", len(list), tt.want)
			}
		})
	}

	wantCode(t, call(t, mux, http.MethodGet, "/api/v1/servers?status=BROKEN", nil), http.StatusBadRequest, "VALIDATION")
}

func TestListServers_EmptyIsArray(t *testing.T) {
	mux, _ := newTestMux(t)
	w := call(t, mux, http.MethodGet, "/api/v1/servers", nil)
	wantStatus(t, w, http.StatusOK)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body: got %q, want []", w.Body.String())
	}
}

func TestSerialUnique(t *testing.T) {
	mux, _ := newTestMux(t)
	createServer(t, mux, "SN-TAKEN")

	for serial, want := range map[string]bool{"SN-TAKEN": false, "SN-FREE": true} {
		w := call(t, mux, http.MethodGet, "/api/v1/identity/serial-unique?serial="+serial, nil)
		wantStatus(t, w, http.StatusOK)
		var body struct {
			Serial string `json:"serial"`
			Unique bool   `json:"unique"`
		}
		decodeBody(t, w, &body)
		if body.Unique != want {
			t.Errorf("%s unique: got %v, want %v", serial, body.Unique, want)
		}
	}
}

// --- Batches ---

func TestBatchAssign_Partial(t *testing.T) {
	mux, _ := newTestMux(t)
	w := call(t, mux, http.MethodPost, "/api/v1/batches", map[string]any{"title": "March intake", "expected_count": 2})
	wantStatus(t, w, http.StatusCreated)
	var b models.Batch
	decodeBody(t, w, &b)

	s := createServer(t, mux, "SN-BATCH")
	w = call(t, mux, http.MethodPost, "/api/v1/batches/"+b.ID+"/servers", map[string]any{"server_ids": []string{s.ID, "ghost"}})
	wantStatus(t, w, http.StatusMultiStatus)
	var res service.BatchResult
	decodeBody(t, w, &res)
	if len(res.Added) != 1 || len(res.Rejected) != 1 || res.Rejected[0].Code != "NOT_FOUND" {
		t.Errorf("result: got %+v", res)
	}

	w = call(t, mux, http.MethodGet, "/api/v1/batches/"+b.ID+"/stats", nil)
	wantStatus(t, w, http.StatusOK)
	var st map[string]any
	decodeBody(t, w, &st)
	if st["total"] != float64(1) {
		t.Errorf("total: got %v, want 1", st["total"])
	}
}

// --- Racks and placement ---

func TestPlacement(t *testing.T) {
	mux, _ := newTestMux(t)
	w := call(t, mux, http.MethodPost, "/api/v1/racks", map[string]any{"name": "R-01", "total_units": 4})
	wantStatus(t, w, http.StatusCreated)
	var rack models.Rack
	decodeBody(t, w, &rack)
	if len(rack.Units) != 4 {
		t.Fatalf("units: got %d, want 4", len(rack.Units))
	}

	a := createServer(t, mux, "SN-P1")
	b := createServer(t, mux, "SN-P2")
	unit := "/api/v1/racks/" + rack.ID + "/units/"

	w = call(t, mux, http.MethodPut, unit+"2", map[string]any{"server_id": a.ID, "hostname": "node-a"})
	wantStatus(t, w, http.StatusOK)
	var u models.RackUnit
	decodeBody(t, w, &u)
	if u.State != models.UnitPlaced || u.Hostname != "node-a" {
		t.Errorf("unit: got state %q hostname %q", u.State, u.Hostname)
	}

	wantCode(t, call(t, mux, http.MethodPut, unit+"2", map[string]any{"server_id": b.ID}), http.StatusConflict, "UNIT_OCCUPIED")
	wantCode(t, call(t, mux, http.MethodPut, unit+"3", map[string]any{"server_id": a.ID}), http.StatusConflict, "SERVER_ALREADY_PLACED")
	wantCode(t, call(t, mux, http.MethodPut, unit+"9", map[string]any{"server_id": b.ID}), http.StatusNotFound, "NOT_FOUND")
	wantCode(t, call(t, mux, http.MethodPut, unit+"abc", map[string]any{"server_id": b.ID}), http.StatusBadRequest, "VALIDATION")
	wantCode(t, call(t, mux, http.MethodPut, unit+"3", map[string]any{}), http.StatusBadRequest, "VALIDATION")

	w = call(t, mux, http.MethodPost, unit+"2/take", nil)
	wantStatus(t, w, http.StatusOK)
	decodeBody(t, w, &u)
	if u.State != models.UnitInWork {
		t.Errorf("state after take: got %q", u.State)
	}

	w = call(t, mux, http.MethodPost, unit+"2/move", map[string]any{"to_unit_number": 4})
	wantStatus(t, w, http.StatusOK)
	decodeBody(t, w, &u)
	if u.UnitNumber != 4 || u.ServerID == nil || *u.ServerID != a.ID {
		t.Errorf("move: got unit %d server %v", u.UnitNumber, u.ServerID)
	}

	w = call(t, mux, http.MethodGet, "/api/v1/racks/"+rack.ID+"/free-units", nil)
	wantStatus(t, w, http.StatusOK)
	var free []models.RackUnit
	decodeBody(t, w, &free)
	if len(free) != 3 {
		t.Errorf("free units: got %d, want 3", len(free))
	}

	w = call(t, mux, http.MethodGet, "/api/v1/racks/"+rack.ID+"/stats", nil)
	wantStatus(t, w, http.StatusOK)
	var st map[string]any
	decodeBody(t, w, &st)
	if st["filled_units"] != float64(1) || st["occupancy_percent"] != float64(25) {
		t.Errorf("rack stats: got %v", st)
	}

	wantStatus(t, call(t, mux, http.MethodDelete, unit+"4", nil), http.StatusOK)
	wantStatus(t, call(t, mux, http.MethodDelete, unit+"4", nil), http.StatusOK)
}

// --- Clusters ---

func TestClusterMembership(t *testing.T) {
	mux, _ := newTestMux(t)
	newCluster := func(name string) models.Cluster {
		w := call(t, mux, http.MethodPost, "/api/v1/clusters", map[string]any{"name": name, "expected_count": 2})
		wantStatus(t, w, http.StatusCreated)
		var c models.Cluster
		decodeBody(t, w, &c)
		return c
	}
	c1 := newCluster("k8s-a")
	c2 := newCluster("k8s-b")
	a := createServer(t, mux, "SN-C1")
	b := createServer(t, mux, "SN-C2")

	w := call(t, mux, http.MethodPost, "/api/v1/clusters/"+c1.ID+"/servers", map[string]any{"server_ids": []string{a.ID}, "role": "MASTER"})
	wantStatus(t, w, http.StatusOK)

	w = call(t, mux, http.MethodPost, "/api/v1/clusters/"+c2.ID+"/servers", map[string]any{"server_ids": []string{a.ID, b.ID}, "role": "WORKER"})
	wantStatus(t, w, http.StatusMultiStatus)
	var res service.BatchResult
	decodeBody(t, w, &res)
	if len(res.Added) != 1 || res.Added[0] != b.ID {
		t.Errorf("added: got %v", res.Added)
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Code != "SERVER_ALREADY_IN_CLUSTER" {
		t.Errorf("rejected: got %+v", res.Rejected)
	}

	wantCode(t, call(t, mux, http.MethodPost, "/api/v1/clusters/"+c1.ID+"/servers", map[string]any{}), http.StatusBadRequest, "VALIDATION")

	w = call(t, mux, http.MethodGet, "/api/v1/clusters/"+c2.ID, nil)
	wantStatus(t, w, http.StatusOK)
	var got models.Cluster
	decodeBody(t, w, &got)
	if len(got.Servers) != 1 || got.Servers[0].OrderNumber != 1 {
		t.Errorf("members: got %+v", got.Servers)
	}

	for _, st := range []string{"READY", "SHIPPED", "DEPLOYED"} {
		wantStatus(t, call(t, mux, http.MethodPut, "/api/v1/clusters/"+c2.ID+"/status", map[string]string{"status": st}), http.StatusOK)
	}
	c3 := createServer(t, mux, "SN-C3")
	w = call(t, mux, http.MethodPost, "/api/v1/clusters/"+c2.ID+"/servers", map[string]any{"server_ids": []string{c3.ID}})
	wantCode(t, w, http.StatusPreconditionFailed, "PRECONDITION_FAILED")

	wantStatus(t, call(t, mux, http.MethodDelete, "/api/v1/clusters/"+c1.ID+"/servers/"+a.ID, nil), http.StatusNoContent)
}

// --- Defects ---

func TestDefectWorkflow(t *testing.T) {
	mux, _ := newTestMux(t)
	s := createServer(t, mux, "SN-DEF")

	w := call(t, mux, http.MethodPost, "/api/v1/defects", map[string]any{
		"server_id":           s.ID,
		"repair_part_type":    "PSU",
		"problem_description": "no power",
	})
	wantStatus(t, w, http.StatusCreated)
	var d models.DefectRecord
	decodeBody(t, w, &d)
	if d.Status != models.DefectNew || d.ServerSerial != "SN-DEF" {
		t.Errorf("defect: got status %q serial %q", d.Status, d.ServerSerial)
	}
	base := "/api/v1/defects/" + d.ID

	wantCode(t, call(t, mux, http.MethodPost, base+"/return-from-yadro", map[string]any{}), http.StatusConflict, "INVALID_DEFECT_TRANSITION")

	w = call(t, mux, http.MethodPost, base+"/send-to-yadro", map[string]any{"yadro_ticket_number": "T-1"})
	wantStatus(t, w, http.StatusOK)
	w = call(t, mux, http.MethodPost, base+"/return-from-yadro", map[string]any{"replacement_part_serial_yadro": "PSU-NEW"})
	wantStatus(t, w, http.StatusOK)
	w = call(t, mux, http.MethodPost, base+"/resolve", map[string]string{"resolution": "replaced PSU"})
	wantStatus(t, w, http.StatusOK)
	decodeBody(t, w, &d)
	if d.Status != models.DefectResolved || d.TotalDowntimeMinutes == nil {
		t.Errorf("resolve: got status %q downtime %v", d.Status, d.TotalDowntimeMinutes)
	}

	w = call(t, mux, http.MethodGet, "/api/v1/defects?open=true", nil)
	wantStatus(t, w, http.StatusOK)
	var open []models.DefectRecord
	decodeBody(t, w, &open)
	if len(open) != 0 {
		t.Errorf("open defects: got %d, want 0", len(open))
	}
	wantCode(t, call(t, mux, http.MethodGet, "/api/v1/defects?open=maybe", nil), http.StatusBadRequest, "VALIDATION")

	w = call(t, mux, http.MethodGet, "/api/v1/defects/stats", nil)
	wantStatus(t, w, http.StatusOK)
	var st map[string]any
	decodeBody(t, w, &st)
	if st["total"] != float64(1) || st["open"] != float64(0) {
		t.Errorf("defect stats: got %v", st)
	}

	w = call(t, mux, http.MethodGet, "/api/v1/history?entity_type=DEFECT&entity_id="+d.ID, nil)
	wantStatus(t, w, http.StatusOK)
	var entries []models.HistoryEntry
	decodeBody(t, w, &entries)
	if len(entries) != 4 {
		t.Errorf("defect history: got %d entries, want 4", len(entries))
	}

	wantCode(t, call(t, mux, http.MethodDelete, base, nil), http.StatusForbidden, "FORBIDDEN")
}

func TestDefectFiles(t *testing.T) {
	mux, svc := newTestMux(t)
	d, err := svc.CreateDefect(context.Background(), service.DefectInput{
		ServerSerial:   "SN-EXTERNAL",
		RepairPartType: "RAM",
	}, 1)
	if err != nil {
		t.Fatalf("CreateDefect: %v", err)
	}

	content := []byte("dmesg: EDAC MC0: 1 CE memory read error")
	req := authReq(http.MethodPost, "/api/v1/defects/"+d.ID+"/files?name=dmesg.txt", content)
	req.Header.Set("Content-Type", "text/plain")
	w := serve(mux, req)
	wantStatus(t, w, http.StatusCreated)
	var f models.DefectFile
	decodeBody(t, w, &f)
	if f.FileName != "dmesg.txt" || f.SizeBytes != int64(len(content)) {
		t.Errorf("file: got %+v", f)
	}

	w = call(t, mux, http.MethodGet, "/api/v1/defects/"+d.ID+"/files/"+f.ID, nil)
	wantStatus(t, w, http.StatusOK)
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Errorf("download: got %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "dmesg.txt") {
		t.Errorf("Content-Disposition: got %q", cd)
	}

	wantStatus(t, call(t, mux, http.MethodDelete, "/api/v1/defects/"+d.ID+"/files/"+f.ID, nil), http.StatusNoContent)
	wantCode(t, call(t, mux, http.MethodGet, "/api/v1/defects/"+d.ID+"/files/"+f.ID, nil), http.StatusNotFound, "NOT_FOUND")
}

// --- Checklists ---

// adminCall is call with the admin token.
func adminCall(t *testing.T, mux http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	r := authReq(method, path, body)
	r.Header.Set("Authorization", "Bearer "+adminToken)
	return serve(mux, r)
}

func TestServerChecklist(t *testing.T) {
	mux, _ := newTestMux(t)
	s := createServer(t, mux, "SN-CL")
	base := "/api/v1/servers/" + s.ID

	w := call(t, mux, http.MethodGet, base+"/checklist", nil)
	wantStatus(t, w, http.StatusOK)
	var c service.ServerChecklist
	decodeBody(t, w, &c)
	if len(c.Items) != 10 || c.Items[0].Template == nil || c.Items[0].Template.ID != "tpl-visual" {
		t.Fatalf("checklist: got %d items, first %+v", len(c.Items), c.Items[0])
	}

	wantCode(t, call(t, mux, http.MethodPut, base+"/checklist/tpl-raid", map[string]any{"completed": true}),
		http.StatusPreconditionFailed, "PRECONDITION_FAILED")

	content := []byte("array optimal")
	w = serve(mux, authReq(http.MethodPost, base+"/checklist/tpl-raid/files?name=raid.txt", content))
	wantStatus(t, w, http.StatusCreated)
	var f models.ChecklistFile
	decodeBody(t, w, &f)

	w = call(t, mux, http.MethodPut, base+"/checklist/tpl-raid", map[string]any{"completed": true, "notes": "RAID10"})
	wantStatus(t, w, http.StatusOK)
	var it models.ChecklistItem
	decodeBody(t, w, &it)
	if !it.Completed || it.CompletedByID == nil || *it.CompletedByID != 7 || it.Notes != "RAID10" {
		t.Errorf("toggle: got %+v", it)
	}

	w = call(t, mux, http.MethodGet, base+"/checklist-files/"+f.ID, nil)
	wantStatus(t, w, http.StatusOK)
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Errorf("download: got %q", w.Body.String())
	}

	w = call(t, mux, http.MethodGet, "/api/v1/history?entity_id="+s.ID+"&action=CHECKLIST_COMPLETED", nil)
	wantStatus(t, w, http.StatusOK)
	var entries []models.HistoryEntry
	decodeBody(t, w, &entries)
	if len(entries) != 1 {
		t.Errorf("completed entries: got %d, want 1", len(entries))
	}

	wantStatus(t, call(t, mux, http.MethodDelete, base+"/checklist-files/"+f.ID, nil), http.StatusNoContent)
	wantCode(t, call(t, mux, http.MethodGet, base+"/checklist-files/"+f.ID, nil), http.StatusNotFound, "NOT_FOUND")
	wantCode(t, call(t, mux, http.MethodGet, "/api/v1/servers/missing/checklist", nil), http.StatusNotFound, "NOT_FOUND")
}

func TestChecklistTemplates_AdminOnly(t *testing.T) {
	mux, _ := newTestMux(t)

	w := call(t, mux, http.MethodGet, "/api/v1/checklist-templates", nil)
	wantStatus(t, w, http.StatusOK)
	var list []models.ChecklistTemplate
	decodeBody(t, w, &list)
	if len(list) != 10 {
		t.Errorf("templates: got %d, want 10", len(list))
	}

	payload := map[string]any{"title": "Label chassis", "group_code": "FINAL"}
	wantCode(t, call(t, mux, http.MethodPost, "/api/v1/checklist-templates", payload), http.StatusForbidden, "FORBIDDEN")
	w = adminCall(t, mux, http.MethodPost, "/api/v1/checklist-templates", payload)
	wantStatus(t, w, http.StatusCreated)
	var tpl models.ChecklistTemplate
	decodeBody(t, w, &tpl)
	if tpl.SortOrder != 510 || tpl.GroupCode != models.GroupFinal {
		t.Errorf("template: got %+v", tpl)
	}

	w = adminCall(t, mux, http.MethodPost, "/api/v1/checklist-templates/reorder",
		map[string]any{"template_ids": []string{tpl.ID}})
	wantStatus(t, w, http.StatusOK)
	decodeBody(t, w, &list)
	if list[0].ID != tpl.ID {
		t.Errorf("reorder: first is %q", list[0].ID)
	}

	wantStatus(t, adminCall(t, mux, http.MethodDelete, "/api/v1/checklist-templates/"+tpl.ID, nil), http.StatusNoContent)
	w = call(t, mux, http.MethodGet, "/api/v1/checklist-templates?include_inactive=true", nil)
	wantStatus(t, w, http.StatusOK)
	decodeBody(t, w, &list)
	if len(list) != 11 || list[0].IsActive {
		t.Errorf("deactivated: got %d templates, first active=%v", len(list), list[0].IsActive)
	}
	wantCode(t, call(t, mux, http.MethodGet, "/api/v1/checklist-templates?include_inactive=maybe", nil), http.StatusBadRequest, "VALIDATION")
	createServer(t, mux, "SN-TPL")
	wantCode(t, adminCall(t, mux, http.MethodDelete, "/api/v1/checklist-templates/tpl-visual?hard=true", nil),
		http.StatusPreconditionFailed, "PRECONDITION_FAILED")
}

func TestListServers_Unclustered(t *testing.T) {
	mux, _ := newTestMux(t)
	a := createServer(t, mux, "SN-U1")
	b := createServer(t, mux, "SN-U2")
	w := call(t, mux, http.MethodPost, "/api/v1/clusters", map[string]any{"name": "k8s-u"})
	wantStatus(t, w, http.StatusCreated)
	var c models.Cluster
	decodeBody(t, w, &c)
	w = call(t, mux, http.MethodPost, "/api/v1/clusters/"+c.ID+"/servers", map[string]any{"server_ids": []string{a.ID}})
	wantStatus(t, w, http.StatusOK)

	w = call(t, mux, http.MethodGet, "/api/v1/servers?unclustered=true", nil)
	wantStatus(t, w, http.StatusOK)
	var list []models.Server
	decodeBody(t, w, &list)
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("unclustered: got %+v", list)
	}
	wantCode(t, call(t, mux, http.MethodGet, "/api/v1/servers?unclustered=sometimes", nil), http.StatusBadRequest, "VALIDATION")
}

// --- History ---

func TestListHistory_Query(t *testing.T) {
	mux, _ := newTestMux(t)
	createServer(t, mux, "SN-H1")
	createServer(t, mux, "SN-H2")

	w := call(t, mux, http.MethodGet, "/api/v1/history?entity_type=SERVER&action=CREATED&limit=1", nil)
	wantStatus(t, w, http.StatusOK)
	var entries []models.HistoryEntry
	decodeBody(t, w, &entries)
	if len(entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(entries))
	}
	if entries[0].ActorID == nil || *entries[0].ActorID != 7 {
		t.Errorf("actor: got %v, want 7", entries[0].ActorID)
	}

	tests := []string{
		"?since=yesterday",
		"?limit=ten",
		"?entity_type=PLANET",
		"?limit=-1",
		"?since=2026-03-02T00:00:00Z&until=2026-03-01T00:00:00Z",
	}
	for _, q := range tests {
		t.Run(q, func(t *testing.T) {
			wantCode(t, call(t, mux, http.MethodGet, "/api/v1/history"+q, nil), http.StatusBadRequest, "VALIDATION")
		})
	}
}
