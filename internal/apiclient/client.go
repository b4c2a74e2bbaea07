// Package apiclient is a small HTTP client for the rackline REST API, used
// by rackctl.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tphummel/rackline/internal/models"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("rackline API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("rackline API returned status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one rackline server.
type Client struct {
	http *resty.Client
}

// NewClient creates a Client targeting endpoint with Bearer token auth.
// actor, when non-zero, is sent as the acting operator on every request.
func NewClient(endpoint, token string, actor int64) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	c := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	if actor != 0 {
		c.SetHeader("X-Actor-ID", strconv.FormatInt(actor, 10))
	}
	return &Client{http: c}, nil
}

// do sends body (if any) and decodes a successful response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req := c.http.R().
		SetContext(ctx).
		SetError(&APIError{})
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr, _ := resp.Error().(*APIError)
		if apiErr == nil {
			apiErr = &APIError{}
		}
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}

// ServerInput is the body of a server registration.
type ServerInput struct {
	SerialNumber    string  `json:"serial_number,omitempty"`
	APKSerialNumber string  `json:"apk_serial_number,omitempty"`
	IPAddress       string  `json:"ip_address,omitempty"`
	MACAddress      string  `json:"mac_address,omitempty"`
	Hostname        string  `json:"hostname,omitempty"`
	BatchID         *string `json:"batch_id,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

// ServerFilter narrows ListServers.
type ServerFilter struct {
	Status      string
	BatchID     string
	Search      string
	Unclustered bool
}

// CreateServer registers a server and returns the stored record.
func (c *Client) CreateServer(ctx context.Context, in ServerInput) (*models.Server, error) {
	var out models.Server
	if err := c.do(ctx, http.MethodPost, "/api/v1/servers", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetServer fetches a single server by ID.
func (c *Client) GetServer(ctx context.Context, id string) (*models.Server, error) {
	var out models.Server
	if err := c.do(ctx, http.MethodGet, "/api/v1/servers/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListServers returns servers matching f.
func (c *Client) ListServers(ctx context.Context, f ServerFilter) ([]models.Server, error) {
	q := url.Values{}
	setIf(q, "status", f.Status)
	setIf(q, "batch_id", f.BatchID)
	setIf(q, "search", f.Search)
	if f.Unclustered {
		q.Set("unclustered", "true")
	}
	var out []models.Server
	if err := c.do(ctx, http.MethodGet, "/api/v1/servers", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ServerAction runs one of the body-less lifecycle actions: take, release,
// archive, unarchive or refresh-lease.
func (c *Client) ServerAction(ctx context.Context, id, action string) (*models.Server, error) {
	var out models.Server
	if err := c.do(ctx, http.MethodPost, "/api/v1/servers/"+url.PathEscape(id)+"/"+action, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetServerStatus moves a server to status with an optional note.
func (c *Client) SetServerStatus(ctx context.Context, id, status, notes string) (*models.Server, error) {
	body := map[string]string{"status": status, "notes": notes}
	var out models.Server
	if err := c.do(ctx, http.MethodPut, "/api/v1/servers/"+url.PathEscape(id)+"/status", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignAPKSerial sets the APK serial of a server.
func (c *Client) AssignAPKSerial(ctx context.Context, id, apk string) (*models.Server, error) {
	body := map[string]string{"apk_serial_number": apk}
	var out models.Server
	if err := c.do(ctx, http.MethodPut, "/api/v1/servers/"+url.PathEscape(id)+"/apk-serial", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Checklist is the checklist of one server in template order.
type Checklist struct {
	ServerID string                 `json:"server_id"`
	Items    []models.ChecklistItem `json:"items"`
	Stats    struct {
		Total     int  `json:"total"`
		Completed int  `json:"completed"`
		Progress  int  `json:"progress"`
		Ready     bool `json:"ready"`
	} `json:"stats"`
}

// GetChecklist fetches the checklist of a server.
func (c *Client) GetChecklist(ctx context.Context, serverID string) (*Checklist, error) {
	var out Checklist
	if err := c.do(ctx, http.MethodGet, "/api/v1/servers/"+url.PathEscape(serverID)+"/checklist", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ToggleChecklistItem completes or reopens the item of a server for a
// template. An empty notes string keeps the current notes.
func (c *Client) ToggleChecklistItem(ctx context.Context, serverID, templateID string, completed bool, notes string) (*models.ChecklistItem, error) {
	body := map[string]any{"completed": completed}
	if notes != "" {
		body["notes"] = notes
	}
	path := "/api/v1/servers/" + url.PathEscape(serverID) + "/checklist/" + url.PathEscape(templateID)
	var out models.ChecklistItem
	if err := c.do(ctx, http.MethodPut, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteServer removes a server. It needs the admin token.
func (c *Client) DeleteServer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/servers/"+url.PathEscape(id), nil, nil, nil)
}

// ListRacks returns every rack.
func (c *Client) ListRacks(ctx context.Context) ([]models.Rack, error) {
	var out []models.Rack
	if err := c.do(ctx, http.MethodGet, "/api/v1/racks", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRack fetches a rack with its units.
func (c *Client) GetRack(ctx context.Context, id string) (*models.Rack, error) {
	var out models.Rack
	if err := c.do(ctx, http.MethodGet, "/api/v1/racks/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func unitPath(rackID string, unit int) string {
	return "/api/v1/racks/" + url.PathEscape(rackID) + "/units/" + strconv.Itoa(unit)
}

// PlaceInUnit puts a server into an empty unit.
func (c *Client) PlaceInUnit(ctx context.Context, rackID string, unit int, serverID string, data models.UnitData) (*models.RackUnit, error) {
	body := struct {
		ServerID string `json:"server_id"`
		models.UnitData
	}{serverID, data}
	var out models.RackUnit
	if err := c.do(ctx, http.MethodPut, unitPath(rackID, unit), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TakeUnitToWork installs the unit's server and takes it into work.
func (c *Client) TakeUnitToWork(ctx context.Context, rackID string, unit int) (*models.RackUnit, error) {
	var out models.RackUnit
	if err := c.do(ctx, http.MethodPost, unitPath(rackID, unit)+"/take", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveFromUnit empties a unit.
func (c *Client) RemoveFromUnit(ctx context.Context, rackID string, unit int) (*models.RackUnit, error) {
	var out models.RackUnit
	if err := c.do(ctx, http.MethodDelete, unitPath(rackID, unit), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchResult reports a per-item operation.
type BatchResult struct {
	Added    []string `json:"added"`
	Rejected []struct {
		ServerID string `json:"server_id"`
		Code     string `json:"code"`
		Reason   string `json:"reason"`
	} `json:"rejected"`
}

// AddServersToCluster adds servers with role. A partial result is not an
// error; inspect Rejected.
func (c *Client) AddServersToCluster(ctx context.Context, clusterID string, serverIDs []string, role string) (*BatchResult, error) {
	body := map[string]any{"server_ids": serverIDs, "role": role}
	var out BatchResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/clusters/"+url.PathEscape(clusterID)+"/servers", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DefectInput is the body of a new defect record.
type DefectInput struct {
	ServerID           *string `json:"server_id,omitempty"`
	ServerSerial       string  `json:"server_serial,omitempty"`
	RepairPartType     string  `json:"repair_part_type"`
	ProblemDescription string  `json:"problem_description,omitempty"`
	Notes              string  `json:"notes,omitempty"`
}

// CreateDefect opens a defect record.
func (c *Client) CreateDefect(ctx context.Context, in DefectInput) (*models.DefectRecord, error) {
	var out models.DefectRecord
	if err := c.do(ctx, http.MethodPost, "/api/v1/defects", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDefects returns defect records; openOnly limits them to unresolved ones.
func (c *Client) ListDefects(ctx context.Context, status, serverID string, openOnly bool) ([]models.DefectRecord, error) {
	q := url.Values{}
	setIf(q, "status", status)
	setIf(q, "server_id", serverID)
	if openOnly {
		q.Set("open", "true")
	}
	var out []models.DefectRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/defects", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DefectAction posts body to one of the defect workflow actions:
// send-to-yadro, return-from-yadro, resolve, mark-repeated or close.
func (c *Client) DefectAction(ctx context.Context, id, action string, body map[string]string) (*models.DefectRecord, error) {
	if body == nil {
		body = map[string]string{}
	}
	var out models.DefectRecord
	if err := c.do(ctx, http.MethodPost, "/api/v1/defects/"+url.PathEscape(id)+"/"+action, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListHistory queries the ledger. Empty filter fields are omitted.
func (c *Client) ListHistory(ctx context.Context, f models.HistoryFilter) ([]models.HistoryEntry, error) {
	q := url.Values{}
	setIf(q, "entity_type", string(f.EntityType))
	setIf(q, "entity_id", f.EntityID)
	setIf(q, "server_id", f.ServerID)
	setIf(q, "action", string(f.Action))
	if !f.Since.IsZero() {
		q.Set("since", f.Since.UTC().Format(time.RFC3339))
	}
	if !f.Until.IsZero() {
		q.Set("until", f.Until.UTC().Format(time.RFC3339))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	var out []models.HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/api/v1/history", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func setIf(q url.Values, key, val string) {
	if val != "" {
		q.Set(key, val)
	}
}
