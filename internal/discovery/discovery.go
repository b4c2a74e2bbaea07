// Package discovery queries an external DHCP lease service for the network
// identity of a server. Results are advisory: callers treat any error as
// "no data".
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Lease is the network identity a DHCP server has handed out for a serial.
type Lease struct {
	Found      bool   `json:"found"`
	IPAddress  string `json:"ip_address"`
	MACAddress string `json:"mac_address"`
	Hostname   string `json:"hostname"`
	Active     bool   `json:"active"`
}

// Client talks to the lease service over HTTP.
type Client struct {
	http *resty.Client
}

// New returns a Client for the lease service at baseURL. token, when set,
// is sent as a Bearer token.
func New(baseURL, token string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{http: c}
}

// FindInDHCP looks up the lease recorded for serial. A 404 from the lease
// service is not an error: it returns a Lease with Found false.
func (c *Client) FindInDHCP(ctx context.Context, serial string) (Lease, error) {
	var lease Lease
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("serial", serial).
		SetResult(&lease).
		Get("/api/v1/leases")
	if err != nil {
		return Lease{}, fmt.Errorf("lease lookup %q: %w", serial, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		lease.Found = lease.IPAddress != "" || lease.MACAddress != ""
		return lease, nil
	case http.StatusNotFound:
		return Lease{}, nil
	default:
		return Lease{}, fmt.Errorf("lease lookup %q: unexpected status %d", serial, resp.StatusCode())
	}
}
