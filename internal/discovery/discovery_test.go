package discovery_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tphummel/rackline/internal/discovery"
)

func newLeaseServer(t *testing.T, handler http.HandlerFunc) *discovery.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return discovery.New(srv.URL, "lease-token", 2*time.Second)
}

func TestFindInDHCP_Found(t *testing.T) {
	client := newLeaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/leases" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if r.URL.Query().Get("serial") != "SN-1" {
			t.Errorf("serial: got %q", r.URL.Query().Get("serial"))
		}
		if r.Header.Get("Authorization") != "Bearer lease-token" {
			t.Errorf("auth: got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"ip_address":  "10.1.2.3",
			"mac_address": "aa:bb:cc:dd:ee:ff",
			"hostname":    "node-1",
			"active":      true,
		})
	})

	lease, err := client.FindInDHCP(context.Background(), "SN-1")
	if err != nil {
		t.Fatalf("FindInDHCP: %v", err)
	}
	if !lease.Found || lease.IPAddress != "10.1.2.3" || lease.Hostname != "node-1" || !lease.Active {
		t.Errorf("lease: got %+v", lease)
	}
}

func TestFindInDHCP_NotFound(t *testing.T) {
	client := newLeaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	lease, err := client.FindInDHCP(context.Background(), "SN-404")
	if err != nil {
		t.Fatalf("FindInDHCP: %v", err)
	}
	if lease.Found {
		t.Errorf("lease should not be found: %+v", lease)
	}
}

func TestFindInDHCP_ServerError(t *testing.T) {
	client := newLeaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := client.FindInDHCP(context.Background(), "SN-1"); err == nil {
		t.Error("expected error on 502")
	}
}

func TestFindInDHCP_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := discovery.New(url, "", 500*time.Millisecond)
	if _, err := client.FindInDHCP(context.Background(), "SN-1"); err == nil {
		t.Error("expected error for unreachable lease service")
	}
}
