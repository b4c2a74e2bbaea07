package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tphummel/rackline/internal/middleware"
)

const (
	testToken      = "super-secret-token"
	testAdminToken = "admin-secret-token"
)

// okHandler is a trivial next handler that records it was reached.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuth(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantReach  bool // whether the next handler should be called
	}{
		{
			name:       "no header",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
			wantReach:  false,
		},
		{
			name:       "basic auth scheme",
			authHeader: "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
			wantReach:  false,
		},
		{
			name:       "bearer prefix only",
			authHeader: "Bearer ",
			wantStatus: http.StatusUnauthorized,
			wantReach:  false,
		},
		{
			name:       "wrong token",
			authHeader: "Bearer wrong-token",
			wantStatus: http.StatusUnauthorized,
			wantReach:  false,
		},
		{
			name:       "correct token",
			authHeader: "Bearer " + testToken,
			wantStatus: http.StatusOK,
			wantReach:  true,
		},
		{
			name:       "admin token",
			authHeader: "Bearer " + testAdminToken,
			wantStatus: http.StatusOK,
			wantReach:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			})

			handler := middleware.Auth(testToken, testAdminToken, next)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
			if reached != tt.wantReach {
				t.Errorf("handler reached: got %v, want %v", reached, tt.wantReach)
			}
		})
	}
}

func TestAuth_CaseSensitive(t *testing.T) {
	// "bearer" (lowercase) must not be accepted; only "Bearer" is.
	handler := middleware.Auth(testToken, testAdminToken, okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+testToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("lowercase 'bearer': got %d, want 401", rec.Code)
	}
}

func TestAuth_TokenWithLeadingSpace(t *testing.T) {
	// A space before the token value should not authenticate.
	handler := middleware.Auth(testToken, testAdminToken, okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer  "+testToken) // two spaces
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("token with leading space: got %d, want 401", rec.Code)
	}
}

func TestAuth_UnauthorizedResponseIsJSON(t *testing.T) {
	handler := middleware.Auth(testToken, testAdminToken, okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	ct := rec.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("Content-Type on 401: got %q, want application/json", ct)
	}
}

func TestAuth_DifferentTokens(t *testing.T) {
	// Verifies that the middleware uses the token it was constructed with,
	// not some global state.
	const tokenA = "token-a"
	const tokenB = "token-b"

	handlerA := middleware.Auth(tokenA, "", okHandler)
	handlerB := middleware.Auth(tokenB, "", okHandler)

	reqA := httptest.NewRequest(http.MethodGet, "/", nil)
	reqA.Header.Set("Authorization", "Bearer "+tokenA)

	recAonA := httptest.NewRecorder()
	handlerA.ServeHTTP(recAonA, reqA)
	if recAonA.Code != http.StatusOK {
		t.Errorf("tokenA on handlerA: got %d, want 200", recAonA.Code)
	}

	recAonB := httptest.NewRecorder()
	handlerB.ServeHTTP(recAonB, reqA)
	if recAonB.Code != http.StatusUnauthorized {
		t.Errorf("tokenA on handlerB: got %d, want 401", recAonB.Code)
	}
}

func TestAuth_AdminFlag(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		wantAdmin bool
	}{
		{"operator token", testToken, false},
		{"admin token", testAdminToken, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var admin bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				admin = middleware.IsAdmin(r.Context())
			})
			req := httptest.NewRequest(http.MethodDelete, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			middleware.Auth(testToken, testAdminToken, next).ServeHTTP(httptest.NewRecorder(), req)
			if admin != tt.wantAdmin {
				t.Errorf("IsAdmin: got %v, want %v", admin, tt.wantAdmin)
			}
		})
	}
}

func TestAuth_EmptyAdminTokenNeverMatches(t *testing.T) {
	handler := middleware.Auth(testToken, "", okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("empty bearer with no admin token: got %d, want 401", rec.Code)
	}
}

func TestAuth_Actor(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantActor  int64
	}{
		{"absent", "", http.StatusOK, 0},
		{"valid", "17", http.StatusOK, 17},
		{"not a number", "alice", http.StatusBadRequest, 0},
		{"zero", "0", http.StatusBadRequest, 0},
		{"negative", "-3", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var actor int64
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				actor = middleware.ActorFrom(r.Context())
			})
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("Authorization", "Bearer "+testToken)
			if tt.header != "" {
				req.Header.Set(middleware.ActorHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			middleware.Auth(testToken, "", next).ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
			if actor != tt.wantActor {
				t.Errorf("actor: got %d, want %d", actor, tt.wantActor)
			}
		})
	}
}

func TestActorFrom_EmptyContext(t *testing.T) {
	if got := middleware.ActorFrom(context.Background()); got != 0 {
		t.Errorf("ActorFrom: got %d, want 0", got)
	}
	if middleware.IsAdmin(context.Background()) {
		t.Error("IsAdmin on empty context should be false")
	}
}
