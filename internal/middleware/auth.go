package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// ActorHeader carries the numeric id of the operator making the request.
const ActorHeader = "X-Actor-ID"

type ctxKey int

const (
	actorKey ctxKey = iota
	adminKey
)

func writeJSONError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, body, status)
}

// Auth returns a handler that requires a valid Bearer token before
// delegating to next. Responds with 401 if the header is missing or wrong.
// A request presenting adminToken is marked as admin. The optional actor
// header must hold a positive integer; it is stored for ActorFrom.
func Auth(token, adminToken string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSONError(w, http.StatusUnauthorized, `{"error":"unauthorized","code":"UNAUTHORIZED"}`)
			return
		}
		got := strings.TrimPrefix(authHeader, "Bearer ")
		var admin bool
		switch {
		case adminToken != "" && got == adminToken:
			admin = true
		case got == token:
		default:
			writeJSONError(w, http.StatusUnauthorized, `{"error":"unauthorized","code":"UNAUTHORIZED"}`)
			return
		}

		actor, ok := parseActor(r.Header.Get(ActorHeader))
		if !ok {
			writeJSONError(w, http.StatusBadRequest, `{"error":"invalid X-Actor-ID header","code":"VALIDATION"}`)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		ctx = context.WithValue(ctx, adminKey, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parseActor returns 0 for an absent header.
func parseActor(v string) (int64, bool) {
	if v == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ActorFrom returns the actor id stored by Auth, or 0.
func ActorFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(actorKey).(int64)
	return id
}

// IsAdmin reports whether the request authenticated with the admin token.
func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(adminKey).(bool)
	return admin
}
