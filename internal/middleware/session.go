package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/attendwatch/internal/model"
)

const SessionCookieName = "session"

type contextKey string

const (
	contextKeyUserID   contextKey = "userID"
	contextKeyUsername contextKey = "username"
	contextKeyRole     contextKey = "role"
	contextKeyToken    contextKey = "token"
)

// SessionReader retrieves the user ID for a session token.
type SessionReader interface {
	GetUserID(ctx context.Context, token string) (string, error)
}

// userByIDer retrieves an admin user by ID.
type userByIDer interface {
	GetByID(ctx context.Context, id string) (*model.AdminUser, error)
}

// SessionToken returns the token presented by the client: the session cookie,
// or else an Authorization: Bearer header.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// Session middleware validates the session token and populates the request
// context with the user. Browsers without a valid session are redirected to
// /login; API clients get 401.
func Session(sessions SessionReader, users userByIDer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				unauthenticated(w, r)
				return
			}

			userID, err := sessions.GetUserID(r.Context(), token)
			if err != nil {
				unauthenticated(w, r)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil || user.Status != model.StatusActive {
				unauthenticated(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyUserID, user.ID)
			ctx = context.WithValue(ctx, contextKeyUsername, user.Username)
			ctx = context.WithValue(ctx, contextKeyRole, user.Role)
			ctx = context.WithValue(ctx, contextKeyToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthenticated(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"authentication required"}`))
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		r.Header.Get("Authorization") != "" ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// UserIDFromContext returns the authenticated user's ID from the context.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(contextKeyUserID).(string)
	return v
}

func UsernameFromContext(ctx context.Context) string {
	v, _ := ctx.Value(contextKeyUsername).(string)
	return v
}

// RoleFromContext returns the authenticated user's role from the context.
func RoleFromContext(ctx context.Context) model.Role {
	v, _ := ctx.Value(contextKeyRole).(model.Role)
	return v
}

// TokenFromContext returns the session token that authenticated the request.
func TokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(contextKeyToken).(string)
	return v
}
