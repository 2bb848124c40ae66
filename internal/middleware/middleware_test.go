package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendwatch/internal/model"
)

type fakeSessions map[string]string

func (f fakeSessions) GetUserID(_ context.Context, token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", errors.New("not found")
}

type fakeUsers map[string]*model.AdminUser

func (f fakeUsers) GetByID(_ context.Context, id string) (*model.AdminUser, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

func sessionFixture() (fakeSessions, fakeUsers) {
	return fakeSessions{"good": "u1", "inactive": "u2", "orphan": "u3"},
		fakeUsers{
			"u1": {ID: "u1", Username: "office", Role: model.RoleAdmin, Status: model.StatusActive},
			"u2": {ID: "u2", Username: "gone", Role: model.RoleAdmin, Status: model.StatusInactive},
		}
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(UserIDFromContext(r.Context()) + "|" +
			UsernameFromContext(r.Context()) + "|" +
			string(RoleFromContext(r.Context())) + "|" +
			TokenFromContext(r.Context())))
	})
}

func TestSessionAcceptsCookieAndBearer(t *testing.T) {
	sessions, users := sessionFixture()
	h := Session(sessions, users)(echoUser())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "good"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u1|office|admin|good", rr.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/upload", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSessionRejects(t *testing.T) {
	sessions, users := sessionFixture()
	h := Session(sessions, users)(echoUser())

	tests := []struct {
		name     string
		path     string
		cookie   string
		bearer   string
		wantCode int
	}{
		{"no token page", "/", "", "", http.StatusSeeOther},
		{"unknown cookie", "/", "bogus", "", http.StatusSeeOther},
		{"inactive user", "/", "inactive", "", http.StatusSeeOther},
		{"session without user", "/", "orphan", "", http.StatusSeeOther},
		{"bad bearer", "/upload", "", "bogus", http.StatusUnauthorized},
		{"api path", "/api/anything", "", "", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tc.cookie})
			}
			if tc.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tc.bearer)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantCode, rr.Code)
			if tc.wantCode == http.StatusSeeOther {
				assert.Equal(t, "/login", rr.Header().Get("Location"))
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	sessions, users := sessionFixture()
	users["u4"] = &model.AdminUser{ID: "u4", Role: model.RoleViewer, Status: model.StatusActive}
	sessions["viewer"] = "u4"

	h := Session(sessions, users)(RequireRole(model.RoleAdmin)(echoUser()))

	for token, want := range map[string]int{"good": http.StatusOK, "viewer": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodPost, "/upload", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code, token)
	}
}

func TestRateLimitPerIP(t *testing.T) {
	h := RateLimit(PerMinute(1), 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:3333"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1111"))
}

func TestIPLimiterPrunesIdleVisitors(t *testing.T) {
	il := newIPLimiter(PerMinute(10), 1)
	now := time.Now()
	il.now = func() time.Time { return now }
	for i := 0; i < maxTrackedIPs; i++ {
		il.get(string(rune('a'+i%26)) + time.Duration(i).String())
	}
	require.Len(t, il.visitors, maxTrackedIPs)

	il.now = func() time.Time { return now.Add(limiterIdle + time.Minute) }
	il.get("fresh")
	assert.Len(t, il.visitors, 1)
}

func TestSecurityHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rr := httptest.NewRecorder()
	SecurityHeaders(false)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Empty(t, rr.Header().Get("Strict-Transport-Security"))

	rr = httptest.NewRecorder()
	SecurityHeaders(true)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestMaintenance(t *testing.T) {
	var on atomic.Bool
	h := Maintenance(&on)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/upload", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	on.Store(true)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/upload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "30", rr.Header().Get("Retry-After"))
}
