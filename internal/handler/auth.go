package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/attendwatch/internal/auth"
	appmw "github.com/attendwatch/internal/middleware"
	"github.com/attendwatch/internal/model"
	"github.com/attendwatch/internal/store"
)

type userGetterByUsername interface {
	GetByUsername(ctx context.Context, username string) (*model.AdminUser, string, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

type sessionCreatorDeleter interface {
	Create(ctx context.Context, userID string) (string, time.Time, error)
	Delete(ctx context.Context, token string) error
}

type loginPageData struct {
	Username string
	Error    string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthHandler handles sign-in and sign-out.
type AuthHandler struct {
	BaseHandler
	users         userGetterByUsername
	sessions      sessionCreatorDeleter
	secureCookies bool
}

func NewAuthHandler(base BaseHandler, users userGetterByUsername, sessions sessionCreatorDeleter, secureCookies bool) *AuthHandler {
	return &AuthHandler{BaseHandler: base, users: users, sessions: sessions, secureCookies: secureCookies}
}

// LoginPage renders the login form.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "login.html", http.StatusOK, loginPageData{})
}

// Login checks the credentials and starts a session. Browsers get a cookie and
// a redirect to the dashboard; JSON clients get the token in the body for use
// as a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			h.errorResponse(w, r, http.StatusBadRequest, "body must be a JSON object with username and password")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.errorResponse(w, r, http.StatusBadRequest, "Bad Request")
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}
	req.Username = strings.TrimSpace(req.Username)

	user, err := h.authenticate(r.Context(), req)
	switch {
	case errors.Is(err, errBadCredentials):
		h.Logger.Warn("login failed", "username", req.Username)
		h.loginFailed(w, r, req.Username, http.StatusUnauthorized, "Invalid username or password.")
		return
	case err != nil:
		h.serverErrorResponse(w, r, err)
		return
	}
	if user.Status != model.StatusActive {
		h.Logger.Warn("login refused for inactive account", "username", user.Username)
		h.loginFailed(w, r, req.Username, http.StatusForbidden, "Account is inactive.")
		return
	}

	token, expiresAt, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.users.UpdateLastLogin(r.Context(), user.ID); err != nil {
		h.Logger.Warn("failed to record last login", "user_id", user.ID, "err", err)
	}
	h.Logger.Info("login", "username", user.Username, "user_id", user.ID)

	if wantsJSON(r) {
		h.writeJSON(w, r, http.StatusOK, envelope{"token": token, "expiresAt": expiresAt})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     appmw.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Expires:  expiresAt,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

var errBadCredentials = errors.New("bad credentials")

func (h *AuthHandler) authenticate(ctx context.Context, req loginRequest) (*model.AdminUser, error) {
	if req.Username == "" || req.Password == "" {
		return nil, errBadCredentials
	}
	user, hash, err := h.users.GetByUsername(ctx, req.Username)
	if err != nil {
		auth.VerifyMissing(req.Password)
		if errors.Is(err, store.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if !auth.Verify(hash, req.Password) {
		return nil, errBadCredentials
	}
	return user, nil
}

func (h *AuthHandler) loginFailed(w http.ResponseWriter, r *http.Request, username string, status int, msg string) {
	if wantsJSON(r) {
		h.errorResponse(w, r, status, msg)
		return
	}
	h.renderPage(w, r, "login.html", status, loginPageData{Username: username, Error: msg})
}

// Logout ends the session that authenticated the request.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := appmw.TokenFromContext(r.Context()); token != "" {
		if err := h.sessions.Delete(r.Context(), token); err != nil {
			h.logError(r, err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     appmw.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
