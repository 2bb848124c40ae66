package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	appmw "github.com/attendwatch/internal/middleware"
	"github.com/attendwatch/internal/model"
	"github.com/attendwatch/internal/store"
)

type userManagementStore interface {
	ListAll(ctx context.Context) ([]model.AdminUser, error)
	GetByID(ctx context.Context, id string) (*model.AdminUser, error)
	UpdateRoleAndStatus(ctx context.Context, id string, role model.Role, status model.Status) error
}

type allSessionDeleter interface {
	DeleteAllByUserID(ctx context.Context, userID string) error
}

type updateUserRequest struct {
	Role   model.Role   `json:"role" validate:"required,oneof=admin viewer"`
	Status model.Status `json:"status" validate:"required,oneof=active inactive"`
}

// UsersHandler lets admins list accounts and change their role or status.
type UsersHandler struct {
	BaseHandler
	users    userManagementStore
	sessions allSessionDeleter
	validate *validator.Validate
}

func NewUsersHandler(base BaseHandler, users userManagementStore, sessions allSessionDeleter) *UsersHandler {
	return &UsersHandler{BaseHandler: base, users: users, sessions: sessions, validate: validator.New()}
}

// List returns all admin users as JSON.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListAll(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if users == nil {
		users = []model.AdminUser{}
	}
	h.writeJSON(w, r, http.StatusOK, envelope{"users": users})
}

// Update changes a user's role or status. Deactivated or demoted users lose
// their sessions. Admins cannot change their own account.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == appmw.UserIDFromContext(r.Context()) {
		h.errorResponse(w, r, http.StatusBadRequest, "cannot change your own account")
		return
	}

	var req updateUserRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorResponse(w, r, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorResponse(w, r, http.StatusUnprocessableEntity, "role must be admin or viewer and status active or inactive")
		return
	}

	if err := h.users.UpdateRoleAndStatus(r.Context(), id, req.Role, req.Status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.errorResponse(w, r, http.StatusNotFound, "user not found")
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.sessions.DeleteAllByUserID(r.Context(), id); err != nil {
		h.logError(r, err)
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	h.Logger.Info("user updated", "user_id", id, "role", req.Role, "status", req.Status,
		"by", appmw.UsernameFromContext(r.Context()))
	h.writeJSON(w, r, http.StatusOK, envelope{"user": user})
}
