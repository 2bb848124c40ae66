package handler

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type envelope map[string]any

type BaseHandler struct {
	Logger    *slog.Logger
	Templates *template.Template
}

func (h *BaseHandler) logError(r *http.Request, err error) {
	h.Logger.Error(err.Error(),
		"method", r.Method,
		"uri", r.URL.RequestURI(),
		"request_id", middleware.GetReqID(r.Context()),
	)
}

func (h *BaseHandler) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	if !wantsJSON(r) {
		render.Status(r, status)
		render.PlainText(w, r, message)
		return
	}
	render.Status(r, status)
	render.JSON(w, r, envelope{"error": message})
}

func (h *BaseHandler) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	h.logError(r, err)
	h.errorResponse(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func (h *BaseHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, data)
}

func (h *BaseHandler) renderPage(w http.ResponseWriter, r *http.Request, page string, status int, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.Templates.ExecuteTemplate(w, page, data); err != nil {
		h.logError(r, err)
	}
}

// wantsJSON reports whether the client is a script rather than a browser
// form post.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ")
}
