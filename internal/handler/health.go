package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// Health returns a health check handler that verifies database connectivity.
func Health(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		if err := ping(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		render.Status(r, code)
		render.JSON(w, r, map[string]string{"status": status})
	}
}
