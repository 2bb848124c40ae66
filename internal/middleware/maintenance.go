package middleware

import (
	"net/http"
	"sync/atomic"
)

// Maintenance rejects requests with 503 while enabled is set. The server sets
// it when it starts draining so that no new upload begins sending mail.
func Maintenance(enabled *atomic.Bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled.Load() {
				w.Header().Set("Retry-After", "30")
				http.Error(w, "Service temporarily unavailable.", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
