package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/attendwatch/internal/handler"
	"github.com/attendwatch/internal/middleware"
	"github.com/attendwatch/internal/model"
	"github.com/attendwatch/internal/web"
)

func (app *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders(app.config.SecureCookies))
	if len(app.config.Cors.TrustedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   app.config.Cors.TrustedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
			AllowCredentials: true,
		}).Handler)
	}

	// Static files
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.StaticFS)))

	r.Get("/api/health", handler.Health(app.stores.Ping))
	r.Handle("/metrics", app.metrics.Handler())

	base := handler.BaseHandler{Logger: app.logger, Templates: web.Templates}

	authHandler := handler.NewAuthHandler(base, app.stores.Users, app.stores.Sessions, app.config.SecureCookies)
	r.Get("/login", authHandler.LoginPage)
	r.With(middleware.RateLimit(middleware.PerMinute(app.config.LoginRatePerMinute), app.config.LoginRatePerMinute)).
		Post("/login", authHandler.Login)

	uploadHandler := handler.NewUploadHandler(base, app.workflow, app.config.UploadDir, app.config.MaxUploadBytes)
	usersHandler := handler.NewUsersHandler(base, app.stores.Users, app.stores.Sessions)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(app.stores.Sessions, app.stores.Users))

		r.Post("/logout", authHandler.Logout)
		r.Get("/", uploadHandler.Dashboard)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))

			r.With(middleware.Maintenance(&app.maintenance)).Post("/upload", uploadHandler.Upload)
			r.Get("/api/users", usersHandler.List)
			r.Put("/api/users/{id}", usersHandler.Update)
		})
	})
	return r
}
