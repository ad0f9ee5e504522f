package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/qcsys/recordq/internal/api"
	apiMiddleware "github.com/qcsys/recordq/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	authHandler := api.NewAuthHandler(app.loginService)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	recordHandler := api.NewRecordHandler(app.leases, app.queue, app.logger)
	intakeHandler := api.NewIntakeHandler(app.queue,
		api.StaticGroupResolver(app.config.Queue.CurrentGroupKey), app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Route("/record", func(r chi.Router) {
				r.Get("/sessions", recordHandler.ListSessions)
				r.Get("/status", recordHandler.Status)
				r.Get("/next", recordHandler.Next)
				r.Post("/renew", recordHandler.Renew)
				r.Post("/unlock", recordHandler.Unlock)
				r.Post("/skip", recordHandler.Skip)
				r.Post("/submit", recordHandler.Submit)
				r.Post("/update_url", recordHandler.UpdateURL)
				r.Post("/update_field", recordHandler.UpdateField)
			})

			r.Post("/qc/tasks", intakeHandler.Create)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
