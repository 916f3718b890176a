package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/admin-portal/app"
	"github.com/upb/admin-portal/authz"
	"github.com/upb/admin-portal/handlers"
	"github.com/upb/admin-portal/middleware"
	"github.com/upb/admin-portal/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	if deps.Config.Server.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// The SPA calls with credentials, so origins are listed explicitly
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)
	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	guard := deps.Guard
	views := deps.ViewHandler

	r.Group(func(r chi.Router) {
		r.Use(deps.BrowserSession.Handler)

		// Public views
		r.Get("/", views.HandleRoot)
		r.Get(guard.LoginPath(), views.HandleLogin)
		r.Get("/register", views.HandleRegister)
		r.Get(guard.FallbackPath(), views.HandleUnauthorized)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", deps.AuthHandler.HandleLogin)
			r.Post("/register", deps.AuthHandler.HandleRegister)
			r.Post("/logout", deps.AuthHandler.HandleLogout)
		})
		r.Get("/api/session", deps.AuthHandler.HandleSession)

		// Guarded views
		for _, v := range handlers.Views {
			r.With(guard.Protect(v.Requirement)).Get(v.Path, views.Render(v))
		}

		// User and role administration
		r.Route("/api/admin", func(r chi.Router) {
			admin := deps.AdminHandler
			r.Group(func(r chi.Router) {
				r.Use(guard.Protect(middleware.Require(authz.ManageUsers)))
				r.Get("/users", admin.HandleListUsers)
				r.Post("/users", admin.HandleCreateUser)
				r.Delete("/users/{id}", admin.HandleDeleteUser)
			})
			r.Group(func(r chi.Router) {
				r.Use(guard.Protect(middleware.Require(authz.ManageRoles)))
				r.Post("/users/{id}/roles/{role}", admin.HandleAssignRole)
				r.Delete("/users/{id}/roles/{role}", admin.HandleRevokeRole)
			})
			r.With(guard.Protect(middleware.Require(authz.ManageSettings))).
				Get("/audit", admin.HandleListAudit)
		})

		// Everything else under the API goes to the remote API with the session's credential
		r.With(guard.Protect(middleware.Authenticated())).
			HandleFunc("/api/v1/*", deps.ProxyHandler.HandleProxy)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
