package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/redmonkez12/go-shortener-api/internal/auth"
	"github.com/redmonkez12/go-shortener-api/internal/config"
	"github.com/redmonkez12/go-shortener-api/internal/httputil"
	"github.com/redmonkez12/go-shortener-api/internal/logging"
	"github.com/redmonkez12/go-shortener-api/internal/ratelimit"
	"github.com/redmonkez12/go-shortener-api/internal/shorturl"
	"github.com/redmonkez12/go-shortener-api/internal/user"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Dependencies are the handlers and middleware the router mounts
type Dependencies struct {
	Auth           *auth.Handler
	AuthMiddleware *auth.Middleware
	URLs           *shorturl.Handler
	Limiter        *ratelimit.Limiter
	HealthChecks   map[string]HealthCheck
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies, logger *logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	// Global middleware
	r.Use(SecurityHeaders(!cfg.Server.IsDevelopment()))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Compress(5))

	r.Get("/health", handleHealth(deps.HealthChecks))

	// Swagger UI is open in development and admin-only otherwise
	if cfg.Server.IsDevelopment() {
		logger.Info("swagger UI enabled at /swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	} else {
		logger.Info("swagger UI restricted to administrators")
		r.With(deps.AuthMiddleware.RequireAuth, auth.RequireRole(user.RoleAdmin)).Get("/swagger/*", httpSwagger.WrapHandler)
	}

	limit := deps.Limiter.Middleware

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			// Register and login apply their own IP budgets
			r.Post("/register", deps.Auth.Register)
			r.Post("/login", deps.Auth.Login)
			r.Post("/password-reset/request", deps.Auth.RequestPasswordReset)
			r.Post("/password-reset/confirm", deps.Auth.ConfirmPasswordReset)
			r.Post("/email-verification/request", deps.Auth.RequestEmailVerification)
			r.Post("/email-verification/confirm", deps.Auth.ConfirmEmailVerification)

			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireAuth)
				r.Get("/me", deps.Auth.Me)
				r.Patch("/{id}", deps.Auth.UpdateUser)
				r.With(auth.RequireRole(user.RoleAdmin)).Get("/", deps.Auth.ListUsers)
			})
		})

		r.Route("/urls", func(r chi.Router) {
			r.With(limit(ratelimit.PurposeURLCreate)).Post("/", deps.URLs.Create)
			r.With(limit(ratelimit.PurposeURLList)).Get("/", deps.URLs.List)
			r.With(limit(ratelimit.PurposeURLGet)).Get("/{id}", deps.URLs.Get)
			r.With(limit(ratelimit.PurposeURLDelete)).Delete("/{id}", deps.URLs.Delete)
		})
	})

	r.Route("/r", func(r chi.Router) {
		r.Use(limit(ratelimit.PurposeRedirect))
		r.Get("/api/url/{code}", deps.URLs.Lookup)
		r.Get("/{code}", deps.URLs.Redirect)
	})

	return r
}

// HealthResponse reports overall status and per-dependency results
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth checks every dependency with a short timeout
// @Summary      Health check
// @Description  Check if the API and its dependencies are reachable
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthResponse
// @Failure      503 {object} HealthResponse
// @Router       /health [get]
func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logging.GetLoggerFromContext(r.Context()).Error("health check failed", "dependency", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		httputil.RespondJSON(w, resp, status)
	}
}
