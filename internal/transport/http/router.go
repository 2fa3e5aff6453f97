package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/njala-api/internal/application/audit"
	"github.com/njala-api/internal/application/auth"
	"github.com/njala-api/internal/application/user"
	"github.com/njala-api/internal/config"
	"github.com/njala-api/internal/domain"
	jwtinfra "github.com/njala-api/internal/infrastructure/jwt"
	"github.com/njala-api/internal/transport/http/handler"
	appmiddleware "github.com/njala-api/internal/transport/http/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type tokenVerifier interface {
	Verify(tokenStr string) (*jwtinfra.Claims, error)
}

// Deps holds the application services the router exposes.
type Deps struct {
	Auth     auth.Service
	Users    user.Service
	Audit    audit.Service
	Verifier tokenVerifier
	Gatherer prometheus.Gatherer
	// Limiter guards the public auth endpoints. The caller stops it on shutdown.
	Limiter *appmiddleware.RateLimiter
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(appmiddleware.ClientIP)

	limiter := deps.Limiter
	authMw := appmiddleware.Auth(deps.Verifier)
	superAdmin := appmiddleware.RequireRole(domain.RoleSuperAdmin)

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(deps.Auth)
	superH := handler.NewSuperAdminHandler(deps.Users)
	auditH := handler.NewAuditHandler(deps.Audit)

	r.Get("/health-check/{action}", healthH.Ping)
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/refresh-token", authH.RefreshToken)
			r.With(authMw).Get("/me", authH.Me)

			r.Group(func(r chi.Router) {
				r.Use(limiter.Limit)
				r.Post("/register", authH.Register)
				r.Post("/login", authH.Login)
				r.Post("/google-login", authH.GoogleLogin)
				r.Post("/verify-2fa", authH.VerifyTwoFactor)
				r.Post("/request-otp", authH.RequestOTP)
				r.Post("/verify-otp", authH.VerifyOTP)
				r.Post("/request-reset", authH.RequestReset)
				r.Post("/reset-password", authH.ResetPassword)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authMw, superAdmin)

			r.Route("/superadmin", func(r chi.Router) {
				r.Get("/users", superH.ListUsers)
				r.Get("/users/{id}", superH.GetUser)
				r.Delete("/users/{id}", superH.DeleteUser)
				r.Put("/promote/{id}", superH.Promote)
				r.Post("/create-admin", superH.CreateAdmin)
			})
			r.Get("/audit/logs", auditH.List)
		})
	})

	return r
}
