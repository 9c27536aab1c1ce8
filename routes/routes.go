package routes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/tokengate/app"
	"github.com/upb/tokengate/config"
	"github.com/upb/tokengate/handlers"
	"github.com/upb/tokengate/internal/auth"
	"github.com/upb/tokengate/internal/observability"
	"github.com/upb/tokengate/internal/routing"
	"github.com/upb/tokengate/middleware"
	"github.com/upb/tokengate/models"
	"go.uber.org/zap"
)

// route binds one operation to its handler and its access metadata
type route struct {
	endpoint routing.Endpoint
	handler  http.HandlerFunc
	with     []func(http.Handler) http.Handler
}

// routeHandlers groups the handlers referenced by the route table
type routeHandlers struct {
	auth    *handlers.AuthHandler
	persons *handlers.PersonHandler
	errors  *handlers.ErrorHandler
	health  *handlers.HealthHandler
	// audit is nil when the audit trail is disabled
	audit *handlers.AuditHandler

	loginLimit func(http.Handler) http.Handler
}

// SetupRoutes configures all application routes and middleware.
// It fails when the route table cannot be classified.
func SetupRoutes(deps *app.Dependencies) (http.Handler, error) {
	cfg := deps.Config
	logger := deps.Logger

	errorHandler := handlers.NewErrorHandler(logger)
	hs := routeHandlers{
		auth:    handlers.NewAuthHandler(deps.PersonService, cfg.Token.ExpirationDuration, logger),
		persons: handlers.NewPersonHandler(deps.PersonService, logger),
		errors:  errorHandler,
		health:  handlers.NewHealthHandler(logger, readinessChecks(deps)...),
	}

	if deps.Audit != nil {
		hs.audit = handlers.NewAuditHandler(deps.Audit, logger)
	}

	if deps.LoginLimiter != nil {
		hs.loginLimit = middleware.NewRateLimitMiddleware(deps.LoginLimiter, middleware.RateLimitConfig{
			Limit:      cfg.RateLimit.LoginAttempts,
			Window:     cfg.RateLimit.LoginWindow,
			KeyPrefix:  "login:",
			FailClosed: cfg.RateLimit.FailClosed,
		}, logger).Limit
	}

	table := routeTable(cfg.Routes, hs)

	classifier, err := routing.NewClassifier(routing.Config{
		APIBase:   cfg.Routes.APIBase,
		AdminBase: cfg.Routes.AdminBase,
	}, Endpoints(cfg.Routes, table), logger.Named("routing"))
	if err != nil {
		return nil, fmt.Errorf("failed to build route classifier: %w", err)
	}

	pipeline := middleware.NewAuthPipeline(classifier, deps.Provider, logger.Named("pipeline"))

	trustedProxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.RealIP(trustedProxies))
	r.Use(observability.AccessLog(logger.Named("http")))
	r.Use(observability.Recoverer(logger.Named("http")))
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Every request is classified before routing, so unknown API paths still need a credential
	r.Use(pipeline.Handler)

	for _, rt := range table {
		mws := append([]func(http.Handler) http.Handler{}, rt.with...)
		// annotated operations carry their own permission check
		if rt.endpoint.Tier == routing.TierRequiresAuth && len(rt.endpoint.Permissions) > 0 {
			mws = append(mws, pipeline.RequirePermissions(rt.endpoint.Mode, rt.endpoint.Permissions.Slice()...))
		}
		for _, method := range rt.endpoint.Methods {
			r.With(mws...).Method(method, rt.endpoint.Pattern, rt.handler)
		}
	}

	r.NotFound(errorHandler.HandleNotFound)
	r.MethodNotAllowed(errorHandler.HandleMethodNotAllowed)

	logger.Info("routes registered",
		zap.Int("operations", len(table)),
		zap.String("api_base", cfg.Routes.APIBase),
		zap.String("admin_base", cfg.Routes.AdminBase))

	return r, nil
}

// Endpoints returns the access table handed to the classifier: every
// registered operation plus the configured extra public paths.
func Endpoints(cfg config.RoutesConfig, table []route) []routing.Endpoint {
	endpoints := make([]routing.Endpoint, 0, len(table)+len(cfg.PublicPaths))
	for _, rt := range table {
		endpoints = append(endpoints, rt.endpoint)
	}
	for _, p := range cfg.PublicPaths {
		endpoints = append(endpoints, routing.Endpoint{Pattern: p, Tier: routing.TierPublic})
	}
	return endpoints
}

func routeTable(cfg config.RoutesConfig, hs routeHandlers) []route {
	api := cfg.APIBase
	admin := cfg.AdminBase
	adminPerms := models.NewPermissionSet(models.PermissionAdmin)

	public := func(method, pattern string, h http.HandlerFunc, with ...func(http.Handler) http.Handler) route {
		return route{
			endpoint: routing.Endpoint{Pattern: pattern, Methods: []string{method}, Tier: routing.TierPublic},
			handler:  h,
			with:     compact(with),
		}
	}
	authenticated := func(method, pattern string, h http.HandlerFunc) route {
		return route{
			endpoint: routing.Endpoint{Pattern: pattern, Methods: []string{method}, Tier: routing.TierRequiresAuth},
			handler:  h,
		}
	}
	adminAnnotated := func(method, pattern string, h http.HandlerFunc) route {
		return route{
			endpoint: routing.Endpoint{
				Pattern:     pattern,
				Methods:     []string{method},
				Tier:        routing.TierRequiresAuth,
				Permissions: adminPerms,
				Mode:        auth.ModeAny,
			},
			handler: h,
		}
	}

	table := []route{
		// Health
		public(http.MethodGet, "/healthz", hs.health.HandleHealth),
		public(http.MethodGet, "/readyz", hs.health.HandleReadiness),

		// Session
		public(http.MethodPost, api+"/login", hs.auth.HandleLogin, hs.loginLimit),
		public(http.MethodPost, api+"/register", hs.auth.HandleRegister),
		authenticated(http.MethodPost, api+"/logout", hs.auth.HandleLogout),
		authenticated(http.MethodGet, api+"/me", hs.auth.HandleMe),

		// Person management
		adminAnnotated(http.MethodPost, api+"/create-user", hs.persons.HandleCreateUser),
		adminAnnotated(http.MethodPost, api+"/update-user", hs.persons.HandleUpdateUser),
		adminAnnotated(http.MethodDelete, api+"/delete-user", hs.persons.HandleDeleteUser),
		adminAnnotated(http.MethodGet, api+"/get-all-users", hs.persons.HandleListUsers),
		adminAnnotated(http.MethodGet, api+"/get-all-permissions", hs.persons.HandleListPermissions),

		// Admin area, cookie credentials
		{
			endpoint: routing.Endpoint{
				Pattern: admin + "/users",
				Methods: []string{http.MethodGet},
				Tier:    routing.TierAdminOnly,
			},
			handler: hs.persons.HandleListUsers,
		},

		// Error endpoints
		public(http.MethodGet, api+"/unauthorized", hs.errors.HandleUnauthorized),
		public(http.MethodGet, api+"/token-expired", hs.errors.HandleTokenExpired),
		public(http.MethodGet, api+"/forbidden", hs.errors.HandleForbidden),
		public(http.MethodGet, api+"/notFound", hs.errors.HandleNotFound),
		public(http.MethodGet, api+"/error", hs.errors.HandleError),
	}

	if hs.audit != nil {
		table = append(table,
			adminAnnotated(http.MethodGet, api+"/get-audit-log", hs.audit.HandleListAudit),
			route{
				endpoint: routing.Endpoint{
					Pattern: admin + "/audit",
					Methods: []string{http.MethodGet},
					Tier:    routing.TierAdminOnly,
				},
				handler: hs.audit.HandleListAudit,
			},
		)
	}

	if cfg.ErrorBase != "" && cfg.ErrorBase != api+"/error" {
		table = append(table, public(http.MethodGet, cfg.ErrorBase, hs.errors.HandleError))
	}

	return table
}

// compact drops nil middlewares
func compact(mws []func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	out := mws[:0]
	for _, mw := range mws {
		if mw != nil {
			out = append(out, mw)
		}
	}
	return out
}

// readinessChecks covers the account store and, when it backs the login
// limiter, redis
func readinessChecks(deps *app.Dependencies) []handlers.ReadinessCheck {
	var checks []handlers.ReadinessCheck
	if deps.DB != nil {
		checks = append(checks, handlers.DatabaseCheck(deps.DB.DB))
	}
	if client := deps.RedisClient(); client != nil {
		checks = append(checks, handlers.ReadinessCheck{
			Name: "rate_limiter",
			Check: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		})
	}
	return checks
}
