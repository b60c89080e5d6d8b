// Package api provides the REST API server for the synthetic users dataset.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	v1 "github.com/stacklok/synthetic-users-api/internal/api/v1"
	"github.com/stacklok/synthetic-users-api/internal/service"
)

// ServerOption configures the users API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	routerOptions  []v1.RouterOption
	allowedOrigins []string
	corsMaxAge     int
	metricsHandler http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithRouterOptions configures the users routes
func WithRouterOptions(opts ...v1.RouterOption) ServerOption {
	return func(cfg *serverConfig) {
		cfg.routerOptions = append(cfg.routerOptions, opts...)
	}
}

// WithCORS sets the origins allowed to call the API from a browser
func WithCORS(allowedOrigins []string, maxAge int) ServerOption {
	return func(cfg *serverConfig) {
		cfg.allowedOrigins = allowedOrigins
		cfg.corsMaxAge = maxAge
	}
}

// WithMetricsHandler serves h on /metrics. A nil handler leaves the route unregistered.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// NewServer creates and configures the HTTP router with the given service and options
func NewServer(svc service.UserService, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		allowedOrigins: []string{"*"},
		corsMaxAge:     300,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()

	// CORS runs first so preflight requests never reach the other middlewares
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         cfg.corsMaxAge,
	}))

	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	// Mount health check routes directly at root
	r.Mount("/", v1.HealthRouter(svc))

	r.Mount("/api", v1.Router(svc, cfg.routerOptions...))

	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
