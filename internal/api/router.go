// Package api provides the HTTP API for tagwatch.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tagwatch/tagwatch/internal/api/handler"
	"github.com/tagwatch/tagwatch/internal/api/middleware"
	"github.com/tagwatch/tagwatch/internal/api/response"
	"github.com/tagwatch/tagwatch/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	ServiceName string
	Logger      zerolog.Logger
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Broker    handler.BrokerStatus
	Readings  handler.ReadingLister
	Alerts    handler.AlertLister
	Commands  handler.CommandPublisher
	Live      http.Handler
	Viewers   handler.ViewerCounter
	Providers *resilience.Registry

	// Operators validates bearer tokens on command endpoints. Nil leaves
	// them open.
	Operators middleware.TokenValidator
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tagwatch-ingestor"
	}

	// Order matters: request id first so every later layer can tag with it.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders(middleware.SecurityConfig{HSTS: cfg.RequireTLS}))
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, methodNotAllowed(r))
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		Broker:    cfg.Broker,
		Viewers:   cfg.Viewers,
		Providers: cfg.Providers,
	})
	deviceHandler := handler.NewDeviceHandler(cfg.Readings, cfg.Alerts, cfg.Logger)
	commandHandler := handler.NewCommandHandler(cfg.Commands, cfg.Broker, cfg.Logger)
	feedbackHandler := handler.NewFeedbackHandler(cfg.Logger)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(standardRateLimit).Get("/status", opsHandler.SystemStatus)
		})

		if cfg.Live != nil {
			r.With(middleware.RateLimitByIP(middleware.StreamRateLimit)).Handle("/ws", cfg.Live)
		}

		r.Route("/devices/{deviceId}", func(r chi.Router) {
			r.With(standardRateLimit).Get("/readings", deviceHandler.ListReadings)
			r.With(standardRateLimit).Get("/alerts", deviceHandler.ListAlerts)

			r.With(
				middleware.OperatorAuth(cfg.Operators),
				middleware.RateLimitByOperator(middleware.CommandRateLimit),
				middleware.RequireJSON,
			).Post("/commands", commandHandler.Publish)
		})

		r.With(standardRateLimit, middleware.RequireJSON).Post("/feedback", feedbackHandler.Submit)
	})

	return r
}
