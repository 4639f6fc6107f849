// Package main provides the entrypoint for the tagwatch ingestor: it consumes
// tag telemetry from MQTT, stores it, raises alerts and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tagwatch/tagwatch/internal/api"
	"github.com/tagwatch/tagwatch/internal/api/middleware"
	"github.com/tagwatch/tagwatch/internal/auth"
	"github.com/tagwatch/tagwatch/internal/broker"
	"github.com/tagwatch/tagwatch/internal/command"
	"github.com/tagwatch/tagwatch/internal/database"
	"github.com/tagwatch/tagwatch/internal/live"
	"github.com/tagwatch/tagwatch/internal/pipeline"
	"github.com/tagwatch/tagwatch/internal/provider/resilience"
	"github.com/tagwatch/tagwatch/internal/push"
	"github.com/tagwatch/tagwatch/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "tagwatch-ingestor"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger().
		Level(parseLevel(os.Getenv("LOG_LEVEL")))

	log.Info().Str("build_time", BuildTime).Msg("starting tagwatch ingestor")

	if err := run(log); err != nil {
		log.Error().Err(err).Msg("ingestor stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("ingestor stopped")
}

func run(log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := getEnvOrDefault("APP_ENV", "development")

	telCfg := telemetry.ConfigFromEnv(serviceName, Version, env)
	tp, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()
	if telCfg.Enabled {
		log.Info().Str("otlp_endpoint", telCfg.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}
	pipelineMetrics, err := pipeline.NewMetrics()
	if err != nil {
		return err
	}

	// Storage
	st, err := openStores(ctx, database.ConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer st.close()

	if raw := os.Getenv("DEV_RECIPIENTS"); raw != "" {
		n, err := seedRecipients(ctx, st.recipients, raw)
		if err != nil {
			return err
		}
		log.Info().Int("count", n).Msg("seeded development recipients")
	}

	// Broker
	brokerCfg := broker.ConfigFromEnv()
	brokerCfg.Logger = log
	brokerCfg.OnStateChange = func(from, to broker.State) {
		pipelineMetrics.BrokerTransition(from.String(), to.String())
	}
	manager := broker.NewManager(&brokerCfg, broker.NewPahoTransport(&brokerCfg))

	// Live viewers
	liveCfg := live.DefaultConfig()
	liveCfg.Logger = log
	if origins := os.Getenv("LIVE_ALLOWED_ORIGINS"); origins != "" {
		liveCfg.AllowedOrigins = strings.Split(origins, ",")
	}
	hub := live.NewHub(liveCfg)
	defer hub.Close()

	// Push
	providers := resilience.NewRegistry()
	sender, err := newSender(ctx, providers, log)
	if err != nil {
		return err
	}

	// Pipeline
	pipeCfg := pipeline.ConfigFromEnv()
	dispatcher := pipeline.NewDispatcher(&pipeline.DispatcherConfig{
		Broadcaster:     hub,
		Recipients:      st.recipients,
		Alerts:          st.alerts,
		Sender:          sender,
		PushConcurrency: pipeCfg.PushConcurrency,
		PushTimeout:     pipeCfg.PushTimeout,
		Metrics:         pipelineMetrics,
		Tracer:          telemetry.Tracer("github.com/tagwatch/tagwatch/internal/pipeline"),
		Logger:          log,
	})
	processor := pipeline.NewProcessor(&pipeline.ProcessorConfig{
		Readings:   st.readings,
		Alerts:     st.alerts,
		Dispatcher: dispatcher,
		Workers:    pipeCfg.Workers,
		Metrics:    pipelineMetrics,
		Tracer:     telemetry.Tracer("github.com/tagwatch/tagwatch/internal/pipeline"),
		Logger:     log,
	})

	// HTTP
	var operators middleware.TokenValidator
	if key := os.Getenv("OPERATOR_JWT_KEY"); key != "" {
		operators = auth.NewJWTService(auth.JWTConfig{
			SigningKey: key,
			Issuer:     getEnvOrDefault("OPERATOR_JWT_ISSUER", "tagwatch"),
			Audience:   getEnvOrDefault("OPERATOR_JWT_AUDIENCE", "tagwatch-ops"),
		})
	} else {
		log.Warn().Msg("OPERATOR_JWT_KEY not set, command endpoint is unauthenticated")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		ServiceName: serviceName,
		Logger:      log,
		Metrics:     httpMetrics,
		RequireTLS:  getEnvBool("REQUIRE_TLS", false),
		Broker:      manager,
		Readings:    st.readings,
		Alerts:      st.alerts,
		Commands:    command.NewPublisher(manager, log),
		Live:        hub,
		Viewers:     hub,
		Providers:   providers,
		Operators:   operators,
	})

	server := &http.Server{
		Addr:              ":" + getEnvOrDefault("APP_PORT", "8080"),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return manager.Run(gctx)
	})
	g.Go(func() error {
		return processor.Run(gctx, manager.Messages())
	})
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		hub.Close()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newSender returns an FCM sender when FCM_PROJECT_ID is set, otherwise a
// sender that only logs.
func newSender(ctx context.Context, providers *resilience.Registry, log zerolog.Logger) (push.Sender, error) {
	projectID := os.Getenv("FCM_PROJECT_ID")
	if projectID == "" {
		log.Warn().Msg("FCM_PROJECT_ID not set, push notifications are logged only")
		return push.NewLogSender(log), nil
	}

	tokens, err := push.NewGoogleTokenSource(ctx)
	if err != nil {
		return nil, err
	}

	clientCfg := resilience.DefaultClientConfig("fcm")
	clientCfg.Registry = providers
	clientCfg.Logger = log

	sender, err := push.NewFCMSender(&push.FCMConfig{
		ProjectID:   projectID,
		Endpoint:    os.Getenv("FCM_ENDPOINT"),
		TokenSource: tokens,
		Client:      clientCfg,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("project_id", projectID).Msg("FCM sender initialized")
	return sender, nil
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
