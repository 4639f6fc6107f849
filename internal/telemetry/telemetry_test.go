package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagwatch/tagwatch/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "tagwatch-ingestor",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})
	require.NoError(t, err)

	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	assert.NoError(t, (&telemetry.Provider{}).Shutdown(context.Background()))
}

func TestTracer(t *testing.T) {
	assert.NotNil(t, telemetry.Tracer("github.com/tagwatch/tagwatch/internal/pipeline"))
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_SAMPLE_RATIO", "")
	t.Setenv("OTEL_METRIC_INTERVAL", "")

	cfg := telemetry.ConfigFromEnv("tagwatch-ingestor", "dev", "development")

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.Equal(t, 15*time.Second, cfg.MetricInterval)
	assert.Equal(t, "tagwatch-ingestor", cfg.ServiceName)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_SAMPLE_RATIO", "0.25")
	t.Setenv("OTEL_METRIC_INTERVAL", "30s")

	cfg := telemetry.ConfigFromEnv("svc", "v1", "production")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 0.25, cfg.SampleRatio)
	assert.Equal(t, 30*time.Second, cfg.MetricInterval)
}

func TestConfigFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("OTEL_SAMPLE_RATIO", "2.5")
	t.Setenv("OTEL_METRIC_INTERVAL", "often")

	cfg := telemetry.ConfigFromEnv("svc", "v1", "test")

	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.Equal(t, 15*time.Second, cfg.MetricInterval)
}
