// Package broker manages the MQTT connection that feeds the ingestion pipeline.
package broker

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultIngestTopic is the topic tags publish telemetry on.
const DefaultIngestTopic = "iot/tag/data"

// Config holds configuration for the connection manager and its transport.
type Config struct {
	// BrokerURL is the MQTT broker address, e.g. tcp://localhost:1883.
	BrokerURL string

	Username string
	Password string

	// ClientID must be unique per broker. A random suffix is generated by default.
	ClientID string

	// IngestTopic is subscribed on every successful connect.
	IngestTopic string

	// QoS applies to both the ingest subscription and outbound publishes.
	QoS byte

	// MaxReconnectAttempts caps consecutive failed attempts before the manager
	// gives up and enters StateTerminated.
	// Default: 5
	MaxReconnectAttempts int

	// ReconnectDelay is the fixed wait before each reconnect attempt.
	// Default: 5 seconds
	ReconnectDelay time.Duration

	// ConnectTimeout bounds a single connect handshake.
	// Default: 10 seconds
	ConnectTimeout time.Duration

	// MessageBuffer is the capacity of the inbound message channel.
	MessageBuffer int

	// OnStateChange, if set, is called from the run loop after every transition.
	OnStateChange func(from, to State)

	Logger zerolog.Logger
}

// DefaultConfig returns a configuration for a local broker.
func DefaultConfig() Config {
	return Config{
		BrokerURL:            "tcp://localhost:1883",
		ClientID:             defaultClientID(),
		IngestTopic:          DefaultIngestTopic,
		QoS:                  1,
		MaxReconnectAttempts: 5,
		ReconnectDelay:       5 * time.Second,
		ConnectTimeout:       10 * time.Second,
		MessageBuffer:        256,
		Logger:               zerolog.Nop(),
	}
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.BrokerURL = getEnvOrDefault("MQTT_BROKER_URL", cfg.BrokerURL)
	cfg.Username = os.Getenv("MQTT_USERNAME")
	cfg.Password = os.Getenv("MQTT_PASSWORD")
	cfg.ClientID = getEnvOrDefault("MQTT_CLIENT_ID", cfg.ClientID)
	cfg.IngestTopic = getEnvOrDefault("MQTT_INGEST_TOPIC", cfg.IngestTopic)

	if qos, err := strconv.Atoi(os.Getenv("MQTT_QOS")); err == nil && qos >= 0 && qos <= 2 {
		cfg.QoS = byte(qos)
	}
	if n, err := strconv.Atoi(os.Getenv("MQTT_MAX_RECONNECT_ATTEMPTS")); err == nil && n >= 0 {
		cfg.MaxReconnectAttempts = n
	}
	if d, err := time.ParseDuration(os.Getenv("MQTT_RECONNECT_DELAY")); err == nil && d > 0 {
		cfg.ReconnectDelay = d
	}
	if d, err := time.ParseDuration(os.Getenv("MQTT_CONNECT_TIMEOUT")); err == nil && d > 0 {
		cfg.ConnectTimeout = d
	}

	return cfg
}

func defaultClientID() string {
	return "tagwatch-ingestor-" + uuid.NewString()[:8]
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
