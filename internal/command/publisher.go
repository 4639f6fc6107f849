// Package command publishes operator commands to tags over the broker.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TopicPrefix is prepended to the device id to form the command topic.
const TopicPrefix = "iot/tag/command/"

var (
	// ErrNotConnected is returned when the broker connection is down.
	ErrNotConnected = errors.New("broker not connected")

	// ErrEmptyDeviceID is returned for a blank device id.
	ErrEmptyDeviceID = errors.New("device id is required")

	// ErrInvalidDeviceID is returned when the id would change the topic shape.
	ErrInvalidDeviceID = errors.New("device id contains topic separator or wildcard")
)

// topicReserved are the MQTT level separator, wildcards and the NUL byte.
const topicReserved = "/+#\x00"

// Broker is the subset of the connection manager the publisher needs.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) (bool, error)
}

// Result describes a published command.
type Result struct {
	Topic       string         `json:"topic"`
	Payload     map[string]any `json:"payload"`
	PublishedAt time.Time      `json:"published_at"`
}

// Publisher sends commands to individual tags.
type Publisher struct {
	broker Broker
	logger zerolog.Logger
	now    func() time.Time
}

// NewPublisher creates a Publisher.
func NewPublisher(broker Broker, logger zerolog.Logger) *Publisher {
	return &Publisher{
		broker: broker,
		logger: logger.With().Str("component", "command").Logger(),
		now:    time.Now,
	}
}

// Topic returns the command topic for deviceID.
func Topic(deviceID string) string {
	return TopicPrefix + deviceID
}

// Publish sends cmd to the tag with an added timestamp in epoch seconds. A
// caller-provided timestamp is overwritten. There is no retry; a disconnected
// broker yields ErrNotConnected.
func (p *Publisher) Publish(ctx context.Context, deviceID string, cmd map[string]any) (*Result, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, ErrEmptyDeviceID
	}
	if strings.ContainsAny(deviceID, topicReserved) {
		return nil, ErrInvalidDeviceID
	}

	now := p.now().UTC()
	payload := make(map[string]any, len(cmd)+1)
	for k, v := range cmd {
		payload[k] = v
	}
	payload["timestamp"] = now.Unix()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	topic := Topic(deviceID)
	ok, err := p.broker.Publish(ctx, topic, body)
	if err != nil {
		return nil, fmt.Errorf("publish command: %w", err)
	}
	if !ok {
		p.logger.Warn().Str("device_id", deviceID).Msg("command dropped, broker not connected")
		return nil, ErrNotConnected
	}

	p.logger.Info().Str("device_id", deviceID).Str("topic", topic).Msg("command published")

	return &Result{Topic: topic, Payload: payload, PublishedAt: now}, nil
}
