package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrTimeout is returned when the broker does not acknowledge an operation in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// PahoTransport implements Transport using the Eclipse Paho client with its
// built-in reconnect logic disabled.
type PahoTransport struct {
	opts    *mqtt.ClientOptions
	timeout time.Duration

	mu     sync.Mutex
	client mqtt.Client
}

// NewPahoTransport creates a transport from the broker configuration.
func NewPahoTransport(cfg *Config) *PahoTransport {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetKeepAlive(30 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PahoTransport{opts: opts, timeout: timeout}
}

// Bind registers the message and connection-lost callbacks. It must be
// called before the first Connect.
func (t *PahoTransport) Bind(onMessage func(topic string, payload []byte), onLost func(err error)) {
	t.opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		onMessage(msg.Topic(), msg.Payload())
	})
	t.opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		onLost(err)
	})
}

// Connect performs a single connect handshake.
func (t *PahoTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.client == nil {
		t.client = mqtt.NewClient(t.opts)
	}
	client := t.client
	t.mu.Unlock()

	if err := t.wait(ctx, client.Connect()); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Subscribe subscribes topic; messages go to the handler registered via Bind.
func (t *PahoTransport) Subscribe(ctx context.Context, topic string, qos byte) error {
	client, err := t.connected()
	if err != nil {
		return err
	}
	return t.wait(ctx, client.Subscribe(topic, qos, nil))
}

// Publish sends a non-retained message.
func (t *PahoTransport) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	client, err := t.connected()
	if err != nil {
		return err
	}
	return t.wait(ctx, client.Publish(topic, qos, false, payload))
}

// Disconnect closes the connection, allowing in-flight work 250ms to finish.
func (t *PahoTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(250)
	}
}

func (t *PahoTransport) connected() (mqtt.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil || !t.client.IsConnectionOpen() {
		return nil, errors.New("mqtt client not connected")
	}
	return t.client, nil
}

func (t *PahoTransport) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Transport = (*PahoTransport)(nil)
