package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Message is a raw inbound MQTT message.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// connectionLost is posted by the transport callback into the run loop.
type connectionLost struct {
	err error
}

// Manager owns the broker connection lifecycle.
//
// All transitions happen on the goroutine running Run. Connected, State and
// Attempts may be called from any goroutine.
type Manager struct {
	cfg       *Config
	transport Transport
	logger    zerolog.Logger
	policy    backoff.BackOff

	mu       sync.RWMutex
	state    State
	attempts int
	subs     []string

	events   chan connectionLost
	messages chan Message
	done     chan struct{}
	closeMu  sync.RWMutex
	closed   bool
	runOnce  sync.Once
	now      func() time.Time
	retry    *time.Timer
	retryCh  <-chan time.Time
	stopOnce sync.Once
}

// NewManager creates a connection manager over the given transport.
func NewManager(cfg *Config, transport Transport) *Manager {
	buffer := cfg.MessageBuffer
	if buffer <= 0 {
		buffer = 256
	}

	m := &Manager{
		cfg:       cfg,
		transport: transport,
		logger:    cfg.Logger.With().Str("component", "broker").Str("broker", cfg.BrokerURL).Logger(),
		policy: backoff.WithMaxRetries(
			backoff.NewConstantBackOff(cfg.ReconnectDelay),
			uint64(max(cfg.MaxReconnectAttempts, 0)), //nolint:gosec // clamped to non-negative
		),
		state:    StateDisconnected,
		events:   make(chan connectionLost, 1),
		messages: make(chan Message, buffer),
		done:     make(chan struct{}),
		now:      time.Now,
	}

	transport.Bind(m.deliver, m.lost)
	return m
}

// Messages returns the inbound message stream. It is closed when Run returns.
func (m *Manager) Messages() <-chan Message {
	return m.messages
}

// Connected reports whether the broker connection is currently usable.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Attempts returns the number of reconnect attempts since the last
// successful connect.
func (m *Manager) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts
}

// Publish sends payload to topic. It returns false without error when the
// broker is not connected.
func (m *Manager) Publish(ctx context.Context, topic string, payload []byte) (bool, error) {
	if !m.Connected() {
		return false, nil
	}
	if err := m.transport.Publish(ctx, topic, m.cfg.QoS, payload); err != nil {
		return false, fmt.Errorf("publish %s: %w", topic, err)
	}
	return true, nil
}

// Subscribe adds a subscription that is restored after every reconnect.
// It returns false without error when the broker is not connected.
func (m *Manager) Subscribe(ctx context.Context, topic string) (bool, error) {
	if !m.Connected() {
		return false, nil
	}
	if err := m.transport.Subscribe(ctx, topic, m.cfg.QoS); err != nil {
		return false, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	m.mu.Lock()
	m.subs = append(m.subs, topic)
	m.mu.Unlock()
	return true, nil
}

// Run connects to the broker and drives the lifecycle until ctx is cancelled.
// Reaching StateTerminated does not return; Run keeps blocking so the caller's
// shutdown sequence stays the same either way.
func (m *Manager) Run(ctx context.Context) error {
	started := false
	m.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("broker manager already running")
	}
	defer m.shutdown()

	m.connect(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-m.events:
			m.handleLost(ev)

		case <-m.retryCh:
			m.retryCh = nil
			m.connect(ctx)
		}
	}
}

func (m *Manager) connect(ctx context.Context) {
	m.setState(StateConnecting)

	if err := m.transport.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn().Err(err).Int("attempt", m.Attempts()).Msg("broker connect failed")
		m.setState(StateError)
		m.scheduleReconnect()
		return
	}

	// Without the ingest subscription the connection is useless, so it counts
	// as a failed connect.
	if err := m.transport.Subscribe(ctx, m.cfg.IngestTopic, m.cfg.QoS); err != nil {
		m.transport.Disconnect()
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn().Err(err).Str("topic", m.cfg.IngestTopic).Msg("ingest subscription failed")
		m.setState(StateError)
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	m.attempts = 0
	extra := append([]string(nil), m.subs...)
	m.mu.Unlock()
	m.policy.Reset()

	m.logger.Info().Str("topic", m.cfg.IngestTopic).Msg("connected to broker")

	for _, topic := range extra {
		if err := m.transport.Subscribe(ctx, topic, m.cfg.QoS); err != nil {
			m.logger.Error().Err(err).Str("topic", topic).Msg("failed to subscribe")
			continue
		}
		m.logger.Info().Str("topic", topic).Msg("subscribed")
	}

	m.setState(StateConnected)
}

func (m *Manager) handleLost(ev connectionLost) {
	if m.State() != StateConnected {
		return
	}
	m.logger.Warn().Err(ev.err).Msg("broker connection lost")
	m.setState(StateOffline)
	m.scheduleReconnect()
}

// scheduleReconnect arms exactly one retry timer, or terminates once the
// policy is exhausted.
func (m *Manager) scheduleReconnect() {
	delay := m.policy.NextBackOff()
	if delay == backoff.Stop {
		m.logger.Error().
			Int("max_attempts", m.cfg.MaxReconnectAttempts).
			Msg("max reconnect attempts reached, giving up")
		m.setState(StateTerminated)
		return
	}

	m.mu.Lock()
	m.attempts++
	attempt := m.attempts
	m.mu.Unlock()

	m.setState(StateReconnecting)
	m.logger.Info().
		Int("attempt", attempt).
		Int("max_attempts", m.cfg.MaxReconnectAttempts).
		Dur("delay", delay).
		Msg("scheduling reconnect")

	if m.retry == nil {
		m.retry = time.NewTimer(delay)
	} else {
		m.retry.Reset(delay)
	}
	m.retryCh = m.retry.C
}

func (m *Manager) setState(to State) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()

	if from == to {
		return
	}
	m.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("broker state changed")
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(from, to)
	}
}

// deliver is the transport's message callback.
func (m *Manager) deliver(topic string, payload []byte) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return
	}

	msg := Message{Topic: topic, Payload: payload, ReceivedAt: m.now().UTC()}
	select {
	case m.messages <- msg:
	case <-m.done:
	}
}

// lost is the transport's connection-lost callback.
func (m *Manager) lost(err error) {
	select {
	case m.events <- connectionLost{err: err}:
	case <-m.done:
	}
}

func (m *Manager) shutdown() {
	m.stopOnce.Do(func() {
		if m.retry != nil {
			m.retry.Stop()
		}
		if m.State() == StateConnected {
			m.transport.Disconnect()
		}
		m.setState(StateDisconnected)

		close(m.done)
		m.closeMu.Lock()
		m.closed = true
		close(m.messages)
		m.closeMu.Unlock()

		m.logger.Info().Msg("broker manager stopped")
	})
}
