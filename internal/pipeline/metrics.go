package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tagwatch/tagwatch/internal/pipeline"

// Metrics holds the pipeline's OpenTelemetry instruments. A nil *Metrics
// records nothing.
type Metrics struct {
	messages       metric.Int64Counter
	rejected       metric.Int64Counter
	storageErrors  metric.Int64Counter
	alerts         metric.Int64Counter
	broadcasts     metric.Int64Counter
	pushes         metric.Int64Counter
	invalidated    metric.Int64Counter
	brokerStates   metric.Int64Counter
	handleDuration metric.Float64Histogram
}

// NewMetrics creates the pipeline instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.messages, "tagwatch.messages.received", "Inbound broker messages"},
		{&m.rejected, "tagwatch.messages.rejected", "Messages dropped by validation, by reason"},
		{&m.storageErrors, "tagwatch.storage.errors", "Failed storage operations, by store"},
		{&m.alerts, "tagwatch.alerts.raised", "Alerts raised, by kind"},
		{&m.broadcasts, "tagwatch.broadcasts", "Live broadcasts, by outcome"},
		{&m.pushes, "tagwatch.pushes", "Push sends, by outcome"},
		{&m.invalidated, "tagwatch.tokens.invalidated", "Push tokens nulled after provider rejection"},
		{&m.brokerStates, "tagwatch.broker.transitions", "Broker connection state transitions, by target state"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	duration, err := meter.Float64Histogram(
		"tagwatch.message.duration",
		metric.WithDescription("Time to process one inbound message"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	m.handleDuration = duration

	return m, nil
}

// Metrics are recorded with a background context so cancellation of the
// message context never drops a data point.

func (m *Metrics) messageReceived() {
	if m == nil {
		return
	}
	m.messages.Add(context.Background(), 1)
}

func (m *Metrics) messageRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) storageFailed(store string) {
	if m == nil {
		return
	}
	m.storageErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("store", store)))
}

func (m *Metrics) alertRaised(kind string) {
	if m == nil {
		return
	}
	m.alerts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) broadcast(ok bool) {
	if m == nil {
		return
	}
	m.broadcasts.Add(context.Background(), 1, metric.WithAttributes(outcome(ok)))
}

func (m *Metrics) pushed(ok bool) {
	if m == nil {
		return
	}
	m.pushes.Add(context.Background(), 1, metric.WithAttributes(outcome(ok)))
}

func (m *Metrics) tokenInvalidated() {
	if m == nil {
		return
	}
	m.invalidated.Add(context.Background(), 1)
}

func (m *Metrics) handled(d time.Duration) {
	if m == nil {
		return
	}
	m.handleDuration.Record(context.Background(), d.Seconds())
}

// BrokerTransition records a connection state change. It matches the
// broker's OnStateChange hook once the states are converted to strings.
func (m *Metrics) BrokerTransition(from, to string) {
	if m == nil {
		return
	}
	m.brokerStates.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func outcome(ok bool) attribute.KeyValue {
	if ok {
		return attribute.String("outcome", "ok")
	}
	return attribute.String("outcome", "error")
}
