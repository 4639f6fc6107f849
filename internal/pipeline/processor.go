package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tagwatch/tagwatch/internal/alert"
	"github.com/tagwatch/tagwatch/internal/broker"
	"github.com/tagwatch/tagwatch/internal/reading"
)

// ReadingStore persists readings.
type ReadingStore interface {
	Save(ctx context.Context, r *reading.Reading) (string, error)
}

// AlertStore persists alerts.
type AlertStore interface {
	Save(ctx context.Context, a *alert.Alert) (string, error)
}

// ProcessorConfig holds the processor's collaborators.
type ProcessorConfig struct {
	Readings   ReadingStore
	Alerts     AlertStore
	Dispatcher *Dispatcher
	Workers    int
	Metrics    *Metrics
	Tracer     trace.Tracer
	Logger     zerolog.Logger
}

// Processor runs every inbound message through normalize, persist, classify
// and dispatch. A failure at any step ends processing of that message only.
type Processor struct {
	readings   ReadingStore
	alerts     AlertStore
	dispatcher *Dispatcher
	workers    int
	metrics    *Metrics
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// Outcome describes what happened to one message.
type Outcome struct {
	Reading  *reading.Reading
	Alert    *alert.Alert
	Rejected reading.RejectReason
	Dispatch *DispatchResult
	Err      error
}

// NewProcessor creates a Processor.
func NewProcessor(cfg *ProcessorConfig) *Processor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	return &Processor{
		readings:   cfg.Readings,
		alerts:     cfg.Alerts,
		dispatcher: cfg.Dispatcher,
		workers:    workers,
		metrics:    cfg.Metrics,
		tracer:     tracer,
		logger:     cfg.Logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run consumes msgs until the channel is closed or ctx is cancelled. Messages
// already being processed are allowed to finish before Run returns.
func (p *Processor) Run(ctx context.Context, msgs <-chan broker.Message) error {
	p.logger.Info().Int("workers", p.workers).Msg("starting message processor")

	// In-flight messages finish even after shutdown starts.
	workCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(p.workers)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			p.logger.Info().Msg("message processor stopped")
			return ctx.Err()

		case msg, ok := <-msgs:
			if !ok {
				_ = g.Wait()
				p.logger.Info().Msg("message stream closed, processor stopped")
				return nil
			}
			g.Go(func() error {
				p.Handle(workCtx, msg)
				return nil
			})
		}
	}
}

// Handle processes a single message.
func (p *Processor) Handle(ctx context.Context, msg broker.Message) *Outcome {
	start := time.Now()
	defer func() { p.metrics.handled(time.Since(start)) }()
	p.metrics.messageReceived()

	ctx, span := p.tracer.Start(ctx, "pipeline.handle", trace.WithAttributes(
		attribute.String("messaging.destination", msg.Topic),
	))
	defer span.End()

	logger := p.logger.With().Str("topic", msg.Topic).Logger()
	out := &Outcome{}

	r, err := reading.Normalize(msg.Topic, msg.Payload, msg.ReceivedAt)
	if err != nil {
		var rejectErr *reading.RejectError
		if errors.As(err, &rejectErr) {
			out.Rejected = rejectErr.Reason
			p.metrics.messageRejected(string(rejectErr.Reason))
		}
		out.Err = err
		logger.Warn().Err(err).Int("payload_bytes", len(msg.Payload)).Msg("dropping message")
		span.SetStatus(codes.Error, "rejected")
		return out
	}
	out.Reading = r
	logger = logger.With().Str("device_id", r.DeviceID).Logger()
	span.SetAttributes(attribute.String("device.id", r.DeviceID))

	if _, err := p.readings.Save(ctx, r); err != nil {
		out.Err = err
		logger.Error().Err(err).Msg("failed to store reading")
		p.metrics.storageFailed("readings")
		span.RecordError(err)
		span.SetStatus(codes.Error, "store reading")
		return out
	}

	a, fired := alert.Evaluate(r)
	if fired {
		if _, err := p.alerts.Save(ctx, a); err != nil {
			out.Err = err
			logger.Error().Err(err).Str("alert_kind", string(a.Kind)).Msg("failed to store alert")
			p.metrics.storageFailed("alerts")
			span.RecordError(err)
			span.SetStatus(codes.Error, "store alert")
			return out
		}
		out.Alert = a
		p.metrics.alertRaised(string(a.Kind))
		logger.Info().Str("alert_id", a.ID).Str("alert_kind", string(a.Kind)).Msg("alert raised")
	}

	out.Dispatch = p.dispatcher.Dispatch(ctx, r, out.Alert)

	logger.Debug().
		Str("reading_id", r.ID).
		Dur("duration", time.Since(start)).
		Msg("message processed")

	return out
}
