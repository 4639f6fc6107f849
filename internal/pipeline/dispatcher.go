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
	"github.com/tagwatch/tagwatch/internal/push"
	"github.com/tagwatch/tagwatch/internal/reading"
	"github.com/tagwatch/tagwatch/internal/recipient"
)

// Broadcaster delivers an update to live viewers. Delivery is fire-and-forget;
// an error only means the update could not be encoded or queued.
type Broadcaster interface {
	Broadcast(ctx context.Context, deviceID string, data any) error
}

// RecipientStore is the subset of recipient.Repository the dispatcher needs.
type RecipientStore interface {
	ListNotifiable(ctx context.Context, deviceID string) ([]*recipient.Recipient, error)
	InvalidateToken(ctx context.Context, id string) error
}

// DeliveryStore records alert delivery.
type DeliveryStore interface {
	MarkDelivered(ctx context.Context, id string, recipientCount int, at time.Time) error
}

// Update is the payload broadcast to live viewers for every reading.
type Update struct {
	DeviceID       string     `json:"device_id"`
	DockID         *string    `json:"dock_id"`
	Temperature    float64    `json:"temperature"`
	Acceleration   [3]float64 `json:"acceleration"`
	BatteryPercent int        `json:"battery_percent"`
	ObservedAt     time.Time  `json:"observed_at"`
	AlertKind      *string    `json:"alert_kind"`
}

// NewUpdate builds the live update for a reading and its optional alert.
func NewUpdate(r *reading.Reading, a *alert.Alert) Update {
	u := Update{
		DeviceID:       r.DeviceID,
		DockID:         r.DockID,
		Temperature:    r.Temperature,
		Acceleration:   r.Acceleration,
		BatteryPercent: r.BatteryPercent,
		ObservedAt:     r.ObservedAt,
	}
	if a != nil {
		kind := string(a.Kind)
		u.AlertKind = &kind
	}
	return u
}

// PushOutcome is the result of notifying one recipient.
type PushOutcome struct {
	RecipientID string
	MessageID   string
	Err         error
	Invalidated bool
}

// DispatchResult summarizes one dispatch.
type DispatchResult struct {
	Broadcast   bool
	Recipients  int
	Sent        int
	Failed      int
	Invalidated int
	Delivered   bool
	Outcomes    []PushOutcome
}

// DispatcherConfig holds the dispatcher's collaborators.
type DispatcherConfig struct {
	Broadcaster     Broadcaster
	Recipients      RecipientStore
	Alerts          DeliveryStore
	Sender          push.Sender
	PushConcurrency int
	PushTimeout     time.Duration
	Metrics         *Metrics
	Tracer          trace.Tracer
	Logger          zerolog.Logger
}

// Dispatcher fans a processed reading out to live viewers and, when an alert
// fired, to every notifiable recipient.
type Dispatcher struct {
	broadcaster     Broadcaster
	recipients      RecipientStore
	alerts          DeliveryStore
	sender          push.Sender
	pushConcurrency int
	pushTimeout     time.Duration
	metrics         *Metrics
	tracer          trace.Tracer
	logger          zerolog.Logger
	now             func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg *DispatcherConfig) *Dispatcher {
	defaults := DefaultConfig()
	concurrency := cfg.PushConcurrency
	if concurrency <= 0 {
		concurrency = defaults.PushConcurrency
	}
	timeout := cfg.PushTimeout
	if timeout <= 0 {
		timeout = defaults.PushTimeout
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	return &Dispatcher{
		broadcaster:     cfg.Broadcaster,
		recipients:      cfg.Recipients,
		alerts:          cfg.Alerts,
		sender:          cfg.Sender,
		pushConcurrency: concurrency,
		pushTimeout:     timeout,
		metrics:         cfg.Metrics,
		tracer:          tracer,
		logger:          cfg.Logger.With().Str("component", "dispatcher").Logger(),
		now:             time.Now,
	}
}

// Dispatch broadcasts the reading and, if a is non-nil, notifies recipients
// and marks the alert delivered once every send has resolved. Failures are
// logged and reflected in the result; none are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, r *reading.Reading, a *alert.Alert) *DispatchResult {
	ctx, span := d.tracer.Start(ctx, "pipeline.dispatch", trace.WithAttributes(
		attribute.String("device.id", r.DeviceID),
	))
	defer span.End()

	result := &DispatchResult{}
	logger := d.logger.With().Str("device_id", r.DeviceID).Str("reading_id", r.ID).Logger()

	if err := d.broadcaster.Broadcast(ctx, r.DeviceID, NewUpdate(r, a)); err != nil {
		logger.Warn().Err(err).Msg("live broadcast failed")
	} else {
		result.Broadcast = true
	}
	d.metrics.broadcast(result.Broadcast)

	if a == nil {
		return result
	}

	logger = logger.With().Str("alert_id", a.ID).Str("alert_kind", string(a.Kind)).Logger()
	span.SetAttributes(attribute.String("alert.kind", string(a.Kind)))

	recipients, err := d.recipients.ListNotifiable(ctx, r.DeviceID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve recipients")
		d.metrics.storageFailed("recipients")
		span.SetStatus(codes.Error, "recipient lookup failed")
		return result
	}
	result.Recipients = len(recipients)

	if len(recipients) > 0 {
		result.Outcomes = d.notifyAll(ctx, logger, recipients, r, a)
		for _, o := range result.Outcomes {
			if o.Err == nil {
				result.Sent++
			} else {
				result.Failed++
			}
			if o.Invalidated {
				result.Invalidated++
			}
		}
	}

	if err := d.alerts.MarkDelivered(ctx, a.ID, len(recipients), d.now().UTC()); err != nil {
		logger.Error().Err(err).Msg("failed to mark alert delivered")
		d.metrics.storageFailed("alerts")
	} else {
		result.Delivered = true
	}

	logger.Info().
		Int("recipients", result.Recipients).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Int("invalidated", result.Invalidated).
		Msg("alert dispatched")

	return result
}

// notifyAll sends one push per recipient concurrently and waits for all of
// them. A failed send never cancels the others.
func (d *Dispatcher) notifyAll(
	ctx context.Context,
	logger zerolog.Logger,
	recipients []*recipient.Recipient,
	r *reading.Reading,
	a *alert.Alert,
) []PushOutcome {
	note := alert.Render(a.Kind, r)
	data := map[string]string{
		"device_id":  r.DeviceID,
		"alert_kind": string(a.Kind),
		"alert_id":   a.ID,
		"reading_id": r.ID,
	}

	outcomes := make([]PushOutcome, len(recipients))

	var g errgroup.Group
	g.SetLimit(d.pushConcurrency)
	for i, rcp := range recipients {
		g.Go(func() error {
			outcomes[i] = d.notify(ctx, logger, rcp, push.Notification{
				Token:    *rcp.PushToken,
				Platform: string(rcp.Platform),
				Title:    note.Title,
				Body:     note.Body,
				Data:     data,
			})
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (d *Dispatcher) notify(ctx context.Context, logger zerolog.Logger, rcp *recipient.Recipient, n push.Notification) PushOutcome {
	out := PushOutcome{RecipientID: rcp.ID}
	logger = logger.With().Str("recipient_id", rcp.ID).Str("token_last4", rcp.TokenLast4()).Logger()

	sendCtx, cancel := context.WithTimeout(ctx, d.pushTimeout)
	defer cancel()

	out.MessageID, out.Err = d.sender.Send(sendCtx, n)
	d.metrics.pushed(out.Err == nil)
	if out.Err == nil {
		logger.Debug().Str("message_id", out.MessageID).Msg("push sent")
		return out
	}

	if !errors.Is(out.Err, push.ErrTokenInvalid) {
		logger.Warn().Err(out.Err).Msg("push failed")
		return out
	}

	if err := d.recipients.InvalidateToken(ctx, rcp.ID); err != nil {
		logger.Error().Err(err).Msg("failed to invalidate push token")
		d.metrics.storageFailed("recipients")
		return out
	}
	out.Invalidated = true
	d.metrics.tokenInvalidated()
	logger.Info().Msg("push token invalidated")
	return out
}
