package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tagwatch/tagwatch/internal/api/middleware"
	"github.com/tagwatch/tagwatch/internal/api/models"
	"github.com/tagwatch/tagwatch/internal/api/response"
	"github.com/tagwatch/tagwatch/internal/command"
)

// CommandPublisher sends commands to tags.
type CommandPublisher interface {
	Publish(ctx context.Context, deviceID string, cmd map[string]any) (*command.Result, error)
}

// CommandHandler publishes commands to tags.
type CommandHandler struct {
	publisher CommandPublisher
	broker    BrokerStatus
	logger    zerolog.Logger
}

// NewCommandHandler creates a new CommandHandler.
func NewCommandHandler(publisher CommandPublisher, broker BrokerStatus, logger zerolog.Logger) *CommandHandler {
	return &CommandHandler{
		publisher: publisher,
		broker:    broker,
		logger:    logger.With().Str("handler", "command").Logger(),
	}
}

// Publish handles POST /v1/devices/{deviceId}/commands. The body is any JSON
// object and is forwarded as-is, plus a timestamp.
func (h *CommandHandler) Publish(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")

	cmd, err := response.DecodeObject(w, r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.BadRequest(w, r, "command body too large", nil)
			return
		}
		response.BadRequest(w, r, "command must be a JSON object", []models.FieldError{{
			Field:   "body",
			Message: err.Error(),
			Code:    "INVALID_JSON",
		}})
		return
	}

	result, err := h.publisher.Publish(r.Context(), deviceID, cmd)
	switch {
	case errors.Is(err, command.ErrEmptyDeviceID):
		response.BadRequest(w, r, "device id is required", nil)
		return
	case errors.Is(err, command.ErrInvalidDeviceID):
		response.BadRequest(w, r, "device id must not contain '/', '+' or '#'", nil)
		return
	case errors.Is(err, command.ErrNotConnected):
		response.BrokerOffline(w, r, h.broker.State().String())
		return
	case err != nil:
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("command publish failed")
		response.ServiceUnavailable(w, r, "command could not be published")
		return
	}

	h.logger.Info().
		Str("device_id", deviceID).
		Str("operator", middleware.GetOperator(r.Context())).
		Msg("command accepted")

	response.Accepted(w, r, "", models.CommandAccepted{
		DeviceID:    deviceID,
		Topic:       result.Topic,
		Payload:     result.Payload,
		PublishedAt: models.Timestamp(result.PublishedAt),
	})
}
