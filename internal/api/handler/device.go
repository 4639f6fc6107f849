package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tagwatch/tagwatch/internal/alert"
	"github.com/tagwatch/tagwatch/internal/api/models"
	"github.com/tagwatch/tagwatch/internal/api/response"
	"github.com/tagwatch/tagwatch/internal/reading"
)

// History endpoints return DefaultListLimit items unless ?limit= asks for
// between 1 and MaxListLimit.
const DefaultListLimit = 50

// MaxListLimit caps the limit query parameter of history endpoints.
const MaxListLimit = 500

// ReadingLister lists stored readings.
type ReadingLister interface {
	ListByDevice(ctx context.Context, deviceID string, opts reading.ListOptions) (*reading.ListResult, error)
}

// AlertLister lists stored alerts.
type AlertLister interface {
	ListByDevice(ctx context.Context, deviceID string, opts alert.ListOptions) (*alert.ListResult, error)
}

// DeviceHandler serves per-tag history.
type DeviceHandler struct {
	readings ReadingLister
	alerts   AlertLister
	logger   zerolog.Logger
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(readings ReadingLister, alerts AlertLister, logger zerolog.Logger) *DeviceHandler {
	return &DeviceHandler{
		readings: readings,
		alerts:   alerts,
		logger:   logger.With().Str("handler", "device").Logger(),
	}
}

// ListReadings handles GET /v1/devices/{deviceId}/readings.
func (h *DeviceHandler) ListReadings(w http.ResponseWriter, r *http.Request) {
	deviceID, limit, ok := listParams(w, r)
	if !ok {
		return
	}

	result, err := h.readings.ListByDevice(r.Context(), deviceID, reading.ListOptions{Limit: limit})
	if err != nil {
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to list readings")
		response.InternalError(w, r, "failed to list readings")
		return
	}

	out := models.ReadingList{DeviceID: deviceID, Limit: limit, Items: make([]models.Reading, 0, len(result.Items))}
	for _, rd := range result.Items {
		out.Items = append(out.Items, models.ReadingFrom(rd))
	}
	response.JSON(w, r, http.StatusOK, out)
}

// ListAlerts handles GET /v1/devices/{deviceId}/alerts.
func (h *DeviceHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	deviceID, limit, ok := listParams(w, r)
	if !ok {
		return
	}

	result, err := h.alerts.ListByDevice(r.Context(), deviceID, alert.ListOptions{Limit: limit})
	if err != nil {
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to list alerts")
		response.InternalError(w, r, "failed to list alerts")
		return
	}

	out := models.AlertList{DeviceID: deviceID, Limit: limit, Items: make([]models.Alert, 0, len(result.Items))}
	for _, a := range result.Items {
		out.Items = append(out.Items, models.AlertFrom(a))
	}
	response.JSON(w, r, http.StatusOK, out)
}

// listParams extracts the device id and limit, writing a 400 on bad input.
func listParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	deviceID := strings.TrimSpace(chi.URLParam(r, "deviceId"))
	if deviceID == "" {
		response.BadRequest(w, r, "device id is required", nil)
		return "", 0, false
	}

	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxListLimit {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{{
				Field:   "limit",
				Message: "must be an integer between 1 and " + strconv.Itoa(MaxListLimit),
				Code:    "OUT_OF_RANGE",
			}})
			return "", 0, false
		}
		limit = n
	}
	return deviceID, limit, true
}
