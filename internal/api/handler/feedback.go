package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tagwatch/tagwatch/internal/api/models"
	"github.com/tagwatch/tagwatch/internal/api/response"
)

// MaxFeedbackLength caps the free-text feedback field, in bytes.
const MaxFeedbackLength = 2000

// FeedbackHandler accepts viewer feedback about a tag. Feedback is logged only.
type FeedbackHandler struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewFeedbackHandler creates a new FeedbackHandler.
func NewFeedbackHandler(logger zerolog.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		logger: logger.With().Str("handler", "feedback").Logger(),
		now:    time.Now,
	}
}

// Submit handles POST /v1/feedback.
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := response.DecodeObject(w, r)
	if err != nil {
		response.BadRequest(w, r, "feedback must be a JSON object", nil)
		return
	}

	deviceID, _ := body["device_id"].(string)
	text, _ := body["feedback"].(string)
	deviceID = strings.TrimSpace(deviceID)
	text = strings.TrimSpace(text)

	var errs []models.FieldError
	if deviceID == "" {
		errs = append(errs, models.FieldError{Field: "device_id", Message: "must be a non-empty string", Code: "REQUIRED"})
	}
	switch {
	case text == "":
		errs = append(errs, models.FieldError{Field: "feedback", Message: "must be a non-empty string", Code: "REQUIRED"})
	case len(text) > MaxFeedbackLength:
		errs = append(errs, models.FieldError{Field: "feedback", Message: "too long", Code: "TOO_LONG"})
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid feedback", errs)
		return
	}

	receivedAt := h.now()
	h.logger.Info().
		Str("device_id", deviceID).
		Int("length", len(text)).
		Str("feedback", text).
		Msg("feedback received")

	response.Accepted(w, r, "", models.FeedbackAccepted{
		Status:     "received",
		DeviceID:   deviceID,
		ReceivedAt: models.Timestamp(receivedAt),
	})
}
