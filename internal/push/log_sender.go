package push

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogSender logs notifications instead of delivering them. Used when no push
// provider is configured.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("sender", "log").Logger()}
}

// Send logs n and always succeeds.
func (s *LogSender) Send(_ context.Context, n Notification) (string, error) {
	id := "log-" + uuid.NewString()
	s.logger.Info().
		Str("message_id", id).
		Str("platform", n.Platform).
		Str("title", n.Title).
		Str("body", n.Body).
		Interface("data", n.Data).
		Msg("push notification (not delivered)")
	return id, nil
}

var _ Sender = (*LogSender)(nil)
