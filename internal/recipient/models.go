// Package recipient provides read access to push notification registrations
// that bind users to tags, and invalidation of dead push tokens.
package recipient

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrRecipientNotFound = errors.New("recipient not found")
)

// Platform represents a push notification platform.
type Platform string

const (
	PlatformFCM  Platform = "FCM"
	PlatformAPNS Platform = "APNS"
)

// Recipient binds a user to a tag. A nil PushToken means the user is not to be
// notified, typically because the token was reported dead.
type Recipient struct {
	ID        string
	UserID    string
	DeviceID  string
	Platform  Platform
	PushToken *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Notifiable reports whether the recipient should receive push notifications.
func (r *Recipient) Notifiable() bool {
	return r.Active && r.PushToken != nil && *r.PushToken != ""
}

// TokenLast4 returns the last 4 characters of the push token for logging.
func (r *Recipient) TokenLast4() string {
	if r.PushToken == nil {
		return ""
	}
	token := *r.PushToken
	if len(token) < 4 {
		return token
	}
	return token[len(token)-4:]
}
