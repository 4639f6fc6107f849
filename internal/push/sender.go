// Package push delivers alert notifications to recipient devices.
package push

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTokenInvalid means the provider permanently rejected the device token.
	// Callers should stop using the token.
	ErrTokenInvalid = errors.New("push token invalid")

	// ErrSendFailed covers every other delivery failure.
	ErrSendFailed = errors.New("push send failed")
)

// Notification is one push message addressed to a single device token.
type Notification struct {
	Token    string
	Platform string
	Title    string
	Body     string
	Data     map[string]string
}

// Sender delivers a notification and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, n Notification) (string, error)
}

// SendError carries provider details for a failed send. It unwraps to
// ErrTokenInvalid or ErrSendFailed.
type SendError struct {
	StatusCode int
	Code       string
	Message    string
	kind       error
}

func (e *SendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%v: %s (http %d): %s", e.kind, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%v: http %d: %s", e.kind, e.StatusCode, e.Message)
}

func (e *SendError) Unwrap() error {
	return e.kind
}
