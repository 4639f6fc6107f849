// Package alert classifies readings into health alerts and persists them.
package alert

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrAlertNotFound = errors.New("alert not found")
)

// IDPrefix is prepended to generated alert IDs.
const IDPrefix = "alr_"

// Kind is the classification of a notable reading.
type Kind string

const (
	KindHighTemp       Kind = "high_temp"
	KindLowBattery     Kind = "low_battery"
	KindCryingDetected Kind = "crying_detected"
	KindHighMovement   Kind = "high_movement"
)

// Alert is a classification of a single reading. Delivered flips to true once
// push dispatch has been attempted for every resolved recipient.
type Alert struct {
	ID             string
	ReadingID      string
	DeviceID       string
	Kind           Kind
	Message        string
	CreatedAt      time.Time
	Delivered      bool
	DeliveredAt    *time.Time
	RecipientCount int
}

// ListOptions contains options for listing alerts.
type ListOptions struct {
	Limit int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return 50
	}
	return o.Limit
}

// ListResult contains the result of listing alerts, newest first.
type ListResult struct {
	Items []*Alert
}
