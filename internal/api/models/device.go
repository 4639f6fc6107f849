package models

import (
	"github.com/tagwatch/tagwatch/internal/alert"
	"github.com/tagwatch/tagwatch/internal/reading"
)

// Reading is a stored telemetry sample.
type Reading struct {
	ID             string     `json:"id"`
	DeviceID       string     `json:"deviceId"`
	DockID         *string    `json:"dockId,omitempty"`
	Temperature    float64    `json:"temperature"`
	Acceleration   [3]float64 `json:"acceleration"`
	BatteryPercent int        `json:"batteryPercent"`
	AudioSegment   *string    `json:"audioSegment,omitempty"`
	ObservedAt     Timestamp  `json:"observedAt"`
	ReceivedAt     Timestamp  `json:"receivedAt"`
}

// ReadingList is a page of readings, newest first.
type ReadingList struct {
	DeviceID string    `json:"deviceId"`
	Limit    int       `json:"limit"`
	Items    []Reading `json:"items"`
}

// Alert is a stored alert.
type Alert struct {
	ID             string     `json:"id"`
	ReadingID      string     `json:"readingId"`
	DeviceID       string     `json:"deviceId"`
	Kind           string     `json:"kind"`
	Message        string     `json:"message"`
	CreatedAt      Timestamp  `json:"createdAt"`
	Delivered      bool       `json:"delivered"`
	DeliveredAt    *Timestamp `json:"deliveredAt,omitempty"`
	RecipientCount int        `json:"recipientCount"`
}

// AlertList is a page of alerts, newest first.
type AlertList struct {
	DeviceID string  `json:"deviceId"`
	Limit    int     `json:"limit"`
	Items    []Alert `json:"items"`
}

// ReadingFrom converts a domain reading.
func ReadingFrom(r *reading.Reading) Reading {
	return Reading{
		ID:             r.ID,
		DeviceID:       r.DeviceID,
		DockID:         r.DockID,
		Temperature:    r.Temperature,
		Acceleration:   r.Acceleration,
		BatteryPercent: r.BatteryPercent,
		AudioSegment:   r.AudioSegment,
		ObservedAt:     Timestamp(r.ObservedAt),
		ReceivedAt:     Timestamp(r.ReceivedAt),
	}
}

// AlertFrom converts a domain alert.
func AlertFrom(a *alert.Alert) Alert {
	return Alert{
		ID:             a.ID,
		ReadingID:      a.ReadingID,
		DeviceID:       a.DeviceID,
		Kind:           string(a.Kind),
		Message:        a.Message,
		CreatedAt:      Timestamp(a.CreatedAt),
		Delivered:      a.Delivered,
		DeliveredAt:    NewTimestamp(a.DeliveredAt),
		RecipientCount: a.RecipientCount,
	}
}
