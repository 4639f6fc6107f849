package alert

import (
	"fmt"

	"github.com/tagwatch/tagwatch/internal/reading"
)

// Rule thresholds.
const (
	HighTempCelsius       = 38.0
	LowBatteryPercent     = 20
	HighMovementMagnitude = 15.0
)

type rule struct {
	kind    Kind
	matches func(*reading.Reading) bool
}

// rules are ordered by severity; the first match wins.
var rules = []rule{
	{KindHighTemp, func(r *reading.Reading) bool { return r.Temperature > HighTempCelsius }},
	{KindLowBattery, func(r *reading.Reading) bool { return r.BatteryPercent < LowBatteryPercent }},
	{KindCryingDetected, func(r *reading.Reading) bool { return r.HasAudio() }},
	{KindHighMovement, func(r *reading.Reading) bool { return r.Acceleration.Magnitude() > HighMovementMagnitude }},
}

// Classify returns the alert kind for a reading, or false when nothing fired.
// It is pure and never returns more than one kind.
func Classify(r *reading.Reading) (Kind, bool) {
	if r == nil {
		return "", false
	}
	for _, rl := range rules {
		if rl.matches(r) {
			return rl.kind, true
		}
	}
	return "", false
}

// Notification is the rendered, human-readable form of an alert.
type Notification struct {
	Title string
	Body  string
}

// Render produces the notification text for kind. Kinds without a template
// get a generic message rather than an error.
func Render(kind Kind, r *reading.Reading) Notification {
	switch kind {
	case KindHighTemp:
		return Notification{
			Title: "High temperature",
			Body:  fmt.Sprintf("Tag %s reports a temperature of %.1f°C.", r.DeviceID, r.Temperature),
		}
	case KindLowBattery:
		return Notification{
			Title: "Low battery",
			Body:  fmt.Sprintf("Tag %s battery is at %d%%. Please charge it soon.", r.DeviceID, r.BatteryPercent),
		}
	case KindCryingDetected:
		return Notification{
			Title: "Crying detected",
			Body:  fmt.Sprintf("Tag %s picked up crying.", r.DeviceID),
		}
	case KindHighMovement:
		return Notification{
			Title: "Unusual movement",
			Body:  fmt.Sprintf("Tag %s detected strong movement (%.1f).", r.DeviceID, r.Acceleration.Magnitude()),
		}
	default:
		return Notification{
			Title: "Health alert",
			Body:  fmt.Sprintf("Tag %s raised an alert (%s).", r.DeviceID, kind),
		}
	}
}

// Evaluate classifies r and, when a rule fires, builds the unsaved Alert.
func Evaluate(r *reading.Reading) (*Alert, bool) {
	kind, ok := Classify(r)
	if !ok {
		return nil, false
	}
	n := Render(kind, r)
	return &Alert{
		ReadingID: r.ID,
		DeviceID:  r.DeviceID,
		Kind:      kind,
		Message:   n.Body,
	}, true
}
