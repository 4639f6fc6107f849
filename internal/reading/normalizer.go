package reading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RejectReason names why an inbound payload was dropped.
type RejectReason string

const (
	ReasonMalformedPayload RejectReason = "malformed_payload"
	ReasonMissingDeviceID  RejectReason = "missing_device_id"
)

// RejectError is returned by Normalize when a payload cannot become a Reading.
type RejectError struct {
	Reason RejectReason
	Err    error
}

func (e *RejectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reading rejected (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("reading rejected (%s)", e.Reason)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

// Producer timestamps outside this window are ignored in favor of the ingestion time.
const (
	minPlausibleEpoch = 1_000_000_000 // 2001-09-09
	maxClockSkew      = 24 * time.Hour
)

// Normalize converts a raw inbound payload into a Reading.
//
// Only two conditions reject a payload: it is not a JSON object, or it has no
// device_id. Numeric fields that fail to parse become zero and the battery level
// is clamped to [0,100]; partial payloads from tags are common and a degraded
// reading is preferred over a dropped one.
func Normalize(topic string, payload []byte, receivedAt time.Time) (*Reading, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &RejectError{Reason: ReasonMalformedPayload}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, &RejectError{Reason: ReasonMalformedPayload, Err: err}
	}

	deviceID := stringField(fields["device_id"])
	if deviceID == "" {
		return nil, &RejectError{Reason: ReasonMissingDeviceID}
	}

	r := &Reading{
		DeviceID:       deviceID,
		Temperature:    numberField(fields["temperature"]),
		Acceleration:   vectorField(fields["acceleration"]),
		BatteryPercent: clampPercent(numberField(fields["battery"])),
		ObservedAt:     observedAt(fields["timestamp"], receivedAt),
		Topic:          topic,
		ReceivedAt:     receivedAt.UTC(),
	}

	if dock := stringField(fields["dock_id"]); dock != "" {
		r.DockID = &dock
	}
	if audio := opaqueField(fields["audio_segment"]); audio != "" {
		r.AudioSegment = &audio
	}

	return r, nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// stringField accepts a JSON string or number and returns it trimmed.
func stringField(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// numberField accepts a JSON number or numeric string. Anything else is 0.
func numberField(raw json.RawMessage) float64 {
	if isNull(raw) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return finite(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return finite(f)
		}
	}
	return 0
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func vectorField(raw json.RawMessage) Vector {
	var parts []json.RawMessage
	if isNull(raw) || json.Unmarshal(raw, &parts) != nil || len(parts) != 3 {
		return Vector{}
	}
	return Vector{numberField(parts[0]), numberField(parts[1]), numberField(parts[2])}
}

// opaqueField keeps strings as-is and any other non-null value as its raw JSON text.
func opaqueField(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// clampPercent clamps before converting; out-of-range float to int conversion
// is implementation-defined.
func clampPercent(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

func observedAt(raw json.RawMessage, receivedAt time.Time) time.Time {
	ts := numberField(raw)
	if ts < minPlausibleEpoch || ts > float64(receivedAt.Add(maxClockSkew).Unix()) {
		return receivedAt.UTC()
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
