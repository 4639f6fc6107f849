// Package reading provides the tag telemetry reading model, payload normalization,
// and reading persistence.
package reading

import (
	"errors"
	"math"
	"time"
)

// Repository errors.
var (
	ErrReadingNotFound = errors.New("reading not found")
)

// IDPrefix is prepended to generated reading IDs.
const IDPrefix = "rdg_"

// Vector is a 3-component acceleration sample (x, y, z).
type Vector [3]float64

// Magnitude returns the Euclidean norm of the vector.
func (v Vector) Magnitude() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Reading is a single normalized telemetry sample from a tag.
// Readings are immutable once saved.
type Reading struct {
	ID             string
	DeviceID       string
	DockID         *string
	Temperature    float64
	Acceleration   Vector
	BatteryPercent int
	AudioSegment   *string
	ObservedAt     time.Time

	// Ingestion metadata.
	Topic      string
	ReceivedAt time.Time
}

// HasAudio reports whether the reading carries an audio segment reference.
func (r *Reading) HasAudio() bool {
	return r.AudioSegment != nil && *r.AudioSegment != ""
}

// ListOptions contains options for listing readings.
type ListOptions struct {
	Limit int
}

// DefaultListLimit is used when ListOptions.Limit is not positive.
const DefaultListLimit = 50

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// ListResult contains the result of listing readings, newest first.
type ListResult struct {
	Items []*Reading
}
