package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagwatch/tagwatch/internal/alert"
	"github.com/tagwatch/tagwatch/internal/api/models"
	"github.com/tagwatch/tagwatch/internal/reading"
)

func TestReadingFrom(t *testing.T) {
	dock := "dock-3"
	observed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &reading.Reading{
		ID:             "rdg_1",
		DeviceID:       "tag-1",
		DockID:         &dock,
		Temperature:    36.6,
		Acceleration:   reading.Vector{0.1, 0.2, 9.8},
		BatteryPercent: 80,
		ObservedAt:     observed,
		ReceivedAt:     observed.Add(time.Second),
	}

	body, err := json.Marshal(models.ReadingFrom(r))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "rdg_1", decoded["id"])
	assert.Equal(t, "tag-1", decoded["deviceId"])
	assert.Equal(t, "dock-3", decoded["dockId"])
	assert.Equal(t, "2026-03-01T12:00:00Z", decoded["observedAt"])
	assert.Equal(t, []any{0.1, 0.2, 9.8}, decoded["acceleration"])
	assert.NotContains(t, decoded, "audioSegment")
}

func TestAlertFrom(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &alert.Alert{
		ID:        "alr_1",
		ReadingID: "rdg_1",
		DeviceID:  "tag-1",
		Kind:      alert.KindHighTemp,
		Message:   "Temperature too high",
		CreatedAt: created,
	}

	out := models.AlertFrom(a)
	assert.Equal(t, "high_temp", out.Kind)
	assert.False(t, out.Delivered)
	assert.Nil(t, out.DeliveredAt)

	delivered := created.Add(time.Minute)
	a.Delivered = true
	a.DeliveredAt = &delivered
	a.RecipientCount = 2

	out = models.AlertFrom(a)
	require.NotNil(t, out.DeliveredAt)
	assert.Equal(t, delivered, out.DeliveredAt.Time())
	assert.Equal(t, 2, out.RecipientCount)
}

func TestTimestamp_RoundTrip(t *testing.T) {
	in := models.Timestamp(time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600)))

	body, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `"2026-01-02T02:04:05Z"`, string(body))

	var out models.Timestamp
	require.NoError(t, json.Unmarshal(body, &out))
	assert.True(t, in.Time().Equal(out.Time()))

	assert.NoError(t, json.Unmarshal([]byte("null"), &out))
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &out))
}
