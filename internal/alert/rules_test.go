package alert_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagwatch/tagwatch/internal/alert"
	"github.com/tagwatch/tagwatch/internal/reading"
)

func strPtr(s string) *string { return &s }

func TestClassify_PriorityOrder(t *testing.T) {
	tests := []struct {
		name    string
		reading reading.Reading
		want    alert.Kind
		fired   bool
	}{
		{
			name:    "high temp wins over everything",
			reading: reading.Reading{Temperature: 39.2, BatteryPercent: 5, AudioSegment: strPtr("seg"), Acceleration: reading.Vector{20, 20, 20}},
			want:    alert.KindHighTemp,
			fired:   true,
		},
		{
			name:    "low battery wins over crying and movement",
			reading: reading.Reading{Temperature: 36.5, BatteryPercent: 15, AudioSegment: strPtr("seg"), Acceleration: reading.Vector{20, 20, 20}},
			want:    alert.KindLowBattery,
			fired:   true,
		},
		{
			name:    "crying wins over movement",
			reading: reading.Reading{Temperature: 36.5, BatteryPercent: 90, AudioSegment: strPtr("seg"), Acceleration: reading.Vector{20, 20, 20}},
			want:    alert.KindCryingDetected,
			fired:   true,
		},
		{
			name:    "high movement",
			reading: reading.Reading{Temperature: 36.5, BatteryPercent: 90, Acceleration: reading.Vector{10, 10, 10}},
			want:    alert.KindHighMovement,
			fired:   true,
		},
		{
			name:    "temperature exactly at threshold does not fire",
			reading: reading.Reading{Temperature: 38.0, BatteryPercent: 90},
		},
		{
			name:    "battery exactly at threshold does not fire",
			reading: reading.Reading{Temperature: 36.5, BatteryPercent: 20},
		},
		{
			name:    "movement exactly at threshold does not fire",
			reading: reading.Reading{Temperature: 36.5, BatteryPercent: 90, Acceleration: reading.Vector{9, 12, 0}},
		},
		{
			name:    "empty audio segment is not crying",
			reading: reading.Reading{Temperature: 36.5, BatteryPercent: 90, AudioSegment: strPtr("")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.reading
			r.DeviceID = "t1"
			got, fired := alert.Classify(&r)
			assert.Equal(t, tt.fired, fired)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_HighTempRegardlessOfOtherFields(t *testing.T) {
	for _, temp := range []float64{38.01, 39.2, 41, 120} {
		for _, battery := range []int{0, 19, 20, 100} {
			for _, audio := range []*string{nil, strPtr("seg")} {
				for _, accel := range []reading.Vector{{}, {10, 10, 10}, {100, 0, 0}} {
					r := &reading.Reading{DeviceID: "t1", Temperature: temp, BatteryPercent: battery, AudioSegment: audio, Acceleration: accel}
					kind, fired := alert.Classify(r)
					require.True(t, fired)
					require.Equal(t, alert.KindHighTemp, kind, "temp=%v battery=%d", temp, battery)
				}
			}
		}
	}
}

func TestClassify_LowBatteryWhenTemperatureNormal(t *testing.T) {
	for _, temp := range []float64{-10, 0, 36.5, 38.0} {
		for battery := 0; battery < alert.LowBatteryPercent; battery++ {
			r := &reading.Reading{DeviceID: "t1", Temperature: temp, BatteryPercent: battery, AudioSegment: strPtr("seg"), Acceleration: reading.Vector{50, 0, 0}}
			kind, fired := alert.Classify(r)
			require.True(t, fired)
			require.Equal(t, alert.KindLowBattery, kind)
		}
	}
}

func TestClassify_Nil(t *testing.T) {
	kind, fired := alert.Classify(nil)
	assert.False(t, fired)
	assert.Empty(t, kind)
}

func TestRender_EmbedsDeviceAndMetric(t *testing.T) {
	r := &reading.Reading{DeviceID: "t1", Temperature: 39.24, BatteryPercent: 15, Acceleration: reading.Vector{10, 10, 10}}

	tests := []struct {
		kind     alert.Kind
		contains string
	}{
		{alert.KindHighTemp, "39.2°C"},
		{alert.KindLowBattery, "15%"},
		{alert.KindCryingDetected, "crying"},
		{alert.KindHighMovement, "17.3"},
		{alert.Kind("overheated_dock"), "overheated_dock"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			n := alert.Render(tt.kind, r)
			assert.NotEmpty(t, n.Title)
			assert.Contains(t, n.Body, "t1")
			assert.Contains(t, n.Body, tt.contains)
		})
	}
}

func TestEvaluate(t *testing.T) {
	r := &reading.Reading{ID: "rdg_1", DeviceID: "t1", Temperature: 36.5, BatteryPercent: 15}

	a, fired := alert.Evaluate(r)
	require.True(t, fired)
	assert.Equal(t, alert.KindLowBattery, a.Kind)
	assert.Equal(t, "t1", a.DeviceID)
	assert.Equal(t, "rdg_1", a.ReadingID)
	assert.False(t, a.Delivered)
	assert.Equal(t, alert.Render(alert.KindLowBattery, r).Body, a.Message)

	a, fired = alert.Evaluate(&reading.Reading{DeviceID: "t1", Temperature: 36.5, BatteryPercent: 90})
	assert.False(t, fired)
	assert.Nil(t, a)
}

func ExampleClassify() {
	r := &reading.Reading{DeviceID: "t1", Temperature: 36.5, BatteryPercent: 90, Acceleration: reading.Vector{10, 10, 10}}
	kind, _ := alert.Classify(r)
	fmt.Println(kind)
	// Output: high_movement
}

func TestClassify_OverflowingBatteryIsNotLow(t *testing.T) {
	r, err := reading.Normalize("iot/tag/data", []byte(`{"device_id":"t1","temperature":36.5,"battery":1e20}`), time.Now())
	require.NoError(t, err)

	kind, fired := alert.Classify(r)
	assert.False(t, fired)
	assert.Empty(t, kind)
}
