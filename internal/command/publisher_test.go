package command_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagwatch/tagwatch/internal/command"
)

type fakeBroker struct {
	connected bool
	err       error
	topic     string
	payload   []byte
	calls     int
}

func (b *fakeBroker) Publish(_ context.Context, topic string, payload []byte) (bool, error) {
	b.calls++
	if b.err != nil {
		return false, b.err
	}
	if !b.connected {
		return false, nil
	}
	b.topic = topic
	b.payload = payload
	return true, nil
}

func TestPublisher_Publish(t *testing.T) {
	b := &fakeBroker{connected: true}
	p := command.NewPublisher(b, zerolog.Nop())

	res, err := p.Publish(context.Background(), "t1", map[string]any{"action": "beep", "timestamp": "ignored"})
	require.NoError(t, err)

	assert.Equal(t, "iot/tag/command/t1", res.Topic)
	assert.Equal(t, "iot/tag/command/t1", b.topic)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(b.payload, &sent))
	assert.Equal(t, "beep", sent["action"])

	ts, ok := sent["timestamp"].(float64)
	require.True(t, ok, "timestamp is numeric epoch seconds")
	assert.InDelta(t, float64(res.PublishedAt.Unix()), ts, 0)
}

func TestPublisher_DoesNotMutateInput(t *testing.T) {
	b := &fakeBroker{connected: true}
	p := command.NewPublisher(b, zerolog.Nop())

	cmd := map[string]any{"action": "locate"}
	_, err := p.Publish(context.Background(), "t1", cmd)
	require.NoError(t, err)

	assert.NotContains(t, cmd, "timestamp")
}

func TestPublisher_NotConnected(t *testing.T) {
	b := &fakeBroker{connected: false}
	p := command.NewPublisher(b, zerolog.Nop())

	res, err := p.Publish(context.Background(), "t1", map[string]any{"action": "beep"})
	assert.ErrorIs(t, err, command.ErrNotConnected)
	assert.Nil(t, res)
	assert.Equal(t, 1, b.calls, "no retry")
}

func TestPublisher_EmptyDeviceID(t *testing.T) {
	b := &fakeBroker{connected: true}
	p := command.NewPublisher(b, zerolog.Nop())

	_, err := p.Publish(context.Background(), "  ", map[string]any{"action": "beep"})
	assert.ErrorIs(t, err, command.ErrEmptyDeviceID)
	assert.Equal(t, 0, b.calls)
}

func TestPublisher_RejectsTopicCharacters(t *testing.T) {
	for _, id := range []string{"a/b", "+", "tag#1", "/t1", "t1\x00"} {
		t.Run(id, func(t *testing.T) {
			b := &fakeBroker{connected: true}
			p := command.NewPublisher(b, zerolog.Nop())

			res, err := p.Publish(context.Background(), id, map[string]any{"action": "beep"})
			assert.ErrorIs(t, err, command.ErrInvalidDeviceID)
			assert.Nil(t, res)
			assert.Equal(t, 0, b.calls)
		})
	}
}

func TestPublisher_TransportError(t *testing.T) {
	b := &fakeBroker{err: errors.New("write: broken pipe")}
	p := command.NewPublisher(b, zerolog.Nop())

	_, err := p.Publish(context.Background(), "t1", map[string]any{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, command.ErrNotConnected)
}

func TestPublisher_UnencodableCommand(t *testing.T) {
	b := &fakeBroker{connected: true}
	p := command.NewPublisher(b, zerolog.Nop())

	_, err := p.Publish(context.Background(), "t1", map[string]any{"bad": func() {}})
	require.Error(t, err)
	assert.Equal(t, 0, b.calls)
}
