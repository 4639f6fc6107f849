package live_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagwatch/tagwatch/internal/live"
)

func newHubServer(t *testing.T) (*live.Hub, *httptest.Server) {
	t.Helper()
	cfg := live.DefaultConfig()
	cfg.Logger = zerolog.Nop()
	hub := live.NewHub(cfg)
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) live.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env live.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHub_BroadcastToAllViewers(t *testing.T) {
	hub, server := newHubServer(t)

	a := dial(t, server, "")
	b := dial(t, server, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	payload := map[string]any{"device_id": "t1", "temperature": 36.6, "alert_kind": nil}
	require.NoError(t, hub.Broadcast(context.Background(), "t1", payload))

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		assert.Equal(t, live.EventNewData, env.Event)
		assert.JSONEq(t, `{"device_id":"t1","temperature":36.6,"alert_kind":null}`, string(env.Data))
	}
}

func TestHub_DeviceEventOnlyForFollowers(t *testing.T) {
	hub, server := newHubServer(t)

	follower := dial(t, server, "?device_id=t1")
	other := dial(t, server, "?device_id=t2")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Broadcast(context.Background(), "t1", map[string]string{"device_id": "t1"}))

	assert.Equal(t, live.EventNewData, readEnvelope(t, follower).Event)
	assert.Equal(t, "device:t1", readEnvelope(t, follower).Event)

	assert.Equal(t, live.EventNewData, readEnvelope(t, other).Event)
	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "viewer of another device gets no device event")
}

func TestHub_BroadcastWithoutViewers(t *testing.T) {
	hub, _ := newHubServer(t)
	assert.NoError(t, hub.Broadcast(context.Background(), "t1", map[string]string{"device_id": "t1"}))
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_BroadcastUnencodable(t *testing.T) {
	hub, _ := newHubServer(t)
	err := hub.Broadcast(context.Background(), "t1", map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestHub_ViewerDisconnect(t *testing.T) {
	hub, server := newHubServer(t)

	conn := dial(t, server, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_Close(t *testing.T) {
	hub, server := newHubServer(t)

	conn := dial(t, server, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestDeviceEvent(t *testing.T) {
	assert.Equal(t, "device:tag-42", live.DeviceEvent("tag-42"))
}
