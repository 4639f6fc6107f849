package push_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tagwatch/tagwatch/internal/provider/resilience"
	"github.com/tagwatch/tagwatch/internal/push"
)

func newSender(t *testing.T, handler http.HandlerFunc) *push.FCMSender {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	clientCfg := resilience.DefaultClientConfig("fcm-test")
	clientCfg.InitialInterval = time.Millisecond
	clientCfg.MaxInterval = 5 * time.Millisecond
	clientCfg.MaxRetries = 1

	sender, err := push.NewFCMSender(&push.FCMConfig{
		ProjectID:   "tagwatch-dev",
		Endpoint:    server.URL,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token", TokenType: "Bearer"}),
		Client:      clientCfg,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return sender
}

func testNotification() push.Notification {
	return push.Notification{
		Token: "device-token-1",
		Title: "High temperature",
		Body:  "Tag t1 reports 39.2°C",
		Data: map[string]string{
			"device_id":  "t1",
			"alert_kind": "high_temp",
		},
	}
}

func writeFCMError(w http.ResponseWriter, status int, grpcStatus, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	details := []map[string]string{}
	if errorCode != "" {
		details = append(details, map[string]string{
			"@type":     "type.googleapis.com/google.firebase.fcm.v1.FcmError",
			"errorCode": errorCode,
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"status":  grpcStatus,
			"details": details,
		},
	})
}

func TestFCMSender_Send(t *testing.T) {
	var captured map[string]any

	sender := newSender(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/projects/tagwatch-dev/messages:send", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"name":"projects/tagwatch-dev/messages/0:123"}`))
	})

	id, err := sender.Send(context.Background(), testNotification())
	require.NoError(t, err)
	assert.Equal(t, "projects/tagwatch-dev/messages/0:123", id)

	msg := captured["message"].(map[string]any)
	assert.Equal(t, "device-token-1", msg["token"])
	assert.Equal(t, "High temperature", msg["notification"].(map[string]any)["title"])
	assert.Equal(t, "t1", msg["data"].(map[string]any)["device_id"])

	android := msg["android"].(map[string]any)
	assert.Equal(t, "high", android["priority"])
	assert.Equal(t, push.AndroidChannelID, android["notification"].(map[string]any)["channel_id"])

	aps := msg["apns"].(map[string]any)["payload"].(map[string]any)["aps"].(map[string]any)
	assert.Equal(t, "default", aps["sound"])
	assert.InDelta(t, 1, aps["badge"], 0)
}

func TestFCMSender_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		grpcStatus string
		errorCode  string
		message    string
		wantErr    error
		wantCode   string
	}{
		{
			name:       "unregistered token",
			status:     http.StatusNotFound,
			grpcStatus: "NOT_FOUND",
			errorCode:  "UNREGISTERED",
			message:    "Requested entity was not found.",
			wantErr:    push.ErrTokenInvalid,
			wantCode:   "UNREGISTERED",
		},
		{
			name:       "bare 404",
			status:     http.StatusNotFound,
			grpcStatus: "NOT_FOUND",
			wantErr:    push.ErrTokenInvalid,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "malformed registration token",
			status:     http.StatusBadRequest,
			grpcStatus: "INVALID_ARGUMENT",
			errorCode:  "INVALID_ARGUMENT",
			message:    "The registration token is not a valid FCM registration token",
			wantErr:    push.ErrTokenInvalid,
			wantCode:   "INVALID_ARGUMENT",
		},
		{
			name:       "invalid payload",
			status:     http.StatusBadRequest,
			grpcStatus: "INVALID_ARGUMENT",
			errorCode:  "INVALID_ARGUMENT",
			message:    "Invalid value at 'message.data[0].value'",
			wantErr:    push.ErrSendFailed,
			wantCode:   "INVALID_ARGUMENT",
		},
		{
			name:       "sender mismatch",
			status:     http.StatusForbidden,
			grpcStatus: "PERMISSION_DENIED",
			errorCode:  "SENDER_ID_MISMATCH",
			message:    "SenderId mismatch",
			wantErr:    push.ErrSendFailed,
			wantCode:   "SENDER_ID_MISMATCH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := newSender(t, func(w http.ResponseWriter, _ *http.Request) {
				writeFCMError(w, tt.status, tt.grpcStatus, tt.errorCode, tt.message)
			})

			_, err := sender.Send(context.Background(), testNotification())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var sendErr *push.SendError
			require.True(t, errors.As(err, &sendErr))
			assert.Equal(t, tt.status, sendErr.StatusCode)
			assert.Equal(t, tt.wantCode, sendErr.Code)
		})
	}
}

func TestFCMSender_ServerErrorIsRetriedThenFails(t *testing.T) {
	var attempts atomic.Int32
	sender := newSender(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		writeFCMError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "UNAVAILABLE", "try later")
	})

	_, err := sender.Send(context.Background(), testNotification())
	assert.ErrorIs(t, err, push.ErrSendFailed)
	assert.NotErrorIs(t, err, push.ErrTokenInvalid)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestNewFCMSender_Validation(t *testing.T) {
	_, err := push.NewFCMSender(&push.FCMConfig{})
	assert.Error(t, err)

	_, err = push.NewFCMSender(&push.FCMConfig{ProjectID: "p"})
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	sender := push.NewLogSender(zerolog.Nop())

	id, err := sender.Send(context.Background(), testNotification())
	require.NoError(t, err)
	assert.Contains(t, id, "log-")
}
