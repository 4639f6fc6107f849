package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tagwatch/tagwatch/internal/provider/resilience"
)

const (
	// DefaultFCMEndpoint is the FCM HTTP v1 API base URL.
	DefaultFCMEndpoint = "https://fcm.googleapis.com"

	// FCMScope is the OAuth2 scope required to send messages.
	FCMScope = "https://www.googleapis.com/auth/firebase.messaging"

	// AndroidChannelID is the notification channel the mobile app registers for alerts.
	AndroidChannelID = "health_alerts"
)

// FCMConfig holds configuration for the FCM sender.
type FCMConfig struct {
	ProjectID   string
	Endpoint    string
	TokenSource oauth2.TokenSource
	Client      resilience.ClientConfig
	Logger      zerolog.Logger
}

// FCMSender sends notifications through the FCM HTTP v1 API.
type FCMSender struct {
	url    string
	client *resilience.Client
	logger zerolog.Logger
}

// NewGoogleTokenSource returns a token source from application default credentials.
func NewGoogleTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	ts, err := google.DefaultTokenSource(ctx, FCMScope)
	if err != nil {
		return nil, fmt.Errorf("load google credentials: %w", err)
	}
	return ts, nil
}

// NewFCMSender creates a sender. Requests carry a bearer token from cfg.TokenSource.
func NewFCMSender(cfg *FCMConfig) (*FCMSender, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("fcm project id is required")
	}
	if cfg.TokenSource == nil {
		return nil, errors.New("fcm token source is required")
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultFCMEndpoint
	}

	clientCfg := cfg.Client
	if clientCfg.Name == "" {
		clientCfg = resilience.DefaultClientConfig("fcm")
		clientCfg.Registry = cfg.Client.Registry
		clientCfg.Logger = cfg.Logger
	}
	clientCfg.Transport = &oauth2.Transport{
		Source: oauth2.ReuseTokenSource(nil, cfg.TokenSource),
		Base:   clientCfg.Transport,
	}

	return &FCMSender{
		url:    fmt.Sprintf("%s/v1/projects/%s/messages:send", endpoint, cfg.ProjectID),
		client: resilience.NewClient(clientCfg),
		logger: cfg.Logger.With().Str("sender", "fcm").Logger(),
	}, nil
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      fcmAndroid        `json:"android"`
	APNS         fcmAPNS           `json:"apns"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority     string                 `json:"priority"`
	Notification fcmAndroidNotification `json:"notification"`
}

type fcmAndroidNotification struct {
	ChannelID string `json:"channel_id"`
	Sound     string `json:"sound"`
}

type fcmAPNS struct {
	Payload fcmAPNSPayload `json:"payload"`
}

type fcmAPNSPayload struct {
	APS fcmAPS `json:"aps"`
}

type fcmAPS struct {
	Sound string `json:"sound"`
	Badge int    `json:"badge"`
}

type fcmResponse struct {
	Name string `json:"name"`
}

type fcmErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// Send delivers n and returns the FCM message name.
func (s *FCMSender) Send(ctx context.Context, n Notification) (string, error) {
	body, err := json.Marshal(fcmRequest{Message: fcmMessage{
		Token:        n.Token,
		Notification: fcmNotification{Title: n.Title, Body: n.Body},
		Data:         n.Data,
		Android: fcmAndroid{
			Priority:     "high",
			Notification: fcmAndroidNotification{ChannelID: AndroidChannelID, Sound: "default"},
		},
		APNS: fcmAPNS{Payload: fcmAPNSPayload{APS: fcmAPS{Sound: "default", Badge: 1}}},
	}})
	if err != nil {
		return "", fmt.Errorf("encode fcm message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create fcm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return "", &SendError{Message: err.Error(), kind: ErrSendFailed}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read fcm response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classify(resp.StatusCode, raw)
	}

	var out fcmResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode fcm response: %w", err)
	}
	return out.Name, nil
}

// classify maps an FCM error response onto ErrTokenInvalid or ErrSendFailed.
func classify(statusCode int, raw []byte) *SendError {
	var body fcmErrorResponse
	_ = json.Unmarshal(raw, &body)

	code := body.Error.Status
	for _, d := range body.Error.Details {
		if d.ErrorCode != "" {
			code = d.ErrorCode
			break
		}
	}

	sendErr := &SendError{
		StatusCode: statusCode,
		Code:       code,
		Message:    body.Error.Message,
		kind:       ErrSendFailed,
	}
	if sendErr.Message == "" {
		sendErr.Message = http.StatusText(statusCode)
	}

	switch {
	case code == "UNREGISTERED", statusCode == http.StatusNotFound:
		sendErr.kind = ErrTokenInvalid
	case code == "INVALID_ARGUMENT" && mentionsToken(body.Error.Message):
		sendErr.kind = ErrTokenInvalid
	}
	return sendErr
}

func mentionsToken(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "registration token") || strings.Contains(msg, "message.token")
}

var _ Sender = (*FCMSender)(nil)
