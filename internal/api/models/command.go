package models

// CommandAccepted is returned once a command has been handed to the broker.
type CommandAccepted struct {
	DeviceID    string         `json:"deviceId"`
	Topic       string         `json:"topic"`
	Payload     map[string]any `json:"payload"`
	PublishedAt Timestamp      `json:"publishedAt"`
}

// FeedbackAccepted acknowledges a feedback submission.
type FeedbackAccepted struct {
	Status     string    `json:"status"`
	DeviceID   string    `json:"deviceId"`
	ReceivedAt Timestamp `json:"receivedAt"`
}
