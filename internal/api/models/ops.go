package models

// Health is the liveness body.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Version string         `json:"version"`
	Uptime  string         `json:"uptime"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus is the body of the status endpoint.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Broker     BrokerStatus      `json:"broker"`
	Viewers    int               `json:"viewers"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Providers  []ProviderStatus  `json:"providers"`
}

// BrokerStatus reports the MQTT connection manager.
type BrokerStatus struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Attempts  int    `json:"reconnectAttempts"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus represents the status of an outbound provider such as FCM.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}
