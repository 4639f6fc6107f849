// Package handler provides HTTP handlers for the tagwatch API.
package handler

import (
	"net/http"
	"time"

	"github.com/tagwatch/tagwatch/internal/api/models"
	"github.com/tagwatch/tagwatch/internal/api/response"
	"github.com/tagwatch/tagwatch/internal/broker"
	"github.com/tagwatch/tagwatch/internal/provider/resilience"
)

// BrokerStatus is the read side of the broker connection manager.
type BrokerStatus interface {
	Connected() bool
	State() broker.State
	Attempts() int
}

// ViewerCounter reports connected live viewers.
type ViewerCounter interface {
	ClientCount() int
}

// OpsConfig holds the dependencies of OpsHandler. Viewers and Providers are
// optional.
type OpsConfig struct {
	Version   string
	StartedAt time.Time
	Broker    BrokerStatus
	Viewers   ViewerCounter
	Providers *resilience.Registry
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health. The process is alive if it answers.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	response.JSON(w, r, http.StatusOK, models.Health{
		Status:  models.HealthStatusOK,
		Time:    models.Timestamp(now),
		Version: h.cfg.Version,
		Uptime:  now.Sub(h.cfg.StartedAt).Truncate(time.Second).String(),
	})
}

// ReadinessCheck handles GET /v1/ops/ready. Ready means the broker connection
// is up; a reconnecting or terminated manager is not ready.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Broker.Connected() {
		response.BrokerOffline(w, r, h.cfg.Broker.State().String())
		return
	}
	response.JSON(w, r, http.StatusOK, models.Health{
		Status:  models.HealthStatusOK,
		Time:    models.Timestamp(h.now()),
		Version: h.cfg.Version,
	})
}

// SystemStatus handles GET /v1/ops/status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	state := h.cfg.Broker.State()
	brokerHealth := models.HealthStatusOK
	switch state {
	case broker.StateConnected:
	case broker.StateTerminated:
		brokerHealth = models.HealthStatusFail
	default:
		brokerHealth = models.HealthStatusDegraded
	}

	status := models.SystemStatus{
		Status: brokerHealth,
		Time:   models.Timestamp(h.now()),
		Broker: models.BrokerStatus{
			State:     state.String(),
			Connected: h.cfg.Broker.Connected(),
			Attempts:  h.cfg.Broker.Attempts(),
		},
		Subsystems: []models.SubsystemStatus{
			{Name: "broker", Status: brokerHealth},
		},
		Providers: []models.ProviderStatus{},
	}

	if h.cfg.Viewers != nil {
		status.Viewers = h.cfg.Viewers.ClientCount()
	}

	if h.cfg.Providers != nil {
		for _, p := range h.cfg.Providers.All() {
			ps := models.ProviderStatus{
				Provider:      p.Name,
				Status:        models.HealthStatusOK,
				CircuitState:  p.State,
				LastSuccessAt: models.NewTimestamp(p.LastSuccessAt),
				LastFailureAt: models.NewTimestamp(p.LastFailureAt),
			}
			if !p.Healthy() {
				ps.Status = models.HealthStatusDegraded
				if status.Status == models.HealthStatusOK {
					status.Status = models.HealthStatusDegraded
				}
			}
			if p.LastError != "" {
				msg := p.LastError
				ps.Message = &msg
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}
