package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/najoast/actorsys/events"
	"github.com/najoast/actorsys/proto"
	"github.com/najoast/actorsys/registry"
)

// HealthMonitor periodically probes every registered service's /health
// endpoint, flips its healthy flag on transition, and bulk-updates the
// actors it owns via the registry's secondary index.
type HealthMonitor struct {
	services      *registry.ServiceRegistry
	actors        *registry.Registry
	bus           *events.Bus
	client        *http.Client
	probeInterval time.Duration
	deadThreshold time.Duration
	logger        *slog.Logger
}

// HealthMonitorConfig configures a HealthMonitor.
type HealthMonitorConfig struct {
	ProbeInterval time.Duration // default 10s
	DeadThreshold time.Duration // default 2*ProbeInterval
	Logger        *slog.Logger
}

// NewHealthMonitor builds a HealthMonitor over the given registries.
func NewHealthMonitor(services *registry.ServiceRegistry, actors *registry.Registry, bus *events.Bus, cfg HealthMonitorConfig) *HealthMonitor {
	interval := cfg.ProbeInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	dead := cfg.DeadThreshold
	if dead <= 0 {
		dead = 2 * interval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthMonitor{
		services:      services,
		actors:        actors,
		bus:           bus,
		client:        &http.Client{Timeout: interval / 2},
		probeInterval: interval,
		deadThreshold: dead,
		logger:        logger,
	}
}

// Run probes every registered service on probeInterval until ctx is
// cancelled.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *HealthMonitor) sweep(ctx context.Context) {
	for _, svc := range m.services.List() {
		m.probeOne(ctx, svc)
	}
}

func (m *HealthMonitor) probeOne(ctx context.Context, svc proto.ServiceRecord) {
	reachable := m.probe(ctx, svc.ServiceURL)
	stale := time.Since(svc.LastHeartbeat) > m.deadThreshold
	healthy := reachable && !stale

	if healthy == svc.Healthy {
		return
	}

	if err := m.services.SetHealthy(svc.ServiceID, healthy); err != nil {
		m.logger.Warn("set healthy failed", "service_id", svc.ServiceID, "error", err)
		return
	}

	if err := m.actors.MarkServiceAvailability(svc.ServiceID, healthy); err != nil {
		m.logger.Warn("mark service availability failed", "service_id", svc.ServiceID, "error", err)
	}

	if healthy {
		m.logger.Info("service recovered", "service_id", svc.ServiceID)
		m.bus.Publish(events.Event{Type: events.ServiceRecovered, ServiceID: svc.ServiceID})
	} else {
		m.logger.Warn("service down", "service_id", svc.ServiceID, "reachable", reachable, "stale", stale)
		m.bus.Publish(events.Event{Type: events.ServiceDown, ServiceID: svc.ServiceID})
	}
}

func (m *HealthMonitor) probe(ctx context.Context, serviceURL string) bool {
	pctx, cancel := context.WithTimeout(ctx, m.probeInterval/2)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, serviceURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "UP"
}

// OnReregister should be called by the gateway's register handler when a
// service that was previously flagged unhealthy registers again; the
// component design treats this as an immediate recovery rather than
// waiting for the next probe tick.
func (m *HealthMonitor) OnReregister(serviceID string) {
	if err := m.services.SetHealthy(serviceID, true); err != nil {
		return
	}
	if err := m.actors.MarkServiceAvailability(serviceID, true); err != nil {
		m.logger.Warn("mark service availability on reregister failed", "service_id", serviceID, "error", err)
	}
	m.bus.Publish(events.Event{Type: events.ServiceRecovered, ServiceID: serviceID})
}
