// Package client implements the service registration client each
// hosting service runs at startup: register with the gateway, then
// heartbeat on a fixed cadence, re-registering whenever the gateway
// looks like it restarted out from under the connection.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// RegistrationClient keeps one hosting service registered with the
// gateway for the life of the process.
type RegistrationClient struct {
	gatewayURL    string
	serviceID     string
	serviceURL    string
	supportedType []string
	apiKey        string

	httpClient        *http.Client
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// Config configures a RegistrationClient.
type Config struct {
	GatewayURL          string
	ServiceID           string
	ServiceURL          string
	SupportedActorTypes []string
	APIKey              string
	HeartbeatInterval   time.Duration // default 30s
	Logger              *slog.Logger
}

// New builds a RegistrationClient; call Run to register and start
// heartbeating.
func New(cfg Config) *RegistrationClient {
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RegistrationClient{
		gatewayURL:        cfg.GatewayURL,
		serviceID:         cfg.ServiceID,
		serviceURL:        cfg.ServiceURL,
		supportedType:     cfg.SupportedActorTypes,
		apiKey:            cfg.APIKey,
		httpClient:        &http.Client{Timeout: 5 * time.Second},
		heartbeatInterval: interval,
		logger:            logger,
	}
}

// Run registers with the gateway (retrying with exponential backoff
// until ctx is cancelled or registration succeeds), then heartbeats on
// heartbeatInterval. Returns when ctx is cancelled.
func (c *RegistrationClient) Run(ctx context.Context) error {
	if err := c.registerWithBackoff(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.heartbeat(ctx); err != nil {
				c.logger.Warn("heartbeat failed, re-registering", "service_id", c.serviceID, "error", err)
				if err := c.registerWithBackoff(ctx); err != nil {
					return err
				}
			}
		}
	}
}

func (c *RegistrationClient) registerWithBackoff(ctx context.Context) error {
	delay := 200 * time.Millisecond
	const maxDelay = 10 * time.Second

	for attempt := 0; ; attempt++ {
		err := c.register(ctx)
		if err == nil {
			c.logger.Info("registered with gateway", "service_id", c.serviceID, "gateway_url", c.gatewayURL)
			return nil
		}

		c.logger.Warn("registration attempt failed", "service_id", c.serviceID, "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

type registerBody struct {
	ServiceID           string   `json:"serviceId"`
	ServiceURL          string   `json:"serviceUrl"`
	SupportedActorTypes []string `json:"supportedActorTypes,omitempty"`
}

func (c *RegistrationClient) register(ctx context.Context) error {
	body := registerBody{ServiceID: c.serviceID, ServiceURL: c.serviceURL, SupportedActorTypes: c.supportedType}
	return c.post(ctx, "/api/v1/services/register", body)
}

type heartbeatBody struct {
	ServiceID string `json:"serviceId"`
}

func (c *RegistrationClient) heartbeat(ctx context.Context) error {
	return c.post(ctx, "/api/v1/services/heartbeat", heartbeatBody{ServiceID: c.serviceID})
}

func (c *RegistrationClient) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("client: marshal %s body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("client: build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("client: %s returned %s", path, resp.Status)
	}
	return nil
}
