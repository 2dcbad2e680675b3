package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/najoast/actorsys/proto"
)

// ServiceRegistry tracks every hosting service that has registered with
// the gateway: its URL, last heartbeat, and health flag. Unlike the
// actor registry, writes here are simple field updates rather than a
// compound invariant over a secondary index, so a plain RWMutex-guarded
// map suffices.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]*proto.ServiceRecord
}

// NewServiceRegistry builds an empty service registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: make(map[string]*proto.ServiceRecord)}
}

// Register adds or replaces a service record, marking it healthy with a
// fresh heartbeat. Called by the gateway's /api/v1/services/register
// handler.
func (s *ServiceRegistry) Register(serviceID, serviceURL string, supportedTypes []string) *proto.ServiceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &proto.ServiceRecord{
		ServiceID:           serviceID,
		ServiceURL:          serviceURL,
		LastHeartbeat:       time.Now(),
		Healthy:             true,
		SupportedActorTypes: supportedTypes,
	}
	s.services[serviceID] = rec
	return rec
}

// Heartbeat refreshes a registered service's last_heartbeat and, if it
// was previously unhealthy, flips it back to healthy (re-registration
// after a flap per the component design's health monitor rule).
func (s *ServiceRegistry) Heartbeat(serviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.services[serviceID]
	if !ok {
		return fmt.Errorf("registry: service %s not registered", serviceID)
	}
	rec.LastHeartbeat = time.Now()
	rec.Healthy = true
	return nil
}

// SetHealthy updates a service's health flag, used by the health monitor
// after a probe succeeds or fails.
func (s *ServiceRegistry) SetHealthy(serviceID string, healthy bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.services[serviceID]
	if !ok {
		return fmt.Errorf("registry: service %s not registered", serviceID)
	}
	rec.Healthy = healthy
	return nil
}

// Get returns the service record for serviceID.
func (s *ServiceRegistry) Get(serviceID string) (proto.ServiceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.services[serviceID]
	if !ok {
		return proto.ServiceRecord{}, false
	}
	return *rec, true
}

// List returns every known service record.
func (s *ServiceRegistry) List() []proto.ServiceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]proto.ServiceRecord, 0, len(s.services))
	for _, rec := range s.services {
		out = append(out, *rec)
	}
	return out
}

// SupportsActorType reports whether serviceID advertised actorType at
// registration, used by the gateway to validate create requests.
func (s *ServiceRegistry) SupportsActorType(serviceID, actorType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.services[serviceID]
	if !ok {
		return false
	}
	if len(rec.SupportedActorTypes) == 0 {
		return true
	}
	for _, t := range rec.SupportedActorTypes {
		if t == actorType {
			return true
		}
	}
	return false
}

// StaleSince returns every service whose last heartbeat is older than
// threshold, for the health monitor's probe sweep.
func (s *ServiceRegistry) StaleSince(threshold time.Duration) []proto.ServiceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-threshold)
	var stale []proto.ServiceRecord
	for _, rec := range s.services {
		if rec.LastHeartbeat.Before(cutoff) {
			stale = append(stale, *rec)
		}
	}
	return stale
}
