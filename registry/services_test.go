package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServiceRegisterAndGet(t *testing.T) {
	s := NewServiceRegistry()
	rec := s.Register("svc-1", "http://h1", []string{"EchoActor"})
	require.True(t, rec.Healthy, "expected freshly registered service to be healthy")

	got, ok := s.Get("svc-1")
	require.True(t, ok)
	require.Equal(t, "http://h1", got.ServiceURL)
}

func TestHeartbeatUnknownServiceFails(t *testing.T) {
	s := NewServiceRegistry()
	require.Error(t, s.Heartbeat("ghost"))
}

func TestHeartbeatRevivesUnhealthyService(t *testing.T) {
	s := NewServiceRegistry()
	s.Register("svc-1", "http://h1", nil)
	require.NoError(t, s.SetHealthy("svc-1", false))

	got, _ := s.Get("svc-1")
	require.False(t, got.Healthy)

	require.NoError(t, s.Heartbeat("svc-1"))
	got, _ = s.Get("svc-1")
	require.True(t, got.Healthy, "expected heartbeat to revive service health")
}

func TestSupportsActorType(t *testing.T) {
	s := NewServiceRegistry()
	s.Register("svc-1", "http://h1", []string{"EchoActor", "OtherActor"})
	s.Register("svc-2", "http://h2", nil) // no declared types => supports anything

	require.True(t, s.SupportsActorType("svc-1", "EchoActor"))
	require.False(t, s.SupportsActorType("svc-1", "UnknownActor"))
	require.True(t, s.SupportsActorType("svc-2", "AnythingActor"))
	require.False(t, s.SupportsActorType("ghost", "EchoActor"))
}

func TestStaleSince(t *testing.T) {
	s := NewServiceRegistry()
	s.Register("svc-1", "http://h1", nil)

	require.Empty(t, s.StaleSince(time.Hour))
	require.Len(t, s.StaleSince(-time.Second), 1, "registration should count as stale against a negative threshold")
}
