package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/najoast/actorsys/proto"
	"github.com/najoast/actorsys/registry"
	"github.com/najoast/actorsys/transport"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory transport.Transport standing in for the
// real HTTP transport so the gateway's routing and registry bookkeeping
// can be exercised without a live hosting service.
type fakeTransport struct {
	sent     []string
	existsFn func(address string) bool
}

func (f *fakeTransport) Send(ctx context.Context, address string, env *proto.Envelope, senderActorID string) error {
	f.sent = append(f.sent, address)
	return nil
}

func (f *fakeTransport) Ask(ctx context.Context, address string, env *proto.Envelope, timeout time.Duration) (*proto.Envelope, error) {
	return nil, transport.ErrAskUnsupported
}

func (f *fakeTransport) Exists(ctx context.Context, address string) (bool, error) {
	if f.existsFn != nil {
		return f.existsFn(address), nil
	}
	return true, nil
}

func (f *fakeTransport) Stop(ctx context.Context, address string) error { return nil }

func (f *fakeTransport) State(ctx context.Context, address string) (string, error) {
	return "ACTIVE", nil
}

type fakeCreator struct {
	fail bool
}

func (f *fakeCreator) CreateActor(ctx context.Context, baseURL string, cmd proto.CreateCommand) error {
	if f.fail {
		return &createFailure{}
	}
	return nil
}

type createFailure struct{}

func (*createFailure) Error() string { return "hosting service rejected spawn" }

func newTestServer(t *testing.T, creator actorCreator, apiKey string) (*Server, *registry.Registry, *registry.ServiceRegistry) {
	t.Helper()
	actors := registry.New()
	t.Cleanup(actors.Close)
	services := registry.NewServiceRegistry()
	tr := &fakeTransport{}
	router := transport.NewRouter(tr, nil)

	s := NewServer(actors, services, router, creator, Config{APIKey: apiKey})
	return s, actors, services
}

func TestCreateActorHappyPath(t *testing.T) {
	s, actors, services := newTestServer(t, &fakeCreator{}, "")
	services.Register("svc-1", "http://host-1", []string{"EchoActor"})

	body := strings.NewReader(`{"serviceId":"svc-1","actorType":"EchoActor","actorId":"a1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actors", body)
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rec, ok := actors.LookupByID("a1")
	require.True(t, ok, "expected actor a1 to be registered")
	require.Equal(t, proto.StatusActive, rec.Status)
}

func TestCreateActorRollsBackOnSpawnFailure(t *testing.T) {
	s, actors, services := newTestServer(t, &fakeCreator{fail: true}, "")
	services.Register("svc-1", "http://host-1", []string{"EchoActor"})

	body := strings.NewReader(`{"serviceId":"svc-1","actorType":"EchoActor","actorId":"a1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actors", body)
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadGateway, rr.Code)
	_, ok := actors.LookupByID("a1")
	require.False(t, ok, "expected actor record to be rolled back on spawn failure")
}

func TestCreateActorRejectsUnknownService(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeCreator{}, "")

	body := strings.NewReader(`{"serviceId":"ghost","actorType":"EchoActor"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actors", body)
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateActorRejectsUnsupportedType(t *testing.T) {
	s, _, services := newTestServer(t, &fakeCreator{}, "")
	services.Register("svc-1", "http://host-1", []string{"OtherActor"})

	body := strings.NewReader(`{"serviceId":"svc-1","actorType":"EchoActor"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actors", body)
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTellActorUnavailableReturns503(t *testing.T) {
	s, actors, services := newTestServer(t, &fakeCreator{}, "")
	services.Register("svc-1", "http://host-1", []string{"EchoActor"})
	rec, err := actors.Create("a1", "EchoActor", "svc-1", "http://host-1", nil)
	require.NoError(t, err)
	require.NoError(t, actors.MarkActive(rec.ActorID))
	require.NoError(t, actors.MarkServiceAvailability("svc-1", false))

	env, err := proto.NewEnvelope("Echo.Ping", map[string]int{"n": 1})
	require.NoError(t, err)
	payload, err := json.Marshal(tellRequest{TargetActorID: "a1", Message: env})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actors/a1/tell", strings.NewReader(string(payload)))
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAPIKeyRequiredWhenConfigured(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeCreator{}, "secret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/services", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code, "status without key")

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/services", nil)
	req2.Header.Set("X-API-KEY", "secret")
	rr2 := httptest.NewRecorder()
	s.mux.ServeHTTP(rr2, req2)
	require.Equal(t, http.StatusOK, rr2.Code, "status with correct key")
}

func TestServiceRegisterAndHeartbeat(t *testing.T) {
	s, _, services := newTestServer(t, &fakeCreator{}, "")

	body := strings.NewReader(`{"serviceId":"svc-1","serviceUrl":"http://host-1","supportedActorTypes":["EchoActor"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/services/register", body)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, "register status")

	hbBody := strings.NewReader(`{"serviceId":"svc-1"}`)
	hbReq := httptest.NewRequest(http.MethodPost, "/api/v1/services/heartbeat", hbBody)
	hbRR := httptest.NewRecorder()
	s.mux.ServeHTTP(hbRR, hbReq)
	require.Equal(t, http.StatusOK, hbRR.Code, "heartbeat status")

	_, ok := services.Get("svc-1")
	require.True(t, ok, "expected svc-1 to be registered")
}

func TestHealthEndpointBypassesAuth(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeCreator{}, "secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, "health status")
}
