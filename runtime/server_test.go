package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/najoast/actorsys/actor"
	"github.com/najoast/actorsys/proto"
	"github.com/najoast/actorsys/system"
	"github.com/stretchr/testify/require"
)

type echoActor struct{ acks int }

func (a *echoActor) PreStart(ctx context.Context, actx actor.Context) error { return nil }
func (a *echoActor) PostStop(ctx context.Context, actx actor.Context) error { return nil }
func (a *echoActor) Receive(ctx context.Context, env *proto.Envelope, actx actor.Context) error {
	a.acks++
	reply, err := proto.NewEnvelope("Echo.Ack", map[string]int{"acks": a.acks})
	if err != nil {
		return err
	}
	actx.Reply(reply)
	return nil
}

func newTestSystem() *system.System {
	factory := system.NewTableFactory()
	factory.Register("EchoActor", func(map[string]interface{}) (actor.Actor, error) {
		return &echoActor{}, nil
	})
	return system.New(factory, system.Options{ThroughputPerRun: 16})
}

func TestCreateActorEndpoint(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(context.Background())

	s := NewServer(sys, Config{ServiceID: "svc-1"})

	body := strings.NewReader(`{"actorId":"a1","actorType":"EchoActor"}`)
	req := httptest.NewRequest(http.MethodPost, "/runtime/create-actor", body)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.True(t, sys.Has("a1"), "expected actor a1 to be spawned")
}

type fakeConsumer struct {
	subscribed chan struct{}
}

func (f *fakeConsumer) EnsureSubscribed(ctx context.Context, actorID, actorType string) {
	f.subscribed <- struct{}{}
}

func TestCreateActorSubscribesConsumer(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(context.Background())

	subscribed := make(chan struct{}, 1)
	s := &Server{
		sys:       sys,
		serviceID: "svc-1",
		consumer:  &fakeConsumer{subscribed: subscribed},
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("/runtime/create-actor", s.handleCreateActor)

	body := strings.NewReader(`{"actorId":"a1","actorType":"EchoActor"}`)
	req := httptest.NewRequest(http.MethodPost, "/runtime/create-actor", body)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	select {
	case <-subscribed:
	default:
		t.Fatalf("expected EnsureSubscribed to have been called on create")
	}
}

func TestTellEndpointDelivers(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(context.Background())

	s := NewServer(sys, Config{ServiceID: "svc-1"})
	_, err := sys.Spawn(system.SpawnParams{ActorID: "a1", ActorType: "EchoActor"})
	require.NoError(t, err)

	env, err := proto.NewEnvelope("Echo.Ping", map[string]int{"n": 1})
	require.NoError(t, err)
	cmd := proto.TellCommand{TargetActorID: "a1", Message: env}
	payload, err := json.Marshal(cmd)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/runtime/tell", strings.NewReader(string(payload)))
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestTellUnknownActorReturns404(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(context.Background())
	s := NewServer(sys, Config{ServiceID: "svc-1"})

	env, err := proto.NewEnvelope("Echo.Ping", nil)
	require.NoError(t, err)
	cmd := proto.TellCommand{TargetActorID: "ghost", Message: env}
	payload, err := json.Marshal(cmd)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/runtime/tell", strings.NewReader(string(payload)))
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAuthRequiredWhenAPIKeyConfigured(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(context.Background())
	s := NewServer(sys, Config{ServiceID: "svc-1", APIKey: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/runtime/actors", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code, "status without key")

	req2 := httptest.NewRequest(http.MethodGet, "/runtime/actors", nil)
	req2.Header.Set("X-API-KEY", "secret")
	rr2 := httptest.NewRecorder()
	s.mux.ServeHTTP(rr2, req2)
	require.Equal(t, http.StatusOK, rr2.Code, "status with key")
}

func TestActorHealthEndpoint(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(context.Background())
	s := NewServer(sys, Config{ServiceID: "svc-1"})
	_, err := sys.Spawn(system.SpawnParams{ActorID: "a1", ActorType: "EchoActor"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/runtime/actors/a1/health", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "RUNNING", got["state"])
}
