package transport

import (
	"context"
	"testing"
	"time"

	"github.com/najoast/actorsys/proto"
	"github.com/stretchr/testify/require"
)

func TestJoinAndSplitAddressRoundTrip(t *testing.T) {
	addr := JoinAddress("http://host:8086", "a1")
	base, actorID := splitAddress(addr)
	require.Equal(t, "http://host:8086", base)
	require.Equal(t, "a1", actorID)
}

func TestSplitAddressWithoutSeparator(t *testing.T) {
	base, actorID := splitAddress("http://host:8086")
	require.Equal(t, "http://host:8086", base)
	require.Empty(t, actorID)
}

type fakePublisher struct {
	topic string
	body  []byte
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, body []byte) error {
	f.topic = topic
	f.body = body
	return nil
}

func TestBusTopicPerActorNaming(t *testing.T) {
	pub := &fakePublisher{}
	bus := NewBusTransport(pub, TopicPerActor)

	addr := bus.Address("a1", "EchoActor")
	env, err := proto.NewEnvelope("Echo.Ping", map[string]int{"n": 1})
	require.NoError(t, err)
	require.NoError(t, bus.Send(context.Background(), addr, env, "a0"))
	require.Equal(t, "actor-a1", pub.topic)
}

func TestBusTopicSharedNaming(t *testing.T) {
	pub := &fakePublisher{}
	bus := NewBusTransport(pub, TopicShared)

	addr := bus.Address("a1", "EchoActor")
	env, err := proto.NewEnvelope("Echo.Ping", map[string]int{"n": 1})
	require.NoError(t, err)
	require.NoError(t, bus.Send(context.Background(), addr, env, ""))
	require.Equal(t, "actortype-EchoActor", pub.topic)
}

func TestBusAskAlwaysUnsupported(t *testing.T) {
	bus := NewBusTransport(&fakePublisher{}, TopicPerActor)
	env, err := proto.NewEnvelope("Echo.Ping", nil)
	require.NoError(t, err)
	_, err = bus.Ask(context.Background(), "addr", env, time.Second)
	require.ErrorIs(t, err, ErrAskUnsupported)
}

type fakeHTTPTransport struct {
	sentAddr string
	existsOK bool
}

func (f *fakeHTTPTransport) Send(ctx context.Context, address string, env *proto.Envelope, senderActorID string) error {
	f.sentAddr = address
	return nil
}
func (f *fakeHTTPTransport) Ask(ctx context.Context, address string, env *proto.Envelope, timeout time.Duration) (*proto.Envelope, error) {
	return nil, nil
}
func (f *fakeHTTPTransport) Exists(ctx context.Context, address string) (bool, error) {
	return f.existsOK, nil
}
func (f *fakeHTTPTransport) Stop(ctx context.Context, address string) error { return nil }
func (f *fakeHTTPTransport) State(ctx context.Context, address string) (string, error) {
	return "ACTIVE", nil
}

func TestRouterSendDataPlanePrefersBus(t *testing.T) {
	pub := &fakePublisher{}
	bus := NewBusTransport(pub, TopicPerActor)
	httpTr := &fakeHTTPTransport{}
	router := NewRouter(httpTr, bus)

	dest := Destination{ServiceURL: "http://host-1", ActorID: "a1", ActorType: "EchoActor"}
	env, err := proto.NewEnvelope("Echo.Ping", nil)
	require.NoError(t, err)
	require.NoError(t, router.SendDataPlane(context.Background(), dest, env, ""))
	require.Equal(t, "actor-a1", pub.topic, "expected bus to carry the data-plane send")
	require.Empty(t, httpTr.sentAddr, "expected HTTP transport not to be used when a bus is configured")
}

func TestRouterSendDataPlaneFallsBackToHTTPWithoutBus(t *testing.T) {
	httpTr := &fakeHTTPTransport{}
	router := NewRouter(httpTr, nil)

	dest := Destination{ServiceURL: "http://host-1", ActorID: "a1", ActorType: "EchoActor"}
	env, err := proto.NewEnvelope("Echo.Ping", nil)
	require.NoError(t, err)
	require.NoError(t, router.SendDataPlane(context.Background(), dest, env, ""))
	require.NotEmpty(t, httpTr.sentAddr, "expected HTTP transport to be used when no bus is configured")
}

func TestRouterControlPlaneAlwaysUsesHTTP(t *testing.T) {
	pub := &fakePublisher{}
	bus := NewBusTransport(pub, TopicPerActor)
	httpTr := &fakeHTTPTransport{}
	router := NewRouter(httpTr, bus)

	dest := Destination{ServiceURL: "http://host-1", ActorID: "a1", ActorType: "EchoActor"}
	env, err := proto.NewEnvelope("Echo.Ping", nil)
	require.NoError(t, err)
	require.NoError(t, router.SendControlPlane(context.Background(), dest, env, ""))
	require.NotEmpty(t, httpTr.sentAddr, "expected control-plane send to always go through HTTP")
	require.Empty(t, pub.topic, "expected control-plane send to never use the bus")
}
