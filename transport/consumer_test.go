package transport

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/najoast/actorsys/proto"
	"github.com/stretchr/testify/require"
)

// fakeBackendConsumer feeds a fixed set of pre-encoded bodies to whatever
// handler Consume is given, once, then blocks until ctx is cancelled (like
// a real broker consume loop would).
type fakeBackendConsumer struct {
	bodies [][]byte
}

func (f *fakeBackendConsumer) Consume(ctx context.Context, topic string, handle func([]byte) error) error {
	for _, b := range f.bodies {
		if err := handle(b); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestConsumerDispatchesDecodedDeliveries(t *testing.T) {
	env, err := proto.NewEnvelope("Echo.Ping", map[string]int{"n": 1})
	require.NoError(t, err)
	body, err := json.Marshal(busMessage{TargetActorID: "a1", SenderActorID: "a0", Envelope: env})
	require.NoError(t, err)

	backend := &fakeBackendConsumer{bodies: [][]byte{body}}
	bus := NewBusTransport(&fakePublisher{}, TopicPerActor)

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)
	dispatch := func(targetActorID, senderActorID string, env *proto.Envelope) {
		mu.Lock()
		got = append(got, targetActorID+":"+senderActorID)
		mu.Unlock()
		done <- struct{}{}
	}

	c := NewConsumer(bus, backend, dispatch, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.EnsureSubscribed(ctx, "a1", "EchoActor")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for dispatch")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a1:a0"}, got)
}

func TestConsumerEnsureSubscribedIsIdempotentPerTopic(t *testing.T) {
	backend := &fakeBackendConsumer{}
	bus := NewBusTransport(&fakePublisher{}, TopicPerActor)
	c := NewConsumer(bus, backend, func(string, string, *proto.Envelope) {}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.EnsureSubscribed(ctx, "a1", "EchoActor")
	c.EnsureSubscribed(ctx, "a1", "EchoActor")

	c.mu.Lock()
	n := len(c.started)
	c.mu.Unlock()
	require.Equal(t, 1, n, "duplicate EnsureSubscribed should be a no-op")
}
