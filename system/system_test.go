package system

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/najoast/actorsys/actor"
	"github.com/najoast/actorsys/proto"
	"github.com/stretchr/testify/require"
)

// orderRecorder is a test actor that appends every payload it receives, in
// receive order, to a channel so the test can assert on delivery order
// without racing on a shared slice.
type orderRecorder struct {
	seen chan int
}

func newOrderRecorder(seen chan int) func(map[string]interface{}) (actor.Actor, error) {
	return func(map[string]interface{}) (actor.Actor, error) {
		return &orderRecorder{seen: seen}, nil
	}
}

func (a *orderRecorder) PreStart(ctx context.Context, actx actor.Context) error { return nil }
func (a *orderRecorder) PostStop(ctx context.Context, actx actor.Context) error { return nil }

func (a *orderRecorder) Receive(ctx context.Context, env *proto.Envelope, actx actor.Context) error {
	var payload struct{ N int }
	if err := unmarshalPayload(env, &payload); err != nil {
		return err
	}
	a.seen <- payload.N
	return nil
}

// failNthActor fails its Nth receive (1-indexed), then keeps a running
// count so a test can assert exactly which messages the post-restart
// instance handled.
type failNthActor struct {
	n       int
	failAt  int
	results chan int
}

func newFailNthActor(failAt int, results chan int) func(map[string]interface{}) (actor.Actor, error) {
	return func(map[string]interface{}) (actor.Actor, error) {
		return &failNthActor{failAt: failAt, results: results}, nil
	}
}

func (a *failNthActor) PreStart(ctx context.Context, actx actor.Context) error { return nil }
func (a *failNthActor) PostStop(ctx context.Context, actx actor.Context) error { return nil }

func (a *failNthActor) Receive(ctx context.Context, env *proto.Envelope, actx actor.Context) error {
	a.n++
	var payload struct{ N int }
	if err := unmarshalPayload(env, &payload); err != nil {
		return err
	}
	if a.n == a.failAt {
		return errors.New("boom")
	}
	a.results <- payload.N
	return nil
}

func unmarshalPayload(env *proto.Envelope, v interface{}) error {
	return json.Unmarshal(env.Payload, v)
}

func TestSpawnOrderedDelivery(t *testing.T) {
	seen := make(chan int, 10)
	factory := NewTableFactory()
	factory.Register("Recorder", newOrderRecorder(seen))

	sys := New(factory, Options{ThroughputPerRun: 16})
	defer sys.Shutdown(context.Background())

	ref, err := sys.Spawn(SpawnParams{ActorID: "a1", ActorType: "Recorder"})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		env, err := proto.NewEnvelope("Recorder.N", map[string]int{"n": i})
		require.NoError(t, err)
		require.NoError(t, ref.Tell(env, nil))
	}

	deadline := time.After(time.Second)
	for want := 0; want < 10; want++ {
		select {
		case got := <-seen:
			require.Equal(t, want, got, "delivery order")
		case <-deadline:
			t.Fatalf("timed out waiting for message %d", want)
		}
	}
}

func TestSupervisionRestartSkipsFailingEnvelope(t *testing.T) {
	results := make(chan int, 10)
	factory := NewTableFactory()
	factory.Register("Flaky", newFailNthActor(3, results))

	strategy := actor.NewStrategy(actor.OneForOne, 5, time.Minute, actor.Rule{Matches: actor.MatchAny, Directive: actor.Restart})

	sys := New(factory, Options{ThroughputPerRun: 16})
	defer sys.Shutdown(context.Background())

	events := sys.Bus().Subscribe(context.Background())

	ref, err := sys.Spawn(SpawnParams{ActorID: "a1", ActorType: "Flaky", Strategy: strategy})
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		env, err := proto.NewEnvelope("Flaky.N", map[string]int{"n": i})
		require.NoError(t, err)
		require.NoError(t, ref.Tell(env, nil))
	}

	want := []int{1, 2, 4, 5}
	deadline := time.After(time.Second)
	for _, w := range want {
		select {
		case got := <-results:
			require.Equal(t, w, got, "post-restart delivery")
		case <-deadline:
			t.Fatalf("timed out waiting for message %d", w)
		}
	}

	sawRestarted := false
	for {
		select {
		case ev := <-events:
			if ev.Type == "ActorRestarted" {
				sawRestarted = true
			}
		case <-time.After(100 * time.Millisecond):
			goto checked
		}
	}
checked:
	require.True(t, sawRestarted, "expected an ActorRestarted event to have been published")
}

func TestStopRunsPostStopAndRemovesEntry(t *testing.T) {
	factory := NewTableFactory()
	stopped := make(chan struct{})
	factory.Register("Stoppable", func(map[string]interface{}) (actor.Actor, error) {
		return &stopRecorderActor{stopped: stopped}, nil
	})

	sys := New(factory, Options{ThroughputPerRun: 16})
	defer sys.Shutdown(context.Background())

	ref, err := sys.Spawn(SpawnParams{ActorID: "a1", ActorType: "Stoppable"})
	require.NoError(t, err)

	require.NoError(t, sys.Stop(ref.ID()))

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for post-stop to run")
	}

	require.False(t, sys.Has("a1"), "expected actor to be removed from the system after stop")
}

type stopRecorderActor struct {
	stopped chan struct{}
}

func (a *stopRecorderActor) PreStart(ctx context.Context, actx actor.Context) error { return nil }
func (a *stopRecorderActor) Receive(ctx context.Context, env *proto.Envelope, actx actor.Context) error {
	return nil
}
func (a *stopRecorderActor) PostStop(ctx context.Context, actx actor.Context) error {
	close(a.stopped)
	return nil
}

func TestSpawnDuplicateIDFails(t *testing.T) {
	factory := NewTableFactory()
	factory.Register("Noop", func(map[string]interface{}) (actor.Actor, error) {
		return &stopRecorderActor{stopped: make(chan struct{})}, nil
	})

	sys := New(factory, Options{ThroughputPerRun: 16})
	defer sys.Shutdown(context.Background())

	_, err := sys.Spawn(SpawnParams{ActorID: "a1", ActorType: "Noop"})
	require.NoError(t, err)
	_, err = sys.Spawn(SpawnParams{ActorID: "a1", ActorType: "Noop"})
	require.Error(t, err, "expected duplicate spawn to fail")
}

func TestSpawnUnsupportedTypeFails(t *testing.T) {
	sys := New(NewTableFactory(), Options{ThroughputPerRun: 16})
	defer sys.Shutdown(context.Background())

	_, err := sys.Spawn(SpawnParams{ActorID: "a1", ActorType: "DoesNotExist"})
	require.Error(t, err, "expected spawn of unregistered type to fail")
}

func TestHealthSnapshotReflectsRunningState(t *testing.T) {
	factory := NewTableFactory()
	factory.Register("Noop", func(map[string]interface{}) (actor.Actor, error) {
		return &stopRecorderActor{stopped: make(chan struct{})}, nil
	})

	sys := New(factory, Options{ThroughputPerRun: 16})
	defer sys.Shutdown(context.Background())

	ref, err := sys.Spawn(SpawnParams{ActorID: "a1", ActorType: "Noop"})
	require.NoError(t, err)

	snap, err := sys.Health(ref.ID())
	require.NoError(t, err)
	require.Equal(t, actor.StateRunning, snap.State)
}
