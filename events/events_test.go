package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1 := b.Subscribe(ctx)
	ch2 := b.Subscribe(ctx)

	b.Publish(Event{Type: ActorStarted, ActorID: "a1"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			require.Equal(t, ActorStarted, ev.Type)
			require.Equal(t, "a1", ev.ActorID)
			require.False(t, ev.Timestamp.IsZero(), "expected Publish to stamp a timestamp")
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for fan-out delivery")
		}
	}
}

func TestSubscribeChannelClosesOnContextDone(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)

	cancel()

	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected channel to be closed")
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for subscriber channel to close")
	}
}

func TestPublishDropsRatherThanBlockingOnFullSubscriber(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)

	// fill the subscriber's buffer well past capacity; Publish must never
	// block the caller even though nothing is draining ch.
	for i := 0; i < 200; i++ {
		b.Publish(Event{Type: ActorStarted, ActorID: "a1"})
	}

	select {
	case <-ch:
	default:
		t.Fatalf("expected at least one buffered event to be available")
	}
}

func TestPublishWithNoSubscribersDoesNotPanic(t *testing.T) {
	b := NewBus()
	require.NotPanics(t, func() {
		b.Publish(Event{Type: ServiceDown, ServiceID: "svc-1"})
	})
}
