// Package events implements the platform's internal lifecycle event bus:
// actor lifecycle transitions, supervision outcomes, and service health
// transitions are published here (by the actor system and the gateway's
// health monitor) and fanned out to whatever subscribers are attached.
package events

import (
	"context"
	"sync"
	"time"
)

// Type identifies the kind of lifecycle event.
type Type string

const (
	ActorStarted    Type = "ActorStarted"
	ActorFailed     Type = "ActorFailed"
	ActorRestarted  Type = "ActorRestarted"
	ActorStopped    Type = "ActorStopped"
	ServiceDown     Type = "ServiceDown"
	ServiceRecovered Type = "ServiceRecovered"
)

// Event is one occurrence published on the bus.
type Event struct {
	Type      Type
	ActorID   string
	ServiceID string
	Err       error
	Timestamp time.Time
	Data      map[string]interface{}
}

// Bus is a broadcast channel of lifecycle Events. It never blocks a
// publisher: each subscriber has its own buffered channel, and a full
// subscriber channel silently drops the event rather than stalling the
// actor runtime that published it.
type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	subscribers map[uint64]chan Event
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[uint64]chan Event)}
}

// Publish fans out ev to every current subscriber.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a buffered channel of events; the channel is closed
// and the subscription removed when ctx is done.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 64)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}
