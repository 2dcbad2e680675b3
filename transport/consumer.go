package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/najoast/actorsys/proto"
)

// Dispatch delivers one bus-consumed Tell Command to whatever local
// component enqueues it into the target actor's mailbox (normally
// system.System, reached indirectly so this package does not import
// system and create a cycle).
type Dispatch func(targetActorID, senderActorID string, env *proto.Envelope)

// Consumer is the hosting-service side of the streaming-bus transport:
// it subscribes to the topic(s) of the actors this service owns and
// hands each delivered Tell Command to Dispatch, per the component
// design's "consumer side ... subscribes to the topic(s) of actors it
// owns" rule. One goroutine runs per subscribed topic; for the
// per-actor strategy that means one goroutine per locally hosted actor,
// for the shared strategy one goroutine per actor type.
type Consumer struct {
	bus      *BusTransport
	backend  BackendConsumer
	dispatch Dispatch
	logger   *slog.Logger

	mu      sync.Mutex
	started map[string]struct{}
}

// NewConsumer builds a Consumer that pulls from backend via bus's topic
// strategy and delivers decoded Tell Commands to dispatch.
func NewConsumer(bus *BusTransport, backend BackendConsumer, dispatch Dispatch, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		bus:      bus,
		backend:  backend,
		dispatch: dispatch,
		logger:   logger,
		started:  make(map[string]struct{}),
	}
}

// EnsureSubscribed starts consuming the topic that owns actorID/actorType
// if no consumer goroutine is already running for it. Safe to call once
// per spawn: the per-actor strategy fans out to one topic per call, the
// shared strategy collapses repeated calls for the same actor type onto
// the single goroutine already running.
func (c *Consumer) EnsureSubscribed(ctx context.Context, actorID, actorType string) {
	topic := c.bus.topicFor(actorID, actorType)

	c.mu.Lock()
	if _, ok := c.started[topic]; ok {
		c.mu.Unlock()
		return
	}
	c.started[topic] = struct{}{}
	c.mu.Unlock()

	go func() {
		err := c.bus.Subscribe(ctx, c.backend, topic, func(targetActorID, senderActorID string, env *proto.Envelope) error {
			c.dispatch(targetActorID, senderActorID, env)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			c.logger.Error("bus consumer exited", "topic", topic, "error", err)
		}
		c.mu.Lock()
		delete(c.started, topic)
		c.mu.Unlock()
	}()
}
