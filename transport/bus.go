package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/najoast/actorsys/proto"
)

// TopicStrategy controls how addresses map to bus topics/queues, per the
// component design's two supported strategies.
type TopicStrategy int

const (
	// TopicPerActor routes each actor to its own topic, named
	// "actor-<actorID>". Gives strict per-actor ordering at the cost of
	// one queue per live actor.
	TopicPerActor TopicStrategy = iota

	// TopicShared routes every message for a given actor type onto one
	// shared topic; consumers filter by targetActorId. Cheaper at scale,
	// weaker ordering guarantees across actors sharing the topic.
	TopicShared
)

// BackendPublisher is the minimal send-side contract a concrete message
// broker client satisfies (SQS, RabbitMQ, ...).
type BackendPublisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

// BackendConsumer is the receive-side contract; both broker backends
// also implement it so a hosting service can subscribe to its own
// actors' topics.
type BackendConsumer interface {
	Consume(ctx context.Context, topic string, handle func([]byte) error) error
}

// DeliveryHandler is invoked for each inbound bus message once decoded.
type DeliveryHandler func(targetActorID, senderActorID string, env *proto.Envelope) error

// busMessage is the envelope placed on the wire for bus delivery; it
// carries the routing fields a streaming transport cannot express any
// other way (the broker message body is opaque bytes).
type busMessage struct {
	TargetActorID string          `json:"targetActorId"`
	SenderActorID string          `json:"senderActorId,omitempty"`
	Envelope      *proto.Envelope `json:"envelope"`
}

// BusTransport implements Transport over a streaming message bus. It
// never supports Ask (request/reply has no natural mapping onto a
// one-way queue) and Exists/State are best-effort, since the bus itself
// has no notion of actor liveness; callers needing authoritative status
// should consult the registry instead.
type BusTransport struct {
	publisher BackendPublisher
	strategy  TopicStrategy
}

// NewBusTransport wraps a concrete backend publisher.
func NewBusTransport(publisher BackendPublisher, strategy TopicStrategy) *BusTransport {
	return &BusTransport{publisher: publisher, strategy: strategy}
}

// topicFor computes the topic name for an actor id and (for the shared
// strategy) its actor type.
func (t *BusTransport) topicFor(actorID, actorType string) string {
	if t.strategy == TopicPerActor {
		return "actor-" + actorID
	}
	return "actortype-" + actorType
}

// Address builds the composite address Send/Exists/Stop expect: the
// resolved topic joined with the target actor id, since the Transport
// interface's address parameter is the only place a target id can ride
// for a fire-and-forget bus delivery.
func (t *BusTransport) Address(actorID, actorType string) string {
	return JoinAddress(t.topicFor(actorID, actorType), actorID)
}

// Send publishes env onto the bus. address must have been built by
// Address so the topic and target actor id can both be recovered.
func (t *BusTransport) Send(ctx context.Context, address string, env *proto.Envelope, senderActorID string) error {
	topic, actorID := splitAddress(address)
	msg := busMessage{TargetActorID: actorID, Envelope: env, SenderActorID: senderActorID}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal bus message: %w", err)
	}
	if err := t.publisher.Publish(ctx, topic, body); err != nil {
		return fmt.Errorf("transport: publish to %s: %w", topic, err)
	}
	return nil
}

// Ask always fails: the streaming bus is fire-and-forget by design.
func (t *BusTransport) Ask(ctx context.Context, address string, env *proto.Envelope, timeout time.Duration) (*proto.Envelope, error) {
	return nil, ErrAskUnsupported
}

// Exists cannot be determined from the bus side; the registry is
// authoritative, so this always reports true and leaves rejection to
// whichever consumer (or dead-letter path) receives the message.
func (t *BusTransport) Exists(ctx context.Context, address string) (bool, error) {
	return true, nil
}

// Stop has no bus-native representation; callers needing to stop a
// remote actor should issue it through the HTTP control transport.
func (t *BusTransport) Stop(ctx context.Context, address string) error {
	return fmt.Errorf("transport: stop not supported over bus, use HTTP control transport")
}

// State always reports "UNKNOWN": liveness is the registry's job.
func (t *BusTransport) State(ctx context.Context, address string) (string, error) {
	return "UNKNOWN", nil
}

// Subscribe consumes topic via a BackendConsumer, decoding each body as
// a busMessage and invoking handle. Blocks until ctx is cancelled or the
// backend returns a terminal error.
func (t *BusTransport) Subscribe(ctx context.Context, consumer BackendConsumer, topic string, handle DeliveryHandler) error {
	return consumer.Consume(ctx, topic, func(body []byte) error {
		var msg busMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("transport: decode bus message: %w", err)
		}
		return handle(msg.TargetActorID, msg.SenderActorID, msg.Envelope)
	})
}
