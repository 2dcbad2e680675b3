package actor

import (
	"log/slog"

	"github.com/najoast/actorsys/events"
	"github.com/najoast/actorsys/proto"
)

// WebSocketSender is an abstract external sink an actor can use to push a
// message back to an interested external observer (e.g. a connected
// browser dashboard). It is not part of the core runtime; a hosting
// service wires a concrete implementation in when one is available.
type WebSocketSender interface {
	Send(actorID string, payload []byte) error
}

// Context is passed as an explicit argument to every Actor method. The
// context is not injected as a struct field: this project standardizes
// on the separate-argument convention.
type Context interface {
	// Self returns this actor's own ref.
	Self() Ref

	// Sender returns the sender of the envelope currently being
	// processed, if one was recorded; ok is false otherwise.
	Sender() (ref Ref, ok bool)

	// CorrelationID returns the correlation id carried by the envelope
	// currently being processed.
	CorrelationID() string

	// SetCorrelationID overrides the correlation id used for any replies
	// sent for the remainder of this Receive call.
	SetCorrelationID(id string)

	// Logger returns a structured logger scoped to this actor.
	Logger() *slog.Logger

	// PublishEvent emits a lifecycle event on the platform event bus.
	PublishEvent(ev events.Event)

	// ActorFor looks up another actor hosted in the same process.
	ActorFor(id string) (Ref, bool)

	// WebSocket returns the configured external push sink, if any.
	WebSocket() (WebSocketSender, bool)

	// Reply delivers reply to a caller blocked in a local Ask against
	// this actor, correlated by the message id of the envelope
	// currently being processed. Returns false if no local caller is
	// waiting (e.g. the request arrived as a plain Tell, or crossed the
	// HTTP ask transport rather than a local Ask).
	Reply(reply *proto.Envelope) bool
}

// BaseContext is a straightforward Context implementation a local actor
// system constructs per-envelope.
type BaseContext struct {
	self          Ref
	sender        Ref
	hasSender     bool
	correlationID string
	requestID     string
	logger        *slog.Logger
	bus           *events.Bus
	lookup        func(id string) (Ref, bool)
	ws            WebSocketSender
}

// NewBaseContext builds a Context for one Receive invocation. requestID
// is the message id of the envelope being processed, used by Reply to
// correlate with a pending local Ask on self.
func NewBaseContext(self Ref, sender Ref, hasSender bool, correlationID, requestID string, logger *slog.Logger, bus *events.Bus, lookup func(string) (Ref, bool), ws WebSocketSender) *BaseContext {
	return &BaseContext{
		self:          self,
		sender:        sender,
		hasSender:     hasSender,
		correlationID: correlationID,
		requestID:     requestID,
		logger:        logger,
		bus:           bus,
		lookup:        lookup,
		ws:            ws,
	}
}

func (c *BaseContext) Self() Ref { return c.self }

func (c *BaseContext) Sender() (Ref, bool) {
	return c.sender, c.hasSender
}

func (c *BaseContext) CorrelationID() string { return c.correlationID }

func (c *BaseContext) SetCorrelationID(id string) { c.correlationID = id }

func (c *BaseContext) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

func (c *BaseContext) PublishEvent(ev events.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

func (c *BaseContext) ActorFor(id string) (Ref, bool) {
	if c.lookup == nil {
		return nil, false
	}
	return c.lookup(id)
}

func (c *BaseContext) WebSocket() (WebSocketSender, bool) {
	return c.ws, c.ws != nil
}

func (c *BaseContext) Reply(reply *proto.Envelope) bool {
	local, ok := c.self.(*LocalRef)
	if !ok || c.requestID == "" {
		return false
	}
	return local.Reply(c.requestID, reply)
}
