// Package transport implements the two RemoteMessageTransport variants
// described in the component design: a synchronous HTTP control
// transport, and an asynchronous streaming-bus transport backed by
// either SQS or RabbitMQ. Both satisfy the same Transport interface so
// the gateway, the registration client, and remote actor refs can be
// built against one contract.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/najoast/actorsys/proto"
)

// ErrAskUnsupported is returned by transports that cannot carry a
// request/reply exchange (the streaming-bus transport never supports
// ask, per the component design).
var ErrAskUnsupported = errors.New("transport: ask not supported")

// Transport is the minimal surface both the HTTP control transport and
// the streaming-bus transport implement.
type Transport interface {
	// Send delivers env to address as a fire-and-forget Tell.
	Send(ctx context.Context, address string, env *proto.Envelope, senderActorID string) error

	// Ask delivers env to address and waits up to timeout for a reply.
	// Implementations that cannot support this return ErrAskUnsupported.
	Ask(ctx context.Context, address string, env *proto.Envelope, timeout time.Duration) (*proto.Envelope, error)

	// Exists reports whether the actor at address is currently known to
	// be hosted and reachable.
	Exists(ctx context.Context, address string) (bool, error)

	// Stop requests the actor at address be stopped.
	Stop(ctx context.Context, address string) error

	// State returns a coarse liveness string ("ACTIVE", "UNAVAILABLE",
	// ...), used for diagnostics rather than authoritative status (the
	// registry, not the transport, is authoritative).
	State(ctx context.Context, address string) (string, error)
}

// Destination names a remote actor in both addressing schemes at once,
// since the HTTP transport addresses by hosting-service URL while the
// bus transport addresses by topic — a Router choosing between them
// needs both forms, not one opaque string.
type Destination struct {
	// ServiceURL is the hosting service's base URL, used by HTTP.
	ServiceURL string
	// ActorID and ActorType identify the target actor, used to compute
	// the bus topic when a bus transport is configured.
	ActorID   string
	ActorType string
}

// HTTPAddress builds the address HTTPTransport expects.
func (d Destination) HTTPAddress() string {
	return JoinAddress(d.ServiceURL, d.ActorID)
}

// Router picks HTTP vs. bus per the routing policy resolved in the
// design notes: control-plane operations (create/stop/tell issued by
// the gateway) always use HTTP; inter-actor data-plane delivery prefers
// the bus when one is configured, falling back to HTTP otherwise; ask is
// only ever issued over HTTP.
type Router struct {
	HTTP Transport
	Bus  *BusTransport // nil when bus.type=none
}

// NewRouter builds a Router. bus may be nil to disable the data-plane
// bus path entirely.
func NewRouter(http Transport, bus *BusTransport) *Router {
	return &Router{HTTP: http, Bus: bus}
}

// SendDataPlane delivers an inter-actor Tell, preferring the bus and
// falling back to HTTP when no bus is configured.
func (r *Router) SendDataPlane(ctx context.Context, dest Destination, env *proto.Envelope, senderActorID string) error {
	if r.Bus != nil {
		return r.Bus.Send(ctx, r.Bus.Address(dest.ActorID, dest.ActorType), env, senderActorID)
	}
	return r.HTTP.Send(ctx, dest.HTTPAddress(), env, senderActorID)
}

// SendControlPlane always uses HTTP, per the fixed control-plane policy.
func (r *Router) SendControlPlane(ctx context.Context, dest Destination, env *proto.Envelope, senderActorID string) error {
	return r.HTTP.Send(ctx, dest.HTTPAddress(), env, senderActorID)
}

// Ask always uses HTTP: the bus transport never supports it.
func (r *Router) Ask(ctx context.Context, dest Destination, env *proto.Envelope, timeout time.Duration) (*proto.Envelope, error) {
	return r.HTTP.Ask(ctx, dest.HTTPAddress(), env, timeout)
}
