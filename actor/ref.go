package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/najoast/actorsys/mailbox"
	"github.com/najoast/actorsys/proto"
)

// ErrAskUnsupported is returned by a Ref backed by a transport that does
// not support the ask pattern (the streaming-bus transport, per the
// component design's explicit "ask not supported" rule).
var ErrAskUnsupported = errors.New("actor: ask not supported by this ref")

// Transport is the minimal surface a remote Ref needs; it is satisfied
// by transport.Transport without actor importing that package, avoiding
// an import cycle between actor and transport.
type Transport interface {
	Send(ctx context.Context, address string, env *proto.Envelope, sender string) error
	Ask(ctx context.Context, address string, env *proto.Envelope, timeout time.Duration) (*proto.Envelope, error)
	Exists(ctx context.Context, address string) (bool, error)
	Stop(ctx context.Context, address string) error
}

// Ref is an opaque handle used to address an actor without exposing its
// internals or location. It comes in two flavors: Local (direct mailbox
// enqueue) and Remote (transport-backed).
type Ref interface {
	ID() string
	Tell(env *proto.Envelope, sender Ref) error
	Ask(ctx context.Context, env *proto.Envelope, timeout time.Duration) (*proto.Envelope, error)
	IsActive() bool
	State() State
	Stop() error
	Watch(w Watcher)
	Unwatch(w Watcher)
}

// Watcher is notified when a local actor it watches stops (DeathWatch).
// Cross-service DeathWatch is out of scope; watching only ever observes
// a local actor.
type Watcher interface {
	ActorStopped(id string)
}

// LocalRef is the Ref implementation for an actor hosted in this process.
type LocalRef struct {
	id      string
	mbox    *mailbox.Mailbox
	wake    func()
	state   func() State
	stop    func() error
	pending sync.Map // map[string]chan *proto.Envelope, keyed by the asked envelope's MessageID, for local ask

	mu       sync.Mutex
	watchers map[Watcher]struct{}
}

// NewLocalRef builds a Ref over a local mailbox. wake is invoked after
// every successful enqueue so the dispatcher can schedule a run; state
// and stop delegate to the owning ActorSystem's bookkeeping.
func NewLocalRef(id string, mbox *mailbox.Mailbox, wake func(), state func() State, stop func() error) *LocalRef {
	return &LocalRef{
		id:       id,
		mbox:     mbox,
		wake:     wake,
		state:    state,
		stop:     stop,
		watchers: make(map[Watcher]struct{}),
	}
}

func (r *LocalRef) ID() string { return r.id }

// Tell enqueues env into the local mailbox and wakes the dispatcher.
func (r *LocalRef) Tell(env *proto.Envelope, sender Ref) error {
	if err := r.mbox.Enqueue(env); err != nil {
		return fmt.Errorf("tell %s: %w", r.id, err)
	}
	if r.wake != nil {
		r.wake()
	}
	return nil
}

// Ask sends env and blocks for a reply correlated by MessageID, emulated
// locally via a registered channel; ask over a LocalRef is a convenience
// for in-process callers and is not part of the cross-service contract.
func (r *LocalRef) Ask(ctx context.Context, env *proto.Envelope, timeout time.Duration) (*proto.Envelope, error) {
	ch := make(chan *proto.Envelope, 1)
	r.pending.Store(env.MessageID, ch)
	defer r.pending.Delete(env.MessageID)

	if err := r.Tell(env, nil); err != nil {
		return nil, err
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case reply := <-ch:
		return reply, nil
	case <-tctx.Done():
		return nil, fmt.Errorf("ask %s: %w", r.id, tctx.Err())
	}
}

// Reply delivers a correlated response to a pending local Ask call, if
// one is waiting under correlationID, which is the MessageID of the
// envelope that Ask sent.
func (r *LocalRef) Reply(correlationID string, reply *proto.Envelope) bool {
	v, ok := r.pending.Load(correlationID)
	if !ok {
		return false
	}
	ch := v.(chan *proto.Envelope)
	select {
	case ch <- reply:
		return true
	default:
		return false
	}
}

func (r *LocalRef) IsActive() bool {
	s := r.State()
	return s == StateRunning || s == StateStarting || s == StateRestarting
}

func (r *LocalRef) State() State {
	if r.state == nil {
		return StateStopped
	}
	return r.state()
}

func (r *LocalRef) Stop() error {
	if r.stop == nil {
		return nil
	}
	return r.stop()
}

// notifyStopped runs every registered watcher synchronously during
// post-stop, per the local DeathWatch contract.
func (r *LocalRef) notifyStopped() {
	r.mu.Lock()
	watchers := make([]Watcher, 0, len(r.watchers))
	for w := range r.watchers {
		watchers = append(watchers, w)
	}
	r.mu.Unlock()

	for _, w := range watchers {
		w.ActorStopped(r.id)
	}
}

func (r *LocalRef) Watch(w Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers[w] = struct{}{}
}

func (r *LocalRef) Unwatch(w Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, w)
}

// NotifyStopped is the exported hook the owning ActorSystem calls once
// PostStop has completed.
func (r *LocalRef) NotifyStopped() { r.notifyStopped() }

// RemoteRef is the Ref implementation for an actor hosted by another
// service, reached through a Transport (HTTP or streaming bus).
type RemoteRef struct {
	id        string
	address   string
	transport Transport
}

// NewRemoteRef builds a Ref that delegates to transport for an actor at
// address (a hosting-service URL for HTTP, or just the actor id for the
// bus transport, per the transport's own addressing scheme).
func NewRemoteRef(id, address string, transport Transport) *RemoteRef {
	return &RemoteRef{id: id, address: address, transport: transport}
}

func (r *RemoteRef) ID() string { return r.id }

func (r *RemoteRef) Tell(env *proto.Envelope, sender Ref) error {
	senderID := ""
	if sender != nil {
		senderID = sender.ID()
	}
	return r.transport.Send(context.Background(), r.address, env, senderID)
}

func (r *RemoteRef) Ask(ctx context.Context, env *proto.Envelope, timeout time.Duration) (*proto.Envelope, error) {
	return r.transport.Ask(ctx, r.address, env, timeout)
}

func (r *RemoteRef) IsActive() bool {
	ok, err := r.transport.Exists(context.Background(), r.address)
	return err == nil && ok
}

func (r *RemoteRef) State() State {
	if r.IsActive() {
		return StateRunning
	}
	return StateStopped
}

func (r *RemoteRef) Stop() error {
	return r.transport.Stop(context.Background(), r.address)
}

// Watch/Unwatch are no-ops for RemoteRef: cross-service DeathWatch is out
// of scope.
func (r *RemoteRef) Watch(Watcher)   {}
func (r *RemoteRef) Unwatch(Watcher) {}
