// Package system implements the process-local ActorSystem: it owns the
// set of actors hosted in one process, spawns and stops them, and runs
// their receives through the dispatcher with at-most-one-concurrent-run
// per actor and a throughput-bounded worker pool.
package system

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/najoast/actorsys/actor"
	"github.com/najoast/actorsys/dispatcher"
	"github.com/najoast/actorsys/events"
	"github.com/najoast/actorsys/mailbox"
	"github.com/najoast/actorsys/proto"
)

// Options configures a System.
type Options struct {
	Workers          int
	QueueDepth       int
	ThroughputPerRun int
	MailboxCapacity  int // 0 means unbounded
	Logger           *slog.Logger
	Bus              *events.Bus
	DefaultStrategy  *actor.Strategy
}

// DefaultOptions returns sensible defaults: unbounded mailboxes, 16
// envelopes per scheduling quantum, and a worker pool sized by the
// dispatcher's own CPU-based default.
func DefaultOptions() Options {
	return Options{
		ThroughputPerRun: 16,
		DefaultStrategy:  actor.DefaultStrategy(),
	}
}

// entry is the Local Actor Runtime Entry described in the data model.
type entry struct {
	id        string
	actorType string
	parentID  string
	params    map[string]interface{}

	mbox     *mailbox.Mailbox
	instance actor.Actor
	strategy *actor.Strategy
	ref      *actor.LocalRef

	state     atomic.Int32
	scheduled atomic.Bool

	createdAt     time.Time
	lastMessageAt atomic.Int64 // unix nano

	stopped  chan struct{}
	stopOnce sync.Once
	ws       actor.WebSocketSender

	logger *slog.Logger
}

func (e *entry) State() actor.State { return actor.State(e.state.Load()) }

// setState advances the entry's lifecycle state. It runs the target edge
// through actor.Transition so a supervision bug that tries to skip a step
// (e.g. STARTING straight to STOPPED) gets logged instead of silently
// corrupting the health snapshot; self-transitions (handleEnvelope marking
// an already-RUNNING actor RUNNING again) are not edges in validTransitions
// and are applied without going through Transition.
func (e *entry) setState(s actor.State) {
	from := e.State()
	if from != s {
		if _, err := actor.Transition(from, s); err != nil && e.logger != nil {
			e.logger.Warn("invalid actor lifecycle transition", "actor_id", e.id, "from", from, "to", s)
		}
	}
	e.state.Store(int32(s))
}

// System is the process-local ActorSystem.
type System struct {
	opts    Options
	factory Factory
	disp    *dispatcher.Dispatcher
	bus     *events.Bus
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	actors map[string]*entry

	// senders maps an envelope's MessageID to the sending actor id, so a
	// Tell that crosses the runtime HTTP façade can still populate
	// Context.Sender() for the receiver. Set via RecordSender before the
	// envelope is enqueued and consumed once by handleEnvelope.
	senders sync.Map

	wg sync.WaitGroup
}

// RecordSender associates an inbound envelope's MessageID with the id of
// the actor that sent it, so the receiving actor's Context.Sender() can
// resolve it. Callers (the runtime façade, the bus consumer) invoke this
// immediately before enqueuing a Tell that carries a senderActorId.
func (s *System) RecordSender(messageID, senderActorID string) {
	if messageID == "" || senderActorID == "" {
		return
	}
	s.senders.Store(messageID, senderActorID)
}

// New creates a System backed by factory for instantiating actors.
func New(factory Factory, opts Options) *System {
	if opts.ThroughputPerRun <= 0 {
		opts.ThroughputPerRun = 16
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.DefaultStrategy == nil {
		opts.DefaultStrategy = actor.DefaultStrategy()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &System{
		opts:    opts,
		factory: factory,
		disp:    dispatcher.New(opts.Workers, opts.QueueDepth),
		bus:     opts.Bus,
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		actors:  make(map[string]*entry),
	}
	s.disp.Start()
	return s
}

// Bus returns the event bus this system publishes lifecycle events on.
func (s *System) Bus() *events.Bus { return s.bus }

// SpawnParams carries the information needed to create an actor.
type SpawnParams struct {
	ActorID   string
	ActorType string
	Params    map[string]interface{}
	ParentID  string
	Strategy  *actor.Strategy
	WebSocket actor.WebSocketSender
}

// Spawn instantiates actorType via the factory, runs PreStart, and
// registers the resulting actor under ActorID (or a generated id if
// empty isn't allowed here — callers supply the id; registries allocate
// one upstream via google/uuid before calling Spawn).
func (s *System) Spawn(p SpawnParams) (actor.Ref, error) {
	select {
	case <-s.ctx.Done():
		return nil, fmt.Errorf("system: shutting down")
	default:
	}

	if p.ActorID == "" {
		return nil, fmt.Errorf("system: actor id is required")
	}
	if !s.factory.Supports(p.ActorType) {
		return nil, fmt.Errorf("system: unsupported actor type %q", p.ActorType)
	}

	instance, err := s.factory.Create(p.ActorType, p.Params)
	if err != nil {
		return nil, fmt.Errorf("system: create %q: %w", p.ActorType, err)
	}

	strategy := p.Strategy
	if strategy == nil {
		strategy = s.opts.DefaultStrategy
	}

	e := &entry{
		id:        p.ActorID,
		actorType: p.ActorType,
		parentID:  p.ParentID,
		params:    p.Params,
		mbox:      mailbox.NewBounded(p.ActorID, s.opts.MailboxCapacity, deadLetterLogger{s.logger}),
		instance:  instance,
		strategy:  strategy,
		createdAt: time.Now(),
		stopped:   make(chan struct{}),
		ws:        p.WebSocket,
		logger:    s.logger,
	}
	e.setState(actor.StateCreated)

	s.mu.Lock()
	if _, exists := s.actors[p.ActorID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("system: actor %s already exists", p.ActorID)
	}
	s.actors[p.ActorID] = e
	s.mu.Unlock()

	e.ref = actor.NewLocalRef(p.ActorID, e.mbox, func() { s.wake(e) }, e.State, func() error { return s.Stop(p.ActorID) })

	e.setState(actor.StateStarting)
	s.wg.Add(1)
	runErr := make(chan error, 1)
	s.disp.Submit(func() {
		defer s.wg.Done()
		ctx := s.buildContext(e, nil, false, "", "")
		runErr <- instance.PreStart(s.ctx, ctx)
	})

	if err := <-runErr; err != nil {
		e.setState(actor.StateFailed)
		s.bus.Publish(events.Event{Type: events.ActorFailed, ActorID: p.ActorID, ServiceID: p.ActorType, Err: err})
		s.removeEntry(p.ActorID)
		return nil, fmt.Errorf("system: pre-start %s: %w", p.ActorID, err)
	}

	e.setState(actor.StateRunning)
	s.bus.Publish(events.Event{Type: events.ActorStarted, ActorID: p.ActorID})
	return e.ref, nil
}

// Get retrieves an actor's Ref by id.
func (s *System) Get(id string) (actor.Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.actors[id]
	if !ok {
		return nil, false
	}
	return e.ref, true
}

// Has reports whether id is currently hosted.
func (s *System) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// AllIDs returns every locally hosted actor id.
func (s *System) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.actors))
	for id := range s.actors {
		ids = append(ids, id)
	}
	return ids
}

// HealthSnapshot is the actor health view exposed by the runtime façade.
type HealthSnapshot struct {
	ActorID       string
	State         actor.State
	LastMessageAt time.Time
	QueueSize     int
}

// Health returns a point-in-time health snapshot for id.
func (s *System) Health(id string) (HealthSnapshot, error) {
	s.mu.RLock()
	e, ok := s.actors[id]
	s.mu.RUnlock()
	if !ok {
		return HealthSnapshot{}, fmt.Errorf("system: actor %s not found", id)
	}

	var lastMsg time.Time
	if nanos := e.lastMessageAt.Load(); nanos != 0 {
		lastMsg = time.Unix(0, nanos)
	}
	return HealthSnapshot{
		ActorID:       id,
		State:         e.State(),
		LastMessageAt: lastMsg,
		QueueSize:     e.mbox.Size(),
	}, nil
}

// wake is called by a LocalRef after a successful enqueue; it schedules
// a dispatcher run if one is not already in flight for this actor.
func (s *System) wake(e *entry) {
	if !e.scheduled.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	s.disp.Submit(func() { s.runActor(e) })
}

// runActor drains up to ThroughputPerRun envelopes, then decides whether
// to reschedule itself (more work pending) or clear the scheduled flag
// and stop (mailbox empty).
func (s *System) runActor(e *entry) {
	defer s.wg.Done()

	for processed := 0; processed < s.opts.ThroughputPerRun; processed++ {
		if e.State() == actor.StateStopping || e.State() == actor.StateStopped {
			e.mbox.Clear("stopped")
			break
		}

		env := e.mbox.Dequeue()
		if env == nil {
			break
		}
		s.handleEnvelope(e, env)
	}

	if e.mbox.IsEmpty() {
		e.scheduled.Store(false)
		if e.mbox.IsEmpty() {
			return
		}
		if !e.scheduled.CompareAndSwap(false, true) {
			return
		}
	}

	s.wg.Add(1)
	s.disp.Submit(func() { s.runActor(e) })
}

func (s *System) handleEnvelope(e *entry, env *proto.Envelope) {
	e.setState(actor.StateRunning)
	e.lastMessageAt.Store(time.Now().UnixNano())

	var sender actor.Ref
	hasSender := false
	if senderID, ok := s.senders.LoadAndDelete(env.MessageID); ok {
		if ref, found := s.Get(senderID.(string)); found {
			sender = ref
			hasSender = true
		}
	}

	ctx := s.buildContext(e, sender, hasSender, env.CorrelationID, env.MessageID)
	err := e.instance.Receive(s.ctx, env, ctx)
	if e.State() != actor.StateRunning {
		return
	}
	if err == nil {
		return
	}

	directive := e.strategy.Decide(e.id, err)
	s.logger.Warn("actor receive failed", "actor_id", e.id, "directive", directive.String(), "error", err)
	s.bus.Publish(events.Event{Type: events.ActorFailed, ActorID: e.id, Err: err})

	switch directive {
	case actor.Resume:
		e.setState(actor.StateRunning)
	case actor.Restart:
		s.restartEntry(e, err, env)
	case actor.Stop, actor.Escalate:
		s.applyStop(e, directive == actor.Escalate && e.strategy.Scope == actor.AllForOne)
	}
}

// restartEntry performs a supervised RESTART: pre-restart (or post-stop
// default) on the failing instance, a fresh instance from the factory,
// then post-restart (or pre-start default). The failing envelope is
// never redelivered.
func (s *System) restartEntry(e *entry, cause error, env *proto.Envelope) {
	e.setState(actor.StateRestarting)
	ctx := s.buildContext(e, nil, false, "", "")

	if r, ok := e.instance.(actor.Restartable); ok {
		if err := r.PreRestart(s.ctx, cause, env, ctx); err != nil {
			s.logger.Warn("pre-restart failed", "actor_id", e.id, "error", err)
		}
	} else if err := e.instance.PostStop(s.ctx, ctx); err != nil {
		s.logger.Warn("post-stop (restart default) failed", "actor_id", e.id, "error", err)
	}

	fresh, err := s.factory.Create(e.actorType, e.params)
	if err != nil {
		s.logger.Error("restart: factory create failed", "actor_id", e.id, "error", err)
		s.applyStop(e, false)
		return
	}
	e.instance = fresh

	if r, ok := fresh.(actor.Restartable); ok {
		if err := r.PostRestart(s.ctx, cause, ctx); err != nil {
			s.logger.Warn("post-restart failed", "actor_id", e.id, "error", err)
		}
	} else if err := fresh.PreStart(s.ctx, ctx); err != nil {
		s.logger.Warn("pre-start (restart default) failed", "actor_id", e.id, "error", err)
	}

	e.setState(actor.StateRunning)
	s.bus.Publish(events.Event{Type: events.ActorRestarted, ActorID: e.id})

	if e.strategy.Scope == actor.AllForOne {
		s.forEachSibling(e, func(sibling *entry) {
			if sibling.id == e.id {
				return
			}
			s.restartEntry(sibling, cause, nil)
		})
	}
}

// forEachSibling invokes fn for every locally hosted actor sharing e's
// ParentID, implementing the AllForOne scope.
func (s *System) forEachSibling(e *entry, fn func(*entry)) {
	if e.parentID == "" {
		return
	}
	s.mu.RLock()
	siblings := make([]*entry, 0)
	for _, other := range s.actors {
		if other.parentID == e.parentID {
			siblings = append(siblings, other)
		}
	}
	s.mu.RUnlock()

	for _, sibling := range siblings {
		fn(sibling)
	}
}

// Stop cooperatively stops actor id: the in-flight receive (if any) runs
// to completion, remaining envelopes are dead-lettered, and PostStop
// runs before the actor is removed.
func (s *System) Stop(id string) error {
	s.mu.RLock()
	e, ok := s.actors[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("system: actor %s not found", id)
	}
	s.applyStop(e, false)
	return nil
}

func (s *System) applyStop(e *entry, stopSiblings bool) {
	e.stopOnce.Do(func() {
		e.setState(actor.StateStopping)
		e.mbox.Stop()
		e.mbox.Clear("stopped")

		ctx := s.buildContext(e, nil, false, "", "")
		if err := e.instance.PostStop(s.ctx, ctx); err != nil {
			s.logger.Warn("post-stop failed", "actor_id", e.id, "error", err)
		}

		e.setState(actor.StateStopped)
		close(e.stopped)
		s.removeEntry(e.id)
		s.bus.Publish(events.Event{Type: events.ActorStopped, ActorID: e.id})
		e.ref.NotifyStopped()
	})

	if stopSiblings {
		s.forEachSibling(e, func(sibling *entry) {
			if sibling.id != e.id {
				s.applyStop(sibling, false)
			}
		})
	}
}

// Restart performs an administrative (non-failure-triggered) restart.
func (s *System) Restart(id string, cause error) error {
	s.mu.RLock()
	e, ok := s.actors[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("system: actor %s not found", id)
	}
	if cause == nil {
		cause = fmt.Errorf("administrative restart")
	}
	s.restartEntry(e, cause, nil)
	return nil
}

func (s *System) removeEntry(id string) {
	s.mu.Lock()
	delete(s.actors, id)
	s.mu.Unlock()
}

func (s *System) buildContext(e *entry, sender actor.Ref, hasSender bool, correlationID, requestID string) actor.Context {
	return actor.NewBaseContext(
		e.ref,
		sender,
		hasSender,
		correlationID,
		requestID,
		s.logger.With("actor_id", e.id),
		s.bus,
		func(id string) (actor.Ref, bool) { return s.Get(id) },
		e.ws,
	)
}

// Shutdown stops every locally hosted actor concurrently and waits for
// the dispatcher to drain, up to ctx's deadline.
func (s *System) Shutdown(ctx context.Context) error {
	s.cancel()

	ids := s.AllIDs()
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = s.Stop(id)
		}(id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.disp.Stop()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deadLetterLogger adapts *slog.Logger to mailbox.DeadLetterSink.
type deadLetterLogger struct {
	logger *slog.Logger
}

func (d deadLetterLogger) DeadLetter(actorID string, env *proto.Envelope, reason string) {
	msgID := ""
	if env != nil {
		msgID = env.MessageID
	}
	d.logger.Info("dead letter", "actor_id", actorID, "message_id", msgID, "reason", reason)
}
