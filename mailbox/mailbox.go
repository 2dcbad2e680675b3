// Package mailbox implements the per-actor FIFO message queue described in
// the actor runtime: a standalone, thread-safe buffer that the dispatcher
// drains and that diverts envelopes to a dead-letter sink once an actor
// has stopped accepting work.
package mailbox

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/najoast/actorsys/proto"
)

// ErrStopped is returned by Enqueue once the mailbox has been closed.
var ErrStopped = errors.New("mailbox: stopped")

// ErrFull is returned by Enqueue on a bounded mailbox that has reached
// capacity.
var ErrFull = errors.New("mailbox: full")

// DeadLetterSink receives envelopes that could not be delivered.
type DeadLetterSink interface {
	DeadLetter(actorID string, env *proto.Envelope, reason string)
}

// NopSink discards dead letters; used when no sink is configured.
type NopSink struct{}

// DeadLetter implements DeadLetterSink.
func (NopSink) DeadLetter(string, *proto.Envelope, string) {}

// Mailbox is a FIFO queue of envelopes for a single actor. It is safe for
// concurrent use by multiple producers and a single dispatcher consumer.
type Mailbox struct {
	actorID  string
	capacity int // 0 means unbounded
	sink     DeadLetterSink

	mu      sync.Mutex
	items   []*proto.Envelope
	stopped bool

	enqueued uint64
	dequeued uint64

	// signal is used by the dispatcher to wake up when work arrives.
	signal chan struct{}
}

// New creates an unbounded mailbox for actorID.
func New(actorID string, sink DeadLetterSink) *Mailbox {
	return NewBounded(actorID, 0, sink)
}

// NewBounded creates a mailbox that rejects enqueues once it holds
// capacity envelopes. capacity <= 0 means unbounded.
func NewBounded(actorID string, capacity int, sink DeadLetterSink) *Mailbox {
	if sink == nil {
		sink = NopSink{}
	}
	return &Mailbox{
		actorID:  actorID,
		capacity: capacity,
		sink:     sink,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends env to the tail of the queue. It fails once the mailbox
// is stopped (diverting env to the dead-letter sink) or, for a bounded
// mailbox, once capacity is reached.
func (m *Mailbox) Enqueue(env *proto.Envelope) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		m.sink.DeadLetter(m.actorID, env, "stopped")
		return ErrStopped
	}
	if m.capacity > 0 && len(m.items) >= m.capacity {
		m.mu.Unlock()
		m.sink.DeadLetter(m.actorID, env, "full")
		return ErrFull
	}
	m.items = append(m.items, env)
	atomic.AddUint64(&m.enqueued, 1)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue removes and returns the head envelope, or nil if the mailbox is
// empty.
func (m *Mailbox) Dequeue() *proto.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return nil
	}
	env := m.items[0]
	m.items[0] = nil
	m.items = m.items[1:]
	atomic.AddUint64(&m.dequeued, 1)
	return env
}

// Size returns the number of envelopes currently queued.
func (m *Mailbox) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// IsEmpty reports whether the mailbox currently holds no envelopes.
func (m *Mailbox) IsEmpty() bool {
	return m.Size() == 0
}

// Clear discards all currently queued envelopes, routing each to the
// dead-letter sink with the given reason.
func (m *Mailbox) Clear(reason string) {
	m.mu.Lock()
	items := m.items
	m.items = nil
	m.mu.Unlock()

	for _, env := range items {
		m.sink.DeadLetter(m.actorID, env, reason)
	}
}

// Stop marks the mailbox closed; further Enqueue calls fail and divert to
// the dead-letter sink. Already-queued envelopes remain available to
// Dequeue so the dispatcher can drain them before calling post-stop.
func (m *Mailbox) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

// Signal returns the channel the dispatcher selects on to be woken when
// new work arrives. It is buffered to depth one: a pending signal is
// never lost, but readers must re-check Size since multiple enqueues may
// coalesce into a single wakeup.
func (m *Mailbox) Signal() <-chan struct{} {
	return m.signal
}

// Stats reports lifetime enqueue/dequeue counters for metrics.
type Stats struct {
	Enqueued uint64
	Dequeued uint64
	Queued   int
}

// Stats returns a snapshot of the mailbox's counters.
func (m *Mailbox) Stats() Stats {
	return Stats{
		Enqueued: atomic.LoadUint64(&m.enqueued),
		Dequeued: atomic.LoadUint64(&m.dequeued),
		Queued:   m.Size(),
	}
}
