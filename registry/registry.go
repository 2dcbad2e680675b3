// Package registry implements the central actor registry and service
// registry the control-plane gateway consults: Actor Records keyed by
// actor_id with a secondary index by service_id, and Service Records
// tracking health and heartbeats. Per the component design's "registry
// actor" design note, all writes funnel through a single goroutine
// reading commands off a channel. Lookups are sent through the same
// channel and answered by that goroutine from an immutable snapshot,
// which is swapped atomically after every write.
package registry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/najoast/actorsys/proto"
)

type opKind int

const (
	opCreate opKind = iota
	opDelete
	opMarkAvailability
	opSetStatus
	opLookupByID
	opLookupByService
	opList
)

type command struct {
	kind opKind

	record    proto.ActorRecord
	actorID   string
	serviceID string
	available bool
	status    proto.ActorStatus

	reply chan result
}

type result struct {
	record  proto.ActorRecord
	records []proto.ActorRecord
	ok      bool
	err     error
}

// snapshot is the immutable read-side view swapped in after every write.
type snapshot struct {
	byID        map[string]proto.ActorRecord
	byServiceID map[string][]string // serviceID -> actorIDs
}

func newSnapshot() *snapshot {
	return &snapshot{
		byID:        make(map[string]proto.ActorRecord),
		byServiceID: make(map[string][]string),
	}
}

func (s *snapshot) clone() *snapshot {
	next := newSnapshot()
	for k, v := range s.byID {
		next.byID[k] = v
	}
	for k, v := range s.byServiceID {
		cp := make([]string, len(v))
		copy(cp, v)
		next.byServiceID[k] = cp
	}
	return next
}

// Registry is the single-writer actor registry.
type Registry struct {
	cmds chan command
	view atomic.Value // holds *snapshot
	done chan struct{}
}

// New starts the registry's writer goroutine and returns a handle.
func New() *Registry {
	r := &Registry{
		cmds: make(chan command, 256),
		done: make(chan struct{}),
	}
	r.view.Store(newSnapshot())
	go r.run()
	return r
}

func (r *Registry) run() {
	for cmd := range r.cmds {
		switch cmd.kind {
		case opCreate:
			r.applyCreate(cmd)
		case opDelete:
			r.applyDelete(cmd)
		case opMarkAvailability:
			r.applyMarkAvailability(cmd)
		case opSetStatus:
			r.applySetStatus(cmd)
		case opLookupByID:
			r.applyLookupByID(cmd)
		case opLookupByService:
			r.applyLookupByService(cmd)
		case opList:
			r.applyList(cmd)
		}
	}
	close(r.done)
}

func (r *Registry) current() *snapshot {
	return r.view.Load().(*snapshot)
}

func (r *Registry) applyCreate(cmd command) {
	cur := r.current()
	if _, exists := cur.byID[cmd.record.ActorID]; exists {
		cmd.reply <- result{err: fmt.Errorf("registry: actor %s already exists", cmd.record.ActorID)}
		return
	}

	next := cur.clone()
	next.byID[cmd.record.ActorID] = cmd.record
	next.byServiceID[cmd.record.ServiceID] = append(next.byServiceID[cmd.record.ServiceID], cmd.record.ActorID)
	r.view.Store(next)

	cmd.reply <- result{record: cmd.record, ok: true}
}

func (r *Registry) applyDelete(cmd command) {
	cur := r.current()
	rec, exists := cur.byID[cmd.actorID]
	if !exists {
		cmd.reply <- result{err: fmt.Errorf("registry: actor %s not found", cmd.actorID)}
		return
	}

	next := cur.clone()
	delete(next.byID, cmd.actorID)
	ids := next.byServiceID[rec.ServiceID]
	for i, id := range ids {
		if id == cmd.actorID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(next.byServiceID, rec.ServiceID)
	} else {
		next.byServiceID[rec.ServiceID] = ids
	}
	r.view.Store(next)

	cmd.reply <- result{ok: true}
}

func (r *Registry) applyMarkAvailability(cmd command) {
	cur := r.current()
	ids := cur.byServiceID[cmd.serviceID]
	if len(ids) == 0 {
		cmd.reply <- result{ok: true}
		return
	}

	next := cur.clone()
	// Only toggle actors currently in the opposite live status: an
	// explicitly STOPPED actor must not be resurrected by a recovery
	// probe, and CREATED actors are still mid-spawn.
	from, to := proto.StatusActive, proto.StatusUnavailable
	if cmd.available {
		from, to = proto.StatusUnavailable, proto.StatusActive
	}
	for _, id := range ids {
		rec := next.byID[id]
		if rec.Status != from {
			continue
		}
		rec.Status = to
		next.byID[id] = rec
	}
	r.view.Store(next)

	cmd.reply <- result{ok: true}
}

func (r *Registry) applySetStatus(cmd command) {
	cur := r.current()
	rec, ok := cur.byID[cmd.actorID]
	if !ok {
		cmd.reply <- result{err: fmt.Errorf("registry: actor %s not found", cmd.actorID)}
		return
	}

	next := cur.clone()
	rec.Status = cmd.status
	next.byID[cmd.actorID] = rec
	r.view.Store(next)

	cmd.reply <- result{record: rec, ok: true}
}

func (r *Registry) applyLookupByID(cmd command) {
	rec, ok := r.current().byID[cmd.actorID]
	cmd.reply <- result{record: rec, ok: ok}
}

func (r *Registry) applyLookupByService(cmd command) {
	cur := r.current()
	ids := cur.byServiceID[cmd.serviceID]
	records := make([]proto.ActorRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, cur.byID[id])
	}
	cmd.reply <- result{records: records, ok: true}
}

func (r *Registry) applyList(cmd command) {
	cur := r.current()
	records := make([]proto.ActorRecord, 0, len(cur.byID))
	for _, rec := range cur.byID {
		records = append(records, rec)
	}
	cmd.reply <- result{records: records, ok: true}
}

func (r *Registry) send(cmd command) result {
	cmd.reply = make(chan result, 1)
	r.cmds <- cmd
	return <-cmd.reply
}

// Create registers a new Actor Record, allocating an id via google/uuid
// if actorID is empty.
func (r *Registry) Create(actorID, actorType, serviceID, serviceURL string, properties map[string]interface{}) (proto.ActorRecord, error) {
	if actorID == "" {
		actorID = uuid.NewString()
	}
	rec := proto.ActorRecord{
		ActorID:    actorID,
		ActorType:  actorType,
		ServiceID:  serviceID,
		ServiceURL: serviceURL,
		Status:     proto.StatusCreated,
		CreatedAt:  time.Now(),
		Properties: properties,
	}
	res := r.send(command{kind: opCreate, record: rec})
	if res.err != nil {
		return proto.ActorRecord{}, res.err
	}
	return res.record, nil
}

// MarkActive transitions a freshly created record to ACTIVE once the
// hosting service confirms the spawn succeeded.
func (r *Registry) MarkActive(actorID string) error {
	res := r.send(command{kind: opSetStatus, actorID: actorID, status: proto.StatusActive})
	return res.err
}

// Delete removes the Actor Record for actorID.
func (r *Registry) Delete(actorID string) error {
	res := r.send(command{kind: opDelete, actorID: actorID})
	return res.err
}

// MarkServiceAvailability flips every actor owned by serviceID to ACTIVE
// (available=true) or UNAVAILABLE (available=false), used by the health
// monitor on a service state transition.
func (r *Registry) MarkServiceAvailability(serviceID string, available bool) error {
	res := r.send(command{kind: opMarkAvailability, serviceID: serviceID, available: available})
	return res.err
}

// LookupByID returns the Actor Record for actorID, if present.
func (r *Registry) LookupByID(actorID string) (proto.ActorRecord, bool) {
	res := r.send(command{kind: opLookupByID, actorID: actorID})
	return res.record, res.ok
}

// LookupByService returns every Actor Record owned by serviceID.
func (r *Registry) LookupByService(serviceID string) []proto.ActorRecord {
	res := r.send(command{kind: opLookupByService, serviceID: serviceID})
	return res.records
}

// List returns every Actor Record currently registered.
func (r *Registry) List() []proto.ActorRecord {
	res := r.send(command{kind: opList})
	return res.records
}

// Close stops the writer goroutine, draining any in-flight commands.
func (r *Registry) Close() {
	close(r.cmds)
	<-r.done
}
