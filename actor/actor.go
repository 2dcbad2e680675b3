// Package actor defines the user-facing actor contract, its lifecycle
// state machine, and the addressing handle (ActorRef) used to reach it.
package actor

import (
	"context"
	"fmt"

	"github.com/najoast/actorsys/proto"
)

// Actor is the behavior a hosting service instantiates for one actor_id.
// Implementations receive envelopes sequentially; PreStart/PostStop are
// called exactly once around the actor's run, and PreRestart/PostRestart
// bracket a supervised RESTART.
type Actor interface {
	// Receive handles a single envelope. Returning an error fails the
	// current run and is handed to the supervision strategy.
	Receive(ctx context.Context, env *proto.Envelope, actx Context) error

	// PreStart runs once before the first Receive.
	PreStart(ctx context.Context, actx Context) error

	// PostStop runs once after the last Receive, or after supervision
	// decides STOP.
	PostStop(ctx context.Context, actx Context) error
}

// Restartable is implemented optionally by actors that want to observe a
// supervised restart; actors that don't implement it get PostStop/PreStart
// called in their place, per the defaulting rule in the component design.
type Restartable interface {
	PreRestart(ctx context.Context, cause error, env *proto.Envelope, actx Context) error
	PostRestart(ctx context.Context, cause error, actx Context) error
}

// State is the lifecycle state of a locally hosted actor.
type State int32

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateRestarting
	StateStopping
	StateStopped
	StateFailed
)

// String renders the state for logging and health snapshots.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateRestarting:
		return "RESTARTING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidTransition is returned when a lifecycle transition does not
// follow the monotonic state machine described in the data model.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("actor: invalid transition %s -> %s", e.From, e.To)
}

// validTransitions enumerates the monotonic edges of the lifecycle state
// machine; CREATED -> STARTING -> RUNNING -> (RESTARTING -> RUNNING)* ->
// STOPPING -> STOPPED, with FAILED reachable from RUNNING and resolved
// by supervision into RESTARTING, RUNNING, or STOPPING.
var validTransitions = map[State]map[State]bool{
	StateCreated:    {StateStarting: true},
	StateStarting:   {StateRunning: true, StateStopping: true, StateFailed: true},
	StateRunning:    {StateRestarting: true, StateStopping: true, StateFailed: true},
	StateRestarting: {StateRunning: true, StateStopping: true, StateFailed: true},
	StateFailed:     {StateRestarting: true, StateRunning: true, StateStopping: true},
	StateStopping:   {StateStopped: true},
}

// Transition validates and returns the target state, or an error if the
// edge is not part of the monotonic lifecycle.
func Transition(from, to State) (State, error) {
	if edges, ok := validTransitions[from]; ok && edges[to] {
		return to, nil
	}
	return from, &ErrInvalidTransition{From: from, To: to}
}
