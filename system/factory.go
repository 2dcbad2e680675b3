package system

import (
	"fmt"

	"github.com/najoast/actorsys/actor"
)

// Constructor builds a fresh Actor instance from creation params. It is
// invoked once at spawn time and again on every supervised RESTART.
type Constructor func(params map[string]interface{}) (actor.Actor, error)

// Factory is the plugin contract a hosting service implements to declare
// which actor types it can instantiate. Per the component design this is
// a closed table built at startup, not a reflective/classpath scan.
type Factory interface {
	// Supports reports whether actorType has a registered constructor.
	Supports(actorType string) bool

	// Create builds a new Actor instance for actorType.
	Create(actorType string, params map[string]interface{}) (actor.Actor, error)
}

// TableFactory is a Factory backed by an explicit map built by a hosting
// service's main function.
type TableFactory struct {
	constructors map[string]Constructor
}

// NewTableFactory builds an empty factory; call Register for each actor
// type the hosting service supports before passing it to NewSystem.
func NewTableFactory() *TableFactory {
	return &TableFactory{constructors: make(map[string]Constructor)}
}

// Register adds a constructor for actorType. Calling Register twice for
// the same type overwrites the prior constructor.
func (f *TableFactory) Register(actorType string, ctor Constructor) {
	f.constructors[actorType] = ctor
}

// Supports implements Factory.
func (f *TableFactory) Supports(actorType string) bool {
	_, ok := f.constructors[actorType]
	return ok
}

// Create implements Factory.
func (f *TableFactory) Create(actorType string, params map[string]interface{}) (actor.Actor, error) {
	ctor, ok := f.constructors[actorType]
	if !ok {
		return nil, fmt.Errorf("system: unknown actor type %q", actorType)
	}
	return ctor(params)
}

// SupportedTypes returns the registered actor type names, used to
// advertise supportedActorTypes at service-registration time.
func (f *TableFactory) SupportedTypes() []string {
	types := make([]string, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	return types
}
