// Package bootstrap provides application implementation
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// FuncService adapts a pair of start/stop closures to the Service
// interface, for process entry points that wire concrete components
// (an HTTP server, a background monitor, a registration client) rather
// than a type built for reuse elsewhere.
type FuncService struct {
	ServiceName string
	OnStart     func(ctx context.Context) error
	OnStop      func(ctx context.Context) error
	OnHealth    func(ctx context.Context) (HealthStatus, error)
}

func (f *FuncService) Name() string { return f.ServiceName }

func (f *FuncService) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

func (f *FuncService) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}

func (f *FuncService) Health(ctx context.Context) (HealthStatus, error) {
	if f.OnHealth != nil {
		return f.OnHealth(ctx)
	}
	return HealthStatus{State: HealthHealthy}, nil
}

// RunnableApplication implements Application over a pre-wired Container
// and LifecycleManager: process main()s build their own services (the
// actor system, the registries, the gateway HTTP server, the
// registration client) and register them with the lifecycle manager
// before constructing this, rather than this type constructing them
// itself the way DefaultApplication once did for the teacher's fixed
// actor-system + network-server pair.
type RunnableApplication struct {
	container        Container
	lifecycleManager LifecycleManager

	mutex   sync.RWMutex
	running bool

	shutdownChan chan os.Signal
}

// NewRunnableApplication wraps an already-populated container and
// lifecycle manager.
func NewRunnableApplication(container Container, lifecycleManager LifecycleManager) *RunnableApplication {
	return &RunnableApplication{
		container:        container,
		lifecycleManager: lifecycleManager,
		shutdownChan:     make(chan os.Signal, 1),
	}
}

// Configure is a no-op: RunnableApplication's services are wired by the
// caller before construction, not by a generic configuration blob.
func (app *RunnableApplication) Configure(cfg interface{}) error {
	return nil
}

// Run starts every registered service and blocks until a shutdown
// signal or ctx cancellation, then stops them in reverse order.
func (app *RunnableApplication) Run(ctx context.Context) error {
	app.mutex.Lock()
	if app.running {
		app.mutex.Unlock()
		return fmt.Errorf("application is already running")
	}
	app.running = true
	app.mutex.Unlock()

	signal.Notify(app.shutdownChan, os.Interrupt, syscall.SIGTERM)

	if err := app.lifecycleManager.Start(ctx); err != nil {
		app.mutex.Lock()
		app.running = false
		app.mutex.Unlock()
		return fmt.Errorf("failed to start services: %w", err)
	}

	select {
	case <-app.shutdownChan:
	case <-ctx.Done():
	}

	return app.Shutdown(context.Background())
}

// Shutdown stops every registered service, bounded by a 30s timeout.
func (app *RunnableApplication) Shutdown(ctx context.Context) error {
	app.mutex.Lock()
	if !app.running {
		app.mutex.Unlock()
		return nil
	}
	app.running = false
	app.mutex.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := app.lifecycleManager.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop services: %w", err)
	}
	return nil
}

func (app *RunnableApplication) Container() Container {
	return app.container
}

func (app *RunnableApplication) LifecycleManager() LifecycleManager {
	return app.lifecycleManager
}
