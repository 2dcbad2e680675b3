// Package bootstrap provides tests for the bootstrap module
package bootstrap

import (
	"context"
	"testing"
	"time"
)

func TestContainer(t *testing.T) {
	container := NewContainer()

	// Test service registration
	err := container.Register("test-service", func(c Container) (interface{}, error) {
		return "test-instance", nil
	})
	if err != nil {
		t.Fatalf("Failed to register service: %v", err)
	}

	// Test service resolution
	instance, err := container.Resolve("test-service")
	if err != nil {
		t.Fatalf("Failed to resolve service: %v", err)
	}

	if instance != "test-instance" {
		t.Errorf("Expected 'test-instance', got %v", instance)
	}

	// Test service exists
	if !container.Has("test-service") {
		t.Error("Container should have test-service")
	}

	// Test service names
	names := container.Names()
	if len(names) != 1 || names[0] != "test-service" {
		t.Errorf("Expected ['test-service'], got %v", names)
	}
}

func TestLifecycleManager(t *testing.T) {
	container := NewContainer()
	lm := NewLifecycleManager(container)

	// Create a test service
	testService := &TestService{name: "test"}

	// Register service
	err := lm.Register("test", testService)
	if err != nil {
		t.Fatalf("Failed to register service: %v", err)
	}

	// Test start
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = lm.Start(ctx)
	if err != nil {
		t.Fatalf("Failed to start services: %v", err)
	}

	if !testService.started {
		t.Error("Test service should be started")
	}

	// Test health check
	health, err := lm.Health(ctx)
	if err != nil {
		t.Fatalf("Failed to get health status: %v", err)
	}

	if health["test"].State != HealthHealthy {
		t.Errorf("Expected healthy state, got %v", health["test"].State)
	}

	// Test stop
	err = lm.Stop(ctx)
	if err != nil {
		t.Fatalf("Failed to stop services: %v", err)
	}

	if !testService.stopped {
		t.Error("Test service should be stopped")
	}
}

func TestApplication(t *testing.T) {
	container := NewContainer()
	lm := NewLifecycleManager(container)
	lm.Register("worker", &FuncService{ServiceName: "worker"})

	app := NewRunnableApplication(container, lm)

	if app.Container() == nil {
		t.Error("Application should have a container")
	}

	if app.LifecycleManager() == nil {
		t.Error("Application should have a lifecycle manager")
	}

	services := app.LifecycleManager().Services()
	if len(services) != 1 || services[0] != "worker" {
		t.Errorf("Expected [worker], got %v", services)
	}
}

func TestFuncService(t *testing.T) {
	var started, stopped bool
	svc := &FuncService{
		ServiceName: "func-service",
		OnStart: func(ctx context.Context) error {
			started = true
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped = true
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !started {
		t.Error("OnStart should have run")
	}

	health, err := svc.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.State != HealthHealthy {
		t.Errorf("expected healthy default, got %v", health.State)
	}

	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !stopped {
		t.Error("OnStop should have run")
	}
}

func TestScopedContainer(t *testing.T) {
	container := NewScopedContainer()

	// Test singleton scope
	err := container.RegisterScoped("singleton", func(c Container) (interface{}, error) {
		return &TestService{name: "singleton"}, nil
	}, ScopeSingleton)
	if err != nil {
		t.Fatalf("Failed to register singleton service: %v", err)
	}

	// Resolve twice and check it's the same instance
	instance1, err := container.Resolve("singleton")
	if err != nil {
		t.Fatalf("Failed to resolve singleton service: %v", err)
	}

	instance2, err := container.Resolve("singleton")
	if err != nil {
		t.Fatalf("Failed to resolve singleton service: %v", err)
	}

	if instance1 != instance2 {
		t.Error("Singleton service should return the same instance")
	}

	// Test transient scope
	err = container.RegisterScoped("transient", func(c Container) (interface{}, error) {
		return &TestService{name: "transient"}, nil
	}, ScopeTransient)
	if err != nil {
		t.Fatalf("Failed to register transient service: %v", err)
	}

	// Resolve twice and check they're different instances
	instance3, err := container.Resolve("transient")
	if err != nil {
		t.Fatalf("Failed to resolve transient service: %v", err)
	}

	instance4, err := container.Resolve("transient")
	if err != nil {
		t.Fatalf("Failed to resolve transient service: %v", err)
	}

	if instance3 == instance4 {
		t.Error("Transient service should return different instances")
	}
}

// TestService is a simple service implementation for testing
type TestService struct {
	name    string
	started bool
	stopped bool
}

func (s *TestService) Name() string {
	return s.name
}

func (s *TestService) Start(ctx context.Context) error {
	s.started = true
	return nil
}

func (s *TestService) Stop(ctx context.Context) error {
	s.stopped = true
	return nil
}

func (s *TestService) Health(ctx context.Context) (HealthStatus, error) {
	if s.started && !s.stopped {
		return HealthStatus{
			State:   HealthHealthy,
			Message: "Service is running",
		}, nil
	}
	return HealthStatus{
		State:   HealthUnhealthy,
		Message: "Service is not running",
	}, nil
}
