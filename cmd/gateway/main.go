// Command gateway runs the control-plane HTTP server: the actor and
// service registries, the health monitor that probes hosting services,
// and the public API clients and hosting services talk to.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/najoast/actorsys/bootstrap"
	"github.com/najoast/actorsys/config"
	"github.com/najoast/actorsys/events"
	"github.com/najoast/actorsys/gateway"
	"github.com/najoast/actorsys/registry"
	"github.com/najoast/actorsys/transport"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loader := config.NewLoader()
		loaded, err := loader.LoadFromFile(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	actors := registry.New()
	services := registry.NewServiceRegistry()
	bus := events.NewBus()

	httpTransport := transport.NewHTTPTransport()
	router := transport.NewRouter(httpTransport, nil)

	monitor := gateway.NewHealthMonitor(services, actors, bus, gateway.HealthMonitorConfig{
		ProbeInterval: cfg.Gateway.ProbeInterval,
		DeadThreshold: cfg.Gateway.ServiceDeadThreshold,
		Logger:        logger,
	})

	srv := gateway.NewServer(actors, services, router, httpTransport, gateway.Config{
		Addr:           cfg.Gateway.Address,
		APIKey:         cfg.Gateway.APIKey,
		MetricsEnabled: cfg.Monitor.Enabled,
		Logger:         logger,
	})
	srv.SetHealthMonitor(monitor)

	container := bootstrap.NewContainer()
	container.RegisterInstance("actor-registry", actors)
	container.RegisterInstance("service-registry", services)
	container.RegisterInstance("event-bus", bus)
	container.RegisterInstance("gateway-server", srv)

	monitorCtx, cancelMonitor := context.WithCancel(context.Background())
	defer cancelMonitor()

	lifecycle := bootstrap.NewLifecycleManager(container)
	lifecycle.Register("health-monitor", &bootstrap.FuncService{
		ServiceName: "health-monitor",
		OnStart: func(ctx context.Context) error {
			go monitor.Run(monitorCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancelMonitor()
			actors.Close()
			return nil
		},
	})
	lifecycle.Register("gateway-http", &bootstrap.FuncService{
		ServiceName: "gateway-http",
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					logger.Error("gateway server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	}, "health-monitor")

	app := bootstrap.NewRunnableApplication(container, lifecycle)
	logger.Info("starting gateway", "addr", cfg.Gateway.Address)
	if err := app.Run(context.Background()); err != nil {
		logger.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}
