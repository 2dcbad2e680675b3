// Command hostsvc runs one actor-hosting service: a local actor.System
// backed by a typed factory table, the /runtime HTTP façade the gateway
// and peer services call, a registration client that keeps the gateway
// informed of this service's liveness, and (when configured) a
// streaming-bus consumer for inter-service data-plane delivery.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/najoast/actorsys/actor"
	"github.com/najoast/actorsys/bootstrap"
	"github.com/najoast/actorsys/client"
	"github.com/najoast/actorsys/config"
	"github.com/najoast/actorsys/proto"
	"github.com/najoast/actorsys/runtime"
	"github.com/najoast/actorsys/system"
	"github.com/najoast/actorsys/transport"
)

// echoActor is the hosting service's built-in smoke-test actor type: it
// counts received envelopes and replies to an Ask with the running
// count, enough to exercise spawn/tell/ask/restart end to end without
// pulling in a domain model this module doesn't otherwise need.
type echoActor struct {
	count int
}

func newEchoActor(map[string]interface{}) (actor.Actor, error) {
	return &echoActor{}, nil
}

func (a *echoActor) PreStart(ctx context.Context, actx actor.Context) error {
	actx.Logger().Info("echo actor starting")
	return nil
}

func (a *echoActor) Receive(ctx context.Context, env *proto.Envelope, actx actor.Context) error {
	a.count++
	reply, err := proto.NewEnvelope("EchoActor.Ack", map[string]int{"count": a.count})
	if err != nil {
		return err
	}
	reply.CorrelationID = env.CorrelationID
	actx.Reply(reply)
	return nil
}

func (a *echoActor) PostStop(ctx context.Context, actx actor.Context) error {
	actx.Logger().Info("echo actor stopped", "count", a.count)
	return nil
}

func buildFactory() *system.TableFactory {
	f := system.NewTableFactory()
	f.Register("EchoActor", newEchoActor)
	return f
}

func buildBus(ctx context.Context, cfg config.BusConfig, logger *slog.Logger) (*transport.BusTransport, transport.BackendConsumer, error) {
	strategy := transport.TopicPerActor
	if cfg.TopicStrategy == "shared" {
		strategy = transport.TopicShared
	}

	switch cfg.Type {
	case "", "none":
		return nil, nil, nil
	case "sqs":
		backend, err := transport.NewSQSBackend(ctx, transport.SQSConfig{Region: cfg.Region, Endpoint: cfg.Bootstrap, Logger: logger})
		if err != nil {
			return nil, nil, fmt.Errorf("build sqs backend: %w", err)
		}
		return transport.NewBusTransport(backend, strategy), backend, nil
	case "rabbitmq":
		backend, err := transport.NewRabbitMQBackend(cfg.Bootstrap, cfg.Exchange, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("build rabbitmq backend: %w", err)
		}
		return transport.NewBusTransport(backend, strategy), backend, nil
	default:
		return nil, nil, fmt.Errorf("unknown bus.type %q", cfg.Type)
	}
}

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
	if cfg.Gateway.ServiceID == "" {
		logger.Error("gateway.service_id is required for a hosting service")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	factory := buildFactory()

	rootCtx, cancelBus := context.WithCancel(context.Background())
	defer cancelBus()

	bus, backend, err := buildBus(rootCtx, cfg.Bus, logger)
	if err != nil {
		logger.Error("failed to build bus transport", "error", err)
		os.Exit(1)
	}

	sys := system.New(factory, system.Options{
		Workers:          cfg.Dispatcher.Workers,
		QueueDepth:       cfg.Dispatcher.QueueDepth,
		ThroughputPerRun: cfg.Dispatcher.ThroughputPerRun,
		Logger:           logger,
	})

	var consumer *transport.Consumer
	if bus != nil {
		consumer = transport.NewConsumer(bus, backend, func(targetActorID, senderActorID string, env *proto.Envelope) {
			ref, ok := sys.Get(targetActorID)
			if !ok {
				logger.Warn("bus delivery for unhosted actor", "actor_id", targetActorID)
				return
			}
			if senderActorID != "" {
				sys.RecordSender(env.MessageID, senderActorID)
			}
			if err := ref.Tell(env, nil); err != nil {
				logger.Warn("bus delivery tell failed", "actor_id", targetActorID, "error", err)
			}
		}, logger)
	}

	facade := runtime.NewServer(sys, runtime.Config{
		Addr:      cfg.Network.TCP.Address + ":" + fmt.Sprint(cfg.Network.TCP.Port),
		ServiceID: cfg.Gateway.ServiceID,
		APIKey:    cfg.Gateway.APIKey,
		Logger:    logger,
		Consumer:  consumer,
	})

	regClient := client.New(client.Config{
		GatewayURL:          cfg.Gateway.URL,
		ServiceID:           cfg.Gateway.ServiceID,
		ServiceURL:          cfg.Gateway.ServiceURL,
		SupportedActorTypes: factory.SupportedTypes(),
		APIKey:              cfg.Gateway.APIKey,
		HeartbeatInterval:   cfg.Gateway.HeartbeatInterval,
		Logger:              logger,
	})

	container := bootstrap.NewContainer()
	container.RegisterInstance("actor-system", sys)
	container.RegisterInstance("runtime-facade", facade)
	container.RegisterInstance("registration-client", regClient)

	lifecycle := bootstrap.NewLifecycleManager(container)
	lifecycle.Register("runtime-facade", &bootstrap.FuncService{
		ServiceName: "runtime-facade",
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := facade.ListenAndServe(); err != nil {
					logger.Error("runtime facade stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return facade.Shutdown(ctx)
		},
	})
	lifecycle.Register("registration-client", &bootstrap.FuncService{
		ServiceName: "registration-client",
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := regClient.Run(rootCtx); err != nil {
					logger.Error("registration client stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return nil
		},
	}, "runtime-facade")

	app := bootstrap.NewRunnableApplication(container, lifecycle)
	logger.Info("starting hosting service", "service_id", cfg.Gateway.ServiceID, "addr", cfg.Network.TCP.Address+":"+fmt.Sprint(cfg.Network.TCP.Port))
	if err := app.Run(rootCtx); err != nil {
		logger.Error("hosting service exited with error", "error", err)
		_ = sys.Shutdown(context.Background())
		os.Exit(1)
	}
	_ = sys.Shutdown(context.Background())
}
