package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/auditkit/website-audit/internal/api_server"
	"github.com/auditkit/website-audit/internal/agents"
	"github.com/auditkit/website-audit/internal/config"
	"github.com/auditkit/website-audit/internal/events"
	"github.com/auditkit/website-audit/internal/orchestrator"
	"github.com/auditkit/website-audit/internal/progress"
	"github.com/auditkit/website-audit/internal/service"
	"github.com/auditkit/website-audit/internal/store"
	"github.com/auditkit/website-audit/internal/watchdog"
	"github.com/auditkit/website-audit/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the audit api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		logger := log.InitLog(log.Level(cfg.Service.LogLevel))
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Named("audit_api").Info("Starting API service")
		defer zap.S().Named("audit_api").Info("API service stopped")

		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Named("audit_api").Fatalf("initializing data store: %v", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(); err != nil {
			zap.S().Named("audit_api").Fatalf("running initial migration: %v", err)
		}

		producer, err := newEventProducer(cfg)
		if err != nil {
			zap.S().Named("audit_api").Fatalf("initializing event producer: %v", err)
		}
		defer func() { _ = producer.Close() }()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		stream := progress.NewStream()
		wd := watchdog.New(s, stream, cfg.Orchestrator.MaxJobDuration)
		go wd.Run(ctx)

		orch := orchestrator.New(s, stream, producer, &agents.StaticAgent{}, wd, orchestrator.Config{
			SkipPlanning:     cfg.Orchestrator.SkipPlanning,
			EnableEvaluation: cfg.Orchestrator.EnableEvaluation,
			MaxRetries:       cfg.Orchestrator.MaxRetries,
			MaxConcurrency:   cfg.Orchestrator.MaxConcurrency,
			ActivityLogCap:   cfg.Orchestrator.ActivityLogCap,
		})
		srv := service.NewAuditJobService(s, stream, producer, orch, cfg)

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Named("audit_api").Fatalf("creating listener: %s", err)
			}

			server := apiserver.New(cfg, srv, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Named("audit_api").Fatalf("Error running server: %s", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Named("audit_api").Fatalf("creating metrics listener: %s", err)
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener, srv)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Named("audit_api").Fatalf("Error running metrics server: %s", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newEventProducer(cfg *config.Config) (*events.EventProducer, error) {
	if len(cfg.Service.Kafka.Brokers) == 0 {
		return events.NewEventProducer(&events.StdoutWriter{}), nil
	}

	writer, err := events.NewKafkaWriter(cfg.Service.Kafka.Brokers, cfg.Service.Kafka.ClientID)
	if err != nil {
		return nil, err
	}

	opts := []events.ProducerOptions{}
	if cfg.Service.Kafka.Topic != "" {
		opts = append(opts, events.WithOutputTopic(cfg.Service.Kafka.Topic))
	}
	return events.NewEventProducer(writer, opts...), nil
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
