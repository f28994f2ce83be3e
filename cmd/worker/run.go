package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/replication-worker/internal/config"
	"github.com/rickgao/replication-worker/internal/connection"
	"github.com/rickgao/replication-worker/internal/database"
	"github.com/rickgao/replication-worker/internal/dispatch"
	"github.com/rickgao/replication-worker/internal/metrics"
	"github.com/rickgao/replication-worker/internal/notifier"
	"github.com/rickgao/replication-worker/internal/protocol"
	"github.com/rickgao/replication-worker/internal/push"
	"github.com/rickgao/replication-worker/internal/store"
	"github.com/rickgao/replication-worker/internal/version"
)

const shutdownTimeout = 30 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the replication coordinator and process streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, logger)
		},
	}
}

func run(ctx context.Context, cfg *config.WorkerConfig, logger *slog.Logger) error {
	logger.Info("starting replication worker",
		"version", version.Version,
		"commit", version.Commit,
		"worker", cfg.Worker.Name,
		"server_name", cfg.Worker.ServerName,
	)

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connected")

	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, err := store.New(pool, store.Config{CacheSize: cfg.Events.CacheSize}, logger)
	if err != nil {
		return err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := st.LoadPositions(ctx); err != nil {
		return err
	}

	publisher, err := notifier.NewPublisher(cfg.Notifier, logger)
	if err != nil {
		return err
	}
	roomNotifier := notifier.New(publisher, cfg.Notifier.Topic, collector, logger)

	// The in-process backend has no external consumer; log what it carries.
	var notifications <-chan *message.Message
	if sub, ok := publisher.(message.Subscriber); ok {
		notifications, err = sub.Subscribe(context.Background(), cfg.Notifier.Topic)
		if err != nil {
			publisher.Close()
			return fmt.Errorf("subscribe to %s: %w", cfg.Notifier.Topic, err)
		}
	}

	pusher := push.NewPool(push.NewGateway(cfg.Push, logger), collector, logger)

	handler := dispatch.NewHandler(st, roomNotifier, pusher,
		dispatch.WithLogger(logger),
		dispatch.WithRemoteServerUp(func(server string) {
			logger.Info("remote server up", "server", server)
		}),
	)
	sequencer := dispatch.NewSequencer(handler, collector, logger)
	if err := sequencer.Start(ctx); err != nil {
		publisher.Close()
		return err
	}

	factory := protocol.NewSessionFactory(sequencer, protocol.Config{
		PingInterval: cfg.Replication.PingInterval,
		PingTimeout:  cfg.Replication.PingTimeout,
	}, logger)

	manager := connection.NewManager(connection.ManagerConfig{
		Address:      cfg.Replication.Address,
		ClientName:   cfg.Worker.Name,
		ServerName:   cfg.Worker.ServerName,
		InitialDelay: cfg.Replication.InitialDelay,
		MaxDelay:     cfg.Replication.MaxDelay,
		DelayFactor:  cfg.Replication.DelayFactor,
		DialTimeout:  cfg.Replication.DialTimeout,
	}, &connection.NetDialer{WriteTimeout: cfg.Replication.WriteTimeout}, factory,
		connection.WithRecorder(collector),
		connection.WithLogger(logger),
	)

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/health", newHealthHandler(healthSources{
		db:        pool,
		state:     manager.State,
		delay:     manager.Delay,
		sequencer: sequencer,
		notifier:  roomNotifier,
		pusher:    pusher,
	}))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	if notifications != nil {
		g.Go(func() error {
			for msg := range notifications {
				logger.Debug("room event notification",
					"message_id", msg.UUID,
					"room_id", msg.Metadata.Get("room_id"),
				)
				msg.Ack()
			}
			return nil
		})
	}

	if err := manager.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Connection first so nothing new is submitted, then drain the
		// lanes before the publisher goes away.
		manager.Stop(shutdownCtx)
		if err := sequencer.Stop(shutdownCtx); err != nil {
			logger.Warn("sequencer stop", "error", err)
		}
		if err := publisher.Close(); err != nil {
			logger.Warn("close publisher", "error", err)
		}
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("replication worker running",
		"address", cfg.Replication.Address,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	err = g.Wait()
	logger.Info("replication worker stopped")
	return err
}
