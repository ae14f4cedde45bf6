package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fentz26/pageforge/internal/audit"
	"github.com/fentz26/pageforge/internal/cancel"
	"github.com/fentz26/pageforge/internal/config"
	"github.com/fentz26/pageforge/internal/controlplane"
	"github.com/fentz26/pageforge/internal/driver"
	"github.com/fentz26/pageforge/internal/driver/remote"
	"github.com/fentz26/pageforge/internal/driver/simulated"
	"github.com/fentz26/pageforge/internal/efficiency"
	"github.com/fentz26/pageforge/internal/events"
	"github.com/fentz26/pageforge/internal/invites"
	"github.com/fentz26/pageforge/internal/orchestrator"
	"github.com/fentz26/pageforge/internal/reports"
	"github.com/fentz26/pageforge/internal/store"
	"github.com/fentz26/pageforge/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds graceful shutdown of the server and running loops.
const shutdownTimeout = 30 * time.Second

var (
	listenAddr string
	dbPath     string
	driverKind string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the pageforge daemon",
	Long:  `Starts the pageforge daemon which runs page-generation tasks and serves the HTTP API.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	daemonCmd.Flags().StringVar(&driverKind, "driver", "", "Automation driver: simulated or remote (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if driverKind != "" {
		cfg.Driver.Kind = driverKind
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	slog.SetDefault(cfg.Log.NewLogger())
	slog.Info("starting pageforge daemon", slog.String("driver", cfg.Driver.Kind), slog.String("db", cfg.DBPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("database close failed", slog.Any("error", err))
		}
	}()

	factory, err := buildDriverFactory(cfg.Driver)
	if err != nil {
		return err
	}
	drv, err := factory(driver.Options{Headless: cfg.Driver.Headless, Timeout: cfg.Driver.Timeout})
	if err != nil {
		return fmt.Errorf("build driver: %w", err)
	}

	flags, err := buildCancelFlags(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	publisher, err := buildPublisher(cfg.NATS)
	if err != nil {
		return err
	}
	defer publisher.Close()
	archiver, err := buildArchiver(ctx, cfg.MinIO)
	if err != nil {
		return err
	}

	pdr := audit.NewPDRWriter(s)
	coord := invites.New(s, drv, pdr, publisher, cfg.Invites.DefaultRole)
	orch := orchestrator.New(s, drv, flags, pdr,
		orchestrator.WithConfig(&cfg.Orchestrator),
		orchestrator.WithEvents(publisher),
		orchestrator.WithInviteSender(coord),
		orchestrator.WithDriverFactory(factory),
		orchestrator.WithArchiver(archiver),
	)

	if _, err := orch.Recover(ctx); err != nil {
		return fmt.Errorf("recover tasks: %w", err)
	}

	service := controlplane.NewService(orch, coord, efficiency.New(s))
	server := controlplane.NewServer(service, cfg.Listen)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		coord.RunSweeper(gCtx, cfg.Invites.SweepInterval, cfg.Invites.ExpireAfter)
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown failed", slog.Any("error", err))
		}
		if err := orch.Stop(shutdownCtx); err != nil {
			slog.Error("orchestrator stop failed", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}

func buildDriverFactory(cfg config.DriverConfig) (driver.Factory, error) {
	switch cfg.Kind {
	case config.DriverSimulated:
		return simulated.Factory(simulated.Config{
			Latency:             cfg.Latency,
			FailureRate:         cfg.FailureRate,
			SessionFailureAfter: cfg.SessionFailureAfter,
		}), nil
	case config.DriverRemote:
		return remote.Factory(cfg.Endpoint), nil
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Kind)
}

// buildCancelFlags uses Redis when an address is configured.
func buildCancelFlags(ctx context.Context, cfg cancel.RedisConfig) (cancel.Flags, error) {
	if cfg.Addr == "" {
		return cancel.NewMemory(), nil
	}
	client, err := cancel.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("cancel flags backed by redis", slog.String("addr", cfg.Addr))
	return cancel.NewRedis(client, cfg.Prefix), nil
}

// buildPublisher uses NATS JetStream when a URL is configured.
func buildPublisher(cfg events.NATSConfig) (events.Publisher, error) {
	if cfg.URL == "" {
		return events.Noop{}, nil
	}
	pub, err := events.NewNATS(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("publishing events to nats", slog.String("url", cfg.URL))
	return pub, nil
}

// buildArchiver uses MinIO when an endpoint is configured.
func buildArchiver(ctx context.Context, cfg reports.MinIOConfig) (reports.Archiver, error) {
	if cfg.Endpoint == "" {
		return reports.Noop{}, nil
	}
	arch, err := reports.NewMinIO(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("archiving reports to minio", slog.String("endpoint", cfg.Endpoint))
	return arch, nil
}
