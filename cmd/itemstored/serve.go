package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/itemstored/internal/config"
	"github.com/cuemby/itemstored/internal/gateway"
	"github.com/cuemby/itemstored/internal/health"
	"github.com/cuemby/itemstored/internal/log"
	"github.com/cuemby/itemstored/internal/metrics"
	"github.com/cuemby/itemstored/internal/notify"
	"github.com/cuemby/itemstored/internal/retrieval"
	"github.com/cuemby/itemstored/internal/scheduler"
	"github.com/cuemby/itemstored/internal/search"
	"github.com/cuemby/itemstored/internal/server"
	"github.com/cuemby/itemstored/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// defaultBusWorkers bounds the notification fan-out pool's concurrency,
// sized for a single-writer server with a modest subscriber count
// rather than a multi-tenant deployment.
const defaultBusWorkers = 8

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the itemstored server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	initLogging(cfg.LogLevel, cfg.LogJSON)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("itemstored: create data dir: %w", err)
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("itemstored: open store: %w", err)
	}
	defer st.Close()
	st.SetExternalPayloadThreshold(cfg.ExternalPayloadThreshold)

	ca, err := setupCA(cmd.Context(), st)
	if err != nil {
		return err
	}

	gw, err := gateway.NewGateway(ca)
	if err != nil {
		return fmt.Errorf("itemstored: build gateway: %w", err)
	}
	go func() {
		if err := gw.Start(cfg.GatewayBindAddr); err != nil {
			log.Errorf("itemstored: resource gateway", err)
		}
	}()
	defer gw.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("store", true, "open")
	metrics.RegisterComponent("gateway", true, "listening")

	bus := notify.NewBus(defaultBusWorkers)
	bus.Start()
	defer bus.Stop()
	metrics.RegisterComponent("notify", true, "running")

	coordinator := retrieval.NewCoordinator(gw, cfg.RetrievalTimeout)
	coordinator.SetVerifyCache(cfg.VerifyCacheOnRetrieval)

	sy := &syncer{store: st, retrieval: coordinator, bus: bus, minInterval: cfg.SchedulerMinInterval}
	sched := scheduler.NewScheduler(sy.fire)
	if err := seedScheduler(cmd.Context(), st, sched, cfg.SchedulerMinInterval); err != nil {
		return fmt.Errorf("itemstored: seed scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()
	metrics.RegisterComponent("scheduler", true, "running")

	// No production search backend ships with itemstored;
	// internal/search.MemoryEngine exists for tests only. Search requests
	// fail until an operator wires a real search.Engine implementation in.
	var engine search.Engine

	srv := server.New(server.Config{
		SocketPath:      cfg.SocketPath,
		IdleTimeout:     cfg.IdleTimeout,
		DeadlockRetries: cfg.DeadlockRetries,
	}, server.Deps{
		Store:     st,
		Bus:       bus,
		Retrieval: coordinator,
		Scheduler: sched,
		Search:    engine,
	})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("itemstored: start server: %w", err)
	}
	defer srv.Stop()
	metrics.RegisterComponent("server", true, "listening")

	resourceHealth := health.NewRegistry(gw, health.DefaultConfig())
	healthSrv := gateway.NewHealthServer(st, resourceHealth)
	httpSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: healthSrv.GetHandler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("itemstored: metrics server", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(ctx)
	}()

	log.Info("itemstored is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	return nil
}

// ensureServerID reads the persistent server instance id, generating and
// saving one on first start. The id seeds the key that encrypts the
// resource-gateway CA's private material at rest.
func ensureServerID(ctx context.Context, st *store.Store) (string, error) {
	raw, err := st.SettingsGet(ctx, nil, "server_id")
	if err != nil {
		return "", err
	}
	if len(raw) > 0 {
		return string(raw), nil
	}
	id := uuid.NewString()
	if err := st.SettingsPut(ctx, nil, "server_id", []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}
