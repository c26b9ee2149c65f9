package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mezmur-app/mezmur-sync/config"
	"github.com/mezmur-app/mezmur-sync/internal/api/http/middleware"
	"github.com/mezmur-app/mezmur-sync/internal/bootstrap"
	"github.com/mezmur-app/mezmur-sync/internal/connectivity"
	"github.com/mezmur-app/mezmur-sync/internal/history"
	"github.com/mezmur-app/mezmur-sync/internal/identity"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
	"github.com/mezmur-app/mezmur-sync/internal/migration"
	"github.com/mezmur-app/mezmur-sync/internal/profile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.SetDefaultDebug(logging.ParseLevel(cfg.App.LogLevel))
	bootstrap.SetGinMode(cfg)
	logger := logging.New("api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer core.Close()

	// The service reads connectivity from the orchestrator, which in turn
	// replays through the service.
	var orch *connectivity.Orchestrator
	online := profile.StatusFunc(func() bool { return orch == nil || orch.IsConnected() })
	svc := profile.NewService(core.Profiles, core.Local, online, profile.WithReplayRate(cfg.Sync.ReplayRPS))

	dispatcher := profile.NewDispatcher(svc, cfg.Sync.DispatchBuffer)
	defer dispatcher.Close()

	var monitor connectivity.Monitor
	var prober *connectivity.Prober
	if cfg.Connectivity.ProbeURL != "" {
		prober = connectivity.NewProber(cfg.Connectivity.ProbeURL, cfg.Connectivity.ProbeInterval, nil)
		monitor = prober
	} else {
		logger.Warn("startup", "PROBE_URL not set, connectivity is reported only")
		monitor = connectivity.NewStaticMonitor()
	}

	session := identity.NewSession(identity.Guest)
	orch = connectivity.NewOrchestrator(monitor, core.Catalogue, svc, session)
	orch.Start()
	if prober != nil {
		if err := prober.Start(); err != nil {
			log.Fatalf("Failed to start connectivity prober: %v", err)
		}
	}

	hist := history.NewCache(core.Local)
	unsubscribe := core.Index.Subscribe(hist.ClearEphemeral)
	defer unsubscribe()

	var verifier middleware.Verifier
	if core.Verifier != nil {
		verifier = core.Verifier
	}

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:    "mezmur-sync",
		Version:        cfg.App.Version,
		CORSOrigins:    cfg.Server.CORSOrigins,
		HeaderIdentity: !cfg.IsProduction(),
		Verifier:       verifier,
		Session:        session,
		Stores:         core.Stores,
		Index:          core.Index,
		History:        hist,
		Status:         orch,
		Queue:          svc.Queue(),
		Replayer:       svc,
		Local:          core.Local,
		Tasks:          dispatcher,
		Migrator:       migration.NewEngine(core.Local, svc),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("startup", "listening on :%s env=%s", cfg.Server.Port, cfg.App.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown", "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", err)
	}
	if prober != nil {
		prober.Stop()
	}
	orch.Stop()
	orch.Wait()
}
