package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/mezmur-app/mezmur-sync/config"
	"github.com/mezmur-app/mezmur-sync/internal/bootstrap"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
	"github.com/mezmur-app/mezmur-sync/internal/migration"
	"github.com/mezmur-app/mezmur-sync/internal/profile"
)

// worker commands run against the configured stores with connectivity
// assumed, so queued writes go straight to the remote.
func openCore(ctx context.Context) (*bootstrap.Core, *profile.Service, *config.Config) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.SetDefaultDebug(logging.ParseLevel(cfg.App.LogLevel))

	core, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	svc := profile.NewService(core.Profiles, core.Local, nil, profile.WithReplayRate(cfg.Sync.ReplayRPS))
	return core, svc, cfg
}

func userArg(cmd string, args []string) string {
	if len(args) < 1 || args[0] == "" {
		log.Fatalf("usage: worker %s <userID>", cmd)
	}
	return args[0]
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode result: %v", err)
	}
}

func RunReplay(args []string) {
	userID := userArg("replay", args)
	ctx := context.Background()
	core, svc, _ := openCore(ctx)
	defer core.Close()

	res, err := svc.ProcessQueue(ctx, userID)
	printJSON(res)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}
}

func RunMigrate(args []string) {
	userID := userArg("migrate", args)
	ctx := context.Background()
	core, svc, _ := openCore(ctx)
	defer core.Close()

	res, err := migration.NewEngine(core.Local, svc).PerformFullMigration(ctx, userID)
	printJSON(res)
	if err != nil {
		log.Fatalf("migration incomplete: %v", err)
	}
}

func RunPull(args []string) {
	userID := userArg("pull", args)
	ctx := context.Background()
	core, svc, _ := openCore(ctx)
	defer core.Close()

	res, err := migration.NewEngine(core.Local, svc).PullCloudData(ctx, userID)
	if err != nil {
		log.Fatalf("pull failed: %v", err)
	}
	printJSON(res)
}

func RunSyncCatalogue(_ []string) {
	ctx := context.Background()
	core, _, cfg := openCore(ctx)
	defer core.Close()

	n, err := core.Catalogue.SyncWithCloud(ctx)
	if err != nil {
		log.Fatalf("catalogue sync failed: %v", err)
	}
	fmt.Printf("Applied %d remote hymn updates (remote=%s, %d hymns indexed)\n", n, cfg.Remote.Backend, core.Index.Len())
}
