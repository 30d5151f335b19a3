package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/velmar-soft/recibosgo/internal/agent"
	"github.com/velmar-soft/recibosgo/internal/config"
	"github.com/velmar-soft/recibosgo/internal/localstore"
	"github.com/velmar-soft/recibosgo/internal/remote"
	syncpkg "github.com/velmar-soft/recibosgo/internal/sync"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Agent.UserID == "" || cfg.Agent.APIToken == "" {
		log.Fatal("AGENT_USER_ID and AGENT_API_TOKEN are required")
	}
	syncCfg := config.LoadSyncConfig()

	// 2. Open the local store
	if err := os.MkdirAll(cfg.Agent.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}
	store, err := localstore.Open(filepath.Join(cfg.Agent.DataDir, "local.db"))
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}

	// 3. Connectivity monitor and remote store client
	monitor := remote.NewMonitor(cfg.Agent.ServerURL, syncCfg.HealthCheckInterval, syncCfg.RemoteTimeout, nil)
	client := remote.NewClient(cfg.Agent.ServerURL, cfg.Agent.APIToken, syncCfg.RemoteTimeout, monitor)

	// 4. Sync core
	resolver := syncpkg.NewNumberResolver(client, store, monitor.Reachable, nil)
	engine := syncpkg.NewEngine(store, client, resolver, nil)
	coord := syncpkg.NewCoordinator(engine, store, monitor, resolver, syncCfg, cfg.Agent.UserID, nil)

	monitor.Start()
	if syncCfg.Enabled {
		coord.Start()
		log.Println("✅ Sync coordinator started")
	} else {
		log.Println("⚠️ Sync disabled, operating in offline-only mode")
	}

	// 5. Local API for the desktop UI
	api := agent.NewAPI(coord, store, monitor)
	server := &http.Server{
		Addr:    "127.0.0.1:" + cfg.Agent.Port,
		Handler: api,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 Agent API listening on 127.0.0.1:%s (user %s)\n", cfg.Agent.Port, cfg.Agent.UserID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start agent API: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Agent API shutdown error: %v", err)
	}

	if syncCfg.Enabled {
		coord.Stop()
	}
	monitor.Stop()

	log.Println("🛑 Closing local store...")
	if err := store.Close(); err != nil {
		log.Printf("Local store close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
