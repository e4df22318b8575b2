// Package main is the entry point for the Basecaster game server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/events"
	"github.com/MRamiBalles/Basecaster/internal/identity"
	"github.com/MRamiBalles/Basecaster/internal/infra/cache"
	"github.com/MRamiBalles/Basecaster/internal/infra/storage"
	"github.com/MRamiBalles/Basecaster/internal/leaderboard"
	"github.com/MRamiBalles/Basecaster/internal/network"
	"github.com/MRamiBalles/Basecaster/internal/platform/config"
	"github.com/MRamiBalles/Basecaster/internal/platform/logger"
	"github.com/MRamiBalles/Basecaster/internal/platform/metrics"
	"github.com/MRamiBalles/Basecaster/internal/platform/optimization"
	"github.com/MRamiBalles/Basecaster/internal/savegame"
	"github.com/MRamiBalles/Basecaster/internal/session"
)

func main() {
	configPath := flag.String("config", os.Getenv("BASECASTER_CONFIG"), "YAML config file")
	flag.Parse()

	log.Println("[BASECASTER] Initializing Basecaster game server...")
	appLogger := logger.NewLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	opt := optimization.ForProfile(cfg.Server.Profile)
	appLogger.Infof("Runtime profile %q, %d cards in catalog", cfg.Server.Profile, catalog.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appLogger.Infof("Initializing SQLite database %q...", cfg.Storage.SQLitePath)
	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("data dir: %v", err)
		}
	}
	db, err := storage.InitSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		appLogger.Errorf("Failed to initialize SQLite: %v", err)
		os.Exit(1)
	}
	defer db.Close()
	storage.TunePool(db, opt.DBMaxOpenConns, opt.DBMaxIdleConns)

	kv := storage.NewSQLiteKV(db)
	eventRepo := storage.NewSQLiteEventRepository(db)

	appLogger.Info("Bootstrapping audit EventLog...")
	eventLog := events.NewBufferedEventLog(storage.NewEventPersister(eventRepo), opt.EventChannelBuffer)
	eventLog.OnError(func(e events.GameEvent, err error) {
		appLogger.Warnf("audit event %s (%s) not persisted: %v", e.ID, e.Type, err)
	})
	logCtx, stopLog := context.WithCancel(context.Background())
	go eventLog.Start(logCtx)

	appLogger.Info("Bootstrapping leaderboard...")
	var store leaderboard.Store
	if dsn := cfg.Leaderboard.PostgresDSN; dsn != "" {
		pg, err := storage.OpenPostgresLeaderboard(ctx, dsn, opt.PGMaxConns)
		if err != nil {
			appLogger.Errorf("Failed to connect to Postgres: %v", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			appLogger.Errorf("Failed to prepare leaderboard schema: %v", err)
			os.Exit(1)
		}
		store = pg
		appLogger.Info("Leaderboard mirrored to Postgres")
	} else {
		store = storage.NewSQLiteLeaderboard(db)
		appLogger.Warn("No Postgres DSN configured, leaderboard kept in the local SQLite file")
	}
	board := leaderboard.NewBoard(store, cache.NewLeaderboardCache(cfg.Leaderboard.CacheSize, cfg.Leaderboard.CacheTTL), cfg.Leaderboard.TopN)

	registry := identity.NewRegistry(kv, nil)
	sessions := session.NewManager(session.Deps{
		Slots:        savegame.NewSlots(kv, catalog, cfg.Economy, nil),
		Registry:     registry,
		KV:           kv,
		EventLog:     eventLog,
		Catalog:      catalog,
		Rules:        cfg.Economy,
		Rewards:      cfg.Rewards,
		Leaderboard:  store,
		Board:        board,
		SyncInterval: cfg.Leaderboard.SyncInterval,
		PushTimeout:  cfg.Leaderboard.PushTimeout,
		Linger:       cfg.Server.SessionLinger,
	}, appLogger)

	appLogger.Info("Bootstrapping WebSocket Hub...")
	validator, err := network.NewValidator()
	if err != nil {
		log.Fatalf("intent schema: %v", err)
	}
	dispatcher := network.NewDispatcher(appLogger)
	hub := network.NewHub(sessions, dispatcher, validator, opt, appLogger)
	go hub.Run(ctx)

	go watchTuning(ctx, opt, appLogger)

	mux := http.NewServeMux()
	network.NewAPI(sessions, registry, board, dispatcher, validator, appLogger).RegisterRoutes(mux)
	network.NewHistoryHandler(eventRepo, appLogger).RegisterRoutes(mux)
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/metrics", metrics.Handler())
	mux.HandleFunc("/metrics/prometheus", metrics.PrometheusHandler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[BASECASTER] HTTP API & WS server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Println("[BASECASTER] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[BASECASTER] Shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warnf("HTTP shutdown: %v", err)
	}
	cancel()
	sessions.Shutdown()
	stopLog()
	eventLog.Wait()
	if n := eventLog.Dropped(); n > 0 {
		appLogger.Warnf("%d audit events were dropped under load", n)
	}
	log.Println("[BASECASTER] Bye.")
}

// watchTuning logs tuning recommendations derived from live metrics.
func watchTuning(ctx context.Context, opt *optimization.Config, appLogger *logger.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec := optimization.Analyze(metrics.Get().Snapshot())
			for _, note := range rec.Notes {
				appLogger.Warnf("tuning: %s", note)
			}
			if len(rec.Notes) > 0 {
				suggested := *opt
				next := optimization.ApplyRecommendations(&suggested, rec)
				appLogger.Infof("tuning: suggested buffers event=%d client=%d, rate=%d/s", next.EventChannelBuffer, next.ClientSendBuffer, next.MaxMessagesPerSecond)
			}
		}
	}
}
