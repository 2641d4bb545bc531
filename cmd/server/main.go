package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cfl-optimizer/internal/api"
	"github.com/stitts-dev/cfl-optimizer/internal/api/handlers"
	"github.com/stitts-dev/cfl-optimizer/internal/normalizer"
	"github.com/stitts-dev/cfl-optimizer/internal/optimizer"
	"github.com/stitts-dev/cfl-optimizer/internal/providers"
	"github.com/stitts-dev/cfl-optimizer/internal/services"
	"github.com/stitts-dev/cfl-optimizer/internal/store"
	"github.com/stitts-dev/cfl-optimizer/internal/websocket"
	"github.com/stitts-dev/cfl-optimizer/pkg/cache"
	"github.com/stitts-dev/cfl-optimizer/pkg/config"
	"github.com/stitts-dev/cfl-optimizer/pkg/database"
	"github.com/stitts-dev/cfl-optimizer/pkg/logger"
)

const service = "cfl-optimizer"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	log := logger.WithService(service)
	log.WithFields(logrus.Fields{
		"version":     "1.0.0",
		"environment": cfg.Env,
		"port":        cfg.Port,
		"backend":     cfg.SolverBackend,
	}).Info("Starting CFL optimizer service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	poolStore := store.NewPoolStore(db.DB, structuredLogger)
	if err := poolStore.Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is optional; without it results are cached in process.
	var (
		redisClient *redis.Client
		resultCache cache.Cache = cache.NewMemoryCache()
	)
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, using in-memory cache")
		} else {
			defer redisClient.Close()
			resultCache = cache.NewRedisCache(redisClient)
		}
	}
	cacheService := cache.NewOptimizationCacheService(resultCache, cfg.CacheTTL, structuredLogger)

	engines, err := buildEngines(cfg)
	if err != nil {
		log.Fatalf("Failed to build optimizer engine: %v", err)
	}

	feed := providers.NewCFLFeedClient(cfg.FeedClientConfig(), structuredLogger)

	// Scheduled refresh keeps the latest snapshot current without /load-data calls.
	var dataFetcher *services.DataFetcherService
	if cfg.FeedRefreshSchedule != "" {
		dataFetcher = services.NewDataFetcherService(feed, poolStore, cfg.FeedRefreshSchedule, structuredLogger)
		if err := dataFetcher.Start(); err != nil {
			log.Fatalf("Failed to start data fetcher: %v", err)
		}
	}

	wsHub := websocket.NewHub(structuredLogger)
	go wsHub.Run(ctx)

	normOpts := normalizer.Options{LeagueTeams: cfg.LeagueTeams}
	router := api.NewRouter(api.Handlers{
		Optimizer: handlers.NewOptimizerHandler(engines, cfg.RosterRequirement(), normOpts, cacheService, poolStore, wsHub, structuredLogger),
		Pool:      handlers.NewPoolHandler(poolStore, feed, normOpts, structuredLogger),
		Health:    handlers.NewHealthHandler(db, redisClient, wsHub, cfg.SolverBackend),
		Hub:       wsHub,
	}, cfg.CorsOrigins, structuredLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("CFL optimizer service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down CFL optimizer service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	if dataFetcher != nil {
		dataFetcher.Stop()
	}
	cancel()

	log.Info("CFL optimizer service exited")
}

// buildEngines creates one engine per backend so requests can pick one with
// ?engine=. The configured backend is the default.
func buildEngines(cfg *config.Config) (handlers.Engines, error) {
	engines := handlers.Engines{
		ByBackend: make(map[string]*optimizer.Engine),
		Default:   cfg.SolverBackend,
	}
	for _, backend := range []string{optimizer.BackendBranchAndBound, optimizer.BackendExhaustive} {
		engineCfg := cfg.EngineConfig()
		engineCfg.Solve.Backend = backend
		engine, err := optimizer.NewEngine(engineCfg)
		if err != nil {
			return engines, err
		}
		engines.ByBackend[backend] = engine
	}
	if _, ok := engines.ByBackend[cfg.SolverBackend]; !ok {
		return engines, fmt.Errorf("unknown SOLVER_BACKEND %q", cfg.SolverBackend)
	}
	return engines, nil
}
