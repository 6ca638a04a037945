package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/server"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/pkg/cache"
	"github.com/noah-isme/learnhub-api/pkg/config"
	"github.com/noah-isme/learnhub-api/pkg/database"
	"github.com/noah-isme/learnhub-api/pkg/logger"
)

// @title LearnHub API
// @version 1.0.0
// @description Course catalog, enrollment and instructor management API
// @BasePath /api
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		migrateCtx, cancel := context.WithTimeout(ctx, cfg.Database.MigrationTimeout)
		err := database.Migrate(migrateCtx, db, database.Up, 0)
		cancel()
		if err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("migrations applied")
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache and rate limiting", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	engine, err := server.New(server.Deps{
		Config:  cfg,
		Logger:  logr,
		DB:      db,
		Redis:   redisClient,
		Metrics: service.NewMetricsService(),
	})
	if err != nil {
		logr.Fatal("failed to build server", zap.Error(err))
	}

	if err := server.Run(ctx, cfg, engine, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}
