package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appconfig "github.com/avdeeva/fieldline/internal/config"
	"github.com/avdeeva/fieldline/internal/database"
	"github.com/avdeeva/fieldline/internal/dispatch"
	"github.com/avdeeva/fieldline/internal/lifecycle"
	"github.com/avdeeva/fieldline/internal/pubsub"
	"github.com/avdeeva/fieldline/internal/redis"
	"github.com/avdeeva/fieldline/internal/relay"
	"github.com/avdeeva/fieldline/internal/repository"
	"github.com/avdeeva/fieldline/internal/server"
	"github.com/avdeeva/fieldline/internal/storage"
	"github.com/avdeeva/fieldline/internal/store"
	httpapi "github.com/avdeeva/fieldline/internal/transport/http"
)

func main() {
	cfg := appconfig.Load()
	slog.Info("starting fieldline", "addr", cfg.HTTPAddr, "broker", cfg.BrokerMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	storageService, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}

	storageType := storage.GetStorageType(cfg)
	slog.Info("storage initialized", "type", storageType)

	redisService, err := redis.New(cfg.RedisURL, cfg.LocationTTL)
	if err != nil {
		slog.Error("failed to connect to Redis", "err", err)
		os.Exit(1)
	}
	defer redisService.Close()

	var broker pubsub.Broker
	switch cfg.BrokerMode {
	case "memory":
		broker = pubsub.NewMemoryBroker()
	default:
		broker = pubsub.NewRedisBroker(redisService.Client())
	}
	defer broker.Close()

	repo := repository.New(db)
	jobStore := store.NewPostgresStore(db)

	dispatchEngine := dispatch.NewEngine(jobStore, broker, repo)
	lifecycleCtrl := lifecycle.NewController(jobStore, broker)
	jobRelay := relay.NewRelay(jobStore, broker, redisService)

	handlers := &httpapi.Handlers{
		Dispatch:  dispatchEngine,
		Lifecycle: lifecycleCtrl,
		Relay:     jobRelay,
		Store:     jobStore,
		Repo:      repo,
		Storage:   storageService,
		Redis:     redisService,
		Broker:    broker,
		Config:    cfg,
	}
	r := server.NewRouter(handlers)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	slog.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	cancel()
}
