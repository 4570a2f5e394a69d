package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/vishu2124/OT-editor/internal/config"
	httpdelivery "github.com/vishu2124/OT-editor/internal/delivery/http"
	"github.com/vishu2124/OT-editor/internal/delivery/ws"
	"github.com/vishu2124/OT-editor/internal/domain"
	"github.com/vishu2124/OT-editor/internal/hub"
	"github.com/vishu2124/OT-editor/internal/logging"
	filerepo "github.com/vishu2124/OT-editor/internal/repository/file"
	"github.com/vishu2124/OT-editor/internal/repository/memory"
	"github.com/vishu2124/OT-editor/internal/repository/mongorepo"
	"github.com/vishu2124/OT-editor/internal/repository/redisrepo"
	"github.com/vishu2124/OT-editor/internal/usecase"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	store, cleanup, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open document store", zap.Error(err))
	}
	defer cleanup()

	sessions := hub.New(logger)
	manager := usecase.NewEngineManager(store, sessions, clock.New(), logger, usecase.ManagerConfig{
		Engine: usecase.EngineConfig{
			DebounceDelay: cfg.DebounceDelay,
			TailSize:      cfg.TailSize,
		},
		IdleEviction: cfg.IdleEviction,
	})

	wsHandler := ws.NewHandler(sessions, manager, cfg.AllowedOrigin, logger)
	apiHandler := httpdelivery.NewHandler(manager, store, logger)
	router := httpdelivery.NewRouter(apiHandler, wsHandler, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router.Setup(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.Int("port", cfg.Port),
			zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("server failed", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	// Flush every engine before closing the listener; clients may lose their
	// connections but never acknowledged state.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDrain)
	defer cancel()

	drainErr := manager.DrainAll(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logger.Warn("store close failed", zap.Error(err))
	}

	if drainErr != nil {
		logger.Error("shutdown drain incomplete", zap.Error(drainErr))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// openStore builds the configured persistence adapter and a cleanup function
// for its underlying client.
func openStore(cfg config.Config, logger *zap.Logger) (domain.DocumentStore, func(), error) {
	switch cfg.StoreBackend {
	case "file":
		store, err := filerepo.New(cfg.StoreDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case "memory":
		return memory.New(), func() {}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		return redisrepo.New(client, "otedit", logger), func() { client.Close() }, nil

	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
		}
		logger.Info("connected to mongodb", zap.String("uri", cfg.MongoURI))
		collection := client.Database(cfg.MongoDatabase).Collection("documents")
		return mongorepo.New(collection, logger), func() { client.Disconnect(context.Background()) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}
