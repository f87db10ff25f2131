// Command chatwired serves the chat backend: REST API, websocket
// fanout and presence.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/driftlabs/chatwire/api"
	"github.com/driftlabs/chatwire/auth"
	"github.com/driftlabs/chatwire/chat"
	"github.com/driftlabs/chatwire/config"
	"github.com/driftlabs/chatwire/kafka"
	"github.com/driftlabs/chatwire/postgres"
	"github.com/driftlabs/chatwire/presence"
	"github.com/driftlabs/chatwire/redis"
	"github.com/driftlabs/chatwire/s3"
	"github.com/driftlabs/chatwire/ws"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(logger); err != nil {
		logger.Error("Exiting", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pg, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	hub := ws.NewHub(logger)

	// The fanout the engine publishes to. With Kafka configured,
	// publishes take a round trip through the broker so every
	// instance's hub sees them.
	var broadcast interface {
		Publish(topic string, payload any)
	} = hub
	if len(cfg.KafkaBrokers) > 0 {
		bridge := kafka.NewBridge(logger, cfg.KafkaBrokers, cfg.KafkaTopic, hub)
		defer bridge.Close()
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error("Fanout bridge stopped", "error", err.Error())
			}
		}()
		broadcast = bridge
		logger.Info("Cross-instance fanout enabled", "brokers", cfg.KafkaBrokers)
	}

	var store presence.Store
	switch cfg.PresenceBackend {
	case "redis":
		rdb, err := redis.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()
		store = rdb
	case "memory", "":
		store = presence.NewMemoryStore()
	default:
		return fmt.Errorf("unknown presence backend %q", cfg.PresenceBackend)
	}

	tracker := &presence.Tracker{
		Logger:    logger,
		Store:     store,
		Broadcast: broadcast,
		MaxAge:    cfg.PresenceTTL,
	}

	engine := &chat.Service{
		Logger:    logger,
		DB:        pg,
		Users:     pg,
		Broadcast: broadcast,
	}

	tokens := auth.NewService(cfg.JWTSecret, cfg.JWTTTL)

	var files api.FileStore
	if cfg.S3Bucket != "" {
		uploader, err := s3.Connect(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey)
		if err != nil {
			return fmt.Errorf("connect to s3: %w", err)
		}
		files = uploader
	}

	restAPI := &api.API{
		Logger:    logger,
		Chat:      engine,
		Users:     pg,
		Contacts:  pg,
		Presence:  tracker,
		Tokens:    tokens,
		Files:     files,
		Val:       api.NewValidator(),
		MasterKey: cfg.MasterKey,
	}
	wsServer := &ws.Server{
		Logger:   logger,
		Hub:      hub,
		Chat:     engine,
		Presence: tracker,
		Tokens:   tokens,
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", restAPI)
	mux.Handle("GET /ws", wsServer)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Info("Listening", "addr", cfg.HTTPAddr, "presence_backend", cfg.PresenceBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
