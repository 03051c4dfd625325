// handshaked is the reference handshake backend: it issues sign-in
// challenges and exchanges signed challenges for session tokens.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/layer-3/memowallet/adapters/events"
	"github.com/layer-3/memowallet/adapters/store"
	"github.com/layer-3/memowallet/adapters/tokenizer"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/internal/config"
	"github.com/layer-3/memowallet/internal/slogx"
	"github.com/layer-3/memowallet/ports"
	"github.com/layer-3/memowallet/service"
	transport "github.com/layer-3/memowallet/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flagSet := pflag.NewFlagSet("handshaked", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", os.Getenv("MEMOWALLET_CONFIG"), "path to a YAML config file")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slogx.New(slogx.Config{
		Service: "handshaked",
		Version: version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	privateKey, err := loadOrCreateSigningKey(cfg.SigningKeyFile)
	if err != nil {
		return err
	}

	c := clock.Real()
	var kv ports.KV
	var authOpts []service.AuthServiceOption
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		redisStore := store.NewRedisStore(redisClient, cfg.RedisPrefix)
		if err := redisStore.Ping(ctx); err != nil {
			return err
		}
		kv = redisStore

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			watermill.NewSlogLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("failed to create redis publisher: %w", err)
		}
		defer publisher.Close()
		authOpts = append(authOpts, service.WithEvents(events.NewWatermillPublisher(publisher)))
	} else {
		logger.Warn("no redis_url configured, challenges are kept in memory")
		kv = store.NewMemoryStore(c)
	}

	tokens := tokenizer.NewJWTTokenizer(privateKey, c)
	authOpts = append(authOpts, service.WithRevocations(store.NewRevocationStore(kv)))
	authService := service.NewAuthService(tokens, store.NewChallengeStore(kv), c, logger, service.DefaultAuthServiceConfig(), authOpts...)

	router := transport.SetupRouter(authService, logger)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("handshake backend listening", "addr", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("stopped")
	return nil
}
