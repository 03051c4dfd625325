package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/memowallet/adapters/events"
	"github.com/layer-3/memowallet/adapters/handshake"
	"github.com/layer-3/memowallet/adapters/store"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/internal/config"
	"github.com/layer-3/memowallet/internal/slogx"
	"github.com/layer-3/memowallet/ports"
	"github.com/layer-3/memowallet/service"
	"github.com/redis/go-redis/v9"
)

// app holds the wiring shared by every command
type app struct {
	cfg    config.Config
	logger *slog.Logger
	clock  clock.Clock

	store      *store.SecureStore
	keystore   *service.Keystore
	history    *service.TxHistory
	events     ports.EventPublisher
	signer     *lazySigner
	handshaker *handshake.HTTPHandshaker
	sessions   *service.SessionManager

	closers []io.Closer
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := slogx.New(slogx.Config{
		Service: "memowallet",
		Version: version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	mode, err := authMode(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, clock: clock.Real()}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	key, err := loadOrCreateStoreKey(cfg.StoreKeyFile)
	if err != nil {
		return nil, err
	}

	var kv ports.KV
	var publisher message.Publisher
	wmLogger := watermill.NewSlogLogger(logger)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client)

		redisStore := store.NewRedisStore(client, cfg.RedisPrefix)
		if err := redisStore.Ping(ctx); err != nil {
			a.Close()
			return nil, err
		}
		kv = redisStore

		streamPub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, wmLogger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create redis publisher: %w", err)
		}
		a.closers = append(a.closers, streamPub)
		publisher = streamPub
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, filepath.Join(cfg.DataDir, "wallet.db"), a.clock)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sqliteStore)
		kv = sqliteStore

		pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		a.closers = append(a.closers, pubSub)
		if err := auditSessionEvents(ctx, pubSub, logger); err != nil {
			a.Close()
			return nil, err
		}
		publisher = pubSub
	}

	a.store, err = store.NewSecureStore(kv, key, a.clock)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.keystore = service.NewKeystore(a.store, a.clock, logger)
	a.history = service.NewTxHistory(a.store, a.clock, 0)
	a.events = events.NewWatermillPublisher(publisher)
	a.signer = &lazySigner{}

	a.handshaker = handshake.NewHTTPHandshaker(cfg.BackendURL, a.signer, nil, a.clock)
	a.sessions = service.NewSessionManager(a.store, a.handshaker, service.HostProbe{}, a.events, a.clock, logger, service.SessionConfig{
		Mode:           mode,
		RefreshTimeout: cfg.RefreshTimeout,
	})
	return a, nil
}

func (a *app) Close() {
	if a.sessions != nil {
		a.sessions.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Debug("close failed", "error", err)
		}
	}
}

// authMode maps the dev session flag; it is refused in production
func authMode(cfg config.Config) (core.AuthMode, error) {
	if !cfg.AllowDevSession {
		return core.AuthModeStrict, nil
	}
	if strings.EqualFold(cfg.Env, "prod") {
		return core.AuthModeStrict, errors.New("allow_dev_session cannot be enabled when env is prod")
	}
	return core.AuthModeDevelopmentFallback, nil
}

// loadOrCreateStoreKey reads the hex secure store key at path, creating it on first use
func loadOrCreateStoreKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil || len(key) != store.KeySize {
			return nil, fmt.Errorf("store key %s is not %d hex bytes", path, store.KeySize)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read store key: %w", err)
	}

	key := make([]byte, store.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate store key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write store key: %w", err)
	}
	return key, nil
}

// auditSessionEvents logs in-process session events at debug level
func auditSessionEvents(ctx context.Context, sub message.Subscriber, logger *slog.Logger) error {
	messages, err := sub.Subscribe(ctx, events.SessionTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session events: %w", err)
	}
	go func() {
		for msg := range messages {
			event, err := events.DecodeSessionEvent(msg)
			if err != nil {
				logger.Warn("dropping malformed session event", "error", err)
			} else {
				logger.Debug("session event", "type", event.Type, "address", event.Address, "reason", event.Reason)
			}
			msg.Ack()
		}
	}()
	return nil
}
