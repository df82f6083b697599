package sdk

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/biofugitive/fieldcache/internal/engine"
	"github.com/biofugitive/fieldcache/internal/platform/config"
	"github.com/biofugitive/fieldcache/internal/redisstore"
	"github.com/biofugitive/fieldcache/internal/vault"
	"github.com/biofugitive/fieldcache/pkg/kv"
)

// Mode names the backend Open picked.
type Mode string

const (
	ModeEmbedded Mode = "embedded"
	ModeRemote   Mode = "remote"
	ModeRedis    Mode = "redis"
)

// Backend is an opened store, ready for the caches.
type Backend struct {
	Mode Mode
	// Store is scoped to the configured namespace and sealed when a vault
	// key is configured.
	Store kv.Store
	// Namespaced is the unscoped view; nil for redis.
	Namespaced engine.Namespaced
	// Embedded is set in embedded mode so a daemon can serve it over TCP.
	Embedded *engine.MemStore

	closer func() error
}

// Close flushes and releases the backend.
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

// Open initializes the store based on configuration. Redis wins over a
// remote daemon, which wins over embedded mode. When the remote daemon is
// unreachable Open falls back to embedded mode.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	b, err := openRaw(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	key, err := cfg.VaultKeyBytes()
	if err != nil {
		b.Close()
		return nil, err
	}
	if key != nil {
		sealed, err := vault.Seal(b.Store, key)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Store = sealed
	}

	logger.Info("store opened",
		zap.String("mode", string(b.Mode)),
		zap.String("namespace", cfg.Namespace),
		zap.Bool("sealed", key != nil))
	return b, nil
}

func openRaw(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Backend, error) {
	if cfg.RedisAddr != "" {
		rs, err := redisstore.New(ctx, redisstore.Config{Addr: cfg.RedisAddr, KeyPrefix: cfg.RedisKeyPrefix})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return &Backend{Mode: ModeRedis, Store: rs.Scope(cfg.Namespace), closer: rs.Close}, nil
	}

	if cfg.StoreAddr != "" {
		client, err := Connect(cfg.StoreAddr, ClientOptions{DisableTLS: cfg.DisableTLS, Logger: logger})
		if err == nil {
			return &Backend{
				Mode:       ModeRemote,
				Store:      client.Scope(cfg.Namespace),
				Namespaced: client,
				closer:     client.Close,
			}, nil
		}
		logger.Warn("remote store unreachable, falling back to embedded mode",
			zap.String("addr", cfg.StoreAddr), zap.Error(err))
	}

	// Embedded mode uses the same engine the daemon uses, inside the process.
	p, err := engine.NewPersistence(cfg.DataDir, logger)
	if err != nil {
		return nil, err
	}
	allData, err := p.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load data dir: %w", err)
	}
	ms := engine.NewMemStore(allData, p, logger)
	return &Backend{
		Mode:       ModeEmbedded,
		Store:      ms.Scope(cfg.Namespace),
		Namespaced: ms,
		Embedded:   ms,
		closer:     ms.Close,
	}, nil
}
