// Package config loads runtime settings from FIELDCACHE_* environment
// variables. Defaults live in the struct tags.
package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/biofugitive/fieldcache/internal/engine"
)

// Config captures every tunable of the daemon and the CLI.
type Config struct {
	// DataDir holds the embedded store's namespace files.
	DataDir string `env:"FIELDCACHE_DATA_DIR,default=./data"`
	// Namespace scopes this device's keys inside a shared store.
	Namespace string `env:"FIELDCACHE_NAMESPACE,default=device"`

	// StoreAddr points at a remote fieldcached daemon; empty means embedded.
	StoreAddr  string `env:"FIELDCACHE_STORE_ADDR"`
	DisableTLS bool   `env:"FIELDCACHE_DISABLE_TLS,default=false"`
	// RedisAddr selects the redis backend when set, like "localhost:6379".
	RedisAddr      string `env:"FIELDCACHE_REDIS_ADDR"`
	RedisKeyPrefix string `env:"FIELDCACHE_REDIS_PREFIX,default=fieldcache:"`

	// VaultKey is a 64 hex character AES-256 key sealing stored values.
	VaultKey string `env:"FIELDCACHE_VAULT_KEY"`

	TCPPort  string `env:"FIELDCACHE_PORT,default=7001"`
	HTTPAddr string `env:"FIELDCACHE_HTTP_ADDR,default=:7002"`

	APIBaseURL string        `env:"FIELDCACHE_API_BASE_URL,default=https://biofugitive-backend.onrender.com"`
	APITimeout time.Duration `env:"FIELDCACHE_API_TIMEOUT,default=30s"`

	SessionDuration time.Duration `env:"FIELDCACHE_SESSION_DURATION,default=24h"`

	LogLevel string `env:"FIELDCACHE_LOG_LEVEL,default=info"`
	LogDev   bool   `env:"FIELDCACHE_LOG_DEV,default=false"`
}

// FromEnv decodes Config from the environment so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would only fail later at first use.
func (c Config) Validate() error {
	if err := engine.ValidateNamespace(c.Namespace); err != nil {
		return err
	}
	if c.SessionDuration <= 0 {
		return fmt.Errorf("session duration must be positive, got %s", c.SessionDuration)
	}
	if c.VaultKey != "" {
		if _, err := c.VaultKeyBytes(); err != nil {
			return err
		}
	}
	return nil
}

// VaultKeyBytes decodes VaultKey. It returns nil when no key is configured.
func (c Config) VaultKeyBytes() ([]byte, error) {
	if c.VaultKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.VaultKey)
	if err != nil {
		return nil, fmt.Errorf("vault key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
