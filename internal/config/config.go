// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Routing modes for flip delivery.
const (
	RoutingTargeted = "targeted"
	RoutingSharded  = "sharded"
)

// Config is the full runtime configuration. Zero values are never used
// directly; Load fills defaults and Validate rejects inconsistent timings.
type Config struct {
	Port     int
	StoreURL string
	ServerID string

	HeartbeatInterval time.Duration
	PresenceTTL       time.Duration
	WatcherTTL        time.Duration

	MaxFocusPerClient   int
	FocusRatePerMinute  int
	MaxConnectionsPerIP int
	MaxSnapshotBatch    int

	RoutingMode string
	ShardCount  int

	JWTSecret string
}

// RefreshCooldown is the minimum gap between presence refreshes for one
// session. Keeping it at half the TTL bounds per-session refresh traffic at
// O(1/TTL) while never letting an owned key lapse.
func (c Config) RefreshCooldown() time.Duration {
	return c.PresenceTTL / 2
}

// Load reads the environment, applying defaults for anything unset. A missing
// SERVER_ID gets a fresh UUID, stable for the process lifetime.
func Load() (Config, error) {
	cfg := Config{
		StoreURL:    env("STORE_URL", "redis://127.0.0.1:6379/0"),
		ServerID:    env("SERVER_ID", ""),
		RoutingMode: env("ROUTING_MODE", RoutingTargeted),
		JWTSecret:   env("JWT_SECRET", "dev-secret-please-change"),
	}
	if cfg.ServerID == "" {
		cfg.ServerID = uuid.NewString()
	}

	var err error
	if cfg.Port, err = envInt("PORT", 8080); err != nil {
		return Config{}, err
	}
	heartbeatMs, err := envInt("HEARTBEAT_INTERVAL_MS", 30000)
	if err != nil {
		return Config{}, err
	}
	cfg.HeartbeatInterval = time.Duration(heartbeatMs) * time.Millisecond
	ttlSec, err := envInt("PRESENCE_TTL_SECONDS", 90)
	if err != nil {
		return Config{}, err
	}
	cfg.PresenceTTL = time.Duration(ttlSec) * time.Second
	watcherSec, err := envInt("WATCHER_TTL_SECONDS", 120)
	if err != nil {
		return Config{}, err
	}
	cfg.WatcherTTL = time.Duration(watcherSec) * time.Second
	if cfg.MaxFocusPerClient, err = envInt("MAX_FOCUS_PER_CLIENT", 100); err != nil {
		return Config{}, err
	}
	if cfg.FocusRatePerMinute, err = envInt("FOCUS_RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return Config{}, err
	}
	if cfg.MaxConnectionsPerIP, err = envInt("MAX_CONNECTIONS_PER_IP", 10); err != nil {
		return Config{}, err
	}
	if cfg.MaxSnapshotBatch, err = envInt("MAX_SNAPSHOT_BATCH", 500); err != nil {
		return Config{}, err
	}
	if cfg.ShardCount, err = envInt("PRESENCE_SHARD_COUNT", 1); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the timing relations the presence protocol depends on:
// the heartbeat must fire at least twice per TTL window, otherwise an owned
// key can expire between refresh opportunities.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if c.PresenceTTL <= 2*c.HeartbeatInterval {
		return fmt.Errorf("presence ttl %s must exceed twice the heartbeat interval %s",
			c.PresenceTTL, c.HeartbeatInterval)
	}
	if c.WatcherTTL <= 0 {
		return fmt.Errorf("watcher ttl must be positive")
	}
	if c.MaxFocusPerClient <= 0 || c.FocusRatePerMinute <= 0 ||
		c.MaxConnectionsPerIP <= 0 || c.MaxSnapshotBatch <= 0 {
		return fmt.Errorf("limits must be positive")
	}
	switch c.RoutingMode {
	case RoutingTargeted:
	case RoutingSharded:
		if c.ShardCount <= 0 {
			return fmt.Errorf("shard count must be positive in sharded mode")
		}
	default:
		return fmt.Errorf("unknown routing mode %q", c.RoutingMode)
	}
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
