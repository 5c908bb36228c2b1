package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	BotToken string
	AdminID  int64 // the single administrator identity
	GroupID  int64 // forum supergroup acting as the admin channel

	// DataDir is the Badger directory; ":memory:" selects the in-memory
	// store (no persistence across restarts).
	DataDir string

	HTTPAddr string // editor API listen address
	APIToken string // optional bearer token for the editor API

	IdleTimeout   time.Duration // inactivity before a session is evicted
	SweepInterval time.Duration // how often the sweeper runs
}

// FromEnv reads configuration from the environment. BOT_TOKEN, ADMIN_ID
// and GROUP_ID are required; everything else has a default.
func FromEnv() (Config, error) {
	cfg := Config{
		BotToken:      os.Getenv("BOT_TOKEN"),
		DataDir:       envOr("DATA_DIR", "./data"),
		HTTPAddr:      envOr("HTTP_ADDR", ":8081"),
		APIToken:      os.Getenv("API_TOKEN"),
		IdleTimeout:   envDuration("IDLE_TIMEOUT", 30*time.Minute),
		SweepInterval: envDuration("SWEEP_INTERVAL", time.Minute),
	}
	if cfg.BotToken == "" {
		return Config{}, fmt.Errorf("BOT_TOKEN is required")
	}
	var err error
	if cfg.AdminID, err = requireInt64("ADMIN_ID"); err != nil {
		return Config{}, err
	}
	if cfg.GroupID, err = requireInt64("GROUP_ID"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func requireInt64(key string) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
