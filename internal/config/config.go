// Package config loads memowallet settings from defaults, an optional YAML
// file and MEMOWALLET_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env       string `yaml:"env"`        // dev, staging, prod (default: dev)
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error (default: info)
	LogFormat string `yaml:"log_format"` // json, text (default: text)

	DataDir      string `yaml:"data_dir"`       // local database and key files (default: ~/.memowallet)
	RedisURL     string `yaml:"redis_url"`      // optional shared store and event stream
	RedisPrefix  string `yaml:"redis_prefix"`   // key prefix in redis (default: memowallet:)
	StoreKeyFile string `yaml:"store_key_file"` // secure store key (default: <data_dir>/store.key)

	BackendURL      string        `yaml:"backend_url"`       // handshake backend (default: http://localhost:9000)
	AllowDevSession bool          `yaml:"allow_dev_session"` // synthesize sessions when the backend is down
	RefreshTimeout  time.Duration `yaml:"refresh_timeout"`   // handshake timeout (default: 30s)

	SponsorAPI string  `yaml:"sponsor_api"` // relayer endpoint (default: http://localhost:8787/forward)
	RelayRPS   float64 `yaml:"relay_rps"`   // client-side relay rate (default: 2)
	RelayBurst int     `yaml:"relay_burst"` // (default: 4)

	NodeURL       string        `yaml:"node_url"`       // chain node websocket (default: ws://127.0.0.1:9944)
	DialTimeout   time.Duration `yaml:"dial_timeout"`   // (default: 30s)
	TokenDecimals int32         `yaml:"token_decimals"` // (default: 12)
	TokenSymbol   string        `yaml:"token_symbol"`   // (default: DUST)

	ListenAddr     string `yaml:"listen_addr"`      // handshaked listen address (default: :9000)
	SigningKeyFile string `yaml:"signing_key_file"` // handshaked ES256 key (default: <data_dir>/signing.pem)
}

// Default returns the built-in settings
func Default() Config {
	dataDir := ".memowallet"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".memowallet")
	}
	return Config{
		Env:            "dev",
		LogLevel:       "info",
		LogFormat:      "text",
		DataDir:        dataDir,
		RedisPrefix:    "memowallet:",
		BackendURL:     "http://localhost:9000",
		RefreshTimeout: 30 * time.Second,
		SponsorAPI:     "http://localhost:8787/forward",
		RelayRPS:       2,
		RelayBurst:     4,
		NodeURL:        "ws://127.0.0.1:9944",
		DialTimeout:    30 * time.Second,
		TokenDecimals:  12,
		TokenSymbol:    "DUST",
		ListenAddr:     ":9000",
	}
}

// Load reads path (if not empty) over the defaults and applies environment overrides
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if cfg.StoreKeyFile == "" {
		cfg.StoreKeyFile = filepath.Join(cfg.DataDir, "store.key")
	}
	if cfg.SigningKeyFile == "" {
		cfg.SigningKeyFile = filepath.Join(cfg.DataDir, "signing.pem")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Env = getEnvOrDefault("MEMOWALLET_ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("MEMOWALLET_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("MEMOWALLET_LOG_FORMAT", cfg.LogFormat)
	cfg.DataDir = getEnvOrDefault("MEMOWALLET_DATA_DIR", cfg.DataDir)
	cfg.RedisURL = getEnvOrDefault("MEMOWALLET_REDIS_URL", cfg.RedisURL)
	cfg.RedisPrefix = getEnvOrDefault("MEMOWALLET_REDIS_PREFIX", cfg.RedisPrefix)
	cfg.StoreKeyFile = getEnvOrDefault("MEMOWALLET_STORE_KEY_FILE", cfg.StoreKeyFile)
	cfg.BackendURL = getEnvOrDefault("MEMOWALLET_BACKEND_URL", cfg.BackendURL)
	cfg.SponsorAPI = getEnvOrDefault("MEMOWALLET_SPONSOR_API", cfg.SponsorAPI)
	cfg.NodeURL = getEnvOrDefault("MEMOWALLET_NODE_URL", cfg.NodeURL)
	cfg.TokenSymbol = getEnvOrDefault("MEMOWALLET_TOKEN_SYMBOL", cfg.TokenSymbol)
	cfg.ListenAddr = getEnvOrDefault("MEMOWALLET_LISTEN_ADDR", cfg.ListenAddr)
	cfg.SigningKeyFile = getEnvOrDefault("MEMOWALLET_SIGNING_KEY_FILE", cfg.SigningKeyFile)

	var errs []error
	var err error
	if cfg.AllowDevSession, err = getEnvBoolOrDefault("MEMOWALLET_ALLOW_DEV_SESSION", cfg.AllowDevSession); err != nil {
		errs = append(errs, err)
	}
	if cfg.RefreshTimeout, err = getEnvDurationOrDefault("MEMOWALLET_REFRESH_TIMEOUT", cfg.RefreshTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.DialTimeout, err = getEnvDurationOrDefault("MEMOWALLET_DIAL_TIMEOUT", cfg.DialTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.RelayRPS, err = getEnvFloatOrDefault("MEMOWALLET_RELAY_RPS", cfg.RelayRPS); err != nil {
		errs = append(errs, err)
	}
	if cfg.RelayBurst, err = getEnvIntOrDefault("MEMOWALLET_RELAY_BURST", cfg.RelayBurst); err != nil {
		errs = append(errs, err)
	}
	decimals, err := getEnvIntOrDefault("MEMOWALLET_TOKEN_DECIMALS", int(cfg.TokenDecimals))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.TokenDecimals = int32(decimals)

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
