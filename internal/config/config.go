// Package config reads the environment once at startup into a typed Config
// value. Nothing else in the process reads environment variables; the
// Config is passed by reference to every component that needs it.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Wawtawsha/durandal-mcp/internal/logging"
	"github.com/Wawtawsha/durandal-mcp/internal/paths"
)

// Config holds the full runtime configuration.
type Config struct {
	Logging LoggingConfig
	Store   StoreConfig
	Cache   CacheConfig
	Server  ServerConfig
	Update  UpdateConfig
}

// LoggingConfig configures the logger sinks and level.
type LoggingConfig struct {
	Level        int
	Verbose      bool
	LogFile      string
	ErrorLogFile string
	LogToolCalls bool // LOG_MCP_TOOLS: log full tool arguments
}

// StoreConfig configures the embedded store.
type StoreConfig struct {
	DatabasePath     string
	ContentSoftLimit int // bytes; warn above this, never reject
}

// CacheConfig configures the hot tier.
type CacheConfig struct {
	Capacity  int
	SearchTTL time.Duration
}

// ServerConfig configures the protocol server.
type ServerConfig struct {
	MaxInFlight   int64
	ShutdownGrace time.Duration
}

// UpdateConfig configures the npm update check.
type UpdateConfig struct {
	Enabled       bool
	Notify        bool
	AutoUpdate    bool
	CheckInterval time.Duration
}

// Load reads the environment and returns the effective configuration.
func Load() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:        logging.LevelInfo,
			LogFile:      os.Getenv("LOG_FILE"),
			ErrorLogFile: os.Getenv("ERROR_LOG_FILE"),
			Verbose:      envBool("VERBOSE", false),
			LogToolCalls: envBool("LOG_MCP_TOOLS", false),
		},
		Store: StoreConfig{
			DatabasePath:     paths.DefaultDatabasePath(),
			ContentSoftLimit: 1 << 20,
		},
		Cache: CacheConfig{
			Capacity:  envInt("CACHE_SIZE", 1000),
			SearchTTL: time.Duration(envInt("CACHE_TTL_MINUTES", 30)) * time.Minute,
		},
		Server: ServerConfig{
			MaxInFlight:   int64(envInt("MAX_INFLIGHT_REQUESTS", 64)),
			ShutdownGrace: 5 * time.Second,
		},
		Update: UpdateConfig{
			Enabled:       envBool("UPDATE_CHECK_ENABLED", true),
			Notify:        envBool("UPDATE_NOTIFICATION", true),
			AutoUpdate:    envBool("AUTO_UPDATE", false),
			CheckInterval: time.Duration(envInt("UPDATE_CHECK_INTERVAL", 86_400_000)) * time.Millisecond,
		},
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = logging.ParseLevel(v)
	}
	if envBool("DEBUG", false) {
		cfg.Logging.Level = logging.LevelDebug
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Store.DatabasePath = v
	}

	// npm-style opt-outs win over everything else.
	if envSet("NO_UPDATE_CHECK") {
		cfg.Update.Enabled = false
	}
	if envSet("NO_UPDATE_NOTIFIER") {
		cfg.Update.Notify = false
	}

	return cfg
}

func envBool(name string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envSet(name string) bool {
	return os.Getenv(name) != ""
}
