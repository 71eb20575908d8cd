// Package config loads flowd's configuration: an optional YAML file with
// environment-variable overrides and .env loading, the same layered
// precedence the teacher applies to its own Config singleton.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/flowd/flowd/internal/edge"
)

// Config is flowd's full runtime configuration (SPEC_FULL.md §4.J).
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Edge       EdgeConfig       `yaml:"edge"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	Graph      GraphConfig      `yaml:"graph"`
	Logging    LoggingConfig    `yaml:"logging"`
	Components ComponentsConfig `yaml:"components"`
}

// ServerConfig holds the two listener addresses flowd exposes.
type ServerConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	AdminListenAddr string `yaml:"admin_listen_addr"`
}

// EdgeConfig tunes the bounded ring buffers every edge allocates.
type EdgeConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// WatchdogConfig tunes the scheduler's liveness checks.
type WatchdogConfig struct {
	PingIntervalSec int `yaml:"ping_interval_sec"`
	PongTimeoutSec  int `yaml:"pong_timeout_sec"`
}

// GraphConfig names an optional graph JSON file to load and start at boot.
type GraphConfig struct {
	StartupFile string `yaml:"startup_file"`
	AutoStart   bool   `yaml:"auto_start"`
}

// ComponentsConfig names the default set of built-in components to
// register (SPEC_FULL.md §4.J's `--components` flag); empty means every
// built-in is registered.
type ComponentsConfig struct {
	Enabled []string `yaml:"enabled"`
}

// LoggingConfig selects slog's handler and level.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide config singleton, loading it from
// CONFIG_PATH (default "config.yaml") on first call.
func Get() *Config {
	once.Do(func() {
		instance = Load(getEnv("CONFIG_PATH", "config.yaml"))
	})
	return instance
}

// Load reads path if present, applies environment overrides, and fills in
// defaults for anything left unset. A missing file is not an error — flowd
// runs on defaults plus environment variables alone.
func Load(path string) *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			slog.Warn("config: failed to parse config file, using defaults", "path", path, "error", err)
			cfg = &Config{}
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	c.Server.ListenAddr = getEnv("FLOWD_LISTEN", c.Server.ListenAddr)
	c.Server.AdminListenAddr = getEnv("FLOWD_ADMIN_LISTEN", c.Server.AdminListenAddr)

	if v := getEnvInt("FLOWD_EDGE_BUFFER_SIZE", 0); v > 0 {
		c.Edge.BufferSize = v
	}
	if v := getEnvInt("FLOWD_WATCHDOG_PING_INTERVAL_SEC", 0); v > 0 {
		c.Watchdog.PingIntervalSec = v
	}
	if v := getEnvInt("FLOWD_WATCHDOG_PONG_TIMEOUT_SEC", 0); v > 0 {
		c.Watchdog.PongTimeoutSec = v
	}

	c.Graph.StartupFile = getEnv("FLOWD_GRAPH_FILE", c.Graph.StartupFile)
	c.Graph.AutoStart = getEnvBool("FLOWD_GRAPH_AUTOSTART", c.Graph.AutoStart)

	if v := getEnvList("FLOWD_COMPONENTS"); len(v) > 0 {
		c.Components.Enabled = v
	}

	c.Logging.Level = getEnv("FLOWD_LOG_LEVEL", c.Logging.Level)
	c.Logging.JSON = getEnvBool("FLOWD_LOG_JSON", c.Logging.JSON)
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "localhost:3569"
	}
	if c.Server.AdminListenAddr == "" {
		c.Server.AdminListenAddr = "localhost:3570"
	}
	if c.Edge.BufferSize == 0 {
		c.Edge.BufferSize = edge.DefaultBufSize
	}
	if c.Watchdog.PingIntervalSec == 0 {
		c.Watchdog.PingIntervalSec = 7
	}
	if c.Watchdog.PongTimeoutSec == 0 {
		c.Watchdog.PongTimeoutSec = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

// getEnvList splits a comma-separated environment variable into a
// trimmed, non-empty component-name list.
func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
