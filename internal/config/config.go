package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/micro-ha/moodo-bridge/addon/internal/moodo"
	"github.com/micro-ha/moodo-bridge/addon/internal/push"
)

const (
	defaultHTTPAddr        = ":8099"
	defaultDBPath          = "/data/moodo_bridge.db"
	defaultRefreshInterval = 30 * time.Second
)

// Config stores runtime settings loaded from environment variables.
type Config struct {
	HTTPAddr        string
	DBPath          string
	APIBaseURL      string
	SocketURL       string
	RefreshInterval time.Duration
	Email           string
	Password        string
	LogLevel        slog.Level
}

// Load builds Config from environment variables using stable defaults.
func Load() Config {
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", defaultHTTPAddr),
		DBPath:          getenv("DB_PATH", defaultDBPath),
		APIBaseURL:      getenv("MOODO_API_URL", moodo.DefaultBaseURL),
		SocketURL:       getenv("MOODO_SOCKET_URL", push.DefaultSocketURL),
		RefreshInterval: parseDuration("REFRESH_INTERVAL", defaultRefreshInterval),
		Email:           getenv("MOODO_EMAIL", ""),
		Password:        getenv("MOODO_PASSWORD", ""),
		LogLevel:        parseLogLevel(getenv("LOG_LEVEL", "info")),
	}
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
