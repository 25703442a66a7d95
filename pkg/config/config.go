// Package config resolves process configuration from environment
// variables with sensible defaults. Values are read once at startup in
// the composition root and passed down explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/relayops/agentgate/pkg/models"
)

// Config is the resolved process configuration.
type Config struct {
	// HTTP server.
	Host string
	Port int

	// Persistence. When DatabaseURL is empty the process runs with the
	// in-memory store (no durable limits, rules, or audit rows).
	DatabaseURL string

	// Rate limiting.
	DefaultLimits models.LimitConfig
	ConfigTTL     time.Duration

	// Wait queue.
	QueueMaxSize        int
	ProcessTimeEstimate time.Duration

	// Permission broker.
	DecisionTimeout time.Duration

	// Cleanup job.
	CleanupInterval time.Duration
	IdleAfter       time.Duration

	// WebSocket.
	WriteTimeout time.Duration
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	port, err := intEnv("PORT", 8000)
	if err != nil {
		return Config{}, err
	}

	defaults := models.DefaultLimitConfig()
	if defaults.PerMinute, err = intEnv("LIMIT_PER_MINUTE", defaults.PerMinute); err != nil {
		return Config{}, err
	}
	if defaults.PerHour, err = intEnv("LIMIT_PER_HOUR", defaults.PerHour); err != nil {
		return Config{}, err
	}
	if defaults.PerDay, err = intEnv("LIMIT_PER_DAY", defaults.PerDay); err != nil {
		return Config{}, err
	}
	if defaults.Concurrent, err = intEnv("LIMIT_CONCURRENT", defaults.Concurrent); err != nil {
		return Config{}, err
	}

	queueMax, err := intEnv("QUEUE_MAX_SIZE", 100)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Host:                getEnvOrDefault("HOST", "0.0.0.0"),
		Port:                port,
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DefaultLimits:       defaults,
		ConfigTTL:           durationEnv("CONFIG_CACHE_TTL", 5*time.Minute),
		QueueMaxSize:        queueMax,
		ProcessTimeEstimate: durationEnv("QUEUE_PROCESS_ESTIMATE", 30*time.Second),
		DecisionTimeout:     durationEnv("PERMISSION_TIMEOUT", 300*time.Second),
		CleanupInterval:     durationEnv("CLEANUP_INTERVAL", 5*time.Minute),
		IdleAfter:           durationEnv("CLEANUP_IDLE_AFTER", 30*time.Minute),
		WriteTimeout:        durationEnv("WS_WRITE_TIMEOUT", 10*time.Second),
	}
	return cfg, nil
}

// Addr returns the host:port the HTTP server binds to.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func intEnv(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
