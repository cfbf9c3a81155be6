package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig
	Rail       RailConfig
	Queue      QueueConfig
	Redis      RedisConfig
	RouteCache RouteCacheConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// RailConfig holds the upstream reservation API settings. AuthToken
// and DeviceKey are process-wide defaults; a submission may override
// both per request.
type RailConfig struct {
	BaseURL   string `mapstructure:"RAIL_API_BASE_URL"`
	AuthToken string `mapstructure:"RAIL_AUTH_TOKEN"`
	DeviceKey string `mapstructure:"RAIL_DEVICE_KEY"`
}

// QueueConfig holds the request scheduler settings. With Enabled off,
// submissions compute synchronously and no scheduler runs.
type QueueConfig struct {
	Enabled               bool          `mapstructure:"QUEUE_ENABLED"`
	MaxConcurrent         int           `mapstructure:"QUEUE_MAX_CONCURRENT"`
	CooldownPeriod        time.Duration `mapstructure:"QUEUE_COOLDOWN_PERIOD"`
	HeartbeatTimeout      time.Duration `mapstructure:"QUEUE_HEARTBEAT_TIMEOUT"`
	CleanupInterval       time.Duration `mapstructure:"QUEUE_CLEANUP_INTERVAL"`
	BatchCleanupThreshold int           `mapstructure:"QUEUE_BATCH_CLEANUP_THRESHOLD"`
}

// RedisConfig holds Redis connection settings for the second-level
// route cache. Disabled by default; the service is fully functional
// on the in-process cache alone.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"REDIS_ENABLED"`
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// RouteCacheConfig holds the in-process route cache settings.
type RouteCacheConfig struct {
	Size int           `mapstructure:"ROUTE_CACHE_SIZE"`
	TTL  time.Duration `mapstructure:"ROUTE_CACHE_TTL"`
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and .env file.
// Unknown keys are ignored; missing keys take the defaults below.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("RAIL_API_BASE_URL", "https://railspaapi.shohoz.com/v1.0/web")
	viper.SetDefault("RAIL_AUTH_TOKEN", "")
	viper.SetDefault("RAIL_DEVICE_KEY", "")

	viper.SetDefault("QUEUE_ENABLED", true)
	viper.SetDefault("QUEUE_MAX_CONCURRENT", 1)
	viper.SetDefault("QUEUE_COOLDOWN_PERIOD", "3s")
	viper.SetDefault("QUEUE_HEARTBEAT_TIMEOUT", "90s")
	viper.SetDefault("QUEUE_CLEANUP_INTERVAL", "45s")
	viper.SetDefault("QUEUE_BATCH_CLEANUP_THRESHOLD", 10)

	viper.SetDefault("REDIS_ENABLED", false)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 100)

	viper.SetDefault("ROUTE_CACHE_SIZE", 256)
	viper.SetDefault("ROUTE_CACHE_TTL", "5m")

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by docker-compose env_file are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Rail API ────────────────────────────────────────
	cfg.Rail = RailConfig{
		BaseURL:   viper.GetString("RAIL_API_BASE_URL"),
		AuthToken: viper.GetString("RAIL_AUTH_TOKEN"),
		DeviceKey: viper.GetString("RAIL_DEVICE_KEY"),
	}

	// ── Queue ───────────────────────────────────────────
	cfg.Queue = QueueConfig{
		Enabled:               viper.GetBool("QUEUE_ENABLED"),
		MaxConcurrent:         viper.GetInt("QUEUE_MAX_CONCURRENT"),
		CooldownPeriod:        viper.GetDuration("QUEUE_COOLDOWN_PERIOD"),
		HeartbeatTimeout:      viper.GetDuration("QUEUE_HEARTBEAT_TIMEOUT"),
		CleanupInterval:       viper.GetDuration("QUEUE_CLEANUP_INTERVAL"),
		BatchCleanupThreshold: viper.GetInt("QUEUE_BATCH_CLEANUP_THRESHOLD"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Enabled:  viper.GetBool("REDIS_ENABLED"),
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetInt("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
	}

	// ── Route cache ─────────────────────────────────────
	cfg.RouteCache = RouteCacheConfig{
		Size: viper.GetInt("ROUTE_CACHE_SIZE"),
		TTL:  viper.GetDuration("ROUTE_CACHE_TTL"),
	}

	return cfg, nil
}
