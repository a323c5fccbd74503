// Package config loads the application's environment-variable driven
// configuration into a nested struct, one sub-struct per concern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Environment string
	Server      ServerConfig
	Redis       RedisConfig
	PlacesAPI   PlacesAPIConfig
	CORS        CORSConfig
	Geo         GeoConfig
	Performance PerformanceConfig
	Monitoring  MonitoringConfig
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Address      string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// RedisConfig configures the Places Cache's Redis connection.
type RedisConfig struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// PlacesAPIConfig configures the upstream fetcher. An absent APIKey makes
// the fetcher return an unauthorized error rather than call upstream.
type PlacesAPIConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	ExcludedTypes []string
}

// CORSConfig configures the transport layer's CORS middleware.
type CORSConfig struct {
	AllowedOrigins []string
}

// GeoConfig holds the geometry settings. MaxRecursionLevel defaults to 16,
// is configurable via environment, and sets the search engine's recursion
// depth. MaxRadiusM and the Default* fields are loaded and validated only:
// the radius clamp in geo.NewSearchRegion and the location_update defaults in
// internal/transport are fixed constants that do not read them.
type GeoConfig struct {
	MaxRadiusM        float64
	MaxRecursionLevel int
	DefaultLat        float64
	DefaultLon        float64
	DefaultRadiusM    float64
}

// PerformanceConfig holds session and websocket timing, defaulting to a 120s
// idle timeout and a 25s heartbeat. The transport reads HeartbeatInterval and
// WebSocketPongWait; SessionIdleTimeout and MaxConcurrentWorkers are loaded
// and validated but not read by any component.
type PerformanceConfig struct {
	SessionIdleTimeout   time.Duration
	HeartbeatInterval    time.Duration
	WebSocketPongWait    time.Duration
	MaxConcurrentWorkers int
}

// MonitoringConfig configures the Prometheus metrics endpoint.
type MonitoringConfig struct {
	MetricsEnabled bool
	MetricsPort    string
}

// Load reads Config from the environment, applying defaults, then
// validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Address:      getEnv("SERVER_ADDRESS", ":5000"),
			Port:         getEnv("PORT", "5000"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://redis:6379/0"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getInt("REDIS_DB", 0),
			PoolSize:     getInt("REDIS_POOL_SIZE", 20),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		PlacesAPI: PlacesAPIConfig{
			BaseURL:       getEnv("PLACES_API_URL", "https://places.googleapis.com/v1/places:searchNearby"),
			APIKey:        getEnv("PLACES_API_KEY", ""),
			Timeout:       getDuration("PLACES_API_TIMEOUT", 10*time.Second),
			ExcludedTypes: getStringSlice("PLACES_API_EXCLUDED_TYPES", []string{"gas_station", "restaurant"}),
		},
		CORS: CORSConfig{
			AllowedOrigins: getStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Geo: GeoConfig{
			MaxRadiusM:        getFloat("MAX_RADIUS_M", 1000),
			MaxRecursionLevel: getInt("MAX_RECURSION_LEVEL", 16),
			DefaultLat:        getFloat("DEFAULT_LAT", 38.832352857203624),
			DefaultLon:        getFloat("DEFAULT_LON", -77.31284409452543),
			DefaultRadiusM:    getFloat("DEFAULT_RADIUS_M", 1000),
		},
		Performance: PerformanceConfig{
			SessionIdleTimeout:   getDuration("SESSION_IDLE_TIMEOUT", 120*time.Second),
			HeartbeatInterval:    getDuration("HEARTBEAT_INTERVAL", 25*time.Second),
			WebSocketPongWait:    getDuration("WEBSOCKET_PONG_WAIT", 60*time.Second),
			MaxConcurrentWorkers: getInt("MAX_CONCURRENT_WORKERS", 100),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
			MetricsPort:    getEnv("METRICS_PORT", "9090"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants the rest of the application relies on.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Geo.MaxRadiusM <= 0 {
		return fmt.Errorf("MAX_RADIUS_M must be positive")
	}
	if c.Geo.MaxRecursionLevel < 10 || c.Geo.MaxRecursionLevel > 24 {
		return fmt.Errorf("MAX_RECURSION_LEVEL must be between 10 and 24")
	}
	if c.Performance.MaxConcurrentWorkers <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_WORKERS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// LogLevel returns the configured logrus level string.
func LogLevel() string {
	return getEnv("LOG_LEVEL", "info")
}

// LogFormat returns "json" or "text" for pkg/logging to select a formatter.
func LogFormat() string {
	return getEnv("LOG_FORMAT", "json")
}
