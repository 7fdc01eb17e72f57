package domain

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete Vigil configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Scoring backend settings
	Scoring ScoringConfig `json:"scoring" yaml:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"event_bus"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// ScoringConfig holds the external scoring backend settings.
type ScoringConfig struct {
	// PrimaryURL is the primary scoring service endpoint.
	PrimaryURL string `json:"primaryUrl" yaml:"primary_url"`

	// SecondaryURL is the consensus scoring service endpoint.
	SecondaryURL string `json:"secondaryUrl" yaml:"secondary_url"`

	// TimeoutSecs bounds each backend call. A backend that misses the
	// deadline is treated as having returned a clean score.
	TimeoutSecs int `json:"timeoutSecs" yaml:"timeout_secs"`

	// AlertProbabilityThreshold is the probability at which a fraud
	// verdict also raises an alert when the backend omits the explicit
	// alert flag.
	AlertProbabilityThreshold float64 `json:"alertProbabilityThreshold" yaml:"alert_probability_threshold"`

	// CacheTTLSecs is how long backend scores are cached per contract.
	// Zero disables score caching.
	CacheTTLSecs int `json:"cacheTtlSecs" yaml:"cache_ttl_secs"`
}

// Timeout returns the per-backend call deadline.
func (c ScoringConfig) Timeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	ServiceName  string `json:"serviceName" yaml:"service_name"`
	ExporterType string `json:"exporterType" yaml:"exporter_type"` // stdout, otlp
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfig returns a configuration suitable for local development:
// SQLite, in-process channels, in-memory cache.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Scoring: ScoringConfig{
			PrimaryURL:                "http://localhost:5000",
			SecondaryURL:              "http://localhost:5001",
			TimeoutSecs:               5,
			AlertProbabilityThreshold: 0.70,
			CacheTTLSecs:              60,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./vigil.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "vigil",
		},
	}
}

// LoadConfig reads a YAML config file and applies environment overrides.
// A missing path loads defaults plus environment overrides only.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for configuration values that would fail at runtime.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown repository driver: %q", c.Repository.Driver)
	}
	switch c.EventBus.Type {
	case "channel", "nats", "kafka":
	default:
		return fmt.Errorf("unknown event bus type: %q", c.EventBus.Type)
	}
	if c.Scoring.AlertProbabilityThreshold < 0 || c.Scoring.AlertProbabilityThreshold > 1 {
		return fmt.Errorf("alert probability threshold out of range: %f", c.Scoring.AlertProbabilityThreshold)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VIGIL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VIGIL_SCORING_PRIMARY_URL"); v != "" {
		cfg.Scoring.PrimaryURL = v
	}
	if v := os.Getenv("VIGIL_SCORING_SECONDARY_URL"); v != "" {
		cfg.Scoring.SecondaryURL = v
	}
	if v := os.Getenv("VIGIL_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("VIGIL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("VIGIL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("VIGIL_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("VIGIL_CACHE_TYPE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("VIGIL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("VIGIL_BUS_TYPE"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("VIGIL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("VIGIL_KAFKA_BROKERS"); v != "" {
		cfg.EventBus.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("VIGIL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
