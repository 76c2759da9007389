package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Runtrack Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Provider  ProviderConfig  `yaml:"provider"`
	Poller    PollerConfig    `yaml:"poller"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServiceConfig contains service-level identification.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry writes.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ProviderConfig contains settings for the remote vendor API that serves
// equipment-status snapshots.
type ProviderConfig struct {
	BaseURL        string `yaml:"base_url"`
	TokenURL       string `yaml:"token_url"`
	APIKey         string `yaml:"api_key"`
	RefreshToken   string `yaml:"refresh_token"`
	RequestTimeout int    `yaml:"request_timeout"` // seconds
}

// PollerConfig contains settings for the batch polling scheduler.
type PollerConfig struct {
	// Workers bounds how many devices are polled concurrently.
	Workers int `yaml:"workers"`

	// Tick is how often the scheduler scans for due devices (seconds).
	Tick int `yaml:"tick"`

	// StalenessSweepInterval is how often the out-of-band staleness sweep
	// runs (seconds).
	StalenessSweepInterval int `yaml:"staleness_sweep_interval"`

	// StalenessThreshold marks a device unreachable when no sample has been
	// seen for this long (seconds).
	StalenessThreshold int `yaml:"staleness_threshold"`
}

// RuntimeConfig contains the engine tunables for session accounting and
// event emission.
type RuntimeConfig struct {
	// MaxAccumulate caps the runtime contribution of a single poll gap
	// (seconds). It bounds per-tick deltas, not total session length.
	MaxAccumulate int `yaml:"max_accumulate"`

	// HeartbeatInterval forces a STATE_UPDATE for an otherwise-unchanged
	// device after this long without any emission (seconds).
	HeartbeatInterval int `yaml:"heartbeat_interval"`

	// TemperatureTolerance is the temperature delta (degrees) that counts as
	// a significant change for steady-state emission.
	TemperatureTolerance float64 `yaml:"temperature_tolerance"`

	// TreatBareFanAsActive controls whether a lone fan token (no compressor
	// or heat stage) classifies as an active fan-only state or as idle.
	TreatBareFanAsActive bool `yaml:"treat_bare_fan_as_active"`

	// LongSessionThreshold marks a session as long-running for scheduler
	// hint purposes (seconds).
	LongSessionThreshold int `yaml:"long_session_threshold"`

	// PollIntervalMin and PollIntervalMax clamp the adaptive scheduler hint
	// (seconds).
	PollIntervalMin int `yaml:"poll_interval_min"`
	PollIntervalMax int `yaml:"poll_interval_max"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
	Issuer         string `yaml:"issuer"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RUNTRACK_SECTION_KEY
// For example: RUNTRACK_DATABASE_PATH, RUNTRACK_JWT_SECRET
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "runtrack-001",
			Name: "Runtrack",
		},
		Database: DatabaseConfig{
			Path:        "./data/runtrack.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "runtrack-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Provider: ProviderConfig{
			RequestTimeout: 15,
		},
		Poller: PollerConfig{
			Workers:                8,
			Tick:                   15,
			StalenessSweepInterval: 300,
			StalenessThreshold:     900,
		},
		Runtime: RuntimeConfig{
			MaxAccumulate:        600,
			HeartbeatInterval:    3600,
			TemperatureTolerance: 0.5,
			TreatBareFanAsActive: true,
			LongSessionThreshold: 7200,
			PollIntervalMin:      30,
			PollIntervalMax:      1800,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
				Issuer:         "runtrack-core",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RUNTRACK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("RUNTRACK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("RUNTRACK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RUNTRACK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RUNTRACK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("RUNTRACK_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("RUNTRACK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Provider credentials
	if v := os.Getenv("RUNTRACK_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("RUNTRACK_PROVIDER_REFRESH_TOKEN"); v != "" {
		cfg.Provider.RefreshToken = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("RUNTRACK_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Poller.Workers < 1 {
		errs = append(errs, "poller.workers must be at least 1")
	}
	if c.Poller.StalenessThreshold < 1 {
		errs = append(errs, "poller.staleness_threshold must be positive")
	}

	if c.Runtime.MaxAccumulate < 1 {
		errs = append(errs, "runtime.max_accumulate must be positive")
	}
	if c.Runtime.PollIntervalMin < 1 || c.Runtime.PollIntervalMax < c.Runtime.PollIntervalMin {
		errs = append(errs, "runtime poll interval range is invalid (need 1 <= min <= max)")
	}

	// JWT secret is required: the API exposes device registration and
	// removal, so forged tokens would allow destructive operations.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set RUNTRACK_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
