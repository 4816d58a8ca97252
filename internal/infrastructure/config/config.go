package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for plantpot-core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	TSDB      TSDBConfig      `yaml:"tsdb"`
	Broker    BrokerConfig    `yaml:"broker"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig selects the transport used to reach the plant pot and
// carries the credentials for each transport.
type DeviceConfig struct {
	// Transport is one of "mock", "rest", "ws" or "mqtt".
	Transport string `yaml:"transport"`

	// MockMode forces the mock transport regardless of Transport.
	MockMode bool `yaml:"mock_mode"`

	DeviceID  string               `yaml:"device_id"`
	REST      DeviceRESTConfig     `yaml:"rest"`
	WebSocket DeviceWSConfig       `yaml:"websocket"`
	MQTT      DeviceMQTTConfig     `yaml:"mqtt"`
	Reconnect DeviceReconnect      `yaml:"reconnect"`
	Recorder  DeviceRecorderConfig `yaml:"recorder"`

	// AutoConnect starts the connection at startup without waiting for a
	// connect request from the API.
	AutoConnect bool `yaml:"auto_connect"`

	// ConnectTimeout bounds a single connect attempt (in seconds).
	ConnectTimeout int `yaml:"connect_timeout"`
}

// DeviceRESTConfig contains settings for the REST polling transport.
type DeviceRESTConfig struct {
	BaseURL      string `yaml:"base_url"`
	PollInterval int    `yaml:"poll_interval_ms"`
}

// DeviceWSConfig contains settings for the WebSocket transport.
type DeviceWSConfig struct {
	URL string `yaml:"url"`
}

// DeviceMQTTConfig contains settings for the MQTT transport.
type DeviceMQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
	Topic     string `yaml:"topic"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// DeviceReconnect contains the reconnect backoff bounds in milliseconds.
type DeviceReconnect struct {
	InitialDelayMS int `yaml:"initial_delay_ms"`
	MaxDelayMS     int `yaml:"max_delay_ms"`
}

// DeviceRecorderConfig controls persistence of received telemetry.
type DeviceRecorderConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`

	// RetentionDays deletes stored readings older than this. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// DashboardDir serves the dashboard from disk instead of the embedded copy.
	DashboardDir string `yaml:"dashboard_dir"`
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

// WebSocketConfig contains settings for the dashboard WebSocket feed.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// TSDBConfig contains VictoriaMetrics connection settings.
type TSDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// BrokerConfig contains settings for the embedded MQTT broker.
type BrokerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PLANTPOT_SECTION_KEY
// For example: PLANTPOT_DATABASE_PATH, PLANTPOT_DEVICE_TRANSPORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Transport: "mock",
			DeviceID:  "demo-device",
			REST: DeviceRESTConfig{
				PollInterval: 2000,
			},
			MQTT: DeviceMQTTConfig{
				Topic: "plantpot/telemetry",
			},
			Reconnect: DeviceReconnect{
				InitialDelayMS: 1000,
				MaxDelayMS:     10000,
			},
			Recorder: DeviceRecorderConfig{
				Enabled:   true,
				QueueSize: 64,
			},
			ConnectTimeout: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/plantpot.db",
			WALMode:     true,
			BusyTimeout: 5,
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
		Broker: BrokerConfig{
			Address: "127.0.0.1:1883",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PLANTPOT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("PLANTPOT_DEVICE_TRANSPORT"); v != "" {
		cfg.Device.Transport = v
	}
	if v := os.Getenv("PLANTPOT_MOCK_DEVICE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Device.MockMode = b
		}
	}
	if v := os.Getenv("PLANTPOT_DEVICE_ID"); v != "" {
		cfg.Device.DeviceID = v
	}
	if v := os.Getenv("PLANTPOT_DEVICE_REST_URL"); v != "" {
		cfg.Device.REST.BaseURL = v
	}
	if v := os.Getenv("PLANTPOT_DEVICE_WS_URL"); v != "" {
		cfg.Device.WebSocket.URL = v
	}

	// MQTT transport
	if v := os.Getenv("PLANTPOT_MQTT_BROKER_URL"); v != "" {
		cfg.Device.MQTT.BrokerURL = v
	}
	if v := os.Getenv("PLANTPOT_MQTT_TOPIC"); v != "" {
		cfg.Device.MQTT.Topic = v
	}
	if v := os.Getenv("PLANTPOT_MQTT_USERNAME"); v != "" {
		cfg.Device.MQTT.Username = v
	}
	if v := os.Getenv("PLANTPOT_MQTT_PASSWORD"); v != "" {
		cfg.Device.MQTT.Password = v
	}

	// Database
	if v := os.Getenv("PLANTPOT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("PLANTPOT_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("PLANTPOT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Missing transport URLs are not configuration errors here: the connection
// layer reports them when a connect is attempted, so the API can still start
// and show the failure.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	switch c.Device.Transport {
	case "mock", "rest", "ws", "mqtt":
	default:
		errs = append(errs, fmt.Sprintf("device.transport %q must be one of mock, rest, ws, mqtt", c.Device.Transport))
	}

	if c.Device.DeviceID == "" {
		errs = append(errs, "device.device_id is required")
	}

	if c.Device.Reconnect.InitialDelayMS < 0 || c.Device.Reconnect.MaxDelayMS < 0 {
		errs = append(errs, "device.reconnect delays must not be negative")
	} else if c.Device.Reconnect.MaxDelayMS > 0 && c.Device.Reconnect.MaxDelayMS < c.Device.Reconnect.InitialDelayMS {
		errs = append(errs, "device.reconnect.max_delay_ms must be >= initial_delay_ms")
	}

	if c.Device.Recorder.QueueSize < 0 || c.Device.Recorder.RetentionDays < 0 {
		errs = append(errs, "device.recorder queue_size and retention_days must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.TSDB.Enabled && c.TSDB.URL == "" {
		errs = append(errs, "tsdb.url is required when tsdb is enabled")
	}

	if c.Broker.Enabled && c.Broker.Address == "" {
		errs = append(errs, "broker.address is required when the embedded broker is enabled")
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

// GetConnectTimeout returns the per-attempt device connect timeout.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Device.ConnectTimeout) * time.Second
}
