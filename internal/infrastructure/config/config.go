package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stillhere/presence-core/internal/presence"
)

// Config is the root configuration structure for presence-core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig                     `yaml:"server"`
	WebSocket WebSocketConfig                  `yaml:"websocket"`
	Presence  PresenceConfig                   `yaml:"presence"`
	Security  SecurityConfig                   `yaml:"security"`
	Devices   map[string]presence.DeviceConfig `yaml:"devices"`
	Frontend  FrontendConfig                   `yaml:"frontend"`
	Database  DatabaseConfig                   `yaml:"database"`
	MQTT      MQTTConfig                       `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig                   `yaml:"influxdb"`
	Logging   LoggingConfig                    `yaml:"logging"`
}

// ServerConfig contains HTTP API server settings.
type ServerConfig struct {
	Host     string              `yaml:"host"`
	Port     int                 `yaml:"port"`
	TLS      TLSConfig           `yaml:"tls"`
	Timeouts ServerTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig          `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
type ServerTimeoutConfig struct {
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

// WebSocketConfig contains WebSocket connection settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// PresenceConfig contains the behavioural knobs of the presence engine.
type PresenceConfig struct {
	// PollOfflineTimeout is how long (seconds) a polling device may stay
	// silent before it is marked offline. Also bounds the first-frame
	// handshake on device WebSocket sessions.
	PollOfflineTimeout int `yaml:"poll_offline_timeout"`

	// FrontendEventThrottle is the debounce window (milliseconds) applied
	// per frontend subscriber before pushing aggregate updates.
	FrontendEventThrottle int `yaml:"frontend_event_throttle"`

	// AllowNewDevices permits devices absent from the configured map to be
	// created on first contact. When false, updates for unknown keys get 404.
	AllowNewDevices bool `yaml:"allow_new_devices"`

	// PrivacyMode omits the per-device breakdown from public snapshots,
	// leaving only the overall status.
	PrivacyMode bool `yaml:"privacy_mode"`

	// UnknownAsOffline reports "offline" instead of "unknown" when no
	// devices are registered.
	UnknownAsOffline bool `yaml:"unknown_as_offline"`

	// HTTPPreempt selects when an HTTP update closes a device's active
	// WebSocket connection: "always" or "polling_only".
	HTTPPreempt string `yaml:"http_preempt"`
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	// Mode selects the authenticator: "secret", "jwt", or "none".
	Mode   string `yaml:"mode"`
	Secret string `yaml:"secret"`
}

// FrontendConfig is display configuration served verbatim to frontends.
type FrontendConfig struct {
	Title       string                 `yaml:"title" json:"title"`
	Description string                 `yaml:"description" json:"description"`
	Theme       string                 `yaml:"theme" json:"theme"`
	Statuses    []FrontendStatusConfig `yaml:"statuses" json:"statuses"`
}

// FrontendStatusConfig maps an overall status to its display treatment.
type FrontendStatusConfig struct {
	Status      string `yaml:"status" json:"status"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Color       string `yaml:"color" json:"color"`
}

// DatabaseConfig contains SQLite settings for the transition history store.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings for the announcer.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PRESENCE_SECTION_KEY
// For example: PRESENCE_DATABASE_PATH, PRESENCE_SERVER_PORT
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
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Presence: PresenceConfig{
			PollOfflineTimeout:    120,
			FrontendEventThrottle: 1000,
			AllowNewDevices:       true,
			HTTPPreempt:           "always",
		},
		Security: SecurityConfig{
			Mode: "secret",
		},
		Frontend: FrontendConfig{
			Title: "Presence",
		},
		Database: DatabaseConfig{
			Path:        "./data/presence.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "presence-core",
			},
			QoS:         1,
			TopicPrefix: "presence",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PRESENCE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("PRESENCE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PRESENCE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Database
	if v := os.Getenv("PRESENCE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("PRESENCE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PRESENCE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PRESENCE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("PRESENCE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - secret (always override in production)
	if v := os.Getenv("PRESENCE_SECRET"); v != "" {
		cfg.Security.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Port 0 asks the kernel for an ephemeral port.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}

	if c.Presence.PollOfflineTimeout < 1 {
		errs = append(errs, "presence.poll_offline_timeout must be at least 1 second")
	}
	if c.Presence.FrontendEventThrottle < 0 {
		errs = append(errs, "presence.frontend_event_throttle must not be negative")
	}
	switch c.Presence.HTTPPreempt {
	case "always", "polling_only":
	default:
		errs = append(errs, "presence.http_preempt must be \"always\" or \"polling_only\"")
	}

	switch c.Security.Mode {
	case "none":
	case "secret":
		if c.Security.Secret == "" {
			errs = append(errs, "security.secret is required in secret mode (set PRESENCE_SECRET environment variable)")
		}
	case "jwt":
		// HS256 signing keys shorter than this are trivially brute-forced.
		const minJWTSecretLength = 32
		if len(c.Security.Secret) < minJWTSecretLength {
			errs = append(errs, "security.secret must be at least 32 characters in jwt mode")
		}
	default:
		errs = append(errs, "security.mode must be \"secret\", \"jwt\", or \"none\"")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database.enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb.enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb.enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the server read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the server write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the server idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}

// GetPollOfflineTimeout returns the polling offline timeout as a Duration.
func (c *Config) GetPollOfflineTimeout() time.Duration {
	return time.Duration(c.Presence.PollOfflineTimeout) * time.Second
}

// GetFrontendEventThrottle returns the per-subscriber debounce window as a
// Duration.
func (c *Config) GetFrontendEventThrottle() time.Duration {
	return time.Duration(c.Presence.FrontendEventThrottle) * time.Millisecond
}
