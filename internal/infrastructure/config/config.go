package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the shading controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Security  SecurityConfig  `yaml:"security"`
	Shading   ShadingConfig   `yaml:"shading"`
	GPIO      GPIOConfig      `yaml:"gpio"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains geographic coordinates for sun position calculations.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// DatabaseConfig contains SQLite settings for the decision journal.
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
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

// APITimeoutConfig contains HTTP timeout settings (seconds).
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings. TTLs are in minutes.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// ShadingConfig configures the blind controllers.
type ShadingConfig struct {
	// BlindsFile is the YAML file with the blind definitions.
	BlindsFile string `yaml:"blinds_file"`

	// Locale selects the language of reason texts (BCP 47, e.g. "de").
	Locale string `yaml:"locale"`

	// QueueSize is the event queue length of each blind.
	QueueSize int `yaml:"queue_size"`

	// TopicPrefix is the root of the shading MQTT topics.
	TopicPrefix string `yaml:"topic_prefix"`

	// Context mirrors MQTT topics into the flow/global property store so
	// rules and oversteers can read sensor values.
	Context []ContextFeedConfig `yaml:"context"`

	// JournalRetention is how long decision journal entries are kept.
	// Defaults to 30 days; 0 keeps them forever.
	JournalRetention time.Duration `yaml:"journal_retention"`
}

// ContextFeedConfig maps one MQTT topic to a property store key.
type ContextFeedConfig struct {
	Topic string `yaml:"topic"`
	Scope string `yaml:"scope"`
	Key   string `yaml:"key"`

	// Path selects a field of a JSON payload, e.g. "payload.lux".
	Path string `yaml:"path"`
}

// GPIOConfig configures wall buttons wired to GPIO lines.
type GPIOConfig struct {
	Enabled      bool           `yaml:"enabled"`
	Chip         string         `yaml:"chip"`
	PollInterval time.Duration  `yaml:"poll_interval"`
	Debounce     int            `yaml:"debounce"`
	Buttons      []ButtonConfig `yaml:"buttons"`
}

// ButtonConfig sends a manual override to a blind when pressed.
type ButtonConfig struct {
	Name  string `yaml:"name"`
	Line  int    `yaml:"line"`
	Blind string `yaml:"blind"`

	// Level is the override level; nil makes the button reset the override.
	Level    *float64      `yaml:"level"`
	Priority int           `yaml:"priority"`
	Expire   time.Duration `yaml:"expire"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_SHADING_LOCALE
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
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic Shading",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/shading.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-shading",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
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
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		Shading: ShadingConfig{
			BlindsFile:       "./configs/blinds.yaml",
			Locale:           "en",
			QueueSize:        64,
			TopicPrefix:      "graylogic/shading",
			JournalRetention: 30 * 24 * time.Hour,
		},
		GPIO: GPIOConfig{
			Chip:         "gpiochip0",
			PollInterval: 20 * time.Millisecond,
			Debounce:     3,
		},
	}
}

// applyEnvOverrides applies GRAYLOGIC_SECTION_KEY environment variables.
// Numeric values that do not parse are ignored.
func applyEnvOverrides(cfg *Config) {
	strs := map[string]*string{
		"GRAYLOGIC_DATABASE_PATH":       &cfg.Database.Path,
		"GRAYLOGIC_MQTT_HOST":           &cfg.MQTT.Broker.Host,
		"GRAYLOGIC_MQTT_USERNAME":       &cfg.MQTT.Auth.Username,
		"GRAYLOGIC_MQTT_PASSWORD":       &cfg.MQTT.Auth.Password,
		"GRAYLOGIC_API_HOST":            &cfg.API.Host,
		"GRAYLOGIC_INFLUXDB_TOKEN":      &cfg.InfluxDB.Token,
		"GRAYLOGIC_SHADING_BLINDS_FILE": &cfg.Shading.BlindsFile,
		"GRAYLOGIC_SHADING_LOCALE":      &cfg.Shading.Locale,
		"GRAYLOGIC_JWT_SECRET":          &cfg.Security.JWT.Secret,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v, err := strconv.Atoi(os.Getenv("GRAYLOGIC_MQTT_PORT")); err == nil {
		cfg.MQTT.Broker.Port = v
	}

	// Site location, for containers deployed per building
	floats := map[string]*float64{
		"GRAYLOGIC_SITE_LATITUDE":  &cfg.Site.Location.Latitude,
		"GRAYLOGIC_SITE_LONGITUDE": &cfg.Site.Location.Longitude,
	}
	for name, dst := range floats {
		if v, err := strconv.ParseFloat(os.Getenv(name), 64); err == nil {
			*dst = v
		}
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a known time zone", c.Site.Timezone))
	}
	if lat := c.Site.Location.Latitude; lat < -90 || lat > 90 {
		errs = append(errs, "site.location.latitude must be between -90 and 90")
	}
	if lon := c.Site.Location.Longitude; lon < -180 || lon > 180 {
		errs = append(errs, "site.location.longitude must be between -180 and 180")
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

	// Write endpoints move physical blinds; a weak secret would let anyone
	// forge an operator token.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.Shading.BlindsFile == "" {
		errs = append(errs, "shading.blinds_file is required")
	}
	if c.Shading.QueueSize < 1 {
		errs = append(errs, "shading.queue_size must be positive")
	}
	if c.Shading.TopicPrefix == "" || strings.ContainsAny(c.Shading.TopicPrefix, "+#") {
		errs = append(errs, "shading.topic_prefix must be set and contain no wildcards")
	}
	for i, f := range c.Shading.Context {
		if f.Topic == "" || f.Key == "" {
			errs = append(errs, fmt.Sprintf("shading.context[%d] needs topic and key", i))
		}
		if f.Scope != "flow" && f.Scope != "global" {
			errs = append(errs, fmt.Sprintf("shading.context[%d].scope must be flow or global", i))
		}
	}

	if c.GPIO.Enabled {
		if c.GPIO.PollInterval <= 0 {
			errs = append(errs, "gpio.poll_interval must be positive")
		}
		lines := map[int]bool{}
		for i, b := range c.GPIO.Buttons {
			if b.Blind == "" {
				errs = append(errs, fmt.Sprintf("gpio.buttons[%d].blind is required", i))
			}
			if lines[b.Line] {
				errs = append(errs, fmt.Sprintf("gpio.buttons[%d]: line %d used twice", i, b.Line))
			}
			lines[b.Line] = true
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the site time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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
