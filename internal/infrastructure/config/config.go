package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/thingplug-agent/internal/message"
)

// Broker defaults.
const (
	DefaultPort      = 1883
	DefaultTLSPort   = 8883
	DefaultKeepAlive = 120 * time.Second
)

// Config is the root configuration structure for the ThingPlug agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Agent    AgentConfig    `yaml:"agent"`
	Device   DeviceConfig   `yaml:"device"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Service  ServiceConfig  `yaml:"service"`
	API      APIConfig      `yaml:"api"`
}

// PlatformConfig identifies the device on the ThingPlug portal.
type PlatformConfig struct {
	ServiceName string `yaml:"service_name"`
	DeviceName  string `yaml:"device_name"`
	// DeviceToken is sent as the MQTT user name.
	DeviceToken string `yaml:"device_token"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker       MQTTBrokerConfig `yaml:"broker"`
	QoS          int              `yaml:"qos"`
	KeepAlive    int              `yaml:"keep_alive"` // seconds
	CleanSession bool             `yaml:"clean_session"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	// Port defaults to 1883, or 8883 when TLS is enabled.
	Port               int  `yaml:"port"`
	TLS                bool `yaml:"tls"`
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// AgentConfig controls what the agent reports and how often.
type AgentConfig struct {
	// Format is the payload format for reports: "json" or "csv".
	Format string `yaml:"format"`

	// PollInterval is the loop tick in seconds. Telemetry is published and
	// reconnects are attempted once per tick.
	PollInterval int `yaml:"poll_interval"`

	// MaxTelemetry stops the agent after this many telemetry publishes.
	// 0 means run until stopped.
	MaxTelemetry int `yaml:"max_telemetry"`

	// Interface is the network interface used for the device IP and the
	// MAC part of the client ID.
	Interface string `yaml:"interface"`

	// Sensors lists the telemetry fields in report order.
	Sensors []string `yaml:"sensors"`

	// ControlField is the actuator attribute name.
	ControlField string `yaml:"control_field"`

	// LegacyPrefixMatch dispatches RPC methods by prefix instead of exact
	// name, for platforms that append suffixes to method names.
	LegacyPrefixMatch bool `yaml:"legacy_prefix_match"`

	// MailboxSize is the capacity of the transport event queue.
	MailboxSize int `yaml:"mailbox_size"`
}

// DeviceConfig holds the static attributes reported after each connect.
type DeviceConfig struct {
	FirmwareVersion string  `yaml:"firmware_version"`
	HardwareVersion string  `yaml:"hardware_version"`
	SerialNumber    string  `yaml:"serial_number"`
	NetworkType     string  `yaml:"network_type"`
	Latitude        float64 `yaml:"latitude"`
	Longitude       float64 `yaml:"longitude"`
}

// DatabaseConfig contains SQLite settings for the command journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for the telemetry mirror.
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// ServiceConfig names the agent when installed as an OS service.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
}

// APIConfig contains the local status and control API settings.
// The API has no authentication and should stay bound to loopback.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TPAGENT_SECTION_KEY
// For example: TPAGENT_MQTT_HOST, TPAGENT_PLATFORM_DEVICE_TOKEN
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
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
			},
			QoS:          0,
			KeepAlive:    120,
			CleanSession: true,
		},
		Agent: AgentConfig{
			Format:       "json",
			PollInterval: 10,
			Interface:    "eth0",
			Sensors:      []string{"temp1", "humi1", "light1"},
			ControlField: "act7colorLed",
			MailboxSize:  64,
		},
		Device: DeviceConfig{
			FirmwareVersion: "2.0.0",
			HardwareVersion: "1.0",
			SerialNumber:    "710DJC5I10000290",
			NetworkType:     "ethernet",
			Latitude:        37.380257,
			Longitude:       127.115479,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/tpagent.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/tpagent.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
		Service: ServiceConfig{
			Name:        "tpagent",
			DisplayName: "ThingPlug Agent",
			Description: "Reports device telemetry to ThingPlug and handles remote commands.",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8089,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TPAGENT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Platform
	if v := os.Getenv("TPAGENT_PLATFORM_SERVICE_NAME"); v != "" {
		cfg.Platform.ServiceName = v
	}
	if v := os.Getenv("TPAGENT_PLATFORM_DEVICE_NAME"); v != "" {
		cfg.Platform.DeviceName = v
	}
	if v := os.Getenv("TPAGENT_PLATFORM_DEVICE_TOKEN"); v != "" {
		cfg.Platform.DeviceToken = v
	}

	// MQTT
	if v := os.Getenv("TPAGENT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TPAGENT_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("TPAGENT_MQTT_TLS"); v != "" {
		if tls, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.Broker.TLS = tls
		}
	}

	// Database
	if v := os.Getenv("TPAGENT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("TPAGENT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("TPAGENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// API
	if v := os.Getenv("TPAGENT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Platform validation
	if c.Platform.ServiceName == "" {
		errs = append(errs, "platform.service_name is required")
	}
	if c.Platform.DeviceName == "" {
		errs = append(errs, "platform.device_name is required")
	}
	if c.Platform.DeviceToken == "" {
		errs = append(errs, "platform.device_token is required (set TPAGENT_PLATFORM_DEVICE_TOKEN environment variable)")
	}
	if c.Platform.ServiceName != "" && c.Platform.DeviceName != "" {
		if err := checkTopics(c.Platform); err != nil {
			errs = append(errs, fmt.Sprintf("platform.service_name and platform.device_name: %v", err))
		}
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 0 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535, or 0 for the default")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keep_alive must not be negative")
	}

	// Agent validation
	switch strings.ToLower(c.Agent.Format) {
	case "json", "csv":
	default:
		errs = append(errs, "agent.format must be json or csv")
	}
	if c.Agent.PollInterval < 1 {
		errs = append(errs, "agent.poll_interval must be at least 1 second")
	}
	if c.Agent.MaxTelemetry < 0 {
		errs = append(errs, "agent.max_telemetry must not be negative")
	}
	if c.Agent.ControlField == "" {
		errs = append(errs, "agent.control_field is required")
	}
	if len(c.Agent.Sensors) == 0 {
		errs = append(errs, "agent.sensors must list at least one sensor")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when enabled")
		}
	}

	// Logging validation
	switch c.Logging.Output {
	case "stdout", "stderr", "":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when logging.output is file")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr, or file")
	}

	// API validation
	if c.API.Enabled {
		if c.API.Host == "" {
			errs = append(errs, "api.host is required when the API is enabled")
		}
		if c.API.Port < 0 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 0 and 65535")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// checkTopics derives every topic the agent may use for p and reports
// the first one that exceeds the platform limit.
func checkTopics(p PlatformConfig) error {
	if _, err := message.ControlDownTopic(p.ServiceName, p.DeviceName); err != nil {
		return err
	}
	for _, kind := range []message.Kind{message.KindTelemetry, message.KindAttribute, message.KindUp} {
		for _, format := range []message.Format{message.FormatJSON, message.FormatCSV, message.FormatOffset} {
			if _, err := message.Topic(kind, format, p.ServiceName, p.DeviceName); err != nil {
				return err
			}
		}
	}
	return nil
}

// BrokerPort returns the configured port, or the protocol default.
func (b MQTTBrokerConfig) BrokerPort() int {
	if b.Port != 0 {
		return b.Port
	}
	if b.TLS {
		return DefaultTLSPort
	}
	return DefaultPort
}

// GetKeepAlive returns the keep-alive as a Duration, or the platform
// default of 120s when unset.
func (m MQTTConfig) GetKeepAlive() time.Duration {
	if m.KeepAlive <= 0 {
		return DefaultKeepAlive
	}
	return time.Duration(m.KeepAlive) * time.Second
}

// GetPollInterval returns the agent loop tick as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Agent.PollInterval) * time.Second
}
