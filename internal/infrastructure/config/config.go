package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	// DriverCGO selects github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"

	// DriverPure selects modernc.org/sqlite (no cgo toolchain required).
	DriverPure = "sqlite"
)

// Config is the root configuration structure for the trainer store.
// All configuration is loaded from YAML (or TOML) and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt" toml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb" toml:"influxdb"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" toml:"path"`
	Driver      string `yaml:"driver" toml:"driver"`
	WALMode     bool   `yaml:"wal_mode" toml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" toml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings used for change events.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled" toml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker" toml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth" toml:"auth"`
	QoS         int                 `yaml:"qos" toml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix" toml:"topic_prefix"`
	QueueSize   int                 `yaml:"queue_size" toml:"queue_size"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect" toml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	TLS      bool   `yaml:"tls" toml:"tls"`
	ClientID string `yaml:"client_id" toml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay" toml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings used for operation metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	URL           string `yaml:"url" toml:"url"`
	Token         string `yaml:"token" toml:"token"`
	Org           string `yaml:"org" toml:"org"`
	Bucket        string `yaml:"bucket" toml:"bucket"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" toml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level" toml:"level"`
	Format string            `yaml:"format" toml:"format"`
	Output string            `yaml:"output" toml:"output"`
	File   FileLoggingConfig `yaml:"file" toml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Used when Output is "file"; sizes are in megabytes and ages in days.
type FileLoggingConfig struct {
	Path       string `yaml:"path" toml:"path"`
	MaxSize    int    `yaml:"max_size" toml:"max_size"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAge     int    `yaml:"max_age" toml:"max_age"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// Load reads configuration from a file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults); ".toml" files are decoded as TOML, anything else as YAML
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ENTSTORE_SECTION_KEY
// For example: ENTSTORE_DATABASE_PATH, ENTSTORE_LOG_LEVEL
//
// Parameters:
//   - path: Path to the configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := cfg.ResolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving credentials: %w", err)
	}

	return cfg, nil
}

// FromEnv returns the defaults with environment variable overrides applied.
// It is used when no configuration file exists.
func FromEnv() (*Config, error) {
	cfg := Default()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := cfg.ResolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving credentials: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with sensible defaults.
// Integrations (MQTT, InfluxDB) are disabled until configured.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/entstore.db",
			Driver:      DriverCGO,
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
			File: FileLoggingConfig{
				Path:       "./logs/entstore.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "entstore",
			},
			QoS:         1,
			TopicPrefix: "ent",
			QueueSize:   256,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Org:           "ent",
			Bucket:        "entstore",
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ENTSTORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("ENTSTORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ENTSTORE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}

	// Logging
	if v := os.Getenv("ENTSTORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// MQTT
	if v := os.Getenv("ENTSTORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ENTSTORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ENTSTORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("ENTSTORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.Driver != DriverCGO && c.Database.Driver != DriverPure {
		errs = append(errs, fmt.Sprintf("database.driver must be %q or %q", DriverCGO, DriverPure))
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, "database.busy_timeout must not be negative")
	}

	// Logging validation
	if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetFlushInterval returns the InfluxDB flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.InfluxDB.FlushInterval) * time.Second
}
