// Package config loads the startup configuration: which devices to serve,
// how to reach them, and where the HTTP, MQTT and storage outputs go.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"driverkit/pkg/connection"
	"driverkit/pkg/drivers"
	"driverkit/pkg/observer"
)

// EnvPrefix prefixes environment overrides, e.g. DRIVERKIT_SERVER_PORT.
const EnvPrefix = "DRIVERKIT"

// Config represents the application configuration
type Config struct {
	Server  ServerConfig        `mapstructure:"server"`
	Store   StoreConfig         `mapstructure:"store"`
	MQTT    observer.MQTTConfig `mapstructure:"mqtt"`
	Logging LoggingConfig       `mapstructure:"logging"`
	Devices []DeviceConfig      `mapstructure:"devices"`
}

type ServerConfig struct {
	Name            string        `mapstructure:"name"`
	Location        string        `mapstructure:"location"`
	Port            int           `mapstructure:"port"`
	Discovery       bool          `mapstructure:"discovery"`
	DiscoveryPort   int           `mapstructure:"discovery_port"`
	Metrics         bool          `mapstructure:"metrics"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig selects the log level and format. An empty File logs to
// stderr, otherwise the file is rotated once it reaches MaxSize megabytes.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DeviceConfig describes one served device. Name defaults to the name the
// driver kind picks.
type DeviceConfig struct {
	Kind       string            `mapstructure:"kind"`
	Name       string            `mapstructure:"name"`
	Simulation bool              `mapstructure:"simulation"`
	PollPeriod time.Duration     `mapstructure:"poll_period"`
	Connection connection.Config `mapstructure:"connection"`
}

// Load reads the configuration from path, or from driverkit.yaml in the
// working directory or /etc/driverkit when path is empty. A missing file
// is only an error when path names one.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("driverkit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/driverkit")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.applyDeviceDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "driverkit")
	v.SetDefault("server.location", "")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.discovery", true)
	v.SetDefault("server.discovery_port", 32227)
	v.SetDefault("server.metrics", true)
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("store.path", "driverkit.db")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "driverkit")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_root", observer.DefaultTopicRoot)
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
}

// applyDeviceDefaults serves a single simulated custom device when none is
// configured and fills in missing connection parameters.
func (c *Config) applyDeviceDefaults() {
	if len(c.Devices) == 0 {
		c.Devices = []DeviceConfig{{Kind: "custom", Simulation: true}}
	}
	def := connection.DefaultConfig()
	for i := range c.Devices {
		conn := &c.Devices[i].Connection
		if conn.Kind == "" {
			conn.Kind = def.Kind
		}
		if conn.Kind == connection.KindSerial {
			if conn.Serial.Port == "" {
				conn.Serial.Port = def.Serial.Port
			}
			if conn.Serial.BaudRate == 0 {
				conn.Serial.BaudRate = def.Serial.BaudRate
			}
		}
		if conn.DialTimeout == 0 {
			conn.DialTimeout = def.DialTimeout
		}
	}
}

// Validate checks the configuration for values the process cannot start
// with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Discovery && (c.Server.DiscoveryPort <= 0 || c.Server.DiscoveryPort > 65535) {
		return fmt.Errorf("server.discovery_port must be between 1 and 65535, got %d", c.Server.DiscoveryPort)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %v", err)
	}
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, c.Logging.Format) {
		return fmt.Errorf("logging.format must be one of: %v", validFormats)
	}

	kinds := drivers.Kinds()
	for i, d := range c.Devices {
		if !slices.Contains(kinds, d.Kind) {
			return fmt.Errorf("devices[%d].kind must be one of: %v", i, kinds)
		}
		if d.PollPeriod < 0 {
			return fmt.Errorf("devices[%d].poll_period cannot be negative", i)
		}
		if d.Simulation {
			continue
		}
		if err := d.Connection.Validate(); err != nil {
			return fmt.Errorf("devices[%d].connection: %v", i, err)
		}
	}
	return nil
}

// MQTTEnabled reports whether a broker is configured.
func (c *Config) MQTTEnabled() bool {
	return c.MQTT.Broker != ""
}
