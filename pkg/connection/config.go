package connection

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Kind selects the byte transport.
type Kind string

const (
	KindSerial  Kind = "serial"
	KindNetwork Kind = "network"
)

const (
	DefaultSerialPort  = "/dev/ttyACM0"
	DefaultBaudRate    = 57600
	DefaultDialTimeout = 5 * time.Second
)

type SerialConfig struct {
	Port     string `mapstructure:"port" json:"port" yaml:"port"`
	BaudRate int    `mapstructure:"baud_rate" json:"baud_rate" yaml:"baud_rate"`
}

type NetworkConfig struct {
	Host string `mapstructure:"host" json:"host" yaml:"host"`
	Port int    `mapstructure:"port" json:"port" yaml:"port"`
}

// Config describes how to reach a device. It is read once at startup and
// reused on every connect attempt.
type Config struct {
	Kind        Kind          `mapstructure:"kind" json:"kind" yaml:"kind"`
	Serial      SerialConfig  `mapstructure:"serial" json:"serial" yaml:"serial"`
	Network     NetworkConfig `mapstructure:"network" json:"network" yaml:"network"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Kind: KindSerial,
		Serial: SerialConfig{
			Port:     DefaultSerialPort,
			BaudRate: DefaultBaudRate,
		},
		DialTimeout: DefaultDialTimeout,
	}
}

// Validate checks the parameters of the selected transport.
func (c Config) Validate() error {
	switch c.Kind {
	case KindSerial:
		if c.Serial.Port == "" {
			return fmt.Errorf("serial port cannot be empty")
		}
		if c.Serial.BaudRate <= 0 {
			return fmt.Errorf("invalid baud rate: %d", c.Serial.BaudRate)
		}
	case KindNetwork:
		if c.Network.Host == "" {
			return fmt.Errorf("network host cannot be empty")
		}
		if c.Network.Port <= 0 || c.Network.Port > 65535 {
			return fmt.Errorf("invalid network port: %d", c.Network.Port)
		}
	default:
		return fmt.Errorf("unknown connection kind %q", c.Kind)
	}
	return nil
}

// Address is the human readable endpoint of the transport.
func (c Config) Address() string {
	if c.Kind == KindNetwork {
		return net.JoinHostPort(c.Network.Host, strconv.Itoa(c.Network.Port))
	}
	return c.Serial.Port
}
