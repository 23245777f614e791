package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"i4.energy/across/blelink/at"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the HTTP server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// SerialPort is the path to the module's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string
	// BaudRate is the UART speed of the module (e.g. 9600)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string

	// Role is "central" or "peripheral"
	Role string
	// PeerAddress is the MAC address of the other module, 12 hex digits
	PeerAddress string
	// AutoReconnect makes a central reconnect on its own after a link loss
	AutoReconnect bool
	// AutoReconnectTimeout is the interval between reconnect attempts
	AutoReconnectTimeout time.Duration
	// Provision writes the pairing settings into the module on start
	Provision bool

	// StatePin, ResetPin, ConnectedPin, ActivityPin and TogglePin are GPIO
	// line names. State and reset are required.
	StatePin     string
	ResetPin     string
	ConnectedPin string
	ActivityPin  string
	TogglePin    string

	// MQTTBroker is the broker URL (e.g. "tcp://localhost:1883"). Empty
	// disables the MQTT bridge.
	MQTTBroker string
	// MQTTClientID identifies the daemon at the broker
	MQTTClientID string
	// MQTTTopicPrefix is prepended to every topic
	MQTTTopicPrefix string
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 9600
		c.LogLevel = "info"
		c.Role = "central"
		c.AutoReconnect = true
		c.AutoReconnectTimeout = 30 * time.Second
		c.StatePin = "GPIO17"
		c.ResetPin = "GPIO27"
		c.MQTTClientID = "blelink"
		c.MQTTTopicPrefix = "blelink"
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		vars := map[string]*string{
			"BIND_ADDRESS":      &c.BindAddress,
			"SERIAL_PORT":       &c.SerialPort,
			"LOG_LEVEL":         &c.LogLevel,
			"ROLE":              &c.Role,
			"PEER_ADDRESS":      &c.PeerAddress,
			"STATE_PIN":         &c.StatePin,
			"RESET_PIN":         &c.ResetPin,
			"CONNECTED_PIN":     &c.ConnectedPin,
			"ACTIVITY_PIN":      &c.ActivityPin,
			"TOGGLE_PIN":        &c.TogglePin,
			"MQTT_BROKER":       &c.MQTTBroker,
			"MQTT_CLIENT_ID":    &c.MQTTClientID,
			"MQTT_TOPIC_PREFIX": &c.MQTTTopicPrefix,
		}
		for key, dst := range vars {
			if v := os.Getenv(key); v != "" {
				*dst = v
			}
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if v := os.Getenv("AUTO_RECONNECT"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.AutoReconnect = b
			}
		}

		if v := os.Getenv("AUTO_RECONNECT_TIMEOUT"); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				c.AutoReconnectTimeout = d
			}
		}

		if v := os.Getenv("PROVISION"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Provision = b
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, perr := strconv.Atoi(f.Value.String()); perr == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "role":
				c.Role = f.Value.String()
			case "peer-address":
				c.PeerAddress = f.Value.String()
			case "auto-reconnect":
				if b, perr := strconv.ParseBool(f.Value.String()); perr == nil {
					c.AutoReconnect = b
				}
			case "auto-reconnect-timeout":
				d, perr := time.ParseDuration(f.Value.String())
				if perr != nil {
					err = fmt.Errorf("invalid auto-reconnect-timeout: %w", perr)
					return
				}
				c.AutoReconnectTimeout = d
			case "provision":
				if b, perr := strconv.ParseBool(f.Value.String()); perr == nil {
					c.Provision = b
				}
			case "state-pin":
				c.StatePin = f.Value.String()
			case "reset-pin":
				c.ResetPin = f.Value.String()
			case "connected-pin":
				c.ConnectedPin = f.Value.String()
			case "activity-pin":
				c.ActivityPin = f.Value.String()
			case "toggle-pin":
				c.TogglePin = f.Value.String()
			case "mqtt-broker":
				c.MQTTBroker = f.Value.String()
			case "mqtt-client-id":
				c.MQTTClientID = f.Value.String()
			case "mqtt-topic-prefix":
				c.MQTTTopicPrefix = f.Value.String()
			}
		})
		return err
	}
}

// ModuleRole parses the configured role.
func (c *Config) ModuleRole() (at.Role, error) {
	return at.ParseRole(c.Role)
}

// ModuleBaudRate maps the configured speed to the module's baud code.
func (c *Config) ModuleBaudRate() (at.BaudRate, error) {
	return at.BaudRateFromBits(c.BaudRate)
}
