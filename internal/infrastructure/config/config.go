package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for winmon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	Monitor MonitorConfig `yaml:"monitor"`
	Devices []string      `yaml:"devices"`
	Host    HostConfig    `yaml:"host_state"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains the TCP viewer-client service settings.
type ServerConfig struct {
	// Host is the listen address for the viewer-client service.
	Host string `yaml:"host"`

	// Port is the TCP port the viewer-client service binds to.
	Port int `yaml:"port"`

	// Password is the shared secret viewer clients present at login.
	Password string `yaml:"password"`

	// LoginTimeout is the number of seconds an unauthenticated session
	// may stay connected before it is dropped.
	LoginTimeout int `yaml:"login_timeout"`

	// KeepAliveInterval is the keep-alive period in milliseconds.
	KeepAliveInterval int `yaml:"keepalive_interval"`
}

// GatewayConfig contains the serial sensor-gateway settings.
type GatewayConfig struct {
	// Port is the serial device name (e.g. "/dev/ttyS4").
	Port string `yaml:"port"`

	// BaudRate is the serial line speed.
	BaudRate int `yaml:"baud_rate"`

	// PollInterval is the supervising loop period in seconds. Each tick
	// the adapter checks the reader and reopens the port if needed.
	PollInterval int `yaml:"poll_interval"`
}

// MonitorConfig contains device warning thresholds.
type MonitorConfig struct {
	// LowBatteryVolts is the voltage below which a device gets the
	// low-battery warning. 0 disables the check.
	LowBatteryVolts float64 `yaml:"low_battery_volts"`

	// InactivityTimeout is the number of seconds without a sensor report
	// after which a device gets the no-activity warning. 0 disables the check.
	InactivityTimeout int `yaml:"inactivity_timeout"`
}

// HostConfig contains the host sensor readout and disk usage settings.
type HostConfig struct {
	// SensorCommand is the host command producing sensor readout lines.
	SensorCommand string `yaml:"sensor_command"`

	// SensorIDs selects which readout labels are reported.
	SensorIDs []string `yaml:"sensor_ids"`

	// DiskPaths and DiskLabels describe the monitored filesystems.
	// Both lists must have the same length.
	DiskPaths  []string `yaml:"disk_paths"`
	DiskLabels []string `yaml:"disk_labels"`
}

// MQTTConfig contains MQTT broker connection settings for the optional
// state relay.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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
// Environment variables follow the pattern: WINMON_SECTION_KEY
// For example: WINMON_SERVER_PASSWORD, WINMON_GATEWAY_PORT
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
			Host:              "0.0.0.0",
			Port:              5017,
			LoginTimeout:      5,
			KeepAliveInterval: 1000,
		},
		Gateway: GatewayConfig{
			Port:         "/dev/ttyS4",
			BaudRate:     57600,
			PollInterval: 1,
		},
		Monitor: MonitorConfig{
			LowBatteryVolts:   2.5,
			InactivityTimeout: 0,
		},
		Host: HostConfig{
			SensorCommand: "ipmitool sensor",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "winmon-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
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
// Environment variables follow the pattern: WINMON_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("WINMON_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("WINMON_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WINMON_SERVER_PASSWORD"); v != "" {
		cfg.Server.Password = v
	}

	// Gateway
	if v := os.Getenv("WINMON_GATEWAY_PORT"); v != "" {
		cfg.Gateway.Port = v
	}

	// MQTT
	if v := os.Getenv("WINMON_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WINMON_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WINMON_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
}

// Validate checks the configuration for errors.
//
// Device lines themselves are validated by the device package at load
// time; here we only check the shape of the surrounding configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// The shared password gates every viewer session. An empty password
	// would let any client on the network read sensor state.
	if c.Server.Password == "" {
		errs = append(errs, "server.password is required (set WINMON_SERVER_PASSWORD environment variable)")
	}

	if c.Server.LoginTimeout < 1 {
		errs = append(errs, "server.login_timeout must be at least 1 second")
	}
	if c.Server.KeepAliveInterval < 1 {
		errs = append(errs, "server.keepalive_interval must be at least 1 millisecond")
	}

	if c.Gateway.Port == "" {
		errs = append(errs, "gateway.port is required")
	}
	if c.Gateway.BaudRate < 1 {
		errs = append(errs, "gateway.baud_rate must be positive")
	}
	if c.Gateway.PollInterval < 1 {
		errs = append(errs, "gateway.poll_interval must be at least 1 second")
	}

	if len(c.Host.DiskPaths) != len(c.Host.DiskLabels) {
		errs = append(errs, "host_state.disk_paths and host_state.disk_labels must have the same length")
	}
	// The SERVER_STATE frame carries exactly six label/value pairs.
	if n := len(c.Host.SensorIDs) + len(c.Host.DiskLabels); n != 0 && n != 6 {
		errs = append(errs, "host_state must describe exactly six readings (sensor_ids plus disk_labels)")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetLoginTimeout returns the login deadline as a Duration.
func (c *ServerConfig) GetLoginTimeout() time.Duration {
	return time.Duration(c.LoginTimeout) * time.Second
}

// GetKeepAliveInterval returns the keep-alive period as a Duration.
func (c *ServerConfig) GetKeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAliveInterval) * time.Millisecond
}

// GetPollInterval returns the gateway supervising period as a Duration.
func (c *GatewayConfig) GetPollInterval() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// GetInactivityTimeout returns the no-activity window as a Duration.
func (c *MonitorConfig) GetInactivityTimeout() time.Duration {
	return time.Duration(c.InactivityTimeout) * time.Second
}
