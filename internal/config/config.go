// Package config loads server configuration from YAML, overlaying it onto
// a struct literal of defaults.
//
// Grounded on internal/config/config.go's Load: build a Config populated
// with defaults, then yaml.Unmarshal the file contents over it so an empty
// or partial file still yields a runnable configuration.
package config

import (
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Queue       QueueConfig       `yaml:"queue"`
	Dispatcher  DispatcherConfig  `yaml:"dispatcher"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Relay       RelayConfig       `yaml:"relay"`
	Hostmetrics HostmetricsConfig `yaml:"hostmetrics"`
	Demo        DemoConfig        `yaml:"demo"`
}

// ServerConfig is the raw TCP listener the signal protocol is served on.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// QueueConfig bounds the update queue between admission and dispatch.
type QueueConfig struct {
	// Capacity <= 0 means unbounded.
	Capacity int `yaml:"capacity"`
}

// DispatcherConfig tunes the session write path.
type DispatcherConfig struct {
	AliveInterval time.Duration `yaml:"alive_interval"`
}

// MetricsConfig is the optional Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// RelayConfig is the optional WebSocket/JSON bridge.
type RelayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// HostmetricsConfig drives the gopsutil-backed CPU/memory producer.
type HostmetricsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// DemoConfig drives the synthetic random-walk producer.
type DemoConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Queue: QueueConfig{
			Capacity: 1024,
		},
		Dispatcher: DispatcherConfig{
			AliveInterval: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9100",
		},
		Relay: RelayConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9101",
		},
		Hostmetrics: HostmetricsConfig{
			Enabled:  false,
			Interval: 2 * time.Second,
		},
		Demo: DemoConfig{
			Enabled:  false,
			Interval: time.Second,
		},
	}
}

// Load reads and parses the YAML file at path, overlaying it onto the
// default configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load, except a missing file yields the default
// configuration instead of an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Addr returns the server's listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
