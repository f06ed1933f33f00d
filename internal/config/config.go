// Package config loads and validates the YAML configuration for image-ingest.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete image-ingest configuration
type Config struct {
	InstanceID       string         `yaml:"instance_id"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Source           SourceConfig   `yaml:"source"`
	Pipeline         PipelineConfig `yaml:"pipeline"`
	Logging          LoggingConfig  `yaml:"logging"`
	Status           StatusConfig   `yaml:"status"`
}

// SourceConfig selects and configures the frame transport
type SourceConfig struct {
	Kind      string          `yaml:"kind"` // mqtt, gst, replay, synthetic
	MQTT      MQTTConfig      `yaml:"mqtt"`
	GStreamer GStreamerConfig `yaml:"gst"`
	Replay    ReplayConfig    `yaml:"replay"`
	Synthetic SyntheticConfig `yaml:"synthetic"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Buffer   int    `yaml:"buffer"` // frame channel buffer
}

// GStreamerConfig describes a launch pipeline ending in "appsink name=sink"
type GStreamerConfig struct {
	Pipeline           string `yaml:"pipeline"`
	Name               string `yaml:"name"`
	Buffer             int    `yaml:"buffer"`
	MaxReconnects      int    `yaml:"max_reconnects"`
	ReconnectInitialMS int    `yaml:"reconnect_initial_ms"`
	ReconnectMaxMS     int    `yaml:"reconnect_max_ms"`
}

// ReplayConfig points at a recorded frame file
type ReplayConfig struct {
	Path string  `yaml:"path"`
	FPS  float64 `yaml:"fps"` // 0 = as fast as the worker takes them
	Loop bool    `yaml:"loop"`
}

// SyntheticConfig generates a moving test pattern
type SyntheticConfig struct {
	Encoding   string  `yaml:"encoding"`
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	FPS        float64 `yaml:"fps"`
	Count      int     `yaml:"count"`       // 0 = unbounded
	FaultEvery int     `yaml:"fault_every"` // inject a malformed frame every N frames, 0 = never
}

// PipelineConfig contains per-frame processing settings
type PipelineConfig struct {
	TargetEncoding string `yaml:"target_encoding"`
	Semantic       string `yaml:"semantic"`    // grayscale, swap-rb, downsample
	QueueDepth     int    `yaml:"queue_depth"` // KEEP_LAST depth between transport and pipeline
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// StatusConfig contains the HTTP status server settings
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ShutdownTimeout returns ShutdownTimeoutS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// Default returns a validated configuration using the synthetic source.
func Default() *Config {
	cfg := &Config{
		InstanceID: "image-ingest",
		Source:     SourceConfig{Kind: SourceSynthetic},
	}
	if err := Validate(cfg); err != nil {
		panic(fmt.Sprintf("config: default configuration invalid: %v", err))
	}
	return cfg
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML configuration
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
