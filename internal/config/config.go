// Package config provides configuration parsing and validation for the RF
// mesh node.
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MeshKeyLen is the required mesh key length in bytes.
const MeshKeyLen = 32

// Config represents the complete node configuration. Intervals that
// mirror firmware fields stay in raw milliseconds so host and device
// traces line up.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Radio   RadioConfig   `yaml:"radio"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// NodeConfig contains the node identity and sampling parameters.
type NodeConfig struct {
	ID                  string  `yaml:"id"`                    // at most 15 bytes
	ReportIntervalMS    uint32  `yaml:"report_interval_ms"`    // packet builder period
	RFCenterFreqHz      uint32  `yaml:"rf_center_freq_hz"`     // scan center frequency
	FFTSize             int     `yaml:"fft_size"`              // samples per window
	AnomalyThreshold    float32 `yaml:"anomaly_threshold"`     // alert cutoff in [0,1]
	HeartbeatIntervalMS uint32  `yaml:"heartbeat_interval_ms"` // scheduler tick
	MeshKey             string  `yaml:"mesh_key"`              // 32 bytes, hex encoded
}

// RadioConfig selects the PHY backend.
type RadioConfig struct {
	Transport   string  `yaml:"transport"`     // espnow, wifiraw, lora
	UDPAddress  string  `yaml:"udp_address"`   // host:port; empty = no backend, sends are discarded
	SendsPerSec float64 `yaml:"sends_per_sec"` // UDP pacing; 0 = unlimited
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID:                  "node-001",
			ReportIntervalMS:    1000,
			RFCenterFreqHz:      915000000,
			FFTSize:             128,
			AnomalyThreshold:    0.8,
			HeartbeatIntervalMS: 250,
			MeshKey:             "1111111111111111111111111111111111111111111111111111111111111111",
		},
		Radio: RadioConfig{
			Transport: "espnow",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9402",
		},
	}
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when non-empty, otherwise returns defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id is required")
	}
	if len(c.Node.ID) > 15 {
		return fmt.Errorf("node.id %q exceeds 15 bytes", c.Node.ID)
	}
	for _, r := range c.Node.ID {
		if r < 0x21 || r > 0x7E {
			return fmt.Errorf("node.id %q contains non-printable byte", c.Node.ID)
		}
	}
	if c.Node.ReportIntervalMS == 0 {
		return fmt.Errorf("node.report_interval_ms must be positive")
	}
	if c.Node.HeartbeatIntervalMS == 0 {
		return fmt.Errorf("node.heartbeat_interval_ms must be positive")
	}
	if c.Node.FFTSize <= 0 || c.Node.FFTSize > 128 {
		return fmt.Errorf("node.fft_size %d out of range (0, 128]", c.Node.FFTSize)
	}
	if c.Node.AnomalyThreshold < 0 || c.Node.AnomalyThreshold > 1 {
		return fmt.Errorf("node.anomaly_threshold %v out of range [0, 1]", c.Node.AnomalyThreshold)
	}
	if _, err := c.Key(); err != nil {
		return err
	}
	return nil
}

// Key decodes the hex mesh key.
func (c *Config) Key() ([]byte, error) {
	key, err := hex.DecodeString(c.Node.MeshKey)
	if err != nil {
		return nil, fmt.Errorf("node.mesh_key is not valid hex: %w", err)
	}
	if len(key) != MeshKeyLen {
		return nil, fmt.Errorf("node.mesh_key is %d bytes, want %d", len(key), MeshKeyLen)
	}
	return key, nil
}
