package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	key, err := cfg.Key()
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if len(key) != MeshKeyLen {
		t.Errorf("key length = %d, want %d", len(key), MeshKeyLen)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
node:
  id: field-7
  report_interval_ms: 2000
  rf_center_freq_hz: 868000000
radio:
  transport: lora
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.ID != "field-7" {
		t.Errorf("ID = %q, want field-7", cfg.Node.ID)
	}
	if cfg.Node.ReportIntervalMS != 2000 {
		t.Errorf("ReportIntervalMS = %d, want 2000", cfg.Node.ReportIntervalMS)
	}
	if cfg.Node.RFCenterFreqHz != 868000000 {
		t.Errorf("RFCenterFreqHz = %d", cfg.Node.RFCenterFreqHz)
	}
	// Unset fields keep defaults.
	if cfg.Node.FFTSize != 128 {
		t.Errorf("FFTSize = %d, want default 128", cfg.Node.FFTSize)
	}
	if cfg.Radio.Transport != "lora" {
		t.Errorf("Transport = %q, want lora", cfg.Radio.Transport)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Format = %q, want json", cfg.Log.Format)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/node.yaml"); err == nil {
		t.Error("Load of missing file should fail")
	}
}

func TestLoadOrDefault_EmptyPath(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Node.ID != "node-001" {
		t.Errorf("ID = %q, want default", cfg.Node.ID)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"empty id", func(c *Config) { c.Node.ID = "" }, "node.id"},
		{"long id", func(c *Config) { c.Node.ID = "a-very-long-node-identifier" }, "15 bytes"},
		{"id with space", func(c *Config) { c.Node.ID = "node 1" }, "non-printable"},
		{"zero report interval", func(c *Config) { c.Node.ReportIntervalMS = 0 }, "report_interval_ms"},
		{"zero heartbeat", func(c *Config) { c.Node.HeartbeatIntervalMS = 0 }, "heartbeat_interval_ms"},
		{"fft too big", func(c *Config) { c.Node.FFTSize = 256 }, "fft_size"},
		{"threshold too big", func(c *Config) { c.Node.AnomalyThreshold = 1.5 }, "anomaly_threshold"},
		{"bad key hex", func(c *Config) { c.Node.MeshKey = "zz" }, "mesh_key"},
		{"short key", func(c *Config) { c.Node.MeshKey = "1122" }, "mesh_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate should fail")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
node:
  id: way-too-long-node-identifier
`)
	if _, err := Load(path); err == nil {
		t.Error("Load should reject an invalid config")
	}
}
