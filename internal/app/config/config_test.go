package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyUSB0
diagnosis:
  endpoint: https://api.example.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Serial.BaudRate != 57600 {
		t.Fatalf("expected baud default 57600, got %d", cfg.Serial.BaudRate)
	}
	if cfg.Buffer.Capacity != 2000 {
		t.Fatalf("expected buffer capacity default 2000, got %d", cfg.Buffer.Capacity)
	}
	if cfg.Buffer.SampleRateHz != 250 {
		t.Fatalf("expected sample rate default 250, got %f", cfg.Buffer.SampleRateHz)
	}
	if cfg.Diagnosis.Timeout != 30*time.Second {
		t.Fatalf("expected diagnosis timeout default 30s, got %s", cfg.Diagnosis.Timeout)
	}
	if cfg.Diagnosis.AutoInterval != 30*time.Second {
		t.Fatalf("expected auto interval default 30s, got %s", cfg.Diagnosis.AutoInterval)
	}
	if cfg.Diagnosis.MinData != 4*time.Second {
		t.Fatalf("expected min data default 4s, got %s", cfg.Diagnosis.MinData)
	}
	if cfg.Diagnosis.HistoryCapacity != 50 {
		t.Fatalf("expected history capacity default 50, got %d", cfg.Diagnosis.HistoryCapacity)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("expected default metrics addr :9100, got %s", cfg.Metrics.Addr)
	}
	if cfg.Analysis.Interval != time.Second {
		t.Fatalf("expected analysis interval default 1s, got %s", cfg.Analysis.Interval)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"negative capacity": `
buffer:
  capacity: -5
diagnosis:
  endpoint: https://api.example.com
`,
		"zero sample rate": `
buffer:
  sample_rate_hz: -1
diagnosis:
  endpoint: https://api.example.com
`,
		"negative timeout": `
diagnosis:
  endpoint: https://api.example.com
  timeout: -1s
`,
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, data)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("ECG_RECEIVER_API_KEY", "env-key")

	cfg, err := Load(writeConfig(t, `
diagnosis:
  endpoint: https://api.example.com
  api_key: file-key
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Diagnosis.APIKey != "env-key" {
		t.Fatalf("env key should win, got %q", cfg.Diagnosis.APIKey)
	}
}
