package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/diagnosis"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/serialline"
)

// apiKeyEnv overrides diagnosis.api_key so keys can stay out of config files.
const apiKeyEnv = "ECG_RECEIVER_API_KEY"

type Config struct {
	Serial    serialline.Config `yaml:"serial"`
	Buffer    BufferConfig      `yaml:"buffer"`
	Diagnosis DiagnosisConfig   `yaml:"diagnosis"`
	Metrics   MetricsConfig     `yaml:"metrics"`
	Recorder  RecorderConfig    `yaml:"recorder"`
	Analysis  AnalysisConfig    `yaml:"analysis"`
}

type BufferConfig struct {
	Capacity     int     `yaml:"capacity"`
	SampleRateHz float64 `yaml:"sample_rate_hz"`
}

type DiagnosisConfig struct {
	diagnosis.Config `yaml:",inline"`

	Timeout         time.Duration `yaml:"timeout"`
	AutoInterval    time.Duration `yaml:"auto_interval"`
	MinData         time.Duration `yaml:"min_data"`
	HistoryCapacity int           `yaml:"history_capacity"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type RecorderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type AnalysisConfig struct {
	Interval time.Duration `yaml:"interval"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	c.Serial.ApplyDefaults()

	if c.Buffer.Capacity == 0 {
		c.Buffer.Capacity = 2000
	}
	if c.Buffer.SampleRateHz == 0 {
		c.Buffer.SampleRateHz = 250
	}

	c.Diagnosis.Config.ApplyDefaults()
	if key := os.Getenv(apiKeyEnv); key != "" {
		c.Diagnosis.APIKey = key
	}
	if c.Diagnosis.Timeout == 0 {
		c.Diagnosis.Timeout = 30 * time.Second
	}
	if c.Diagnosis.AutoInterval == 0 {
		c.Diagnosis.AutoInterval = 30 * time.Second
	}
	if c.Diagnosis.MinData == 0 {
		c.Diagnosis.MinData = 4 * time.Second
	}
	if c.Diagnosis.HistoryCapacity == 0 {
		c.Diagnosis.HistoryCapacity = 50
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Recorder.Dir == "" {
		c.Recorder.Dir = "./data/sessions"
	}
	if c.Analysis.Interval == 0 {
		c.Analysis.Interval = time.Second
	}
}

func (c *Config) Validate() error {
	if c.Buffer.Capacity < 0 {
		return fmt.Errorf("buffer.capacity must be positive")
	}
	if c.Buffer.SampleRateHz <= 0 {
		return fmt.Errorf("buffer.sample_rate_hz must be positive")
	}
	if c.Diagnosis.Timeout <= 0 {
		return fmt.Errorf("diagnosis.timeout must be positive")
	}
	if c.Diagnosis.MinData <= 0 {
		return fmt.Errorf("diagnosis.min_data must be positive")
	}
	if c.Diagnosis.HistoryCapacity <= 0 {
		return fmt.Errorf("diagnosis.history_capacity must be positive")
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	if c.Recorder.Enabled && c.Recorder.Dir == "" {
		return fmt.Errorf("recorder.dir is required when recorder is enabled")
	}
	return nil
}
